// CLAUDE:SUMMARY Top-level Watcher: wires browser, command channel, extraction, adapters, orchestrator, history and telemetry.
// Package dslwatch augments a Keenetic router's web console with live DSL
// line statistics and a Reset DSL button.
//
// A Watcher attaches to the console tab over CDP, recognises the dashboard
// and the DSL diagnostics page, and while one of them is shown refreshes a
// few injected rows from the router's command interface. Samples are kept
// in SQLite and exposed over HTTP and MCP.
package dslwatch

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/go-rod/rod"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hazyhaar/dslwatch/dom"
	"github.com/hazyhaar/dslwatch/dslwatch/adapter"
	"github.com/hazyhaar/dslwatch/dslwatch/internal/browser"
	"github.com/hazyhaar/dslwatch/dslwatch/internal/config"
	"github.com/hazyhaar/dslwatch/dslwatch/internal/control"
	"github.com/hazyhaar/dslwatch/dslwatch/internal/poller"
	"github.com/hazyhaar/dslwatch/dslwatch/internal/reconcile"
	"github.com/hazyhaar/dslwatch/dslwatch/stats"
	"github.com/hazyhaar/dslwatch/history"
	"github.com/hazyhaar/dslwatch/rci"
	"github.com/hazyhaar/dslwatch/telemetry"
)

// ErrHistoryDisabled is returned by history queries when no store is
// configured.
var ErrHistoryDisabled = errors.New("dslwatch: history is disabled")

// Option customises a Watcher.
type Option func(*options)

type options struct {
	doc     dom.Document
	cookies rci.CookieSource
	clock   clock.Clock
}

// WithDocument drives doc instead of a Chrome tab. No browser is started
// and, unless WithCookieSource is also given, no cookies are sent.
func WithDocument(doc dom.Document) Option {
	return func(o *options) { o.doc = doc }
}

// WithCookieSource overrides where command-channel cookies come from.
func WithCookieSource(src rci.CookieSource) Option {
	return func(o *options) { o.cookies = src }
}

// WithClock replaces the wall clock for every ticker and timer.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// Watcher is the running daemon.
type Watcher struct {
	cfg    *config.Config
	logger *slog.Logger
	clock  clock.Clock

	mgr    *browser.Manager
	tab    *browser.Document
	doc    dom.Document
	rec    *reconcile.Reconciler
	source *stats.Source
	orch   *poller.Orchestrator

	metrics   *prometheus.Registry
	telemetry *telemetry.PrometheusCollector

	db       *sql.DB
	store    *history.Store
	recorder *history.Recorder
}

// New builds a Watcher from cfg. It opens the history database but does
// not touch the browser; Run does.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	if o.clock == nil {
		o.clock = clock.New()
	}

	w := &Watcher{cfg: cfg, logger: logger, clock: o.clock, rec: reconcile.New(logger)}

	registry, err := loadRegistry(cfg.AdaptersFile)
	if err != nil {
		return nil, err
	}

	doc := o.doc
	if doc == nil {
		w.tab = browser.NewDocument(logger)
		w.mgr = browser.NewManager(browser.Config{
			RemoteURL:      cfg.Browser.Remote,
			Bin:            cfg.Browser.Bin,
			UserDataDir:    cfg.Browser.UserDataDir,
			Headless:       cfg.Browser.Headless,
			HealthInterval: cfg.Browser.HealthInterval,
			Logger:         logger,
		})
		doc = w.tab
		if o.cookies == nil {
			o.cookies = browser.CookieSource(w.tab, cfg.Router.URL)
		}
	}
	w.doc = doc

	client, err := rci.New(cfg.Router.URL, cfg.Router.RCIPath,
		rci.WithTimeout(cfg.Router.Timeout),
		rci.WithCookieSource(o.cookies),
		rci.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("dslwatch: %w", err)
	}

	w.source, err = stats.NewSource(client, cfg.Router.ReadCommand, nil, logger)
	if err != nil {
		return nil, fmt.Errorf("dslwatch: %w", err)
	}

	w.metrics = prometheus.NewRegistry()
	w.metrics.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	w.telemetry, err = telemetry.NewPrometheusCollector(w.metrics)
	if err != nil {
		return nil, fmt.Errorf("dslwatch: telemetry: %w", err)
	}

	if cfg.HistoryEnabled() {
		if err := w.openHistory(ctx); err != nil {
			return nil, err
		}
	}

	action := control.New(client, control.Config{
		Interface: cfg.Router.Interface,
		Delay:     cfg.Poll.ResetDelay,
		Clock:     o.clock,
		Logger:    logger,
		OnDone:    func(err error) { w.telemetry.IncReset(err == nil) },
	})

	pcfg := poller.Config{
		Document:       doc,
		Registry:       registry,
		Source:         w.source,
		Reconciler:     w.rec,
		Action:         action,
		DetectInterval: cfg.Poll.Detect,
		UpdateInterval: cfg.Poll.Update,
		Clock:          o.clock,
		Telemetry:      w.telemetry,
		Logger:         logger,
	}
	if w.recorder != nil {
		pcfg.Recorder = w.recorder
	}
	w.orch = poller.New(pcfg)
	return w, nil
}

func loadRegistry(path string) (*adapter.Registry, error) {
	if path == "" {
		return adapter.Default(), nil
	}
	reg, err := adapter.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("dslwatch: adapters: %w", err)
	}
	return reg, nil
}

func (w *Watcher) openHistory(ctx context.Context) error {
	db, err := history.Open(w.cfg.History.Path)
	if err != nil {
		return fmt.Errorf("dslwatch: %w", err)
	}
	store := history.NewStore(db)
	if err := store.Init(ctx); err != nil {
		db.Close()
		return fmt.Errorf("dslwatch: %w", err)
	}
	w.db = db
	w.store = store
	w.recorder = history.NewRecorder(store, 0, w.logger)
	return nil
}

// Run attaches to the console (unless a Document was injected) and drives
// the page until ctx is done. The Watcher stays queryable after Run
// returns; call Close to release it.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.Start(ctx); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer wg.Wait()
	defer cancel()

	if w.store != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.retentionLoop(ctx)
		}()
	}

	w.logger.Info("dslwatch: watching", "router", w.cfg.Router.URL)
	err := w.orch.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Start connects to the browser and attaches the console tab. It is a no-op
// when a Document was injected.
func (w *Watcher) Start(ctx context.Context) error {
	if w.mgr == nil {
		return nil
	}
	b, err := w.mgr.Start(ctx)
	if err != nil {
		return fmt.Errorf("dslwatch: start browser: %w", err)
	}
	if err := w.attach(ctx, b); err != nil {
		return err
	}
	w.mgr.OnReconnect(func(b *rod.Browser) {
		if err := w.attach(ctx, b); err != nil {
			w.logger.Error("dslwatch: reattach after reconnect failed", "error", err)
		}
	})
	return nil
}

func (w *Watcher) attach(ctx context.Context, b *rod.Browser) error {
	page, err := browser.AttachTab(ctx, b, browser.TabConfig{
		RouterURL: w.cfg.Router.URL,
		Stealth:   w.cfg.Browser.Stealth,
		Logger:    w.logger,
	})
	if err != nil {
		return fmt.Errorf("dslwatch: attach tab: %w", err)
	}
	if err := w.tab.SetPage(ctx, page); err != nil {
		return fmt.Errorf("dslwatch: %w", err)
	}
	w.adopt(ctx)
	return nil
}

// adopt clears rows an earlier attachment left on the tab, so the next
// cycle recreates them and binds the button to a live handler.
func (w *Watcher) adopt(ctx context.Context) {
	if err := w.rec.Strip(ctx, w.doc); err != nil {
		w.logger.Warn("dslwatch: clear leftover rows", "error", err)
	}
	if r, ok := w.doc.(dom.Releaser); ok {
		r.Release(ctx)
	}
}

// retentionLoop deletes samples older than the retention window, once at
// start and then hourly.
func (w *Watcher) retentionLoop(ctx context.Context) {
	ticker := w.clock.Ticker(time.Hour)
	defer ticker.Stop()
	for {
		w.pruneHistory(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (w *Watcher) pruneHistory(ctx context.Context) {
	n, err := w.store.Cleanup(ctx, w.clock.Now().Add(-w.cfg.History.Retention))
	if err != nil {
		w.logger.Warn("dslwatch: history cleanup failed", "error", err)
		return
	}
	if n > 0 {
		w.logger.Info("dslwatch: history cleanup", "deleted", n)
	}
}

// Close releases the browser and flushes history. Call it once Run has
// returned and nothing serves Status, Stats or History any more.
func (w *Watcher) Close() error {
	if w.recorder != nil {
		w.recorder.Close()
	}
	var errs []error
	if w.db != nil {
		errs = append(errs, w.db.Close())
		w.db = nil
	}
	if w.tab != nil {
		w.tab.Close()
	}
	if w.mgr != nil {
		errs = append(errs, w.mgr.Close())
	}
	return errors.Join(errs...)
}

// Status returns the orchestrator state.
func (w *Watcher) Status() poller.Status {
	return w.orch.Status()
}

// Stats fetches a fresh snapshot from the router, independent of the page.
func (w *Watcher) Stats(ctx context.Context) (stats.Snapshot, error) {
	return w.source.Fetch(ctx)
}

// History returns up to limit stored samples of metric, newest first.
func (w *Watcher) History(ctx context.Context, metric string, limit int) ([]history.Sample, error) {
	if w.store == nil {
		return nil, ErrHistoryDisabled
	}
	samples, err := w.store.Recent(ctx, metric, limit)
	if err != nil {
		return nil, err
	}
	if samples == nil {
		samples = []history.Sample{}
	}
	return samples, nil
}
