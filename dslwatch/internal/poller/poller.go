// Package poller is the page-detection state machine that drives update
// cycles.
//
// One goroutine (Run) owns all session state. It wakes on two tickers: a
// fast detection tick that classifies the page and arms or cancels the
// session, and the session's own update tick, which only exists while a
// page is active. At most one update ticker is ever live.
package poller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/hazyhaar/dslwatch/dom"
	"github.com/hazyhaar/dslwatch/dslwatch/adapter"
	"github.com/hazyhaar/dslwatch/dslwatch/internal/control"
	"github.com/hazyhaar/dslwatch/dslwatch/internal/reconcile"
	"github.com/hazyhaar/dslwatch/dslwatch/stats"
	"github.com/hazyhaar/dslwatch/history"
	"github.com/hazyhaar/dslwatch/idgen"
	"github.com/hazyhaar/dslwatch/telemetry"
)

// Fetcher returns a fresh snapshot. *stats.Source satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context) (stats.Snapshot, error)
}

// Recorder receives every successful cycle's snapshot. *history.Recorder
// satisfies it.
type Recorder interface {
	Record(b history.Batch)
}

// Config wires an Orchestrator.
type Config struct {
	Document   dom.Document
	Registry   *adapter.Registry
	Source     Fetcher
	Reconciler *reconcile.Reconciler
	Action     *control.Action

	DetectInterval time.Duration // default 500ms
	UpdateInterval time.Duration // default 5s

	Clock     clock.Clock
	Telemetry telemetry.Collector
	Recorder  Recorder
	NewID     idgen.Generator // default sess_ + UUIDv7
	Logger    *slog.Logger
}

// State is the session state.
type State int

const (
	Idle State = iota
	Active
)

func (s State) String() string {
	if s == Active {
		return "active"
	}
	return "idle"
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Status is a point-in-time copy of the orchestrator state.
type Status struct {
	State        State            `json:"state"`
	Page         adapter.Identity `json:"page"`
	Detected     adapter.Identity `json:"detected"`
	SessionID    string           `json:"session_id,omitempty"`
	LastSnapshot stats.Snapshot   `json:"last_snapshot,omitempty"`
	LastCycle    time.Time        `json:"last_cycle,omitzero"`
	LastOK       bool             `json:"last_ok"`
	Armed        int64            `json:"intervals_armed"`
	Cancelled    int64            `json:"intervals_cancelled"`
	Cycles       int64            `json:"cycles"`
	Failures     int64            `json:"failures"`
}

// LiveIntervals is the number of update tickers currently running: 0 or 1.
func (s Status) LiveIntervals() int64 { return s.Armed - s.Cancelled }

type session struct {
	id     string
	page   adapter.Identity
	ticker *clock.Ticker
}

// Orchestrator runs detection and update cycles.
type Orchestrator struct {
	doc      dom.Document
	registry *adapter.Registry
	source   Fetcher
	rec      *reconcile.Reconciler
	action   *control.Action

	detectEvery time.Duration
	updateEvery time.Duration

	clock     clock.Clock
	telemetry telemetry.Collector
	recorder  Recorder
	newID     idgen.Generator
	logger    *slog.Logger

	// Owned by the Run goroutine.
	session  *session
	lastPage adapter.Identity

	mu     sync.Mutex
	status Status

	resets sync.WaitGroup
}

// New builds an Orchestrator. Document, Registry and Source are required.
func New(cfg Config) *Orchestrator {
	if cfg.DetectInterval <= 0 {
		cfg.DetectInterval = 500 * time.Millisecond
	}
	if cfg.UpdateInterval <= 0 {
		cfg.UpdateInterval = 5 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Telemetry == nil {
		cfg.Telemetry = telemetry.Noop()
	}
	if cfg.NewID == nil {
		cfg.NewID = idgen.Prefixed("sess_", idgen.UUIDv7())
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Reconciler == nil {
		cfg.Reconciler = reconcile.New(cfg.Logger)
	}
	return &Orchestrator{
		doc:         cfg.Document,
		registry:    cfg.Registry,
		source:      cfg.Source,
		rec:         cfg.Reconciler,
		action:      cfg.Action,
		detectEvery: cfg.DetectInterval,
		updateEvery: cfg.UpdateInterval,
		clock:       cfg.Clock,
		telemetry:   cfg.Telemetry,
		recorder:    cfg.Recorder,
		newID:       cfg.NewID,
		logger:      cfg.Logger,
	}
}

// Run drives the state machine until ctx is done. It waits for in-flight
// reset sequences before returning.
func (o *Orchestrator) Run(ctx context.Context) error {
	detect := o.clock.Ticker(o.detectEvery)
	defer detect.Stop()
	defer o.resets.Wait()
	defer o.disarm()

	o.logger.Info("poller: started", "detect", o.detectEvery, "update", o.updateEvery)
	for {
		var updates <-chan time.Time
		if o.session != nil {
			updates = o.session.ticker.C
		}
		select {
		case <-ctx.Done():
			o.logger.Info("poller: stopped")
			return ctx.Err()
		case <-detect.C:
			o.Tick(ctx)
		case <-updates:
			o.Update(ctx)
		}
	}
}

// Tick is one detection step:
//  1. classify the current location (a read failure counts as no page);
//  2. on a page change, cancel the running session;
//  3. on a known page with no session, run one cycle and arm on success;
//  4. remember the detected page whatever happened.
//
// Must only be called from the goroutine that owns the orchestrator.
func (o *Orchestrator) Tick(ctx context.Context) {
	detected := adapter.None
	if loc, err := o.doc.Location(ctx); err != nil {
		o.logger.Debug("poller: location unavailable", "error", err)
	} else {
		detected = o.registry.Classify(loc)
	}

	if detected != o.lastPage {
		o.logger.Debug("poller: page changed", "from", o.lastPage, "to", detected)
		o.disarm()
	}

	if detected != adapter.None && o.session == nil {
		id := o.newID()
		if o.cycle(ctx, detected, id) {
			o.arm(detected, id)
		}
	}

	o.lastPage = detected
	o.mu.Lock()
	o.status.Detected = detected
	o.mu.Unlock()
}

// Update is one update-ticker step: a cycle for the active page. A failed
// cycle leaves the session armed; the next tick simply tries again.
func (o *Orchestrator) Update(ctx context.Context) bool {
	s := o.session
	if s == nil {
		return false
	}
	return o.cycle(ctx, s.page, s.id)
}

// Status returns a copy of the current state. Safe from any goroutine.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

func (o *Orchestrator) arm(page adapter.Identity, id string) {
	o.disarm()
	o.session = &session{id: id, page: page, ticker: o.clock.Ticker(o.updateEvery)}
	o.telemetry.IncIntervalArmed(page.String())
	o.logger.Info("poller: session armed", "page", page, "session", id, "every", o.updateEvery)

	o.mu.Lock()
	o.status.State = Active
	o.status.Page = page
	o.status.SessionID = id
	o.status.Armed++
	o.mu.Unlock()
}

func (o *Orchestrator) disarm() {
	s := o.session
	if s == nil {
		return
	}
	s.ticker.Stop()
	o.session = nil
	o.telemetry.IncIntervalCancelled(s.page.String())
	o.logger.Info("poller: session cancelled", "page", s.page, "session", s.id)

	o.mu.Lock()
	o.status.State = Idle
	o.status.Page = adapter.None
	o.status.SessionID = ""
	o.status.Cancelled++
	o.mu.Unlock()
}
