package poller

import (
	"context"
	"errors"
	"fmt"

	"github.com/hazyhaar/dslwatch/dom"
	"github.com/hazyhaar/dslwatch/dslwatch/adapter"
	"github.com/hazyhaar/dslwatch/dslwatch/internal/control"
	"github.com/hazyhaar/dslwatch/dslwatch/internal/reconcile"
	"github.com/hazyhaar/dslwatch/dslwatch/stats"
	"github.com/hazyhaar/dslwatch/history"
)

// row is one metric row in display order.
type row struct {
	id     string
	key    string
	label  string
	uptime bool
}

var rows = []row{
	{id: reconcile.RowUptime, key: stats.KeyUptime, label: "Uptime", uptime: true},
	{id: reconcile.RowCRCErrors, key: stats.KeyCRCErrors, label: "CRC errors (fast)"},
	{id: reconcile.RowFECErrors, key: stats.KeyFECErrors, label: "FEC errors (fast)"},
}

// cycle is one fetch, parse and reconcile pass for page. It reports
// whether the page now shows fresh rows.
func (o *Orchestrator) cycle(ctx context.Context, page adapter.Identity, sessionID string) bool {
	start := o.clock.Now()
	snap, err := o.runCycle(ctx, page)
	if r, ok := o.doc.(dom.Releaser); ok {
		r.Release(ctx)
	}
	elapsed := o.clock.Since(start)
	ok := err == nil

	o.telemetry.ObserveCycle(page.String(), ok, elapsed)
	if ok {
		o.telemetry.ObserveStats(snap)
		if o.recorder != nil {
			o.recorder.Record(history.Batch{SessionID: sessionID, Page: page.String(), At: start, Snapshot: snap})
		}
	} else {
		var re *reconcile.ResolutionError
		if errors.As(err, &re) {
			o.logger.Debug("poller: cycle skipped", "page", page, "error", err)
		} else {
			o.logger.Warn("poller: cycle failed", "page", page, "error", err)
		}
	}

	o.mu.Lock()
	o.status.LastCycle = start
	o.status.LastOK = ok
	o.status.Cycles++
	if ok {
		o.status.LastSnapshot = snap
	} else {
		o.status.Failures++
	}
	o.mu.Unlock()
	return ok
}

func (o *Orchestrator) runCycle(ctx context.Context, page adapter.Identity) (stats.Snapshot, error) {
	a, ok := o.registry.Resolve(page)
	if !ok {
		return nil, fmt.Errorf("poller: no adapter for %s", page)
	}
	root, err := o.rec.ResolveRoot(ctx, o.doc, a)
	if err != nil {
		return nil, err
	}
	snap, err := o.source.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("poller: fetch stats: %w", err)
	}

	for _, r := range rows {
		if r.uptime && !a.ShowUptime {
			continue
		}
		v, present := snap[r.key]
		if !present {
			continue
		}
		var content string
		if v.Shape == stats.Dual {
			content, err = a.RenderDual(v.Pair, root.Marker)
		} else {
			content, err = a.RenderSingle(v.Text, root.Marker)
		}
		if err != nil {
			return nil, err
		}
		if err := o.rec.UpsertRow(ctx, o.doc, r.id, root, a, r.label, content); err != nil {
			return nil, err
		}
	}

	if err := o.rec.EnsureControlRow(ctx, o.doc, root, a, o.onClick); err != nil {
		return nil, err
	}
	if err := o.rec.EnsureStyle(ctx, o.doc, reconcile.StyleID, reconcile.ButtonStyle); err != nil {
		// Cosmetic only.
		o.logger.Debug("poller: stylesheet not injected", "error", err)
	}
	return snap, nil
}

// onClick starts a reset on its own goroutine so the pause never stalls
// polling.
func (o *Orchestrator) onClick(ctx context.Context, el dom.Element) {
	if o.action == nil {
		o.logger.Warn("poller: reset clicked but no action configured")
		return
	}
	o.resets.Add(1)
	go func() {
		defer o.resets.Done()
		o.action.Run(ctx, control.ElementButton(el))
	}()
}
