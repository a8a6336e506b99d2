// Package control runs the interface bounce behind the Reset DSL button.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/hazyhaar/dslwatch/dom"
)

// Labels shown on the button while the sequence runs.
const (
	LabelDown  = "Sending DOWN..."
	LabelUp    = "Sending UP..."
	LabelReady = "Reset DSL"
)

// Commander sends one CLI command. *rci.Client satisfies it.
type Commander interface {
	Send(ctx context.Context, command string) (json.RawMessage, error)
}

// Button is the on-page control being driven.
type Button interface {
	SetLabel(ctx context.Context, text string) error
	SetDisabled(ctx context.Context, disabled bool) error
}

// Config configures an Action.
type Config struct {
	Interface string        // default "Dsl0"
	Delay     time.Duration // default 1s
	Clock     clock.Clock
	Logger    *slog.Logger
	// OnDone is called after every run with the joined command error.
	OnDone func(err error)
}

// Action is the reset sequence. Safe for concurrent use; re-entrancy is
// prevented by the disabled button, not by the Action.
type Action struct {
	cmd    Commander
	iface  string
	delay  time.Duration
	clock  clock.Clock
	logger *slog.Logger
	onDone func(error)
}

// New creates an Action sending commands through cmd.
func New(cmd Commander, cfg Config) *Action {
	if cfg.Interface == "" {
		cfg.Interface = "Dsl0"
	}
	if cfg.Delay <= 0 {
		cfg.Delay = time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Action{
		cmd:    cmd,
		iface:  cfg.Interface,
		delay:  cfg.Delay,
		clock:  cfg.Clock,
		logger: cfg.Logger,
		onDone: cfg.OnDone,
	}
}

// WaitLabel is the label shown during the pause.
func (a *Action) WaitLabel() string {
	return fmt.Sprintf("Waiting %s...", a.delay)
}

// Run bounces the interface: down, pause, up. A failed command is logged
// and the sequence continues, so the button always comes back enabled. The
// returned error joins every command failure.
func (a *Action) Run(ctx context.Context, btn Button) error {
	var errs []error
	note := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	started := a.clock.Now()
	a.logger.Info("control: reset started", "interface", a.iface)

	note(btn.SetDisabled(ctx, true))
	note(btn.SetLabel(ctx, LabelDown))
	note(a.send(ctx, "down"))

	timer := a.clock.Timer(a.delay)
	note(btn.SetLabel(ctx, a.WaitLabel()))
	select {
	case <-timer.C:
	case <-ctx.Done():
		timer.Stop()
		note(ctx.Err())
	}

	note(btn.SetLabel(ctx, LabelUp))
	note(a.send(ctx, "up"))

	// The button must come back even if ctx was cancelled mid-sequence.
	restore := context.WithoutCancel(ctx)
	note(btn.SetLabel(restore, LabelReady))
	note(btn.SetDisabled(restore, false))

	err := errors.Join(errs...)
	if err != nil {
		a.logger.Warn("control: reset finished with errors", "interface", a.iface, "error", err)
	} else {
		a.logger.Info("control: reset finished", "interface", a.iface, "elapsed", a.clock.Since(started))
	}
	if a.onDone != nil {
		a.onDone(err)
	}
	return err
}

func (a *Action) send(ctx context.Context, state string) error {
	command := fmt.Sprintf("interface %s %s", a.iface, state)
	if _, err := a.cmd.Send(ctx, command); err != nil {
		a.logger.Error("control: command failed", "command", command, "error", err)
		return fmt.Errorf("control: %s: %w", command, err)
	}
	return nil
}

// ElementButton adapts a DOM button whose label lives in an inner span.
func ElementButton(el dom.Element) Button {
	return elementButton{el: el}
}

type elementButton struct {
	el dom.Element
}

func (b elementButton) SetLabel(ctx context.Context, text string) error {
	span, err := b.el.QuerySelector(ctx, "span")
	if errors.Is(err, dom.ErrNotFound) {
		return b.el.SetTextContent(ctx, text)
	}
	if err != nil {
		return err
	}
	return span.SetTextContent(ctx, text)
}

func (b elementButton) SetDisabled(ctx context.Context, disabled bool) error {
	return b.el.SetDisabled(ctx, disabled)
}
