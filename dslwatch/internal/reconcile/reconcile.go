// Package reconcile writes dslwatch rows into the host page.
//
// Every write is an upsert keyed by element id, so running a cycle twice
// leaves the page as running it once. Nothing is cached between cycles: the
// root, the marker and every row are looked up again each time.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"

	"github.com/hazyhaar/dslwatch/dom"
	"github.com/hazyhaar/dslwatch/dslwatch/adapter"
)

// Row identities produced on the page.
const (
	RowUptime    = "tm-uptime"
	RowCRCErrors = "tm-crc-errors"
	RowFECErrors = "tm-fec-errors"
	RowControl   = "tm-reset-dsl-row"

	StyleID = "tm-dslwatch-style"

	markerPrefix = "_ngcontent"
)

// Owned lists the ids of every node the reconciler inserts.
var Owned = []string{RowUptime, RowCRCErrors, RowFECErrors, RowControl, StyleID}

// ButtonStyle is injected once per page for the reset button.
const ButtonStyle = `.tm-custom-button{background-color:transparent;border:1px solid #555;color:#ccc;padding:6px 12px;border-radius:4px;cursor:pointer;font-size:14px;font-family:inherit;transition:all .2s ease}.tm-custom-button:hover{background-color:#444;border-color:#777;color:#fff}.tm-custom-button:disabled{opacity:.5;cursor:not-allowed;background-color:#222}`

// Stage names the step of root resolution that failed.
type Stage string

const (
	StageContainer Stage = "container"
	StageRoot      Stage = "root"
	StageMarker    Stage = "marker"
)

// ResolutionError is returned when the reconciliation root cannot be found.
// It is expected while the host framework is still rendering.
type ResolutionError struct {
	Page     adapter.Identity
	Stage    Stage
	Selector string
	Err      error
}

func (e *ResolutionError) Error() string {
	msg := fmt.Sprintf("reconcile: %s: no %s (selector %q)", e.Page, e.Stage, e.Selector)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// Root is the element rows are appended to, with the scoping marker copied
// from it. Valid for one cycle only.
type Root struct {
	Element dom.Element
	Marker  string
}

// Reconciler performs the DOM writes.
type Reconciler struct {
	logger *slog.Logger
}

// New creates a Reconciler. A nil logger uses slog.Default().
func New(logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{logger: logger}
}

// ResolveRoot finds the adapter's container, applies its root rule and reads
// the first _ngcontent* attribute of the root.
func (r *Reconciler) ResolveRoot(ctx context.Context, doc dom.Document, a *adapter.Adapter) (Root, error) {
	fail := func(stage Stage, err error) (Root, error) {
		return Root{}, &ResolutionError{Page: a.Identity, Stage: stage, Selector: a.ContainerSelector, Err: err}
	}

	container, err := doc.QuerySelector(ctx, a.ContainerSelector)
	if err != nil {
		return fail(StageContainer, err)
	}

	root := container
	if a.Root == adapter.RootParent {
		if root, err = container.ParentElement(ctx); err != nil {
			return fail(StageRoot, err)
		}
	}

	names, err := root.AttributeNames(ctx)
	if err != nil {
		return fail(StageMarker, err)
	}
	for _, n := range names {
		if strings.HasPrefix(n, markerPrefix) && adapter.ValidMarker(n) {
			return Root{Element: root, Marker: n}, nil
		}
	}
	return fail(StageMarker, nil)
}

// UpsertRow creates the row with the given id under root if it does not
// exist, then always stamps the marker and rewrites its content. content is
// markup already rendered by the adapter.
func (r *Reconciler) UpsertRow(ctx context.Context, doc dom.Document, id string, root Root, a *adapter.Adapter, label, content string) error {
	row, err := doc.GetElementByID(ctx, id)
	switch {
	case errors.Is(err, dom.ErrNotFound):
		if row, err = r.createRow(ctx, doc, id, a); err != nil {
			return err
		}
		if err := root.Element.AppendChild(ctx, row); err != nil {
			return fmt.Errorf("reconcile: append %s: %w", id, err)
		}
		r.logger.Debug("reconcile: row created", "row", id, "page", a.Identity)
	case err != nil:
		return fmt.Errorf("reconcile: lookup %s: %w", id, err)
	}

	if err := row.SetAttribute(ctx, root.Marker, ""); err != nil {
		return fmt.Errorf("reconcile: mark %s: %w", id, err)
	}
	if err := row.SetInnerHTML(ctx, rowMarkup(a, root.Marker, label, content, false)); err != nil {
		return fmt.Errorf("reconcile: write %s: %w", id, err)
	}
	return nil
}

// EnsureControlRow creates the Actions row holding the reset button, once.
// onClick is attached to the button only when the row is created; an
// existing row is left untouched.
func (r *Reconciler) EnsureControlRow(ctx context.Context, doc dom.Document, root Root, a *adapter.Adapter, onClick dom.ClickFunc) error {
	_, err := doc.GetElementByID(ctx, RowControl)
	if err == nil {
		return nil
	}
	if !errors.Is(err, dom.ErrNotFound) {
		return fmt.Errorf("reconcile: lookup %s: %w", RowControl, err)
	}

	row, err := r.createRow(ctx, doc, RowControl, a)
	if err != nil {
		return err
	}
	if err := row.SetAttribute(ctx, root.Marker, ""); err != nil {
		return fmt.Errorf("reconcile: mark %s: %w", RowControl, err)
	}
	if err := row.SetInnerHTML(ctx, rowMarkup(a, root.Marker, "Actions", a.ButtonHTML, true)); err != nil {
		return fmt.Errorf("reconcile: write %s: %w", RowControl, err)
	}
	if err := root.Element.AppendChild(ctx, row); err != nil {
		return fmt.Errorf("reconcile: append %s: %w", RowControl, err)
	}

	btn, err := doc.GetElementByID(ctx, adapter.ButtonID)
	if err != nil {
		return fmt.Errorf("reconcile: find %s: %w", adapter.ButtonID, err)
	}
	if err := btn.OnClick(ctx, onClick); err != nil {
		return fmt.Errorf("reconcile: bind %s: %w", adapter.ButtonID, err)
	}
	r.logger.Debug("reconcile: control row created", "page", a.Identity)
	return nil
}

// Strip removes every node in Owned from doc. Called when a tab that may
// still hold rows from an earlier attachment is adopted again: their click
// listeners point at handlers that no longer exist, and EnsureControlRow
// leaves an existing row alone. The next cycle rebuilds everything.
func (r *Reconciler) Strip(ctx context.Context, doc dom.Document) error {
	var errs []error
	for _, id := range Owned {
		el, err := doc.GetElementByID(ctx, id)
		if errors.Is(err, dom.ErrNotFound) {
			continue
		}
		if err == nil {
			err = el.Remove(ctx)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("reconcile: strip %s: %w", id, err))
			continue
		}
		r.logger.Debug("reconcile: stripped leftover node", "id", id)
	}
	return errors.Join(errs...)
}

// EnsureStyle appends a <style id=id> with css to <head> unless present.
func (r *Reconciler) EnsureStyle(ctx context.Context, doc dom.Document, id, css string) error {
	if _, err := doc.GetElementByID(ctx, id); err == nil {
		return nil
	} else if !errors.Is(err, dom.ErrNotFound) {
		return fmt.Errorf("reconcile: lookup %s: %w", id, err)
	}
	head, err := doc.Head(ctx)
	if err != nil {
		return fmt.Errorf("reconcile: head: %w", err)
	}
	style, err := doc.CreateElement(ctx, "style")
	if err != nil {
		return fmt.Errorf("reconcile: create style: %w", err)
	}
	if err := style.SetAttribute(ctx, "id", id); err != nil {
		return err
	}
	if err := style.SetTextContent(ctx, css); err != nil {
		return err
	}
	return head.AppendChild(ctx, style)
}

func (r *Reconciler) createRow(ctx context.Context, doc dom.Document, id string, a *adapter.Adapter) (dom.Element, error) {
	row, err := doc.CreateElement(ctx, a.Row.Tag())
	if err != nil {
		return nil, fmt.Errorf("reconcile: create %s: %w", id, err)
	}
	if err := row.SetAttribute(ctx, "id", id); err != nil {
		return nil, fmt.Errorf("reconcile: set id %s: %w", id, err)
	}
	if a.RowClass != "" {
		if err := row.SetAttribute(ctx, "class", a.RowClass); err != nil {
			return nil, fmt.Errorf("reconcile: set class %s: %w", id, err)
		}
	}
	return row, nil
}

// rowMarkup builds the inner markup of a row. For inline rows the content is
// used as-is when it is a block (<div...>) unless wrap forces a value span.
func rowMarkup(a *adapter.Adapter, marker, label, content string, wrap bool) string {
	labelClass := html.EscapeString(a.LabelClass)
	valueClass := html.EscapeString(a.ValueClass)
	label = html.EscapeString(label)

	if a.Row == adapter.BlockRow {
		return fmt.Sprintf(`<td class="%s" %s>%s</td><td class="%s" %s>%s</td>`,
			labelClass, marker, label, valueClass, marker, content)
	}
	value := content
	if wrap || !strings.HasPrefix(content, "<div") {
		value = fmt.Sprintf(`<span class="%s" %s>%s</span>`, valueClass, marker, content)
	}
	return fmt.Sprintf(`<span class="%s" %s>%s</span>%s`, labelClass, marker, label, value)
}
