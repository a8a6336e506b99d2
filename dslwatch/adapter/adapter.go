// CLAUDE:SUMMARY Page adapters: per-page container selector, root rule, row kind, classes and value templates.
// Package adapter holds the page-specific data that tells the reconciler
// where and how to draw rows. Adapters are data, not code: the only
// behaviour is template rendering, and the root rule and row kind are closed
// variants.
package adapter

import (
	"bytes"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"text/template"

	"github.com/microcosm-cc/bluemonday"

	"github.com/hazyhaar/dslwatch/dslwatch/stats"
)

// Identity names a recognised page.
type Identity int

const (
	None Identity = iota
	DiagnosticsDSL
	Dashboard
)

func (id Identity) String() string {
	switch id {
	case None:
		return "none"
	case DiagnosticsDSL:
		return "diagnostics_dsl"
	case Dashboard:
		return "dashboard"
	}
	return fmt.Sprintf("identity(%d)", int(id))
}

func (id Identity) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *Identity) UnmarshalText(b []byte) error {
	switch string(b) {
	case "none", "":
		*id = None
	case "diagnostics_dsl":
		*id = DiagnosticsDSL
	case "dashboard":
		*id = Dashboard
	default:
		return fmt.Errorf("adapter: unknown page identity %q", b)
	}
	return nil
}

// RootRule derives the reconciliation root from the matched container.
type RootRule int

const (
	RootSelf   RootRule = iota // the container itself
	RootParent                 // the container's parent element
)

func (r RootRule) String() string {
	if r == RootParent {
		return "parent"
	}
	return "self"
}

// RowKind is the element structure of an injected row.
type RowKind int

const (
	BlockRow   RowKind = iota // <tr> with a label cell and a value cell
	InlinePair                // <div> with a label span followed by the value
)

func (k RowKind) String() string {
	if k == InlinePair {
		return "inline_pair"
	}
	return "block_row"
}

// Tag returns the element name of a row.
func (k RowKind) Tag() string {
	if k == InlinePair {
		return "div"
	}
	return "tr"
}

// Button ids and markup shared by every page.
const (
	ButtonID    = "tm-reset-dsl-btn"
	ButtonLabel = "Reset DSL"
	ButtonHTML  = `<button id="tm-reset-dsl-btn" class="tm-custom-button"><span>Reset DSL</span></button>`
)

// Adapter is the configuration for one page. Read-only after load.
type Adapter struct {
	Identity          Identity
	LocationSuffix    string
	ContainerSelector string
	Root              RootRule
	Row               RowKind
	RowClass          string
	LabelClass        string
	ValueClass        string
	ShowUptime        bool
	ButtonHTML        string

	single *template.Template
	dual   *template.Template
}

type templateData struct {
	Value  string
	Down   string
	Up     string
	Marker string
}

var (
	markerRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.:-]*$`)
	textPol  = bluemonday.StrictPolicy()
)

// ValidMarker reports whether m can be written as a bare attribute name.
func ValidMarker(m string) bool { return markerRe.MatchString(m) }

// RenderSingle renders a textual value. Device text is stripped of markup.
func (a *Adapter) RenderSingle(value, marker string) (string, error) {
	return a.render(a.single, templateData{Value: textPol.Sanitize(value), Marker: marker})
}

// RenderDual renders a downstream/upstream pair.
func (a *Adapter) RenderDual(p stats.Pair, marker string) (string, error) {
	return a.render(a.dual, templateData{
		Down:   FormatNumber(p.Downstream),
		Up:     FormatNumber(p.Upstream),
		Marker: marker,
	})
}

func (a *Adapter) render(t *template.Template, data templateData) (string, error) {
	if !ValidMarker(data.Marker) {
		return "", fmt.Errorf("adapter: %s: invalid marker attribute %q", a.Identity, data.Marker)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("adapter: %s: render %s: %w", a.Identity, t.Name(), err)
	}
	return buf.String(), nil
}

// FormatNumber prints v the way a browser prints a number: no trailing
// zeros, "NaN" for NaN.
func FormatNumber(v float64) string {
	switch {
	case math.IsNaN(v):
		return "NaN"
	case math.IsInf(v, 1):
		return "Infinity"
	case math.IsInf(v, -1):
		return "-Infinity"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
