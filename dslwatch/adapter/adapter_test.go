package adapter

import (
	"math"
	"strings"
	"testing"

	"github.com/hazyhaar/dslwatch/dslwatch/stats"
)

const marker = "_ngcontent-abc-c12"

func TestDefault_Adapters(t *testing.T) {
	r := Default()

	dsl, ok := r.Resolve(DiagnosticsDSL)
	if !ok {
		t.Fatal("diagnostics_dsl not registered")
	}
	if dsl.Root != RootParent || dsl.Row != InlinePair || !dsl.ShowUptime {
		t.Errorf("dsl adapter: %+v", dsl)
	}
	if dsl.ContainerSelector != `ndw-block-header[heading="diagnostics.dsl.header"]` {
		t.Errorf("dsl container: %q", dsl.ContainerSelector)
	}

	dash, ok := r.Resolve(Dashboard)
	if !ok {
		t.Fatal("dashboard not registered")
	}
	if dash.Root != RootSelf || dash.Row != BlockRow || dash.ShowUptime {
		t.Errorf("dashboard adapter: %+v", dash)
	}
	if dash.Row.Tag() != "tr" || dsl.Row.Tag() != "div" {
		t.Errorf("row tags: %s %s", dash.Row.Tag(), dsl.Row.Tag())
	}
	if dash.ButtonHTML != ButtonHTML {
		t.Errorf("button markup: %q", dash.ButtonHTML)
	}

	if _, ok := r.Resolve(None); ok {
		t.Error("None must not resolve")
	}
}

func TestClassify(t *testing.T) {
	r := Default()
	cases := []struct {
		href string
		want Identity
	}{
		{"http://192.168.1.1/dashboard", Dashboard},
		{"http://192.168.1.1/dashboard/", Dashboard},
		{"http://192.168.1.1/diagnostics/dsl", DiagnosticsDSL},
		{"http://192.168.1.1/diagnostics/dsl/", DiagnosticsDSL},
		{"http://192.168.1.1/diagnostics", None},
		{"http://192.168.1.1/dashboard/wifi", None},
		{"", None},
	}
	for _, tc := range cases {
		if got := r.Classify(tc.href); got != tc.want {
			t.Errorf("Classify(%q) = %s, want %s", tc.href, got, tc.want)
		}
	}
}

func TestRenderDual_Dashboard(t *testing.T) {
	dash, _ := Default().Resolve(Dashboard)
	got, err := dash.RenderDual(stats.Pair{Downstream: 12, Upstream: 7}, marker)
	if err != nil {
		t.Fatal(err)
	}
	want := `<span _ngcontent-abc-c12>12</span>&nbsp;/&nbsp;<span _ngcontent-abc-c12>7</span>`
	if got != want {
		t.Errorf("got  %s\nwant %s", got, want)
	}
}

func TestRenderDual_DSLKeepsDivWrapper(t *testing.T) {
	dsl, _ := Default().Resolve(DiagnosticsDSL)
	got, err := dsl.RenderDual(stats.Pair{Downstream: 1.5, Upstream: math.NaN()}, marker)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(got, `<div class="dsl-info__container" _ngcontent-abc-c12>`) {
		t.Errorf("dual markup must start with the container div: %s", got)
	}
	if !strings.Contains(got, `>1.5</span>`) || !strings.Contains(got, `>NaN</span>`) {
		t.Errorf("values missing: %s", got)
	}
	if strings.Contains(got, "{{") {
		t.Errorf("unrendered template action: %s", got)
	}
}

func TestRenderSingle(t *testing.T) {
	r := Default()
	dsl, _ := r.Resolve(DiagnosticsDSL)
	got, _ := dsl.RenderSingle("3d 04:12:09", marker)
	if got != "3d 04:12:09" {
		t.Errorf("dsl single: got %q", got)
	}

	dash, _ := r.Resolve(Dashboard)
	got, _ = dash.RenderSingle("3d 04:12:09", marker)
	if got != `<span _ngcontent-abc-c12>3d 04:12:09</span>` {
		t.Errorf("dashboard single: got %q", got)
	}
}

func TestRenderSingle_StripsMarkup(t *testing.T) {
	dash, _ := Default().Resolve(Dashboard)
	got, err := dash.RenderSingle(`<b onclick="x()">3d</b> 04:00:00`, marker)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(got, "<b") || strings.Contains(got, "onclick") {
		t.Errorf("device markup leaked: %s", got)
	}
	if !strings.Contains(got, "3d 04:00:00") {
		t.Errorf("text lost: %s", got)
	}
}

func TestRender_RejectsBadMarker(t *testing.T) {
	dash, _ := Default().Resolve(Dashboard)
	if _, err := dash.RenderSingle("x", `a" onload="x`); err == nil {
		t.Error("expected error for invalid marker")
	}
	if _, err := dash.RenderDual(stats.Pair{}, ""); err == nil {
		t.Error("expected error for empty marker")
	}
}

func TestFormatNumber(t *testing.T) {
	cases := map[float64]string{
		12.0:  "12",
		0:     "0",
		1.25:  "1.25",
		12345: "12345",
	}
	for in, want := range cases {
		if got := FormatNumber(in); got != want {
			t.Errorf("FormatNumber(%v) = %q, want %q", in, got, want)
		}
	}
	if got := FormatNumber(math.NaN()); got != "NaN" {
		t.Errorf("NaN: got %q", got)
	}
	if got := FormatNumber(math.Inf(1)); got != "Infinity" {
		t.Errorf("+Inf: got %q", got)
	}
}

func TestParse_Errors(t *testing.T) {
	cases := map[string]string{
		"empty":       `adapters: []`,
		"unknown id":  "adapters:\n  - identity: wifi\n    location_suffix: /wifi\n    container: x\n    dual: d",
		"bad root":    "adapters:\n  - identity: dashboard\n    location_suffix: /dashboard\n    container: x\n    root: grandparent\n    dual: d",
		"bad row":     "adapters:\n  - identity: dashboard\n    location_suffix: /dashboard\n    container: x\n    row: grid\n    dual: d",
		"no dual":     "adapters:\n  - identity: dashboard\n    location_suffix: /dashboard\n    container: x",
		"bad tmpl":    "adapters:\n  - identity: dashboard\n    location_suffix: /dashboard\n    container: x\n    dual: '{{.Down'",
		"no suffix":   "adapters:\n  - identity: dashboard\n    container: x\n    dual: d",
		"no selector": "adapters:\n  - identity: dashboard\n    location_suffix: /dashboard\n    dual: d",
		"duplicate": "adapters:\n" +
			"  - {identity: dashboard, location_suffix: /a, container: x, dual: d}\n" +
			"  - {identity: dashboard, location_suffix: /b, container: y, dual: d}",
	}
	for name, doc := range cases {
		if _, err := Parse([]byte(doc)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestIdentity_Text(t *testing.T) {
	for _, id := range []Identity{None, DiagnosticsDSL, Dashboard} {
		b, _ := id.MarshalText()
		var back Identity
		if err := back.UnmarshalText(b); err != nil || back != id {
			t.Errorf("%s: round trip gave %s, %v", id, back, err)
		}
	}
}
