package reconcile

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hazyhaar/dslwatch/dom"
	"github.com/hazyhaar/dslwatch/dom/htmldom"
	"github.com/hazyhaar/dslwatch/dslwatch/adapter"
	"github.com/hazyhaar/dslwatch/dslwatch/stats"
)

const dashboardPage = `<html><head></head><body>
<div class="wan-connection-data__additional-info">
<table _ngcontent-ng-c42="" class="wan-info"><tbody>
<tr class="wan-info-property"><td>Mode</td><td>VDSL2</td></tr>
</tbody></table>
</div></body></html>`

const dslPage = `<html><head></head><body>
<section class="dsl-info" _ngcontent-ng-c7="" data-x="1">
<ndw-block-header heading="diagnostics.dsl.header"></ndw-block-header>
</section></body></html>`

func load(t *testing.T, loc, markup string) *htmldom.Document {
	t.Helper()
	d, err := htmldom.NewDocument(loc, markup)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func resolve(t *testing.T, id adapter.Identity) *adapter.Adapter {
	t.Helper()
	a, ok := adapter.Default().Resolve(id)
	if !ok {
		t.Fatalf("adapter %s missing", id)
	}
	return a
}

func TestResolveRoot_Dashboard(t *testing.T) {
	doc := load(t, "http://192.168.1.1/dashboard", dashboardPage)
	root, err := New(nil).ResolveRoot(context.Background(), doc, resolve(t, adapter.Dashboard))
	if err != nil {
		t.Fatal(err)
	}
	if root.Marker != "_ngcontent-ng-c42" {
		t.Errorf("marker: got %q", root.Marker)
	}
	if root.Element.(*htmldom.Element).Tag() != "table" {
		t.Errorf("root: got <%s>", root.Element.(*htmldom.Element).Tag())
	}
}

func TestResolveRoot_DSLUsesParent(t *testing.T) {
	doc := load(t, "http://192.168.1.1/diagnostics/dsl", dslPage)
	root, err := New(nil).ResolveRoot(context.Background(), doc, resolve(t, adapter.DiagnosticsDSL))
	if err != nil {
		t.Fatal(err)
	}
	if root.Element.(*htmldom.Element).Tag() != "section" {
		t.Errorf("root: got <%s>, want <section>", root.Element.(*htmldom.Element).Tag())
	}
	if root.Marker != "_ngcontent-ng-c7" {
		t.Errorf("marker: got %q", root.Marker)
	}
}

func TestResolveRoot_Failures(t *testing.T) {
	r := New(nil)
	ctx := context.Background()

	doc := load(t, "http://192.168.1.1/dashboard", "<html><body><p>loading</p></body></html>")
	_, err := r.ResolveRoot(ctx, doc, resolve(t, adapter.Dashboard))
	var re *ResolutionError
	if !errors.As(err, &re) || re.Stage != StageContainer {
		t.Errorf("missing container: got %v", err)
	}
	if !errors.Is(err, dom.ErrNotFound) {
		t.Errorf("container error should wrap ErrNotFound: %v", err)
	}

	doc = load(t, "http://192.168.1.1/dashboard",
		`<html><body><div class="wan-connection-data__additional-info"><table></table></div></body></html>`)
	_, err = r.ResolveRoot(ctx, doc, resolve(t, adapter.Dashboard))
	if !errors.As(err, &re) || re.Stage != StageMarker {
		t.Errorf("missing marker: got %v", err)
	}
}

func TestUpsertRow_Idempotent(t *testing.T) {
	doc := load(t, "http://192.168.1.1/dashboard", dashboardPage)
	a := resolve(t, adapter.Dashboard)
	r := New(nil)
	ctx := context.Background()

	write := func(p stats.Pair) {
		root, err := r.ResolveRoot(ctx, doc, a)
		if err != nil {
			t.Fatal(err)
		}
		content, err := a.RenderDual(p, root.Marker)
		if err != nil {
			t.Fatal(err)
		}
		if err := r.UpsertRow(ctx, doc, RowCRCErrors, root, a, "CRC errors (fast)", content); err != nil {
			t.Fatal(err)
		}
	}

	write(stats.Pair{Downstream: 3, Upstream: 0})
	first := doc.HTML()
	write(stats.Pair{Downstream: 3, Upstream: 0})
	if doc.HTML() != first {
		t.Errorf("second identical upsert changed the page:\n%s\n---\n%s", first, doc.HTML())
	}
	if n := doc.Count("#" + RowCRCErrors); n != 1 {
		t.Errorf("rows: got %d, want 1", n)
	}

	write(stats.Pair{Downstream: 5, Upstream: 1})
	if n := doc.Count("#" + RowCRCErrors); n != 1 {
		t.Errorf("rows after update: got %d, want 1", n)
	}
	if got := doc.Text(RowCRCErrors); got != "CRC errors (fast)5\u00a0/\u00a01" {
		t.Errorf("text after update: got %q", got)
	}
}

func TestUpsertRow_BlockRowMarkup(t *testing.T) {
	doc := load(t, "http://192.168.1.1/dashboard", dashboardPage)
	a := resolve(t, adapter.Dashboard)
	r := New(nil)
	ctx := context.Background()
	root, _ := r.ResolveRoot(ctx, doc, a)

	if err := r.UpsertRow(ctx, doc, RowFECErrors, root, a, "FEC errors (fast)", "x"); err != nil {
		t.Fatal(err)
	}
	if v, ok := doc.Attr(RowFECErrors, "_ngcontent-ng-c42"); !ok || v != "" {
		t.Errorf("row marker: %q %v", v, ok)
	}
	if v, _ := doc.Attr(RowFECErrors, "class"); v != "wan-info-property" {
		t.Errorf("row class: %q", v)
	}
	if n := doc.Count("table #" + RowFECErrors); n != 1 {
		t.Errorf("row not under table:\n%s", doc.HTML())
	}
	if n := doc.Count("#" + RowFECErrors + " td.wan-info-property__label"); n != 1 {
		t.Errorf("label cell missing:\n%s", doc.OuterHTML(RowFECErrors))
	}
	if n := doc.Count("#" + RowFECErrors + " td.wan-info-value"); n != 1 {
		t.Errorf("value cell missing:\n%s", doc.OuterHTML(RowFECErrors))
	}
	if n := doc.Count("#" + RowFECErrors + " td[_ngcontent-ng-c42]"); n != 2 {
		t.Errorf("cells must carry the marker:\n%s", doc.OuterHTML(RowFECErrors))
	}
}

func TestUpsertRow_InlinePairWrapping(t *testing.T) {
	doc := load(t, "http://192.168.1.1/diagnostics/dsl", dslPage)
	a := resolve(t, adapter.DiagnosticsDSL)
	r := New(nil)
	ctx := context.Background()
	root, err := r.ResolveRoot(ctx, doc, a)
	if err != nil {
		t.Fatal(err)
	}

	up, _ := a.RenderSingle("3d 04:12:09", root.Marker)
	r.UpsertRow(ctx, doc, RowUptime, root, a, "Uptime", up)
	if n := doc.Count("#" + RowUptime + " span.dsl-info__value"); n != 1 {
		t.Errorf("plain value must be wrapped in a value span:\n%s", doc.OuterHTML(RowUptime))
	}

	dual, _ := a.RenderDual(stats.Pair{Downstream: 12, Upstream: 7}, root.Marker)
	r.UpsertRow(ctx, doc, RowFECErrors, root, a, "FEC errors (fast)", dual)
	out := doc.OuterHTML(RowFECErrors)
	if n := doc.Count("#" + RowFECErrors + " div.dsl-info__container"); n != 1 {
		t.Errorf("block value must be kept as-is:\n%s", out)
	}
	if strings.Contains(out, `<span class="dsl-info__value" _ngcontent-ng-c7=""><div`) {
		t.Errorf("block value was wrapped:\n%s", out)
	}
	if doc.Count("section #"+RowUptime) != 1 || doc.Count("section #"+RowFECErrors) != 1 {
		t.Errorf("rows not under the parent root:\n%s", doc.HTML())
	}
}

func TestEnsureControlRow_Once(t *testing.T) {
	doc := load(t, "http://192.168.1.1/dashboard", dashboardPage)
	a := resolve(t, adapter.Dashboard)
	r := New(nil)
	ctx := context.Background()

	clicks := 0
	onClick := func(context.Context, dom.Element) { clicks++ }

	for i := 0; i < 3; i++ {
		root, _ := r.ResolveRoot(ctx, doc, a)
		if err := r.EnsureControlRow(ctx, doc, root, a, onClick); err != nil {
			t.Fatal(err)
		}
	}
	if n := doc.Count("#" + RowControl); n != 1 {
		t.Errorf("control rows: got %d, want 1", n)
	}
	if n := doc.Handlers(); n != 1 {
		t.Errorf("handlers: got %d, want 1", n)
	}
	if n := doc.Count("#" + RowControl + " td.wan-info-value #" + adapter.ButtonID); n != 1 {
		t.Errorf("button not in value cell:\n%s", doc.OuterHTML(RowControl))
	}
	if !strings.Contains(doc.Text(RowControl), "Actions") {
		t.Errorf("label missing: %q", doc.Text(RowControl))
	}

	doc.Click(ctx, adapter.ButtonID)
	if clicks != 1 {
		t.Errorf("clicks: got %d, want 1", clicks)
	}
}

func TestStrip_RebindsControlRow(t *testing.T) {
	doc := load(t, "http://192.168.1.1/dashboard", dashboardPage)
	a := resolve(t, adapter.Dashboard)
	r := New(nil)
	ctx := context.Background()

	root, _ := r.ResolveRoot(ctx, doc, a)
	if err := r.UpsertRow(ctx, doc, RowCRCErrors, root, a, "CRC errors (fast)", "1 / 2"); err != nil {
		t.Fatal(err)
	}
	if err := r.EnsureControlRow(ctx, doc, root, a, func(context.Context, dom.Element) {}); err != nil {
		t.Fatal(err)
	}
	if err := r.EnsureStyle(ctx, doc, StyleID, ButtonStyle); err != nil {
		t.Fatal(err)
	}

	// A reattached tab keeps the rows but the old handler is gone.
	if err := r.Strip(ctx, doc); err != nil {
		t.Fatal(err)
	}
	for _, id := range Owned {
		if n := doc.Count("#" + id); n != 0 {
			t.Errorf("%s left after strip", id)
		}
	}
	if n := doc.Handlers(); n != 0 {
		t.Errorf("handlers after strip: got %d, want 0", n)
	}
	if doc.Count("tr.wan-info-property") != 1 {
		t.Error("host rows must survive strip")
	}

	clicks := 0
	root, _ = r.ResolveRoot(ctx, doc, a)
	if err := r.EnsureControlRow(ctx, doc, root, a, func(context.Context, dom.Element) { clicks++ }); err != nil {
		t.Fatal(err)
	}
	if !doc.Click(ctx, adapter.ButtonID) || clicks != 1 {
		t.Errorf("rebuilt button not bound: clicks=%d", clicks)
	}

	if err := r.Strip(ctx, doc); err != nil {
		t.Errorf("strip on a page with only the control row: %v", err)
	}
}

func TestEnsureControlRow_InlineAlwaysWrapsButton(t *testing.T) {
	doc := load(t, "http://192.168.1.1/diagnostics/dsl", dslPage)
	a := resolve(t, adapter.DiagnosticsDSL)
	r := New(nil)
	ctx := context.Background()
	root, _ := r.ResolveRoot(ctx, doc, a)
	if err := r.EnsureControlRow(ctx, doc, root, a, func(context.Context, dom.Element) {}); err != nil {
		t.Fatal(err)
	}
	if n := doc.Count("#" + RowControl + " span.dsl-info__value #" + adapter.ButtonID); n != 1 {
		t.Errorf("button not wrapped:\n%s", doc.OuterHTML(RowControl))
	}
}

func TestEnsureStyle_Once(t *testing.T) {
	doc := load(t, "http://192.168.1.1/dashboard", dashboardPage)
	r := New(nil)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := r.EnsureStyle(ctx, doc, StyleID, ButtonStyle); err != nil {
			t.Fatal(err)
		}
	}
	if n := doc.Count("head style#" + StyleID); n != 1 {
		t.Errorf("styles: got %d, want 1", n)
	}
	if doc.Text(StyleID) != ButtonStyle {
		t.Error("style text mismatch")
	}
}
