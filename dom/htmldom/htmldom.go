// CLAUDE:SUMMARY In-memory dom.Document over x/net/html with a CSS selector subset and click dispatch.
// Package htmldom is an in-memory dom.Document over golang.org/x/net/html.
//
// It behaves like a browser for the operations dslwatch performs: markup is
// parsed in the context of its target element, ids are looked up live, and
// a click on a disabled element is dropped. The host framework can be
// simulated by calling Replace between ticks.
package htmldom

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/dslwatch/dom"
)

// Document is a parsed page. Safe for concurrent use.
type Document struct {
	mu       sync.Mutex
	root     *html.Node
	location string
	handlers map[*html.Node]dom.ClickFunc
}

var _ dom.Document = (*Document)(nil)

// NewDocument parses markup as a full page served at location.
func NewDocument(location, markup string) (*Document, error) {
	root, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("htmldom: parse: %w", err)
	}
	return &Document{
		root:     root,
		location: location,
		handlers: make(map[*html.Node]dom.ClickFunc),
	}, nil
}

// SetLocation simulates client-side navigation.
func (d *Document) SetLocation(location string) {
	d.mu.Lock()
	d.location = location
	d.mu.Unlock()
}

// Replace swaps the whole page, as a framework route change does. Click
// handlers on the old page are dropped.
func (d *Document) Replace(location, markup string) error {
	root, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return fmt.Errorf("htmldom: parse: %w", err)
	}
	d.mu.Lock()
	d.root = root
	d.location = location
	d.handlers = make(map[*html.Node]dom.ClickFunc)
	d.mu.Unlock()
	return nil
}

func (d *Document) Location(context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.location, nil
}

func (d *Document) QuerySelector(_ context.Context, sel string) (dom.Element, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := parseSelector(sel).first(d.root)
	if n == nil {
		return nil, fmt.Errorf("htmldom: %q: %w", sel, dom.ErrNotFound)
	}
	return d.wrap(n), nil
}

func (d *Document) GetElementByID(_ context.Context, id string) (dom.Element, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := d.byID(id)
	if n == nil {
		return nil, fmt.Errorf("htmldom: #%s: %w", id, dom.ErrNotFound)
	}
	return d.wrap(n), nil
}

func (d *Document) CreateElement(_ context.Context, tag string) (dom.Element, error) {
	tag = strings.ToLower(tag)
	n := &html.Node{Type: html.ElementNode, Data: tag, DataAtom: atom.Lookup([]byte(tag))}
	return d.wrap(n), nil
}

func (d *Document) Head(_ context.Context) (dom.Element, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := parseSelector("head").first(d.root)
	if n == nil {
		return nil, fmt.Errorf("htmldom: head: %w", dom.ErrNotFound)
	}
	return d.wrap(n), nil
}

// Click dispatches a click on the element with the given id. It returns
// false when there is no such element, no handler, or the element is
// disabled. The handler runs synchronously.
func (d *Document) Click(ctx context.Context, id string) bool {
	d.mu.Lock()
	n := d.byID(id)
	if n == nil {
		d.mu.Unlock()
		return false
	}
	if _, disabled := lookupAttr(n, "disabled"); disabled {
		d.mu.Unlock()
		return false
	}
	fn := d.handlerFor(n)
	el := d.wrap(n)
	d.mu.Unlock()
	if fn == nil {
		return false
	}
	fn(ctx, el)
	return true
}

// handlerFor walks from n up to the root, like event bubbling.
func (d *Document) handlerFor(n *html.Node) dom.ClickFunc {
	for p := n; p != nil; p = p.Parent {
		if fn, ok := d.handlers[p]; ok {
			return fn
		}
	}
	return nil
}

// Count returns how many elements match sel.
func (d *Document) Count(sel string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return parseSelector(sel).count(d.root)
}

// Handlers returns how many click handlers are registered.
func (d *Document) Handlers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.handlers)
}

// Attr returns an attribute of the element with the given id.
func (d *Document) Attr(id, name string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := d.byID(id)
	if n == nil {
		return "", false
	}
	return lookupAttr(n, name)
}

// Text returns the concatenated text content of the element with the given id.
func (d *Document) Text(id string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := d.byID(id)
	if n == nil {
		return ""
	}
	var b strings.Builder
	collectText(n, &b)
	return b.String()
}

// OuterHTML renders the element with the given id.
func (d *Document) OuterHTML(id string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := d.byID(id)
	if n == nil {
		return ""
	}
	return render(n)
}

// HTML renders the whole page.
func (d *Document) HTML() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return render(d.root)
}

func (d *Document) byID(id string) *html.Node {
	return selector{{id: id}}.first(d.root)
}

func (d *Document) wrap(n *html.Node) *Element {
	return &Element{doc: d, n: n}
}

func render(n *html.Node) string {
	var buf bytes.Buffer
	if err := html.Render(&buf, n); err != nil {
		return ""
	}
	return buf.String()
}

func collectText(n *html.Node, b *strings.Builder) {
	if n.Type == html.TextNode {
		b.WriteString(n.Data)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, b)
	}
}
