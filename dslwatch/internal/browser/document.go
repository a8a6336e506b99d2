package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/dslwatch/dom"
)

// ErrNoPage is returned while no console tab is attached.
var ErrNoPage = errors.New("browser: no page attached")

// Document is a dom.Document over the attached console tab. The tab can be
// swapped with SetPage after a reconnect; elements handed out before the
// swap fail on use, like any stale node.
//
// Every element handed out pins a remote object in the page until Release.
type Document struct {
	mu     sync.RWMutex
	page   *rod.Page
	stop   context.CancelFunc
	handed []*rod.Element
	clicks *clickBinding
	logger *slog.Logger
}

var (
	_ dom.Document = (*Document)(nil)
	_ dom.Releaser = (*Document)(nil)
)

// NewDocument returns a Document with no page attached.
func NewDocument(logger *slog.Logger) *Document {
	if logger == nil {
		logger = slog.Default()
	}
	return &Document{
		clicks: newClickBinding(logger),
		logger: logger,
	}
}

// SetPage attaches page, installs the click binding on it and starts its
// event listener. The listener of the previous page is stopped and its
// click handlers are forgotten.
func (d *Document) SetPage(ctx context.Context, page *rod.Page) error {
	lctx, cancel := context.WithCancel(ctx)
	if err := d.clicks.install(lctx, page); err != nil {
		cancel()
		return err
	}

	d.mu.Lock()
	if d.stop != nil {
		d.stop()
	}
	d.page = page
	d.stop = cancel
	d.handed = nil
	d.mu.Unlock()
	d.clicks.reset()
	return nil
}

// Release frees the remote objects of every element handed out since the
// last call, keeping those bound to a click handler.
func (d *Document) Release(ctx context.Context) {
	d.mu.Lock()
	handed := d.handed
	d.handed = nil
	d.mu.Unlock()

	for _, el := range d.clicks.unbound(handed) {
		if err := el.Context(ctx).Release(); err != nil {
			d.logger.Debug("browser: release element", "error", err)
		}
	}
}

func (d *Document) track(el *rod.Element) {
	d.mu.Lock()
	d.handed = append(d.handed, el)
	d.mu.Unlock()
}

// tracked reports how many elements await Release.
func (d *Document) tracked() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.handed)
}

// Page returns the attached page.
func (d *Document) Page() (*rod.Page, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.page == nil {
		return nil, ErrNoPage
	}
	return d.page, nil
}

// Close stops the click listener.
func (d *Document) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stop != nil {
		d.stop()
		d.stop = nil
	}
	d.page = nil
	d.handed = nil
}

func (d *Document) Location(ctx context.Context) (string, error) {
	page, err := d.Page()
	if err != nil {
		return "", err
	}
	res, err := page.Context(ctx).Eval(`() => location.href`)
	if err != nil {
		return "", fmt.Errorf("browser: location: %w", err)
	}
	return res.Value.Str(), nil
}

func (d *Document) QuerySelector(ctx context.Context, selector string) (dom.Element, error) {
	return d.query(ctx, nil, `sel => document.querySelector(sel)`, selector)
}

func (d *Document) GetElementByID(ctx context.Context, id string) (dom.Element, error) {
	return d.query(ctx, nil, `id => document.getElementById(id)`, id)
}

func (d *Document) CreateElement(ctx context.Context, tag string) (dom.Element, error) {
	return d.query(ctx, nil, `tag => document.createElement(tag)`, tag)
}

func (d *Document) Head(ctx context.Context) (dom.Element, error) {
	return d.query(ctx, nil, `() => document.head`)
}

// query evaluates js on the page, or on el with this bound to it, and wraps
// the resulting node. A null result is dom.ErrNotFound.
func (d *Document) query(ctx context.Context, el *rod.Element, js string, args ...any) (dom.Element, error) {
	page, err := d.Page()
	if err != nil {
		return nil, err
	}

	opts := rod.Eval(js, args...).ByObject()
	var res *proto.RuntimeRemoteObject
	if el != nil {
		res, err = el.Context(ctx).Evaluate(opts)
	} else {
		res, err = page.Context(ctx).Evaluate(opts)
	}
	if err != nil {
		return nil, fmt.Errorf("browser: evaluate: %w", err)
	}
	if res.Type == proto.RuntimeRemoteObjectTypeUndefined || res.Subtype == proto.RuntimeRemoteObjectSubtypeNull {
		return nil, dom.ErrNotFound
	}
	if res.Subtype != proto.RuntimeRemoteObjectSubtypeNode {
		return nil, fmt.Errorf("browser: evaluate returned %s, not a node", res.Type)
	}

	node, err := page.ElementFromObject(res)
	if err != nil {
		return nil, fmt.Errorf("browser: element from object: %w", err)
	}
	d.track(node)
	return &element{doc: d, el: node}, nil
}

type element struct {
	doc *Document
	el  *rod.Element
}

func (e *element) ParentElement(ctx context.Context) (dom.Element, error) {
	return e.doc.query(ctx, e.el, `() => this.parentElement`)
}

func (e *element) QuerySelector(ctx context.Context, selector string) (dom.Element, error) {
	return e.doc.query(ctx, e.el, `sel => this.querySelector(sel)`, selector)
}

func (e *element) AttributeNames(ctx context.Context) ([]string, error) {
	res, err := e.el.Context(ctx).Eval(`() => this.getAttributeNames()`)
	if err != nil {
		return nil, fmt.Errorf("browser: attribute names: %w", err)
	}
	arr := res.Value.Arr()
	names := make([]string, 0, len(arr))
	for _, v := range arr {
		names = append(names, v.Str())
	}
	return names, nil
}

func (e *element) SetAttribute(ctx context.Context, name, value string) error {
	return e.call(ctx, "set attribute", `(n, v) => this.setAttribute(n, v)`, name, value)
}

func (e *element) SetInnerHTML(ctx context.Context, markup string) error {
	return e.call(ctx, "set inner html", `m => { this.innerHTML = m }`, markup)
}

func (e *element) SetTextContent(ctx context.Context, text string) error {
	return e.call(ctx, "set text", `t => { this.textContent = t }`, text)
}

func (e *element) SetDisabled(ctx context.Context, disabled bool) error {
	return e.call(ctx, "set disabled", `d => { this.disabled = d; d ? this.setAttribute('disabled', '') : this.removeAttribute('disabled') }`, disabled)
}

func (e *element) AppendChild(ctx context.Context, child dom.Element) error {
	c, ok := child.(*element)
	if !ok {
		return fmt.Errorf("browser: append child: foreign element %T", child)
	}
	return e.call(ctx, "append child", `c => { this.appendChild(c) }`, c.el.Object)
}

func (e *element) Remove(ctx context.Context) error {
	return e.call(ctx, "remove", `() => this.remove()`)
}

func (e *element) OnClick(ctx context.Context, fn dom.ClickFunc) error {
	return e.doc.clicks.attach(ctx, e, fn)
}

func (e *element) call(ctx context.Context, op, js string, args ...any) error {
	if _, err := e.el.Context(ctx).Eval(js, args...); err != nil {
		return fmt.Errorf("browser: %s: %w", op, err)
	}
	return nil
}
