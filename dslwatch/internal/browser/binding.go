package browser

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/dslwatch/dom"
)

// bindingName is the window function page listeners call on click.
const bindingName = "__dslwatch_click"

type clickHandler struct {
	el *element
	fn dom.ClickFunc
}

// clickBinding routes page clicks back to Go through Runtime.addBinding.
// Each registered element gets a token; its DOM listener calls the binding
// with that token.
type clickBinding struct {
	mu       sync.Mutex
	handlers map[string]clickHandler
	seq      atomic.Uint64
	logger   *slog.Logger
}

func newClickBinding(logger *slog.Logger) *clickBinding {
	return &clickBinding{handlers: make(map[string]clickHandler), logger: logger}
}

// install adds the binding to page and listens for calls until ctx is done.
func (c *clickBinding) install(ctx context.Context, page *rod.Page) error {
	if err := (proto.RuntimeAddBinding{Name: bindingName}).Call(page); err != nil {
		return fmt.Errorf("browser: add binding: %w", err)
	}
	go c.listen(ctx, page)
	return nil
}

func (c *clickBinding) listen(ctx context.Context, page *rod.Page) {
	page.Context(ctx).EachEvent(func(e *proto.RuntimeBindingCalled) {
		if e.Name != bindingName {
			return
		}
		c.dispatch(ctx, e.Payload)
	})()
}

func (c *clickBinding) dispatch(ctx context.Context, token string) {
	c.mu.Lock()
	h, ok := c.handlers[token]
	c.mu.Unlock()
	if !ok {
		c.logger.Debug("browser: click for unknown token", "token", token)
		return
	}
	h.fn(ctx, h.el)
}

// attach registers fn for clicks on el.
func (c *clickBinding) attach(ctx context.Context, el *element, fn dom.ClickFunc) error {
	token := strconv.FormatUint(c.seq.Add(1), 10)
	err := el.call(ctx, "on click",
		`(name, token) => this.addEventListener('click', () => window[name] && window[name](token))`,
		bindingName, token)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.handlers[token] = clickHandler{el: el, fn: fn}
	c.mu.Unlock()
	c.prune(ctx, token)
	return nil
}

// prune drops handlers whose elements left the document.
func (c *clickBinding) prune(ctx context.Context, keep string) {
	c.mu.Lock()
	stale := make(map[string]*element, len(c.handlers))
	for token, h := range c.handlers {
		if token != keep {
			stale[token] = h.el
		}
	}
	c.mu.Unlock()

	for token, el := range stale {
		res, err := el.el.Context(ctx).Eval(`() => this.isConnected`)
		if err == nil && res.Value.Bool() {
			continue
		}
		c.mu.Lock()
		delete(c.handlers, token)
		c.mu.Unlock()
		if err == nil {
			_ = el.el.Context(ctx).Release()
		}
	}
}

// unbound filters out the elements a handler still holds.
func (c *clickBinding) unbound(els []*rod.Element) []*rod.Element {
	c.mu.Lock()
	defer c.mu.Unlock()
	held := make(map[*rod.Element]bool, len(c.handlers))
	for _, h := range c.handlers {
		if h.el != nil {
			held[h.el.el] = true
		}
	}
	var out []*rod.Element
	for _, el := range els {
		if !held[el] {
			out = append(out, el)
		}
	}
	return out
}

// reset forgets every handler; used when the page is swapped.
func (c *clickBinding) reset() {
	c.mu.Lock()
	clear(c.handlers)
	c.mu.Unlock()
}

// size reports the number of live handlers.
func (c *clickBinding) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handlers)
}
