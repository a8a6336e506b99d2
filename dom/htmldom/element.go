package htmldom

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/hazyhaar/dslwatch/dom"
)

// Element is a node of a Document.
type Element struct {
	doc *Document
	n   *html.Node
}

var _ dom.Element = (*Element)(nil)

func (e *Element) ParentElement(context.Context) (dom.Element, error) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	p := e.n.Parent
	if p == nil || p.Type != html.ElementNode {
		return nil, fmt.Errorf("htmldom: parent of <%s>: %w", e.n.Data, dom.ErrNotFound)
	}
	return e.doc.wrap(p), nil
}

func (e *Element) QuerySelector(_ context.Context, sel string) (dom.Element, error) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	n := parseSelector(sel).first(e.n)
	if n == nil {
		return nil, fmt.Errorf("htmldom: %q under <%s>: %w", sel, e.n.Data, dom.ErrNotFound)
	}
	return e.doc.wrap(n), nil
}

func (e *Element) AttributeNames(context.Context) ([]string, error) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	names := make([]string, 0, len(e.n.Attr))
	for _, a := range e.n.Attr {
		names = append(names, a.Key)
	}
	return names, nil
}

func (e *Element) SetAttribute(_ context.Context, name, value string) error {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	setAttr(e.n, strings.ToLower(name), value)
	return nil
}

// SetInnerHTML parses markup in the context of this element and replaces
// its children.
func (e *Element) SetInnerHTML(_ context.Context, markup string) error {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	nodes, err := html.ParseFragment(strings.NewReader(markup), e.n)
	if err != nil {
		return fmt.Errorf("htmldom: inner html of <%s>: %w", e.n.Data, err)
	}
	e.doc.clearChildren(e.n)
	for _, c := range nodes {
		e.n.AppendChild(c)
	}
	return nil
}

func (e *Element) SetTextContent(_ context.Context, text string) error {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	e.doc.clearChildren(e.n)
	if text != "" {
		e.n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	}
	return nil
}

func (e *Element) SetDisabled(_ context.Context, disabled bool) error {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	if disabled {
		setAttr(e.n, "disabled", "")
	} else {
		removeAttr(e.n, "disabled")
	}
	return nil
}

// AppendChild moves child to the end of this element's children.
func (e *Element) AppendChild(_ context.Context, child dom.Element) error {
	c, ok := child.(*Element)
	if !ok || c.doc != e.doc {
		return errors.New("htmldom: append child from another document")
	}
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	for p := e.n; p != nil; p = p.Parent {
		if p == c.n {
			return errors.New("htmldom: append child would create a cycle")
		}
	}
	if c.n.Parent != nil {
		c.n.Parent.RemoveChild(c.n)
	}
	e.n.AppendChild(c.n)
	return nil
}

// Remove detaches the element and forgets handlers under it.
func (e *Element) Remove(context.Context) error {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	if e.n.Parent == nil {
		return nil
	}
	e.doc.forget(e.n)
	e.n.Parent.RemoveChild(e.n)
	return nil
}

// OnClick registers fn for clicks on this element or its descendants. A
// second registration replaces the first, like a property handler.
func (e *Element) OnClick(_ context.Context, fn dom.ClickFunc) error {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	e.doc.handlers[e.n] = fn
	return nil
}

// Tag returns the lowercase tag name.
func (e *Element) Tag() string { return e.n.Data }

// clearChildren detaches every child of n and forgets their handlers.
func (d *Document) clearChildren(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		d.forget(c)
		n.RemoveChild(c)
		c = next
	}
}

func (d *Document) forget(n *html.Node) {
	delete(d.handlers, n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		d.forget(c)
	}
}

func setAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func removeAttr(n *html.Node, key string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			return
		}
	}
}
