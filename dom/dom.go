// Package dom is the narrow slice of the browser DOM that dslwatch writes to.
//
// Two implementations exist: the CDP-backed one in dslwatch/internal/browser
// and the in-memory dom/htmldom used by tests. References obtained through
// these interfaces are only valid for the current tick; the host framework
// may replace any node between ticks.
package dom

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a lookup matches nothing.
var ErrNotFound = errors.New("dom: not found")

// ClickFunc is called when an element registered with OnClick is clicked.
type ClickFunc func(ctx context.Context, el Element)

// Document is the page.
type Document interface {
	// Location returns the full href of the page.
	Location(ctx context.Context) (string, error)
	QuerySelector(ctx context.Context, selector string) (Element, error)
	GetElementByID(ctx context.Context, id string) (Element, error)
	CreateElement(ctx context.Context, tag string) (Element, error)
	Head(ctx context.Context) (Element, error)
}

// Element is one node of the page.
type Element interface {
	ParentElement(ctx context.Context) (Element, error)
	QuerySelector(ctx context.Context, selector string) (Element, error)
	// AttributeNames lists attribute names in document order.
	AttributeNames(ctx context.Context) ([]string, error)
	SetAttribute(ctx context.Context, name, value string) error
	SetInnerHTML(ctx context.Context, markup string) error
	SetTextContent(ctx context.Context, text string) error
	SetDisabled(ctx context.Context, disabled bool) error
	AppendChild(ctx context.Context, child Element) error
	// Remove detaches the element from its parent.
	Remove(ctx context.Context) error
	OnClick(ctx context.Context, fn ClickFunc) error
}

// Releaser is implemented by documents that keep a remote reference for
// every element they hand out. Release drops the references handed out
// since the previous call, except those still bound to a click handler.
type Releaser interface {
	Release(ctx context.Context)
}
