package htmldom

import (
	"slices"
	"strings"

	"golang.org/x/net/html"
)

// Supported selector subset:
//   - tag: "table", "ndw-block-header"
//   - .class, with several classes chained: ".a.b"
//   - #id
//   - tag[attr], tag[attr=val], tag[attr="val"]
//   - any combination of the above in one compound
//   - compounds separated by space (descendant combinator)

type compound struct {
	tag     string
	id      string
	classes []string
	attrKey string
	attrVal string
	hasVal  bool
}

type selector []compound

func parseSelector(sel string) selector {
	var out selector
	for _, part := range splitCompounds(sel) {
		out = append(out, parseCompound(part))
	}
	return out
}

// splitCompounds splits on whitespace outside of brackets, so attribute
// values may contain spaces.
func splitCompounds(sel string) []string {
	var parts []string
	var cur strings.Builder
	depth := 0
	for _, r := range sel {
		switch {
		case r == '[':
			depth++
		case r == ']':
			depth--
		case depth == 0 && (r == ' ' || r == '\t' || r == '\n'):
			if cur.Len() > 0 {
				parts = append(parts, cur.String())
				cur.Reset()
			}
			continue
		}
		cur.WriteRune(r)
	}
	if cur.Len() > 0 {
		parts = append(parts, cur.String())
	}
	return parts
}

func parseCompound(sel string) compound {
	var c compound

	if idx := strings.IndexByte(sel, '['); idx >= 0 {
		attrPart := strings.TrimSuffix(sel[idx+1:], "]")
		sel = sel[:idx]
		if eq := strings.IndexByte(attrPart, '='); eq >= 0 {
			c.attrKey = attrPart[:eq]
			c.attrVal = strings.Trim(attrPart[eq+1:], `"'`)
			c.hasVal = true
		} else {
			c.attrKey = attrPart
		}
	}

	if idx := strings.IndexByte(sel, '#'); idx >= 0 {
		rest := sel[idx+1:]
		sel = sel[:idx]
		if dot := strings.IndexByte(rest, '.'); dot >= 0 {
			sel += rest[dot:]
			rest = rest[:dot]
		}
		c.id = rest
	}

	if idx := strings.IndexByte(sel, '.'); idx >= 0 {
		for _, cls := range strings.Split(sel[idx+1:], ".") {
			if cls != "" {
				c.classes = append(c.classes, cls)
			}
		}
		sel = sel[:idx]
	}

	c.tag = strings.ToLower(sel)
	return c
}

func (c compound) matches(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if c.tag != "" && c.tag != "*" && n.Data != c.tag {
		return false
	}
	if c.id != "" && getAttr(n, "id") != c.id {
		return false
	}
	if len(c.classes) > 0 {
		have := strings.Fields(getAttr(n, "class"))
		for _, want := range c.classes {
			if !slices.Contains(have, want) {
				return false
			}
		}
	}
	if c.attrKey != "" {
		val, ok := lookupAttr(n, c.attrKey)
		if !ok || (c.hasVal && val != c.attrVal) {
			return false
		}
	}
	return true
}

// matches reports whether n matches the full selector: the last compound
// matches n and each earlier one matches some ancestor, in order.
func (s selector) matches(n *html.Node) bool {
	if len(s) == 0 || !s[len(s)-1].matches(n) {
		return false
	}
	i := len(s) - 2
	for p := n.Parent; p != nil && i >= 0; p = p.Parent {
		if s[i].matches(p) {
			i--
		}
	}
	return i < 0
}

// first returns the first descendant of root, in document order, that
// matches s. root itself is not a candidate.
func (s selector) first(root *html.Node) *html.Node {
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if s.matches(c) {
			return c
		}
		if found := s.first(c); found != nil {
			return found
		}
	}
	return nil
}

func (s selector) count(root *html.Node) int {
	n := 0
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if s.matches(c) {
			n++
		}
		n += s.count(c)
	}
	return n
}

func getAttr(n *html.Node, key string) string {
	v, _ := lookupAttr(n, key)
	return v
}

func lookupAttr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}
