package hydration

import (
	"io"

	"golang.org/x/net/html"
)

// NodeElement adapts an *html.Node to Element.
type NodeElement struct {
	Node *html.Node
}

// Attr returns the value of the named attribute.
func (e NodeElement) Attr(name string) (string, bool) {
	for _, a := range e.Node.Attr {
		if a.Namespace == "" && a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

// RemoveAttr deletes every attribute with the given name.
func (e NodeElement) RemoveAttr(name string) {
	kept := e.Node.Attr[:0]
	for _, a := range e.Node.Attr {
		if a.Namespace == "" && a.Key == name {
			continue
		}
		kept = append(kept, a)
	}
	e.Node.Attr = kept
}

// HasPlaceholder reports whether a descendant carries the placeholder
// attribute the loader removes before mounting.
func (e NodeElement) HasPlaceholder() bool {
	found := false
	walk(e.Node, func(n *html.Node) bool {
		if n != e.Node && n.Type == html.ElementNode && hasAttr(n, AttrPlaceholder) {
			found = true
			return false
		}
		return true
	})
	return found
}

// FindIslands returns the elements under root marked with data-island, in
// document order. An empty name matches every island.
func FindIslands(root *html.Node, name string) []Element {
	var found []Element
	walk(root, func(n *html.Node) bool {
		if n.Type != html.ElementNode {
			return true
		}
		el := NodeElement{Node: n}
		if v, ok := el.Attr(AttrIsland); ok && (name == "" || v == name) {
			found = append(found, el)
		}
		return true
	})
	return found
}

// ParseDocument parses an HTML page.
func ParseDocument(r io.Reader) (*html.Node, error) {
	return html.Parse(r)
}

func hasAttr(n *html.Node, name string) bool {
	_, ok := NodeElement{Node: n}.Attr(name)
	return ok
}

// walk visits n and its descendants depth first until fn returns false.
func walk(n *html.Node, fn func(*html.Node) bool) bool {
	if !fn(n) {
		return false
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if !walk(c, fn) {
			return false
		}
	}
	return true
}
