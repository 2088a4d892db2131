package dom

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// skipped elements never contribute text.
var skipped = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
	"head":     true,
}

// ParseHTML builds a Document from a full HTML page. The document root is
// the page's <body>.
func ParseHTML(r io.Reader, url string) (*Document, error) {
	top, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parsing html: %w", err)
	}
	d := NewDocument(url)
	body := findBody(top)
	if body == nil {
		return d, nil
	}
	d.root = convert(body)
	d.root.Walk(func(n *Node) bool { n.doc = d; return true })
	return d, nil
}

// ParseFragment parses markup in a <body> context and returns detached
// nodes ready to be appended to a Document.
func ParseFragment(r io.Reader) ([]*Node, error) {
	ctx := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	parsed, err := html.ParseFragment(r, ctx)
	if err != nil {
		return nil, fmt.Errorf("parsing fragment: %w", err)
	}
	var out []*Node
	for _, p := range parsed {
		if n := convert(p); n != nil {
			out = append(out, n)
		}
	}
	return out, nil
}

func findBody(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == atom.Body {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if b := findBody(c); b != nil {
			return b
		}
	}
	return nil
}

func convert(h *html.Node) *Node {
	switch h.Type {
	case html.TextNode:
		if strings.TrimSpace(h.Data) == "" {
			return nil
		}
		return NewText(h.Data)
	case html.ElementNode:
		if skipped[h.Data] {
			return nil
		}
		attrs := make(map[string]string, len(h.Attr))
		for _, a := range h.Attr {
			attrs[a.Key] = a.Val
		}
		n := NewElement(h.Data, attrs)
		for c := h.FirstChild; c != nil; c = c.NextSibling {
			if child := convert(c); child != nil {
				child.parent = n
				n.children = append(n.children, child)
			}
		}
		return n
	default:
		return nil
	}
}

// OuterHTML serializes the subtree, attributes sorted by name.
func (n *Node) OuterHTML() string {
	var b strings.Builder
	n.writeHTML(&b)
	return b.String()
}

func (n *Node) writeHTML(b *strings.Builder) {
	if n.Type == TextNode {
		b.WriteString(html.EscapeString(n.Data))
		return
	}
	b.WriteByte('<')
	b.WriteString(n.Tag)
	keys := make([]string, 0, len(n.Attrs))
	for k := range n.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(b, ` %s="%s"`, k, html.EscapeString(n.Attrs[k]))
	}
	b.WriteByte('>')
	for _, c := range n.children {
		c.writeHTML(b)
	}
	b.WriteString("</")
	b.WriteString(n.Tag)
	b.WriteByte('>')
}
