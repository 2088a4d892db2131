// Package extract walks document subtrees and yields the leaf text
// fragments worth evaluating.
package extract

import (
	"strings"

	"github.com/sprite-ai/blinky/internal/dom"
	"github.com/sprite-ai/blinky/internal/model"
)

// DefaultMaxNodes bounds the nodes visited by one walk so a single huge
// insertion cannot stall the caller.
const DefaultMaxNodes = 5000

// SweepTags are the element kinds considered by a full-document sweep.
var SweepTags = map[string]bool{
	"p": true, "span": true, "div": true, "a": true, "li": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"td": true, "blockquote": true, "label": true,
}

// Extractor yields text-leaf fragments from a subtree.
type Extractor struct {
	Marker   dom.Marker
	Context  model.SiteContext
	MaxNodes int
}

// New creates an Extractor for the given site context.
func New(marker dom.Marker, ctx model.SiteContext) *Extractor {
	return &Extractor{Marker: marker, Context: ctx, MaxNodes: DefaultMaxNodes}
}

// Extract returns one fragment per text-leaf element under root. A text
// root yields its own data. Marked subtrees are skipped entirely.
func (e *Extractor) Extract(root *dom.Node) []model.Fragment {
	return e.walk(root, nil)
}

// Sweep is the initial full-document pass. Only elements in SweepTags are
// reported.
func (e *Extractor) Sweep(doc *dom.Document) []model.Fragment {
	return e.walk(doc.Body(), SweepTags)
}

func (e *Extractor) walk(root *dom.Node, tags map[string]bool) []model.Fragment {
	if root == nil || e.Marker.Owns(root) {
		return nil
	}
	if root.Type == dom.TextNode {
		text := strings.TrimSpace(root.Data)
		if text == "" {
			return nil
		}
		return []model.Fragment{e.fragment(text, root)}
	}

	limit := e.MaxNodes
	if limit <= 0 {
		limit = DefaultMaxNodes
	}

	var out []model.Fragment
	visited := 0
	root.Walk(func(n *dom.Node) bool {
		if visited >= limit {
			return false
		}
		visited++
		if n.Type != dom.ElementNode || e.Marker.Marks(n) {
			return false
		}
		if !IsTextLeaf(n) {
			return true
		}
		if tags != nil && !tags[n.Tag] {
			return false
		}
		if text := strings.TrimSpace(n.TextContent()); text != "" {
			out = append(out, e.fragment(text, n))
		}
		return false
	})
	return out
}

// fragment locates a text root at its parent element.
func (e *Extractor) fragment(text string, src *dom.Node) model.Fragment {
	if src.Type == dom.TextNode && src.Parent() != nil {
		src = src.Parent()
	}
	return model.Fragment{Text: text, Source: src.Locate(), Context: e.Context}
}

// IsTextLeaf reports whether no element child of n carries non-empty text.
// Direct text children do not count; they belong to n itself.
func IsTextLeaf(n *dom.Node) bool {
	for _, c := range n.Children() {
		if c.Type == dom.ElementNode && strings.TrimSpace(c.TextContent()) != "" {
			return false
		}
	}
	return true
}
