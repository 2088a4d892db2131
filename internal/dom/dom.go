// Package dom models the monitored document: a mutable node tree that
// records structural and text changes and delivers them to observers in
// batches.
package dom

import (
	"fmt"
	"strings"
	"sync"

	"github.com/sprite-ai/blinky/internal/model"
)

// NodeType distinguishes element nodes from text nodes.
type NodeType int

const (
	ElementNode NodeType = iota
	TextNode
)

func (t NodeType) String() string {
	switch t {
	case ElementNode:
		return "element"
	case TextNode:
		return "text"
	default:
		return "unknown"
	}
}

// Node is one element or text node of a Document.
type Node struct {
	Type  NodeType
	Tag   string            // lower-case tag name; empty for text nodes
	Attrs map[string]string // element attributes
	Data  string            // character data for text nodes

	parent   *Node
	children []*Node
	doc      *Document // set while attached to a document
}

// NewElement creates a detached element node.
func NewElement(tag string, attrs map[string]string) *Node {
	a := make(map[string]string, len(attrs))
	for k, v := range attrs {
		a[k] = v
	}
	return &Node{Type: ElementNode, Tag: strings.ToLower(tag), Attrs: a}
}

// NewText creates a detached text node.
func NewText(data string) *Node {
	return &Node{Type: TextNode, Data: data}
}

// Append adds children to a detached node and returns it. It is for
// building subtrees before insertion and records nothing; attached nodes
// must go through Document.AppendChild.
func (n *Node) Append(children ...*Node) *Node {
	for _, c := range children {
		c.parent = n
		n.children = append(n.children, c)
	}
	return n
}

// Parent returns the parent node, or nil for roots and detached nodes.
func (n *Node) Parent() *Node { return n.parent }

// Children returns the node's children. The slice must not be modified.
func (n *Node) Children() []*Node { return n.children }

// Attr returns the named attribute.
func (n *Node) Attr(name string) string {
	if n == nil || n.Attrs == nil {
		return ""
	}
	return n.Attrs[name]
}

// ID returns the element id attribute.
func (n *Node) ID() string { return n.Attr("id") }

// HasClassContaining reports whether any class token contains sub.
func (n *Node) HasClassContaining(sub string) bool {
	return strings.Contains(n.Attr("class"), sub)
}

// TextContent concatenates the character data of the subtree.
func (n *Node) TextContent() string {
	if n == nil {
		return ""
	}
	if n.Type == TextNode {
		return n.Data
	}
	var b strings.Builder
	n.writeText(&b)
	return b.String()
}

func (n *Node) writeText(b *strings.Builder) {
	for _, c := range n.children {
		if c.Type == TextNode {
			b.WriteString(c.Data)
		} else {
			c.writeText(b)
		}
	}
}

// Contains reports whether other is n or one of its descendants.
func (n *Node) Contains(other *Node) bool {
	for cur := other; cur != nil; cur = cur.parent {
		if cur == n {
			return true
		}
	}
	return false
}

// Path renders a short selector-like locator such as
// "body > div#chat > p.message[2]".
func (n *Node) Path() string {
	var parts []string
	for cur := n; cur != nil; cur = cur.parent {
		parts = append(parts, cur.segment())
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, " > ")
}

func (n *Node) segment() string {
	if n.Type == TextNode {
		return "#text"
	}
	seg := n.Tag
	if id := n.ID(); id != "" {
		seg += "#" + id
	} else if cls := strings.Fields(n.Attr("class")); len(cls) > 0 {
		seg += "." + cls[0]
	}
	if n.parent != nil {
		idx := 0
		for _, sib := range n.parent.children {
			if sib == n {
				break
			}
			if sib.Type == ElementNode && sib.Tag == n.Tag {
				idx++
			}
		}
		if idx > 0 {
			seg += fmt.Sprintf("[%d]", idx)
		}
	}
	return seg
}

// Attached reports whether n is part of d's tree.
func (d *Document) Attached(n *Node) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return n != nil && n.doc == d
}

// Locate captures n's path, attributes and markup as plain values. Call it
// on the goroutine that mutates the document; the result may then be read
// anywhere.
func (n *Node) Locate() *model.SourceRef {
	if n == nil {
		return nil
	}
	attrs := make(map[string]string, len(n.Attrs))
	for k, v := range n.Attrs {
		attrs[k] = v
	}
	return &model.SourceRef{Path: n.Path(), Attrs: attrs, Markup: n.OuterHTML()}
}

// Walk visits n and its descendants depth-first. Returning false from fn
// skips the node's children.
func (n *Node) Walk(fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, c := range n.children {
		c.Walk(fn)
	}
}

// MutationType categorizes a MutationRecord.
type MutationType int

const (
	ChildList MutationType = iota
	CharacterData
)

func (t MutationType) String() string {
	switch t {
	case ChildList:
		return "childList"
	case CharacterData:
		return "characterData"
	default:
		return "unknown"
	}
}

// MutationRecord describes one change to the tree.
type MutationRecord struct {
	Type    MutationType
	Target  *Node
	Added   []*Node
	Removed []*Node
}

// Document is the monitored tree. Mutations are recorded and delivered to
// observers when Flush is called, mirroring how a browser batches them.
type Document struct {
	mu        sync.Mutex
	root      *Node
	pending   []MutationRecord
	observers map[int]func([]MutationRecord)
	nextID    int
	URL       string
}

// NewDocument creates a document with an empty <body> root.
func NewDocument(url string) *Document {
	d := &Document{URL: url, observers: make(map[int]func([]MutationRecord))}
	d.root = NewElement("body", nil)
	d.root.doc = d
	return d
}

// Body returns the root node.
func (d *Document) Body() *Node { return d.root }

// Observe registers fn for every delivered batch and returns a function that
// removes the registration.
func (d *Document) Observe(fn func([]MutationRecord)) (cancel func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.nextID
	d.nextID++
	d.observers[id] = fn
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		delete(d.observers, id)
	}
}

// AppendChild attaches child as the last child of parent. The insertion is
// recorded only when parent is attached to d; building a subtree out of
// detached nodes produces no records until the subtree itself is inserted.
func (d *Document) AppendChild(parent, child *Node) error {
	if parent == nil || child == nil {
		return fmt.Errorf("append: nil node")
	}
	if parent.Type != ElementNode {
		return fmt.Errorf("append: parent is a %s node", parent.Type)
	}
	if child.Contains(parent) {
		return fmt.Errorf("append: child contains parent")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if child.parent != nil {
		d.detachLocked(child)
	}
	child.parent = parent
	parent.children = append(parent.children, child)
	attached := parent.doc == d
	child.Walk(func(n *Node) bool {
		if attached {
			n.doc = d
		} else {
			n.doc = nil
		}
		return true
	})
	if attached {
		d.pending = append(d.pending, MutationRecord{Type: ChildList, Target: parent, Added: []*Node{child}})
	}
	return nil
}

// RemoveChild detaches child from its parent and records the removal.
func (d *Document) RemoveChild(child *Node) error {
	if child == nil || child.parent == nil {
		return fmt.Errorf("remove: node is detached")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.detachLocked(child)
	return nil
}

func (d *Document) detachLocked(child *Node) {
	parent := child.parent
	for i, c := range parent.children {
		if c == child {
			parent.children = append(parent.children[:i:i], parent.children[i+1:]...)
			break
		}
	}
	child.parent = nil
	child.Walk(func(n *Node) bool { n.doc = nil; return true })
	if parent.doc == d {
		d.pending = append(d.pending, MutationRecord{Type: ChildList, Target: parent, Removed: []*Node{child}})
	}
}

// SetData replaces a text node's character data in place.
func (d *Document) SetData(n *Node, data string) error {
	if n == nil || n.Type != TextNode {
		return fmt.Errorf("set data: not a text node")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if n.Data == data {
		return nil
	}
	n.Data = data
	if n.doc == d {
		d.pending = append(d.pending, MutationRecord{Type: CharacterData, Target: n})
	}
	return nil
}

// SetText replaces an element's content with a single text node, the way
// assigning textContent does. A lone existing text child is updated in place.
func (d *Document) SetText(n *Node, text string) error {
	if n == nil || n.Type != ElementNode {
		return fmt.Errorf("set text: not an element")
	}
	if len(n.children) == 1 && n.children[0].Type == TextNode {
		return d.SetData(n.children[0], text)
	}
	for len(n.children) > 0 {
		if err := d.RemoveChild(n.children[0]); err != nil {
			return err
		}
	}
	return d.AppendChild(n, NewText(text))
}

// Pending returns the number of undelivered records.
func (d *Document) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Flush delivers the pending records to every observer as one batch.
// Observers run on the caller's goroutine, outside the document lock.
func (d *Document) Flush() {
	d.mu.Lock()
	batch := d.pending
	d.pending = nil
	fns := make([]func([]MutationRecord), 0, len(d.observers))
	for _, fn := range d.observers {
		fns = append(fns, fn)
	}
	d.mu.Unlock()

	if len(batch) == 0 {
		return
	}
	for _, fn := range fns {
		fn(batch)
	}
}

// FindByAttr returns the first node in document order whose attribute name
// equals value.
func (d *Document) FindByAttr(name, value string) *Node {
	var found *Node
	d.root.Walk(func(n *Node) bool {
		if found != nil {
			return false
		}
		if n.Type == ElementNode && n.Attr(name) == value {
			found = n
			return false
		}
		return true
	})
	return found
}
