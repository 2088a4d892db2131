package dom

import "strings"

// Marker identifies nodes that belong to the monitor's own rendered UI.
// Anything inside a marked node is invisible to the pipeline.
type Marker struct {
	IDs         []string // exact element ids
	ClassPrefix string   // substring matched against the class attribute
}

// DefaultMarker matches the panels and sidebar the alert renderer injects.
func DefaultMarker() Marker {
	return Marker{
		IDs:         []string{"blinky-sidebar", "blinky-safety-panel", "blinky-tooltip", "blinky-chat-widget", "blinky-dock"},
		ClassPrefix: "blinky",
	}
}

// Marks reports whether n itself carries the marker.
func (m Marker) Marks(n *Node) bool {
	if n == nil || n.Type != ElementNode {
		return false
	}
	id := n.ID()
	for _, want := range m.IDs {
		if id != "" && id == want {
			return true
		}
	}
	return m.ClassPrefix != "" && strings.Contains(n.Attr("class"), m.ClassPrefix)
}

// Owns reports whether n or any of its ancestors carries the marker.
func (m Marker) Owns(n *Node) bool {
	for cur := n; cur != nil; cur = cur.parent {
		if m.Marks(cur) {
			return true
		}
	}
	return false
}
