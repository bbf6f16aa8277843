package extractor

import "github.com/antchfx/xpath"

// navigator adapts a parsed Document to xpath.NodeNavigator. Element steps
// compiled with a namespace prefix match on NamespaceURL.
type navigator struct {
	top  *Node
	cur  *Node
	attr int
}

var _ xpath.NodeNavigator = (*navigator)(nil)

// newNavigator returns a navigator positioned on n.
func newNavigator(n *Node) *navigator {
	top := n
	for top.Parent != nil {
		top = top.Parent
	}

	return &navigator{top: top, cur: n, attr: -1}
}

func (a *navigator) NodeType() xpath.NodeType {
	switch {
	case a.cur.document:
		return xpath.RootNode
	case a.attr != -1:
		return xpath.AttributeNode
	}

	return xpath.ElementNode
}

func (a *navigator) LocalName() string {
	if a.attr != -1 {
		return a.cur.Attrs[a.attr].Name.Local
	}

	return a.cur.Name.Local
}

func (a *navigator) Prefix() string {
	if a.attr != -1 {
		return ""
	}

	return a.cur.Prefix
}

func (a *navigator) NamespaceURL() string {
	if a.attr != -1 {
		return a.cur.Attrs[a.attr].Name.Space
	}

	return a.cur.Name.Space
}

func (a *navigator) Value() string {
	if a.attr != -1 {
		return a.cur.Attrs[a.attr].Value
	}

	return a.cur.Text()
}

func (a *navigator) Copy() xpath.NodeNavigator {
	n := *a

	return &n
}

func (a *navigator) MoveToRoot() {
	a.cur = a.top
	a.attr = -1
}

func (a *navigator) MoveToParent() bool {
	if a.attr != -1 {
		a.attr = -1

		return true
	}

	if a.cur.Parent == nil {
		return false
	}

	a.cur = a.cur.Parent

	return true
}

func (a *navigator) MoveToNextAttribute() bool {
	if a.attr >= len(a.cur.Attrs)-1 {
		return false
	}

	a.attr++

	return true
}

func (a *navigator) MoveToChild() bool {
	if a.attr != -1 || len(a.cur.Children) == 0 {
		return false
	}

	a.cur = a.cur.Children[0]

	return true
}

func (a *navigator) MoveToFirst() bool {
	if a.attr != -1 || a.cur.Parent == nil || a.cur.index == 0 {
		return false
	}

	a.cur = a.cur.Parent.Children[0]

	return true
}

func (a *navigator) MoveToNext() bool {
	if a.attr != -1 || a.cur.Parent == nil {
		return false
	}

	siblings := a.cur.Parent.Children
	if a.cur.index+1 >= len(siblings) {
		return false
	}

	a.cur = siblings[a.cur.index+1]

	return true
}

func (a *navigator) MoveToPrevious() bool {
	if a.attr != -1 || a.cur.Parent == nil || a.cur.index == 0 {
		return false
	}

	a.cur = a.cur.Parent.Children[a.cur.index-1]

	return true
}

func (a *navigator) MoveTo(other xpath.NodeNavigator) bool {
	node, ok := other.(*navigator)
	if !ok || node.top != a.top {
		return false
	}

	a.cur = node.cur
	a.attr = node.attr

	return true
}
