package extractor

import (
	"strings"

	"form990/internal/schema"
)

// Find returns every element p selects from ctx, in document order.
func Find(ctx *Node, p schema.Path) []*Node {
	if ctx == nil || p.Expr() == nil {
		return nil
	}

	var nodes []*Node

	it := p.Expr().Select(newNavigator(ctx))
	for it.MoveNext() {
		nav, ok := it.Current().(*navigator)
		if !ok || nav.attr != -1 || nav.cur.document {
			continue
		}

		nodes = append(nodes, nav.cur)
	}

	sortByOrder(nodes)

	return nodes
}

// First returns the earliest element in document order selected by p, or nil.
func First(ctx *Node, p schema.Path) *Node {
	nodes := Find(ctx, p)
	if len(nodes) == 0 {
		return nil
	}

	return nodes[0]
}

// TextOf returns the trimmed value of the earliest node selected by p, or "".
// Attribute selections yield the attribute value.
func TextOf(ctx *Node, p schema.Path) string {
	if ctx == nil || p.Expr() == nil {
		return ""
	}

	var (
		best  string
		order = -1
	)

	it := p.Expr().Select(newNavigator(ctx))
	for it.MoveNext() {
		nav, ok := it.Current().(*navigator)
		if !ok || nav.cur.document {
			continue
		}

		if order == -1 || nav.cur.order < order {
			best = strings.TrimSpace(nav.Value())
			order = nav.cur.order
		}
	}

	return best
}

// FirstText evaluates candidates in order and returns the first non-empty text.
func FirstText(ctx *Node, candidates []schema.Path) string {
	for _, p := range candidates {
		if v := TextOf(ctx, p); v != "" {
			return v
		}
	}

	return ""
}

// sortByOrder is an insertion sort; result sets are small and nearly sorted.
func sortByOrder(nodes []*Node) {
	for i := 1; i < len(nodes); i++ {
		for j := i; j > 0 && nodes[j].order < nodes[j-1].order; j-- {
			nodes[j], nodes[j-1] = nodes[j-1], nodes[j]
		}
	}
}
