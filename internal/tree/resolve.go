package tree

import (
	"cmp"
	"slices"
)

type ResolutionKind int

const (
	// KindNotFound routes can only be offered as a create target.
	KindNotFound ResolutionKind = iota
	// KindCollection routes list the children (or the root).
	KindCollection
)

func (k ResolutionKind) String() string {
	if k == KindCollection {
		return "collection"
	}
	return "not-found"
}

type Resolution struct {
	Kind     ResolutionKind
	Route    Route
	Children []*Node
}

// Resolve classifies a route for listing.
func Resolve(t Tree, route Route) Resolution {
	children, ok := ChildrenAt(t, route)
	if !ok {
		return Resolution{Kind: KindNotFound, Route: route}
	}
	return Resolution{Kind: KindCollection, Route: route, Children: children}
}

// ResolveParent returns the id of the node route points at, whatever its
// children. Unresolved or empty routes map to RootParentID with ok false.
func ResolveParent(t Tree, route Route) (parentID string, ok bool) {
	lookup := FindNode(t, route)
	if lookup.Status != StatusFound || lookup.Node.ID == "" {
		return RootParentID, false
	}
	return lookup.Node.ID, true
}

// SortForDisplay returns a copy of nodes in launcher order: incomplete nodes
// first by ascending priority, then completed nodes in their stored order.
func SortForDisplay(nodes []*Node) []*Node {
	sorted := slices.Clone(nodes)
	slices.SortStableFunc(sorted, func(a, b *Node) int {
		switch {
		case a.Completed && b.Completed:
			return 0
		case a.Completed:
			return 1
		case b.Completed:
			return -1
		}
		return cmp.Compare(a.Priority, b.Priority)
	})
	return sorted
}
