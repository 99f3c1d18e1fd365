package tree

type LookupStatus int

const (
	StatusNotFound LookupStatus = iota
	StatusFound
	// StatusNoFurtherChildren means an intermediate segment matched a leaf.
	StatusNoFurtherChildren
)

func (s LookupStatus) String() string {
	switch s {
	case StatusFound:
		return "found"
	case StatusNoFurtherChildren:
		return "no further children"
	default:
		return "not found"
	}
}

type Lookup struct {
	Status LookupStatus
	Node   *Node
}

// FindNode resolves the full route to its terminal node. An empty route is
// not found.
func FindNode(t Tree, route Route) Lookup {
	if len(route) == 0 {
		return Lookup{Status: StatusNotFound}
	}
	nodes := []*Node(t)
	for depth, segment := range route {
		node := matchSibling(nodes, segment)
		if node == nil {
			return Lookup{Status: StatusNotFound}
		}
		if depth == len(route)-1 {
			return Lookup{Status: StatusFound, Node: node}
		}
		if node.IsLeaf() {
			return Lookup{Status: StatusNoFurtherChildren}
		}
		nodes = node.Children
	}
	return Lookup{Status: StatusNotFound}
}

// ChildrenAt returns the children collection addressed by route, the root
// for an empty route. ok is false when a segment does not match or an
// intermediate match is a leaf. A terminal leaf yields an empty collection.
func ChildrenAt(t Tree, route Route) (children []*Node, ok bool) {
	nodes := []*Node(t)
	for depth, segment := range route {
		node := matchSibling(nodes, segment)
		if node == nil {
			return nil, false
		}
		if node.IsLeaf() {
			if depth == len(route)-1 {
				return []*Node{}, true
			}
			return nil, false
		}
		nodes = node.Children
	}
	return nodes, true
}

// matchSibling returns the first node whose plain name equals segment.
// Duplicate names always resolve to the earliest sibling.
func matchSibling(nodes []*Node, segment string) *Node {
	for _, node := range nodes {
		if PlainName(node.Name) == segment {
			return node
		}
	}
	return nil
}
