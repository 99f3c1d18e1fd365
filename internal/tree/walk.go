package tree

// Visitor finds one node and edits it in place. Apply receives the slice
// that holds the match and its index so it can replace, update or splice.
type Visitor struct {
	Match func(node *Node) bool
	Apply func(siblings *[]*Node, index int)
}

// ByID matches the node with the given id.
func ByID(id string) func(*Node) bool {
	return func(node *Node) bool {
		return node.ID == id
	}
}

// Locate walks the tree depth first, applies the visitor to the first match
// and reports whether one was found.
func Locate(t *Tree, visitor Visitor) bool {
	nodes := []*Node(*t)
	found := locate(&nodes, visitor)
	*t = nodes
	return found
}

func locate(nodes *[]*Node, visitor Visitor) bool {
	for index, node := range *nodes {
		if visitor.Match(node) {
			if visitor.Apply != nil {
				visitor.Apply(nodes, index)
			}
			return true
		}
		if node.Children != nil && locate(&node.Children, visitor) {
			return true
		}
	}
	return false
}

// FindByID returns the node with id, or nil.
func FindByID(t Tree, id string) *Node {
	var found *Node
	Locate(&t, Visitor{
		Match: ByID(id),
		Apply: func(siblings *[]*Node, index int) {
			found = (*siblings)[index]
		},
	})
	return found
}

// Rename sets the name of the node with id.
func Rename(t *Tree, id, name string) bool {
	return Locate(t, Visitor{
		Match: ByID(id),
		Apply: func(siblings *[]*Node, index int) {
			(*siblings)[index].Name = name
		},
	})
}

// ToggleCompleted flips the completed flag of the node with id.
func ToggleCompleted(t *Tree, id string) bool {
	return Locate(t, Visitor{
		Match: ByID(id),
		Apply: func(siblings *[]*Node, index int) {
			node := (*siblings)[index]
			node.Completed = !node.Completed
		},
	})
}

// Remove deletes the node with id and its subtree from its parent.
func Remove(t *Tree, id string) bool {
	return Locate(t, Visitor{
		Match: ByID(id),
		Apply: func(siblings *[]*Node, index int) {
			current := *siblings
			trimmed := make([]*Node, 0, len(current)-1)
			trimmed = append(trimmed, current[:index]...)
			trimmed = append(trimmed, current[index+1:]...)
			*siblings = trimmed
		},
	})
}

// AppendChild adds child under the node with parentID, allocating the
// parent's children when it was a leaf. RootParentID appends to the root.
func AppendChild(t *Tree, parentID string, child *Node) bool {
	if parentID == RootParentID || parentID == "" {
		*t = append(*t, child)
		return true
	}
	return Locate(t, Visitor{
		Match: ByID(parentID),
		Apply: func(siblings *[]*Node, index int) {
			parent := (*siblings)[index]
			parent.Children = append(parent.Children, child)
		},
	})
}
