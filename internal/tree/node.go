package tree

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

// RootParentID is the parent id the CLI expects for nodes created at the root.
const RootParentID = "None"

const tempIDPrefix = "temp-"

var tempSeq atomic.Uint64

// Node is one outline entry. Children is nil for a leaf; an empty non-nil
// slice marks a node that can hold children but currently has none.
type Node struct {
	ID        string
	Name      string
	Completed bool
	Priority  int
	Children  []*Node
}

// Tree is the root collection. There is no wrapper node above it.
type Tree []*Node

type wireNode struct {
	ID        string          `json:"id"`
	Name      string          `json:"nm"`
	Completed json.RawMessage `json:"cp,omitempty"`
	Priority  *float64        `json:"pr,omitempty"`
	Children  []*Node         `json:"children"`
}

func (n *Node) UnmarshalJSON(data []byte) error {
	var wire wireNode
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	n.ID = wire.ID
	n.Name = wire.Name
	n.Completed = completedFlag(wire.Completed)
	n.Priority = 0
	if wire.Priority != nil {
		n.Priority = int(*wire.Priority)
	}
	n.Children = wire.Children
	return nil
}

func (n *Node) MarshalJSON() ([]byte, error) {
	out := struct {
		ID       string `json:"id"`
		Name     string `json:"nm"`
		Complete bool   `json:"cp,omitempty"`
		Priority int    `json:"pr"`
		// nil interface drops the field for leaves; an empty container
		// still encodes as [].
		Children any `json:"children,omitempty"`
	}{
		ID:       n.ID,
		Name:     n.Name,
		Complete: n.Completed,
		Priority: n.Priority,
	}
	if n.Children != nil {
		out.Children = n.Children
	}
	return json.Marshal(out)
}

// completedFlag reports whether a raw cp value marks the node complete. The
// server sends a timestamp; any value other than null or false counts.
func completedFlag(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return false
	}
	switch string(trimmed) {
	case "null", "false":
		return false
	}
	return true
}

// Decode parses the JSON payload returned by getTree.
func Decode(data []byte) (Tree, error) {
	var root Tree
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("decode tree: %w", err)
	}
	if root == nil {
		root = Tree{}
	}
	return root, nil
}

// NewTempID returns a placeholder id for a node the server has not confirmed.
func NewTempID() string {
	return fmt.Sprintf("%s%d-%d", tempIDPrefix, time.Now().UnixNano(), tempSeq.Add(1))
}

func IsTempID(id string) bool {
	return strings.HasPrefix(id, tempIDPrefix)
}

// IsLeaf reports whether the node has no children field at all.
func (n *Node) IsLeaf() bool {
	return n.Children == nil
}

// Clone deep-copies the tree, preserving the leaf vs empty-container
// distinction on every node.
func Clone(t Tree) Tree {
	if t == nil {
		return nil
	}
	out := make(Tree, len(t))
	for i, node := range t {
		out[i] = cloneNode(node)
	}
	return out
}

func cloneNode(n *Node) *Node {
	if n == nil {
		return nil
	}
	copied := *n
	if n.Children != nil {
		copied.Children = make([]*Node, len(n.Children))
		for i, child := range n.Children {
			copied.Children[i] = cloneNode(child)
		}
	}
	return &copied
}

// Count returns the number of nodes in the tree.
func Count(t Tree) int {
	total := 0
	for _, node := range t {
		total++
		if node.Children != nil {
			total += Count(node.Children)
		}
	}
	return total
}
