package remote

import (
	"context"
	"fmt"

	"github.com/dwizi/flowy/internal/tree"
)

// GetTree fetches and decodes the full outline.
func (g *Gateway) GetTree(ctx context.Context) (tree.Tree, error) {
	result, err := g.Execute(ctx, CommandGetTree)
	if err != nil {
		return nil, err
	}
	if !result.IsJSON() {
		return nil, fmt.Errorf("%s: %w: expected json tree", CommandGetTree, ErrMalformedPayload)
	}
	root, err := tree.Decode(result.JSON)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", CommandGetTree, ErrMalformedPayload, err)
	}
	return root, nil
}

// CreateNode creates name under parentID, or at the root for
// tree.RootParentID.
func (g *Gateway) CreateNode(ctx context.Context, name, parentID string) (Result, error) {
	if parentID == "" {
		parentID = tree.RootParentID
	}
	return g.Execute(ctx, CommandCreate, name, parentID)
}

func (g *Gateway) EditNode(ctx context.Context, id, newName string) (Result, error) {
	return g.Execute(ctx, CommandEdit, newName, id)
}

func (g *Gateway) DeleteNode(ctx context.Context, id string) (Result, error) {
	return g.Execute(ctx, CommandDelete, id)
}

// SetCompleted marks the node complete, or incomplete when completed is
// false.
func (g *Gateway) SetCompleted(ctx context.Context, id string, completed bool) (Result, error) {
	if completed {
		return g.Execute(ctx, CommandComplete, id)
	}
	return g.Execute(ctx, CommandUncomplete, id)
}

// Auth runs the interactive login flow of the CLI.
func (g *Gateway) Auth(ctx context.Context) (Result, error) {
	result, err := g.Execute(ctx, CommandAuth)
	if err != nil {
		return result, err
	}
	if result.SessionID == "" {
		return result, &CommandError{Command: CommandAuth, Output: truncate(result.Text, 256), Err: ErrMalformedPayload}
	}
	return result, nil
}
