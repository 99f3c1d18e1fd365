package client

import (
	"context"
	"strings"

	"github.com/dwizi/flowy/internal/launcher"
	"github.com/dwizi/flowy/internal/mutation"
)

// Backend is what the terminal launcher and the MCP tools query. Client
// reaches a server over HTTP; Local drives an in-process launcher.
type Backend interface {
	Query(ctx context.Context, text string) ([]launcher.Item, error)
	Invoke(ctx context.Context, input ActionRequest) (ActionResult, error)
}

type Invoker interface {
	Query(text string) []launcher.Item
	Invoke(ctx context.Context, query, itemID, actionID, input string) (*mutation.Pending, error)
}

type Local struct {
	launcher Invoker
}

func NewLocal(launcher Invoker) *Local {
	return &Local{launcher: launcher}
}

func (l *Local) Query(_ context.Context, text string) ([]launcher.Item, error) {
	return l.launcher.Query(text), nil
}

func (l *Local) Invoke(ctx context.Context, input ActionRequest) (ActionResult, error) {
	pending, err := l.launcher.Invoke(ctx, input.Query, strings.TrimSpace(input.ItemID), strings.TrimSpace(input.ActionID), input.Input)
	if err != nil {
		return ActionResult{}, err
	}
	result := Accepted(pending)
	if !input.Wait {
		return result, nil
	}
	select {
	case <-pending.Done():
	case <-ctx.Done():
		return result, ctx.Err()
	}
	return Settle(result, pending.Wait()), nil
}

// Accepted describes a mutation whose local patch is in and whose
// remote stage is still running. The HTTP server answers with it too.
func Accepted(pending *mutation.Pending) ActionResult {
	return ActionResult{
		MutationID: pending.MutationID,
		Kind:       string(pending.Kind),
		NodeID:     pending.NodeID,
		ParentID:   pending.ParentID,
		Patched:    pending.Patched,
		Status:     "pending",
	}
}

// Settle copies a finished mutation outcome onto result.
func Settle(result ActionResult, outcome mutation.Outcome) ActionResult {
	result.Status = "succeeded"
	result.RemoteID = outcome.RemoteID
	result.DurationMS = outcome.Duration.Milliseconds()
	if outcome.Err != nil {
		result.Status = "failed"
		result.Error = outcome.Err.Error()
	}
	if outcome.RefreshErr != nil {
		result.RefreshError = outcome.RefreshErr.Error()
	}
	return result
}
