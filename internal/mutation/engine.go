package mutation

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dwizi/flowy/internal/cache"
	"github.com/dwizi/flowy/internal/remote"
	"github.com/dwizi/flowy/internal/store"
	"github.com/dwizi/flowy/internal/tree"
)

var (
	ErrEmptyRoute  = errors.New("route is empty")
	ErrMissingID   = errors.New("node id is required")
	ErrMissingName = errors.New("new name is required")
	ErrUnchanged   = errors.New("new name equals current name")
)

type Kind string

const (
	KindCreate Kind = "create"
	KindEdit   Kind = "edit"
	KindRemove Kind = "remove"
	KindToggle Kind = "toggle"
	KindAuth   Kind = "auth"
)

type Gateway interface {
	CreateNode(ctx context.Context, name, parentID string) (remote.Result, error)
	EditNode(ctx context.Context, id, newName string) (remote.Result, error)
	DeleteNode(ctx context.Context, id string) (remote.Result, error)
	SetCompleted(ctx context.Context, id string, completed bool) (remote.Result, error)
	Auth(ctx context.Context) (remote.Result, error)
}

type Refresher interface {
	Refresh(ctx context.Context) error
}

type Journal interface {
	CreateMutation(ctx context.Context, input store.CreateMutationInput) (store.Mutation, error)
}

// Outcome is what became of a mutation once the CLI call and the follow-up
// refresh have both settled.
type Outcome struct {
	MutationID string
	Kind       Kind
	NodeID     string
	ParentID   string
	RemoteID   string
	Patched    bool
	Err        error
	RefreshErr error
	Duration   time.Duration
}

// Pending is returned as soon as the local patch is applied.
type Pending struct {
	MutationID string
	Kind       Kind
	NodeID     string
	ParentID   string
	Patched    bool

	done    chan struct{}
	outcome Outcome
}

func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the remote call and the refresh after it have settled.
func (p *Pending) Wait() Outcome {
	<-p.done
	return p.outcome
}

type Engine struct {
	cache     *cache.Cache
	gateway   Gateway
	refresher Refresher
	journal   Journal
	logger    *slog.Logger
	inflight  sync.WaitGroup
}

func New(c *cache.Cache, gateway Gateway, refresher Refresher, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cache:     c,
		gateway:   gateway,
		refresher: refresher,
		logger:    logger,
	}
}

func (e *Engine) SetJournal(journal Journal) {
	e.journal = journal
}

// Wait blocks until every dispatched mutation has settled.
func (e *Engine) Wait() {
	e.inflight.Wait()
}

// Create appends a placeholder node named after the last route segment
// under the node the rest of the route points at, or at the root when that
// does not resolve.
func (e *Engine) Create(ctx context.Context, route tree.Route) (*Pending, error) {
	if route.IsEmpty() {
		return nil, ErrEmptyRoute
	}
	name := route.Last()
	node := &tree.Node{ID: tree.NewTempID(), Name: name, Children: []*tree.Node{}}
	parentID := tree.RootParentID
	patched, _ := e.cache.Patch(func(root *tree.Tree) bool {
		parentID, _ = tree.ResolveParent(*root, route.Parent())
		return tree.AppendChild(root, parentID, node)
	})
	pending := e.newPending(KindCreate, node.ID, parentID, patched)
	e.logger.Info("node create requested", "mutation_id", pending.MutationID, "name", name, "route", route.String(), "parent_id", parentID, "temp_id", node.ID)

	e.dispatch(ctx, pending, store.CreateMutationInput{Name: name, Route: route.String()},
		func(runCtx context.Context) (remote.Result, error) {
			return e.gateway.CreateNode(runCtx, name, parentID)
		},
		remote.CreatedID,
	)
	return pending, nil
}

// Edit renames target. The new name is compared with the visible name,
// so retyping it leaves stored markup alone.
func (e *Engine) Edit(ctx context.Context, target tree.Node, newName string) (*Pending, error) {
	if strings.TrimSpace(target.ID) == "" {
		return nil, ErrMissingID
	}
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return nil, ErrMissingName
	}
	if newName == tree.PlainName(target.Name) {
		return nil, ErrUnchanged
	}
	patched, _ := e.cache.Patch(func(root *tree.Tree) bool {
		return tree.Rename(root, target.ID, newName)
	})
	pending := e.newPending(KindEdit, target.ID, "", patched)
	e.logger.Info("node edit requested", "mutation_id", pending.MutationID, "node_id", target.ID, "name", newName)

	e.dispatch(ctx, pending, store.CreateMutationInput{Name: newName},
		func(runCtx context.Context) (remote.Result, error) {
			return e.gateway.EditNode(runCtx, target.ID, newName)
		},
		remote.EditedID,
	)
	return pending, nil
}

// Remove deletes target and its subtree.
func (e *Engine) Remove(ctx context.Context, target tree.Node) (*Pending, error) {
	if strings.TrimSpace(target.ID) == "" {
		return nil, ErrMissingID
	}
	patched, _ := e.cache.Patch(func(root *tree.Tree) bool {
		return tree.Remove(root, target.ID)
	})
	pending := e.newPending(KindRemove, target.ID, "", patched)
	e.logger.Info("node remove requested", "mutation_id", pending.MutationID, "node_id", target.ID)

	e.dispatch(ctx, pending, store.CreateMutationInput{Name: target.Name},
		func(runCtx context.Context) (remote.Result, error) {
			return e.gateway.DeleteNode(runCtx, target.ID)
		},
		remote.AffectedID,
	)
	return pending, nil
}

// ToggleComplete flips target's completion. The CLI direction follows the
// flag as the caller saw it, not the cache at dispatch time.
func (e *Engine) ToggleComplete(ctx context.Context, target tree.Node) (*Pending, error) {
	if strings.TrimSpace(target.ID) == "" {
		return nil, ErrMissingID
	}
	complete := !target.Completed
	patched, _ := e.cache.Patch(func(root *tree.Tree) bool {
		return tree.ToggleCompleted(root, target.ID)
	})
	pending := e.newPending(KindToggle, target.ID, "", patched)
	e.logger.Info("node completion toggle requested", "mutation_id", pending.MutationID, "node_id", target.ID, "complete", complete)

	e.dispatch(ctx, pending, store.CreateMutationInput{Name: target.Name},
		func(runCtx context.Context) (remote.Result, error) {
			return e.gateway.SetCompleted(runCtx, target.ID, complete)
		},
		remote.AffectedID,
	)
	return pending, nil
}

// Reauthenticate runs the CLI login flow and refreshes afterwards whatever
// the outcome. Nothing is patched.
func (e *Engine) Reauthenticate(ctx context.Context) (*Pending, error) {
	pending := e.newPending(KindAuth, "", "", false)
	e.logger.Info("reauthentication requested", "mutation_id", pending.MutationID)

	e.dispatch(ctx, pending, store.CreateMutationInput{},
		func(runCtx context.Context) (remote.Result, error) {
			result, err := e.gateway.Auth(runCtx)
			if err == nil {
				e.logger.Info("reauthenticated", "session_id", maskSecret(result.SessionID))
			}
			return result, err
		},
		nil,
	)
	return pending, nil
}

func (e *Engine) newPending(kind Kind, nodeID, parentID string, patched bool) *Pending {
	pending := &Pending{
		MutationID: "mut_" + uuid.NewString(),
		Kind:       kind,
		NodeID:     nodeID,
		ParentID:   parentID,
		Patched:    patched,
		done:       make(chan struct{}),
	}
	if !patched && kind != KindAuth {
		e.logger.Warn("optimistic patch skipped; node not in cache", "mutation_id", pending.MutationID, "kind", string(kind), "node_id", nodeID)
	}
	return pending
}

// dispatch runs the CLI call and then the refresh on a goroutine detached
// from the caller's cancellation. The refresh runs no matter how the call
// ended.
func (e *Engine) dispatch(
	ctx context.Context,
	pending *Pending,
	journal store.CreateMutationInput,
	call func(context.Context) (remote.Result, error),
	extractID func(json.RawMessage) (string, error),
) {
	e.inflight.Add(1)
	runCtx := context.WithoutCancel(ctx)
	go func() {
		defer e.inflight.Done()
		started := time.Now().UTC()
		outcome := Outcome{
			MutationID: pending.MutationID,
			Kind:       pending.Kind,
			NodeID:     pending.NodeID,
			ParentID:   pending.ParentID,
			Patched:    pending.Patched,
		}

		result, err := call(runCtx)
		outcome.Err = err
		logger := e.logger.With("mutation_id", pending.MutationID, "kind", string(pending.Kind), "node_id", pending.NodeID)
		switch {
		case err != nil:
			logger.Warn("workflowy command failed", "error", err)
		case extractID != nil:
			remoteID, extractErr := extractID(result.JSON)
			if extractErr != nil {
				logger.Warn("could not read node id from workflowy response", "error", extractErr)
			} else {
				outcome.RemoteID = remoteID
				logger.Info("workflowy command succeeded", "remote_id", remoteID, "duration", result.Duration.String())
			}
		default:
			logger.Info("workflowy command succeeded", "duration", result.Duration.String())
		}

		if e.refresher != nil {
			if refreshErr := e.refresher.Refresh(runCtx); refreshErr != nil {
				outcome.RefreshErr = refreshErr
				logger.Warn("refresh after mutation failed", "error", refreshErr)
			}
		}
		outcome.Duration = time.Since(started)
		e.record(runCtx, journal, outcome, started)

		pending.outcome = outcome
		close(pending.done)
	}()
}

func (e *Engine) record(ctx context.Context, input store.CreateMutationInput, outcome Outcome, started time.Time) {
	if e.journal == nil {
		return
	}
	input.ID = outcome.MutationID
	input.Kind = string(outcome.Kind)
	input.NodeID = outcome.NodeID
	input.RemoteID = outcome.RemoteID
	input.ParentID = outcome.ParentID
	input.Patched = outcome.Patched
	input.Succeeded = outcome.Err == nil
	if outcome.Err != nil {
		input.Error = outcome.Err.Error()
	}
	if outcome.RefreshErr != nil {
		input.RefreshError = outcome.RefreshErr.Error()
	}
	input.StartedAt = started
	input.Duration = outcome.Duration
	if _, err := e.journal.CreateMutation(ctx, input); err != nil {
		e.logger.Error("journal mutation failed", "mutation_id", outcome.MutationID, "error", err)
	}
}

func maskSecret(value string) string {
	if len(value) <= 6 {
		return strings.Repeat("*", len(value))
	}
	return value[:3] + strings.Repeat("*", len(value)-6) + value[len(value)-3:]
}
