package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dwizi/flowy/internal/cache"
	"github.com/dwizi/flowy/internal/launcher"
	"github.com/dwizi/flowy/internal/mutation"
	"github.com/dwizi/flowy/internal/remote"
	"github.com/dwizi/flowy/internal/tree"
)

type recordingGateway struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (g *recordingGateway) record(command string) (remote.Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, command)
	return remote.Result{Command: command, JSON: json.RawMessage(`{}`)}, g.err
}

func (g *recordingGateway) CreateNode(context.Context, string, string) (remote.Result, error) {
	return g.record(remote.CommandCreate)
}

func (g *recordingGateway) EditNode(context.Context, string, string) (remote.Result, error) {
	return g.record(remote.CommandEdit)
}

func (g *recordingGateway) DeleteNode(context.Context, string) (remote.Result, error) {
	return g.record(remote.CommandDelete)
}

func (g *recordingGateway) SetCompleted(_ context.Context, _ string, completed bool) (remote.Result, error) {
	if completed {
		return g.record(remote.CommandComplete)
	}
	return g.record(remote.CommandUncomplete)
}

func (g *recordingGateway) Auth(context.Context) (remote.Result, error) {
	return g.record(remote.CommandAuth)
}

type noopRefresher struct{}

func (noopRefresher) Refresh(context.Context) error { return nil }

func newLocal(t *testing.T, gw *recordingGateway) (*Local, *cache.Cache) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := cache.New()
	c.Replace(tree.Tree{
		{ID: "w", Name: "Work", Children: []*tree.Node{
			{ID: "call", Name: "Call"},
		}},
	}, time.Now())
	engine := mutation.New(c, gw, noopRefresher{}, logger)
	t.Cleanup(engine.Wait)
	return NewLocal(launcher.New(c, engine, nil, launcher.Config{}, logger)), c
}

func TestLocalQuery(t *testing.T) {
	local, _ := newLocal(t, &recordingGateway{})

	items, err := local.Query(context.Background(), "Work")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(items) != 1 || items[0].ID != "Work>Call" {
		t.Fatalf("unexpected items: %+v", items)
	}
}

func TestLocalInvokeWithoutWaitReturnsPending(t *testing.T) {
	gw := &recordingGateway{}
	local, c := newLocal(t, gw)

	result, err := local.Invoke(context.Background(), ActionRequest{Query: "Work", ItemID: "Work>Call", ActionID: launcher.ActionRemove})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if result.Status != "pending" || !result.Patched || result.Kind != string(mutation.KindRemove) {
		t.Fatalf("unexpected result: %+v", result)
	}
	if tree.FindByID(c.Snapshot().Tree, "call") != nil {
		t.Fatal("expected node removed from cache before the remote call settles")
	}
}

func TestLocalInvokeWaitReportsFailure(t *testing.T) {
	gw := &recordingGateway{err: errors.New("exit status 1")}
	local, _ := newLocal(t, gw)

	result, err := local.Invoke(context.Background(), ActionRequest{Query: "Work", ItemID: "Work>Call", ActionID: launcher.ActionToggle, Wait: true})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if !result.Failed() || result.Error != "exit status 1" {
		t.Fatalf("expected failed result, got %+v", result)
	}
	gw.mu.Lock()
	defer gw.mu.Unlock()
	if len(gw.calls) != 1 || gw.calls[0] != remote.CommandComplete {
		t.Fatalf("unexpected calls: %v", gw.calls)
	}
}

func TestLocalInvokeUnknownItem(t *testing.T) {
	local, _ := newLocal(t, &recordingGateway{})

	_, err := local.Invoke(context.Background(), ActionRequest{Query: "Work", ItemID: "Work>Nope", ActionID: launcher.ActionRemove})
	if !errors.Is(err, launcher.ErrItemNotFound) {
		t.Fatalf("expected item not found, got %v", err)
	}
}

func TestAcceptedAndSettle(t *testing.T) {
	pending := &mutation.Pending{MutationID: "mut_1", Kind: mutation.KindEdit, NodeID: "a", Patched: true}
	result := Accepted(pending)
	if result.Status != "pending" || result.MutationID != "mut_1" || result.Kind != "edit" || !result.Patched {
		t.Fatalf("unexpected accepted result: %+v", result)
	}

	settled := Settle(result, mutation.Outcome{RemoteID: "r-1", Duration: 1500 * time.Millisecond})
	if settled.Status != "succeeded" || settled.RemoteID != "r-1" || settled.DurationMS != 1500 || settled.Failed() {
		t.Fatalf("unexpected settled result: %+v", settled)
	}

	failed := Settle(result, mutation.Outcome{Err: errors.New("exit status 1"), RefreshErr: errors.New("timeout")})
	if !failed.Failed() || failed.Error != "exit status 1" || failed.RefreshError != "timeout" {
		t.Fatalf("unexpected failed result: %+v", failed)
	}
}
