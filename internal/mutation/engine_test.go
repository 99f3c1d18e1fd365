package mutation

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dwizi/flowy/internal/cache"
	"github.com/dwizi/flowy/internal/remote"
	"github.com/dwizi/flowy/internal/store"
	"github.com/dwizi/flowy/internal/tree"
)

type gatewayCall struct {
	Command string
	Args    []string
}

type fakeGateway struct {
	mu     sync.Mutex
	calls  []gatewayCall
	result remote.Result
	err    error
	// release, when set, holds every call until it is closed.
	release chan struct{}
}

func (g *fakeGateway) record(command string, args ...string) (remote.Result, error) {
	if g.release != nil {
		<-g.release
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, gatewayCall{Command: command, Args: args})
	return g.result, g.err
}

func (g *fakeGateway) CreateNode(_ context.Context, name, parentID string) (remote.Result, error) {
	return g.record(remote.CommandCreate, name, parentID)
}

func (g *fakeGateway) EditNode(_ context.Context, id, newName string) (remote.Result, error) {
	return g.record(remote.CommandEdit, newName, id)
}

func (g *fakeGateway) DeleteNode(_ context.Context, id string) (remote.Result, error) {
	return g.record(remote.CommandDelete, id)
}

func (g *fakeGateway) SetCompleted(_ context.Context, id string, completed bool) (remote.Result, error) {
	if completed {
		return g.record(remote.CommandComplete, id)
	}
	return g.record(remote.CommandUncomplete, id)
}

func (g *fakeGateway) Auth(_ context.Context) (remote.Result, error) {
	return g.record(remote.CommandAuth)
}

func (g *fakeGateway) snapshot() []gatewayCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]gatewayCall, len(g.calls))
	copy(out, g.calls)
	return out
}

// fakeRefresher replaces the cache with serverTree when set.
type fakeRefresher struct {
	mu         sync.Mutex
	cache      *cache.Cache
	serverTree tree.Tree
	err        error
	calls      int
}

func (r *fakeRefresher) Refresh(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return r.err
	}
	if r.serverTree != nil {
		r.cache.Replace(tree.Clone(r.serverTree), time.Now())
	}
	return nil
}

func (r *fakeRefresher) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type fakeJournal struct {
	mu      sync.Mutex
	entries []store.CreateMutationInput
}

func (j *fakeJournal) CreateMutation(_ context.Context, input store.CreateMutationInput) (store.Mutation, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, input)
	return store.Mutation{ID: input.ID, Kind: input.Kind}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(t *testing.T, initial tree.Tree) (*Engine, *cache.Cache, *fakeGateway, *fakeRefresher) {
	t.Helper()
	c := cache.New()
	if initial != nil {
		c.Replace(initial, time.Now())
	}
	gw := &fakeGateway{result: remote.Result{JSON: json.RawMessage(`{}`)}}
	refresher := &fakeRefresher{cache: c}
	return New(c, gw, refresher, testLogger()), c, gw, refresher
}

func sampleTree() tree.Tree {
	return tree.Tree{
		{ID: "a", Name: "A", Children: []*tree.Node{
			{ID: "b", Name: "B"},
			{ID: "c", Name: "C", Priority: 1},
		}},
		{ID: "d", Name: "D", Completed: true},
	}
}

func TestCreateAtRootOnEmptyTree(t *testing.T) {
	engine, c, gw, refresher := newTestEngine(t, tree.Tree{})
	route := tree.ParseRoute("NewTopic")

	if got := tree.Resolve(c.Snapshot().Tree, route); got.Kind != tree.KindNotFound {
		t.Fatalf("expected NotFound before create, got %s", got.Kind)
	}

	pending, err := engine.Create(context.Background(), route)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !pending.Patched || pending.ParentID != tree.RootParentID {
		t.Fatalf("unexpected pending: %+v", pending)
	}
	root := c.Snapshot().Tree
	if len(root) != 1 || root[0].Name != "NewTopic" || !tree.IsTempID(root[0].ID) {
		t.Fatalf("expected temp node at root, got %+v", root)
	}
	if root[0].Children == nil || len(root[0].Children) != 0 {
		t.Fatalf("expected empty non-nil children on created node")
	}

	outcome := pending.Wait()
	if outcome.Err != nil {
		t.Fatalf("unexpected outcome error: %v", outcome.Err)
	}
	calls := gw.snapshot()
	if len(calls) != 1 || calls[0].Command != remote.CommandCreate {
		t.Fatalf("unexpected gateway calls: %+v", calls)
	}
	if strings.Join(calls[0].Args, "|") != "NewTopic|None" {
		t.Fatalf("unexpected create args: %v", calls[0].Args)
	}
	if refresher.count() != 1 {
		t.Fatalf("expected one refresh, got %d", refresher.count())
	}
}

func TestCreateUnderExistingParent(t *testing.T) {
	engine, c, gw, _ := newTestEngine(t, sampleTree())

	pending, err := engine.Create(context.Background(), tree.ParseRoute("A > B > Child"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	pending.Wait()
	if pending.ParentID != "b" {
		t.Fatalf("expected parent b, got %q", pending.ParentID)
	}
	b := tree.FindByID(c.Snapshot().Tree, "b")
	if b == nil || len(b.Children) != 1 || b.Children[0].Name != "Child" {
		t.Fatalf("expected child appended to former leaf, got %+v", b)
	}
	if calls := gw.snapshot(); calls[0].Args[1] != "b" {
		t.Fatalf("expected parent id b in remote call, got %v", calls[0].Args)
	}
}

func TestCreateFallsBackToRootWhenParentMissing(t *testing.T) {
	engine, c, _, _ := newTestEngine(t, sampleTree())

	pending, err := engine.Create(context.Background(), tree.ParseRoute("Nowhere > Thing"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	pending.Wait()
	if pending.ParentID != tree.RootParentID {
		t.Fatalf("expected root parent, got %q", pending.ParentID)
	}
	root := c.Snapshot().Tree
	if root[len(root)-1].Name != "Thing" {
		t.Fatalf("expected node appended to root, got %+v", root[len(root)-1])
	}
}

func TestRemoveThenQuery(t *testing.T) {
	engine, c, gw, _ := newTestEngine(t, sampleTree())
	target := tree.FindByID(c.Snapshot().Tree, "b")

	pending, err := engine.Remove(context.Background(), *target)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if !pending.Patched {
		t.Fatal("expected patch applied")
	}
	resolution := tree.Resolve(c.Snapshot().Tree, tree.ParseRoute("A"))
	if resolution.Kind != tree.KindCollection || len(resolution.Children) != 1 || resolution.Children[0].ID != "c" {
		t.Fatalf("expected only C under A, got %+v", resolution.Children)
	}
	pending.Wait()
	if calls := gw.snapshot(); calls[0].Command != remote.CommandDelete || calls[0].Args[0] != "b" {
		t.Fatalf("unexpected remote call: %+v", calls)
	}
}

func TestToggleSymmetry(t *testing.T) {
	engine, c, gw, refresher := newTestEngine(t, sampleTree())
	refresher.err = errors.New("offline")

	first := *tree.FindByID(c.Snapshot().Tree, "c")
	pending, err := engine.ToggleComplete(context.Background(), first)
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	pending.Wait()
	if !tree.FindByID(c.Snapshot().Tree, "c").Completed {
		t.Fatal("expected node completed after first toggle")
	}

	second := *tree.FindByID(c.Snapshot().Tree, "c")
	pending, err = engine.ToggleComplete(context.Background(), second)
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	outcome := pending.Wait()
	if tree.FindByID(c.Snapshot().Tree, "c").Completed {
		t.Fatal("expected original completion restored")
	}
	if outcome.RefreshErr == nil {
		t.Fatal("expected refresh error to be reported")
	}

	calls := gw.snapshot()
	if calls[0].Command != remote.CommandComplete || calls[1].Command != remote.CommandUncomplete {
		t.Fatalf("unexpected directions: %+v", calls)
	}
}

func TestEditRenamesAndRefreshOverwritesPatch(t *testing.T) {
	engine, c, gw, refresher := newTestEngine(t, sampleTree())
	refresher.serverTree = sampleTree()
	gw.release = make(chan struct{})

	target := *tree.FindByID(c.Snapshot().Tree, "a")
	pending, err := engine.Edit(context.Background(), target, "  Renamed ")
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if got := tree.FindByID(c.Snapshot().Tree, "a").Name; got != "Renamed" {
		t.Fatalf("expected optimistic rename, got %q", got)
	}
	close(gw.release)
	pending.Wait()

	if got := tree.FindByID(c.Snapshot().Tree, "a").Name; got != "A" {
		t.Fatalf("expected server tree to win after refresh, got %q", got)
	}
	calls := gw.snapshot()
	if strings.Join(calls[0].Args, "|") != "Renamed|a" {
		t.Fatalf("unexpected edit args: %v", calls[0].Args)
	}
}

func TestMissingTargetStillCallsRemoteAndRefreshes(t *testing.T) {
	engine, c, gw, refresher := newTestEngine(t, sampleTree())
	before := c.Snapshot().Version

	pending, err := engine.Remove(context.Background(), tree.Node{ID: "ghost"})
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if pending.Patched {
		t.Fatal("expected patch miss")
	}
	if c.Snapshot().Version != before {
		t.Fatal("patch miss must not publish a snapshot")
	}
	outcome := pending.Wait()
	if outcome.Patched {
		t.Fatal("outcome should carry the patch miss")
	}
	if len(gw.snapshot()) != 1 || refresher.count() != 1 {
		t.Fatalf("expected remote call and refresh, got %d calls and %d refreshes", len(gw.snapshot()), refresher.count())
	}
}

func TestRemoteFailureStillRefreshes(t *testing.T) {
	engine, c, gw, refresher := newTestEngine(t, sampleTree())
	gw.err = &remote.CommandError{Command: remote.CommandDelete, Err: remote.ErrUnparseable}

	target := *tree.FindByID(c.Snapshot().Tree, "d")
	pending, err := engine.Remove(context.Background(), target)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	outcome := pending.Wait()
	if !errors.Is(outcome.Err, remote.ErrUnparseable) {
		t.Fatalf("expected unparseable error, got %v", outcome.Err)
	}
	if refresher.count() != 1 {
		t.Fatalf("expected refresh after failure, got %d", refresher.count())
	}
}

func TestPreconditions(t *testing.T) {
	engine, c, gw, refresher := newTestEngine(t, sampleTree())
	ctx := context.Background()
	before := c.Snapshot().Version

	if _, err := engine.Create(ctx, tree.ParseRoute(" > ")); !errors.Is(err, ErrEmptyRoute) {
		t.Fatalf("expected ErrEmptyRoute, got %v", err)
	}
	if _, err := engine.Edit(ctx, tree.Node{}, "x"); !errors.Is(err, ErrMissingID) {
		t.Fatalf("expected ErrMissingID, got %v", err)
	}
	if _, err := engine.Edit(ctx, tree.Node{ID: "a", Name: "A"}, "  "); !errors.Is(err, ErrMissingName) {
		t.Fatalf("expected ErrMissingName, got %v", err)
	}
	if _, err := engine.Edit(ctx, tree.Node{ID: "a", Name: "A"}, "A"); !errors.Is(err, ErrUnchanged) {
		t.Fatalf("expected ErrUnchanged, got %v", err)
	}
	if _, err := engine.Edit(ctx, tree.Node{ID: "a", Name: "<b>A</b>"}, " A "); !errors.Is(err, ErrUnchanged) {
		t.Fatalf("expected ErrUnchanged for markup name, got %v", err)
	}
	if _, err := engine.Remove(ctx, tree.Node{}); !errors.Is(err, ErrMissingID) {
		t.Fatalf("expected ErrMissingID, got %v", err)
	}
	if _, err := engine.ToggleComplete(ctx, tree.Node{}); !errors.Is(err, ErrMissingID) {
		t.Fatalf("expected ErrMissingID, got %v", err)
	}
	engine.Wait()
	if len(gw.snapshot()) != 0 || refresher.count() != 0 || c.Snapshot().Version != before {
		t.Fatal("rejected mutations must not patch, call or refresh")
	}
}

func TestJournalRecordsOutcome(t *testing.T) {
	engine, c, gw, _ := newTestEngine(t, sampleTree())
	journal := &fakeJournal{}
	engine.SetJournal(journal)
	gw.result = remote.Result{JSON: json.RawMessage(`{"id":"a"}`)}

	target := *tree.FindByID(c.Snapshot().Tree, "a")
	pending, err := engine.Edit(context.Background(), target, "Alpha")
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	outcome := pending.Wait()
	if outcome.RemoteID != "a" {
		t.Fatalf("expected remote id from payload, got %q", outcome.RemoteID)
	}

	journal.mu.Lock()
	defer journal.mu.Unlock()
	if len(journal.entries) != 1 {
		t.Fatalf("expected one journal entry, got %d", len(journal.entries))
	}
	entry := journal.entries[0]
	if entry.ID != pending.MutationID || entry.Kind != "edit" || !entry.Succeeded || !entry.Patched || entry.Name != "Alpha" {
		t.Fatalf("unexpected journal entry: %+v", entry)
	}
}

func TestReauthenticateRefreshesWithoutPatch(t *testing.T) {
	engine, c, gw, refresher := newTestEngine(t, sampleTree())
	gw.result = remote.Result{Text: "Found sessionid: abc123", SessionID: "abc123"}
	before := c.Snapshot().Version

	pending, err := engine.Reauthenticate(context.Background())
	if err != nil {
		t.Fatalf("reauthenticate: %v", err)
	}
	outcome := pending.Wait()
	if outcome.Err != nil || outcome.Kind != KindAuth {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if c.Snapshot().Version != before {
		t.Fatal("auth must not patch the cache")
	}
	if gw.snapshot()[0].Command != remote.CommandAuth || refresher.count() != 1 {
		t.Fatal("expected auth call followed by refresh")
	}
}

func TestCallerCancellationDoesNotAbortRemoteStage(t *testing.T) {
	engine, c, gw, refresher := newTestEngine(t, sampleTree())
	ctx, cancel := context.WithCancel(context.Background())

	target := *tree.FindByID(c.Snapshot().Tree, "b")
	if _, err := engine.Remove(ctx, target); err != nil {
		t.Fatalf("remove: %v", err)
	}
	cancel()
	engine.Wait()
	if len(gw.snapshot()) != 1 || refresher.count() != 1 {
		t.Fatal("expected remote stage to finish after caller cancellation")
	}
}

func TestMaskSecret(t *testing.T) {
	if got := maskSecret("abcdefghij"); got != "abc****hij" {
		t.Fatalf("unexpected mask: %q", got)
	}
	if got := maskSecret("abc"); got != "***" {
		t.Fatalf("unexpected short mask: %q", got)
	}
}
