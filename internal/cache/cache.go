package cache

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/dwizi/flowy/internal/tree"
)

type State string

const (
	StateUninitialized State = "uninitialized"
	StateReady         State = "ready"
)

type EventKind string

const (
	EventReplaced EventKind = "replaced"
	EventPatched  EventKind = "patched"
	// EventCurrent is never published; subscribers use it to announce the
	// version they started from.
	EventCurrent EventKind = "current"
)

type Event struct {
	Kind    EventKind `json:"kind"`
	Version uint64    `json:"version"`
	At      time.Time `json:"at"`
}

// Snapshot is an immutable view of the cache. Callers must not modify Tree
// or any node reachable from it.
type Snapshot struct {
	State         State
	Version       uint64
	Tree          tree.Tree
	LastFetchedAt time.Time
	LastPatchedAt time.Time
}

// Cache holds the local copy of the outline. Readers load the current
// snapshot without locking; Replace and Patch serialize on mu and publish a
// fresh snapshot with a single pointer swap.
type Cache struct {
	current atomic.Pointer[Snapshot]
	mu      sync.Mutex

	subsMu  sync.Mutex
	subs    map[int]chan Event
	nextSub int
}

func New() *Cache {
	c := &Cache{subs: map[int]chan Event{}}
	c.current.Store(&Snapshot{State: StateUninitialized, Tree: tree.Tree{}})
	return c
}

func (c *Cache) Snapshot() *Snapshot {
	return c.current.Load()
}

func (c *Cache) Ready() bool {
	return c.current.Load().State == StateReady
}

// Replace installs the server tree wholesale, discarding any local patches.
func (c *Cache) Replace(root tree.Tree, fetchedAt time.Time) *Snapshot {
	if root == nil {
		root = tree.Tree{}
	}
	c.mu.Lock()
	previous := c.current.Load()
	next := &Snapshot{
		State:         StateReady,
		Version:       previous.Version + 1,
		Tree:          root,
		LastFetchedAt: fetchedAt.UTC(),
	}
	c.current.Store(next)
	c.mu.Unlock()

	c.publish(Event{Kind: EventReplaced, Version: next.Version, At: next.LastFetchedAt})
	return next
}

// Patch applies edit to a private copy of the current tree and publishes it
// when edit reports a change. The state and fetch time carry over.
func (c *Cache) Patch(edit func(root *tree.Tree) bool) (bool, *Snapshot) {
	c.mu.Lock()
	previous := c.current.Load()
	working := tree.Clone(previous.Tree)
	if working == nil {
		working = tree.Tree{}
	}
	if !edit(&working) {
		c.mu.Unlock()
		return false, previous
	}
	now := time.Now().UTC()
	next := &Snapshot{
		State:         previous.State,
		Version:       previous.Version + 1,
		Tree:          working,
		LastFetchedAt: previous.LastFetchedAt,
		LastPatchedAt: now,
	}
	c.current.Store(next)
	c.mu.Unlock()

	c.publish(Event{Kind: EventPatched, Version: next.Version, At: now})
	return true, next
}

// Subscribe returns a channel that receives an event after every swap. Slow
// subscribers miss events rather than stall writers.
func (c *Cache) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 16
	}
	ch := make(chan Event, buffer)
	c.subsMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	c.subsMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.subsMu.Lock()
			delete(c.subs, id)
			c.subsMu.Unlock()
			close(ch)
		})
	}
}

func (c *Cache) publish(event Event) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	for _, ch := range c.subs {
		select {
		case ch <- event:
		default:
		}
	}
}
