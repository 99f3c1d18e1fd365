package launcher

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/dwizi/flowy/internal/cache"
	"github.com/dwizi/flowy/internal/mutation"
	"github.com/dwizi/flowy/internal/tree"
)

const (
	DefaultAuthToken = "auth"

	ItemLoading = "loading"
	ItemReauth  = "reauth"
	ItemSession = "session"

	ActionToggle = "tcomplete"
	ActionEdit   = "edit"
	ActionRemove = "remove"
	ActionCreate = "create"
	ActionReauth = "reauth"
)

var (
	ErrItemNotFound   = errors.New("item not found")
	ErrActionNotFound = errors.New("action not found")
)

// Mutator is the slice of the mutation engine that actions drive.
type Mutator interface {
	Create(ctx context.Context, route tree.Route) (*mutation.Pending, error)
	Edit(ctx context.Context, target tree.Node, newName string) (*mutation.Pending, error)
	Remove(ctx context.Context, target tree.Node) (*mutation.Pending, error)
	ToggleComplete(ctx context.Context, target tree.Node) (*mutation.Pending, error)
	Reauthenticate(ctx context.Context) (*mutation.Pending, error)
}

type Health interface {
	LastRefreshFailed() bool
}

type Item struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Subtitle   string   `json:"subtitle,omitempty"`
	Icon       string   `json:"icon,omitempty"`
	ActionText string   `json:"action_text,omitempty"`
	Actions    []Action `json:"actions"`

	// position of the backing node among its stored siblings
	order int
}

type Action struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	NeedsInput bool   `json:"needs_input,omitempty"`

	invoke func(ctx context.Context, input string) (*mutation.Pending, error)
}

func (a Action) Invoke(ctx context.Context, input string) (*mutation.Pending, error) {
	if a.invoke == nil {
		return nil, ErrActionNotFound
	}
	return a.invoke(ctx, input)
}

type Config struct {
	Icon      string
	AuthToken string
}

// Adapter turns queries into launcher items. It only reads cache
// snapshots; every change goes through the Mutator.
type Adapter struct {
	cache     *cache.Cache
	mutator   Mutator
	health    Health
	icon      string
	authToken string
	logger    *slog.Logger
}

func New(c *cache.Cache, mutator Mutator, health Health, cfg Config, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	authToken := strings.TrimSpace(cfg.AuthToken)
	if authToken == "" {
		authToken = DefaultAuthToken
	}
	return &Adapter{
		cache:     c,
		mutator:   mutator,
		health:    health,
		icon:      cfg.Icon,
		authToken: authToken,
		logger:    logger,
	}
}

// Query answers one launcher query against the current snapshot.
func (a *Adapter) Query(text string) []Item {
	snapshot := a.cache.Snapshot()
	if snapshot.State != cache.StateReady {
		return []Item{{ID: ItemLoading, Title: "Loading WorkFlowy tree...", Icon: a.icon, Actions: []Action{}}}
	}
	if strings.TrimSpace(text) == a.authToken {
		return []Item{a.reauthItem()}
	}

	route := tree.ParseRoute(text)
	resolution := tree.Resolve(snapshot.Tree, route)
	var items []Item
	switch resolution.Kind {
	case tree.KindCollection:
		items = a.nodeItems(route, resolution.Children)
	default:
		items = []Item{a.createItem(route)}
	}
	return a.withSessionHint(items)
}

// Invoke re-runs query and fires the named action of the named item.
// Siblings sharing a name share an item ID; the one stored first wins,
// the same node route resolution picks.
func (a *Adapter) Invoke(ctx context.Context, query, itemID, actionID, input string) (*mutation.Pending, error) {
	var match *Item
	items := a.Query(query)
	for i := range items {
		if items[i].ID != itemID {
			continue
		}
		if match == nil || items[i].order < match.order {
			match = &items[i]
		}
	}
	if match == nil {
		return nil, ErrItemNotFound
	}
	for _, action := range match.Actions {
		if action.ID == actionID {
			a.logger.Info("launcher action invoked", "item_id", itemID, "action_id", actionID)
			return action.Invoke(ctx, input)
		}
	}
	return nil, ErrActionNotFound
}

func (a *Adapter) nodeItems(route tree.Route, children []*tree.Node) []Item {
	stored := make(map[*tree.Node]int, len(children))
	for i, node := range children {
		stored[node] = i
	}
	sorted := tree.SortForDisplay(children)
	items := make([]Item, 0, len(sorted))
	for _, node := range sorted {
		target := *node
		name := tree.PlainName(node.Name)
		path := route.Child(name).String()
		title := name
		checkLabel := "Check"
		if node.Completed {
			title = Strikethrough(name)
			checkLabel = "Uncheck"
		}
		items = append(items, Item{
			ID:         path,
			Title:      title,
			Subtitle:   path,
			Icon:       a.icon,
			ActionText: path + tree.Separator,
			order:      stored[node],
			Actions: []Action{
				{ID: ActionToggle, Title: checkLabel, invoke: func(ctx context.Context, _ string) (*mutation.Pending, error) {
					return a.mutator.ToggleComplete(ctx, target)
				}},
				{ID: ActionEdit, Title: "Edit", NeedsInput: true, invoke: func(ctx context.Context, input string) (*mutation.Pending, error) {
					return a.mutator.Edit(ctx, target, input)
				}},
				{ID: ActionRemove, Title: "Remove", invoke: func(ctx context.Context, _ string) (*mutation.Pending, error) {
					return a.mutator.Remove(ctx, target)
				}},
			},
		})
	}
	return items
}

func (a *Adapter) createItem(route tree.Route) Item {
	path := route.String()
	return Item{
		ID:         path,
		Title:      "Create New Node",
		Subtitle:   "New node at " + path,
		Icon:       a.icon,
		ActionText: path,
		Actions: []Action{
			{ID: ActionCreate, Title: "Create Node", invoke: func(ctx context.Context, _ string) (*mutation.Pending, error) {
				return a.mutator.Create(ctx, route)
			}},
		},
	}
}

func (a *Adapter) reauthItem() Item {
	return Item{
		ID:    ItemReauth,
		Title: "Press enter to reauthenticate",
		Icon:  a.icon,
		Actions: []Action{
			{ID: ActionReauth, Title: "Re-Auth", invoke: func(ctx context.Context, _ string) (*mutation.Pending, error) {
				return a.mutator.Reauthenticate(ctx)
			}},
		},
	}
}

func (a *Adapter) withSessionHint(items []Item) []Item {
	if a.health == nil || !a.health.LastRefreshFailed() {
		return items
	}
	return append(items, Item{
		ID:         ItemSession,
		Title:      "WorkFlowy session may need re-authentication",
		Subtitle:   "Type " + a.authToken + " to sign in again",
		Icon:       a.icon,
		ActionText: a.authToken,
		Actions:    []Action{},
	})
}

// Strikethrough overlays U+0336 on every rune of text.
func Strikethrough(text string) string {
	var b strings.Builder
	b.Grow(len(text) * 3)
	for _, r := range text {
		b.WriteRune(r)
		b.WriteRune('\u0336')
	}
	return b.String()
}
