package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dwizi/flowy/internal/cache"
	"github.com/dwizi/flowy/internal/heartbeat"
	"github.com/dwizi/flowy/internal/launcher"
	"github.com/dwizi/flowy/internal/mutation"
	"github.com/dwizi/flowy/internal/scheduler"
	"github.com/dwizi/flowy/internal/store"
)

type Launcher interface {
	Query(text string) []launcher.Item
	Invoke(ctx context.Context, query, itemID, actionID, input string) (*mutation.Pending, error)
}

type Refresher interface {
	Refresh(ctx context.Context) error
	Status() scheduler.Status
}

type Journal interface {
	ListMutations(ctx context.Context, input store.ListMutationsInput) ([]store.Mutation, error)
}

type Dependencies struct {
	Launcher            Launcher
	Cache               *cache.Cache
	Scheduler           Refresher
	Journal             Journal
	Logger              *slog.Logger
	Heartbeat           *heartbeat.Registry
	HeartbeatStaleAfter time.Duration
	Version             string
}

type router struct {
	deps Dependencies
}

func NewRouter(deps Dependencies) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	rt := &router{deps: deps}
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.handleHealth)
	mux.HandleFunc("/readyz", rt.handleReady)
	mux.HandleFunc("/api/v1/info", rt.handleInfo)
	mux.HandleFunc("/api/v1/query", rt.handleQuery)
	mux.HandleFunc("/api/v1/actions", rt.handleActions)
	mux.HandleFunc("/api/v1/tree", rt.handleTree)
	mux.HandleFunc("/api/v1/refresh", rt.handleRefresh)
	mux.HandleFunc("/api/v1/status", rt.handleStatus)
	mux.HandleFunc("/api/v1/journal", rt.handleJournal)
	mux.HandleFunc("/api/v1/events", rt.handleEvents)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func allowMethod(w http.ResponseWriter, req *http.Request, method string) bool {
	if req.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	return false
}
