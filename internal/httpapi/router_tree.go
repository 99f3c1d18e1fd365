package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/dwizi/flowy/internal/store"
	"github.com/dwizi/flowy/internal/tree"
)

// handleTree returns the cached tree, or the children at ?route=.
func (r *router) handleTree(w http.ResponseWriter, req *http.Request) {
	if !allowMethod(w, req, http.MethodGet) {
		return
	}
	if r.deps.Cache == nil {
		writeError(w, http.StatusServiceUnavailable, "cache is not configured")
		return
	}
	snapshot := r.deps.Cache.Snapshot()
	route := tree.ParseRoute(req.URL.Query().Get("route"))
	nodes := []*tree.Node(snapshot.Tree)
	if !route.IsEmpty() {
		children, ok := tree.ChildrenAt(snapshot.Tree, route)
		if !ok {
			writeError(w, http.StatusNotFound, "route not found: "+route.String())
			return
		}
		nodes = children
	}
	if nodes == nil {
		nodes = []*tree.Node{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"state":           snapshot.State,
		"version":         snapshot.Version,
		"route":           route.String(),
		"last_fetched_at": snapshot.LastFetchedAt,
		"nodes":           nodes,
	})
}

func (r *router) handleRefresh(w http.ResponseWriter, req *http.Request) {
	if !allowMethod(w, req, http.MethodPost) {
		return
	}
	if r.deps.Scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler is not configured")
		return
	}
	if err := r.deps.Scheduler.Refresh(req.Context()); err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error":  err.Error(),
			"status": r.deps.Scheduler.Status(),
		})
		return
	}
	writeJSON(w, http.StatusOK, r.deps.Scheduler.Status())
}

func (r *router) handleStatus(w http.ResponseWriter, req *http.Request) {
	if !allowMethod(w, req, http.MethodGet) {
		return
	}
	if r.deps.Scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler is not configured")
		return
	}
	writeJSON(w, http.StatusOK, r.deps.Scheduler.Status())
}

func (r *router) handleJournal(w http.ResponseWriter, req *http.Request) {
	if !allowMethod(w, req, http.MethodGet) {
		return
	}
	if r.deps.Journal == nil {
		writeError(w, http.StatusServiceUnavailable, "journal is disabled")
		return
	}
	values := req.URL.Query()
	limit := 50
	if raw := strings.TrimSpace(values.Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	failedOnly, _ := strconv.ParseBool(values.Get("failed"))
	items, err := r.deps.Journal.ListMutations(req.Context(), store.ListMutationsInput{
		Kind:       values.Get("kind"),
		NodeID:     values.Get("node_id"),
		FailedOnly: failedOnly,
		Limit:      limit,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count": len(items),
		"items": items,
	})
}
