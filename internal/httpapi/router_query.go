package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/dwizi/flowy/internal/client"
	"github.com/dwizi/flowy/internal/launcher"
	"github.com/dwizi/flowy/internal/mutation"
)

type actionRequest struct {
	Query    string `json:"query"`
	ItemID   string `json:"item_id"`
	ActionID string `json:"action_id"`
	Input    string `json:"input"`
	Wait     bool   `json:"wait"`
}

func (r *router) handleQuery(w http.ResponseWriter, req *http.Request) {
	if !allowMethod(w, req, http.MethodGet) {
		return
	}
	if r.deps.Launcher == nil {
		writeError(w, http.StatusServiceUnavailable, "launcher is not configured")
		return
	}
	query := req.URL.Query().Get("q")
	items := r.deps.Launcher.Query(query)
	writeJSON(w, http.StatusOK, map[string]any{
		"query": query,
		"items": items,
	})
}

// handleActions fires one item action. The patch is applied before the
// response; with wait set the response also carries the remote outcome.
func (r *router) handleActions(w http.ResponseWriter, req *http.Request) {
	if !allowMethod(w, req, http.MethodPost) {
		return
	}
	if r.deps.Launcher == nil {
		writeError(w, http.StatusServiceUnavailable, "launcher is not configured")
		return
	}
	var payload actionRequest
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if strings.TrimSpace(payload.ItemID) == "" || strings.TrimSpace(payload.ActionID) == "" {
		writeError(w, http.StatusBadRequest, "item_id and action_id are required")
		return
	}

	pending, err := r.deps.Launcher.Invoke(req.Context(), payload.Query, payload.ItemID, payload.ActionID, payload.Input)
	if err != nil {
		writeError(w, actionErrorStatus(err), err.Error())
		return
	}
	response := client.Accepted(pending)
	if !payload.Wait {
		writeJSON(w, http.StatusAccepted, response)
		return
	}

	select {
	case <-pending.Done():
	case <-req.Context().Done():
		r.deps.Logger.Warn("client left before mutation settled", "mutation_id", pending.MutationID)
		return
	}
	writeJSON(w, http.StatusOK, client.Settle(response, pending.Wait()))
}

func actionErrorStatus(err error) int {
	switch {
	case errors.Is(err, launcher.ErrItemNotFound), errors.Is(err, launcher.ErrActionNotFound):
		return http.StatusNotFound
	case errors.Is(err, mutation.ErrEmptyRoute),
		errors.Is(err, mutation.ErrMissingID),
		errors.Is(err, mutation.ErrMissingName),
		errors.Is(err, mutation.ErrUnchanged):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
