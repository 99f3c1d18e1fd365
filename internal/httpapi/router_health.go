package httpapi

import (
	"context"
	"net/http"
	"time"
)

func (r *router) handleHealth(w http.ResponseWriter, req *http.Request) {
	if r.deps.Heartbeat == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	writeJSON(w, http.StatusOK, r.deps.Heartbeat.Snapshot(r.deps.HeartbeatStaleAfter))
}

type pinger interface {
	Ping(ctx context.Context) error
}

// handleReady answers 200 once the first tree has been fetched and the
// journal, when enabled, answers.
func (r *router) handleReady(w http.ResponseWriter, req *http.Request) {
	if r.deps.Cache == nil || !r.deps.Cache.Ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not-ready", "error": "tree not loaded yet"})
		return
	}
	if journal, ok := r.deps.Journal.(pinger); ok {
		ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()
		if err := journal.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not-ready", "error": "journal: " + err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (r *router) handleInfo(w http.ResponseWriter, req *http.Request) {
	payload := map[string]any{
		"name":    "flowy",
		"version": r.deps.Version,
		"journal": r.deps.Journal != nil,
	}
	if r.deps.Scheduler != nil {
		payload["refresh_interval"] = r.deps.Scheduler.Status().Interval
	}
	writeJSON(w, http.StatusOK, payload)
}
