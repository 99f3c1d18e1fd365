package app

import (
	"context"

	"github.com/dwizi/flowy/internal/cache"
	"github.com/dwizi/flowy/internal/client"
	"github.com/dwizi/flowy/internal/launcher"
	"github.com/dwizi/flowy/internal/remote"
	"github.com/dwizi/flowy/internal/scheduler"
	"github.com/dwizi/flowy/internal/store"
)

// Prime runs one refresh so a one-shot command answers from a loaded tree.
// A failed refresh is returned but leaves the runtime usable: queries then
// answer with the loading item and the session hint.
func (r *Runtime) Prime(ctx context.Context) error {
	return r.scheduler.Refresh(ctx)
}

func (r *Runtime) Launcher() *launcher.Adapter {
	return r.launcher
}

// Backend drives the in-process launcher through the same interface the
// HTTP client offers.
func (r *Runtime) Backend() client.Backend {
	return client.NewLocal(r.launcher)
}

func (r *Runtime) Cache() *cache.Cache {
	return r.cache
}

func (r *Runtime) Scheduler() *scheduler.Service {
	return r.scheduler
}

func (r *Runtime) Gateway() *remote.Gateway {
	return r.gateway
}

// Journal is nil unless the journal is enabled.
func (r *Runtime) Journal() *store.Store {
	return r.store
}
