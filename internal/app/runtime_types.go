package app

import (
	"log/slog"
	"net/http"

	"github.com/gofrs/flock"

	"github.com/dwizi/flowy/internal/cache"
	"github.com/dwizi/flowy/internal/config"
	"github.com/dwizi/flowy/internal/heartbeat"
	"github.com/dwizi/flowy/internal/launcher"
	"github.com/dwizi/flowy/internal/mutation"
	"github.com/dwizi/flowy/internal/remote"
	"github.com/dwizi/flowy/internal/scheduler"
	"github.com/dwizi/flowy/internal/store"
	"github.com/dwizi/flowy/internal/watcher"
)

type Options struct {
	Version string
	// HTTP starts the API server in Run.
	HTTP bool
	// Background starts the refresh schedule and the session watcher in Run.
	// One-shot commands leave it off and call Prime instead.
	Background bool
}

type Runtime struct {
	cfg              config.Config
	opts             Options
	logger           *slog.Logger
	lock             *flock.Flock
	store            *store.Store
	cache            *cache.Cache
	gateway          *remote.Gateway
	scheduler        *scheduler.Service
	engine           *mutation.Engine
	launcher         *launcher.Adapter
	watcher          *watcher.Service
	httpServer       *http.Server
	heartbeat        *heartbeat.Registry
	heartbeatMonitor *heartbeat.Monitor
}
