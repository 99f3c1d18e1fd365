package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/dwizi/flowy/internal/cache"
	"github.com/dwizi/flowy/internal/config"
	"github.com/dwizi/flowy/internal/heartbeat"
	"github.com/dwizi/flowy/internal/httpapi"
	"github.com/dwizi/flowy/internal/launcher"
	"github.com/dwizi/flowy/internal/mutation"
	"github.com/dwizi/flowy/internal/remote"
	"github.com/dwizi/flowy/internal/scheduler"
	"github.com/dwizi/flowy/internal/store"
	"github.com/dwizi/flowy/internal/watcher"
)

const lockFileName = "flowy.lock"

func New(cfg config.Config, opts Options, logger *slog.Logger) (*Runtime, error) {
	if logger == nil {
		logger = slog.Default()
	}
	runtime := &Runtime{cfg: cfg, opts: opts, logger: logger}

	// Only one process may own the journal and the listen address.
	if opts.HTTP || cfg.JournalEnabled {
		if err := runtime.acquireLock(); err != nil {
			return nil, err
		}
	}

	if cfg.JournalEnabled {
		if err := os.MkdirAll(filepath.Dir(cfg.JournalPath), 0o755); err != nil {
			runtime.releaseLock()
			return nil, fmt.Errorf("create journal directory: %w", err)
		}
		sqlStore, err := store.New(cfg.JournalPath)
		if err != nil {
			runtime.releaseLock()
			return nil, err
		}
		if err := sqlStore.AutoMigrate(context.Background()); err != nil {
			sqlStore.Close()
			runtime.releaseLock()
			return nil, err
		}
		runtime.store = sqlStore
	}

	if cfg.HeartbeatEnabled {
		runtime.heartbeat = heartbeat.NewRegistry()
		runtime.heartbeat.Starting("runtime", "booting")
		runtime.heartbeat.Starting("scheduler", "initializing")
		runtime.heartbeat.Starting("watcher", "initializing")
		if opts.HTTP {
			runtime.heartbeat.Starting("api", "initializing")
		}
	}

	runtime.cache = cache.New()
	runtime.gateway = remote.New(remote.Config{
		Command: cfg.CLIPath,
		Args:    cfg.CLIArgs,
		Node:    cfg.NodePath,
	}, logger.With("component", "remote"))
	logger.Info("workflowy cli configured", "command", runtime.gateway.Describe())

	runtime.scheduler = scheduler.New(
		runtime.gateway,
		runtime.cache,
		time.Duration(cfg.RefreshSeconds)*time.Second,
		logger.With("component", "scheduler"),
	)
	runtime.engine = mutation.New(runtime.cache, runtime.gateway, runtime.scheduler, logger.With("component", "mutation"))
	if runtime.store != nil {
		runtime.engine.SetJournal(runtime.store)
	}
	runtime.launcher = launcher.New(runtime.cache, runtime.engine, runtime.scheduler, launcher.Config{
		Icon:      cfg.Icon,
		AuthToken: cfg.AuthToken,
	}, logger.With("component", "launcher"))

	if opts.Background && cfg.WatchSession {
		runtime.watcher = runtime.newSessionWatcher()
	} else if runtime.heartbeat != nil {
		runtime.heartbeat.Disabled("watcher", "session watching off")
	}

	if opts.HTTP {
		var journal httpapi.Journal
		if runtime.store != nil {
			journal = runtime.store
		}
		handler := httpapi.NewRouter(httpapi.Dependencies{
			Launcher:            runtime.launcher,
			Cache:               runtime.cache,
			Scheduler:           runtime.scheduler,
			Journal:             journal,
			Logger:              logger.With("component", "api"),
			Heartbeat:           runtime.heartbeat,
			HeartbeatStaleAfter: time.Duration(cfg.HeartbeatStaleSec) * time.Second,
			Version:             opts.Version,
		})
		runtime.httpServer = &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}
	}

	if runtime.heartbeat != nil {
		runtime.scheduler.SetHeartbeatReporter(runtime.heartbeat)
		if runtime.watcher != nil {
			runtime.watcher.SetHeartbeatReporter(runtime.heartbeat)
		}
		runtime.heartbeatMonitor = heartbeat.NewMonitor(runtime.heartbeat, heartbeat.MonitorConfig{
			Interval:     time.Duration(cfg.HeartbeatSec) * time.Second,
			StaleAfter:   time.Duration(cfg.HeartbeatStaleSec) * time.Second,
			Logger:       logger.With("component", "heartbeat-monitor"),
			OnTransition: newHeartbeatNotifier(cfg.DataDir, logger).HandleTransition,
		})
	}
	return runtime, nil
}

// newSessionWatcher refreshes as soon as the CLI rewrites its session file,
// so a fresh login shows up without waiting for the next tick. A missing
// session directory disables watching rather than failing startup.
func (r *Runtime) newSessionWatcher() *watcher.Service {
	path := r.cfg.SessionFile
	if info, err := os.Stat(filepath.Dir(path)); err != nil || !info.IsDir() {
		r.logger.Warn("session directory missing, not watching", "path", path)
		if r.heartbeat != nil {
			r.heartbeat.Disabled("watcher", "session directory missing")
		}
		return nil
	}
	service, err := watcher.New(path, watcher.DefaultDebounce, r.logger.With("component", "watcher"), func(ctx context.Context, changed string) {
		r.logger.Info("session file changed, refreshing", "path", changed)
		if err := r.scheduler.Refresh(ctx); err != nil {
			r.logger.Warn("refresh after session change failed", "error", err)
		}
	})
	if err != nil {
		r.logger.Warn("session watcher unavailable", "error", err)
		if r.heartbeat != nil {
			r.heartbeat.Degrade("watcher", "watcher unavailable", err)
		}
		return nil
	}
	return service
}

func (r *Runtime) acquireLock() error {
	if err := os.MkdirAll(r.cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	lockPath := filepath.Join(r.cfg.DataDir, lockFileName)
	r.lock = flock.New(lockPath)
	locked, err := r.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock %s: %w", lockPath, err)
	}
	if !locked {
		return fmt.Errorf("another flowy instance is using %s", r.cfg.DataDir)
	}
	return nil
}

func (r *Runtime) releaseLock() {
	if r.lock != nil {
		_ = r.lock.Unlock()
	}
}
