package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dwizi/flowy/internal/heartbeat"
)

// Run starts the background components selected by Options and blocks until
// ctx ends or one of them fails.
func (r *Runtime) Run(ctx context.Context) error {
	r.logger.Info("flowy runtime starting", "addr", r.cfg.HTTPAddr, "http", r.opts.HTTP, "journal", r.store != nil)
	if r.heartbeat != nil {
		r.heartbeat.Beat("runtime", "runtime loop started")
	}

	group, groupCtx := errgroup.WithContext(ctx)
	if r.opts.Background {
		group.Go(func() error {
			return runMonitored(groupCtx, r.reporter(), "", 0, r.scheduler.Start)
		})
	}
	if r.watcher != nil {
		group.Go(func() error {
			return runMonitored(groupCtx, r.reporter(), "", 0, r.watcher.Start)
		})
	}
	if r.httpServer != nil {
		group.Go(func() error {
			return runMonitored(groupCtx, r.reporter(), "api", 20*time.Second, func(context.Context) error {
				err := r.httpServer.ListenAndServe()
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			})
		})
		group.Go(func() error {
			<-groupCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return r.httpServer.Shutdown(shutdownCtx)
		})
	}
	if r.heartbeatMonitor != nil {
		group.Go(func() error {
			return r.heartbeatMonitor.Start(groupCtx)
		})
	}
	if !r.opts.Background && r.httpServer == nil {
		group.Go(func() error {
			<-groupCtx.Done()
			return nil
		})
	}

	err := group.Wait()
	if r.heartbeat != nil {
		r.heartbeat.Stopped("runtime", "runtime loop stopped")
	}
	return err
}

func (r *Runtime) reporter() heartbeat.Reporter {
	if r.heartbeat == nil {
		return nil
	}
	return r.heartbeat
}

// Close waits for in-flight mutations so their refresh and journal entry
// land before the journal closes.
func (r *Runtime) Close() error {
	if r.engine != nil {
		r.engine.Wait()
	}
	var err error
	if r.store != nil {
		err = r.store.Close()
	}
	r.releaseLock()
	return err
}

// runMonitored reports component state around run. Components that report
// their own state pass an empty name.
func runMonitored(
	ctx context.Context,
	reporter heartbeat.Reporter,
	component string,
	beatInterval time.Duration,
	run func(context.Context) error,
) error {
	if run == nil {
		return nil
	}
	if reporter == nil || component == "" {
		return run(ctx)
	}
	reporter.Starting(component, "starting")
	reporter.Beat(component, "running")

	var stopHeartbeat func()
	if beatInterval > 0 {
		heartbeatCtx, cancel := context.WithCancel(ctx)
		stopHeartbeat = cancel
		go func() {
			ticker := time.NewTicker(beatInterval)
			defer ticker.Stop()
			for {
				select {
				case <-heartbeatCtx.Done():
					return
				case <-ticker.C:
					reporter.Beat(component, "running")
				}
			}
		}()
	}

	err := run(ctx)
	if stopHeartbeat != nil {
		stopHeartbeat()
	}
	if err != nil && ctx.Err() == nil {
		reporter.Degrade(component, "component failed", err)
		return err
	}
	reporter.Stopped(component, "stopped")
	return err
}
