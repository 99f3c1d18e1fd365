package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dwizi/flowy/internal/cache"
	"github.com/dwizi/flowy/internal/heartbeat"
	"github.com/dwizi/flowy/internal/tree"
)

const (
	componentName   = "scheduler"
	DefaultInterval = 10 * time.Second
)

type TreeSource interface {
	GetTree(ctx context.Context) (tree.Tree, error)
}

// Status describes the most recent refresh attempts.
type Status struct {
	State               cache.State `json:"state"`
	Version             uint64      `json:"version"`
	Nodes               int         `json:"nodes"`
	LastFetchedAt       time.Time   `json:"last_fetched_at,omitzero"`
	LastAttemptAt       time.Time   `json:"last_attempt_at,omitzero"`
	LastError           string      `json:"last_error,omitempty"`
	ConsecutiveFailures int         `json:"consecutive_failures"`
	Interval            string      `json:"interval"`
}

type Service struct {
	source   TreeSource
	cache    *cache.Cache
	interval time.Duration
	logger   *slog.Logger
	reporter heartbeat.Reporter

	// applyMu orders fetch results so that a slow fetch never overwrites a
	// tree fetched after it started.
	applyMu      sync.Mutex
	nextAttempt  uint64
	appliedSince uint64

	statusMu sync.RWMutex
	status   Status
}

func New(source TreeSource, c *cache.Cache, interval time.Duration, logger *slog.Logger) *Service {
	if interval < time.Second {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		source:   source,
		cache:    c,
		interval: interval,
		logger:   logger,
	}
}

func (s *Service) SetHeartbeatReporter(reporter heartbeat.Reporter) {
	s.reporter = reporter
}

// Start refreshes once, then on every interval until ctx is done. Ticks that
// arrive while a refresh is still running are skipped.
func (s *Service) Start(ctx context.Context) error {
	if s.source == nil || s.cache == nil {
		if s.reporter != nil {
			s.reporter.Disabled(componentName, "dependencies missing")
		}
		<-ctx.Done()
		return nil
	}
	if s.reporter != nil {
		s.reporter.Starting(componentName, "started")
	}
	cronLogger := cronLogAdapter{logger: s.logger}
	runner := cron.New(
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)
	job := cron.FuncJob(func() {
		_ = s.Refresh(ctx)
	})
	runner.Schedule(cron.Every(s.interval), job)
	s.logger.Info("scheduler started", "interval", s.interval.String())

	_ = s.Refresh(ctx)
	runner.Start()

	<-ctx.Done()
	stopped := runner.Stop()
	<-stopped.Done()
	if s.reporter != nil {
		s.reporter.Stopped(componentName, "stopped")
	}
	s.logger.Info("scheduler stopped")
	return nil
}

// Refresh pulls the full tree and replaces the cache. On failure the cache
// keeps its previous tree; the next tick tries again.
func (s *Service) Refresh(ctx context.Context) error {
	if s.source == nil || s.cache == nil {
		return fmt.Errorf("scheduler dependencies missing")
	}
	s.applyMu.Lock()
	s.nextAttempt++
	attempt := s.nextAttempt
	s.applyMu.Unlock()

	attemptedAt := time.Now().UTC()
	root, err := s.source.GetTree(ctx)
	if err != nil {
		s.recordFailure(attemptedAt, err)
		return fmt.Errorf("refresh tree: %w", err)
	}

	s.applyMu.Lock()
	if attempt < s.appliedSince {
		s.applyMu.Unlock()
		s.logger.Debug("discarded refresh superseded by a newer one", "attempt", attempt)
		return nil
	}
	s.appliedSince = attempt
	snapshot := s.cache.Replace(root, time.Now())
	s.applyMu.Unlock()

	s.recordSuccess(attemptedAt, snapshot)
	return nil
}

func (s *Service) Status() Status {
	s.statusMu.RLock()
	status := s.status
	s.statusMu.RUnlock()
	status.Interval = s.interval.String()
	if s.cache == nil {
		return status
	}
	snapshot := s.cache.Snapshot()
	status.State = snapshot.State
	status.Version = snapshot.Version
	status.Nodes = tree.Count(snapshot.Tree)
	status.LastFetchedAt = snapshot.LastFetchedAt
	return status
}

// LastRefreshFailed reports whether the most recent fetch failed.
func (s *Service) LastRefreshFailed() bool {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	return s.status.ConsecutiveFailures > 0
}

func (s *Service) recordSuccess(attemptedAt time.Time, snapshot *cache.Snapshot) {
	s.statusMu.Lock()
	recovered := s.status.ConsecutiveFailures > 0
	s.status.LastAttemptAt = attemptedAt
	s.status.LastError = ""
	s.status.ConsecutiveFailures = 0
	s.statusMu.Unlock()

	nodes := tree.Count(snapshot.Tree)
	if recovered {
		s.logger.Info("tree refresh recovered", "version", snapshot.Version, "nodes", nodes)
	} else {
		s.logger.Debug("tree refreshed", "version", snapshot.Version, "nodes", nodes)
	}
	if s.reporter != nil {
		s.reporter.Beat(componentName, fmt.Sprintf("tree refreshed (%d nodes)", nodes))
	}
}

func (s *Service) recordFailure(attemptedAt time.Time, err error) {
	s.statusMu.Lock()
	s.status.LastAttemptAt = attemptedAt
	s.status.LastError = err.Error()
	s.status.ConsecutiveFailures++
	failures := s.status.ConsecutiveFailures
	s.statusMu.Unlock()

	s.logger.Warn("tree refresh failed; keeping cached tree", "error", err, "consecutive_failures", failures)
	if s.reporter != nil {
		s.reporter.Degrade(componentName, "tree refresh failed", err)
	}
}

type cronLogAdapter struct {
	logger *slog.Logger
}

func (a cronLogAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Debug("cron: "+msg, keysAndValues...)
}

func (a cronLogAdapter) Error(err error, msg string, keysAndValues ...interface{}) {
	a.logger.Error("cron: "+msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
