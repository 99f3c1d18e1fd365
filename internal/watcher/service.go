package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dwizi/flowy/internal/heartbeat"
)

const (
	componentName   = "watcher"
	DefaultDebounce = 500 * time.Millisecond
)

// Service watches the CLI session file. A login rewrites it, and onChange
// is called once per burst of writes so the caller can refresh right away.
type Service struct {
	path     string
	debounce time.Duration
	logger   *slog.Logger
	onChange func(context.Context, string)
	reporter heartbeat.Reporter
	watcher  *fsnotify.Watcher
}

func New(path string, debounce time.Duration, logger *slog.Logger, onChange func(context.Context, string)) (*Service, error) {
	fileWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		path:     filepath.Clean(path),
		debounce: debounce,
		logger:   logger,
		onChange: onChange,
		watcher:  fileWatcher,
	}, nil
}

func (s *Service) SetHeartbeatReporter(reporter heartbeat.Reporter) {
	s.reporter = reporter
}

// Start watches the parent directory, since editors and the CLI replace the
// file rather than write it in place.
func (s *Service) Start(ctx context.Context) error {
	defer s.watcher.Close()

	dir := filepath.Dir(s.path)
	if err := s.watcher.Add(dir); err != nil {
		if s.reporter != nil {
			s.reporter.Degrade(componentName, "cannot watch session directory", err)
		}
		return fmt.Errorf("watch session dir %s: %w", dir, err)
	}
	if s.reporter != nil {
		s.reporter.Beat(componentName, "watching "+s.path)
	}
	s.logger.Info("session watcher started", "path", s.path)

	var pending <-chan time.Time
	var timer *time.Timer
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			if s.reporter != nil {
				s.reporter.Stopped(componentName, "stopped")
			}
			s.logger.Info("session watcher stopped")
			return nil
		case event, ok := <-s.watcher.Events:
			if !ok {
				return nil
			}
			if !s.relevant(event) {
				continue
			}
			s.logger.Debug("session file event", "path", event.Name, "op", event.Op.String())
			if timer == nil {
				timer = time.NewTimer(s.debounce)
			} else {
				timer.Reset(s.debounce)
			}
			pending = timer.C
		case <-pending:
			pending = nil
			s.logger.Info("session file changed", "path", s.path)
			if s.reporter != nil {
				s.reporter.Beat(componentName, "session file changed")
			}
			if s.onChange != nil {
				s.onChange(ctx, s.path)
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return nil
			}
			if err != nil {
				s.logger.Error("file watcher error", "error", err)
				if s.reporter != nil {
					s.reporter.Degrade(componentName, "file watcher error", err)
				}
			}
		}
	}
}

func (s *Service) relevant(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != s.path {
		return false
	}
	return event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0
}
