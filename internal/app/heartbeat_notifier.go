package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dwizi/flowy/internal/heartbeat"
)

const heartbeatLogName = "heartbeat.log"

// heartbeatNotifier records degraded and recovered transitions in a log file
// under the data directory, so a failing refresh loop is visible after the
// fact without a running server.
type heartbeatNotifier struct {
	path   string
	now    func() time.Time
	logger *slog.Logger
}

func newHeartbeatNotifier(dataDir string, logger *slog.Logger) *heartbeatNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	dataDir = strings.TrimSpace(dataDir)
	if dataDir == "" {
		return nil
	}
	return &heartbeatNotifier{
		path:   filepath.Join(dataDir, heartbeatLogName),
		now:    time.Now,
		logger: logger,
	}
}

func (n *heartbeatNotifier) HandleTransition(ctx context.Context, transition heartbeat.Transition) {
	if n == nil {
		return
	}
	eventType := heartbeatTransitionType(transition)
	if eventType == "" {
		return
	}
	if err := n.append(buildHeartbeatLogLine(eventType, transition, n.now())); err != nil {
		n.logger.Error("heartbeat log append failed", "path", n.path, "error", err)
	}
}

func (n *heartbeatNotifier) append(line string) error {
	if err := os.MkdirAll(filepath.Dir(n.path), 0o755); err != nil {
		return err
	}
	file, err := os.OpenFile(n.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()
	_, err = file.WriteString(line + "\n")
	return err
}

func heartbeatTransitionType(transition heartbeat.Transition) string {
	switch {
	case !heartbeat.IsDegradedState(transition.From) && heartbeat.IsDegradedState(transition.To):
		return "degraded"
	case transition.Recovered() && transition.To == heartbeat.StateHealthy:
		return "recovered"
	default:
		return ""
	}
}

func buildHeartbeatLogLine(eventType string, transition heartbeat.Transition, at time.Time) string {
	line := fmt.Sprintf("%s [%s] component=%s state=%s->%s",
		at.UTC().Format(time.RFC3339),
		strings.ToUpper(eventType),
		strings.TrimSpace(transition.Component),
		strings.TrimSpace(transition.From),
		strings.TrimSpace(transition.To),
	)
	if detail := strings.TrimSpace(transition.Message); detail != "" {
		line += " detail=" + singleLine(detail, 240)
	}
	if errorText := strings.TrimSpace(transition.Error); errorText != "" {
		line += " error=" + singleLine(errorText, 240)
	}
	return line
}

func singleLine(input string, limit int) string {
	text := strings.Join(strings.Fields(input), " ")
	if limit > 0 && len(text) > limit {
		return text[:limit] + "..."
	}
	return text
}
