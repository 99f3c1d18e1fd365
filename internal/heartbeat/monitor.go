package heartbeat

import (
	"context"
	"log/slog"
	"time"
)

type Transition struct {
	Component string `json:"component"`
	From      string `json:"from"`
	To        string `json:"to"`
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Recovered reports a move out of a degraded or stale state.
func (t Transition) Recovered() bool {
	return IsDegradedState(t.From) && !IsDegradedState(t.To)
}

type MonitorConfig struct {
	Interval     time.Duration
	StaleAfter   time.Duration
	Logger       *slog.Logger
	OnTransition func(context.Context, Transition)
}

// Monitor polls a registry and reports state changes, including components
// that went stale because their owner stopped beating.
type Monitor struct {
	registry     *Registry
	cfg          MonitorConfig
	lastObserved map[string]string
}

func NewMonitor(registry *Registry, cfg MonitorConfig) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Monitor{
		registry:     registry,
		cfg:          cfg,
		lastObserved: map[string]string{},
	}
}

func (m *Monitor) Start(ctx context.Context) error {
	if m.registry == nil {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()
	m.cfg.Logger.Info("heartbeat monitor started", "interval", m.cfg.Interval.String(), "stale_after", m.cfg.StaleAfter.String())
	for {
		m.observe(ctx)
		select {
		case <-ctx.Done():
			m.cfg.Logger.Info("heartbeat monitor stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func (m *Monitor) observe(ctx context.Context) {
	snapshot := m.registry.Snapshot(m.cfg.StaleAfter)
	for _, item := range snapshot.Components {
		before, seen := m.lastObserved[item.Name]
		m.lastObserved[item.Name] = item.State
		if !seen || before == item.State {
			continue
		}
		transition := Transition{
			Component: item.Name,
			From:      before,
			To:        item.State,
			Message:   item.Message,
			Error:     item.Error,
		}
		m.log(transition)
		if m.cfg.OnTransition != nil {
			m.cfg.OnTransition(ctx, transition)
		}
	}
}

func (m *Monitor) log(transition Transition) {
	attrs := []any{"component", transition.Component, "from", transition.From, "to", transition.To}
	if transition.Error != "" {
		attrs = append(attrs, "error", transition.Error)
	}
	switch {
	case IsDegradedState(transition.To):
		m.cfg.Logger.Warn("component degraded", attrs...)
	case transition.Recovered():
		m.cfg.Logger.Info("component recovered", attrs...)
	default:
		m.cfg.Logger.Debug("component state changed", attrs...)
	}
}
