package heartbeat

import (
	"cmp"
	"slices"
	"strings"
	"sync"
	"time"
)

const (
	StateStarting = "starting"
	StateHealthy  = "healthy"
	StateDegraded = "degraded"
	StateDisabled = "disabled"
	StateStopped  = "stopped"
	StateStale    = "stale"

	OverallUnknown = "unknown"
	OverallIdle    = "idle"
)

// Reporter is what long running services use to publish their health.
type Reporter interface {
	Starting(component, message string)
	Beat(component, message string)
	Degrade(component, message string, err error)
	Disabled(component, message string)
	Stopped(component, message string)
}

type ComponentStatus struct {
	Name       string    `json:"name"`
	State      string    `json:"state"`
	BaseState  string    `json:"base_state"`
	Message    string    `json:"message,omitempty"`
	Error      string    `json:"error,omitempty"`
	LastBeatAt time.Time `json:"last_beat_at,omitzero"`
	UpdatedAt  time.Time `json:"updated_at"`
	Stale      bool      `json:"stale,omitempty"`
}

type Snapshot struct {
	GeneratedAt time.Time         `json:"generated_at"`
	Overall     string            `json:"overall"`
	Components  []ComponentStatus `json:"components"`
}

// Component returns the named component and whether it has reported.
func (s Snapshot) Component(name string) (ComponentStatus, bool) {
	name = componentKey(name)
	for _, item := range s.Components {
		if item.Name == name {
			return item, true
		}
	}
	return ComponentStatus{}, false
}

type Registry struct {
	mu         sync.RWMutex
	components map[string]ComponentStatus
	now        func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		components: map[string]ComponentStatus{},
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (r *Registry) Starting(component, message string) {
	r.update(component, StateStarting, message, "", false)
}

func (r *Registry) Beat(component, message string) {
	r.update(component, StateHealthy, message, "", true)
}

func (r *Registry) Degrade(component, message string, err error) {
	errorText := ""
	if err != nil {
		errorText = err.Error()
	}
	r.update(component, StateDegraded, message, errorText, false)
}

func (r *Registry) Disabled(component, message string) {
	r.update(component, StateDisabled, message, "", false)
}

func (r *Registry) Stopped(component, message string) {
	r.update(component, StateStopped, message, "", false)
}

func (r *Registry) update(component, state, message, errorText string, beat bool) {
	name := componentKey(component)
	if name == "" {
		return
	}
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	record := r.components[name]
	record.Name = name
	record.BaseState = state
	record.Message = strings.TrimSpace(message)
	record.Error = strings.TrimSpace(errorText)
	record.UpdatedAt = now
	if beat || record.LastBeatAt.IsZero() {
		record.LastBeatAt = now
	}
	r.components[name] = record
}

// Snapshot reports every component. Healthy or starting components that
// have not beaten within staleAfter are reported stale; zero disables that.
func (r *Registry) Snapshot(staleAfter time.Duration) Snapshot {
	now := r.now()
	r.mu.RLock()
	results := make([]ComponentStatus, 0, len(r.components))
	for _, record := range r.components {
		status := record
		status.State = record.BaseState
		if staleAfter > 0 && canGoStale(record.BaseState) && now.Sub(record.LastBeatAt) > staleAfter {
			status.State = StateStale
			status.Stale = true
		}
		results = append(results, status)
	}
	r.mu.RUnlock()

	slices.SortFunc(results, func(a, b ComponentStatus) int {
		return cmp.Compare(a.Name, b.Name)
	})
	return Snapshot{
		GeneratedAt: now,
		Overall:     overall(results),
		Components:  results,
	}
}

func IsDegradedState(state string) bool {
	return state == StateDegraded || state == StateStale
}

func componentKey(component string) string {
	return strings.ToLower(strings.TrimSpace(component))
}

func canGoStale(state string) bool {
	return state == StateHealthy || state == StateStarting
}

func overall(items []ComponentStatus) string {
	if len(items) == 0 {
		return OverallUnknown
	}
	active := map[string]bool{}
	for _, item := range items {
		if IsDegradedState(item.State) {
			return StateDegraded
		}
		active[item.State] = true
	}
	switch {
	case active[StateStarting]:
		return StateStarting
	case active[StateHealthy]:
		return StateHealthy
	default:
		return OverallIdle
	}
}
