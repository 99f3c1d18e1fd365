package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dwizi/flowy/internal/cache"
)

const (
	eventsWriteWait  = 10 * time.Second
	eventsPingPeriod = 30 * time.Second
)

var eventsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4 * 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := strings.TrimSpace(r.Header.Get("Origin"))
		if origin == "" {
			return true
		}
		return strings.Contains(origin, "://"+strings.TrimSpace(r.Host))
	},
}

// handleEvents streams cache events as JSON text frames. The first frame
// carries the version the stream starts from.
func (r *router) handleEvents(w http.ResponseWriter, req *http.Request) {
	if r.deps.Cache == nil {
		writeError(w, http.StatusServiceUnavailable, "cache is not configured")
		return
	}
	conn, err := eventsUpgrader.Upgrade(w, req, nil)
	if err != nil {
		r.deps.Logger.Debug("events upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	events, unsubscribe := r.deps.Cache.Subscribe(32)
	defer unsubscribe()

	// Reading is only needed to notice the peer going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	current := r.deps.Cache.Snapshot()
	if err := writeEvent(conn, cache.Event{Kind: cache.EventCurrent, Version: current.Version, At: time.Now().UTC()}); err != nil {
		return
	}
	ping := time.NewTicker(eventsPingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-req.Context().Done():
			return
		case <-closed:
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := writeEvent(conn, event); err != nil {
				r.deps.Logger.Debug("events write failed", "error", err)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(eventsWriteWait)); err != nil {
				return
			}
		}
	}
}

func writeEvent(conn *websocket.Conn, event cache.Event) error {
	_ = conn.SetWriteDeadline(time.Now().Add(eventsWriteWait))
	return conn.WriteJSON(event)
}
