package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dwizi/flowy/internal/cache"
	"github.com/dwizi/flowy/internal/config"
)

func TestClientQuery(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		if r.URL.Path != "/api/v1/query" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("q"); got != "Work > Inbox" {
			t.Errorf("unexpected query: %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"query":"Work > Inbox","items":[{"id":"Work > Inbox > Call","title":"Call","subtitle":"Work > Inbox > Call","actions":[{"id":"tcomplete","title":"Check"},{"id":"edit","title":"Edit","needs_input":true}]}]}`))
	}))
	defer server.Close()

	client := &Client{baseURL: server.URL, http: server.Client()}
	items, err := client.Query(context.Background(), "Work > Inbox")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(items) != 1 || items[0].Title != "Call" {
		t.Fatalf("unexpected items: %+v", items)
	}
	if len(items[0].Actions) != 2 || !items[0].Actions[1].NeedsInput {
		t.Fatalf("unexpected actions: %+v", items[0].Actions)
	}
}

func TestClientInvoke(t *testing.T) {
	t.Parallel()

	var got ActionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/actions" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"mutation_id":"m-1","kind":"edit","node_id":"n1","patched":true,"status":"failed","error":"exit status 1"}`))
	}))
	defer server.Close()

	client := &Client{baseURL: server.URL, http: server.Client()}
	result, err := client.Invoke(context.Background(), ActionRequest{
		Query:    "Work",
		ItemID:   " Work > Call ",
		ActionID: "edit",
		Input:    "Call mom",
		Wait:     true,
	})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if got.ItemID != "Work > Call" || got.ActionID != "edit" || got.Input != "Call mom" || !got.Wait {
		t.Fatalf("unexpected request payload: %+v", got)
	}
	if result.MutationID != "m-1" || !result.Patched || !result.Failed() {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestClientInvokeRequiresIDs(t *testing.T) {
	t.Parallel()

	client := &Client{baseURL: "http://127.0.0.1:1", http: http.DefaultClient}
	if _, err := client.Invoke(context.Background(), ActionRequest{ItemID: "x"}); err == nil {
		t.Fatal("expected error without action id")
	}
}

func TestClientSurfacesAPIErrors(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"route not found: Missing"}`))
	}))
	defer server.Close()

	client := &Client{baseURL: server.URL, http: server.Client()}
	_, err := client.Tree(context.Background(), "Missing")
	if err == nil {
		t.Fatal("expected error")
	}
	if err.Error() != "route not found: Missing" {
		t.Fatalf("unexpected error message: %v", err)
	}
	if !IsNotFound(err) {
		t.Fatal("expected not found error")
	}
}

func TestClientJournalEncodesFilters(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		if query.Get("kind") != "remove" || query.Get("failed") != "true" || query.Get("limit") != "5" {
			t.Errorf("unexpected filters: %s", r.URL.RawQuery)
		}
		if query.Has("node_id") {
			t.Errorf("expected empty node_id to be omitted")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"count":1,"items":[{"id":"m-1","kind":"remove","node_id":"n1","patched":true,"succeeded":false,"started_at":"2026-01-02T03:04:05Z","duration_ns":1000}]}`))
	}))
	defer server.Close()

	client := &Client{baseURL: server.URL, http: server.Client()}
	items, err := client.Journal(context.Background(), JournalFilter{Kind: "remove", FailedOnly: true, Limit: 5})
	if err != nil {
		t.Fatalf("journal: %v", err)
	}
	if len(items) != 1 || items[0].ID != "m-1" || items[0].Succeeded {
		t.Fatalf("unexpected items: %+v", items)
	}
}

func TestClientTreeDecodesNodes(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("route") != "" {
			t.Errorf("expected no route for root listing")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"state":"ready","version":3,"route":"","nodes":[{"id":"a","nm":"Work","pr":1,"cp":true,"children":[]},{"id":"b","nm":"Home","pr":2}]}`))
	}))
	defer server.Close()

	client := &Client{baseURL: server.URL, http: server.Client()}
	response, err := client.Tree(context.Background(), "")
	if err != nil {
		t.Fatalf("tree: %v", err)
	}
	if response.State != cache.StateReady || response.Version != 3 {
		t.Fatalf("unexpected header: %+v", response)
	}
	if len(response.Nodes) != 2 {
		t.Fatalf("expected two nodes, got %d", len(response.Nodes))
	}
	if !response.Nodes[0].Completed || response.Nodes[0].Children == nil {
		t.Fatalf("expected completed container, got %+v", response.Nodes[0])
	}
	if response.Nodes[1].Children != nil {
		t.Fatalf("expected leaf, got %+v", response.Nodes[1])
	}
}

func TestClientEvents(t *testing.T) {
	t.Parallel()

	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/events" {
			t.Errorf("unexpected path: %s", r.URL.Path)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		_ = conn.WriteJSON(cache.Event{Kind: cache.EventCurrent, Version: 4})
		_ = conn.WriteJSON(cache.Event{Kind: cache.EventPatched, Version: 5})
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
	}))
	defer server.Close()

	client := &Client{baseURL: server.URL, http: server.Client()}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var events []cache.Event
	if err := client.Events(ctx, func(event cache.Event) {
		events = append(events, event)
	}); err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected two events, got %+v", events)
	}
	if events[0].Kind != cache.EventCurrent || events[1].Version != 5 {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestWebsocketURL(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"http://127.0.0.1:8787/events": "ws://127.0.0.1:8787/events",
		"https://flowy.test/events":    "wss://flowy.test/events",
	}
	for input, want := range cases {
		got, err := websocketURL(input)
		if err != nil {
			t.Fatalf("websocketURL(%q): %v", input, err)
		}
		if got != want {
			t.Fatalf("websocketURL(%q) = %q, want %q", input, got, want)
		}
	}
	if _, err := websocketURL("ftp://flowy.test"); err == nil || !strings.Contains(err.Error(), "unsupported") {
		t.Fatalf("expected unsupported scheme error, got %v", err)
	}
}

func TestClientWithTimeoutClonesClient(t *testing.T) {
	t.Parallel()

	base := &Client{
		baseURL: "http://127.0.0.1:8787",
		http:    &http.Client{Timeout: 15 * time.Second},
	}
	updated := base.WithTimeout(3 * time.Second)
	if updated == base || updated.http == base.http {
		t.Fatal("expected timeout update to clone client")
	}
	if updated.http.Timeout != 3*time.Second {
		t.Fatalf("expected timeout 3s, got %s", updated.http.Timeout)
	}
	if base.http.Timeout != 15*time.Second {
		t.Fatalf("expected base timeout unchanged, got %s", base.http.Timeout)
	}
	if same := base.WithTimeout(10 * time.Millisecond); same != base {
		t.Fatal("expected sub-second timeout to keep the client")
	}
}

func TestNewUsesConfig(t *testing.T) {
	t.Parallel()

	client := New(config.Config{APIURL: "http://127.0.0.1:8787/", HTTPTimeoutSec: 7})
	if client.BaseURL() != "http://127.0.0.1:8787" {
		t.Fatalf("unexpected base url: %s", client.BaseURL())
	}
	if client.http.Timeout != 7*time.Second {
		t.Fatalf("expected timeout 7s, got %s", client.http.Timeout)
	}
}
