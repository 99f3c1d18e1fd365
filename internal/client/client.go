package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dwizi/flowy/internal/cache"
	"github.com/dwizi/flowy/internal/config"
	"github.com/dwizi/flowy/internal/heartbeat"
	"github.com/dwizi/flowy/internal/launcher"
	"github.com/dwizi/flowy/internal/scheduler"
	"github.com/dwizi/flowy/internal/store"
	"github.com/dwizi/flowy/internal/tree"
)

// Client talks to a running flowy server over its HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
	dialer  *websocket.Dialer
}

type QueryResponse struct {
	Query string          `json:"query"`
	Items []launcher.Item `json:"items"`
}

type ActionRequest struct {
	Query    string `json:"query"`
	ItemID   string `json:"item_id"`
	ActionID string `json:"action_id"`
	Input    string `json:"input,omitempty"`
	Wait     bool   `json:"wait,omitempty"`
}

type ActionResult struct {
	MutationID   string `json:"mutation_id"`
	Kind         string `json:"kind"`
	NodeID       string `json:"node_id,omitempty"`
	ParentID     string `json:"parent_id,omitempty"`
	Patched      bool   `json:"patched"`
	Status       string `json:"status"`
	RemoteID     string `json:"remote_id,omitempty"`
	Error        string `json:"error,omitempty"`
	RefreshError string `json:"refresh_error,omitempty"`
	DurationMS   int64  `json:"duration_ms,omitempty"`
}

func (r ActionResult) Failed() bool {
	return r.Status == "failed"
}

type TreeResponse struct {
	State         cache.State  `json:"state"`
	Version       uint64       `json:"version"`
	Route         string       `json:"route"`
	LastFetchedAt time.Time    `json:"last_fetched_at"`
	Nodes         []*tree.Node `json:"nodes"`
}

type JournalFilter struct {
	Kind       string
	NodeID     string
	FailedOnly bool
	Limit      int
}

type journalResponse struct {
	Items []store.Mutation `json:"items"`
	Count int              `json:"count"`
}

type Info struct {
	Name            string `json:"name"`
	Version         string `json:"version"`
	Journal         bool   `json:"journal"`
	RefreshInterval string `json:"refresh_interval"`
}

func New(cfg config.Config) *Client {
	timeout := time.Duration(cfg.HTTPTimeoutSec) * time.Second
	if timeout < time.Second {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.APIURL, "/"),
		http:    &http.Client{Timeout: timeout},
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

func (c *Client) WithTimeout(timeout time.Duration) *Client {
	if c == nil {
		return nil
	}
	if timeout < time.Second {
		return c
	}
	clone := *c
	if c.http == nil {
		clone.http = &http.Client{Timeout: timeout}
		return &clone
	}
	httpClone := *c.http
	httpClone.Timeout = timeout
	clone.http = &httpClone
	return &clone
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) Info(ctx context.Context) (Info, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/info", nil)
	if err != nil {
		return Info{}, err
	}
	var response Info
	if err := c.doJSON(req, &response); err != nil {
		return Info{}, err
	}
	return response, nil
}

func (c *Client) Query(ctx context.Context, text string) ([]launcher.Item, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/query?q="+url.QueryEscape(text), nil)
	if err != nil {
		return nil, err
	}
	var response QueryResponse
	if err := c.doJSON(req, &response); err != nil {
		return nil, err
	}
	return response.Items, nil
}

func (c *Client) Invoke(ctx context.Context, input ActionRequest) (ActionResult, error) {
	input.ItemID = strings.TrimSpace(input.ItemID)
	input.ActionID = strings.TrimSpace(input.ActionID)
	if input.ItemID == "" || input.ActionID == "" {
		return ActionResult{}, fmt.Errorf("item id and action id are required")
	}
	body, err := json.Marshal(input)
	if err != nil {
		return ActionResult{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/actions", bytes.NewReader(body))
	if err != nil {
		return ActionResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	var response ActionResult
	if err := c.doJSON(req, &response); err != nil {
		return ActionResult{}, err
	}
	return response, nil
}

func (c *Client) Tree(ctx context.Context, route string) (TreeResponse, error) {
	endpoint := c.baseURL + "/api/v1/tree"
	if route = strings.TrimSpace(route); route != "" {
		endpoint += "?route=" + url.QueryEscape(route)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return TreeResponse{}, err
	}
	var response TreeResponse
	if err := c.doJSON(req, &response); err != nil {
		return TreeResponse{}, err
	}
	return response, nil
}

func (c *Client) Refresh(ctx context.Context) (scheduler.Status, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/refresh", nil)
	if err != nil {
		return scheduler.Status{}, err
	}
	var response scheduler.Status
	if err := c.doJSON(req, &response); err != nil {
		return scheduler.Status{}, err
	}
	return response, nil
}

func (c *Client) Status(ctx context.Context) (scheduler.Status, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/status", nil)
	if err != nil {
		return scheduler.Status{}, err
	}
	var response scheduler.Status
	if err := c.doJSON(req, &response); err != nil {
		return scheduler.Status{}, err
	}
	return response, nil
}

func (c *Client) Health(ctx context.Context) (heartbeat.Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return heartbeat.Snapshot{}, err
	}
	var response heartbeat.Snapshot
	if err := c.doJSON(req, &response); err != nil {
		return heartbeat.Snapshot{}, err
	}
	return response, nil
}

func (c *Client) Journal(ctx context.Context, filter JournalFilter) ([]store.Mutation, error) {
	query := url.Values{}
	if kind := strings.TrimSpace(filter.Kind); kind != "" {
		query.Set("kind", kind)
	}
	if nodeID := strings.TrimSpace(filter.NodeID); nodeID != "" {
		query.Set("node_id", nodeID)
	}
	if filter.FailedOnly {
		query.Set("failed", "true")
	}
	if filter.Limit > 0 {
		query.Set("limit", strconv.Itoa(filter.Limit))
	}
	endpoint := c.baseURL + "/api/v1/journal"
	if encoded := query.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	var response journalResponse
	if err := c.doJSON(req, &response); err != nil {
		return nil, err
	}
	return response.Items, nil
}

// Events streams cache events to handle until ctx ends or the server closes
// the stream. The first event reports the version the stream starts from.
func (c *Client) Events(ctx context.Context, handle func(cache.Event)) error {
	endpoint, err := websocketURL(c.baseURL + "/api/v1/events")
	if err != nil {
		return err
	}
	dialer := c.dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("dial events: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = conn.Close()
	})
	defer stop()

	for {
		var event cache.Event
		if err := conn.ReadJSON(&event); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read event: %w", err)
		}
		handle(event)
	}
}

func websocketURL(raw string) (string, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	switch parsed.Scheme {
	case "http":
		parsed.Scheme = "ws"
	case "https":
		parsed.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported api url scheme %q", parsed.Scheme)
	}
	return parsed.String(), nil
}

func (c *Client) doJSON(req *http.Request, out any) error {
	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode >= http.StatusBadRequest {
		var apiError struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(res.Body).Decode(&apiError)
		if strings.TrimSpace(apiError.Error) == "" {
			apiError.Error = res.Status
		}
		return &APIError{Status: res.StatusCode, Message: apiError.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}
