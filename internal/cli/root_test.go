package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/dwizi/flowy/internal/client"
	"github.com/dwizi/flowy/internal/launcher"
	"github.com/dwizi/flowy/internal/store"
)

func testEnv(t *testing.T, apiURL string) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(home, "data"))
	t.Setenv("FLOWY_CONFIG", "")
	t.Setenv("FLOWY_API_URL", apiURL)
	t.Setenv("FLOWY_JOURNAL_PATH", "")
	return home
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRoot(slog.New(slog.NewTextHandler(io.Discard, nil)))
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestNewRootIncludesExpectedSubcommands(t *testing.T) {
	cmd := NewRoot(nil)
	expected := []string{"serve", "query", "invoke", "auth", "tui", "mcp", "tree", "refresh", "status", "health", "journal", "events", "version"}
	for _, name := range expected {
		if _, _, err := cmd.Find([]string{name}); err != nil {
			t.Fatalf("expected subcommand %q to exist: %v", name, err)
		}
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if strings.TrimSpace(out) != version {
		t.Fatalf("unexpected version output: %q", out)
	}
}

func TestQueryCommandPrintsItems(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/query" || r.URL.Query().Get("q") != "Work" {
			t.Errorf("unexpected request: %s", r.URL.String())
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"query":"Work","items":[{"id":"Work>Call","title":"Call","actions":[{"id":"tcomplete","title":"Check"},{"id":"remove","title":"Remove"}]}]}`))
	}))
	defer server.Close()
	testEnv(t, server.URL)

	out, err := execute(t, "query", "Work")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if !strings.Contains(out, "Work>Call") || !strings.Contains(out, "tcomplete,remove") {
		t.Fatalf("unexpected output: %q", out)
	}

	out, err = execute(t, "query", "--json", "Work")
	if err != nil {
		t.Fatalf("query json: %v", err)
	}
	var response client.QueryResponse
	if err := json.Unmarshal([]byte(out), &response); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if response.Query != "Work" || len(response.Items) != 1 {
		t.Fatalf("unexpected json output: %+v", response)
	}
}

func TestRenderItemsAlignsStruckTitles(t *testing.T) {
	items := []launcher.Item{
		{ID: "Work>Done", Title: launcher.Strikethrough("Done"), Actions: []launcher.Action{{ID: launcher.ActionToggle}}},
		{ID: "Work>Open", Title: "Open", Actions: []launcher.Action{{ID: launcher.ActionToggle}}},
	}
	lines := strings.Split(strings.TrimRight(renderItems(items), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %q", lines)
	}
	columns := make([]int, 0, len(lines))
	for _, line := range lines {
		idx := strings.Index(line, launcher.ActionToggle)
		if idx < 0 {
			t.Fatalf("missing action column in %q", line)
		}
		columns = append(columns, lipgloss.Width(line[:idx]))
	}
	if columns[0] != columns[1] {
		t.Fatalf("action column misaligned: %v in %q", columns, lines)
	}
}

func TestInvokeRequiresItemAndAction(t *testing.T) {
	testEnv(t, "http://127.0.0.1:1")
	if _, err := execute(t, "invoke", "--item", "Work>Call"); err == nil || !strings.Contains(err.Error(), "required") {
		t.Fatalf("expected missing flag error, got %v", err)
	}
}

func TestInvokeCommandReportsFailure(t *testing.T) {
	var got client.ActionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"mutation_id":"m-1","kind":"remove","node_id":"c","patched":true,"status":"failed","error":"exit status 1"}`))
	}))
	defer server.Close()
	testEnv(t, server.URL)

	out, err := execute(t, "invoke", "-q", "Work", "--item", "Work>Call", "--action", "remove", "--wait")
	if err == nil || !strings.Contains(err.Error(), "remove failed") {
		t.Fatalf("expected failure error, got %v", err)
	}
	if !strings.Contains(out, `"mutation_id": "m-1"`) {
		t.Fatalf("expected result to be printed, got %q", out)
	}
	if got.Query != "Work" || got.ItemID != "Work>Call" || got.ActionID != "remove" || !got.Wait {
		t.Fatalf("unexpected request: %+v", got)
	}
}

func TestJournalDirectReadsDatabase(t *testing.T) {
	home := testEnv(t, "http://127.0.0.1:1")
	path := filepath.Join(home, "journal.sqlite")
	t.Setenv("FLOWY_JOURNAL_PATH", path)

	sqlStore, err := store.New(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	ctx := context.Background()
	if err := sqlStore.AutoMigrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	for _, input := range []store.CreateMutationInput{
		{Kind: "remove", NodeID: "a", Succeeded: true, StartedAt: time.Now().Add(-time.Minute)},
		{Kind: "edit", NodeID: "b", Error: "exit status 1", StartedAt: time.Now()},
	} {
		if _, err := sqlStore.CreateMutation(ctx, input); err != nil {
			t.Fatalf("create mutation: %v", err)
		}
	}
	_ = sqlStore.Close()

	out, err := execute(t, "journal", "--direct", "--failed")
	if err != nil {
		t.Fatalf("journal: %v", err)
	}
	var items []store.Mutation
	if err := json.Unmarshal([]byte(out), &items); err != nil {
		t.Fatalf("decode output %q: %v", out, err)
	}
	if len(items) != 1 || items[0].NodeID != "b" || items[0].Succeeded {
		t.Fatalf("unexpected journal output: %+v", items)
	}
}

func TestJournalDirectWithoutDatabase(t *testing.T) {
	home := testEnv(t, "http://127.0.0.1:1")
	t.Setenv("FLOWY_JOURNAL_PATH", filepath.Join(home, "missing.sqlite"))
	if _, err := execute(t, "journal", "--direct"); err == nil || !strings.Contains(err.Error(), "journal not found") {
		t.Fatalf("expected missing journal error, got %v", err)
	}
}

func TestBoundedTimeout(t *testing.T) {
	if got := boundedTimeout(0); got != 120*time.Second {
		t.Fatalf("expected default timeout, got %s", got)
	}
	if got := boundedTimeout(5); got != 5*time.Second {
		t.Fatalf("expected 5s, got %s", got)
	}
	if got := boundedTimeout(100000); got != time.Hour {
		t.Fatalf("expected cap of one hour, got %s", got)
	}
}
