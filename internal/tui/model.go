package tui

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/dwizi/flowy/internal/client"
	"github.com/dwizi/flowy/internal/launcher"
	"github.com/dwizi/flowy/internal/tree"
)

const (
	pollInterval  = 2 * time.Second
	settleDelay   = 150 * time.Millisecond
	actionTimeout = 2 * time.Minute
)

type inputMode int

const (
	modeQuery inputMode = iota
	modeEdit
)

type queryResultMsg struct {
	seq   int
	query string
	items []launcher.Item
	err   error
}

type actionResultMsg struct {
	title  string
	result client.ActionResult
	err    error
}

type pollMsg struct{}

type settleMsg struct{}

type model struct {
	ctx     context.Context
	backend client.Backend
	logger  *slog.Logger
	keys    keyMap
	theme   theme
	help    help.Model

	query     textinput.Model
	editInput textinput.Model
	mode      inputMode

	items    []launcher.Item
	cursor   int
	querySeq int
	loading  bool

	editItem launcher.Item

	running   int
	status    string
	statusErr bool

	width    int
	height   int
	quitting bool
}

// Run drives the launcher interactively until the user quits.
func Run(ctx context.Context, backend client.Backend, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	program := tea.NewProgram(newModel(ctx, backend, logger), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := program.Run()
	return err
}

func newModel(ctx context.Context, backend client.Backend, logger *slog.Logger) model {
	styles := newTheme()

	query := textinput.New()
	query.Prompt = "wf > "
	query.Placeholder = "Work > Inbox"
	query.PromptStyle = styles.inputPrompt
	query.TextStyle = styles.inputText
	query.PlaceholderStyle = styles.inputPlaceholder
	query.Focus()

	editInput := textinput.New()
	editInput.Prompt = "rename > "
	editInput.PromptStyle = styles.inputPrompt
	editInput.TextStyle = styles.inputText

	return model{
		ctx:       ctx,
		backend:   backend,
		logger:    logger,
		keys:      newKeyMap(),
		theme:     styles,
		help:      help.New(),
		query:     query,
		editInput: editInput,
		mode:      modeQuery,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.runQuery(1, ""), poll())
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = typed.Width
		m.height = typed.Height
		m.help.Width = typed.Width
		m.query.Width = max(typed.Width-8, 10)
		m.editInput.Width = max(typed.Width-12, 10)
		return m, nil

	case queryResultMsg:
		if typed.seq < m.querySeq {
			return m, nil
		}
		m.loading = false
		if typed.err != nil {
			m.setStatus("query failed: "+typed.err.Error(), true)
			return m, nil
		}
		m.items = typed.items
		m.cursor = clampCursor(m.cursor, len(m.items))
		return m, nil

	case actionResultMsg:
		m.running--
		switch {
		case typed.err != nil:
			m.setStatus(typed.title+" failed: "+typed.err.Error(), true)
		case typed.result.Failed():
			m.setStatus(typed.title+" failed: "+typed.result.Error, true)
		default:
			m.setStatus(typed.title+" done", false)
		}
		return m.requery()

	case settleMsg:
		return m.requery()

	case pollMsg:
		if m.mode == modeQuery && !m.loading {
			next, cmd := m.requery()
			return next, tea.Batch(cmd, poll())
		}
		return m, poll()

	case tea.KeyMsg:
		if key.Matches(typed, m.keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
		if m.mode == modeEdit {
			return m.handleEditKey(typed)
		}
		return m.handleQueryKey(typed)
	}
	return m, nil
}

func (m model) handleQueryKey(typed tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(typed, m.keys.Cancel):
		if m.query.Value() == "" {
			m.quitting = true
			return m, tea.Quit
		}
		m.query.SetValue("")
		return m.requery()
	case key.Matches(typed, m.keys.Up):
		m.cursor = clampCursor(m.cursor-1, len(m.items))
		return m, nil
	case key.Matches(typed, m.keys.Down):
		m.cursor = clampCursor(m.cursor+1, len(m.items))
		return m, nil
	case key.Matches(typed, m.keys.Complete):
		item, ok := m.selected()
		if !ok || item.ActionText == "" {
			return m, nil
		}
		return m.setQuery(item.ActionText)
	case key.Matches(typed, m.keys.Activate):
		item, ok := m.selected()
		if !ok {
			return m, nil
		}
		if len(item.Actions) == 0 {
			if item.ActionText == "" {
				return m, nil
			}
			return m.setQuery(item.ActionText)
		}
		return m.startAction(item, item.Actions[0])
	case key.Matches(typed, m.keys.Toggle):
		return m.startNamedAction(launcher.ActionToggle)
	case key.Matches(typed, m.keys.Remove):
		return m.startNamedAction(launcher.ActionRemove)
	case key.Matches(typed, m.keys.Edit):
		return m.startNamedAction(launcher.ActionEdit)
	}

	before := m.query.Value()
	var cmd tea.Cmd
	m.query, cmd = m.query.Update(typed)
	if m.query.Value() == before {
		return m, cmd
	}
	m.cursor = 0
	next, queryCmd := m.requery()
	return next, tea.Batch(cmd, queryCmd)
}

func (m model) handleEditKey(typed tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(typed, m.keys.Cancel):
		m.leaveEdit()
		m.setStatus("edit cancelled", false)
		return m, nil
	case key.Matches(typed, m.keys.Activate):
		name := strings.TrimSpace(m.editInput.Value())
		item := m.editItem
		m.leaveEdit()
		if name == "" {
			m.setStatus("edit needs a name", true)
			return m, nil
		}
		return m.invoke(item, launcher.ActionEdit, "rename "+itemName(item), name)
	}
	var cmd tea.Cmd
	m.editInput, cmd = m.editInput.Update(typed)
	return m, cmd
}

func (m model) startNamedAction(actionID string) (tea.Model, tea.Cmd) {
	item, ok := m.selected()
	if !ok {
		return m, nil
	}
	for _, action := range item.Actions {
		if action.ID == actionID {
			return m.startAction(item, action)
		}
	}
	m.setStatus("action not available here", true)
	return m, nil
}

func (m model) startAction(item launcher.Item, action launcher.Action) (tea.Model, tea.Cmd) {
	if action.NeedsInput {
		m.mode = modeEdit
		m.editItem = item
		m.editInput.SetValue(itemName(item))
		m.editInput.CursorEnd()
		m.query.Blur()
		return m, m.editInput.Focus()
	}
	return m.invoke(item, action.ID, strings.ToLower(action.Title)+" "+itemName(item), "")
}

func (m model) invoke(item launcher.Item, actionID, title, input string) (tea.Model, tea.Cmd) {
	m.running++
	m.setStatus(title+"...", false)
	return m, tea.Batch(m.invokeCmd(title, m.actionRequest(item, actionID, input)), settle())
}

// actionRequest always waits so the footer can report the outcome.
func (m model) actionRequest(item launcher.Item, actionID, input string) client.ActionRequest {
	return client.ActionRequest{
		Query:    m.query.Value(),
		ItemID:   item.ID,
		ActionID: actionID,
		Input:    input,
		Wait:     true,
	}
}

func (m *model) leaveEdit() {
	m.mode = modeQuery
	m.editItem = launcher.Item{}
	m.editInput.Blur()
	m.editInput.SetValue("")
	m.query.Focus()
}

func (m model) setQuery(text string) (tea.Model, tea.Cmd) {
	m.query.SetValue(text)
	m.query.CursorEnd()
	m.cursor = 0
	return m.requery()
}

func (m model) requery() (tea.Model, tea.Cmd) {
	m.querySeq++
	m.loading = true
	return m, m.runQuery(m.querySeq, m.query.Value())
}

func (m *model) setStatus(text string, isErr bool) {
	m.status = text
	m.statusErr = isErr
	if isErr {
		m.logger.Warn("tui action failed", "status", text)
	}
}

func (m model) selected() (launcher.Item, bool) {
	if m.cursor < 0 || m.cursor >= len(m.items) {
		return launcher.Item{}, false
	}
	return m.items[m.cursor], true
}

func (m model) runQuery(seq int, text string) tea.Cmd {
	backend := m.backend
	ctx := m.ctx
	return func() tea.Msg {
		items, err := backend.Query(ctx, text)
		return queryResultMsg{seq: seq, query: text, items: items, err: err}
	}
}

func (m model) invokeCmd(title string, request client.ActionRequest) tea.Cmd {
	backend := m.backend
	parent := m.ctx
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(parent, actionTimeout)
		defer cancel()
		result, err := backend.Invoke(ctx, request)
		return actionResultMsg{title: title, result: result, err: err}
	}
}

func poll() tea.Cmd {
	return tea.Tick(pollInterval, func(time.Time) tea.Msg {
		return pollMsg{}
	})
}

// settle re-queries shortly after an action so the optimistic change shows
// before the remote call finishes.
func settle() tea.Cmd {
	return tea.Tick(settleDelay, func(time.Time) tea.Msg {
		return settleMsg{}
	})
}

func clampCursor(cursor, count int) int {
	if count == 0 || cursor < 0 {
		return 0
	}
	if cursor >= count {
		return count - 1
	}
	return cursor
}

// itemName is the plain last route segment of an item id.
func itemName(item launcher.Item) string {
	if name := tree.ParseRoute(item.ID).Last(); name != "" {
		return name
	}
	return item.Title
}
