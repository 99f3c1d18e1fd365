package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/dwizi/flowy/internal/launcher"
)

func (m model) View() string {
	if m.quitting {
		return ""
	}
	sections := []string{
		m.renderHeader(),
		m.renderInput(),
		m.renderItems(),
		m.renderFooter(),
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m model) renderHeader() string {
	state := m.theme.headerOK.Render("idle")
	if m.running > 0 {
		state = m.theme.headerRun.Render(fmt.Sprintf("%d running", m.running))
	}
	line := lipgloss.JoinHorizontal(lipgloss.Top,
		m.theme.brand.Render("flowy"),
		"  ",
		m.theme.headerSub.Render(fmt.Sprintf("%d items", len(m.items))),
		"  ",
		state,
	)
	return m.theme.headerBox.Render(line)
}

func (m model) renderInput() string {
	if m.mode == modeEdit {
		return lipgloss.JoinVertical(lipgloss.Left, m.query.View(), m.editInput.View())
	}
	return m.query.View()
}

func (m model) renderItems() string {
	if len(m.items) == 0 {
		if m.loading {
			return m.theme.empty.Render("searching...")
		}
		return m.theme.empty.Render("no items")
	}
	limit := len(m.items)
	if m.height > 0 {
		// header, input, footer and help take about eight lines; each item two.
		limit = max((m.height-8)/2, 1)
	}
	start := 0
	if m.cursor >= limit {
		start = m.cursor - limit + 1
	}
	end := min(start+limit, len(m.items))

	var b strings.Builder
	for index := start; index < end; index++ {
		item := m.items[index]
		title := m.theme.itemTitle.Render("  " + item.Title)
		if index == m.cursor {
			title = m.theme.itemSelected.Render("> " + item.Title)
			if actions := actionTitles(item); actions != "" {
				title += " " + m.theme.itemActions.Render(actions)
			}
		}
		b.WriteString(title)
		b.WriteString("\n")
		if item.Subtitle != "" {
			b.WriteString(m.theme.itemSubtitle.Render(item.Subtitle))
			b.WriteString("\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m model) renderFooter() string {
	var status string
	switch {
	case m.status == "":
		status = m.theme.footerInfo.Render("type a path, tab to descend")
	case m.statusErr:
		status = m.theme.footerErr.Render(m.status)
	default:
		status = m.theme.footerOK.Render(m.status)
	}
	return m.theme.footerBox.Render(lipgloss.JoinVertical(lipgloss.Left, status, m.help.View(m.keys)))
}

func actionTitles(item launcher.Item) string {
	if len(item.Actions) == 0 {
		return ""
	}
	titles := make([]string, 0, len(item.Actions))
	for _, action := range item.Actions {
		titles = append(titles, action.Title)
	}
	return "[" + strings.Join(titles, " | ") + "]"
}
