package tui

import "github.com/charmbracelet/lipgloss"

type theme struct {
	brand lipgloss.Style

	headerBox lipgloss.Style
	headerSub lipgloss.Style
	headerOK  lipgloss.Style
	headerRun lipgloss.Style

	inputPrompt      lipgloss.Style
	inputText        lipgloss.Style
	inputPlaceholder lipgloss.Style

	itemTitle    lipgloss.Style
	itemSubtitle lipgloss.Style
	itemSelected lipgloss.Style
	itemActions  lipgloss.Style
	empty        lipgloss.Style

	footerBox  lipgloss.Style
	footerInfo lipgloss.Style
	footerErr  lipgloss.Style
	footerOK   lipgloss.Style
}

func newTheme() theme {
	border := lipgloss.Color("238")
	text := lipgloss.Color("252")
	muted := lipgloss.Color("246")
	subtle := lipgloss.Color("243")
	accent := lipgloss.Color("111")
	success := lipgloss.Color("78")
	warn := lipgloss.Color("214")
	danger := lipgloss.Color("203")

	return theme{
		brand: lipgloss.NewStyle().
			Bold(true).
			Foreground(accent),

		headerBox: lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, false, true, false).
			BorderForeground(border).
			Padding(0, 1),
		headerSub: lipgloss.NewStyle().Foreground(muted),
		headerOK:  lipgloss.NewStyle().Bold(true).Foreground(success),
		headerRun: lipgloss.NewStyle().Bold(true).Foreground(warn),

		inputPrompt:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("147")),
		inputText:        lipgloss.NewStyle().Foreground(lipgloss.Color("255")),
		inputPlaceholder: lipgloss.NewStyle().Foreground(subtle),

		itemTitle:    lipgloss.NewStyle().Foreground(text).Padding(0, 1),
		itemSubtitle: lipgloss.NewStyle().Foreground(subtle).Padding(0, 3),
		itemSelected: lipgloss.NewStyle().
			Bold(true).
			Foreground(accent).
			Padding(0, 1),
		itemActions: lipgloss.NewStyle().Foreground(lipgloss.Color("151")),
		empty:       lipgloss.NewStyle().Foreground(muted).Padding(0, 1),

		footerBox: lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), true, false, false, false).
			BorderForeground(border).
			Padding(0, 1),
		footerInfo: lipgloss.NewStyle().Foreground(text),
		footerErr:  lipgloss.NewStyle().Bold(true).Foreground(danger),
		footerOK:   lipgloss.NewStyle().Bold(true).Foreground(success),
	}
}
