package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/asheshgoplani/opsdeck/internal/deck"
)

type paneSize struct {
	w, h int
}

// paneSizes returns the outer size of each visible pane in display order.
// 2h puts panes side by side, 2v stacks them, 3 is one tall pane on the
// left with two stacked on the right, 4 is a grid.
func paneSizes(layout deck.Layout, w, h int) []paneSize {
	left, right := w/2, w-w/2
	top, bottom := h/2, h-h/2
	switch layout {
	case deck.Layout2H:
		return []paneSize{{left, h}, {right, h}}
	case deck.Layout2V:
		return []paneSize{{w, top}, {w, bottom}}
	case deck.LayoutThree:
		return []paneSize{{left, h}, {right, top}, {right, bottom}}
	case deck.LayoutFour:
		return []paneSize{{left, top}, {right, top}, {left, bottom}, {right, bottom}}
	default:
		return []paneSize{{w, h}}
	}
}

// arrangePanes joins rendered panes the way paneSizes laid them out.
func arrangePanes(layout deck.Layout, panes []string) string {
	if len(panes) == 0 {
		return ""
	}
	switch {
	case layout == deck.Layout2H && len(panes) >= 2:
		return lipgloss.JoinHorizontal(lipgloss.Top, panes[0], panes[1])
	case layout == deck.Layout2V && len(panes) >= 2:
		return lipgloss.JoinVertical(lipgloss.Left, panes[0], panes[1])
	case layout == deck.LayoutThree && len(panes) >= 3:
		right := lipgloss.JoinVertical(lipgloss.Left, panes[1], panes[2])
		return lipgloss.JoinHorizontal(lipgloss.Top, panes[0], right)
	case layout == deck.LayoutFour && len(panes) >= 4:
		top := lipgloss.JoinHorizontal(lipgloss.Top, panes[0], panes[1])
		bottom := lipgloss.JoinHorizontal(lipgloss.Top, panes[2], panes[3])
		return lipgloss.JoinVertical(lipgloss.Left, top, bottom)
	}
	return panes[0]
}

// bodyHeight is the number of transcript rows inside a pane of outer
// height h: two border rows and the title row are taken.
func bodyHeight(h int) int {
	return max(h-3, 1)
}

// fitWidth expands tabs, truncates to width display cells and pads the rest.
func fitWidth(s string, width int) string {
	if width <= 0 {
		return ""
	}
	s = strings.ReplaceAll(s, "\t", "    ")
	if runewidth.StringWidth(s) > width {
		s = runewidth.Truncate(s, width, "…")
	}
	return runewidth.FillRight(s, width)
}

func paneTitle(info deck.Info, view deck.BufferView, width int) string {
	titleStyle := PaneTitleStyle
	if info.Active {
		titleStyle = PaneTitleActive
	}
	meta := info.State.String()
	if info.ShellPID > 0 && info.State == deck.StateConnected {
		meta += fmt.Sprintf(" · pid %d", info.ShellPID)
	}
	if info.ExitCode != nil {
		meta += fmt.Sprintf(" · exit %d", *info.ExitCode)
	}
	scroll := ""
	if !view.AtBottom {
		scroll = fmt.Sprintf(" [+%d]", view.ScrollOffset)
	}

	label := runewidth.Truncate(info.Label, max(width-runewidth.StringWidth(meta)-runewidth.StringWidth(scroll)-3, 4), "…")
	title := titleStyle.Render(label) + " " + stateStyle(info.State).Render(meta)
	if scroll != "" {
		title += PaneScrollStyle.Render(scroll)
	}
	return title
}

// renderPane draws one session into an outer box of size sz.
func renderPane(info deck.Info, view deck.BufferView, sz paneSize) string {
	innerW := max(sz.w-2, 1)
	innerH := max(sz.h-2, 1)
	rows := bodyHeight(sz.h)

	lines := make([]string, 0, innerH)
	lines = append(lines, paneTitle(info, view, innerW))
	for _, l := range view.Lines {
		lines = append(lines, lineStyle(l).Render(fitWidth(l.Content, innerW)))
	}
	for len(lines) < rows+1 {
		lines = append(lines, strings.Repeat(" ", innerW))
	}
	if len(lines) > innerH {
		lines = lines[:innerH]
	}

	style := PaneStyle
	if info.Active {
		style = PaneActiveStyle
	}
	return style.Width(innerW).Height(innerH).Render(strings.Join(lines, "\n"))
}
