package ui

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type helpSection struct {
	title string
	items [][2]string // key, description
}

// HelpOverlay lists key bindings and ":" commands. j/k scroll when the
// list is taller than the screen; any other key closes it.
type HelpOverlay struct {
	visible bool
	offset  int
	w, h    int
}

func NewHelpOverlay() *HelpOverlay { return &HelpOverlay{} }

func (o *HelpOverlay) Show()           { o.visible, o.offset = true, 0 }
func (o *HelpOverlay) Hide()           { o.visible = false }
func (o *HelpOverlay) IsVisible() bool { return o.visible }

func (o *HelpOverlay) SetSize(width, height int) { o.w, o.h = width, height }

func (o *HelpOverlay) Update(msg tea.Msg) (*HelpOverlay, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !o.visible || !ok {
		return o, nil
	}
	switch key.String() {
	case "j", "down":
		o.offset++
	case "k", "up":
		o.offset = max(o.offset-1, 0)
	default:
		o.Hide()
	}
	return o, nil
}

// body renders every section with keys padded to keyCol cells.
func (o *HelpOverlay) body(keyCol int) []string {
	heading := lipgloss.NewStyle().Foreground(colors.Cyan).Bold(true)
	keyStyle := lipgloss.NewStyle().Foreground(colors.Purple).Width(keyCol)
	desc := lipgloss.NewStyle().Foreground(colors.Text)

	out := []string{DialogTitleStyle.Render("OPSDECK")}
	for _, sec := range helpSections() {
		out = append(out, "", heading.Render(sec.title))
		for _, it := range sec.items {
			out = append(out, "  "+keyStyle.Render(it[0])+desc.Render(it[1]))
		}
	}
	return out
}

func (o *HelpOverlay) View() string {
	if !o.visible {
		return ""
	}
	width := 60
	if o.w > 0 && o.w < width+6 {
		width = max(o.w-6, 30)
	}
	keyCol := 24
	if width < 50 {
		keyCol = 16
	}

	lines := o.body(keyCol)
	rows := max(o.h-8, 10)
	overflow := max(len(lines)-rows, 0)
	o.offset = min(o.offset, overflow)
	visible := lines[o.offset:min(o.offset+rows, len(lines))]

	footer := "Press any key to close"
	if overflow > 0 {
		footer = "j/k scroll • any other key to close"
	}
	content := strings.Join(visible, "\n") + "\n\n" + DimStyle.Render(footer)
	return centerInScreen(DialogBoxStyle.Width(width).Render(content), o.w, o.h)
}
