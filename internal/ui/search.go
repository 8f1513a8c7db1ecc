package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-runewidth"
)

// HistorySearch is the ctrl+r overlay over one session's history.
// The owner supplies the search function so results always come from the
// session that was active when the overlay opened.
type HistorySearch struct {
	input   textinput.Model
	search  func(query string) []string
	results []string
	cursor  int
	width   int
	height  int
	visible bool
	picked  string
}

func NewHistorySearch() *HistorySearch {
	ti := textinput.New()
	ti.Placeholder = "Search history..."
	ti.Prompt = "history> "
	ti.CharLimit = 200
	ti.Width = 50
	return &HistorySearch{input: ti}
}

// Show opens the overlay with query prefilled.
func (s *HistorySearch) Show(query string, search func(string) []string) {
	s.visible = true
	s.search = search
	s.picked = ""
	s.cursor = 0
	s.input.SetValue(query)
	s.input.CursorEnd()
	s.input.Focus()
	s.refresh()
}

func (s *HistorySearch) Hide() {
	s.visible = false
	s.input.Blur()
}

func (s *HistorySearch) IsVisible() bool { return s.visible }

func (s *HistorySearch) SetSize(width, height int) {
	s.width = width
	s.height = height
}

// Picked returns the entry chosen with enter, once.
func (s *HistorySearch) Picked() (string, bool) {
	p := s.picked
	s.picked = ""
	return p, p != ""
}

func (s *HistorySearch) Results() []string {
	return s.results
}

func (s *HistorySearch) refresh() {
	if s.search == nil {
		s.results = nil
	} else {
		s.results = s.search(s.input.Value())
	}
	if s.cursor >= len(s.results) {
		s.cursor = max(len(s.results)-1, 0)
	}
}

func (s *HistorySearch) Update(msg tea.Msg) (*HistorySearch, tea.Cmd) {
	if !s.visible {
		return s, nil
	}
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "esc", "ctrl+c":
			s.Hide()
			return s, nil
		case "enter":
			if len(s.results) > 0 {
				s.picked = s.results[s.cursor]
			}
			s.Hide()
			return s, nil
		case "up", "ctrl+p":
			if s.cursor > 0 {
				s.cursor--
			}
			return s, nil
		case "down", "ctrl+n", "ctrl+r":
			if s.cursor < len(s.results)-1 {
				s.cursor++
			}
			return s, nil
		}
	}

	var cmd tea.Cmd
	before := s.input.Value()
	s.input, cmd = s.input.Update(msg)
	if s.input.Value() != before {
		s.cursor = 0
		s.refresh()
	}
	return s, cmd
}

func (s *HistorySearch) View() string {
	if !s.visible {
		return ""
	}
	width := min(max(s.width-10, 30), 80)
	maxRows := max(s.height-12, 3)

	var b strings.Builder
	b.WriteString(DialogTitleStyle.Render("History"))
	b.WriteString("\n\n")
	b.WriteString(s.input.View())
	b.WriteString("\n\n")

	if len(s.results) == 0 {
		b.WriteString(DimStyle.Render("no matches"))
	}
	start := 0
	if s.cursor >= maxRows {
		start = s.cursor - maxRows + 1
	}
	end := min(start+maxRows, len(s.results))
	for i := start; i < end; i++ {
		entry := runewidth.Truncate(s.results[i], width-6, "…")
		if i == s.cursor {
			b.WriteString(SelectedStyle.Render("> " + entry))
		} else {
			b.WriteString("  " + entry)
		}
		if i < end-1 {
			b.WriteString("\n")
		}
	}

	box := DialogBoxStyle.Width(width).Render(b.String())
	return centerInScreen(box, s.width, s.height)
}
