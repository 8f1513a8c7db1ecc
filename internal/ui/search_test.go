package ui

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedSearch(results ...string) func(string) []string {
	return func(q string) []string {
		if q == "" {
			return results
		}
		var out []string
		for _, r := range results {
			if r == q {
				out = append(out, r)
			}
		}
		return out
	}
}

func TestHistorySearchHiddenByDefault(t *testing.T) {
	s := NewHistorySearch()
	assert.False(t, s.IsVisible())
	assert.Empty(t, s.View())
	_, ok := s.Picked()
	assert.False(t, ok)
}

func TestHistorySearchNavigateAndPick(t *testing.T) {
	s := NewHistorySearch()
	s.SetSize(100, 30)
	s.Show("", fixedSearch("nmap -sV", "whoami", "id"))
	require.Len(t, s.Results(), 3)

	s.Update(tea.KeyMsg{Type: tea.KeyDown})
	s.Update(tea.KeyMsg{Type: tea.KeyDown})
	s.Update(tea.KeyMsg{Type: tea.KeyDown})
	s.Update(tea.KeyMsg{Type: tea.KeyUp})
	s.Update(tea.KeyMsg{Type: tea.KeyEnter})

	assert.False(t, s.IsVisible())
	picked, ok := s.Picked()
	require.True(t, ok)
	assert.Equal(t, "whoami", picked)

	_, ok = s.Picked()
	assert.False(t, ok, "a pick is handed out once")
}

func TestHistorySearchEscPicksNothing(t *testing.T) {
	s := NewHistorySearch()
	s.Show("", fixedSearch("ls"))
	s.Update(tea.KeyMsg{Type: tea.KeyEsc})
	assert.False(t, s.IsVisible())
	_, ok := s.Picked()
	assert.False(t, ok)
}

func TestHistorySearchNoMatches(t *testing.T) {
	s := NewHistorySearch()
	s.SetSize(100, 30)
	s.Show("zzz", fixedSearch("ls"))
	assert.Empty(t, s.Results())
	assert.Contains(t, s.View(), "no matches")

	s.Update(tea.KeyMsg{Type: tea.KeyEnter})
	_, ok := s.Picked()
	assert.False(t, ok)
}
