package deck

import (
	"strings"

	"github.com/sahilm/fuzzy"
)

const defaultHistoryMax = 200

// history is one session's command list plus its navigation cursor.
// cursor is -1 when unset.
type history struct {
	entries []string
	max     int
	cursor  int
}

func newHistory(max int) *history {
	if max <= 0 {
		max = defaultHistoryMax
	}
	return &history{max: max, cursor: -1}
}

func newHistoryFrom(entries []string, max int) *history {
	h := newHistory(max)
	if len(entries) > h.max {
		entries = entries[len(entries)-h.max:]
	}
	h.entries = append([]string(nil), entries...)
	return h
}

// Append records a command and resets the cursor. Blank entries are ignored.
func (h *history) Append(entry string) {
	h.cursor = -1
	if strings.TrimSpace(entry) == "" {
		return
	}
	h.entries = append(h.entries, entry)
	if len(h.entries) > h.max {
		h.entries = append([]string(nil), h.entries[len(h.entries)-h.max:]...)
	}
}

// Prev moves towards older entries, stopping at the oldest.
func (h *history) Prev() (string, bool) {
	if len(h.entries) == 0 {
		return "", false
	}
	switch {
	case h.cursor < 0:
		h.cursor = len(h.entries) - 1
	case h.cursor > 0:
		h.cursor--
	}
	return h.entries[h.cursor], true
}

// Next moves towards newer entries. Stepping past the newest clears the
// input and unsets the cursor.
func (h *history) Next() (string, bool) {
	if h.cursor < 0 {
		return "", false
	}
	if h.cursor >= len(h.entries)-1 {
		h.cursor = -1
		return "", false
	}
	h.cursor++
	return h.entries[h.cursor], true
}

func (h *history) Cursor() (int, bool) {
	return h.cursor, h.cursor >= 0
}

func (h *history) Entries() []string {
	return append([]string(nil), h.entries...)
}

type historySource []string

func (s historySource) String(i int) string { return s[i] }
func (s historySource) Len() int            { return len(s) }

// Search ranks entries against query, best first. Identical commands
// appear once, newest occurrence kept. An empty query lists newest first.
func (h *history) Search(query string) []string {
	unique := make([]string, 0, len(h.entries))
	seen := make(map[string]bool, len(h.entries))
	for i := len(h.entries) - 1; i >= 0; i-- {
		if e := h.entries[i]; !seen[e] {
			seen[e] = true
			unique = append(unique, e)
		}
	}
	if strings.TrimSpace(query) == "" {
		return unique
	}

	matches := fuzzy.FindFrom(query, historySource(unique))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, unique[m.Index])
	}
	return out
}
