package deck

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryPrevOnEmpty(t *testing.T) {
	h := newHistory(10)
	_, ok := h.Prev()
	assert.False(t, ok)
	_, ok = h.Next()
	assert.False(t, ok)
}

func TestHistoryBounded(t *testing.T) {
	h := newHistory(3)
	for _, e := range []string{"1", "2", "3", "4", "5"} {
		h.Append(e)
	}
	assert.Equal(t, []string{"3", "4", "5"}, h.Entries())
}

func TestHistoryKeepsDuplicatesAndSkipsBlank(t *testing.T) {
	h := newHistory(10)
	h.Append("ls")
	h.Append("ls")
	h.Append("  ")
	assert.Equal(t, []string{"ls", "ls"}, h.Entries())
}

func TestHistoryAppendResetsCursor(t *testing.T) {
	h := newHistory(10)
	h.Append("a")
	h.Append("b")
	_, _ = h.Prev()
	_, _ = h.Prev()
	pos, ok := h.Cursor()
	require.True(t, ok)
	assert.Equal(t, 0, pos)

	h.Append("c")
	_, ok = h.Cursor()
	assert.False(t, ok)
	got, _ := h.Prev()
	assert.Equal(t, "c", got)
}

func TestNewHistoryFromTrims(t *testing.T) {
	h := newHistoryFrom([]string{"a", "b", "c"}, 2)
	assert.Equal(t, []string{"b", "c"}, h.Entries())
	_, ok := h.Cursor()
	assert.False(t, ok)
}

func TestHistorySearchRanksMatches(t *testing.T) {
	h := newHistoryFrom([]string{"gobuster dir -u http://x", "cat /etc/passwd", "curl http://x"}, 10)

	got := h.Search("passwd")
	require.NotEmpty(t, got)
	assert.Equal(t, "cat /etc/passwd", got[0])

	assert.Empty(t, h.Search("zzzz"))
}
