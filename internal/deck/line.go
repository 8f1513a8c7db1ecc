package deck

import (
	"time"

	"github.com/asheshgoplani/opsdeck/internal/protocol"
)

// Kind is what produced a transcript line.
type Kind string

const (
	KindInput  Kind = "input"
	KindOutput Kind = "output"
	KindError  Kind = "error"
	KindSystem Kind = "system"
)

// Line is one transcript entry. Lines are append-only.
type Line struct {
	ID      uint64        `json:"id"`
	Content string        `json:"content"`
	Kind    Kind          `json:"kind"`
	Tone    protocol.Tone `json:"-"`
	Time    time.Time     `json:"time"`
}

// BufferView is a window onto a session's transcript.
type BufferView struct {
	Lines        []Line
	TotalLines   int
	ScrollOffset int
	AtBottom     bool
}

const defaultScrollback = 5000

// lineBuffer stores scrollback and scroll state. scrollOffset counts lines
// from the bottom; 0 means following new output.
type lineBuffer struct {
	lines        []Line
	scrollOffset int
	maxLines     int
}

func newLineBuffer(maxLines int) *lineBuffer {
	if maxLines <= 0 {
		maxLines = defaultScrollback
	}
	return &lineBuffer{maxLines: maxLines}
}

// Append adds lines, evicting the oldest past maxLines. A scrolled-up view
// stays anchored on the same content.
func (b *lineBuffer) Append(lines ...Line) {
	if len(lines) == 0 {
		return
	}
	b.lines = append(b.lines, lines...)
	if b.scrollOffset > 0 {
		b.scrollOffset += len(lines)
	}
	if len(b.lines) > b.maxLines {
		trim := len(b.lines) - b.maxLines
		b.lines = append([]Line(nil), b.lines[trim:]...)
		if b.scrollOffset > len(b.lines) {
			b.scrollOffset = len(b.lines)
		}
	}
}

func (b *lineBuffer) Len() int { return len(b.lines) }

// Lines returns a copy of every buffered line.
func (b *lineBuffer) Lines() []Line {
	return append([]Line(nil), b.lines...)
}

// Tail returns a copy of the newest n lines.
func (b *lineBuffer) Tail(n int) []Line {
	if n <= 0 || n >= len(b.lines) {
		return b.Lines()
	}
	return append([]Line(nil), b.lines[len(b.lines)-n:]...)
}

// Scroll moves the view by delta lines; positive is towards older output.
// limit is the viewport height.
func (b *lineBuffer) Scroll(delta, limit int) {
	b.scrollOffset = clampScroll(b.scrollOffset+delta, len(b.lines), limit)
}

func (b *lineBuffer) ResetScroll() { b.scrollOffset = 0 }

// View returns the lines visible in a viewport of height limit.
func (b *lineBuffer) View(limit int) BufferView {
	total := len(b.lines)
	if limit <= 0 || limit > total {
		limit = total
	}
	if max := maxScroll(total, limit); b.scrollOffset > max {
		b.scrollOffset = max
	}

	end := total - b.scrollOffset
	start := end - limit
	if start < 0 {
		start = 0
	}
	return BufferView{
		Lines:        append([]Line(nil), b.lines[start:end]...),
		TotalLines:   total,
		ScrollOffset: b.scrollOffset,
		AtBottom:     b.scrollOffset == 0,
	}
}

func maxScroll(total, limit int) int {
	if limit <= 0 || total <= limit {
		return 0
	}
	return total - limit
}

func clampScroll(offset, total, limit int) int {
	if offset < 0 {
		return 0
	}
	if max := maxScroll(total, limit); offset > max {
		return max
	}
	return offset
}
