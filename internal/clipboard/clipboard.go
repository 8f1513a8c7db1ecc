// Package clipboard copies pane text out of the deck.
package clipboard

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	sysclip "github.com/atotto/clipboard"
	osc52 "github.com/aymanbagabas/go-osc52/v2"
)

// CopyResult describes a successful copy.
type CopyResult struct {
	Method    string // "native" or "osc52"
	ByteSize  int
	LineCount int
}

var (
	ErrEmpty       = errors.New("no content to copy")
	ErrUnavailable = errors.New("no clipboard available (install xclip, xsel or wl-copy, or allow osc52)")
)

// Replaced in tests.
var (
	nativeSupported = func() bool { return !sysclip.Unsupported }
	writeNative     = sysclip.WriteAll
	openTTY         = func() (io.WriteCloser, error) { return os.OpenFile("/dev/tty", os.O_WRONLY, 0) }
)

// Copy puts text on the system clipboard, falling back to an OSC 52
// escape on the controlling terminal when allowOSC52 is set. OSC 52 is
// what makes copying work over SSH.
func Copy(text string, allowOSC52 bool) (*CopyResult, error) {
	if text == "" {
		return nil, ErrEmpty
	}
	res := &CopyResult{ByteSize: len(text), LineCount: countLines(text)}

	if nativeSupported() {
		if err := writeNative(text); err == nil {
			res.Method = "native"
			return res, nil
		}
	}
	if !allowOSC52 {
		return nil, ErrUnavailable
	}

	tty, err := openTTY()
	if err != nil {
		return nil, fmt.Errorf("osc52: open terminal: %w", err)
	}
	defer tty.Close()
	if _, err := sequence(text, os.Getenv("TMUX"), os.Getenv("TERM")).WriteTo(tty); err != nil {
		return nil, fmt.Errorf("osc52: %w", err)
	}
	res.Method = "osc52"
	return res, nil
}

// sequence wraps the OSC 52 escape for tmux or screen when needed.
func sequence(text, tmux, term string) osc52.Sequence {
	seq := osc52.New(text)
	switch {
	case tmux != "":
		seq = seq.Tmux()
	case strings.HasPrefix(term, "screen"):
		seq = seq.Screen()
	}
	return seq
}

// countLines counts lines; a trailing newline does not add one.
func countLines(text string) int {
	if text == "" {
		return 0
	}
	n := strings.Count(text, "\n")
	if !strings.HasSuffix(text, "\n") {
		n++
	}
	return n
}
