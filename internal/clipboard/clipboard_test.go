package clipboard

import (
	"bytes"
	"encoding/base64"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopCloser struct{ *bytes.Buffer }

func (nopCloser) Close() error { return nil }

// stub swaps the native clipboard and the terminal for the test.
func stub(t *testing.T, supported bool, nativeErr error) (*[]string, *bytes.Buffer) {
	t.Helper()
	oldSupported, oldWrite, oldTTY := nativeSupported, writeNative, openTTY
	t.Cleanup(func() { nativeSupported, writeNative, openTTY = oldSupported, oldWrite, oldTTY })

	var written []string
	tty := &bytes.Buffer{}
	nativeSupported = func() bool { return supported }
	writeNative = func(s string) error {
		if nativeErr != nil {
			return nativeErr
		}
		written = append(written, s)
		return nil
	}
	openTTY = func() (io.WriteCloser, error) { return nopCloser{tty}, nil }
	return &written, tty
}

func TestCopyEmpty(t *testing.T) {
	_, err := Copy("", true)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestCopyNative(t *testing.T) {
	written, tty := stub(t, true, nil)
	res, err := Copy("10.10.10.5\n22/tcp open ssh\n", true)
	require.NoError(t, err)
	assert.Equal(t, "native", res.Method)
	assert.Equal(t, 2, res.LineCount)
	assert.Equal(t, []string{"10.10.10.5\n22/tcp open ssh\n"}, *written)
	assert.Zero(t, tty.Len())
}

func TestCopyFallsBackToOSC52(t *testing.T) {
	t.Setenv("TMUX", "")
	t.Setenv("TERM", "xterm-256color")
	_, tty := stub(t, true, errors.New("xclip: cannot open display"))

	res, err := Copy("hash", true)
	require.NoError(t, err)
	assert.Equal(t, "osc52", res.Method)
	assert.Contains(t, tty.String(), base64.StdEncoding.EncodeToString([]byte("hash")))
	assert.Contains(t, tty.String(), "\x1b]52;c;")
}

func TestCopyWithoutAnyMethod(t *testing.T) {
	_, tty := stub(t, false, nil)
	_, err := Copy("hash", false)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Zero(t, tty.Len())
}

func TestSequenceWrapsForTmux(t *testing.T) {
	plain := sequence("x", "", "xterm").String()
	tmux := sequence("x", "/tmp/tmux-0/default,1,0", "xterm").String()
	assert.NotEqual(t, plain, tmux)
	assert.Contains(t, tmux, "tmux;")
}

func TestCountLines(t *testing.T) {
	assert.Equal(t, 0, countLines(""))
	assert.Equal(t, 1, countLines("one"))
	assert.Equal(t, 3, countLines("a\nb\nc\n"))
	assert.Equal(t, 3, countLines("a\nb\nc"))
	assert.Equal(t, 3, countLines("\n\n\n"))
}
