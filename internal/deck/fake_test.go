package deck

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/asheshgoplani/opsdeck/internal/protocol"
)

const waitTimeout = 5 * time.Second

// fakeConn is an in-memory bridge link. Tests push server messages with
// deliver and end the link with hangup.
type fakeConn struct {
	in   chan protocol.ServerMessage
	done chan struct{}

	mu      sync.Mutex
	sent    []protocol.ClientMessage
	endErr  error
	sendErr error
	closed  bool
	once    sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:   make(chan protocol.ServerMessage, 64),
		done: make(chan struct{}),
	}
}

func (c *fakeConn) Send(_ context.Context, m protocol.ClientMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, m)
	return nil
}

func (c *fakeConn) Recv() (protocol.ServerMessage, error) {
	select {
	case m, ok := <-c.in:
		if !ok {
			c.mu.Lock()
			defer c.mu.Unlock()
			if c.endErr != nil {
				return protocol.ServerMessage{}, c.endErr
			}
			return protocol.ServerMessage{}, io.EOF
		}
		return m, nil
	case <-c.done:
		return protocol.ServerMessage{}, io.EOF
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.done)
	})
	return nil
}

func (c *fakeConn) deliver(msgs ...protocol.ServerMessage) {
	for _, m := range msgs {
		c.in <- m
	}
}

// hangup ends the link from the bridge side; err nil means a clean close.
func (c *fakeConn) hangup(err error) {
	c.mu.Lock()
	c.endErr = err
	c.mu.Unlock()
	close(c.in)
}

func (c *fakeConn) Sent() []protocol.ClientMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]protocol.ClientMessage(nil), c.sent...)
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type fakeDialer struct {
	mu    sync.Mutex
	err   error
	conns []*fakeConn
}

func (d *fakeDialer) Dial(context.Context) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	c := newFakeConn()
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) last() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

func newTestRegistry(t *testing.T, opts Options) (*Registry, *fakeDialer) {
	t.Helper()
	d := &fakeDialer{}
	r := NewRegistry(d, opts)
	t.Cleanup(r.Close)
	return r, d
}

func waitState(t *testing.T, r *Registry, id SessionID, want State) {
	t.Helper()
	require.Eventually(t, func() bool {
		st, err := r.State(id)
		return err == nil && st == want
	}, waitTimeout, 5*time.Millisecond, "session never reached %s", want)
}

// connect connects id and returns its fake link once Connected.
func connect(t *testing.T, r *Registry, d *fakeDialer, id SessionID) *fakeConn {
	t.Helper()
	before := d.dialCount()
	require.NoError(t, r.Connect(id))
	waitState(t, r, id, StateConnected)
	require.Equal(t, before+1, d.dialCount())
	return d.last()
}

func contents(lines []Line) []string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		out = append(out, l.Content)
	}
	return out
}

func linesOfKind(lines []Line, kind Kind) []string {
	var out []string
	for _, l := range lines {
		if l.Kind == kind {
			out = append(out, l.Content)
		}
	}
	return out
}

func waitLine(t *testing.T, r *Registry, id SessionID, content string) {
	t.Helper()
	require.Eventually(t, func() bool {
		lines, err := r.Lines(id)
		if err != nil {
			return false
		}
		for _, l := range lines {
			if l.Content == content {
				return true
			}
		}
		return false
	}, waitTimeout, 5*time.Millisecond, "line %q never appeared", content)
}
