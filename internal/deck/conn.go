package deck

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/asheshgoplani/opsdeck/internal/protocol"
)

// Conn is one session's link to the bridge.
type Conn interface {
	Send(ctx context.Context, m protocol.ClientMessage) error
	// Recv blocks for the next message. io.EOF means the bridge closed the
	// link normally.
	Recv() (protocol.ServerMessage, error)
	Close() error
}

// Dialer opens Conns. Each Connect call dials once.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// WSDialer dials the bridge's WebSocket endpoint.
type WSDialer struct {
	URL     string
	Timeout time.Duration
	Header  http.Header

	// Legacy sends the older text dialect in binary frames.
	Legacy bool
}

func (d WSDialer) Dial(ctx context.Context) (Conn, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.Timeout,
	}
	if dialer.HandshakeTimeout <= 0 {
		dialer.HandshakeTimeout = 5 * time.Second
	}
	conn, resp, err := dialer.DialContext(ctx, d.URL, d.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: status %d: %w", d.URL, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial %s: %w", d.URL, err)
	}
	return &wsConn{conn: conn, legacy: d.Legacy}, nil
}

type wsConn struct {
	conn   *websocket.Conn
	legacy bool
	mu     sync.Mutex
}

func (c *wsConn) Send(ctx context.Context, m protocol.ClientMessage) error {
	msgType := websocket.TextMessage
	var payload []byte
	if c.legacy {
		frame, err := protocol.EncodeLegacy(m)
		if err != nil {
			return err
		}
		msgType, payload = websocket.BinaryMessage, []byte(frame)
	} else {
		var err error
		if payload, err = protocol.EncodeClient(m); err != nil {
			return err
		}
	}

	deadline := time.Now().Add(10 * time.Second)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(deadline)
	return c.conn.WriteMessage(msgType, payload)
}

func (c *wsConn) Recv() (protocol.ServerMessage, error) {
	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return protocol.ServerMessage{}, io.EOF
			}
			return protocol.ServerMessage{}, err
		}
		m, err := protocol.DecodeServer(payload)
		if err != nil {
			deckLog.Debug("server_message_dropped", slog.String("error", err.Error()))
			continue
		}
		return m, nil
	}
}

func (c *wsConn) Close() error {
	c.mu.Lock()
	_ = c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(200*time.Millisecond),
	)
	c.mu.Unlock()
	return c.conn.Close()
}
