package bridge

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/asheshgoplani/opsdeck/internal/protocol"
)

const writeWait = 10 * time.Second

// wsConnWriter serialises writes; gorilla allows one concurrent writer and
// output arrives from several process readers at once.
type wsConnWriter struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func newWSConnWriter(conn *websocket.Conn) *wsConnWriter {
	return &wsConnWriter{conn: conn}
}

func (w *wsConnWriter) Send(m protocol.ServerMessage) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return w.conn.WriteJSON(m)
}

func (w *wsConnWriter) Notice(level protocol.Level, format string, args ...any) error {
	return w.Send(protocol.Notice(level, format, args...))
}

// CloseWith sends a close frame; the caller still closes the socket.
func (w *wsConnWriter) CloseWith(code int, text string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, text),
		time.Now().Add(time.Second),
	)
}
