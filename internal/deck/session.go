package deck

import (
	"fmt"
	"sync"
	"time"

	"github.com/asheshgoplani/opsdeck/internal/protocol"
)

// SessionID identifies a session for its whole life.
type SessionID string

// State is a session's connection state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateError
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	default:
		return "disconnected"
	}
}

// session is one logical terminal. Its mutex guards everything below it;
// only the session's own connection goroutine and Registry operations
// addressed to it take the lock.
type session struct {
	id    SessionID
	label string

	mu         sync.Mutex
	state      State
	lines      *lineBuffer
	history    *history
	assemblers map[protocol.Stream]*protocol.LineAssembler
	draft      string
	nextLineID uint64

	conn     Conn
	cancel   func()
	epoch    uint64
	shellPID int
	exitCode *int
}

func newSession(id SessionID, label string, opts Options) *session {
	return &session{
		id:         id,
		label:      label,
		lines:      newLineBuffer(opts.ScrollbackLines),
		history:    newHistory(opts.HistorySize),
		assemblers: make(map[protocol.Stream]*protocol.LineAssembler),
	}
}

// appendLine must be called with mu held.
func (s *session) appendLine(kind Kind, content string) {
	s.nextLineID++
	s.lines.Append(Line{
		ID:      s.nextLineID,
		Content: content,
		Kind:    kind,
		Tone:    protocol.Classify(content),
		Time:    time.Now(),
	})
}

// restoreLine appends a persisted line with a fresh ID, keeping its time.
// Called with mu held.
func (s *session) restoreLine(l Line) {
	s.nextLineID++
	l.ID = s.nextLineID
	l.Tone = protocol.Classify(l.Content)
	if l.Time.IsZero() {
		l.Time = time.Now()
	}
	s.lines.Append(l)
}

func (s *session) appendf(kind Kind, format string, args ...any) {
	s.appendLine(kind, fmt.Sprintf(format, args...))
}

// handle applies one bridge message. Called with mu held.
func (s *session) handle(m protocol.ServerMessage) {
	switch m.Type {
	case protocol.TypeHello:
		s.shellPID = m.ShellPID
		s.exitCode = nil
	case protocol.TypeOutput:
		kind := KindOutput
		if m.Stream == protocol.StreamStderr {
			kind = KindError
		}
		for _, line := range s.assembler(m.Stream).Feed(m.Data) {
			s.appendLine(kind, line)
		}
	case protocol.TypeNotice:
		kind := KindSystem
		if m.Level == protocol.LevelError {
			kind = KindError
		}
		s.appendLine(kind, m.Render())
	case protocol.TypeAuxExit:
		s.flushStream(protocol.StreamAux)
	case protocol.TypeExit:
		s.flushAssemblers()
		code := m.Code
		s.exitCode = &code
	case protocol.TypePong:
	}
}

func (s *session) assembler(stream protocol.Stream) *protocol.LineAssembler {
	a, ok := s.assemblers[stream]
	if !ok {
		a = &protocol.LineAssembler{}
		s.assemblers[stream] = a
	}
	return a
}

// flushAssemblers emits any partial lines, stdout first.
func (s *session) flushAssemblers() {
	for _, stream := range []protocol.Stream{protocol.StreamStdout, protocol.StreamStderr, protocol.StreamAux} {
		s.flushStream(stream)
	}
}

func (s *session) flushStream(stream protocol.Stream) {
	a, ok := s.assemblers[stream]
	if !ok {
		return
	}
	if rest, ok := a.Flush(); ok {
		kind := KindOutput
		if stream == protocol.StreamStderr {
			kind = KindError
		}
		s.appendLine(kind, rest)
	}
}

// detach drops the live connection and returns it for closing outside
// the lock. Called with mu held.
func (s *session) detach() Conn {
	s.epoch++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	conn := s.conn
	s.conn = nil
	s.flushAssemblers()
	return conn
}

// Info is a read-only summary of a session.
type Info struct {
	ID       SessionID
	Label    string
	State    State
	Visible  bool
	Active   bool
	Lines    int
	ShellPID int
	ExitCode *int
}

func (s *session) info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	var code *int
	if s.exitCode != nil {
		c := *s.exitCode
		code = &c
	}
	return Info{
		ID:       s.id,
		Label:    s.label,
		State:    s.state,
		Lines:    s.lines.Len(),
		ShellPID: s.shellPID,
		ExitCode: code,
	}
}
