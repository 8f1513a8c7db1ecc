// Package deck is the client side of opsdeck: a registry of up to four
// terminal sessions, each with its own bridge connection, transcript and
// command history, shown through a shared pane layout.
package deck

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/asheshgoplani/opsdeck/internal/logging"
	"github.com/asheshgoplani/opsdeck/internal/protocol"
)

var deckLog = logging.ForComponent(logging.CompDeck)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrLastSession     = errors.New("cannot close the last session")
	ErrNotConnected    = errors.New("session is not connected")
	ErrEmptyArgument   = errors.New("argument is empty")
	ErrUnknownLayout   = errors.New("unknown layout")
	ErrSessionHidden   = errors.New("session is not visible in the current layout")
)

// Options bounds per-session state.
type Options struct {
	HistorySize     int
	ScrollbackLines int
	SnapshotLines   int
	Layout          Layout
}

// Registry owns every session, the layout and the active pointer.
// Sessions are kept in display order.
type Registry struct {
	dialer Dialer
	opts   Options

	baseCtx context.Context
	cancel  context.CancelFunc

	mu        sync.Mutex
	sessions  []*session
	layout    Layout
	active    SessionID
	nextLabel int

	changes chan struct{}
}

// NewRegistry creates a registry with enough disconnected sessions to
// fill opts.Layout (at least one).
func NewRegistry(dialer Dialer, opts Options) *Registry {
	if !opts.Layout.Valid() {
		opts.Layout = LayoutSingle
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &Registry{
		dialer:    dialer,
		opts:      opts,
		baseCtx:   ctx,
		cancel:    cancel,
		layout:    opts.Layout,
		nextLabel: 1,
		changes:   make(chan struct{}, 1),
	}
	r.mu.Lock()
	r.ensureLocked(opts.Layout.Required())
	r.active = r.sessions[0].id
	r.mu.Unlock()
	return r
}

// Changes delivers a coalesced signal whenever any session, the layout or
// the active pointer changes.
func (r *Registry) Changes() <-chan struct{} {
	return r.changes
}

func (r *Registry) notify() {
	select {
	case r.changes <- struct{}{}:
	default:
	}
}

func (r *Registry) newSessionLocked() *session {
	s := newSession(SessionID(uuid.NewString()), fmt.Sprintf("Terminal %d", r.nextLabel), r.opts)
	r.nextLabel++
	r.sessions = append(r.sessions, s)
	return s
}

func (r *Registry) ensureLocked(n int) {
	for len(r.sessions) < n {
		r.newSessionLocked()
	}
}

func (r *Registry) lookup(id SessionID) (*session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lookupLocked(id)
}

func (r *Registry) lookupLocked(id SessionID) (*session, error) {
	for _, s := range r.sessions {
		if s.id == id {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
}

func (r *Registry) visibleCountLocked() int {
	return min(len(r.sessions), r.layout.Required())
}

// CreateSession appends a disconnected session. It is visible only if the
// layout has room for it.
func (r *Registry) CreateSession() SessionID {
	r.mu.Lock()
	s := r.newSessionLocked()
	r.mu.Unlock()
	deckLog.Debug("session_created", slog.String("session", string(s.id)), slog.String("label", s.label))
	r.notify()
	return s.id
}

// Connect dials the bridge for id in the background. It is a no-op while
// the session is connecting or connected; there is no automatic retry.
func (r *Registry) Connect(id SessionID) error {
	s, err := r.lookup(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.state == StateConnecting || s.state == StateConnected {
		s.mu.Unlock()
		return nil
	}
	s.epoch++
	epoch := s.epoch
	ctx, cancel := context.WithCancel(r.baseCtx)
	s.cancel = cancel
	s.state = StateConnecting
	s.exitCode = nil
	s.appendLine(KindSystem, "connecting...")
	s.mu.Unlock()
	r.notify()

	go r.runConnection(ctx, s, epoch)
	return nil
}

// runConnection owns s's state transitions for one connection attempt.
// epoch guards against a Disconnect or ClosePane that raced with it.
func (r *Registry) runConnection(ctx context.Context, s *session, epoch uint64) {
	log := deckLog.With(slog.String("session", string(s.id)))

	conn, err := r.dialer.Dial(ctx)

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	if err != nil {
		s.state = StateError
		s.cancel = nil
		s.appendf(KindError, "connection failed: %v", err)
		s.mu.Unlock()
		log.Warn("connect_failed", slog.String("error", err.Error()))
		r.notify()
		return
	}
	s.conn = conn
	s.state = StateConnected
	s.appendLine(KindSystem, "connected")
	s.mu.Unlock()
	log.Info("session_connected")
	r.notify()

	var recvErr error
	for {
		m, err := conn.Recv()
		if err != nil {
			recvErr = err
			break
		}
		s.mu.Lock()
		if s.epoch != epoch {
			s.mu.Unlock()
			return
		}
		s.handle(m)
		s.mu.Unlock()
		r.notify()
	}

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return
	}
	s.detach()
	if errors.Is(recvErr, io.EOF) {
		s.state = StateDisconnected
		s.appendLine(KindSystem, "connection closed")
	} else {
		s.state = StateError
		s.appendf(KindError, "connection lost: %v", recvErr)
	}
	s.mu.Unlock()
	_ = conn.Close()
	log.Info("session_connection_ended", slog.String("reason", fmt.Sprint(recvErr)))
	r.notify()
}

// Disconnect closes id's connection on the user's behalf.
func (r *Registry) Disconnect(id SessionID) error {
	s, err := r.lookup(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.state != StateConnecting && s.state != StateConnected {
		s.mu.Unlock()
		return nil
	}
	conn := s.detach()
	s.state = StateDisconnected
	s.appendLine(KindSystem, "disconnected")
	s.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	r.notify()
	return nil
}

// SendCommand records text as input and history, then delivers it when
// connected. Undelivered commands stay in the transcript, followed by an
// error line.
func (r *Registry) SendCommand(ctx context.Context, id SessionID, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	s, err := r.lookup(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.history.Append(text)
	s.draft = ""
	s.lines.ResetScroll()
	s.appendLine(KindInput, text)
	conn := s.conn
	if s.state != StateConnected || conn == nil {
		s.appendLine(KindError, "not connected: command not delivered")
		s.mu.Unlock()
		r.notify()
		return ErrNotConnected
	}
	s.mu.Unlock()

	err = conn.Send(ctx, protocol.Literal(text))
	if err != nil {
		s.mu.Lock()
		s.appendf(KindError, "send failed: %v", err)
		s.mu.Unlock()
	}
	r.notify()
	return err
}

// SendInterrupt forwards an interrupt when connected. It always appends
// exactly one system line.
func (r *Registry) SendInterrupt(ctx context.Context, id SessionID) error {
	s, err := r.lookup(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	conn := s.conn
	connected := s.state == StateConnected && conn != nil
	s.mu.Unlock()

	var sendErr error
	line := "^C sent"
	if !connected {
		sendErr = ErrNotConnected
		line = "^C not delivered: not connected"
	} else if sendErr = conn.Send(ctx, protocol.Interrupt()); sendErr != nil {
		line = fmt.Sprintf("^C not delivered: %v", sendErr)
	}

	s.mu.Lock()
	s.appendLine(KindSystem, line)
	s.mu.Unlock()
	r.notify()
	return sendErr
}

// StartAux asks the bridge to start the named aux process. Empty names or
// arguments are rejected here and never sent.
func (r *Registry) StartAux(ctx context.Context, id SessionID, name, arg string) error {
	s, err := r.lookup(id)
	if err != nil {
		return err
	}
	name, arg = strings.TrimSpace(name), strings.TrimSpace(arg)
	if name == "" || arg == "" {
		s.mu.Lock()
		s.appendLine(KindError, "start aux: name and argument are required")
		s.mu.Unlock()
		r.notify()
		return ErrEmptyArgument
	}
	return r.sendDirective(ctx, s, protocol.StartAux(name, arg), "start "+name)
}

// StopAux asks the bridge to stop the running aux process.
func (r *Registry) StopAux(ctx context.Context, id SessionID) error {
	s, err := r.lookup(id)
	if err != nil {
		return err
	}
	return r.sendDirective(ctx, s, protocol.StopAux(), "stop aux")
}

func (r *Registry) sendDirective(ctx context.Context, s *session, m protocol.ClientMessage, what string) error {
	s.mu.Lock()
	conn := s.conn
	if s.state != StateConnected || conn == nil {
		s.appendf(KindError, "%s: not connected", what)
		s.mu.Unlock()
		r.notify()
		return ErrNotConnected
	}
	s.mu.Unlock()

	if err := conn.Send(ctx, m); err != nil {
		s.mu.Lock()
		s.appendf(KindError, "%s: %v", what, err)
		s.mu.Unlock()
		r.notify()
		return err
	}
	return nil
}

// SetLayout switches layout, creating sessions the layout needs. Sessions
// beyond the layout stay connected and buffered, only hidden.
func (r *Registry) SetLayout(layout Layout) error {
	if !layout.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownLayout, string(layout))
	}
	r.mu.Lock()
	r.layout = layout
	r.ensureLocked(layout.Required())
	r.keepActiveVisibleLocked()
	r.mu.Unlock()
	r.notify()
	return nil
}

// keepActiveVisibleLocked moves focus to the last visible session when
// the active one has been hidden.
func (r *Registry) keepActiveVisibleLocked() {
	n := r.visibleCountLocked()
	for _, s := range r.sessions[:n] {
		if s.id == r.active {
			return
		}
	}
	r.active = r.sessions[n-1].id
}

// Layout returns the current layout.
func (r *Registry) Layout() Layout {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.layout
}

// ClosePane disconnects and discards id. The last session cannot be
// closed. Closing the active session activates the last remaining one, and
// the layout steps down when too few sessions remain to fill it.
func (r *Registry) ClosePane(id SessionID) error {
	r.mu.Lock()
	idx := -1
	for i, s := range r.sessions {
		if s.id == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if len(r.sessions) == 1 {
		r.mu.Unlock()
		return ErrLastSession
	}

	s := r.sessions[idx]
	r.sessions = append(r.sessions[:idx:idx], r.sessions[idx+1:]...)
	if r.active == id {
		r.active = r.sessions[len(r.sessions)-1].id
	}
	r.layout = fitLayout(r.layout, len(r.sessions))
	r.keepActiveVisibleLocked()
	r.mu.Unlock()

	s.mu.Lock()
	conn := s.detach()
	s.state = StateDisconnected
	s.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}

	deckLog.Debug("session_closed", slog.String("session", string(id)))
	r.notify()
	return nil
}

// SetActive focuses a visible session.
func (r *Registry) SetActive(id SessionID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, s := range r.sessions {
		if s.id != id {
			continue
		}
		if i >= r.visibleCountLocked() {
			return fmt.Errorf("%w: %s", ErrSessionHidden, s.label)
		}
		r.active = id
		r.notify()
		return nil
	}
	return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
}

// CycleActive moves focus by delta among visible sessions, wrapping.
func (r *Registry) CycleActive(delta int) SessionID {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := r.visibleCountLocked()
	cur := 0
	for i, s := range r.sessions[:n] {
		if s.id == r.active {
			cur = i
		}
	}
	next := ((cur+delta)%n + n) % n
	r.active = r.sessions[next].id
	r.notify()
	return r.active
}

// Active returns the focused session.
func (r *Registry) Active() SessionID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Visible returns the sessions the layout shows, in display order.
func (r *Registry) Visible() []SessionID {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := r.visibleCountLocked()
	ids := make([]SessionID, 0, n)
	for _, s := range r.sessions[:n] {
		ids = append(ids, s.id)
	}
	return ids
}

// Sessions summarises every session in display order.
func (r *Registry) Sessions() []Info {
	r.mu.Lock()
	list := append([]*session(nil), r.sessions...)
	visible := r.visibleCountLocked()
	active := r.active
	r.mu.Unlock()

	out := make([]Info, 0, len(list))
	for i, s := range list {
		info := s.info()
		info.Visible = i < visible
		info.Active = s.id == active
		out = append(out, info)
	}
	return out
}

// Info summarises one session.
func (r *Registry) Info(id SessionID) (Info, error) {
	for _, info := range r.Sessions() {
		if info.ID == id {
			return info, nil
		}
	}
	return Info{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
}

// State returns id's connection state.
func (r *Registry) State(id SessionID) (State, error) {
	s, err := r.lookup(id)
	if err != nil {
		return StateDisconnected, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, nil
}

// Lines returns a copy of id's transcript.
func (r *Registry) Lines(id SessionID) ([]Line, error) {
	s, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lines.Lines(), nil
}

// View returns the part of id's transcript a pane of height limit shows.
func (r *Registry) View(id SessionID, limit int) (BufferView, error) {
	s, err := r.lookup(id)
	if err != nil {
		return BufferView{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lines.View(limit), nil
}

// Scroll moves id's view; positive delta shows older lines.
func (r *Registry) Scroll(id SessionID, delta, limit int) error {
	s, err := r.lookup(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.lines.Scroll(delta, limit)
	s.mu.Unlock()
	r.notify()
	return nil
}

// HistoryPrev steps id's history cursor towards older commands and
// returns the entry to show, clamped at the oldest.
func (r *Registry) HistoryPrev(id SessionID) (string, error) {
	s, err := r.lookup(id)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.history.Prev()
	if !ok {
		return s.draft, nil
	}
	return entry, nil
}

// HistoryNext steps towards newer commands. Past the newest it returns ""
// and unsets the cursor.
func (r *Registry) HistoryNext(id SessionID) (string, error) {
	s, err := r.lookup(id)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, _ := s.history.Next()
	return entry, nil
}

// HistoryCursor reports id's cursor position, if set.
func (r *Registry) HistoryCursor(id SessionID) (int, bool, error) {
	s, err := r.lookup(id)
	if err != nil {
		return 0, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, ok := s.history.Cursor()
	return pos, ok, nil
}

// History returns id's commands, oldest first.
func (r *Registry) History(id SessionID) ([]string, error) {
	s, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.Entries(), nil
}

// SearchHistory fuzzy-matches query against id's history, best first.
func (r *Registry) SearchHistory(id SessionID, query string) ([]string, error) {
	s, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.Search(query), nil
}

// Inject places text in id's input line without sending it. This is how
// other components direct a command at a pane.
func (r *Registry) Inject(id SessionID, text string) error {
	s, err := r.lookup(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.draft = text
	s.mu.Unlock()
	r.notify()
	return nil
}

// Draft returns id's pending input line.
func (r *Registry) Draft(id SessionID) (string, error) {
	s, err := r.lookup(id)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft, nil
}

// Close disconnects every session.
func (r *Registry) Close() {
	r.mu.Lock()
	list := append([]*session(nil), r.sessions...)
	r.mu.Unlock()

	for _, s := range list {
		s.mu.Lock()
		conn := s.detach()
		if s.state == StateConnecting || s.state == StateConnected {
			s.state = StateDisconnected
		}
		s.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
	}
	r.cancel()
}
