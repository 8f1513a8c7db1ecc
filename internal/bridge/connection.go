package bridge

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/asheshgoplani/opsdeck/internal/config"
	"github.com/asheshgoplani/opsdeck/internal/logging"
	"github.com/asheshgoplani/opsdeck/internal/protocol"
)

const maxMessageBytes = 1 << 20

// Connection is one bridge socket. It owns exactly one shell for its whole
// life and a single aux slot.
type Connection struct {
	id      string
	ws      *websocket.Conn
	writer  *wsConnWriter
	cfg     config.BridgeConfig
	catalog func() map[string]config.AuxConfig
	metrics *metrics
	log     *slog.Logger

	limiter   *rate.Limiter
	throttled bool

	shell *ManagedProcess

	auxMu    sync.Mutex
	aux      *ManagedProcess
	auxGen   uint64
	auxTimer *time.Timer

	closeOnce sync.Once
	closed    chan struct{}
}

func newConnection(ws *websocket.Conn, cfg config.BridgeConfig, catalog func() map[string]config.AuxConfig, m *metrics) *Connection {
	id := uuid.NewString()
	return &Connection{
		id:      id,
		ws:      ws,
		writer:  newWSConnWriter(ws),
		cfg:     cfg,
		catalog: catalog,
		metrics: m,
		log:     logging.ForComponent(logging.CompBridge).With(slog.String("conn", id)),
		limiter: newInputLimiter(cfg),
		closed:  make(chan struct{}),
	}
}

// newInputLimiter paces inbound messages. A non-positive rate never limits.
func newInputLimiter(cfg config.BridgeConfig) *rate.Limiter {
	if cfg.InputRate <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(cfg.InputRate), max(cfg.InputBurst, 1))
}

// ID returns the connection's uuid.
func (c *Connection) ID() string { return c.id }

// Run spawns the shell and serves the socket until it closes or ctx ends.
func (c *Connection) Run(ctx context.Context) {
	defer c.Close()

	if err := c.spawnShell(); err != nil {
		c.metrics.spawnFailures.Inc()
		c.log.Error("shell_spawn_failed", slog.String("error", err.Error()))
		_ = c.writer.Notice(protocol.LevelError, "failed to start shell: %v", err)
		_ = c.writer.CloseWith(websocket.CloseInternalServerErr, "shell spawn failed")
		return
	}

	pid := c.shell.PID()
	_ = c.writer.Send(protocol.Hello(c.id, pid))
	_ = c.writer.Notice(protocol.LevelSuccess, "shell started (pid %d)", pid)
	c.log.Info("connection_open", slog.Int("shell_pid", pid))

	stop := context.AfterFunc(ctx, c.Close)
	defer stop()

	c.ws.SetReadLimit(maxMessageBytes)
	for {
		msgType, payload, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(
				err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				c.log.Warn("websocket_closed_unexpectedly", slog.String("error", err.Error()))
			}
			return
		}

		if !c.limiter.Allow() {
			if !c.throttled {
				c.throttled = true
				_ = c.writer.Notice(protocol.LevelWarn, "input rate limit exceeded, dropping messages")
			}
			logging.Aggregate(logging.CompBridge, "input_dropped")
			continue
		}
		c.throttled = false

		var msg protocol.ClientMessage
		if msgType == websocket.BinaryMessage {
			msg = protocol.DecodeLegacy(string(payload))
		} else {
			msg, err = protocol.DecodeClient(payload)
			if err != nil {
				_ = c.writer.Notice(protocol.LevelError, "rejected message: %v", err)
				continue
			}
		}
		c.dispatch(msg)
	}
}

func (c *Connection) spawnShell() error {
	sh := c.cfg.Shell
	p, err := Spawn(ProcessSpec{
		Kind:    KindShell,
		Name:    "shell",
		Command: sh.Command,
		Args:    sh.Args,
		Env:     sh.Env,
		Dir:     sh.Dir,
		UsePTY:  sh.UsePTY,
	}, c.forward, c.shellExited)
	if err != nil {
		return err
	}
	c.shell = p
	c.metrics.processStarted(KindShell)
	return nil
}

// dispatch handles one decoded message. Directive kinds are exclusive, so
// precedence only matters for the legacy dialect, where DecodeLegacy has
// already applied it.
func (c *Connection) dispatch(msg protocol.ClientMessage) {
	c.metrics.directives.WithLabelValues(string(msg.Type)).Inc()

	switch msg.Type {
	case protocol.KindStartAux:
		c.startAux(msg.Aux, msg.Arg)
	case protocol.KindStopAux:
		c.stopAux()
	case protocol.KindInterrupt:
		c.interrupt()
	case protocol.KindLiteral:
		c.input(msg.Data)
	case protocol.KindPing:
		_ = c.writer.Send(protocol.Pong())
	default:
		_ = c.writer.Notice(protocol.LevelError, "unsupported message type %q", msg.Type)
	}
}

func (c *Connection) input(data string) {
	if c.shell == nil || !c.shell.Alive() {
		_ = c.writer.Notice(protocol.LevelError, "shell is not running")
		return
	}
	if err := c.shell.Write([]byte(data + "\n")); err != nil {
		_ = c.writer.Notice(protocol.LevelError, "failed to write to shell: %v", err)
	}
}

func (c *Connection) interrupt() {
	if c.shell == nil || !c.shell.Alive() {
		_ = c.writer.Notice(protocol.LevelError, "shell is not running")
		return
	}
	if err := c.shell.Signal(syscall.SIGINT); err != nil {
		_ = c.writer.Notice(protocol.LevelError, "interrupt failed: %v", err)
		return
	}
	c.log.Debug("shell_interrupted", slog.Int("shell_pid", c.shell.PID()))
}

func (c *Connection) startAux(name, arg string) {
	name = strings.TrimSpace(name)
	arg = strings.TrimSpace(arg)
	if name == "" || arg == "" {
		_ = c.writer.Notice(protocol.LevelError, "start_aux needs an aux name and an argument")
		return
	}
	spec, ok := c.catalog()[name]
	if !ok {
		_ = c.writer.Notice(protocol.LevelError, "unknown aux process %q", name)
		return
	}

	c.auxMu.Lock()
	if c.aux != nil && c.aux.Alive() {
		running, pid := c.aux.Name(), c.aux.PID()
		c.auxMu.Unlock()
		c.metrics.auxRejections.Inc()
		_ = c.writer.Notice(protocol.LevelError, "%s already running (pid %d), stop it first", running, pid)
		return
	}

	c.auxGen++
	gen := c.auxGen
	p, err := Spawn(ProcessSpec{
		Kind:    KindAux,
		Name:    name,
		Command: spec.Command,
		Args:    spec.ExpandArgs(arg),
		Env:     spec.Env,
	}, c.forward, func(code int) { c.auxExited(gen, name, code) })
	if err != nil {
		c.auxMu.Unlock()
		c.metrics.spawnFailures.Inc()
		c.log.Warn("aux_spawn_failed", slog.String("aux", name), slog.String("error", err.Error()))
		_ = c.writer.Notice(protocol.LevelError, "failed to start %s: %v", name, err)
		return
	}
	c.aux = p
	c.metrics.processStarted(KindAux)
	if timeout := spec.Timeout.Duration; timeout > 0 {
		c.auxTimer = time.AfterFunc(timeout, func() { c.auxTimedOut(gen, timeout) })
	}
	c.auxMu.Unlock()

	c.log.Info("aux_started", slog.String("aux", name), slog.Int("pid", p.PID()))
	_ = c.writer.Notice(protocol.LevelSuccess, "%s started (pid %d)", name, p.PID())
}

func (c *Connection) stopAux() {
	c.auxMu.Lock()
	p := c.aux
	c.aux = nil
	if c.auxTimer != nil {
		c.auxTimer.Stop()
		c.auxTimer = nil
	}
	c.auxMu.Unlock()

	if p == nil || !p.Alive() {
		_ = c.writer.Notice(protocol.LevelWarn, "nothing to stop")
		return
	}
	p.Stop(c.cfg.KillGrace.Duration)
	c.log.Info("aux_stopped", slog.String("aux", p.Name()), slog.Int("pid", p.PID()))
	_ = c.writer.Notice(protocol.LevelSuccess, "%s stopped (pid %d)", p.Name(), p.PID())
}

func (c *Connection) auxTimedOut(gen uint64, after time.Duration) {
	c.auxMu.Lock()
	p := c.aux
	if c.auxGen != gen || p == nil {
		c.auxMu.Unlock()
		return
	}
	c.auxMu.Unlock()

	_ = c.writer.Notice(protocol.LevelWarn, "%s timed out after %s", p.Name(), after)
	p.Stop(c.cfg.KillGrace.Duration)
}

// auxExited runs when an aux process is reaped, after its output has been
// forwarded. Every reaped aux sends aux_exit; only a process still in the
// slot gets the "exited" notice, stopped ones were already announced.
func (c *Connection) auxExited(gen uint64, name string, code int) {
	c.metrics.processExited(KindAux)

	c.auxMu.Lock()
	current := c.auxGen == gen && c.aux != nil
	if current {
		c.aux = nil
		if c.auxTimer != nil {
			c.auxTimer.Stop()
			c.auxTimer = nil
		}
	}
	c.auxMu.Unlock()

	if c.isClosed() {
		return
	}
	_ = c.writer.Send(protocol.AuxExit(code))
	if current {
		_ = c.writer.Notice(protocol.LevelInfo, "%s exited with code %d", name, code)
	}
}

func (c *Connection) shellExited(code int) {
	c.metrics.processExited(KindShell)
	if c.isClosed() {
		return
	}
	c.log.Info("shell_exited", slog.Int("code", code))
	_ = c.writer.Send(protocol.Exit(code))
	_ = c.writer.Notice(protocol.LevelWarn, "shell exited with code %d", code)
}

func (c *Connection) forward(stream protocol.Stream, chunk []byte) {
	logging.AggregateBytes(logging.CompBridge, "output_"+string(stream), len(chunk))
	_ = c.writer.Send(protocol.Output(stream, chunk))
}

func (c *Connection) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// AuxPID returns the running aux process's pid, or 0.
func (c *Connection) AuxPID() int {
	c.auxMu.Lock()
	defer c.auxMu.Unlock()
	if c.aux == nil || !c.aux.Alive() {
		return 0
	}
	return c.aux.PID()
}

// Close terminates the aux process, then the shell, then the socket.
// It blocks until both processes are gone. Safe to call more than once.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)

		c.auxMu.Lock()
		aux := c.aux
		c.aux = nil
		if c.auxTimer != nil {
			c.auxTimer.Stop()
			c.auxTimer = nil
		}
		c.auxMu.Unlock()

		grace := c.cfg.KillGrace.Duration
		if grace <= 0 {
			grace = 2 * time.Second
		}
		if aux != nil {
			aux.Terminate(grace)
		}
		if c.shell != nil {
			c.shell.Terminate(grace)
		}

		_ = c.writer.CloseWith(websocket.CloseGoingAway, "")
		_ = c.ws.Close()
		c.log.Info("connection_closed")
	})
}
