// Package bridge is the agent side of opsdeck: a loopback WebSocket server
// that gives every connection its own shell and a single aux process slot.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/asheshgoplani/opsdeck/internal/config"
	"github.com/asheshgoplani/opsdeck/internal/logging"
	"github.com/asheshgoplani/opsdeck/internal/profile"
)

var bridgeLog = logging.ForComponent(logging.CompBridge)

// Option customises a Server.
type Option func(*Server)

// WithProfileStore serves b under /api/profile/.
func WithProfileStore(b profile.Backend) Option {
	return func(s *Server) { s.store = b }
}

// Server wraps the HTTP server and tracks live connections.
type Server struct {
	cfg        config.BridgeConfig
	httpServer *http.Server
	metrics    *metrics
	store      profile.Backend
	baseCtx    context.Context
	cancelBase context.CancelFunc

	aux atomic.Pointer[map[string]config.AuxConfig]

	connsMu sync.Mutex
	conns   map[string]*Connection
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     allowWSOrigin,
}

// allowWSOrigin accepts non-browser clients and same-host pages.
func allowWSOrigin(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	originURL, err := url.Parse(origin)
	if err != nil || originURL.Host == "" {
		return false
	}
	return strings.EqualFold(originURL.Host, r.Host)
}

// NewServer creates a bridge server with its routes and middleware.
func NewServer(cfg config.BridgeConfig, opts ...Option) *Server {
	if cfg.Listen == "" {
		cfg.Listen = "127.0.0.1:8765"
	}
	if cfg.KillGrace.Duration <= 0 {
		cfg.KillGrace = config.D(2 * time.Second)
	}

	s := &Server{
		cfg:     cfg,
		metrics: newMetrics(),
		conns:   make(map[string]*Connection),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.SetAuxCatalog(cfg.Aux)
	s.baseCtx, s.cancelBase = context.WithCancel(context.Background())

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", s.metrics.handler())
	if s.store != nil {
		mux.Handle(profile.RoutePrefix, profile.Handler(s.store))
	}

	s.httpServer = &http.Server{
		Addr:              cfg.Listen,
		Handler:           withRecover(mux),
		BaseContext:       func(_ net.Listener) context.Context { return s.baseCtx },
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
		ErrorLog:          logging.NewStdLogger(logging.CompHTTP, slog.LevelWarn),
	}
	return s
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Handler returns the configured HTTP handler (used by tests).
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// SetAuxCatalog replaces the aux catalog. Running aux processes keep
// running; only later start_aux requests see the change.
func (s *Server) SetAuxCatalog(catalog map[string]config.AuxConfig) {
	cp := make(map[string]config.AuxConfig, len(catalog))
	for name, aux := range catalog {
		cp[name] = aux
	}
	s.aux.Store(&cp)
}

// ApplyConfig takes the parts of a reloaded config that can change live.
func (s *Server) ApplyConfig(cfg *config.Config) {
	s.SetAuxCatalog(cfg.Bridge.Aux)
	bridgeLog.Info("aux_catalog_reloaded", slog.String("aux", strings.Join(cfg.AuxNames(), ",")))
}

func (s *Server) auxCatalog() map[string]config.AuxConfig {
	return *s.aux.Load()
}

// ConnectionCount returns the number of live connections.
func (s *Server) ConnectionCount() int {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	return len(s.conns)
}

// Start listens on the configured address and blocks until shutdown.
// Returns nil on graceful shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Listen, err)
	}
	return s.Serve(ln)
}

// Serve accepts on ln until shutdown.
func (s *Server) Serve(ln net.Listener) error {
	bridgeLog.Info("bridge_listening", slog.String("addr", ln.Addr().String()))
	err := s.httpServer.Serve(ln)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown closes every live connection concurrently, terminating their
// processes, then stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.cancelBase != nil {
		s.cancelBase()
	}

	s.connsMu.Lock()
	live := make([]*Connection, 0, len(s.conns))
	for _, c := range s.conns {
		live = append(live, c)
	}
	s.connsMu.Unlock()

	var g errgroup.Group
	for _, c := range live {
		g.Go(func() error {
			c.Close()
			return nil
		})
	}
	_ = g.Wait()

	err := s.httpServer.Shutdown(ctx)
	if err == nil {
		return nil
	}

	// Force close as a fallback so Ctrl+C exits promptly.
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		if closeErr := s.httpServer.Close(); closeErr != nil {
			return fmt.Errorf("graceful shutdown timed out and force close failed: %w", closeErr)
		}
		return nil
	}
	return err
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ws, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	c := newConnection(ws, s.cfg, s.auxCatalog, s.metrics)
	s.track(c)
	defer s.untrack(c)

	c.Run(r.Context())
}

func (s *Server) track(c *Connection) {
	s.connsMu.Lock()
	s.conns[c.ID()] = c
	s.connsMu.Unlock()
	s.metrics.connections.Inc()
}

func (s *Server) untrack(c *Connection) {
	s.connsMu.Lock()
	delete(s.conns, c.ID())
	s.connsMu.Unlock()
	s.metrics.connections.Dec()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	catalog := s.auxCatalog()
	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	sort.Strings(names)
	resp := map[string]any{
		"ok":          true,
		"connections": s.ConnectionCount(),
		"aux":         names,
		"store":       s.store != nil,
		"time":        time.Now().UTC().Format(time.RFC3339),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func withRecover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logging.ForComponent(logging.CompHTTP).Error("panic",
					slog.String("recover", fmt.Sprintf("%v", rec)),
					slog.String("path", r.URL.Path))
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) String() string {
	return fmt.Sprintf("bridge-server(addr=%s, store=%t)", s.cfg.Listen, s.store != nil)
}
