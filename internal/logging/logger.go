package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Component names carried in the "component" field of every record.
const (
	CompBridge   = "bridge"
	CompProc     = "proc"
	CompProtocol = "protocol"
	CompDeck     = "deck"
	CompUI       = "ui"
	CompProfile  = "profile"
	CompHTTP     = "http"
	CompConfig   = "config"
)

// LogFileName is the rotated log file written inside Config.LogDir.
const LogFileName = "opsdeck.log"

// Config selects where records go and how the rotated file is kept.
// Zero values fall back to the defaults noted per field.
type Config struct {
	LogDir string // empty disables the file sink
	Level  string // debug, info (default), warn, error
	Format string // json (default) or text

	// Stderr mirrors every record to stderr. The bridge runs headless and
	// sets it; the deck never does because the terminal belongs to the TUI.
	Stderr bool

	MaxSizeMB  int // rotate after this many MB (10)
	MaxBackups int // rotated files kept (5)
	MaxAgeDays int // days a rotated file is kept (10)
	Compress   bool

	RingBufferSize        int // bytes of recent output kept for crash dumps (4MB)
	AggregateIntervalSecs int // event_summary flush interval (30)

	// PprofAddr starts a pprof listener when non-empty.
	PprofAddr string
}

func (c *Config) fillDefaults() {
	orDefault := func(v *int, def int) {
		if *v <= 0 {
			*v = def
		}
	}
	orDefault(&c.MaxSizeMB, 10)
	orDefault(&c.MaxBackups, 5)
	orDefault(&c.MaxAgeDays, 10)
	orDefault(&c.RingBufferSize, 4<<20)
	orDefault(&c.AggregateIntervalSecs, 30)
}

// sink is everything Init builds. It is replaced as a whole so readers
// never see a logger paired with another generation's ring or aggregator.
type sink struct {
	logger *slog.Logger
	ring   *RingBuffer
	agg    *Aggregator
	file   *lumberjack.Logger
}

var (
	mu      sync.RWMutex
	current *sink
)

var discardLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))

func active() *sink {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// ParseLevel maps a config string to a slog level. Unknown values are info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Init replaces the process-wide logger. With neither LogDir nor Stderr
// set, records are dropped but the ring and aggregator still exist.
func Init(cfg Config) {
	cfg.fillDefaults()
	s := openSink(cfg)

	mu.Lock()
	prev := current
	current = s
	mu.Unlock()
	prev.close()

	if s.agg != nil {
		s.agg.Start()
	}
	if cfg.PprofAddr != "" {
		startPprof(cfg.PprofAddr)
	}
}

func openSink(cfg Config) *sink {
	if cfg.LogDir == "" && !cfg.Stderr {
		return &sink{
			logger: discardLogger,
			ring:   NewRingBuffer(1024),
			agg:    NewAggregator(nil, cfg.AggregateIntervalSecs),
		}
	}

	s := &sink{ring: NewRingBuffer(cfg.RingBufferSize)}
	out := []io.Writer{s.ring}
	if cfg.LogDir != "" {
		s.file = &lumberjack.Logger{
			Filename:   filepath.Join(cfg.LogDir, LogFileName),
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		out = append(out, s.file)
	}
	if cfg.Stderr {
		out = append(out, os.Stderr)
	}

	s.logger = slog.New(newHandler(io.MultiWriter(out...), cfg.Format, ParseLevel(cfg.Level)))
	s.agg = NewAggregator(s.logger, cfg.AggregateIntervalSecs)
	return s
}

func newHandler(w io.Writer, format string, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(format, "text") {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

func (s *sink) close() {
	if s == nil {
		return
	}
	if s.agg != nil {
		s.agg.Stop()
	}
	if s.file != nil {
		_ = s.file.Close()
	}
}

// Logger returns the process-wide logger, or a discarding one before Init.
func Logger() *slog.Logger {
	if s := active(); s != nil {
		return s.logger
	}
	return discardLogger
}

// ForComponent returns a logger tagged with component. It resolves the
// process-wide handler on every record, so package-level loggers created
// before Init write to the right place afterwards.
func ForComponent(name string) *slog.Logger {
	return slog.New(&lateHandler{steps: []bindStep{{attrs: []slog.Attr{slog.String("component", name)}}}})
}

// bindStep is one WithAttrs or WithGroup call, replayed in order.
type bindStep struct {
	attrs []slog.Attr
	group string
}

type lateHandler struct {
	steps []bindStep
}

func (h *lateHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return Logger().Handler().Enabled(ctx, level)
}

func (h *lateHandler) Handle(ctx context.Context, r slog.Record) error {
	target := Logger().Handler()
	for _, st := range h.steps {
		if st.group != "" {
			target = target.WithGroup(st.group)
		} else {
			target = target.WithAttrs(st.attrs)
		}
	}
	return target.Handle(ctx, r)
}

func (h *lateHandler) with(st bindStep) *lateHandler {
	steps := make([]bindStep, len(h.steps), len(h.steps)+1)
	copy(steps, h.steps)
	return &lateHandler{steps: append(steps, st)}
}

func (h *lateHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	return h.with(bindStep{attrs: attrs})
}

func (h *lateHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return h.with(bindStep{group: name})
}

// Aggregate counts a high-frequency event toward the next event_summary.
func Aggregate(component, key string, fields ...slog.Attr) {
	AggregateBytes(component, key, 0, fields...)
}

// AggregateBytes is Aggregate for events that carry a payload size.
func AggregateBytes(component, key string, n int, fields ...slog.Attr) {
	if s := active(); s != nil && s.agg != nil {
		s.agg.RecordBytes(component, key, n, fields...)
	}
}

// DumpRingBuffer writes the recent records kept in memory to path.
// Before Init it does nothing.
func DumpRingBuffer(path string) error {
	s := active()
	if s == nil || s.ring == nil {
		return nil
	}
	return s.ring.DumpToFile(path)
}

// Shutdown flushes pending summaries and closes the log file.
func Shutdown() {
	mu.Lock()
	prev := current
	current = nil
	mu.Unlock()
	prev.close()
}
