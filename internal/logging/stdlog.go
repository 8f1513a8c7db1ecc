package logging

import (
	"context"
	"log"
	"log/slog"
	"strings"
)

// componentAliases folds the prefixes third-party loggers use onto our
// component names.
var componentAliases = map[string]string{
	"ws": CompBridge, "websocket": CompBridge, "bridge": CompBridge, "conn": CompBridge,
	"proc": CompProc, "pty": CompProc, "shell": CompProc, "aux": CompProc,
	"http": CompHTTP, "http-server": CompHTTP, "metrics": CompHTTP,
	"store": CompProfile, "profile": CompProfile, "sqlite": CompProfile,
}

// StdWriter is an io.Writer for *log.Logger consumers such as
// http.Server.ErrorLog. Each write becomes one record; a "[name] " or
// "http: " prefix picks the component.
type StdWriter struct {
	fallback string
	level    slog.Level
}

func NewStdWriter(defaultComponent string, level slog.Level) *StdWriter {
	return &StdWriter{fallback: defaultComponent, level: level}
}

// NewStdLogger wraps a StdWriter in a flagless *log.Logger.
func NewStdLogger(component string, level slog.Level) *log.Logger {
	return log.New(NewStdWriter(component, level), "", 0)
}

func (w *StdWriter) Write(p []byte) (int, error) {
	line := dropClock(strings.TrimSpace(string(p)))
	if line == "" {
		return len(p), nil
	}
	component, msg := w.split(line)
	ForComponent(component).Log(context.Background(), w.level, msg)
	return len(p), nil
}

func (w *StdWriter) split(line string) (component, msg string) {
	if rest, ok := strings.CutPrefix(line, "http: "); ok {
		return CompHTTP, rest
	}
	if inner, ok := strings.CutPrefix(line, "["); ok {
		if name, rest, ok := strings.Cut(inner, "] "); ok && name != "" {
			name = strings.ToLower(name)
			if alias, known := componentAliases[name]; known {
				return alias, rest
			}
			return name, rest
		}
	}
	return w.fallback, line
}

// dropClock strips the "15:04:05 " or "15:04:05.000000 " prefix that
// log.Ltime and log.Lmicroseconds add.
func dropClock(s string) string {
	isClock := func(c string) bool {
		return len(c) == 8 && c[2] == ':' && c[5] == ':'
	}
	head, rest, ok := strings.Cut(s, " ")
	if !ok {
		return s
	}
	if clock, frac, dotted := strings.Cut(head, "."); isClock(clock) && (!dotted || len(frac) == 6) {
		return rest
	}
	return s
}
