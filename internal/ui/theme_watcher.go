package ui

import (
	"context"
	"log/slog"

	tea "github.com/charmbracelet/bubbletea"
	dark "github.com/thiagokokada/dark-mode-go"

	"github.com/asheshgoplani/opsdeck/internal/logging"
)

var uiLog = logging.ForComponent(logging.CompUI)

// ResolveTheme turns a configured theme into dark or light. "auto" asks
// the OS and falls back to dark when it cannot tell.
func ResolveTheme(setting string) Theme {
	switch Theme(setting) {
	case ThemeLight:
		return ThemeLight
	case ThemeAuto:
		isDark, err := dark.IsDarkMode()
		if err != nil {
			uiLog.Debug("dark_mode_query_failed", slog.String("error", err.Error()))
			return ThemeDark
		}
		if !isDark {
			return ThemeLight
		}
	}
	return ThemeDark
}

type themeChangedMsg struct {
	theme Theme
}

// ThemeWatcher follows OS dark mode while the deck runs with theme "auto".
// Only the most recent change is kept until the model asks for it.
type ThemeWatcher struct {
	latest chan Theme
	ctx    context.Context
	stop   context.CancelFunc
}

// NewThemeWatcher returns nil when the platform has no dark mode
// notifications. All methods accept a nil receiver.
func NewThemeWatcher(parent context.Context) *ThemeWatcher {
	ctx, stop := context.WithCancel(parent)
	events, errs, err := dark.WatchDarkMode(ctx)
	if err != nil {
		stop()
		uiLog.Warn("theme_watcher_init_failed", slog.String("error", err.Error()))
		return nil
	}
	tw := &ThemeWatcher{latest: make(chan Theme, 1), ctx: ctx, stop: stop}
	go tw.run(events, errs)
	return tw
}

func (tw *ThemeWatcher) run(events <-chan bool, errs <-chan error) {
	defer tw.stop()
	for events != nil {
		select {
		case <-tw.ctx.Done():
			return
		case isDark, ok := <-events:
			if !ok {
				return
			}
			t := ThemeLight
			if isDark {
				t = ThemeDark
			}
			tw.offer(t)
		case err, ok := <-errs:
			if !ok {
				errs = nil
			} else if err != nil {
				uiLog.Warn("theme_watcher_error", slog.String("error", err.Error()))
			}
		}
	}
}

// offer replaces any unread theme with t.
func (tw *ThemeWatcher) offer(t Theme) {
	select {
	case <-tw.latest:
	default:
	}
	tw.latest <- t
}

// listen waits for the next change. The returned command yields nil once
// the watcher is closed.
func (tw *ThemeWatcher) listen() tea.Cmd {
	if tw == nil {
		return nil
	}
	return func() tea.Msg {
		select {
		case t := <-tw.latest:
			return themeChangedMsg{theme: t}
		case <-tw.ctx.Done():
			return nil
		}
	}
}

// Close stops watching. It may be called more than once.
func (tw *ThemeWatcher) Close() {
	if tw != nil {
		tw.stop()
	}
}
