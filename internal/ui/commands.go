package ui

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/asheshgoplani/opsdeck/internal/deck"
)

// command is a parsed ":" line. arg is everything after the name with
// inner spacing kept, so paths with spaces survive.
type command struct {
	name string
	arg  string
}

// parseCommand recognises ":name arg". Lines that do not start with ':'
// are shell input.
func parseCommand(line string) (command, bool) {
	line = strings.TrimSpace(line)
	rest, ok := strings.CutPrefix(line, ":")
	if !ok || rest == "" {
		return command{}, false
	}
	name, arg, _ := strings.Cut(rest, " ")
	return command{name: strings.ToLower(name), arg: strings.TrimSpace(arg)}, true
}

var errUnknownCommand = errors.New("unknown command")

// profileDoneMsg reports a finished :save or :load.
type profileDoneMsg struct {
	action string
	key    string
	err    error
}

const (
	profileTimeout   = 10 * time.Second
	defaultCopyLines = 50
)

// runCommand executes a ":" command against the active session.
func (m *Model) runCommand(c command) tea.Cmd {
	active := m.reg.Active()
	ctx, cancel := context.WithTimeout(m.ctx, sendTimeout)
	defer cancel()

	var err error
	switch c.name {
	case "vpn":
		err = m.auxCommand(ctx, active, m.vpnAux, c.arg)
	case "serve", "http":
		err = m.auxCommand(ctx, active, m.serveAux, c.arg)
	case "aux":
		name, arg, _ := strings.Cut(c.arg, " ")
		err = m.auxCommand(ctx, active, name, strings.TrimSpace(arg))
	case "stop":
		err = m.reg.StopAux(ctx, active)
	case "layout":
		var layout deck.Layout
		if layout, err = deck.ParseLayout(c.arg); err == nil {
			err = m.reg.SetLayout(layout)
			m.connectNewlyVisible()
		}
	case "connect":
		if c.arg == "all" {
			for _, id := range m.reg.Visible() {
				_ = m.reg.Connect(id)
			}
		} else {
			err = m.reg.Connect(active)
		}
	case "disconnect":
		err = m.reg.Disconnect(active)
	case "new":
		m.newPane()
	case "close":
		err = m.reg.ClosePane(active)
	case "copy":
		err = m.copyLines(active, c.arg)
	case "find", "history":
		m.openSearch(c.arg)
	case "theme":
		theme := ResolveTheme(c.arg)
		InitTheme(string(theme))
		m.setStatus(fmt.Sprintf("theme %s", theme), false)
	case "save", "load":
		return m.profileCommand(c.name, c.arg)
	case "help":
		m.help.Show()
	case "q", "quit":
		m.quitting = true
		return tea.Quit
	default:
		err = fmt.Errorf("%w %q (F1 for help)", errUnknownCommand, ":"+c.name)
	}

	if err != nil {
		m.setStatus(err.Error(), true)
	}
	return nil
}

// auxCommand handles ":vpn <arg>" and friends; "stop" as the argument
// stops the aux slot instead.
func (m *Model) auxCommand(ctx context.Context, id deck.SessionID, name, arg string) error {
	if arg == "stop" {
		return m.reg.StopAux(ctx, id)
	}
	return m.reg.StartAux(ctx, id, name, arg)
}

func (m *Model) profileCommand(action, key string) tea.Cmd {
	if m.store == nil {
		m.setStatus("no profile store configured", true)
		return nil
	}
	if key == "" {
		key = m.profileKey
	}
	reg, store, parent := m.reg, m.store, m.ctx
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(parent, profileTimeout)
		defer cancel()
		var err error
		if action == "save" {
			err = reg.SaveProfile(ctx, store, key)
		} else {
			err = reg.LoadProfile(ctx, store, key)
		}
		return profileDoneMsg{action: action, key: key, err: err}
	}
}

// copyLines puts the newest n output and error lines of id on the
// clipboard. Input echoes and system lines are left out.
func (m *Model) copyLines(id deck.SessionID, arg string) error {
	n := defaultCopyLines
	if arg != "" {
		v, err := strconv.Atoi(arg)
		if err != nil || v <= 0 {
			return fmt.Errorf("copy: %q is not a line count", arg)
		}
		n = v
	}
	lines, err := m.reg.Lines(id)
	if err != nil {
		return err
	}
	var picked []string
	for i := len(lines) - 1; i >= 0 && len(picked) < n; i-- {
		if lines[i].Kind == deck.KindOutput || lines[i].Kind == deck.KindError {
			picked = append(picked, lines[i].Content)
		}
	}
	if len(picked) == 0 {
		return errors.New("copy: nothing to copy")
	}
	slices.Reverse(picked)

	res, err := m.copyText(strings.Join(picked, "\n")+"\n", m.osc52)
	if err != nil {
		return err
	}
	m.setStatus(fmt.Sprintf("copied %d lines (%s)", res.LineCount, res.Method), false)
	return nil
}
