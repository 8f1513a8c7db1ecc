// Package ui is the deck's terminal interface: a bubbletea model that
// shows the registry's visible sessions as panes with one input line for
// the active pane.
package ui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/asheshgoplani/opsdeck/internal/clipboard"
	"github.com/asheshgoplani/opsdeck/internal/deck"
)

const (
	sendTimeout     = 5 * time.Second
	statusLifetime  = 6 * time.Second
	chromeRows      = 2 // input line + status/menu bar
	defaultVPNAux   = "vpn"
	defaultServeAux = "http"
)

// Options configures a Model.
type Options struct {
	Registry   *deck.Registry
	Store      deck.ProfileStore // optional; enables :save and :load
	ProfileKey string
	// Theme is "dark", "light" or "auto". Auto follows the OS while the
	// deck runs.
	Theme    string
	VPNAux   string
	ServeAux string
	// OSC52 lets :copy fall back to the terminal clipboard escape.
	OSC52 bool
}

// Model is the deck's root bubbletea model.
type Model struct {
	ctx    context.Context
	cancel context.CancelFunc

	reg        *deck.Registry
	store      deck.ProfileStore
	profileKey string
	vpnAux     string
	serveAux   string
	osc52      bool
	copyText   func(text string, osc52 bool) (*clipboard.CopyResult, error)

	input  textinput.Model
	help   *HelpOverlay
	search *HistorySearch
	theme  *ThemeWatcher

	width, height int

	// focused is the session whose draft the input line holds.
	focused deck.SessionID
	// seen marks sessions already auto-connected on first display.
	seen map[deck.SessionID]bool

	status     string
	statusErr  bool
	statusTime time.Time

	quitting bool
}

type registryChangedMsg struct{}

type statusExpiredMsg struct{ at time.Time }

func New(opts Options) *Model {
	ctx, cancel := context.WithCancel(context.Background())

	ti := textinput.New()
	ti.Prompt = "> "
	ti.CharLimit = 4096
	ti.Focus()

	m := &Model{
		ctx:        ctx,
		cancel:     cancel,
		reg:        opts.Registry,
		store:      opts.Store,
		profileKey: opts.ProfileKey,
		vpnAux:     opts.VPNAux,
		serveAux:   opts.ServeAux,
		osc52:      opts.OSC52,
		copyText:   clipboard.Copy,
		input:      ti,
		help:       NewHelpOverlay(),
		search:     NewHistorySearch(),
		seen:       make(map[deck.SessionID]bool),
	}
	if m.vpnAux == "" {
		m.vpnAux = defaultVPNAux
	}
	if m.serveAux == "" {
		m.serveAux = defaultServeAux
	}

	InitTheme(string(ResolveTheme(opts.Theme)))
	if Theme(opts.Theme) == ThemeAuto {
		m.theme = NewThemeWatcher(ctx)
	}

	m.focused = m.reg.Active()
	if draft, err := m.reg.Draft(m.focused); err == nil {
		m.input.SetValue(draft)
	}
	return m
}

func (m *Model) Init() tea.Cmd {
	m.connectNewlyVisible()
	cmds := []tea.Cmd{textinput.Blink, m.waitForChange()}
	if cmd := m.theme.listen(); cmd != nil {
		cmds = append(cmds, cmd)
	}
	return tea.Batch(cmds...)
}

// Close stops background listeners. The registry belongs to the caller.
func (m *Model) Close() {
	m.theme.Close()
	m.cancel()
}

func (m *Model) waitForChange() tea.Cmd {
	changes, done := m.reg.Changes(), m.ctx.Done()
	return func() tea.Msg {
		select {
		case <-changes:
			return registryChangedMsg{}
		case <-done:
			return nil
		}
	}
}

func (m *Model) setStatus(text string, isErr bool) {
	m.status = text
	m.statusErr = isErr
	m.statusTime = time.Now()
}

func (m *Model) expireStatus() tea.Cmd {
	at := m.statusTime
	return tea.Tick(statusLifetime, func(time.Time) tea.Msg { return statusExpiredMsg{at: at} })
}

// syncFocus swaps the input line between per-session drafts when the
// active session changes.
func (m *Model) syncFocus() {
	active := m.reg.Active()
	if active == m.focused {
		return
	}
	_ = m.reg.Inject(m.focused, m.input.Value())
	m.focused = active
	draft, err := m.reg.Draft(active)
	if err != nil {
		draft = ""
	}
	m.input.SetValue(draft)
	m.input.CursorEnd()
}

// connectNewlyVisible connects each session the first time it is shown.
// Sessions the user disconnected stay disconnected.
func (m *Model) connectNewlyVisible() {
	for _, id := range m.reg.Visible() {
		if m.seen[id] {
			continue
		}
		m.seen[id] = true
		if err := m.reg.Connect(id); err != nil {
			uiLog.Warn("auto_connect_failed", slog.String("session", string(id)), slog.String("error", err.Error()))
		}
	}
}

// newPane adds a session, grows the layout to show it and focuses it.
func (m *Model) newPane() {
	id := m.reg.CreateSession()
	count := len(m.reg.Sessions())
	if layout := m.reg.Layout(); layout.Required() < count {
		for _, l := range deck.Layouts {
			if l.Required() >= count && l.Required() > layout.Required() {
				_ = m.reg.SetLayout(l)
				break
			}
		}
	}
	if err := m.reg.SetActive(id); err != nil {
		m.setStatus("session created but hidden: at most 4 panes are shown", true)
	}
	m.connectNewlyVisible()
	m.syncFocus()
}

func (m *Model) openSearch(query string) {
	active := m.reg.Active()
	m.search.SetSize(m.width, m.height)
	m.search.Show(query, func(q string) []string {
		out, _ := m.reg.SearchHistory(active, q)
		return out
	})
}

// activeBodyHeight is the transcript height of the active pane.
func (m *Model) activeBodyHeight() int {
	sizes := paneSizes(m.reg.Layout(), m.width, max(m.height-chromeRows, 3))
	active := m.reg.Active()
	for i, id := range m.reg.Visible() {
		if id == active && i < len(sizes) {
			return bodyHeight(sizes[i].h)
		}
	}
	return bodyHeight(m.height - chromeRows)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.input.Width = max(msg.Width-20, 10)
		m.help.SetSize(msg.Width, msg.Height)
		m.search.SetSize(msg.Width, msg.Height)
		return m, nil

	case registryChangedMsg:
		m.syncFocus()
		return m, m.waitForChange()

	case themeChangedMsg:
		InitTheme(string(msg.theme))
		return m, m.theme.listen()

	case profileDoneMsg:
		if msg.err != nil {
			m.setStatus(fmt.Sprintf("%s profile %q failed: %v", msg.action, msg.key, msg.err), true)
		} else {
			m.setStatus(fmt.Sprintf("%s profile %q done", msg.action, msg.key), false)
			if msg.action == "load" {
				m.seen = make(map[deck.SessionID]bool)
				m.focused = m.reg.Active()
				m.input.Reset()
				m.connectNewlyVisible()
			}
		}
		return m, m.expireStatus()

	case statusExpiredMsg:
		if msg.at.Equal(m.statusTime) {
			m.status = ""
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.help.IsVisible() {
		m.help.Update(msg)
		return m, nil
	}
	if m.search.IsVisible() {
		_, cmd := m.search.Update(msg)
		if picked, ok := m.search.Picked(); ok {
			_ = m.reg.Inject(m.reg.Active(), picked)
			m.input.SetValue(picked)
			m.input.CursorEnd()
		}
		return m, cmd
	}

	active := m.reg.Active()
	hadStatus := m.status

	switch {
	case key.Matches(msg, keys.Quit):
		m.quitting = true
		return m, tea.Quit

	case key.Matches(msg, keys.Interrupt):
		ctx, cancel := context.WithTimeout(m.ctx, sendTimeout)
		_ = m.reg.SendInterrupt(ctx, active)
		cancel()
		return m, nil

	case key.Matches(msg, keys.Submit):
		text := m.input.Value()
		m.input.Reset()
		_ = m.reg.Inject(active, "")
		if c, ok := parseCommand(text); ok {
			cmd := m.runCommand(c)
			return m, m.withStatusExpiry(hadStatus, cmd)
		}
		ctx, cancel := context.WithTimeout(m.ctx, sendTimeout)
		err := m.reg.SendCommand(ctx, active, text)
		cancel()
		if err != nil && !errors.Is(err, deck.ErrNotConnected) {
			m.setStatus(err.Error(), true)
		}
		return m, m.withStatusExpiry(hadStatus, nil)

	case key.Matches(msg, keys.HistPrev):
		if entry, err := m.reg.HistoryPrev(active); err == nil {
			m.input.SetValue(entry)
			m.input.CursorEnd()
		}
		return m, nil

	case key.Matches(msg, keys.HistNext):
		if entry, err := m.reg.HistoryNext(active); err == nil {
			m.input.SetValue(entry)
			m.input.CursorEnd()
		}
		return m, nil

	case key.Matches(msg, keys.NextPane):
		m.reg.CycleActive(1)
		m.syncFocus()
		return m, nil

	case key.Matches(msg, keys.PrevPane):
		m.reg.CycleActive(-1)
		m.syncFocus()
		return m, nil

	case key.Matches(msg, keys.FocusPane):
		s := msg.String()
		idx := int(s[len(s)-1] - '1')
		if visible := m.reg.Visible(); idx >= 0 && idx < len(visible) {
			_ = m.reg.SetActive(visible[idx])
			m.syncFocus()
		}
		return m, nil

	case key.Matches(msg, keys.NextLayout):
		_ = m.reg.SetLayout(m.reg.Layout().Next())
		m.connectNewlyVisible()
		m.syncFocus()
		return m, nil

	case key.Matches(msg, keys.ScrollUp):
		_ = m.reg.Scroll(active, max(m.activeBodyHeight()/2, 1), m.activeBodyHeight())
		return m, nil

	case key.Matches(msg, keys.ScrollDown):
		_ = m.reg.Scroll(active, -max(m.activeBodyHeight()/2, 1), m.activeBodyHeight())
		return m, nil

	case key.Matches(msg, keys.Search):
		m.openSearch(m.input.Value())
		return m, nil

	case key.Matches(msg, keys.NewPane):
		m.newPane()
		return m, nil

	case key.Matches(msg, keys.ClosePane):
		if err := m.reg.ClosePane(active); err != nil {
			m.setStatus(err.Error(), true)
			return m, m.expireStatus()
		}
		m.syncFocus()
		return m, nil

	case key.Matches(msg, keys.Connect):
		_ = m.reg.Connect(active)
		return m, nil

	case key.Matches(msg, keys.Help):
		m.help.Show()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// withStatusExpiry schedules clearing a status set during this update.
func (m *Model) withStatusExpiry(before string, cmd tea.Cmd) tea.Cmd {
	m.syncFocus()
	if m.status != "" && m.status != before {
		return tea.Batch(cmd, m.expireStatus())
	}
	return cmd
}

func (m *Model) View() string {
	if m.quitting {
		return ""
	}
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}
	if m.help.IsVisible() {
		return m.help.View()
	}
	if m.search.IsVisible() {
		return m.search.View()
	}

	layout := m.reg.Layout()
	sizes := paneSizes(layout, m.width, max(m.height-chromeRows, 3))
	infos := m.reg.Sessions()

	panes := make([]string, 0, len(sizes))
	i := 0
	for _, info := range infos {
		if !info.Visible || i >= len(sizes) {
			continue
		}
		view, err := m.reg.View(info.ID, bodyHeight(sizes[i].h))
		if err != nil {
			continue
		}
		panes = append(panes, renderPane(info, view, sizes[i]))
		i++
	}

	var b strings.Builder
	b.WriteString(arrangePanes(layout, panes))
	b.WriteString("\n")
	b.WriteString(m.promptLine(infos))
	b.WriteString("\n")
	b.WriteString(m.statusLine(infos))
	return b.String()
}

func (m *Model) promptLine(infos []deck.Info) string {
	label := "?"
	for _, info := range infos {
		if info.Active {
			label = info.Label
		}
	}
	m.input.Prompt = PromptStyle.Render(label + " > ")
	return m.input.View()
}

func (m *Model) statusLine(infos []deck.Info) string {
	if m.status != "" {
		style := StatusInfoStyle
		if m.statusErr {
			style = StatusErrorStyle
		}
		return MenuStyle.Width(m.width).Render(style.Render(m.status))
	}

	hidden := 0
	for _, info := range infos {
		if !info.Visible {
			hidden++
		}
	}
	items := []string{
		MenuKey("layout", string(m.reg.Layout())),
		MenuKey("tab", "pane"),
		MenuKey("ctrl+c", "interrupt"),
		MenuKey("ctrl+r", "history"),
		MenuKey(":vpn", "aux"),
		MenuKey("f1", "help"),
	}
	if hidden > 0 {
		items = append(items, DimStyle.Render(fmt.Sprintf("%d hidden", hidden)))
	}
	return MenuStyle.Width(m.width).Render(strings.Join(items, "  "))
}
