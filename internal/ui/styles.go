package ui

import (
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/asheshgoplani/opsdeck/internal/deck"
	"github.com/asheshgoplani/opsdeck/internal/protocol"
)

// Theme represents the current color scheme
type Theme string

const (
	ThemeDark  Theme = "dark"
	ThemeLight Theme = "light"
	ThemeAuto  Theme = "auto"
)

var currentTheme = ThemeDark

type palette struct {
	Bg, Surface, Border, Text, TextDim  lipgloss.Color
	Accent, Purple, Cyan, Green, Yellow lipgloss.Color
	Orange, Red, Comment                lipgloss.Color
}

// Tokyo Night
var darkColors = palette{
	Bg:      lipgloss.Color("#1a1b26"),
	Surface: lipgloss.Color("#24283b"),
	Border:  lipgloss.Color("#414868"),
	Text:    lipgloss.Color("#c0caf5"),
	TextDim: lipgloss.Color("#787fa0"),
	Accent:  lipgloss.Color("#7aa2f7"),
	Purple:  lipgloss.Color("#bb9af7"),
	Cyan:    lipgloss.Color("#7dcfff"),
	Green:   lipgloss.Color("#9ece6a"),
	Yellow:  lipgloss.Color("#e0af68"),
	Orange:  lipgloss.Color("#ff9e64"),
	Red:     lipgloss.Color("#f7768e"),
	Comment: lipgloss.Color("#787fa0"),
}

// Tokyo Night Light
var lightColors = palette{
	Bg:      lipgloss.Color("#d5d6db"),
	Surface: lipgloss.Color("#e9e9ec"),
	Border:  lipgloss.Color("#9699a3"),
	Text:    lipgloss.Color("#343b58"),
	TextDim: lipgloss.Color("#6a6d7c"),
	Accent:  lipgloss.Color("#34548a"),
	Purple:  lipgloss.Color("#7847bd"),
	Cyan:    lipgloss.Color("#166775"),
	Green:   lipgloss.Color("#485e30"),
	Yellow:  lipgloss.Color("#8f5e15"),
	Orange:  lipgloss.Color("#965027"),
	Red:     lipgloss.Color("#8c4351"),
	Comment: lipgloss.Color("#6a6d7c"),
}

var colors palette

// themeMu protects the style variables during live theme switches.
var themeMu sync.RWMutex

// InitTheme sets the active palette. Anything other than "light" is dark;
// resolve "auto" with ResolveTheme first.
func InitTheme(theme string) {
	themeMu.Lock()
	defer themeMu.Unlock()
	if Theme(theme) == ThemeLight {
		currentTheme = ThemeLight
		colors = lightColors
	} else {
		currentTheme = ThemeDark
		colors = darkColors
	}
	initStyles()
}

// GetCurrentTheme returns the active theme
func GetCurrentTheme() Theme {
	themeMu.RLock()
	defer themeMu.RUnlock()
	return currentTheme
}

func init() {
	InitTheme(string(ThemeDark))
}

// Pane styles
var (
	PaneStyle       lipgloss.Style
	PaneActiveStyle lipgloss.Style
	PaneTitleStyle  lipgloss.Style
	PaneTitleActive lipgloss.Style
	PaneMetaStyle   lipgloss.Style
	PaneScrollStyle lipgloss.Style
)

// Transcript line styles, by kind and tone
var (
	LineInputStyle   lipgloss.Style
	LineOutputStyle  lipgloss.Style
	LineErrorStyle   lipgloss.Style
	LineSystemStyle  lipgloss.Style
	LineRequestStyle lipgloss.Style
	LineFailureStyle lipgloss.Style
)

// Connection state badges
var (
	StateConnectedStyle    lipgloss.Style
	StateConnectingStyle   lipgloss.Style
	StateDisconnectedStyle lipgloss.Style
	StateErrorStyle        lipgloss.Style
)

// Bars and overlays
var (
	MenuStyle        lipgloss.Style
	MenuKeyStyle     lipgloss.Style
	MenuDescStyle    lipgloss.Style
	PromptStyle      lipgloss.Style
	StatusInfoStyle  lipgloss.Style
	StatusErrorStyle lipgloss.Style
	DialogBoxStyle   lipgloss.Style
	DialogTitleStyle lipgloss.Style
	SelectedStyle    lipgloss.Style
	DimStyle         lipgloss.Style
)

// initStyles rebuilds every style from the active palette.
// Called by InitTheme with themeMu held.
func initStyles() {
	PaneStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colors.Border)

	PaneActiveStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colors.Accent)

	PaneTitleStyle = lipgloss.NewStyle().
		Foreground(colors.TextDim).
		Bold(true)

	PaneTitleActive = lipgloss.NewStyle().
		Foreground(colors.Accent).
		Bold(true)

	PaneMetaStyle = lipgloss.NewStyle().
		Foreground(colors.Comment)

	PaneScrollStyle = lipgloss.NewStyle().
		Foreground(colors.Yellow).
		Bold(true)

	LineInputStyle = lipgloss.NewStyle().
		Foreground(colors.Cyan).
		Bold(true)

	LineOutputStyle = lipgloss.NewStyle().
		Foreground(colors.Text)

	LineErrorStyle = lipgloss.NewStyle().
		Foreground(colors.Red)

	LineSystemStyle = lipgloss.NewStyle().
		Foreground(colors.Purple)

	LineRequestStyle = lipgloss.NewStyle().
		Foreground(colors.Green)

	LineFailureStyle = lipgloss.NewStyle().
		Foreground(colors.Orange)

	StateConnectedStyle = lipgloss.NewStyle().Foreground(colors.Green).Bold(true)
	StateConnectingStyle = lipgloss.NewStyle().Foreground(colors.Yellow).Bold(true)
	StateDisconnectedStyle = lipgloss.NewStyle().Foreground(colors.Comment)
	StateErrorStyle = lipgloss.NewStyle().Foreground(colors.Red).Bold(true)

	MenuStyle = lipgloss.NewStyle().
		Background(colors.Surface).
		Foreground(colors.Text).
		Padding(0, 1)

	MenuKeyStyle = lipgloss.NewStyle().
		Foreground(colors.Accent).
		Bold(true)

	MenuDescStyle = lipgloss.NewStyle().
		Foreground(colors.TextDim)

	PromptStyle = lipgloss.NewStyle().
		Foreground(colors.Purple).
		Bold(true)

	StatusInfoStyle = lipgloss.NewStyle().
		Foreground(colors.Cyan)

	StatusErrorStyle = lipgloss.NewStyle().
		Foreground(colors.Red).
		Bold(true)

	DialogBoxStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colors.Purple).
		Padding(1, 2).
		Background(colors.Surface)

	DialogTitleStyle = lipgloss.NewStyle().
		Foreground(colors.Purple).
		Bold(true)

	SelectedStyle = lipgloss.NewStyle().
		Foreground(colors.Bg).
		Background(colors.Accent)

	DimStyle = lipgloss.NewStyle().
		Foreground(colors.Comment)
}

// lineStyle picks the style for a transcript line. Kind wins over tone
// except for plain output, where tone adds colour.
func lineStyle(l deck.Line) lipgloss.Style {
	themeMu.RLock()
	defer themeMu.RUnlock()
	switch l.Kind {
	case deck.KindInput:
		return LineInputStyle
	case deck.KindError:
		return LineErrorStyle
	case deck.KindSystem:
		return LineSystemStyle
	}
	switch l.Tone {
	case protocol.ToneRequest:
		return LineRequestStyle
	case protocol.ToneFailure:
		return LineFailureStyle
	case protocol.ToneNotice:
		return LineSystemStyle
	}
	return LineOutputStyle
}

func stateStyle(s deck.State) lipgloss.Style {
	themeMu.RLock()
	defer themeMu.RUnlock()
	switch s {
	case deck.StateConnected:
		return StateConnectedStyle
	case deck.StateConnecting:
		return StateConnectingStyle
	case deck.StateError:
		return StateErrorStyle
	}
	return StateDisconnectedStyle
}

// MenuKey renders one "key desc" hint for the menu bar.
func MenuKey(key, desc string) string {
	return MenuKeyStyle.Render(key) + " " + MenuDescStyle.Render(desc)
}

// centerInScreen places content in the middle of a width x height area.
func centerInScreen(content string, width, height int) string {
	if width <= 0 || height <= 0 {
		return content
	}
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, content)
}
