package ui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Submit     key.Binding
	Interrupt  key.Binding
	Quit       key.Binding
	HistPrev   key.Binding
	HistNext   key.Binding
	NextPane   key.Binding
	PrevPane   key.Binding
	NextLayout key.Binding
	ScrollUp   key.Binding
	ScrollDown key.Binding
	Search     key.Binding
	NewPane    key.Binding
	ClosePane  key.Binding
	Connect    key.Binding
	Help       key.Binding
	FocusPane  key.Binding
}

var keys = keyMap{
	Submit:     key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "send command")),
	Interrupt:  key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "interrupt shell")),
	Quit:       key.NewBinding(key.WithKeys("ctrl+q"), key.WithHelp("ctrl+q", "quit")),
	HistPrev:   key.NewBinding(key.WithKeys("up"), key.WithHelp("↑", "older command")),
	HistNext:   key.NewBinding(key.WithKeys("down"), key.WithHelp("↓", "newer command")),
	NextPane:   key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "next pane")),
	PrevPane:   key.NewBinding(key.WithKeys("shift+tab"), key.WithHelp("shift+tab", "previous pane")),
	NextLayout: key.NewBinding(key.WithKeys("ctrl+l"), key.WithHelp("ctrl+l", "cycle layout")),
	ScrollUp:   key.NewBinding(key.WithKeys("pgup"), key.WithHelp("pgup", "scroll back")),
	ScrollDown: key.NewBinding(key.WithKeys("pgdown"), key.WithHelp("pgdn", "scroll forward")),
	Search:     key.NewBinding(key.WithKeys("ctrl+r"), key.WithHelp("ctrl+r", "search history")),
	NewPane:    key.NewBinding(key.WithKeys("ctrl+n"), key.WithHelp("ctrl+n", "new session")),
	ClosePane:  key.NewBinding(key.WithKeys("ctrl+w"), key.WithHelp("ctrl+w", "close pane")),
	Connect:    key.NewBinding(key.WithKeys("ctrl+o"), key.WithHelp("ctrl+o", "connect pane")),
	Help:       key.NewBinding(key.WithKeys("f1"), key.WithHelp("f1", "help")),
	FocusPane:  key.NewBinding(key.WithKeys("alt+1", "alt+2", "alt+3", "alt+4"), key.WithHelp("alt+1-4", "focus pane")),
}

// helpSections groups bindings and : commands for the help overlay.
func helpSections() []helpSection {
	row := func(b key.Binding) [2]string {
		h := b.Help()
		return [2]string{h.Key, h.Desc}
	}
	return []helpSection{
		{
			title: "INPUT",
			items: [][2]string{
				row(keys.Submit), row(keys.Interrupt), row(keys.HistPrev),
				row(keys.HistNext), row(keys.Search),
			},
		},
		{
			title: "PANES",
			items: [][2]string{
				row(keys.NextPane), row(keys.PrevPane), row(keys.FocusPane),
				row(keys.NextLayout), row(keys.NewPane), row(keys.ClosePane),
				row(keys.Connect), row(keys.ScrollUp), row(keys.ScrollDown),
			},
		},
		{
			title: "COMMANDS",
			items: [][2]string{
				{":vpn <file>", "start the vpn (:vpn stop)"},
				{":serve <dir>", "serve a directory (:serve stop)"},
				{":aux <name> <arg>", "start any aux process"},
				{":stop", "stop the aux process"},
				{":layout <1|2h|2v|3|4>", "switch layout"},
				{":connect [all]", "connect pane(s)"},
				{":disconnect", "disconnect pane"},
				{":new / :close", "add or close a session"},
				{":save / :load [key]", "profile snapshot"},
				{":find <text>", "search history"},
				{":copy [n]", "copy the last n output lines"},
				{":theme <dark|light>", "switch colours"},
				{":q", "quit"},
			},
		},
		{
			title: "OTHER",
			items: [][2]string{row(keys.Help), row(keys.Quit)},
		},
	}
}
