package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/asheshgoplani/opsdeck/internal/config"
	"github.com/asheshgoplani/opsdeck/internal/deck"
	"github.com/asheshgoplani/opsdeck/internal/logging"
	"github.com/asheshgoplani/opsdeck/internal/profile"
	"github.com/asheshgoplani/opsdeck/internal/ui"
)

const profileSaveTimeout = 5 * time.Second

// deckSettings is the deck's effective configuration after flags.
type deckSettings struct {
	URL        string
	Layout     deck.Layout
	LayoutSet  bool
	ProfileKey string
	ProfileURL string
	Legacy     bool
}

func resolveDeckSettings(cfg *config.Config, bridgeURL, layout, profileKey, profileURL string, legacy bool) (deckSettings, error) {
	s := deckSettings{
		URL:        cfg.Deck.BridgeURL,
		ProfileKey: profile.DetectKey(cfg.Deck.Profile),
		ProfileURL: cfg.Deck.ProfileURL,
		Legacy:     legacy,
	}
	if bridgeURL != "" {
		s.URL = bridgeURL
	}
	if profileURL != "" {
		s.ProfileURL = profileURL
	}
	if profileKey != "" {
		if err := profile.ValidateKey(profileKey); err != nil {
			return s, err
		}
		s.ProfileKey = profileKey
	}

	name := cfg.Deck.DefaultLayout
	if layout != "" {
		name = layout
		s.LayoutSet = true
	}
	l, err := deck.ParseLayout(name)
	if err != nil {
		return s, err
	}
	s.Layout = l
	return s, nil
}

func handleDeck(args []string) error {
	fs := flag.NewFlagSet("deck", flag.ExitOnError)
	bridgeURL := fs.String("bridge", "", "Bridge WebSocket URL (overrides [deck] bridge_url)")
	layout := fs.String("layout", "", "Initial layout: 1, 2h, 2v, 3 or 4")
	profileKey := fs.String("profile", "", "Profile key to restore on start and save on exit")
	profileURL := fs.String("store", "", "Profile store URL (overrides [deck] profile_url)")
	legacy := fs.Bool("legacy", false, "Speak the legacy text dialect")
	cfgPath := fs.String("config", "", "Config file (default: ~/.opsdeck/config.toml)")

	fs.Usage = func() {
		fmt.Println("Usage: opsdeck deck [options]")
		fmt.Println()
		fmt.Println("Start the terminal deck. Press F1 inside for keys and commands.")
		fmt.Println()
		fmt.Println("Options:")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return errors.New("opsdeck deck needs a terminal (use 'opsdeck send' for scripts)")
	}

	cfg, _ := loadConfig(*cfgPath)
	settings, err := resolveDeckSettings(cfg, *bridgeURL, *layout, *profileKey, *profileURL, *legacy)
	if err != nil {
		return err
	}

	logging.Init(logConfig(cfg, false))
	defer logging.Shutdown()
	watchDumpSignal(cfg.Logs.Dir, logging.CompUI)
	log := logging.ForComponent(logging.CompUI)

	reg := deck.NewRegistry(deck.WSDialer{
		URL:     settings.URL,
		Timeout: cfg.Deck.DialTimeout.Duration,
		Legacy:  settings.Legacy,
	}, deck.Options{
		HistorySize:     cfg.Deck.HistorySize,
		ScrollbackLines: cfg.Deck.ScrollbackLines,
		SnapshotLines:   cfg.Deck.SnapshotLines,
		Layout:          settings.Layout,
	})
	defer reg.Close()

	store := profile.NewClient(settings.ProfileURL)
	restoreProfile(reg, store, settings)

	model := ui.New(ui.Options{
		Registry:   reg,
		Store:      store,
		ProfileKey: settings.ProfileKey,
		Theme:      cfg.UI.Theme,
		OSC52:      !cfg.UI.DisableOSC52,
	})
	defer model.Close()

	log.Info("deck_started",
		slog.String("bridge", settings.URL),
		slog.String("layout", string(reg.Layout())),
		slog.String("profile", settings.ProfileKey))

	p := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), profileSaveTimeout)
	defer cancel()
	if err := reg.SaveProfile(ctx, store, settings.ProfileKey); err != nil {
		log.Warn("profile_save_failed", slog.String("error", err.Error()))
		fmt.Fprintf(os.Stderr, "Warning: profile %q not saved: %v\n", settings.ProfileKey, err)
	}
	return nil
}

// restoreProfile loads the saved deck when one exists. An explicit
// --layout wins over the saved layout.
func restoreProfile(reg *deck.Registry, store deck.ProfileStore, s deckSettings) {
	log := logging.ForComponent(logging.CompUI)
	ctx, cancel := context.WithTimeout(context.Background(), profileSaveTimeout)
	defer cancel()

	err := reg.LoadProfile(ctx, store, s.ProfileKey)
	switch {
	case err == nil:
		log.Info("profile_restored", slog.String("profile", s.ProfileKey))
	case errors.Is(err, profile.ErrNotFound):
	default:
		log.Warn("profile_restore_failed", slog.String("error", err.Error()))
	}

	if s.LayoutSet && reg.Layout() != s.Layout {
		_ = reg.SetLayout(s.Layout)
	}
}
