package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/asheshgoplani/opsdeck/internal/deck"
)

func handleSend(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	bridgeURL := fs.String("bridge", "", "Bridge WebSocket URL (overrides [deck] bridge_url)")
	wait := fs.Duration("wait", 2*time.Second, "How long to collect output after sending")
	legacy := fs.Bool("legacy", false, "Speak the legacy text dialect")
	cfgPath := fs.String("config", "", "Config file (default: ~/.opsdeck/config.toml)")

	fs.Usage = func() {
		fmt.Println("Usage: opsdeck send [options] [--] <command...>")
		fmt.Println()
		fmt.Println("Open one shell on the bridge, run command, print what it wrote")
		fmt.Println("within --wait, then disconnect.")
		fmt.Println()
		fmt.Println("Options:")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	command := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if command == "" {
		fs.Usage()
		return errors.New("no command given")
	}

	cfg, _ := loadConfig(*cfgPath)
	url := cfg.Deck.BridgeURL
	if *bridgeURL != "" {
		url = *bridgeURL
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	dialer := deck.WSDialer{URL: url, Timeout: cfg.Deck.DialTimeout.Duration, Legacy: *legacy}
	return runSend(ctx, dialer, command, *wait, out)
}

// runSend runs command in a fresh single-pane registry and prints output
// and error lines collected within wait.
func runSend(ctx context.Context, dialer deck.Dialer, command string, wait time.Duration, out io.Writer) error {
	reg := deck.NewRegistry(dialer, deck.Options{Layout: deck.LayoutSingle})
	defer reg.Close()

	id := reg.Active()
	if err := reg.Connect(id); err != nil {
		return err
	}
	if err := waitConnected(ctx, reg, id); err != nil {
		return err
	}
	if err := reg.SendCommand(ctx, id, command); err != nil {
		return err
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}

	lines, err := reg.Lines(id)
	if err != nil {
		return err
	}
	for _, l := range lines {
		if l.Kind == deck.KindOutput || l.Kind == deck.KindError {
			fmt.Fprintln(out, l.Content)
		}
	}
	return nil
}

// waitConnected blocks until id leaves Connecting. A failed dial comes
// back as the session's last error line.
func waitConnected(ctx context.Context, reg *deck.Registry, id deck.SessionID) error {
	for {
		st, err := reg.State(id)
		if err != nil {
			return err
		}
		switch st {
		case deck.StateConnected:
			return nil
		case deck.StateError, deck.StateDisconnected:
			return lastError(reg, id)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-reg.Changes():
		}
	}
}

func lastError(reg *deck.Registry, id deck.SessionID) error {
	lines, _ := reg.Lines(id)
	for i := len(lines) - 1; i >= 0; i-- {
		if lines[i].Kind == deck.KindError {
			return errors.New(lines[i].Content)
		}
	}
	return errors.New("not connected")
}
