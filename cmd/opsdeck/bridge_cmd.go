package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/asheshgoplani/opsdeck/internal/bridge"
	"github.com/asheshgoplani/opsdeck/internal/config"
	"github.com/asheshgoplani/opsdeck/internal/logging"
	"github.com/asheshgoplani/opsdeck/internal/profile"
)

const shutdownTimeout = 10 * time.Second

func handleBridge(args []string) error {
	fs := flag.NewFlagSet("bridge", flag.ExitOnError)
	listen := fs.String("listen", "", "Listen address (overrides [bridge] listen)")
	cfgPath := fs.String("config", "", "Config file (default: ~/.opsdeck/config.toml)")
	noStore := fs.Bool("no-store", false, "Do not serve the profile store")

	fs.Usage = func() {
		fmt.Println("Usage: opsdeck bridge [options]")
		fmt.Println()
		fmt.Println("Run the process bridge. Each WebSocket connection gets its own shell.")
		fmt.Println()
		fmt.Println("Options:")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, path := loadConfig(*cfgPath)
	if *listen != "" {
		cfg.Bridge.Listen = *listen
	}

	logging.Init(logConfig(cfg, true))
	defer logging.Shutdown()
	watchDumpSignal(cfg.Logs.Dir, logging.CompBridge)
	log := logging.ForComponent(logging.CompBridge)

	var opts []bridge.Option
	if cfg.Store.IsEnabled() && !*noStore {
		store, err := profile.Open(cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("open profile store: %w", err)
		}
		defer store.Close()
		opts = append(opts, bridge.WithProfileStore(store))
	}
	srv := bridge.NewServer(cfg.Bridge, opts...)

	if path != "" {
		w, err := config.NewWatcher(path, srv.ApplyConfig)
		if err != nil {
			log.Warn("config_watch_unavailable", slog.String("error", err.Error()))
		} else {
			go w.Start()
			defer w.Stop()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()
	fmt.Fprintf(os.Stderr, "opsdeck bridge v%s on %s (aux: %v)\n", Version, cfg.Bridge.Listen, cfg.AuxNames())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("bridge_shutdown_requested")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}
