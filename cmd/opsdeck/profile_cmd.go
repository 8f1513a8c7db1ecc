package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/asheshgoplani/opsdeck/internal/profile"
)

const profileCmdTimeout = 10 * time.Second

var errProfileUsage = errors.New("usage: opsdeck profile [--url URL] get|put|rm|ls [key]")

func handleProfile(args []string, in io.Reader, out io.Writer) error {
	fs := flag.NewFlagSet("profile", flag.ExitOnError)
	url := fs.String("url", "", "Profile store URL (overrides [deck] profile_url)")
	cfgPath := fs.String("config", "", "Config file (default: ~/.opsdeck/config.toml)")

	fs.Usage = func() {
		fmt.Println("Usage: opsdeck profile [options] <action> [key]")
		fmt.Println()
		fmt.Println("Actions:")
		fmt.Println("  get <key>   Print a saved profile")
		fmt.Println("  put <key>   Store stdin as a profile")
		fmt.Println("  rm <key>    Remove a profile")
		fmt.Println("  ls          List profile keys")
		fmt.Println()
		fmt.Println("Options:")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, _ := loadConfig(*cfgPath)
	base := cfg.Deck.ProfileURL
	if *url != "" {
		base = *url
	}

	ctx, cancel := context.WithTimeout(context.Background(), profileCmdTimeout)
	defer cancel()
	return runProfile(ctx, profile.NewClient(base), fs.Args(), in, out)
}

// runProfile performs one profile action against b.
func runProfile(ctx context.Context, b profile.Backend, args []string, in io.Reader, out io.Writer) error {
	if len(args) == 0 {
		return errProfileUsage
	}
	action := args[0]
	if action == "ls" || action == "list" {
		keys, err := b.Keys(ctx)
		if err != nil {
			return err
		}
		for _, k := range keys {
			fmt.Fprintln(out, k)
		}
		return nil
	}

	if len(args) != 2 {
		return errProfileUsage
	}
	key := args[1]
	if err := profile.ValidateKey(key); err != nil {
		return err
	}

	switch action {
	case "get":
		blob, err := b.Load(ctx, key)
		if err != nil {
			return err
		}
		_, err = out.Write(blob)
		return err
	case "put":
		blob, err := io.ReadAll(io.LimitReader(in, profile.MaxBlobBytes+1))
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		if len(blob) > profile.MaxBlobBytes {
			return fmt.Errorf("profile larger than %d bytes", profile.MaxBlobBytes)
		}
		return b.Save(ctx, key, blob)
	case "rm", "delete":
		return b.Delete(ctx, key)
	}
	return fmt.Errorf("unknown profile action %q: %w", action, errProfileUsage)
}
