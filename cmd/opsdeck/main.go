package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/asheshgoplani/opsdeck/internal/config"
	"github.com/asheshgoplani/opsdeck/internal/logging"
)

const Version = "0.3.0"

func init() {
	initColorProfile()
}

// initColorProfile configures the lipgloss color profile. OPSDECK_COLOR
// (truecolor, 256, 16, none) overrides detection.
func initColorProfile() {
	if colorEnv := os.Getenv("OPSDECK_COLOR"); colorEnv != "" {
		if profile, ok := parseColorProfile(colorEnv); ok {
			lipgloss.SetColorProfile(profile)
			return
		}
	}

	colorTerm := os.Getenv("COLORTERM")
	if colorTerm == "truecolor" || colorTerm == "24bit" {
		lipgloss.SetColorProfile(termenv.TrueColor)
		return
	}

	term := os.Getenv("TERM")
	for _, t := range []string{"xterm-256color", "screen-256color", "tmux-256color", "xterm-direct", "alacritty", "kitty", "wezterm"} {
		if strings.Contains(term, t) {
			lipgloss.SetColorProfile(termenv.TrueColor)
			return
		}
	}

	// SSH sessions and older emulators
	lipgloss.SetColorProfile(termenv.ANSI256)
}

func parseColorProfile(s string) (termenv.Profile, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "truecolor", "true", "24bit":
		return termenv.TrueColor, true
	case "256", "ansi256":
		return termenv.ANSI256, true
	case "16", "ansi", "basic":
		return termenv.ANSI, true
	case "none", "off", "ascii":
		return termenv.Ascii, true
	}
	return termenv.Ascii, false
}

// splitCommand picks the subcommand. No arguments, or leading flags,
// mean the deck.
func splitCommand(args []string) (string, []string) {
	if len(args) == 0 {
		return "deck", nil
	}
	switch args[0] {
	case "-v", "--version", "-h", "--help":
		return args[0], args[1:]
	}
	if strings.HasPrefix(args[0], "-") {
		return "deck", args
	}
	return args[0], args[1:]
}

func main() {
	cmd, args := splitCommand(os.Args[1:])

	var err error
	switch cmd {
	case "version", "--version", "-v":
		fmt.Printf("opsdeck v%s\n", Version)
		return
	case "help", "--help", "-h":
		printHelp()
		return
	case "bridge":
		err = handleBridge(args)
	case "deck":
		err = handleDeck(args)
	case "profile":
		err = handleProfile(args, os.Stdin, os.Stdout)
	case "send":
		err = handleSend(args, os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n\n", cmd)
		printHelp()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printHelp() {
	fmt.Printf("opsdeck v%s\n", Version)
	fmt.Println("Multi-pane remote shell deck for lab work")
	fmt.Println()
	fmt.Println("Usage: opsdeck [command] [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  deck             Start the terminal deck (default)")
	fmt.Println("  bridge           Run the process bridge")
	fmt.Println("  send <command>   Run one command through the bridge and print its output")
	fmt.Println("  profile          Get, put, remove or list saved profiles")
	fmt.Println("  version          Show version")
	fmt.Println("  help             Show this help")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  opsdeck bridge --listen 127.0.0.1:8765")
	fmt.Println("  opsdeck deck --layout 2h --profile htb")
	fmt.Println("  opsdeck send -- nmap -sV 10.10.10.5")
	fmt.Println("  opsdeck profile ls")
	fmt.Println()
	fmt.Println("Environment:")
	fmt.Println("  OPSDECK_HOME     Config and data directory (default: ~/.opsdeck)")
	fmt.Println("  OPSDECK_COLOR    Force color profile: truecolor, 256, 16, none")
}

// loadConfig reads the config at path, or the default location. Parse
// errors are reported and the defaults used.
func loadConfig(path string) (*config.Config, string) {
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v, using defaults\n", err)
			return config.Default(), ""
		}
		path = p
	}
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v, using defaults\n", err)
	}
	return cfg, path
}

// logConfig maps [logs] onto the logging package. The deck owns the
// terminal, so only the bridge also logs to stderr.
func logConfig(cfg *config.Config, stderr bool) logging.Config {
	ls := cfg.Logs
	lc := logging.Config{
		LogDir:                ls.Dir,
		Level:                 ls.Level,
		Format:                ls.Format,
		Stderr:                stderr,
		MaxSizeMB:             ls.MaxSizeMB,
		MaxBackups:            ls.MaxBackups,
		MaxAgeDays:            ls.MaxAgeDays,
		Compress:              ls.Compress,
		RingBufferSize:        4 * 1024 * 1024,
		AggregateIntervalSecs: 30,
		PprofAddr:             ls.PprofAddr,
	}
	if lc.Format == "" {
		lc.Format = "json"
	}
	if lc.MaxSizeMB <= 0 {
		lc.MaxSizeMB = 10
	}
	if lc.MaxBackups <= 0 {
		lc.MaxBackups = 5
	}
	if lc.MaxAgeDays <= 0 {
		lc.MaxAgeDays = 10
	}
	return lc
}

// watchDumpSignal writes the log ring buffer to dir on SIGUSR1.
func watchDumpSignal(dir string, component string) {
	log := logging.ForComponent(component)
	usr1 := make(chan os.Signal, 1)
	signal.Notify(usr1, syscall.SIGUSR1)
	go func() {
		for range usr1 {
			dumpPath := filepath.Join(dir, fmt.Sprintf("crash-dump-%d.jsonl", time.Now().Unix()))
			if err := logging.DumpRingBuffer(dumpPath); err != nil {
				log.Error("crash_dump_failed", slog.String("error", err.Error()))
			} else {
				log.Info("crash_dump_written", slog.String("path", dumpPath))
			}
		}
	}()
}
