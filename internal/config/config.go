package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// FileName is the TOML config file inside the opsdeck home directory.
const FileName = "config.toml"

// ArgPlaceholder is replaced with the start_aux parameter in aux args.
const ArgPlaceholder = "{arg}"

// Config is the whole opsdeck configuration file.
type Config struct {
	// Bridge configures the agent side: listener, shell and aux catalog.
	Bridge BridgeConfig `toml:"bridge"`

	// Deck configures the terminal client.
	Deck DeckConfig `toml:"deck"`

	// Store configures the profile store served by the bridge.
	Store StoreConfig `toml:"store"`

	// Logs configures structured logging for both sides.
	Logs LogSettings `toml:"logs"`

	// UI configures the deck's look.
	UI UISettings `toml:"ui"`
}

// BridgeConfig defines the agent's listener and process policy.
type BridgeConfig struct {
	// Listen is the loopback address the bridge binds (default: 127.0.0.1:8765)
	Listen string `toml:"listen"`

	// InputRate is the sustained inbound messages/sec allowed per connection.
	// Zero or unset means 200; a negative value turns limiting off.
	InputRate float64 `toml:"input_rate"`

	// InputBurst is the burst size for InputRate (default: 50)
	InputBurst int `toml:"input_burst"`

	// KillGrace is how long a process gets between SIGTERM and SIGKILL (default: 2s)
	KillGrace Duration `toml:"kill_grace"`

	// Shell is the per-connection interactive shell.
	Shell ShellConfig `toml:"shell"`

	// Aux is the catalog of auxiliary processes a connection may start.
	// Keyed by the name carried in start_aux.
	Aux map[string]AuxConfig `toml:"aux"`
}

// ShellConfig describes how each connection's shell is spawned.
type ShellConfig struct {
	Command string   `toml:"command"`
	Args    []string `toml:"args"`
	Env     []string `toml:"env"`
	Dir     string   `toml:"dir"`

	// UsePTY runs the shell on a pseudo-terminal instead of pipes.
	// stdout and stderr then arrive merged on the stdout stream.
	UsePTY bool `toml:"use_pty"`
}

// AuxConfig describes one auxiliary process kind.
type AuxConfig struct {
	Command string   `toml:"command"`
	Args    []string `toml:"args"`
	Env     []string `toml:"env"`

	// Timeout kills the process after this long. Zero means no limit.
	Timeout Duration `toml:"timeout"`
}

// ExpandArgs substitutes arg into the configured args. When no arg
// contains the placeholder, arg is appended.
func (a AuxConfig) ExpandArgs(arg string) []string {
	out := make([]string, 0, len(a.Args)+1)
	substituted := false
	for _, s := range a.Args {
		if strings.Contains(s, ArgPlaceholder) {
			substituted = true
			s = strings.ReplaceAll(s, ArgPlaceholder, arg)
		}
		out = append(out, s)
	}
	if !substituted {
		out = append(out, arg)
	}
	return out
}

// DeckConfig defines client behaviour.
type DeckConfig struct {
	// BridgeURL is the bridge socket (default: ws://127.0.0.1:8765/ws)
	BridgeURL string `toml:"bridge_url"`

	// DialTimeout bounds a single connect attempt (default: 5s)
	DialTimeout Duration `toml:"dial_timeout"`

	// HistorySize is the per-session command history bound (default: 200)
	HistorySize int `toml:"history_size"`

	// ScrollbackLines bounds each live pane buffer (default: 5000)
	ScrollbackLines int `toml:"scrollback_lines"`

	// SnapshotLines bounds the lines kept per session in saved profiles (default: 200)
	SnapshotLines int `toml:"snapshot_lines"`

	// DefaultLayout is the layout used on start: 1, 2h, 2v, 3 or 4 (default: 1)
	DefaultLayout string `toml:"default_layout"`

	// Profile is the profile store key the deck restores and saves (default: default)
	Profile string `toml:"profile"`

	// ProfileURL is the profile store base URL (default: http://127.0.0.1:8765)
	ProfileURL string `toml:"profile_url"`
}

// StoreConfig defines the sqlite profile store.
type StoreConfig struct {
	// Enabled serves /api/profile/ from the bridge (default: true)
	Enabled *bool `toml:"enabled"`

	// Path is the sqlite file (default: <home>/profiles.db)
	Path string `toml:"path"`
}

// IsEnabled reports whether the store is enabled, defaulting to true.
func (s StoreConfig) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// LogSettings mirrors logging.Config in file form.
type LogSettings struct {
	Dir        string `toml:"dir"`
	Level      string `toml:"level"`
	Format     string `toml:"format"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	Compress   bool   `toml:"compress"`
	PprofAddr  string `toml:"pprof_addr"`
}

// UISettings defines the deck theme.
type UISettings struct {
	// Theme is "dark" (default), "light" or "auto"
	Theme string `toml:"theme"`

	// DisableOSC52 stops :copy from falling back to the terminal escape
	// when no native clipboard exists.
	DisableOSC52 bool `toml:"disable_osc52"`
}

// Duration is a time.Duration written as "2s" in TOML.
type Duration struct {
	time.Duration
}

// D wraps a time.Duration.
func D(d time.Duration) Duration { return Duration{d} }

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Home returns the opsdeck directory: $OPSDECK_HOME or ~/.opsdeck.
func Home() (string, error) {
	if dir := strings.TrimSpace(os.Getenv("OPSDECK_HOME")); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".opsdeck"), nil
}

// DefaultPath returns the config file path inside Home.
func DefaultPath() (string, error) {
	dir, err := Home()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, FileName), nil
}

// Default returns a config with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads path. A missing file yields the defaults; a parse error is
// returned together with the defaults so callers can report and carry on.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}

	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Default(), fmt.Errorf("%s parse error: %w", filepath.Base(path), err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Default(), err
	}
	return &cfg, nil
}

// Validate checks the settings that have no sensible fallback.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Bridge.Shell.Command) == "" {
		return errors.New("bridge.shell.command is empty")
	}
	for _, name := range c.AuxNames() {
		if strings.TrimSpace(c.Bridge.Aux[name].Command) == "" {
			return fmt.Errorf("bridge.aux.%s.command is empty", name)
		}
	}
	if c.Bridge.InputBurst < 0 {
		return errors.New("bridge input_burst must be >= 0")
	}
	return nil
}

// AuxNames returns the aux catalog names, sorted.
func (c *Config) AuxNames() []string {
	names := make([]string, 0, len(c.Bridge.Aux))
	for name := range c.Bridge.Aux {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *Config) applyDefaults() {
	b := &c.Bridge
	if b.Listen == "" {
		b.Listen = "127.0.0.1:8765"
	}
	if b.InputRate == 0 {
		b.InputRate = 200
	}
	if b.InputBurst == 0 {
		b.InputBurst = 50
	}
	if b.KillGrace.Duration <= 0 {
		b.KillGrace = D(2 * time.Second)
	}
	if b.Shell.Command == "" {
		b.Shell.Command = "/bin/bash"
		if b.Shell.Args == nil {
			b.Shell.Args = []string{"--norc", "--noprofile", "-i"}
		}
		if b.Shell.Env == nil {
			b.Shell.Env = []string{"PS1=", "TERM=dumb"}
		}
	}
	if b.Aux == nil {
		b.Aux = map[string]AuxConfig{
			"vpn":  {Command: "openvpn", Args: []string{"--config", ArgPlaceholder}},
			"http": {Command: "python3", Args: []string{"-m", "http.server", "8000", "--directory", ArgPlaceholder}},
			"ls":   {Command: "ls", Args: []string{"-la", ArgPlaceholder}, Timeout: D(5 * time.Second)},
		}
	}

	d := &c.Deck
	if d.BridgeURL == "" {
		d.BridgeURL = "ws://" + b.Listen + "/ws"
	}
	if d.DialTimeout.Duration <= 0 {
		d.DialTimeout = D(5 * time.Second)
	}
	if d.HistorySize <= 0 {
		d.HistorySize = 200
	}
	if d.ScrollbackLines <= 0 {
		d.ScrollbackLines = 5000
	}
	if d.SnapshotLines <= 0 {
		d.SnapshotLines = 200
	}
	if d.DefaultLayout == "" {
		d.DefaultLayout = "1"
	}
	if d.Profile == "" {
		d.Profile = "default"
	}
	if d.ProfileURL == "" {
		d.ProfileURL = "http://" + b.Listen
	}

	if c.Store.Path == "" {
		if dir, err := Home(); err == nil {
			c.Store.Path = filepath.Join(dir, "profiles.db")
		}
	}

	if c.Logs.Level == "" {
		c.Logs.Level = "info"
	}
	if c.Logs.Dir == "" {
		if dir, err := Home(); err == nil {
			c.Logs.Dir = filepath.Join(dir, "logs")
		}
	}

	if c.UI.Theme == "" {
		c.UI.Theme = "dark"
	}
}

// Save writes cfg to path atomically: temp file, fsync, rename.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("# opsdeck configuration\n\n")
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if f, err := os.Open(tmpPath); err == nil {
		_ = f.Sync()
		f.Close()
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to finalize config save: %w", err)
	}
	return nil
}
