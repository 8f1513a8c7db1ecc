package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	t.Setenv("OPSDECK_HOME", t.TempDir())

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8765", cfg.Bridge.Listen)
	assert.Equal(t, "/bin/bash", cfg.Bridge.Shell.Command)
	assert.Equal(t, 2*time.Second, cfg.Bridge.KillGrace.Duration)
	assert.Equal(t, "ws://127.0.0.1:8765/ws", cfg.Deck.BridgeURL)
	assert.Equal(t, 5000, cfg.Deck.ScrollbackLines)
	assert.Equal(t, 200, cfg.Deck.SnapshotLines)
	assert.Equal(t, "1", cfg.Deck.DefaultLayout)
	assert.Equal(t, []string{"http", "ls", "vpn"}, cfg.AuxNames())
	assert.True(t, cfg.Store.IsEnabled())
	assert.Equal(t, "dark", cfg.UI.Theme)
}

func TestLoad_OverridesAndAuxCatalog(t *testing.T) {
	home := t.TempDir()
	t.Setenv("OPSDECK_HOME", home)

	path := writeConfig(t, `
[bridge]
listen = "127.0.0.1:9900"
kill_grace = "500ms"

[bridge.shell]
command = "/bin/sh"
use_pty = true

[bridge.aux.ldap]
command = "slapd"
args = ["-d", "0", "-f", "{arg}"]
timeout = "1m"

[deck]
default_layout = "2v"

[store]
enabled = false
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9900", cfg.Bridge.Listen)
	assert.Equal(t, 500*time.Millisecond, cfg.Bridge.KillGrace.Duration)
	assert.True(t, cfg.Bridge.Shell.UsePTY)
	assert.Nil(t, cfg.Bridge.Shell.Args, "explicit shell keeps its own args")
	assert.Equal(t, []string{"ldap"}, cfg.AuxNames(), "explicit catalog replaces the defaults")
	assert.Equal(t, time.Minute, cfg.Bridge.Aux["ldap"].Timeout.Duration)
	assert.Equal(t, "ws://127.0.0.1:9900/ws", cfg.Deck.BridgeURL, "deck url follows the listen address")
	assert.Equal(t, "2v", cfg.Deck.DefaultLayout)
	assert.False(t, cfg.Store.IsEnabled())
	assert.Equal(t, filepath.Join(home, "profiles.db"), cfg.Store.Path)
}

func TestLoad_ParseErrorReturnsDefaults(t *testing.T) {
	path := writeConfig(t, "[bridge\nlisten = ")

	cfg, err := Load(path)
	require.Error(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, "127.0.0.1:8765", cfg.Bridge.Listen)
}

func TestLoad_RejectsAuxWithoutCommand(t *testing.T) {
	path := writeConfig(t, `
[bridge.aux.vpn]
args = ["{arg}"]
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bridge.aux.vpn.command")
}

func TestLoad_InputRate(t *testing.T) {
	t.Setenv("OPSDECK_HOME", t.TempDir())

	cfg, err := Load(writeConfig(t, "[bridge]\nlisten = \"127.0.0.1:9901\"\n"))
	require.NoError(t, err)
	assert.Equal(t, 200.0, cfg.Bridge.InputRate, "unset means the default")

	cfg, err = Load(writeConfig(t, "[bridge]\ninput_rate = -1.0\n"))
	require.NoError(t, err)
	assert.Equal(t, -1.0, cfg.Bridge.InputRate, "negative is kept and means unlimited")

	_, err = Load(writeConfig(t, "[bridge]\ninput_burst = -3\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "input_burst")
}

func TestLoad_BadDuration(t *testing.T) {
	path := writeConfig(t, `
[bridge]
kill_grace = "soon"
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestExpandArgs(t *testing.T) {
	tests := []struct {
		name string
		aux  AuxConfig
		arg  string
		want []string
	}{
		{"placeholder", AuxConfig{Args: []string{"--config", "{arg}"}}, "/tmp/lab.ovpn", []string{"--config", "/tmp/lab.ovpn"}},
		{"embedded", AuxConfig{Args: []string{"--dir={arg}"}}, "/srv", []string{"--dir=/srv"}},
		{"appended", AuxConfig{Args: []string{"-v"}}, "x", []string{"-v", "x"}},
		{"no args", AuxConfig{}, "x", []string{"x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.aux.ExpandArgs(tt.arg))
		})
	}
}

func TestSave_RoundTrip(t *testing.T) {
	t.Setenv("OPSDECK_HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", FileName)

	cfg := Default()
	cfg.Bridge.Listen = "127.0.0.1:7000"
	cfg.Bridge.Aux["ldap"] = AuxConfig{Command: "slapd", Args: []string{"{arg}"}, Timeout: D(30 * time.Second)}
	cfg.UI.Theme = "system"

	require.NoError(t, Save(path, cfg))
	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file must not survive a save")

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7000", loaded.Bridge.Listen)
	assert.Equal(t, 30*time.Second, loaded.Bridge.Aux["ldap"].Timeout.Duration)
	assert.Equal(t, "system", loaded.UI.Theme)
	assert.Len(t, loaded.Bridge.Aux, 4)
}

func TestHome_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("OPSDECK_HOME", dir)

	got, err := Home()
	require.NoError(t, err)
	assert.Equal(t, dir, got)

	path, err := DefaultPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, FileName), path)
}
