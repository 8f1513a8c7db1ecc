package main

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asheshgoplani/opsdeck/internal/bridge"
	"github.com/asheshgoplani/opsdeck/internal/config"
	"github.com/asheshgoplani/opsdeck/internal/deck"
	"github.com/asheshgoplani/opsdeck/internal/profile"
)

func TestSplitCommand(t *testing.T) {
	tests := []struct {
		args     []string
		wantCmd  string
		wantRest []string
	}{
		{nil, "deck", nil},
		{[]string{"bridge", "--listen", ":9"}, "bridge", []string{"--listen", ":9"}},
		{[]string{"--layout", "4"}, "deck", []string{"--layout", "4"}},
		{[]string{"-v"}, "-v", []string{}},
		{[]string{"send", "id"}, "send", []string{"id"}},
	}
	for _, tt := range tests {
		cmd, rest := splitCommand(tt.args)
		assert.Equal(t, tt.wantCmd, cmd, "args %v", tt.args)
		assert.Equal(t, len(tt.wantRest), len(rest), "args %v", tt.args)
	}
}

func TestParseColorProfile(t *testing.T) {
	p, ok := parseColorProfile("TrueColor")
	assert.True(t, ok)
	assert.Equal(t, termenv.TrueColor, p)

	p, ok = parseColorProfile("none")
	assert.True(t, ok)
	assert.Equal(t, termenv.Ascii, p)

	_, ok = parseColorProfile("sepia")
	assert.False(t, ok)
}

func TestResolveDeckSettings(t *testing.T) {
	t.Setenv("OPSDECK_PROFILE", "")
	cfg := config.Default()

	s, err := resolveDeckSettings(cfg, "", "", "", "", false)
	require.NoError(t, err)
	assert.Equal(t, cfg.Deck.BridgeURL, s.URL)
	assert.Equal(t, deck.LayoutSingle, s.Layout)
	assert.False(t, s.LayoutSet)
	assert.Equal(t, "default", s.ProfileKey)

	s, err = resolveDeckSettings(cfg, "ws://10.0.0.2:8765/ws", "2v", "htb", "http://10.0.0.2:8765", true)
	require.NoError(t, err)
	assert.Equal(t, "ws://10.0.0.2:8765/ws", s.URL)
	assert.Equal(t, deck.Layout2V, s.Layout)
	assert.True(t, s.LayoutSet)
	assert.Equal(t, "htb", s.ProfileKey)
	assert.Equal(t, "http://10.0.0.2:8765", s.ProfileURL)
	assert.True(t, s.Legacy)

	_, err = resolveDeckSettings(cfg, "", "5", "", "", false)
	assert.ErrorIs(t, err, deck.ErrUnknownLayout)

	_, err = resolveDeckSettings(cfg, "", "", "a/b", "", false)
	assert.Error(t, err)
}

func TestLogConfigFillsRotationDefaults(t *testing.T) {
	cfg := config.Default()
	lc := logConfig(cfg, true)
	assert.True(t, lc.Stderr)
	assert.Equal(t, "json", lc.Format)
	assert.Equal(t, cfg.Logs.Dir, lc.LogDir)
	assert.Positive(t, lc.MaxSizeMB)
	assert.Positive(t, lc.RingBufferSize)
}

func TestRunProfile(t *testing.T) {
	store, err := profile.Open(filepath.Join(t.TempDir(), "profiles.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()

	require.NoError(t, runProfile(ctx, store, []string{"put", "htb"}, strings.NewReader(`{"version":1}`), nil))

	var out bytes.Buffer
	require.NoError(t, runProfile(ctx, store, []string{"get", "htb"}, nil, &out))
	assert.Equal(t, `{"version":1}`, out.String())

	out.Reset()
	require.NoError(t, runProfile(ctx, store, []string{"ls"}, nil, &out))
	assert.Equal(t, "htb\n", out.String())

	require.NoError(t, runProfile(ctx, store, []string{"rm", "htb"}, nil, nil))
	err = runProfile(ctx, store, []string{"get", "htb"}, nil, &out)
	assert.ErrorIs(t, err, profile.ErrNotFound)

	assert.ErrorIs(t, runProfile(ctx, store, nil, nil, nil), errProfileUsage)
	assert.ErrorIs(t, runProfile(ctx, store, []string{"get"}, nil, nil), errProfileUsage)
	assert.ErrorIs(t, runProfile(ctx, store, []string{"touch", "x"}, nil, nil), errProfileUsage)
}

func TestRunProfileOverHTTP(t *testing.T) {
	store, err := profile.Open(filepath.Join(t.TempDir(), "profiles.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	ts := httptest.NewServer(profile.Handler(store))
	t.Cleanup(ts.Close)

	client := profile.NewClient(ts.URL)
	ctx := context.Background()
	require.NoError(t, runProfile(ctx, client, []string{"put", "lab"}, strings.NewReader("blob"), nil))

	var out bytes.Buffer
	require.NoError(t, runProfile(ctx, client, []string{"get", "lab"}, nil, &out))
	assert.Equal(t, "blob", out.String())
}

type failingDialer struct{}

func (failingDialer) Dial(context.Context) (deck.Conn, error) {
	return nil, errors.New("connection refused")
}

func TestRunSendReportsDialFailure(t *testing.T) {
	err := runSend(context.Background(), failingDialer{}, "id", time.Millisecond, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestRunSendAgainstBridge(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
	srv := bridge.NewServer(config.BridgeConfig{
		Listen:    "127.0.0.1:0",
		KillGrace: config.D(500 * time.Millisecond),
		Shell:     config.ShellConfig{Command: "/bin/sh"},
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		ts.Close()
	})

	dialer := deck.WSDialer{URL: "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"}
	var out bytes.Buffer
	require.NoError(t, runSend(context.Background(), dialer, "echo send-ok; echo oops >&2", 2*time.Second, &out))
	assert.Contains(t, out.String(), "send-ok")
	assert.Contains(t, out.String(), "oops")
	assert.NotContains(t, out.String(), "echo send-ok", "input lines are not printed")
}
