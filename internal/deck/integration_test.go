//go:build !windows

package deck

import (
	"context"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asheshgoplani/opsdeck/internal/bridge"
	"github.com/asheshgoplani/opsdeck/internal/config"
)

func startBridge(t *testing.T) string {
	t.Helper()
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
	srv := bridge.NewServer(config.BridgeConfig{
		Listen:    "127.0.0.1:0",
		KillGrace: config.D(500 * time.Millisecond),
		Shell:     config.ShellConfig{Command: "/bin/sh"},
		Aux: map[string]config.AuxConfig{
			// Named vpn so the legacy dialect can address it.
			"vpn": {Command: "sleep", Args: []string{config.ArgPlaceholder}},
		},
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		ts.Close()
	})
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func waitLinePrefix(t *testing.T, r *Registry, id SessionID, prefix string) string {
	t.Helper()
	var found string
	require.Eventually(t, func() bool {
		lines, err := r.Lines(id)
		if err != nil {
			return false
		}
		for _, l := range lines {
			if strings.HasPrefix(l.Content, prefix) {
				found = l.Content
				return true
			}
		}
		return false
	}, 8*time.Second, 10*time.Millisecond, "no line starting with %q", prefix)
	return found
}

func TestRegistryAgainstBridge(t *testing.T) {
	for _, legacy := range []bool{false, true} {
		name := "json"
		if legacy {
			name = "legacy"
		}
		t.Run(name, func(t *testing.T) {
			url := startBridge(t)
			r := NewRegistry(WSDialer{URL: url, Legacy: legacy}, Options{Layout: Layout2H})
			t.Cleanup(r.Close)
			ctx := context.Background()
			ids := r.Visible()

			for _, id := range ids {
				require.NoError(t, r.Connect(id))
			}
			for _, id := range ids {
				waitState(t, r, id, StateConnected)
				waitLinePrefix(t, r, id, "[+] shell started")
			}

			require.NoError(t, r.SendCommand(ctx, ids[0], "echo pane-one"))
			require.NoError(t, r.SendCommand(ctx, ids[1], "echo pane-two"))
			waitLine(t, r, ids[0], "pane-one")
			waitLine(t, r, ids[1], "pane-two")

			first, err := r.Lines(ids[0])
			require.NoError(t, err)
			assert.NotContains(t, contents(first), "pane-two", "each pane has its own shell")

			require.NoError(t, r.StartAux(ctx, ids[0], "vpn", "30"))
			waitLinePrefix(t, r, ids[0], "[+] vpn started")
			require.NoError(t, r.StartAux(ctx, ids[0], "vpn", "30"))
			waitLinePrefix(t, r, ids[0], "[-] vpn already running")
			require.NoError(t, r.StopAux(ctx, ids[0]))
			waitLinePrefix(t, r, ids[0], "[+] vpn stopped")

			require.NoError(t, r.ClosePane(ids[1]))
			require.NoError(t, r.SendCommand(ctx, ids[0], "echo after-close"))
			waitLine(t, r, ids[0], "after-close")
		})
	}
}

func TestLiteralDirectiveTextStaysLiteral(t *testing.T) {
	url := startBridge(t)
	r := NewRegistry(WSDialer{URL: url, Legacy: true}, Options{})
	t.Cleanup(r.Close)
	id := r.Active()

	require.NoError(t, r.Connect(id))
	waitState(t, r, id, StateConnected)
	waitLinePrefix(t, r, id, "[+] shell started")

	// The shell sees this as an unknown command, not a vpn directive.
	require.NoError(t, r.SendCommand(context.Background(), id, "STOP_VPN"))
	require.NoError(t, r.SendCommand(context.Background(), id, "echo done"))
	waitLine(t, r, id, "done")

	lines, err := r.Lines(id)
	require.NoError(t, err)
	for _, l := range lines {
		assert.NotContains(t, l.Content, "nothing to stop")
	}
}

func TestBridgeShutdownEndsSession(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
	srv := bridge.NewServer(config.BridgeConfig{
		KillGrace: config.D(500 * time.Millisecond),
		Shell:     config.ShellConfig{Command: "/bin/sh"},
	})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	r := NewRegistry(WSDialer{URL: "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"}, Options{})
	t.Cleanup(r.Close)
	id := r.Active()
	require.NoError(t, r.Connect(id))
	waitState(t, r, id, StateConnected)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	waitState(t, r, id, StateDisconnected)
	waitLine(t, r, id, "connection closed")
}
