package deck

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asheshgoplani/opsdeck/internal/profile"
	"github.com/asheshgoplani/opsdeck/internal/protocol"
)

type memStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func (m *memStore) Load(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.blobs[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", profile.ErrNotFound, key)
	}
	return b, nil
}

func (m *memStore) Save(_ context.Context, key string, blob []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.blobs == nil {
		m.blobs = make(map[string][]byte)
	}
	m.blobs[key] = blob
	return nil
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	src, d := newTestRegistry(t, Options{Layout: Layout2V, SnapshotLines: 2})
	ids := src.Visible()
	ctx := context.Background()

	conn := connect(t, src, d, ids[0])
	conn.deliver(protocol.Output(protocol.StreamStdout, []byte("one\ntwo\nthree\n")))
	waitLine(t, src, ids[0], "three")
	_ = src.SendCommand(ctx, ids[1], "id")
	_ = src.SendCommand(ctx, ids[1], "uname -a")
	require.NoError(t, src.SetActive(ids[1]))

	snap := src.Snapshot()
	assert.Equal(t, SnapshotVersion, snap.Version)
	assert.Equal(t, Layout2V, snap.Layout)
	assert.Equal(t, 1, snap.Active)
	require.Len(t, snap.Sessions, 2)
	assert.Equal(t, []string{"two", "three"}, contents(snap.Sessions[0].Lines))

	dst, _ := newTestRegistry(t, Options{})
	require.NoError(t, dst.Restore(snap))

	infos := dst.Sessions()
	require.Len(t, infos, 2)
	assert.Equal(t, "Terminal 1", infos[0].Label)
	assert.Equal(t, "Terminal 2", infos[1].Label)
	assert.Equal(t, Layout2V, dst.Layout())
	assert.Equal(t, infos[1].ID, dst.Active())
	for _, info := range infos {
		assert.Equal(t, StateDisconnected, info.State)
	}

	lines, err := dst.Lines(infos[0].ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"two", "three"}, contents(lines))

	hist, err := dst.History(infos[1].ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "uname -a"}, hist)

	assert.Equal(t, "Terminal 3", mustLabel(t, dst, dst.CreateSession()))
}

func mustLabel(t *testing.T, r *Registry, id SessionID) string {
	t.Helper()
	info, err := r.Info(id)
	require.NoError(t, err)
	return info.Label
}

func TestRestoreKeepsLineTimes(t *testing.T) {
	at := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	snap := Snapshot{
		Version: SnapshotVersion,
		Layout:  LayoutSingle,
		Sessions: []SessionSnapshot{{
			Label: "recon",
			Lines: []Line{
				{ID: 40, Content: "nmap -sV 10.0.0.5", Kind: KindInput, Time: at},
				{ID: 41, Content: "22/tcp open ssh", Kind: KindOutput, Time: at.Add(3 * time.Second)},
			},
		}},
	}

	r, _ := newTestRegistry(t, Options{})
	require.NoError(t, r.Restore(snap))

	lines, err := r.Lines(r.Active())
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, at, lines[0].Time)
	assert.Equal(t, at.Add(3*time.Second), lines[1].Time)
	assert.Equal(t, KindInput, lines[0].Kind)
	assert.Equal(t, []uint64{1, 2}, []uint64{lines[0].ID, lines[1].ID})
}

func TestRestoreClosesLiveConnections(t *testing.T) {
	r, d := newTestRegistry(t, Options{})
	conn := connect(t, r, d, r.Active())

	require.NoError(t, r.Restore(Snapshot{
		Version:  SnapshotVersion,
		Layout:   LayoutSingle,
		Sessions: []SessionSnapshot{{Label: "Recon"}},
	}))
	assert.True(t, conn.isClosed())
	assert.Equal(t, "Recon", r.Sessions()[0].Label)
}

func TestRestoreRejectsBadSnapshots(t *testing.T) {
	r, _ := newTestRegistry(t, Options{})
	assert.Error(t, r.Restore(Snapshot{Version: 99, Sessions: []SessionSnapshot{{}}}))
	assert.Error(t, r.Restore(Snapshot{Version: SnapshotVersion}))
	assert.Len(t, r.Sessions(), 1)
}

func TestRestoreFitsLayoutToSessions(t *testing.T) {
	r, _ := newTestRegistry(t, Options{})
	require.NoError(t, r.Restore(Snapshot{
		Version:  SnapshotVersion,
		Layout:   LayoutFour,
		Sessions: []SessionSnapshot{{Label: "a"}, {Label: "b"}},
	}))
	assert.Equal(t, Layout2H, r.Layout())
}

func TestSaveLoadProfile(t *testing.T) {
	store := &memStore{}
	ctx := context.Background()

	src, _ := newTestRegistry(t, Options{Layout: LayoutThree})
	_ = src.SendCommand(ctx, src.Active(), "ping -c1 10.10.10.10")
	require.NoError(t, src.SaveProfile(ctx, store, "htb"))

	dst, _ := newTestRegistry(t, Options{})
	require.NoError(t, dst.LoadProfile(ctx, store, "htb"))
	assert.Equal(t, LayoutThree, dst.Layout())
	hist, err := dst.History(dst.Active())
	require.NoError(t, err)
	assert.Equal(t, []string{"ping -c1 10.10.10.10"}, hist)
}

func TestLoadProfileMissing(t *testing.T) {
	r, _ := newTestRegistry(t, Options{})
	err := r.LoadProfile(context.Background(), &memStore{}, "nope")
	assert.ErrorIs(t, err, profile.ErrNotFound)
}

func TestSaveLoadProfileSQLite(t *testing.T) {
	store, err := profile.Open(filepath.Join(t.TempDir(), "profiles.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()

	src, _ := newTestRegistry(t, Options{Layout: Layout2H})
	require.NoError(t, src.SaveProfile(ctx, store, "default"))

	dst, _ := newTestRegistry(t, Options{})
	require.NoError(t, dst.LoadProfile(ctx, store, "default"))
	assert.Len(t, dst.Sessions(), 2)
}
