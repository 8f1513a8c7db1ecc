package deck

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// SnapshotVersion is bumped when the snapshot shape changes incompatibly.
const SnapshotVersion = 1

const defaultSnapshotLines = 200

// Snapshot is the persisted form of a deck: layout, labels, the newest
// transcript lines and command history. Connections are not persisted.
type Snapshot struct {
	Version  int               `json:"version"`
	Layout   Layout            `json:"layout"`
	Active   int               `json:"active"`
	Sessions []SessionSnapshot `json:"sessions"`
	SavedAt  time.Time         `json:"saved_at"`
}

type SessionSnapshot struct {
	Label   string   `json:"label"`
	Lines   []Line   `json:"lines,omitempty"`
	History []string `json:"history,omitempty"`
}

// ProfileStore is the subset of the profile backend snapshots need.
type ProfileStore interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, blob []byte) error
}

// Snapshot captures the registry's current state.
func (r *Registry) Snapshot() Snapshot {
	keep := r.opts.SnapshotLines
	if keep <= 0 {
		keep = defaultSnapshotLines
	}

	r.mu.Lock()
	list := append([]*session(nil), r.sessions...)
	snap := Snapshot{
		Version: SnapshotVersion,
		Layout:  r.layout,
		SavedAt: time.Now().UTC(),
	}
	for i, s := range list {
		if s.id == r.active {
			snap.Active = i
		}
	}
	r.mu.Unlock()

	for _, s := range list {
		s.mu.Lock()
		snap.Sessions = append(snap.Sessions, SessionSnapshot{
			Label:   s.label,
			Lines:   s.lines.Tail(keep),
			History: s.history.Entries(),
		})
		s.mu.Unlock()
	}
	return snap
}

// Restore replaces every session with the snapshot's, all disconnected.
// Live connections are closed first.
func (r *Registry) Restore(snap Snapshot) error {
	if snap.Version != SnapshotVersion {
		return fmt.Errorf("unsupported snapshot version %d", snap.Version)
	}
	if len(snap.Sessions) == 0 {
		return errors.New("snapshot has no sessions")
	}
	layout := snap.Layout
	if !layout.Valid() {
		layout = LayoutSingle
	}

	restored := make([]*session, 0, len(snap.Sessions))
	for i, ss := range snap.Sessions {
		label := ss.Label
		if label == "" {
			label = fmt.Sprintf("Terminal %d", i+1)
		}
		s := newSession("", label, r.opts)
		s.history = newHistoryFrom(ss.History, r.opts.HistorySize)
		for _, line := range ss.Lines {
			s.restoreLine(line)
		}
		restored = append(restored, s)
	}

	r.mu.Lock()
	old := r.sessions
	r.sessions = nil
	r.nextLabel = 1
	for _, s := range restored {
		created := r.newSessionLocked()
		created.label = s.label
		created.history = s.history
		created.lines = s.lines
		created.nextLineID = s.nextLineID
	}
	for _, s := range r.sessions {
		var n int
		if _, err := fmt.Sscanf(s.label, "Terminal %d", &n); err == nil && n >= r.nextLabel {
			r.nextLabel = n + 1
		}
	}
	r.layout = fitLayout(layout, len(r.sessions))
	idx := snap.Active
	if idx < 0 || idx >= len(r.sessions) {
		idx = 0
	}
	r.active = r.sessions[idx].id
	r.keepActiveVisibleLocked()
	r.mu.Unlock()

	for _, s := range old {
		s.mu.Lock()
		conn := s.detach()
		s.state = StateDisconnected
		s.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
	}
	r.notify()
	return nil
}

// SaveProfile stores the current snapshot under key.
func (r *Registry) SaveProfile(ctx context.Context, store ProfileStore, key string) error {
	blob, err := json.Marshal(r.Snapshot())
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := store.Save(ctx, key, blob); err != nil {
		return fmt.Errorf("save profile %q: %w", key, err)
	}
	deckLog.Info("profile_saved", slog.String("key", key), slog.Int("bytes", len(blob)))
	return nil
}

// LoadProfile restores the snapshot stored under key. A missing profile
// surfaces the store's not-found error unchanged for errors.Is.
func (r *Registry) LoadProfile(ctx context.Context, store ProfileStore, key string) error {
	blob, err := store.Load(ctx, key)
	if err != nil {
		return fmt.Errorf("load profile %q: %w", key, err)
	}
	var snap Snapshot
	if err := json.Unmarshal(blob, &snap); err != nil {
		return fmt.Errorf("decode profile %q: %w", key, err)
	}
	if err := r.Restore(snap); err != nil {
		return fmt.Errorf("restore profile %q: %w", key, err)
	}
	deckLog.Info("profile_loaded", slog.String("key", key), slog.Int("sessions", len(snap.Sessions)))
	return nil
}
