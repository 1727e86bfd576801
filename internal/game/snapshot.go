package game

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/MrWong99/soulecho/internal/i18n"
	"github.com/MrWong99/soulecho/pkg/persist"
)

// StorageKey is the key the snapshot is stored under.
const StorageKey = "mindful_echoes_save_v1"

// Snapshot is the persisted game progress.
type Snapshot struct {
	Stats      PlayerStats `json:"stats"`
	Collection []Echo      `json:"collection"`
	Lang       i18n.Lang   `json:"lang"`
	Music      bool        `json:"music"`
}

// DefaultSnapshot returns the progress of a new player.
func DefaultSnapshot() Snapshot {
	return Snapshot{
		Stats:      DefaultStats(),
		Collection: []Echo{},
		Lang:       i18n.Default,
	}
}

// SnapshotStore reads and writes the snapshot to a [persist.KV].
type SnapshotStore struct {
	kv  persist.KV
	key string
}

// NewSnapshotStore returns a store writing under [StorageKey].
func NewSnapshotStore(kv persist.KV) *SnapshotStore {
	return &SnapshotStore{kv: kv, key: StorageKey}
}

// Load reads the snapshot. It reports false when no usable record exists.
// Read and parse failures are logged, never returned.
func (s *SnapshotStore) Load(ctx context.Context) (Snapshot, bool) {
	data, err := s.kv.Get(ctx, s.key)
	if err != nil {
		if !errors.Is(err, persist.ErrNotFound) {
			slog.Warn("failed to read saved progress", "key", s.key, "err", err)
		}
		return Snapshot{}, false
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		slog.Warn("failed to parse saved progress", "key", s.key, "err", err)
		return Snapshot{}, false
	}
	return snap.sanitize(), true
}

// Save writes snap. Failures are logged and otherwise ignored.
func (s *SnapshotStore) Save(ctx context.Context, snap Snapshot) {
	if snap.Collection == nil {
		snap.Collection = []Echo{}
	}
	data, err := json.Marshal(snap)
	if err != nil {
		slog.Warn("failed to encode progress", "err", err)
		return
	}
	if err := s.kv.Put(ctx, s.key, data); err != nil {
		slog.Warn("failed to save progress", "key", s.key, "err", err)
	}
}

func (s Snapshot) sanitize() Snapshot {
	s.Stats = s.Stats.sanitize()
	if s.Collection == nil {
		s.Collection = []Echo{}
	}
	if !s.Lang.IsValid() {
		s.Lang = i18n.Default
	}
	return s
}
