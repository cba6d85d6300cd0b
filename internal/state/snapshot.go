// Package state persists the engine's mutable state across restarts.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"breakout-trader/internal/models"
)

// Snapshot is the complete durable record of the engine's mutable state.
// It is rewritten atomically after every mutation of Position, EquityState
// or the daily ledger, before the owning transition is considered complete.
type Snapshot struct {
	Position       *models.Position       `json:"position"`
	Equity         models.EquityState     `json:"equity"`
	Ledger         models.DailyLedger     `json:"ledger"`
	Reference      *models.ReferenceRange `json:"reference"`
	ActiveContract string                 `json:"active_contract"`
	UpdatedAt      time.Time              `json:"updated_at"`
}

// Store reads and writes snapshots. Writes are atomic: the snapshot is
// written to a temporary file, synced, and renamed over the previous one, so
// a crash mid-write never leaves a torn state file.
type Store struct {
	path string
}

// NewStore creates a snapshot store at the given file path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the snapshot file location.
func (s *Store) Path() string {
	return s.path
}

// Save writes the snapshot durably. A failure here is fatal for the caller:
// the engine must not keep trading against unconfirmed durable state.
func (s *Store) Save(snap *Snapshot) error {
	snap.UpdatedAt = time.Now()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling snapshot: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating snapshot directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".snapshot-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp snapshot: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("syncing snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing snapshot: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing snapshot: %w", err)
	}

	return nil
}

// Load reads the snapshot. Returns (nil, nil) when no snapshot exists yet.
func (s *Store) Load() (*Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parsing snapshot: %w", err)
	}

	return &snap, nil
}
