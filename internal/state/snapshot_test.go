package state

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"breakout-trader/internal/models"
)

func sampleSnapshot() *Snapshot {
	return &Snapshot{
		Position: &models.Position{
			Symbol:      "NIFTY25AUGFUT",
			EntryPrice:  102,
			Quantity:    500,
			InitialStop: 98,
			CurrentStop: 110,
			RiskPerUnit: 4,
			TargetPrice: 122,
			TargetHit:   true,
			EntryTime:   time.Now(),
			State:       models.StateTrailingArmed,
		},
		Equity:         models.EquityState{Capital: 104000, TrailingHigh: 104000},
		Ledger:         models.DailyLedger{Day: "2025-06-02", CumulativeR: 2, TradesTaken: 1},
		Reference:      &models.ReferenceRange{Day: "2025-06-02", High: 100, Low: 95},
		ActiveContract: "NIFTY25AUGFUT",
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "snapshot.json"))

	require.NoError(t, s.Save(sampleSnapshot()))

	got, err := s.Load()
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, "NIFTY25AUGFUT", got.Position.Symbol)
	assert.Equal(t, 110.0, got.Position.CurrentStop)
	assert.True(t, got.Position.TargetHit)
	assert.Equal(t, models.StateTrailingArmed, got.Position.State)
	assert.Equal(t, 104000.0, got.Equity.Capital)
	assert.Equal(t, "2025-06-02", got.Ledger.Day)
	assert.Equal(t, 100.0, got.Reference.High)
	assert.False(t, got.UpdatedAt.IsZero())
}

func TestLoadMissingReturnsNil(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "snapshot.json"))
	got, err := s.Load()
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSaveCreatesParentDirectory(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(filepath.Join(dir, "nested", "deeper", "snapshot.json"))

	snap := sampleSnapshot()
	snap.Position = nil
	require.NoError(t, s.Save(snap))

	got, err := s.Load()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Nil(t, got.Position)
}

func TestSaveOverwritesAtomically(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(filepath.Join(dir, "snapshot.json"))

	first := sampleSnapshot()
	require.NoError(t, s.Save(first))

	second := sampleSnapshot()
	second.Position = nil
	second.Ledger.CumulativeR = -1
	require.NoError(t, s.Save(second))

	got, err := s.Load()
	require.NoError(t, err)
	assert.Nil(t, got.Position)
	assert.Equal(t, -1.0, got.Ledger.CumulativeR)

	// No temp files left behind by the rename dance.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "snapshot.json", entries[0].Name())
}

func TestLoadRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	require.NoError(t, os.WriteFile(path, []byte("{torn"), 0644))

	_, err := NewStore(path).Load()
	assert.Error(t, err)
}
