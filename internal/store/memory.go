package store

import (
	"context"
	"sync"
	"time"

	"breakout-trader/internal/models"
)

// MemoryJournal is an in-memory Journal used by replay runs and tests.
type MemoryJournal struct {
	mu      sync.Mutex
	trades  []models.TradeRecord
	candles []models.Candle
}

// NewMemoryJournal creates an empty in-memory journal.
func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{}
}

// RecordTrade stores a completed trade.
func (m *MemoryJournal) RecordTrade(ctx context.Context, rec *models.TradeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trades = append(m.trades, *rec)
	return nil
}

// RecordCandle stores a finalized candle.
func (m *MemoryJournal) RecordCandle(ctx context.Context, symbol string, c *models.Candle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.candles = append(m.candles, *c)
	return nil
}

// TradesBetween returns trades whose exit time falls in [from, to).
func (m *MemoryJournal) TradesBetween(ctx context.Context, from, to time.Time) ([]models.TradeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.TradeRecord
	for _, t := range m.trades {
		if !t.ExitTime.Before(from) && t.ExitTime.Before(to) {
			out = append(out, t)
		}
	}
	return out, nil
}

// Trades returns all recorded trades.
func (m *MemoryJournal) Trades() []models.TradeRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.TradeRecord(nil), m.trades...)
}

// Close is a no-op.
func (m *MemoryJournal) Close() error {
	return nil
}
