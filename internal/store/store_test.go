package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"breakout-trader/internal/models"
	"breakout-trader/pkg/utils"
)

func sampleTrade(id string, exit time.Time) *models.TradeRecord {
	return &models.TradeRecord{
		ID:         id,
		Symbol:     "NIFTY25AUGFUT",
		Quantity:   500,
		EntryPrice: 102,
		ExitPrice:  118,
		EntryTime:  exit.Add(-time.Hour),
		ExitTime:   exit,
		PnL:        8000,
		RealizedR:  4,
		Reason:     models.ExitTrailingStop,
	}
}

func TestSQLiteJournalRecordAndQueryTrades(t *testing.T) {
	j, err := NewSQLiteJournal(filepath.Join(t.TempDir(), "trader.db"))
	require.NoError(t, err)
	defer j.Close()

	ctx := context.Background()
	base := time.Date(2025, 6, 2, 14, 0, 0, 0, utils.IndiaLocation)

	require.NoError(t, j.RecordTrade(ctx, sampleTrade("T1", base)))
	require.NoError(t, j.RecordTrade(ctx, sampleTrade("T2", base.Add(24*time.Hour))))

	trades, err := j.TradesBetween(ctx, base.Add(-time.Minute), base.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, "T1", trades[0].ID)
	assert.Equal(t, models.ExitTrailingStop, trades[0].Reason)
	assert.InDelta(t, 4.0, trades[0].RealizedR, 0.001)
}

func TestSQLiteJournalCandleDedup(t *testing.T) {
	j, err := NewSQLiteJournal(filepath.Join(t.TempDir(), "trader.db"))
	require.NoError(t, err)
	defer j.Close()

	ctx := context.Background()
	candle := &models.Candle{
		Timestamp: time.Date(2025, 6, 2, 9, 15, 0, 0, utils.IndiaLocation),
		Open:      100, High: 104, Low: 95, Close: 99, Volume: 1000,
	}

	require.NoError(t, j.RecordCandle(ctx, "NSE:NIFTY 50", candle))
	// Same symbol and timestamp again is ignored, not an error.
	require.NoError(t, j.RecordCandle(ctx, "NSE:NIFTY 50", candle))
}

func TestAppendTradeCSVWritesHeaderOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trades.csv")
	base := time.Date(2025, 6, 2, 14, 0, 0, 0, utils.IndiaLocation)

	require.NoError(t, AppendTradeCSV(path, sampleTrade("T1", base)))
	require.NoError(t, AppendTradeCSV(path, sampleTrade("T2", base.Add(time.Hour))))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	content := string(data)
	assert.Equal(t, 1, strings.Count(content, "entry_price"))
	assert.Contains(t, content, "T1")
	assert.Contains(t, content, "T2")
	assert.Contains(t, content, "TSL_HIT")
}

func TestLoadCandlesCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "candles.csv")
	csv := "timestamp,open,high,low,close,volume\n" +
		"2025-06-02 09:15:00,100,104,95,99,1000\n" +
		"2025-06-02 09:30:00,99,103,98,102,1200\n"
	require.NoError(t, os.WriteFile(path, []byte(csv), 0644))

	candles, err := LoadCandlesCSV(path, utils.IndiaLocation)
	require.NoError(t, err)
	require.Len(t, candles, 2)

	assert.Equal(t, time.Date(2025, 6, 2, 9, 15, 0, 0, utils.IndiaLocation), candles[0].Timestamp)
	assert.Equal(t, 104.0, candles[0].High)
	assert.Equal(t, int64(1200), candles[1].Volume)
}

func TestLoadCandlesCSVBadTimestamp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "candles.csv")
	csv := "timestamp,open,high,low,close,volume\n" +
		"yesterday,100,104,95,99,1000\n"
	require.NoError(t, os.WriteFile(path, []byte(csv), 0644))

	_, err := LoadCandlesCSV(path, utils.IndiaLocation)
	assert.Error(t, err)
}

func TestExportTradesCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trades.csv")
	base := time.Date(2025, 6, 2, 14, 0, 0, 0, utils.IndiaLocation)

	trades := []models.TradeRecord{*sampleTrade("T1", base), *sampleTrade("T2", base.Add(time.Hour))}
	require.NoError(t, ExportTradesCSV(path, trades))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "2025-06-02 14:00:00")
	assert.Contains(t, content, "NIFTY25AUGFUT")
}
