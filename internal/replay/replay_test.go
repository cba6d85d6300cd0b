package replay

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"breakout-trader/internal/config"
	"breakout-trader/internal/models"
	"breakout-trader/pkg/utils"
)

func testConfig() *config.Config {
	return &config.Config{
		Trading: config.TradingConfig{
			Mode:           "paper",
			Exchange:       "NFO",
			Product:        "NRML",
			Underlying:     "NIFTY",
			SpotSymbol:     "NSE:NIFTY 50",
			ExpiryLeadDays: 2,
		},
		Strategy: config.StrategyConfig{
			CandleInterval: 15 * time.Minute,
			TargetR:        5.0,
			AllowReentry:   false,
		},
		Risk: config.RiskConfig{
			RiskPerTradePercent:  2.0,
			MaxAllocationPercent: 100.0,
			MaxDailyDrawdownR:    2.5,
			LotSize:              25,
			TickSize:             0.05,
		},
	}
}

func c(day, h, m int, o, hi, lo, cl float64) models.Candle {
	return models.Candle{
		Timestamp: time.Date(2025, 6, day, h, m, 0, 0, utils.IndiaLocation),
		Open:      o,
		High:      hi,
		Low:       lo,
		Close:     cl,
		Volume:    1000,
	}
}

func TestReplayBreakoutToTrailingExit(t *testing.T) {
	runner, err := NewRunner(testConfig(), 100000, zerolog.Nop())
	require.NoError(t, err)

	candles := []models.Candle{
		c(2, 9, 15, 100, 100, 95, 99),    // reference range 100/95
		c(2, 9, 30, 99, 103, 98, 102),    // breakout close, entry 102 stop 98
		c(2, 9, 45, 102, 112, 101, 111),  // runs, nothing triggers
		c(2, 10, 0, 111, 123, 110, 121),  // target 122 touched, trail to 110
		c(2, 10, 15, 121, 125, 118, 124), // trail to 118
		c(2, 10, 30, 124, 124, 116, 117), // low breaks 118, exit at stop
	}

	res, err := runner.Run(context.Background(), candles)
	require.NoError(t, err)

	assert.Equal(t, 6, res.Candles)
	assert.Equal(t, 1, res.Days)
	require.Len(t, res.Trades, 1)

	trade := res.Trades[0]
	assert.Equal(t, models.ExitTrailingStop, trade.Reason)
	assert.Equal(t, 500, trade.Quantity) // 2% of 100000 over 4 points
	assert.InDelta(t, 102.0, trade.EntryPrice, 0.001)
	assert.InDelta(t, 118.0, trade.ExitPrice, 0.001)
	assert.InDelta(t, 4.0, trade.RealizedR, 0.001)

	assert.Equal(t, 1, res.Wins)
	assert.InDelta(t, 4.0, res.TotalR, 0.001)
	assert.InDelta(t, 108000.0, res.FinalEquity.Capital, 0.01)
}

func TestReplayStopOut(t *testing.T) {
	runner, err := NewRunner(testConfig(), 100000, zerolog.Nop())
	require.NoError(t, err)

	candles := []models.Candle{
		c(2, 9, 15, 100, 100, 95, 99),
		c(2, 9, 30, 99, 103, 98, 102), // entry 102, stop 98
		c(2, 9, 45, 102, 104, 97, 98), // low breaks the stop
	}

	res, err := runner.Run(context.Background(), candles)
	require.NoError(t, err)

	require.Len(t, res.Trades, 1)
	assert.Equal(t, models.ExitStopHit, res.Trades[0].Reason)
	assert.InDelta(t, 98.0, res.Trades[0].ExitPrice, 0.001)
	assert.InDelta(t, -1.0, res.Trades[0].RealizedR, 0.001)
	assert.Equal(t, 1, res.Losses)
	assert.InDelta(t, 98000.0, res.FinalEquity.Capital, 0.01)
}

func TestReplayNoBreakoutNoTrades(t *testing.T) {
	runner, err := NewRunner(testConfig(), 100000, zerolog.Nop())
	require.NoError(t, err)

	candles := []models.Candle{
		c(2, 9, 15, 100, 100, 95, 99),
		c(2, 9, 30, 99, 100, 96, 97),
		c(2, 9, 45, 97, 99, 95, 96),
		c(2, 10, 0, 96, 100, 94, 100), // close equals the high, not above
	}

	res, err := runner.Run(context.Background(), candles)
	require.NoError(t, err)
	assert.Empty(t, res.Trades)
	assert.InDelta(t, 100000.0, res.FinalEquity.Capital, 0.01)
}

func TestReplayDayBoundaryResetsReference(t *testing.T) {
	runner, err := NewRunner(testConfig(), 100000, zerolog.Nop())
	require.NoError(t, err)

	candles := []models.Candle{
		// Day one: quiet, no breakout.
		c(2, 9, 15, 100, 100, 95, 99),
		c(2, 9, 30, 99, 100, 96, 98),
		// Day two: a fresh reference forms higher; a close above day one's
		// high but below day two's does not signal.
		c(3, 9, 15, 105, 108, 103, 107),
		c(3, 9, 30, 107, 108, 104, 106),
		// A close above day two's reference high does signal.
		c(3, 9, 45, 106, 110, 105, 109),
	}

	res, err := runner.Run(context.Background(), candles)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Days)
	require.Len(t, res.Trades, 1)
	assert.InDelta(t, 109.0, res.Trades[0].EntryPrice, 0.001)
	// Data ends with the position open; it is closed out at the last close.
	assert.Equal(t, models.ExitRecoveryCheck, res.Trades[0].Reason)
}

func TestReplayOneSignalPerDay(t *testing.T) {
	runner, err := NewRunner(testConfig(), 100000, zerolog.Nop())
	require.NoError(t, err)

	candles := []models.Candle{
		c(2, 9, 15, 100, 100, 95, 99),
		c(2, 9, 30, 99, 103, 98, 102), // entry
		c(2, 9, 45, 102, 104, 97, 98), // stopped out
		c(2, 10, 0, 98, 105, 97, 104), // closes above the high again
		c(2, 10, 15, 104, 107, 103, 106),
	}

	res, err := runner.Run(context.Background(), candles)
	require.NoError(t, err)

	// Re-entry is off: the second breakout close is not acted on.
	require.Len(t, res.Trades, 1)
	assert.Equal(t, models.ExitStopHit, res.Trades[0].Reason)
}

func TestReplayReentryWhenEnabled(t *testing.T) {
	cfg := testConfig()
	cfg.Strategy.AllowReentry = true
	runner, err := NewRunner(cfg, 100000, zerolog.Nop())
	require.NoError(t, err)

	candles := []models.Candle{
		c(2, 9, 15, 100, 100, 95, 99),
		c(2, 9, 30, 99, 103, 98, 102),  // first entry
		c(2, 9, 45, 102, 104, 97, 98),  // stopped out
		c(2, 10, 0, 98, 105, 97, 104),  // second breakout close, re-entry
		c(2, 10, 15, 104, 104, 96, 97), // stopped out again
	}

	res, err := runner.Run(context.Background(), candles)
	require.NoError(t, err)
	require.Len(t, res.Trades, 2)
}
