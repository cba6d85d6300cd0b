// Package bar folds a tick stream into fixed-width time candles.
package bar

import (
	"time"

	"github.com/rs/zerolog"

	"breakout-trader/internal/models"
	"breakout-trader/pkg/utils"
)

// backwardTolerance is how far behind the current interval's open a tick may
// arrive before it is treated as stale and dropped.
const backwardTolerance = 5 * time.Second

// Aggregator builds candles of a fixed width from one instrument's ticks.
// Interval boundaries are anchored to the session open. Intervals that
// receive no ticks produce no candle.
type Aggregator struct {
	symbol   string
	interval time.Duration
	logger   zerolog.Logger

	current      *models.Candle
	currentStart time.Time
	lastTick     time.Time
	lastFinal    time.Time // end of the last finalized interval
	dropped      int
}

// NewAggregator creates an aggregator for the given instrument and candle width.
func NewAggregator(symbol string, interval time.Duration, logger zerolog.Logger) *Aggregator {
	return &Aggregator{
		symbol:   symbol,
		interval: interval,
		logger:   logger.With().Str("component", "bar").Str("symbol", symbol).Logger(),
	}
}

// Apply folds one tick into the aggregator. If the tick opens a new interval,
// the previous interval's candle is finalized and returned. Ticks at or
// before the last finalized interval's end, and ticks jumping backwards past
// the tolerance, are dropped and counted.
func (a *Aggregator) Apply(tick models.Tick) (*models.Candle, bool) {
	ts := tick.Timestamp.In(utils.IndiaLocation)

	if !a.lastFinal.IsZero() && !ts.After(a.lastFinal) {
		a.drop(tick, "late tick for closed interval")
		return nil, false
	}

	start := utils.IntervalStart(ts, a.interval)

	if a.current == nil {
		a.open(start, tick)
		a.lastTick = ts
		return nil, false
	}

	switch {
	case start.After(a.currentStart):
		done := a.finalize()
		a.open(start, tick)
		a.lastTick = ts
		return done, true
	case start.Equal(a.currentStart):
		if ts.Before(a.lastTick.Add(-backwardTolerance)) {
			a.drop(tick, "backward timestamp jump")
			return nil, false
		}
		a.update(tick)
		a.lastTick = ts
		return nil, false
	default:
		a.drop(tick, "tick before current interval")
		return nil, false
	}
}

// Flush finalizes and returns the in-progress candle, if any. Used at
// session end and in replay when the feed is exhausted.
func (a *Aggregator) Flush() (*models.Candle, bool) {
	if a.current == nil {
		return nil, false
	}
	return a.finalize(), true
}

// Dropped returns the count of ticks rejected so far.
func (a *Aggregator) Dropped() int {
	return a.dropped
}

func (a *Aggregator) open(start time.Time, tick models.Tick) {
	a.currentStart = start
	a.current = &models.Candle{
		Timestamp: start,
		Open:      tick.Price,
		High:      tick.Price,
		Low:       tick.Price,
		Close:     tick.Price,
		Volume:    tick.Volume,
	}
}

func (a *Aggregator) update(tick models.Tick) {
	c := a.current
	if tick.Price > c.High {
		c.High = tick.Price
	}
	if tick.Price < c.Low {
		c.Low = tick.Price
	}
	c.Close = tick.Price
	c.Volume += tick.Volume
}

func (a *Aggregator) finalize() *models.Candle {
	done := a.current
	a.current = nil
	a.lastFinal = a.currentStart.Add(a.interval)
	a.logger.Debug().
		Time("start", done.Timestamp).
		Float64("open", done.Open).
		Float64("high", done.High).
		Float64("low", done.Low).
		Float64("close", done.Close).
		Msg("Candle finalized")
	return done
}

func (a *Aggregator) drop(tick models.Tick, reason string) {
	a.dropped++
	a.logger.Debug().
		Time("tick_ts", tick.Timestamp).
		Str("reason", reason).
		Msg("Tick dropped")
}
