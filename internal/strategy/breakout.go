// Package strategy implements the opening-range breakout entry rule.
package strategy

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"breakout-trader/internal/models"
	"breakout-trader/internal/notify"
	"breakout-trader/pkg/utils"
)

// BreakoutDetector holds the day's reference range and evaluates each
// finalized candle against the breakout rule: go long when a candle closes
// strictly above the high of the day's first candle. The breakout candle's
// low becomes the initial stop.
type BreakoutDetector struct {
	logger   zerolog.Logger
	notifier notify.Notifier

	ref          *models.ReferenceRange
	signalFired  bool // a signal led to a taken trade today
	allowReentry bool
}

// NewBreakoutDetector creates a detector.
// When allowReentry is false, only the first taken trade of a day is
// actionable; later breakout closes are ignored until the next day.
func NewBreakoutDetector(allowReentry bool, logger zerolog.Logger) *BreakoutDetector {
	return &BreakoutDetector{
		logger:       logger.With().Str("component", "strategy").Logger(),
		allowReentry: allowReentry,
	}
}

// SetNotifier installs an optional notifier for signal anomalies.
func (d *BreakoutDetector) SetNotifier(n notify.Notifier) {
	d.notifier = n
}

// Reference returns the current day's reference range, or nil before the
// first candle of the day closes.
func (d *BreakoutDetector) Reference() *models.ReferenceRange {
	return d.ref
}

// Restore reinstates a persisted reference range after a restart.
func (d *BreakoutDetector) Restore(ref *models.ReferenceRange, tradesTakenToday int) {
	d.ref = ref
	d.signalFired = tradesTakenToday > 0
}

// DayReset clears all per-day state. Called at day rollover.
func (d *BreakoutDetector) DayReset() {
	d.ref = nil
	d.signalFired = false
	d.logger.Info().Msg("Strategy state reset for new day")
}

// OnCandle evaluates one finalized candle. The first candle of the day sets
// the reference range and never signals. Degenerate breakout candles
// (close <= low, i.e. zero or negative risk) are suppressed.
func (d *BreakoutDetector) OnCandle(c *models.Candle) *models.Signal {
	day := utils.DayKey(c.Timestamp)

	if d.ref == nil {
		// Only the candle that opens the session defines the reference. A
		// mid-day first candle means the opening range was never observed,
		// so the day stays unarmed.
		if !c.Timestamp.Equal(utils.SessionOpen(c.Timestamp)) {
			d.logger.Debug().
				Time("timestamp", c.Timestamp).
				Msg("Not the opening candle, reference range stays unset")
			return nil
		}
		d.ref = &models.ReferenceRange{
			Day:  day,
			High: c.High,
			Low:  c.Low,
		}
		d.logger.Info().
			Float64("high", c.High).
			Float64("low", c.Low).
			Msg("Reference range set from first candle")
		return nil
	}

	if d.signalFired && !d.allowReentry {
		return nil
	}

	if c.Close <= d.ref.High {
		return nil
	}

	sig := &models.Signal{
		Direction:    models.SignalLong,
		TriggerClose: c.Close,
		InitialStop:  c.Low,
		RiskPerUnit:  c.Close - c.Low,
		Timestamp:    c.Timestamp,
	}

	if !sig.Valid() {
		d.logger.Warn().
			Float64("close", c.Close).
			Float64("low", c.Low).
			Msg("Degenerate breakout candle, signal suppressed")
		if d.notifier != nil {
			d.notifier.SendError(context.Background(),
				fmt.Errorf("breakout candle closed at or below its low (close %.2f, low %.2f)", c.Close, c.Low),
				"degenerate candle")
		}
		return nil
	}

	d.logger.Info().
		Float64("close", c.Close).
		Float64("ref_high", d.ref.High).
		Float64("initial_stop", sig.InitialStop).
		Float64("risk_per_unit", sig.RiskPerUnit).
		Msg("Breakout signal")
	return sig
}

// MarkTradeTaken records that a signal resulted in an entry, which blocks
// further signals for the day unless re-entry is allowed.
func (d *BreakoutDetector) MarkTradeTaken() {
	d.signalFired = true
}
