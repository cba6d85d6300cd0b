package strategy

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"breakout-trader/internal/config"
	"breakout-trader/internal/models"
	"breakout-trader/internal/notify"
	"breakout-trader/pkg/utils"
)

// captureChannel records notifications for assertions.
type captureChannel struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (c *captureChannel) Name() string    { return "capture" }
func (c *captureChannel) IsEnabled() bool { return true }

func (c *captureChannel) Send(_ context.Context, n notify.Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, n)
	return nil
}

func (c *captureChannel) all() []notify.Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]notify.Notification(nil), c.sent...)
}

func candleAt(h, m int, o, hi, lo, c float64) *models.Candle {
	return &models.Candle{
		Timestamp: time.Date(2025, 6, 2, h, m, 0, 0, utils.IndiaLocation),
		Open:      o,
		High:      hi,
		Low:       lo,
		Close:     c,
		Volume:    1000,
	}
}

func TestFirstCandleSetsReferenceWithoutSignal(t *testing.T) {
	d := NewBreakoutDetector(false, zerolog.Nop())

	sig := d.OnCandle(candleAt(9, 15, 100, 100, 95, 99))
	assert.Nil(t, sig)

	ref := d.Reference()
	require.NotNil(t, ref)
	assert.Equal(t, "2025-06-02", ref.Day)
	assert.Equal(t, 100.0, ref.High)
	assert.Equal(t, 95.0, ref.Low)
}

func TestMidDayFirstCandleDoesNotSetReference(t *testing.T) {
	d := NewBreakoutDetector(false, zerolog.Nop())

	// The stream starts mid-session: the opening range was never observed,
	// so no candle of this day can arm the detector.
	sig := d.OnCandle(candleAt(11, 0, 100, 101, 99, 100))
	assert.Nil(t, sig)
	assert.Nil(t, d.Reference())

	sig = d.OnCandle(candleAt(11, 15, 100, 104, 99, 103))
	assert.Nil(t, sig)
	assert.Nil(t, d.Reference())
}

func TestBreakoutCloseAboveReferenceHighSignals(t *testing.T) {
	d := NewBreakoutDetector(false, zerolog.Nop())
	d.OnCandle(candleAt(9, 15, 100, 100, 95, 99))

	sig := d.OnCandle(candleAt(9, 30, 99, 103, 98, 102))
	require.NotNil(t, sig)
	assert.Equal(t, models.SignalLong, sig.Direction)
	assert.Equal(t, 102.0, sig.TriggerClose)
	assert.Equal(t, 98.0, sig.InitialStop)
	assert.Equal(t, 4.0, sig.RiskPerUnit)
}

func TestCloseAtReferenceHighDoesNotSignal(t *testing.T) {
	d := NewBreakoutDetector(false, zerolog.Nop())
	d.OnCandle(candleAt(9, 15, 100, 100, 95, 99))

	// Close must be strictly above the reference high.
	sig := d.OnCandle(candleAt(9, 30, 99, 101, 98, 100))
	assert.Nil(t, sig)
}

func TestHighTouchWithoutCloseDoesNotSignal(t *testing.T) {
	d := NewBreakoutDetector(false, zerolog.Nop())
	d.OnCandle(candleAt(9, 15, 100, 100, 95, 99))

	// The wick exceeds the reference high but the close does not.
	sig := d.OnCandle(candleAt(9, 30, 99, 105, 98, 99.5))
	assert.Nil(t, sig)
}

func TestDegenerateBreakoutCandleSuppressed(t *testing.T) {
	d := NewBreakoutDetector(false, zerolog.Nop())
	d.OnCandle(candleAt(9, 15, 100, 100, 95, 99))

	// Close equals low: zero risk per unit, no actionable signal.
	sig := d.OnCandle(candleAt(9, 30, 101, 103, 102, 102))
	assert.Nil(t, sig)
}

func TestDegenerateBreakoutCandleNotifies(t *testing.T) {
	d := NewBreakoutDetector(false, zerolog.Nop())
	capture := &captureChannel{}
	d.SetNotifier(notify.NewMultiNotifier(&config.NotificationConfig{Enabled: true, Level: "all"}, capture))

	d.OnCandle(candleAt(9, 15, 100, 100, 95, 99))
	assert.Nil(t, d.OnCandle(candleAt(9, 30, 101, 103, 102, 102)))

	sent := capture.all()
	require.Len(t, sent, 1)
	assert.Equal(t, notify.NotificationError, sent[0].Type)
	assert.Contains(t, sent[0].Title, "degenerate candle")
}

func TestNoReentryAfterTradeTaken(t *testing.T) {
	d := NewBreakoutDetector(false, zerolog.Nop())
	d.OnCandle(candleAt(9, 15, 100, 100, 95, 99))

	sig := d.OnCandle(candleAt(9, 30, 99, 103, 98, 102))
	require.NotNil(t, sig)
	d.MarkTradeTaken()

	sig = d.OnCandle(candleAt(9, 45, 102, 106, 101, 105))
	assert.Nil(t, sig)
}

func TestReentryAllowedWhenConfigured(t *testing.T) {
	d := NewBreakoutDetector(true, zerolog.Nop())
	d.OnCandle(candleAt(9, 15, 100, 100, 95, 99))

	require.NotNil(t, d.OnCandle(candleAt(9, 30, 99, 103, 98, 102)))
	d.MarkTradeTaken()

	sig := d.OnCandle(candleAt(9, 45, 102, 106, 101, 105))
	require.NotNil(t, sig)
	assert.Equal(t, 105.0, sig.TriggerClose)
	assert.Equal(t, 101.0, sig.InitialStop)
}

func TestDayResetClearsReferenceAndTakenFlag(t *testing.T) {
	d := NewBreakoutDetector(false, zerolog.Nop())
	d.OnCandle(candleAt(9, 15, 100, 100, 95, 99))
	require.NotNil(t, d.OnCandle(candleAt(9, 30, 99, 103, 98, 102)))
	d.MarkTradeTaken()

	d.DayReset()
	assert.Nil(t, d.Reference())

	// Next day: first candle sets a fresh reference, then signals again.
	next := &models.Candle{
		Timestamp: time.Date(2025, 6, 3, 9, 15, 0, 0, utils.IndiaLocation),
		Open:      110, High: 112, Low: 108, Close: 111, Volume: 1000,
	}
	assert.Nil(t, d.OnCandle(next))

	breakout := &models.Candle{
		Timestamp: time.Date(2025, 6, 3, 9, 30, 0, 0, utils.IndiaLocation),
		Open:      111, High: 115, Low: 110, Close: 114, Volume: 1000,
	}
	require.NotNil(t, d.OnCandle(breakout))
}

func TestRestoreReinstatesState(t *testing.T) {
	d := NewBreakoutDetector(false, zerolog.Nop())
	d.Restore(&models.ReferenceRange{Day: "2025-06-02", High: 100, Low: 95}, 1)

	// Reference is present and the taken flag blocks further signals.
	require.NotNil(t, d.Reference())
	sig := d.OnCandle(candleAt(10, 0, 101, 104, 100, 103))
	assert.Nil(t, sig)
}
