package risk

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"breakout-trader/internal/models"
)

func signal(trigger, stop float64) models.Signal {
	return models.Signal{
		Direction:    models.SignalLong,
		TriggerClose: trigger,
		InitialStop:  stop,
		RiskPerUnit:  trigger - stop,
		Timestamp:    time.Now(),
	}
}

func TestQuantityFromRiskCapital(t *testing.T) {
	// 2% of 100000 = 2000 risk capital; 4 points of risk per unit gives a
	// raw quantity of 500, exactly 20 lots of 25.
	s := NewSizer(2.0, 100.0, 25, zerolog.Nop())
	equity := models.EquityState{Capital: 100000, TrailingHigh: 100000}

	qty := s.Quantity(equity, signal(102, 98))
	assert.Equal(t, 500, qty)
}

func TestQuantityCappedByAllocation(t *testing.T) {
	// The raw risk quantity is 500 but 50% of capital at an entry of 102
	// only buys 490 units, which floors to 19 lots.
	s := NewSizer(2.0, 50.0, 25, zerolog.Nop())
	equity := models.EquityState{Capital: 100000, TrailingHigh: 100000}

	qty := s.Quantity(equity, signal(102, 98))
	assert.Equal(t, 475, qty)
}

func TestQuantityUsesTrailingHighAsRiskBase(t *testing.T) {
	// Capital fell to 90000 but the high-water mark stays the risk base.
	s := NewSizer(2.0, 100.0, 25, zerolog.Nop())
	equity := models.EquityState{Capital: 90000, TrailingHigh: 100000}

	qty := s.Quantity(equity, signal(102, 98))
	assert.Equal(t, 500, qty)
}

func TestQuantityBelowOneLotIsZero(t *testing.T) {
	s := NewSizer(2.0, 100.0, 25, zerolog.Nop())
	equity := models.EquityState{Capital: 10000, TrailingHigh: 10000}

	// 200 risk capital over 20 points of risk sizes 10 units, under a lot.
	qty := s.Quantity(equity, signal(120, 100))
	assert.Equal(t, 0, qty)
}

func TestQuantityRejectsInvalidSignal(t *testing.T) {
	s := NewSizer(2.0, 100.0, 25, zerolog.Nop())
	equity := models.EquityState{Capital: 100000, TrailingHigh: 100000}

	assert.Equal(t, 0, s.Quantity(equity, models.Signal{TriggerClose: 100, RiskPerUnit: 0}))
	assert.Equal(t, 0, s.Quantity(equity, models.Signal{TriggerClose: 0, RiskPerUnit: 4}))
}

// Property: the quantity is always a non-negative multiple of the lot size,
// the implied risk never exceeds the risk budget, and the notional never
// exceeds the allocation cap.
func TestPropertyQuantityRespectsCaps(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("lot alignment and caps", prop.ForAll(
		func(capital, trigger, riskPts float64, lotSize int) bool {
			if trigger <= riskPts {
				return true // long stop must be below entry
			}
			s := NewSizer(2.0, 50.0, lotSize, zerolog.Nop())
			equity := models.EquityState{Capital: capital, TrailingHigh: capital}
			sig := signal(trigger, trigger-riskPts)

			qty := s.Quantity(equity, sig)
			if qty < 0 || qty%lotSize != 0 {
				return false
			}
			if float64(qty)*sig.RiskPerUnit > 0.02*capital+1e-6 {
				return false
			}
			return float64(qty)*trigger <= 0.5*capital+1e-6
		},
		gen.Float64Range(10000, 10000000),
		gen.Float64Range(100, 30000),
		gen.Float64Range(0.5, 500),
		gen.IntRange(1, 100),
	))

	properties.TestingRun(t)
}
