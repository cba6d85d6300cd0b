// Package risk computes position size from account equity and signal risk.
package risk

import (
	"math"

	"github.com/rs/zerolog"

	"breakout-trader/internal/models"
)

// Sizer computes trade quantity. Risk capital is a fraction of the trailing
// equity high, so winners compound the risk base while losers do not shrink
// it below the prior high-water mark. The capital allocation cap uses current
// capital.
type Sizer struct {
	riskFraction       float64
	allocationFraction float64
	lotSize            int
	logger             zerolog.Logger
}

// NewSizer creates a sizer from percent-denominated config values.
func NewSizer(riskPercent, maxAllocationPercent float64, lotSize int, logger zerolog.Logger) *Sizer {
	return &Sizer{
		riskFraction:       riskPercent / 100.0,
		allocationFraction: maxAllocationPercent / 100.0,
		lotSize:            lotSize,
		logger:             logger.With().Str("component", "risk").Logger(),
	}
}

// Quantity returns the lot-aligned quantity for a signal, or 0 when the
// computed size falls below one lot. Zero is a defined no-trade outcome.
func (s *Sizer) Quantity(equity models.EquityState, sig models.Signal) int {
	if sig.RiskPerUnit <= 0 || sig.TriggerClose <= 0 {
		return 0
	}

	riskCapital := s.riskFraction * equity.TrailingHigh
	rawQty := riskCapital / sig.RiskPerUnit

	maxCapital := s.allocationFraction * equity.Capital
	capQty := maxCapital / sig.TriggerClose

	qty := s.roundToLot(math.Min(rawQty, capQty))

	s.logger.Debug().
		Float64("risk_capital", riskCapital).
		Float64("raw_qty", rawQty).
		Float64("cap_qty", capQty).
		Int("final_qty", qty).
		Msg("Position sized")

	return qty
}

func (s *Sizer) roundToLot(qty float64) int {
	if s.lotSize <= 0 {
		return 0
	}
	lots := int(math.Floor(qty / float64(s.lotSize)))
	if lots < 0 {
		lots = 0
	}
	return lots * s.lotSize
}
