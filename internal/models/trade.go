package models

import (
	"time"
)

// TradeState represents the lifecycle state of the single managed position.
type TradeState string

const (
	StateFlat          TradeState = "FLAT"
	StateEntering      TradeState = "ENTERING"
	StateOpen          TradeState = "OPEN"
	StateTrailingArmed TradeState = "TRAILING_ARMED"
	StateExiting       TradeState = "EXITING"
)

// SignalDirection represents the direction of an entry signal.
type SignalDirection string

const (
	SignalLong SignalDirection = "LONG"
)

// Signal is an ephemeral entry signal produced by the breakout detector.
// A signal is only valid when RiskPerUnit > 0.
type Signal struct {
	Direction    SignalDirection
	TriggerClose float64
	InitialStop  float64
	RiskPerUnit  float64
	Timestamp    time.Time
}

// Valid reports whether the signal carries a positive risk unit.
func (s Signal) Valid() bool {
	return s.RiskPerUnit > 0
}

// ReferenceRange is the opening candle range for the trading day.
// Set once per day after the first candle closes, immutable thereafter.
type ReferenceRange struct {
	Day  string  `json:"day"` // calendar day, YYYY-MM-DD in session timezone
	High float64 `json:"high"`
	Low  float64 `json:"low"`
}

// Position is the single mutable open trade. At most one exists at any time.
type Position struct {
	Symbol      string     `json:"symbol"`
	EntryPrice  float64    `json:"entry_price"`
	Quantity    int        `json:"quantity"`
	InitialStop float64    `json:"initial_stop"`
	CurrentStop float64    `json:"current_stop"`
	RiskPerUnit float64    `json:"risk_per_unit"`
	TargetPrice float64    `json:"target_price"`
	TargetHit   bool       `json:"target_hit"`
	EntryTime   time.Time  `json:"entry_time"`
	State       TradeState `json:"state"`
}

// RealizedR returns the trade outcome in risk units for the given exit price.
func (p *Position) RealizedR(exitPrice float64) float64 {
	if p.RiskPerUnit <= 0 {
		return 0
	}
	return (exitPrice - p.EntryPrice) / p.RiskPerUnit
}

// EquityState tracks account capital and its historical high-water mark.
// TrailingHigh is monotonically non-decreasing and is the risk-sizing base.
type EquityState struct {
	Capital      float64 `json:"capital"`
	TrailingHigh float64 `json:"trailing_high"`
}

// Update applies a realized currency PnL to the equity state.
func (e *EquityState) Update(pnl float64) {
	e.Capital += pnl
	if e.Capital > e.TrailingHigh {
		e.TrailingHigh = e.Capital
	}
}

// DailyLedger accumulates realized trade outcomes in R for one calendar day.
// Once Halted flips true it stays true until day rollover.
type DailyLedger struct {
	Day         string  `json:"day"`
	CumulativeR float64 `json:"cumulative_r"`
	Halted      bool    `json:"halted"`
	TradesTaken int     `json:"trades_taken"`
}

// ExitReason explains why a position was closed.
type ExitReason string

const (
	ExitStopHit       ExitReason = "SL_HIT"
	ExitTrailingStop  ExitReason = "TSL_HIT"
	ExitGapDown       ExitReason = "GAP_DOWN"
	ExitGuardrail     ExitReason = "GUARDRAIL"
	ExitExpiryWindow  ExitReason = "EXPIRY_WINDOW"
	ExitRecoveryCheck ExitReason = "RECOVERY"
)

// TradeRecord is one completed trade for the journal.
type TradeRecord struct {
	ID         string     `json:"id" csv:"id"`
	Symbol     string     `json:"symbol" csv:"symbol"`
	Quantity   int        `json:"quantity" csv:"quantity"`
	EntryPrice float64    `json:"entry_price" csv:"entry_price"`
	ExitPrice  float64    `json:"exit_price" csv:"exit_price"`
	EntryTime  time.Time  `json:"entry_time" csv:"-"`
	ExitTime   time.Time  `json:"exit_time" csv:"-"`
	PnL        float64    `json:"pnl" csv:"pnl"`
	RealizedR  float64    `json:"realized_r" csv:"realized_r"`
	Reason     ExitReason `json:"reason" csv:"reason"`
}
