// Package trading owns the trade lifecycle: entry sizing and placement,
// stop and target monitoring, trailing, exits and the daily guardrail.
package trading

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"breakout-trader/internal/broker"
	apperrors "breakout-trader/internal/errors"
	"breakout-trader/internal/models"
	"breakout-trader/internal/notify"
	"breakout-trader/internal/risk"
	"breakout-trader/internal/state"
	"breakout-trader/internal/store"
)

const (
	exitAttempts   = 3
	exitRetryDelay = 2 * time.Second
)

// ManagerConfig holds the lifecycle parameters.
type ManagerConfig struct {
	TargetR           float64
	TickSize          float64
	MaxDailyDrawdownR float64
	ExpiryLeadDays    int
	// Intrabar selects tick-level stop/target checks. When false the
	// manager evaluates candle ranges instead, which is what replay uses.
	Intrabar     bool
	TradeLogPath string
}

// Manager runs the single-position trade state machine. Every mutation of
// position, equity or the daily ledger is persisted before the transition is
// considered complete; a persistence failure is returned to the caller and
// must stop the engine.
type Manager struct {
	logger    zerolog.Logger
	broker    broker.Broker
	sizer     *risk.Sizer
	snapshots *state.Store
	journal   store.Journal
	notifier  notify.Notifier
	cfg       ManagerConfig

	// markPrice, when set, pins the simulated execution price before an
	// order is placed. Wired to the paper broker; nil in live mode.
	markPrice func(symbol string, price float64)

	mu          sync.Mutex
	position    *models.Position
	pendingExit models.ExitReason
	equity      models.EquityState
	ledger      models.DailyLedger
	reference   *models.ReferenceRange
	contract    *models.Instrument
}

// NewManager creates a trade manager. journal and notifier may be nil.
func NewManager(b broker.Broker, sizer *risk.Sizer, snapshots *state.Store, journal store.Journal, notifier notify.Notifier, cfg ManagerConfig, logger zerolog.Logger) *Manager {
	return &Manager{
		logger:    logger.With().Str("component", "trading").Logger(),
		broker:    b,
		sizer:     sizer,
		snapshots: snapshots,
		journal:   journal,
		notifier:  notifier,
		cfg:       cfg,
	}
}

// SetMarkPrice installs the paper-mode execution price hook.
func (m *Manager) SetMarkPrice(fn func(symbol string, price float64)) {
	m.markPrice = fn
}

// SetContract sets the futures contract orders are routed to.
func (m *Manager) SetContract(inst *models.Instrument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contract = inst
	return m.persistLocked()
}

// Contract returns the active futures contract, or nil.
func (m *Manager) Contract() *models.Instrument {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.contract
}

// SeedEquity establishes the capital base. The trailing high never moves
// down, so a restart with lower broker capital keeps the prior high-water
// mark as the risk-sizing base.
func (m *Manager) SeedEquity(capital float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.equity.Capital = capital
	if capital > m.equity.TrailingHigh {
		m.equity.TrailingHigh = capital
	}
	m.logger.Info().
		Float64("capital", m.equity.Capital).
		Float64("trailing_high", m.equity.TrailingHigh).
		Msg("Equity seeded")
	return m.persistLocked()
}

// SetReference records the day's reference range in durable state.
func (m *Manager) SetReference(ref *models.ReferenceRange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reference = ref
	return m.persistLocked()
}

// Reference returns the persisted reference range, or nil.
func (m *Manager) Reference() *models.ReferenceRange {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reference
}

// Position returns the open position, or nil when flat.
func (m *Manager) Position() *models.Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.position
}

// Equity returns the current equity state.
func (m *Manager) Equity() models.EquityState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.equity
}

// Ledger returns the current daily ledger.
func (m *Manager) Ledger() models.DailyLedger {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ledger
}

// Halted reports whether the daily guardrail has tripped.
func (m *Manager) Halted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ledger.Halted
}

// CanEnter reports whether a new entry is currently permitted.
func (m *Manager) CanEnter(now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.canEnterLocked(now)
}

func (m *Manager) canEnterLocked(now time.Time) error {
	if m.position != nil {
		return apperrors.ErrPositionOpen
	}
	if m.ledger.Halted {
		return apperrors.ErrTradingHalted
	}
	if m.contract == nil {
		return apperrors.ErrContractNotFound
	}
	if m.inExpiryWindowLocked(now) {
		return apperrors.ErrExpiryWindow
	}
	return nil
}

// Enter acts on a breakout signal: size the trade, place a market buy and
// open the position. A zero computed quantity is a defined no-trade outcome
// and returns nil without entering.
func (m *Manager) Enter(ctx context.Context, sig *models.Signal, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.canEnterLocked(now); err != nil {
		return err
	}

	qty := m.sizer.Quantity(m.equity, *sig)
	if qty == 0 {
		m.logger.Info().
			Float64("risk_per_unit", sig.RiskPerUnit).
			Msg("Computed quantity below one lot, skipping entry")
		if m.notifier != nil {
			_ = m.notifier.Send(ctx, notify.Notification{
				Type:  notify.NotificationInfo,
				Title: "ENTRY SKIPPED",
				Message: fmt.Sprintf(
					"Computed quantity below one lot (risk/unit %.2f), no trade taken.",
					sig.RiskPerUnit),
			})
		}
		return nil
	}

	symbol := m.contract.Symbol
	if m.markPrice != nil {
		m.markPrice(symbol, sig.TriggerClose)
	}

	fill, err := m.broker.PlaceMarketOrder(ctx, symbol, models.OrderSideBuy, qty)
	if err != nil {
		if m.notifier != nil {
			m.notifier.SendError(ctx, err, "entry order")
		}
		return apperrors.NewOrderError(symbol, string(models.OrderSideBuy), "entry failed", err)
	}

	m.position = &models.Position{
		Symbol:      symbol,
		EntryPrice:  fill.Price,
		Quantity:    fill.Quantity,
		InitialStop: sig.InitialStop,
		CurrentStop: sig.InitialStop,
		RiskPerUnit: sig.RiskPerUnit,
		TargetPrice: sig.TriggerClose + m.cfg.TargetR*sig.RiskPerUnit,
		EntryTime:   fill.FilledAt,
		State:       models.StateOpen,
	}
	m.ledger.TradesTaken++

	if err := m.persistLocked(); err != nil {
		return err
	}

	m.logger.Info().
		Str("symbol", symbol).
		Float64("entry", fill.Price).
		Int("qty", fill.Quantity).
		Float64("stop", m.position.CurrentStop).
		Float64("target", m.position.TargetPrice).
		Msg("Position opened")
	if m.notifier != nil {
		m.notifier.SendEntry(ctx, m.position)
	}
	return nil
}

// OnTick evaluates the open position against a live price update. Target
// arming is checked before the stop so a tick that crosses both in one
// update behaves like the worst case: stop exit at the trailing reason.
func (m *Manager) OnTick(ctx context.Context, tick models.Tick) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos := m.position
	if pos == nil {
		return nil
	}

	if pos.State == models.StateExiting {
		// A previous exit attempt failed; retry at the current price.
		return m.exitLocked(ctx, m.pendingExit, tick.Price)
	}

	eps := m.cfg.TickSize / 2

	if !pos.TargetHit && tick.Price >= pos.TargetPrice-eps {
		pos.TargetHit = true
		pos.State = models.StateTrailingArmed
		if err := m.persistLocked(); err != nil {
			return err
		}
		m.logger.Info().
			Float64("price", tick.Price).
			Float64("target", pos.TargetPrice).
			Msg("Target reached, trailing armed")
		if m.notifier != nil {
			m.notifier.SendTargetHit(ctx, pos)
		}
	}

	if tick.Price <= pos.CurrentStop+eps {
		reason := models.ExitStopHit
		if pos.TargetHit {
			reason = models.ExitTrailingStop
		}
		return m.exitLocked(ctx, reason, tick.Price)
	}
	return nil
}

// OnCandle applies per-candle position management. In intrabar mode only the
// trailing rule runs here, ticks having already covered stop and target. In
// candle mode the candle's range is checked too, stop before target.
func (m *Manager) OnCandle(ctx context.Context, c *models.Candle) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos := m.position
	if pos == nil {
		return nil
	}

	eps := m.cfg.TickSize / 2

	if !m.cfg.Intrabar {
		if pos.State == models.StateExiting {
			return m.exitLocked(ctx, m.pendingExit, c.Close)
		}
		if c.Low <= pos.CurrentStop+eps {
			reason := models.ExitStopHit
			if pos.TargetHit {
				reason = models.ExitTrailingStop
			}
			return m.exitLocked(ctx, reason, pos.CurrentStop)
		}
		if !pos.TargetHit && c.High >= pos.TargetPrice-eps {
			pos.TargetHit = true
			pos.State = models.StateTrailingArmed
			if err := m.persistLocked(); err != nil {
				return err
			}
			m.logger.Info().
				Float64("high", c.High).
				Float64("target", pos.TargetPrice).
				Msg("Target reached, trailing armed")
			if m.notifier != nil {
				m.notifier.SendTargetHit(ctx, pos)
			}
		}
	}

	// After the target, each finalized candle ratchets the stop up to its
	// low. The stop never moves down.
	if pos.TargetHit && c.Low > pos.CurrentStop {
		pos.CurrentStop = c.Low
		if err := m.persistLocked(); err != nil {
			return err
		}
		m.logger.Info().
			Float64("stop", pos.CurrentStop).
			Msg("Trailing stop raised")
		if m.notifier != nil {
			m.notifier.SendTrailingUpdate(ctx, pos)
		}
	}
	return nil
}

// ForceExit closes the open position for an external reason such as the
// pre-expiry flatten or a startup gap check.
func (m *Manager) ForceExit(ctx context.Context, reason models.ExitReason, refPrice float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.position == nil {
		return apperrors.ErrNoPosition
	}
	return m.exitLocked(ctx, reason, refPrice)
}

// exitLocked closes the position with a market sell, retrying transient
// failures. On persistent failure the position stays in EXITING and the next
// tick retries; on success the realized outcome flows into equity, the daily
// ledger and the journal.
func (m *Manager) exitLocked(ctx context.Context, reason models.ExitReason, refPrice float64) error {
	pos := m.position
	pos.State = models.StateExiting
	m.pendingExit = reason

	if m.markPrice != nil {
		m.markPrice(pos.Symbol, refPrice)
	}

	var fill *broker.Fill
	var err error
	for attempt := 1; attempt <= exitAttempts; attempt++ {
		fill, err = m.broker.PlaceMarketOrder(ctx, pos.Symbol, models.OrderSideSell, pos.Quantity)
		if err == nil {
			break
		}
		m.logger.Error().Err(err).
			Int("attempt", attempt).
			Str("reason", string(reason)).
			Msg("Exit order failed")
		if attempt < exitAttempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(exitRetryDelay):
			}
		}
	}
	if err != nil {
		if perr := m.persistLocked(); perr != nil {
			return perr
		}
		if m.notifier != nil {
			m.notifier.SendError(ctx, err, "exit order")
		}
		return apperrors.NewOrderError(pos.Symbol, string(models.OrderSideSell), "exit failed, position remains", err)
	}

	pnl := (fill.Price - pos.EntryPrice) * float64(pos.Quantity)
	realizedR := pos.RealizedR(fill.Price)

	rec := &models.TradeRecord{
		ID:         fmt.Sprintf("T%s", fill.FilledAt.Format("20060102-150405")),
		Symbol:     pos.Symbol,
		Quantity:   pos.Quantity,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  fill.Price,
		EntryTime:  pos.EntryTime,
		ExitTime:   fill.FilledAt,
		PnL:        pnl,
		RealizedR:  realizedR,
		Reason:     reason,
	}

	m.equity.Update(pnl)
	m.ledger.CumulativeR += realizedR
	m.position = nil
	m.pendingExit = ""

	tripped := false
	if !m.ledger.Halted && m.ledger.CumulativeR <= -m.cfg.MaxDailyDrawdownR {
		m.ledger.Halted = true
		tripped = true
	}

	if err := m.persistLocked(); err != nil {
		return err
	}

	m.logger.Info().
		Str("reason", string(reason)).
		Float64("exit", fill.Price).
		Float64("pnl", pnl).
		Float64("realized_r", realizedR).
		Float64("daily_r", m.ledger.CumulativeR).
		Msg("Position closed")

	m.journalTrade(ctx, rec)
	if m.notifier != nil {
		m.notifier.SendExit(ctx, rec, m.ledger.CumulativeR)
		if tripped {
			m.notifier.SendHalt(ctx, fmt.Sprintf(
				"Daily PnL %.2fR breached the -%.2fR limit. No further entries today.",
				m.ledger.CumulativeR, m.cfg.MaxDailyDrawdownR))
		}
	}
	if tripped {
		m.logger.Warn().
			Float64("daily_r", m.ledger.CumulativeR).
			Float64("limit_r", -m.cfg.MaxDailyDrawdownR).
			Msg("Daily drawdown guardrail tripped")
	}
	return nil
}

// journalTrade writes the trade to the SQLite journal and the CSV log.
// Journal failures are logged but never fail a completed exit.
func (m *Manager) journalTrade(ctx context.Context, rec *models.TradeRecord) {
	if m.journal != nil {
		if err := m.journal.RecordTrade(ctx, rec); err != nil {
			m.logger.Error().Err(err).Msg("Failed to journal trade")
		}
	}
	if m.cfg.TradeLogPath != "" {
		if err := store.AppendTradeCSV(m.cfg.TradeLogPath, rec); err != nil {
			m.logger.Error().Err(err).Msg("Failed to append trade log")
		}
	}
}

func (m *Manager) persistLocked() error {
	snap := &state.Snapshot{
		Position:  m.position,
		Equity:    m.equity,
		Ledger:    m.ledger,
		Reference: m.reference,
	}
	if m.contract != nil {
		snap.ActiveContract = m.contract.Symbol
	}
	if err := m.snapshots.Save(snap); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrSnapshotWrite, err)
	}
	return nil
}
