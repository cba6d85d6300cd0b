package trading

import (
	"context"
	"time"

	"breakout-trader/internal/models"
	"breakout-trader/internal/state"
	"breakout-trader/pkg/utils"
)

// InExpiryWindow reports whether now falls within the pre-expiry flatten
// window of the active contract. Inside the window new entries are blocked
// and an open position in the expiring contract is closed out.
func (m *Manager) InExpiryWindow(now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inExpiryWindowLocked(now)
}

func (m *Manager) inExpiryWindowLocked(now time.Time) bool {
	if m.contract == nil || m.contract.Expiry.IsZero() {
		return false
	}
	return utils.DaysUntil(now, m.contract.Expiry) <= m.cfg.ExpiryLeadDays
}

// CheckExpiry flattens the open position when the expiry window has been
// entered. It is a no-op when flat or outside the window.
func (m *Manager) CheckExpiry(ctx context.Context, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.position == nil || !m.inExpiryWindowLocked(now) {
		return nil
	}

	price, err := m.broker.LastPrice(ctx, m.position.Symbol)
	if err != nil {
		m.logger.Error().Err(err).Msg("Failed to fetch price for expiry flatten")
		price = m.position.CurrentStop
	}
	m.logger.Warn().
		Str("contract", m.position.Symbol).
		Time("expiry", m.contract.Expiry).
		Msg("Inside pre-expiry window, flattening position")
	return m.exitLocked(ctx, models.ExitExpiryWindow, price)
}

// RolloverDay resets the per-day state for a new calendar day. The ledger
// and reference range are cleared; an open position and equity carry over.
func (m *Manager) RolloverDay(day string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logger.Info().
		Str("day", day).
		Float64("prev_day_r", m.ledger.CumulativeR).
		Msg("Day rollover")

	m.ledger = models.DailyLedger{Day: day}
	m.reference = nil
	return m.persistLocked()
}

// Restore reinstates persisted state after a restart.
func (m *Manager) Restore(snap *state.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.position = snap.Position
	m.equity = snap.Equity
	m.ledger = snap.Ledger
	m.reference = snap.Reference

	if m.position != nil {
		m.pendingExit = models.ExitRecoveryCheck
		m.logger.Info().
			Str("symbol", m.position.Symbol).
			Str("state", string(m.position.State)).
			Float64("stop", m.position.CurrentStop).
			Msg("Recovered open position from snapshot")
	}
}

// ValidateRecovered re-checks a recovered position against the current
// market. A price at or through the stop exits immediately as a gap-down;
// a stale contract that is no longer the active one is flattened; a price
// through the target arms trailing as if the tick had been seen live.
func (m *Manager) ValidateRecovered(ctx context.Context, snapshotContract string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos := m.position
	if pos == nil {
		return nil
	}

	if m.contract != nil && snapshotContract != "" && snapshotContract != m.contract.Symbol {
		m.logger.Warn().
			Str("held", snapshotContract).
			Str("active", m.contract.Symbol).
			Msg("Recovered position is in a stale contract, flattening")
		price, err := m.broker.LastPrice(ctx, pos.Symbol)
		if err != nil {
			price = pos.CurrentStop
		}
		return m.exitLocked(ctx, models.ExitRecoveryCheck, price)
	}

	price, err := m.broker.LastPrice(ctx, pos.Symbol)
	if err != nil {
		m.logger.Error().Err(err).Msg("Failed to fetch price for recovery check")
		return err
	}

	eps := m.cfg.TickSize / 2

	if pos.State == models.StateExiting {
		return m.exitLocked(ctx, m.pendingExit, price)
	}

	if price <= pos.CurrentStop+eps {
		m.logger.Warn().
			Float64("price", price).
			Float64("stop", pos.CurrentStop).
			Msg("Recovered position is through its stop, exiting")
		reason := models.ExitGapDown
		if pos.TargetHit {
			reason = models.ExitTrailingStop
		}
		return m.exitLocked(ctx, reason, price)
	}

	if !pos.TargetHit && price >= pos.TargetPrice-eps {
		pos.TargetHit = true
		pos.State = models.StateTrailingArmed
		if err := m.persistLocked(); err != nil {
			return err
		}
		m.logger.Info().
			Float64("price", price).
			Msg("Recovered position is past its target, trailing armed")
	}

	m.pendingExit = ""
	return nil
}
