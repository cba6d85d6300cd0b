// Package broker provides broker integration implementations.
package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"breakout-trader/internal/models"
)

// PaperBroker implements the Broker interface for paper trading and replay.
// Market orders fill instantly at the last observed price plus a fixed
// slippage in ticks.
type PaperBroker struct {
	capital       float64
	lastPrice     float64
	tickSize      float64
	slippageTicks int
	contract      *models.Instrument

	orderCounter int
	fills        []Fill

	mu sync.RWMutex
}

// PaperBrokerConfig holds configuration for the paper broker.
type PaperBrokerConfig struct {
	InitialCapital float64
	TickSize       float64
	SlippageTicks  int
	Contract       *models.Instrument
}

// NewPaperBroker creates a new paper trading broker.
func NewPaperBroker(cfg PaperBrokerConfig) *PaperBroker {
	capital := cfg.InitialCapital
	if capital == 0 {
		capital = 1000000 // 10 lakhs default
	}
	tickSize := cfg.TickSize
	if tickSize == 0 {
		tickSize = 0.05
	}

	return &PaperBroker{
		capital:       capital,
		tickSize:      tickSize,
		slippageTicks: cfg.SlippageTicks,
		contract:      cfg.Contract,
	}
}

// Login is a no-op for paper trading.
func (p *PaperBroker) Login(ctx context.Context) error {
	return nil
}

// IsAuthenticated always returns true for paper trading.
func (p *PaperBroker) IsAuthenticated() bool {
	return true
}

// AvailableCapital returns the simulated capital.
func (p *PaperBroker) AvailableCapital(ctx context.Context) (float64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.capital, nil
}

// ActiveFuturesContract returns the configured simulated contract.
func (p *PaperBroker) ActiveFuturesContract(ctx context.Context, underlying string) (*models.Instrument, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.contract != nil {
		return p.contract, nil
	}

	// Fabricate a far-dated contract when none is configured
	return &models.Instrument{
		Symbol:    underlying + "FUT",
		Name:      underlying,
		Exchange:  models.NFO,
		LotSize:   25,
		TickSize:  p.tickSize,
		Expiry:    time.Now().AddDate(0, 1, 0),
		InstrType: "FUT",
	}, nil
}

// SetLastPrice updates the simulated market price. The replay runner and the
// paper engine call this on every tick before any order may be placed.
func (p *PaperBroker) SetLastPrice(price float64) {
	p.mu.Lock()
	p.lastPrice = price
	p.mu.Unlock()
}

// PlaceMarketOrder simulates an instant fill at the last price with slippage.
func (p *PaperBroker) PlaceMarketOrder(ctx context.Context, symbol string, side models.OrderSide, quantity int) (*Fill, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.lastPrice <= 0 {
		return nil, fmt.Errorf("no market price observed yet for %s", symbol)
	}
	if quantity <= 0 {
		return nil, fmt.Errorf("invalid quantity %d", quantity)
	}

	slip := float64(p.slippageTicks) * p.tickSize
	price := p.lastPrice
	if side == models.OrderSideBuy {
		price += slip
	} else {
		price -= slip
	}

	p.orderCounter++
	fill := Fill{
		OrderID:  fmt.Sprintf("PAPER_%d", p.orderCounter),
		Price:    price,
		Quantity: quantity,
		FilledAt: time.Now(),
	}
	p.fills = append(p.fills, fill)

	return &fill, nil
}

// LastPrice returns the last simulated market price.
func (p *PaperBroker) LastPrice(ctx context.Context, symbol string) (float64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.lastPrice <= 0 {
		return 0, fmt.Errorf("no market price observed yet for %s", symbol)
	}
	return p.lastPrice, nil
}

// Fills returns all simulated fills, for inspection in tests and replays.
func (p *PaperBroker) Fills() []Fill {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]Fill(nil), p.fills...)
}
