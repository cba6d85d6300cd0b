// Package broker provides broker integration interfaces and implementations.
package broker

import (
	"context"
	"time"

	"breakout-trader/internal/models"
)

// Broker defines the operations the trading engine needs from a broker.
// The engine treats order placement as synchronous: PlaceMarketOrder returns
// only once the order has filled or definitively failed.
type Broker interface {
	// Authentication
	Login(ctx context.Context) error
	IsAuthenticated() bool

	// Account
	AvailableCapital(ctx context.Context) (float64, error)

	// Contract discovery: the nearest non-expired futures contract for the
	// configured underlying, with lot size, tick size and expiry.
	ActiveFuturesContract(ctx context.Context, underlying string) (*models.Instrument, error)

	// Orders
	PlaceMarketOrder(ctx context.Context, symbol string, side models.OrderSide, quantity int) (*Fill, error)

	// Market data
	LastPrice(ctx context.Context, symbol string) (float64, error)
}

// Ticker defines the interface for real-time market data streaming.
type Ticker interface {
	Connect(ctx context.Context) error
	Disconnect() error
	Subscribe(tokens []uint32) error
	OnTick(handler func(models.Tick))
	OnError(handler func(error))
	OnConnect(handler func())
	OnDisconnect(handler func())
}

// Fill represents a confirmed order execution.
type Fill struct {
	OrderID  string
	Price    float64
	Quantity int
	FilledAt time.Time
}
