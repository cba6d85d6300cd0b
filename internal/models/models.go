// Package models provides domain models for the breakout trading engine.
package models

import (
	"time"
)

// Exchange represents a stock exchange.
type Exchange string

const (
	NSE Exchange = "NSE"
	NFO Exchange = "NFO" // F&O
)

// OrderSide represents the side of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// OrderType represents the type of an order.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// ProductType represents the product type of an order.
type ProductType string

const (
	ProductMIS  ProductType = "MIS"  // Intraday
	ProductNRML ProductType = "NRML" // F&O Normal
)

// Tick represents a single real-time price update for an instrument.
type Tick struct {
	Symbol    string
	Price     float64
	Volume    int64
	Timestamp time.Time
}

// Candle represents OHLCV data for one fixed interval.
// A candle is immutable once finalized by the aggregator.
type Candle struct {
	Timestamp time.Time `csv:"-" json:"timestamp"`
	Open      float64   `csv:"open" json:"open"`
	High      float64   `csv:"high" json:"high"`
	Low       float64   `csv:"low" json:"low"`
	Close     float64   `csv:"close" json:"close"`
	Volume    int64     `csv:"volume" json:"volume"`
}

// Instrument represents a tradeable instrument.
type Instrument struct {
	Token     uint32
	Symbol    string
	Name      string
	Exchange  Exchange
	Segment   string
	LotSize   int
	TickSize  float64
	Expiry    time.Time
	InstrType string
}

// Order represents an order request to the broker.
type Order struct {
	ID       string
	Symbol   string
	Exchange Exchange
	Side     OrderSide
	Type     OrderType
	Product  ProductType
	Quantity int
	Price    float64
	Validity string
	Tag      string
	PlacedAt time.Time
}
