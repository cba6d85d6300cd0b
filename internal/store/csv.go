package store

import (
	"fmt"
	"os"
	"time"

	"github.com/gocarina/gocsv"

	apperrors "breakout-trader/internal/errors"
	"breakout-trader/internal/models"
)

// tradeRow is the flat CSV representation of a completed trade.
type tradeRow struct {
	ID         string  `csv:"id"`
	Symbol     string  `csv:"symbol"`
	Quantity   int     `csv:"quantity"`
	EntryPrice float64 `csv:"entry_price"`
	ExitPrice  float64 `csv:"exit_price"`
	EntryTime  string  `csv:"entry_time"`
	ExitTime   string  `csv:"exit_time"`
	PnL        float64 `csv:"pnl"`
	RealizedR  float64 `csv:"realized_r"`
	Reason     string  `csv:"reason"`
}

const tradeTimeLayout = "2006-01-02 15:04:05"

// ExportTradesCSV writes trade records to a CSV file, overwriting any
// existing file at the path.
func ExportTradesCSV(path string, trades []models.TradeRecord) error {
	rows := make([]tradeRow, 0, len(trades))
	for _, t := range trades {
		rows = append(rows, tradeRow{
			ID:         t.ID,
			Symbol:     t.Symbol,
			Quantity:   t.Quantity,
			EntryPrice: t.EntryPrice,
			ExitPrice:  t.ExitPrice,
			EntryTime:  t.EntryTime.Format(tradeTimeLayout),
			ExitTime:   t.ExitTime.Format(tradeTimeLayout),
			PnL:        t.PnL,
			RealizedR:  t.RealizedR,
			Reason:     string(t.Reason),
		})
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating trade log: %w", err)
	}
	defer f.Close()

	if err := gocsv.MarshalFile(&rows, f); err != nil {
		return fmt.Errorf("writing trade log: %w", err)
	}
	return nil
}

// AppendTradeCSV appends a single trade to the CSV log, writing the header
// when the file is new. This mirrors how the live engine journals each exit
// as it happens.
func AppendTradeCSV(path string, t *models.TradeRecord) error {
	_, statErr := os.Stat(path)
	isNew := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening trade log: %w", err)
	}
	defer f.Close()

	rows := []tradeRow{{
		ID:         t.ID,
		Symbol:     t.Symbol,
		Quantity:   t.Quantity,
		EntryPrice: t.EntryPrice,
		ExitPrice:  t.ExitPrice,
		EntryTime:  t.EntryTime.Format(tradeTimeLayout),
		ExitTime:   t.ExitTime.Format(tradeTimeLayout),
		PnL:        t.PnL,
		RealizedR:  t.RealizedR,
		Reason:     string(t.Reason),
	}}

	if isNew {
		if err := gocsv.MarshalFile(&rows, f); err != nil {
			return fmt.Errorf("writing trade log: %w", err)
		}
		return nil
	}
	if err := gocsv.MarshalWithoutHeaders(&rows, f); err != nil {
		return fmt.Errorf("appending trade log: %w", err)
	}
	return nil
}

// LoadCandlesCSV reads a candle history file for replay. The timestamp
// column accepts either RFC3339 or "2006-01-02 15:04:05" in the session
// timezone.
func LoadCandlesCSV(path string, loc *time.Location) ([]models.Candle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening candle file: %w", err)
	}
	defer f.Close()

	type candleRow struct {
		Timestamp string  `csv:"timestamp"`
		Open      float64 `csv:"open"`
		High      float64 `csv:"high"`
		Low       float64 `csv:"low"`
		Close     float64 `csv:"close"`
		Volume    int64   `csv:"volume"`
	}

	var rows []candleRow
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		return nil, fmt.Errorf("parsing candle file: %w", err)
	}

	candles := make([]models.Candle, 0, len(rows))
	for i, r := range rows {
		ts, err := time.Parse(time.RFC3339, r.Timestamp)
		if err != nil {
			ts, err = time.ParseInLocation(tradeTimeLayout, r.Timestamp, loc)
			if err != nil {
				return nil, apperrors.Wrapf(err, "row %d: bad timestamp %q", i+1, r.Timestamp)
			}
		}
		candles = append(candles, models.Candle{
			Timestamp: ts.In(loc),
			Open:      r.Open,
			High:      r.High,
			Low:       r.Low,
			Close:     r.Close,
			Volume:    r.Volume,
		})
	}
	return candles, nil
}
