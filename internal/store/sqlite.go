// Package store provides data persistence for the trade journal.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"breakout-trader/internal/models"
)

// Journal records completed trades and finalized candles.
type Journal interface {
	RecordTrade(ctx context.Context, rec *models.TradeRecord) error
	RecordCandle(ctx context.Context, symbol string, c *models.Candle) error
	TradesBetween(ctx context.Context, from, to time.Time) ([]models.TradeRecord, error)
	Close() error
}

// SQLiteJournal implements Journal using SQLite.
type SQLiteJournal struct {
	db *sql.DB
}

// NewSQLiteJournal creates a new SQLite-backed journal.
func NewSQLiteJournal(dbPath string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	j := &SQLiteJournal{db: db}
	if err := j.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return j, nil
}

func (j *SQLiteJournal) initSchema() error {
	schema := `
	-- Completed trades
	CREATE TABLE IF NOT EXISTS trades (
		id TEXT PRIMARY KEY,
		symbol TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		entry_price REAL NOT NULL,
		exit_price REAL NOT NULL,
		entry_time DATETIME NOT NULL,
		exit_time DATETIME NOT NULL,
		pnl REAL NOT NULL,
		realized_r REAL NOT NULL,
		reason TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Finalized candles for the signal instrument
	CREATE TABLE IF NOT EXISTS candles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		open REAL NOT NULL,
		high REAL NOT NULL,
		low REAL NOT NULL,
		close REAL NOT NULL,
		volume INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(symbol, timestamp)
	);

	CREATE INDEX IF NOT EXISTS idx_trades_exit_time ON trades(exit_time);
	CREATE INDEX IF NOT EXISTS idx_candles_symbol_ts ON candles(symbol, timestamp);
	`

	_, err := j.db.Exec(schema)
	return err
}

// RecordTrade inserts a completed trade.
func (j *SQLiteJournal) RecordTrade(ctx context.Context, rec *models.TradeRecord) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO trades (id, symbol, quantity, entry_price, exit_price, entry_time, exit_time, pnl, realized_r, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Symbol, rec.Quantity, rec.EntryPrice, rec.ExitPrice,
		rec.EntryTime, rec.ExitTime, rec.PnL, rec.RealizedR, string(rec.Reason))
	if err != nil {
		return fmt.Errorf("recording trade: %w", err)
	}
	return nil
}

// RecordCandle inserts a finalized candle, ignoring duplicates.
func (j *SQLiteJournal) RecordCandle(ctx context.Context, symbol string, c *models.Candle) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO candles (symbol, timestamp, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		symbol, c.Timestamp, c.Open, c.High, c.Low, c.Close, c.Volume)
	if err != nil {
		return fmt.Errorf("recording candle: %w", err)
	}
	return nil
}

// TradesBetween returns trades whose exit time falls in [from, to).
func (j *SQLiteJournal) TradesBetween(ctx context.Context, from, to time.Time) ([]models.TradeRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, symbol, quantity, entry_price, exit_price, entry_time, exit_time, pnl, realized_r, reason
		FROM trades
		WHERE exit_time >= ? AND exit_time < ?
		ORDER BY exit_time`, from, to)
	if err != nil {
		return nil, fmt.Errorf("querying trades: %w", err)
	}
	defer rows.Close()

	var trades []models.TradeRecord
	for rows.Next() {
		var rec models.TradeRecord
		var reason string
		if err := rows.Scan(&rec.ID, &rec.Symbol, &rec.Quantity, &rec.EntryPrice, &rec.ExitPrice,
			&rec.EntryTime, &rec.ExitTime, &rec.PnL, &rec.RealizedR, &reason); err != nil {
			return nil, fmt.Errorf("scanning trade: %w", err)
		}
		rec.Reason = models.ExitReason(reason)
		trades = append(trades, rec)
	}

	return trades, rows.Err()
}

// Close closes the underlying database.
func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}
