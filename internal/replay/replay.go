// Package replay runs the breakout strategy over historical candles using
// the same detector and trade manager as the live engine.
package replay

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"breakout-trader/internal/broker"
	"breakout-trader/internal/config"
	"breakout-trader/internal/models"
	"breakout-trader/internal/risk"
	"breakout-trader/internal/state"
	"breakout-trader/internal/store"
	"breakout-trader/internal/strategy"
	"breakout-trader/internal/trading"
	"breakout-trader/pkg/utils"
)

// Result summarizes a replay run.
type Result struct {
	Candles     int
	Days        int
	Trades      []models.TradeRecord
	Wins        int
	Losses      int
	TotalR      float64
	FinalEquity models.EquityState
}

// Runner drives historical candles through the trading stack. Orders fill
// on a paper broker at the price the triggering check implies: entries at
// the breakout close, stop exits at the stop level.
type Runner struct {
	logger   zerolog.Logger
	cfg      *config.Config
	capital  float64
	detector *strategy.BreakoutDetector
	manager  *trading.Manager
	paper    *broker.PaperBroker
	journal  *store.MemoryJournal
	tmpDir   string
}

// NewRunner builds a replay stack from the given config and starting capital.
func NewRunner(cfg *config.Config, capital float64, logger zerolog.Logger) (*Runner, error) {
	tmpDir, err := os.MkdirTemp("", "breakout-replay-*")
	if err != nil {
		return nil, fmt.Errorf("creating replay workspace: %w", err)
	}

	paper := broker.NewPaperBroker(broker.PaperBrokerConfig{
		InitialCapital: capital,
		TickSize:       cfg.Risk.TickSize,
		Contract: &models.Instrument{
			Symbol:    cfg.Trading.Underlying + "FUT",
			Name:      cfg.Trading.Underlying,
			Exchange:  models.NFO,
			LotSize:   cfg.Risk.LotSize,
			TickSize:  cfg.Risk.TickSize,
			Expiry:    time.Now().AddDate(1, 0, 0),
			InstrType: "FUT",
		},
	})

	sizer := risk.NewSizer(cfg.Risk.RiskPerTradePercent, cfg.Risk.MaxAllocationPercent, cfg.Risk.LotSize, logger)
	snapshots := state.NewStore(filepath.Join(tmpDir, "snapshot.json"))
	journal := store.NewMemoryJournal()

	manager := trading.NewManager(paper, sizer, snapshots, journal, nil, trading.ManagerConfig{
		TargetR:           cfg.Strategy.TargetR,
		TickSize:          cfg.Risk.TickSize,
		MaxDailyDrawdownR: cfg.Risk.MaxDailyDrawdownR,
		ExpiryLeadDays:    cfg.Trading.ExpiryLeadDays,
		Intrabar:          false,
	}, logger)
	manager.SetMarkPrice(func(_ string, price float64) {
		paper.SetLastPrice(price)
	})

	return &Runner{
		logger:   logger.With().Str("component", "replay").Logger(),
		cfg:      cfg,
		capital:  capital,
		detector: strategy.NewBreakoutDetector(cfg.Strategy.AllowReentry, logger),
		manager:  manager,
		paper:    paper,
		journal:  journal,
		tmpDir:   tmpDir,
	}, nil
}

// RunFile replays a candle CSV file.
func (r *Runner) RunFile(ctx context.Context, path string) (*Result, error) {
	candles, err := store.LoadCandlesCSV(path, utils.IndiaLocation)
	if err != nil {
		return nil, err
	}
	return r.Run(ctx, candles)
}

// Run replays a candle sequence in order. Day boundaries reset the strategy
// and the daily ledger exactly as the live engine does at rollover.
func (r *Runner) Run(ctx context.Context, candles []models.Candle) (*Result, error) {
	defer os.RemoveAll(r.tmpDir)

	if err := r.manager.SeedEquity(r.capital); err != nil {
		return nil, err
	}
	contract, err := r.paper.ActiveFuturesContract(ctx, r.cfg.Trading.Underlying)
	if err != nil {
		return nil, err
	}
	if err := r.manager.SetContract(contract); err != nil {
		return nil, err
	}

	res := &Result{}
	day := ""

	for i := range candles {
		c := &candles[i]

		if d := utils.DayKey(c.Timestamp); d != day {
			if day != "" {
				r.detector.DayReset()
			}
			if err := r.manager.RolloverDay(d); err != nil {
				return nil, err
			}
			day = d
			res.Days++
		}

		r.paper.SetLastPrice(c.Close)
		res.Candles++

		if err := r.manager.OnCandle(ctx, c); err != nil {
			return nil, err
		}

		sig := r.detector.OnCandle(c)
		if sig == nil {
			continue
		}
		if err := r.manager.CanEnter(c.Timestamp); err != nil {
			continue
		}
		if err := r.manager.Enter(ctx, sig, c.Timestamp); err != nil {
			return nil, err
		}
		if r.manager.Position() != nil {
			r.detector.MarkTradeTaken()
		}
	}

	// Close any position left open at the end of the data at the last close.
	if pos := r.manager.Position(); pos != nil {
		last := candles[len(candles)-1].Close
		if err := r.manager.ForceExit(ctx, models.ExitRecoveryCheck, last); err != nil {
			return nil, err
		}
	}

	res.Trades = r.journal.Trades()
	for _, t := range res.Trades {
		res.TotalR += t.RealizedR
		if t.PnL > 0 {
			res.Wins++
		} else {
			res.Losses++
		}
	}
	res.FinalEquity = r.manager.Equity()

	r.logger.Info().
		Int("candles", res.Candles).
		Int("days", res.Days).
		Int("trades", len(res.Trades)).
		Float64("total_r", res.TotalR).
		Float64("final_capital", res.FinalEquity.Capital).
		Msg("Replay complete")
	return res, nil
}

// ExportTrades writes the replay's trades to a CSV file.
func (r *Runner) ExportTrades(path string, res *Result) error {
	return store.ExportTradesCSV(path, res.Trades)
}
