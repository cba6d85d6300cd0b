// Package engine runs the live trading loop: ticks in, candles and trade
// lifecycle transitions out.
package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"breakout-trader/internal/bar"
	"breakout-trader/internal/broker"
	"breakout-trader/internal/config"
	apperrors "breakout-trader/internal/errors"
	"breakout-trader/internal/logging"
	"breakout-trader/internal/models"
	"breakout-trader/internal/state"
	"breakout-trader/internal/store"
	"breakout-trader/internal/strategy"
	"breakout-trader/internal/trading"
	"breakout-trader/pkg/utils"
)

// tickBuffer is the channel depth between the ticker callback and the
// processing goroutine. The NIFTY spot stream peaks well below this.
const tickBuffer = 4096

// Engine wires the tick stream through aggregation, signal detection and
// the trade manager. All state transitions happen on one goroutine; the
// ticker callback only enqueues.
type Engine struct {
	logger   zerolog.Logger
	cfg      *config.Config
	broker   broker.Broker
	ticker   broker.Ticker
	agg      *bar.Aggregator
	detector *strategy.BreakoutDetector
	manager  *trading.Manager
	journal  store.Journal
	snapshot *state.Store

	ticks   chan models.Tick
	day     string
	flushed bool // session-close flush already done today
}

// New creates an engine. journal may be nil.
func New(cfg *config.Config, b broker.Broker, ticker broker.Ticker, detector *strategy.BreakoutDetector, manager *trading.Manager, journal store.Journal, snapshot *state.Store, logger zerolog.Logger) *Engine {
	return &Engine{
		logger:   logger.With().Str("component", "engine").Logger(),
		cfg:      cfg,
		broker:   b,
		ticker:   ticker,
		agg:      bar.NewAggregator(cfg.Trading.SpotSymbol, cfg.Strategy.CandleInterval, logger),
		detector: detector,
		manager:  manager,
		journal:  journal,
		snapshot: snapshot,
		ticks:    make(chan models.Tick, tickBuffer),
	}
}

// Run starts the engine and blocks until the context is cancelled or a
// fatal error occurs. Persistence failures are fatal: the engine will not
// keep trading against unconfirmed durable state.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.startup(ctx); err != nil {
		return err
	}

	e.ticker.OnTick(func(t models.Tick) {
		select {
		case e.ticks <- t:
		default:
			e.logger.Warn().Msg("Tick buffer full, dropping tick")
		}
	})
	e.ticker.OnError(func(err error) {
		e.logger.Error().Err(err).Msg("Ticker error")
	})
	e.ticker.OnConnect(func() {
		e.logger.Info().Msg("Tick stream connected")
	})
	e.ticker.OnDisconnect(func() {
		e.logger.Warn().Msg("Tick stream disconnected, reconnecting")
	})

	if err := e.ticker.Subscribe([]uint32{e.cfg.Trading.SpotToken}); err != nil {
		return apperrors.Wrap(err, "subscribing to tick stream")
	}
	if err := e.ticker.Connect(ctx); err != nil {
		return apperrors.Wrap(err, "connecting tick stream")
	}
	defer e.ticker.Disconnect()

	e.logger.Info().
		Str("symbol", e.cfg.Trading.SpotSymbol).
		Dur("interval", e.cfg.Strategy.CandleInterval).
		Msg("Engine running")

	for {
		select {
		case <-ctx.Done():
			e.logger.Info().Msg("Engine stopping")
			return ctx.Err()
		case tick := <-e.ticks:
			if err := e.process(ctx, tick); err != nil {
				if apperrors.Is(err, apperrors.ErrSnapshotWrite) {
					return err
				}
				e.logger.Error().Err(err).Msg("Tick processing error")
			}
		}
	}
}

// startup performs recovery and day setup before the stream opens:
// snapshot restore, contract discovery, equity seeding and the recovered
// position's gap check.
func (e *Engine) startup(ctx context.Context) error {
	now := time.Now().In(utils.IndiaLocation)
	e.day = utils.DayKey(now)

	snap, err := e.snapshot.Load()
	if err != nil {
		return apperrors.Wrap(err, "loading snapshot")
	}

	var heldContract string
	if snap != nil {
		e.manager.Restore(snap)
		heldContract = snap.ActiveContract
		if snap.Ledger.Day == e.day {
			e.detector.Restore(snap.Reference, snap.Ledger.TradesTaken)
		} else {
			if err := e.manager.RolloverDay(e.day); err != nil {
				return err
			}
		}
	} else {
		if err := e.manager.RolloverDay(e.day); err != nil {
			return err
		}
	}

	contract, err := e.broker.ActiveFuturesContract(ctx, e.cfg.Trading.Underlying)
	if err != nil {
		return apperrors.Wrap(err, "discovering active contract")
	}
	if err := e.manager.SetContract(contract); err != nil {
		return err
	}
	e.logger.Info().
		Str("contract", contract.Symbol).
		Time("expiry", contract.Expiry).
		Int("lot_size", contract.LotSize).
		Msg("Active futures contract")

	capital, err := e.broker.AvailableCapital(ctx)
	if err != nil {
		return apperrors.Wrap(err, "fetching available capital")
	}
	if err := e.manager.SeedEquity(capital); err != nil {
		return err
	}

	if e.manager.Position() != nil {
		if err := e.manager.ValidateRecovered(ctx, heldContract); err != nil {
			return apperrors.Wrap(err, "validating recovered position")
		}
	}

	return nil
}

// process handles one tick on the engine goroutine.
func (e *Engine) process(ctx context.Context, tick models.Tick) error {
	ts := tick.Timestamp.In(utils.IndiaLocation)

	if day := utils.DayKey(ts); day != e.day {
		if err := e.rollover(day); err != nil {
			return err
		}
	}

	if !utils.InSession(ts) {
		// One flush after the close finalizes the last candle of the day.
		if ts.After(utils.SessionClose(ts)) && !e.flushed {
			e.flushed = true
			if c, ok := e.agg.Flush(); ok {
				return e.onCandle(ctx, c)
			}
		}
		return nil
	}

	// Aggregation first: a boundary tick finalizes the previous candle, and
	// any trailing-stop ratchet from that candle must be in place before the
	// same tick is checked against the stop.
	if c, ok := e.agg.Apply(tick); ok {
		if err := e.onCandle(ctx, c); err != nil {
			return err
		}
	}

	if err := e.manager.OnTick(ctx, tick); err != nil {
		return err
	}

	return e.manager.CheckExpiry(ctx, ts)
}

// onCandle routes a finalized candle to the journal, position management
// and the breakout detector.
func (e *Engine) onCandle(ctx context.Context, c *models.Candle) error {
	logging.LogCandle(e.logger, e.cfg.Trading.SpotSymbol, c.Timestamp, c.Open, c.High, c.Low, c.Close)

	if e.journal != nil {
		if err := e.journal.RecordCandle(ctx, e.cfg.Trading.SpotSymbol, c); err != nil {
			e.logger.Error().Err(err).Msg("Failed to journal candle")
		}
	}

	if err := e.manager.OnCandle(ctx, c); err != nil {
		return err
	}

	hadRef := e.detector.Reference() != nil
	sig := e.detector.OnCandle(c)
	if !hadRef && e.detector.Reference() != nil {
		if err := e.manager.SetReference(e.detector.Reference()); err != nil {
			return err
		}
	}
	if sig == nil {
		return nil
	}

	err := e.manager.Enter(ctx, sig, c.Timestamp)
	switch {
	case err == nil:
		if e.manager.Position() != nil {
			e.detector.MarkTradeTaken()
		}
		return nil
	case apperrors.Is(err, apperrors.ErrPositionOpen),
		apperrors.Is(err, apperrors.ErrTradingHalted),
		apperrors.Is(err, apperrors.ErrExpiryWindow):
		e.logger.Info().Err(err).Msg("Signal not actionable")
		return nil
	default:
		return err
	}
}

func (e *Engine) rollover(day string) error {
	if c, ok := e.agg.Flush(); ok {
		// Carry-over candle from yesterday; journal only.
		if e.journal != nil {
			if err := e.journal.RecordCandle(context.Background(), e.cfg.Trading.SpotSymbol, c); err != nil {
				e.logger.Error().Err(err).Msg("Failed to journal candle")
			}
		}
	}
	e.day = day
	e.flushed = false
	e.detector.DayReset()
	return e.manager.RolloverDay(day)
}
