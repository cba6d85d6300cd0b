package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"breakout-trader/internal/broker"
	"breakout-trader/internal/config"
	"breakout-trader/internal/engine"
	"breakout-trader/internal/models"
	"breakout-trader/internal/notify"
	"breakout-trader/internal/replay"
	"breakout-trader/internal/risk"
	"breakout-trader/internal/state"
	"breakout-trader/internal/strategy"
	"breakout-trader/internal/trading"
)

// addRunCommands adds the engine and replay commands.
func addRunCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newRunCmd(app))
	rootCmd.AddCommand(newReplayCmd(app))
}

func newRunCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the live trading engine",
		Long: `Run the live trading engine.

In live mode orders are routed to Zerodha. In paper mode the real tick
stream drives the strategy but orders fill on a simulated broker.
Stops cleanly on SIGINT/SIGTERM; an open position is left to be recovered
on the next start.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			if app.Zerodha == nil {
				output.Error("Broker not configured. Please check your credentials.toml")
				return fmt.Errorf("broker not configured")
			}
			if !app.Zerodha.IsAuthenticated() {
				output.Error("Not logged in. Run 'breakout login' first.")
				return fmt.Errorf("not authenticated")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			eng, err := buildEngine(app)
			if err != nil {
				return err
			}

			output.Info("Engine starting in %s mode", app.Config.Trading.Mode)
			if err := eng.Run(ctx); err != nil && ctx.Err() == nil {
				return err
			}
			output.Info("Engine stopped")
			return nil
		},
	}
}

// buildEngine wires the full live stack. The tick stream always comes from
// Zerodha; in paper mode only order routing is simulated.
func buildEngine(app *App) (*engine.Engine, error) {
	cfg := app.Config

	ticker, err := app.Zerodha.CreateTicker()
	if err != nil {
		return nil, fmt.Errorf("creating ticker: %w", err)
	}

	var b broker.Broker = app.Zerodha
	var paper *broker.PaperBroker
	if cfg.IsPaperMode() {
		paper = broker.NewPaperBroker(broker.PaperBrokerConfig{
			TickSize: cfg.Risk.TickSize,
			Contract: &models.Instrument{
				Symbol:    cfg.Trading.Underlying + "FUT",
				Name:      cfg.Trading.Underlying,
				Exchange:  models.NFO,
				LotSize:   cfg.Risk.LotSize,
				TickSize:  cfg.Risk.TickSize,
				Expiry:    time.Now().AddDate(0, 2, 0),
				InstrType: "FUT",
			},
		})
		b = paper
	}

	sizer := risk.NewSizer(cfg.Risk.RiskPerTradePercent, cfg.Risk.MaxAllocationPercent, cfg.Risk.LotSize, app.Logger)
	snapshots := state.NewStore(app.SnapshotPath())
	notifier := notify.NewMultiNotifier(&cfg.Notifications)

	manager := trading.NewManager(b, sizer, snapshots, app.Journal, notifier, trading.ManagerConfig{
		TargetR:           cfg.Strategy.TargetR,
		TickSize:          cfg.Risk.TickSize,
		MaxDailyDrawdownR: cfg.Risk.MaxDailyDrawdownR,
		ExpiryLeadDays:    cfg.Trading.ExpiryLeadDays,
		Intrabar:          true,
		TradeLogPath:      app.TradeLogPath(),
	}, app.Logger)

	if paper != nil {
		manager.SetMarkPrice(func(_ string, price float64) {
			paper.SetLastPrice(price)
		})
	}

	detector := strategy.NewBreakoutDetector(cfg.Strategy.AllowReentry, app.Logger)
	detector.SetNotifier(notifier)

	return engine.New(cfg, b, ticker, detector, manager, app.Journal, snapshots, app.Logger), nil
}

func newReplayCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay <candles.csv>",
		Short: "Replay the strategy over historical candles",
		Long: `Replay the strategy over a CSV file of historical candles.

The file needs timestamp,open,high,low,close,volume columns. The same
detector and trade manager as the live engine run over the data; stop and
target checks use candle ranges instead of ticks.`,
		Example: `  breakout replay nifty-15m.csv
  breakout replay nifty-15m.csv --capital 500000 --out trades.csv`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			capital, _ := cmd.Flags().GetFloat64("capital")
			outPath, _ := cmd.Flags().GetString("out")

			runner, err := replay.NewRunner(app.Config, capital, app.Logger)
			if err != nil {
				return err
			}

			res, err := runner.RunFile(context.Background(), args[0])
			if err != nil {
				return err
			}

			if outPath != "" {
				if err := runner.ExportTrades(outPath, res); err != nil {
					return err
				}
			}

			if output.IsJSON() {
				return output.JSON(res)
			}
			printReplayResult(output, capital, res)
			return nil
		},
	}

	cmd.Flags().Float64("capital", 100000, "starting capital")
	cmd.Flags().String("out", "", "write trades to this CSV file")
	return cmd
}

func printReplayResult(output *Output, capital float64, res *replay.Result) {
	output.Bold("Replay summary")
	output.Printf("  candles:       %d\n", res.Candles)
	output.Printf("  days:          %d\n", res.Days)
	output.Printf("  trades:        %d (%d wins, %d losses)\n", len(res.Trades), res.Wins, res.Losses)
	rStr := fmt.Sprintf("%+.2fR", res.TotalR)
	if res.TotalR >= 0 {
		rStr = output.Green(rStr)
	} else {
		rStr = output.Red(rStr)
	}
	output.Printf("  total:         %s\n", rStr)
	output.Printf("  capital:       %.2f -> %.2f\n", capital, res.FinalEquity.Capital)

	if len(res.Trades) == 0 {
		return
	}
	output.Bold("Trades")
	for _, t := range res.Trades {
		line := fmt.Sprintf("  %s  %s  qty %d  %.2f -> %.2f  %+.2fR (%s)",
			t.ExitTime.Format("2006-01-02 15:04"), t.Symbol, t.Quantity,
			t.EntryPrice, t.ExitPrice, t.RealizedR, t.Reason)
		if t.PnL >= 0 {
			output.Println(output.Green(line))
		} else {
			output.Println(output.Red(line))
		}
	}
}

func exchangeFromConfig(cfg *config.Config) models.Exchange {
	if cfg.Trading.Exchange == "" {
		return models.NFO
	}
	return models.Exchange(cfg.Trading.Exchange)
}

func productFromConfig(cfg *config.Config) models.ProductType {
	if cfg.Trading.Product == "" {
		return models.ProductNRML
	}
	return models.ProductType(cfg.Trading.Product)
}
