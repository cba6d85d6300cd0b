// Package cli provides the command-line interface for the trading engine.
package cli

import (
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"breakout-trader/internal/broker"
	"breakout-trader/internal/config"
	"breakout-trader/internal/logging"
	"breakout-trader/internal/store"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2025-06-01"
)

// App holds the application dependencies.
type App struct {
	Config    *config.Config
	ConfigDir string
	Logger    zerolog.Logger
	Zerodha   *broker.ZerodhaBroker
	Journal   store.Journal
}

// SnapshotPath returns the engine state file location.
func (a *App) SnapshotPath() string {
	return filepath.Join(a.configDir(), "snapshot.json")
}

// TradeLogPath returns the CSV trade log location.
func (a *App) TradeLogPath() string {
	return filepath.Join(a.configDir(), "trades.csv")
}

// JournalPath returns the SQLite journal location.
func (a *App) JournalPath() string {
	return filepath.Join(a.configDir(), "trader.db")
}

func (a *App) configDir() string {
	if a.ConfigDir != "" {
		return a.ConfigDir
	}
	return config.DefaultConfigDir()
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(cfg *config.Config, configDir string, logger zerolog.Logger) *cobra.Command {
	app := &App{
		Config:    cfg,
		ConfigDir: configDir,
		Logger:    logger,
	}

	if cfg.Credentials.Zerodha.APIKey != "" {
		app.Zerodha = broker.NewZerodhaBroker(broker.ZerodhaConfig{
			APIKey:    cfg.Credentials.Zerodha.APIKey,
			APISecret: cfg.Credentials.Zerodha.APISecret,
			UserID:    cfg.Credentials.Zerodha.UserID,
			Exchange:  exchangeFromConfig(cfg),
			Product:   productFromConfig(cfg),
		})
		logger.Debug().Msg("Zerodha broker initialized")
	}

	journal, err := store.NewSQLiteJournal(app.JournalPath())
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to initialize journal, trades will not be recorded to the database")
	} else {
		app.Journal = journal
	}

	rootCmd := &cobra.Command{
		Use:   "breakout",
		Short: "Opening-range breakout trader for NIFTY futures",
		Long: `An intraday breakout trading engine for NIFTY futures.

It watches the first candle of the session, enters long when a later candle
closes above that candle's high, and manages the trade to a 5R target with a
trailing stop. Orders are routed through Zerodha Kite Connect; a paper mode
and a historical replay are built in.

Use 'breakout help <command>' for more information about a command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/breakout-trader)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	addCoreCommands(rootCmd, app)
	addAuthCommands(rootCmd, app)
	addRunCommands(rootCmd, app)
	addStatusCommands(rootCmd, app)

	return rootCmd
}

func addCoreCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			} else {
				output.Printf("Breakout Trader v%s\n", Version)
				output.Dim("Build date: %s", BuildDate)
			}
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and validate application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(app.Config)
			}
			return showConfig(output, app.Config)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory path",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{"path": app.configDir()})
			} else {
				output.Println(app.configDir())
			}
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration files",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				output.JSON(map[string]bool{"valid": true})
			} else {
				output.Success("Configuration is valid")
			}
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) error {
	output.Bold("Trading")
	output.Printf("  mode:             %s\n", cfg.Trading.Mode)
	output.Printf("  exchange:         %s\n", cfg.Trading.Exchange)
	output.Printf("  product:          %s\n", cfg.Trading.Product)
	output.Printf("  underlying:       %s\n", cfg.Trading.Underlying)
	output.Printf("  spot symbol:      %s\n", cfg.Trading.SpotSymbol)
	output.Printf("  expiry lead days: %d\n", cfg.Trading.ExpiryLeadDays)
	output.Bold("Strategy")
	output.Printf("  candle interval:  %s\n", cfg.Strategy.CandleInterval)
	output.Printf("  target:           %.1fR\n", cfg.Strategy.TargetR)
	output.Printf("  allow re-entry:   %v\n", cfg.Strategy.AllowReentry)
	output.Bold("Risk")
	output.Printf("  risk per trade:   %.1f%%\n", cfg.Risk.RiskPerTradePercent)
	output.Printf("  max allocation:   %.1f%%\n", cfg.Risk.MaxAllocationPercent)
	output.Printf("  daily loss halt:  %.1fR\n", cfg.Risk.MaxDailyDrawdownR)
	output.Printf("  lot size:         %d\n", cfg.Risk.LotSize)
	output.Printf("  tick size:        %.2f\n", cfg.Risk.TickSize)
	return nil
}
