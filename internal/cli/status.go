package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"breakout-trader/internal/state"
)

// addStatusCommands adds status and journal inspection commands.
func addStatusCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newStatusCmd(app))
	rootCmd.AddCommand(newTradesCmd(app))
}

func newStatusCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show engine state and session status",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			snap, err := state.NewStore(app.SnapshotPath()).Load()
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"authenticated": app.Zerodha != nil && app.Zerodha.IsAuthenticated(),
					"snapshot":      snap,
				})
			}

			if app.Zerodha != nil && app.Zerodha.IsAuthenticated() {
				output.Success("Session: authenticated")
			} else {
				output.Warning("Session: not authenticated")
			}

			if snap == nil {
				output.Dim("No engine state recorded yet")
				return nil
			}

			output.Bold("Equity")
			output.Printf("  capital:       %.2f\n", snap.Equity.Capital)
			output.Printf("  trailing high: %.2f\n", snap.Equity.TrailingHigh)

			output.Bold("Day %s", snap.Ledger.Day)
			output.Printf("  realized:      %+.2fR over %d trade(s)\n", snap.Ledger.CumulativeR, snap.Ledger.TradesTaken)
			if snap.Ledger.Halted {
				output.Warning("  trading halted for the day")
			}
			if snap.Reference != nil {
				output.Printf("  reference:     high %.2f / low %.2f\n", snap.Reference.High, snap.Reference.Low)
			}

			if snap.Position == nil {
				output.Dim("Position: flat")
			} else {
				p := snap.Position
				output.Bold("Position %s (%s)", p.Symbol, p.State)
				output.Printf("  entry:  %.2f x %d\n", p.EntryPrice, p.Quantity)
				output.Printf("  stop:   %.2f\n", p.CurrentStop)
				output.Printf("  target: %.2f (hit: %v)\n", p.TargetPrice, p.TargetHit)
			}

			output.Dim("Updated %s", snap.UpdatedAt.Format(time.RFC3339))
			return nil
		},
	}
}

func newTradesCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trades",
		Short: "List recent trades from the journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Journal == nil {
				output.Warning("Journal unavailable")
				return nil
			}

			days, _ := cmd.Flags().GetInt("days")
			to := time.Now().Add(time.Hour)
			from := to.AddDate(0, 0, -days)

			trades, err := app.Journal.TradesBetween(context.Background(), from, to)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(trades)
			}
			if len(trades) == 0 {
				output.Dim("No trades in the last %d day(s)", days)
				return nil
			}

			var totalR, totalPnL float64
			for _, t := range trades {
				line := output.Green
				if t.PnL < 0 {
					line = output.Red
				}
				output.Println(line(
					t.ExitTime.Format("2006-01-02 15:04") + "  " + t.Symbol +
						"  " + string(t.Reason)))
				output.Printf("    qty %d  %.2f -> %.2f  pnl %.2f (%+.2fR)\n",
					t.Quantity, t.EntryPrice, t.ExitPrice, t.PnL, t.RealizedR)
				totalR += t.RealizedR
				totalPnL += t.PnL
			}
			output.Bold("Total: %.2f (%+.2fR) over %d trade(s)", totalPnL, totalR, len(trades))
			return nil
		},
	}
	cmd.Flags().Int("days", 7, "how many days back to list")
	return cmd
}
