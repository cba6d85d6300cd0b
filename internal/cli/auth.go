package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// addAuthCommands adds authentication commands.
func addAuthCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newLoginCmd(app))
	rootCmd.AddCommand(newLogoutCmd(app))
}

func newLoginCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Login to Zerodha Kite Connect",
		Long: `Login to Zerodha Kite Connect.

If password and TOTP secret are configured in credentials.toml, the full
login flow runs automatically with no browser required. Otherwise the
login URL is printed and the request token from the redirect must be
passed back with --token.`,
		Example: `  breakout login
  breakout login --token=<request_token>`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()

			if app.Zerodha == nil {
				output.Error("Broker not configured. Please check your credentials.toml")
				return fmt.Errorf("broker not configured")
			}

			if app.Zerodha.IsAuthenticated() {
				output.Success("Already logged in")
				return nil
			}

			if token, _ := cmd.Flags().GetString("token"); token != "" {
				if err := app.Zerodha.CompleteLogin(ctx, token); err != nil {
					return err
				}
				output.Success("Login complete")
				return nil
			}

			creds := app.Config.Credentials.Zerodha
			if creds.Password != "" && creds.TOTPSecret != "" {
				output.Info("Running automatic login...")
				if err := app.Zerodha.AutoLogin(ctx, creds.Password, creds.TOTPSecret); err != nil {
					return err
				}
				output.Success("Login complete")
				return nil
			}

			return app.Zerodha.Login(ctx)
		},
	}

	cmd.Flags().String("token", "", "request token from the login redirect")
	return cmd
}

func newLogoutCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Logout and clear the saved session",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Zerodha == nil {
				output.Warning("Broker not configured, nothing to do")
				return nil
			}
			if err := app.Zerodha.Logout(cmd.Context()); err != nil {
				return err
			}
			output.Success("Logged out")
			return nil
		},
	}
}
