package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# Breakout Trader Configuration

[trading]
# Trading mode: "live" or "paper"
mode = "paper"
# Exchange for the execution instrument
exchange = "NFO"
# Product type for futures positions
product = "NRML"
# Futures underlying
underlying = "NIFTY"
# Signal instrument (spot index) and its instrument token
spot_symbol = "NSE:NIFTY 50"
spot_token = 256265
# Days before contract expiry to go flat and stop entering
expiry_lead_days = 2

[strategy]
# Candle width for the breakout rule
candle_interval = "15m"
# Profit target as a multiple of initial risk
target_r = 5.0
# Allow a second entry on the same day after a stop-out
allow_reentry = false

[risk]
# Percent of trailing equity high risked per trade
risk_per_trade_percent = 2.0
# Percent of current capital usable for a single position
max_allocation_percent = 50.0
# Stop trading for the day once cumulative loss reaches this many R
max_daily_drawdown_r = 2.5
# Contract lot size (verify against the current contract)
lot_size = 25
# Minimum price increment
tick_size = 0.05

[notifications]
enabled = true
# Notification level: all, trades_only, errors_only
level = "all"

[notifications.telegram]
enabled = false
bot_token = ""
chat_id = ""

[notifications.terminal]
enabled = true
`

const credentialsTemplate = `# Breakout Trader Credentials
# WARNING: Keep this file secure! Do not commit to version control.

[zerodha]
api_key = ""
api_secret = ""
user_id = ""
password = ""
totp_secret = ""
`

func createTemplateConfig(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "config.toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}

	return fmt.Errorf("config file not found, created template at %s", path)
}

func createTemplateCredentials(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "credentials.toml")
	// Use restricted permissions for credentials file
	if err := os.WriteFile(path, []byte(credentialsTemplate), 0600); err != nil {
		return fmt.Errorf("writing credentials template: %w", err)
	}

	return fmt.Errorf("credentials file not found, created template at %s", path)
}
