// Package config provides configuration management for the trading engine.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	apperrors "breakout-trader/internal/errors"
)

// Config holds all application configuration.
type Config struct {
	Trading       TradingConfig      `mapstructure:"trading"`
	Strategy      StrategyConfig     `mapstructure:"strategy"`
	Risk          RiskConfig         `mapstructure:"risk"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Credentials   Credentials        `mapstructure:"-"` // Loaded separately
}

// TradingConfig holds trading-related configuration.
type TradingConfig struct {
	Mode           string `mapstructure:"mode"`        // "live", "paper"
	Exchange       string `mapstructure:"exchange"`    // NFO
	Product        string `mapstructure:"product"`     // NRML
	Underlying     string `mapstructure:"underlying"`  // futures underlying, e.g. NIFTY
	SpotSymbol     string `mapstructure:"spot_symbol"` // signal instrument, e.g. NSE:NIFTY 50
	SpotToken      uint32 `mapstructure:"spot_token"`  // instrument token for the tick stream
	ExpiryLeadDays int    `mapstructure:"expiry_lead_days"`
}

// StrategyConfig holds breakout strategy parameters.
type StrategyConfig struct {
	CandleInterval time.Duration `mapstructure:"candle_interval"`
	TargetR        float64       `mapstructure:"target_r"`
	AllowReentry   bool          `mapstructure:"allow_reentry"`
}

// RiskConfig holds risk management configuration.
type RiskConfig struct {
	RiskPerTradePercent  float64 `mapstructure:"risk_per_trade_percent"`
	MaxAllocationPercent float64 `mapstructure:"max_allocation_percent"`
	MaxDailyDrawdownR    float64 `mapstructure:"max_daily_drawdown_r"`
	LotSize              int     `mapstructure:"lot_size"`
	TickSize             float64 `mapstructure:"tick_size"`
}

// NotificationConfig holds notification configuration.
type NotificationConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Level    string         `mapstructure:"level"` // all, trades_only, errors_only
	Telegram TelegramConfig `mapstructure:"telegram"`
	Terminal TerminalConfig `mapstructure:"terminal"`
}

// TelegramConfig holds Telegram notification configuration.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
}

// TerminalConfig holds terminal notification configuration.
type TerminalConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Credentials holds API credentials.
type Credentials struct {
	Zerodha ZerodhaCredentials `mapstructure:"zerodha"`
}

// ZerodhaCredentials holds Zerodha API credentials.
type ZerodhaCredentials struct {
	APIKey     string `mapstructure:"api_key"`
	APISecret  string `mapstructure:"api_secret"`
	UserID     string `mapstructure:"user_id"`
	Password   string `mapstructure:"password"`    // For auto-login
	TOTPSecret string `mapstructure:"totp_secret"` // For auto-login with 2FA
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/breakout-trader"
	}
	return filepath.Join(home, ".config", "breakout-trader")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := &Config{}

	if err := loadConfigFile(configDir, cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	if err := loadCredentials(configDir, &cfg.Credentials); err != nil {
		return nil, fmt.Errorf("loading credentials.toml: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func loadConfigFile(configDir string, target *Config) error {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return createTemplateConfig(configDir)
		}
		return err
	}

	return v.Unmarshal(target)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("trading.mode", "paper")
	v.SetDefault("trading.exchange", "NFO")
	v.SetDefault("trading.product", "NRML")
	v.SetDefault("trading.underlying", "NIFTY")
	v.SetDefault("trading.spot_symbol", "NSE:NIFTY 50")
	v.SetDefault("trading.spot_token", 256265)
	v.SetDefault("trading.expiry_lead_days", 2)
	v.SetDefault("strategy.candle_interval", 15*time.Minute)
	v.SetDefault("strategy.target_r", 5.0)
	v.SetDefault("strategy.allow_reentry", false)
	v.SetDefault("risk.risk_per_trade_percent", 2.0)
	v.SetDefault("risk.max_allocation_percent", 50.0)
	v.SetDefault("risk.max_daily_drawdown_r", 2.5)
	v.SetDefault("risk.lot_size", 25)
	v.SetDefault("risk.tick_size", 0.05)
	v.SetDefault("notifications.enabled", true)
	v.SetDefault("notifications.level", "all")
}

func loadCredentials(configDir string, creds *Credentials) error {
	v := viper.New()
	v.SetConfigName("credentials")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return createTemplateCredentials(configDir)
		}
		return err
	}

	return v.Unmarshal(creds)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ZERODHA_API_KEY"); v != "" {
		cfg.Credentials.Zerodha.APIKey = v
	}
	if v := os.Getenv("ZERODHA_API_SECRET"); v != "" {
		cfg.Credentials.Zerodha.APISecret = v
	}
	if v := os.Getenv("ZERODHA_USER_ID"); v != "" {
		cfg.Credentials.Zerodha.UserID = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Notifications.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Notifications.Telegram.ChatID = v
	}
	if v := os.Getenv("TRADING_MODE"); v != "" {
		cfg.Trading.Mode = v
	}
}

// Validate validates the configuration. Every failure wraps
// ErrConfigInvalid so callers can distinguish bad config from load errors.
func (c *Config) Validate() error {
	if c.Trading.Mode != "" && c.Trading.Mode != "live" && c.Trading.Mode != "paper" {
		return fmt.Errorf("%w: invalid trading mode: %s (must be 'live' or 'paper')", apperrors.ErrConfigInvalid, c.Trading.Mode)
	}

	if c.Risk.RiskPerTradePercent <= 0 || c.Risk.RiskPerTradePercent > 100 {
		return fmt.Errorf("%w: risk_per_trade_percent must be between 0 and 100", apperrors.ErrConfigInvalid)
	}
	if c.Risk.MaxAllocationPercent <= 0 || c.Risk.MaxAllocationPercent > 100 {
		return fmt.Errorf("%w: max_allocation_percent must be between 0 and 100", apperrors.ErrConfigInvalid)
	}
	if c.Risk.MaxDailyDrawdownR <= 0 {
		return fmt.Errorf("%w: max_daily_drawdown_r must be positive (expressed as a positive number of R)", apperrors.ErrConfigInvalid)
	}
	if c.Risk.LotSize <= 0 {
		return fmt.Errorf("%w: lot_size must be positive", apperrors.ErrConfigInvalid)
	}
	if c.Risk.TickSize <= 0 {
		return fmt.Errorf("%w: tick_size must be positive", apperrors.ErrConfigInvalid)
	}
	if c.Strategy.CandleInterval <= 0 {
		return fmt.Errorf("%w: candle_interval must be positive", apperrors.ErrConfigInvalid)
	}
	if c.Strategy.TargetR <= 0 {
		return fmt.Errorf("%w: target_r must be positive", apperrors.ErrConfigInvalid)
	}
	if c.Trading.ExpiryLeadDays < 0 {
		return fmt.Errorf("%w: expiry_lead_days must be non-negative", apperrors.ErrConfigInvalid)
	}

	return nil
}

// IsPaperMode returns true if paper trading mode is enabled.
func (c *Config) IsPaperMode() bool {
	return c.Trading.Mode == "paper"
}
