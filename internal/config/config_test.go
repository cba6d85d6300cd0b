package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "breakout-trader/internal/errors"
)

func validConfig() *Config {
	return &Config{
		Trading: TradingConfig{
			Mode:           "paper",
			Exchange:       "NFO",
			Product:        "NRML",
			Underlying:     "NIFTY",
			SpotSymbol:     "NSE:NIFTY 50",
			ExpiryLeadDays: 2,
		},
		Strategy: StrategyConfig{
			CandleInterval: 15 * time.Minute,
			TargetR:        5.0,
		},
		Risk: RiskConfig{
			RiskPerTradePercent:  2.0,
			MaxAllocationPercent: 50.0,
			MaxDailyDrawdownR:    2.5,
			LotSize:              25,
			TickSize:             0.05,
		},
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad mode", func(c *Config) { c.Trading.Mode = "real" }},
		{"zero risk", func(c *Config) { c.Risk.RiskPerTradePercent = 0 }},
		{"risk over 100", func(c *Config) { c.Risk.RiskPerTradePercent = 150 }},
		{"zero allocation", func(c *Config) { c.Risk.MaxAllocationPercent = 0 }},
		{"negative drawdown limit", func(c *Config) { c.Risk.MaxDailyDrawdownR = -2.5 }},
		{"zero lot size", func(c *Config) { c.Risk.LotSize = 0 }},
		{"zero tick size", func(c *Config) { c.Risk.TickSize = 0 }},
		{"zero interval", func(c *Config) { c.Strategy.CandleInterval = 0 }},
		{"zero target", func(c *Config) { c.Strategy.TargetR = 0 }},
		{"negative expiry lead", func(c *Config) { c.Trading.ExpiryLeadDays = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), apperrors.ErrConfigInvalid)
		})
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte("[trading]\nmode = \"paper\"\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "credentials.toml"), []byte(""), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "NIFTY", cfg.Trading.Underlying)
	assert.Equal(t, uint32(256265), cfg.Trading.SpotToken)
	assert.Equal(t, 15*time.Minute, cfg.Strategy.CandleInterval)
	assert.Equal(t, 5.0, cfg.Strategy.TargetR)
	assert.False(t, cfg.Strategy.AllowReentry)
	assert.Equal(t, 2.0, cfg.Risk.RiskPerTradePercent)
	assert.Equal(t, 50.0, cfg.Risk.MaxAllocationPercent)
	assert.Equal(t, 2.5, cfg.Risk.MaxDailyDrawdownR)
	assert.Equal(t, 25, cfg.Risk.LotSize)
}

func TestLoadOverridesFromFile(t *testing.T) {
	dir := t.TempDir()
	content := `
[trading]
mode = "live"
expiry_lead_days = 3

[strategy]
target_r = 4.0
allow_reentry = true

[risk]
lot_size = 50
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "credentials.toml"), []byte(""), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "live", cfg.Trading.Mode)
	assert.Equal(t, 3, cfg.Trading.ExpiryLeadDays)
	assert.Equal(t, 4.0, cfg.Strategy.TargetR)
	assert.True(t, cfg.Strategy.AllowReentry)
	assert.Equal(t, 50, cfg.Risk.LotSize)
	assert.False(t, cfg.IsPaperMode())
}

func TestLoadCreatesTemplatesWhenMissing(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(dir)
	require.Error(t, err)

	// Template files are written for the operator to fill in.
	_, statErr := os.Stat(filepath.Join(dir, "config.toml"))
	assert.NoError(t, statErr)
}

func TestEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte("[trading]\nmode = \"paper\"\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "credentials.toml"), []byte(""), 0644))

	t.Setenv("ZERODHA_API_KEY", "envkey")
	t.Setenv("TRADING_MODE", "live")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "envkey", cfg.Credentials.Zerodha.APIKey)
	assert.Equal(t, "live", cfg.Trading.Mode)
}
