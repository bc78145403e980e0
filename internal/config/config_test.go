package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
environment:
  mode: paper
  log_level: info

broker:
  gateway_url: https://localhost:5000
  account_id: DU12345

strategy:
  symbols:
    - SPY
    - QQQ
  position_budget_usd: 10000
  ignore_minutes: 5
  otm_threshold: 1.0
  expiry_days_ahead: 0
  take_profit_pct: 0.10
  stop_loss_pct: 0.10
  partial_sell_pct: 0.90

schedule:
  timezone: US/Mountain
  eod_cutoff: "13:50"
  check_interval: 5m

storage:
  path: data/journal.json

dashboard:
  enabled: false
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadValidConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)

	assert.True(t, cfg.IsPaperTrading())
	assert.Equal(t, []string{"SPY", "QQQ"}, cfg.Strategy.Symbols)
	assert.Equal(t, 10000.0, cfg.Strategy.PositionBudgetUSD)

	// Defaults applied by normalize.
	assert.Equal(t, "5min", cfg.Strategy.BarInterval)
	assert.Equal(t, "1d", cfg.Strategy.BarDuration)
	assert.Equal(t, 100, cfg.Strategy.ContractMultiplier)
	assert.Equal(t, 0.01, cfg.Strategy.TickSize)
	assert.Equal(t, 1, cfg.Strategy.MaxConcurrency)
	assert.Equal(t, "SMART", cfg.Broker.OrderVenue)
	assert.Equal(t, 5*time.Minute, cfg.GetCheckInterval())
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	bad := validYAML + "\nmystery_section:\n  x: 1\n"
	_, err := Load(writeConfig(t, bad))
	require.Error(t, err)
}

func TestLoadExpandsEnvironmentVariables(t *testing.T) {
	t.Setenv("TEST_ACCOUNT_ID", "DU99999")
	yaml := `
environment:
  mode: live
  log_level: info
broker:
  gateway_url: https://localhost:5000
  account_id: ${TEST_ACCOUNT_ID}
strategy:
  symbols: [SPY]
  position_budget_usd: 5000
  otm_threshold: 1.0
  take_profit_pct: 0.10
  stop_loss_pct: 0.10
  partial_sell_pct: 0.90
schedule:
  timezone: UTC
  eod_cutoff: "19:50"
storage:
  path: data/journal.json
`
	cfg, err := Load(writeConfig(t, yaml))
	require.NoError(t, err)
	assert.Equal(t, "DU99999", cfg.Broker.AccountID)
}

func TestValidateRejections(t *testing.T) {
	base := func() *Config {
		cfg, err := Load(writeConfig(t, validYAML))
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad mode", func(c *Config) { c.Environment.Mode = "backtest" }},
		{"no symbols", func(c *Config) { c.Strategy.Symbols = nil }},
		{"duplicate symbols", func(c *Config) { c.Strategy.Symbols = []string{"SPY", "SPY"} }},
		{"empty symbol", func(c *Config) { c.Strategy.Symbols = []string{""} }},
		{"zero budget", func(c *Config) { c.Strategy.PositionBudgetUSD = 0 }},
		{"negative ignore window", func(c *Config) { c.Strategy.IgnoreMinutes = -1 }},
		{"stop loss at one", func(c *Config) { c.Strategy.StopLossPct = 1.0 }},
		{"stop loss zero", func(c *Config) { c.Strategy.StopLossPct = 0 }},
		{"bad cutoff format", func(c *Config) { c.Schedule.EODCutoff = "25:99" }},
		{"bad timezone", func(c *Config) { c.Schedule.Timezone = "Mars/Olympus" }},
		{"missing storage path", func(c *Config) { c.Storage.Path = "" }},
		{"dashboard bad port", func(c *Config) { c.Dashboard.Enabled = true; c.Dashboard.Port = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLiveModeRequiresGateway(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)

	cfg.Environment.Mode = "live"
	cfg.Broker.GatewayURL = ""
	assert.Error(t, cfg.Validate())

	cfg.Broker.GatewayURL = "https://localhost:5000"
	cfg.Broker.AccountID = ""
	assert.Error(t, cfg.Validate())
}

func TestCutoffFor(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)

	loc, err := cfg.Location()
	require.NoError(t, err)

	now := time.Date(2026, 4, 22, 18, 0, 0, 0, time.UTC)
	cutoff, err := cfg.CutoffFor(now)
	require.NoError(t, err)

	local := cutoff.In(loc)
	assert.Equal(t, 13, local.Hour())
	assert.Equal(t, 50, local.Minute())
	assert.Equal(t, now.In(loc).Day(), local.Day())
}
