// Package config provides configuration management for the trading bot.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// Defaults applied by normalize() when fields are unset.
const (
	defaultBarInterval        = "5min"
	defaultBarDuration        = "1d"
	defaultContractMultiplier = 100
	defaultTickSize           = 0.01
	defaultCheckInterval      = "5m"
	defaultVenue              = "SMART"
)

// Config represents the complete application configuration. Built once at
// startup, validated, then passed explicitly to every component; nothing
// reads process-wide settings and nothing mutates it mid-run.
type Config struct {
	Environment EnvironmentConfig `yaml:"environment"`
	Broker      BrokerConfig      `yaml:"broker"`
	Strategy    StrategyConfig    `yaml:"strategy"`
	Schedule    ScheduleConfig    `yaml:"schedule"`
	Storage     StorageConfig     `yaml:"storage"`
	Dashboard   DashboardConfig   `yaml:"dashboard"`
}

// EnvironmentConfig defines the environment settings.
type EnvironmentConfig struct {
	Mode     string `yaml:"mode"`      // paper | live
	LogLevel string `yaml:"log_level"` // debug | info | warn | error
}

// BrokerConfig defines gateway connection settings.
type BrokerConfig struct {
	GatewayURL string `yaml:"gateway_url"`
	AccountID  string `yaml:"account_id"`
	OrderVenue string `yaml:"order_venue"`
}

// StrategyConfig defines the wick-break strategy parameters.
type StrategyConfig struct {
	Symbols            []string `yaml:"symbols"`
	PositionBudgetUSD  float64  `yaml:"position_budget_usd"`
	IgnoreMinutes      int      `yaml:"ignore_minutes"`
	OTMThreshold       float64  `yaml:"otm_threshold"`
	ExpiryDaysAhead    int      `yaml:"expiry_days_ahead"`
	TakeProfitPct      float64  `yaml:"take_profit_pct"`
	StopLossPct        float64  `yaml:"stop_loss_pct"`
	PartialSellPct     float64  `yaml:"partial_sell_pct"`
	BarInterval        string   `yaml:"bar_interval"`
	BarDuration        string   `yaml:"bar_duration"`
	ContractMultiplier int      `yaml:"contract_multiplier"`
	TickSize           float64  `yaml:"tick_size"`
	MaxConcurrency     int      `yaml:"max_concurrency"`
}

// ScheduleConfig defines timezone, run cadence and the EOD cutoff.
type ScheduleConfig struct {
	Timezone      string `yaml:"timezone"`       // e.g. "US/Mountain"
	EODCutoff     string `yaml:"eod_cutoff"`     // "HH:MM" in Timezone
	CheckInterval string `yaml:"check_interval"` // e.g. "5m"
}

// StorageConfig defines journal settings.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// DashboardConfig defines the optional status server.
type DashboardConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Port      int    `yaml:"port"`
	AuthToken string `yaml:"auth_token"`
}

// Load reads and parses the configuration file from the specified path.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- configPath is a user-provided config file path
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var config Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// Validate checks that all configuration values are valid and consistent.
// It also applies defaults for optional fields.
func (c *Config) Validate() error {
	c.normalize()

	if c.Environment.Mode != "paper" && c.Environment.Mode != "live" {
		return fmt.Errorf("environment.mode must be 'paper' or 'live'")
	}

	if !c.IsPaperTrading() {
		if c.Broker.GatewayURL == "" {
			return fmt.Errorf("broker.gateway_url is required in live mode")
		}
		if c.Broker.AccountID == "" {
			return fmt.Errorf("broker.account_id is required in live mode")
		}
	}

	if len(c.Strategy.Symbols) == 0 {
		return fmt.Errorf("strategy.symbols must list at least one symbol")
	}
	seen := make(map[string]bool, len(c.Strategy.Symbols))
	for _, s := range c.Strategy.Symbols {
		if s == "" {
			return fmt.Errorf("strategy.symbols must not contain empty entries")
		}
		if seen[s] {
			return fmt.Errorf("strategy.symbols contains duplicate %q", s)
		}
		seen[s] = true
	}
	if c.Strategy.PositionBudgetUSD <= 0 {
		return fmt.Errorf("strategy.position_budget_usd must be > 0")
	}
	if c.Strategy.IgnoreMinutes < 0 {
		return fmt.Errorf("strategy.ignore_minutes must be >= 0")
	}
	if c.Strategy.OTMThreshold <= 0 {
		return fmt.Errorf("strategy.otm_threshold must be > 0")
	}
	if c.Strategy.ExpiryDaysAhead < 0 {
		return fmt.Errorf("strategy.expiry_days_ahead must be >= 0")
	}
	if c.Strategy.TakeProfitPct <= 0 {
		return fmt.Errorf("strategy.take_profit_pct must be > 0")
	}
	if c.Strategy.StopLossPct <= 0 || c.Strategy.StopLossPct >= 1 {
		return fmt.Errorf("strategy.stop_loss_pct must be in (0,1)")
	}
	if c.Strategy.PartialSellPct <= 0 {
		return fmt.Errorf("strategy.partial_sell_pct must be > 0")
	}
	if c.Strategy.ContractMultiplier <= 0 {
		return fmt.Errorf("strategy.contract_multiplier must be > 0")
	}
	if c.Strategy.MaxConcurrency < 1 {
		return fmt.Errorf("strategy.max_concurrency must be >= 1")
	}

	if _, err := c.Location(); err != nil {
		return fmt.Errorf("schedule.timezone invalid: %w", err)
	}
	if _, err := time.Parse("15:04", c.Schedule.EODCutoff); err != nil {
		return fmt.Errorf("schedule.eod_cutoff must be HH:MM: %w", err)
	}
	if _, err := time.ParseDuration(c.Schedule.CheckInterval); err != nil {
		return fmt.Errorf("schedule.check_interval invalid: %w", err)
	}

	if c.Storage.Path == "" {
		return fmt.Errorf("storage.path is required")
	}

	if c.Dashboard.Enabled && (c.Dashboard.Port <= 0 || c.Dashboard.Port > 65535) {
		return fmt.Errorf("dashboard.port must be in (0,65535] when enabled")
	}

	return nil
}

func (c *Config) normalize() {
	if c.Strategy.BarInterval == "" {
		c.Strategy.BarInterval = defaultBarInterval
	}
	if c.Strategy.BarDuration == "" {
		c.Strategy.BarDuration = defaultBarDuration
	}
	if c.Strategy.ContractMultiplier == 0 {
		c.Strategy.ContractMultiplier = defaultContractMultiplier
	}
	if c.Strategy.TickSize == 0 {
		c.Strategy.TickSize = defaultTickSize
	}
	if c.Strategy.MaxConcurrency == 0 {
		c.Strategy.MaxConcurrency = 1
	}
	if c.Schedule.CheckInterval == "" {
		c.Schedule.CheckInterval = defaultCheckInterval
	}
	if c.Broker.OrderVenue == "" {
		c.Broker.OrderVenue = defaultVenue
	}
}

// IsPaperTrading returns true if the bot is configured for paper trading.
func (c *Config) IsPaperTrading() bool {
	return c.Environment.Mode == "paper"
}

// Location resolves the configured timezone.
func (c *Config) Location() (*time.Location, error) {
	tz := c.Schedule.Timezone
	if tz == "" {
		tz = "UTC"
	}
	return time.LoadLocation(tz)
}

// GetCheckInterval returns the configured run cadence.
func (c *Config) GetCheckInterval() time.Duration {
	d, err := time.ParseDuration(c.Schedule.CheckInterval)
	if err != nil {
		return 5 * time.Minute // default
	}
	return d
}

// CutoffFor returns today's EOD cutoff instant relative to now, in the
// configured timezone. Used only for the single before/after comparison;
// holiday calendars are the gateway's concern.
func (c *Config) CutoffFor(now time.Time) (time.Time, error) {
	loc, err := c.Location()
	if err != nil {
		return time.Time{}, err
	}
	clock, err := time.Parse("15:04", c.Schedule.EODCutoff)
	if err != nil {
		return time.Time{}, err
	}
	local := now.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(),
		clock.Hour(), clock.Minute(), 0, 0, loc), nil
}
