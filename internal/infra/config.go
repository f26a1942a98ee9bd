package infra

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application settings. LoadConfig reads the YAML file,
// applies environment overrides for sensitive values and validates the
// result.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Broker struct {
		BaseURL       string        `yaml:"base_url"`
		TokenPath     string        `yaml:"token_path"` // access-token JSON file
		Timeout       time.Duration `yaml:"timeout"`
		AccountID     string        `yaml:"account_id"`
		SourceID      string        `yaml:"source_id"` // API source marker sent with every request
	} `yaml:"broker"`

	Feed struct {
		WSURL  string   `yaml:"ws_url"`
		Scrips []string `yaml:"scrips"` // EXCHANGE|TOKEN touchline subscriptions
	} `yaml:"feed"`

	Instruments struct {
		MasterPath string `yaml:"master_path"` // instrument master JSON
	} `yaml:"instruments"`

	Risk struct {
		SLPercent        float64 `yaml:"sl_percent"`         // 0.25 or 25 both mean 0.25%
		FirstProfitStage float64 `yaml:"first_profit_stage"` // fraction of the standard offset
		TargetPercent    float64 `yaml:"target_percent"`
		LimitBufferPct   float64 `yaml:"limit_buffer_pct"`
		TimeExitMinutes  int     `yaml:"time_exit_minutes"`
		ProductType      string  `yaml:"product_type"` // broker code: I / M / C
		Retention        string  `yaml:"retention"`

		CacheTTLMS         int `yaml:"cache_ttl_ms"`
		StabilityDwellMS   int `yaml:"stability_dwell_ms"`
		PlacementLockMS    int `yaml:"placement_lock_ms"`
		RefreshIntervalMS  int `yaml:"refresh_interval_ms"`
	} `yaml:"risk"`

	Execution struct {
		Enabled         bool `yaml:"enabled"`
		SweepIntervalMS int  `yaml:"sweep_interval_ms"`
	} `yaml:"execution"`

	TradingWindow struct {
		StartHour   int  `yaml:"start_hour"`
		StartMinute int  `yaml:"start_minute"`
		EndHour     int  `yaml:"end_hour"`
		EndMinute   int  `yaml:"end_minute"`
		BreakStart  int  `yaml:"break_start_minute_of_day"` // optional, 0 = none
		BreakEnd    int  `yaml:"break_end_minute_of_day"`
	} `yaml:"trading_window"`

	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`

	Storage struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"storage"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// LoadConfig reads and parses the config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	overrideWithEnv(&cfg)
	cfg.normalizePercentages()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Broker.Timeout == 0 {
		c.Broker.Timeout = 10 * time.Second
	}
	if c.Risk.SLPercent == 0 {
		c.Risk.SLPercent = 0.25
	}
	if c.Risk.FirstProfitStage == 0 {
		c.Risk.FirstProfitStage = 0.66
	}
	if c.Risk.TargetPercent == 0 {
		c.Risk.TargetPercent = 0.25
	}
	if c.Risk.LimitBufferPct == 0 {
		c.Risk.LimitBufferPct = 0.01
	}
	if c.Risk.TimeExitMinutes == 0 {
		c.Risk.TimeExitMinutes = 15
	}
	if c.Risk.ProductType == "" {
		c.Risk.ProductType = "M"
	}
	if c.Risk.Retention == "" {
		c.Risk.Retention = "DAY"
	}
	if c.Risk.CacheTTLMS == 0 {
		c.Risk.CacheTTLMS = 3000
	}
	if c.Risk.StabilityDwellMS == 0 {
		c.Risk.StabilityDwellMS = 800
	}
	if c.Risk.PlacementLockMS == 0 {
		c.Risk.PlacementLockMS = 1200
	}
	if c.Risk.RefreshIntervalMS == 0 {
		c.Risk.RefreshIntervalMS = 1000
	}
	if c.Execution.SweepIntervalMS == 0 {
		c.Execution.SweepIntervalMS = 1000
	}
	if c.TradingWindow.StartHour == 0 && c.TradingWindow.StartMinute == 0 {
		c.TradingWindow.StartHour, c.TradingWindow.StartMinute = 9, 20
	}
	if c.TradingWindow.EndHour == 0 && c.TradingWindow.EndMinute == 0 {
		c.TradingWindow.EndHour, c.TradingWindow.EndMinute = 15, 25
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = "data/risk.db"
	}
}

// normalizePercentages lets operators write percentages either as fractions
// (0.25) or as percent points (25): values above 1 are divided by 100. The
// first-profit stage is a plain fraction of the standard offset and gets the
// same treatment for symmetry. After normalization SLPercent 0.25 means
// 0.25%, stored as 0.0025.
func (c *Config) normalizePercentages() {
	c.Risk.SLPercent = asFraction(c.Risk.SLPercent) / 100
	c.Risk.TargetPercent = asFraction(c.Risk.TargetPercent) / 100
	c.Risk.LimitBufferPct = asFraction(c.Risk.LimitBufferPct) / 100
	c.Risk.FirstProfitStage = asFraction(c.Risk.FirstProfitStage)
}

func asFraction(v float64) float64 {
	if v > 1 {
		return v / 100
	}
	return v
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if c.Broker.BaseURL == "" || !strings.HasPrefix(c.Broker.BaseURL, "http") {
		return fmt.Errorf("invalid broker base URL: %s", c.Broker.BaseURL)
	}
	if c.Broker.TokenPath == "" {
		return fmt.Errorf("broker token path is required")
	}
	if c.Feed.WSURL == "" || (!strings.HasPrefix(c.Feed.WSURL, "ws://") && !strings.HasPrefix(c.Feed.WSURL, "wss://")) {
		return fmt.Errorf("invalid feed WS URL: %s", c.Feed.WSURL)
	}
	if c.Instruments.MasterPath == "" {
		return fmt.Errorf("instrument master path is required")
	}
	if c.Risk.SLPercent <= 0 || c.Risk.SLPercent >= 1 {
		return fmt.Errorf("sl_percent out of range after normalization: %f", c.Risk.SLPercent)
	}
	if c.Risk.FirstProfitStage <= 0 || c.Risk.FirstProfitStage > 1 {
		return fmt.Errorf("first_profit_stage out of range: %f", c.Risk.FirstProfitStage)
	}
	if c.Risk.TargetPercent <= 0 || c.Risk.TargetPercent >= 1 {
		return fmt.Errorf("target_percent out of range after normalization: %f", c.Risk.TargetPercent)
	}
	if c.Risk.TimeExitMinutes <= 0 {
		return fmt.Errorf("time_exit_minutes must be positive")
	}
	return nil
}

// overrideWithEnv overrides settings from environment variables when present.
func overrideWithEnv(cfg *Config) {
	if v := os.Getenv("RISK_BROKER_URL"); v != "" {
		cfg.Broker.BaseURL = v
	}
	if v := os.Getenv("RISK_BROKER_TOKEN_PATH"); v != "" {
		cfg.Broker.TokenPath = v
	}
	if v := os.Getenv("RISK_FEED_WS_URL"); v != "" {
		cfg.Feed.WSURL = v
	}
	if v := os.Getenv("RISK_SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("RISK_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Durations derived from millisecond config fields.

func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Risk.CacheTTLMS) * time.Millisecond
}

func (c *Config) StabilityDwell() time.Duration {
	return time.Duration(c.Risk.StabilityDwellMS) * time.Millisecond
}

func (c *Config) PlacementLockTTL() time.Duration {
	return time.Duration(c.Risk.PlacementLockMS) * time.Millisecond
}

func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.Risk.RefreshIntervalMS) * time.Millisecond
}

func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Execution.SweepIntervalMS) * time.Millisecond
}

func (c *Config) TimeExitWindow() time.Duration {
	return time.Duration(c.Risk.TimeExitMinutes) * time.Minute
}
