// Package config handles loading and validating simulator configuration from YAML files.
package config

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"tradesim/internal/model"
)

// Config is the root configuration structure.
type Config struct {
	App       AppConfig       `yaml:"app"`
	Backtest  BacktestConfig  `yaml:"backtest"`
	Risk      RiskConfig      `yaml:"risk"`
	Optimizer OptimizerConfig `yaml:"optimizer"`
	API       APIConfig       `yaml:"api"`
	Export    ExportConfig    `yaml:"export"`
}

// AppConfig holds general application settings.
type AppConfig struct {
	Env      string `yaml:"env"`
	LogLevel string `yaml:"logLevel"`
	LogFile  string `yaml:"logFile"`
}

// BacktestConfig holds the run window, costs and filters of a backtest.
type BacktestConfig struct {
	StartDate      time.Time `yaml:"startDate"`
	EndDate        time.Time `yaml:"endDate"`
	InitialBalance float64   `yaml:"initialBalance"`
	Commission     float64   `yaml:"commission"`
	Slippage       float64   `yaml:"slippage"`
	RiskPerTrade   float64   `yaml:"riskPerTrade"`
	MinConfidence  float64   `yaml:"minConfidence"`
	Pairs          []string  `yaml:"pairs"`
	// Seed drives the outcome model. Zero means seed from the clock.
	Seed int64 `yaml:"seed"`
	// KellySizing caps each position with the risk manager's Kelly size.
	KellySizing bool `yaml:"kellySizing"`
}

// RiskConfig holds risk policy and account monitoring settings.
type RiskConfig struct {
	Parameters    model.RiskParameters `yaml:"parameters"`
	StatusLevels  []StatusLevel        `yaml:"statusLevels"`
	PauseDrawdown float64              `yaml:"pauseDrawdown"`
}

// StatusLevel defines a single account risk level. An account is at this
// level when its drawdown or its daily loss exceeds the thresholds.
type StatusLevel struct {
	Name      string  `yaml:"name"`
	Drawdown  float64 `yaml:"drawdown"`  // fraction of peak
	DailyLoss float64 `yaml:"dailyLoss"` // fraction of balance
}

// OptimizerConfig holds parameter ranges for the grid search.
type OptimizerConfig struct {
	RiskPerTrade  []float64 `yaml:"riskPerTrade"`
	MinConfidence []float64 `yaml:"minConfidence"`
	Commission    []float64 `yaml:"commission"`
	Workers       int       `yaml:"workers"`
}

// APIConfig holds REST API server settings.
type APIConfig struct {
	ListenAddress string `yaml:"listenAddress"`
}

// ExportConfig controls report output.
type ExportConfig struct {
	Dir     string `yaml:"dir"`
	CSV     bool   `yaml:"csv"`
	Parquet bool   `yaml:"parquet"`
	Period  string `yaml:"period"`
}

// DefaultPauseDrawdown is the drawdown above which an account is paused.
const DefaultPauseDrawdown = 0.15

// DefaultStatusLevels returns the stock account status levels, lowest first.
func DefaultStatusLevels() []StatusLevel {
	return []StatusLevel{
		{Name: string(model.RiskMedium), Drawdown: 0.05, DailyLoss: 0.02},
		{Name: string(model.RiskHigh), Drawdown: 0.10, DailyLoss: 0.05},
	}
}

// Load reads, defaults and validates a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// setDefaults applies defaults for optional fields.
func (c *Config) setDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.Backtest.InitialBalance == 0 {
		c.Backtest.InitialBalance = 10000
	}
	if c.Backtest.RiskPerTrade == 0 {
		c.Backtest.RiskPerTrade = 0.02
	}
	c.Risk.Parameters = c.Risk.Parameters.WithDefaults()
	if len(c.Risk.StatusLevels) == 0 {
		c.Risk.StatusLevels = DefaultStatusLevels()
	}
	if c.Risk.PauseDrawdown == 0 {
		c.Risk.PauseDrawdown = DefaultPauseDrawdown
	}
	if len(c.Optimizer.RiskPerTrade) == 0 {
		c.Optimizer.RiskPerTrade = []float64{c.Backtest.RiskPerTrade}
	}
	if len(c.Optimizer.MinConfidence) == 0 {
		c.Optimizer.MinConfidence = []float64{c.Backtest.MinConfidence}
	}
	if len(c.Optimizer.Commission) == 0 {
		c.Optimizer.Commission = []float64{c.Backtest.Commission}
	}
	if c.Optimizer.Workers <= 0 {
		c.Optimizer.Workers = runtime.NumCPU()
	}
	if c.API.ListenAddress == "" {
		c.API.ListenAddress = ":8080"
	}
	if c.Export.Dir == "" {
		c.Export.Dir = "out"
	}
	if c.Export.Period == "" {
		c.Export.Period = string(model.GranularityDaily)
	}
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var err error

	switch c.App.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		err = multierr.Append(err, fmt.Errorf("app.logLevel %q must be one of debug, info, warn, error", c.App.LogLevel))
	}

	if verr := c.Backtest.Model().Validate(); verr != nil {
		err = multierr.Append(err, fmt.Errorf("backtest: %w", verr))
	}
	if c.Backtest.Commission < 0 || c.Backtest.Slippage < 0 {
		err = multierr.Append(err, fmt.Errorf("backtest: commission and slippage must not be negative"))
	}

	p := c.Risk.Parameters
	if p.MaxRiskPerTrade <= 0 || p.MaxRiskPerTrade > 1 {
		err = multierr.Append(err, fmt.Errorf("risk.parameters.maxRiskPerTrade %v outside (0,1]", p.MaxRiskPerTrade))
	}
	if p.MaxConcurrentTrades < 0 {
		err = multierr.Append(err, fmt.Errorf("risk.parameters.maxConcurrentTrades must not be negative"))
	}
	for i, lvl := range c.Risk.StatusLevels {
		if lvl.Name == "" {
			err = multierr.Append(err, fmt.Errorf("risk.statusLevels[%d]: name is required", i))
		}
		if i > 0 && lvl.Drawdown < c.Risk.StatusLevels[i-1].Drawdown {
			err = multierr.Append(err, fmt.Errorf("risk.statusLevels[%d]: levels must be ordered by drawdown", i))
		}
	}

	for _, v := range c.Optimizer.RiskPerTrade {
		if v <= 0 || v > 1 {
			err = multierr.Append(err, fmt.Errorf("optimizer.riskPerTrade value %v outside (0,1]", v))
		}
	}

	if !model.Granularity(c.Export.Period).Valid() {
		err = multierr.Append(err, fmt.Errorf("export.period %q must be daily, weekly or monthly", c.Export.Period))
	}

	return err
}

// Model converts the section into the immutable run parameters.
func (b BacktestConfig) Model() model.BacktestConfig {
	pairs := make([]string, len(b.Pairs))
	copy(pairs, b.Pairs)
	return model.BacktestConfig{
		StartDate:      b.StartDate,
		EndDate:        b.EndDate,
		InitialBalance: b.InitialBalance,
		Commission:     b.Commission,
		Slippage:       b.Slippage,
		RiskPerTrade:   b.RiskPerTrade,
		MinConfidence:  b.MinConfidence,
		Pairs:          pairs,
	}
}
