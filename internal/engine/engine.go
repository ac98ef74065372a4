// Package engine implements the trade simulator, the backtest run loop, the
// parameter optimizer and period performance aggregation.
package engine

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"tradesim/internal/config"
	"tradesim/internal/model"
)

// Engine is the simulation orchestrator used by the CLI and the API. It owns
// the model factory and keeps run counters.
type Engine struct {
	factory ModelFactory
	workers int
	mu      sync.Mutex
	started time.Time
	metrics Metrics
	cfg     ConfigSnapshot
	logger  *zap.Logger
}

// Status represents the current engine state for API consumers.
type Status struct {
	Time      time.Time      `json:"time"`
	StartedAt time.Time      `json:"startedAt"`
	Metrics   Metrics        `json:"metrics"`
	Config    ConfigSnapshot `json:"config"`
}

// Metrics tracks engine run counters.
type Metrics struct {
	BacktestCount int64     `json:"backtestCount"`
	OptimizeCount int64     `json:"optimizeCount"`
	SignalCount   int64     `json:"signalCount"`
	TradeCount    int64     `json:"tradeCount"`
	LastRunAt     time.Time `json:"lastRunAt"`
}

// ConfigSnapshot is a serializable view of the active configuration.
type ConfigSnapshot struct {
	Seed        int64 `json:"seed"`
	Workers     int   `json:"workers"`
	KellySizing bool  `json:"kellySizing"`
}

// New creates an Engine from configuration. sizer caps position sizes when
// backtest.kellySizing is enabled; it may be nil otherwise.
func New(cfg *config.Config, sizer PositionSizer) *Engine {
	seed := cfg.Backtest.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if !cfg.Backtest.KellySizing {
		sizer = nil
	}
	return &Engine{
		factory: SeededModelFactory(seed, sizer),
		workers: cfg.Optimizer.Workers,
		started: time.Now(),
		logger:  zap.NewNop(),
		cfg: ConfigSnapshot{
			Seed:        seed,
			Workers:     cfg.Optimizer.Workers,
			KellySizing: sizer != nil,
		},
	}
}

// SetLogger sets the structured logger for the engine.
func (e *Engine) SetLogger(logger *zap.Logger) {
	if logger != nil {
		e.logger = logger
	}
}

// UseFactory replaces the outcome model factory.
func (e *Engine) UseFactory(f ModelFactory) {
	if f != nil {
		e.factory = f
	}
}

// Backtest runs one backtest on a fresh model.
func (e *Engine) Backtest(signals []model.Signal, cfg model.BacktestConfig) model.BacktestResult {
	res := NewBacktester(e.factory(0), e.logger).Run(signals, cfg)

	e.mu.Lock()
	e.metrics.BacktestCount++
	e.metrics.SignalCount += int64(len(signals))
	e.metrics.TradeCount += int64(res.TotalTrades)
	e.metrics.LastRunAt = time.Now()
	e.mu.Unlock()

	return res
}

// Optimize runs a grid search over ranges.
func (e *Engine) Optimize(ctx context.Context, signals []model.Signal, base model.BacktestConfig, ranges ParameterRanges) (OptimizationResult, error) {
	res, err := NewOptimizer(e.factory, e.workers, e.logger).Optimize(ctx, signals, base, ranges)

	trades := 0
	for _, r := range res.AllResults {
		trades += r.Result.TotalTrades
	}
	e.mu.Lock()
	e.metrics.OptimizeCount++
	e.metrics.SignalCount += int64(len(signals))
	e.metrics.TradeCount += int64(trades)
	e.metrics.LastRunAt = time.Now()
	e.mu.Unlock()

	return res, err
}

// Status returns the current engine status.
func (e *Engine) Status() Status {
	e.mu.Lock()
	metrics := e.metrics
	e.mu.Unlock()

	return Status{
		Time:      time.Now(),
		StartedAt: e.started,
		Metrics:   metrics,
		Config:    e.cfg,
	}
}
