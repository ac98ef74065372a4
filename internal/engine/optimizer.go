package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"runtime"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tradesim/internal/model"
)

// ModelFactory returns a fresh outcome model for the combination at index.
// Models are never shared between combinations.
type ModelFactory func(index int) OutcomeModel

// SeededModelFactory derives one seeded probabilistic model per combination
// so a sweep is reproducible regardless of scheduling. sizer may be nil.
func SeededModelFactory(seed int64, sizer PositionSizer) ModelFactory {
	return func(index int) OutcomeModel {
		m := NewProbabilisticModel(NewSeededSource(seed + int64(index)))
		m.SetSizer(sizer)
		return m
	}
}

// ParameterRanges are the candidate values swept by the optimizer.
type ParameterRanges struct {
	RiskPerTrade  []float64 `json:"riskPerTrade"`
	MinConfidence []float64 `json:"minConfidence"`
	Commission    []float64 `json:"commission"`
}

// Combinations returns the Cartesian product in riskPerTrade, minConfidence,
// commission nesting order.
func (r ParameterRanges) Combinations() []Params {
	out := make([]Params, 0, len(r.RiskPerTrade)*len(r.MinConfidence)*len(r.Commission))
	for _, risk := range r.RiskPerTrade {
		for _, conf := range r.MinConfidence {
			for _, comm := range r.Commission {
				out = append(out, Params{RiskPerTrade: risk, MinConfidence: conf, Commission: comm})
			}
		}
	}
	return out
}

// Params is one point of the parameter grid.
type Params struct {
	RiskPerTrade  float64 `json:"riskPerTrade"`
	MinConfidence float64 `json:"minConfidence"`
	Commission    float64 `json:"commission"`
}

// Apply overlays the params on a base config.
func (p Params) Apply(base model.BacktestConfig) model.BacktestConfig {
	cfg := base
	cfg.Pairs = append([]string(nil), base.Pairs...)
	cfg.RiskPerTrade = p.RiskPerTrade
	cfg.MinConfidence = p.MinConfidence
	cfg.Commission = p.Commission
	return cfg
}

// CombinationResult is the outcome of one grid point. Failed combinations
// carry Err and a score of -Inf, encoded as null in JSON.
type CombinationResult struct {
	Params Params               `json:"params"`
	Result model.BacktestResult `json:"result"`
	Score  float64              `json:"score"`
	Err    string               `json:"error,omitempty"`
}

// OptimizationResult is the outcome of a grid search.
type OptimizationResult struct {
	RunID      string               `json:"runId"`
	BestParams Params               `json:"bestParams"`
	BestResult model.BacktestResult `json:"bestResult"`
	BestScore  float64              `json:"bestScore"`
	AllResults []CombinationResult  `json:"allResults"`
	Found      bool                 `json:"found"`
}

// MarshalJSON writes a non-finite score as null.
func (c CombinationResult) MarshalJSON() ([]byte, error) {
	type plain CombinationResult
	return json.Marshal(struct {
		plain
		Score jsonScore `json:"score"`
	}{plain(c), jsonScore(c.Score)})
}

// MarshalJSON writes a non-finite best score as null.
func (r OptimizationResult) MarshalJSON() ([]byte, error) {
	type plain OptimizationResult
	return json.Marshal(struct {
		plain
		BestScore jsonScore `json:"bestScore"`
	}{plain(r), jsonScore(r.BestScore)})
}

// jsonScore encodes -Inf (failed or unranked) as null.
type jsonScore float64

func (s jsonScore) MarshalJSON() ([]byte, error) {
	if !finite(float64(s)) {
		return []byte("null"), nil
	}
	return json.Marshal(float64(s))
}

// Optimizer runs a bounded-parallel grid search over backtest parameters.
type Optimizer struct {
	factory ModelFactory
	workers int
	logger  *zap.Logger
}

// NewOptimizer creates an optimizer. workers <= 0 uses one per CPU.
func NewOptimizer(factory ModelFactory, workers int, logger *zap.Logger) *Optimizer {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Optimizer{factory: factory, workers: workers, logger: logger}
}

// Score ranks a result: 0.6 x Sharpe + 0.4 x return on initial balance.
func Score(res model.BacktestResult, initialBalance float64) float64 {
	ret := 0.0
	if initialBalance > 0 {
		ret = res.NetProfit / initialBalance
	}
	return 0.6*res.SharpeRatio + 0.4*ret
}

// Optimize evaluates every combination and picks the highest score, ties
// going to the earliest combination. Cancelling ctx stops launching new
// combinations; the partial result is returned with ctx.Err().
func (o *Optimizer) Optimize(ctx context.Context, signals []model.Signal, base model.BacktestConfig, ranges ParameterRanges) (OptimizationResult, error) {
	runID := uuid.NewString()
	started := time.Now()
	combos := ranges.Combinations()
	results := make([]CombinationResult, len(combos))
	done := make([]bool, len(combos))

	o.logger.Info("optimizer_started",
		zap.String("run_id", runID),
		zap.Int("combinations", len(combos)),
		zap.Int("workers", o.workers),
	)

	g := new(errgroup.Group)
	g.SetLimit(o.workers)

	launched := 0
	for i, p := range combos {
		if ctx.Err() != nil {
			break
		}
		launched++
		g.Go(func() error {
			// g.Go may have waited for a free worker.
			if ctx.Err() != nil {
				return nil
			}
			results[i] = o.evaluate(runID, i, p, signals, base)
			done[i] = true
			return nil
		})
	}
	_ = g.Wait()

	out := OptimizationResult{
		RunID:      runID,
		BestScore:  math.Inf(-1),
		AllResults: make([]CombinationResult, 0, launched),
	}
	for i := range combos {
		if !done[i] {
			continue
		}
		r := results[i]
		out.AllResults = append(out.AllResults, r)
		if r.Err == "" && (!out.Found || r.Score > out.BestScore) {
			out.Found = true
			out.BestScore = r.Score
			out.BestParams = r.Params
			out.BestResult = r.Result
		}
	}

	o.logger.Info("optimizer_completed",
		zap.String("run_id", runID),
		zap.Int("evaluated", len(out.AllResults)),
		zap.Float64("best_score", out.BestScore),
		zap.Duration("elapsed", time.Since(started)),
	)

	if err := ctx.Err(); err != nil {
		return out, err
	}
	return out, nil
}

// evaluate runs one combination, turning a panic into a failed entry.
func (o *Optimizer) evaluate(runID string, index int, p Params, signals []model.Signal, base model.BacktestConfig) (res CombinationResult) {
	res.Params = p
	defer func() {
		if r := recover(); r != nil {
			res.Result = model.BacktestResult{}
			res.Score = math.Inf(-1)
			res.Err = fmt.Sprint(r)
			o.logger.Error("optimizer_combination_failed",
				zap.String("run_id", runID),
				zap.Int("index", index),
				zap.Any("params", p),
				zap.String("panic", res.Err),
			)
		}
	}()

	cfg := p.Apply(base)
	bt := NewBacktester(o.factory(index), o.logger)
	res.Result = bt.Run(signals, cfg)
	res.Score = Score(res.Result, cfg.InitialBalance)
	return res
}
