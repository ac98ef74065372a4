package engine

import (
	"math"
	"time"

	"tradesim/internal/model"
)

// OutcomeModel turns one signal into at most one simulated trade. The
// backtest loop depends only on this interface, so a historical replay can
// replace the statistical model without touching aggregation.
type OutcomeModel interface {
	Simulate(sig model.Signal, balance float64, cfg model.BacktestConfig) (model.BacktestTrade, bool)
}

// PositionSizer caps the flat per-trade position size. risk.Manager
// implements it with Kelly sizing.
type PositionSizer interface {
	MaxPosition(balance float64, sig model.Signal) float64
}

// Outcome model constants. Hand-tuned; keep as is.
const (
	targetHitProbability = 0.8
	stopHitProbability   = 0.7

	minSuccessProbability = 0.1
	maxSuccessProbability = 0.95
)

// ProbabilisticModel samples trade outcomes from a success probability
// derived from signal confidence and indicators. It is not safe for
// concurrent use; give each goroutine its own instance.
type ProbabilisticModel struct {
	rng   RandomSource
	sizer PositionSizer
}

// NewProbabilisticModel creates a model drawing from rng.
func NewProbabilisticModel(rng RandomSource) *ProbabilisticModel {
	return &ProbabilisticModel{rng: rng}
}

// SetSizer enables position capping. A nil sizer restores flat sizing.
func (p *ProbabilisticModel) SetSizer(s PositionSizer) {
	p.sizer = s
}

// Simulate implements OutcomeModel.
//
// Draw order per trade: slippage, outcome, level hit, partial move (only when
// the level was not hit), holding time.
func (p *ProbabilisticModel) Simulate(sig model.Signal, balance float64, cfg model.BacktestConfig) (model.BacktestTrade, bool) {
	size := balance * cfg.RiskPerTrade
	if p.sizer != nil {
		size = math.Min(size, p.sizer.MaxPosition(balance, sig))
	}
	if math.Round(size*100) <= 0 {
		return model.BacktestTrade{}, false
	}

	entry := sig.EntryPrice * (1 + (p.rng.Float64()-0.5)*cfg.Slippage)
	if entry <= 0 {
		return model.BacktestTrade{}, false
	}

	win := p.rng.Float64() < SuccessProbability(sig)

	var exit, holding float64
	if win {
		if p.rng.Float64() < targetHitProbability {
			exit = sig.TargetPrice
		} else {
			exit = entry + (sig.TargetPrice-entry)*(0.5+p.rng.Float64()*0.3)
		}
		holding = sig.Expiration * (0.7 + p.rng.Float64()*0.3)
	} else {
		if p.rng.Float64() < stopHitProbability {
			exit = sig.StopLoss
		} else {
			exit = entry + (sig.StopLoss-entry)*(0.5+p.rng.Float64()*0.5)
		}
		holding = sig.Expiration * (0.3 + p.rng.Float64()*0.7)
	}

	change := (exit - entry) / entry
	if !sig.Direction.IsLong() {
		change = (entry - exit) / entry
	}

	gross := size * change
	commission := size * cfg.Commission

	result := model.OutcomeLoss
	if win {
		result = model.OutcomeWin
	}

	return model.BacktestTrade{
		ID:          "backtest_" + sig.ID,
		Signal:      sig,
		EntryTime:   sig.Timestamp,
		ExitTime:    sig.Timestamp.Add(time.Duration(holding * float64(time.Minute))),
		EntryPrice:  entry,
		ExitPrice:   exit,
		Direction:   sig.Direction,
		Result:      result,
		Profit:      gross,
		Commission:  commission,
		NetProfit:   gross - commission,
		HoldingTime: holding,
	}, true
}

// SuccessProbability blends signal confidence with indicator bonuses and
// clamps the result to [0.1, 0.95].
func SuccessProbability(sig model.Signal) float64 {
	p := sig.Confidence / 100
	ti := sig.TechnicalIndicators
	long := sig.Direction.IsLong()

	// RSI
	if long && ti.RSI < 30 {
		p += 0.1
	}
	if !long && ti.RSI > 70 {
		p += 0.1
	}

	// MACD
	if long && ti.MACD.Histogram > 0 {
		p += 0.05
	}
	if !long && ti.MACD.Histogram < 0 {
		p += 0.05
	}

	if ti.ADX > 25 {
		p += 0.05
	}
	if sig.MLFeatures.VolumeRatio > 1.5 {
		p += 0.05
	}
	if sig.MLFeatures.TimeFeatures.IsMarketOpen {
		p += 0.05
	}

	return clamp(p, minSuccessProbability, maxSuccessProbability)
}
