package risk

import (
	"math"

	"go.uber.org/zap"

	"tradesim/internal/model"
)

// AdjustParameters derives a tuned copy of the active policy from recent
// performance. The manager's own parameters are not modified.
func (m *Manager) AdjustParameters(perf model.PerformanceMetrics) model.RiskParameters {
	adj := m.params

	if perf.WinRate > 85 {
		adj.MaxRiskPerTrade = math.Min(0.03, adj.MaxRiskPerTrade*1.2)
	} else if perf.WinRate < 70 {
		adj.MaxRiskPerTrade = math.Max(0.01, adj.MaxRiskPerTrade*0.8)
	}

	if perf.SharpeRatio > 2 {
		adj.MaxConcurrentTrades = min(8, adj.MaxConcurrentTrades+1)
	} else if perf.SharpeRatio < 1 {
		adj.MaxConcurrentTrades = max(2, adj.MaxConcurrentTrades-1)
	}

	if perf.MaxDrawdown > 0.15 {
		adj.MinConfidenceLevel = math.Min(90, adj.MinConfidenceLevel+5)
		adj.MaxRiskPerTrade = math.Max(0.01, adj.MaxRiskPerTrade*0.7)
	}

	if adj != m.params {
		m.logger.Info("risk_parameters_adjusted",
			zap.Float64("max_risk_per_trade", adj.MaxRiskPerTrade),
			zap.Int("max_concurrent_trades", adj.MaxConcurrentTrades),
			zap.Float64("min_confidence", adj.MinConfidenceLevel),
		)
	}
	return adj
}

// Recommendations returns plain-language guidance for an account's state.
func (m *Manager) Recommendations(perf model.PerformanceMetrics) []string {
	recs := []string{}

	if perf.MaxDrawdown > 0.15 {
		recs = append(recs,
			"High drawdown: reduce position sizes",
			"Consider pausing trading to re-evaluate the strategy",
		)
	}
	if perf.WinRate < 70 {
		recs = append(recs,
			"Low win rate: raise the minimum confidence threshold",
			"Review losing trades for recurring patterns",
		)
	}
	if perf.ActiveTrades > m.params.MaxConcurrentTrades {
		recs = append(recs, "Too many active trades: respect the concurrent position limit")
	}
	if perf.Balance < 1000 {
		recs = append(recs,
			"Low capital: keep positions very conservative",
			"Focus on capital preservation",
		)
	}
	return recs
}
