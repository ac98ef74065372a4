package risk

import (
	"math"

	"tradesim/internal/model"
)

// Score adjustments for trade risk evaluation. Hand-tuned.
const (
	scoreHighConfidence   = 20
	scoreMediumConfidence = 10
	scoreLowConfidence    = -10
	scoreCalmMarket       = 15
	scoreVolatileMarket   = -20
	scoreMarketOpen       = 10
	scoreMarketClosed     = -15
	scoreDeepDrawdown     = -25
	scoreShallowDrawdown  = 10
	scoreSaturated        = -30
	scoreFewTrades        = 5
	scoreStrongTrend      = 15
	scoreWeakTrend        = -10

	defaultVolatility = 0.02
	defaultADX        = 25

	// minRiskReward is the lowest acceptable reward-to-risk ratio.
	minRiskReward = 1.5
)

// EvaluateTrade scores the risk of taking a signal given the account's
// current drawdown (fraction) and number of active trades.
func (m *Manager) EvaluateTrade(sig model.Signal, balance, drawdown float64, activeTrades int) model.TradeRisk {
	score := 0.0

	// Confidence
	switch {
	case sig.Confidence >= 85:
		score += scoreHighConfidence
	case sig.Confidence >= 75:
		score += scoreMediumConfidence
	default:
		score += scoreLowConfidence
	}

	// Volatility
	volatility := sig.MLFeatures.Volatility
	if volatility == 0 {
		volatility = defaultVolatility
	}
	if volatility < 0.01 {
		score += scoreCalmMarket
	} else if volatility > 0.05 {
		score += scoreVolatileMarket
	}

	// Market session
	if sig.MLFeatures.TimeFeatures.IsMarketOpen {
		score += scoreMarketOpen
	} else {
		score += scoreMarketClosed
	}

	// Account drawdown
	if drawdown > 0.15 {
		score += scoreDeepDrawdown
	} else if drawdown < 0.05 {
		score += scoreShallowDrawdown
	}

	// Concurrent trades
	if activeTrades >= m.params.MaxConcurrentTrades {
		score += scoreSaturated
	} else if activeTrades <= 2 {
		score += scoreFewTrades
	}

	// Trend strength
	adx := sig.TechnicalIndicators.ADX
	if adx == 0 {
		adx = defaultADX
	}
	if adx > 30 {
		score += scoreStrongTrend
	} else if adx < 20 {
		score += scoreWeakTrend
	}

	score = clamp(score+50, 0, 100)

	level := model.RiskMedium
	if score >= 70 {
		level = model.RiskLow
	} else if score <= 40 {
		level = model.RiskHigh
	}

	maxLoss, expectedReturn := 0.0, 0.0
	if sig.EntryPrice > 0 {
		maxLoss = math.Abs(sig.EntryPrice-sig.StopLoss) / sig.EntryPrice
		expectedReturn = math.Abs(sig.TargetPrice-sig.EntryPrice) / sig.EntryPrice
	}
	rr := 0.0
	if maxLoss > 0 {
		rr = expectedReturn / maxLoss
	}

	rec := model.RecommendTake
	switch {
	case level == model.RiskHigh || score < 30:
		rec = model.RecommendAvoid
	case level == model.RiskMedium && score < 50:
		rec = model.RecommendReduce
	case rr < minRiskReward:
		rec = model.RecommendReduce
	}

	return model.TradeRisk{
		RiskLevel:       level,
		RiskScore:       score,
		MaxLoss:         maxLoss * 100,
		ExpectedReturn:  expectedReturn * 100,
		RiskRewardRatio: rr,
		Recommendation:  rec,
	}
}
