package risk

import (
	"go.uber.org/zap"

	"tradesim/internal/model"
)

// maxKellyFraction caps the half-Kelly fraction at 10% of balance.
const maxKellyFraction = 0.10

// PositionSize computes a half-Kelly position scaled by signal confidence and
// capped at MaxRiskPerTrade of the balance. winRate and confidence are
// percentages; avgWin and avgLoss are positive amounts.
func (m *Manager) PositionSize(balance, winRate, avgWin, avgLoss, confidence float64) model.PositionSize {
	if !finite(balance) || balance <= 0 || !(avgWin > 0) || !(avgLoss > 0) {
		return model.PositionSize{}
	}

	p := winRate / 100
	q := 1 - p
	b := avgWin / avgLoss

	rawKelly := (b*p - q) / b
	adjusted := 0.0
	if finite(rawKelly) {
		adjusted = clamp(rawKelly*0.5, 0, maxKellyFraction)
	}

	final := adjusted * clamp(confidence, 0, 100) / 100
	if !finite(final) {
		final = 0
	}

	amount := balance * final
	if limit := balance * m.params.MaxRiskPerTrade; amount > limit {
		amount = limit
	}

	size := model.PositionSize{
		Amount:          amount,
		Percentage:      amount / balance * 100,
		RiskAmount:      amount * m.params.StopLossPercentage,
		KellyPercentage: rawKelly * 100,
	}

	m.logger.Debug("position_sized",
		zap.Float64("balance", balance),
		zap.Float64("raw_kelly", rawKelly),
		zap.Float64("amount", amount),
	)

	return size
}

// MaxPosition sizes a backtest position for a signal from the policy's
// default take-profit and stop-loss percentages at an even win rate.
func (m *Manager) MaxPosition(balance float64, sig model.Signal) float64 {
	return m.RecommendedSize(model.Account{Balance: balance}, sig).Amount
}
