package risk

import (
	"fmt"

	"go.uber.org/zap"

	"tradesim/internal/model"
)

// Check names reported in TradeValidation.
const (
	CheckConfidence    = "Confidence Level"
	CheckRiskReward    = "Risk Reward Ratio"
	CheckMargin        = "Available Balance"
	CheckDrawdown      = "Current Drawdown"
	CheckOpenPositions = "Open Positions"
	CheckDailyRisk     = "Daily Risk"
)

// Validate runs every pre-trade check for a signal against an account.
// Only failed error-severity checks block the trade; warnings are surfaced.
func (m *Manager) Validate(acct model.Account, sig model.Signal) model.TradeValidation {
	size := m.RecommendedSize(acct, sig)
	checks := make([]model.RiskCheck, 0, 6)

	// Confidence
	ok := sig.Confidence >= m.params.MinConfidenceLevel
	checks = append(checks, newCheck(CheckConfidence, ok, model.SeverityError,
		fmt.Sprintf("confidence acceptable: %.0f%%", sig.Confidence),
		fmt.Sprintf("confidence too low: %.0f%% (min: %.0f%%)", sig.Confidence, m.params.MinConfidenceLevel),
	))

	// Reward to risk
	rr := sig.RiskRewardRatio()
	ok = rr >= minRiskReward
	checks = append(checks, newCheck(CheckRiskReward, ok, model.SeverityWarning,
		fmt.Sprintf("R:R ratio acceptable: %.2f:1", rr),
		fmt.Sprintf("R:R ratio insufficient: %.2f:1 (min: %.1f:1)", rr, minRiskReward),
	))

	// Margin
	required := requiredMargin(acct, size.Amount)
	ok = acct.MarginAvailable >= required
	checks = append(checks, newCheck(CheckMargin, ok, model.SeverityError,
		"sufficient margin available",
		fmt.Sprintf("insufficient margin: %.2f required, %.2f available", required, acct.MarginAvailable),
	))

	// Drawdown
	dd := m.CurrentDrawdown(acct)
	ok = dd < m.params.MaxDrawdown
	checks = append(checks, newCheck(CheckDrawdown, ok, model.SeverityError,
		fmt.Sprintf("drawdown acceptable: %.1f%%", dd*100),
		fmt.Sprintf("drawdown too high: %.1f%% (max: %.1f%%)", dd*100, m.params.MaxDrawdown*100),
	))

	// Open positions
	ok = acct.OpenPositions < m.params.MaxConcurrentTrades
	checks = append(checks, newCheck(CheckOpenPositions, ok, model.SeverityWarning,
		fmt.Sprintf("open positions acceptable: %d/%d", acct.OpenPositions, m.params.MaxConcurrentTrades),
		fmt.Sprintf("too many open positions: %d/%d", acct.OpenPositions, m.params.MaxConcurrentTrades),
	))

	// Daily risk
	daily := m.dailyRiskUsed(acct.History, acct.Balance)
	ok = daily < m.params.MaxDailyRisk
	checks = append(checks, newCheck(CheckDailyRisk, ok, model.SeverityError,
		fmt.Sprintf("daily risk acceptable: %.1f%%", daily*100),
		fmt.Sprintf("daily risk exceeded: %.1f%% (max: %.1f%%)", daily*100, m.params.MaxDailyRisk*100),
	))

	v := model.TradeValidation{
		CanTrade:        true,
		RiskChecks:      checks,
		RecommendedSize: size.Amount,
		Warnings:        []string{},
	}
	for _, c := range checks {
		if c.Passed {
			continue
		}
		switch c.Severity {
		case model.SeverityError:
			v.CanTrade = false
		case model.SeverityWarning:
			v.Warnings = append(v.Warnings, c.Message)
		}
	}

	m.logger.Info("trade_validated",
		zap.String("account", acct.ID),
		zap.String("signal", sig.ID),
		zap.Bool("can_trade", v.CanTrade),
		zap.Int("warnings", len(v.Warnings)),
		zap.Float64("recommended_size", v.RecommendedSize),
	)

	return v
}

// newCheck builds a check that reports info when passed and the given
// severity when failed.
func newCheck(name string, passed bool, failSeverity model.Severity, okMsg, failMsg string) model.RiskCheck {
	if passed {
		return model.RiskCheck{Name: name, Passed: true, Message: okMsg, Severity: model.SeverityInfo}
	}
	return model.RiskCheck{Name: name, Passed: false, Message: failMsg, Severity: failSeverity}
}

// RecommendedSize sizes a signal for an account from its realized history.
// Without wins or losses on record, the policy's take-profit and stop-loss
// percentages of balance stand in for the missing averages.
func (m *Manager) RecommendedSize(acct model.Account, sig model.Signal) model.PositionSize {
	st := historyStats(acct.History)
	winRate := st.winRate
	if st.total == 0 {
		winRate = 50
	}
	avgWin := st.avgWin
	if avgWin <= 0 {
		avgWin = acct.Balance * m.params.TakeProfitPercentage
	}
	avgLoss := st.avgLoss
	if avgLoss <= 0 {
		avgLoss = acct.Balance * m.params.StopLossPercentage
	}
	return m.PositionSize(acct.Balance, winRate, avgWin, avgLoss, sig.Confidence)
}

// CurrentDrawdown replays the account's realized history from its starting
// balance and measures the equity against the resulting peak.
func (m *Manager) CurrentDrawdown(acct model.Account) float64 {
	start := acct.StartingBalance
	if start <= 0 {
		start = acct.Balance
		for _, t := range acct.History {
			start -= t.ProfitLoss
		}
	}

	t := NewDrawdownTracker(start)
	balance := start
	for _, c := range acct.History {
		balance += c.ProfitLoss
		t.Observe(balance)
	}

	equity := acct.Equity
	if equity == 0 {
		equity = acct.Balance
	}
	t.Observe(equity)
	return t.Current()
}

// requiredMargin is the collateral for a position of the given amount.
func requiredMargin(acct model.Account, amount float64) float64 {
	leverage := acct.Leverage
	if leverage <= 0 {
		leverage = 1
	}
	return amount / leverage
}

type tradeStats struct {
	total   int
	winRate float64
	avgWin  float64
	avgLoss float64
}

func historyStats(history []model.ClosedTrade) tradeStats {
	var st tradeStats
	var wins, losses int
	var winSum, lossSum float64
	for _, t := range history {
		st.total++
		if t.ProfitLoss > 0 {
			wins++
			winSum += t.ProfitLoss
		} else if t.ProfitLoss < 0 {
			losses++
			lossSum -= t.ProfitLoss
		}
	}
	if st.total > 0 {
		st.winRate = float64(wins) / float64(st.total) * 100
	}
	if wins > 0 {
		st.avgWin = winSum / float64(wins)
	}
	if losses > 0 {
		st.avgLoss = lossSum / float64(losses)
	}
	return st
}
