package risk

import (
	"fmt"
	"math"
	"time"

	"tradesim/internal/model"
)

// DailyRisk reports how much of the daily loss budget has been used.
type DailyRisk struct {
	CanTrade bool    `json:"canTrade"`
	Reason   string  `json:"reason,omitempty"`
	RiskUsed float64 `json:"riskUsed"` // percent of balance
}

// CheckDailyRisk blocks trading once today's realized losses reach MaxDailyRisk.
func (m *Manager) CheckDailyRisk(history []model.ClosedTrade, balance float64) DailyRisk {
	used := m.dailyRiskUsed(history, balance)
	if used >= m.params.MaxDailyRisk {
		return DailyRisk{
			CanTrade: false,
			Reason:   fmt.Sprintf("daily risk limit reached (%.1f%%)", used*100),
			RiskUsed: used * 100,
		}
	}
	return DailyRisk{CanTrade: true, RiskUsed: used * 100}
}

// dailyRiskUsed returns today's realized losses as a fraction of balance.
func (m *Manager) dailyRiskUsed(history []model.ClosedTrade, balance float64) float64 {
	if balance <= 0 {
		return 0
	}
	now := m.now()
	losses := 0.0
	for _, t := range history {
		if t.ProfitLoss < 0 && sameDay(t.ClosedAt, now) {
			losses += math.Abs(t.ProfitLoss)
		}
	}
	return losses / balance
}

// dailyPnL sums today's realized profit and loss.
func (m *Manager) dailyPnL(history []model.ClosedTrade) float64 {
	now := m.now()
	pnl := 0.0
	for _, t := range history {
		if sameDay(t.ClosedAt, now) {
			pnl += t.ProfitLoss
		}
	}
	return pnl
}

// sameDay compares calendar days in UTC.
func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
