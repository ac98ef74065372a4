package risk

import (
	"fmt"

	"tradesim/internal/model"
)

// minFreeMargin is the share of balance that must remain as free margin.
const minFreeMargin = 0.10

// AccountStatus builds the risk snapshot of one account.
func (m *Manager) AccountStatus(acct model.Account) model.AccountStatus {
	dd := m.CurrentDrawdown(acct)
	pnl := m.dailyPnL(acct.History)
	equity := acct.Equity
	if equity == 0 {
		equity = acct.Balance
	}

	return model.AccountStatus{
		AccountID:     acct.ID,
		Platform:      acct.Platform,
		Balance:       acct.Balance,
		Equity:        equity,
		MarginUsed:    acct.MarginUsed,
		Drawdown:      dd,
		DailyPnL:      pnl,
		OpenPositions: acct.OpenPositions,
		RiskLevel:     m.monitor.Level(acct.ID, dd, pnl, acct.Balance),
		CanTrade: dd < m.params.MaxDrawdown &&
			acct.OpenPositions < m.params.MaxConcurrentTrades &&
			acct.MarginAvailable > acct.Balance*minFreeMargin,
	}
}

// MonitorAccounts computes the status of every account and notifies when an
// account must pause or has reached the highest risk level.
func (m *Manager) MonitorAccounts(accounts []model.Account) []model.AccountStatus {
	out := make([]model.AccountStatus, 0, len(accounts))
	for _, acct := range accounts {
		st := m.AccountStatus(acct)
		out = append(out, st)

		if st.Drawdown > m.monitor.PauseDrawdown() {
			m.notifier.Notify(Notification{
				Kind:      NotifyPause,
				AccountID: st.AccountID,
				Platform:  st.Platform,
				Message:   fmt.Sprintf("trading paused on %s: drawdown %.1f%%", st.Platform, st.Drawdown*100),
				Drawdown:  st.Drawdown,
			})
		}
		if st.RiskLevel == model.RiskHigh {
			m.notifier.Notify(Notification{
				Kind:      NotifyAlert,
				AccountID: st.AccountID,
				Platform:  st.Platform,
				Message:   fmt.Sprintf("high risk level detected on %s", st.Platform),
				Drawdown:  st.Drawdown,
			})
		}
	}
	return out
}
