package risk

import (
	"errors"
	"sort"
	"sync"
	"time"

	"tradesim/internal/model"
)

// ErrUnknownAccount is returned for operations on an account never registered.
var ErrUnknownAccount = errors.New("unknown account")

// maxHistory caps the closed-trade history kept per account.
const maxHistory = 4096

// Ledger is a thread-safe in-memory account book. It turns registered
// balances, opened positions and realized trades into Account snapshots for
// the risk checks.
type Ledger struct {
	mu       sync.RWMutex
	accounts map[string]model.Account
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{accounts: make(map[string]model.Account)}
}

// SetAccount registers or replaces an account. A zero StartingBalance is set
// to the current balance so drawdown is measured from registration.
func (l *Ledger) SetAccount(acct model.Account) {
	if acct.StartingBalance == 0 {
		acct.StartingBalance = acct.Balance
	}
	if acct.Equity == 0 {
		acct.Equity = acct.Balance
	}
	acct.History = cloneHistory(acct.History)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.accounts[acct.ID] = acct
}

// RecordOpen counts a newly opened position against the account.
func (l *Ledger) RecordOpen(accountID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	acct, ok := l.accounts[accountID]
	if !ok {
		return ErrUnknownAccount
	}
	acct.OpenPositions++
	l.accounts[accountID] = acct
	return nil
}

// RecordClose realizes a trade: the position count drops, balance, equity and
// free margin move by the P&L and the trade joins the history.
func (l *Ledger) RecordClose(accountID string, trade model.ClosedTrade) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	acct, ok := l.accounts[accountID]
	if !ok {
		return ErrUnknownAccount
	}
	if acct.OpenPositions > 0 {
		acct.OpenPositions--
	}
	acct.Balance += trade.ProfitLoss
	acct.Equity += trade.ProfitLoss
	acct.MarginAvailable += trade.ProfitLoss

	acct.History = append(acct.History, trade)
	if n := len(acct.History) - maxHistory; n > 0 {
		for _, t := range acct.History[:n] {
			acct.StartingBalance += t.ProfitLoss
		}
		acct.History = acct.History[n:]
	}
	l.accounts[accountID] = acct
	return nil
}

// Account returns a copy of one account.
func (l *Ledger) Account(accountID string) (model.Account, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	acct, ok := l.accounts[accountID]
	if !ok {
		return model.Account{}, false
	}
	acct.History = cloneHistory(acct.History)
	return acct, true
}

// Accounts returns copies of all accounts ordered by ID.
func (l *Ledger) Accounts() []model.Account {
	l.mu.RLock()
	out := make([]model.Account, 0, len(l.accounts))
	for _, acct := range l.accounts {
		acct.History = cloneHistory(acct.History)
		out = append(out, acct)
	}
	l.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// PurgeHistory removes closed trades older than the given time. The starting
// balance absorbs the purged P&L so replayed drawdown still ends at balance.
func (l *Ledger) PurgeHistory(olderThan time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, acct := range l.accounts {
		kept := acct.History[:0]
		for _, t := range acct.History {
			if t.ClosedAt.Before(olderThan) {
				acct.StartingBalance += t.ProfitLoss
				continue
			}
			kept = append(kept, t)
		}
		acct.History = kept
		l.accounts[id] = acct
	}
}

func cloneHistory(h []model.ClosedTrade) []model.ClosedTrade {
	if h == nil {
		return nil
	}
	out := make([]model.ClosedTrade, len(h))
	copy(out, h)
	return out
}
