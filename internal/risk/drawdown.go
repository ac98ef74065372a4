package risk

// DrawdownTracker follows peak balance over a sequence of balances observed
// in order. It is the single drawdown algorithm shared by backtest reporting
// and live risk checks.
type DrawdownTracker struct {
	peak    float64
	current float64
	max     float64
}

// NewDrawdownTracker starts tracking from an initial balance.
func NewDrawdownTracker(start float64) *DrawdownTracker {
	return &DrawdownTracker{peak: start}
}

// Observe records the next balance. A new high resets the current drawdown;
// anything below the peak extends it.
func (t *DrawdownTracker) Observe(balance float64) {
	if balance > t.peak {
		t.peak = balance
		t.current = 0
		return
	}
	if t.peak <= 0 {
		return
	}
	t.current = (t.peak - balance) / t.peak
	if t.current > t.max {
		t.max = t.current
	}
}

// Peak returns the highest balance seen so far.
func (t *DrawdownTracker) Peak() float64 { return t.peak }

// Current returns the drawdown from peak at the last observation, as a fraction.
func (t *DrawdownTracker) Current() float64 { return t.current }

// Max returns the largest drawdown seen so far, as a fraction.
func (t *DrawdownTracker) Max() float64 { return t.max }

// DrawdownStats is the outcome of replaying a P&L history.
type DrawdownStats struct {
	Current float64 `json:"current"`
	Maximum float64 `json:"maximum"`
	Peak    float64 `json:"peak"`
}

// ReplayDrawdown applies each realized P&L in order to a starting balance.
func ReplayDrawdown(start float64, pnl []float64) DrawdownStats {
	t := NewDrawdownTracker(start)
	balance := start
	for _, v := range pnl {
		balance += v
		t.Observe(balance)
	}
	return DrawdownStats{Current: t.Current(), Maximum: t.Max(), Peak: t.Peak()}
}
