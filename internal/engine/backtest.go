package engine

import (
	"math"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tradesim/internal/model"
	"tradesim/internal/risk"
)

// Backtester replays a signal sequence through an outcome model and
// aggregates the resulting trades.
type Backtester struct {
	model  OutcomeModel
	logger *zap.Logger
}

// NewBacktester creates a backtester around an outcome model.
func NewBacktester(m OutcomeModel, logger *zap.Logger) *Backtester {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Backtester{model: m, logger: logger}
}

// Run executes a backtest synchronously. An invalid config yields a zero
// result; malformed signals are skipped.
func (b *Backtester) Run(signals []model.Signal, cfg model.BacktestConfig) model.BacktestResult {
	runID := uuid.NewString()

	if err := cfg.Validate(); err != nil {
		b.logger.Warn("backtest_config_invalid",
			zap.String("run_id", runID),
			zap.Error(err),
		)
		return model.BacktestResult{Trades: []model.BacktestTrade{}}
	}

	eligible := FilterSignals(signals, cfg)

	trades := make([]model.BacktestTrade, 0, len(eligible))
	balance := cfg.InitialBalance
	dd := risk.NewDrawdownTracker(cfg.InitialBalance)
	var wins, losses, maxWins, maxLosses int

	for _, sig := range eligible {
		trade, ok := b.model.Simulate(sig, balance, cfg)
		if !ok {
			continue
		}
		trades = append(trades, trade)
		balance += trade.NetProfit
		dd.Observe(balance)

		if trade.Result == model.OutcomeWin {
			wins++
			losses = 0
			maxWins = max(maxWins, wins)
		} else {
			losses++
			wins = 0
			maxLosses = max(maxLosses, losses)
		}
	}

	res := computeStats(trades, cfg.InitialBalance)
	res.MaxDrawdown = dd.Max() * 100
	res.ConsecutiveWins = maxWins
	res.ConsecutiveLosses = maxLosses

	b.logger.Info("backtest_completed",
		zap.String("run_id", runID),
		zap.Int("signals", len(signals)),
		zap.Int("eligible", len(eligible)),
		zap.Int("trades", res.TotalTrades),
		zap.Float64("win_rate", res.WinRate),
		zap.Float64("net_profit", res.NetProfit),
		zap.Float64("max_drawdown", res.MaxDrawdown),
	)

	return res
}

// FilterSignals keeps well-formed signals inside the run window that meet
// the confidence floor and trade a configured pair. Order is preserved.
func FilterSignals(signals []model.Signal, cfg model.BacktestConfig) []model.Signal {
	out := make([]model.Signal, 0, len(signals))
	for _, sig := range signals {
		if !sig.Valid() {
			continue
		}
		if sig.Timestamp.Before(cfg.StartDate) || sig.Timestamp.After(cfg.EndDate) {
			continue
		}
		if sig.Confidence < cfg.MinConfidence || !cfg.HasPair(sig.Pair) {
			continue
		}
		out = append(out, sig)
	}
	return out
}

// computeStats fills every aggregate except drawdown and streaks.
func computeStats(trades []model.BacktestTrade, initialBalance float64) model.BacktestResult {
	res := model.BacktestResult{
		TotalTrades: len(trades),
		Trades:      trades,
	}
	if len(trades) == 0 {
		return res
	}

	returns := make([]float64, 0, len(trades))
	largestWin, largestLoss := math.Inf(-1), math.Inf(1)
	for _, t := range trades {
		res.NetProfit += t.NetProfit
		if initialBalance > 0 {
			returns = append(returns, t.NetProfit/initialBalance)
		}
		if t.Result == model.OutcomeWin {
			res.WinningTrades++
			res.TotalProfit += t.Profit
			largestWin = math.Max(largestWin, t.Profit)
		} else {
			res.LosingTrades++
			res.TotalLoss += t.Profit
			largestLoss = math.Min(largestLoss, t.Profit)
		}
	}
	res.TotalLoss = math.Abs(res.TotalLoss)

	res.WinRate = float64(res.WinningTrades) / float64(res.TotalTrades) * 100
	if res.WinningTrades > 0 {
		res.AvgWin = res.TotalProfit / float64(res.WinningTrades)
		res.LargestWin = largestWin
	}
	if res.LosingTrades > 0 {
		res.AvgLoss = res.TotalLoss / float64(res.LosingTrades)
		res.LargestLoss = largestLoss
	}
	if res.TotalLoss > 0 {
		res.ProfitFactor = res.TotalProfit / res.TotalLoss
	}
	res.SharpeRatio = sharpe(returns)

	return res
}

// sharpe is mean over population standard deviation, 0 without variance.
func sharpe(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	m := mean(returns)
	sd := stdDev(returns, m)
	if sd == 0 || !finite(sd) {
		return 0
	}
	return m / sd
}
