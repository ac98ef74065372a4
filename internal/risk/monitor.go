package risk

import (
	"sync"

	"go.uber.org/zap"

	"tradesim/internal/config"
	"tradesim/internal/model"
)

// Monitor classifies accounts into status levels from drawdown and daily
// loss, remembering the last level per account so transitions are logged once.
type Monitor struct {
	levels        []config.StatusLevel
	pauseDrawdown float64
	logger        *zap.Logger

	mu   sync.Mutex
	prev map[string]model.RiskLevel
}

// NewMonitor creates a monitor from status levels ordered lowest first.
func NewMonitor(levels []config.StatusLevel, pauseDrawdown float64, logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		levels:        levels,
		pauseDrawdown: pauseDrawdown,
		logger:        logger,
		prev:          make(map[string]model.RiskLevel),
	}
}

// PauseDrawdown returns the drawdown above which trading should be paused.
func (m *Monitor) PauseDrawdown() float64 {
	return m.pauseDrawdown
}

// Level returns the status level for an account. drawdown is a fraction of
// peak; dailyPnL is today's realized result in account currency.
func (m *Monitor) Level(accountID string, drawdown, dailyPnL, balance float64) model.RiskLevel {
	dailyLoss := 0.0
	if dailyPnL < 0 && balance > 0 {
		dailyLoss = -dailyPnL / balance
	}

	level := model.RiskLow
	// Walk levels in reverse (highest threshold first)
	for i := len(m.levels) - 1; i >= 0; i-- {
		lvl := m.levels[i]
		if drawdown > lvl.Drawdown || dailyLoss > lvl.DailyLoss {
			level = model.RiskLevel(lvl.Name)
			break
		}
	}

	m.mu.Lock()
	prev, seen := m.prev[accountID]
	if !seen {
		prev = model.RiskLow
	}
	m.prev[accountID] = level
	m.mu.Unlock()

	if level != prev {
		m.logger.Warn("risk_level_changed",
			zap.String("account", accountID),
			zap.String("from", string(prev)),
			zap.String("to", string(level)),
			zap.Float64("drawdown", drawdown),
			zap.Float64("daily_loss", dailyLoss),
		)
	}

	return level
}
