// Package risk implements position sizing, trade risk scoring, the trade
// validation gate and account-level drawdown and daily-risk accounting.
package risk

import (
	"math"
	"time"

	"go.uber.org/zap"

	"tradesim/internal/config"
	"tradesim/internal/model"
)

// Manager applies a fixed risk policy to sizing, scoring and validation.
// A Manager is safe for concurrent use once configured.
type Manager struct {
	params   model.RiskParameters
	monitor  *Monitor
	notifier Notifier
	now      func() time.Time
	logger   *zap.Logger
}

// NewManager creates a risk manager. Unset parameters take their defaults.
func NewManager(params model.RiskParameters, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		params:   params.WithDefaults(),
		monitor:  NewMonitor(config.DefaultStatusLevels(), config.DefaultPauseDrawdown, logger),
		notifier: NewLogNotifier(logger),
		now:      time.Now,
		logger:   logger,
	}
}

// Parameters returns the active risk policy.
func (m *Manager) Parameters() model.RiskParameters {
	return m.params
}

// UseMonitor replaces the account status monitor.
func (m *Manager) UseMonitor(mon *Monitor) {
	if mon != nil {
		m.monitor = mon
	}
}

// SetNotifier sets the destination for pause and alert notifications.
func (m *Manager) SetNotifier(n Notifier) {
	if n != nil {
		m.notifier = n
	}
}

// SetClock overrides the time source used for daily accounting.
func (m *Manager) SetClock(now func() time.Time) {
	if now != nil {
		m.now = now
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
