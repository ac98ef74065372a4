package risk

import (
	"errors"
	"math"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"tradesim/internal/config"
	"tradesim/internal/model"
)

var testNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func newTestManager(t *testing.T, params model.RiskParameters) *Manager {
	t.Helper()
	m := NewManager(params, zaptest.NewLogger(t))
	m.SetClock(func() time.Time { return testNow })
	return m
}

func goodSignal() model.Signal {
	return model.Signal{
		ID:          "sig-1",
		Pair:        "EURUSD",
		Direction:   model.DirectionCall,
		Confidence:  80,
		EntryPrice:  1.0,
		TargetPrice: 1.03,
		StopLoss:    0.99,
		Expiration:  60,
		Timestamp:   testNow,
	}
}

func healthyAccount() model.Account {
	return model.Account{
		ID:              "acct-1",
		Platform:        "OANDA",
		Balance:         10000,
		StartingBalance: 10000,
		Equity:          10000,
		MarginUsed:      1000,
		MarginAvailable: 9000,
		OpenPositions:   1,
	}
}

func TestDrawdownTracker(t *testing.T) {
	tr := NewDrawdownTracker(10000)
	for _, b := range []float64{10000, 10500, 10200, 9800, 10100} {
		tr.Observe(b)
	}
	if !approx(tr.Peak(), 10500) {
		t.Fatalf("peak = %v, want 10500", tr.Peak())
	}
	if want := 700.0 / 10500; !approx(tr.Max(), want) {
		t.Fatalf("max = %v, want %v", tr.Max(), want)
	}
	if want := 400.0 / 10500; !approx(tr.Current(), want) {
		t.Fatalf("current = %v, want %v", tr.Current(), want)
	}
}

func TestReplayDrawdown(t *testing.T) {
	st := ReplayDrawdown(10000, []float64{500, -300, -400, 300})
	if want := 700.0 / 10500; !approx(st.Maximum, want) {
		t.Fatalf("maximum = %v, want %v", st.Maximum, want)
	}
	if !approx(st.Peak, 10500) {
		t.Fatalf("peak = %v", st.Peak)
	}

	empty := ReplayDrawdown(10000, nil)
	if empty.Current != 0 || empty.Maximum != 0 {
		t.Fatalf("empty replay = %+v, want zero drawdown", empty)
	}
}

func TestPositionSize(t *testing.T) {
	tests := []struct {
		name       string
		params     model.RiskParameters
		balance    float64
		winRate    float64
		avgWin     float64
		avgLoss    float64
		confidence float64
		wantAmount float64
	}{
		{"capped by max risk", model.RiskParameters{}, 10000, 90, 100, 10, 100, 200},
		{"kelly below cap", model.RiskParameters{MaxRiskPerTrade: 0.2}, 10000, 60, 100, 100, 80, 800},
		{"negative edge", model.RiskParameters{MaxRiskPerTrade: 0.2}, 10000, 30, 100, 100, 80, 0},
		{"no losses on record", model.RiskParameters{}, 10000, 60, 100, 0, 80, 0},
		{"empty balance", model.RiskParameters{}, 0, 60, 100, 100, 80, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestManager(t, tt.params)
			got := m.PositionSize(tt.balance, tt.winRate, tt.avgWin, tt.avgLoss, tt.confidence)
			if !approx(got.Amount, tt.wantAmount) {
				t.Fatalf("amount = %v, want %v", got.Amount, tt.wantAmount)
			}
		})
	}
}

func TestPositionSizeFields(t *testing.T) {
	m := newTestManager(t, model.RiskParameters{MaxRiskPerTrade: 0.2})
	got := m.PositionSize(10000, 60, 100, 100, 80)
	if !approx(got.Percentage, 8) {
		t.Errorf("percentage = %v, want 8", got.Percentage)
	}
	if !approx(got.RiskAmount, 12) {
		t.Errorf("risk amount = %v, want 12", got.RiskAmount)
	}
	if !approx(got.KellyPercentage, 20) {
		t.Errorf("kelly = %v, want 20", got.KellyPercentage)
	}
}

func TestPositionSizeNeverExceedsCap(t *testing.T) {
	m := newTestManager(t, model.RiskParameters{})
	limit := 10000 * m.Parameters().MaxRiskPerTrade
	for wr := 0.0; wr <= 100; wr += 5 {
		for conf := 0.0; conf <= 100; conf += 10 {
			for _, ratio := range []float64{0.5, 1, 2, 5, 20} {
				got := m.PositionSize(10000, wr, 100*ratio, 100, conf)
				if got.Amount < 0 || got.Amount > limit+1e-9 {
					t.Fatalf("wr=%v conf=%v ratio=%v: amount %v outside [0,%v]", wr, conf, ratio, got.Amount, limit)
				}
			}
		}
	}
}

func TestEvaluateTrade(t *testing.T) {
	m := newTestManager(t, model.RiskParameters{})

	calm := goodSignal()
	calm.Confidence = 90
	calm.MLFeatures.Volatility = 0.005
	calm.MLFeatures.TimeFeatures.IsMarketOpen = true
	calm.TechnicalIndicators.ADX = 35

	stormy := goodSignal()
	stormy.Confidence = 50
	stormy.MLFeatures.Volatility = 0.1
	stormy.TechnicalIndicators.ADX = 10

	tests := []struct {
		name     string
		sig      model.Signal
		drawdown float64
		active   int
		level    model.RiskLevel
		score    float64
		rec      model.Recommendation
	}{
		{"favourable", calm, 0.01, 0, model.RiskLow, 100, model.RecommendTake},
		{"hostile", stormy, 0.2, 5, model.RiskHigh, 0, model.RecommendAvoid},
		{"middling", goodSignal(), 0.1, 3, model.RiskMedium, 45, model.RecommendReduce},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := m.EvaluateTrade(tt.sig, 10000, tt.drawdown, tt.active)
			if got.RiskLevel != tt.level {
				t.Errorf("level = %s, want %s", got.RiskLevel, tt.level)
			}
			if !approx(got.RiskScore, tt.score) {
				t.Errorf("score = %v, want %v", got.RiskScore, tt.score)
			}
			if got.Recommendation != tt.rec {
				t.Errorf("recommendation = %s, want %s", got.Recommendation, tt.rec)
			}
		})
	}
}

func TestEvaluateTradeLowRewardReduces(t *testing.T) {
	m := newTestManager(t, model.RiskParameters{})
	sig := goodSignal()
	sig.Confidence = 90
	sig.MLFeatures.TimeFeatures.IsMarketOpen = true
	sig.TargetPrice = 1.005

	got := m.EvaluateTrade(sig, 10000, 0, 0)
	if got.RiskLevel != model.RiskLow {
		t.Fatalf("level = %s, want LOW", got.RiskLevel)
	}
	if got.Recommendation != model.RecommendReduce {
		t.Fatalf("recommendation = %s, want REDUCE for R:R %.2f", got.Recommendation, got.RiskRewardRatio)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*model.Account, *model.Signal)
		canTrade  bool
		warnings  int
		failCheck string
	}{
		{"all checks pass", func(*model.Account, *model.Signal) {}, true, 0, ""},
		{"low confidence", func(_ *model.Account, s *model.Signal) { s.Confidence = 60 }, false, 0, CheckConfidence},
		{"poor reward", func(_ *model.Account, s *model.Signal) { s.TargetPrice = 1.005 }, true, 1, CheckRiskReward},
		{"too many positions", func(a *model.Account, _ *model.Signal) { a.OpenPositions = 5 }, true, 1, CheckOpenPositions},
		{"no free margin", func(a *model.Account, _ *model.Signal) { a.MarginAvailable = 10 }, false, 0, CheckMargin},
		{"deep drawdown", func(a *model.Account, _ *model.Signal) {
			a.StartingBalance = 12000
			a.Balance, a.Equity = 10000, 10000
			a.History = []model.ClosedTrade{{ClosedAt: testNow.AddDate(0, 0, -3), ProfitLoss: -2000}}
		}, false, 0, CheckDrawdown},
		{"daily loss budget spent", func(a *model.Account, _ *model.Signal) {
			a.StartingBalance = 0
			a.History = []model.ClosedTrade{{ClosedAt: testNow.Add(-time.Hour), ProfitLoss: -1000}}
		}, false, 0, CheckDailyRisk},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestManager(t, model.RiskParameters{})
			acct, sig := healthyAccount(), goodSignal()
			tt.mutate(&acct, &sig)

			v := m.Validate(acct, sig)
			if v.CanTrade != tt.canTrade {
				t.Fatalf("canTrade = %v, want %v (checks %+v)", v.CanTrade, tt.canTrade, v.RiskChecks)
			}
			if len(v.RiskChecks) != 6 {
				t.Fatalf("got %d checks, want 6", len(v.RiskChecks))
			}
			if len(v.Warnings) != tt.warnings {
				t.Fatalf("warnings = %v, want %d", v.Warnings, tt.warnings)
			}
			for _, c := range v.RiskChecks {
				failed := c.Name == tt.failCheck
				if c.Passed == failed {
					t.Errorf("check %q passed = %v", c.Name, c.Passed)
				}
				if c.Passed && c.Severity != model.SeverityInfo {
					t.Errorf("passed check %q has severity %s", c.Name, c.Severity)
				}
			}

			// canTrade is false exactly when an error-severity check failed.
			blocked := false
			for _, c := range v.RiskChecks {
				if !c.Passed && c.Severity == model.SeverityError {
					blocked = true
				}
			}
			if v.CanTrade == blocked {
				t.Fatalf("canTrade %v inconsistent with checks", v.CanTrade)
			}
		})
	}
}

func TestValidateRecommendedSizeWithoutHistory(t *testing.T) {
	m := newTestManager(t, model.RiskParameters{MaxRiskPerTrade: 0.2})
	v := m.Validate(healthyAccount(), goodSignal())
	// 50% win rate, 250 avg win, 150 avg loss -> 20% raw, 10% half-Kelly, x0.8.
	if !approx(v.RecommendedSize, 800) {
		t.Fatalf("recommended size = %v, want 800", v.RecommendedSize)
	}
}

func TestCurrentDrawdown(t *testing.T) {
	m := newTestManager(t, model.RiskParameters{})
	acct := model.Account{
		Balance:         9800,
		StartingBalance: 10000,
		History: []model.ClosedTrade{
			{ClosedAt: testNow.AddDate(0, 0, -3), ProfitLoss: 500},
			{ClosedAt: testNow.AddDate(0, 0, -2), ProfitLoss: -300},
			{ClosedAt: testNow.AddDate(0, 0, -1), ProfitLoss: -400},
		},
	}
	if want := 700.0 / 10500; !approx(m.CurrentDrawdown(acct), want) {
		t.Fatalf("drawdown = %v, want %v", m.CurrentDrawdown(acct), want)
	}

	// Without a starting balance the history is unwound from the balance.
	acct.StartingBalance = 0
	if want := 700.0 / 10500; !approx(m.CurrentDrawdown(acct), want) {
		t.Fatalf("derived drawdown = %v, want %v", m.CurrentDrawdown(acct), want)
	}
}

func TestCheckDailyRisk(t *testing.T) {
	m := newTestManager(t, model.RiskParameters{})
	history := []model.ClosedTrade{
		{ClosedAt: testNow.Add(-2 * time.Hour), ProfitLoss: -400},
		{ClosedAt: testNow.Add(-time.Hour), ProfitLoss: 250},
		{ClosedAt: testNow.AddDate(0, 0, -1), ProfitLoss: -5000},
	}
	got := m.CheckDailyRisk(history, 10000)
	if !got.CanTrade || !approx(got.RiskUsed, 4) {
		t.Fatalf("got %+v, want tradable at 4%%", got)
	}

	history = append(history, model.ClosedTrade{ClosedAt: testNow, ProfitLoss: -600})
	got = m.CheckDailyRisk(history, 10000)
	if got.CanTrade || got.Reason == "" {
		t.Fatalf("got %+v, want blocked at the 10%% limit", got)
	}
}

type recordingNotifier struct {
	got []Notification
}

func (r *recordingNotifier) Notify(n Notification) { r.got = append(r.got, n) }

func TestAccountStatusLevels(t *testing.T) {
	tests := []struct {
		name    string
		history []model.ClosedTrade
		balance float64
		level   model.RiskLevel
	}{
		{"calm", nil, 10000, model.RiskLow},
		{"medium drawdown", []model.ClosedTrade{{ClosedAt: testNow.AddDate(0, 0, -2), ProfitLoss: -600}}, 9400, model.RiskMedium},
		{"high drawdown", []model.ClosedTrade{{ClosedAt: testNow.AddDate(0, 0, -2), ProfitLoss: -1200}}, 8800, model.RiskHigh},
		{"medium daily loss", []model.ClosedTrade{
			{ClosedAt: testNow.AddDate(0, 0, -2), ProfitLoss: 300},
			{ClosedAt: testNow.Add(-time.Hour), ProfitLoss: -300},
		}, 10000, model.RiskMedium},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestManager(t, model.RiskParameters{})
			acct := healthyAccount()
			acct.Balance, acct.Equity = tt.balance, tt.balance
			acct.History = tt.history

			st := m.AccountStatus(acct)
			if st.RiskLevel != tt.level {
				t.Fatalf("level = %s, want %s (drawdown %v, daily %v)", st.RiskLevel, tt.level, st.Drawdown, st.DailyPnL)
			}
		})
	}
}

func TestMonitorAccountsNotifies(t *testing.T) {
	m := newTestManager(t, model.RiskParameters{})
	rec := &recordingNotifier{}
	m.SetNotifier(rec)

	healthy := healthyAccount()
	broken := healthyAccount()
	broken.ID = "acct-2"
	broken.Balance, broken.Equity = 8000, 8000
	broken.History = []model.ClosedTrade{{ClosedAt: testNow.AddDate(0, 0, -5), ProfitLoss: -2000}}

	statuses := m.MonitorAccounts([]model.Account{healthy, broken})
	if len(statuses) != 2 {
		t.Fatalf("got %d statuses", len(statuses))
	}
	if !statuses[0].CanTrade {
		t.Errorf("healthy account cannot trade: %+v", statuses[0])
	}
	if statuses[1].CanTrade || statuses[1].RiskLevel != model.RiskHigh {
		t.Errorf("broken account status = %+v", statuses[1])
	}
	if len(rec.got) != 2 || rec.got[0].Kind != NotifyPause || rec.got[1].Kind != NotifyAlert {
		t.Fatalf("notifications = %+v, want pause then alert", rec.got)
	}
	if rec.got[0].AccountID != "acct-2" {
		t.Fatalf("notification for %q", rec.got[0].AccountID)
	}
}

func TestMonitorLogsLevelChangesOnce(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	mon := NewMonitor([]config.StatusLevel{
		{Name: "MEDIUM", Drawdown: 0.05, DailyLoss: 0.02},
		{Name: "HIGH", Drawdown: 0.10, DailyLoss: 0.05},
	}, 0.15, zap.New(core))

	mon.Level("a", 0.12, 0, 10000)
	mon.Level("a", 0.12, 0, 10000)
	mon.Level("a", 0.01, 0, 10000)

	if n := logs.FilterMessage("risk_level_changed").Len(); n != 2 {
		t.Fatalf("logged %d level changes, want 2", n)
	}
}

func TestAdjustParameters(t *testing.T) {
	m := newTestManager(t, model.RiskParameters{})
	adj := m.AdjustParameters(model.PerformanceMetrics{WinRate: 90, SharpeRatio: 2.5, MaxDrawdown: 0.2})
	if !approx(adj.MaxRiskPerTrade, 0.02*1.2*0.7) {
		t.Errorf("max risk = %v", adj.MaxRiskPerTrade)
	}
	if adj.MaxConcurrentTrades != 6 {
		t.Errorf("max concurrent = %d, want 6", adj.MaxConcurrentTrades)
	}
	if adj.MinConfidenceLevel != 80 {
		t.Errorf("min confidence = %v, want 80", adj.MinConfidenceLevel)
	}
	if m.Parameters().MaxRiskPerTrade != 0.02 {
		t.Errorf("manager parameters were modified")
	}

	weak := m.AdjustParameters(model.PerformanceMetrics{WinRate: 50, SharpeRatio: 0.5})
	if !approx(weak.MaxRiskPerTrade, 0.016) || weak.MaxConcurrentTrades != 4 {
		t.Errorf("weak adjustment = %+v", weak)
	}
}

func TestRecommendations(t *testing.T) {
	m := newTestManager(t, model.RiskParameters{})
	if got := m.Recommendations(model.PerformanceMetrics{Balance: 10000, WinRate: 80}); len(got) != 0 {
		t.Fatalf("healthy account got %v", got)
	}
	got := m.Recommendations(model.PerformanceMetrics{Balance: 500, WinRate: 60, MaxDrawdown: 0.2, ActiveTrades: 9})
	if len(got) != 7 {
		t.Fatalf("got %d recommendations, want 7: %v", len(got), got)
	}
}

func TestLedger(t *testing.T) {
	l := NewLedger()
	if err := l.RecordOpen("missing"); !errors.Is(err, ErrUnknownAccount) {
		t.Fatalf("RecordOpen on unknown account: %v", err)
	}

	l.SetAccount(model.Account{ID: "b", Balance: 5000, MarginAvailable: 5000})
	l.SetAccount(model.Account{ID: "a", Balance: 10000, MarginAvailable: 9000})

	if err := l.RecordOpen("a"); err != nil {
		t.Fatal(err)
	}
	old := model.ClosedTrade{ClosedAt: testNow.AddDate(0, 0, -10), ProfitLoss: -200}
	recent := model.ClosedTrade{ClosedAt: testNow, ProfitLoss: 50}
	if err := l.RecordClose("a", old); err != nil {
		t.Fatal(err)
	}
	if err := l.RecordClose("a", recent); err != nil {
		t.Fatal(err)
	}

	acct, ok := l.Account("a")
	if !ok {
		t.Fatal("account a missing")
	}
	if acct.OpenPositions != 0 || !approx(acct.Balance, 9850) || !approx(acct.Equity, 9850) || len(acct.History) != 2 {
		t.Fatalf("account a = %+v", acct)
	}
	if acct.StartingBalance != 10000 {
		t.Fatalf("starting balance = %v", acct.StartingBalance)
	}

	all := l.Accounts()
	if len(all) != 2 || all[0].ID != "a" || all[1].ID != "b" {
		t.Fatalf("accounts not sorted: %+v", all)
	}

	l.PurgeHistory(testNow.AddDate(0, 0, -1))
	acct, _ = l.Account("a")
	if len(acct.History) != 1 || !approx(acct.StartingBalance, 9800) {
		t.Fatalf("after purge: %+v", acct)
	}
	m := newTestManager(t, model.RiskParameters{})
	if dd := m.CurrentDrawdown(acct); dd != 0 {
		t.Fatalf("drawdown after purge = %v, want 0", dd)
	}
}

func TestNewManagerPauseDefault(t *testing.T) {
	m := NewManager(model.RiskParameters{}, nil)
	if got := m.monitor.PauseDrawdown(); got != config.DefaultPauseDrawdown {
		t.Fatalf("pause drawdown = %v, want %v", got, config.DefaultPauseDrawdown)
	}
}
