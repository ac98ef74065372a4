package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"go.uber.org/multierr"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tradesim.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
backtest:
  startDate: 2024-01-01T00:00:00Z
  endDate: 2024-06-30T00:00:00Z
  pairs: [EURUSD, GBPUSD]
  minConfidence: 75
risk:
  parameters:
    maxRiskPerTrade: 0.01
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.App.LogLevel != "info" || cfg.App.Env != "dev" {
		t.Errorf("app defaults = %+v", cfg.App)
	}
	if cfg.Backtest.InitialBalance != 10000 || cfg.Backtest.RiskPerTrade != 0.02 {
		t.Errorf("backtest defaults = %+v", cfg.Backtest)
	}

	p := cfg.Risk.Parameters
	if p.MaxRiskPerTrade != 0.01 {
		t.Errorf("override lost: maxRiskPerTrade = %v", p.MaxRiskPerTrade)
	}
	if p.MaxDailyRisk != 0.10 || p.MaxDrawdown != 0.15 || p.MaxConcurrentTrades != 5 || p.MinConfidenceLevel != 75 {
		t.Errorf("risk defaults = %+v", p)
	}
	if len(cfg.Risk.StatusLevels) != 2 || cfg.Risk.PauseDrawdown != DefaultPauseDrawdown {
		t.Errorf("status defaults = %+v", cfg.Risk)
	}

	if len(cfg.Optimizer.RiskPerTrade) != 1 || cfg.Optimizer.MinConfidence[0] != 75 {
		t.Errorf("optimizer ranges = %+v", cfg.Optimizer)
	}
	if cfg.Optimizer.Workers != runtime.NumCPU() {
		t.Errorf("workers = %d", cfg.Optimizer.Workers)
	}
	if cfg.API.ListenAddress != ":8080" || cfg.Export.Dir != "out" || cfg.Export.Period != "daily" {
		t.Errorf("api/export defaults = %+v %+v", cfg.API, cfg.Export)
	}

	m := cfg.Backtest.Model()
	if len(m.Pairs) != 2 || m.StartDate.Year() != 2024 || m.EndDate.Month() != 6 {
		t.Errorf("model = %+v", m)
	}
	m.Pairs[0] = "USDJPY"
	if cfg.Backtest.Pairs[0] != "EURUSD" {
		t.Error("Model shares the pairs slice")
	}
}

func TestLoadReportsAllProblems(t *testing.T) {
	path := writeConfig(t, `
app:
  logLevel: chatty
backtest:
  startDate: 2024-06-30T00:00:00Z
  endDate: 2024-01-01T00:00:00Z
optimizer:
  riskPerTrade: [0.01, 2]
export:
  period: hourly
`)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected validation errors")
	}
	msg := err.Error()
	for _, want := range []string{"logLevel", "pairs", "startDate", "optimizer.riskPerTrade", "export.period"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error %q does not mention %s", msg, want)
		}
	}
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := &Config{}
	cfg.setDefaults()
	cfg.Backtest.Pairs = []string{"EURUSD"}
	cfg.Risk.StatusLevels = []StatusLevel{{Name: "HIGH", Drawdown: 0.1}, {Name: "", Drawdown: 0.05}}

	err := cfg.Validate()
	if n := len(multierr.Errors(err)); n != 2 {
		t.Fatalf("got %d errors (%v), want 2", n, err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected an error")
	}
}
