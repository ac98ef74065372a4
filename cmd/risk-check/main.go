// risk-check is a diagnostic tool that loads one account and one signal from
// JSON files and prints the sizing, scoring and validation the risk manager
// produces for them.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"tradesim/internal/config"
	"tradesim/internal/engine"
	"tradesim/internal/model"
	"tradesim/internal/risk"
)

func main() {
	configPath := flag.String("config", "", "optional configuration file for risk parameters")
	accountPath := flag.String("account", "account.json", "account JSON file")
	signalPath := flag.String("signal", "signal.json", "signal JSON file")
	flag.Parse()

	params := model.DefaultRiskParameters()
	levels := config.DefaultStatusLevels()
	pause := config.DefaultPauseDrawdown
	if *configPath != "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[risk-check] %v\n", err)
			os.Exit(1)
		}
		params, levels, pause = cfg.Risk.Parameters, cfg.Risk.StatusLevels, cfg.Risk.PauseDrawdown
	}

	var acct model.Account
	var sig model.Signal
	if err := readJSON(*accountPath, &acct); err != nil {
		fmt.Fprintf(os.Stderr, "[risk-check] %v\n", err)
		os.Exit(1)
	}
	if err := readJSON(*signalPath, &sig); err != nil {
		fmt.Fprintf(os.Stderr, "[risk-check] %v\n", err)
		os.Exit(1)
	}

	rm := risk.NewManager(params, zap.NewNop())
	rm.UseMonitor(risk.NewMonitor(levels, pause, zap.NewNop()))

	st := rm.AccountStatus(acct)
	fmt.Printf("[risk-check] Account %s (%s)  Bal=%.2f  Eq=%.2f  DD=%.2f%%  DailyPnL=%.2f  Level=%s  CanTrade=%v\n",
		st.AccountID, st.Platform, st.Balance, st.Equity, st.Drawdown*100, st.DailyPnL, st.RiskLevel, st.CanTrade)

	tr := rm.EvaluateTrade(sig, acct.Balance, st.Drawdown, acct.OpenPositions)
	fmt.Printf("[risk-check] Signal %s %s %s  Conf=%.0f  Score=%.0f  Level=%s  R:R=%.2f  -> %s\n",
		sig.ID, sig.Pair, sig.Direction, sig.Confidence, tr.RiskScore, tr.RiskLevel, tr.RiskRewardRatio, tr.Recommendation)
	fmt.Printf("[risk-check] Success probability %.2f\n", engine.SuccessProbability(sig))

	v := rm.Validate(acct, sig)
	fmt.Println("---")
	for _, c := range v.RiskChecks {
		mark := "PASS"
		if !c.Passed {
			mark = "FAIL"
		}
		fmt.Printf("%-4s  %-8s %-18s %s\n", mark, c.Severity, c.Name, c.Message)
	}
	fmt.Println("---")
	fmt.Printf("[risk-check] CanTrade=%v  RecommendedSize=%.2f  Warnings=%d\n", v.CanTrade, v.RecommendedSize, len(v.Warnings))

	for _, r := range rm.Recommendations(model.PerformanceMetrics{
		Balance:      acct.Balance,
		WinRate:      winRate(acct.History),
		MaxDrawdown:  st.Drawdown,
		ActiveTrades: acct.OpenPositions,
	}) {
		fmt.Printf("  * %s\n", r)
	}

	if !v.CanTrade {
		os.Exit(2)
	}
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// winRate of realized trades. An empty history is not treated as a weak record.
func winRate(history []model.ClosedTrade) float64 {
	if len(history) == 0 {
		return 100
	}
	wins := 0
	for _, t := range history {
		if t.ProfitLoss > 0 {
			wins++
		}
	}
	return float64(wins) / float64(len(history)) * 100
}
