// Package report writes backtest results to disk as JSON, CSV and Parquet.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/shopspring/decimal"

	"tradesim/internal/model"
)

// TradeRecord is the Parquet schema for simulated trades.
type TradeRecord struct {
	ID          string  `parquet:"id"`
	SignalID    string  `parquet:"signal_id"`
	Pair        string  `parquet:"pair"`
	Direction   string  `parquet:"direction"`
	Result      string  `parquet:"result"`
	EntryTime   int64   `parquet:"entry_time,timestamp(millisecond)"` // Unix ms
	ExitTime    int64   `parquet:"exit_time,timestamp(millisecond)"`  // Unix ms
	EntryPrice  float64 `parquet:"entry_price"`
	ExitPrice   float64 `parquet:"exit_price"`
	Profit      float64 `parquet:"profit"`
	Commission  float64 `parquet:"commission"`
	NetProfit   float64 `parquet:"net_profit"`
	HoldingTime float64 `parquet:"holding_time"`
	Confidence  float64 `parquet:"confidence"`
}

// ToRecords flattens trades into Parquet rows.
func ToRecords(trades []model.BacktestTrade) []TradeRecord {
	out := make([]TradeRecord, 0, len(trades))
	for _, t := range trades {
		out = append(out, TradeRecord{
			ID:          t.ID,
			SignalID:    t.Signal.ID,
			Pair:        t.Signal.Pair,
			Direction:   string(t.Direction),
			Result:      string(t.Result),
			EntryTime:   t.EntryTime.UnixMilli(),
			ExitTime:    t.ExitTime.UnixMilli(),
			EntryPrice:  t.EntryPrice,
			ExitPrice:   t.ExitPrice,
			Profit:      t.Profit,
			Commission:  t.Commission,
			NetProfit:   t.NetProfit,
			HoldingTime: t.HoldingTime,
			Confidence:  t.Signal.Confidence,
		})
	}
	return out
}

// WriteParquet writes trades to a Parquet file.
func WriteParquet(path string, trades []model.BacktestTrade) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating report directory: %w", err)
	}
	if err := parquet.WriteFile(path, ToRecords(trades)); err != nil {
		return fmt.Errorf("writing parquet %s: %w", path, err)
	}
	return nil
}

// ReadParquet loads trade rows written by WriteParquet.
func ReadParquet(path string) ([]TradeRecord, error) {
	rows, err := parquet.ReadFile[TradeRecord](path)
	if err != nil {
		return nil, fmt.Errorf("reading parquet %s: %w", path, err)
	}
	return rows, nil
}

// WriteJSON writes any value as indented JSON.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating report directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

var tradeHeader = []string{
	"id", "pair", "direction", "result", "entry_time", "exit_time",
	"entry", "exit", "gross_pnl", "commission", "net_pnl", "holding_min",
}

// WriteTradesCSV writes one row per trade. Money columns are rounded to cents.
func WriteTradesCSV(path string, trades []model.BacktestTrade) error {
	rows := make([][]string, 0, len(trades)+1)
	rows = append(rows, tradeHeader)
	for _, t := range trades {
		rows = append(rows, []string{
			t.ID, t.Signal.Pair, string(t.Direction), string(t.Result),
			t.EntryTime.UTC().Format(time.RFC3339), t.ExitTime.UTC().Format(time.RFC3339),
			formatF(t.EntryPrice), formatF(t.ExitPrice),
			money(t.Profit), money(t.Commission), money(t.NetProfit),
			decimal.NewFromFloat(t.HoldingTime).StringFixed(1),
		})
	}
	return writeCSV(path, rows)
}

// WritePeriodsCSV writes period performance rows.
func WritePeriodsCSV(path string, periods []model.PeriodPerformance) error {
	rows := make([][]string, 0, len(periods)+1)
	rows = append(rows, []string{"period", "trades", "win_rate", "profit", "drawdown_pct"})
	for _, p := range periods {
		rows = append(rows, []string{
			p.Period, strconv.Itoa(p.Trades),
			decimal.NewFromFloat(p.WinRate).StringFixed(2),
			money(p.Profit),
			decimal.NewFromFloat(p.Drawdown).StringFixed(2),
		})
	}
	return writeCSV(path, rows)
}

func writeCSV(path string, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating report directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("writing csv %s: %w", path, err)
	}
	return f.Close()
}

func money(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

func formatF(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
