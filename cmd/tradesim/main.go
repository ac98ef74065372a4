// Package main is the entry point for the tradesim backtesting and risk service.
package main

import (
	"flag"
	"fmt"
	"os"

	"tradesim/internal/app"
	"tradesim/internal/config"
)

func main() {
	configPath := flag.String("config", "config/tradesim.yaml", "path to configuration file")
	mode := flag.String("mode", "backtest", "run mode: backtest, optimize or serve")
	signals := flag.String("signals", "", "path to a JSON array of signals (backtest, optimize)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := app.New(cfg, app.Mode(*mode), *signals).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "tradesim: %v\n", err)
		os.Exit(1)
	}
}
