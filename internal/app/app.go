// Package app wires configuration, logging, the simulation engine, the risk
// manager and the API server into one process lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"

	"tradesim/internal/api"
	"tradesim/internal/config"
	"tradesim/internal/engine"
	"tradesim/internal/logging"
	"tradesim/internal/model"
	"tradesim/internal/report"
	"tradesim/internal/risk"
)

// Mode selects what Run does.
type Mode string

const (
	ModeBacktest Mode = "backtest"
	ModeOptimize Mode = "optimize"
	ModeServe    Mode = "serve"
)

// App is the application lifecycle manager.
type App struct {
	cfg         *config.Config
	mode        Mode
	signalsPath string
	logger      *zap.Logger
}

// New creates a new App instance. signalsPath is required for the backtest
// and optimize modes.
func New(cfg *config.Config, mode Mode, signalsPath string) *App {
	return &App{cfg: cfg, mode: mode, signalsPath: signalsPath}
}

// SetLogger overrides the logger built from configuration.
func (a *App) SetLogger(logger *zap.Logger) {
	a.logger = logger
}

// Run executes the selected mode. SIGINT and SIGTERM cancel optimization
// sweeps and stop the API server.
func (a *App) Run() error {
	log := a.logger
	if log == nil {
		l, err := logging.Build(a.cfg.App.LogLevel, a.cfg.App.LogFile)
		if err != nil {
			return err
		}
		log = l
	}
	defer log.Sync()

	log.Info("starting tradesim",
		zap.String("mode", string(a.mode)),
		zap.String("env", a.cfg.App.Env),
		zap.String("log_level", a.cfg.App.LogLevel),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rm := risk.NewManager(a.cfg.Risk.Parameters, log)
	rm.UseMonitor(risk.NewMonitor(a.cfg.Risk.StatusLevels, a.cfg.Risk.PauseDrawdown, log))

	eng := engine.New(a.cfg, rm)
	eng.SetLogger(log)

	var err error
	switch a.mode {
	case ModeBacktest:
		err = a.runBacktest(eng, log)
	case ModeOptimize:
		err = a.runOptimize(ctx, eng, log)
	case ModeServe:
		srv := api.NewServer(a.cfg.API.ListenAddress, eng, rm, risk.NewLedger(), log)
		err = srv.Run(ctx)
	default:
		err = fmt.Errorf("unknown mode %q", a.mode)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("fatal_error", zap.Error(err))
		return err
	}
	log.Info("tradesim stopped")
	return nil
}

func (a *App) runBacktest(eng *engine.Engine, log *zap.Logger) error {
	signals, err := LoadSignals(a.signalsPath)
	if err != nil {
		return err
	}

	res := eng.Backtest(signals, a.cfg.Backtest.Model())
	periods := engine.AnalyzeByPeriod(res, model.Granularity(a.cfg.Export.Period))

	written, err := report.Export(a.cfg.Export.Dir, res, periods, report.Options{
		CSV:     a.cfg.Export.CSV,
		Parquet: a.cfg.Export.Parquet,
	})
	log.Info("report_written", zap.Strings("files", written))
	return err
}

func (a *App) runOptimize(ctx context.Context, eng *engine.Engine, log *zap.Logger) error {
	signals, err := LoadSignals(a.signalsPath)
	if err != nil {
		return err
	}

	ranges := engine.ParameterRanges{
		RiskPerTrade:  a.cfg.Optimizer.RiskPerTrade,
		MinConfidence: a.cfg.Optimizer.MinConfidence,
		Commission:    a.cfg.Optimizer.Commission,
	}
	res, runErr := eng.Optimize(ctx, signals, a.cfg.Backtest.Model(), ranges)
	if runErr != nil {
		log.Warn("optimizer_interrupted", zap.Error(runErr), zap.Int("evaluated", len(res.AllResults)))
	}

	if err := report.WriteJSON(filepath.Join(a.cfg.Export.Dir, "optimization.json"), res); err != nil {
		return err
	}
	if res.Found {
		log.Info("optimizer_best",
			zap.String("run_id", res.RunID),
			zap.Float64("risk_per_trade", res.BestParams.RiskPerTrade),
			zap.Float64("min_confidence", res.BestParams.MinConfidence),
			zap.Float64("commission", res.BestParams.Commission),
			zap.Float64("score", res.BestScore),
		)
	}
	return runErr
}

// LoadSignals reads a JSON array of signals.
func LoadSignals(path string) ([]model.Signal, error) {
	if path == "" {
		return nil, errors.New("signals file is required")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening signals file: %w", err)
	}
	defer f.Close()
	return DecodeSignals(f)
}
