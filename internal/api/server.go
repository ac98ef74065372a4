// Package api exposes the simulator and the risk engine over a JSON REST API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tradesim/internal/engine"
	"tradesim/internal/model"
	"tradesim/internal/risk"
)

// maxBodyBytes bounds request bodies; signal sets are the largest payloads.
const maxBodyBytes = 32 << 20

// Simulator runs backtests and optimizations.
type Simulator interface {
	Backtest(signals []model.Signal, cfg model.BacktestConfig) model.BacktestResult
	Optimize(ctx context.Context, signals []model.Signal, base model.BacktestConfig, ranges engine.ParameterRanges) (engine.OptimizationResult, error)
	Status() engine.Status
}

// Server is the REST API server.
type Server struct {
	engine  Simulator
	risk    *risk.Manager
	ledger  *risk.Ledger
	logger  *zap.Logger
	mux     *http.ServeMux
	srv     *http.Server
	address string
}

// NewServer creates an API server.
func NewServer(address string, sim Simulator, rm *risk.Manager, ledger *risk.Ledger, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		engine:  sim,
		risk:    rm,
		ledger:  ledger,
		logger:  logger,
		mux:     http.NewServeMux(),
		address: address,
	}
	s.registerRoutes()
	return s
}

// Handler returns the full middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	return corsMiddleware(requestIDMiddleware(s.mux))
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/status", s.handleStatus)
	s.mux.HandleFunc("POST /api/backtest", s.handleBacktest)
	s.mux.HandleFunc("POST /api/optimize", s.handleOptimize)
	s.mux.HandleFunc("POST /api/risk/evaluate", s.handleEvaluate)
	s.mux.HandleFunc("POST /api/risk/size", s.handleSize)
	s.mux.HandleFunc("POST /api/risk/validate", s.handleValidate)
	s.mux.HandleFunc("POST /api/risk/adjust", s.handleAdjust)
	s.mux.HandleFunc("GET /api/accounts", s.handleAccounts)
	s.mux.HandleFunc("PUT /api/accounts", s.handlePutAccount)
	s.mux.HandleFunc("POST /api/accounts/trades", s.handleAccountTrade)
	s.mux.HandleFunc("GET /api/accounts/status", s.handleAccountStatus)
	s.mux.HandleFunc("GET /api/accounts/{id}/daily", s.handleDailyRisk)
	s.mux.HandleFunc("DELETE /api/accounts/history", s.handlePurgeHistory)
}

// Run starts the HTTP server. It blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.srv = &http.Server{
		Addr:              s.address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api_server_started", zap.String("address", s.address))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respond(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	respond(w, r, http.StatusOK, s.engine.Status())
}

// BacktestRequest is the body of POST /api/backtest.
type BacktestRequest struct {
	Signals     []model.Signal       `json:"signals"`
	Config      model.BacktestConfig `json:"config"`
	Granularity model.Granularity    `json:"granularity,omitempty"`
}

// BacktestResponse carries a result and its period breakdown.
type BacktestResponse struct {
	Result  model.BacktestResult      `json:"result"`
	Periods []model.PeriodPerformance `json:"periods"`
}

func (s *Server) handleBacktest(w http.ResponseWriter, r *http.Request) {
	var req BacktestRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Granularity == "" {
		req.Granularity = model.GranularityDaily
	}
	if !req.Granularity.Valid() {
		fail(w, r, http.StatusBadRequest, fmt.Errorf("granularity %q must be daily, weekly or monthly", req.Granularity))
		return
	}

	res := s.engine.Backtest(req.Signals, req.Config)
	s.logger.Info("api_backtest",
		zap.String("request_id", requestID(r)),
		zap.Int("signals", len(req.Signals)),
		zap.Int("trades", res.TotalTrades),
	)
	respond(w, r, http.StatusOK, BacktestResponse{
		Result:  res,
		Periods: engine.AnalyzeByPeriod(res, req.Granularity),
	})
}

// OptimizeRequest is the body of POST /api/optimize.
type OptimizeRequest struct {
	Signals []model.Signal         `json:"signals"`
	Config  model.BacktestConfig   `json:"config"`
	Ranges  engine.ParameterRanges `json:"ranges"`
}

func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	var req OptimizeRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := s.engine.Optimize(r.Context(), req.Signals, req.Config, req.Ranges)
	if err != nil {
		fail(w, r, http.StatusServiceUnavailable, fmt.Errorf("optimization interrupted: %w", err))
		return
	}
	respond(w, r, http.StatusOK, res)
}

// EvaluateRequest is the body of POST /api/risk/evaluate.
type EvaluateRequest struct {
	Signal       model.Signal `json:"signal"`
	Balance      float64      `json:"balance"`
	Drawdown     float64      `json:"drawdown"`
	ActiveTrades int          `json:"activeTrades"`
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if !decode(w, r, &req) {
		return
	}
	respond(w, r, http.StatusOK, s.risk.EvaluateTrade(req.Signal, req.Balance, req.Drawdown, req.ActiveTrades))
}

// SizeRequest is the body of POST /api/risk/size.
type SizeRequest struct {
	Balance    float64 `json:"balance"`
	WinRate    float64 `json:"winRate"`
	AvgWin     float64 `json:"avgWin"`
	AvgLoss    float64 `json:"avgLoss"`
	Confidence float64 `json:"confidence"`
}

func (s *Server) handleSize(w http.ResponseWriter, r *http.Request) {
	var req SizeRequest
	if !decode(w, r, &req) {
		return
	}
	respond(w, r, http.StatusOK, s.risk.PositionSize(req.Balance, req.WinRate, req.AvgWin, req.AvgLoss, req.Confidence))
}

// ValidateRequest is the body of POST /api/risk/validate. A registered
// account is referenced by AccountID; otherwise Account is used as given.
type ValidateRequest struct {
	AccountID string         `json:"accountId,omitempty"`
	Account   *model.Account `json:"account,omitempty"`
	Signal    model.Signal   `json:"signal"`
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if !decode(w, r, &req) {
		return
	}

	var acct model.Account
	switch {
	case req.AccountID != "":
		a, ok := s.ledger.Account(req.AccountID)
		if !ok {
			fail(w, r, http.StatusNotFound, fmt.Errorf("account %q: %w", req.AccountID, risk.ErrUnknownAccount))
			return
		}
		acct = a
	case req.Account != nil:
		acct = *req.Account
	default:
		fail(w, r, http.StatusBadRequest, errors.New("accountId or account is required"))
		return
	}

	respond(w, r, http.StatusOK, s.risk.Validate(acct, req.Signal))
}

// AdjustResponse carries tuned parameters and guidance for a performance snapshot.
type AdjustResponse struct {
	Parameters      model.RiskParameters `json:"parameters"`
	Recommendations []string             `json:"recommendations"`
}

func (s *Server) handleAdjust(w http.ResponseWriter, r *http.Request) {
	var perf model.PerformanceMetrics
	if !decode(w, r, &perf) {
		return
	}
	respond(w, r, http.StatusOK, AdjustResponse{
		Parameters:      s.risk.AdjustParameters(perf),
		Recommendations: s.risk.Recommendations(perf),
	})
}

func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	respond(w, r, http.StatusOK, s.ledger.Accounts())
}

func (s *Server) handlePutAccount(w http.ResponseWriter, r *http.Request) {
	var acct model.Account
	if !decode(w, r, &acct) {
		return
	}
	if acct.ID == "" {
		fail(w, r, http.StatusBadRequest, errors.New("account id is required"))
		return
	}
	s.ledger.SetAccount(acct)
	stored, _ := s.ledger.Account(acct.ID)

	s.logger.Info("api_account_set",
		zap.String("request_id", requestID(r)),
		zap.String("account", acct.ID),
		zap.Float64("balance", acct.Balance),
	)
	respond(w, r, http.StatusOK, stored)
}

// TradeEvent is the body of POST /api/accounts/trades.
type TradeEvent struct {
	AccountID  string    `json:"accountId"`
	Event      string    `json:"event"` // open or close
	ClosedAt   time.Time `json:"closedAt"`
	ProfitLoss float64   `json:"profit_loss"`
}

func (s *Server) handleAccountTrade(w http.ResponseWriter, r *http.Request) {
	var ev TradeEvent
	if !decode(w, r, &ev) {
		return
	}

	var err error
	switch ev.Event {
	case "open":
		err = s.ledger.RecordOpen(ev.AccountID)
	case "close":
		if ev.ClosedAt.IsZero() {
			ev.ClosedAt = time.Now()
		}
		err = s.ledger.RecordClose(ev.AccountID, model.ClosedTrade{ClosedAt: ev.ClosedAt, ProfitLoss: ev.ProfitLoss})
	default:
		fail(w, r, http.StatusBadRequest, fmt.Errorf("event %q must be open or close", ev.Event))
		return
	}
	if errors.Is(err, risk.ErrUnknownAccount) {
		fail(w, r, http.StatusNotFound, fmt.Errorf("account %q: %w", ev.AccountID, err))
		return
	}

	acct, _ := s.ledger.Account(ev.AccountID)
	respond(w, r, http.StatusOK, acct)
}

func (s *Server) handleAccountStatus(w http.ResponseWriter, r *http.Request) {
	respond(w, r, http.StatusOK, s.risk.MonitorAccounts(s.ledger.Accounts()))
}

func (s *Server) handleDailyRisk(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	acct, ok := s.ledger.Account(id)
	if !ok {
		fail(w, r, http.StatusNotFound, fmt.Errorf("account %q: %w", id, risk.ErrUnknownAccount))
		return
	}
	respond(w, r, http.StatusOK, s.risk.CheckDailyRisk(acct.History, acct.Balance))
}

// handlePurgeHistory drops closed trades before the RFC 3339 "before" query value.
func (s *Server) handlePurgeHistory(w http.ResponseWriter, r *http.Request) {
	before, err := time.Parse(time.RFC3339, r.URL.Query().Get("before"))
	if err != nil {
		fail(w, r, http.StatusBadRequest, fmt.Errorf("before: %w", err))
		return
	}
	s.ledger.PurgeHistory(before)
	s.logger.Info("api_history_purged",
		zap.String("request_id", requestID(r)),
		zap.Time("before", before),
	)
	respond(w, r, http.StatusOK, s.ledger.Accounts())
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		fail(w, r, http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err))
		return false
	}
	return true
}

func respond(w http.ResponseWriter, r *http.Request, status int, data any) {
	writeJSON(w, status, model.APIResponse{
		Data:      data,
		RequestID: requestID(r),
		Timestamp: time.Now(),
	})
}

func fail(w http.ResponseWriter, r *http.Request, status int, err error) {
	writeJSON(w, status, model.APIResponse{
		Error:     err.Error(),
		RequestID: requestID(r),
		Timestamp: time.Now(),
	})
}

// writeJSON encodes before writing headers; an encoding failure becomes a 500.
func writeJSON(w http.ResponseWriter, status int, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		status = http.StatusInternalServerError
		body, _ = json.Marshal(model.APIResponse{
			Error:     fmt.Sprintf("encoding response: %v", err),
			Timestamp: time.Now(),
		})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(append(body, '\n'))
}

type requestIDKey struct{}

func requestID(r *http.Request) string {
	id, _ := r.Context().Value(requestIDKey{}).(string)
	return id
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
