// Package model defines shared data types used across the simulation and risk modules.
// JSON field names are part of the export contract and must not change.
package model

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Direction represents a trading direction.
type Direction string

const (
	DirectionCall Direction = "CALL"
	DirectionPut  Direction = "PUT"
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
)

// IsLong reports whether the direction profits from a rising price.
func (d Direction) IsLong() bool {
	return d == DirectionCall || d == DirectionBuy
}

// Valid reports whether d is one of the known directions.
func (d Direction) Valid() bool {
	switch d {
	case DirectionCall, DirectionPut, DirectionBuy, DirectionSell:
		return true
	}
	return false
}

// Outcome is the result of a simulated trade.
type Outcome string

const (
	OutcomeWin  Outcome = "WIN"
	OutcomeLoss Outcome = "LOSS"
)

// RiskLevel classifies trade or account risk.
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// Recommendation is the action suggested by trade risk scoring.
type Recommendation string

const (
	RecommendTake   Recommendation = "TAKE"
	RecommendReduce Recommendation = "REDUCE"
	RecommendAvoid  Recommendation = "AVOID"
)

// Severity grades a risk check.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Granularity selects the bucket size for period performance.
type Granularity string

const (
	GranularityDaily   Granularity = "daily"
	GranularityWeekly  Granularity = "weekly"
	GranularityMonthly Granularity = "monthly"
)

// Valid reports whether g is a known bucket size.
func (g Granularity) Valid() bool {
	switch g {
	case GranularityDaily, GranularityWeekly, GranularityMonthly:
		return true
	}
	return false
}

// MACD holds MACD indicator readings.
type MACD struct {
	MACD      float64 `json:"macd"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
}

// TechnicalIndicators is the indicator bundle attached to a signal.
type TechnicalIndicators struct {
	RSI  float64 `json:"rsi"`
	MACD MACD    `json:"macd"`
	ADX  float64 `json:"adx"`
}

// TimeFeatures holds time-derived signal features.
type TimeFeatures struct {
	IsMarketOpen bool `json:"is_market_open"`
}

// MLFeatures holds derived features produced by the signal generator.
type MLFeatures struct {
	VolumeRatio  float64      `json:"volume_ratio"`
	Volatility   float64      `json:"volatility,omitempty"`
	TimeFeatures TimeFeatures `json:"time_features"`
}

// Signal is an immutable proposed trade produced upstream.
type Signal struct {
	ID                  string              `json:"id"`
	Pair                string              `json:"pair"`
	Direction           Direction           `json:"direction"`
	Confidence          float64             `json:"confidence"`
	EntryPrice          float64             `json:"entry_price"`
	TargetPrice         float64             `json:"target_price"`
	StopLoss            float64             `json:"stop_loss"`
	Expiration          float64             `json:"expiration"` // minutes
	Timestamp           time.Time           `json:"timestamp"`
	TechnicalIndicators TechnicalIndicators `json:"technical_indicators"`
	MLFeatures          MLFeatures          `json:"ml_features"`
}

// Valid reports whether the signal carries every required field.
// Signals that fail this check are skipped, never fatal.
func (s Signal) Valid() bool {
	if s.Pair == "" || !s.Direction.Valid() || s.Timestamp.IsZero() {
		return false
	}
	for _, v := range []float64{s.EntryPrice, s.TargetPrice, s.StopLoss, s.Expiration} {
		if !finite(v) || v <= 0 {
			return false
		}
	}
	return finite(s.Confidence) && s.Confidence >= 0 && s.Confidence <= 100
}

// RiskRewardRatio returns the target distance divided by the stop distance.
func (s Signal) RiskRewardRatio() float64 {
	risk := math.Abs(s.EntryPrice - s.StopLoss)
	if risk == 0 {
		return 0
	}
	return math.Abs(s.TargetPrice-s.EntryPrice) / risk
}

// BacktestConfig holds immutable run parameters.
type BacktestConfig struct {
	StartDate      time.Time `json:"startDate"`
	EndDate        time.Time `json:"endDate"`
	InitialBalance float64   `json:"initialBalance"`
	Commission     float64   `json:"commission"`   // fraction of position size
	Slippage       float64   `json:"slippage"`     // fraction of price
	RiskPerTrade   float64   `json:"riskPerTrade"` // fraction of balance
	MinConfidence  float64   `json:"minConfidence"`
	Pairs          []string  `json:"pairs"`
}

// Validate checks the run parameters.
func (c BacktestConfig) Validate() error {
	var errs []error
	if len(c.Pairs) == 0 {
		errs = append(errs, errors.New("pairs must not be empty"))
	}
	if c.StartDate.After(c.EndDate) {
		errs = append(errs, fmt.Errorf("startDate %s is after endDate %s",
			c.StartDate.Format(time.RFC3339), c.EndDate.Format(time.RFC3339)))
	}
	if !(c.RiskPerTrade > 0 && c.RiskPerTrade <= 1) {
		errs = append(errs, fmt.Errorf("riskPerTrade %v outside (0,1]", c.RiskPerTrade))
	}
	if !finite(c.InitialBalance) || c.InitialBalance <= 0 {
		errs = append(errs, fmt.Errorf("initialBalance %v must be positive", c.InitialBalance))
	}
	return errors.Join(errs...)
}

// HasPair reports whether pair is eligible for this run.
func (c BacktestConfig) HasPair(pair string) bool {
	for _, p := range c.Pairs {
		if p == pair {
			return true
		}
	}
	return false
}

// BacktestTrade is one simulated execution.
type BacktestTrade struct {
	ID          string    `json:"id"`
	Signal      Signal    `json:"signal"`
	EntryTime   time.Time `json:"entryTime"`
	ExitTime    time.Time `json:"exitTime"`
	EntryPrice  float64   `json:"entryPrice"`
	ExitPrice   float64   `json:"exitPrice"`
	Direction   Direction `json:"direction"`
	Result      Outcome   `json:"result"`
	Profit      float64   `json:"profit"` // gross
	Commission  float64   `json:"commission"`
	NetProfit   float64   `json:"netProfit"`
	HoldingTime float64   `json:"holdingTime"` // minutes
}

// BacktestResult aggregates a complete run.
type BacktestResult struct {
	TotalTrades       int             `json:"totalTrades"`
	WinningTrades     int             `json:"winningTrades"`
	LosingTrades      int             `json:"losingTrades"`
	WinRate           float64         `json:"winRate"`
	TotalProfit       float64         `json:"totalProfit"`
	TotalLoss         float64         `json:"totalLoss"`
	NetProfit         float64         `json:"netProfit"`
	MaxDrawdown       float64         `json:"maxDrawdown"` // percent
	SharpeRatio       float64         `json:"sharpeRatio"`
	ProfitFactor      float64         `json:"profitFactor"`
	AvgWin            float64         `json:"avgWin"`
	AvgLoss           float64         `json:"avgLoss"`
	LargestWin        float64         `json:"largestWin"`
	LargestLoss       float64         `json:"largestLoss"`
	ConsecutiveWins   int             `json:"consecutiveWins"`
	ConsecutiveLosses int             `json:"consecutiveLosses"`
	Trades            []BacktestTrade `json:"trades"`
}

// PeriodPerformance summarizes the trades of one time bucket.
type PeriodPerformance struct {
	Period   string  `json:"period"`
	Trades   int     `json:"trades"`
	WinRate  float64 `json:"winRate"`
	Profit   float64 `json:"profit"`
	Drawdown float64 `json:"drawdown"` // percent, intra-bucket
}

// RiskParameters is the tunable risk policy. Zero fields take defaults.
type RiskParameters struct {
	MaxRiskPerTrade      float64 `json:"maxRiskPerTrade" yaml:"maxRiskPerTrade"`
	MaxDailyRisk         float64 `json:"maxDailyRisk" yaml:"maxDailyRisk"`
	MaxDrawdown          float64 `json:"maxDrawdown" yaml:"maxDrawdown"`
	StopLossPercentage   float64 `json:"stopLossPercentage" yaml:"stopLossPercentage"`
	TakeProfitPercentage float64 `json:"takeProfitPercentage" yaml:"takeProfitPercentage"`
	MaxConcurrentTrades  int     `json:"maxConcurrentTrades" yaml:"maxConcurrentTrades"`
	MinConfidenceLevel   float64 `json:"minConfidenceLevel" yaml:"minConfidenceLevel"`
}

// DefaultRiskParameters returns the stock risk policy.
func DefaultRiskParameters() RiskParameters {
	return RiskParameters{
		MaxRiskPerTrade:      0.02,
		MaxDailyRisk:         0.10,
		MaxDrawdown:          0.15,
		StopLossPercentage:   0.015,
		TakeProfitPercentage: 0.025,
		MaxConcurrentTrades:  5,
		MinConfidenceLevel:   75,
	}
}

// WithDefaults returns p with every unset field replaced by its default.
func (p RiskParameters) WithDefaults() RiskParameters {
	d := DefaultRiskParameters()
	if p.MaxRiskPerTrade == 0 {
		p.MaxRiskPerTrade = d.MaxRiskPerTrade
	}
	if p.MaxDailyRisk == 0 {
		p.MaxDailyRisk = d.MaxDailyRisk
	}
	if p.MaxDrawdown == 0 {
		p.MaxDrawdown = d.MaxDrawdown
	}
	if p.StopLossPercentage == 0 {
		p.StopLossPercentage = d.StopLossPercentage
	}
	if p.TakeProfitPercentage == 0 {
		p.TakeProfitPercentage = d.TakeProfitPercentage
	}
	if p.MaxConcurrentTrades == 0 {
		p.MaxConcurrentTrades = d.MaxConcurrentTrades
	}
	if p.MinConfidenceLevel == 0 {
		p.MinConfidenceLevel = d.MinConfidenceLevel
	}
	return p
}

// PositionSize is the output of Kelly sizing.
type PositionSize struct {
	Amount          float64 `json:"amount"`
	Percentage      float64 `json:"percentage"`
	RiskAmount      float64 `json:"riskAmount"`
	KellyPercentage float64 `json:"kellyPercentage"` // raw, before clamping
}

// TradeRisk is the output of trade risk scoring.
type TradeRisk struct {
	RiskLevel       RiskLevel      `json:"riskLevel"`
	RiskScore       float64        `json:"riskScore"`
	MaxLoss         float64        `json:"maxLoss"`        // percent
	ExpectedReturn  float64        `json:"expectedReturn"` // percent
	RiskRewardRatio float64        `json:"riskRewardRatio"`
	Recommendation  Recommendation `json:"recommendation"`
}

// RiskCheck is a single named validation check.
type RiskCheck struct {
	Name     string   `json:"name"`
	Passed   bool     `json:"passed"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// TradeValidation aggregates all checks for one proposed trade.
type TradeValidation struct {
	CanTrade        bool        `json:"canTrade"`
	RiskChecks      []RiskCheck `json:"riskChecks"`
	RecommendedSize float64     `json:"recommendedSize"`
	Warnings        []string    `json:"warnings"`
}

// ClosedTrade is a realized trade in an account's history.
type ClosedTrade struct {
	ClosedAt   time.Time `json:"closedAt"`
	ProfitLoss float64   `json:"profit_loss"`
}

// Account is a point-in-time view of a trading account used by risk checks.
type Account struct {
	ID              string        `json:"id"`
	Platform        string        `json:"platform"`
	Balance         float64       `json:"balance"`
	StartingBalance float64       `json:"startingBalance"`
	Equity          float64       `json:"equity"`
	MarginUsed      float64       `json:"margin_used"`
	MarginAvailable float64       `json:"margin_available"`
	Leverage        float64       `json:"leverage,omitempty"`
	OpenPositions   int           `json:"open_positions"`
	History         []ClosedTrade `json:"history,omitempty"`
}

// AccountStatus is a point-in-time risk snapshot of one account.
type AccountStatus struct {
	AccountID     string    `json:"account_id"`
	Platform      string    `json:"platform"`
	Balance       float64   `json:"balance"`
	Equity        float64   `json:"equity"`
	MarginUsed    float64   `json:"margin_used"`
	Drawdown      float64   `json:"drawdown"`
	DailyPnL      float64   `json:"daily_pnl"`
	OpenPositions int       `json:"open_positions"`
	RiskLevel     RiskLevel `json:"risk_level"`
	CanTrade      bool      `json:"can_trade"`
}

// PerformanceMetrics feeds adaptive risk tuning and recommendations.
type PerformanceMetrics struct {
	Balance      float64 `json:"balance"`
	WinRate      float64 `json:"winRate"`
	AvgWin       float64 `json:"avgWin"`
	AvgLoss      float64 `json:"avgLoss"`
	SharpeRatio  float64 `json:"sharpeRatio"`
	MaxDrawdown  float64 `json:"maxDrawdown"` // fraction
	ActiveTrades int     `json:"activeTrades"`
}

// APIResponse is the standard REST API response envelope.
type APIResponse struct {
	Data      any       `json:"data,omitempty"`
	Error     string    `json:"error,omitempty"`
	RequestID string    `json:"requestId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
