package engine

import (
	"time"

	"tradesim/internal/model"
)

// AnalyzeByPeriod groups a result's trades into UTC calendar buckets keyed by
// entry time. Buckets appear in the order their first trade appears. Weeks
// start on Sunday.
func AnalyzeByPeriod(res model.BacktestResult, g model.Granularity) []model.PeriodPerformance {
	type bucket struct {
		perf model.PeriodPerformance
		wins int
		peak float64
	}

	index := make(map[string]int)
	buckets := make([]*bucket, 0)

	for _, t := range res.Trades {
		key := periodKey(t.EntryTime, g)
		i, ok := index[key]
		if !ok {
			i = len(buckets)
			index[key] = i
			buckets = append(buckets, &bucket{perf: model.PeriodPerformance{Period: key}})
		}
		b := buckets[i]

		b.perf.Trades++
		if t.Result == model.OutcomeWin {
			b.wins++
		}
		b.perf.Profit += t.NetProfit

		// Drawdown on cumulative bucket profit, measured once the bucket
		// has been in profit.
		if b.perf.Profit > b.peak {
			b.peak = b.perf.Profit
		} else if b.peak > 0 {
			b.perf.Drawdown = max(b.perf.Drawdown, (b.peak-b.perf.Profit)/b.peak*100)
		}
	}

	out := make([]model.PeriodPerformance, 0, len(buckets))
	for _, b := range buckets {
		if b.perf.Trades > 0 {
			b.perf.WinRate = float64(b.wins) / float64(b.perf.Trades) * 100
		}
		out = append(out, b.perf)
	}
	return out
}

func periodKey(t time.Time, g model.Granularity) string {
	t = t.UTC()
	switch g {
	case model.GranularityWeekly:
		return t.AddDate(0, 0, -int(t.Weekday())).Format(time.DateOnly)
	case model.GranularityMonthly:
		return t.Format("2006-01")
	default:
		return t.Format(time.DateOnly)
	}
}
