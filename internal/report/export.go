package report

import (
	"path/filepath"

	"go.uber.org/multierr"

	"tradesim/internal/model"
)

// Options selects the optional output formats. JSON is always written.
type Options struct {
	CSV     bool
	Parquet bool
}

// Export writes a backtest result and its period breakdown into dir and
// returns the paths written. Every format is attempted even if one fails.
func Export(dir string, res model.BacktestResult, periods []model.PeriodPerformance, opts Options) ([]string, error) {
	var (
		written []string
		err     error
	)
	write := func(name string, fn func(string) error) {
		path := filepath.Join(dir, name)
		if werr := fn(path); werr != nil {
			err = multierr.Append(err, werr)
			return
		}
		written = append(written, path)
	}

	write("result.json", func(p string) error { return WriteJSON(p, res) })
	write("periods.json", func(p string) error { return WriteJSON(p, periods) })
	if opts.CSV {
		write("trades.csv", func(p string) error { return WriteTradesCSV(p, res.Trades) })
		write("periods.csv", func(p string) error { return WritePeriodsCSV(p, periods) })
	}
	if opts.Parquet {
		write("trades.parquet", func(p string) error { return WriteParquet(p, res.Trades) })
	}
	return written, err
}
