package app

import (
	"encoding/json"
	"fmt"
	"io"

	"tradesim/internal/model"
)

// DecodeSignals parses a JSON array of signals. Entries are kept even when
// malformed; the backtest skips them during filtering.
func DecodeSignals(r io.Reader) ([]model.Signal, error) {
	var signals []model.Signal
	if err := json.NewDecoder(r).Decode(&signals); err != nil {
		return nil, fmt.Errorf("parsing signals: %w", err)
	}
	return signals, nil
}
