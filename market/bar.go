// Package market holds the price data model shared by the training
// environment, the live ledger, and the data tooling.
package market

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidHistory reports malformed bar history: too short, unordered,
// or duplicate timestamps. Callers treat it as fatal to the current call.
var ErrInvalidHistory = errors.New("market: invalid history")

// Bar is one OHLCV price bar. Bars are immutable once recorded.
type Bar struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Series is a chronologically ordered run of bars for one symbol.
type Series []Bar

// Validate checks that timestamps are strictly increasing (no duplicates)
// and that every close is positive. It does not require a minimum length;
// length requirements belong to the consumer (lookback, episode size).
func (s Series) Validate() error {
	for i := range s {
		if s[i].Close <= 0 {
			return fmt.Errorf("%w: bar %d has non-positive close %v", ErrInvalidHistory, i, s[i].Close)
		}
		if i == 0 {
			continue
		}
		if !s[i].Time.After(s[i-1].Time) {
			return fmt.Errorf("%w: bar %d time %s not after bar %d time %s",
				ErrInvalidHistory, i, s[i].Time.Format(time.RFC3339), i-1, s[i-1].Time.Format(time.RFC3339))
		}
	}
	return nil
}

// Return computes the single-period close return ending at bar i:
// (close_i - close_{i-1}) / close_{i-1}. Bar 0 has no prior close and
// returns 0.
func (s Series) Return(i int) float64 {
	if i <= 0 || i >= len(s) {
		return 0
	}
	prev := s[i-1].Close
	return (s[i].Close - prev) / prev
}

// Closes extracts the close column.
func (s Series) Closes() []float64 {
	out := make([]float64, len(s))
	for i := range s {
		out[i] = s[i].Close
	}
	return out
}

// Tail returns the last n bars (or the whole series if it is shorter).
func (s Series) Tail(n int) Series {
	if n >= len(s) {
		return s
	}
	return s[len(s)-n:]
}
