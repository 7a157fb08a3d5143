// Package features turns raw bar history into the fixed-size observation
// windows the policy consumes. Extraction is pure: the same history and
// index always produce bit-identical output, which is what makes training
// rollouts reproducible and the serving path testable.
package features

import (
	"errors"
	"fmt"
	"math"

	"github.com/rustyeddy/btcpaper/market"
)

// ErrInsufficientHistory reports that fewer than lookback+1 bars precede
// the requested index (the extra bar feeds the period return).
var ErrInsufficientHistory = errors.New("features: insufficient history")

// Width is the fixed feature-vector width: normalized O, H, L, C,
// normalized volume, and the single-period close return.
const Width = 6

// Vector is one bar's features.
type Vector [Width]float64

// Window is a contiguous, chronologically ordered run of exactly
// lookback vectors ending at the current bar.
type Window []Vector

// Flat returns the window as a row-major []float32, the layout the ONNX
// policy input tensor expects.
func (w Window) Flat() []float32 {
	out := make([]float32, 0, len(w)*Width)
	for _, v := range w {
		for _, x := range v {
			out = append(out, float32(x))
		}
	}
	return out
}

// Extractor derives feature windows with a fixed lookback.
type Extractor struct {
	Lookback int
}

// Window returns the feature window ending at bar i.
//
// Prices are normalized against the window's final close (p/last − 1),
// volume is squashed with log1p(v)/10, and the last column is the
// single-period close return. The same normalization runs at training and
// serving time; that symmetry is the point of this package.
func (e Extractor) Window(s market.Series, i int) (Window, error) {
	if e.Lookback <= 0 {
		return nil, fmt.Errorf("features: lookback must be positive, got %d", e.Lookback)
	}
	if i >= len(s) {
		return nil, fmt.Errorf("features: index %d out of range (%d bars)", i, len(s))
	}
	// Need lookback bars ending at i. The first bar of a series has no
	// prior close; its return is 0 by convention (market.Series.Return).
	if i < e.Lookback-1 {
		return nil, fmt.Errorf("%w: index %d needs %d bars ending at it", ErrInsufficientHistory, i, e.Lookback)
	}

	last := s[i].Close
	w := make(Window, e.Lookback)
	for k := 0; k < e.Lookback; k++ {
		j := i - e.Lookback + 1 + k
		b := s[j]
		w[k] = Vector{
			b.Open/last - 1,
			b.High/last - 1,
			b.Low/last - 1,
			b.Close/last - 1,
			math.Log1p(b.Volume) / 10,
			s.Return(j),
		}
	}
	return w, nil
}

// Latest is shorthand for the window ending at the newest bar.
func (e Extractor) Latest(s market.Series) (Window, error) {
	return e.Window(s, len(s)-1)
}
