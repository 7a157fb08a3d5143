package features

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/rustyeddy/btcpaper/market"
)

func series(t *testing.T, closes ...float64) market.Series {
	t.Helper()
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	s := make(market.Series, len(closes))
	for i, c := range closes {
		s[i] = market.Bar{
			Time:   start.Add(time.Duration(i) * time.Minute),
			Open:   c * 0.999,
			High:   c * 1.002,
			Low:    c * 0.998,
			Close:  c,
			Volume: 100 + 3*float64(i),
		}
	}
	return s
}

func TestWindowLengthAndWidth(t *testing.T) {
	s := series(t, 100, 101, 102, 103, 104, 105)
	e := Extractor{Lookback: 4}

	w, err := e.Window(s, 5)
	assert.NoError(t, err)
	assert.Len(t, w, 4)
	for _, v := range w {
		assert.Len(t, v[:], Width)
	}
}

func TestWindowInsufficientHistory(t *testing.T) {
	s := series(t, 100, 101)
	e := Extractor{Lookback: 3}

	_, err := e.Window(s, 1)
	assert.ErrorIs(t, err, ErrInsufficientHistory)

	_, err = e.Latest(s)
	assert.ErrorIs(t, err, ErrInsufficientHistory)
}

func TestWindowAtLookbackMinusOne(t *testing.T) {
	s := series(t, 100, 101, 102)
	e := Extractor{Lookback: 3}

	// Window covering the whole series; the first vector's return is 0
	// because bar 0 has no prior close.
	w, err := e.Window(s, 2)
	assert.NoError(t, err)
	assert.Len(t, w, 3)
	assert.Equal(t, 0.0, w[0][5])
}

func TestWindowIndexOutOfRange(t *testing.T) {
	s := series(t, 100, 101)
	e := Extractor{Lookback: 1}
	_, err := e.Window(s, 2)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrInsufficientHistory)
}

func TestWindowValues(t *testing.T) {
	s := series(t, 100, 110)
	e := Extractor{Lookback: 1}

	w, err := e.Window(s, 1)
	assert.NoError(t, err)

	// Final close is 110; the single vector covers bar 1.
	assert.InDelta(t, s[1].Open/110-1, w[0][0], 1e-12)
	assert.InDelta(t, s[1].High/110-1, w[0][1], 1e-12)
	assert.InDelta(t, s[1].Low/110-1, w[0][2], 1e-12)
	assert.InDelta(t, 0.0, w[0][3], 1e-12) // close/close - 1
	assert.InDelta(t, 0.1, w[0][5], 1e-12) // (110-100)/100
}

func TestWindowDeterminism(t *testing.T) {
	s := series(t, 100, 101, 99, 102, 98, 104, 103)
	e := Extractor{Lookback: 5}

	a, err := e.Window(s, 6)
	assert.NoError(t, err)
	b, err := e.Window(s, 6)
	assert.NoError(t, err)

	// Bit-identical, not merely approximately equal.
	assert.Equal(t, a, b)
}

func TestWindowIsChronological(t *testing.T) {
	s := series(t, 100, 101, 102, 103)
	e := Extractor{Lookback: 3}

	w, err := e.Window(s, 3)
	assert.NoError(t, err)

	// Returns column must follow bar order 1..3.
	assert.InDelta(t, s.Return(1), w[0][5], 1e-12)
	assert.InDelta(t, s.Return(2), w[1][5], 1e-12)
	assert.InDelta(t, s.Return(3), w[2][5], 1e-12)
}

func TestFlat(t *testing.T) {
	s := series(t, 100, 101, 102)
	e := Extractor{Lookback: 2}

	w, err := e.Window(s, 2)
	assert.NoError(t, err)

	flat := w.Flat()
	assert.Len(t, flat, 2*Width)
	assert.Equal(t, float32(w[1][0]), flat[Width])
}

func TestZeroLookbackRejected(t *testing.T) {
	s := series(t, 100, 101)
	_, err := Extractor{}.Window(s, 1)
	assert.Error(t, err)
}
