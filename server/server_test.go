package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/rustyeddy/btcpaper/datasource"
	"github.com/rustyeddy/btcpaper/features"
	"github.com/rustyeddy/btcpaper/journal"
	"github.com/rustyeddy/btcpaper/ledger"
	"github.com/rustyeddy/btcpaper/market"
	"github.com/rustyeddy/btcpaper/policy"
)

type stubSource struct {
	bars market.Series
	err  error
}

func (s *stubSource) RecentBars(ctx context.Context, symbol, interval string, count int) (market.Series, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.bars.Tail(count), nil
}

type memJournal struct {
	decisions []journal.DecisionRecord
	equity    []journal.EquitySnapshot
}

func (m *memJournal) RecordDecision(d journal.DecisionRecord) error {
	m.decisions = append(m.decisions, d)
	return nil
}

func (m *memJournal) RecordEquity(e journal.EquitySnapshot) error {
	m.equity = append(m.equity, e)
	return nil
}

func (m *memJournal) Close() error { return nil }

type memCheckpoint struct {
	saves []ledger.State
}

func (m *memCheckpoint) Save(symbol string, st ledger.State) error {
	m.saves = append(m.saves, st)
	return nil
}

func bars(t *testing.T, n int) market.Series {
	t.Helper()
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	s := make(market.Series, n)
	for i := range s {
		px := 50000 + float64(i)*10
		s[i] = market.Bar{
			Time: start.Add(time.Duration(i) * time.Minute),
			Open: px, High: px, Low: px, Close: px, Volume: 5,
		}
	}
	return s
}

func quietLog() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func longProvider() policy.Provider {
	return policy.Static{
		P:   policy.PolicyFunc(func(features.Window) (float64, error) { return 0.5, nil }),
		Ver: "test-model",
	}
}

func newTestServer(t *testing.T, src PriceSource, p policy.Provider, j journal.Journal) (*Server, *ledger.Ledger) {
	t.Helper()
	led := ledger.New(0.001)
	s := New(Config{Symbol: "BTCUSDT", Interval: "1m", Lookback: 5}, quietLog(), src, p, led, j)
	return s, led
}

func doTick(t *testing.T, h http.Handler) (*httptest.ResponseRecorder, TickResponse) {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/tick", bytes.NewReader(nil))
	h.ServeHTTP(w, req)

	var resp TickResponse
	if w.Code == http.StatusOK {
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

func TestTickAppliesDecision(t *testing.T) {
	j := &memJournal{}
	src := &stubSource{bars: bars(t, 10)}
	s, _ := newTestServer(t, src, longProvider(), j)
	h := s.Router()

	w, resp := doTick(t, h)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0.5, resp.Action)
	assert.Equal(t, 0.5, resp.Position)
	assert.False(t, resp.Duplicate)
	assert.False(t, resp.Degraded)
	assert.Equal(t, "test-model", resp.ModelVersion)
	assert.Equal(t, 1.0, resp.Equity) // first tick skips the reward law

	assert.Len(t, j.decisions, 1)
	assert.Len(t, j.equity, 1)
	assert.Equal(t, "BTCUSDT", j.decisions[0].Symbol)
}

func TestTickDuplicateTriggerIsIdempotent(t *testing.T) {
	j := &memJournal{}
	src := &stubSource{bars: bars(t, 10)}
	s, led := newTestServer(t, src, longProvider(), j)
	h := s.Router()

	_, first := doTick(t, h)
	w, second := doTick(t, h) // same bars, same timestamp

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.Equity, second.Equity)

	// Journaled once, mutated once.
	assert.Len(t, j.decisions, 1)
	assert.Equal(t, int64(1), led.Export().Steps)
}

func TestTickAdvancesWithNewBars(t *testing.T) {
	all := bars(t, 12)
	src := &stubSource{bars: all[:10]}
	j := &memJournal{}
	s, led := newTestServer(t, src, longProvider(), j)
	h := s.Router()

	doTick(t, h)
	src.bars = all[:11] // one new bar arrives

	w, resp := doTick(t, h)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.False(t, resp.Duplicate)
	assert.Equal(t, int64(2), led.Export().Steps)
	assert.Len(t, j.decisions, 2)
	// Price rose while long 0.5, minus no fee on hold.
	assert.Greater(t, resp.Equity, 1.0)
}

func TestTickDataUnavailable(t *testing.T) {
	src := &stubSource{err: datasource.ErrDataUnavailable}
	j := &memJournal{}
	s, led := newTestServer(t, src, longProvider(), j)

	w, _ := doTick(t, s.Router())
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Len(t, j.decisions, 0)
	assert.Equal(t, int64(0), led.Export().Steps) // ledger untouched
}

func TestTickInsufficientHistory(t *testing.T) {
	src := &stubSource{bars: bars(t, 3)} // lookback is 5
	s, led := newTestServer(t, src, longProvider(), &memJournal{})

	w, _ := doTick(t, s.Router())
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, int64(0), led.Export().Steps)
}

func TestTickDegradedWithoutModel(t *testing.T) {
	src := &stubSource{bars: bars(t, 10)}
	s, _ := newTestServer(t, src, policy.Static{}, &memJournal{})

	w, resp := doTick(t, s.Router())
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.Degraded)
	assert.Equal(t, 0.0, resp.Action)
	assert.Equal(t, 0.0, resp.Position)
}

func TestTickCheckpointsLedger(t *testing.T) {
	src := &stubSource{bars: bars(t, 10)}
	cp := &memCheckpoint{}
	s, _ := newTestServer(t, src, longProvider(), &memJournal{})
	s.WithCheckpointer(cp)

	doTick(t, s.Router())
	assert.Len(t, cp.saves, 1)
	assert.Equal(t, 0.5, cp.saves[0].Position)
}

func TestHealthz(t *testing.T) {
	src := &stubSource{bars: bars(t, 10)}

	s, _ := newTestServer(t, src, longProvider(), &memJournal{})
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"healthy"`)

	s2, _ := newTestServer(t, src, policy.Static{}, &memJournal{})
	w = httptest.NewRecorder()
	s2.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Contains(t, w.Body.String(), `"status":"degraded"`)

	s3, _ := newTestServer(t, &stubSource{err: datasource.ErrDataUnavailable}, longProvider(), &memJournal{})
	w = httptest.NewRecorder()
	s3.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Contains(t, w.Body.String(), `"status":"degraded"`)
	assert.Contains(t, w.Body.String(), `"data_ok":false`)
}

func TestStatus(t *testing.T) {
	src := &stubSource{bars: bars(t, 10)}
	s, _ := newTestServer(t, src, longProvider(), &memJournal{})
	h := s.Router()

	doTick(t, h)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "BTCUSDT", body["symbol"])
	assert.Equal(t, true, body["model_loaded"])
	assert.Equal(t, 0.5, body["position"])
	assert.Equal(t, float64(1), body["steps"])
}

func TestRecentNotImplementedForMemJournal(t *testing.T) {
	src := &stubSource{bars: bars(t, 10)}
	s, _ := newTestServer(t, src, longProvider(), &memJournal{})

	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/recent", nil))
	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestRecentFromSQLiteJournal(t *testing.T) {
	j, err := journal.NewSQLite(t.TempDir() + "/j.sqlite")
	assert.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })

	src := &stubSource{bars: bars(t, 10)}
	s, _ := newTestServer(t, src, longProvider(), j)
	h := s.Router()

	doTick(t, h)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/recent?limit=10", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Count int `json:"count"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
}

func TestRecentBadLimit(t *testing.T) {
	j, err := journal.NewSQLite(t.TempDir() + "/j.sqlite")
	assert.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })

	src := &stubSource{bars: bars(t, 10)}
	s, _ := newTestServer(t, src, longProvider(), j)

	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/recent?limit=-3", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

type stubReloader struct {
	loaded bool
	err    error
	calls  int
}

func (r *stubReloader) Reload() (bool, error) {
	r.calls++
	return r.loaded, r.err
}

func TestReload(t *testing.T) {
	src := &stubSource{bars: bars(t, 10)}
	s, _ := newTestServer(t, src, longProvider(), &memJournal{})
	rl := &stubReloader{loaded: true}
	s.WithReloader(rl)

	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/reload", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, rl.calls)
	assert.Contains(t, w.Body.String(), `"loaded":true`)
}

func TestReloadWithoutReloader(t *testing.T) {
	src := &stubSource{bars: bars(t, 10)}
	s, _ := newTestServer(t, src, longProvider(), &memJournal{})

	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/reload", nil))
	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	src := &stubSource{bars: bars(t, 10)}
	s, _ := newTestServer(t, src, longProvider(), &memJournal{})
	h := s.Router()

	doTick(t, h)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "btcpaper_ticks_total")
	assert.Contains(t, w.Body.String(), `outcome="applied"`)
}
