package datasource

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

const klinesBody = `[
	[1709251200000,"62000.0","62100.0","61900.0","62050.0","12.5",1709251259999,"775625.0",100,"6.0","372300.0","0"],
	[1709251260000,"62050.0","62200.0","62000.0","62150.0","8.75",1709251319999,"543812.5",80,"4.0","248600.0","0"]
]`

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL)
}

func TestRecentBars(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/klines", r.URL.Path)
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		assert.Equal(t, "1m", r.URL.Query().Get("interval"))
		assert.Equal(t, "2", r.URL.Query().Get("limit"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(klinesBody))
	})

	s, err := c.RecentBars(context.Background(), "BTCUSDT", "1m", 2)
	assert.NoError(t, err)
	assert.Len(t, s, 2)
	assert.Equal(t, 62050.0, s[0].Close)
	assert.Equal(t, 12.5, s[0].Volume)
	assert.Equal(t, time.UnixMilli(1709251260000).UTC(), s[1].Time)
}

func TestRecentBarsHTTPError(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"code":-1121,"msg":"Invalid symbol."}`, http.StatusBadRequest)
	})

	_, err := c.RecentBars(context.Background(), "NOPE", "1m", 5)
	assert.ErrorIs(t, err, ErrDataUnavailable)
}

func TestRecentBarsMalformedRow(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[[1709251200000,"not-a-number","1","1","1","1",0]]`))
	})

	_, err := c.RecentBars(context.Background(), "BTCUSDT", "1m", 1)
	assert.ErrorIs(t, err, ErrDataUnavailable)
}

func TestLastPrice(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/ticker/price", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"symbol":"BTCUSDT","price":"62150.10"}`))
	})

	px, err := c.LastPrice(context.Background(), "BTCUSDT")
	assert.NoError(t, err)
	assert.Equal(t, 62150.10, px)
}

func TestLastPriceBadPayload(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"symbol":"BTCUSDT","price":""}`))
	})

	_, err := c.LastPrice(context.Background(), "BTCUSDT")
	assert.ErrorIs(t, err, ErrDataUnavailable)
}
