// Package datasource pulls bar history and spot prices from the Binance
// REST API. All failures surface as ErrDataUnavailable so the
// orchestrator can skip the tick and retry later; the ledger is never
// touched on a failed fetch.
package datasource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/rustyeddy/btcpaper/market"
)

// ErrDataUnavailable reports that the upstream price source failed.
var ErrDataUnavailable = errors.New("datasource: data unavailable")

const DefaultBaseURL = "https://api.binance.com"

type Client struct {
	rc *resty.Client
}

func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	rc := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(10 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() == 429 || r.StatusCode() >= 500
		})
	return &Client{rc: rc}
}

// kline is one row of the Binance klines response: a JSON array of mixed
// numbers and numeric strings.
// [openTime, open, high, low, close, volume, closeTime, ...]
type kline []json.RawMessage

func (k kline) float(i int) (float64, error) {
	var s string
	if err := json.Unmarshal(k[i], &s); err != nil {
		return 0, err
	}
	return strconv.ParseFloat(s, 64)
}

func (k kline) int64(i int) (int64, error) {
	var v int64
	err := json.Unmarshal(k[i], &v)
	return v, err
}

// RecentBars fetches the most recent count bars for symbol at the given
// interval ("1m", "5m", "1h", ...), oldest first.
func (c *Client) RecentBars(ctx context.Context, symbol, interval string, count int) (market.Series, error) {
	var rows []kline
	resp, err := c.rc.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"symbol":   symbol,
			"interval": interval,
			"limit":    strconv.Itoa(count),
		}).
		SetResult(&rows).
		Get("/api/v3/klines")
	if err != nil {
		return nil, fmt.Errorf("%w: klines %s %s: %v", ErrDataUnavailable, symbol, interval, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: klines %s %s: http %d", ErrDataUnavailable, symbol, interval, resp.StatusCode())
	}

	s := make(market.Series, 0, len(rows))
	for _, row := range rows {
		b, err := parseKline(row)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDataUnavailable, err)
		}
		s = append(s, b)
	}

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDataUnavailable, err)
	}
	return s, nil
}

func parseKline(row kline) (market.Bar, error) {
	if len(row) < 6 {
		return market.Bar{}, fmt.Errorf("kline has %d fields, want >= 6", len(row))
	}
	openMs, err := row.int64(0)
	if err != nil {
		return market.Bar{}, fmt.Errorf("kline open time: %w", err)
	}

	vals := make([]float64, 5)
	for i := 0; i < 5; i++ {
		v, err := row.float(i + 1)
		if err != nil {
			return market.Bar{}, fmt.Errorf("kline field %d: %w", i+1, err)
		}
		vals[i] = v
	}

	return market.Bar{
		Time:   time.UnixMilli(openMs).UTC(),
		Open:   vals[0],
		High:   vals[1],
		Low:    vals[2],
		Close:  vals[3],
		Volume: vals[4],
	}, nil
}

type tickerPrice struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// LastPrice fetches the current spot price for symbol.
func (c *Client) LastPrice(ctx context.Context, symbol string) (float64, error) {
	var tp tickerPrice
	resp, err := c.rc.R().
		SetContext(ctx).
		SetQueryParam("symbol", symbol).
		SetResult(&tp).
		Get("/api/v3/ticker/price")
	if err != nil {
		return 0, fmt.Errorf("%w: ticker %s: %v", ErrDataUnavailable, symbol, err)
	}
	if resp.IsError() {
		return 0, fmt.Errorf("%w: ticker %s: http %d", ErrDataUnavailable, symbol, resp.StatusCode())
	}

	px, err := strconv.ParseFloat(tp.Price, 64)
	if err != nil || px <= 0 {
		return 0, fmt.Errorf("%w: ticker %s: bad price %q", ErrDataUnavailable, symbol, tp.Price)
	}
	return px, nil
}
