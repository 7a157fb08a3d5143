package cmd

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"github.com/xyproto/unzip"

	"github.com/rustyeddy/btcpaper/market"
)

const visionBase = "https://data.binance.vision/data/spot/monthly/klines"

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download historical klines from Binance Vision",
	Long: `Fetch downloads monthly kline archives from Binance Vision, extracts
them, and merges the bars into a single CSV usable by backtest.

Example:
  btcpaper fetch --symbol BTCUSDT --interval 1m --start 2024-01 --end 2024-06 -o btc.csv`,
	RunE: runFetch,
}

var (
	fetchSymbol   string
	fetchInterval string
	fetchStart    string
	fetchEnd      string
	fetchDir      string
	fetchOut      string
	fetchWorkers  int
	fetchTimeout  time.Duration
)

func init() {
	rootCmd.AddCommand(fetchCmd)

	fetchCmd.Flags().StringVar(&fetchSymbol, "symbol", "BTCUSDT", "trading pair symbol")
	fetchCmd.Flags().StringVar(&fetchInterval, "interval", "1m", "kline interval (1m, 5m, 1h, 1d, ...)")
	fetchCmd.Flags().StringVar(&fetchStart, "start", "", "first month (YYYY-MM) (required)")
	fetchCmd.Flags().StringVar(&fetchEnd, "end", "", "last month inclusive (YYYY-MM) (required)")
	fetchCmd.Flags().StringVar(&fetchDir, "dir", "./klines", "download/extract directory")
	fetchCmd.Flags().StringVarP(&fetchOut, "out", "o", "", "merged bar CSV output path (required)")
	fetchCmd.Flags().IntVar(&fetchWorkers, "workers", max(4, runtime.NumCPU()), "parallel downloads")
	fetchCmd.Flags().DurationVar(&fetchTimeout, "timeout", 45*time.Second, "HTTP timeout per archive")

	fetchCmd.MarkFlagRequired("start")
	fetchCmd.MarkFlagRequired("end")
	fetchCmd.MarkFlagRequired("out")
}

type archive struct {
	month string // YYYY-MM
	url   string
	zip   string // local .zip path
}

func runFetch(cmd *cobra.Command, args []string) error {
	sym := strings.ToUpper(strings.TrimSpace(fetchSymbol))
	months, err := monthRange(fetchStart, fetchEnd)
	if err != nil {
		return err
	}

	jobs := make([]archive, 0, len(months))
	for _, m := range months {
		name := fmt.Sprintf("%s-%s-%s.zip", sym, fetchInterval, m)
		jobs = append(jobs, archive{
			month: m,
			url:   fmt.Sprintf("%s/%s/%s/%s", visionBase, sym, fetchInterval, name),
			zip:   filepath.Join(fetchDir, sym, fetchInterval, name),
		})
	}

	fmt.Printf("Symbol: %s %s\nRange:  %s -> %s (months=%d)\nOut:    %s\n\n",
		sym, fetchInterval, fetchStart, fetchEnd, len(jobs), fetchOut)

	client := &http.Client{Timeout: fetchTimeout}
	ctx := cmd.Context()

	// Worker pool
	jobCh := make(chan archive)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var ok, miss, fail int

	for i := 0; i < fetchWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobCh {
				status, err := downloadIfMissing(ctx, client, j.url, j.zip)
				mu.Lock()
				switch {
				case err != nil:
					fail++
					fmt.Printf("FAIL  %s  (%v)\n", j.url, err)
				case status == http.StatusNotFound:
					miss++
					fmt.Printf("404   %s\n", j.url)
				default:
					ok++
					fmt.Printf("OK    %s\n", j.zip)
				}
				mu.Unlock()
			}
		}()
	}

	for _, j := range jobs {
		jobCh <- j
	}
	close(jobCh)
	wg.Wait()

	fmt.Printf("\nDownloaded: %d ok, %d missing, %d failed\n", ok, miss, fail)
	if fail > 0 {
		return fmt.Errorf("%d archives failed to download", fail)
	}

	// Extract and merge in month order.
	var bars market.Series
	for _, j := range jobs {
		if _, err := os.Stat(j.zip); err != nil {
			continue // missing month
		}
		dir := strings.TrimSuffix(j.zip, ".zip")
		if err := unzip.Extract(j.zip, dir); err != nil {
			return fmt.Errorf("extract %s: %w", j.zip, err)
		}
		monthBars, err := readKlineDir(dir)
		if err != nil {
			return fmt.Errorf("parse %s: %w", dir, err)
		}
		bars = append(bars, monthBars...)
	}

	if len(bars) == 0 {
		return fmt.Errorf("no bars fetched")
	}
	sort.Slice(bars, func(i, k int) bool { return bars[i].Time.Before(bars[k].Time) })

	if err := market.WriteCSV(fetchOut, bars); err != nil {
		return fmt.Errorf("write merged csv: %w", err)
	}
	fmt.Printf("Merged %d bars into %s\n", len(bars), fetchOut)
	return nil
}

// downloadIfMissing fetches url into dst unless dst already exists. It
// returns the HTTP status (0 when skipped).
func downloadIfMissing(ctx context.Context, client *http.Client, url, dst string) (int, error) {
	if _, err := os.Stat(dst); err == nil {
		return 0, nil
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return resp.StatusCode, nil
	}
	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, fmt.Errorf("http %d", resp.StatusCode)
	}

	tmp := dst + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return resp.StatusCode, err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(tmp)
		return resp.StatusCode, err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return resp.StatusCode, err
	}
	return resp.StatusCode, os.Rename(tmp, dst)
}

// readKlineDir parses every extracted kline CSV in dir. Binance kline rows
// are open_time,open,high,low,close,volume,close_time,... with the open
// time in milliseconds (microseconds in newer archives).
func readKlineDir(dir string) (market.Series, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var bars market.Series
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".csv") {
			continue
		}
		f, err := os.Open(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		monthBars, err := readKlineCSV(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.Name(), err)
		}
		bars = append(bars, monthBars...)
	}
	return bars, nil
}

func readKlineCSV(r io.Reader) (market.Series, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	var bars market.Series
	for {
		row, err := cr.Read()
		if err == io.EOF {
			return bars, nil
		}
		if err != nil {
			return nil, err
		}
		if len(row) < 6 {
			return nil, fmt.Errorf("short row: %v", row)
		}
		if _, err := strconv.ParseInt(row[0], 10, 64); err != nil {
			continue // header row
		}
		bar, err := parseKlineRow(row)
		if err != nil {
			return nil, err
		}
		bars = append(bars, bar)
	}
}

func parseKlineRow(row []string) (market.Bar, error) {
	ts, err := strconv.ParseInt(row[0], 10, 64)
	if err != nil {
		return market.Bar{}, fmt.Errorf("bad open time %q: %w", row[0], err)
	}
	// Archives after 2025-01 moved from millisecond to microsecond stamps.
	var t time.Time
	if ts > 1e14 {
		t = time.UnixMicro(ts).UTC()
	} else {
		t = time.UnixMilli(ts).UTC()
	}

	vals := make([]float64, 5)
	for i := 0; i < 5; i++ {
		v, err := strconv.ParseFloat(row[i+1], 64)
		if err != nil {
			return market.Bar{}, fmt.Errorf("bad field %q: %w", row[i+1], err)
		}
		vals[i] = v
	}

	return market.Bar{
		Time:   t,
		Open:   vals[0],
		High:   vals[1],
		Low:    vals[2],
		Close:  vals[3],
		Volume: vals[4],
	}, nil
}

func monthRange(start, end string) ([]string, error) {
	t0, err := time.Parse("2006-01", start)
	if err != nil {
		return nil, fmt.Errorf("bad --start: %w", err)
	}
	t1, err := time.Parse("2006-01", end)
	if err != nil {
		return nil, fmt.Errorf("bad --end: %w", err)
	}
	if t1.Before(t0) {
		return nil, fmt.Errorf("--end must not be before --start")
	}

	var months []string
	for t := t0; !t.After(t1); t = t.AddDate(0, 1, 0) {
		months = append(months, t.Format("2006-01"))
	}
	return months, nil
}
