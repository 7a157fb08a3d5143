package journal

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"
)

// CSVJournal writes decisions and equity snapshots to two flat files.
// Useful for backtests and offline analysis; the serving process uses
// SQLite.
type CSVJournal struct {
	decisions *csv.Writer
	equity    *csv.Writer
	df, ef    *os.File
}

func NewCSV(decisionsPath, equityPath string) (*CSVJournal, error) {
	df, err := os.Create(decisionsPath)
	if err != nil {
		return nil, err
	}
	ef, err := os.Create(equityPath)
	if err != nil {
		df.Close()
		return nil, err
	}

	dw := csv.NewWriter(df)
	ew := csv.NewWriter(ef)

	if err := dw.Write([]string{"id", "time", "symbol", "interval", "price", "action", "position", "equity", "degraded", "duplicate", "model_version", "note"}); err != nil {
		return nil, err
	}
	if err := ew.Write([]string{"time", "equity", "position", "price"}); err != nil {
		return nil, err
	}

	dw.Flush()
	if err := dw.Error(); err != nil {
		return nil, err
	}
	ew.Flush()
	if err := ew.Error(); err != nil {
		return nil, err
	}

	return &CSVJournal{dw, ew, df, ef}, nil
}

func (j *CSVJournal) RecordDecision(d DecisionRecord) error {
	err := j.decisions.Write([]string{
		d.ID,
		d.Time.Format(time.RFC3339),
		d.Symbol,
		d.Interval,
		f(d.Price),
		f(d.Action),
		f(d.Position),
		f(d.Equity),
		strconv.FormatBool(d.Degraded),
		strconv.FormatBool(d.Duplicate),
		d.ModelVersion,
		d.Note,
	})
	if err != nil {
		return err
	}
	j.decisions.Flush()
	return j.decisions.Error()
}

func (j *CSVJournal) RecordEquity(e EquitySnapshot) error {
	err := j.equity.Write([]string{
		e.Time.Format(time.RFC3339),
		f(e.Equity),
		f(e.Position),
		f(e.Price),
	})
	if err != nil {
		return err
	}
	j.equity.Flush()
	return j.equity.Error()
}

func (j *CSVJournal) Close() error {
	j.decisions.Flush()
	if err := j.decisions.Error(); err != nil {
		return err
	}
	j.equity.Flush()
	if err := j.equity.Error(); err != nil {
		return err
	}
	if err := j.df.Close(); err != nil {
		return err
	}
	return j.ef.Close()
}

func f(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
