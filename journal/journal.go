// Package journal persists the decision stream and the equity curve.
// Journal failures never roll back a ledger mutation; the ledger is
// authoritative, the journal is the record of it.
package journal

import (
	"time"

	"github.com/rustyeddy/btcpaper/ledger"
)

// DecisionRecord is one journaled decision, the ledger's Decision plus
// the serving context it was made in.
type DecisionRecord struct {
	ID           string
	Time         time.Time
	Symbol       string
	Interval     string
	Price        float64
	Action       float64
	Position     float64
	Equity       float64
	Degraded     bool
	Duplicate    bool
	ModelVersion string
	Note         string
}

// EquitySnapshot is one point on the paper equity curve.
type EquitySnapshot struct {
	Time     time.Time
	Equity   float64
	Position float64
	Price    float64
}

type Journal interface {
	RecordDecision(DecisionRecord) error
	RecordEquity(EquitySnapshot) error
	Close() error
}

// FromDecision builds a record from a ledger decision and its context.
func FromDecision(d ledger.Decision, symbol, interval, modelVersion string, degraded bool) DecisionRecord {
	return DecisionRecord{
		ID:           d.ID,
		Time:         d.Time,
		Symbol:       symbol,
		Interval:     interval,
		Price:        d.Price,
		Action:       d.Action,
		Position:     d.Position,
		Equity:       d.Equity,
		Degraded:     degraded,
		Duplicate:    d.Duplicate,
		ModelVersion: modelVersion,
		Note:         d.Note,
	}
}
