// Package backtest replays one environment episode over historical bars
// and summarizes the result. Each Run constructs a fresh environment, so
// parallel runs never share episode state.
package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/rustyeddy/btcpaper/env"
	"github.com/rustyeddy/btcpaper/journal"
	"github.com/rustyeddy/btcpaper/market"
	"github.com/rustyeddy/btcpaper/pkg/id"
	"github.com/rustyeddy/btcpaper/policy"
)

// Runner drives one episode: window -> decide -> step, journaling every
// decision along the way.
type Runner struct {
	Config  env.Config
	Decider *policy.Engine
	// Journal is optional; nil skips recording.
	Journal journal.Journal

	Symbol   string
	Interval string
}

// Result summarizes one episode.
type Result struct {
	Steps       int
	FinalEquity float64
	MaxDrawdown float64
	Degraded    int // decisions taken without a model
	Done        bool
	Truncated   bool
	Start       time.Time
	End         time.Time
}

// Run replays the episode starting at bar index start. The series must
// satisfy the environment's history requirements.
func (r *Runner) Run(ctx context.Context, s market.Series, start int) (Result, error) {
	if r.Decider == nil {
		return Result{}, fmt.Errorf("backtest: Decider is required")
	}

	e := env.New(r.Config)
	w, err := e.Reset(s, start)
	if err != nil {
		return Result{}, err
	}

	res := Result{
		FinalEquity: 1.0,
		Start:       s[start].Time,
		End:         s[start].Time,
	}
	peak := 1.0

	for {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		v := r.Decider.Decide(w)
		if v.Degraded {
			res.Degraded++
		}

		step, err := e.Step(v.Action)
		if err != nil {
			return Result{}, err
		}

		res.Steps++
		res.FinalEquity = step.Info.Equity
		res.End = s[start+res.Steps].Time

		if step.Info.Equity > peak {
			peak = step.Info.Equity
		}
		if dd := (peak - step.Info.Equity) / peak; dd > res.MaxDrawdown {
			res.MaxDrawdown = dd
		}

		if r.Journal != nil {
			ts := res.End
			rec := journal.DecisionRecord{
				ID:           id.New(),
				Time:         ts,
				Symbol:       r.Symbol,
				Interval:     r.Interval,
				Price:        step.Info.Price,
				Action:       v.Action,
				Position:     step.Info.Position,
				Equity:       step.Info.Equity,
				Degraded:     v.Degraded,
				ModelVersion: v.ModelVersion,
				Note:         "backtest",
			}
			if err := r.Journal.RecordDecision(rec); err != nil {
				return Result{}, fmt.Errorf("backtest: record decision: %w", err)
			}
			if err := r.Journal.RecordEquity(journal.EquitySnapshot{
				Time:     ts,
				Equity:   step.Info.Equity,
				Position: step.Info.Position,
				Price:    step.Info.Price,
			}); err != nil {
				return Result{}, fmt.Errorf("backtest: record equity: %w", err)
			}
		}

		if step.Done || step.Truncated {
			res.Done = step.Done
			res.Truncated = step.Truncated
			return res, nil
		}
		w = step.Window
	}
}
