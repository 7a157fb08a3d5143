// Package env implements the deterministic trading environment used to
// replay one episode over historical bars. Each episode owns a fresh Env;
// instances are not shared across parallel rollouts.
package env

import (
	"fmt"

	"github.com/rustyeddy/btcpaper/features"
	"github.com/rustyeddy/btcpaper/market"
)

// Phase tracks the episode state machine.
type Phase int

const (
	Uninitialized Phase = iota
	Ready
	Running
	Done      // bankrupt: equity reached zero
	Truncated // end of data or step cap
)

func (p Phase) String() string {
	switch p {
	case Uninitialized:
		return "uninitialized"
	case Ready:
		return "ready"
	case Running:
		return "running"
	case Done:
		return "done"
	case Truncated:
		return "truncated"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Config parameterizes an episode.
type Config struct {
	Lookback int
	FeeRate  float64
	// MaxSteps caps episode length; 0 means no cap (run to end of data).
	MaxSteps int
}

// Info is the per-step observable state.
type Info struct {
	Price    float64
	Position float64
	Equity   float64
}

// StepResult is what one Step returns. Window is nil once the episode is
// terminal.
type StepResult struct {
	Window    features.Window
	Reward    float64
	Done      bool
	Truncated bool
	Info      Info
}

// Env is a single-episode trading state machine. Not safe for concurrent
// use; one goroutine per instance.
type Env struct {
	cfg Config
	ex  features.Extractor

	series   market.Series
	cursor   int
	position float64
	equity   float64
	steps    int
	phase    Phase
}

func New(cfg Config) *Env {
	return &Env{
		cfg: cfg,
		ex:  features.Extractor{Lookback: cfg.Lookback},
	}
}

func (e *Env) Phase() Phase { return e.phase }

// State returns the current {position, equity, step count}. Zero values
// before the first Reset.
func (e *Env) State() Info {
	var price float64
	if e.series != nil && e.cursor < len(e.series) {
		price = e.series[e.cursor].Close
	}
	return Info{Price: price, Position: e.position, Equity: e.equity}
}

// Reset starts a new episode at bar index start and returns the initial
// feature window. The history must hold at least lookback+1 bars with
// strictly increasing timestamps, and start must leave at least one bar
// of room to step into.
func (e *Env) Reset(s market.Series, start int) (features.Window, error) {
	if e.cfg.Lookback <= 0 {
		return nil, fmt.Errorf("%w: lookback must be positive", market.ErrInvalidHistory)
	}
	if len(s) < e.cfg.Lookback+1 {
		return nil, fmt.Errorf("%w: need at least %d bars, have %d",
			market.ErrInvalidHistory, e.cfg.Lookback+1, len(s))
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if start < e.cfg.Lookback-1 || start >= len(s)-1 {
		return nil, fmt.Errorf("%w: start index %d outside [%d, %d]",
			market.ErrInvalidHistory, start, e.cfg.Lookback-1, len(s)-2)
	}

	e.series = s
	e.cursor = start
	e.position = 0
	e.equity = 1.0
	e.steps = 0
	e.phase = Ready

	return e.ex.Window(s, start)
}

// Step advances the episode by one bar under the given target position.
//
//  1. ret = (close[cursor+1] - close[cursor]) / close[cursor]
//  2. reward = prevPos*ret - feeRate*|action - prevPos|
//  3. equity *= 1 + reward
//  4. position = clamp(action); cursor++, steps++
//  5. Done at equity <= 0; Truncated at end of data or the step cap.
func (e *Env) Step(action float64) (StepResult, error) {
	switch e.phase {
	case Uninitialized:
		return StepResult{}, fmt.Errorf("env: step before reset")
	case Done, Truncated:
		return StepResult{}, fmt.Errorf("env: step on terminal episode (%s)", e.phase)
	}

	action = Clamp(action)

	prev := e.series[e.cursor].Close
	next := e.series[e.cursor+1].Close
	ret := (next - prev) / prev

	reward := Reward(e.position, action, ret, e.cfg.FeeRate)
	CheckFinite("reward", reward)
	e.equity = Compound(e.equity, reward)
	CheckFinite("equity", e.equity)

	e.position = action
	e.cursor++
	e.steps++
	e.phase = Running

	info := Info{Price: next, Position: e.position, Equity: e.equity}

	switch {
	case e.equity <= 0:
		e.phase = Done
	case e.cursor >= len(e.series)-1:
		e.phase = Truncated
	case e.cfg.MaxSteps > 0 && e.steps >= e.cfg.MaxSteps:
		e.phase = Truncated
	}

	res := StepResult{
		Reward:    reward,
		Done:      e.phase == Done,
		Truncated: e.phase == Truncated,
		Info:      info,
	}
	if e.phase == Running {
		w, err := e.ex.Window(e.series, e.cursor)
		if err != nil {
			return StepResult{}, fmt.Errorf("env: window at cursor %d: %w", e.cursor, err)
		}
		res.Window = w
	}
	return res, nil
}
