// Package policy adapts an opaque trained policy to the decision surface
// the orchestrator calls. The engine never sees how the policy was
// trained or deserialized, only that it maps a feature window to a raw
// action.
package policy

import (
	"github.com/rustyeddy/btcpaper/env"
	"github.com/rustyeddy/btcpaper/features"
)

// Policy is an opaque trained policy.
type Policy interface {
	Evaluate(w features.Window) (float64, error)
}

// Provider supplies the current policy, if any. Absent models are normal
// operation (service starting before the first training run finishes),
// not an error.
type Provider interface {
	// GetPolicy returns the loaded policy and true, or (nil, false).
	GetPolicy() (Policy, bool)
	// Version identifies the loaded artifact, "" when absent.
	Version() string
}

// Verdict is the result of one decision.
type Verdict struct {
	Action float64
	// Degraded marks the fallback flat action taken when no policy is
	// loaded or evaluation failed.
	Degraded     bool
	ModelVersion string
}

// Engine produces bounded actions from feature windows. Stateless; safe
// for concurrent use if the Provider is.
type Engine struct {
	provider Provider
}

func NewEngine(p Provider) *Engine {
	return &Engine{provider: p}
}

// Decide evaluates the current policy on the window and clamps the result
// to [-1, 1]. A missing policy or a failed evaluation degrades to the
// flat action 0 — a serving loop must keep producing decisions either
// way, so this is the one place "no model" is absorbed rather than
// raised.
func (e *Engine) Decide(w features.Window) Verdict {
	p, ok := e.provider.GetPolicy()
	if !ok {
		return Verdict{Action: 0, Degraded: true}
	}

	raw, err := p.Evaluate(w)
	if err != nil {
		return Verdict{Action: 0, Degraded: true, ModelVersion: e.provider.Version()}
	}

	return Verdict{
		Action:       env.Clamp(raw),
		ModelVersion: e.provider.Version(),
	}
}

// PolicyFunc adapts a plain function to Policy. Used by tests and the
// backtest command's fixed strategies.
type PolicyFunc func(w features.Window) (float64, error)

func (f PolicyFunc) Evaluate(w features.Window) (float64, error) { return f(w) }

// Static is a Provider that always serves the same policy. Nil p means
// "no model loaded".
type Static struct {
	P   Policy
	Ver string
}

func (s Static) GetPolicy() (Policy, bool) { return s.P, s.P != nil }
func (s Static) Version() string           { return s.Ver }
