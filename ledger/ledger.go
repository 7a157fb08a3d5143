// Package ledger maintains the persistent paper-trading position and
// net-asset-value across externally triggered ticks. It shares the
// environment's reward law exactly; the only thing it adds is state
// discipline: one serialized mutation per tick and idempotency under
// duplicate or out-of-order triggers.
package ledger

import (
	"sync"
	"time"

	"github.com/rustyeddy/btcpaper/env"
	"github.com/rustyeddy/btcpaper/pkg/id"
)

// Decision is the immutable record emitted once per processed tick. It is
// the externally observable unit: the journal, the HTTP response, and the
// metrics all derive from it.
type Decision struct {
	ID       string    `json:"id"`
	Time     time.Time `json:"time"`
	Price    float64   `json:"price"`
	Action   float64   `json:"action"`
	Position float64   `json:"position"`
	Equity   float64   `json:"equity"`
	// Duplicate marks a replayed trigger: the prior decision was returned
	// and no state was mutated.
	Duplicate bool   `json:"duplicate,omitempty"`
	Note      string `json:"note"`
}

// State is the exportable ledger state, the exact set of fields an
// external store persists across restarts.
type State struct {
	Position  float64   `json:"position"`
	Equity    float64   `json:"equity"`
	LastPrice float64   `json:"last_price"`
	LastTime  time.Time `json:"last_time"`
	Steps     int64     `json:"steps"`
}

// Ledger is the single mutable paper-trading instance for one symbol.
// All mutation happens inside one critical section per Update call;
// concurrent triggers serialize.
type Ledger struct {
	mu      sync.Mutex
	feeRate float64
	note    string

	position float64
	equity   float64
	lastPx   float64
	lastTime time.Time
	steps    int64
	prior    Decision // last emitted decision, re-served on duplicates
}

func New(feeRate float64) *Ledger {
	return &Ledger{
		feeRate: feeRate,
		equity:  1.0,
		note:    "paper-trade",
	}
}

// Update applies one tick.
//
// A timestamp at or before the last applied one is a duplicate or
// out-of-order trigger (scheduler retry, redelivered message): the prior
// decision is returned with Duplicate set and the reward law is not
// re-applied. The very first tick records price and position but skips
// the reward update, since there is no prior price to compute a return
// against.
func (l *Ledger) Update(ts time.Time, price float64, action float64) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.lastTime.IsZero() && !ts.After(l.lastTime) {
		d := l.prior
		d.Duplicate = true
		return d
	}

	action = env.Clamp(action)

	if l.lastPx != 0 {
		ret := (price - l.lastPx) / l.lastPx
		reward := env.Reward(l.position, action, ret, l.feeRate)
		env.CheckFinite("reward", reward)
		l.equity = env.Compound(l.equity, reward)
		env.CheckFinite("equity", l.equity)
	}

	l.position = action
	l.lastPx = price
	l.lastTime = ts
	l.steps++

	d := Decision{
		ID:       id.New(),
		Time:     ts,
		Price:    price,
		Action:   action,
		Position: l.position,
		Equity:   l.equity,
		Note:     l.note,
	}
	l.prior = d
	return d
}

// Export snapshots the ledger state for external persistence.
func (l *Ledger) Export() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return State{
		Position:  l.position,
		Equity:    l.equity,
		LastPrice: l.lastPx,
		LastTime:  l.lastTime,
		Steps:     l.steps,
	}
}

// Import restores a previously exported state, e.g. after a process
// restart. A zero state leaves the ledger at its initial values.
func (l *Ledger) Import(s State) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.position = env.Clamp(s.Position)
	l.equity = s.Equity
	if l.equity == 0 && s.Steps == 0 {
		l.equity = 1.0
	}
	l.lastPx = s.LastPrice
	l.lastTime = s.LastTime
	l.steps = s.Steps
}
