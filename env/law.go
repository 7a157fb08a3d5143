package env

import "math"

// Clamp bounds a raw action to the valid position range [-1, 1].
// Out-of-range actions are clamped, never rejected: a noisy policy output
// must not crash a rollout or a serving tick.
func Clamp(a float64) float64 {
	if a > 1 {
		return 1
	}
	if a < -1 {
		return -1
	}
	return a
}

// Reward is the single reward law shared by training rollouts and the
// live paper ledger: position return minus the proportional fee on the
// position change. Holding (action == prevPos) costs nothing.
func Reward(prevPos, action, ret, feeRate float64) float64 {
	return prevPos*ret - feeRate*math.Abs(action-prevPos)
}

// Compound applies one reward to a net-asset-value multiplicatively.
func Compound(equity, reward float64) float64 {
	return equity * (1 + reward)
}

// CheckFinite panics on non-finite equity or reward. Arithmetic blowing
// up here is a programming-invariant violation, not an input error, and
// must never be silently absorbed.
func CheckFinite(label string, v float64) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		panic("env: non-finite " + label)
	}
}
