package engine

import (
	"sync"
	"time"

	"risk_go/internal/domain"
)

// lifecycleState is the per-token debouncing record. It is never destroyed;
// it represents "this token's exposure is not mid-transition" for the process
// lifetime.
type lifecycleState struct {
	observedSide domain.Side
	observedQty  int
	observedAt   time.Time

	confirmed     bool
	confirmedSide domain.Side
	confirmedQty  int
}

// Stability is the outcome of one observation.
type Stability struct {
	Stable bool
	// Flipped is set on the STABLE transition where the confirmed side
	// differs from the previously confirmed side: the position reversed
	// direction rather than merely growing or shrinking, and any existing
	// stop now protects the wrong side.
	Flipped bool
}

// StabilityTracker confirms that a position's (side, quantity) pair has been
// unchanged for a minimum dwell time before risk actions proceed. Live
// position feeds report transient intermediate states while an order fills
// incrementally; acting on every tick risks sizing a stop against a quantity
// that is about to change again. The dwell trades reaction latency for
// correctness.
type StabilityTracker struct {
	mu     sync.Mutex
	states map[string]*lifecycleState
	dwell  time.Duration
}

// NewStabilityTracker creates a tracker with the given dwell delay.
func NewStabilityTracker(dwell time.Duration) *StabilityTracker {
	return &StabilityTracker{
		states: make(map[string]*lifecycleState),
		dwell:  dwell,
	}
}

// Observe records one (side, qty) observation for a token at the given time
// and reports whether the position is stable, and if so whether it flipped.
// Any change in the observed pair resets the dwell timer.
func (t *StabilityTracker) Observe(token string, side domain.Side, qty int, now time.Time) Stability {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.states[token]
	if !ok {
		t.states[token] = &lifecycleState{observedSide: side, observedQty: qty, observedAt: now}
		return Stability{}
	}

	if st.observedSide != side || st.observedQty != qty {
		st.observedSide = side
		st.observedQty = qty
		st.observedAt = now
		return Stability{}
	}

	if now.Sub(st.observedAt) < t.dwell {
		return Stability{}
	}

	flipped := st.confirmed && st.confirmedSide != side

	st.confirmed = true
	st.confirmedSide = side
	st.confirmedQty = qty

	return Stability{Stable: true, Flipped: flipped}
}

// Confirmed returns the last confirmed (side, qty) for a token, if any.
func (t *StabilityTracker) Confirmed(token string) (domain.Side, int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.states[token]
	if !ok || !st.confirmed {
		return "", 0, false
	}
	return st.confirmedSide, st.confirmedQty, true
}
