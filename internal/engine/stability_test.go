package engine

import (
	"testing"
	"time"

	"risk_go/internal/domain"
)

func TestStabilityTracker(t *testing.T) {
	base := time.Date(2026, 2, 10, 10, 0, 0, 0, time.UTC)
	dwell := 800 * time.Millisecond

	t.Run("first observation is unstable", func(t *testing.T) {
		tr := NewStabilityTracker(dwell)
		st := tr.Observe("101", domain.SideBuy, 50, base)
		if st.Stable {
			t.Fatal("first observation reported stable")
		}
	})

	t.Run("stable after dwell elapses", func(t *testing.T) {
		tr := NewStabilityTracker(dwell)
		tr.Observe("101", domain.SideBuy, 50, base)

		st := tr.Observe("101", domain.SideBuy, 50, base.Add(500*time.Millisecond))
		if st.Stable {
			t.Fatal("stable before dwell elapsed")
		}

		st = tr.Observe("101", domain.SideBuy, 50, base.Add(dwell))
		if !st.Stable {
			t.Fatal("not stable after dwell elapsed")
		}
		if st.Flipped {
			t.Fatal("first confirmation reported flipped")
		}
	})

	t.Run("quantity change resets the dwell timer", func(t *testing.T) {
		tr := NewStabilityTracker(dwell)
		tr.Observe("101", domain.SideBuy, 50, base)
		tr.Observe("101", domain.SideBuy, 100, base.Add(700*time.Millisecond))

		// 800ms since first observation, but only 100ms since the change.
		st := tr.Observe("101", domain.SideBuy, 100, base.Add(dwell))
		if st.Stable {
			t.Fatal("stable despite recent quantity change")
		}

		st = tr.Observe("101", domain.SideBuy, 100, base.Add(700*time.Millisecond+dwell))
		if !st.Stable {
			t.Fatal("not stable after dwell from the change")
		}
	})

	t.Run("side flip between confirmations", func(t *testing.T) {
		tr := NewStabilityTracker(dwell)
		tr.Observe("101", domain.SideBuy, 10, base)
		st := tr.Observe("101", domain.SideBuy, 10, base.Add(dwell))
		if !st.Stable || st.Flipped {
			t.Fatalf("long confirmation: %+v", st)
		}

		// Position reverses to net short 5.
		at := base.Add(2 * time.Second)
		tr.Observe("101", domain.SideSell, 5, at)
		st = tr.Observe("101", domain.SideSell, 5, at.Add(dwell))
		if !st.Stable {
			t.Fatal("flipped position never confirmed")
		}
		if !st.Flipped {
			t.Fatal("side reversal not flagged as flipped")
		}

		// Re-confirming the same side is no longer a flip.
		st = tr.Observe("101", domain.SideSell, 5, at.Add(2*dwell))
		if !st.Stable || st.Flipped {
			t.Fatalf("re-confirmation: %+v", st)
		}
	})

	t.Run("growth on the same side is not a flip", func(t *testing.T) {
		tr := NewStabilityTracker(dwell)
		tr.Observe("101", domain.SideBuy, 10, base)
		tr.Observe("101", domain.SideBuy, 10, base.Add(dwell))

		at := base.Add(2 * time.Second)
		tr.Observe("101", domain.SideBuy, 20, at)
		st := tr.Observe("101", domain.SideBuy, 20, at.Add(dwell))
		if !st.Stable || st.Flipped {
			t.Fatalf("same-side growth: %+v", st)
		}
	})

	t.Run("tokens are tracked independently", func(t *testing.T) {
		tr := NewStabilityTracker(dwell)
		tr.Observe("101", domain.SideBuy, 10, base)
		st := tr.Observe("202", domain.SideBuy, 10, base.Add(dwell))
		if st.Stable {
			t.Fatal("second token confirmed off the first token's clock")
		}
	})
}

func TestStabilityTrackerConfirmed(t *testing.T) {
	base := time.Date(2026, 2, 10, 10, 0, 0, 0, time.UTC)
	tr := NewStabilityTracker(800 * time.Millisecond)

	if _, _, ok := tr.Confirmed("101"); ok {
		t.Fatal("unseen token reported confirmed")
	}

	tr.Observe("101", domain.SideSell, 25, base)
	tr.Observe("101", domain.SideSell, 25, base.Add(time.Second))

	side, qty, ok := tr.Confirmed("101")
	if !ok || side != domain.SideSell || qty != 25 {
		t.Fatalf("Confirmed = (%s, %d, %v), want (SELL, 25, true)", side, qty, ok)
	}
}
