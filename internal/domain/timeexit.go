package domain

import "time"

// PricePoint is one observed price in a time-exit rolling window.
type PricePoint struct {
	Price float64   `json:"price"`
	Time  time.Time `json:"time"`
}

// TimeExitState tracks one open entry for the time-based exit. The clock it
// keeps is time since the last NEW favorable extreme, not elapsed trade
// duration: ReferenceUpdatedAt resets every time ReferencePrice improves.
type TimeExitState struct {
	Token              string       `json:"token"`
	EntryOrderID       string       `json:"entryOrderId"`
	Side               Side         `json:"side"`
	ReferencePrice     float64      `json:"referencePrice"`
	ReferenceUpdatedAt time.Time    `json:"referenceUpdatedAt"`
	Ticks              []PricePoint `json:"ticks"`
}

// Improves reports whether price is a new favorable extreme for the state's
// side. Improvement is strict; an equal price does not reset the clock.
func (s *TimeExitState) Improves(price float64) bool {
	if s.Side == SideBuy {
		return price > s.ReferencePrice
	}
	return price < s.ReferencePrice
}

// PruneTicks drops window entries older than cutoff, preserving order.
func (s *TimeExitState) PruneTicks(cutoff time.Time) {
	i := 0
	for i < len(s.Ticks) && s.Ticks[i].Time.Before(cutoff) {
		i++
	}
	if i > 0 {
		s.Ticks = append([]PricePoint(nil), s.Ticks[i:]...)
	}
}
