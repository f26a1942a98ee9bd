package domain

import "time"

// Trailing stages. The transition STANDARD -> FIRST_PROFIT is one-way.
type Stage string

const (
	StageStandard    Stage = "STANDARD"
	StageFirstProfit Stage = "FIRST_PROFIT"
)

// Stop journal actions.
const (
	ActionInitialSLPlaced = "INITIAL_SL_PLACED"
	ActionSLTrailed       = "SL_TRAILED"
	ActionSLQtySynced     = "SL_QTY_SYNCED"
	ActionSLCancelled     = "SL_CANCELLED"
)

// Stop cancellation reasons.
const (
	ReasonPositionClosed  = "NET_POSITION_CLOSED"
	ReasonPositionFlipped = "POSITION_FLIPPED_REVERSE_SIDE"
)

// Target journal actions and reasons.
const (
	ActionTargetBooked    = "TARGET_BOOKED_50_PERCENT"
	ActionTargetHitNoOp   = "TARGET_HIT_NOT_CLOSED"
	ActionSkipped         = "SKIPPED"
	ReasonAlreadyClosed   = "TRADE_ALREADY_CLOSED"
	ReasonQtyWithinOneLot = "NET_QTY_NOT_MORE_THAN_1_LOT"
	ReasonHalfBelowOneLot = "CLOSE_QTY_LESS_THAN_ONE_LOT_AFTER_ROUNDING"
)

// OrderTrackEntry is one event in a stop order's append-only journal. The
// ordered journal is the authoritative source for the stop's current trigger,
// stage and running extreme; there is no separate mutable state that could
// drift from what was actually sent to the broker.
//
// Pointer fields are omitted from JSON when absent so that replay can tell
// "not recorded" apart from zero.
type OrderTrackEntry struct {
	Action string `json:"action"`
	Side   Side   `json:"side,omitempty"`
	Stage  Stage  `json:"stage,omitempty"`
	Reason string `json:"reason,omitempty"`

	Trigger    float64  `json:"trigger,omitempty"`
	PreviousSL *float64 `json:"previousSL,omitempty"`
	NewSL      *float64 `json:"newSL,omitempty"`

	OpenPrice  float64 `json:"openPrice,omitempty"`
	EntryPrice float64 `json:"entryPrice,omitempty"`

	SLPercentUsed float64 `json:"slPercentUsed,omitempty"`
	SLDiffUsed    float64 `json:"slDiffUsed,omitempty"`

	HighestPrice *float64 `json:"highestPrice,omitempty"`
	LowestPrice  *float64 `json:"lowestPrice,omitempty"`

	Qty         int `json:"qty,omitempty"`
	PreviousQty int `json:"previousQty,omitempty"`
	NewQty      int `json:"newQty,omitempty"`

	TriggerPrice float64 `json:"triggerPrice,omitempty"`
	LimitPrice   float64 `json:"limitPrice,omitempty"`

	Time time.Time `json:"time"`
}

// TrailState is the state of a stop derived by replaying its journal.
type TrailState struct {
	OpenPrice    float64
	CurrentSL    float64
	HighestPrice *float64
	LowestPrice  *float64
	Stage        Stage
}

// ReduceTrail folds an ordered stop journal into the current trailing state.
// It returns false when the journal does not contain enough information to
// trail (no open price or no trigger ever recorded).
func ReduceTrail(track []OrderTrackEntry) (TrailState, bool) {
	st := TrailState{Stage: StageStandard}
	haveOpen, haveSL := false, false

	for i := range track {
		e := &track[i]
		if e.OpenPrice != 0 && !haveOpen {
			st.OpenPrice = e.OpenPrice
			haveOpen = true
		}
		if e.Trigger != 0 && !haveSL {
			st.CurrentSL = e.Trigger
			haveSL = true
		}
		if e.NewSL != nil {
			st.CurrentSL = *e.NewSL
			haveSL = true
		}
		if e.HighestPrice != nil {
			st.HighestPrice = e.HighestPrice
		}
		if e.LowestPrice != nil {
			st.LowestPrice = e.LowestPrice
		}
		if e.Stage == StageFirstProfit {
			st.Stage = StageFirstProfit
		}
	}

	if !haveOpen || !haveSL {
		return TrailState{}, false
	}
	return st, true
}

// TargetTrackEntry is one event in the per-entry-order target journal.
type TargetTrackEntry struct {
	Action string `json:"action"`
	Reason string `json:"reason,omitempty"`

	EntryPrice  float64 `json:"entryPrice,omitempty"`
	TargetPrice float64 `json:"targetPrice,omitempty"`
	NetQty      int     `json:"netQty,omitempty"`
	CloseQty    int     `json:"closeQty,omitempty"`

	Time time.Time `json:"time"`
}

// IsTargetBooked reports whether the journal already records the one-time
// partial booking for this entry order.
func IsTargetBooked(track []TargetTrackEntry) bool {
	for i := range track {
		if track[i].Action == ActionTargetBooked {
			return true
		}
	}
	return false
}

// CountTargetAction counts journal entries with the given action and, when
// reason is non-empty, the given reason.
func CountTargetAction(track []TargetTrackEntry, action, reason string) int {
	n := 0
	for i := range track {
		e := &track[i]
		if e.Action == action && (reason == "" || e.Reason == reason) {
			n++
		}
	}
	return n
}

// CanAppendTargetAction throttles repeated no-op markers: an (action, reason)
// pair may appear at most maxCount times in a journal.
func CanAppendTargetAction(track []TargetTrackEntry, action, reason string, maxCount int) bool {
	return CountTargetAction(track, action, reason) < maxCount
}
