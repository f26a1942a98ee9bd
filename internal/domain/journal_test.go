package domain

import (
	"testing"
	"time"
)

func f(v float64) *float64 { return &v }

func TestReduceTrail(t *testing.T) {
	t.Run("Initial Placement Only", func(t *testing.T) {
		track := []OrderTrackEntry{
			{
				Action:       ActionInitialSLPlaced,
				Side:         SideBuy,
				Stage:        StageStandard,
				Trigger:      99.75,
				OpenPrice:    100,
				EntryPrice:   100,
				HighestPrice: f(100),
			},
		}

		st, ok := ReduceTrail(track)
		if !ok {
			t.Fatal("placement entry should be reducible")
		}
		if st.OpenPrice != 100 || st.CurrentSL != 99.75 || st.Stage != StageStandard {
			t.Errorf("unexpected state: %+v", st)
		}
		if st.HighestPrice == nil || *st.HighestPrice != 100 {
			t.Errorf("highest should be seeded at entry price, got %v", st.HighestPrice)
		}
	})

	t.Run("Trail Entries Advance Stop And Extreme", func(t *testing.T) {
		track := []OrderTrackEntry{
			{Action: ActionInitialSLPlaced, Side: SideBuy, Stage: StageStandard, Trigger: 99.75, OpenPrice: 100, HighestPrice: f(100)},
			{Action: ActionSLTrailed, Side: SideBuy, Stage: StageStandard, PreviousSL: f(99.75), NewSL: f(100.1), HighestPrice: f(100.35)},
			{Action: ActionSLTrailed, Side: SideBuy, Stage: StageFirstProfit, PreviousSL: f(100.1), NewSL: f(100.45), HighestPrice: f(100.6)},
		}

		st, ok := ReduceTrail(track)
		if !ok {
			t.Fatal("journal should be reducible")
		}
		if st.CurrentSL != 100.45 {
			t.Errorf("expected current SL 100.45, got %v", st.CurrentSL)
		}
		if *st.HighestPrice != 100.6 {
			t.Errorf("expected extreme 100.6, got %v", *st.HighestPrice)
		}
		if st.Stage != StageFirstProfit {
			t.Errorf("expected FIRST_PROFIT stage, got %v", st.Stage)
		}
	})

	t.Run("Stage Never Reverts", func(t *testing.T) {
		// A later STANDARD entry must not undo an earlier FIRST_PROFIT one.
		track := []OrderTrackEntry{
			{Action: ActionInitialSLPlaced, Side: SideBuy, Stage: StageStandard, Trigger: 99.75, OpenPrice: 100},
			{Action: ActionSLTrailed, Stage: StageFirstProfit, NewSL: f(100.2)},
			{Action: ActionSLQtySynced, Stage: StageStandard},
		}

		st, ok := ReduceTrail(track)
		if !ok {
			t.Fatal("journal should be reducible")
		}
		if st.Stage != StageFirstProfit {
			t.Errorf("stage regressed to %v", st.Stage)
		}
	})

	t.Run("Qty Sync Does Not Move Stop", func(t *testing.T) {
		track := []OrderTrackEntry{
			{Action: ActionInitialSLPlaced, Side: SideSell, Stage: StageStandard, Trigger: 100.25, OpenPrice: 100, LowestPrice: f(100)},
			{Action: ActionSLQtySynced, PreviousQty: 50, NewQty: 100, TriggerPrice: 100.25, LimitPrice: 100.35},
		}

		st, ok := ReduceTrail(track)
		if !ok {
			t.Fatal("journal should be reducible")
		}
		if st.CurrentSL != 100.25 {
			t.Errorf("qty sync must not change the stop, got %v", st.CurrentSL)
		}
	})

	t.Run("Incomplete Journal", func(t *testing.T) {
		if _, ok := ReduceTrail(nil); ok {
			t.Error("empty journal must not be reducible")
		}
		if _, ok := ReduceTrail([]OrderTrackEntry{{Action: ActionSLCancelled, Reason: ReasonPositionClosed}}); ok {
			t.Error("journal without open price and trigger must not be reducible")
		}
	})
}

func TestTargetTrackHelpers(t *testing.T) {
	booked := []TargetTrackEntry{
		{Action: ActionSkipped, Reason: ReasonAlreadyClosed},
		{Action: ActionTargetBooked, EntryPrice: 100, TargetPrice: 100.25, NetQty: 150, CloseQty: 50},
	}

	t.Run("Booked Detection", func(t *testing.T) {
		if !IsTargetBooked(booked) {
			t.Error("should detect TARGET_BOOKED_50_PERCENT entry")
		}
		if IsTargetBooked(booked[:1]) {
			t.Error("skip marker alone is not a booking")
		}
	})

	t.Run("Throttle Counting", func(t *testing.T) {
		track := []TargetTrackEntry{
			{Action: ActionSkipped, Reason: ReasonAlreadyClosed},
			{Action: ActionSkipped, Reason: ReasonAlreadyClosed},
			{Action: ActionTargetHitNoOp, Reason: ReasonQtyWithinOneLot},
		}

		if CountTargetAction(track, ActionSkipped, ReasonAlreadyClosed) != 2 {
			t.Error("expected 2 skip markers")
		}
		if CanAppendTargetAction(track, ActionSkipped, ReasonAlreadyClosed, 2) {
			t.Error("third skip marker must be throttled")
		}
		if !CanAppendTargetAction(track, ActionTargetHitNoOp, ReasonQtyWithinOneLot, 2) {
			t.Error("second no-op marker should still be allowed")
		}
	})
}

func TestLatestEntryTrade(t *testing.T) {
	tick := NormalizedTick{Token: "43567", Exchange: "NFO", LastPrice: 102}
	base := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)

	trades := []Trade{
		{OrderID: "T1", Token: "43567", Exchange: "NFO", Side: SideBuy, FillPrice: 99, ExchTime: base},
		{OrderID: "T2", Token: "43567", Exchange: "NFO", Side: SideSell, FillPrice: 101, ExchTime: base.Add(2 * time.Minute)},
		{OrderID: "T3", Token: "43567", Exchange: "NFO", Side: SideBuy, FillPrice: 100, ExchTime: base.Add(time.Minute)},
		{OrderID: "T4", Token: "99999", Exchange: "NFO", Side: SideBuy, FillPrice: 50, ExchTime: base.Add(3 * time.Minute)},
	}

	entry := LatestEntryTrade(trades, tick, SideBuy)
	if entry == nil || entry.OrderID != "T3" {
		t.Fatalf("expected latest BUY trade T3, got %+v", entry)
	}

	if LatestEntryTrade(trades[:1], tick, SideSell) != nil {
		t.Error("no SELL trade should match")
	}
}
