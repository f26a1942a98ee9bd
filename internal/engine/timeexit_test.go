package engine

import (
	"context"
	"testing"
	"time"

	"risk_go/internal/domain"
)

func testTimeExit(broker *fakeBroker, journal *memJournal, now *time.Time) *TimeExit {
	te := NewTimeExit(broker, journal, 15*time.Minute, "M", "DAY")
	te.now = func() time.Time { return *now }
	return te
}

func timeExitEntry() *domain.Trade {
	return &domain.Trade{
		OrderID: "ENTRY-1", Token: "101", Exchange: "NFO",
		Side: domain.SideBuy, FillPrice: 100, Qty: 50,
	}
}

func TestTimeExitNewHighResetsClock(t *testing.T) {
	broker := &fakeBroker{}
	journal := newMemJournal()
	now := time.Date(2026, 2, 10, 10, 0, 0, 0, time.UTC)
	te := testTimeExit(broker, journal, &now)

	pos := longPosition(50)
	entry := timeExitEntry()

	te.Process(context.Background(), testTick(100), testInstrument, pos, entry)

	// 14 minutes in, a new high resets the clock.
	now = now.Add(14 * time.Minute)
	te.Process(context.Background(), testTick(100.5), testInstrument, pos, entry)

	// 14 more minutes: 28 elapsed overall but only 14 since the high.
	now = now.Add(14 * time.Minute)
	te.Process(context.Background(), testTick(100.2), testInstrument, pos, entry)

	if len(broker.placed) != 0 {
		t.Fatal("exit fired even though a new high reset the clock")
	}

	st, _ := journal.LoadTimeExit("101", "ENTRY-1")
	if st == nil || st.ReferencePrice != 100.5 {
		t.Fatalf("reference = %+v, want 100.5", st)
	}
}

func TestTimeExitFiresAfterWindow(t *testing.T) {
	broker := &fakeBroker{}
	journal := newMemJournal()
	now := time.Date(2026, 2, 10, 10, 0, 0, 0, time.UTC)
	te := testTimeExit(broker, journal, &now)

	pos := longPosition(50)
	entry := timeExitEntry()

	te.Process(context.Background(), testTick(100), testInstrument, pos, entry)

	// No new high for the full window: one full-quantity market close.
	now = now.Add(15 * time.Minute)
	te.Process(context.Background(), testTick(99.9), testInstrument, pos, entry)

	if len(broker.placed) != 1 {
		t.Fatalf("placed %d orders, want 1", len(broker.placed))
	}
	req := broker.placed[0]
	if req.Side != domain.SideSell || req.OrderType != domain.OrderTypeMarket || req.Qty != 50 {
		t.Errorf("close order = %+v, want SELL MKT 50", req)
	}

	// Tracked state is gone afterwards.
	st, _ := journal.LoadTimeExit("101", "ENTRY-1")
	if st != nil {
		t.Fatal("state survived the exit")
	}
}

func TestTimeExitUsesPositionProduct(t *testing.T) {
	broker := &fakeBroker{}
	journal := newMemJournal()
	now := time.Date(2026, 2, 10, 10, 0, 0, 0, time.UTC)
	te := testTimeExit(broker, journal, &now)

	pos := longPosition(50)
	pos.ProductType = "I"
	entry := timeExitEntry()

	te.Process(context.Background(), testTick(100), testInstrument, pos, entry)
	now = now.Add(15 * time.Minute)
	te.Process(context.Background(), testTick(99.9), testInstrument, pos, entry)

	if len(broker.placed) != 1 || broker.placed[0].ProductType != "I" {
		t.Fatalf("placed = %+v, want the position's product I over the configured M", broker.placed)
	}
}

func TestTimeExitEqualPriceDoesNotReset(t *testing.T) {
	broker := &fakeBroker{}
	journal := newMemJournal()
	now := time.Date(2026, 2, 10, 10, 0, 0, 0, time.UTC)
	te := testTimeExit(broker, journal, &now)

	pos := longPosition(50)
	entry := timeExitEntry()

	te.Process(context.Background(), testTick(100), testInstrument, pos, entry)

	// Re-touching the reference is not an improvement.
	now = now.Add(10 * time.Minute)
	te.Process(context.Background(), testTick(100), testInstrument, pos, entry)

	now = now.Add(5 * time.Minute)
	te.Process(context.Background(), testTick(100), testInstrument, pos, entry)

	if len(broker.placed) != 1 {
		t.Fatalf("placed %d orders, want 1 after 15 flat minutes", len(broker.placed))
	}
}

func TestTimeExitShortSide(t *testing.T) {
	broker := &fakeBroker{}
	journal := newMemJournal()
	now := time.Date(2026, 2, 10, 10, 0, 0, 0, time.UTC)
	te := testTimeExit(broker, journal, &now)

	short := &domain.NetPosition{Token: "101", Exchange: "NFO", NetQty: -50, AvgPrice: 200}
	entry := &domain.Trade{OrderID: "ENTRY-2", Token: "101", Exchange: "NFO", Side: domain.SideSell, FillPrice: 200}

	te.Process(context.Background(), testTick(200), testInstrument, short, entry)

	// New low resets; higher prices do not.
	now = now.Add(10 * time.Minute)
	te.Process(context.Background(), testTick(199.5), testInstrument, short, entry)

	now = now.Add(14 * time.Minute)
	te.Process(context.Background(), testTick(199.8), testInstrument, short, entry)
	if len(broker.placed) != 0 {
		t.Fatal("short exit fired with a recent new low")
	}

	now = now.Add(time.Minute)
	te.Process(context.Background(), testTick(199.8), testInstrument, short, entry)
	if len(broker.placed) != 1 || broker.placed[0].Side != domain.SideBuy {
		t.Fatalf("placed = %+v, want one BUY close", broker.placed)
	}
}

func TestTimeExitClearForToken(t *testing.T) {
	broker := &fakeBroker{}
	journal := newMemJournal()
	now := time.Date(2026, 2, 10, 10, 0, 0, 0, time.UTC)
	te := testTimeExit(broker, journal, &now)

	te.Process(context.Background(), testTick(100), testInstrument, longPosition(50), timeExitEntry())

	// Position flattened elsewhere (stop fired): state cleared, no order.
	te.ClearForToken("101")

	st, _ := journal.LoadTimeExit("101", "ENTRY-1")
	if st != nil {
		t.Fatal("state survived ClearForToken")
	}
	if len(broker.placed) != 0 {
		t.Fatal("cleanup placed an order")
	}
}

func TestTimeExitPrunesRollingWindow(t *testing.T) {
	broker := &fakeBroker{}
	journal := newMemJournal()
	now := time.Date(2026, 2, 10, 10, 0, 0, 0, time.UTC)
	te := testTimeExit(broker, journal, &now)

	pos := longPosition(50)
	entry := timeExitEntry()

	// Rising prices keep the clock fresh while old ticks age out.
	for i := 0; i < 20; i++ {
		te.Process(context.Background(), testTick(100+float64(i)*0.1), testInstrument, pos, entry)
		now = now.Add(2 * time.Minute)
	}

	st, _ := journal.LoadTimeExit("101", "ENTRY-1")
	if st == nil {
		t.Fatal("state missing")
	}
	for _, p := range st.Ticks {
		if now.Sub(p.Time) > 15*time.Minute+2*time.Minute {
			t.Fatalf("tick from %v not pruned (now %v)", p.Time, now)
		}
	}
	if len(st.Ticks) >= 20 {
		t.Fatalf("window kept all %d ticks", len(st.Ticks))
	}
}
