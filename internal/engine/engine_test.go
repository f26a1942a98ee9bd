package engine

import (
	"context"
	"testing"
	"time"

	"risk_go/internal/domain"
	"risk_go/internal/infra"
)

func testEngine(broker *fakeBroker, journal *memJournal, cache *TradingCache) *Engine {
	return testEngineWithWindow(broker, journal, cache, testWindow())
}

func testEngineWithWindow(broker *fakeBroker, journal *memJournal, cache *TradingCache, window *infra.TradingWindow) *Engine {
	catalog := domain.NewCatalog([]domain.Instrument{testInstrument})
	stability := NewStabilityTracker(800 * time.Millisecond)
	stopLoss := testStopLoss(broker, journal)
	timeExit := NewTimeExit(broker, journal, 15*time.Minute, "M", "DAY")
	target := NewTarget(broker, journal, timeExit, TargetConfig{TargetPercent: 0.0025, ProductType: "M", Retention: "DAY"})
	return New(cache, catalog, window, stability, stopLoss, target)
}

func TestEngineSkipsStaleCache(t *testing.T) {
	broker := &fakeBroker{}
	cache := NewTradingCache(3 * time.Second)
	// Cache never filled: every snapshot is stale.
	eng := testEngine(broker, newMemJournal(), cache)

	eng.OnTick(context.Background(), domain.RawTick{Token: "101", Exchange: "NFO", LastPrice: 100})

	if len(broker.placed)+len(broker.modified)+len(broker.cancelled) != 0 {
		t.Fatal("stale cache still produced broker calls")
	}
}

func TestEngineRejectsBadTicks(t *testing.T) {
	broker := &fakeBroker{}
	cache := NewTradingCache(3 * time.Second)
	cache.SetPositions([]domain.NetPosition{{Token: "101", Exchange: "NFO", NetQty: 50}})
	cache.SetOrders(nil)
	cache.SetTrades(nil)
	eng := testEngine(broker, newMemJournal(), cache)

	bad := []domain.RawTick{
		{Token: "101", Exchange: "NFO", LastPrice: 0},
		{Token: "101", Exchange: "NFO", LastPrice: -5},
		{Token: "", Exchange: "NFO", LastPrice: 100},
		{Token: "101", Exchange: "", LastPrice: 100},
	}
	for _, raw := range bad {
		eng.OnTick(context.Background(), raw)
	}

	if len(broker.placed)+len(broker.modified)+len(broker.cancelled) != 0 {
		t.Fatal("invalid ticks produced side effects")
	}
}

func TestEngineCancelsStopWhenFlat(t *testing.T) {
	broker := &fakeBroker{}
	journal := newMemJournal()
	cache := NewTradingCache(3 * time.Second)
	cache.SetPositions(nil) // flat
	cache.SetOrders([]domain.WorkingOrder{{
		OrderID: "ORD-9", Token: "101", Exchange: "NFO",
		OrderType: domain.OrderTypeStopLimit, Status: domain.StatusTriggerPending,
		Qty: 50, TriggerPrice: 99.75, LimitPrice: 99.65,
	}})
	cache.SetTrades(nil)
	eng := testEngine(broker, journal, cache)

	eng.OnTick(context.Background(), domain.RawTick{Token: "101", Exchange: "NFO", LastPrice: 100})

	if len(broker.cancelled) != 1 || broker.cancelled[0] != "ORD-9" {
		t.Fatalf("cancelled = %v, want [ORD-9]", broker.cancelled)
	}
}

func closedWindow() *infra.TradingWindow {
	cfg := &infra.Config{}
	cfg.TradingWindow.StartHour, cfg.TradingWindow.StartMinute = 9, 20
	cfg.TradingWindow.EndHour, cfg.TradingWindow.EndMinute = 9, 20
	return infra.NewTradingWindow(cfg)
}

func TestEngineGatesTargetOutsideWindow(t *testing.T) {
	broker := &fakeBroker{}
	journal := newMemJournal()
	cache := NewTradingCache(3 * time.Second)
	cache.SetPositions([]domain.NetPosition{{Token: "101", Exchange: "NFO", NetQty: 50, AvgPrice: 100}})
	cache.SetOrders(nil)
	cache.SetTrades([]domain.Trade{entryTrade(domain.SideBuy, 100)})
	eng := testEngineWithWindow(broker, journal, cache, closedWindow())

	// The price is past the target, but the session is closed: no booking,
	// no time-exit tracking.
	eng.OnTick(context.Background(), domain.RawTick{Token: "101", Exchange: "NFO", LastPrice: 100.30})

	if len(broker.placed) != 0 {
		t.Fatalf("closed session still placed %d order(s): %+v", len(broker.placed), broker.placed)
	}
	if st, _ := journal.LoadTimeExit("101", "ENTRY-1"); st != nil {
		t.Error("closed session still tracked time-exit state")
	}
	if track, _ := journal.ReadTargetTrack("101", "ENTRY-1"); len(track) != 0 {
		t.Errorf("closed session still journaled target entries: %+v", track)
	}
}

func TestEngineGatesTargetUntilStable(t *testing.T) {
	broker := &fakeBroker{nextOrderID: "ORD-1"}
	journal := newMemJournal()
	cache := NewTradingCache(3 * time.Second)
	cache.SetPositions([]domain.NetPosition{{Token: "101", Exchange: "NFO", NetQty: 50, AvgPrice: 100}})
	cache.SetOrders(nil)
	cache.SetTrades([]domain.Trade{entryTrade(domain.SideBuy, 100)})
	eng := testEngine(broker, journal, cache)

	now := time.Date(2026, 2, 10, 10, 0, 0, 0, time.UTC)
	eng.now = func() time.Time { return now }

	// First-ever observation of the position: quantity not confirmed yet,
	// so neither the stop nor the target may act on the crossed price.
	eng.OnTick(context.Background(), domain.RawTick{Token: "101", Exchange: "NFO", LastPrice: 100.30})
	if len(broker.placed) != 0 {
		t.Fatalf("unconfirmed position still placed %d order(s): %+v", len(broker.placed), broker.placed)
	}

	// After the dwell the same quantity confirms and both paths open up.
	now = now.Add(900 * time.Millisecond)
	eng.OnTick(context.Background(), domain.RawTick{Token: "101", Exchange: "NFO", LastPrice: 100.30})
	if len(broker.placed) != 2 {
		t.Fatalf("confirmed position placed %d order(s), want stop + booking", len(broker.placed))
	}
	if broker.placed[0].OrderType != domain.OrderTypeStopLimit {
		t.Errorf("first order = %s, want SL-LMT", broker.placed[0].OrderType)
	}
	if broker.placed[1].OrderType != domain.OrderTypeMarket || broker.placed[1].Qty != 25 {
		t.Errorf("booking order = %+v, want MKT 25", broker.placed[1])
	}
}

func TestEngineIgnoresUnknownInstrument(t *testing.T) {
	broker := &fakeBroker{}
	cache := NewTradingCache(3 * time.Second)
	cache.SetPositions([]domain.NetPosition{{Token: "999", Exchange: "NFO", NetQty: 50}})
	cache.SetOrders(nil)
	cache.SetTrades(nil)
	eng := testEngine(broker, newMemJournal(), cache)

	eng.OnTick(context.Background(), domain.RawTick{Token: "999", Exchange: "NFO", LastPrice: 100})

	if len(broker.placed) != 0 {
		t.Fatal("unknown token still placed orders")
	}
}
