package engine

import (
	"context"
	"log/slog"
	"time"

	"risk_go/internal/domain"
	"risk_go/internal/infra"
)

// TimeExit forces a full close when a position has gone too long without a
// new favorable price extreme. The tracked state lives in a per
// (token, entry order id) file so the clock survives restarts; the file is
// the one journal that gets deleted, on exit or when the position flattens.
type TimeExit struct {
	broker domain.Broker
	store  domain.TimeExitStore
	window time.Duration

	productType string
	retention   string

	now    func() time.Time
	logger *slog.Logger
}

// NewTimeExit wires a time-based exit tracker with the given rolling window.
func NewTimeExit(broker domain.Broker, store domain.TimeExitStore, window time.Duration, productType, retention string) *TimeExit {
	return &TimeExit{
		broker:      broker,
		store:       store,
		window:      window,
		productType: productType,
		retention:   retention,
		now:         time.Now,
		logger:      slog.Default().With("module", "timeexit"),
	}
}

// Process feeds one tick into the rolling window for the position's entry
// order. When the time since the last new extreme reaches the window, it
// submits one full-quantity market close and clears the tracked state.
func (t *TimeExit) Process(ctx context.Context, tick domain.NormalizedTick, ins domain.Instrument,
	position *domain.NetPosition, entry *domain.Trade) {

	now := t.now()

	st, err := t.store.LoadTimeExit(tick.Token, entry.OrderID)
	if err != nil {
		t.logger.Error("time-exit state load failed",
			slog.String("token", tick.Token), slog.String("entryOrderId", entry.OrderID), slog.Any("error", err))
		return
	}

	if st == nil {
		st = &domain.TimeExitState{
			Token:              tick.Token,
			EntryOrderID:       entry.OrderID,
			Side:               position.Side(),
			ReferencePrice:     tick.LastPrice,
			ReferenceUpdatedAt: now,
		}
	}

	st.Ticks = append(st.Ticks, domain.PricePoint{Price: tick.LastPrice, Time: now})
	st.PruneTicks(now.Add(-t.window))

	if st.Improves(tick.LastPrice) {
		st.ReferencePrice = tick.LastPrice
		st.ReferenceUpdatedAt = now
	}

	if now.Sub(st.ReferenceUpdatedAt) >= t.window {
		t.forceClose(ctx, tick, ins, position, st)
		return
	}

	if err := t.store.SaveTimeExit(st); err != nil {
		t.logger.Error("time-exit state save failed",
			slog.String("token", tick.Token), slog.String("entryOrderId", entry.OrderID), slog.Any("error", err))
	}
}

// ClearForToken drops all tracked state for a token. Called when the net
// quantity went to zero for other reasons, e.g. the stop fired.
func (t *TimeExit) ClearForToken(token string) {
	if err := t.store.DeleteTimeExitsForToken(token); err != nil {
		t.logger.Error("time-exit cleanup failed", slog.String("token", token), slog.Any("error", err))
	}
}

func (t *TimeExit) forceClose(ctx context.Context, tick domain.NormalizedTick, ins domain.Instrument,
	position *domain.NetPosition, st *domain.TimeExitState) {

	_, err := t.broker.PlaceOrder(ctx, domain.OrderRequest{
		Side:          position.Side().Opposite(),
		ProductType:   orderProduct(position, t.productType),
		Exchange:      tick.Exchange,
		TradingSymbol: ins.TradingSymbol,
		Qty:           position.AbsQty(),
		OrderType:     domain.OrderTypeMarket,
		Retention:     t.retention,
		Remarks:       "time-exit-" + st.EntryOrderID,
	})
	if err != nil {
		// State stays; the next tick retries while the condition holds.
		t.logger.Error("time-exit close failed",
			slog.String("token", tick.Token), slog.String("entryOrderId", st.EntryOrderID), slog.Any("error", err))
		infra.BrokerErrors.WithLabelValues("PlaceOrder").Inc()
		return
	}

	if err := t.store.DeleteTimeExit(st.Token, st.EntryOrderID); err != nil {
		t.logger.Error("time-exit state delete failed",
			slog.String("token", st.Token), slog.String("entryOrderId", st.EntryOrderID), slog.Any("error", err))
	}

	infra.TimeExits.Inc()
	t.logger.Warn("time-based exit fired",
		slog.String("token", tick.Token), slog.String("entryOrderId", st.EntryOrderID),
		slog.Float64("referencePrice", st.ReferencePrice), slog.Int("closedQty", position.AbsQty()),
		slog.Duration("window", t.window))
}
