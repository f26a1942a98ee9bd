package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"risk_go/internal/domain"
	"risk_go/internal/engine"
	"risk_go/internal/infra"
	"risk_go/internal/infra/storage"
)

const (
	verifyRetries = 3
	verifyDelay   = 1 * time.Second
)

// Execution runs the trade-execution sweep: every interval it drains the
// pending-trade queue, reconciles each trade against the live net position
// and places whatever orders close the gap. Overlapping cycles are skipped,
// never queued. Net-position reads go through a serial queue so concurrent
// callers observe state no older than their own request.
type Execution struct {
	broker  domain.Broker
	store   *storage.Storage
	catalog *domain.Catalog
	window  *infra.TradingWindow

	interval time.Duration
	enabled  bool
	busy     atomic.Bool

	// positionQueue linearizes net-position refreshes against the gateway.
	positionQueue *engine.SerialQueue

	retention string
	now       func() time.Time
	logger    *slog.Logger
}

// NewExecution wires the sweep service.
func NewExecution(broker domain.Broker, store *storage.Storage, catalog *domain.Catalog,
	window *infra.TradingWindow, interval time.Duration, enabled bool, retention string) *Execution {

	return &Execution{
		broker:        broker,
		store:         store,
		catalog:       catalog,
		window:        window,
		interval:      interval,
		enabled:       enabled,
		positionQueue: engine.NewSerialQueue("net-position", 32),
		retention:     retention,
		now:           time.Now,
		logger:        slog.Default().With("module", "execution"),
	}
}

// Run sweeps on the interval until ctx is cancelled.
func (e *Execution) Run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.RunNow(ctx)
		}
	}
}

// RunNow performs one sweep cycle immediately. This is also the manual
// trigger exposed on the admin API. A cycle already in flight makes this a
// no-op.
func (e *Execution) RunNow(ctx context.Context) {
	if !e.enabled {
		return
	}
	if !e.busy.CompareAndSwap(false, true) {
		infra.SweepCycles.WithLabelValues("skipped").Inc()
		return
	}
	defer e.busy.Store(false)

	trades, err := e.store.GetPendingTrades()
	if err != nil {
		e.logger.Error("pending trade fetch failed", slog.Any("error", err))
		infra.SweepCycles.WithLabelValues("error").Inc()
		return
	}
	if len(trades) == 0 {
		infra.SweepCycles.WithLabelValues("empty").Inc()
		return
	}

	for i := range trades {
		e.processTrade(ctx, &trades[i])
	}
	infra.SweepCycles.WithLabelValues("processed").Inc()
}

func (e *Execution) processTrade(ctx context.Context, trade *domain.PendingTrade) {
	if !e.window.Allowed(trade.Exchange, e.now()) {
		// Leave it pending; a later cycle inside the session picks it up.
		return
	}

	ins, ok := e.catalog.ByToken(trade.Exchange, trade.Token)
	if !ok {
		e.fail(trade, "instrument not found")
		return
	}

	if err := e.cancelPendingOrdersForToken(ctx, trade.Token, trade.Exchange); err != nil {
		e.logger.Error("pending order cancellation failed, retrying next cycle",
			slog.String("token", trade.Token), slog.Any("error", err))
		return
	}

	current, err := e.netQtyForToken(ctx, trade.Token, trade.Exchange)
	if err != nil {
		e.logger.Error("net position fetch failed, retrying next cycle",
			slog.String("token", trade.Token), slog.Any("error", err))
		return
	}

	product := domain.ResolveProductType(trade.ProductType)

	// Desired signed exposure after this trade executes.
	desired := trade.QuantityLots * ins.LotSize
	if trade.Side == domain.SideSell {
		desired = -desired
	}

	// Square-off request: zero lots means flatten whatever is open.
	if trade.QuantityLots == 0 {
		if current == 0 {
			e.fail(trade, "already flat")
			return
		}
		if err := e.placeMarket(ctx, trade, ins, product, sideForDelta(-current), abs(current)); err != nil {
			e.fail(trade, err.Error())
			return
		}
		e.finish(ctx, trade, 0)
		return
	}

	switch {
	case current == desired:
		e.fail(trade, "position already at requested quantity")

	case sameSign(current, desired) && abs(desired) < abs(current):
		// Reductions go through the square-off path, not a partial trade.
		e.fail(trade, "requested quantity reduces the open position")

	case sameSign(current, desired) || current == 0:
		delta := desired - current
		if err := e.placeMarket(ctx, trade, ins, product, sideForDelta(delta), abs(delta)); err != nil {
			e.fail(trade, err.Error())
			return
		}
		e.finish(ctx, trade, desired)

	default:
		// Opposite direction: flatten first, then open the new side.
		if err := e.placeMarket(ctx, trade, ins, product, sideForDelta(-current), abs(current)); err != nil {
			e.fail(trade, err.Error())
			return
		}
		if err := e.placeMarket(ctx, trade, ins, product, sideForDelta(desired), abs(desired)); err != nil {
			e.fail(trade, err.Error())
			return
		}
		e.finish(ctx, trade, desired)
	}
}

// finish verifies the resulting net position and records the outcome.
func (e *Execution) finish(ctx context.Context, trade *domain.PendingTrade, expected int) {
	if err := e.verifyNetPosition(ctx, trade.Token, trade.Exchange, expected); err != nil {
		e.fail(trade, err.Error())
		return
	}
	if err := e.store.MarkTradePlaced(trade.ID); err != nil {
		e.logger.Error("trade status update failed", slog.String("id", trade.ID), slog.Any("error", err))
	}
	e.logger.Info("pending trade executed",
		slog.String("id", trade.ID), slog.String("token", trade.Token), slog.Int("netQty", expected))
}

func (e *Execution) fail(trade *domain.PendingTrade, reason string) {
	if err := e.store.MarkTradeFailed(trade.ID, reason); err != nil {
		e.logger.Error("trade status update failed", slog.String("id", trade.ID), slog.Any("error", err))
	}
	e.logger.Warn("pending trade rejected",
		slog.String("id", trade.ID), slog.String("token", trade.Token), slog.String("reason", reason))
}

// verifyNetPosition polls until the gateway reports the expected signed
// quantity, with a few retries; position books lag fills slightly.
func (e *Execution) verifyNetPosition(ctx context.Context, token, exchange string, expected int) error {
	var lastQty int
	for attempt := 0; attempt < verifyRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(verifyDelay):
			}
		}
		qty, err := e.netQtyForToken(ctx, token, exchange)
		if err != nil {
			continue
		}
		if qty == expected {
			return nil
		}
		lastQty = qty
	}
	return fmt.Errorf("net position verification failed: expected %d, got %d", expected, lastQty)
}

// netQtyForToken aggregates the gateway's net quantity for one token across
// product types, serialized through the position queue.
func (e *Execution) netQtyForToken(ctx context.Context, token, exchange string) (int, error) {
	positions, err := engine.DoResult(ctx, e.positionQueue, func(ctx context.Context) ([]domain.NetPosition, error) {
		return e.broker.GetNetPositions(ctx)
	})
	if err != nil {
		return 0, err
	}

	total := 0
	for i := range positions {
		p := &positions[i]
		if p.Token == token && p.Exchange == exchange {
			total += p.NetQty
		}
	}
	return total, nil
}

// cancelPendingOrdersForToken cancels every working order for the token so
// stale stops or entries cannot fight the new trade.
func (e *Execution) cancelPendingOrdersForToken(ctx context.Context, token, exchange string) error {
	orders, err := e.broker.GetOrderBook(ctx)
	if err != nil {
		return err
	}
	for i := range orders {
		o := &orders[i]
		if o.Token != token || o.Exchange != exchange {
			continue
		}
		switch o.Status {
		case domain.StatusOpen, domain.StatusPending, domain.StatusTriggerPending:
			if err := e.broker.CancelOrder(ctx, o.OrderID); err != nil {
				return err
			}
			e.logger.Info("working order cancelled before execution",
				slog.String("token", token), slog.String("orderId", o.OrderID))
		}
	}
	return nil
}

// ClosePositionBySymbolOrToken is the administrative escape hatch: it
// flattens the first open position whose token or trading symbol matches.
func (e *Execution) ClosePositionBySymbolOrToken(ctx context.Context, symbolOrToken string) error {
	positions, err := engine.DoResult(ctx, e.positionQueue, func(ctx context.Context) ([]domain.NetPosition, error) {
		return e.broker.GetNetPositions(ctx)
	})
	if err != nil {
		return err
	}

	for i := range positions {
		p := &positions[i]
		if p.NetQty == 0 || (p.Token != symbolOrToken && p.TradingSymbol != symbolOrToken) {
			continue
		}

		if err := e.cancelPendingOrdersForToken(ctx, p.Token, p.Exchange); err != nil {
			return err
		}

		_, err := e.broker.PlaceOrder(ctx, domain.OrderRequest{
			Side:          p.Side().Opposite(),
			ProductType:   p.ProductType,
			Exchange:      p.Exchange,
			TradingSymbol: p.TradingSymbol,
			Qty:           p.AbsQty(),
			OrderType:     domain.OrderTypeMarket,
			Retention:     e.retention,
			Remarks:       "manual-close-" + p.Token,
		})
		if err != nil {
			return err
		}
		e.logger.Warn("position closed manually",
			slog.String("token", p.Token), slog.Int("qty", p.AbsQty()))
		return nil
	}
	return fmt.Errorf("no open position matches %q", symbolOrToken)
}

// Close releases the service's queue.
func (e *Execution) Close() {
	e.positionQueue.Close()
}

func (e *Execution) placeMarket(ctx context.Context, trade *domain.PendingTrade, ins domain.Instrument,
	product string, side domain.Side, qty int) error {

	_, err := e.broker.PlaceOrder(ctx, domain.OrderRequest{
		Side:          side,
		ProductType:   product,
		Exchange:      trade.Exchange,
		TradingSymbol: ins.TradingSymbol,
		Qty:           qty,
		OrderType:     domain.OrderTypeMarket,
		Retention:     e.retention,
		Remarks:       "sweep-" + trade.ID,
	})
	if err != nil {
		infra.BrokerErrors.WithLabelValues("PlaceOrder").Inc()
	}
	return err
}

func sameSign(a, b int) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}

func sideForDelta(delta int) domain.Side {
	if delta < 0 {
		return domain.SideSell
	}
	return domain.SideBuy
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
