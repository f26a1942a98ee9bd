package engine

import (
	"context"
	"log/slog"
	"time"

	"risk_go/internal/domain"
	"risk_go/internal/infra"
)

// Engine is the tick entry point. It validates the raw tick, gates on cache
// freshness, resolves the instrument and broker state for the token, and runs
// the stop-loss procedure and the target manager in sequence against the same
// tick and the same snapshots.
type Engine struct {
	cache     *TradingCache
	catalog   *domain.Catalog
	window    *infra.TradingWindow
	stability *StabilityTracker
	stopLoss  *StopLoss
	target    *Target

	now    func() time.Time
	logger *slog.Logger
}

// New wires the per-tick risk pipeline.
func New(cache *TradingCache, catalog *domain.Catalog, window *infra.TradingWindow,
	stability *StabilityTracker, stopLoss *StopLoss, target *Target) *Engine {
	return &Engine{
		cache:     cache,
		catalog:   catalog,
		window:    window,
		stability: stability,
		stopLoss:  stopLoss,
		target:    target,
		now:       time.Now,
		logger:    slog.Default().With("module", "engine"),
	}
}

var _ domain.TickHandler = (*Engine)(nil)

// OnTick processes one raw feed event. Nothing propagates out of here;
// failures degrade to "no action this tick" and the next tick retries.
func (e *Engine) OnTick(ctx context.Context, raw domain.RawTick) {
	tick, ok := domain.NormalizeTick(raw)
	if !ok {
		infra.TicksRejected.Inc()
		return
	}
	infra.TicksProcessed.Inc()

	// Every risk decision needs all three snapshots simultaneously fresh.
	// Stale data means skip the whole tick, fail-safe.
	if !e.cache.Fresh() {
		infra.StaleCacheSkips.Inc()
		e.logger.Debug("tick skipped, trading cache stale", slog.String("token", tick.Token))
		return
	}

	ins, ok := e.catalog.ByToken(tick.Exchange, tick.Token)
	if !ok {
		e.logger.Error("no instrument for tick",
			slog.String("exchange", tick.Exchange), slog.String("token", tick.Token))
		return
	}

	positions, orders, trades := e.cache.Snapshots()
	position := domain.FindOpenPosition(positions, tick)
	pendingStop := domain.FindPendingStop(orders, tick)

	var stability Stability
	if position != nil {
		stability = e.stability.Observe(tick.Token, position.Side(), position.AbsQty(), e.now())
	}

	e.stopLoss.Process(ctx, tick, ins, position, pendingStop, stability)

	if position == nil {
		e.target.ClearFlat(tick.Token)
		return
	}

	// The target manager and the time-based exit get the same gates as the
	// stop-loss path: inside the session, against a confirmed quantity.
	if !e.window.Allowed(tick.Exchange, e.now()) {
		return
	}
	if !stability.Stable {
		return
	}

	e.target.Check(ctx, tick, ins, position, trades)
}
