package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"risk_go/internal/domain"
	"risk_go/internal/infra"
)

// Snapshot is one timestamped block of cached trading data.
type Snapshot[T any] struct {
	Data      []T
	UpdatedAt time.Time
}

// TradingCache holds the three broker-state snapshots every risk decision
// reads: net positions, order book, trade book. A snapshot is fresh iff
// now - UpdatedAt < TTL; all three must be simultaneously fresh before a
// tick is acted on, otherwise the tick is skipped entirely (fail-safe).
type TradingCache struct {
	mu        sync.RWMutex
	positions Snapshot[domain.NetPosition]
	orders    Snapshot[domain.WorkingOrder]
	trades    Snapshot[domain.Trade]

	ttl time.Duration
	now func() time.Time
}

// NewTradingCache creates an empty cache. All snapshots start stale.
func NewTradingCache(ttl time.Duration) *TradingCache {
	return &TradingCache{ttl: ttl, now: time.Now}
}

// Fresh reports whether every snapshot is within the TTL.
func (c *TradingCache) Fresh() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := c.now()
	return c.fresh(now, c.positions.UpdatedAt) &&
		c.fresh(now, c.orders.UpdatedAt) &&
		c.fresh(now, c.trades.UpdatedAt)
}

func (c *TradingCache) fresh(now, updatedAt time.Time) bool {
	return !updatedAt.IsZero() && now.Sub(updatedAt) < c.ttl
}

// Snapshots returns the current data blocks. Callers treat them read-only.
func (c *TradingCache) Snapshots() (positions []domain.NetPosition, orders []domain.WorkingOrder, trades []domain.Trade) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.positions.Data, c.orders.Data, c.trades.Data
}

// SetPositions overwrites the positions snapshot.
func (c *TradingCache) SetPositions(data []domain.NetPosition) {
	c.mu.Lock()
	c.positions = Snapshot[domain.NetPosition]{Data: data, UpdatedAt: c.now()}
	c.mu.Unlock()
}

// SetOrders overwrites the order-book snapshot.
func (c *TradingCache) SetOrders(data []domain.WorkingOrder) {
	c.mu.Lock()
	c.orders = Snapshot[domain.WorkingOrder]{Data: data, UpdatedAt: c.now()}
	c.mu.Unlock()
}

// SetTrades overwrites the trade-book snapshot.
func (c *TradingCache) SetTrades(data []domain.Trade) {
	c.mu.Lock()
	c.trades = Snapshot[domain.Trade]{Data: data, UpdatedAt: c.now()}
	c.mu.Unlock()
}

// Refresher polls the broker gateway on a fixed interval and overwrites the
// cache snapshots. Fetches run SERIALLY, never concurrently, which bounds
// load on the gateway to one refresh cycle in flight; an overlapping interval
// firing is skipped, not queued. A failed fetch leaves the previous snapshot
// and its timestamp untouched, so the staleness check naturally suppresses
// risk actions until data flows again.
type Refresher struct {
	cache    *TradingCache
	broker   domain.Broker
	interval time.Duration
	busy     atomic.Bool
	logger   *slog.Logger
}

// NewRefresher creates a refresher for the given cache.
func NewRefresher(cache *TradingCache, broker domain.Broker, interval time.Duration) *Refresher {
	return &Refresher{
		cache:    cache,
		broker:   broker,
		interval: interval,
		logger:   slog.Default().With("module", "refresher"),
	}
}

// Run refreshes on the interval until ctx is cancelled. The first refresh
// happens immediately.
func (r *Refresher) Run(ctx context.Context) {
	r.RefreshAll(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RefreshAll(ctx)
		}
	}
}

// RefreshAll performs one serial refresh cycle. Re-entrant calls are skipped.
func (r *Refresher) RefreshAll(ctx context.Context) {
	if !r.busy.CompareAndSwap(false, true) {
		r.logger.Debug("refresh skipped, previous cycle still running")
		return
	}
	defer r.busy.Store(false)

	if positions, err := r.broker.GetNetPositions(ctx); err != nil {
		r.logger.Error("net positions refresh failed", slog.Any("error", err))
		infra.BrokerErrors.WithLabelValues("PositionBook").Inc()
	} else {
		r.cache.SetPositions(positions)
	}

	if orders, err := r.broker.GetOrderBook(ctx); err != nil {
		r.logger.Error("order book refresh failed", slog.Any("error", err))
		infra.BrokerErrors.WithLabelValues("OrderBook").Inc()
	} else {
		r.cache.SetOrders(orders)
	}

	if trades, err := r.broker.GetTradeBook(ctx); err != nil {
		r.logger.Error("trade book refresh failed", slog.Any("error", err))
		infra.BrokerErrors.WithLabelValues("TradeBook").Inc()
	} else {
		r.cache.SetTrades(trades)
	}
}
