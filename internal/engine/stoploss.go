package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"risk_go/internal/domain"
	"risk_go/internal/infra"
)

// StopLossConfig carries the tunables of the stop-loss state machine.
// Percentages are fractions (0.0025 for 0.25%), already normalized by the
// config loader.
type StopLossConfig struct {
	SLPercent        float64
	FirstProfitStage float64
	LimitBufferPct   float64
	PlacementLockTTL time.Duration
	ProductType      string
	Retention        string
}

// StopLoss is the central per-tick decision procedure. For every fresh tick
// it cancels orphaned stops, places the initial protective stop for a newly
// stable position, reconciles the stop's quantity against the live net
// quantity, and trails the trigger through profit stages. All state beyond
// the placement lock is derived by replaying the order journal, so trailing
// survives process restarts.
type StopLoss struct {
	broker  domain.Broker
	journal domain.OrderJournal
	window  *infra.TradingWindow
	cfg     StopLossConfig

	// placementLocks guards against duplicate initial placement from rapid
	// successive ticks on the same token. Entries expire after the lock TTL.
	lockMu         sync.Mutex
	placementLocks map[string]time.Time

	now    func() time.Time
	logger *slog.Logger
}

// NewStopLoss wires a stop-loss engine.
func NewStopLoss(broker domain.Broker, journal domain.OrderJournal, window *infra.TradingWindow, cfg StopLossConfig) *StopLoss {
	return &StopLoss{
		broker:         broker,
		journal:        journal,
		window:         window,
		cfg:            cfg,
		placementLocks: make(map[string]time.Time),
		now:            time.Now,
		logger:         slog.Default().With("module", "stoploss"),
	}
}

// Process runs the per-tick stop-loss procedure. position and pendingStop may
// be nil. stability is the tracker outcome for this tick's observation.
// Broker failures are logged and abandoned; the next tick retries naturally.
func (s *StopLoss) Process(ctx context.Context, tick domain.NormalizedTick, ins domain.Instrument,
	position *domain.NetPosition, pendingStop *domain.WorkingOrder, stability Stability) {

	// Orphaned stop with no position behind it. Cancel even outside the
	// trading window: leaving an unprotected-side stop live is worse than
	// an off-hours cancel.
	if position == nil {
		if pendingStop != nil {
			s.cancelStop(ctx, tick, pendingStop, domain.ReasonPositionClosed)
		}
		return
	}

	if !s.window.Allowed(tick.Exchange, s.now()) {
		return
	}

	if !stability.Stable {
		return
	}

	if stability.Flipped && pendingStop != nil {
		// The stop protects the wrong side now. A fresh one is placed on a
		// later tick once the flipped position confirms again.
		s.cancelStop(ctx, tick, pendingStop, domain.ReasonPositionFlipped)
		return
	}

	if pendingStop == nil {
		s.placeInitial(ctx, tick, ins, position)
		return
	}

	if pendingStop.Qty != position.AbsQty() {
		if !s.syncQuantity(ctx, tick, ins, position, pendingStop) {
			return
		}
	}

	s.trail(ctx, tick, ins, position, pendingStop)
}

func (s *StopLoss) cancelStop(ctx context.Context, tick domain.NormalizedTick, stop *domain.WorkingOrder, reason string) {
	if err := s.broker.CancelOrder(ctx, stop.OrderID); err != nil {
		s.logger.Error("stop cancel failed",
			slog.String("orderId", stop.OrderID), slog.String("reason", reason), slog.Any("error", err))
		infra.BrokerErrors.WithLabelValues("CancelOrder").Inc()
		return
	}

	s.appendTrack(stop.OrderID, domain.OrderTrackEntry{
		Action:       domain.ActionSLCancelled,
		Reason:       reason,
		TriggerPrice: stop.TriggerPrice,
		LimitPrice:   stop.LimitPrice,
		Qty:          stop.Qty,
		Time:         s.now(),
	})
	infra.StopsCancelled.WithLabelValues(reason).Inc()
	s.logger.Info("stop cancelled",
		slog.String("token", tick.Token), slog.String("orderId", stop.OrderID), slog.String("reason", reason))
}

// placeInitial submits the first protective stop for a stable position: a
// stop-limit order opposite to the position side, offset from the current
// price by the standard percentage and snapped to the tick grid.
func (s *StopLoss) placeInitial(ctx context.Context, tick domain.NormalizedTick, ins domain.Instrument, position *domain.NetPosition) {
	if !s.acquirePlacementLock(tick.Token) {
		return
	}

	side := position.Side()
	slSide := side.Opposite()

	slDiff := tick.LastPrice * s.cfg.SLPercent
	rawTrigger := tick.LastPrice - slDiff
	if side == domain.SideSell {
		rawTrigger = tick.LastPrice + slDiff
	}
	if rawTrigger <= 0 {
		s.logger.Error("computed trigger is non-positive, skipping placement",
			slog.String("token", tick.Token), slog.Float64("lastPrice", tick.LastPrice))
		return
	}

	trigger := NormalizeTrigger(rawTrigger, ins.TickSize, side)
	limit := LimitForTrigger(trigger, slSide, s.cfg.LimitBufferPct, ins.TickSize)
	qty := position.AbsQty()

	orderID, err := s.broker.PlaceOrder(ctx, domain.OrderRequest{
		Side:          slSide,
		ProductType:   orderProduct(position, s.cfg.ProductType),
		Exchange:      tick.Exchange,
		TradingSymbol: ins.TradingSymbol,
		Qty:           qty,
		OrderType:     domain.OrderTypeStopLimit,
		Price:         limit,
		TriggerPrice:  trigger,
		Retention:     s.cfg.Retention,
		Remarks:       fmt.Sprintf("auto-sl-%s", tick.Token),
	})
	if err != nil {
		s.logger.Error("initial stop placement failed",
			slog.String("token", tick.Token), slog.Float64("trigger", trigger), slog.Any("error", err))
		infra.BrokerErrors.WithLabelValues("PlaceOrder").Inc()
		return
	}

	// openPrice anchors the trailing offsets and the first-profit threshold
	// to the position's average entry, not to wherever the placement tick
	// happened to land.
	entry := domain.OrderTrackEntry{
		Action:        domain.ActionInitialSLPlaced,
		Side:          slSide,
		Stage:         domain.StageStandard,
		Trigger:       trigger,
		OpenPrice:     position.AvgPrice,
		EntryPrice:    tick.LastPrice,
		SLPercentUsed: s.cfg.SLPercent,
		SLDiffUsed:    slDiff,
		Qty:           qty,
		LimitPrice:    limit,
		Time:          s.now(),
	}
	// Seed the running extreme at the placement price for the favorable side.
	price := tick.LastPrice
	if side == domain.SideBuy {
		entry.HighestPrice = &price
	} else {
		entry.LowestPrice = &price
	}
	s.appendTrack(orderID, entry)

	infra.StopsPlaced.Inc()
	s.logger.Info("initial stop placed",
		slog.String("token", tick.Token), slog.String("orderId", orderID),
		slog.Float64("trigger", trigger), slog.Float64("limit", limit), slog.Int("qty", qty))
}

// syncQuantity modifies the stop to the live net quantity while reusing the
// existing trigger and limit verbatim. Prices must never drift during a pure
// quantity sync. Returns false when the modify failed.
func (s *StopLoss) syncQuantity(ctx context.Context, tick domain.NormalizedTick, ins domain.Instrument,
	position *domain.NetPosition, stop *domain.WorkingOrder) bool {

	newQty := position.AbsQty()
	err := s.broker.ModifyOrder(ctx, domain.ModifyRequest{
		OrderID:       stop.OrderID,
		Exchange:      tick.Exchange,
		TradingSymbol: ins.TradingSymbol,
		Qty:           newQty,
		OrderType:     domain.OrderTypeStopLimit,
		Price:         stop.LimitPrice,
		TriggerPrice:  stop.TriggerPrice,
	})
	if err != nil {
		s.logger.Error("stop quantity sync failed",
			slog.String("orderId", stop.OrderID), slog.Int("newQty", newQty), slog.Any("error", err))
		infra.BrokerErrors.WithLabelValues("ModifyOrder").Inc()
		return false
	}

	s.appendTrack(stop.OrderID, domain.OrderTrackEntry{
		Action:       domain.ActionSLQtySynced,
		PreviousQty:  stop.Qty,
		NewQty:       newQty,
		TriggerPrice: stop.TriggerPrice,
		LimitPrice:   stop.LimitPrice,
		Time:         s.now(),
	})
	stop.Qty = newQty

	infra.StopsSynced.Inc()
	s.logger.Info("stop quantity synced",
		slog.String("token", tick.Token), slog.String("orderId", stop.OrderID),
		slog.Int("qty", newQty), slog.Float64("trigger", stop.TriggerPrice))
	return true
}

// trail replays the order journal and, when the price made a new favorable
// extreme, moves the trigger to a strictly more protective level. The stage
// advances STANDARD -> FIRST_PROFIT once the price has moved favorably by
// the standard offset times the first-profit fraction; it never reverts.
func (s *StopLoss) trail(ctx context.Context, tick domain.NormalizedTick, ins domain.Instrument,
	position *domain.NetPosition, stop *domain.WorkingOrder) {

	track, err := s.journal.ReadOrderTrack(stop.OrderID)
	if err != nil {
		s.logger.Error("order track read failed", slog.String("orderId", stop.OrderID), slog.Any("error", err))
		return
	}
	state, ok := domain.ReduceTrail(track)
	if !ok {
		s.logger.Warn("order track incomplete, cannot trail", slog.String("orderId", stop.OrderID))
		return
	}

	side := position.Side()
	price := tick.LastPrice
	stdDiff := state.OpenPrice * s.cfg.SLPercent

	stage := state.Stage
	if stage == domain.StageStandard {
		profit := price - state.OpenPrice
		if side == domain.SideSell {
			profit = state.OpenPrice - price
		}
		if profit >= stdDiff*s.cfg.FirstProfitStage {
			stage = domain.StageFirstProfit
		}
	}
	activeDiff := stdDiff
	if stage == domain.StageFirstProfit {
		activeDiff = stdDiff * s.cfg.FirstProfitStage
	}

	// The extreme must strictly improve before anything moves.
	var extreme float64
	if side == domain.SideBuy {
		prev := state.OpenPrice
		if state.HighestPrice != nil {
			prev = *state.HighestPrice
		}
		if price <= prev {
			return
		}
		extreme = price
	} else {
		prev := state.OpenPrice
		if state.LowestPrice != nil {
			prev = *state.LowestPrice
		}
		if price >= prev {
			return
		}
		extreme = price
	}

	rawTrigger := extreme - activeDiff
	if side == domain.SideSell {
		rawTrigger = extreme + activeDiff
	}
	newTrigger := NormalizeTrigger(rawTrigger, ins.TickSize, side)

	// Strictly more protective, never regressive.
	if side == domain.SideBuy && newTrigger <= state.CurrentSL {
		return
	}
	if side == domain.SideSell && newTrigger >= state.CurrentSL {
		return
	}

	slSide := side.Opposite()
	newLimit := LimitForTrigger(newTrigger, slSide, s.cfg.LimitBufferPct, ins.TickSize)

	err = s.broker.ModifyOrder(ctx, domain.ModifyRequest{
		OrderID:       stop.OrderID,
		Exchange:      tick.Exchange,
		TradingSymbol: ins.TradingSymbol,
		Qty:           stop.Qty,
		OrderType:     domain.OrderTypeStopLimit,
		Price:         newLimit,
		TriggerPrice:  newTrigger,
	})
	if err != nil {
		s.logger.Error("stop trail failed",
			slog.String("orderId", stop.OrderID), slog.Float64("newTrigger", newTrigger), slog.Any("error", err))
		infra.BrokerErrors.WithLabelValues("ModifyOrder").Inc()
		return
	}

	prevSL := state.CurrentSL
	entry := domain.OrderTrackEntry{
		Action:     domain.ActionSLTrailed,
		Side:       slSide,
		Stage:      stage,
		PreviousSL: &prevSL,
		NewSL:      &newTrigger,
		OpenPrice:  state.OpenPrice,
		SLDiffUsed: activeDiff,
		Qty:        stop.Qty,
		LimitPrice: newLimit,
		Time:       s.now(),
	}
	if side == domain.SideBuy {
		entry.HighestPrice = &extreme
	} else {
		entry.LowestPrice = &extreme
	}
	s.appendTrack(stop.OrderID, entry)

	infra.StopsTrailed.Inc()
	s.logger.Info("stop trailed",
		slog.String("token", tick.Token), slog.String("orderId", stop.OrderID),
		slog.Float64("previousSL", prevSL), slog.Float64("newSL", newTrigger),
		slog.String("stage", string(stage)))
}

// acquirePlacementLock takes the short per-token placement lock, or reports
// that a recent placement is still in flight.
func (s *StopLoss) acquirePlacementLock(token string) bool {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()

	now := s.now()
	if at, ok := s.placementLocks[token]; ok && now.Sub(at) < s.cfg.PlacementLockTTL {
		return false
	}
	s.placementLocks[token] = now
	return true
}

// orderProduct prefers the live position's product code; a position opened
// under a different product than the configured default must be exited on
// its own product.
func orderProduct(position *domain.NetPosition, fallback string) string {
	if position.ProductType != "" {
		return position.ProductType
	}
	return fallback
}

func (s *StopLoss) appendTrack(orderID string, e domain.OrderTrackEntry) {
	if err := s.journal.AppendOrderTrack(orderID, e); err != nil {
		s.logger.Error("order track append failed", slog.String("orderId", orderID), slog.Any("error", err))
	}
}
