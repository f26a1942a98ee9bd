package engine

import (
	"context"
	"log/slog"
	"time"

	"risk_go/internal/domain"
	"risk_go/internal/infra"
)

// Markers that record a no-op in the target journal are throttled so a
// position that sits past its target for hours does not flood the file.
const maxSkipMarkers = 2

// TargetConfig carries the target manager's tunables. TargetPercent is a
// fraction, normalized by the config loader.
type TargetConfig struct {
	TargetPercent float64
	ProductType   string
	Retention     string
}

// Target books half of a position, lot-aligned, when the price crosses a
// fixed profit target measured from the entry fill. It runs per tick,
// independently of the stop-loss order, and is idempotent per entry order:
// the terminal booking entry in the journal is consulted before anything
// else happens.
type Target struct {
	broker   domain.Broker
	journal  domain.TargetJournal
	timeExit *TimeExit
	cfg      TargetConfig

	now    func() time.Time
	logger *slog.Logger
}

// NewTarget wires a target manager.
func NewTarget(broker domain.Broker, journal domain.TargetJournal, timeExit *TimeExit, cfg TargetConfig) *Target {
	return &Target{
		broker:   broker,
		journal:  journal,
		timeExit: timeExit,
		cfg:      cfg,
		now:      time.Now,
		logger:   slog.Default().With("module", "target"),
	}
}

// Check runs the per-tick target procedure. trades is the cached trade book;
// the most recent fill matching the position's side is the entry whose order
// id keys the journal and the time-exit state.
func (t *Target) Check(ctx context.Context, tick domain.NormalizedTick, ins domain.Instrument,
	position *domain.NetPosition, trades []domain.Trade) {

	if position == nil || position.NetQty == 0 {
		return
	}

	side := position.Side()
	entry := domain.LatestEntryTrade(trades, tick, side)
	if entry == nil {
		return
	}

	// The time-based exit is an independent exit condition; it runs before
	// any of the early returns below.
	t.timeExit.Process(ctx, tick, ins, position, entry)

	track, err := t.journal.ReadTargetTrack(tick.Token, entry.OrderID)
	if err != nil {
		t.logger.Error("target track read failed",
			slog.String("token", tick.Token), slog.String("entryOrderId", entry.OrderID), slog.Any("error", err))
		return
	}

	if domain.IsTargetBooked(track) {
		t.appendThrottled(tick, entry.OrderID, track, domain.TargetTrackEntry{
			Action: domain.ActionSkipped,
			Reason: domain.ReasonAlreadyClosed,
			NetQty: position.NetQty,
			Time:   t.now(),
		})
		return
	}

	targetPrice := entry.FillPrice * (1 + t.cfg.TargetPercent)
	if side == domain.SideSell {
		targetPrice = entry.FillPrice * (1 - t.cfg.TargetPercent)
	}
	if targetPrice <= 0 {
		t.logger.Error("computed target price is non-positive, skipping",
			slog.String("token", tick.Token), slog.Float64("entryPrice", entry.FillPrice))
		return
	}

	crossed := tick.LastPrice >= targetPrice
	if side == domain.SideSell {
		crossed = tick.LastPrice <= targetPrice
	}
	if !crossed {
		return
	}

	absQty := position.AbsQty()
	if absQty <= ins.LotSize {
		t.appendThrottled(tick, entry.OrderID, track, domain.TargetTrackEntry{
			Action:      domain.ActionTargetHitNoOp,
			Reason:      domain.ReasonQtyWithinOneLot,
			EntryPrice:  entry.FillPrice,
			TargetPrice: targetPrice,
			NetQty:      position.NetQty,
			Time:        t.now(),
		})
		return
	}

	// Exact lot-aligned half of the open quantity.
	closeQty := (absQty / 2) / ins.LotSize * ins.LotSize
	if closeQty < ins.LotSize {
		t.appendThrottled(tick, entry.OrderID, track, domain.TargetTrackEntry{
			Action:      domain.ActionTargetHitNoOp,
			Reason:      domain.ReasonHalfBelowOneLot,
			EntryPrice:  entry.FillPrice,
			TargetPrice: targetPrice,
			NetQty:      position.NetQty,
			Time:        t.now(),
		})
		return
	}

	_, err = t.broker.PlaceOrder(ctx, domain.OrderRequest{
		Side:          side.Opposite(),
		ProductType:   orderProduct(position, t.cfg.ProductType),
		Exchange:      tick.Exchange,
		TradingSymbol: ins.TradingSymbol,
		Qty:           closeQty,
		OrderType:     domain.OrderTypeMarket,
		Retention:     t.cfg.Retention,
		Remarks:       "target-50pct-" + entry.OrderID,
	})
	if err != nil {
		t.logger.Error("target booking failed",
			slog.String("token", tick.Token), slog.String("entryOrderId", entry.OrderID),
			slog.Int("closeQty", closeQty), slog.Any("error", err))
		infra.BrokerErrors.WithLabelValues("PlaceOrder").Inc()
		return
	}

	// Terminal entry: the idempotency marker for every future tick.
	t.append(tick, entry.OrderID, domain.TargetTrackEntry{
		Action:      domain.ActionTargetBooked,
		EntryPrice:  entry.FillPrice,
		TargetPrice: targetPrice,
		NetQty:      position.NetQty,
		CloseQty:    closeQty,
		Time:        t.now(),
	})

	infra.TargetsBooked.Inc()
	t.logger.Info("target booked",
		slog.String("token", tick.Token), slog.String("entryOrderId", entry.OrderID),
		slog.Float64("entryPrice", entry.FillPrice), slog.Float64("targetPrice", targetPrice),
		slog.Int("closeQty", closeQty))
}

// ClearFlat drops time-exit state after the position went flat.
func (t *Target) ClearFlat(token string) {
	t.timeExit.ClearForToken(token)
}

func (t *Target) appendThrottled(tick domain.NormalizedTick, entryOrderID string,
	track []domain.TargetTrackEntry, e domain.TargetTrackEntry) {

	if !domain.CanAppendTargetAction(track, e.Action, e.Reason, maxSkipMarkers) {
		return
	}
	t.append(tick, entryOrderID, e)
	t.logger.Debug("target skip recorded",
		slog.String("token", tick.Token), slog.String("entryOrderId", entryOrderID),
		slog.String("action", e.Action), slog.String("reason", e.Reason))
}

func (t *Target) append(tick domain.NormalizedTick, entryOrderID string, e domain.TargetTrackEntry) {
	if err := t.journal.AppendTargetTrack(tick.Token, entryOrderID, e); err != nil {
		t.logger.Error("target track append failed",
			slog.String("token", tick.Token), slog.String("entryOrderId", entryOrderID), slog.Any("error", err))
	}
}
