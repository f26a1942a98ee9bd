package domain

import "time"

// Order price types understood by the broker gateway.
const (
	OrderTypeMarket    = "MKT"
	OrderTypeLimit     = "LMT"
	OrderTypeStopLimit = "SL-LMT"
	OrderTypeStopMkt   = "SL-MKT"
)

// Broker order statuses the engine cares about.
const (
	StatusOpen           = "OPEN"
	StatusPending        = "PENDING"
	StatusTriggerPending = "TRIGGER_PENDING"
	StatusComplete       = "COMPLETE"
	StatusCancelled      = "CANCELED"
	StatusRejected       = "REJECTED"
)

// WorkingOrder is an entry from the broker's order book.
type WorkingOrder struct {
	OrderID       string
	Token         string
	Exchange      string
	TradingSymbol string
	OrderType     string // MKT / LMT / SL-LMT / SL-MKT
	Status        string
	Qty           int
	TriggerPrice  float64
	LimitPrice    float64
}

// IsPendingStop reports whether this order is a protective stop that has not
// triggered yet.
func (o WorkingOrder) IsPendingStop() bool {
	return o.OrderType == OrderTypeStopLimit && o.Status == StatusTriggerPending
}

// FindPendingStop returns the pending stop-limit order for the tick's
// instrument, or nil.
func FindPendingStop(orders []WorkingOrder, tick NormalizedTick) *WorkingOrder {
	for i := range orders {
		o := &orders[i]
		if o.Token == tick.Token && o.Exchange == tick.Exchange && o.IsPendingStop() {
			return o
		}
	}
	return nil
}

// Trade is an executed fill from the broker's trade book.
type Trade struct {
	OrderID       string
	Token         string
	Exchange      string
	TradingSymbol string
	Side          Side
	FillPrice     float64
	Qty           int
	ExchTime      time.Time
}

// LatestEntryTrade returns the most recent trade (by exchange time) whose
// side matches the open position's side for the tick's instrument. That trade
// is treated as the entry whose order id keys the per-trade journals.
func LatestEntryTrade(trades []Trade, tick NormalizedTick, positionSide Side) *Trade {
	var best *Trade
	for i := range trades {
		t := &trades[i]
		if t.Token != tick.Token || t.Exchange != tick.Exchange || t.Side != positionSide {
			continue
		}
		if best == nil || t.ExchTime.After(best.ExchTime) {
			best = t
		}
	}
	return best
}

// OrderRequest is a broker order placement request.
type OrderRequest struct {
	Side          Side
	ProductType   string
	Exchange      string
	TradingSymbol string
	Qty           int
	OrderType     string
	Price         float64 // limit price, unused for MKT
	TriggerPrice  float64 // required for SL-LMT / SL-MKT
	Retention     string
	Remarks       string
}

// ModifyRequest is a broker order modification request.
type ModifyRequest struct {
	OrderID       string
	Exchange      string
	TradingSymbol string
	Qty           int
	OrderType     string
	Price         float64
	TriggerPrice  float64
}
