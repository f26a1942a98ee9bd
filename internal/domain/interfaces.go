package domain

import "context"

// Broker is the narrow contract the engine has with the broker gateway.
// Implementations must treat a broker-reported "no data" response as an
// empty success, not an error.
type Broker interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (orderID string, err error)
	ModifyOrder(ctx context.Context, req ModifyRequest) error
	CancelOrder(ctx context.Context, orderID string) error
	GetNetPositions(ctx context.Context) ([]NetPosition, error)
	GetOrderBook(ctx context.Context) ([]WorkingOrder, error)
	GetTradeBook(ctx context.Context) ([]Trade, error)
}

// Quote is a snapshot quote for one instrument.
type Quote struct {
	Exchange      string
	Token         string
	TradingSymbol string
	LastPrice     float64
}

// SecurityInfo is the broker's reference data for one instrument.
type SecurityInfo struct {
	Exchange      string
	Token         string
	TradingSymbol string
	TickSize      string
	LotSize       int
}

// QuoteProvider fetches quotes and security info from the broker gateway.
// Lookups used for pricing multi-leg instruments go through a serialized
// queue, so implementations need not rate-limit themselves.
type QuoteProvider interface {
	GetQuote(ctx context.Context, exchange, token string) (Quote, error)
	GetSecurityInfo(ctx context.Context, exchange, token string) (SecurityInfo, error)
}

// TickHandler consumes validated-or-raw ticks pushed by the feed. The feed
// assumes no backpressure; handlers must tolerate bursts.
type TickHandler interface {
	OnTick(ctx context.Context, raw RawTick)
}

// OrderJournal persists the append-only per-stop-order event log. Appends
// must preserve every prior entry and their order; replay order is the source
// of truth for trailing state.
type OrderJournal interface {
	ReadOrderTrack(orderID string) ([]OrderTrackEntry, error)
	AppendOrderTrack(orderID string, e OrderTrackEntry) error
}

// TargetJournal persists the per-entry-order target/booking event log, keyed
// by token and entry order id.
type TargetJournal interface {
	ReadTargetTrack(token, entryOrderID string) ([]TargetTrackEntry, error)
	AppendTargetTrack(token, entryOrderID string, e TargetTrackEntry) error
}

// TimeExitStore persists rolling time-exit state per (token, entry order id).
// Load returns nil when no state is tracked yet.
type TimeExitStore interface {
	LoadTimeExit(token, entryOrderID string) (*TimeExitState, error)
	SaveTimeExit(st *TimeExitState) error
	DeleteTimeExit(token, entryOrderID string) error
	DeleteTimeExitsForToken(token string) error
}
