package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"risk_go/internal/domain"
	"risk_go/internal/engine"
	"risk_go/internal/infra"
	"risk_go/internal/infra/storage"
)

// SignalPayload is the webhook body a strategy posts on a signal.
type SignalPayload struct {
	Strategy     string `json:"strategy"`
	Token        string `json:"token"`
	Exchange     string `json:"exchange"`
	Symbol       string `json:"symbol"`
	Side         string `json:"side"`          // BUY / SELL
	QuantityLots int    `json:"quantity_lots"` // 0 = square off
	ProductType  string `json:"product_type"`  // INTRADAY / DELIVERY / MARGIN
}

// Signals accepts webhook signals and turns them into pending trades for the
// execution sweep. Writes run through a serial queue so concurrent webhooks
// cannot interleave their signal and trade rows.
type Signals struct {
	store   *storage.Storage
	catalog *domain.Catalog

	syncQueue *engine.SerialQueue
	now       func() time.Time
	logger    *slog.Logger
}

// NewSignals wires the signal intake service.
func NewSignals(store *storage.Storage, catalog *domain.Catalog) *Signals {
	return &Signals{
		store:     store,
		catalog:   catalog,
		syncQueue: engine.NewSerialQueue("signal-sync", 32),
		now:       time.Now,
		logger:    slog.Default().With("module", "signals"),
	}
}

// Accept validates and stores one signal, returning the created signal id.
func (s *Signals) Accept(ctx context.Context, payload SignalPayload, raw string) (string, error) {
	if err := s.validate(payload); err != nil {
		return "", err
	}

	sig := &domain.Signal{
		ID:           uuid.NewString(),
		Strategy:     payload.Strategy,
		Token:        payload.Token,
		Exchange:     payload.Exchange,
		Symbol:       payload.Symbol,
		Side:         domain.Side(payload.Side),
		QuantityLots: payload.QuantityLots,
		ProductType:  payload.ProductType,
		Raw:          raw,
		ReceivedAt:   s.now(),
	}

	err := s.syncQueue.Do(ctx, func(ctx context.Context) error {
		if err := s.store.SaveSignal(sig); err != nil {
			return fmt.Errorf("save signal: %w", err)
		}
		trade := &domain.PendingTrade{
			ID:           uuid.NewString(),
			SignalID:     sig.ID,
			Strategy:     sig.Strategy,
			Token:        sig.Token,
			Exchange:     sig.Exchange,
			Symbol:       sig.Symbol,
			Side:         sig.Side,
			QuantityLots: sig.QuantityLots,
			ProductType:  sig.ProductType,
			Status:       domain.TradeStatusPending,
			CreatedAt:    s.now(),
			UpdatedAt:    s.now(),
		}
		if err := s.store.CreatePendingTrade(trade); err != nil {
			return fmt.Errorf("create pending trade: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	infra.SignalsReceived.Inc()
	s.logger.Info("signal accepted",
		slog.String("id", sig.ID), slog.String("strategy", sig.Strategy),
		slog.String("token", sig.Token), slog.Int("lots", sig.QuantityLots))
	return sig.ID, nil
}

func (s *Signals) validate(p SignalPayload) error {
	if p.Token == "" || p.Exchange == "" {
		return fmt.Errorf("token and exchange are required")
	}
	if p.Side != string(domain.SideBuy) && p.Side != string(domain.SideSell) {
		return fmt.Errorf("side must be BUY or SELL")
	}
	if p.QuantityLots < 0 {
		return fmt.Errorf("quantity_lots must be non-negative")
	}
	if _, ok := s.catalog.ByToken(p.Exchange, p.Token); !ok {
		return fmt.Errorf("unknown instrument %s/%s", p.Exchange, p.Token)
	}
	return nil
}

// Close releases the queue.
func (s *Signals) Close() {
	s.syncQueue.Close()
}
