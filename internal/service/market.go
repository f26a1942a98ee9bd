package service

import (
	"context"
	"log/slog"

	"risk_go/internal/domain"
	"risk_go/internal/engine"
)

// Market serializes quote and security-info lookups against the broker
// gateway. Multi-leg pricing fires several lookups at once; the queue turns
// them into a strict one-at-a-time sequence, bounding the request rate.
type Market struct {
	provider domain.QuoteProvider
	queue    *engine.SerialQueue
	logger   *slog.Logger
}

// NewMarket wires the quote service.
func NewMarket(provider domain.QuoteProvider) *Market {
	return &Market{
		provider: provider,
		queue:    engine.NewSerialQueue("quote", 64),
		logger:   slog.Default().With("module", "market"),
	}
}

// GetQuote fetches a snapshot quote through the quote queue.
func (m *Market) GetQuote(ctx context.Context, exchange, token string) (domain.Quote, error) {
	return engine.DoResult(ctx, m.queue, func(ctx context.Context) (domain.Quote, error) {
		return m.provider.GetQuote(ctx, exchange, token)
	})
}

// GetSecurityInfo fetches reference data through the quote queue.
func (m *Market) GetSecurityInfo(ctx context.Context, exchange, token string) (domain.SecurityInfo, error) {
	return engine.DoResult(ctx, m.queue, func(ctx context.Context) (domain.SecurityInfo, error) {
		return m.provider.GetSecurityInfo(ctx, exchange, token)
	})
}

// Close releases the queue.
func (m *Market) Close() {
	m.queue.Close()
}
