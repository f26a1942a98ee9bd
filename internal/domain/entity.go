package domain

import "time"

// Pending-trade lifecycle statuses.
const (
	TradeStatusPending = "PENDING"
	TradeStatusPlaced  = "PLACED"
	TradeStatusFailed  = "FAILED"
)

// Signal is a persisted strategy signal received over the webhook.
type Signal struct {
	ID           string    `gorm:"primaryKey" json:"id"`
	Strategy     string    `json:"strategy"`
	Token        string    `gorm:"index" json:"token"`
	Exchange     string    `json:"exchange"`
	Symbol       string    `json:"symbol"`
	Side         Side      `json:"side"`
	QuantityLots int       `json:"quantity_lots"`
	ProductType  string    `json:"product_type"` // INTRADAY / DELIVERY / MARGIN
	Raw          string    `json:"raw"`          // original payload, kept for audit
	ReceivedAt   time.Time `json:"received_at"`
}

// PendingTrade is a trade awaiting the execution sweep. QuantityLots == 0
// means square off the token entirely.
type PendingTrade struct {
	ID           string    `gorm:"primaryKey" json:"id"`
	SignalID     string    `gorm:"index" json:"signal_id"`
	Strategy     string    `json:"strategy"`
	Token        string    `gorm:"index" json:"token"`
	Exchange     string    `json:"exchange"`
	Symbol       string    `json:"symbol"`
	Side         Side      `json:"side"`
	QuantityLots int       `json:"quantity_lots"`
	ProductType  string    `json:"product_type"`
	Status       string    `gorm:"index" json:"status"` // PENDING / PLACED / FAILED
	FailReason   string    `json:"fail_reason"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ResolveProductType maps a signal product type to the broker's code.
func ResolveProductType(productType string) string {
	switch productType {
	case "INTRADAY":
		return "I"
	case "DELIVERY":
		return "C"
	default:
		return "M"
	}
}
