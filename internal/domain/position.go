package domain

// Side is the direction of an exposure or order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the closing direction for this side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// NetPosition is the broker's view of aggregate exposure for one instrument.
// The engine only ever holds a read-only cached copy; the broker owns it.
type NetPosition struct {
	Token         string
	Exchange      string
	TradingSymbol string
	NetQty        int     // signed: >0 long, <0 short, 0 flat
	AvgPrice      float64 // netavgprc from the position book
	ProductType   string  // I (intraday) / M (margin) / C (delivery)
}

// Side returns the direction implied by the signed net quantity.
// Callers must not ask for the side of a flat position.
func (p NetPosition) Side() Side {
	if p.NetQty > 0 {
		return SideBuy
	}
	return SideSell
}

// AbsQty returns the unsigned open quantity.
func (p NetPosition) AbsQty() int {
	if p.NetQty < 0 {
		return -p.NetQty
	}
	return p.NetQty
}

// FindOpenPosition returns the first non-flat position matching the tick's
// token and exchange, or nil.
func FindOpenPosition(positions []NetPosition, tick NormalizedTick) *NetPosition {
	for i := range positions {
		p := &positions[i]
		if p.Token == tick.Token && p.Exchange == tick.Exchange && p.NetQty != 0 {
			return p
		}
	}
	return nil
}
