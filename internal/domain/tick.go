package domain

import "math"

// RawTick is a tick event exactly as the feed delivers it. Fields may be
// missing or malformed; nothing downstream consumes a RawTick directly.
type RawTick struct {
	Token     string  `json:"tk"`
	Exchange  string  `json:"e"`
	LastPrice float64 `json:"lp"`
	FeedTime  int64   `json:"ft,omitempty"`
}

// NormalizedTick is a validated tick. It lives only for the duration of the
// processing call chain and is never retained.
type NormalizedTick struct {
	Token     string
	Exchange  string
	LastPrice float64
}

// NormalizeTick validates a raw tick and canonicalizes it. A tick with a
// non-positive or non-finite price, or a missing token/exchange, is dropped.
func NormalizeTick(raw RawTick) (NormalizedTick, bool) {
	if raw.Token == "" || raw.Exchange == "" {
		return NormalizedTick{}, false
	}
	lp := raw.LastPrice
	if lp <= 0 || math.IsNaN(lp) || math.IsInf(lp, 0) {
		return NormalizedTick{}, false
	}
	return NormalizedTick{Token: raw.Token, Exchange: raw.Exchange, LastPrice: lp}, true
}
