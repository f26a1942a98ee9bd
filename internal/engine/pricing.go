package engine

import (
	"log/slog"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"risk_go/internal/domain"
)

// Price normalization for stop triggers and limits.
//
// Tick sizes arrive as decimal strings ("0.05", "0.0025") in the instrument
// master. Parsing the string, not a float, recovers the exact precision, so
// dividing and multiplying back cannot drift. Rounding is direction-safe: a
// trigger for a long exit rounds down and a short exit rounds up, so the
// normalized trigger is never less protective than the raw computed value.

// NormalizeTrigger snaps a raw trigger price to the instrument's tick grid.
// side is the POSITION side: BUY floors, SELL ceils. A missing or invalid
// tick size degrades to 2-decimal rounding with an error log, per instrument,
// rather than blocking the engine.
func NormalizeTrigger(raw float64, tickSize string, side domain.Side) float64 {
	return snapToTick(raw, tickSize, side == domain.SideBuy)
}

// NormalizeLimit snaps a raw limit price to the tick grid with the OPPOSITE
// rounding of the trigger: a SELL stop's limit floors (below trigger), a BUY
// stop's limit ceils (above trigger), keeping the limit marketable once the
// trigger fires. slOrderSide is the side of the stop ORDER, not the position.
func NormalizeLimit(raw float64, tickSize string, slOrderSide domain.Side) float64 {
	return snapToTick(raw, tickSize, slOrderSide == domain.SideSell)
}

// LimitForTrigger derives a stop-limit order's limit price from its
// (already normalized) trigger: offset by bufferPct in the direction the
// order will execute, then normalized with the opposite rounding.
func LimitForTrigger(trigger float64, slOrderSide domain.Side, bufferPct float64, tickSize string) float64 {
	buffer := trigger * bufferPct
	raw := trigger + buffer
	if slOrderSide == domain.SideSell {
		raw = trigger - buffer
	}
	return NormalizeLimit(raw, tickSize, slOrderSide)
}

func snapToTick(raw float64, tickSize string, roundDown bool) float64 {
	tickStr := strings.TrimSpace(tickSize)
	tick, err := decimal.NewFromString(tickStr)
	if err != nil || !tick.IsPositive() {
		slog.Error("tick size missing or invalid, falling back to 2-decimal rounding",
			slog.String("tickSize", tickSize), slog.Float64("raw", raw))
		return math.Round(raw*100) / 100
	}

	price := decimal.NewFromFloat(raw)
	ticks := price.Div(tick)
	if roundDown {
		ticks = ticks.Floor()
	} else {
		ticks = ticks.Ceil()
	}

	normalized := ticks.Mul(tick).Round(tickDecimals(tickStr))
	v, _ := normalized.Float64()
	return v
}

// tickDecimals derives the number of price decimals from the tick size
// STRING, so "0.050" keeps three decimals even though the value equals 0.05.
func tickDecimals(tickStr string) int32 {
	if i := strings.IndexByte(tickStr, '.'); i >= 0 {
		return int32(len(tickStr) - i - 1)
	}
	return 0
}
