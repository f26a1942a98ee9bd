package infra

import "time"

// Exchanges whose trading hours are enforced. Anything else (currency,
// commodity segments) is left unrestricted.
var restrictedExchanges = map[string]bool{
	"NSE": true,
	"NFO": true,
	"BSE": true,
	"BFO": true,
}

// TradingWindow gates mutating broker actions to the exchange session, in
// exchange local time (IST). An optional break interval inside the session
// can be blocked too.
type TradingWindow struct {
	start int // minute of day
	end   int

	breakStart int // 0 when no break configured
	breakEnd   int

	loc *time.Location
}

// NewTradingWindow builds the window from config. The IST location falls
// back to a fixed +05:30 zone when the tz database is unavailable.
func NewTradingWindow(cfg *Config) *TradingWindow {
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		loc = time.FixedZone("IST", 5*3600+1800)
	}
	return &TradingWindow{
		start:      cfg.TradingWindow.StartHour*60 + cfg.TradingWindow.StartMinute,
		end:        cfg.TradingWindow.EndHour*60 + cfg.TradingWindow.EndMinute,
		breakStart: cfg.TradingWindow.BreakStart,
		breakEnd:   cfg.TradingWindow.BreakEnd,
		loc:        loc,
	}
}

// Allowed reports whether a mutating action may run for this exchange now.
func (w *TradingWindow) Allowed(exchange string, now time.Time) bool {
	if !restrictedExchanges[exchange] {
		return true
	}

	local := now.In(w.loc)
	minute := local.Hour()*60 + local.Minute()

	if minute < w.start || minute >= w.end {
		return false
	}
	if w.breakStart > 0 && w.breakEnd > w.breakStart &&
		minute >= w.breakStart && minute < w.breakEnd {
		return false
	}
	return true
}
