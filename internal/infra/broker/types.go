package broker

import (
	"strconv"
	"strings"
	"time"

	"risk_go/internal/domain"
)

// Wire structs for the broker gateway. The gateway speaks a form-encoded
// protocol: every POST body is `jData=<json>&jKey=<session token>`, every
// response carries stat=Ok or stat=Not_Ok with an emsg reason. Numeric
// fields travel as strings.

type statusResponse struct {
	Stat string `json:"stat"`
	Emsg string `json:"emsg"`
}

type placeOrderPayload struct {
	UID          string `json:"uid"`
	ActID        string `json:"actid"`
	Exchange     string `json:"exch"`
	Symbol       string `json:"tsym"`
	Qty          string `json:"qty"`
	Price        string `json:"prc"`
	TriggerPrice string `json:"trgprc,omitempty"`
	Product      string `json:"prd"`
	TranType     string `json:"trantype"` // B / S
	PriceType    string `json:"prctyp"`   // MKT / LMT / SL-LMT / SL-MKT
	Retention    string `json:"ret"`
	Remarks      string `json:"remarks,omitempty"`
	Ordersource  string `json:"ordersource"`
}

type placeOrderResponse struct {
	statusResponse
	OrderNo string `json:"norenordno"`
}

type modifyOrderPayload struct {
	UID          string `json:"uid"`
	OrderNo      string `json:"norenordno"`
	Exchange     string `json:"exch"`
	Symbol       string `json:"tsym"`
	Qty          string `json:"qty"`
	PriceType    string `json:"prctyp"`
	Price        string `json:"prc"`
	TriggerPrice string `json:"trgprc,omitempty"`
}

type cancelOrderPayload struct {
	UID     string `json:"uid"`
	OrderNo string `json:"norenordno"`
}

type exitOrderPayload struct {
	UID     string `json:"uid"`
	OrderNo string `json:"norenordno"`
	Product string `json:"prd"`
}

type listPayload struct {
	UID   string `json:"uid"`
	ActID string `json:"actid,omitempty"`
}

type quotePayload struct {
	UID      string `json:"uid"`
	Exchange string `json:"exch"`
	Token    string `json:"token"`
}

type positionRow struct {
	statusResponse
	Exchange string `json:"exch"`
	Token    string `json:"token"`
	Symbol   string `json:"tsym"`
	NetQty   string `json:"netqty"`
	NetAvg   string `json:"netavgprc"`
	Product  string `json:"prd"`
}

type orderRow struct {
	statusResponse
	OrderNo      string `json:"norenordno"`
	Exchange     string `json:"exch"`
	Token        string `json:"token"`
	Symbol       string `json:"tsym"`
	PriceType    string `json:"prctyp"`
	Status       string `json:"status"`
	Qty          string `json:"qty"`
	TriggerPrice string `json:"trgprc"`
	Price        string `json:"prc"`
}

type tradeRow struct {
	statusResponse
	OrderNo   string `json:"norenordno"`
	Exchange  string `json:"exch"`
	Token     string `json:"token"`
	Symbol    string `json:"tsym"`
	TranType  string `json:"trantype"`
	FillPrice string `json:"flprc"`
	FillQty   string `json:"flqty"`
	ExchTime  string `json:"exch_tm"` // dd-mm-yyyy hh:mm:ss
}

type quoteRow struct {
	statusResponse
	Exchange  string `json:"exch"`
	Token     string `json:"token"`
	Symbol    string `json:"tsym"`
	LastPrice string `json:"lp"`
	TickSize  string `json:"ti"`
	LotSize   string `json:"ls"`
}

func (r positionRow) toDomain() domain.NetPosition {
	return domain.NetPosition{
		Token:         r.Token,
		Exchange:      r.Exchange,
		TradingSymbol: r.Symbol,
		NetQty:        atoi(r.NetQty),
		AvgPrice:      atof(r.NetAvg),
		ProductType:   r.Product,
	}
}

func (r orderRow) toDomain() domain.WorkingOrder {
	return domain.WorkingOrder{
		OrderID:       r.OrderNo,
		Token:         r.Token,
		Exchange:      r.Exchange,
		TradingSymbol: r.Symbol,
		OrderType:     r.PriceType,
		Status:        r.Status,
		Qty:           atoi(r.Qty),
		TriggerPrice:  atof(r.TriggerPrice),
		LimitPrice:    atof(r.Price),
	}
}

func (r tradeRow) toDomain() domain.Trade {
	side := domain.SideBuy
	if r.TranType == "S" {
		side = domain.SideSell
	}
	return domain.Trade{
		OrderID:       r.OrderNo,
		Token:         r.Token,
		Exchange:      r.Exchange,
		TradingSymbol: r.Symbol,
		Side:          side,
		FillPrice:     atof(r.FillPrice),
		Qty:           atoi(r.FillQty),
		ExchTime:      parseExchTime(r.ExchTime),
	}
}

func tranType(side domain.Side) string {
	if side == domain.SideSell {
		return "S"
	}
	return "B"
}

// parseExchTime parses the gateway's dd-mm-yyyy hh:mm:ss timestamps in
// exchange local time. An unparseable value yields the zero time, which
// sorts before every real fill.
func parseExchTime(s string) time.Time {
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		loc = time.FixedZone("IST", 5*3600+1800)
	}
	t, err := time.ParseInLocation("02-01-2006 15:04:05", strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}
	}
	return t
}

func atoi(s string) int {
	v, _ := strconv.Atoi(strings.TrimSpace(s))
	return v
}

func atof(s string) float64 {
	v, _ := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return v
}

func ftoa(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func itoa(v int) string {
	return strconv.Itoa(v)
}
