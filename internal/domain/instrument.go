package domain

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Instrument is one row of the static instrument master. TickSize is kept as
// the raw decimal string so price normalization can recover the exact number
// of decimals without binary-float drift.
type Instrument struct {
	Exchange       string `json:"exchange"`
	Token          string `json:"token"`
	TradingSymbol  string `json:"tradingSymbol"`
	InstrumentType string `json:"instrument,omitempty"` // OPTIDX, FUTSTK, EQ, ...
	OptionType     string `json:"optionType,omitempty"` // CE / PE
	Expiry         string `json:"expiry,omitempty"`
	Underlying     string `json:"symbol,omitempty"`
	StrikePrice    string `json:"strike,omitempty"`
	TickSize       string `json:"tickSize"`
	LotSize        int    `json:"lotSize"`
}

// Catalog is the loaded instrument master. It is built once at startup and
// read-only afterwards, so concurrent lookups need no locking.
type Catalog struct {
	byToken    map[string]Instrument
	byContract map[string]Instrument
}

func tokenKey(exchange, token string) string {
	return exchange + "|" + token
}

func contractKey(exchange, instrumentType, optionType, expiry, underlying, strike string) string {
	return strings.Join([]string{exchange, instrumentType, optionType, expiry, underlying, strike}, "|")
}

// NewCatalog indexes a slice of instruments.
func NewCatalog(instruments []Instrument) *Catalog {
	c := &Catalog{
		byToken:    make(map[string]Instrument, len(instruments)),
		byContract: make(map[string]Instrument, len(instruments)),
	}
	for _, ins := range instruments {
		c.byToken[tokenKey(ins.Exchange, ins.Token)] = ins
		c.byContract[contractKey(ins.Exchange, ins.InstrumentType, ins.OptionType, ins.Expiry, ins.Underlying, ins.StrikePrice)] = ins
	}
	return c
}

// LoadCatalog reads the instrument master JSON file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read instrument master: %w", err)
	}
	var instruments []Instrument
	if err := json.Unmarshal(data, &instruments); err != nil {
		return nil, fmt.Errorf("parse instrument master: %w", err)
	}
	if len(instruments) == 0 {
		return nil, fmt.Errorf("instrument master %s is empty", path)
	}
	return NewCatalog(instruments), nil
}

// ByToken looks an instrument up by (exchange, token).
func (c *Catalog) ByToken(exchange, token string) (Instrument, bool) {
	ins, ok := c.byToken[tokenKey(exchange, token)]
	return ins, ok
}

// ByContract looks an instrument up by its full contract description.
func (c *Catalog) ByContract(exchange, instrumentType, optionType, expiry, underlying, strike string) (Instrument, bool) {
	ins, ok := c.byContract[contractKey(exchange, instrumentType, optionType, expiry, underlying, strike)]
	return ins, ok
}

// Len returns the number of indexed instruments.
func (c *Catalog) Len() int {
	return len(c.byToken)
}
