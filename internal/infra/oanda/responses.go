package oanda

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vietddude/oanda/internal/core/domain"
	"github.com/vietddude/oanda/internal/infra/oanda/apierr"
)

type pricingResponse struct {
	Prices []priceJSON `json:"prices"`
}

type priceJSON struct {
	Instrument string       `json:"instrument"`
	Time       string       `json:"time"`
	Bids       []priceLevel `json:"bids"`
	Asks       []priceLevel `json:"asks"`
}

type priceLevel struct {
	Price     string `json:"price"`
	Liquidity int64  `json:"liquidity"`
}

type candlesResponse struct {
	Instrument  string       `json:"instrument"`
	Granularity string       `json:"granularity"`
	Candles     []candleJSON `json:"candles"`
}

type candleJSON struct {
	Time     string    `json:"time"`
	Volume   int64     `json:"volume"`
	Complete bool      `json:"complete"`
	Mid      *ohlcJSON `json:"mid"`
	Bid      *ohlcJSON `json:"bid"`
	Ask      *ohlcJSON `json:"ask"`
}

type ohlcJSON struct {
	O string `json:"o"`
	H string `json:"h"`
	L string `json:"l"`
	C string `json:"c"`
}

type accountResponse struct {
	Account accountJSON `json:"account"`
}

type accountJSON struct {
	ID                string `json:"id"`
	Currency          string `json:"currency"`
	Balance           string `json:"balance"`
	NAV               string `json:"NAV"`
	UnrealizedPL      string `json:"unrealizedPL"`
	RealizedPL        string `json:"realizedPL"`
	PL                string `json:"pl"`
	MarginUsed        string `json:"marginUsed"`
	MarginAvailable   string `json:"marginAvailable"`
	OpenTradeCount    int    `json:"openTradeCount"`
	OpenPositionCount int    `json:"openPositionCount"`
}

type instrumentsResponse struct {
	Instruments []instrumentJSON `json:"instruments"`
}

type instrumentJSON struct {
	Name                string `json:"name"`
	Type                string `json:"type"`
	DisplayName         string `json:"displayName"`
	PipLocation         int    `json:"pipLocation"`
	TradeUnitsPrecision int    `json:"tradeUnitsPrecision"`
	MinimumTradeSize    string `json:"minimumTradeSize"`
	MaximumOrderUnits   string `json:"maximumOrderUnits"`
	MarginRate          string `json:"marginRate"`
}

// decode unmarshals a successful body. Malformed JSON is a decode error.
func decode[T any](body []byte) (T, error) {
	var v T
	if err := json.Unmarshal(body, &v); err != nil {
		return v, apierr.Decode(err)
	}
	return v, nil
}

func (p priceJSON) toTick() (domain.Tick, error) {
	if len(p.Bids) == 0 {
		return domain.Tick{}, apierr.Decode(fmt.Errorf("%s: no bid data", p.Instrument))
	}
	if len(p.Asks) == 0 {
		return domain.Tick{}, apierr.Decode(fmt.Errorf("%s: no ask data", p.Instrument))
	}

	at, err := parseTime(p.Time)
	if err != nil {
		return domain.Tick{}, err
	}
	bid, err := parsePrice("bid", p.Bids[0].Price)
	if err != nil {
		return domain.Tick{}, err
	}
	ask, err := parsePrice("ask", p.Asks[0].Price)
	if err != nil {
		return domain.Tick{}, err
	}

	return domain.Tick{
		Instrument: p.Instrument,
		Time:       at,
		Bid:        bid,
		Ask:        ask,
	}, nil
}

// toCandle prefers midpoint prices and falls back to bid prices.
func (c candleJSON) toCandle(instrument string, g domain.Granularity) (domain.Candle, error) {
	prices := c.Mid
	if prices == nil {
		prices = c.Bid
	}
	if prices == nil {
		return domain.Candle{}, apierr.Decode(errors.New("no price data in candle"))
	}

	at, err := parseTime(c.Time)
	if err != nil {
		return domain.Candle{}, err
	}

	candle := domain.Candle{
		Instrument:  instrument,
		Granularity: g,
		Time:        at,
		Volume:      c.Volume,
		Complete:    c.Complete,
	}
	fields := []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"open", prices.O, &candle.Open},
		{"high", prices.H, &candle.High},
		{"low", prices.L, &candle.Low},
		{"close", prices.C, &candle.Close},
	}
	for _, f := range fields {
		v, err := parsePrice(f.name, f.raw)
		if err != nil {
			return domain.Candle{}, err
		}
		*f.dst = v
	}
	return candle, nil
}

func (a accountJSON) toSummary() (domain.AccountSummary, error) {
	realized := a.RealizedPL
	if realized == "" {
		realized = a.PL
	}

	s := domain.AccountSummary{
		ID:                a.ID,
		Currency:          a.Currency,
		OpenTradeCount:    a.OpenTradeCount,
		OpenPositionCount: a.OpenPositionCount,
	}
	fields := []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"balance", a.Balance, &s.Balance},
		{"NAV", a.NAV, &s.NAV},
		{"unrealizedPL", a.UnrealizedPL, &s.UnrealizedPL},
		{"realizedPL", realized, &s.RealizedPL},
		{"marginUsed", a.MarginUsed, &s.MarginUsed},
		{"marginAvailable", a.MarginAvailable, &s.MarginAvailable},
	}
	for _, f := range fields {
		v, err := parseOptional(f.name, f.raw)
		if err != nil {
			return domain.AccountSummary{}, err
		}
		*f.dst = v
	}
	return s, nil
}

func (i instrumentJSON) toInstrument() (domain.Instrument, error) {
	inst := domain.Instrument{
		Name:                i.Name,
		Type:                i.Type,
		DisplayName:         i.DisplayName,
		PipLocation:         i.PipLocation,
		TradeUnitsPrecision: i.TradeUnitsPrecision,
	}
	fields := []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"minimumTradeSize", i.MinimumTradeSize, &inst.MinimumTradeSize},
		{"maximumOrderUnits", i.MaximumOrderUnits, &inst.MaximumOrderUnits},
		{"marginRate", i.MarginRate, &inst.MarginRate},
	}
	for _, f := range fields {
		v, err := parseOptional(f.name, f.raw)
		if err != nil {
			return domain.Instrument{}, err
		}
		*f.dst = v
	}
	return inst, nil
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, apierr.Decode(fmt.Errorf("invalid timestamp %q: %w", s, err))
	}
	return t.UTC(), nil
}

func parsePrice(field, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, apierr.Decode(fmt.Errorf("invalid %s %q: %w", field, s, err))
	}
	return d, nil
}

// parseOptional treats an absent figure as zero.
func parseOptional(field, s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return parsePrice(field, s)
}
