package domain

import "github.com/shopspring/decimal"

// AccountSummary holds the balances of a trading account.
type AccountSummary struct {
	ID                string          `json:"id"`
	Currency          string          `json:"currency"`
	Balance           decimal.Decimal `json:"balance"`
	NAV               decimal.Decimal `json:"nav"`
	UnrealizedPL      decimal.Decimal `json:"unrealized_pl"`
	RealizedPL        decimal.Decimal `json:"realized_pl"`
	MarginUsed        decimal.Decimal `json:"margin_used"`
	MarginAvailable   decimal.Decimal `json:"margin_available"`
	OpenTradeCount    int             `json:"open_trade_count"`
	OpenPositionCount int             `json:"open_position_count"`
}

// Instrument describes a tradeable instrument.
type Instrument struct {
	Name                string          `json:"name"`
	Type                string          `json:"type"`
	DisplayName         string          `json:"display_name"`
	PipLocation         int             `json:"pip_location"`
	TradeUnitsPrecision int             `json:"trade_units_precision"`
	MinimumTradeSize    decimal.Decimal `json:"minimum_trade_size"`
	MaximumOrderUnits   decimal.Decimal `json:"maximum_order_units"`
	MarginRate          decimal.Decimal `json:"margin_rate"`
}

// PipSize returns 10^PipLocation, e.g. 0.0001 for EUR_USD.
func (i Instrument) PipSize() decimal.Decimal {
	return decimal.New(1, int32(i.PipLocation))
}
