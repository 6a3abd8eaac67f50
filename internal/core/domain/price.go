package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

var two = decimal.NewFromInt(2)

// Tick is a real-time quote.
type Tick struct {
	Instrument string          `json:"instrument"`
	Time       time.Time       `json:"time"`
	Bid        decimal.Decimal `json:"bid"`
	Ask        decimal.Decimal `json:"ask"`
}

// Spread returns Ask - Bid.
func (t Tick) Spread() decimal.Decimal {
	return t.Ask.Sub(t.Bid)
}

// Mid returns the midpoint of Bid and Ask.
func (t Tick) Mid() decimal.Decimal {
	return t.Bid.Add(t.Ask).Div(two)
}

// Candle is an OHLCV bar. Complete is false while the period is still open.
type Candle struct {
	Instrument  string          `json:"instrument"  db:"instrument"`
	Granularity Granularity     `json:"granularity" db:"granularity"`
	Time        time.Time       `json:"time"        db:"open_time"`
	Open        decimal.Decimal `json:"open"        db:"open_price"`
	High        decimal.Decimal `json:"high"        db:"high_price"`
	Low         decimal.Decimal `json:"low"         db:"low_price"`
	Close       decimal.Decimal `json:"close"       db:"close_price"`
	Volume      int64           `json:"volume"      db:"volume"`
	Complete    bool            `json:"complete"    db:"complete"`
}

// Range returns High - Low.
func (c Candle) Range() decimal.Decimal {
	return c.High.Sub(c.Low)
}

// End returns the close time of the candle period.
func (c Candle) End() time.Time {
	return c.Time.Add(c.Granularity.Duration())
}

// CompleteOnly filters out candles whose period has not closed yet.
func CompleteOnly(candles []Candle) []Candle {
	out := make([]Candle, 0, len(candles))
	for _, c := range candles {
		if c.Complete {
			out = append(out, c)
		}
	}
	return out
}
