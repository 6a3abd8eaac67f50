package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidGranularity is returned for an unknown granularity code.
var ErrInvalidGranularity = errors.New("invalid granularity")

// Granularity is a candle period as named by the OANDA API.
type Granularity string

const (
	GranularityS5  Granularity = "S5"
	GranularityS10 Granularity = "S10"
	GranularityS15 Granularity = "S15"
	GranularityS30 Granularity = "S30"
	GranularityM1  Granularity = "M1"
	GranularityM2  Granularity = "M2"
	GranularityM5  Granularity = "M5"
	GranularityM15 Granularity = "M15"
	GranularityM30 Granularity = "M30"
	GranularityH1  Granularity = "H1"
	GranularityH4  Granularity = "H4"
	GranularityD   Granularity = "D"
	GranularityW   Granularity = "W"
	GranularityM   Granularity = "M" // monthly
)

var granularityDurations = map[Granularity]time.Duration{
	GranularityS5:  5 * time.Second,
	GranularityS10: 10 * time.Second,
	GranularityS15: 15 * time.Second,
	GranularityS30: 30 * time.Second,
	GranularityM1:  time.Minute,
	GranularityM2:  2 * time.Minute,
	GranularityM5:  5 * time.Minute,
	GranularityM15: 15 * time.Minute,
	GranularityM30: 30 * time.Minute,
	GranularityH1:  time.Hour,
	GranularityH4:  4 * time.Hour,
	GranularityD:   24 * time.Hour,
	GranularityW:   7 * 24 * time.Hour,
	GranularityM:   30 * 24 * time.Hour, // approximate
}

// Granularities lists every supported granularity from shortest to longest.
var Granularities = []Granularity{
	GranularityS5, GranularityS10, GranularityS15, GranularityS30,
	GranularityM1, GranularityM2, GranularityM5, GranularityM15, GranularityM30,
	GranularityH1, GranularityH4,
	GranularityD, GranularityW, GranularityM,
}

// ParseGranularity parses a granularity code case-insensitively.
func ParseGranularity(s string) (Granularity, error) {
	g := Granularity(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := granularityDurations[g]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidGranularity, s)
	}
	return g, nil
}

func (g Granularity) String() string {
	return string(g)
}

// Valid reports whether g is a known granularity.
func (g Granularity) Valid() bool {
	_, ok := granularityDurations[g]
	return ok
}

// Duration returns the candle period. Monthly candles use 30 days.
func (g Granularity) Duration() time.Duration {
	return granularityDurations[g]
}

// UnmarshalYAML lets config files use any letter case.
func (g *Granularity) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := ParseGranularity(s)
	if err != nil {
		return err
	}
	*g = parsed
	return nil
}
