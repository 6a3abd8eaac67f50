package storage

import (
	"context"
	"errors"
	"time"

	"github.com/vietddude/oanda/internal/core/domain"
)

var (
	// ErrNotFound is returned when no candle matches the query
	ErrNotFound = errors.New("candle not found")
)

// CandleRepository persists complete candles.
type CandleRepository interface {
	// Upsert inserts or replaces candles keyed by instrument, granularity
	// and open time. Incomplete candles are ignored. Returns the number stored.
	Upsert(ctx context.Context, candles []domain.Candle) (int, error)

	// Range returns candles with from <= time < to, oldest first
	Range(
		ctx context.Context,
		instrument string,
		g domain.Granularity,
		from, to time.Time,
	) ([]domain.Candle, error)

	// Latest returns the most recent stored candle
	Latest(ctx context.Context, instrument string, g domain.Granularity) (*domain.Candle, error)

	// Count returns the number of stored candles
	Count(ctx context.Context, instrument string, g domain.Granularity) (int, error)
}
