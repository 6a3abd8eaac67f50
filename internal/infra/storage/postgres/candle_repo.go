package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vietddude/oanda/internal/core/domain"
	"github.com/vietddude/oanda/internal/infra/storage"
)

const upsertCandleQuery = `
	INSERT INTO candles (
		instrument, granularity, open_time,
		open_price, high_price, low_price, close_price,
		volume, complete
	)
	VALUES (
		:instrument, :granularity, :open_time,
		:open_price, :high_price, :low_price, :close_price,
		:volume, :complete
	)
	ON CONFLICT (instrument, granularity, open_time) DO UPDATE SET
		open_price = EXCLUDED.open_price,
		high_price = EXCLUDED.high_price,
		low_price = EXCLUDED.low_price,
		close_price = EXCLUDED.close_price,
		volume = EXCLUDED.volume,
		complete = EXCLUDED.complete,
		updated_at = NOW()
`

const candleColumns = `
	instrument, granularity, open_time,
	open_price, high_price, low_price, close_price,
	volume, complete
`

// CandleRepo implements storage.CandleRepository using PostgreSQL.
type CandleRepo struct {
	db *DB
}

// NewCandleRepo creates a new PostgreSQL candle repository.
func NewCandleRepo(db *DB) *CandleRepo {
	return &CandleRepo{db: db}
}

// Upsert stores complete candles in a single transaction.
func (r *CandleRepo) Upsert(ctx context.Context, candles []domain.Candle) (int, error) {
	complete := domain.CompleteOnly(candles)
	if len(complete) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareNamedContext(ctx, upsertCandleQuery)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, c := range complete {
		c.Time = c.Time.UTC()
		if _, err := stmt.ExecContext(ctx, c); err != nil {
			return 0, fmt.Errorf("failed to upsert candle %s %s %s: %w",
				c.Instrument, c.Granularity, c.Time.Format(time.RFC3339), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit candles: %w", err)
	}
	return len(complete), nil
}

// Range returns stored candles in [from, to), oldest first.
func (r *CandleRepo) Range(
	ctx context.Context,
	instrument string,
	g domain.Granularity,
	from, to time.Time,
) ([]domain.Candle, error) {
	query := `SELECT ` + candleColumns + `
		FROM candles
		WHERE instrument = $1 AND granularity = $2 AND open_time >= $3 AND open_time < $4
		ORDER BY open_time ASC`

	var candles []domain.Candle
	if err := r.db.SelectContext(ctx, &candles, query, instrument, string(g), from.UTC(), to.UTC()); err != nil {
		return nil, fmt.Errorf("failed to query candles: %w", err)
	}
	return candles, nil
}

// Latest returns the most recent stored candle.
func (r *CandleRepo) Latest(
	ctx context.Context,
	instrument string,
	g domain.Granularity,
) (*domain.Candle, error) {
	query := `SELECT ` + candleColumns + `
		FROM candles
		WHERE instrument = $1 AND granularity = $2
		ORDER BY open_time DESC
		LIMIT 1`

	var c domain.Candle
	err := r.db.GetContext(ctx, &c, query, instrument, string(g))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest candle: %w", err)
	}
	return &c, nil
}

// Count returns the number of stored candles.
func (r *CandleRepo) Count(ctx context.Context, instrument string, g domain.Granularity) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM candles WHERE instrument = $1 AND granularity = $2`,
		instrument, string(g),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to count candles: %w", err)
	}
	return n, nil
}
