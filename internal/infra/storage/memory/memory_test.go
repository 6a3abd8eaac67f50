package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/oanda/internal/core/domain"
	"github.com/vietddude/oanda/internal/infra/storage"
)

var _ storage.CandleRepository = (*CandleRepo)(nil)

func candle(at time.Time, close float64, complete bool) domain.Candle {
	return domain.Candle{
		Instrument:  "EUR_USD",
		Granularity: domain.GranularityM1,
		Time:        at,
		Close:       decimal.NewFromFloat(close),
		Complete:    complete,
	}
}

func TestCandleRepo(t *testing.T) {
	ctx := context.Background()
	repo := NewCandleRepo()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := repo.Latest(ctx, "EUR_USD", domain.GranularityM1)
	require.True(t, errors.Is(err, storage.ErrNotFound))

	n, err := repo.Upsert(ctx, []domain.Candle{
		candle(start.Add(2*time.Minute), 1.3, true),
		candle(start, 1.1, true),
		candle(start.Add(time.Minute), 1.2, true),
		candle(start.Add(3*time.Minute), 1.4, false),
	})
	require.NoError(t, err)
	require.Equal(t, 3, n)

	// upsert replaces by open time
	_, err = repo.Upsert(ctx, []domain.Candle{candle(start, 1.05, true)})
	require.NoError(t, err)

	count, err := repo.Count(ctx, "EUR_USD", domain.GranularityM1)
	require.NoError(t, err)
	require.Equal(t, 3, count)

	got, err := repo.Range(ctx, "EUR_USD", domain.GranularityM1, start, start.Add(2*time.Minute))
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.True(t, got[0].Close.Equal(decimal.NewFromFloat(1.05)))
	require.True(t, got[1].Time.Equal(start.Add(time.Minute)))

	latest, err := repo.Latest(ctx, "EUR_USD", domain.GranularityM1)
	require.NoError(t, err)
	require.True(t, latest.Time.Equal(start.Add(2*time.Minute)))

	other, err := repo.Count(ctx, "EUR_USD", domain.GranularityH1)
	require.NoError(t, err)
	require.Zero(t, other)
}
