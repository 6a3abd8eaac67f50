package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/oanda/internal/core/domain"
)

func sampleCandles(complete bool) []domain.Candle {
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	return []domain.Candle{
		{
			Instrument:  "EUR_USD",
			Granularity: domain.GranularityM5,
			Time:        start,
			Open:        decimal.NewFromFloat(1.1),
			High:        decimal.NewFromFloat(1.1005),
			Low:         decimal.NewFromFloat(1.0995),
			Close:       decimal.NewFromFloat(1.1002),
			Volume:      100,
			Complete:    true,
		},
		{
			Instrument:  "EUR_USD",
			Granularity: domain.GranularityM5,
			Time:        start.Add(5 * time.Minute),
			Complete:    complete,
		},
	}
}

func TestRangeKey(t *testing.T) {
	from := time.Unix(1704110400, 0)
	to := from.Add(time.Hour)
	require.Equal(t, "oanda:candles:EUR_USD:M5:1704110400-1704114000",
		rangeKey("EUR_USD", domain.GranularityM5, from, to))
}

func TestCandleEncoding(t *testing.T) {
	in := sampleCandles(true)
	data, err := encodeCandles(in)
	require.NoError(t, err)

	out, err := decodeCandles(data)
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.True(t, out[0].Close.Equal(in[0].Close))
	require.True(t, out[0].Time.Equal(in[0].Time))
	require.Equal(t, domain.GranularityM5, out[0].Granularity)

	_, err = decodeCandles([]byte("{"))
	require.Error(t, err)
}

func TestCacheable(t *testing.T) {
	require.True(t, cacheable(sampleCandles(true)))
	require.False(t, cacheable(sampleCandles(false)))
}

func TestClient_Live(t *testing.T) {
	url := os.Getenv("OANDA_TEST_REDIS_URL")
	if url == "" {
		t.Skip("OANDA_TEST_REDIS_URL not set")
	}

	c, err := NewClient(Config{URL: url, TTL: time.Minute})
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	from := time.Now().Add(-time.Hour).Truncate(time.Second)
	to := from.Add(10 * time.Minute)

	_, ok, err := c.GetRange(ctx, "EUR_USD", domain.GranularityM5, from, to)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, c.PutRange(ctx, "EUR_USD", domain.GranularityM5, from, to, sampleCandles(false)))
	_, ok, err = c.GetRange(ctx, "EUR_USD", domain.GranularityM5, from, to)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, c.PutRange(ctx, "EUR_USD", domain.GranularityM5, from, to, sampleCandles(true)))
	got, ok, err := c.GetRange(ctx, "EUR_USD", domain.GranularityM5, from, to)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got, 2)
}
