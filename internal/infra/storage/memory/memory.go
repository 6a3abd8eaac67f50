package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vietddude/oanda/internal/core/domain"
	"github.com/vietddude/oanda/internal/infra/storage"
)

type seriesKey struct {
	instrument  string
	granularity domain.Granularity
}

// CandleRepo implements storage.CandleRepository in memory.
type CandleRepo struct {
	mu     sync.RWMutex
	series map[seriesKey]map[int64]domain.Candle
}

func NewCandleRepo() *CandleRepo {
	return &CandleRepo{
		series: make(map[seriesKey]map[int64]domain.Candle),
	}
}

func (r *CandleRepo) Upsert(ctx context.Context, candles []domain.Candle) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := 0
	for _, c := range candles {
		if !c.Complete {
			continue
		}
		key := seriesKey{c.Instrument, c.Granularity}
		s, ok := r.series[key]
		if !ok {
			s = make(map[int64]domain.Candle)
			r.series[key] = s
		}
		s[c.Time.UnixNano()] = c
		stored++
	}
	return stored, nil
}

func (r *CandleRepo) Range(
	ctx context.Context,
	instrument string,
	g domain.Granularity,
	from, to time.Time,
) ([]domain.Candle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.Candle
	for _, c := range r.series[seriesKey{instrument, g}] {
		if !c.Time.Before(from) && c.Time.Before(to) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}

func (r *CandleRepo) Latest(
	ctx context.Context,
	instrument string,
	g domain.Granularity,
) (*domain.Candle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var latest *domain.Candle
	for _, c := range r.series[seriesKey{instrument, g}] {
		if latest == nil || c.Time.After(latest.Time) {
			c := c
			latest = &c
		}
	}
	if latest == nil {
		return nil, storage.ErrNotFound
	}
	return latest, nil
}

func (r *CandleRepo) Count(ctx context.Context, instrument string, g domain.Granularity) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.series[seriesKey{instrument, g}]), nil
}
