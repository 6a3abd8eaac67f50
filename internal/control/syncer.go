package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vietddude/oanda/internal/core/config"
	"github.com/vietddude/oanda/internal/core/domain"
	"github.com/vietddude/oanda/internal/infra/oanda/apierr"
	"github.com/vietddude/oanda/internal/infra/storage"
	"github.com/vietddude/oanda/internal/metrics"
)

// CandleSource fetches the most recent candles for one series.
type CandleSource interface {
	Candles(ctx context.Context, instrument string, g domain.Granularity, count int) ([]domain.Candle, error)
}

// SyncStatus describes the last completed sync round.
type SyncStatus struct {
	LastSync time.Time `json:"last_sync"`
	Rounds   int       `json:"rounds"`
	Stored   int       `json:"stored"`
	Failed   int       `json:"failed"`
	LastErr  error     `json:"-"`
}

// Syncer periodically copies complete candles for every configured
// instrument and granularity into the candle repository.
type Syncer struct {
	source CandleSource
	repo   storage.CandleRepository
	cfg    config.SyncConfig
	log    *slog.Logger
	now    func() time.Time

	mu     sync.RWMutex
	status SyncStatus
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSyncer creates a syncer. Zero interval, count or concurrency fall back
// to one minute, 500 candles and 4 workers.
func NewSyncer(source CandleSource, repo storage.CandleRepository, cfg config.SyncConfig) *Syncer {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Count <= 0 {
		cfg.Count = 500
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if len(cfg.Granularities) == 0 {
		cfg.Granularities = []domain.Granularity{domain.GranularityM1}
	}

	return &Syncer{
		source: source,
		repo:   repo,
		cfg:    cfg,
		log:    slog.Default().With("component", "syncer"),
		now:    time.Now,
	}
}

// Start runs a sync round immediately and then every interval until ctx is
// done or Stop is called.
func (s *Syncer) Start(ctx context.Context) error {
	if len(s.cfg.Instruments) == 0 {
		return errors.New("no instruments configured for sync")
	}

	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return errors.New("syncer already started")
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	s.log.Info("Starting candle sync",
		"instruments", s.cfg.Instruments,
		"granularities", s.cfg.Granularities,
		"interval", s.cfg.Interval,
	)

	go func() {
		defer close(done)

		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()

		for {
			if err := s.SyncOnce(ctx); err != nil && ctx.Err() == nil {
				s.log.Warn("Sync round finished with errors", "error", err)
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return nil
}

// Stop cancels the loop and waits for the running round to finish.
func (s *Syncer) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
		s.log.Info("Candle sync stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SyncOnce fetches every series once. A failing series does not stop the
// others; all failures are joined into the returned error.
func (s *Syncer) SyncOnce(ctx context.Context) error {
	var (
		mu     sync.Mutex
		errs   []error
		stored int
	)

	g := new(errgroup.Group)
	g.SetLimit(s.cfg.Concurrency)

	for _, inst := range s.cfg.Instruments {
		for _, gran := range s.cfg.Granularities {
			g.Go(func() error {
				n, err := s.syncSeries(ctx, inst, gran)

				mu.Lock()
				defer mu.Unlock()
				stored += n
				if err != nil {
					errs = append(errs, fmt.Errorf("%s %s: %w", inst, gran, err))
				}
				return nil
			})
		}
	}
	_ = g.Wait()

	err := errors.Join(errs...)

	s.mu.Lock()
	s.status.LastSync = s.now()
	s.status.Rounds++
	s.status.Stored += stored
	s.status.Failed = len(errs)
	s.status.LastErr = err
	s.mu.Unlock()

	metrics.LastSyncTimestamp.Set(float64(s.now().Unix()))
	return err
}

func (s *Syncer) syncSeries(ctx context.Context, instrument string, g domain.Granularity) (int, error) {
	candles, err := s.source.Candles(ctx, instrument, g, s.cfg.Count)
	if err != nil {
		level := slog.LevelWarn
		if apierr.IsAuth(err) {
			level = slog.LevelError
		}
		s.log.Log(ctx, level, "Failed to fetch candles",
			"instrument", instrument,
			"granularity", g,
			"kind", apierr.KindOf(err).String(),
			"error", err,
		)
		return 0, err
	}

	n, err := s.repo.Upsert(ctx, domain.CompleteOnly(candles))
	if err != nil {
		s.log.Error("Failed to store candles", "instrument", instrument, "granularity", g, "error", err)
		return 0, fmt.Errorf("store candles: %w", err)
	}

	metrics.CandlesStored.WithLabelValues(instrument, g.String()).Add(float64(n))
	s.log.Debug("Synced candles", "instrument", instrument, "granularity", g, "stored", n)
	return n, nil
}

// Status returns the outcome of the last round.
func (s *Syncer) Status() SyncStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// LastSync reports when the last round finished and its error.
func (s *Syncer) LastSync() (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status.LastSync, s.status.LastErr
}

// Interval returns the effective sync interval.
func (s *Syncer) Interval() time.Duration {
	return s.cfg.Interval
}

// Granularities returns the effective granularities.
func (s *Syncer) Granularities() []domain.Granularity {
	return s.cfg.Granularities
}
