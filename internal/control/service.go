package control

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vietddude/oanda/internal/core/config"
	"github.com/vietddude/oanda/internal/health"
	"github.com/vietddude/oanda/internal/infra/oanda"
	redisclient "github.com/vietddude/oanda/internal/infra/redis"
	"github.com/vietddude/oanda/internal/infra/storage"
	"github.com/vietddude/oanda/internal/infra/storage/memory"
	"github.com/vietddude/oanda/internal/infra/storage/postgres"
)

// healthProbeInterval is how often the gRPC serving status is refreshed.
const healthProbeInterval = 15 * time.Second

// Service owns the API client and everything running on top of it.
type Service struct {
	cfg          config.AppConfig
	client       *oanda.Client
	repo         storage.CandleRepository
	syncer       *Syncer
	healthMon    *health.Monitor
	healthServer *health.Server
	db           *postgres.DB
	redisClient  *redisclient.Client
	log          *slog.Logger
}

// NewService creates a Service with all dependencies initialized. Redis and
// PostgreSQL are optional: without a URL the candle cache is disabled and
// candles are kept in memory.
func NewService(ctx context.Context, cfg config.AppConfig, opts ...oanda.Option) (*Service, error) {
	s := &Service{
		cfg: cfg,
		log: slog.Default(),
	}

	// 1. Storage
	if cfg.Database.URL != "" {
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if cfg.Database.AutoMigrate {
			if err := postgres.Migrate(ctx, db); err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("failed to migrate db: %w", err)
			}
		}
		s.db = db
		s.repo = postgres.NewCandleRepo(db)
		s.log.Info("Using PostgreSQL storage", "driver", cfg.Database.Driver)
	} else {
		s.repo = memory.NewCandleRepo()
		s.log.Info("Using Memory storage")
	}

	// 2. Candle cache
	if cfg.Redis.URL != "" {
		rc, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			s.log.Warn("Failed to connect to Redis, candle cache disabled", "error", err)
		} else {
			s.redisClient = rc
			opts = append(opts, oanda.WithCandleCache(rc))
		}
	}

	// 3. API client
	client, err := oanda.New(cfg.Oanda, opts...)
	if err != nil {
		s.close()
		return nil, err
	}
	s.client = client

	// 4. Syncer and health
	var syncReporter health.SyncReporter
	if len(cfg.Sync.Instruments) > 0 {
		s.syncer = NewSyncer(client, s.repo, cfg.Sync)
		syncReporter = s.syncer
	}
	s.healthMon = health.NewMonitor(client, syncReporter)
	s.healthServer = health.NewServer(s.healthMon, cfg.Server.Port, cfg.Server.GRPCPort)

	return s, nil
}

// Client returns the API client.
func (s *Service) Client() *oanda.Client {
	return s.client
}

// Repo returns the candle repository.
func (s *Service) Repo() storage.CandleRepository {
	return s.repo
}

// Syncer returns the candle syncer, or nil when no instruments are configured.
func (s *Service) Syncer() *Syncer {
	return s.syncer
}

// Health returns the health monitor.
func (s *Service) Health() *health.Monitor {
	return s.healthMon
}

// Start starts the health server and the syncer.
func (s *Service) Start(ctx context.Context) error {
	go func() {
		if err := s.healthServer.Start(); err != nil {
			s.log.Error("Health server failed", "error", err)
		}
	}()

	go s.healthServer.Watch(ctx, healthProbeInterval)

	if s.syncer != nil {
		if err := s.syncer.Start(ctx); err != nil {
			return err
		}
	} else {
		s.log.Info("No sync instruments configured, candle sync disabled")
	}
	return nil
}

// Stop stops the syncer and the health server and releases connections.
func (s *Service) Stop(ctx context.Context) error {
	s.log.Info("Stopping service...")

	if s.syncer != nil {
		if err := s.syncer.Stop(ctx); err != nil {
			s.log.Warn("Syncer did not stop cleanly", "error", err)
		}
	}

	err := s.healthServer.Stop(ctx)
	s.close()
	return err
}

// Close releases connections without stopping servers. Use it for
// one-shot commands that never called Start.
func (s *Service) Close() {
	s.close()
}

func (s *Service) close() {
	if s.client != nil {
		_ = s.client.Close()
	}
	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			s.log.Warn("Failed to close Redis", "error", err)
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.log.Warn("Failed to close database", "error", err)
		}
	}
}
