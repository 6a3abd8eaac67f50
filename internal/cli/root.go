package cli

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/vietddude/stylelog"

	"github.com/vietddude/oanda/internal/control"
	"github.com/vietddude/oanda/internal/core/config"
	"github.com/vietddude/oanda/internal/infra/oanda"
)

var (
	cfgPath string
	isDebug bool

	appCfg *config.AppConfig
)

var rootCmd = &cobra.Command{
	Use:   "oanda",
	Short: "OANDA forex API client",
	Long: `oanda queries the OANDA v3 REST API through a shared rate limiter with
automatic retries, and can archive candles into PostgreSQL.`,
	PersistentPreRun: setup,
	SilenceUsage:     true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "config file; OANDA_* env vars are used when it does not exist")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
}

func setup(cmd *cobra.Command, args []string) {
	_ = godotenv.Load()

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		stylelog.InitDefault()
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	appCfg = cfg

	setupLogging(cfg.Logging, isDebug)
}

// loadConfig reads path when it exists and falls back to the environment.
func loadConfig(path string) (*config.AppConfig, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	oc, err := config.FromEnv()
	if err != nil {
		return nil, err
	}
	return &config.AppConfig{
		Oanda:  oc,
		Server: config.ServerConfig{Port: 8080},
	}, nil
}

func setupLogging(cfg config.LoggingConfig, debug bool) {
	level := slog.LevelInfo
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			level = slog.LevelInfo
		}
	}
	if debug {
		level = slog.LevelDebug
	}

	if strings.EqualFold(cfg.Format, "json") {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		return
	}

	stylelog.InitDefault(&tint.Options{
		Level:      level,
		TimeFormat: time.RFC3339,
	})
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// newClient builds a client for one-shot commands.
func newClient() *oanda.Client {
	client, err := oanda.New(appCfg.Oanda)
	if err != nil {
		slog.Error("Failed to create client", "error", err)
		os.Exit(1)
	}
	return client
}

// newService builds the full service for commands that need storage.
func newService(ctx context.Context) *control.Service {
	svc, err := control.NewService(ctx, *appCfg)
	if err != nil {
		slog.Error("Failed to initialize service", "error", err)
		os.Exit(1)
	}
	return svc
}

func fail(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}
