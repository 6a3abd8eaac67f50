package cli

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the candle syncer with health and metrics endpoints",
	Run:   runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) {
	ctx, cancel := signalContext()
	defer cancel()

	app := newService(ctx)

	if err := app.Start(ctx); err != nil {
		slog.Error("Failed to start service", "error", err)
		app.Close()
		os.Exit(1)
	}

	slog.Info("Service started",
		"config", cfgPath,
		"port", appCfg.Server.Port,
		"grpc_port", appCfg.Server.GRPCPort,
		"instruments", appCfg.Sync.Instruments,
	)

	<-ctx.Done()
	slog.Info("Received signal, shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := app.Stop(shutdownCtx); err != nil {
		slog.Error("Error during shutdown", "error", err)
		os.Exit(1)
	}
	slog.Info("Service stopped gracefully")
}
