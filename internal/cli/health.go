package cli

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/vietddude/oanda/internal/health"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check API reachability and credentials",
	Run:   runHealth,
}

func init() {
	rootCmd.AddCommand(healthCmd)
}

func runHealth(cmd *cobra.Command, args []string) {
	ctx, cancel := signalContext()
	defer cancel()

	client := newClient()
	defer func() { _ = client.Close() }()

	report := health.NewMonitor(client, nil).CheckHealth(ctx)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(report)

	if report.Status == health.StatusCritical {
		os.Exit(1)
	}
}
