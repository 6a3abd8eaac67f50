package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/oanda/internal/core/domain"
)

var priceCmd = &cobra.Command{
	Use:   "price INSTRUMENT...",
	Short: "Show current bid/ask quotes",
	Args:  cobra.MinimumNArgs(1),
	Run:   runPrice,
}

var (
	candleGranularity string
	candleCount       int
	candleFrom        string
	candleTo          string
)

var candlesCmd = &cobra.Command{
	Use:   "candles INSTRUMENT",
	Short: "Show historical candles",
	Long: `Show the most recent --count candles, or the candles between --from and
--to (RFC3339) when both are given.`,
	Args: cobra.ExactArgs(1),
	Run:  runCandles,
}

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Show the account summary",
	Run:   runAccount,
}

var instrumentsCmd = &cobra.Command{
	Use:   "instruments",
	Short: "List tradeable instruments",
	Run:   runInstruments,
}

func init() {
	candlesCmd.Flags().StringVarP(&candleGranularity, "granularity", "g", "M1", "candle granularity (S5..M)")
	candlesCmd.Flags().IntVarP(&candleCount, "count", "n", 10, "number of candles (max 5000)")
	candlesCmd.Flags().StringVar(&candleFrom, "from", "", "range start, RFC3339")
	candlesCmd.Flags().StringVar(&candleTo, "to", "", "range end, RFC3339")

	rootCmd.AddCommand(priceCmd, candlesCmd, accountCmd, instrumentsCmd)
}

func newTable() *tabwriter.Writer {
	return tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
}

func runPrice(cmd *cobra.Command, args []string) {
	ctx, cancel := signalContext()
	defer cancel()

	client := newClient()
	defer func() { _ = client.Close() }()

	ticks, err := client.CurrentPrices(ctx, args)
	if err != nil {
		fail("Failed to fetch prices", err)
	}

	w := newTable()
	_, _ = fmt.Fprintln(w, "INSTRUMENT\tBID\tASK\tSPREAD\tTIME")
	for _, t := range ticks {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			t.Instrument, t.Bid, t.Ask, t.Spread(), t.Time.Format(time.RFC3339))
	}
	_ = w.Flush()
}

func runCandles(cmd *cobra.Command, args []string) {
	g, err := domain.ParseGranularity(candleGranularity)
	if err != nil {
		fail("Invalid granularity", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	var candles []domain.Candle
	if candleFrom != "" || candleTo != "" {
		from, to, err := parseRange(candleFrom, candleTo)
		if err != nil {
			fail("Invalid range", err)
		}
		// the range path goes through the service so the redis cache is used
		svc := newService(ctx)
		defer svc.Close()
		candles, err = svc.Client().CandlesRange(ctx, args[0], g, from, to)
		if err != nil {
			fail("Failed to fetch candles", err)
		}
	} else {
		client := newClient()
		defer func() { _ = client.Close() }()
		candles, err = client.Candles(ctx, args[0], g, candleCount)
		if err != nil {
			fail("Failed to fetch candles", err)
		}
	}

	w := newTable()
	_, _ = fmt.Fprintln(w, "TIME\tOPEN\tHIGH\tLOW\tCLOSE\tVOLUME\tCOMPLETE")
	for _, c := range candles {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%t\n",
			c.Time.Format(time.RFC3339), c.Open, c.High, c.Low, c.Close, c.Volume, c.Complete)
	}
	_ = w.Flush()
}

func parseRange(from, to string) (time.Time, time.Time, error) {
	if from == "" || to == "" {
		return time.Time{}, time.Time{}, fmt.Errorf("both --from and --to are required")
	}
	f, err := time.Parse(time.RFC3339, from)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("--from: %w", err)
	}
	t, err := time.Parse(time.RFC3339, to)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("--to: %w", err)
	}
	return f, t, nil
}

func runAccount(cmd *cobra.Command, args []string) {
	ctx, cancel := signalContext()
	defer cancel()

	client := newClient()
	defer func() { _ = client.Close() }()

	s, err := client.AccountSummary(ctx)
	if err != nil {
		fail("Failed to fetch account", err)
	}

	w := newTable()
	_, _ = fmt.Fprintf(w, "ID\t%s\n", s.ID)
	_, _ = fmt.Fprintf(w, "CURRENCY\t%s\n", s.Currency)
	_, _ = fmt.Fprintf(w, "BALANCE\t%s\n", s.Balance)
	_, _ = fmt.Fprintf(w, "NAV\t%s\n", s.NAV)
	_, _ = fmt.Fprintf(w, "UNREALIZED P/L\t%s\n", s.UnrealizedPL)
	_, _ = fmt.Fprintf(w, "REALIZED P/L\t%s\n", s.RealizedPL)
	_, _ = fmt.Fprintf(w, "MARGIN USED\t%s\n", s.MarginUsed)
	_, _ = fmt.Fprintf(w, "MARGIN AVAILABLE\t%s\n", s.MarginAvailable)
	_, _ = fmt.Fprintf(w, "OPEN TRADES\t%d\n", s.OpenTradeCount)
	_, _ = fmt.Fprintf(w, "OPEN POSITIONS\t%d\n", s.OpenPositionCount)
	_ = w.Flush()
}

func runInstruments(cmd *cobra.Command, args []string) {
	ctx, cancel := signalContext()
	defer cancel()

	client := newClient()
	defer func() { _ = client.Close() }()

	instruments, err := client.Instruments(ctx)
	if err != nil {
		fail("Failed to fetch instruments", err)
	}

	w := newTable()
	_, _ = fmt.Fprintln(w, "NAME\tTYPE\tDISPLAY\tPIP\tMARGIN")
	for _, i := range instruments {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			i.Name, i.Type, i.DisplayName, i.PipSize(), i.MarginRate)
	}
	_ = w.Flush()
}
