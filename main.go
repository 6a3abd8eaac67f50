package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"

	"github.com/vietddude/oanda/internal/core/config"
	"github.com/vietddude/oanda/internal/core/domain"
	"github.com/vietddude/oanda/internal/infra/oanda"
	"github.com/vietddude/oanda/internal/infra/oanda/retry"
)

func main() {
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found")
	}

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("OANDA_API_KEY and OANDA_ACCOUNT_ID must be set: %v", err)
	}
	cfg.RequestsPerSecond = 5

	ctx := context.Background()

	// 1. Create client with a retry observer
	client, err := oanda.New(cfg, oanda.WithObserver(func(s retry.State) {
		if len(s.Delays) > 0 {
			fmt.Printf("🔄 %s retried %d times, delays %v\n", s.Endpoint, len(s.Delays), s.Delays)
		}
	}))
	if err != nil {
		log.Fatalf("Failed to create client: %v", err)
	}
	defer client.Close()

	fmt.Println("=== Testing OANDA client ===")

	// 2. Health check
	ok, err := client.HealthCheck(ctx)
	if err != nil {
		log.Fatalf("Health check failed: %v", err)
	}
	if !ok {
		log.Fatalf("Credentials rejected")
	}
	fmt.Println("API reachable, credentials valid")

	// 3. Burst of price calls to exercise the rate limiter
	start := time.Now()
	for i := 0; i < 10; i++ {
		tick, err := client.CurrentPrice(ctx, "EUR_USD")
		if err != nil {
			log.Printf("Call %d failed: %v", i+1, err)
			continue
		}
		fmt.Printf("Call %d: %s bid=%s ask=%s spread=%s (+%v)\n",
			i+1, tick.Instrument, tick.Bid, tick.Ask, tick.Spread(), time.Since(start).Round(time.Millisecond))
	}
	fmt.Println()

	// 4. Recent candles
	candles, err := client.Candles(ctx, "EUR_USD", domain.GranularityH1, 5)
	if err != nil {
		log.Printf("Candles failed: %v", err)
	}
	for _, c := range candles {
		fmt.Printf("%s O=%s H=%s L=%s C=%s complete=%t\n",
			c.Time.Format(time.RFC3339), c.Open, c.High, c.Low, c.Close, c.Complete)
	}
	fmt.Println()

	// 5. Limiter and transport stats
	stats := client.Limiter().Stats()
	fmt.Println("=== Rate Limiter ===")
	fmt.Printf("  Capacity: %.0f tokens, refill %.0f/s\n", stats.Capacity, stats.RefillRate)
	fmt.Printf("  Acquired: %d, waited: %d (total %v)\n", stats.Acquired, stats.Waited, stats.TotalWait)

	if h, ok := client.TransportHealth(); ok {
		fmt.Println("=== Transport ===")
		fmt.Printf("  Successes: %d, failures: %d (%.1f%%)\n", h.Successes, h.Failures, h.ErrorRate*100)
		fmt.Printf("  Average latency: %v\n", h.Latency)
		if h.Monitor != nil {
			fmt.Printf("  Status: %s, 429s: %d\n", h.Monitor.Status, h.Monitor.ThrottleCount429)
		}
	}
}
