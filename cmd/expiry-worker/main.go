package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jerseyevents/ticketing/internal/adapters/crdb"
	"github.com/jerseyevents/ticketing/internal/config"
	"github.com/jerseyevents/ticketing/internal/inventory"
	"github.com/jerseyevents/ticketing/internal/observability"
	"github.com/jerseyevents/ticketing/internal/orders"
	"github.com/jerseyevents/ticketing/internal/payment"
)

const sweepBatch = 100

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdown, err := observability.SetupOTel(context.Background(), cfg)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdown()

	logger := observability.NewLogger()

	pool, err := pgxpool.New(context.Background(), cfg.CRDBDSN)
	if err != nil {
		log.Fatalf("failed to connect to crdb: %v", err)
	}
	defer pool.Close()
	repo := crdb.NewRepository(pool)

	ledger := inventory.NewLedger(repo, logger)
	processor := payment.NewStripeProcessor(cfg.StripeSecretKey, cfg.StripeWebhookSecret, cfg.PaymentSkipVerify)
	orderSvc := orders.NewProcessor(repo, ledger, processor, cfg.Currency, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go run(ctx, orderSvc, cfg.OrderTTL, time.Minute, logger)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down expiry worker")
}

// run cancels pending orders older than the TTL and returns their inventory.
// The sweep goes through the same conditional cancel as a buyer-initiated
// cancellation, so it can never race a finalize into a double transition.
func run(ctx context.Context, svc *orders.Processor, ttl, interval time.Duration, logger observability.Logger) {
	logger.Info("expiry worker started")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if err := sweepWithRetry(ctx, svc, now.Add(-ttl), logger); err != nil {
				logger.Error("sweep failed after retries", err)
			}
		}
	}
}

func sweepWithRetry(ctx context.Context, svc *orders.Processor, olderThan time.Time, logger observability.Logger) error {
	var lastErr error
	for i := 0; i < 3; i++ {
		swept, err := svc.SweepStale(ctx, olderThan, sweepBatch)
		if err == nil {
			if swept > 0 {
				logger.WithField("count", swept).Info("expired pending orders")
			}
			return nil
		}
		lastErr = err
		backoff := time.Duration(1<<i) * time.Second
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return lastErr
}
