package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	redisclient "github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/jerseyevents/ticketing/internal/adapters/crdb"
	mongoadapter "github.com/jerseyevents/ticketing/internal/adapters/mongo"
	redisadapter "github.com/jerseyevents/ticketing/internal/adapters/redis"
	"github.com/jerseyevents/ticketing/internal/cart"
	"github.com/jerseyevents/ticketing/internal/config"
	"github.com/jerseyevents/ticketing/internal/fees"
	httphandler "github.com/jerseyevents/ticketing/internal/http"
	"github.com/jerseyevents/ticketing/internal/idempotency"
	"github.com/jerseyevents/ticketing/internal/inventory"
	"github.com/jerseyevents/ticketing/internal/observability"
	"github.com/jerseyevents/ticketing/internal/orders"
	"github.com/jerseyevents/ticketing/internal/payment"
	"github.com/jerseyevents/ticketing/internal/rateLimit"
	"github.com/jerseyevents/ticketing/internal/tickets"
)

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
	if err := crdb.Migrate(context.Background(), pool); err != nil {
		log.Fatalf("failed to migrate: %v", err)
	}
	repo := crdb.NewRepository(pool)

	mongoClient, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())
	audit := mongoadapter.NewAuditLogger(mongoClient.Database("ticketing"), logger)

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	cartStore := redisadapter.NewCartStore(redisClient, cfg.CartTTL)
	idemp := idempotency.NewIdempotency(redisadapter.NewIdempotency(redisClient), time.Hour)
	rl := rateLimit.NewRateLimiter(cartStore)

	processor := payment.NewStripeProcessor(cfg.StripeSecretKey, cfg.StripeWebhookSecret, cfg.PaymentSkipVerify)

	ledger := inventory.NewLedger(repo, logger)
	orderSvc := orders.NewProcessor(repo, ledger, processor, cfg.Currency, logger)
	issuer := tickets.NewIssuer(repo, logger)
	reconciler := payment.NewReconciler(repo, issuer, logger)
	refunder := payment.NewRefunder(repo, processor, ledger, cfg.RefundReleasesInventory, logger)
	validator := tickets.NewValidator(repo)
	cartSvc := cart.NewService(cartStore, repo)
	feeCalc := fees.NewCalculator(cfg.FeeTiers, cfg.MinimumFee)

	ready := func(ctx context.Context) error {
		if err := pool.Ping(ctx); err != nil {
			return err
		}
		return redisClient.Ping(ctx).Err()
	}

	handlers := httphandler.NewHandlers(cfg, cartSvc, orderSvc, repo, reconciler, refunder, processor, validator, feeCalc, idemp, audit, ready, logger)
	router := httphandler.SetupRouter(handlers, logger, rl)

	srv := &http.Server{
		Addr:    ":8080",
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()
	logger.Info("api listening on :8080")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down api")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("server shutdown:", err)
	}
	logger.Info("api exited")
}
