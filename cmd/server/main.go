package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pos-service/config"
	"pos-service/internal/api"
	"pos-service/internal/broker"
	"pos-service/internal/cart"
	"pos-service/internal/catalog"
	"pos-service/internal/ledger"
	"pos-service/internal/receipt"
	"pos-service/internal/redisclient"
	"pos-service/internal/service"
	"pos-service/internal/store"
	"pos-service/internal/submission"
	"pos-service/internal/util"
	"pos-service/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env, cfg.Server.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting point of sale service")

	tp, err := util.InitTracer("pos-service", cfg.Observ.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	if tp != nil {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(ctx); err != nil {
				logger.Warn("Error shutting down tracer", zap.Error(err))
			}
		}()
	}

	policy, err := cart.ParsePolicy(cfg.Session.StockCheckMode)
	if err != nil {
		logger.Fatal("Invalid stock check mode", zap.Error(err))
	}

	loc, err := time.LoadLocation(cfg.Receipt.Timezone)
	if err != nil {
		logger.Fatal("Invalid receipt timezone", zap.String("timezone", cfg.Receipt.Timezone), zap.Error(err))
	}
	renderer := receipt.NewTextRenderer(cfg.Receipt.Header, cfg.Receipt.Footer, loc)

	if cfg.Ledger.URL == "" {
		logger.Warn("LEDGER_URL is not set, the catalog falls back to example data and submissions fail")
	}
	ledgerClient := ledger.NewClient(cfg.Ledger.URL, cfg.Ledger.Timeout)
	loader := catalog.NewLoader(ledgerClient, cfg.Ledger.CatalogSheet, cfg.Ledger.HistorySheet)
	pipeline := submission.NewHTTPPipeline(cfg.Ledger.SubmitURL, submission.Config{
		Timeout:         cfg.Ledger.Timeout,
		BreakerFailures: cfg.Ledger.BreakerFailures,
		BreakerCooldown: cfg.Ledger.BreakerCooldown,
	})

	deps := service.Deps{
		Catalog:   loader,
		Submitter: pipeline,
	}
	checks := map[string]api.ReadinessCheck{}

	if cfg.Redis.Addr != "" {
		redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
		logger.Info("Redis connected", zap.String("addr", cfg.Redis.Addr))

		deps.Tokens = redisClient
		deps.Locker = redisClient
		checks["redis"] = redisClient.Ping
	}

	if cfg.Database.URL != "" {
		db, err := store.NewStore(cfg.Database.URL)
		if err != nil {
			logger.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer db.Close()
		if err := db.EnsureSchema(context.Background()); err != nil {
			logger.Fatal("Failed to prepare database schema", zap.Error(err))
		}
		logger.Info("Database connected")

		deps.Journal = db
		checks["postgres"] = db.Ping
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	var receiptWorker *worker.ReceiptWorker
	if len(cfg.Kafka.Brokers) > 0 {
		producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder)
		defer producer.Close()
		deps.Events = broker.NewEventPublisher(producer)
		logger.Info("Kafka producer initialized", zap.Strings("brokers", cfg.Kafka.Brokers))

		consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder, cfg.Kafka.ConsumerGroup)
		receiptWorker = worker.NewReceiptWorker(consumer, renderer, cfg.Receipt.Dir)
		go func() {
			if err := receiptWorker.Start(workerCtx); err != nil {
				logger.Error("Receipt worker error", zap.Error(err))
			}
		}()
	}

	session, err := service.NewSession(service.Config{
		StartToken:   cfg.Session.StartToken,
		StockPolicy:  policy,
		PushStock:    cfg.Ledger.PushStock,
		SubmittedTTL: cfg.Session.SubmittedTTL,
		LockTTL:      cfg.Session.SubmissionLockTTL,
	}, deps)
	if err != nil {
		logger.Fatal("Failed to create session", zap.Error(err))
	}
	session.Start(context.Background())

	snap := session.Snapshot()
	logger.Info("Session ready",
		zap.String("next_order_id", session.CurrentToken()),
		zap.String("catalog_source", snap.Source),
		zap.Int("products", len(snap.Products)))
	if snap.IsFallback() {
		logger.Warn("Ledger catalog unavailable, serving example products")
	}

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(session, renderer, checks)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if receiptWorker != nil {
		receiptWorker.Stop()
	}

	logger.Info("Server exited")
}
