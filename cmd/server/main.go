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

	"batch-service/config"
	"batch-service/internal/api"
	"batch-service/internal/broker"
	"batch-service/internal/redisclient"
	"batch-service/internal/service"
	"batch-service/internal/store"
	"batch-service/internal/util"
	"batch-service/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting batch service")

	tp, err := util.InitTracer("batch-service", cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("Database connected")

	// The hint cache is an optimization; the service runs without it.
	var hintCache service.HintCache
	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Warn("Redis unavailable, resolver hints will not be cached", zap.Error(err))
	} else {
		defer redisClient.Close()
		hintCache = redisClient
		logger.Info("Redis connected")
	}

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrderEvents)
	defer producer.Close()
	logger.Info("Kafka producer initialized")

	eventPublisher := broker.NewEventPublisher(producer)
	resolver := service.NewMetadataResolver(cfg.Resolver, hintCache)

	engine := service.NewAllocationEngine(db, resolver, eventPublisher, cfg.Business.SynthesizeOnShortfall)
	batchService := service.NewBatchService(db)
	traceService := service.NewTraceabilityService(db)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	inboundConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicInboundOrders, cfg.Kafka.ConsumerGroup)
	orderWorker := worker.NewOrderWorker(inboundConsumer, engine)
	go func() {
		if err := orderWorker.Start(workerCtx); err != nil {
			logger.Error("Inbound order worker stopped", zap.Error(err))
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	handler := api.NewHandler(engine, batchService, traceService)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	orderWorker.Stop()

	logger.Info("Server exited")
}
