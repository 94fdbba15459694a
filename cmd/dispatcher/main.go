// cmd/dispatcher/main.go
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "github.com/Dattelon/field-service-sub000/internal/api/http"
	"github.com/Dattelon/field-service-sub000/internal/config"
	"github.com/Dattelon/field-service-sub000/internal/domain"
	"github.com/Dattelon/field-service-sub000/internal/infra/etcd"
	"github.com/Dattelon/field-service-sub000/internal/infra/postgres"
	"github.com/Dattelon/field-service-sub000/internal/infra/rabbitmq"
	"github.com/Dattelon/field-service-sub000/internal/infra/redisx"
	"github.com/Dattelon/field-service-sub000/internal/metrics"
	"github.com/Dattelon/field-service-sub000/internal/scheduler"
	"github.com/Dattelon/field-service-sub000/internal/settings"
	"github.com/Dattelon/field-service-sub000/internal/tracing"
	"github.com/Dattelon/field-service-sub000/internal/usecase"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// 1. Initialize logger and tracer
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	tracerShutdown, err := tracing.InitTracer("field-service-dispatcher")
	if err != nil {
		log.Fatalf("failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := tracerShutdown(context.Background()); err != nil {
			log.Printf("failed to shutdown tracer: %v", err)
		}
	}()

	// 2. Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	nodeID := uuid.New().String()
	logger.Info("starting dispatcher node", "node_id", nodeID)

	// 3. Create root context for lifecycle management
	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 4. Setup graceful shutdown
	setupGracefulShutdown(cancel, logger)

	// 5. Connect Postgres and apply the schema
	pool, err := postgres.Connect(rootCtx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("Failed to connect to postgres: %v", err)
	}
	defer pool.Close()
	if err := postgres.Migrate(rootCtx, pool); err != nil {
		log.Fatalf("Failed to migrate schema: %v", err)
	}

	// 6. Cluster lock backend
	var locker domain.Locker
	switch cfg.LockBackend {
	case "etcd":
		etcdClient, err := etcd.NewClient(cfg.EtcdEndpoints, cfg.EtcdTimeout)
		if err != nil {
			log.Fatalf("Failed to create etcd client: %v", err)
		}
		defer etcdClient.Close()
		locker = etcd.NewLocker(etcdClient)
	default:
		locker = postgres.NewAdvisoryLocker(pool)
	}
	logger.Info("cluster lock backend ready", "backend", cfg.LockBackend)

	// 7. Notification port
	notifier, err := rabbitmq.Dial(cfg.RabbitURL, logger)
	if err != nil {
		log.Fatalf("Failed to connect to rabbitmq: %v", err)
	}
	defer notifier.Close()

	// 8. Settings cache with cross-replica invalidation
	settingsRepo := postgres.NewSettingsRepository(pool, logger)
	cache := settings.NewCache(settingsRepo, logger)
	bus := redisx.NewInvalidationBus(cfg.RedisAddr, cfg.RedisDB, logger)
	defer func() { _ = bus.Close() }()
	go bus.Listen(rootCtx, cache.Invalidate)

	// 9. Repositories and services
	orderRepo := postgres.NewOrderRepository(pool, logger)
	masterRepo := postgres.NewMasterRepository(pool, logger)
	offerRepo := postgres.NewOfferRepository(pool, logger)
	metricRepo := postgres.NewMetricRepository(pool, logger)
	staffRepo := postgres.NewStaffRepository(pool, logger)

	skills, err := postgres.LoadSkillMap(rootCtx, pool)
	if err != nil {
		log.Fatalf("Failed to load category skill map: %v", err)
	}
	logger.Info("category skill map loaded", "categories", len(skills))

	matcher := usecase.NewMatcher(masterRepo, offerRepo, skills, logger)
	escalation := usecase.NewEscalationService(orderRepo, staffRepo, notifier, logger)
	distribution := usecase.NewDistributionService(
		locker, cache, orderRepo, offerRepo, matcher, escalation, notifier, logger)
	acceptance := usecase.NewAcceptanceService(
		postgres.NewAcceptanceStore(pool, logger), metricRepo, logger)

	metrics.Register()

	// 10. Register routes and metrics endpoint
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	httpapi.NewOfferHandler(acceptance, logger).RegisterRoutes(mux)
	httpapi.NewSettingsHandler(settingsRepo, cache, bus, logger).RegisterRoutes(mux)

	// 11. Start the tick scheduler
	ticks := scheduler.NewTickScheduler(distribution, cache, logger)
	go func() {
		if err := ticks.Start(rootCtx); err != nil && err != context.Canceled {
			log.Fatalf("Tick scheduler stopped with error: %v", err)
		}
	}()

	// 12. Start HTTP API server
	logger.Info("starting HTTP API server", "addr", cfg.HTTPListenAddr)
	server := &http.Server{
		Addr:    cfg.HTTPListenAddr,
		Handler: mux,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// 13. Block until shutdown
	<-rootCtx.Done()
	logger.Info("shutting down gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("HTTP server shutdown failed: %v", err)
	}

	logger.Info("dispatcher shut down")
}

func setupGracefulShutdown(cancel context.CancelFunc, logger *slog.Logger) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("received signal, initiating graceful shutdown", "signal", sig.String())
		cancel()
	}()
}
