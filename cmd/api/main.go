package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/shiftsentry/attendance-backend/internal/api/rest"
	"github.com/shiftsentry/attendance-backend/internal/api/websocket"
	"github.com/shiftsentry/attendance-backend/internal/infrastructure/audit"
	"github.com/shiftsentry/attendance-backend/internal/infrastructure/baseline"
	"github.com/shiftsentry/attendance-backend/internal/infrastructure/broadcast"
	"github.com/shiftsentry/attendance-backend/internal/infrastructure/config"
	"github.com/shiftsentry/attendance-backend/internal/infrastructure/database"
	"github.com/shiftsentry/attendance-backend/internal/infrastructure/history"
	"github.com/shiftsentry/attendance-backend/internal/infrastructure/predictor"
	"github.com/shiftsentry/attendance-backend/internal/infrastructure/repository"
	"github.com/shiftsentry/attendance-backend/internal/infrastructure/telemetry"
	anomalysvc "github.com/shiftsentry/attendance-backend/internal/service/anomaly"
	"github.com/shiftsentry/attendance-backend/internal/service/correlation"
	"github.com/shiftsentry/attendance-backend/internal/service/detection"
	"github.com/shiftsentry/attendance-backend/internal/service/validation"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := telemetry.NewLogger(cfg.LogLevel, cfg.Environment)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(context.Background(), cfg, logger); err != nil {
		logger.Fatal("service exited", zap.Error(err))
	}
}

// scheduleDirectory is the rostering surface plus the display-name lookups,
// satisfied by both the postgres repository and the in-memory store.
type scheduleDirectory interface {
	validation.ScheduleStore
	broadcast.NameResolver
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	provider, err := telemetry.InitOTel(ctx, telemetry.OTelConfig{
		ServiceVersion: cfg.Version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Enabled:        cfg.Telemetry.Enabled,
		SamplingRate:   cfg.Telemetry.SamplingRate,
		ExportTimeout:  cfg.Telemetry.ExportTimeout,
	})
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown", zap.Error(err))
		}
	}()

	// Storage. An empty database URL runs everything in process, which is
	// the single-node development mode.
	var (
		scheduleStore scheduleDirectory
		alertStore    correlation.AlertStore
		archive       detection.EventArchive
		readyChecks   []rest.ReadyChecker
	)
	if cfg.Database.URL != "" {
		pool, err := database.Connect(ctx, cfg.Database, logger)
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}
		defer pool.Close()

		scheduleStore = repository.NewScheduleRepository(pool, cfg.Validation.GraceWindow)
		alertStore = repository.NewAlertRepository(pool)
		archive = repository.NewEventRepository(pool)
		readyChecks = append(readyChecks, pool.Healthy)
	} else {
		logger.Warn("no database configured, running on in-memory stores")
		scheduleStore = repository.NewMemoryScheduleStore(cfg.Validation.GraceWindow)
		alertStore = repository.NewMemoryAlertStore()
	}

	// Baselines and event history live in redis when an address is set,
	// otherwise in process alongside the rest of the node.
	var (
		baselineStore baseline.Store
		eventHistory  detection.EventHistory
	)
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		defer client.Close()

		baselineStore = baseline.NewRedisStore(client, 0, logger)
		eventHistory = history.NewRedisStore(client, logger)
		readyChecks = append(readyChecks, func(ctx context.Context) bool {
			return client.Ping(ctx).Err() == nil
		})
	} else {
		baselineStore = baseline.NewMemoryStore()
		eventHistory = history.NewMemoryStore()
	}

	updater := baseline.NewUpdater(baselineStore, cfg.Baseline, logger)
	go updater.Run(ctx)

	chain := validation.NewChain(cfg.Validation, scheduleStore, eventHistory, logger)
	chain.SetMetrics(validationMetrics{})

	scorer := anomalysvc.NewScorer(baselineStore, cfg.Anomaly, logger)
	scorer.SetMetrics(anomalyMetrics{})

	correlator := correlation.NewCorrelator(alertStore, cfg.Correlation, logger)
	correlator.SetMetrics(correlationMetrics{})
	go correlator.RunSweeper(ctx)

	// The hub fans alerts to websocket subscribers on this node; the
	// optional broker transport mirrors them to the rest of the fleet.
	var mirror broadcast.Transport
	switch cfg.Broadcast.Transport {
	case "nats":
		t, err := broadcast.NewNATSTransport(cfg.Broadcast.NATSURL, logger)
		if err != nil {
			return fmt.Errorf("connecting broadcast transport: %w", err)
		}
		defer t.Close()
		mirror = t
	case "kafka":
		t := broadcast.NewKafkaTransport(cfg.Broadcast.KafkaBrokers, cfg.Broadcast.KafkaTopic, logger)
		defer t.Close()
		mirror = t
	}

	hub := broadcast.NewHub(cfg.Broadcast.Hub, scheduleStore, mirror, logger)
	hub.SetMetrics(broadcastMetrics{})
	go hub.Run(ctx)

	var fraudPredictor detection.FraudPredictor
	if cfg.Predictor.URL != "" {
		fraudPredictor = predictor.NewHTTPPredictor(predictor.Config{
			URL:     cfg.Predictor.URL,
			Timeout: cfg.Predictor.Timeout,
		}, logger)
	}

	var auditSink detection.AuditSink
	if cfg.Audit.NATSURL != "" {
		conn, err := nats.Connect(cfg.Audit.NATSURL, nats.MaxReconnects(-1))
		if err != nil {
			return fmt.Errorf("connecting audit sink: %w", err)
		}
		defer conn.Close()
		auditSink = audit.NewNATSSink(conn, logger)
	} else {
		auditSink = audit.NewLogSink(logger)
	}

	orchestrator := detection.NewOrchestrator(detection.Deps{
		Chain:      chain,
		Scorer:     scorer,
		Correlator: correlator,
		Publisher:  hub,
		History:    eventHistory,
		Shifts:     scheduleStore,
		Predictor:  fraudPredictor,
		Observer:   updater,
		Audit:      auditSink,
		Archive:    archive,
	}, cfg.Detection, logger)
	orchestrator.SetMetrics(detectionMetrics{})

	pipeline := detection.NewPipeline(orchestrator, logger)
	pipeline.SetMetrics(detectionMetrics{})
	pipeline.Start()

	handler := rest.NewHandler(pipeline, correlator, alertStore, updater, logger)
	for _, check := range readyChecks {
		handler.AddReadyCheck(check)
	}

	server := rest.NewServer(cfg.Server, handler, websocket.NewHandler(hub, logger), logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	logger.Info("service started",
		zap.Int("port", cfg.Server.Port),
		zap.String("environment", cfg.Environment),
		zap.String("version", cfg.Version))

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	}

	// Shutdown order: stop accepting requests, drain the pipeline, then
	// quiesce the fan-out and baseline folding behind it.
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown", zap.Error(err))
	}
	pipeline.Stop()
	hub.Stop()
	updater.Stop()

	logger.Info("shutdown complete")
	return nil
}
