package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/Gobusters/ectologger"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/mavasquez401/crm-territory-engine/config"
	assignmentrepo "github.com/mavasquez401/crm-territory-engine/internal/repositories/assignment"
	changerepo "github.com/mavasquez401/crm-territory-engine/internal/repositories/assignmentchange"
	clientrepo "github.com/mavasquez401/crm-territory-engine/internal/repositories/client"
	ruleconfigrepo "github.com/mavasquez401/crm-territory-engine/internal/repositories/ruleconfig"
	runrepo "github.com/mavasquez401/crm-territory-engine/internal/repositories/run"
	territoryrepo "github.com/mavasquez401/crm-territory-engine/internal/repositories/territory"
	"github.com/mavasquez401/crm-territory-engine/pkg/database"
	"github.com/mavasquez401/crm-territory-engine/pkg/events"
	"github.com/mavasquez401/crm-territory-engine/pkg/health"
	"github.com/mavasquez401/crm-territory-engine/pkg/ingest"
	"github.com/mavasquez401/crm-territory-engine/pkg/kafka"
	"github.com/mavasquez401/crm-territory-engine/pkg/pipeline"
	"github.com/mavasquez401/crm-territory-engine/pkg/redis"
	"github.com/mavasquez401/crm-territory-engine/pkg/routes/clients"
	"github.com/mavasquez401/crm-territory-engine/pkg/routes/ruleconfigs"
	"github.com/mavasquez401/crm-territory-engine/pkg/routes/runs"
	"github.com/mavasquez401/crm-territory-engine/pkg/startup"
	"github.com/mavasquez401/crm-territory-engine/pkg/tracing"
	"github.com/mavasquez401/crm-territory-engine/pkg/tracing/exporters"
)

const version = "1.0.0"

func main() {
	_ = godotenv.Load()

	var cfg config.Config
	if err := ectoenv.BindEnv(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	logger.WithField("app", cfg.AppName).Info("Starting territory engine")

	provider, err := newTracerProvider(cfg)
	if err != nil {
		logger.WithError(err).Error("Failed to set up tracing")
		os.Exit(1)
	}
	tracing.SetTracer(provider.Tracer(cfg.AppName))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		sqlxDB      *sqlx.DB
		db          database.DB
		redisClient *redis.Client
	)

	boot := startup.New(logger, cfg.StartupMaxAttempts)
	boot.AddDependency(&startup.Func{
		Name: "postgres",
		StartFn: func(ctx context.Context) error {
			conn, err := connectDatabase(ctx, cfg, logger)
			if err != nil {
				return err
			}
			sqlxDB = conn
			db = database.NewDatabaseInstance(conn, logger)
			return nil
		},
		StopFn: func(ctx context.Context) error {
			if sqlxDB == nil {
				return nil
			}
			return sqlxDB.Close()
		},
	})
	boot.AddDependency(&startup.Func{
		Name:     "redis",
		Requires: []string{"postgres"},
		StartFn: func(ctx context.Context) error {
			client, err := redis.NewClient(redis.Config{
				Host:     cfg.RedisHost,
				Port:     cfg.RedisPort,
				Password: cfg.RedisPassword,
				DB:       cfg.RedisDB,
			}, logger)
			if err != nil {
				return err
			}
			redisClient = client
			return nil
		},
		StopFn: func(ctx context.Context) error {
			if redisClient == nil {
				return nil
			}
			return redisClient.Close()
		},
	})

	if err := boot.Start(ctx); err != nil {
		logger.WithError(err).Error("Startup failed")
		os.Exit(1)
	}

	// Repositories.
	clientRepo := clientrepo.NewRepository(db, logger)
	territoryRepo := territoryrepo.NewRepository(db, logger)
	assignmentRepo := assignmentrepo.NewRepository(db, logger)
	changeRepo := changerepo.NewRepository(db, logger)
	ruleConfigRepo := ruleconfigrepo.NewRepository(db, logger)
	runRepo := runrepo.NewRepository(db, logger)

	// Event emission.
	producer := kafka.NewProducer(kafka.ProducerConfig{
		Brokers:      cfg.KafkaBrokers,
		Topic:        cfg.KafkaOutputTopic,
		BatchSize:    cfg.KafkaBatchSize,
		BatchTimeout: time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond,
		RequiredAcks: cfg.KafkaRequiredAcks,
		Compression:  cfg.KafkaCompression,
	}, logger)
	emitter := events.NewEmitter(producer, logger)

	// Pipeline.
	locker := redis.NewLocker(redisClient, cfg.AppName+":")
	engine := pipeline.New(
		logger,
		pipeline.Config{
			SimilarityThreshold:    cfg.SimilarityThreshold,
			MergeStrategy:          cfg.MergeStrategy,
			AssignWorkerCount:      cfg.AssignWorkerCount,
			DefaultAdvisor:         cfg.DefaultAdvisorID,
			ExpectedAdvisorRegions: cfg.ExpectedAdvisorRegions,
			RunLockTTL:             time.Duration(cfg.RunLockTTLMinutes) * time.Minute,
		},
		db,
		clientRepo, territoryRepo, assignmentRepo, changeRepo, ruleConfigRepo, runRepo,
		locker, emitter,
	)

	// Ingestion.
	var consumer *kafka.Consumer
	if cfg.KafkaConsumerEnabled {
		ingestService := ingest.NewService(clientRepo, engine, logger)
		consumer = kafka.NewConsumer(cfg, logger, ingestService.HandleMessage)
		if err := consumer.Start(ctx); err != nil {
			logger.WithError(err).Error("Failed to start Kafka consumer")
			os.Exit(1)
		}
	}

	// HTTP server.
	checker := health.NewChecker(db, redisClient, version)
	e := echo.New()
	e.HideBanner = true
	e.Use(otelecho.Middleware(cfg.AppName))
	e.Server.ReadTimeout = time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second
	e.Server.WriteTimeout = time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second
	e.Server.IdleTimeout = time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second

	checker.RegisterRoutes(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api/v1")
	runs.NewHandler(engine, runRepo, logger).Register(api.Group("/runs"))
	clients.NewHandler(clientRepo, assignmentRepo, changeRepo, logger).Register(api.Group("/clients"))
	ruleconfigs.NewHandler(ruleConfigRepo, logger).Register(api.Group("/rule-configs"))

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Port)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("HTTP server stopped")
			stop()
		}
	}()

	checker.SetReady(true)

	// Scheduled runs.
	go schedule(ctx, cfg, logger, engine, checker)

	<-ctx.Done()
	logger.Info("Shutting down")
	checker.SetReady(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("HTTP server shutdown failed")
	}
	if consumer != nil {
		if err := consumer.Stop(); err != nil {
			logger.WithError(err).Error("Kafka consumer shutdown failed")
		}
	}
	if err := producer.Close(); err != nil {
		logger.WithError(err).Error("Kafka producer shutdown failed")
	}
	if err := provider.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Tracer shutdown failed")
	}
	if err := boot.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Error("Dependency shutdown failed")
	}

	logger.Info("Shutdown complete")
}

// schedule fires pipeline runs on startup and on the configured interval.
func schedule(ctx context.Context, cfg config.Config, logger ectologger.Logger, engine *pipeline.Pipeline, checker *health.Checker) {
	runOnce := func() {
		report, err := engine.Run(ctx)
		if err != nil && !errors.Is(err, pipeline.ErrRunInProgress) {
			logger.WithError(err).Error("Scheduled run failed")
		}
		if report != nil && report.FinishedAt != nil {
			checker.RecordRun(report.RunID, string(report.Status), *report.FinishedAt)
		}
	}

	if cfg.RunOnStartup {
		runOnce()
	}

	if cfg.RunIntervalMinutes <= 0 {
		return
	}

	ticker := time.NewTicker(time.Duration(cfg.RunIntervalMinutes) * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runOnce()
		}
	}
}

func connectDatabase(ctx context.Context, cfg config.Config, logger ectologger.Logger) (*sqlx.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.DatabaseHost, cfg.DatabasePort, cfg.DatabaseUserName,
		cfg.DatabasePassword, cfg.DatabaseName, cfg.DatabaseSSLMode,
	)

	db, err := sqlx.ConnectContext(ctx, cfg.DatabaseDriver, dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.DatabaseMaxOpenConns)
	db.SetMaxIdleConns(cfg.DatabaseMaxIdleConns)
	db.SetConnMaxLifetime(cfg.DatabaseConnMaxLifetime)

	driver, err := postgres.WithInstance(db.DB, &postgres.Config{})
	if err != nil {
		return nil, err
	}

	migrations := database.NewMigrationService(logger, &database.MigrationConfig{
		MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
		Version:             uint(cfg.DatabaseMigrationVersion),
		Force:               cfg.DatabaseMigrationForce,
		AutoRollback:        cfg.DatabaseMigrationAutoRollback,
	})
	if err := migrations.Migrate(cfg.DatabaseName, driver); err != nil {
		return nil, err
	}

	return db, nil
}

// newTracerProvider builds the trace provider. Spans go to an OTLP collector
// when TRACING_EXPORTER is "otlp"; otherwise they are dropped.
func newTracerProvider(cfg config.Config) (*sdktrace.TracerProvider, error) {
	var exporter sdktrace.SpanExporter = &exporters.ConsoleExporter{}

	if cfg.TracingExporter == "otlp" {
		otlp, err := exporters.NewOTLPExporter(context.Background(), exporters.OTLPConfig{
			Endpoint: cfg.OTLPEndpoint,
			Protocol: cfg.OTLPProtocol,
			Insecure: cfg.OTLPInsecure,
		})
		if err != nil {
			return nil, err
		}
		exporter = otlp
	}

	return sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter)), nil
}

// newLogger builds the process logger. Logs are emitted as JSON lines, or
// indented when PRETTY_LOGS is set for local development.
func newLogger(cfg config.Config) ectologger.Logger {
	return ectologger.NewEctoLogger(func(msg ectologger.EctoLogMessage) {
		var (
			b   []byte
			err error
		)
		if cfg.PrettyLogs {
			b, err = json.MarshalIndent(msg, "", "  ")
		} else {
			b, err = json.Marshal(msg)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to marshal log message: %v\n", err)
			return
		}
		fmt.Println(string(b))
	})
}
