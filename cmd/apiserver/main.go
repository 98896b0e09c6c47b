// Command apiserver serves the TaxFlow REST API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/turtacn/TaxFlow/internal/application/deadline"
	"github.com/turtacn/TaxFlow/internal/application/document"
	"github.com/turtacn/TaxFlow/internal/application/filing"
	"github.com/turtacn/TaxFlow/internal/application/health"
	"github.com/turtacn/TaxFlow/internal/application/plausibility"
	"github.com/turtacn/TaxFlow/internal/application/port"
	"github.com/turtacn/TaxFlow/internal/config"
	"github.com/turtacn/TaxFlow/internal/infrastructure/auth/oidc"
	"github.com/turtacn/TaxFlow/internal/infrastructure/database/postgres"
	"github.com/turtacn/TaxFlow/internal/infrastructure/database/postgres/repositories"
	redisinfra "github.com/turtacn/TaxFlow/internal/infrastructure/database/redis"
	"github.com/turtacn/TaxFlow/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/TaxFlow/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/TaxFlow/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/TaxFlow/internal/infrastructure/reasoning"
	"github.com/turtacn/TaxFlow/internal/infrastructure/storage/minio"
	httpserver "github.com/turtacn/TaxFlow/internal/interfaces/http"
	"github.com/turtacn/TaxFlow/internal/interfaces/http/handlers"
	"github.com/turtacn/TaxFlow/internal/interfaces/http/middleware"
)

func main() {
	configPath := flag.String("config", "", "path to configuration file (default: TAXFLOW_* environment)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "apiserver: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.LoadOrEnv(configPath)
	if err != nil {
		return err
	}
	logger, err := logging.NewLogger(cfg.Log.ToLogging())
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger = logger.Named("apiserver")

	if configPath != "" {
		err := config.Watch(configPath, func(c *config.Config) {
			logging.SetLevel(c.Log.Level)
			logger.Info("Configuration reloaded", logging.String("log_level", c.Log.Level))
		}, func(err error) {
			logger.Warn("Ignoring invalid configuration change", logging.Err(err))
		})
		if err != nil {
			logger.Warn("Config hot reload disabled", logging.Err(err))
		}
	}

	// ── Storage ──────────────────────────────────────────────────────────────
	if cfg.Database.AutoMigrate {
		if err := postgres.RunMigrations(cfg.Database, logger); err != nil {
			return err
		}
	}
	pool, err := postgres.NewConnectionPool(cfg.Database, logger)
	if err != nil {
		return err
	}
	defer postgres.Close(pool)

	subRepo := repositories.NewSubmissionRepo(pool, logger)
	auditRepo := repositories.NewAuditRepo(pool, logger)
	tplRepo := repositories.NewTemplateRepo(pool, logger)
	certRepo := repositories.NewCertificateRepo(pool)

	rdb, err := redisinfra.NewClient(cfg.Redis, logger)
	if err != nil {
		return err
	}
	defer rdb.Close()

	// ── Metrics ──────────────────────────────────────────────────────────────
	var (
		metrics   *prometheus.AppMetrics
		collector prometheus.MetricsCollector
	)
	if cfg.Metrics.Enabled {
		collector, err = prometheus.NewMetricsCollector(prometheus.CollectorConfig{
			Namespace:            cfg.Metrics.Namespace,
			EnableProcessMetrics: true,
			EnableGoMetrics:      true,
		}, logger)
		if err != nil {
			return err
		}
		metrics = prometheus.NewAppMetrics(collector)
	}
	appMetrics := portMetrics(metrics)

	cache := newMeteredCache(redisinfra.NewCache(rdb, logger), "redis", metrics)
	locker := redisinfra.NewLocker(rdb, logger)

	// ── Messaging / archive / reasoning ──────────────────────────────────────
	producer, err := kafka.NewProducer(cfg.Kafka, logger)
	if err != nil {
		return err
	}
	defer producer.Close()
	notifier := kafka.NewNotifier(producer, cfg.Kafka.NotificationTopic, "taxflow-apiserver")

	docOpts := []document.Option{document.WithLocker(locker)}
	if mc, err := minio.NewClient(cfg.MinIO, logger); err != nil {
		logger.Warn("Document archive unavailable, documents stay in the database only", logging.Err(err))
	} else {
		docOpts = append(docOpts, document.WithArchive(minio.NewDocumentArchive(mc)))
	}

	base := plausibility.Constants{
		DeviationThreshold:   cfg.Plausibility.DeviationThreshold,
		ConsistencyTolerance: cfg.Plausibility.ConsistencyTolerance,
		WithholdingCeiling:   cfg.Plausibility.WithholdingCeiling,
	}
	registry := plausibility.DefaultRegistry(base)
	if cfg.Plausibility.RulesFile != "" {
		if registry, err = plausibility.LoadRegistry(cfg.Plausibility.RulesFile, base); err != nil {
			return err
		}
	}
	plausOpts := []plausibility.Option{plausibility.WithMetrics(appMetrics)}
	if cfg.Reasoning.Enabled {
		advisor, err := reasoning.NewClient(cfg.Reasoning, logger)
		if err != nil {
			return err
		}
		plausOpts = append(plausOpts, plausibility.WithAdvisor(advisor))
	}

	// ── Services ─────────────────────────────────────────────────────────────
	plausSvc := plausibility.NewService(subRepo, registry, plausibility.ServiceConfig{
		AdvisoryTimeout: cfg.Reasoning.Timeout,
		ConflictRetries: cfg.Filing.ConflictRetries,
	}, logger.Named("plausibility"), plausOpts...)

	filingSvc := filing.NewService(subRepo, auditRepo, plausSvc, filing.ServiceConfig{
		BatchConcurrency: cfg.Filing.BatchConcurrency,
		MaxBatchSize:     cfg.Filing.MaxBatchSize,
		ConflictRetries:  cfg.Filing.ConflictRetries,
	}, logger.Named("filing"), filing.WithNotifier(notifier), filing.WithMetrics(appMetrics))

	resolver := document.NewResolver(tplRepo, appMetrics, logger.Named("resolver"))
	docSvc := document.NewService(subRepo, resolver, document.ServiceConfig{
		LockTTL:         cfg.Filing.LockTTL,
		ConflictRetries: cfg.Filing.ConflictRetries,
	}, logger.Named("document"), docOpts...)

	healthSvc := health.NewService(subRepo, auditRepo, certRepo, tplRepo, health.ServiceConfig{
		CacheTTL:                 cfg.Health.CacheTTL,
		RecentWindow:             cfg.Health.RecentWindow,
		FailureWindow:            cfg.Health.FailureWindow,
		FailureThreshold:         int64(cfg.Health.FailureThreshold),
		ValidationIssueThreshold: int64(cfg.Health.ValidationIssueThreshold),
	}, logger.Named("health"), health.WithCache(cache), health.WithMetrics(appMetrics))

	defs := deadline.DefaultDefinitions()
	if cfg.Deadlines.DefinitionsFile != "" {
		if defs, err = deadline.LoadDefinitions(cfg.Deadlines.DefinitionsFile); err != nil {
			return err
		}
	}
	deadlineSvc, err := deadline.NewService(defs, subRepo, deadline.ServiceConfig{
		HorizonDays:   cfg.Deadlines.HorizonDays,
		LookbackYears: cfg.Deadlines.LookbackYears,
		CacheTTL:      cfg.Deadlines.CacheTTL,
	}, logger.Named("deadline"), deadline.WithCache(cache))
	if err != nil {
		return err
	}

	// ── HTTP ─────────────────────────────────────────────────────────────────
	probes := map[string]handlers.Probe{
		"postgres": func(ctx context.Context) error { return postgres.HealthCheck(ctx, pool, logger) },
		"redis":    rdb.Ping,
	}
	routerCfg := httpserver.RouterConfig{
		SubmissionHandler: handlers.NewSubmissionHandler(filingSvc, docSvc, plausSvc, logger.Named("http")),
		HealthHandler:     handlers.NewHealthHandler(healthSvc, probes, logger.Named("http")),
		DeadlineHandler:   handlers.NewDeadlineHandler(deadlineSvc, logger.Named("http")),
		Logger:            logger.Named("http"),
	}
	if metrics != nil {
		routerCfg.HTTPRecorder = metrics
		routerCfg.MetricsHandler = collector.Handler()
		routerCfg.MetricsPath = cfg.Metrics.Path
	}
	if cfg.Auth.Enabled {
		validator, err := newTokenValidator(cfg.Auth, logger.Named("auth"))
		if err != nil {
			return err
		}
		routerCfg.AuthMiddleware = middleware.NewAuthMiddleware(validator, logger.Named("auth"))
		if cfg.Auth.RBAC {
			routerCfg.Authorizer = oidc.NewEnforcer(nil, logger.Named("rbac")).Middleware
		}
	}

	srv := httpserver.NewServer(cfg.Server, httpserver.NewRouter(routerCfg), logger)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.Info("Shutting down", logging.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	timeout := cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return srv.Stop(ctx)
}

// portMetrics avoids handing a typed-nil *AppMetrics to the services.
func portMetrics(m *prometheus.AppMetrics) port.Metrics {
	if m == nil {
		return port.NopMetrics{}
	}
	return m
}
