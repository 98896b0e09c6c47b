// Command worker consumes authority receipts from Kafka and applies them to
// submissions.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/turtacn/TaxFlow/internal/application/filing"
	"github.com/turtacn/TaxFlow/internal/application/port"
	"github.com/turtacn/TaxFlow/internal/config"
	"github.com/turtacn/TaxFlow/internal/infrastructure/database/postgres"
	"github.com/turtacn/TaxFlow/internal/infrastructure/database/postgres/repositories"
	"github.com/turtacn/TaxFlow/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/TaxFlow/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/TaxFlow/internal/infrastructure/monitoring/prometheus"
)

func main() {
	configPath := flag.String("config", "", "path to configuration file (default: TAXFLOW_* environment)")
	adminAddr := flag.String("admin-addr", ":9091", "listen address for /healthz and /metrics")
	ensureTopics := flag.Bool("ensure-topics", false, "create the Kafka topics before consuming")
	flag.Parse()

	if err := run(*configPath, *adminAddr, *ensureTopics); err != nil {
		fmt.Fprintf(os.Stderr, "worker: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, adminAddr string, ensureTopics bool) error {
	cfg, err := config.LoadOrEnv(configPath)
	if err != nil {
		return err
	}
	logger, err := logging.NewLogger(cfg.Log.ToLogging())
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger = logger.Named("worker")

	pool, err := postgres.NewConnectionPool(cfg.Database, logger)
	if err != nil {
		return err
	}
	defer postgres.Close(pool)

	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{
		Namespace:       cfg.Metrics.Namespace,
		EnableGoMetrics: true,
	}, logger)
	if err != nil {
		return err
	}
	metrics := prometheus.NewAppMetrics(collector)

	producer, err := kafka.NewProducer(cfg.Kafka, logger)
	if err != nil {
		return err
	}
	defer producer.Close()

	if ensureTopics {
		tm, err := kafka.NewTopicManager(cfg.Kafka.Brokers, logger)
		if err != nil {
			return err
		}
		err = tm.EnsureTopics(context.Background(), kafka.DefaultTopics(cfg.Kafka.NotificationTopic, cfg.Kafka.ReceiptTopic))
		tm.Close()
		if err != nil {
			return err
		}
	}

	filingSvc := filing.NewService(
		repositories.NewSubmissionRepo(pool, logger),
		repositories.NewAuditRepo(pool, logger),
		nil,
		filing.ServiceConfig{ConflictRetries: cfg.Filing.ConflictRetries},
		logger.Named("filing"),
		filing.WithNotifier(kafka.NewNotifier(producer, cfg.Kafka.NotificationTopic, "taxflow-worker")),
		filing.WithMetrics(port.Metrics(metrics)),
	)
	handler := kafka.ReceiptHandler(newReceiptProcessor(filingSvc, metrics, logger), logger)

	retry := kafka.RetryConfig{
		MaxRetries:      cfg.Worker.MaxRetries,
		Backoff:         cfg.Worker.RetryBackoff,
		MaxBackoff:      30 * time.Second,
		DeadLetterTopic: kafka.TopicDeadLetter,
	}

	// Members of one consumer group split the receipt partitions.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	consumers := make([]*kafka.Consumer, 0, cfg.Worker.Concurrency)
	for i := 0; i < cfg.Worker.Concurrency; i++ {
		c, err := kafka.NewConsumer(cfg.Kafka, []string{cfg.Kafka.ReceiptTopic}, retry, producer, logger.Named(fmt.Sprintf("consumer-%d", i)))
		if err != nil {
			closeAll(consumers, logger)
			return err
		}
		c.Subscribe(cfg.Kafka.ReceiptTopic, handler)
		if err := c.Start(ctx); err != nil {
			closeAll(consumers, logger)
			return err
		}
		consumers = append(consumers, c)
	}
	defer closeAll(consumers, logger)

	admin := &http.Server{Addr: adminAddr, Handler: adminRouter(pool.Ping, collector, logger), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := admin.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Admin server failed", logging.Err(err))
		}
	}()
	logger.Info("Worker started",
		logging.Int("consumers", len(consumers)),
		logging.String("topic", cfg.Kafka.ReceiptTopic),
		logging.String("admin_addr", adminAddr))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Info("Shutting down", logging.String("signal", sig.String()))

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	return admin.Shutdown(shutdownCtx)
}

func adminRouter(ping func(context.Context) error, collector prometheus.MetricsCollector, logger logging.Logger) http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()
		if err := ping(ctx); err != nil {
			logger.Warn("Health probe failed", logging.Err(err))
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", collector.Handler())
	return r
}

func closeAll(consumers []*kafka.Consumer, logger logging.Logger) {
	for _, c := range consumers {
		if err := c.Close(); err != nil {
			logger.Warn("Consumer close failed", logging.Err(err))
		}
	}
}
