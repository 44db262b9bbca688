package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"

	"regsync/internal/config"
	"regsync/internal/invoker"
	"regsync/internal/metrics"
	"regsync/internal/notifier"
	"regsync/internal/partner"
	"regsync/internal/ratelimit"
	"regsync/internal/registry"
	"regsync/internal/scheduler"
	"regsync/internal/scraper"
	"regsync/internal/server"
	"regsync/internal/service"
	"regsync/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	// Setup logger
	logger := setupLogger("info")

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = setupLogger(cfg.LogLevel)

	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	// Initialize RabbitMQ notifier
	alerts, err := notifier.NewRabbitMQ(notifier.Config{
		URL:        cfg.RabbitMQ.URL,
		Exchange:   cfg.RabbitMQ.Exchange,
		RoutingKey: cfg.RabbitMQ.RoutingKey,
		QueueName:  cfg.RabbitMQ.QueueName,
	}, logger)
	if err != nil {
		logger.Error("failed to connect to rabbitmq", "error", err)
		os.Exit(1)
	}
	defer alerts.Close()

	// Initialize stores
	recordStore := postgres.NewRecordStore(db)
	runStore := postgres.NewSyncRunStore(db)
	stateStore := postgres.NewSourceStateStore(db)
	txManager := postgres.NewTransactionManager(db)

	// Registry initialization is process-fatal: a broken source list is
	// a configuration error, not something to limp along with.
	reg := registry.New()
	for _, sc := range cfg.Sources {
		if err := reg.Register(sc.DataSource()); err != nil {
			logger.Error("failed to register source", "source", sc.ID, "error", err)
			os.Exit(1)
		}
	}
	logger.Info("registered sources", "count", len(cfg.Sources))

	promReg := prometheus.NewRegistry()
	collector := metrics.NewCollector(promReg)

	limiter := ratelimit.NewLimiter(reg, alerts, collector, cfg.Sync.AlertRecipients, logger)

	inv := invoker.New(invoker.Config{
		RequestTimeout: cfg.Sync.RequestTimeout,
		PaceRPS:        cfg.Sync.PaceRPS,
		PaceBurst:      cfg.Sync.PaceBurst,
	},
		limiter,
		scraper.New(scraper.Config{Timeout: cfg.Sync.RequestTimeout}, logger),
		partner.New(partner.Config{Timeout: cfg.Sync.RequestTimeout}, logger),
		collector,
		logger,
	)

	orchestrator := service.NewOrchestrator(
		service.Config{Concurrency: cfg.Sync.Concurrency},
		reg,
		inv,
		recordStore,
		runStore,
		stateStore,
		txManager,
		collector,
		logger,
	)

	digest := service.NewDigestService(recordStore, alerts, cfg.Sync.AlertRecipients, logger)

	sched := scheduler.New(scheduler.Config{
		HourlyInterval: cfg.Schedule.HourlyInterval,
		DailyHour:      cfg.Schedule.DailyHour,
		DailyMinute:    cfg.Schedule.DailyMinute,
		WeeklyWeekday:  time.Weekday(cfg.Schedule.WeeklyWeekday),
		WeeklyHour:     cfg.Schedule.WeeklyHour,
		WeeklyMinute:   cfg.Schedule.WeeklyMinute,
		HourlyAlerts:   *cfg.Schedule.HourlyAlerts,
		DailyAlerts:    *cfg.Schedule.DailyAlerts,
		WeeklyAlerts:   *cfg.Schedule.WeeklyAlerts,
		Recipients:     cfg.Sync.AlertRecipients,
	}, orchestrator, digest, alerts, logger)

	srv := server.New(orchestrator, reg, metrics.Handler(promReg), logger)
	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: srv.Router(),
	}

	sched.Start()

	go func() {
		logger.Info("admin server listening", "addr", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("admin server error", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig)

	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("admin server shutdown error", "error", err)
	}
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}
