package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hamed0406/servicemonitor/internal/config"
	"github.com/hamed0406/servicemonitor/internal/domain"
	"github.com/hamed0406/servicemonitor/internal/health"
	"github.com/hamed0406/servicemonitor/internal/httpapi"
	apimw "github.com/hamed0406/servicemonitor/internal/httpapi/middleware"
	"github.com/hamed0406/servicemonitor/internal/logging"
	"github.com/hamed0406/servicemonitor/internal/metrics"
	"github.com/hamed0406/servicemonitor/internal/monitor"
	"github.com/hamed0406/servicemonitor/internal/notify"
	"github.com/hamed0406/servicemonitor/internal/probe"
	"github.com/hamed0406/servicemonitor/internal/repo"
	"github.com/hamed0406/servicemonitor/internal/repo/file"
	"github.com/hamed0406/servicemonitor/internal/repo/memory"
	"github.com/hamed0406/servicemonitor/internal/repo/postgres"
	"github.com/hamed0406/servicemonitor/internal/repo/redis"
	"github.com/hamed0406/servicemonitor/internal/scheduler"
	"github.com/hamed0406/servicemonitor/internal/seed"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatal(err)
	}
	logger, err := logging.NewLogger(cfg.LogDir, cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("monitor_exit", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) (err error) {
	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, closeStore()) }()

	locks := repo.NewGroupLocks()
	registry := monitor.NewRegistry(store, locks, logger)

	if cfg.SeedFile != "" {
		f, err := seed.Load(cfg.SeedFile)
		if err != nil {
			return err
		}
		if _, err := seed.Apply(ctx, registry, f, logger); err != nil {
			logger.Warn("seed_errors", zap.Error(err))
		}
	}

	exporter, err := metrics.New(nil)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	checkers := probe.Table{
		domain.KindSocket: probe.NewSocketChecker(cfg.SocketTimeout, logger),
		domain.KindHTTP:   probe.NewHTTPChecker(logger),
	}
	engine := health.New(store, locks, checkers, health.Config{
		ProbeTimeout: cfg.ProbeTimeout,
		Session: probe.Options{
			RetryAttempts:      cfg.RetryAttempts,
			RetryBackoff:       cfg.RetryBackoff,
			InsecureSkipVerify: cfg.TLSSkipVerify,
			DialTimeout:        cfg.SocketTimeout,
		},
		GroupConcurrency: cfg.GroupConcurrency,
	}, logger, health.WithObserver(exporter))

	notifiers := notify.Multi{notify.Log{Logger: logger}}
	if slack := notify.NewSlack(cfg.SlackWebhookURL); slack != nil {
		notifiers = append(notifiers, slack)
		logger.Info("notifier_enabled", zap.String("notifier", "slack"))
	}
	if len(cfg.KafkaBrokers) > 0 {
		k := notify.NewKafka(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer func() { err = multierr.Append(err, k.Close()) }()
		notifiers = append(notifiers, k)
		logger.Info("notifier_enabled", zap.String("notifier", "kafka"),
			zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	}
	alerter := scheduler.NewAlerter(notifiers, scheduler.AlerterConfig{CertWarnDays: cfg.CertWarnDays}, logger)

	api := httpapi.NewServer(logger, registry, engine, alerter)
	api.Resolver = net.DefaultResolver
	api.Forget = exporter

	keys := apimw.Keys{Public: cfg.PublicAPIKeys, Admin: cfg.AdminAPIKeys}
	limits := httpapi.Limits{
		PublicRPM:   cfg.PublicRPM,
		PublicBurst: cfg.PublicBurst,
		AdminRPM:    cfg.AdminRPM,
		AdminBurst:  cfg.AdminBurst,
	}
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Router(keys, cfg.AllowGroups, limits),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	rechecker := scheduler.NewRechecker(logger, engine, alerter, cfg.PollingInterval)
	done := make(chan struct{})
	go func() {
		defer close(done)
		rechecker.Run(ctx)
	}()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("api_listen", zap.String("addr", cfg.Addr), zap.String("store", cfg.StoreBackend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown_requested")
	case serr := <-serveErr:
		if serr != nil {
			runErr = fmt.Errorf("listen: %w", serr)
		}
	}
	cancel()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http_shutdown", zap.Error(err))
	}
	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Warn("rechecker_shutdown_timeout")
	}
	logger.Info("shutdown_complete")
	return runErr
}

// openStore picks the repository backend and returns its closer.
func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (repo.Repository, func() error, error) {
	noop := func() error { return nil }
	switch cfg.StoreBackend {
	case config.BackendMemory:
		logger.Warn("store_memory", zap.String("note", "state is lost on restart"))
		return memory.New(), noop, nil
	case config.BackendPostgres:
		s, err := postgres.New(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			s.Close()
			return nil, nil, err
		}
		return s, func() error { s.Close(); return nil }, nil
	case config.BackendRedis:
		s, err := redis.New(ctx, redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}, logger)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		s, err := file.New(cfg.DataDir, logger)
		if err != nil {
			return nil, nil, err
		}
		return s, noop, nil
	}
}
