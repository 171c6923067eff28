package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"tallybook/internal/config"
	"tallybook/internal/connectivity"
	"tallybook/internal/database"
	"tallybook/internal/events"
	"tallybook/internal/export"
	"tallybook/internal/logging"
	"tallybook/internal/models"
	"tallybook/internal/remote"
	"tallybook/internal/repository"
	"tallybook/internal/service"
	"tallybook/internal/worker"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// app holds the wired components shared by every command.
type app struct {
	cfg    *config.Config
	logger *zerolog.Logger
	closer io.Closer

	db          *database.DB
	redis       *redis.Client
	remote      *remote.Client
	monitor     *connectivity.Monitor
	broadcaster *events.Broadcaster
	reconciler  *worker.Reconciler
	writer      *service.OfflineWriter
	reports     *service.ReportView
	maintenance *database.MaintenanceService
	exporter    *export.LedgerExporter
}

func newApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, closer: closer}

	a.db, err = database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("open queue database: %w", err)
	}

	a.redis = initRedis(ctx, cfg, logger)

	a.remote = remote.NewClient(cfg.Remote, logging.Component(logger, "remote"))
	if a.redis != nil {
		a.remote.UseRedisCache(a.redis, cfg.Remote.CacheTTL)
	}

	var signal connectivity.Signal
	if cfg.Connectivity.ProbeEnabled {
		signal = connectivity.NewHTTPProbe(a.remote, cfg.Connectivity.ProbeTimeout, logging.Component(logger, "probe"))
	}
	a.monitor = connectivity.NewMonitor(ctx, signal, logger)

	a.broadcaster = events.NewBroadcaster()

	a.reconciler = worker.NewReconciler(a.db, a.remote, a.monitor, a.broadcaster, worker.Options{
		SubmitTimeout:  cfg.Sync.SubmitTimeout,
		Interval:       cfg.Sync.Interval,
		NotifyOnOnline: cfg.Sync.NotifyOnOnline,
		LeaseTTL:       cfg.Sync.LeaseTTL,
		Retry:          worker.RetryPolicyFromConfig(cfg.Sync.Retry),
	}, logger)
	if a.redis != nil {
		a.reconciler.UseLease(repository.NewFailoverLeaseRepository(
			repository.NewRedisLeaseRepository(a.redis),
			repository.NewMemoryLeaseRepository(),
			logging.Component(logger, "lease"),
		))
	}

	a.writer = service.NewOfflineWriter(a.db, a.remote, a.monitor, a.reconciler, cfg.Sync.SubmitTimeout, logger)
	a.reports = service.NewReportView(a.remote, a.db, logger)
	a.maintenance = database.NewMaintenanceService(a.db, cfg.Backup, logging.Component(logger, "maintenance"))
	a.exporter = export.NewLedgerExporter(a.db, cfg.Exports.Path, logging.Component(logger, "export"))

	a.monitor.OnBecameOnline(func() {
		a.reconciler.Trigger(models.TriggerOnline)
	})

	return a, nil
}

func (a *app) close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Error().Err(err).Msg("close queue database")
		}
	}
	if err := repository.Close(a.redis); err != nil {
		a.logger.Error().Err(err).Msg("close redis")
	}
	if a.closer != nil {
		_ = a.closer.Close()
	}
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	client := repository.NewRedisClient(cfg.Redis)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := repository.Ping(pingCtx, client); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = client.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return client
}
