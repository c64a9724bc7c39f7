package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shaiso/Conveyor/internal/catalog"
	"github.com/shaiso/Conveyor/internal/config"
	"github.com/shaiso/Conveyor/internal/mq"
	"github.com/shaiso/Conveyor/internal/orchestrator"
	"github.com/shaiso/Conveyor/internal/repo"
	"github.com/shaiso/Conveyor/internal/scheduler"
	"github.com/shaiso/Conveyor/internal/worker"
)

// buildCatalog возвращает каталог из файла или встроенный.
func buildCatalog(cfg config.CatalogConfig) (*catalog.Catalog, error) {
	if cfg.Path == "" {
		return catalog.Default(), nil
	}
	cat, err := catalog.Load(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("load catalog %s: %w", cfg.Path, err)
	}
	return cat, nil
}

// buildExecutors создаёт реестр с executor'ом по умолчанию для всех шагов.
func buildExecutors(cfg config.ExecutorConfig, cat *catalog.Catalog) (*worker.Registry, error) {
	var fallback worker.Executor

	switch cfg.Kind {
	case config.ExecutorHTTP:
		e, err := worker.NewHTTPExecutor(worker.HTTPConfig{
			BaseURL:      cfg.BaseURL,
			PollInterval: cfg.PollInterval,
		})
		if err != nil {
			return nil, err
		}
		fallback = e
	case config.ExecutorSimulated, "":
		e, err := worker.NewSimulatedExecutor(worker.SimulatedConfig{
			Ticks:   cfg.Ticks,
			Project: cat.Project,
		})
		if err != nil {
			return nil, err
		}
		fallback = e
	default:
		return nil, fmt.Errorf("%w: unknown executor kind %q", config.ErrInvalidConfig, cfg.Kind)
	}

	return worker.NewRegistry(fallback), nil
}

// connectSnapshotRepo подключается к PostgreSQL и готовит таблицу snapshots.
func connectSnapshotRepo(ctx context.Context, cfg config.DBConfig, logger *slog.Logger) (*repo.SnapshotRepo, func(), error) {
	pool, err := repo.NewPool(ctx, cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	logger.Info("database connected")

	snapshots := repo.NewSnapshotRepo(pool, repo.DefaultPipeline)
	if err := snapshots.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ensure schema: %w", err)
	}

	last, err := snapshots.Latest(ctx)
	switch {
	case err == nil:
		logger.Info("last persisted snapshot",
			"run_id", last.RunID,
			"run_state", last.State,
			"version", last.Version,
		)
	case !errors.Is(err, repo.ErrNotFound):
		logger.Warn("failed to read last snapshot", "error", err)
	}

	return snapshots, pool.Close, nil
}

// connectMQ подключается к RabbitMQ. При недоступности брокера
// сервис продолжает работу без MQ.
func connectMQ(ctx context.Context, cfg config.MQConfig, logger *slog.Logger) *mq.Connection {
	url := cfg.URL
	if url == "" {
		url = mq.DefaultURL()
	}

	conn, err := mq.NewConnection(url, logger)
	if err != nil {
		logger.Warn("RabbitMQ not available, running without message queue", "error", err)
		return nil
	}
	logger.Info("RabbitMQ connected")

	if err := mq.SetupTopology(ctx, conn); err != nil {
		logger.Warn("failed to setup topology", "error", err)
	} else {
		logger.Debug("topology declared", "topology", mq.TopologyInfo())
	}
	return conn
}

// buildScheduler создаёт cron-scheduler для автозапуска run.
func buildScheduler(cfg config.ScheduleConfig, ctrl *orchestrator.Controller, logger *slog.Logger) (*scheduler.Scheduler, error) {
	payload := scheduler.StaticPayload(cfg.Documents)
	if cfg.PayloadSource != "" {
		payload = scheduler.FilePayload(cfg.PayloadSource)
	}

	return scheduler.New(scheduler.Config{
		Pipeline: ctrl,
		Cron:     cfg.Cron,
		Payload:  payload,
		Logger:   logger,
	})
}
