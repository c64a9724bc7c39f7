// Conveyord — сервис оркестрации staged analysis pipeline.
//
// Conveyord:
//   - Выполняет шаги каталога через executors (simulated или HTTP analysis engine)
//   - Публикует snapshots: SSE, Prometheus, PostgreSQL, RabbitMQ
//   - Принимает команды start/reset через HTTP API и RabbitMQ
//   - Запускает run по cron-расписанию
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/shaiso/Conveyor/internal/api"
	"github.com/shaiso/Conveyor/internal/config"
	"github.com/shaiso/Conveyor/internal/mq"
	"github.com/shaiso/Conveyor/internal/orchestrator"
	"github.com/shaiso/Conveyor/internal/sink"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

// version задаётся через ldflags при сборке.
var version = "dev"

// shutdownTimeout — время на graceful shutdown HTTP сервера.
const shutdownTimeout = 10 * time.Second

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "conveyord",
		Short:         "Conveyor pipeline orchestrator daemon",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
	rootCmd.Flags().StringVar(&configPath, "config", "", "Config file (default: $CONVEYOR_CONFIG)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}

	// Инициализируем structured logging
	logger := telemetry.SetupLogger(cfg.Log.Level, cfg.Log.Format)
	logger.Info("starting conveyord", "version", version)

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cat, err := buildCatalog(cfg.Catalog)
	if err != nil {
		return err
	}
	logger.Info("catalog loaded", "steps", cat.Len(), "nominal_duration", cat.NominalDuration())

	executors, err := buildExecutors(cfg.Executor, cat)
	if err != nil {
		return err
	}

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := telemetry.NewMetrics(reg)

	broadcaster := sink.NewBroadcaster()
	sinks := []sink.Sink{broadcaster, metrics}

	// PostgreSQL
	if cfg.DB.Enabled {
		snapshots, closeDB, err := connectSnapshotRepo(ctx, cfg.DB, logger)
		if err != nil {
			return err
		}
		defer closeDB()
		sinks = append(sinks, snapshots)
	}

	// RabbitMQ
	var mqConn *mq.Connection
	if cfg.MQ.Enabled {
		mqConn = connectMQ(ctx, cfg.MQ, logger)
		if mqConn != nil {
			defer mqConn.Close()
			sinks = append(sinks, mq.NewSnapshotSink(mq.NewPublisher(mqConn, logger)))
		}
	}

	// Controller
	ctrl, err := orchestrator.New(orchestrator.Config{
		Catalog:           cat,
		Executors:         executors,
		Sinks:             sinks,
		StepTimeoutFactor: cfg.Pipeline.StepTimeoutFactor,
		StepTimeoutGrace:  cfg.Pipeline.StepTimeoutGrace,
		Logger:            logger,
	})
	if err != nil {
		return err
	}
	defer ctrl.Close()

	// HTTP: API + /healthz + /metrics
	startTime := time.Now()
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s state=%s", time.Since(startTime).Round(time.Second), ctrl.State())
		if mqConn != nil {
			fmt.Fprintf(w, " mq_connected=%t", mqConn.IsConnected())
		}
	})
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	handler := api.NewHandler(api.Config{
		Pipeline: ctrl,
		Events:   broadcaster,
		Logger:   logger,
	})
	handler.RegisterRoutes(mux)

	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	// SSE потоки завершаются при закрытии подписок.
	server.RegisterOnShutdown(broadcaster.Close)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("listening", "addr", cfg.HTTP.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	// Scheduler
	if cfg.Schedule.Cron != "" {
		sched, err := buildScheduler(cfg.Schedule, ctrl, logger)
		if err != nil {
			cancel()
			_ = g.Wait()
			return err
		}
		sched.Start(gctx)
		defer sched.Stop()
	}

	// Команды из RabbitMQ
	if mqConn != nil {
		consumer := mq.NewConsumer(mqConn, logger, mq.ConsumerConfig{
			Queue:   mq.QueueCommands,
			Handler: ctrl.HandleCommand,
		})
		g.Go(func() error {
			if err := consumer.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("command consumer: %w", err)
			}
			return nil
		})
	}

	err = g.Wait()
	logger.Info("conveyord stopped")
	return err
}
