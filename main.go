package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/toolscout/internal/activities"
	"github.com/Kocoro-lab/toolscout/internal/app"
	"github.com/Kocoro-lab/toolscout/internal/circuitbreaker"
	"github.com/Kocoro-lab/toolscout/internal/config"
	"github.com/Kocoro-lab/toolscout/internal/db"
	"github.com/Kocoro-lab/toolscout/internal/health"
	"github.com/Kocoro-lab/toolscout/internal/httpapi"
	"github.com/Kocoro-lab/toolscout/internal/logging"
	"github.com/Kocoro-lab/toolscout/internal/metrics"
	"github.com/Kocoro-lab/toolscout/internal/research"
	"github.com/Kocoro-lab/toolscout/internal/runner"
	"github.com/Kocoro-lab/toolscout/internal/streaming"
	"github.com/Kocoro-lab/toolscout/internal/temporal"
	"github.com/Kocoro-lab/toolscout/internal/tracing"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "toolscout:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	path := config.Path()
	initial, err := config.Load(path)
	if err != nil {
		return err
	}
	logger, level, err := logging.New(initial.Logging.Level, initial.Logging.Format)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	cfgMgr, err := config.NewManager(path, logger)
	if err != nil {
		return err
	}
	cfgMgr.RegisterHandler(func(old, updated *config.Config) {
		if lvl, err := logging.ParseLevel(updated.Logging.Level); err == nil {
			level.SetLevel(lvl)
		}
	})
	cfgMgr.Watch()
	cfg := cfgMgr.Current()

	shutdownTracing, err := tracing.Initialize(cfg.Tracing, logger)
	if err != nil {
		logger.Warn("Tracing disabled", zap.Error(err))
	}
	circuitbreaker.StartMetricsCollection(ctx, 15*time.Second)

	var closers app.Closer
	defer func() {
		if err := closers.Close(); err != nil {
			logger.Warn("Errors during cleanup", zap.Error(err))
		}
	}()

	hm := health.NewManager(logger)

	rw, err := app.OpenRedis(ctx, cfg.Redis, logger)
	if err != nil {
		logger.Warn("Redis unavailable, continuing without cache and stream mirror", zap.Error(err))
	}
	if rw != nil {
		closers.Add(rw.Close)
		_ = hm.RegisterChecker(health.NewRedisChecker(rw))
	}

	dbClient, err := app.OpenDatabase(cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if dbClient != nil {
		closers.Add(dbClient.Close)
		_ = hm.RegisterChecker(health.NewDatabaseChecker(dbClient.Ping))
	}

	collab, err := app.NewCollaborators(cfg, rw, logger)
	if err != nil {
		return err
	}

	var mirrors []streaming.Mirror
	if rw != nil && cfg.Streaming.MirrorToRedis {
		mirrors = append(mirrors, streaming.NewRedisMirror(rw, cfg.Streaming.Redis, logger))
	}
	if dbClient != nil && cfg.Streaming.PersistEvents {
		mirrors = append(mirrors, db.NewEventLogMirror(dbClient))
	}
	hub := streaming.NewManager(cfg.Streaming.Config, logger, mirrors...)

	opts := runner.Options{
		Timeout: cfg.Service.RunTimeout,
		Sink:    research.MultiSink{hub, metrics.NewSink("local")},
	}
	if dbClient != nil {
		opts.Store = dbClient
	}
	runs := runner.New(collab, cfgMgr.Research, logger, opts)

	var handlerOpts []httpapi.Option
	if dbClient != nil {
		handlerOpts = append(handlerOpts, httpapi.WithRunLister(dbClient))
	}

	if cfg.Temporal.Enabled {
		tc, err := temporal.Dial(ctx, cfg.Temporal, logger)
		if err != nil {
			return err
		}
		closers.Add(func() error { tc.Close(); return nil })
		_ = hm.RegisterChecker(health.NewTemporalChecker(tc))

		w, err := startWorker(tc, cfg, collab, cfgMgr.Research(), hub, dbClient, logger)
		if err != nil {
			return err
		}
		closers.Add(func() error { w.Stop(); return nil })
		handlerOpts = append(handlerOpts, httpapi.WithWorkflowStarter(temporal.NewStarter(tc, cfg.Temporal)))
	}
	health.RegisterBreakers(hm)

	mux := http.NewServeMux()
	health.NewHTTPHandler(hm, logger).RegisterRoutes(mux)
	httpapi.NewResearchHandler(runs, runner.NewRunID, logger, handlerOpts...).RegisterRoutes(mux)
	httpapi.NewStreamingHandler(hub, logger).RegisterRoutes(mux)

	servers := []*http.Server{{
		Addr:              ":" + strconv.Itoa(cfg.Service.HTTPPort),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}}
	if cfg.Metrics.Enabled {
		if cfg.Metrics.Port == cfg.Service.HTTPPort {
			mux.Handle("GET /metrics", promhttp.Handler())
		} else {
			metricsMux := http.NewServeMux()
			metricsMux.Handle("/metrics", promhttp.Handler())
			servers = append(servers, &http.Server{
				Addr:              ":" + strconv.Itoa(cfg.Metrics.Port),
				Handler:           metricsMux,
				ReadHeaderTimeout: 10 * time.Second,
			})
		}
	}

	errCh := make(chan error, len(servers))
	for _, srv := range servers {
		go func(srv *http.Server) {
			logger.Info("HTTP server listening", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("listen %s: %w", srv.Addr, err)
			}
		}(srv)
	}

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutting down toolscout")
	case serveErr = <-errCh:
		logger.Error("HTTP server failed", zap.Error(serveErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Service.ShutdownTimeout)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("HTTP server shutdown", zap.String("addr", srv.Addr), zap.Error(err))
		}
	}
	if err := runs.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Background runs did not finish", zap.Error(err))
	}
	if shutdownTracing != nil {
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("Tracing shutdown", zap.Error(err))
		}
	}
	return serveErr
}

// startWorker runs the research workflow worker in process so its activities
// publish to the same event hub the HTTP streams read from.
func startWorker(tc client.Client, cfg *config.Config, collab research.Collaborators, settings research.Settings,
	hub *streaming.Manager, dbClient *db.Client, logger *zap.Logger) (worker.Worker, error) {
	var store activities.RunStore
	if dbClient != nil {
		store = dbClient
	}
	acts := activities.NewActivities(collab, settings, research.MultiSink{hub, metrics.NewSink("temporal")}, store, logger)
	w := temporal.NewWorker(tc, cfg.Temporal, acts)
	if err := w.Start(); err != nil {
		return nil, fmt.Errorf("start temporal worker: %w", err)
	}
	logger.Info("Temporal worker started", zap.String("task_queue", cfg.Temporal.TaskQueue))
	return w, nil
}
