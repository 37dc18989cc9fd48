// Command worker runs the dead letter reconciler on its own, for deployments
// that disable the sweep embedded in the API process.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"bookticket/internal/config"
	"bookticket/internal/database"
	"bookticket/internal/dispatch"
	"bookticket/internal/external"
	"bookticket/internal/jobs"
	"bookticket/internal/logger"
	"bookticket/internal/messaging"
	"bookticket/internal/metrics"
	"bookticket/internal/repository"
	"bookticket/internal/search"
	"bookticket/internal/service"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogFormat)

	slog.Info("Starting DLQ worker...")

	// a distinct streaming client id keeps the worker from evicting the API's connection
	cfg.Messaging.NATS.ClientID += "-worker"

	db, err := database.Connect(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", "error", err)
	}
	defer db.Close()

	if err := db.RunMigrations(); err != nil {
		logger.Fatal("Failed to run migrations", "error", err)
	}

	publisher, err := messaging.NewPublisher(cfg.Messaging)
	if err != nil {
		logger.Fatal("Failed to connect to message bus", "error", err)
	}
	defer publisher.Close()

	var indexer service.FailedEventIndexer
	if cfg.Elasticsearch.Enabled() {
		index, err := search.NewFailedEventIndex(cfg.Elasticsearch)
		if err != nil {
			logger.Fatal("Failed to init dead letter index", "error", err)
		}
		indexer = index
	}

	m := metrics.New()
	repos := repository.NewRepositories(db)
	deadLetters := service.NewDeadLetterService(repos.FailedEvents, indexer, cfg.Reconciler.ClaimLease)
	notifications := external.NewNotificationClient(cfg.Notification)
	dispatcher := dispatch.NewDispatcher(cfg.Dispatch, publisher, notifications, deadLetters, m)

	// the worker is started explicitly, whatever the embedded flag says
	reconciler := jobs.NewDLQReconciler(cfg.Reconciler, deadLetters, dispatcher, m)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reconciler.Start(ctx)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: ":" + cfg.Port, Handler: mux}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics listener failed", "error", err)
		}
	}()

	slog.Info("DLQ worker started", "interval", cfg.Reconciler.Interval, "batch_size", cfg.Reconciler.BatchSize)

	<-ctx.Done()
	slog.Info("Shutting down DLQ worker...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	_ = srv.Shutdown(shutdownCtx)
	reconciler.Stop()
	if err := dispatcher.Shutdown(shutdownCtx); err != nil {
		slog.Error("Event deliveries did not drain", "error", err)
	}

	slog.Info("DLQ worker stopped")
}
