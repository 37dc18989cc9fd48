package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"bookticket/internal/config"
	"bookticket/internal/database"
	"bookticket/internal/dispatch"
	"bookticket/internal/external"
	"bookticket/internal/handlers"
	"bookticket/internal/jobs"
	"bookticket/internal/lock"
	"bookticket/internal/messaging"
	"bookticket/internal/metrics"
	"bookticket/internal/middleware"
	"bookticket/internal/polling"
	"bookticket/internal/repository"
	"bookticket/internal/search"
	"bookticket/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

type Server struct {
	router *gin.Engine
	config *config.Config

	db         *database.DB
	redis      *redis.Client
	publisher  messaging.Publisher
	metrics    *metrics.Metrics
	dispatcher *dispatch.Dispatcher
	reconciler *jobs.DLQReconciler

	dbHealth  func(ctx context.Context) database.HealthCheck
	redisPing func(ctx context.Context) error
}

// NewServer connects every backing service and wires the booking saga.
// Connections opened before a failure are closed again.
func NewServer(cfg *config.Config) (*Server, error) {
	gin.SetMode(cfg.GinMode)

	db, err := database.Connect(cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := db.RunMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	rdb, err := lock.NewRedisClient(cfg.Redis)
	if err != nil {
		db.Close()
		return nil, err
	}

	publisher, err := messaging.NewPublisher(cfg.Messaging)
	if err != nil {
		rdb.Close()
		db.Close()
		return nil, err
	}

	m := metrics.New()
	repos := repository.NewRepositories(db)
	clients := external.NewClients(cfg.Inventory, cfg.Payment, cfg.Notification)

	deadLetters, err := newDeadLetterService(cfg.Elasticsearch, repos.FailedEvents, cfg.Reconciler.ClaimLease)
	if err != nil {
		publisher.Close()
		rdb.Close()
		db.Close()
		return nil, err
	}

	dispatcher := dispatch.NewDispatcher(cfg.Dispatch, publisher, clients.Notifications, deadLetters, m)
	lockStore := lock.NewRedisStore(rdb)
	locks := lock.NewSeatLockManager(lockStore, cfg.Lock, m)

	bookings := service.NewBookingService(service.Deps{
		Bookings:  repos.Bookings,
		Locks:     locks,
		Inventory: clients.Inventory,
		Payments:  clients.Payment,
		Poller:    polling.NewPoller(clients.Payment, cfg.Polling),
		Events:    dispatcher,
		Metrics:   m,
	})

	s := &Server{
		router:     gin.New(),
		config:     cfg,
		db:         db,
		redis:      rdb,
		publisher:  publisher,
		metrics:    m,
		dispatcher: dispatcher,
		reconciler: jobs.NewDLQReconciler(cfg.Reconciler, deadLetters, dispatcher, m),
		dbHealth:   db.HealthCheck,
		redisPing:  lockStore.Ping,
	}
	s.setupRoutes(handlers.NewHandlers(bookings, deadLetters))

	return s, nil
}

// newDeadLetterService attaches the search index only when it is configured
func newDeadLetterService(cfg config.ElasticsearchConfig, store service.FailedEventStore, claimLease time.Duration) (*service.DeadLetterService, error) {
	if !cfg.Enabled() {
		slog.Info("Dead letter search disabled")
		return service.NewDeadLetterService(store, nil, claimLease), nil
	}

	index, err := search.NewFailedEventIndex(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to init dead letter index: %w", err)
	}
	return service.NewDeadLetterService(store, index, claimLease), nil
}

func (s *Server) setupRoutes(h *handlers.Handlers) {
	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.Logger())
	s.router.Use(middleware.Recovery())
	s.router.Use(middleware.CORS())

	api := s.router.Group("/api/v1", middleware.Identity(s.config.Identity))
	h.RegisterRoutes(api)

	s.router.GET("/health", s.healthCheck)
	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{})))
}

func (s *Server) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	db := s.dbHealth(ctx)

	redisStatus := "healthy"
	if err := s.redisPing(ctx); err != nil {
		slog.Error("Redis health check failed", "error", err)
		redisStatus = "unhealthy"
	}

	status, code := "ok", http.StatusOK
	if db.Status != "healthy" || redisStatus != "healthy" {
		status, code = "degraded", http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":   status,
		"service":  "bookticket-api",
		"database": db,
		"redis":    redisStatus,
	})
}

// Start launches background jobs; they stop with ctx or Shutdown
func (s *Server) Start(ctx context.Context) {
	if s.config.Reconciler.Enabled {
		s.reconciler.Start(ctx)
	}
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Shutdown stops the reconciler, drains queued event deliveries and closes
// connections. The HTTP listener must already be stopped.
func (s *Server) Shutdown(ctx context.Context) error {
	s.reconciler.Stop()

	var firstErr error
	if err := s.dispatcher.Shutdown(ctx); err != nil {
		slog.Error("Event deliveries did not drain", "error", err)
		firstErr = err
	}

	if err := s.publisher.Close(); err != nil {
		slog.Error("Error closing message bus", "error", err)
	}
	if err := s.redis.Close(); err != nil {
		slog.Error("Error closing redis client", "error", err)
	}
	if err := s.db.Close(); err != nil {
		slog.Error("Error closing database connection", "error", err)
		if firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}
