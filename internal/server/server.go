// Package server wires storage, services, handlers and middleware into one
// chi router and runs it with graceful shutdown.
//
// ROUTES:
//
//	GET  /healthz                            liveness + database ping
//	GET  /metrics                            Prometheus exposition
//	GET  /api/statistics                     public
//	GET  /api/matches/featured               public
//	POST /api/matches                        authenticated from here on
//	GET  /api/matches
//	GET  /api/matches/{id}
//	POST /api/matches/{id}/status
//	POST /api/matches/{id}/feedback
//	POST /api/conversations
//	GET  /api/conversations
//	GET  /api/conversations/unread
//	GET  /api/conversations/{id}
//	GET  /api/conversations/{id}/messages
//	POST /api/conversations/{id}/messages
//	POST /api/conversations/{id}/read
//	POST /api/reports
//	GET  /api/reports
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/sakif/cofounder-match/internal/auth"
	"github.com/sakif/cofounder-match/internal/config"
	"github.com/sakif/cofounder-match/internal/handler"
	"github.com/sakif/cofounder-match/internal/metrics"
	"github.com/sakif/cofounder-match/internal/middleware"
	sqliteRepo "github.com/sakif/cofounder-match/internal/repository/sqlite"
	"github.com/sakif/cofounder-match/internal/service"
)

// Server owns the database connection and closes it on shutdown.
type Server struct {
	router     *chi.Mux
	handler    http.Handler
	config     config.Config
	logger     *slog.Logger
	db         *sqliteRepo.DB
	registry   *prometheus.Registry
	metrics    *metrics.Metrics
	tokens     *auth.TokenService
	statistics *service.StatisticsService
}

// New opens the database and assembles the dependency chain:
//
//	sqlite.DB → services → handlers → routes
func New(cfg config.Config, logger *slog.Logger) (*Server, error) {
	tokens, err := auth.NewTokenService(cfg.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("creating token service: %w", err)
	}

	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	s := &Server{
		router:   chi.NewRouter(),
		config:   cfg,
		logger:   logger,
		db:       db,
		registry: reg,
		metrics:  metrics.New(reg),
		tokens:   tokens,
	}
	s.setupRoutes()

	s.handler = cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}).Handler(s.router)

	return s, nil
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Close releases the database. Start calls it on the way out.
func (s *Server) Close() error {
	return s.db.Close()
}

func (s *Server) setupRoutes() {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger, s.metrics))
	s.router.Use(chimiddleware.Recoverer)

	matchService := service.NewMatchService(s.db, s.metrics, s.logger)
	conversationService := service.NewConversationService(s.db, s.metrics, s.logger)
	s.statistics = service.NewStatisticsService(s.db, s.db, s.db, s.metrics, s.logger)

	matchHandler := handler.NewMatchHandler(matchService, conversationService, s.logger)
	conversationHandler := handler.NewConversationHandler(conversationService, s.logger)
	statisticsHandler := handler.NewStatisticsHandler(s.statistics, s.logger)
	reportHandler := handler.NewReportHandler(service.NewReportService(s.db, s.metrics, s.logger), s.logger)

	s.router.Get("/healthz", handler.HealthHandler(s.db, s.logger))
	s.router.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/statistics", statisticsHandler.HandleGet)
		r.Get("/matches/featured", matchHandler.HandleFeatured)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(s.tokens))
			r.Use(middleware.Activity(s.db, s.logger))

			r.Route("/matches", func(r chi.Router) {
				r.Post("/", matchHandler.HandleCreate)
				r.Get("/", matchHandler.HandleList)
				r.Get("/{id}", matchHandler.HandleGet)
				r.Post("/{id}/status", matchHandler.HandleDecide)
				r.Post("/{id}/feedback", matchHandler.HandleFeedback)
			})

			r.Route("/conversations", func(r chi.Router) {
				r.Post("/", conversationHandler.HandleOpen)
				r.Get("/", conversationHandler.HandleList)
				r.Get("/unread", conversationHandler.HandleUnread)
				r.Get("/{id}", conversationHandler.HandleGet)
				r.Get("/{id}/messages", conversationHandler.HandleMessages)
				r.Post("/{id}/messages", conversationHandler.HandleSend)
				r.Post("/{id}/read", conversationHandler.HandleMarkRead)
			})

			r.Route("/reports", func(r chi.Router) {
				r.Post("/", reportHandler.HandleFile)
				r.Get("/", reportHandler.HandleList)
			})
		})
	})
}

// Start serves HTTP and runs the statistics refresher until SIGINT/SIGTERM,
// then drains in-flight requests, stops the refresher and closes the
// database.
func (s *Server) Start() error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	refreshCtx, stopRefresher := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		err := s.statistics.RunRefresher(refreshCtx, s.config.StatsRefreshInterval)
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("statistics refresher stopped", slog.String("error", err.Error()))
		}
	}()
	defer func() {
		stopRefresher()
		wg.Wait()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("database", s.config.DBPath),
			slog.Duration("stats_refresh_interval", s.config.StatsRefreshInterval),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
