package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/novaangola/apiserver/config"
	"github.com/novaangola/apiserver/internal/auth"
	"github.com/novaangola/apiserver/internal/cache"
	"github.com/novaangola/apiserver/internal/db"
	"github.com/novaangola/apiserver/internal/events"
	"github.com/novaangola/apiserver/internal/handlers"
	"github.com/novaangola/apiserver/internal/metrics"
	"github.com/novaangola/apiserver/internal/mq"
	"github.com/novaangola/apiserver/internal/services"
	"github.com/novaangola/apiserver/internal/storage"
	"github.com/novaangola/apiserver/internal/store"
)

// Server wraps the HTTP server and the resources it owns.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	queue      *mq.MQ
	counts     *cache.CountCache
	logger     *slog.Logger
}

// Deps are the collaborators the router serves.
type Deps struct {
	Logger        *slog.Logger
	Metrics       *metrics.Metrics
	Tokens        *auth.Tokens
	Users         *services.UserService
	RiskAreas     *services.RiskAreaService
	Confirmations *services.ConfirmationService
	Evidence      *services.EvidenceService
	PublicBaseURL string
	HealthChecks  map[string]handlers.Pinger
}

// NewRouter builds the HTTP routes.
func NewRouter(deps Deps) *chi.Mux {
	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		handlers.RequestLogger(deps.Logger, deps.Metrics),
		handlers.Recoverer(deps.Logger),
		cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"*"},
			MaxAge:         300,
		}),
		middleware.Timeout(60*time.Second),
	)
	router.NotFound(handlers.NotFound)
	router.MethodNotAllowed(handlers.NotFound)

	router.Get("/", handlers.Index)
	router.Get("/healthz", handlers.Healthz(deps.HealthChecks))
	router.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())

	handlers.AuthRouter(router, deps.Users, deps.Tokens, deps.Logger)
	handlers.UploadRouter(router, deps.Evidence, deps.PublicBaseURL, deps.Logger)
	handlers.RiskAreaRouter(router, deps.RiskAreas, deps.Tokens, deps.Logger)
	handlers.ConfirmationRouter(router, deps.Confirmations, deps.Tokens, deps.Logger)

	return router
}

// New opens every configured backend and constructs a Server.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Database.AutoMigrate {
		if err := db.MigrateUp(cfg); err != nil {
			return nil, fmt.Errorf("migrate database: %w", err)
		}
	}

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Server{db: dbConn, logger: logger}

	objects, err := storage.Open(ctx, cfg)
	if err != nil {
		s.close()
		return nil, fmt.Errorf("open storage: %w", err)
	}

	s.queue, err = mq.Open(ctx, cfg)
	if err != nil {
		s.close()
		return nil, fmt.Errorf("open mq: %w", err)
	}

	s.counts, err = cache.New(ctx, cfg.Redis)
	if err != nil {
		s.close()
		return nil, fmt.Errorf("open cache: %w", err)
	}

	m := metrics.New()
	opts := []services.Option{
		services.WithLogger(logger),
		services.WithMetrics(m),
	}
	if s.queue != nil {
		opts = append(opts, services.WithEvents(events.NewPublisher(s.queue, cfg.MQ.Channel)))
	}
	if s.counts != nil {
		opts = append(opts, services.WithCountCache(s.counts))
	}

	userRepo := store.NewUserRepository(dbConn)
	riskAreaRepo := store.NewRiskAreaRepository(dbConn)
	healthChecks := map[string]handlers.Pinger{"database": dbConn}
	if s.counts != nil {
		healthChecks["cache"] = handlers.PingFunc(s.counts.Health)
	}

	s.router = NewRouter(Deps{
		Logger:        logger,
		Metrics:       m,
		Tokens:        auth.NewTokens(cfg.JWTSecret),
		Users:         services.NewUserService(userRepo, opts...),
		RiskAreas:     services.NewRiskAreaService(riskAreaRepo, opts...),
		Confirmations: services.NewConfirmationService(riskAreaRepo, userRepo, store.NewConfirmationRepository(dbConn), opts...),
		Evidence:      services.NewEvidenceService(objects, opts...),
		PublicBaseURL: cfg.PublicBaseURL,
		HealthChecks:  healthChecks,
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 3000
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server. It returns nil after Shutdown.
func (s *Server) Start() error {
	s.logger.Info("server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, waits for in-flight ones until ctx is
// done, then releases the backends.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.close()
	return err
}

func (s *Server) close() {
	if s.queue != nil {
		if err := s.queue.Close(); err != nil {
			s.logger.Warn("failed to close mq", "error", err)
		}
	}
	if s.counts != nil {
		if err := s.counts.Close(); err != nil {
			s.logger.Warn("failed to close cache", "error", err)
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Warn("failed to close database", "error", err)
		}
	}
}
