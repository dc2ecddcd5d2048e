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
	"github.com/tasktrack/apiserver/config"
	"github.com/tasktrack/apiserver/internal/db"
	"github.com/tasktrack/apiserver/internal/handlers"
	"github.com/tasktrack/apiserver/internal/logging"
	"github.com/tasktrack/apiserver/internal/mq"
	"github.com/tasktrack/apiserver/internal/services"
	"github.com/tasktrack/apiserver/internal/storage"
	"github.com/tasktrack/apiserver/internal/store"
	"github.com/tasktrack/apiserver/internal/token"
)

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	events     *mq.MQ
	logger     *slog.Logger
}

// Dependencies are the collaborators the router is built from.
type Dependencies struct {
	DB          *sql.DB
	Dialect     store.Dialect
	Tokens      *token.Manager
	Hasher      services.PasswordHasher
	Logger      *slog.Logger
	TaskOptions []services.TaskOption
}

// New validates cfg, connects to the database and the optional broker and
// object store, and constructs a Server. It refuses to start without a
// signing secret.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := logging.New(cfg)

	tokens, err := token.NewManager(cfg.JWTSecret, token.WithTTL(cfg.TokenTTL))
	if err != nil {
		return nil, err
	}

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	var (
		taskOpts []services.TaskOption
		events   *mq.MQ
	)
	if cfg.MQ.Backend != "" {
		events, err = mq.Open(ctx, cfg.MQ)
		if err != nil {
			_ = dbConn.Close()
			return nil, err
		}
		taskOpts = append(taskOpts, services.WithEvents(events, cfg.MQ.Channel))
		logger.Info("task events enabled", "backend", cfg.MQ.Backend, "channel", cfg.MQ.Channel)
	}
	if cfg.Storage.Backend != "" {
		objects, err := storage.Open(ctx, cfg.Storage)
		if err != nil {
			if events != nil {
				_ = events.Close()
			}
			_ = dbConn.Close()
			return nil, err
		}
		taskOpts = append(taskOpts, services.WithExports(objects))
		logger.Info("task exports enabled", "backend", cfg.Storage.Backend, "bucket", objects.Bucket())
	}

	router := NewRouter(Dependencies{
		DB:          dbConn,
		Dialect:     store.DialectFor(cfg.Database.Driver),
		Tokens:      tokens,
		Hasher:      services.NewBcryptHasher(cfg.BcryptCost),
		Logger:      logger,
		TaskOptions: taskOpts,
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		events:     events,
		logger:     logger,
	}, nil
}

// NewRouter wires repositories, services and handlers onto a chi router.
func NewRouter(deps Dependencies) *chi.Mux {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	userRepo := store.NewUserRepository(deps.DB, deps.Dialect)
	taskRepo := store.NewTaskRepository(deps.DB, deps.Dialect)

	authService := services.NewAuthService(userRepo, deps.Hasher, deps.Tokens)
	taskService := services.NewTaskService(taskRepo, deps.TaskOptions...)

	authMiddleware := handlers.RequireAuth(deps.Tokens)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		logging.HTTPMiddleware(logger),
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz(deps.DB))
	router.Route("/auth", func(r chi.Router) {
		handlers.AuthRouter(r, authService, authMiddleware)
	})
	router.Route("/tasks", func(r chi.Router) {
		handlers.TaskRouter(r, taskService, authMiddleware)
	})

	return router
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests, then closes the broker and database.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if s.events != nil {
		if closeErr := s.events.Close(); closeErr != nil {
			s.logger.Warn("close mq failed", "err", closeErr)
		}
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	return err
}
