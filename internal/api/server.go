package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/seantiz/sqlworker/internal/database"
	"github.com/seantiz/sqlworker/internal/engine"
	"github.com/seantiz/sqlworker/internal/store"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
	writeTimeout      = 30 * time.Second
)

var (
	errUnknownDatabase  = errors.New("unknown database")
	errDatabaseRequired = errors.New("database is required when more than one is configured")
)

// Server wraps the chi router and the worker pools it fronts.
type Server struct {
	router   *chi.Mux
	registry *database.Registry
	pools    map[string]*engine.Pool
	journal  store.Store
	broker   *engine.Broker
	logger   *slog.Logger
	addr     string
}

// NewServer creates and configures a new HTTP server. pools is keyed by
// the registry name of each database. journal may be nil, in which case
// the operation endpoints report 503.
func NewServer(addr string, reg *database.Registry, pools map[string]*engine.Pool, journal store.Store, broker *engine.Broker, logger *slog.Logger) *Server {
	srv := &Server{
		router:   chi.NewRouter(),
		registry: reg,
		pools:    pools,
		journal:  journal,
		broker:   broker,
		logger:   logger,
		addr:     addr,
	}

	srv.router.Use(middleware.RequestID)
	srv.router.Use(middleware.Recoverer)
	srv.router.Use(srv.loggingMiddleware)
	srv.router.Use(metricsMiddleware)
	srv.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	srv.routes()

	return srv
}

func (s *Server) routes() {
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Handle("/metrics", metricsHandler())

	s.router.Get("/v1/databases", s.handleListDatabases)
	s.router.Get("/v1/stats", s.handleGetStats)
	s.router.Post("/v1/query", s.handleQuery)
	s.router.Post("/v1/exec", s.handleExec)

	s.router.Route("/v1/operations", func(r chi.Router) {
		r.Get("/", s.handleListOperations)
		r.Get("/{id}", s.handleGetOperation)
		r.Get("/{id}/events", s.handleStreamEvents)
	})
}

// Router returns the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", s.addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down", "reason", context.Cause(ctx))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}

// pool picks the pool for a request. An empty name selects the only pool
// when exactly one is configured.
func (s *Server) pool(name string) (string, *engine.Pool, error) {
	if name == "" {
		if len(s.pools) != 1 {
			return "", nil, errDatabaseRequired
		}
		for n, p := range s.pools {
			return n, p, nil
		}
	}
	p, ok := s.pools[name]
	if !ok {
		return "", nil, fmt.Errorf("%w: %q", errUnknownDatabase, name)
	}
	return name, p, nil
}

func (s *Server) poolNames() []string {
	names := make([]string, 0, len(s.pools))
	for n := range s.pools {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// loggingMiddleware logs each request using the structured logger.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
