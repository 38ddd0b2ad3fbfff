package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/seantiz/daskpool/internal/backend"
	"github.com/seantiz/daskpool/internal/engine"
	"github.com/seantiz/daskpool/internal/model"
	"github.com/seantiz/daskpool/internal/store"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second

	// writeTimeout must outlast a DELETE, which waits out the worker's stop
	// grace. Log streams clear it per request.
	writeTimeout = 30 * time.Second
)

// Server is the worker-management API: launch, list, inspect and stop
// workers, and follow their output.
type Server struct {
	router   *chi.Mux
	store    store.Store
	registry *backend.Registry
	engine   *engine.Engine
	logger   *slog.Logger
	addr     string
}

// NewServer builds the router for eng. Workers are read from s and launched
// with the runtimes in reg.
func NewServer(addr string, s store.Store, reg *backend.Registry, eng *engine.Engine, logger *slog.Logger) *Server {
	srv := &Server{
		router:   chi.NewRouter(),
		store:    s,
		registry: reg,
		engine:   eng,
		logger:   logger,
		addr:     addr,
	}

	srv.router.Use(middleware.RequestID)
	srv.router.Use(middleware.Recoverer)
	srv.router.Use(srv.observe)
	srv.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	srv.router.Get("/healthz", srv.handleHealthz)
	srv.router.Handle("/metrics", metricsHandler())
	srv.router.Get("/v1/runtimes", srv.handleListRuntimes)
	srv.router.Get("/v1/stats", srv.handleGetStats)

	srv.router.Route("/v1/workers", func(r chi.Router) {
		r.Post("/", srv.handleLaunchWorkers)
		r.Get("/", srv.handleListWorkers)

		// Group middlewares run after matching, so the route pattern is
		// complete even when workerCtx answers 404.
		r.Group(func(r chi.Router) {
			r.Use(srv.workerCtx)
			r.Get("/{id}", srv.handleGetWorker)
			r.Delete("/{id}", srv.handleStopWorker)
			r.Get("/{id}/logs", srv.handleStreamLogs)
		})
	})

	return srv
}

// Router returns the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Run serves until ctx is done or the process receives SIGINT or SIGTERM.
// Live workers are stopped once the listener has drained.
func (s *Server) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpServer := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("worker api listening", "addr", s.addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down worker api", "cause", context.Cause(ctx).Error())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	shutdownErr := httpServer.Shutdown(shutdownCtx)

	live := s.engine.Active()
	s.engine.StopAll()
	s.logger.Info("worker api stopped", "workers_stopped", live)

	if shutdownErr != nil {
		return fmt.Errorf("shutdown: %w", shutdownErr)
	}
	return nil
}

// observe logs and measures each request under its worker API operation.
// Requests scoped to one worker carry its ID in the log line.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		elapsed := time.Since(start)
		op := operation(r)
		recordRequest(op, ww.Status(), elapsed.Seconds())

		attrs := []any{
			"op", op,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", elapsed.Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		}
		if id := chi.URLParam(r, "id"); id != "" {
			attrs = append(attrs, "worker_id", id)
		}
		s.logger.Info("request", attrs...)
	})
}

type workerKey struct{}

// workerCtx loads the {id} worker into the request context and answers 404
// for unknown IDs.
func (s *Server) workerCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		wk, err := s.store.GetWorker(r.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			if r.Method == http.MethodDelete {
				stopsTotal.WithLabelValues(stopNotFound).Inc()
			}
			s.writeError(w, http.StatusNotFound, "worker not found")
			return
		}
		if err != nil {
			s.logger.Error("load worker", "worker_id", id, "error", err)
			s.writeError(w, http.StatusInternalServerError, "failed to load worker")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), workerKey{}, wk)))
	})
}

// workerFrom returns the worker loaded by workerCtx.
func workerFrom(r *http.Request) *model.Worker {
	wk, _ := r.Context().Value(workerKey{}).(*model.Worker)
	return wk
}
