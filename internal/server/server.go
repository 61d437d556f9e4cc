// Package server exposes the analysis pipeline over HTTP: submission,
// job inspection, report generation, webhook registration, and CRM
// export.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/icp-analyzer/internal/export"
	"github.com/sells-group/icp-analyzer/internal/pipeline"
	"github.com/sells-group/icp-analyzer/internal/report"
	"github.com/sells-group/icp-analyzer/internal/store"
)

// Server wires the HTTP API to the orchestrator and its services.
type Server struct {
	orch    *pipeline.Orchestrator
	store   store.Store
	reports *report.Service
	exports *export.Registry
	token   string
}

// New builds a Server. reports and exports may be nil; their routes
// then answer 503.
func New(orch *pipeline.Orchestrator, st store.Store, reports *report.Service, exports *export.Registry, authToken string) *Server {
	return &Server{
		orch:    orch,
		store:   st,
		reports: reports,
		exports: exports,
		token:   authToken,
	}
}

// Router assembles the chi handler tree.
func (s *Server) Router() http.Handler {
	mux := chi.NewRouter()

	mux.Use(chimw.RequestID)
	mux.Use(chimw.Recoverer)
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	}))
	mux.Use(requestLogger)

	mux.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.Route("/api", func(rt chi.Router) {
		rt.Use(BearerAuth(s.token))

		rt.Post("/analyze", s.wrap(s.handleAnalyze))
		rt.Get("/jobs", s.wrap(s.handleListJobs))
		rt.Get("/jobs/{id}", s.wrap(s.handleGetJob))
		rt.Post("/jobs/{id}/cancel", s.wrap(s.handleCancelJob))
		rt.Get("/jobs/{id}/deliveries", s.wrap(s.handleListDeliveries))
		rt.Post("/report", s.wrap(s.handleReport))
		rt.Post("/webhook", s.wrap(s.handleRegisterWebhook))
		rt.Post("/export", s.wrap(s.handleExport))
	})

	return mux
}

// ListenAndServe runs the server until ctx is cancelled, then drains
// connections and waits for background jobs.
func (s *Server) ListenAndServe(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("http server listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	zap.L().Info("http server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.orch.Wait()
	return nil
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)))
	})
}
