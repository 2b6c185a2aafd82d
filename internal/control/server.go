package control

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// Server is the HTTP server for the scheduler control API.
type Server struct {
	httpServer *http.Server
}

// New creates a control server. Health and metrics are open; every
// mutating endpoint requires the shared secret. Manual triggers are
// additionally rate limited so a misbehaving caller cannot starve the
// scheduler.
func New(addr string, h *Handlers, secret string, metricsHandler http.Handler) *Server {
	secretMW := RequireSecret(secret)
	triggerLimit := RateLimit(rate.NewLimiter(rate.Limit(5), 10))

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /ready", h.Ready)
	if metricsHandler != nil {
		mux.Handle("GET /metrics", metricsHandler)
	}

	mux.Handle("POST /poke", secretMW(http.HandlerFunc(h.Poke)))
	mux.Handle("POST /trigger/{id}", secretMW(triggerLimit(http.HandlerFunc(h.TriggerJob))))
	mux.Handle("POST /jobs", secretMW(http.HandlerFunc(h.CreateJob)))
	mux.Handle("GET /jobs/{id}", secretMW(http.HandlerFunc(h.GetJob)))
	mux.Handle("GET /jobs/{id}/runs", secretMW(http.HandlerFunc(h.ListRuns)))

	return &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
	}
}

// Run starts the HTTP server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
