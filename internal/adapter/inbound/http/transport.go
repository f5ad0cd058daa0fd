package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mapwarden/mapwarden/internal/domain/schedule"
	"github.com/mapwarden/mapwarden/internal/service"
)

// Transport is the inbound HTTP adapter. It owns the server lifecycle and
// wires the gate and reconciler behind the API routes.
type Transport struct {
	gate            *service.Gate
	reconciler      *schedule.Reconciler
	server          *http.Server
	addr            string
	shutdownTimeout time.Duration
	logger          *slog.Logger
	metrics         *Metrics
}

// Option is a functional option for configuring Transport.
type Option func(*Transport)

// WithAddr sets the listen address. Default is "127.0.0.1:8080".
func WithAddr(addr string) Option {
	return func(t *Transport) {
		t.addr = addr
	}
}

// WithLogger sets the logger for the transport.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Transport) {
		t.logger = logger
	}
}

// WithShutdownTimeout bounds graceful shutdown. Default is 10s.
func WithShutdownTimeout(d time.Duration) Option {
	return func(t *Transport) {
		if d > 0 {
			t.shutdownTimeout = d
		}
	}
}

// NewTransport creates an HTTP transport over the given gate and reconciler.
func NewTransport(gate *service.Gate, reconciler *schedule.Reconciler, opts ...Option) *Transport {
	t := &Transport{
		gate:            gate,
		reconciler:      reconciler,
		addr:            "127.0.0.1:8080",
		shutdownTimeout: 10 * time.Second,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Routes builds the full handler chain. Exposed for tests.
func (t *Transport) Routes() http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	t.metrics = NewMetrics(reg)

	h := NewHandler(t.gate, t.reconciler, t.metrics)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/login", h.handleLogin)
	mux.HandleFunc("GET /api/session", h.handleSession)
	mux.HandleFunc("POST /api/logout", h.handleLogout)
	mux.HandleFunc("GET /map/{route}", h.handleMap)
	// The sync feed and prune trigger are host-local operational endpoints.
	mux.Handle("POST /api/sync", LocalhostOnly(http.HandlerFunc(h.handleSync)))
	mux.Handle("POST /api/prune", LocalhostOnly(http.HandlerFunc(h.handlePrune)))
	mux.Handle("GET /healthz", healthHandler())
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	// Middleware order (outermost first): metrics capture the full request
	// duration, then the request ID enriches the logger for everything below.
	var handler http.Handler = mux
	handler = RequestIDMiddleware(t.logger)(handler)
	handler = MetricsMiddleware(t.metrics)(handler)
	return handler
}

// Start begins accepting HTTP connections. It blocks until the context is
// cancelled or the server fails.
func (t *Transport) Start(ctx context.Context) error {
	t.server = &http.Server{
		Addr:              t.addr,
		Handler:           t.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		t.logger.Info("starting HTTP server", "addr", t.addr)
		if err := t.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		t.logger.Info("context cancelled, shutting down HTTP server")
		return t.shutdown()
	case err := <-errCh:
		return err
	}
}

// shutdown performs graceful shutdown of the HTTP server.
func (t *Transport) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), t.shutdownTimeout)
	defer cancel()

	if err := t.server.Shutdown(ctx); err != nil {
		t.logger.Error("error during server shutdown", "error", err)
		return err
	}
	t.logger.Info("HTTP server shutdown complete")
	return nil
}

// Close gracefully shuts down the transport.
func (t *Transport) Close() error {
	if t.server == nil {
		return nil
	}
	return t.shutdown()
}
