// Package server implements the HTTP gateway for docqa: document upload,
// listing and deletion, question answering, manual reset, and the health,
// readiness and metrics endpoints.
// The server is started by the `docqa serve` CLI command.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/54b3r/docqa-go/internal/logging"
)

// defaultMaxUploadBytes is the multipart body limit when none is configured.
const defaultMaxUploadBytes = 32 << 20

// Server is the HTTP gateway in front of the docqa services.
type Server struct {
	// svc holds the domain services called by the handlers.
	svc Services
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus collectors owned by this server.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// New constructs a Server from the provided services and config.
func New(svc Services, cfg *Config) (*Server, error) {
	if svc.Loader == nil || svc.Store == nil || svc.Answerer == nil || svc.Cleanup == nil {
		return nil, fmt.Errorf("server: Loader, Store, Answerer and Cleanup must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.UploadDir == "" {
		return nil, fmt.Errorf("server: UploadDir must be set")
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8000
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		// Long enough for a large PDF to be embedded or a slow LLM to answer.
		cfg.WriteTimeout = 5 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.MetricsRegistry == nil {
		cfg.MetricsRegistry = prometheus.DefaultRegisterer
	}
	if cfg.MetricsGatherer == nil {
		cfg.MetricsGatherer = prometheus.DefaultGatherer
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	s := &Server{
		svc:     svc,
		cfg:     cfg,
		log:     log,
		pingers: cfg.Pingers,
		metrics: newServerMetrics(cfg.MetricsRegistry, svc.Store),
	}

	if cfg.APIKey == "" {
		log.Warn("server: DOCQA_API_KEY not set, authentication disabled")
	}

	rl, stop := newRateLimiter(cfg.RateLimit, cfg.RateBurst, log)
	rl.onReject = func(r *http.Request) {
		s.metrics.rateLimitedTotal.WithLabelValues(r.Pattern).Inc()
	}
	s.stopRL = stop

	s.httpServer = &http.Server{
		Addr:         net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Handler:      s.routes(rl),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s, nil
}

// routes builds the mux and wraps it in the middleware chain:
// request logger -> metrics -> CORS -> auth -> mux. Rate limiting applies to
// /upload and /query only.
func (s *Server) routes(rl *rateLimiter) http.Handler {
	protected := http.NewServeMux()
	protected.HandleFunc("GET /{$}", s.handleRoot)
	protected.HandleFunc("GET /list-files", s.handleListFiles)
	protected.Handle("POST /upload", rl.middleware(http.HandlerFunc(s.handleUpload)))
	protected.HandleFunc("DELETE /delete/{filename}", s.handleDelete)
	protected.HandleFunc("POST /reset", s.handleReset)
	protected.Handle("POST /query", rl.middleware(http.HandlerFunc(s.handleQuery)))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/ready", s.handleReady)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.cfg.MetricsGatherer, promhttp.HandlerOpts{}))
	mux.Handle("/", newAPIKeyAuth(s.cfg.APIKey).wrap(protected))

	return requestLogger(s.log, s.metrics.middleware(corsMiddleware(mux)))
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Addr returns the listen address.
func (s *Server) Addr() string { return s.httpServer.Addr }

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	defer s.stopRL()

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("docqa server listening", slog.String("addr", "http://"+s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		s.log.Info("docqa server stopped")
		return nil
	}
}

// handleRoot handles GET / as a banner for clients probing the API.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), w, http.StatusOK, messageResponse{Message: "Enterprise RAG API is running"})
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON encodes v with the given status code.
func writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(ctx).Error("server: encode response", slog.Any("error", err))
	}
}

// writeJSONError writes {"detail": msg} with the given status code.
func writeJSONError(ctx context.Context, w http.ResponseWriter, msg string, status int) {
	writeJSON(ctx, w, status, errorResponse{Detail: msg})
}
