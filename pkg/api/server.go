package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"balance-ledger/pkg/ledger"
	"balance-ledger/pkg/logging"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Ledger is the engine surface served over HTTP. *ledger.Engine satisfies it.
type Ledger interface {
	UseBalance(ctx context.Context, userID int64, accountNumber string, amount int64) (ledger.TransactionResult, error)
	CancelBalance(ctx context.Context, transactionID, accountNumber string, amount int64) (ledger.TransactionResult, error)
	RecordFailedUse(ctx context.Context, accountNumber string, amount int64) error
	RecordFailedCancel(ctx context.Context, accountNumber string, amount int64) error
	QueryTransaction(ctx context.Context, transactionID string) (ledger.TransactionResult, error)
}

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// Server exposes the ledger engine over HTTP.
type Server struct {
	ledger  Ledger
	router  *mux.Router
	server  *http.Server
	config  ServerConfig
	checks  map[string]HealthCheck
	logger  *logging.Logger
	metrics *httpMetrics
}

// ServerConfig holds configuration for the API server.
type ServerConfig struct {
	// Address to listen on (e.g., ":8080")
	Address string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// RequestTimeout bounds the engine call of each request.
	RequestTimeout time.Duration

	// Registry receives the HTTP metrics and backs /metrics. Nil creates a
	// private registry.
	Registry *prometheus.Registry
}

// DefaultServerConfig returns a default configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Address:        ":8080",
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		RequestTimeout: 5 * time.Second,
	}
}

// ServerOption customizes a Server.
type ServerOption func(*Server)

// WithHealthCheck adds a named dependency check to /health.
func WithHealthCheck(name string, check HealthCheck) ServerOption {
	return func(s *Server) { s.checks[name] = check }
}

// WithLogger sets the server logger.
func WithLogger(l *logging.Logger) ServerOption {
	return func(s *Server) { s.logger = l }
}

// NewServer builds the router. Call Start to listen.
func NewServer(l Ledger, config ServerConfig, opts ...ServerOption) *Server {
	if config.Registry == nil {
		config.Registry = prometheus.NewRegistry()
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 5 * time.Second
	}

	s := &Server{
		ledger: l,
		config: config,
		checks: make(map[string]HealthCheck),
		logger: logging.Global().Named("api"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.metrics = newHTTPMetrics(config.Registry)

	r := mux.NewRouter()
	r.Use(s.metrics.middleware, s.accessLog)

	r.HandleFunc("/transaction/use", s.handleUseBalance).Methods(http.MethodPost)
	r.HandleFunc("/transaction/cancel", s.handleCancelBalance).Methods(http.MethodPost)
	r.HandleFunc("/transaction/{transactionId}", s.handleQueryTransaction).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(config.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	s.router = r
	s.server = &http.Server{
		Addr:         config.Address,
		Handler:      r,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server in a goroutine.
func (s *Server) Start() error {
	go func() {
		s.logger.Info("server listening", zap.String("address", s.config.Address))
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("server failed", zap.Error(err))
		}
	}()
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
