// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	service "github.com/okian/receipt-points/internal/app"
	"github.com/okian/receipt-points/internal/domain/model"
	"github.com/okian/receipt-points/internal/domain/points"
	"github.com/okian/receipt-points/pkg/logger"
	"github.com/okian/receipt-points/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Response bodies for the error kinds clients depend on.
const (
	msgBadRequest  = "Bad Request. Please verify input."
	msgNotFound    = "No receipt found for that ID."
	msgNotSaveable = "special receipt, not save-able"
	msgInternal    = "Internal Server Error"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// ProcessIdempotent validates, scores and stores a receipt. A non-empty
	// key makes retries return the first id with replayed set.
	ProcessIdempotent(ctx context.Context, key string, r model.Receipt) (id string, replayed bool, err error)

	GetPoints(ctx context.Context, id string) (int, error)
	Explain(ctx context.Context, id string) (points.Result, error)
	GetReceipt(ctx context.Context, id string) (model.StoredReceipt, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	prefix       string
	maxBodyBytes int64
	logger       logger.Logger

	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	receiptsHandler *ReceiptsHandler
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithPrefix mounts the receipt routes under prefix (default "/api/v1").
func WithPrefix(prefix string) ServerOption {
	return func(s *Server) {
		s.prefix = prefix
	}
}

// WithMaxBodyBytes limits request bodies (default 1 MiB).
func WithMaxBodyBytes(n int64) ServerOption {
	return func(s *Server) {
		if n > 0 {
			s.maxBodyBytes = n
		}
	}
}

// WithLogger sets the logger used for failures and recovered panics.
func WithLogger(l logger.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...ServerOption) *Server {
	s := &Server{
		prefix:       "/api/v1",
		maxBodyBytes: 1 << 20,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("api")
	}

	s.healthHandler = NewHealthHandler()
	s.statsHandler = NewStatsHandler(statsProvider)
	s.receiptsHandler = NewReceiptsHandler(deps, s.maxBodyBytes, s.logger)
	return s
}

// Register attaches all HTTP routes to router.
func (s *Server) Register(_ context.Context, router *mux.Router) {
	if router == nil {
		panic("router is nil")
	}

	router.Use(RecoverMiddleware(s.logger))

	router.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz")).Methods(http.MethodGet)
	router.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats")).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{})).Methods(http.MethodGet)

	// Full paths, not a prefix subrouter: subroutes share the prefix matcher
	// and mux then reports a wrong method as 404.
	prefix := strings.TrimRight(s.prefix, "/")
	router.HandleFunc(prefix+"/receipts/process",
		MetricsMiddleware(s.receiptsHandler.HandleProcess, "process")).Methods(http.MethodPost)
	router.HandleFunc(prefix+"/receipts/{id}/points",
		MetricsMiddleware(s.receiptsHandler.HandleGetPoints, "points")).Methods(http.MethodGet)
	router.HandleFunc(prefix+"/receipts/{id}",
		MetricsMiddleware(s.receiptsHandler.HandleGetReceipt, "receipt")).Methods(http.MethodGet)

	router.NotFoundHandler = MetricsMiddleware(handleNotFound, "not_found")
	router.MethodNotAllowedHandler = MetricsMiddleware(handleMethodNotAllowed, "method_not_allowed")
}

func handleNotFound(w http.ResponseWriter, _ *http.Request) {
	status, msg := classify(NewKind("api.route", ErrRouteNotFound))
	writeError(w, status, msg)
}

func handleMethodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	status, msg := classify(NewKind("api.route", ErrMethodNotAllowed))
	writeError(w, status, msg)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// classify maps an error chain to a status code and client message.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrRouteNotFound):
		return http.StatusNotFound, http.StatusText(http.StatusNotFound)
	case errors.Is(err, ErrMethodNotAllowed):
		return http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed)
	case errors.Is(err, ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge, http.StatusText(http.StatusRequestEntityTooLarge)
	case errors.Is(err, ErrBadRequest), errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest, msgBadRequest
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, msgNotFound
	case errors.Is(err, service.ErrNotSaveable):
		return http.StatusInternalServerError, msgNotSaveable
	default:
		return http.StatusInternalServerError, msgInternal
	}
}
