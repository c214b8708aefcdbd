// Package server runs the worker's probe endpoints. The worker has no API, so
// this plain net/http server exposes liveness and metrics for the supervisor.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Timestamp string `json:"timestamp"`
}

// HealthHandler returns a handler for the /healthz endpoint.
func HealthHandler(service string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := HealthResponse{
			Status:    "ok",
			Service:   service,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(response)
	}
}

// NewMux routes /healthz and /metrics.
func NewMux(service string) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", HealthHandler(service))
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// ProbeServer serves the worker's probe endpoints.
type ProbeServer struct {
	server *http.Server
	logger *slog.Logger
}

// NewProbeServer creates a probe server listening on addr.
func NewProbeServer(addr, service string, logger *slog.Logger) *ProbeServer {
	return &ProbeServer{
		server: &http.Server{
			Addr:         addr,
			Handler:      NewMux(service),
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Start listens until Shutdown is called. It returns nil after Shutdown.
func (p *ProbeServer) Start() error {
	p.logger.Info("starting probe server", "address", p.server.Addr)
	if err := p.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the probe server.
func (p *ProbeServer) Shutdown(ctx context.Context) error {
	return p.server.Shutdown(ctx)
}
