package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"batch-collector/internal/resilience/circuitbreaker"
	"batch-collector/internal/resilience/ratecontrol"
	"batch-collector/internal/usecase/schedule"
)

// HealthServer serves the worker's health and status endpoints.
//
// Endpoints:
//   - GET /health: liveness, always 200
//   - GET /health/ready: 200 once SetReady(true), 503 before
//   - GET /health/upstreams: breaker and rate state; 503 while any breaker is open
//   - GET /health/jobs: scheduler registration and run state
type HealthServer struct {
	addr    string
	logger  *slog.Logger
	isReady *atomic.Bool
	server  *http.Server

	breakers  *circuitbreaker.Registry
	rates     *ratecontrol.Registry
	jobStatus func() schedule.Status
}

type healthResponse struct {
	Status string `json:"status"`
}

type upstreamsResponse struct {
	Status   string                 `json:"status"`
	Circuits []circuitbreaker.Stats `json:"circuits"`
	Rates    []ratecontrol.Stats    `json:"rates"`
}

// HealthOption configures optional status sources.
type HealthOption func(*HealthServer)

// WithUpstreams exposes breaker and rate controller state.
func WithUpstreams(breakers *circuitbreaker.Registry, rates *ratecontrol.Registry) HealthOption {
	return func(h *HealthServer) {
		h.breakers = breakers
		h.rates = rates
	}
}

// WithJobStatus exposes the scheduler view, typically Scheduler.Status.
func WithJobStatus(fn func() schedule.Status) HealthOption {
	return func(h *HealthServer) { h.jobStatus = fn }
}

// NewHealthServer creates a server listening on addr. It starts not ready.
func NewHealthServer(addr string, logger *slog.Logger, opts ...HealthOption) *HealthServer {
	h := &HealthServer{
		addr:    addr,
		logger:  logger,
		isReady: &atomic.Bool{},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handler returns the endpoint mux.
func (h *HealthServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.handleLiveness)
	mux.HandleFunc("GET /health/ready", h.handleReadiness)
	mux.HandleFunc("GET /health/upstreams", h.handleUpstreams)
	mux.HandleFunc("GET /health/jobs", h.handleJobs)
	return mux
}

// Start serves until ctx is canceled, then shuts down within 5 seconds.
// It returns http.ErrServerClosed after a graceful shutdown.
func (h *HealthServer) Start(ctx context.Context) error {
	h.server = &http.Server{
		Addr:              h.addr,
		Handler:           h.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		h.logger.Info("health server starting", slog.String("addr", h.addr))
		if err := h.server.ListenAndServe(); err != nil {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		h.logger.Info("health server shutting down")
		if err := h.server.Shutdown(shutdownCtx); err != nil {
			h.logger.Error("health server shutdown failed", slog.Any("error", err))
			return err
		}
		h.logger.Info("health server stopped")
		return http.ErrServerClosed

	case err := <-errChan:
		if errors.Is(err, http.ErrServerClosed) {
			return err
		}
		h.logger.Error("health server failed", slog.Any("error", err))
		return err
	}
}

// SetReady changes the /health/ready answer.
func (h *HealthServer) SetReady(ready bool) {
	h.isReady.Store(ready)
	h.logger.Info("health server readiness changed", slog.Bool("ready", ready))
}

func (h *HealthServer) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

func (h *HealthServer) handleReadiness(w http.ResponseWriter, _ *http.Request) {
	if h.isReady.Load() {
		h.writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
		return
	}
	h.writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "not ready"})
}

func (h *HealthServer) handleUpstreams(w http.ResponseWriter, _ *http.Request) {
	resp := upstreamsResponse{
		Status:   "ok",
		Circuits: []circuitbreaker.Stats{},
		Rates:    []ratecontrol.Stats{},
	}
	code := http.StatusOK
	if h.breakers != nil {
		resp.Circuits = h.breakers.Snapshot()
		if h.breakers.AnyOpen() {
			resp.Status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}
	if h.rates != nil {
		resp.Rates = h.rates.Snapshot()
	}
	h.writeJSON(w, code, resp)
}

func (h *HealthServer) handleJobs(w http.ResponseWriter, _ *http.Request) {
	if h.jobStatus == nil {
		h.writeJSON(w, http.StatusOK, schedule.Status{Jobs: []schedule.JobStatus{}})
		return
	}
	h.writeJSON(w, http.StatusOK, h.jobStatus())
}

func (h *HealthServer) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode health response", slog.Any("error", err))
	}
}
