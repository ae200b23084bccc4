// Package handler implements the server's HTTP surface.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/telprobe/telprobe/internal/domain"
	"github.com/telprobe/telprobe/internal/postgres"
	"github.com/telprobe/telprobe/internal/queue"
	redisstore "github.com/telprobe/telprobe/internal/redis"
	"github.com/telprobe/telprobe/pkg/telemetry"
)

// REST handles HTTP requests for the validation server.
type REST struct {
	queue  *queue.Queue
	cache  redisstore.RunCache
	repo   postgres.RunRepository
	logger *slog.Logger
}

// NewREST creates a new REST handler.
func NewREST(q *queue.Queue, cache redisstore.RunCache, repo postgres.RunRepository, logger *slog.Logger) *REST {
	return &REST{queue: q, cache: cache, repo: repo, logger: logger}
}

// SubmitExecutionRequest is the JSON body for POST /api/v1/executions.
type SubmitExecutionRequest struct {
	FlowData json.RawMessage `json:"flow_data"`
}

// SubmitExecutionResponse is the 202 response body.
type SubmitExecutionResponse struct {
	ExecutionID string    `json:"execution_id"`
	Queued      bool      `json:"queued"`
	CreatedAt   time.Time `json:"created_at"`
}

// SubmitExecution handles POST /api/v1/executions.
func (h *REST) SubmitExecution(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("server").Start(r.Context(), "server.submit_execution")
	defer span.End()

	var req SubmitExecutionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.FlowData) == 0 || string(req.FlowData) == "null" {
		writeError(w, http.StatusBadRequest, "field 'flow_data' is required")
		return
	}
	// Reject flows the workers would discard anyway.
	if _, err := domain.ParseFlow(req.FlowData); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	executionID := uuid.New().String()
	span.SetAttributes(attribute.String("execution.id", executionID))

	if !h.queue.Enqueue(ctx, executionID, req.FlowData) {
		writeError(w, http.StatusServiceUnavailable, "failed to enqueue execution")
		return
	}

	telemetry.APIExecutionsSubmitted.Inc()
	h.logger.Info("execution submitted", slog.String("execution_id", executionID))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(SubmitExecutionResponse{
		ExecutionID: executionID,
		Queued:      true,
		CreatedAt:   time.Now().UTC(),
	})
}

// GetRun handles GET /api/v1/runs/{id}. Reads the Redis cache first and
// falls back to Postgres when the cached entry expired.
func (h *REST) GetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")
	if runID == "" {
		writeError(w, http.StatusBadRequest, "run ID is required")
		return
	}

	ctx := r.Context()

	run, err := h.cache.GetRun(ctx, runID)
	if err != nil {
		var notFound *domain.RunNotFoundError
		if !errors.As(err, &notFound) {
			h.logger.Error("redis error", slog.String("run_id", runID), slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "failed to retrieve run")
			return
		}

		run, err = h.repo.GetByID(ctx, runID)
		if err != nil {
			if errors.As(err, &notFound) {
				writeError(w, http.StatusNotFound, "run not found")
				return
			}
			h.logger.Error("postgres error", slog.String("run_id", runID), slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "failed to retrieve run")
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(run)
}

// QueueSizeResponse is the GET /api/v1/queue response body.
type QueueSizeResponse struct {
	Size int `json:"size"`
}

// QueueSize handles GET /api/v1/queue.
func (h *REST) QueueSize(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(QueueSizeResponse{Size: h.queue.Size(r.Context())})
}

// ClearQueue handles DELETE /api/v1/queue.
func (h *REST) ClearQueue(w http.ResponseWriter, r *http.Request) {
	if !h.queue.Clear(r.Context()) {
		writeError(w, http.StatusServiceUnavailable, "failed to clear queue")
		return
	}
	h.logger.Info("queue cleared")
	w.WriteHeader(http.StatusNoContent)
}

// Healthz handles GET /healthz.
func (h *REST) Healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// Readyz handles GET /readyz — checks Redis connectivity.
func (h *REST) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if _, err := h.cache.GetStatus(ctx, "__readyz__"); err != nil {
		var notFound *domain.RunNotFoundError
		if !errors.As(err, &notFound) {
			writeError(w, http.StatusServiceUnavailable, "redis not ready")
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
