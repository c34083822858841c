package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// SubmitHandler handles POST /api/reports/v1/jobs.
//
// The response is an immediate job snapshot: 202 with status "queued" in the
// normal path. When the fast path is enabled and the request scopes exactly
// one run without attachments, the report is generated inline and the
// response already carries the terminal status.
func SubmitHandler(queue *Queue, runner Runner, cfg *JobConfig, logger *slog.Logger) http.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var params Params
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}

		if err := params.Validate(cfg.DefaultProjectID); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		if cfg.FastPathSingleRun && runner != nil && params.RunID != 0 && !params.IncludeAttachments {
			writeJSON(w, http.StatusOK, runInline(r.Context(), queue, runner, cfg, params, logger))
			return
		}

		job, err := queue.Submit(params)
		if err != nil {
			if errors.Is(err, ErrQueueFull) {
				writeError(w, http.StatusServiceUnavailable, "report queue is full, try again later")
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		snap, _ := queue.Get(job.ID())
		writeJSON(w, http.StatusAccepted, snap)
	}
}

// runInline executes a job synchronously on the request goroutine. The job
// is adopted into the queue's history afterward so its id stays resolvable
// by the regular status endpoint.
func runInline(ctx context.Context, queue *Queue, runner Runner, cfg *JobConfig, params Params, logger *slog.Logger) Snapshot {
	job := newJob(params)
	job.markRunning(time.Now())

	if cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.JobTimeout)
		defer cancel()
	}

	artifact, err := runner.Run(ctx, job)
	if err != nil {
		logger.Error("fast-path job failed", "jobID", job.ID(), "error", err)
		job.markError(err.Error(), time.Now())
	} else {
		job.markSuccess(artifact, time.Now())
	}

	queue.Adopt(job)
	return job.snapshot(0)
}

// GetJobHandler handles GET /api/reports/v1/jobs/{jobId}.
func GetJobHandler(queue *Queue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID := chi.URLParam(r, "jobId")
		if jobID == "" {
			writeError(w, http.StatusBadRequest, "missing job ID")
			return
		}

		snap, ok := queue.Get(jobID)
		if !ok {
			writeError(w, http.StatusNotFound, fmt.Sprintf("job %q not found", jobID))
			return
		}

		writeJSON(w, http.StatusOK, snap)
	}
}

// HealthHandler handles GET /api/reports/v1/health with queue counters for
// operational monitoring. It grants no job control.
func HealthHandler(queue *Queue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, queue.Stats())
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
