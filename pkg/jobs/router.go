package jobs

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
)

// Router creates a chi.Router for the report job API.
func Router(queue *Queue, runner Runner, cfg *JobConfig, logger *slog.Logger) chi.Router {
	r := chi.NewRouter()

	r.Post("/jobs", SubmitHandler(queue, runner, cfg, logger))
	r.Get("/jobs/{jobId}", GetJobHandler(queue))
	r.Get("/health", HealthHandler(queue))

	return r
}
