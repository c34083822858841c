package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Runner executes one report job. Implementations receive the job itself so
// they can stream stage events and call records into its metadata, and
// return the artifact path on success.
type Runner interface {
	Run(ctx context.Context, job *Job) (artifact string, err error)
}

// CompletionSink is notified after every terminal transition, with the final
// snapshot. Used to persist report history; failures there never affect the
// job outcome.
type CompletionSink interface {
	JobCompleted(snap Snapshot)
}

// Worker drains the queue with cfg.Workers goroutines (one by default, which
// serializes report generation). At most cfg.Workers jobs are running at any
// instant; everything else waits in the queue.
type Worker struct {
	queue  *Queue
	runner Runner
	sink   CompletionSink
	cfg    *JobConfig
	logger *slog.Logger
	wg     sync.WaitGroup
}

// NewWorker creates a worker pool over the queue. sink may be nil.
func NewWorker(queue *Queue, runner Runner, sink CompletionSink, cfg *JobConfig, logger *slog.Logger) *Worker {
	if cfg == nil {
		cfg = DefaultJobConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{queue: queue, runner: runner, sink: sink, cfg: cfg, logger: logger}
}

// Run starts the worker goroutines and blocks until ctx is cancelled, then
// waits for in-flight jobs to finish (queued jobs are abandoned; the queue
// is not durable).
func (w *Worker) Run(ctx context.Context) {
	if !w.cfg.Enabled {
		w.logger.Info("job worker disabled")
		return
	}

	w.logger.Info("job worker starting",
		"workers", w.cfg.Workers,
		"pollInterval", w.cfg.PollInterval.String(),
		"jobTimeout", w.cfg.JobTimeout.String())

	for i := 0; i < w.cfg.Workers; i++ {
		w.wg.Add(1)
		go func(workerID int) {
			defer w.wg.Done()
			w.loop(ctx, workerID)
		}(i)
	}

	<-ctx.Done()
	w.logger.Info("job worker shutting down, waiting for in-flight jobs")
	w.wg.Wait()
	w.logger.Info("job worker stopped")
}

// loop is the main poll loop of one worker goroutine.
func (w *Worker) loop(ctx context.Context, workerID int) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Drain everything pending before sleeping again.
			for {
				if ctx.Err() != nil {
					return
				}
				job := w.queue.Dequeue()
				if job == nil {
					break
				}
				w.process(ctx, workerID, job)
			}
		}
	}
}

// process runs one job to a terminal state under the watchdog deadline.
func (w *Worker) process(ctx context.Context, workerID int, job *Job) {
	w.logger.Info("processing job", "workerID", workerID, "jobID", job.ID())

	runCtx := ctx
	var cancel context.CancelFunc
	if w.cfg.JobTimeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, w.cfg.JobTimeout)
		defer cancel()
	}

	artifact, err := w.runSafely(runCtx, job)
	now := time.Now()

	if err != nil {
		w.logger.Error("job failed", "workerID", workerID, "jobID", job.ID(), "error", err)
		job.markError(err.Error(), now)
	} else {
		w.logger.Info("job completed", "workerID", workerID, "jobID", job.ID(), "artifact", artifact)
		job.markSuccess(artifact, now)
	}

	w.queue.Complete(job)

	if w.sink != nil {
		w.sink.JobCompleted(job.snapshot(0))
	}
}

// runSafely invokes the runner, converting a panic in the pipeline into a
// job error instead of taking the worker down.
func (w *Worker) runSafely(ctx context.Context, job *Job) (artifact string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("report generation panicked: %v", r)
		}
	}()
	return w.runner.Run(ctx, job)
}
