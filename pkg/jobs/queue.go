package jobs

import (
	"sync"
	"time"
)

// Queue is the in-memory FIFO of pending jobs plus a bounded history of
// completed ones. It holds no lock across pipeline execution; the worker
// only takes the queue lock for dequeue and completion bookkeeping.
//
// A restart empties the queue; the upstream service remains the source of
// truth, so lost jobs can simply be resubmitted.
type Queue struct {
	mu sync.Mutex

	pending      []*Job
	jobs         map[string]*Job // every resolvable job: pending, running, retained history
	history      []string        // completed job ids in completion order
	historyLimit int
	maxDepth     int
	running      int
	lastJobID    string
}

// NewQueue creates an empty queue with the config's depth and history bounds.
func NewQueue(cfg *JobConfig) *Queue {
	if cfg == nil {
		cfg = DefaultJobConfig()
	}
	return &Queue{
		jobs:         make(map[string]*Job),
		historyLimit: cfg.HistoryLimit,
		maxDepth:     cfg.MaxQueueDepth,
	}
}

// Submit validates nothing (callers validate Params first), allocates a
// queued job, and appends it to the tail. It never blocks; when the queue is
// at its depth bound it returns ErrQueueFull so callers can surface an
// overloaded error instead of growing memory without bound.
func (q *Queue) Submit(params Params) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.maxDepth > 0 && len(q.pending) >= q.maxDepth {
		return nil, ErrQueueFull
	}

	job := newJob(params)
	q.pending = append(q.pending, job)
	q.jobs[job.id] = job
	q.lastJobID = job.id
	return job, nil
}

// Dequeue pops the head of the queue and transitions it to running.
// Returns nil when nothing is pending.
func (q *Queue) Dequeue() *Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return nil
	}
	job := q.pending[0]
	q.pending = q.pending[1:]
	q.running++

	job.markRunning(time.Now())
	return job
}

// Complete moves a previously dequeued job into the bounded history,
// evicting the oldest retained job when over the limit. The job must
// already be in a terminal state.
func (q *Queue) Complete(job *Job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.running--
	q.retain(job)
}

// Adopt registers a job that ran outside the queue (the synchronous fast
// path) so its id stays resolvable afterward.
func (q *Queue) Adopt(job *Job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs[job.id] = job
	q.lastJobID = job.id
	q.retain(job)
}

// retain appends to history and evicts beyond the bound. Must be called
// with q.mu held.
func (q *Queue) retain(job *Job) {
	q.history = append(q.history, job.id)
	for q.historyLimit > 0 && len(q.history) > q.historyLimit {
		evicted := q.history[0]
		q.history = q.history[1:]
		delete(q.jobs, evicted)
	}
}

// Get returns a snapshot of the job with its live queue position, which is
// recomputed on every read because the queue may have shrunk since the last
// poll. ok is false for unknown or evicted ids.
func (q *Queue) Get(id string) (Snapshot, bool) {
	q.mu.Lock()
	job, ok := q.jobs[id]
	position := 0
	if ok {
		for i, p := range q.pending {
			if p.id == id {
				position = i
				break
			}
		}
	}
	q.mu.Unlock()

	if !ok {
		return Snapshot{}, false
	}
	return job.snapshot(position), true
}

// Stats describes the queue for operational monitoring.
type Stats struct {
	Queued       int    `json:"queued"`
	Running      int    `json:"running"`
	Size         int    `json:"size"` // queued + running
	HistoryLimit int    `json:"history_limit"`
	LastJobID    string `json:"last_job_id,omitempty"`
	LastJobState State  `json:"last_job_status,omitempty"`
}

// Stats returns a consistent view of the queue counters.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	stats := Stats{
		Queued:       len(q.pending),
		Running:      q.running,
		Size:         len(q.pending) + q.running,
		HistoryLimit: q.historyLimit,
		LastJobID:    q.lastJobID,
	}
	last := q.jobs[q.lastJobID]
	q.mu.Unlock()

	if last != nil {
		stats.LastJobState = last.snapshot(0).Status
	}
	return stats
}
