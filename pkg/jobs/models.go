// Package jobs implements the asynchronous report-generation subsystem:
// an in-memory FIFO queue, a polling worker, and the HTTP API for
// submitting jobs and observing their progress.
package jobs

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle state of a report job.
type State string

const (
	StateQueued  State = "queued"
	StateRunning State = "running"
	StateSuccess State = "success"
	StateError   State = "error"
)

// Terminal returns true if the state is final.
func (s State) Terminal() bool {
	return s == StateSuccess || s == StateError
}

// apiCallsDisplayLimit bounds the trailing call log kept on each job for
// display. The call count itself is never capped.
const apiCallsDisplayLimit = 10

var (
	// ErrQueueFull is returned by Submit when the queue is at its depth bound.
	ErrQueueFull = errors.New("job queue is full")
	// ErrNotFound is returned for unknown or evicted job ids.
	ErrNotFound = errors.New("job not found")
	// ErrInvalidParams wraps every Params validation failure.
	ErrInvalidParams = errors.New("invalid job parameters")
)

// Params are the immutable request parameters of a job. Exactly one scope
// among PlanID / RunID / RunIDs must be populated.
type Params struct {
	ProjectID          int   `json:"project"`
	PlanID             int   `json:"plan,omitempty"`
	RunID              int   `json:"run,omitempty"`
	RunIDs             []int `json:"run_ids,omitempty"`
	IncludeAttachments bool  `json:"include_attachments,omitempty"`
}

// Validate checks the scope rules, defaulting the project id when absent.
func (p *Params) Validate(defaultProject int) error {
	if p.ProjectID == 0 {
		p.ProjectID = defaultProject
	}
	if p.ProjectID == 0 {
		return fmt.Errorf("%w: project is required", ErrInvalidParams)
	}

	scopes := 0
	if p.PlanID != 0 {
		scopes++
	}
	if p.RunID != 0 {
		scopes++
	}
	if len(p.RunIDs) > 0 {
		scopes++
	}
	if scopes == 0 {
		return fmt.Errorf("%w: one of plan, run, or run_ids is required", ErrInvalidParams)
	}
	if scopes > 1 {
		return fmt.Errorf("%w: plan, run, and run_ids are mutually exclusive", ErrInvalidParams)
	}
	return nil
}

// CallRecord is one logical external API call made on behalf of a job.
type CallRecord struct {
	Kind      string `json:"kind"`
	Endpoint  string `json:"endpoint"`
	ElapsedMs int64  `json:"elapsed_ms"`
	Status    string `json:"status"`
	Attempts  int    `json:"attempts"`
}

// ProgressUpdate is one entry of a job's append-only progress history.
type ProgressUpdate struct {
	Stage     string         `json:"stage"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Job is one report-generation request and its tracked lifecycle. Its
// progress metadata is mutated by the worker while polling clients read it
// concurrently, so all access goes through the job's mutex and readers only
// ever see full snapshots.
type Job struct {
	mu sync.Mutex

	id          string
	state       State
	params      Params
	createdAt   time.Time
	startedAt   *time.Time
	completedAt *time.Time
	result      string
	errMsg      string

	stage        string
	stagePayload map[string]any
	updates      []ProgressUpdate

	generatedAt  *time.Time
	durationMs   int64
	apiCallCount int
	apiCalls     []CallRecord
}

// newJob allocates a queued job with a fresh id.
func newJob(params Params) *Job {
	return &Job{
		id:        uuid.New().String(),
		state:     StateQueued,
		params:    params,
		createdAt: time.Now(),
	}
}

// ID returns the job's immutable identifier.
func (j *Job) ID() string { return j.id }

// JobParams returns the job's immutable request parameters.
func (j *Job) JobParams() Params { return j.params }

// SetStage appends a progress update and makes it the current stage.
// The payload map is copied so later caller mutations cannot tear a record.
func (j *Job) SetStage(stage string, payload map[string]any) {
	var copied map[string]any
	if len(payload) > 0 {
		copied = make(map[string]any, len(payload))
		for k, v := range payload {
			copied[k] = v
		}
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	j.stage = stage
	j.stagePayload = copied
	j.updates = append(j.updates, ProgressUpdate{Stage: stage, Payload: copied, Timestamp: time.Now()})
}

// RecordAPICall appends an external call record, keeping only the most
// recent apiCallsDisplayLimit entries while counting every call.
func (j *Job) RecordAPICall(kind, endpoint string, elapsed time.Duration, status string, attempts int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.apiCallCount++
	j.apiCalls = append(j.apiCalls, CallRecord{
		Kind:      kind,
		Endpoint:  endpoint,
		ElapsedMs: elapsed.Milliseconds(),
		Status:    status,
		Attempts:  attempts,
	})
	if len(j.apiCalls) > apiCallsDisplayLimit {
		j.apiCalls = j.apiCalls[len(j.apiCalls)-apiCallsDisplayLimit:]
	}
}

// Finalize records the completion metadata written on success.
func (j *Job) Finalize(generatedAt time.Time, duration time.Duration) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.generatedAt = &generatedAt
	j.durationMs = duration.Milliseconds()
}

// markRunning transitions queued -> running. No-op on any other state.
func (j *Job) markRunning(now time.Time) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state != StateQueued {
		return
	}
	j.state = StateRunning
	j.startedAt = &now
}

// markSuccess transitions running -> success. Terminal states never change.
func (j *Job) markSuccess(result string, now time.Time) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state.Terminal() {
		return
	}
	j.state = StateSuccess
	j.result = result
	j.completedAt = &now
}

// markError transitions to error with a display message. Terminal states
// never change.
func (j *Job) markError(msg string, now time.Time) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state.Terminal() {
		return
	}
	j.state = StateError
	j.errMsg = msg
	j.completedAt = &now
}

// StartedAt returns the time the job was dequeued, or nil while queued.
func (j *Job) StartedAt() *time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.startedAt
}

// Snapshot is a point-in-time, fully decoupled copy of a job, safe to
// serialize while the worker keeps appending progress.
type Snapshot struct {
	ID            string     `json:"id"`
	Status        State      `json:"status"`
	Params        Params     `json:"params"`
	CreatedAt     time.Time  `json:"created_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	QueuePosition int        `json:"queue_position"`
	Result        string     `json:"result,omitempty"`
	Error         string     `json:"error,omitempty"`
	Meta          Meta       `json:"meta"`
}

// Meta is the snapshot of a job's progress record.
type Meta struct {
	Stage           string           `json:"stage,omitempty"`
	StagePayload    map[string]any   `json:"stage_payload,omitempty"`
	ProgressUpdates []ProgressUpdate `json:"progress_updates"`
	GeneratedAt     *time.Time       `json:"generated_at,omitempty"`
	DurationMs      int64            `json:"duration_ms,omitempty"`
	APICallCount    int              `json:"api_call_count"`
	APICalls        []CallRecord     `json:"api_calls,omitempty"`
}

// snapshot copies the job under its lock. queuePosition is supplied by the
// queue, which knows the pending order.
func (j *Job) snapshot(queuePosition int) Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()

	snap := Snapshot{
		ID:            j.id,
		Status:        j.state,
		Params:        j.params,
		CreatedAt:     j.createdAt,
		StartedAt:     j.startedAt,
		CompletedAt:   j.completedAt,
		QueuePosition: queuePosition,
		Result:        j.result,
		Error:         j.errMsg,
		Meta: Meta{
			Stage:        j.stage,
			StagePayload: j.stagePayload,
			GeneratedAt:  j.generatedAt,
			DurationMs:   j.durationMs,
			APICallCount: j.apiCallCount,
		},
	}
	snap.Meta.ProgressUpdates = append([]ProgressUpdate(nil), j.updates...)
	snap.Meta.APICalls = append([]CallRecord(nil), j.apiCalls...)
	return snap
}
