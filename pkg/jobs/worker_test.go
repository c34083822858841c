package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner implements Runner for tests.
type fakeRunner struct {
	delay    time.Duration
	err      error
	panicMsg string

	mu         sync.Mutex
	active     int32
	maxActive  int32
	runCount   int
	lastJobIDs []string
}

func (f *fakeRunner) Run(ctx context.Context, job *Job) (string, error) {
	cur := atomic.AddInt32(&f.active, 1)
	defer atomic.AddInt32(&f.active, -1)
	for {
		prev := atomic.LoadInt32(&f.maxActive)
		if cur <= prev || atomic.CompareAndSwapInt32(&f.maxActive, prev, cur) {
			break
		}
	}

	f.mu.Lock()
	f.runCount++
	f.lastJobIDs = append(f.lastJobIDs, job.ID())
	f.mu.Unlock()

	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.err != nil {
		return "", f.err
	}
	job.SetStage("rendering_report", nil)
	return "/reports/out.html", nil
}

// captureSink records completion snapshots.
type captureSink struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (c *captureSink) JobCompleted(snap Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snaps = append(c.snaps, snap)
}

func (c *captureSink) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.snaps)
}

func fastConfig() *JobConfig {
	cfg := DefaultJobConfig()
	cfg.PollInterval = 10 * time.Millisecond
	return cfg
}

func TestWorkerProcessesJobToSuccess(t *testing.T) {
	cfg := fastConfig()
	q := NewQueue(cfg)
	runner := &fakeRunner{}
	sink := &captureSink{}
	w := NewWorker(q, runner, sink, cfg, nil)

	job, err := q.Submit(testParams())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go w.Run(ctx)

	require.Eventually(t, func() bool {
		snap, ok := q.Get(job.ID())
		return ok && snap.Status == StateSuccess
	}, 2*time.Second, 10*time.Millisecond, "job should complete")

	snap, _ := q.Get(job.ID())
	assert.Equal(t, "/reports/out.html", snap.Result)
	assert.NotNil(t, snap.StartedAt)
	assert.NotNil(t, snap.CompletedAt)

	require.Eventually(t, func() bool { return sink.len() == 1 }, time.Second, 10*time.Millisecond)
}

func TestWorkerMarksErrorOnFailure(t *testing.T) {
	cfg := fastConfig()
	q := NewQueue(cfg)
	runner := &fakeRunner{err: errors.New("plan fetch failed")}
	w := NewWorker(q, runner, nil, cfg, nil)

	job, err := q.Submit(testParams())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go w.Run(ctx)

	require.Eventually(t, func() bool {
		snap, ok := q.Get(job.ID())
		return ok && snap.Status == StateError
	}, 2*time.Second, 10*time.Millisecond)

	snap, _ := q.Get(job.ID())
	assert.Equal(t, "plan fetch failed", snap.Error)
}

func TestWorkerRecoversFromPanic(t *testing.T) {
	cfg := fastConfig()
	q := NewQueue(cfg)
	runner := &fakeRunner{panicMsg: "boom"}
	w := NewWorker(q, runner, nil, cfg, nil)

	bad, err := q.Submit(testParams())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go w.Run(ctx)

	require.Eventually(t, func() bool {
		snap, ok := q.Get(bad.ID())
		return ok && snap.Status == StateError
	}, 2*time.Second, 10*time.Millisecond)

	snap, _ := q.Get(bad.ID())
	assert.Contains(t, snap.Error, "panicked")
}

func TestSingleWorkerSerializesJobs(t *testing.T) {
	cfg := fastConfig()
	cfg.Workers = 1
	q := NewQueue(cfg)
	runner := &fakeRunner{delay: 50 * time.Millisecond}
	w := NewWorker(q, runner, nil, cfg, nil)

	var ids []string
	for i := 0; i < 4; i++ {
		job, err := q.Submit(testParams())
		require.NoError(t, err)
		ids = append(ids, job.ID())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go w.Run(ctx)

	require.Eventually(t, func() bool {
		snap, ok := q.Get(ids[len(ids)-1])
		return ok && snap.Status.Terminal()
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, int32(1), atomic.LoadInt32(&runner.maxActive),
		"at most one job may run at any instant")

	// FIFO order.
	runner.mu.Lock()
	defer runner.mu.Unlock()
	assert.Equal(t, ids, runner.lastJobIDs)
}

func TestWorkerWatchdogTimesOutStuckJob(t *testing.T) {
	cfg := fastConfig()
	cfg.JobTimeout = 30 * time.Millisecond
	q := NewQueue(cfg)
	runner := &fakeRunner{delay: 5 * time.Second}
	w := NewWorker(q, runner, nil, cfg, nil)

	job, err := q.Submit(testParams())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	go w.Run(ctx)

	require.Eventually(t, func() bool {
		snap, ok := q.Get(job.ID())
		return ok && snap.Status == StateError
	}, 3*time.Second, 10*time.Millisecond, "watchdog should cancel a stuck job")
}

func TestDisabledWorkerDoesNothing(t *testing.T) {
	cfg := fastConfig()
	cfg.Enabled = false
	q := NewQueue(cfg)
	runner := &fakeRunner{}
	w := NewWorker(q, runner, nil, cfg, nil)

	_, err := q.Submit(testParams())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	w.Run(ctx) // returns immediately

	runner.mu.Lock()
	defer runner.mu.Unlock()
	assert.Zero(t, runner.runCount)
}
