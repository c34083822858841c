package jobs

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T, cfg *JobConfig, runner Runner) (*Queue, http.Handler) {
	t.Helper()
	if cfg == nil {
		cfg = DefaultJobConfig()
	}
	q := NewQueue(cfg)
	return q, Router(q, runner, cfg, nil)
}

func submitBody(t *testing.T, params Params) *bytes.Reader {
	t.Helper()
	b, err := json.Marshal(params)
	require.NoError(t, err)
	return bytes.NewReader(b)
}

func TestSubmitReturnsQueuedSnapshot(t *testing.T) {
	_, router := newTestRouter(t, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/jobs", submitBody(t, Params{ProjectID: 1, PlanID: 241}))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)

	var snap Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.NotEmpty(t, snap.ID)
	assert.Equal(t, StateQueued, snap.Status)
	assert.Equal(t, 0, snap.QueuePosition)
}

func TestSubmitRejectsInvalidParams(t *testing.T) {
	_, router := newTestRouter(t, nil, nil)

	cases := []struct {
		name string
		body string
	}{
		{"no scope", `{"project":1}`},
		{"two scopes", `{"project":1,"plan":2,"run":3}`},
		{"missing project", `{"plan":2}`},
		{"garbage", `{notjson`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/jobs", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestSubmitReportsOverload(t *testing.T) {
	cfg := DefaultJobConfig()
	cfg.MaxQueueDepth = 1
	_, router := newTestRouter(t, cfg, nil)

	req := httptest.NewRequest(http.MethodPost, "/jobs", submitBody(t, Params{ProjectID: 1, PlanID: 1}))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/jobs", submitBody(t, Params{ProjectID: 1, PlanID: 2}))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGetJobNotFound(t *testing.T) {
	_, router := newTestRouter(t, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/jobs/no-such-id", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetJobReturnsSnapshot(t *testing.T) {
	q, router := newTestRouter(t, nil, nil)

	job, err := q.Submit(Params{ProjectID: 1, RunID: 9})
	require.NoError(t, err)
	job.SetStage("initializing", nil)

	req := httptest.NewRequest(http.MethodGet, "/jobs/"+job.ID(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var snap Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, "initializing", snap.Meta.Stage)
	require.Len(t, snap.Meta.ProgressUpdates, 1)
}

func TestHealthExposesQueueCounters(t *testing.T) {
	q, router := newTestRouter(t, nil, nil)

	_, err := q.Submit(Params{ProjectID: 1, PlanID: 3})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var stats Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.Queued)
	assert.Equal(t, 60, stats.HistoryLimit)
	assert.NotEmpty(t, stats.LastJobID)
}

func TestFastPathRunsSingleRunInline(t *testing.T) {
	cfg := DefaultJobConfig()
	cfg.FastPathSingleRun = true
	runner := &fakeRunner{}
	q, router := newTestRouter(t, cfg, runner)

	req := httptest.NewRequest(http.MethodPost, "/jobs", submitBody(t, Params{ProjectID: 1, RunID: 42}))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var snap Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, StateSuccess, snap.Status, "submission response carries the terminal status")
	assert.Equal(t, "/reports/out.html", snap.Result)

	// The job stays resolvable through the status endpoint.
	req = httptest.NewRequest(http.MethodGet, "/jobs/"+snap.ID, nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Plan-scoped submissions are still queued.
	req = httptest.NewRequest(http.MethodPost, "/jobs", submitBody(t, Params{ProjectID: 1, PlanID: 241}))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	stats := q.Stats()
	assert.Equal(t, 1, stats.Queued)
}
