package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/zhafran-bvt/testrail-reporter-sub000/pkg/jobs"
)

const apiPrefix = "/api/reports/v1"

type reporterClient struct {
	baseURL string
	http    *http.Client
}

func newClient() *reporterClient {
	return &reporterClient{
		baseURL: serverURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// getJSON performs a GET request and decodes the response.
func (c *reporterClient) getJSON(path string, v any) error {
	resp, err := c.http.Get(c.baseURL + apiPrefix + path)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))
	}

	return json.NewDecoder(resp.Body).Decode(v)
}

// submit posts a job request. The server answers 202 for queued jobs and
// 200 when the fast path completed the job inline.
func (c *reporterClient) submit(params jobs.Params) (jobs.Snapshot, error) {
	var snap jobs.Snapshot

	data, err := json.Marshal(params)
	if err != nil {
		return snap, fmt.Errorf("marshal error: %w", err)
	}

	resp, err := c.http.Post(c.baseURL+apiPrefix+"/jobs", "application/json", bytes.NewReader(data))
	if err != nil {
		return snap, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		body, _ := io.ReadAll(resp.Body)
		return snap, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return snap, fmt.Errorf("decode error: %w", err)
	}
	return snap, nil
}

// job fetches the current snapshot of one job.
func (c *reporterClient) job(id string) (jobs.Snapshot, error) {
	var snap jobs.Snapshot
	if err := c.getJSON("/jobs/"+id, &snap); err != nil {
		return snap, err
	}
	return snap, nil
}
