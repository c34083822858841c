// Package testrail provides a typed client for the remote test-management
// API. It hides pagination and transient upstream faults from callers and
// memoizes idempotent responses through pkg/cache.
package testrail

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/zhafran-bvt/testrail-reporter-sub000/pkg/cache"
)

// apiPrefix is the path prefix every endpoint is resolved against.
const apiPrefix = "/index.php?/api/v2/"

// CallRecorder receives one record per logical API call (a retried call is
// still one record, carrying the total attempt count and final status).
// Implementations must be safe for use from the worker goroutine.
type CallRecorder interface {
	RecordAPICall(kind, endpoint string, elapsed time.Duration, status string, attempts int)
}

// Config holds connection and resilience settings for the client.
type Config struct {
	BaseURL  string        `yaml:"base_url"`
	Username string        `yaml:"username"`
	APIKey   string        `yaml:"api_key"`
	Timeout  time.Duration `yaml:"timeout"` // per-request timeout

	MaxAttempts int           `yaml:"max_attempts"` // retry budget per logical call
	BackoffBase time.Duration `yaml:"backoff_base"`
	CacheTTL    time.Duration `yaml:"cache_ttl"` // 0 uses the cache default
}

// DefaultConfig returns client defaults; BaseURL and credentials must be
// supplied by the caller.
func DefaultConfig() *Config {
	return &Config{
		Timeout:     30 * time.Second,
		MaxAttempts: 3,
		BackoffBase: 500 * time.Millisecond,
	}
}

// Client performs typed calls against the remote API. It is safe for
// concurrent use. Per-job instrumentation is attached with WithRecorder.
type Client struct {
	baseURL  string
	username string
	apiKey   string
	hc       *http.Client
	cache    *cache.TTLCache
	cacheTTL time.Duration

	maxAttempts int
	backoffBase time.Duration

	breaker  *gobreaker.CircuitBreaker
	recorder CallRecorder
	logger   *slog.Logger
}

// NewClient creates a Client. c may be nil-cached (pass a nil *TTLCache to
// disable memoization).
func NewClient(cfg *Config, store *cache.TTLCache, logger *slog.Logger) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 3
	}
	backoffBase := cfg.BackoffBase
	if backoffBase <= 0 {
		backoffBase = 500 * time.Millisecond
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "testrail",
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
	})

	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		username:    cfg.Username,
		apiKey:      cfg.APIKey,
		hc:          &http.Client{Timeout: timeout},
		cache:       store,
		cacheTTL:    cfg.CacheTTL,
		maxAttempts: maxAttempts,
		backoffBase: backoffBase,
		breaker:     breaker,
		logger:      logger,
	}
}

// WithRecorder returns a copy of the client that reports every logical call
// to rec. The copy shares the underlying cache, breaker, and HTTP transport.
func (c *Client) WithRecorder(rec CallRecorder) *Client {
	clone := *c
	clone.recorder = rec
	return &clone
}

// GetPlan fetches a test plan including its entries and their runs.
func (c *Client) GetPlan(ctx context.Context, planID int) (*Plan, error) {
	var plan Plan
	if err := c.getJSON(ctx, "get_plan", fmt.Sprintf("get_plan/%d", planID), &plan); err != nil {
		return nil, err
	}
	return &plan, nil
}

// GetRun fetches a single run with its status counters.
func (c *Client) GetRun(ctx context.Context, runID int) (*Run, error) {
	var run Run
	if err := c.getJSON(ctx, "get_run", fmt.Sprintf("get_run/%d", runID), &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// GetTests fetches all tests of a run, following pagination. Pages are
// concatenated in page order so output is deterministic.
func (c *Client) GetTests(ctx context.Context, runID int) ([]Test, error) {
	endpoint := fmt.Sprintf("get_tests/%d", runID)
	var all []Test
	for endpoint != "" {
		var page testsPage
		if err := c.getJSON(ctx, "get_tests", endpoint, &page); err != nil {
			return nil, err
		}
		all = append(all, page.Tests...)
		endpoint = nextEndpoint(page.Links)
	}
	return all, nil
}

// GetResultsForRun fetches all recorded results of a run, following
// pagination.
func (c *Client) GetResultsForRun(ctx context.Context, runID int) ([]Result, error) {
	endpoint := fmt.Sprintf("get_results_for_run/%d", runID)
	var all []Result
	for endpoint != "" {
		var page resultsPage
		if err := c.getJSON(ctx, "get_results_for_run", endpoint, &page); err != nil {
			return nil, err
		}
		all = append(all, page.Results...)
		endpoint = nextEndpoint(page.Links)
	}
	return all, nil
}

// GetUsers fetches the users visible within a project, following pagination.
func (c *Client) GetUsers(ctx context.Context, projectID int) ([]User, error) {
	endpoint := fmt.Sprintf("get_users&project_id=%d", projectID)
	var all []User
	for endpoint != "" {
		var page usersPage
		if err := c.getJSON(ctx, "get_users", endpoint, &page); err != nil {
			return nil, err
		}
		all = append(all, page.Users...)
		endpoint = nextEndpoint(page.Links)
	}
	return all, nil
}

// GetPriorities fetches all case priorities.
func (c *Client) GetPriorities(ctx context.Context) ([]Priority, error) {
	var priorities []Priority
	if err := c.getJSON(ctx, "get_priorities", "get_priorities", &priorities); err != nil {
		return nil, err
	}
	return priorities, nil
}

// GetStatuses fetches all test status definitions.
func (c *Client) GetStatuses(ctx context.Context) ([]Status, error) {
	var statuses []Status
	if err := c.getJSON(ctx, "get_statuses", "get_statuses", &statuses); err != nil {
		return nil, err
	}
	return statuses, nil
}

// GetAttachmentsForRun fetches attachment metadata for a run, following
// pagination.
func (c *Client) GetAttachmentsForRun(ctx context.Context, runID int) ([]Attachment, error) {
	endpoint := fmt.Sprintf("get_attachments_for_run/%d", runID)
	var all []Attachment
	for endpoint != "" {
		var page attachmentsPage
		if err := c.getJSON(ctx, "get_attachments_for_run", endpoint, &page); err != nil {
			return nil, err
		}
		all = append(all, page.Attachments...)
		endpoint = nextEndpoint(page.Links)
	}
	return all, nil
}

// DownloadAttachment fetches the raw bytes of one attachment. Downloads are
// never cached.
func (c *Client) DownloadAttachment(ctx context.Context, attachmentID string) ([]byte, error) {
	return c.do(ctx, "get_attachment", "get_attachment/"+attachmentID)
}

// getJSON resolves a GET-style call through the cache, dispatching upstream
// only on a miss, and decodes the response body into out. The cache key is
// the endpoint string, which embeds every query parameter.
func (c *Client) getJSON(ctx context.Context, op, endpoint string, out any) error {
	if cached, ok := c.cache.Get(endpoint); ok {
		return json.Unmarshal(cached.([]byte), out)
	}

	body, err := c.do(ctx, op, endpoint)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		// A payload the client cannot decode is not retryable.
		return &UpstreamError{Op: op, Endpoint: endpoint, Transient: false,
			Err: fmt.Errorf("malformed payload: %w", err)}
	}

	// No negative caching: only decodable 2xx bodies are stored.
	c.cache.Set(endpoint, body, c.cacheTTL)
	return nil
}

// apiResponse carries a round-trip outcome through the circuit breaker.
type apiResponse struct {
	status int
	body   []byte
}

// do performs one logical call with retry on transient failures. It records
// exactly one call into the attached recorder, with the final status and the
// total number of attempts.
func (c *Client) do(ctx context.Context, op, endpoint string) ([]byte, error) {
	start := time.Now()

	var (
		lastStatus int
		lastErr    error
		attempts   int
	)

	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		attempts++

		resp, err := c.roundTrip(ctx, endpoint)
		if resp != nil {
			lastStatus = resp.status
		}
		lastErr = err

		if err == nil && resp.status/100 == 2 {
			c.record(op, endpoint, time.Since(start), strconv.Itoa(resp.status), attempts)
			return resp.body, nil
		}

		transient := false
		switch {
		case err != nil:
			transient = transientErr(err)
		default:
			transient = transientStatus(resp.status)
			lastErr = fmt.Errorf("unexpected response: %s", strings.TrimSpace(string(resp.body)))
		}

		if !transient || attempt == c.maxAttempts-1 {
			break
		}

		c.logger.Warn("transient upstream failure, retrying",
			"op", op, "endpoint", endpoint, "attempt", attempts, "status", lastStatus, "error", lastErr)

		if serr := c.sleep(ctx, attempt); serr != nil {
			lastErr = serr
			break
		}
	}

	finalStatus := "error"
	if lastStatus > 0 {
		finalStatus = strconv.Itoa(lastStatus)
	}
	c.record(op, endpoint, time.Since(start), finalStatus, attempts)

	return nil, &UpstreamError{
		Op:         op,
		Endpoint:   endpoint,
		StatusCode: lastStatus,
		Transient:  lastStatus == 0 && transientErr(lastErr) || transientStatus(lastStatus),
		Err:        lastErr,
	}
}

// roundTrip performs a single HTTP attempt through the circuit breaker.
// 429 and 5xx responses count as breaker failures; other statuses pass
// through for the caller to classify.
func (c *Client) roundTrip(ctx context.Context, endpoint string) (*apiResponse, error) {
	result, err := c.breaker.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+apiPrefix+endpoint, nil)
		if err != nil {
			return nil, err
		}
		req.SetBasicAuth(c.username, c.apiKey)
		req.Header.Set("Accept", "application/json")

		res, err := c.hc.Do(req)
		if err != nil {
			return nil, err
		}
		defer res.Body.Close()

		body, err := io.ReadAll(res.Body)
		if err != nil {
			return nil, err
		}

		resp := &apiResponse{status: res.StatusCode, body: body}
		if transientStatus(res.StatusCode) {
			return resp, fmt.Errorf("upstream status %d", res.StatusCode)
		}
		return resp, nil
	})

	resp, _ := result.(*apiResponse)
	if err != nil {
		// Keep the response (if any) so the caller sees the real status.
		if resp != nil {
			return resp, nil
		}
		return nil, err
	}
	return resp, nil
}

// sleep blocks for the exponential backoff delay of the given attempt,
// plus jitter, or until ctx is done. The queue lock is never held here.
func (c *Client) sleep(ctx context.Context, attempt int) error {
	delay := c.backoffBase<<uint(attempt) + time.Duration(rand.Int63n(int64(c.backoffBase)))
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (c *Client) record(kind, endpoint string, elapsed time.Duration, status string, attempts int) {
	if c.recorder != nil {
		c.recorder.RecordAPICall(kind, endpoint, elapsed, status, attempts)
	}
}

// nextEndpoint extracts the follow-up endpoint from a page's cursor block.
// The upstream returns absolute API paths; they are normalized back to the
// endpoint form used for dispatch and cache keys.
func nextEndpoint(links pageLinks) string {
	if links.Next == nil || *links.Next == "" {
		return ""
	}
	next := *links.Next
	next = strings.TrimPrefix(next, apiPrefix)
	next = strings.TrimPrefix(next, "/api/v2/")
	return next
}
