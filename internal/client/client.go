// Package client provides a REST client for the Gaia Mnemosyne backend.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/raphaelgruber/mnemo-go/internal/metrics"
	"github.com/raphaelgruber/mnemo-go/internal/models"
	"github.com/raphaelgruber/mnemo-go/internal/notify"
)

// ErrBackendUnreachable wraps every transport failure, non-2xx response and
// open-circuit rejection. Callers are not told which one occurred.
var ErrBackendUnreachable = errors.New("backend unreachable")

// UnreachableMessage is the user-visible notification for a failed call.
const UnreachableMessage = "Backend unreachable"

// DefaultTimeout bounds each request when no timeout is configured.
const DefaultTimeout = 10 * time.Second

// Client is a REST client for the Gaia Mnemosyne backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *breaker
	notifier   notify.Notifier
	metrics    *metrics.Collector
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithNotifier sets where "backend unreachable" notifications go.
func WithNotifier(n notify.Notifier) Option {
	return func(c *Client) { c.notifier = n }
}

// WithMetrics records the timing of every call.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Client) { c.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client for the backend at baseURL, e.g. http://localhost:7700.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
		notifier:   notify.Discard,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.breaker = newBreaker("mnemo-rest", c.logger)
	return c
}

// BaseURL returns the backend base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// Execute sends one request and decodes a JSON response into result.
// Any failure is reported once through the notifier and returned wrapped in
// ErrBackendUnreachable. Nothing is retried.
func (c *Client) Execute(ctx context.Context, op, method, path string, body, result any) error {
	start := time.Now()
	err := c.breaker.execute(func() error {
		return c.roundTrip(ctx, method, path, body, result)
	})
	if c.metrics != nil {
		c.metrics.RecordTiming(op, time.Since(start), err)
	}
	if err == nil {
		return nil
	}

	err = fmt.Errorf("%w: %s %s: %v", ErrBackendUnreachable, method, path, err)
	if ctx.Err() == nil {
		c.logger.Warn("backend request failed", "op", op, "error", err)
		c.notifier.Notify(UnreachableMessage)
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, method, path string, body, result any) error {
	var reader io.Reader
	if body != nil {
		reqBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(reqBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("server error: %s - %s", resp.Status, truncate(string(respBody), 200))
	}

	if result != nil && len(bytes.TrimSpace(respBody)) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

// =============================================================================
// JOB OPERATIONS
// =============================================================================

// ListJobs returns the backend's jobs, optionally including finished ones.
func (c *Client) ListJobs(ctx context.Context, includeHistory bool) ([]models.Job, error) {
	path := "/v1/jobs"
	if includeHistory {
		path += "?include_history=true"
	}
	var jobs []models.Job
	if err := c.Execute(ctx, "jobs_list", http.MethodGet, path, nil, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// CreateJob asks the backend to create a job of the given type.
func (c *Client) CreateJob(ctx context.Context, jobType string) error {
	return c.Execute(ctx, "jobs_create", http.MethodPost, "/v1/jobs/create",
		map[string]string{"job_type": jobType}, nil)
}

// RunJob starts an existing job.
func (c *Client) RunJob(ctx context.Context, jobID string) error {
	return c.Execute(ctx, "jobs_run", http.MethodPost, "/v1/jobs/run",
		map[string]string{"job_id": jobID}, nil)
}

// AbortJob stops a running job.
func (c *Client) AbortJob(ctx context.Context, jobID string) error {
	return c.Execute(ctx, "jobs_abort", http.MethodPost, "/v1/jobs/abort",
		map[string]string{"job_id": jobID}, nil)
}

// IngestionMetrics returns counters for the last run, or for jobID when set.
func (c *Client) IngestionMetrics(ctx context.Context, jobID string) (models.IngestionMetrics, error) {
	path := "/v1/ingestion/metrics"
	if jobID != "" {
		path += "?job_id=" + url.QueryEscape(jobID)
	}
	var m models.IngestionMetrics
	err := c.Execute(ctx, "ingestion_metrics", http.MethodGet, path, nil, &m)
	return m, err
}

// =============================================================================
// SYSTEM OPERATIONS
// =============================================================================

// Health returns the status of the backend and its dependencies.
func (c *Client) Health(ctx context.Context) (models.Health, error) {
	var h models.Health
	err := c.Execute(ctx, "health", http.MethodGet, "/v1/health", nil, &h)
	return h, err
}

// Providers returns which ingestion sources are enabled.
func (c *Client) Providers(ctx context.Context) (models.Providers, error) {
	var p models.Providers
	err := c.Execute(ctx, "providers", http.MethodGet, "/v1/providers", nil, &p)
	return p, err
}

// =============================================================================
// GRAPH OPERATIONS
// =============================================================================

// GraphSnapshot returns the full knowledge graph.
func (c *Client) GraphSnapshot(ctx context.Context) (models.GraphSnapshot, error) {
	var snap models.GraphSnapshot
	err := c.Execute(ctx, "graph_snapshot", http.MethodGet, "/v1/graph/snapshot", nil, &snap)
	return snap, err
}

// GraphNode returns one node with its neighbors.
func (c *Client) GraphNode(ctx context.Context, id string) (models.GraphNodeDetail, error) {
	var node models.GraphNodeDetail
	err := c.Execute(ctx, "graph_node", http.MethodGet, "/v1/graph/node/"+url.PathEscape(id), nil, &node)
	return node, err
}

// =============================================================================
// RAG OPERATIONS
// =============================================================================

// RAGQuery asks a question. A nil session starts a new one.
func (c *Client) RAGQuery(ctx context.Context, session *string, query string) (models.RAGQueryResponse, error) {
	var resp models.RAGQueryResponse
	err := c.Execute(ctx, "rag_query", http.MethodPost, "/v1/rag/query",
		models.RAGQueryRequest{Session: session, Query: query}, &resp)
	return resp, err
}

// RAGMetadata describes the retrieval behind the last answer.
func (c *Client) RAGMetadata(ctx context.Context) (models.RAGMetadata, error) {
	var meta models.RAGMetadata
	err := c.Execute(ctx, "rag_metadata", http.MethodGet, "/v1/rag/metadata", nil, &meta)
	return meta, err
}

// RAGDebug returns the ranked retrieval candidates for a query.
func (c *Client) RAGDebug(ctx context.Context, query string) (models.RAGDebugResponse, error) {
	var resp models.RAGDebugResponse
	err := c.Execute(ctx, "rag_debug", http.MethodPost, "/v1/rag/debug",
		map[string]string{"query": query}, &resp)
	return resp, err
}
