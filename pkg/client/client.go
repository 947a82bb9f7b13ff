package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rmax-ai/lambdanodes/pkg/catalog"
	"github.com/rmax-ai/lambdanodes/pkg/pipeline"
)

// DefaultEndpoint is the daemon address used when none is given.
const DefaultEndpoint = "http://127.0.0.1:3000"

// Client is the lambdanodes daemon SDK client.
type Client struct {
	endpoint string
	http     *http.Client
	backoff  RetryDelay
}

// NewClient creates a new lambdanodes client.
// endpoint defaults to DefaultEndpoint if empty.
func NewClient(endpoint string) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Client{
		endpoint: endpoint,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
		backoff: DefaultReadyBackoff(),
	}
}

// Endpoint returns the daemon base URL.
func (c *Client) Endpoint() string { return c.endpoint }

// do sends a JSON request and decodes a JSON answer into out. Transport
// failures wrap ErrNetworkFailure. Non-2xx answers become *StatusError.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNetworkFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := &StatusError{StatusCode: resp.StatusCode}
		var eb errorBody
		if err := json.NewDecoder(resp.Body).Decode(&eb); err == nil {
			se.Code = eb.Error
			se.Details = eb.Details
			se.Violations = eb.Violations
		}
		if se.Code == "" {
			se.Code = http.StatusText(resp.StatusCode)
		}
		return se
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func withPage(path string, p Page, extra url.Values) string {
	q := url.Values{}
	for k, v := range extra {
		q[k] = v
	}
	if p.Limit > 0 {
		q.Set("limit", strconv.Itoa(p.Limit))
	}
	if p.Offset > 0 {
		q.Set("offset", strconv.Itoa(p.Offset))
	}
	if len(q) == 0 {
		return path
	}
	return path + "?" + q.Encode()
}

// Ping checks the health of the daemon.
func (c *Client) Ping(ctx context.Context) (Status, error) {
	var status Status
	err := c.do(ctx, http.MethodGet, "/health", nil, &status)
	return status, err
}

// WaitReady pings the daemon until it answers, backing off between attempts.
func (c *Client) WaitReady(ctx context.Context, attempts int) error {
	var last error
	for i := 0; i < attempts; i++ {
		_, err := c.Ping(ctx)
		if err == nil {
			return nil
		}
		last = err
		select {
		case <-time.After(c.backoff.Delay(i)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("daemon not ready after %d attempts: %w", attempts, last)
}

// ListNodes returns a page of the catalog ordered by name.
func (c *Client) ListNodes(ctx context.Context, p Page) ([]catalog.NodeDefinition, error) {
	var defs []catalog.NodeDefinition
	err := c.do(ctx, http.MethodGet, withPage("/api/nodes", p, nil), nil, &defs)
	return defs, err
}

// CountNodes returns the catalog size.
func (c *Client) CountNodes(ctx context.Context) (int, error) {
	var n countBody
	err := c.do(ctx, http.MethodGet, "/api/nodes/count", nil, &n)
	return n.Count, err
}

func (c *Client) GetNode(ctx context.Context, id string) (catalog.NodeDefinition, error) {
	var def catalog.NodeDefinition
	err := c.do(ctx, http.MethodGet, "/api/nodes/"+url.PathEscape(id), nil, &def)
	return def, err
}

func (c *Client) CreateNode(ctx context.Context, d catalog.Draft) (catalog.NodeDefinition, error) {
	var def catalog.NodeDefinition
	err := c.do(ctx, http.MethodPost, "/api/nodes", d, &def)
	return def, err
}

// UpdateNode replaces a definition's attributes. The daemon reconciles every
// stored pipeline that places it.
func (c *Client) UpdateNode(ctx context.Context, id string, d catalog.Draft) (NodeUpdate, error) {
	var upd NodeUpdate
	err := c.do(ctx, http.MethodPut, "/api/nodes/"+url.PathEscape(id), d, &upd)
	return upd, err
}

func (c *Client) DeleteNode(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/nodes/"+url.PathEscape(id), nil, nil)
}

// SubmitPipeline stores a new pipeline. Every failure is reported as
// ErrNetworkFailure; a daemon rejection also unwraps to its *StatusError.
func (c *Client) SubmitPipeline(ctx context.Context, sub pipeline.Submission) (pipeline.Record, error) {
	var rec pipeline.Record
	if err := c.do(ctx, http.MethodPost, "/api/pipelines", sub, &rec); err != nil {
		if errors.Is(err, ErrNetworkFailure) {
			return pipeline.Record{}, err
		}
		return pipeline.Record{}, fmt.Errorf("%w: %w", ErrNetworkFailure, err)
	}
	return rec, nil
}

// UpdatePipeline replaces a stored pipeline and its route.
func (c *Client) UpdatePipeline(ctx context.Context, id string, sub pipeline.Submission) (pipeline.Record, error) {
	var rec pipeline.Record
	err := c.do(ctx, http.MethodPut, "/api/pipelines/"+url.PathEscape(id), sub, &rec)
	return rec, err
}

// ValidatePipeline asks the daemon to validate doc without storing it.
func (c *Client) ValidatePipeline(ctx context.Context, doc pipeline.Document) (pipeline.Report, error) {
	var report pipeline.Report
	err := c.do(ctx, http.MethodPost, "/api/pipelines/validate", doc, &report)
	return report, err
}

// ReconcilePipeline reconciles a stored pipeline against the current catalog.
func (c *Client) ReconcilePipeline(ctx context.Context, id string) (Reconciliation, error) {
	var res Reconciliation
	err := c.do(ctx, http.MethodPost, "/api/pipelines/"+url.PathEscape(id)+"/reconcile", nil, &res)
	return res, err
}

func (c *Client) ListPipelines(ctx context.Context, p Page) ([]pipeline.Record, error) {
	var recs []pipeline.Record
	err := c.do(ctx, http.MethodGet, withPage("/api/pipelines", p, nil), nil, &recs)
	return recs, err
}

func (c *Client) GetPipeline(ctx context.Context, id string) (pipeline.Record, error) {
	var rec pipeline.Record
	err := c.do(ctx, http.MethodGet, "/api/pipelines/"+url.PathEscape(id), nil, &rec)
	return rec, err
}

func (c *Client) DeletePipeline(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/pipelines/"+url.PathEscape(id), nil, nil)
}

func (c *Client) ListRoutes(ctx context.Context, p Page) ([]Route, error) {
	var routes []Route
	err := c.do(ctx, http.MethodGet, withPage("/api/routes", p, nil), nil, &routes)
	return routes, err
}

// ListHistory returns runs newest first. An empty pipelineID lists all runs.
func (c *Client) ListHistory(ctx context.Context, pipelineID string, p Page) ([]HistoryEntry, error) {
	extra := url.Values{}
	if pipelineID != "" {
		extra.Set("pipelineId", pipelineID)
	}
	var entries []HistoryEntry
	err := c.do(ctx, http.MethodGet, withPage("/api/history", p, extra), nil, &entries)
	return entries, err
}

func (c *Client) ListLogs(ctx context.Context, p Page) ([]LogEntry, error) {
	var logs []LogEntry
	err := c.do(ctx, http.MethodGet, withPage("/api/logs", p, nil), nil, &logs)
	return logs, err
}

// Catalog exposes the daemon's node catalog as a catalog.Reader so graphs
// can be edited and reconciled against it.
func (c *Client) Catalog() catalog.Reader {
	return remoteCatalog{c: c}
}

const catalogPageSize = 100

type remoteCatalog struct {
	c *Client
}

func (r remoteCatalog) List(ctx context.Context) ([]catalog.NodeDefinition, error) {
	all := []catalog.NodeDefinition{}
	for offset := 0; ; offset += catalogPageSize {
		defs, err := r.c.ListNodes(ctx, Page{Limit: catalogPageSize, Offset: offset})
		if err != nil {
			return nil, err
		}
		all = append(all, defs...)
		if len(defs) < catalogPageSize {
			return all, nil
		}
	}
}

func (r remoteCatalog) Get(ctx context.Context, id string) (catalog.NodeDefinition, error) {
	def, err := r.c.GetNode(ctx, id)
	var se *StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
		return catalog.NodeDefinition{}, catalog.NotFound(id)
	}
	return def, err
}
