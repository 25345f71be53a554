package chainscope

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"sync"
	"time"
)

// DefaultHTTPTimeout defines the timeout used by clients created without a
// custom http.Client. It is intentionally short to avoid hanging network calls.
const DefaultHTTPTimeout = 15 * time.Second

// Client wraps the HTTP interactions with the ChainScope REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client

	mu     sync.RWMutex
	keyID  string
	secret string
}

// ToolDescriptor describes a tool exposed by the dispatcher.
type ToolDescriptor struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ToolRequest is the payload for a synchronous tool invocation or a task
// submission.
type ToolRequest struct {
	ID      string         `json:"id,omitempty"`
	Tool    string         `json:"tool"`
	Chain   string         `json:"chain,omitempty"`
	Address string         `json:"address,omitempty"`
	Args    map[string]any `json:"args,omitempty"`
}

// ToolResult contains the output of a completed tool invocation.
type ToolResult struct {
	Tool        string `json:"tool"`
	Chain       string `json:"chain,omitempty"`
	Output      string `json:"output"`
	ReportJSON  string `json:"report_json,omitempty"`
	ChainID     string `json:"chain_id,omitempty"`
	BlockNumber string `json:"block_number,omitempty"`
	CreatedAt   int64  `json:"created_at"`
}

// Task mirrors the server side task state.
type Task struct {
	ID         string          `json:"id"`
	Tool       string          `json:"tool"`
	Chain      string          `json:"chain,omitempty"`
	Address    string          `json:"address,omitempty"`
	Args       map[string]any  `json:"args,omitempty"`
	Status     string          `json:"status"`
	Attempts   int             `json:"attempts"`
	MaxRetries int             `json:"max_retries"`
	LastError  string          `json:"last_error,omitempty"`
	ErrorCode  string          `json:"error_code,omitempty"`
	Result     *TaskResult     `json:"result,omitempty"`
	CreatedAt  int64           `json:"created_at"`
	UpdatedAt  int64           `json:"updated_at"`
}

// TaskResult holds the execution output attached to a succeeded task.
type TaskResult struct {
	Output      string `json:"output"`
	ReportJSON  string `json:"report_json,omitempty"`
	ChainID     string `json:"chain_id,omitempty"`
	BlockNumber string `json:"block_number,omitempty"`
}

// TaskStats aggregates task counts per status.
type TaskStats struct {
	Total           int   `json:"total"`
	Pending         int   `json:"pending"`
	Running         int   `json:"running"`
	Succeeded       int   `json:"succeeded"`
	Failed          int   `json:"failed"`
	OldestUpdatedAt int64 `json:"oldest_updated_at,omitempty"`
	NewestUpdatedAt int64 `json:"newest_updated_at,omitempty"`
}

// ListTasksOptions narrows the result set of ListTasks.
type ListTasksOptions struct {
	Limit    int
	Offset   int
	Statuses []string
	Query    string
}

// APIError represents server side validation or internal errors.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("chainscope api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("chainscope api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient instantiates a client for the ChainScope API. When httpClient is
// nil, a default client with a sensible timeout is used.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// SetAPIKey stores the key pair used for subsequent calls. Pass empty values
// when the server runs with authentication disabled.
func (c *Client) SetAPIKey(keyID, secret string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keyID = keyID
	c.secret = secret
}

// Tools lists the tools registered on the server.
func (c *Client) Tools(ctx context.Context) ([]ToolDescriptor, error) {
	var descriptors []ToolDescriptor
	if err := c.get(ctx, "/api/v1/tools", &descriptors); err != nil {
		return nil, err
	}
	return descriptors, nil
}

// Invoke executes a tool synchronously and returns its result.
func (c *Client) Invoke(ctx context.Context, req ToolRequest) (ToolResult, error) {
	var result ToolResult
	if err := c.post(ctx, "/api/v1/tools/invoke", req, &result); err != nil {
		return ToolResult{}, err
	}
	return result, nil
}

// SubmitTask enqueues an asynchronous tool execution.
func (c *Client) SubmitTask(ctx context.Context, req ToolRequest) (Task, error) {
	var created Task
	if err := c.post(ctx, "/api/v1/tasks", req, &created); err != nil {
		return Task{}, err
	}
	return created, nil
}

// GetTask fetches task details by identifier.
func (c *Client) GetTask(ctx context.Context, taskID string) (Task, error) {
	var detail Task
	endpoint := "/api/v1/tasks/" + url.PathEscape(taskID)
	if err := c.get(ctx, endpoint, &detail); err != nil {
		return Task{}, err
	}
	return detail, nil
}

// ListTasks returns tasks matching the supplied filter options.
func (c *Client) ListTasks(ctx context.Context, opts ListTasksOptions) ([]Task, error) {
	query := url.Values{}
	if opts.Limit > 0 {
		query.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		query.Set("offset", strconv.Itoa(opts.Offset))
	}
	if len(opts.Statuses) > 0 {
		statuses := opts.Statuses[0]
		for _, status := range opts.Statuses[1:] {
			statuses += "," + status
		}
		query.Set("status", statuses)
	}
	if opts.Query != "" {
		query.Set("q", opts.Query)
	}
	endpoint := "/api/v1/tasks"
	if encoded := query.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}
	var tasks []Task
	if err := c.get(ctx, endpoint, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// TaskStats returns aggregate task counts.
func (c *Client) TaskStats(ctx context.Context) (TaskStats, error) {
	var stats TaskStats
	if err := c.get(ctx, "/api/v1/tasks/stats", &stats); err != nil {
		return TaskStats{}, err
	}
	return stats, nil
}

// History returns the most recent tool execution records.
func (c *Client) History(ctx context.Context, limit int) ([]ToolResult, error) {
	endpoint := "/api/v1/history"
	if limit > 0 {
		endpoint += "?limit=" + strconv.Itoa(limit)
	}
	var results []ToolResult
	if err := c.get(ctx, endpoint, &results); err != nil {
		return nil, err
	}
	return results, nil
}

// WaitForTask polls the task until it reaches a terminal status or the context
// is cancelled.
func (c *Client) WaitForTask(ctx context.Context, taskID string, interval time.Duration) (Task, error) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		detail, err := c.GetTask(ctx, taskID)
		if err != nil {
			return Task{}, err
		}
		switch detail.Status {
		case "succeeded", "failed":
			return detail, nil
		}
		select {
		case <-ctx.Done():
			return Task{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	rel := &url.URL{Path: path.Join(c.baseURL.Path, parsed.Path), RawQuery: parsed.RawQuery}
	u := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.mu.RLock()
	keyID, secret := c.keyID, c.secret
	c.mu.RUnlock()
	if keyID != "" {
		req.Header.Set("Authorization", "Bearer "+keyID+":"+secret)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr APIError
		apiErr.StatusCode = resp.StatusCode
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		if len(data) > 0 {
			_ = json.Unmarshal(data, &apiErr)
		}
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return &apiErr
	}

	if out == nil {
		return nil
	}
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
