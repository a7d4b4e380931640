// Package publish drives the asynchronous publish workflow: one create
// request against the publish endpoint, then fixed-interval polling of the
// task-status endpoint until a terminal state.
package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrTaskNotFound marks an expired or unknown task id; polling must stop
// immediately on it rather than riding out the attempt cap.
var ErrTaskNotFound = errors.New("publish task not found")

// ProgressItem is one server-reported progress line for a task.
type ProgressItem struct {
	Message string `json:"message"`
}

// Result is the terminal payload of a completed task.
type Result struct {
	Message        string `json:"message"`
	UpdatedPageURL string `json:"updated_page_url,omitempty"`
}

// Task is the task-status endpoint response.
type Task struct {
	Status   string         `json:"status"`
	Progress []ProgressItem `json:"progress"`
	Result   *Result        `json:"result,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// Task status values.
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// CreateResult is the outcome of a publish-create call. Two success shapes
// exist: the asynchronous one carries a task id to poll, the legacy
// synchronous one carries the final result directly.
type CreateResult struct {
	TaskID  string
	Status  string
	Message string
	Sync    bool
	Result  *Result
}

type createResponse struct {
	TaskID  string `json:"taskId"`
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Client talks to the publish-create and task-status endpoints.
type Client struct {
	httpClient *http.Client
	publishURL string
	statusBase string
	log        *zap.Logger
}

func NewClient(publishURL string, log *zap.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		publishURL: publishURL,
		statusBase: strings.TrimSuffix(publishURL, "/update-page"),
		log:        log,
	}
}

// Create issues the publish request for a preview session.
func (c *Client) Create(ctx context.Context, previewID string) (CreateResult, error) {
	payload, err := json.Marshal(map[string]string{"preview_id": previewID})
	if err != nil {
		return CreateResult{}, fmt.Errorf("failed to encode publish request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.publishURL, bytes.NewReader(payload))
	if err != nil {
		return CreateResult{}, fmt.Errorf("failed to build publish request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return CreateResult{}, fmt.Errorf("publish request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return CreateResult{}, fmt.Errorf("failed to read publish response: %w", err)
	}

	var parsed createResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return CreateResult{}, fmt.Errorf("failed to decode publish response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if parsed.Error != "" {
			return CreateResult{}, fmt.Errorf("publish rejected: %s", parsed.Error)
		}
		return CreateResult{}, fmt.Errorf("publish rejected: server responded with %d", resp.StatusCode)
	}

	if parsed.TaskID != "" {
		return CreateResult{
			TaskID:  parsed.TaskID,
			Status:  parsed.Status,
			Message: parsed.Message,
		}, nil
	}

	// Legacy synchronous shape: the response body is the final result.
	var result Result
	if err := json.Unmarshal(body, &result); err != nil {
		return CreateResult{}, fmt.Errorf("failed to decode publish result: %w", err)
	}
	c.log.Info("publish returned synchronous result", zap.String("preview_id", previewID))
	return CreateResult{Sync: true, Result: &result}, nil
}

// TaskStatus fetches the current state of a task. A 404 maps to
// ErrTaskNotFound.
func (c *Client) TaskStatus(ctx context.Context, taskID string) (Task, error) {
	url := c.statusBase + "/task/" + taskID

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Task{}, fmt.Errorf("failed to build status request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Task{}, fmt.Errorf("status request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return Task{}, ErrTaskNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Task{}, fmt.Errorf("status request failed: server responded with %d", resp.StatusCode)
	}

	var task Task
	if err := json.NewDecoder(resp.Body).Decode(&task); err != nil {
		return Task{}, fmt.Errorf("failed to decode status response: %w", err)
	}
	return task, nil
}
