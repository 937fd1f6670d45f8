package inference

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jo-hoe/chestxray/internal/common"
)

const (
	DefaultAPIName          = "predict"
	DefaultPollInterval     = time.Second
	DefaultMaxAttempts      = 30
	DefaultRequestTimeout   = 10 * time.Second
	DefaultMaxResponseBytes = 32 << 20
)

// Config holds the connection settings of the inference service
type Config struct {
	BaseURL          string
	APIName          string
	PollInterval     time.Duration
	MaxAttempts      int
	RequestTimeout   time.Duration
	MaxResponseBytes int64
}

// Result is the first element of a completed job's output
type Result struct {
	Predictions Predictions `json:"predictions"`
	// Heatmap is a base64 encoded image, optionally as a data URI
	Heatmap string `json:"heatmap"`
}

// Client talks to a Gradio style asynchronous inference endpoint: a job is submitted
// with one POST and its outcome fetched by polling an event stream.
type Client struct {
	baseURL          string
	apiName          string
	pollInterval     time.Duration
	maxAttempts      int
	requestTimeout   time.Duration
	maxResponseBytes int64
	httpClient       *http.Client
}

// NewClient creates a client, filling unset config values with defaults
func NewClient(config Config) *Client {
	c := &Client{
		baseURL:          strings.TrimRight(config.BaseURL, "/"),
		apiName:          config.APIName,
		pollInterval:     config.PollInterval,
		maxAttempts:      config.MaxAttempts,
		requestTimeout:   config.RequestTimeout,
		maxResponseBytes: config.MaxResponseBytes,
		httpClient:       &http.Client{},
	}
	if c.apiName == "" {
		c.apiName = DefaultAPIName
	}
	if c.pollInterval <= 0 {
		c.pollInterval = DefaultPollInterval
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = DefaultMaxAttempts
	}
	if c.requestTimeout <= 0 {
		c.requestTimeout = DefaultRequestTimeout
	}
	if c.maxResponseBytes <= 0 {
		c.maxResponseBytes = DefaultMaxResponseBytes
	}
	return c
}

type submitRequest struct {
	Data []string `json:"data"`
}

type submitResponse struct {
	EventID string `json:"event_id"`
}

// Predict submits a base64 encoded image and waits for its result
func (c *Client) Predict(ctx context.Context, base64Image string) (*Result, error) {
	eventID, err := c.Submit(ctx, base64Image)
	if err != nil {
		return nil, err
	}
	return c.Poll(ctx, eventID)
}

// Submit starts an inference job and returns its event id
func (c *Client) Submit(ctx context.Context, base64Image string) (string, error) {
	body, err := json.Marshal(submitRequest{Data: []string{base64Image}})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.callURL(), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: failed to create request: %v", common.ErrSubmission, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrSubmission, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("%w: failed to read response: %v", common.ErrSubmission, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: status %d: %s", common.ErrSubmission, resp.StatusCode, truncate(payload, 256))
	}

	var submitted submitResponse
	if err := json.Unmarshal(payload, &submitted); err != nil {
		return "", fmt.Errorf("%w: invalid response: %v", common.ErrSubmission, err)
	}
	if submitted.EventID == "" {
		return "", fmt.Errorf("%w: response did not contain an event_id", common.ErrSubmission)
	}

	slog.Debug("inference job submitted", "event_id", submitted.EventID)
	return submitted.EventID, nil
}

// Poll fetches the job's event stream until it completes, fails or the attempts run out.
// Attempts are spaced by the poll interval without backoff.
func (c *Client) Poll(ctx context.Context, eventID string) (*Result, error) {
	url := c.callURL() + "/" + eventID

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		result, err := c.pollOnce(ctx, url)
		if result != nil {
			slog.Debug("inference job completed", "event_id", eventID, "attempt", attempt)
			return result, nil
		}
		if errors.Is(err, common.ErrResponseFormat) || errors.Is(err, common.ErrInferenceFailed) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("polling event %s: %w", eventID, ctx.Err())
		}
		if err != nil {
			slog.Debug("inference poll attempt failed", "event_id", eventID, "attempt", attempt, "error", err)
		}

		if attempt == c.maxAttempts {
			break
		}
		timer := time.NewTimer(c.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("polling event %s: %w", eventID, ctx.Err())
		case <-timer.C:
		}
	}

	return nil, fmt.Errorf("%w: event %s not complete after %d attempts", common.ErrPollTimeout, eventID, c.maxAttempts)
}

// pollOnce performs a single GET. It returns a result once the job completed, nil
// without error when the job is still running, and an error for transport problems
// or terminal job states.
func (c *Client) pollOnce(ctx context.Context, url string) (*Result, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, c.maxResponseBytes))
		return nil, fmt.Errorf("poll returned status %d", resp.StatusCode)
	}

	events, err := ParseEvents(io.LimitReader(resp.Body, c.maxResponseBytes))
	if err != nil {
		return nil, err
	}

	for _, event := range events {
		switch event.Name {
		case EventComplete:
			result, err := parseCompletion(event)
			if err != nil && event.Partial {
				// cut off by the size limit or a dropped connection
				return nil, fmt.Errorf("incomplete %s event: %v", EventComplete, err)
			}
			return result, err
		case EventError:
			return nil, fmt.Errorf("%w: %s", common.ErrInferenceFailed, strings.TrimSpace(event.Data))
		}
	}
	return nil, nil
}

func parseCompletion(event Event) (*Result, error) {
	var results []Result
	if err := json.Unmarshal([]byte(event.Data), &results); err != nil {
		return nil, fmt.Errorf("%w: complete event payload: %v", common.ErrResponseFormat, err)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("%w: complete event carried no results", common.ErrResponseFormat)
	}
	result := results[0]
	if len(result.Predictions) == 0 {
		return nil, fmt.Errorf("%w: result has no predictions", common.ErrResponseFormat)
	}
	if result.Heatmap == "" {
		return nil, fmt.Errorf("%w: result has no heatmap", common.ErrResponseFormat)
	}
	return &result, nil
}

// DecodeHeatmap returns the image bytes of the result's heatmap. A data URI prefix
// such as "data:image/png;base64," is accepted.
func (r *Result) DecodeHeatmap() ([]byte, error) {
	encoded := strings.TrimSpace(r.Heatmap)
	if strings.HasPrefix(encoded, "data:") {
		_, after, found := strings.Cut(encoded, ",")
		if !found {
			return nil, fmt.Errorf("%w: malformed heatmap data URI", common.ErrResponseFormat)
		}
		encoded = after
	}
	heatmap, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: heatmap is not valid base64: %v", common.ErrResponseFormat, err)
	}
	return heatmap, nil
}

func (c *Client) callURL() string {
	return fmt.Sprintf("%s/gradio_api/call/%s", c.baseURL, c.apiName)
}

func truncate(data []byte, n int) string {
	if len(data) > n {
		return string(data[:n]) + "..."
	}
	return string(data)
}
