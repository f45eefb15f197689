// Package client talks to the KairoPi video API and implements the
// submit-then-poll loop used by browsers and kairoctl.
package client

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
)

const (
	DefaultPollInterval  = 5 * time.Second
	DefaultNotFoundGrace = 30 * time.Second
)

// ErrJobNotFound is returned by VideoStatus when the API answers 404.
var ErrJobNotFound = errors.New("client: job not found")

// Job statuses as reported by the API.
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusComplete   = "complete"
	StatusError      = "error"
)

// Job is the status record returned by the API.
type Job struct {
	JobID        string     `json:"jobId"`
	Status       string     `json:"status"`
	VideoURL     string     `json:"videoUrl,omitempty"`
	ErrorMessage string     `json:"errorMessage,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	StartedAt    *time.Time `json:"startedAt,omitempty"`
	FinishedAt   *time.Time `json:"finishedAt,omitempty"`
}

// Terminal reports whether the job will not change again.
func (j *Job) Terminal() bool {
	return j.Status == StatusComplete || j.Status == StatusError
}

// APIError carries a non-success response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("client: unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("client: %s (status %d)", e.Message, e.StatusCode)
}

type Client struct {
	baseURL    string
	httpClient *http.Client

	// NotFoundGrace is how long Wait keeps polling a job the API does not
	// know yet. Zero means DefaultNotFoundGrace.
	NotFoundGrace time.Duration
	// OnUpdate, when set, is called by Wait for every record whose status
	// differs from the previous one.
	OnUpdate func(*Job)
}

// New returns a client for baseURL, e.g. "http://localhost:8080".
// A nil httpClient uses a client with a 30 second timeout.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), httpClient: httpClient}
}

// RequestVideo submits a card for rendering and returns the job id. card is
// any value that marshals to the card JSON document.
func (c *Client) RequestVideo(ctx context.Context, card any, prompt string) (string, error) {
	payload, err := json.Marshal(map[string]any{"cardData": card, "prompt": prompt})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}
	var out struct {
		JobID string `json:"jobId"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/request-video", payload, http.StatusAccepted, &out); err != nil {
		return "", err
	}
	if out.JobID == "" {
		return "", errors.New("client: response has no jobId")
	}
	return out.JobID, nil
}

// VideoStatus reads the current record for jobID.
func (c *Client) VideoStatus(ctx context.Context, jobID string) (*Job, error) {
	var job Job
	if err := c.do(ctx, http.MethodGet, "/api/video-status/"+jobID, nil, http.StatusOK, &job); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return &job, nil
}

// Wait polls jobID every interval until it reaches complete or error and
// returns that record. A not-found answer is tolerated until NotFoundGrace
// has passed without the job appearing. Any other error stops the loop.
func (c *Client) Wait(ctx context.Context, jobID string, interval time.Duration) (*Job, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	grace := c.NotFoundGrace
	if grace <= 0 {
		grace = DefaultNotFoundGrace
	}
	deadline := time.Now().Add(grace)
	seen := false

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last string
	for {
		job, err := c.VideoStatus(ctx, jobID)
		switch {
		case err == nil:
			seen = true
			if job.Status != last && c.OnUpdate != nil {
				c.OnUpdate(job)
			}
			last = job.Status
			if job.Terminal() {
				return job, nil
			}
		case errors.Is(err, ErrJobNotFound):
			if seen || time.Now().After(deadline) {
				return nil, err
			}
		default:
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, want int, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != want {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &e) == nil {
			apiErr.Message = e.Error
		}
		return apiErr
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
