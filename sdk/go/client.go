package ferrysdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Ferry HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Location represents the API location model.
type Location struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	Path      string `json:"path"`
	Available bool   `json:"available"`
}

// Intent represents the API intent model (partial).
type Intent struct {
	ID             string   `json:"id"`
	Name           *string  `json:"name,omitempty"`
	SourceID       string   `json:"source_id"`
	DestinationIDs []string `json:"destination_ids"`
	Status         string   `json:"status"`
	TotalFiles     int64    `json:"total_files"`
	TotalBytes     int64    `json:"total_bytes"`
	CompletedFiles int64    `json:"completed_files"`
	CompletedBytes int64    `json:"completed_bytes"`
}

// TransferJob represents one unit of copy work.
type TransferJob struct {
	ID               string  `json:"id"`
	IntentID         string  `json:"intent_id"`
	SourcePath       string  `json:"source_path"`
	DestPath         string  `json:"dest_path"`
	Status           string  `json:"status"`
	Attempts         int     `json:"attempts"`
	BytesTransferred int64   `json:"bytes_transferred"`
	LastError        *string `json:"last_error,omitempty"`
}

// ReviewItem represents an escalated failure awaiting a decision.
type ReviewItem struct {
	ID           string   `json:"id"`
	JobID        string   `json:"job_id"`
	IntentID     string   `json:"intent_id"`
	ErrorKind    string   `json:"error_kind"`
	ErrorMessage string   `json:"error_message"`
	SourcePath   string   `json:"source_path"`
	Options      []string `json:"options"`
	Resolution   *string  `json:"resolution,omitempty"`
}

// ScanResult summarizes an intent scan.
type ScanResult struct {
	FilesFound     int64 `json:"files_found"`
	TotalBytes     int64 `json:"total_bytes"`
	JobsCreated    int64 `json:"jobs_created"`
	SkippedEntries int64 `json:"skipped_entries"`
}

// RunResult is the per-status tally after a run.
type RunResult struct {
	Completed   int64 `json:"completed"`
	Failed      int64 `json:"failed"`
	NeedsReview int64 `json:"needs_review"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateLocation declares a location.
func (c *Client) CreateLocation(ctx context.Context, name, kind, path string) (Location, error) {
	body := map[string]any{
		"name": name,
		"kind": kind,
		"path": path,
	}
	var resp struct {
		Location Location `json:"location"`
	}
	err := c.do(ctx, http.MethodPost, "v0/locations", body, &resp)
	return resp.Location, err
}

// CreateIntent declares a transfer intent.
func (c *Client) CreateIntent(ctx context.Context, sourceID string, destinationIDs []string) (Intent, error) {
	body := map[string]any{
		"source_id":       sourceID,
		"destination_ids": destinationIDs,
	}
	var resp struct {
		Intent Intent `json:"intent"`
	}
	err := c.do(ctx, http.MethodPost, "v0/intents", body, &resp)
	return resp.Intent, err
}

// GetIntent fetches an intent by id.
func (c *Client) GetIntent(ctx context.Context, id string) (Intent, error) {
	var resp struct {
		Intent Intent `json:"intent"`
	}
	err := c.do(ctx, http.MethodGet, "v0/intents/"+url.PathEscape(id), nil, &resp)
	return resp.Intent, err
}

// Scan expands an intent into transfer jobs.
func (c *Client) Scan(ctx context.Context, intentID string) (ScanResult, error) {
	var resp struct {
		Result ScanResult `json:"result"`
	}
	endpoint := fmt.Sprintf("v0/intents/%s/scan", url.PathEscape(intentID))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp.Result, err
}

// Run executes pending jobs for an intent.
func (c *Client) Run(ctx context.Context, intentID string) (RunResult, error) {
	var resp struct {
		Result RunResult `json:"result"`
	}
	endpoint := fmt.Sprintf("v0/intents/%s/run", url.PathEscape(intentID))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp.Result, err
}

// Jobs lists jobs for an intent, optionally filtered by status.
func (c *Client) Jobs(ctx context.Context, intentID, status string) ([]TransferJob, error) {
	endpoint := fmt.Sprintf("v0/intents/%s/jobs", url.PathEscape(intentID))
	if status != "" {
		endpoint += "?status=" + url.QueryEscape(status)
	}
	var resp struct {
		Jobs []TransferJob `json:"jobs"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Jobs, err
}

// OpenReviews lists open review items.
func (c *Client) OpenReviews(ctx context.Context) ([]ReviewItem, error) {
	var resp struct {
		Reviews []ReviewItem `json:"reviews"`
	}
	err := c.do(ctx, http.MethodGet, "v0/reviews", nil, &resp)
	return resp.Reviews, err
}

// ResolveReview applies a decision to a review item.
func (c *Client) ResolveReview(ctx context.Context, reviewID, resolution string) (ReviewItem, error) {
	body := map[string]any{"resolution": resolution}
	var resp struct {
		Review ReviewItem `json:"review"`
	}
	endpoint := fmt.Sprintf("v0/reviews/%s/resolve", url.PathEscape(reviewID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp.Review, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
