// Package client provides a Go SDK for the usagi daemon HTTP API.
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
	"strings"

	"github.com/ankittk/usagi/pkg/models"
)

// DefaultURL is where `usagi start` listens unless --addr says otherwise.
const DefaultURL = "http://localhost:7351"

// Client talks to a running daemon's /healthz and /api/* endpoints. Safe for concurrent use.
type Client struct {
	BaseURL    string
	APIKey     string // sent as X-API-Key when set
	HTTPClient *http.Client
}

// APIError is a non-2xx answer from the daemon.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, http.StatusText(e.StatusCode))
}

// IsNotFound reports whether err is a 404 from the daemon, e.g. an unknown job id.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// New returns a client for baseURL; empty means DefaultURL.
func New(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	return &Client{BaseURL: strings.TrimRight(baseURL, "/"), APIKey: apiKey}
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.APIKey != "" {
		req.Header.Set("X-API-Key", c.APIKey)
	}
	hc := c.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode/100 != 2 {
		apiErr := &APIError{Method: method, Path: path, StatusCode: resp.StatusCode}
		var e struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&e) == nil {
			apiErr.Message = e.Error
		}
		return apiErr
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode: %w", method, path, err)
	}
	return nil
}

// Health returns the /healthz response (ok: true).
func (c *Client) Health(ctx context.Context) (ok bool, err error) {
	var out struct {
		OK bool `json:"ok"`
	}
	err = c.doJSON(ctx, http.MethodGet, "/healthz", nil, &out)
	return out.OK, err
}

// Status returns every agent's last known state.
func (c *Client) Status(ctx context.Context) (*models.SystemStatus, error) {
	var out models.SystemStatus
	err := c.doJSON(ctx, http.MethodGet, "/api/status", nil, &out)
	return &out, err
}

// Events returns the last n event log lines (n <= 0 uses the server default).
func (c *Client) Events(ctx context.Context, n int) ([]string, error) {
	path := "/api/events"
	if n > 0 {
		path += "?n=" + strconv.Itoa(n)
	}
	var out models.Events
	err := c.doJSON(ctx, http.MethodGet, path, nil, &out)
	return out.Lines, err
}

// Jobs returns the most recent jobs, newest first.
func (c *Client) Jobs(ctx context.Context, limit int) ([]models.Job, error) {
	var out []models.Job
	err := c.doJSON(ctx, http.MethodGet, withLimit("/api/jobs", limit), nil, &out)
	return out, err
}

// Job returns a single job by id.
func (c *Client) Job(ctx context.Context, id string) (*models.Job, error) {
	var out models.Job
	err := c.doJSON(ctx, http.MethodGet, "/api/jobs/"+url.PathEscape(id), nil, &out)
	return &out, err
}

// Ballots returns the most recent escalation ballots.
func (c *Client) Ballots(ctx context.Context, limit int) ([]models.Ballot, error) {
	var out []models.Ballot
	err := c.doJSON(ctx, http.MethodGet, withLimit("/api/ballots", limit), nil, &out)
	return out, err
}

// Merges returns the most recent merge attempts.
func (c *Client) Merges(ctx context.Context, limit int) ([]models.Merge, error) {
	var out []models.Merge
	err := c.doJSON(ctx, http.MethodGet, withLimit("/api/merges", limit), nil, &out)
	return out, err
}

// Send drops text into the boss inbox and returns the stored path.
func (c *Client) Send(ctx context.Context, source, text string) (string, error) {
	var out struct {
		Path string `json:"path"`
	}
	err := c.doJSON(ctx, http.MethodPost, "/api/inbox", map[string]string{"source": source, "text": text}, &out)
	return out.Path, err
}

func withLimit(path string, limit int) string {
	if limit > 0 {
		return path + "?limit=" + strconv.Itoa(limit)
	}
	return path
}
