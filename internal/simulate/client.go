package simulate

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

	"github.com/okian/voeux/internal/domain/model"
	"github.com/okian/voeux/internal/domain/types"
)

const defaultTimeout = 2 * time.Minute

// APIError is a non-2xx answer of the service.
type APIError struct {
	Status  int
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("http %d %s: %s", e.Status, e.Code, e.Message)
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTimeout bounds every request.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// Client talks to the assignment endpoints of a running service.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the service at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Health checks GET /healthz.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "/healthz", nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnhealthy, err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrUnhealthy, resp.StatusCode)
	}
	return nil
}

// Run triggers a run and waits for its report.
func (c *Client) Run(ctx context.Context, level model.Level, algorithm model.Algorithm) (types.Report, error) {
	var report types.Report
	body := map[string]string{"level": string(level), "algorithm": string(algorithm)}
	err := c.call(ctx, http.MethodPost, "/assignment-run", body, &report)
	return report, err
}

// Report fetches the latest report of a level.
func (c *Client) Report(ctx context.Context, level model.Level, algorithm model.Algorithm) (types.Report, error) {
	var report types.Report
	err := c.call(ctx, http.MethodGet, "/assignment-report?"+query(level, algorithm), nil, &report)
	return report, err
}

// Assignments fetches the latest assignment list of a level.
func (c *Client) Assignments(ctx context.Context, level model.Level, algorithm model.Algorithm) ([]model.Assignment, error) {
	var out struct {
		Assignments []model.Assignment `json:"assignments"`
	}
	err := c.call(ctx, http.MethodGet, "/assignments?"+query(level, algorithm), nil, &out)
	return out.Assignments, err
}

func query(level model.Level, algorithm model.Algorithm) string {
	return url.Values{"level": {string(level)}, "algorithm": {string(algorithm)}}.Encode()
}

func (c *Client) call(ctx context.Context, method, path string, body, out any) error {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		apiErr := &APIError{Status: resp.StatusCode}
		_ = json.Unmarshal(data, apiErr)
		return apiErr
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.http.Do(req)
}
