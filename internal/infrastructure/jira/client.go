// Package jira reads projects, issues and assignees from the Jira REST API.
package jira

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/felixgeelhaar/fortify/retry"
	"golang.org/x/oauth2"
	"golang.org/x/sync/semaphore"
)

// Config describes one Jira account.
type Config struct {
	Endpoint string
	Username string
	// APIToken is used with Username for basic auth when Token is nil.
	APIToken string
	Token    *oauth2.Token
	// PointsField and SprintField name the custom fields holding story
	// points and sprints.
	PointsField string
	SprintField string
	// Teams groups assignees per project.
	Teams map[string][]Team
}

// Team is a configured group of assignees.
type Team struct {
	ID      string   `yaml:"id" json:"id"`
	Name    string   `yaml:"name" json:"name"`
	Members []string `yaml:"members" json:"members"`
}

// APIError is a non-2xx response.
type APIError struct {
	Status int
	Path   string
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("jira %s: status %d: %s", e.Path, e.Status, e.Body)
}

// Client is a minimal Jira REST v2 client.
type Client struct {
	base     *url.URL
	cfg      Config
	http     *http.Client
	retryCfg retry.Config
	timeout  time.Duration
	sem      *semaphore.Weighted
}

// NewClient creates a client for cfg.Endpoint.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	o := defaultOptions()
	for _, fn := range opts {
		fn(&o)
	}
	base, err := url.Parse(strings.TrimRight(cfg.Endpoint, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid jira endpoint %q", cfg.Endpoint)
	}
	if cfg.PointsField == "" {
		cfg.PointsField = "customfield_10016"
	}
	if cfg.SprintField == "" {
		cfg.SprintField = "customfield_10020"
	}

	httpClient := o.httpClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if cfg.Token != nil {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)
		httpClient = oauth2.NewClient(ctx, oauth2.StaticTokenSource(cfg.Token))
	}

	return &Client{
		base:    base,
		cfg:     cfg,
		http:    httpClient,
		timeout: o.timeout,
		sem:     semaphore.NewWeighted(o.maxConcurrent),
		retryCfg: retry.Config{
			MaxAttempts:   o.maxAttempts,
			InitialDelay:  o.initialDelay,
			BackoffPolicy: retry.BackoffExponential,
		},
	}, nil
}

// Host returns the endpoint host.
func (c *Client) Host() string { return c.base.Host }

// get decodes the JSON response of a GET into out, retrying transient failures.
func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	u := *c.base
	u.Path = c.base.Path + path
	u.RawQuery = query.Encode()

	r := retry.New[[]byte](c.retryCfg)
	body, err := r.Do(ctx, func(ctx context.Context) ([]byte, error) {
		return c.do(ctx, u.String(), path)
	})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, rawURL, path string) ([]byte, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer c.sem.Release(1)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "Etabot/1.0")
	if c.cfg.Token == nil && c.cfg.Username != "" {
		req.SetBasicAuth(c.cfg.Username, c.cfg.APIToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, &APIError{Status: resp.StatusCode, Path: path, Body: truncate(string(body), 200)}
	}
	return body, nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// isAuthError reports whether err is a 401 or 403 response.
func isAuthError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && (apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden)
}
