// Package deployapi polls the deployment platform collaborator for the
// status of a commit.
package deployapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"remedy/internal/config"
	"remedy/internal/services"
)

const defaultTimeout = 30 * time.Second

// State is a deployment platform status value.
type State string

const (
	StatePending   State = "pending"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// Terminal reports whether the platform will not change this state again.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// Status is one poll result. Log is populated by the platform on failure.
type Status struct {
	State State  `json:"state"`
	Log   string `json:"log,omitempty"`
}

// Client polls the deployment platform.
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// Option customizes the deploy status client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient constructs a deploy status client from configuration.
func NewClient(cfg *config.Config, opts ...Option) (*Client, error) {
	endpoint := strings.TrimSpace(cfg.Deploy.Endpoint)
	if endpoint == "" {
		return nil, services.Wrap(services.ErrConfiguration, "deployapi", "new-client", "deploy endpoint is not configured", nil)
	}
	client := &Client{
		endpoint:   strings.TrimRight(endpoint, "/"),
		apiKey:     strings.TrimSpace(cfg.Deploy.APIKey),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Status fetches the deployment state for a commit.
func (c *Client) Status(ctx context.Context, commitID string) (Status, error) {
	var empty Status
	commitID = strings.TrimSpace(commitID)
	if commitID == "" {
		return empty, services.Wrap(services.ErrValidation, "deployapi", "status", "commit id is required", nil)
	}
	endpoint := c.endpoint + "/status?" + url.Values{"commit": {commitID}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return empty, services.Wrap(services.ErrTransient, "deployapi", "status", "build request", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return empty, services.Wrap(services.ErrExternalTool, "deployapi", "status", "request failed", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return empty, services.Wrap(services.ErrExternalTool, "deployapi", "status", "read response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return empty, services.Wrap(services.ErrExternalTool, "deployapi", "status",
			fmt.Sprintf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil)
	}
	var status Status
	if err := json.Unmarshal(body, &status); err != nil {
		return empty, services.Wrap(services.ErrExternalTool, "deployapi", "status", "decode response", err)
	}
	switch status.State {
	case StatePending, StateSucceeded, StateFailed:
	default:
		return empty, services.Wrap(services.ErrExternalTool, "deployapi", "status",
			fmt.Sprintf("unknown deploy state %q", status.State), nil)
	}
	return status, nil
}
