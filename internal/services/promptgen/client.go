// Package promptgen talks to the prompt generator collaborator, which turns
// an aggregated feedback batch into instruction text for the agent. The
// pipeline treats the returned text as opaque.
package promptgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"remedy/internal/config"
	"remedy/internal/services"
)

const defaultTimeout = 60 * time.Second

// FeedbackItem is one piece of user feedback in a batch.
type FeedbackItem struct {
	ID         string `json:"id"`
	Reasoning  string `json:"reasoning"`
	Attachment string `json:"attachment,omitempty"`
}

// Request is the generation input.
type Request struct {
	Workspace string         `json:"workspace"`
	Feedback  []FeedbackItem `json:"feedback"`
}

// Client invokes the prompt generator collaborator.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// Option customizes the prompt generator client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient constructs a prompt generator client from configuration.
func NewClient(cfg *config.Config, opts ...Option) (*Client, error) {
	endpoint := strings.TrimSpace(cfg.PromptGen.Endpoint)
	if endpoint == "" {
		return nil, services.Wrap(services.ErrConfiguration, "promptgen", "new-client", "promptgen endpoint is not configured", nil)
	}
	timeout := defaultTimeout
	if cfg.PromptGen.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.PromptGen.TimeoutSeconds) * time.Second
	}
	client := &Client{
		endpoint:   strings.TrimRight(endpoint, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Generate produces instruction text for the agent from a feedback batch.
func (c *Client) Generate(ctx context.Context, request Request) (string, error) {
	if strings.TrimSpace(request.Workspace) == "" {
		return "", services.Wrap(services.ErrValidation, "promptgen", "generate", "workspace is required", nil)
	}
	encoded, err := json.Marshal(request)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "promptgen", "generate", "encode request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/generate", bytes.NewReader(encoded))
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "promptgen", "generate", "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", services.Wrap(services.ErrExternalTool, "promptgen", "generate", "request failed", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", services.Wrap(services.ErrExternalTool, "promptgen", "generate", "read response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", services.Wrap(services.ErrExternalTool, "promptgen", "generate",
			fmt.Sprintf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil)
	}
	var decoded struct {
		Instructions string `json:"instructions"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", services.Wrap(services.ErrExternalTool, "promptgen", "generate", "decode response", err)
	}
	instructions := strings.TrimSpace(decoded.Instructions)
	if instructions == "" {
		return "", services.Wrap(services.ErrExternalTool, "promptgen", "generate", "empty instructions", nil)
	}
	return instructions, nil
}
