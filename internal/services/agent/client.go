// Package agent talks to the remediation agent collaborator. A run is one
// HTTP request whose response body streams newline-delimited JSON events
// until a terminal result line closes the run.
package agent

import (
	"bufio"
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

const defaultTimeout = 30 * time.Minute

// maxEventBytes bounds a single event line. Agent log lines are expected to
// stay well under this.
const maxEventBytes = 1 << 20

// Request describes one remediation run.
type Request struct {
	Workspace    string `json:"workspace"`
	ExecutionID  string `json:"execution_id"`
	Instructions string `json:"instructions"`
	ContextLogs  string `json:"context_logs,omitempty"`
}

// Client invokes the agent collaborator.
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// Option customizes the agent client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient constructs an agent client from configuration.
func NewClient(cfg *config.Config, opts ...Option) (*Client, error) {
	endpoint := strings.TrimSpace(cfg.Agent.Endpoint)
	if endpoint == "" {
		return nil, services.Wrap(services.ErrConfiguration, "agent", "new-client", "agent endpoint is not configured", nil)
	}
	timeout := defaultTimeout
	if cfg.Agent.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.Agent.TimeoutSeconds) * time.Second
	}
	client := &Client{
		endpoint:   strings.TrimRight(endpoint, "/"),
		apiKey:     strings.TrimSpace(cfg.Agent.APIKey),
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// wireEvent is the union shape on the wire; Type selects which fields apply.
type wireEvent struct {
	Type         string   `json:"type"`
	Phase        string   `json:"phase,omitempty"`
	Percent      float64  `json:"percent,omitempty"`
	Level        string   `json:"level,omitempty"`
	Message      string   `json:"message,omitempty"`
	Success      bool     `json:"success,omitempty"`
	ChangedFiles []string `json:"changed_files,omitempty"`
	CommitID     string   `json:"commit_id,omitempty"`
	Error        string   `json:"error,omitempty"`
}

// Run executes one remediation request, invoking callback for every phase,
// progress, and log event the agent emits, and returns the terminal result.
// An agent-reported failure or a stream that ends without a result line
// returns an ErrExternalTool error.
func (c *Client) Run(ctx context.Context, request Request, callback func(Event)) (*Result, error) {
	if strings.TrimSpace(request.Workspace) == "" {
		return nil, services.Wrap(services.ErrValidation, "agent", "run", "workspace is required", nil)
	}
	if strings.TrimSpace(request.Instructions) == "" {
		return nil, services.Wrap(services.ErrValidation, "agent", "run", "instructions are required", nil)
	}
	encoded, err := json.Marshal(request)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "agent", "run", "encode request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/run", bytes.NewReader(encoded))
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "agent", "run", "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/x-ndjson")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "agent", "run", "request failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, services.Wrap(services.ErrExternalTool, "agent", "run",
			fmt.Sprintf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil)
	}
	return c.consumeStream(ctx, resp.Body, callback)
}

func (c *Client) consumeStream(ctx context.Context, body io.Reader, callback func(Event)) (*Result, error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), maxEventBytes)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, services.Wrap(services.ErrTimeout, "agent", "run", "run cancelled", err)
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var wire wireEvent
		if err := json.Unmarshal(line, &wire); err != nil {
			return nil, services.Wrap(services.ErrExternalTool, "agent", "run", "decode event", err)
		}
		switch wire.Type {
		case "phase":
			if callback != nil {
				callback(PhaseEvent{Phase: wire.Phase})
			}
		case "progress":
			if callback != nil {
				callback(ProgressEvent{Percent: wire.Percent})
			}
		case "log":
			if callback != nil {
				callback(LogEvent{Level: wire.Level, Message: wire.Message})
			}
		case "result":
			if !wire.Success {
				message := strings.TrimSpace(wire.Error)
				if message == "" {
					message = "agent reported failure without detail"
				}
				return nil, services.Wrap(services.ErrExternalTool, "agent", "run", message, nil)
			}
			return &Result{ChangedFiles: wire.ChangedFiles, CommitID: wire.CommitID}, nil
		default:
			// Unknown event types are skipped so new agent versions stay
			// compatible with older daemons.
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "agent", "run", "read event stream", err)
	}
	return nil, services.Wrap(services.ErrExternalTool, "agent", "run", "event stream ended without a result", nil)
}
