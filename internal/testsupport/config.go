package testsupport

import (
	"path/filepath"
	"testing"

	"remedy/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// Endpoints point at placeholder URLs; tests that exercise a client swap in
// an httptest server address.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.QueueDir = filepath.Join(base, "queue")
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Agent.Endpoint = "http://127.0.0.1:0/agent"
	cfg.Agent.APIKey = "test"
	cfg.Deploy.Endpoint = "http://127.0.0.1:0/deploy"
	cfg.Deploy.APIKey = "test"
	cfg.PromptGen.Endpoint = "http://127.0.0.1:0/promptgen"

	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure config directories: %v", err)
	}
	return &cfg
}

// WithAgentEndpoint points the agent client at the given URL.
func WithAgentEndpoint(url string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Agent.Endpoint = url
	}
}

// WithDeployEndpoint points the deploy client at the given URL.
func WithDeployEndpoint(url string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Deploy.Endpoint = url
	}
}

// WithPromptGenEndpoint points the prompt generator client at the given URL.
func WithPromptGenEndpoint(url string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.PromptGen.Endpoint = url
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.QueueDir)
}
