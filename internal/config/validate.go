package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateAgent(); err != nil {
		return err
	}
	if err := c.validateDeploy(); err != nil {
		return err
	}
	if err := c.validateWorker(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateAgent() error {
	if strings.TrimSpace(c.Agent.Endpoint) == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/remedy/config.toml"
		}
		return fmt.Errorf("agent.endpoint is required. Edit %s (create with 'remedy config init')", defaultPath)
	}
	if c.Agent.MaxRetries > 10 {
		return errors.New("agent.max_retries must not exceed 10")
	}
	return nil
}

func (c *Config) validateDeploy() error {
	if strings.TrimSpace(c.Deploy.Endpoint) == "" {
		return errors.New("deploy.endpoint must be set")
	}
	if c.Deploy.MaxRetries > 100 {
		return errors.New("deploy.max_retries must not exceed 100")
	}
	if c.Deploy.PollIntervalSeconds > c.Deploy.MaxWaitSeconds {
		return errors.New("deploy.poll_interval_seconds must not exceed deploy.max_wait_seconds")
	}
	return nil
}

func (c *Config) validateWorker() error {
	if c.Worker.HeartbeatInterval >= c.Worker.LeaseTTLSeconds {
		return errors.New("worker.heartbeat_interval must be shorter than worker.lease_ttl_seconds")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
