package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeAgent()
	c.normalizeDeploy()
	c.normalizeWorker()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.QueueDir) == "" {
		c.Paths.QueueDir = defaultQueueDir
	}
	if c.Paths.QueueDir, err = expandPath(c.Paths.QueueDir); err != nil {
		return fmt.Errorf("paths.queue_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeAgent() {
	c.Agent.Endpoint = strings.TrimSpace(c.Agent.Endpoint)
	if c.Agent.APIKey == "" {
		if value, ok := os.LookupEnv("REMEDY_AGENT_API_KEY"); ok {
			c.Agent.APIKey = value
		}
	}
	if c.Agent.TimeoutSeconds <= 0 {
		c.Agent.TimeoutSeconds = defaultAgentTimeoutSeconds
	}
	if c.Agent.MaxRetries <= 0 {
		c.Agent.MaxRetries = defaultAgentMaxRetries
	}
	if c.Agent.RetryBackoffSeconds <= 0 {
		c.Agent.RetryBackoffSeconds = defaultAgentRetryBackoff
	}
	c.PromptGen.Endpoint = strings.TrimSpace(c.PromptGen.Endpoint)
	if c.PromptGen.TimeoutSeconds <= 0 {
		c.PromptGen.TimeoutSeconds = defaultPromptGenTimeout
	}
}

func (c *Config) normalizeDeploy() {
	c.Deploy.Endpoint = strings.TrimSpace(c.Deploy.Endpoint)
	if c.Deploy.APIKey == "" {
		if value, ok := os.LookupEnv("REMEDY_DEPLOY_API_KEY"); ok {
			c.Deploy.APIKey = value
		}
	}
	if c.Deploy.PollIntervalSeconds <= 0 {
		c.Deploy.PollIntervalSeconds = defaultDeployPollInterval
	}
	if c.Deploy.MaxWaitSeconds <= 0 {
		c.Deploy.MaxWaitSeconds = defaultDeployMaxWait
	}
	if c.Deploy.MaxRetries <= 0 {
		c.Deploy.MaxRetries = defaultDeployMaxRetries
	}
}

func (c *Config) normalizeWorker() {
	if c.Worker.LeaseTTLSeconds <= 0 {
		c.Worker.LeaseTTLSeconds = defaultLeaseTTLSeconds
	}
	if c.Worker.HeartbeatInterval <= 0 {
		c.Worker.HeartbeatInterval = defaultHeartbeatInterval
	}
	if c.Worker.QueuePollInterval <= 0 {
		c.Worker.QueuePollInterval = defaultQueuePollInterval
	}
	if c.Worker.ErrorRetryInterval <= 0 {
		c.Worker.ErrorRetryInterval = defaultErrorRetryInterval
	}
	if c.Worker.CompletedRetention < 0 {
		c.Worker.CompletedRetention = defaultCompletedRetention
	}
	if c.Worker.MinFreeDiskMiB <= 0 {
		c.Worker.MinFreeDiskMiB = defaultMinFreeDiskMiB
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = defaultLogRetentionDays
	}
}
