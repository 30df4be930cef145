package config

const (
	defaultQueueDir            = "~/.local/share/remedy/queue"
	defaultDataDir             = "~/.local/share/remedy/data"
	defaultLogDir              = "~/.local/share/remedy/logs"
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultLogRetentionDays    = 60
	defaultAgentTimeoutSeconds = 3600
	defaultAgentMaxRetries     = 3
	defaultAgentRetryBackoff   = 5
	defaultPromptGenTimeout    = 60
	defaultDeployPollInterval  = 15
	defaultDeployMaxWait       = 600
	defaultDeployMaxRetries    = 10
	defaultNotifyTimeout       = 10
	defaultNotifyDedupWindow   = 600
	defaultLeaseTTLSeconds     = 120
	defaultHeartbeatInterval   = 15
	defaultQueuePollInterval   = 5
	defaultErrorRetryInterval  = 5
	defaultCompletedRetention  = 20
	defaultMinFreeDiskMiB      = 256
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			QueueDir: defaultQueueDir,
			DataDir:  defaultDataDir,
			LogDir:   defaultLogDir,
		},
		Agent: Agent{
			TimeoutSeconds:      defaultAgentTimeoutSeconds,
			MaxRetries:          defaultAgentMaxRetries,
			RetryBackoffSeconds: defaultAgentRetryBackoff,
		},
		PromptGen: PromptGen{
			TimeoutSeconds: defaultPromptGenTimeout,
		},
		Deploy: Deploy{
			PollIntervalSeconds: defaultDeployPollInterval,
			MaxWaitSeconds:      defaultDeployMaxWait,
			MaxRetries:          defaultDeployMaxRetries,
		},
		Notifications: Notifications{
			RequestTimeout:     defaultNotifyTimeout,
			Escalation:         true,
			Completion:         true,
			Deploy:             true,
			DedupWindowSeconds: defaultNotifyDedupWindow,
		},
		Worker: Worker{
			LeaseTTLSeconds:    defaultLeaseTTLSeconds,
			HeartbeatInterval:  defaultHeartbeatInterval,
			QueuePollInterval:  defaultQueuePollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
			CompletedRetention: defaultCompletedRetention,
			MinFreeDiskMiB:     defaultMinFreeDiskMiB,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
