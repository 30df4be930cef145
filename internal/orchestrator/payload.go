package orchestrator

import (
	"encoding/json"

	"remedy/internal/services"
	"remedy/internal/services/promptgen"
)

// entryPayload is the JSON document stored as a queue entry's payload. It
// links the entry to its execution and carries everything the worker needs to
// build the agent request without further lookups.
type entryPayload struct {
	ExecutionID    string                   `json:"execution_id"`
	Feedback       []promptgen.FeedbackItem `json:"feedback,omitempty"`
	Instructions   string                   `json:"instructions,omitempty"`
	ContextLogs    string                   `json:"context_logs,omitempty"`
	DeployAttempts int                      `json:"deploy_attempts,omitempty"`
}

func encodePayload(payload entryPayload) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "orchestrator", "encode-payload", "marshal payload", err)
	}
	return string(data), nil
}

func decodePayload(raw string) (entryPayload, error) {
	var payload entryPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return entryPayload{}, services.Wrap(services.ErrValidation, "orchestrator", "decode-payload", "unmarshal payload", err)
	}
	if payload.ExecutionID == "" {
		return entryPayload{}, services.Wrap(services.ErrValidation, "orchestrator", "decode-payload", "payload has no execution id", nil)
	}
	return payload, nil
}
