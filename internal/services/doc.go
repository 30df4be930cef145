// Package services defines shared utilities consumed by the orchestrator and
// the external collaborator clients.
//
// Key responsibilities:
//   - Context helpers that stamp queue entry IDs, execution IDs, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper that keep failure
//     classification (retryable vs terminal vs caller error) consistent
//     across the pipeline.
//
// Use these helpers when wiring new collaborator logic so operational
// behaviour stays uniform across the pipeline.
package services
