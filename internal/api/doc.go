// Package api defines transport-friendly representations of queue entries,
// executions, and workspaces plus the converters that produce them.
//
// The IPC layer and the CLI both consume these DTOs, so every field is a
// plain string, number, or bool that survives JSON round-trips. Converters
// live here rather than in the domain packages to keep formatting concerns
// (timestamp layout, truncation, derived labels) out of the stores.
package api
