// Package config loads, defaults, normalizes, and validates remedy's TOML
// configuration. Path fields are tilde-expanded and made absolute during Load,
// and EnsureDirectories creates the directories the daemon needs at startup.
package config
