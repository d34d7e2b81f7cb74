// Package config loads application configuration from the environment.
//
// Sections:
//   - Server: HTTP listen address (PORT, HOST)
//   - Backend: CLI daemon address and discovery toggle
//   - Logging, RateLimit: ambient settings
//   - Provision: first-start provisioning (platforms, manifest, retry policy)
//   - Storage: location of the persisted state file
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	addr := cfg.Server.Host + ":" + cfg.Server.Port
package config
