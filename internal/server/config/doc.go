// Package config provides server configuration for stablemem.
//
// This package defines the server configuration structure and validation:
//
//   - spec.go: ServerConfig struct definition
//   - default.go: Default configuration values
//   - verify.go: Business validation (addresses, backends, paths)
//   - sanitize.go: Log sanitization (hide API keys)
//   - storage.go: Mapping onto the storage engine config
//   - flags.go: Command-line overrides
//
// Configuration is loaded via internal/infra/confloader and supports
// multiple sources: files, environment variables, and the flags added by
// RegisterFlags.
package config
