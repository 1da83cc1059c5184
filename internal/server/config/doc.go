// Package config defines the sockhttpd configuration.
//
//   - spec.go: ServerConfig struct definition
//   - default.go: default values
//   - verify.go: validation (ranges, paths, TLS material, patterns)
//   - sanitize.go: log-safe copy
//   - convert.go: mapping onto component configurations
//
// Configuration is loaded via internal/infra/confloader from a YAML file,
// SOCKHTTPD_* environment variables and command line flags. It is not
// modified after Verify.
package config
