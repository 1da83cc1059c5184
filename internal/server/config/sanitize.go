package config

import (
	"path/filepath"
	"strings"
)

// Sanitize returns a copy of the config that is safe to log. The location
// of the private key is reduced to a masked base name.
func Sanitize(cfg *ServerConfig) *ServerConfig {
	sanitized := *cfg
	sanitized.HTTP.AllowedFileTypes = append([]string(nil), cfg.HTTP.AllowedFileTypes...)

	if sanitized.TLS.KeyFile != "" {
		sanitized.TLS.KeyFile = maskSecret(filepath.Base(sanitized.TLS.KeyFile))
	}

	return &sanitized
}

// maskSecret masks a secret value for safe logging.
func maskSecret(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}
