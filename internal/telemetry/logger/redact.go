package logger

import (
	"log/slog"
	"net/url"
	"strings"
)

// Credential schemes whose parameters are masked in string values.
var sensitiveValuePrefixes = []string{
	"Bearer ",
	"Basic ",
	"Digest ",
}

// Sensitive key patterns that should be redacted.
var sensitiveKeyPatterns = []string{
	"password",
	"passwd",
	"secret",
	"token",
	"authorization",
	"cookie",
	"credential",
	"private_key",
	"api_key",
	"apikey",
}

// redactedValue is the placeholder for redacted sensitive data.
const redactedValue = "***REDACTED***"

// redactSensitive checks if an attribute contains sensitive data
// and redacts it if necessary.
func redactSensitive(a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindString {
		strVal := a.Value.String()
		for _, prefix := range sensitiveValuePrefixes {
			if strings.HasPrefix(strVal, prefix) {
				return slog.String(a.Key, prefix+"***")
			}
		}
		if strVal != "" && IsSensitiveKey(a.Key) {
			return slog.String(a.Key, redactedValue)
		}
	}

	if a.Value.Kind() == slog.KindGroup {
		attrs := a.Value.Group()
		newAttrs := make([]slog.Attr, len(attrs))
		for i, attr := range attrs {
			newAttrs[i] = redactSensitive(attr)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(newAttrs...)}
	}

	return a
}

// RedactTarget masks the values of sensitive query parameters in a request
// target so it can be logged ("/login?password=x" -> "/login?password=***REDACTED***").
func RedactTarget(target string) string {
	path, rawQuery, ok := strings.Cut(target, "?")
	if !ok || rawQuery == "" {
		return target
	}
	pairs := strings.Split(rawQuery, "&")
	for i, pair := range pairs {
		k, _, _ := strings.Cut(pair, "=")
		if name, err := url.QueryUnescape(k); err == nil && IsSensitiveKey(name) {
			pairs[i] = k + "=" + redactedValue
		}
	}
	return path + "?" + strings.Join(pairs, "&")
}

// IsSensitiveKey checks if a key name suggests sensitive content.
func IsSensitiveKey(key string) bool {
	keyLower := strings.ToLower(key)
	for _, pattern := range sensitiveKeyPatterns {
		if strings.Contains(keyLower, pattern) {
			return true
		}
	}
	return false
}
