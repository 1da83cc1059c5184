package http1

import (
	"net/textproto"
	"strings"
)

// Header is a case-insensitive, multi-valued header mapping.
// Keys are stored in canonical form ("Content-Type").
type Header map[string][]string

// CanonicalKey returns the canonical form of a header name.
func CanonicalKey(key string) string {
	return textproto.CanonicalMIMEHeaderKey(key)
}

// Add appends a value to the key.
func (h Header) Add(key, value string) {
	key = CanonicalKey(key)
	h[key] = append(h[key], value)
}

// Set replaces all values of the key.
func (h Header) Set(key, value string) {
	h[CanonicalKey(key)] = []string{value}
}

// Get returns the last value of the key, or "" if absent.
// Repeated single-valued headers resolve to the last occurrence.
func (h Header) Get(key string) string {
	v := h[CanonicalKey(key)]
	if len(v) == 0 {
		return ""
	}
	return v[len(v)-1]
}

// Values returns all values of the key.
func (h Header) Values(key string) []string {
	return h[CanonicalKey(key)]
}

// Has reports whether the key is present.
func (h Header) Has(key string) bool {
	_, ok := h[CanonicalKey(key)]
	return ok
}

// Del removes the key.
func (h Header) Del(key string) {
	delete(h, CanonicalKey(key))
}

// Clone returns a deep copy of h.
func (h Header) Clone() Header {
	out := make(Header, len(h))
	for k, v := range h {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// HasToken reports whether any comma-separated element of the key's values
// equals token, ignoring case. Used for Connection handling.
func (h Header) HasToken(key, token string) bool {
	for _, v := range h.Values(key) {
		for _, part := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(part), token) {
				return true
			}
		}
	}
	return false
}
