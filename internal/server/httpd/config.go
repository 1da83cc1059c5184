package httpd

import (
	"crypto/tls"
	"time"

	"github.com/yndnr/sockhttpd/internal/protocol/http1"
)

// Config holds the connection layer configuration.
type Config struct {
	// Address is the host:port to listen on.
	Address string

	// TLSConfig enables TLS when non-nil. Every connection completes its
	// handshake on the worker before the first request is read.
	TLSConfig *tls.Config

	// MaxWorkers is the fixed number of workers (default: 20).
	MaxWorkers int

	// QueueSize bounds the accepted connections waiting for a worker
	// (default: 10). A full queue blocks the accept loop.
	QueueSize int

	// ReadTimeout bounds reading one request once its first byte arrived,
	// the wait for the first request and the TLS handshake (default: 30s).
	ReadTimeout time.Duration

	// WriteTimeout bounds writing one response (default: ReadTimeout).
	WriteTimeout time.Duration

	// KeepAlive allows more than one request per connection.
	KeepAlive bool

	// IdleTimeout bounds the wait for the next request on a kept-alive
	// connection (default: 5s).
	IdleTimeout time.Duration

	// Limits bounds the size of a request.
	Limits http1.Limits

	// RateLimit is the sustained requests per second allowed per client IP.
	// Zero disables rate limiting.
	RateLimit float64

	// RateBurst is the burst size per client IP (default: RateLimit rounded up).
	RateBurst int

	// ServerName is sent in the Server header.
	ServerName string
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Address:     "127.0.0.1:8080",
		MaxWorkers:  20,
		QueueSize:   10,
		ReadTimeout: 30 * time.Second,
		KeepAlive:   true,
		IdleTimeout: 5 * time.Second,
		Limits:      http1.DefaultLimits(),
	}
}

// withDefaults fills zero values from DefaultConfig.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Address == "" {
		c.Address = def.Address
	}
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = def.MaxWorkers
	}
	if c.QueueSize <= 0 {
		c.QueueSize = def.QueueSize
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = def.ReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = c.ReadTimeout
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = def.IdleTimeout
	}
	if c.RateLimit > 0 && c.RateBurst <= 0 {
		c.RateBurst = int(c.RateLimit)
		if float64(c.RateBurst) < c.RateLimit {
			c.RateBurst++
		}
	}
	return c
}
