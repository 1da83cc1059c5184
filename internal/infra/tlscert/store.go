package tlscert

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/yndnr/sockhttpd/internal/infra/confloader"
)

// ExpiryWarning is how close to NotAfter a loaded certificate is logged as
// expiring.
const ExpiryWarning = 30 * 24 * time.Hour

// ErrNoCertificate is returned when the store has no usable key pair.
var ErrNoCertificate = errors.New("tlscert: no certificate loaded")

// Store holds the server key pair and reloads it from disk on demand.
type Store struct {
	certFile string
	keyFile  string
	cert     atomic.Pointer[tls.Certificate]
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// NewStore loads the PEM key pair from certFile and keyFile.
func NewStore(certFile, keyFile string, opts ...Option) (*Store, error) {
	s := &Store{
		certFile: certFile,
		keyFile:  keyFile,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.Reload(); err != nil {
		return nil, fmt.Errorf("tlscert: initial load: %w", err)
	}
	return s, nil
}

// Reload reads the key pair again. On failure the previous certificate
// stays in use.
func (s *Store) Reload() error {
	cert, err := tls.LoadX509KeyPair(s.certFile, s.keyFile)
	if err != nil {
		return fmt.Errorf("load key pair: %w", err)
	}
	if cert.Leaf == nil && len(cert.Certificate) > 0 {
		if leaf, err := x509.ParseCertificate(cert.Certificate[0]); err == nil {
			cert.Leaf = leaf
		}
	}
	s.cert.Store(&cert)

	attrs := []any{"cert_file", s.certFile}
	if cert.Leaf != nil {
		attrs = append(attrs, "subject", cert.Leaf.Subject.String(), "not_after", cert.Leaf.NotAfter)
		if remaining := cert.Leaf.NotAfter.Sub(s.now()); remaining < ExpiryWarning {
			s.logger.Warn("certificate expires soon", append(attrs, "remaining", remaining.Round(time.Hour))...)
		}
	}
	s.logger.Info("certificate loaded", attrs...)
	return nil
}

// Certificate returns the current key pair.
func (s *Store) Certificate() *tls.Certificate {
	return s.cert.Load()
}

// GetCertificate implements tls.Config.GetCertificate.
func (s *Store) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	cert := s.cert.Load()
	if cert == nil {
		return nil, ErrNoCertificate
	}
	return cert, nil
}

// ServerConfig returns a TLS configuration serving the store's certificate.
// A non-nil clientCAs pool enables verification of client certificates,
// required when requireClient is set.
func (s *Store) ServerConfig(clientCAs *x509.CertPool, requireClient bool) *tls.Config {
	cfg := &tls.Config{
		MinVersion:     tls.VersionTLS12,
		GetCertificate: s.GetCertificate,
		NextProtos:     []string{"http/1.1"},
	}
	if clientCAs != nil {
		cfg.ClientCAs = clientCAs
		cfg.ClientAuth = tls.VerifyClientCertIfGiven
		if requireClient {
			cfg.ClientAuth = tls.RequireAndVerifyClientCert
		}
	}
	return cfg
}

// Watch registers the certificate and key with w and reloads the store
// whenever either changes.
func (s *Store) Watch(w *confloader.Watcher) error {
	if err := w.Watch(s.certFile); err != nil {
		return fmt.Errorf("tlscert: watch %s: %w", s.certFile, err)
	}
	if err := w.Watch(s.keyFile); err != nil {
		return fmt.Errorf("tlscert: watch %s: %w", s.keyFile, err)
	}
	w.OnChange(func(path string) {
		if err := s.Reload(); err != nil {
			s.logger.Error("certificate reload failed",
				"error", err,
				"changed", path,
			)
		}
	})
	return nil
}
