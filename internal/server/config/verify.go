package config

import (
	"errors"
	"fmt"
	"mime"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/yndnr/sockhttpd/internal/telemetry/logger"
)

// Verify validates the configuration. All problems are reported together.
func Verify(cfg *ServerConfig) error {
	return errors.Join(
		verifyServer(&cfg.Server),
		verifyCache(&cfg.Cache),
		verifyTLS(&cfg.TLS),
		verifyHTTP(&cfg.HTTP),
		verifyUploads(&cfg.Uploads),
		verifyLog(&cfg.Log),
	)
}

func verifyServer(cfg *ServerSection) error {
	var errs []error
	if cfg.Port < 0 || cfg.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", cfg.Port))
	}
	if cfg.DocumentRoot == "" {
		errs = append(errs, errors.New("server.document_root is required"))
	} else if info, err := os.Stat(cfg.DocumentRoot); err != nil {
		errs = append(errs, fmt.Errorf("server.document_root: %w", err))
	} else if !info.IsDir() {
		errs = append(errs, fmt.Errorf("server.document_root %s is not a directory", cfg.DocumentRoot))
	}
	if cfg.MaxThreads < 1 {
		errs = append(errs, errors.New("server.max_threads must be at least 1"))
	}
	if cfg.ConnectionQueue < 1 {
		errs = append(errs, errors.New("server.connection_queue must be at least 1"))
	}
	if cfg.RequestTimeout <= 0 {
		errs = append(errs, errors.New("server.request_timeout must be positive"))
	}
	if cfg.KeepAlive && cfg.KeepAliveTimeout <= 0 {
		errs = append(errs, errors.New("server.keep_alive_timeout must be positive"))
	}
	if cfg.ShutdownTimeout < 0 {
		errs = append(errs, errors.New("server.shutdown_timeout must not be negative"))
	}
	if cfg.MaxHeaderBytes < 256 {
		errs = append(errs, errors.New("server.max_header_bytes must be at least 256"))
	}
	if cfg.MaxRequestSize < 0 {
		errs = append(errs, errors.New("server.max_request_size must not be negative"))
	}
	if cfg.RateLimit < 0 || cfg.RateBurst < 0 {
		errs = append(errs, errors.New("server.rate_limit and server.rate_burst must not be negative"))
	}
	return errors.Join(errs...)
}

func verifyCache(cfg *CacheSection) error {
	if !cfg.Enabled {
		return nil
	}
	if cfg.MaxSize < 1 {
		return errors.New("cache.max_size must be at least 1 when the cache is enabled")
	}
	if cfg.MaxAge <= 0 {
		return errors.New("cache.max_age must be positive when the cache is enabled")
	}
	return nil
}

func verifyTLS(cfg *TLSSection) error {
	if !cfg.Enabled {
		return nil
	}
	var errs []error
	for key, path := range map[string]string{"tls.cert_file": cfg.CertFile, "tls.key_file": cfg.KeyFile} {
		if path == "" {
			errs = append(errs, fmt.Errorf("%s is required when tls is enabled", key))
			continue
		}
		if _, err := os.Stat(path); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
	}
	if cfg.RequireClientCert && cfg.ClientCAFile == "" {
		errs = append(errs, errors.New("tls.require_client_cert needs tls.client_ca_file"))
	}
	return errors.Join(errs...)
}

func verifyHTTP(cfg *HTTPSection) error {
	var errs []error
	if cfg.IndexFile == "" || strings.ContainsAny(cfg.IndexFile, `/\`) {
		errs = append(errs, fmt.Errorf("http.index_file %q must be a plain file name", cfg.IndexFile))
	}
	if cfg.ServerStatus {
		for key, p := range map[string]string{"http.status_path": cfg.StatusPath, "http.metrics_path": cfg.MetricsPath} {
			if p != "" && !strings.HasPrefix(p, "/") {
				errs = append(errs, fmt.Errorf("%s %q must start with /", key, p))
			}
		}
	}
	if cfg.BrowserCaching && cfg.BrowserCacheTime < 0 {
		errs = append(errs, errors.New("http.browser_cache_time must not be negative"))
	}
	for _, t := range cfg.AllowedFileTypes {
		if !validTypePattern(t) {
			errs = append(errs, fmt.Errorf("http.allowed_file_types: invalid pattern %q", t))
		}
	}
	return errors.Join(errs...)
}

func verifyUploads(cfg *UploadsSection) error {
	if !cfg.Enabled {
		return nil
	}
	var errs []error
	if cfg.MaxUploadSize <= 0 {
		errs = append(errs, errors.New("uploads.max_upload_size must be positive"))
	}
	if !strings.HasPrefix(cfg.SubmitPath, "/") {
		errs = append(errs, fmt.Errorf("uploads.submit_path %q must start with /", cfg.SubmitPath))
	}
	if cfg.SuccessLocation == "" {
		errs = append(errs, errors.New("uploads.success_location is required"))
	}
	if cfg.Dir == "" {
		errs = append(errs, errors.New("uploads.dir is required"))
	}
	return errors.Join(errs...)
}

func verifyLog(cfg *LogSection) error {
	var errs []error
	if !logger.ValidLevel(cfg.Level) {
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn, error", cfg.Level))
	}
	switch cfg.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format %q is not json or text", cfg.Format))
	}
	return errors.Join(errs...)
}

// validTypePattern accepts "type/subtype" and "type/*".
func validTypePattern(p string) bool {
	major, minor, ok := strings.Cut(p, "/")
	if !ok || major == "" || minor == "" || major == "*" {
		return false
	}
	if minor == "*" {
		return true
	}
	_, _, err := mime.ParseMediaType(p)
	return err == nil
}

func joinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
