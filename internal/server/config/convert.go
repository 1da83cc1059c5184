package config

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/yndnr/sockhttpd/internal/protocol/http1"
	"github.com/yndnr/sockhttpd/internal/server/handler"
	"github.com/yndnr/sockhttpd/internal/server/httpd"
	"github.com/yndnr/sockhttpd/internal/storage/filecache"
	"github.com/yndnr/sockhttpd/internal/storage/uploads"
)

// ToHTTPDConfig converts ServerConfig to httpd.Config. tlsConfig is nil for
// plain HTTP.
func ToHTTPDConfig(cfg *ServerConfig, tlsConfig *tls.Config, serverName string) (*httpd.Config, error) {
	if cfg == nil {
		return nil, fmt.Errorf("server config is nil")
	}
	s := &cfg.Server

	limits := http1.DefaultLimits()
	if s.MaxHeaderBytes > 0 {
		limits.MaxHeaderBytes = s.MaxHeaderBytes
	}
	if s.MaxRequestSize > 0 {
		limits.MaxBodyBytes = s.MaxRequestSize
	}
	if cfg.Uploads.MaxUploadSize > 0 {
		limits.MaxUploadBytes = cfg.Uploads.MaxUploadSize
	}

	if s.ServerName != "" {
		serverName = s.ServerName
	}

	return &httpd.Config{
		Address:      s.Address(),
		TLSConfig:    tlsConfig,
		MaxWorkers:   s.MaxThreads,
		QueueSize:    s.ConnectionQueue,
		ReadTimeout:  s.RequestTimeout,
		WriteTimeout: s.RequestTimeout,
		KeepAlive:    s.KeepAlive,
		IdleTimeout:  s.KeepAliveTimeout,
		Limits:       limits,
		RateLimit:    s.RateLimit,
		RateBurst:    s.RateBurst,
		ServerName:   serverName,
	}, nil
}

// ToHandlerConfig converts ServerConfig to handler.Config.
func ToHandlerConfig(cfg *ServerConfig) (handler.Config, error) {
	if cfg == nil {
		return handler.Config{}, fmt.Errorf("server config is nil")
	}
	h := &cfg.HTTP

	root, err := filepath.Abs(cfg.Server.DocumentRoot)
	if err != nil {
		return handler.Config{}, fmt.Errorf("resolve document root: %w", err)
	}

	metricsPath := ""
	if h.ServerStatus {
		metricsPath = h.MetricsPath
	}

	return handler.Config{
		DocumentRoot:          root,
		IndexFile:             h.IndexFile,
		DirectoryListing:      h.DirectoryListing,
		ShowHiddenFiles:       h.ShowHiddenFiles,
		SecurityHeaders:       h.SecurityHeaders,
		ContentSecurityPolicy: h.ContentSecurityPolicy,
		CORS:                  h.CORS,
		CORSAllowOrigin:       h.CORSAllowOrigin,
		BrowserCaching:        h.BrowserCaching,
		BrowserCacheTime:      h.BrowserCacheTime,
		ServerStatus:          h.ServerStatus,
		StatusPath:            h.StatusPath,
		MetricsPath:           metricsPath,
		AllowedFileTypes:      append([]string(nil), h.AllowedFileTypes...),
		SubmitPath:            cfg.Uploads.SubmitPath,
		SuccessLocation:       cfg.Uploads.SuccessLocation,
	}, nil
}

// ToCacheConfig converts CacheSection to filecache.Config. A disabled cache
// keeps no entries.
func ToCacheConfig(cfg *CacheSection) filecache.Config {
	if !cfg.Enabled {
		return filecache.Config{}
	}
	return filecache.Config{
		MaxEntries: cfg.MaxSize,
		MaxAge:     cfg.MaxAge,
	}
}

// ToUploadsConfig converts ServerConfig to uploads.Config. It reports false
// when uploads are disabled.
func ToUploadsConfig(cfg *ServerConfig, logger *slog.Logger) (uploads.Config, bool) {
	u := &cfg.Uploads
	if !u.Enabled {
		return uploads.Config{}, false
	}

	dir := u.Dir
	if dir == "" {
		dir = DefaultUploadDir
	}
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(cfg.Server.DocumentRoot, dir)
	}

	return uploads.Config{
		Dir:      dir,
		IndexDir: u.IndexDir,
		Logger:   logger,
	}, true
}
