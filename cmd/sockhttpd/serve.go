package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/sockhttpd/internal/infra/buildinfo"
	"github.com/yndnr/sockhttpd/internal/infra/confloader"
	"github.com/yndnr/sockhttpd/internal/infra/shutdown"
	"github.com/yndnr/sockhttpd/internal/infra/tlscert"
	"github.com/yndnr/sockhttpd/internal/server/config"
	"github.com/yndnr/sockhttpd/internal/server/handler"
	"github.com/yndnr/sockhttpd/internal/server/httpd"
	"github.com/yndnr/sockhttpd/internal/server/render"
	"github.com/yndnr/sockhttpd/internal/storage/filecache"
	"github.com/yndnr/sockhttpd/internal/storage/uploads"
	"github.com/yndnr/sockhttpd/internal/telemetry/logger"
	"github.com/yndnr/sockhttpd/internal/telemetry/metric"
)

// watchDebounce collapses the burst of events editors produce on save.
const watchDebounce = 200 * time.Millisecond

func serveAction(c *cli.Context) error {
	loader := newConfigLoader(c.String("config"), overrides(c))
	cfg, err := loadConfig(loader)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stderr,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logger.SetDefault(log)

	log.Info("starting sockhttpd",
		"version", buildinfo.Version,
		"commit", buildinfo.Commit,
		"config", loader.FilePath(),
	)
	log.Debug("effective configuration", "config", config.Sanitize(cfg))

	return serve(c.Context, cfg, loader, log)
}

func newConfigLoader(path string, flags map[string]any) *confloader.Loader {
	opts := []confloader.Option{confloader.WithOverrides(flags)}
	if path != "" {
		opts = append(opts, confloader.WithConfigFile(path))
	}
	return confloader.NewLoader(opts...)
}

// loadConfig loads configuration from file, environment and flags on top
// of the defaults.
func loadConfig(loader *confloader.Loader) (*config.ServerConfig, error) {
	cfg := config.Default()
	if err := loader.Load(cfg); err != nil {
		return nil, err
	}
	if err := config.Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// serve wires the components, starts listening and blocks until shutdown.
func serve(ctx context.Context, cfg *config.ServerConfig, loader *confloader.Loader, log *slog.Logger) error {
	serverName := buildinfo.ServerName()
	if cfg.Server.ServerName != "" {
		serverName = cfg.Server.ServerName
	}

	metrics := metric.NewRegistry()
	cache := filecache.New(config.ToCacheConfig(&cfg.Cache))
	metrics.ObserveCache(cache)

	handlerCfg, err := config.ToHandlerConfig(cfg)
	if err != nil {
		return err
	}
	deps := handler.Deps{
		Files:    filecache.NewLoader(cache),
		Renderer: render.Must(serverName),
		Metrics:  metrics,
		Logger:   log,
	}

	var store *uploads.Store
	if uploadsCfg, ok := config.ToUploadsConfig(cfg, log); ok {
		store, err = uploads.NewStore(uploadsCfg)
		if err != nil {
			return fmt.Errorf("init uploads: %w", err)
		}
		deps.Uploads = store
	}
	h := handler.New(handlerCfg, deps)

	watcher, err := confloader.NewWatcher(
		confloader.WithWatcherLogger(log),
		confloader.WithDebounce(watchDebounce),
	)
	if err != nil {
		if store != nil {
			store.Close()
		}
		return fmt.Errorf("init watcher: %w", err)
	}
	release := func(err error) error {
		watcher.Stop()
		if store != nil {
			store.Close()
		}
		return err
	}

	tlsConfig, err := setupTLS(&cfg.TLS, watcher, log)
	if err != nil {
		return release(err)
	}
	if path := loader.FilePath(); path != "" {
		if err := watchLogLevel(watcher, loader, path, log); err != nil {
			log.Warn("config file not watched", "error", err)
		}
	}
	watcher.StartAsync()

	httpdCfg, err := config.ToHTTPDConfig(cfg, tlsConfig, serverName)
	if err != nil {
		return release(err)
	}
	server := httpd.New(httpdCfg, h, metrics, log)

	sh := shutdown.NewHandler(cfg.Server.ShutdownTimeout)

	// Hooks run in reverse order: the server stops first.
	sh.OnShutdown(func(context.Context) error {
		if store == nil {
			return nil
		}
		log.Info("closing upload index")
		return store.Close()
	})
	sh.OnShutdown(func(context.Context) error {
		return watcher.Stop()
	})
	sh.OnShutdown(func(ctx context.Context) error {
		return server.Shutdown(ctx)
	})

	if err := server.Start(ctx); err != nil {
		return release(err)
	}

	log.Info("server started, press Ctrl+C to stop",
		"address", server.Addr().String(),
		"document_root", h.Root(),
	)
	if err := sh.WaitContext(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		return err
	}
	log.Info("server stopped gracefully")
	return nil
}

// setupTLS loads the key pair and client CAs. It returns nil when TLS is
// disabled. Unreadable or invalid material is fatal.
func setupTLS(cfg *config.TLSSection, watcher *confloader.Watcher, log *slog.Logger) (*tls.Config, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	store, err := tlscert.NewStore(cfg.CertFile, cfg.KeyFile, tlscert.WithLogger(log))
	if err != nil {
		return nil, err
	}

	var clientCAs *x509.CertPool
	if cfg.ClientCAFile != "" {
		clientCAs, err = tlscert.LoadClientCAs(cfg.ClientCAFile)
		if err != nil {
			return nil, err
		}
	}

	if cfg.Watch {
		if err := store.Watch(watcher); err != nil {
			return nil, err
		}
	}
	return store.ServerConfig(clientCAs, cfg.RequireClientCert), nil
}

// watchLogLevel applies log.level from the config file when it changes.
// Every other setting needs a restart.
func watchLogLevel(w *confloader.Watcher, loader *confloader.Loader, path string, log *slog.Logger) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := w.Watch(abs); err != nil {
		return err
	}

	w.OnChange(func(changed string) {
		if changed != abs {
			return
		}
		fresh := config.Default()
		if err := loader.Load(fresh); err != nil {
			log.Error("config reload failed", "error", err)
			return
		}
		if !logger.ValidLevel(fresh.Log.Level) {
			log.Warn("ignoring invalid log level", "level", fresh.Log.Level)
			return
		}
		if old := logger.GetLevel(); old != fresh.Log.Level {
			logger.SetLevel(fresh.Log.Level)
			log.Info("log level changed", "from", old, "to", fresh.Log.Level)
		}
	})
	return nil
}
