package config

import "time"

// Default configuration values.
const (
	DefaultHost         = "127.0.0.1"
	DefaultPort         = 8080
	DefaultDocumentRoot = "./www"

	DefaultMaxThreads       = 20
	DefaultConnectionQueue  = 10
	DefaultRequestTimeout   = 30 * time.Second
	DefaultKeepAliveTimeout = 5 * time.Second
	DefaultShutdownTimeout  = 10 * time.Second
	DefaultMaxHeaderBytes   = 16 * 1024
	DefaultMaxRequestSize   = 10 << 20

	DefaultCacheMaxSize = 100
	DefaultCacheMaxAge  = time.Hour

	DefaultIndexFile        = "index.html"
	DefaultCORSAllowOrigin  = "*"
	DefaultBrowserCacheTime = 24 * time.Hour
	DefaultStatusPath       = "/server-status"
	DefaultMetricsPath      = "/metrics"
	DefaultCSP              = "default-src 'self'; style-src 'self' 'unsafe-inline'"

	DefaultMaxUploadSize   = 10 << 20
	DefaultSubmitPath      = "/submit"
	DefaultSuccessLocation = "/submit_success.html"
	DefaultUploadDir       = "uploads"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Default returns the default server configuration.
func Default() *ServerConfig {
	return &ServerConfig{
		Server: ServerSection{
			Host:             DefaultHost,
			Port:             DefaultPort,
			DocumentRoot:     DefaultDocumentRoot,
			MaxThreads:       DefaultMaxThreads,
			ConnectionQueue:  DefaultConnectionQueue,
			RequestTimeout:   DefaultRequestTimeout,
			KeepAlive:        true,
			KeepAliveTimeout: DefaultKeepAliveTimeout,
			ShutdownTimeout:  DefaultShutdownTimeout,
			MaxHeaderBytes:   DefaultMaxHeaderBytes,
			MaxRequestSize:   DefaultMaxRequestSize,
		},
		Cache: CacheSection{
			Enabled: true,
			MaxSize: DefaultCacheMaxSize,
			MaxAge:  DefaultCacheMaxAge,
		},
		HTTP: HTTPSection{
			DirectoryListing:      true,
			IndexFile:             DefaultIndexFile,
			SecurityHeaders:       true,
			ContentSecurityPolicy: DefaultCSP,
			CORSAllowOrigin:       DefaultCORSAllowOrigin,
			BrowserCaching:        true,
			BrowserCacheTime:      DefaultBrowserCacheTime,
			ServerStatus:          true,
			StatusPath:            DefaultStatusPath,
			MetricsPath:           DefaultMetricsPath,
		},
		Uploads: UploadsSection{
			Enabled:         true,
			MaxUploadSize:   DefaultMaxUploadSize,
			SubmitPath:      DefaultSubmitPath,
			SuccessLocation: DefaultSuccessLocation,
			Dir:             DefaultUploadDir,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
