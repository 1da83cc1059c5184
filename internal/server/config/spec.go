package config

import "time"

// ServerConfig is the root configuration for sockhttpd.
type ServerConfig struct {
	Server  ServerSection  `koanf:"server"`
	Cache   CacheSection   `koanf:"cache"`
	TLS     TLSSection     `koanf:"tls"`
	HTTP    HTTPSection    `koanf:"http"`
	Uploads UploadsSection `koanf:"uploads"`
	Log     LogSection     `koanf:"log"`
}

// ServerSection configures the listener, the worker pool and request limits.
type ServerSection struct {
	Host         string `koanf:"host"`
	Port         int    `koanf:"port"`
	DocumentRoot string `koanf:"document_root"`
	ServerName   string `koanf:"server_name"`

	// MaxThreads is the fixed number of connection workers.
	MaxThreads int `koanf:"max_threads"`

	// ConnectionQueue bounds accepted connections waiting for a worker.
	// The accept loop blocks while it is full.
	ConnectionQueue int `koanf:"connection_queue"`

	// RequestTimeout bounds reading one request once its first byte arrived.
	RequestTimeout time.Duration `koanf:"request_timeout"`

	KeepAlive bool `koanf:"keep_alive"`

	// KeepAliveTimeout bounds the wait for the next request on an idle connection.
	KeepAliveTimeout time.Duration `koanf:"keep_alive_timeout"`

	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	MaxHeaderBytes int   `koanf:"max_header_bytes"`
	MaxRequestSize int64 `koanf:"max_request_size"`

	// RateLimit is the sustained requests per second allowed per client IP.
	// Zero disables limiting.
	RateLimit float64 `koanf:"rate_limit"`
	RateBurst int     `koanf:"rate_burst"`
}

// CacheSection configures the in-memory file cache.
type CacheSection struct {
	Enabled bool          `koanf:"enabled"`
	MaxSize int           `koanf:"max_size"`
	MaxAge  time.Duration `koanf:"max_age"`
}

// TLSSection configures HTTPS.
type TLSSection struct {
	Enabled  bool   `koanf:"enabled"`
	CertFile string `koanf:"cert_file"`
	KeyFile  string `koanf:"key_file"`

	// ClientCAFile enables client certificate verification.
	ClientCAFile      string `koanf:"client_ca_file"`
	RequireClientCert bool   `koanf:"require_client_cert"`

	// Watch reloads the key pair when the files change.
	Watch bool `koanf:"watch"`
}

// HTTPSection holds the response feature switches.
type HTTPSection struct {
	DirectoryListing bool   `koanf:"directory_listing"`
	ShowHiddenFiles  bool   `koanf:"show_hidden_files"`
	IndexFile        string `koanf:"index_file"`

	SecurityHeaders       bool   `koanf:"security_headers"`
	ContentSecurityPolicy string `koanf:"content_security_policy"`

	CORS            bool   `koanf:"cors"`
	CORSAllowOrigin string `koanf:"cors_allow_origin"`

	BrowserCaching   bool          `koanf:"browser_caching"`
	BrowserCacheTime time.Duration `koanf:"browser_cache_time"`

	ServerStatus bool   `koanf:"server_status"`
	StatusPath   string `koanf:"status_path"`
	MetricsPath  string `koanf:"metrics_path"`

	// AllowedFileTypes restricts served content types ("text/html", "image/*").
	// Empty allows every type.
	AllowedFileTypes []string `koanf:"allowed_file_types"`
}

// UploadsSection configures form submissions and file uploads.
type UploadsSection struct {
	Enabled         bool   `koanf:"enabled"`
	MaxUploadSize   int64  `koanf:"max_upload_size"`
	SubmitPath      string `koanf:"submit_path"`
	SuccessLocation string `koanf:"success_location"`

	// Dir receives uploaded files. Relative paths are resolved against
	// the document root.
	Dir string `koanf:"dir"`

	// IndexDir holds the upload index. Empty keeps the index in memory.
	IndexDir string `koanf:"index_dir"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Address returns the listen address in host:port form.
func (s *ServerSection) Address() string {
	return joinHostPort(s.Host, s.Port)
}
