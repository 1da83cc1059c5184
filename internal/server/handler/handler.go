package handler

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/yndnr/sockhttpd/internal/core/domain"
	"github.com/yndnr/sockhttpd/internal/protocol/http1"
	"github.com/yndnr/sockhttpd/internal/storage/filecache"
	"github.com/yndnr/sockhttpd/internal/storage/uploads"
	"github.com/yndnr/sockhttpd/internal/telemetry/logger"
)

// AllowedMethods is the value of the Allow header on OPTIONS and 405 answers.
const AllowedMethods = "GET, POST, HEAD, OPTIONS"

// FileSource loads file entries, usually through the file cache.
type FileSource interface {
	Load(path string) (*filecache.Entry, bool, error)
}

// UploadSink stores uploaded files and the submissions carrying them.
type UploadSink interface {
	Save(ctx context.Context, up uploads.Upload) (*uploads.Record, error)
	SaveSubmission(ctx context.Context, sub uploads.Submission) (*uploads.SubmissionRecord, error)
	Activity(ctx context.Context, limit int) (*domain.UploadActivity, error)
}

// Renderer produces the HTML pages the handler does not read from disk.
type Renderer interface {
	Listing(l *domain.Listing) ([]byte, error)
	Status(s domain.StatusSnapshot) ([]byte, error)
	ErrorPage(code int, reason, detail string) []byte
}

// Metrics is the part of the metric registry the handler reads and feeds.
type Metrics interface {
	Snapshot() domain.StatusSnapshot
	WriteText(w io.Writer) error
	RecordUpload(size int64)
}

// Config holds the handler settings. It is read-only once New returns.
type Config struct {
	DocumentRoot string
	IndexFile    string

	DirectoryListing bool
	ShowHiddenFiles  bool

	SecurityHeaders       bool
	ContentSecurityPolicy string

	CORS            bool
	CORSAllowOrigin string

	BrowserCaching   bool
	BrowserCacheTime time.Duration

	ServerStatus bool
	StatusPath   string
	MetricsPath  string

	// AllowedFileTypes restricts served files to these media types.
	// Entries are "type/subtype" or "type/*". Empty allows everything.
	AllowedFileTypes []string

	SubmitPath      string
	SuccessLocation string
}

// Deps are the collaborators of a Handler.
type Deps struct {
	// Files is required.
	Files FileSource

	// Uploads is nil when uploads are disabled. Submitted files are then
	// ignored and submissions are only logged.
	Uploads UploadSink

	// Renderer is required.
	Renderer Renderer

	// Metrics is optional. Without it the status and metrics endpoints are
	// not routed.
	Metrics Metrics

	Logger *slog.Logger
	Now    func() time.Time
}

// Handler answers parsed requests.
type Handler struct {
	cfg      Config
	root     string
	realRoot string

	files    FileSource
	uploads  UploadSink
	renderer Renderer
	metrics  Metrics
	logger   *slog.Logger
	now      func() time.Time

	handle Func
}

// New creates a Handler. The document root is made absolute.
func New(cfg Config, deps Deps) *Handler {
	if cfg.IndexFile == "" {
		cfg.IndexFile = "index.html"
	}
	if cfg.StatusPath == "" {
		cfg.StatusPath = "/server-status"
	}
	if cfg.SubmitPath == "" {
		cfg.SubmitPath = "/submit"
	}
	if cfg.SuccessLocation == "" {
		cfg.SuccessLocation = "/"
	}

	root, err := filepath.Abs(cfg.DocumentRoot)
	if err != nil {
		root = filepath.Clean(cfg.DocumentRoot)
	}
	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		realRoot = root
	}

	h := &Handler{
		cfg:      cfg,
		root:     root,
		realRoot: realRoot,
		files:    deps.Files,
		uploads:  deps.Uploads,
		renderer: deps.Renderer,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
		now:      deps.Now,
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	if h.now == nil {
		h.now = time.Now
	}

	h.handle = Chain(h.route, h.Headers(), h.Recover())
	return h
}

// Root returns the absolute document root.
func (h *Handler) Root() string {
	return h.root
}

// Handle answers one request. It never returns nil.
func (h *Handler) Handle(ctx context.Context, req *http1.Request) *http1.Response {
	return h.handle(ctx, req)
}

// Reject answers a request that failed to parse. req may be nil when not even
// the request line could be read. The response closes the connection when the
// stream is no longer at a message boundary or the error is not a domain error.
func (h *Handler) Reject(ctx context.Context, req *http1.Request, err error) *http1.Response {
	reject := func(ctx context.Context, req *http1.Request) *http1.Response {
		return h.errorResponse(ctx, req, err)
	}
	resp := Chain(reject, h.Headers())(ctx, req)
	if domain.ClosesConnection(err) || !domain.IsDomainError(err, "") {
		resp.Close = true
	}
	return resp
}

func (h *Handler) route(ctx context.Context, req *http1.Request) *http1.Response {
	switch req.Method {
	case "GET", "HEAD":
		return h.serveGet(ctx, req)
	case "POST":
		if req.Path == h.cfg.SubmitPath {
			return h.serveSubmit(ctx, req)
		}
		return h.errorResponse(ctx, req, domain.ErrNotFound.Errorf("no POST handler for %s", req.Path))
	case "OPTIONS":
		return h.serveOptions()
	}
	return h.errorResponse(ctx, req, domain.ErrMethodNotAllowed.Errorf("method %s", req.Method))
}

func (h *Handler) serveGet(ctx context.Context, req *http1.Request) *http1.Response {
	if h.cfg.ServerStatus && h.metrics != nil {
		switch req.Path {
		case h.cfg.StatusPath:
			return h.serveStatus(ctx, req)
		case h.cfg.MetricsPath:
			return h.serveMetrics(ctx, req)
		}
	}
	if req.Path == "*" {
		return h.errorResponse(ctx, req, domain.ErrNotFound)
	}
	return h.serveStatic(ctx, req)
}

func (h *Handler) serveOptions() *http1.Response {
	resp := http1.NewResponse(200)
	resp.Header.Set("Allow", AllowedMethods)
	resp.Header.Set("Content-Length", "0")
	return resp
}

// log returns the handler logger tagged with the request id from ctx.
func (h *Handler) log(ctx context.Context) *slog.Logger {
	if id := logger.RequestIDFromContext(ctx); id != "" {
		return h.logger.With("request_id", id)
	}
	return h.logger
}

// within reports whether target lies inside dir. Both must be clean.
func within(dir, target string) bool {
	if target == dir {
		return true
	}
	rel, err := filepath.Rel(dir, target)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}
