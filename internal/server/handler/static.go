package handler

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/yndnr/sockhttpd/internal/core/domain"
	"github.com/yndnr/sockhttpd/internal/protocol/http1"
	"github.com/yndnr/sockhttpd/internal/storage/filecache"
)

// resolve maps a normalized request path to a file below the document root.
func (h *Handler) resolve(urlPath string) (string, error) {
	fsPath := filepath.Join(h.root, filepath.FromSlash(strings.TrimPrefix(urlPath, "/")))
	if !within(h.root, fsPath) {
		return "", domain.ErrForbiddenPath.Errorf("%s escapes the document root", urlPath)
	}
	return fsPath, nil
}

// checkLink rejects paths whose symlinks lead outside the document root.
func (h *Handler) checkLink(urlPath, fsPath string) error {
	resolved, err := filepath.EvalSymlinks(fsPath)
	if err != nil {
		return statError(urlPath, err)
	}
	if !within(h.realRoot, resolved) {
		return domain.ErrForbiddenPath.Errorf("%s links outside the document root", urlPath)
	}
	return nil
}

func statError(urlPath string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return domain.ErrNotFound.Wrap(err).WithDetails(urlPath)
	case errors.Is(err, fs.ErrPermission):
		return domain.ErrForbiddenPath.Wrap(err).WithDetails(urlPath)
	}
	return domain.ErrInternalFault.Wrap(err).Errorf("stat %s", urlPath)
}

func (h *Handler) serveStatic(ctx context.Context, req *http1.Request) *http1.Response {
	fsPath, err := h.resolve(req.Path)
	if err != nil {
		return h.errorResponse(ctx, req, err)
	}
	info, err := os.Stat(fsPath)
	if err != nil {
		return h.errorResponse(ctx, req, statError(req.Path, err))
	}
	if err := h.checkLink(req.Path, fsPath); err != nil {
		return h.errorResponse(ctx, req, err)
	}

	if !info.IsDir() {
		if !info.Mode().IsRegular() {
			return h.errorResponse(ctx, req, domain.ErrNotFound.Errorf("%s is not a regular file", req.Path))
		}
		return h.serveFile(ctx, req, fsPath)
	}

	if !strings.HasSuffix(req.Path, "/") {
		location := req.Path + "/"
		if req.RawQuery != "" {
			location += "?" + req.RawQuery
		}
		resp := http1.NewResponse(301)
		resp.Header.Set("Location", location)
		return resp
	}

	index := filepath.Join(fsPath, h.cfg.IndexFile)
	if fi, err := os.Stat(index); err == nil && fi.Mode().IsRegular() {
		indexPath := req.Path + h.cfg.IndexFile
		if err := h.checkLink(indexPath, index); err != nil {
			return h.errorResponse(ctx, req, err)
		}
		return h.serveFile(ctx, req, index)
	}
	if h.cfg.DirectoryListing {
		return h.serveListing(ctx, req, fsPath)
	}
	return h.errorResponse(ctx, req, domain.ErrForbiddenPath.Errorf("directory listing disabled for %s", req.Path))
}

func (h *Handler) serveFile(ctx context.Context, req *http1.Request, fsPath string) *http1.Response {
	if !h.allowedType(filecache.ContentType(fsPath)) {
		return h.errorResponse(ctx, req, domain.ErrForbiddenPath.Errorf("file type of %s is not allowed", req.Path))
	}

	entry, hit, err := h.files.Load(fsPath)
	if err != nil {
		return h.errorResponse(ctx, req, statError(req.Path, err))
	}
	h.log(ctx).Debug("file resolved", "path", req.Path, "cache_hit", hit, "size", entry.Size)

	resp := http1.NewResponse(200)
	h.cachingHeaders(resp.Header, entry)
	if notModified(req, entry) {
		resp.StatusCode = 304
		resp.Header.Set("Content-Length", strconv.FormatInt(entry.Size, 10))
		return resp
	}
	resp.SetBody(entry.ContentType, entry.Content)
	return resp
}

func (h *Handler) serveListing(ctx context.Context, req *http1.Request, dir string) *http1.Response {
	dirents, err := os.ReadDir(dir)
	if err != nil {
		return h.errorResponse(ctx, req, statError(req.Path, err))
	}

	entries := make([]domain.ListingEntry, 0, len(dirents))
	for _, d := range dirents {
		info, err := d.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			continue
		}
		entries = append(entries, domain.ListingEntry{
			Name:    d.Name(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
			IsDir:   info.IsDir(),
		})
	}

	body, err := h.renderer.Listing(domain.NewListing(req.Path, entries, h.cfg.ShowHiddenFiles))
	if err != nil {
		return h.errorResponse(ctx, req, domain.ErrInternalFault.Wrap(err).WithDetails("render listing"))
	}
	resp := http1.NewResponse(200)
	resp.Header.Set("Cache-Control", "no-cache")
	resp.SetBody("text/html; charset=utf-8", body)
	return resp
}

// cachingHeaders sets the validators and the browser caching policy.
func (h *Handler) cachingHeaders(hdr http1.Header, e *filecache.Entry) {
	hdr.Set("Last-Modified", http1.FormatTime(e.ModTime))
	if e.ETag != "" {
		hdr.Set("ETag", e.ETag)
	}
	if !h.cfg.BrowserCaching || h.cfg.BrowserCacheTime <= 0 {
		hdr.Set("Cache-Control", "no-cache")
		return
	}
	maxAge := int64(h.cfg.BrowserCacheTime / time.Second)
	hdr.Set("Cache-Control", "public, max-age="+strconv.FormatInt(maxAge, 10))
	hdr.Set("Expires", http1.FormatTime(h.now().Add(h.cfg.BrowserCacheTime)))
}

// notModified evaluates If-None-Match, then If-Modified-Since. The second
// is ignored when the first is present.
func notModified(req *http1.Request, e *filecache.Entry) bool {
	if inm := req.Header.Get("If-None-Match"); inm != "" {
		return etagMatch(inm, e.ETag)
	}
	ims := req.Header.Get("If-Modified-Since")
	if ims == "" {
		return false
	}
	t, err := http1.ParseTime(ims)
	if err != nil {
		return false
	}
	return !e.ModTime.Truncate(time.Second).After(t)
}

// etagMatch applies the weak comparison of If-None-Match.
func etagMatch(header, etag string) bool {
	if etag == "" {
		return false
	}
	want := strings.TrimPrefix(etag, "W/")
	for _, tag := range strings.Split(header, ",") {
		tag = strings.TrimSpace(tag)
		if tag == "*" || strings.TrimPrefix(tag, "W/") == want {
			return true
		}
	}
	return false
}

// allowedType matches a content type against the allow list.
func (h *Handler) allowedType(contentType string) bool {
	if len(h.cfg.AllowedFileTypes) == 0 {
		return true
	}
	mt, _, _ := strings.Cut(contentType, ";")
	mt = strings.ToLower(strings.TrimSpace(mt))
	major, _, _ := strings.Cut(mt, "/")
	for _, allowed := range h.cfg.AllowedFileTypes {
		allowed = strings.ToLower(strings.TrimSpace(allowed))
		if allowed == mt || allowed == major+"/*" {
			return true
		}
	}
	return false
}
