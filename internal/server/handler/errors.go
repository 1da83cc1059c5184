package handler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"

	"github.com/yndnr/sockhttpd/internal/core/domain"
	"github.com/yndnr/sockhttpd/internal/protocol/http1"
)

// errorResponse answers err with its status. The body is the custom page
// <docroot>/<status>.html when it can be read, else the renderer fallback.
func (h *Handler) errorResponse(ctx context.Context, req *http1.Request, err error) *http1.Response {
	return h.buildError(ctx, req, err, true)
}

// fallbackError is errorResponse without the custom page lookup.
func (h *Handler) fallbackError(ctx context.Context, req *http1.Request, err error) *http1.Response {
	return h.buildError(ctx, req, err, false)
}

func (h *Handler) buildError(ctx context.Context, req *http1.Request, err error, custom bool) *http1.Response {
	code := domain.StatusOf(err)
	h.logError(ctx, req, code, err)

	resp := http1.NewResponse(code)
	resp.Header.Set("Cache-Control", "no-store")
	switch code {
	case 405:
		resp.Header.Set("Allow", AllowedMethods)
	case 503:
		resp.Header.Set("Retry-After", "1")
	}

	if custom {
		if body, ok := h.customPage(code); ok {
			resp.SetBody("text/html; charset=utf-8", body)
			return resp
		}
	}
	resp.SetBody("text/html; charset=utf-8", h.renderer.ErrorPage(code, http1.StatusText(code), publicDetail(err)))
	return resp
}

func (h *Handler) customPage(code int) ([]byte, bool) {
	if h.files == nil {
		return nil, false
	}
	page := filepath.Join(h.root, strconv.Itoa(code)+".html")
	resolved, err := filepath.EvalSymlinks(page)
	if err != nil || !within(h.realRoot, resolved) {
		return nil, false
	}
	info, err := os.Stat(resolved)
	if err != nil || !info.Mode().IsRegular() {
		return nil, false
	}
	entry, _, err := h.files.Load(page)
	if err != nil {
		return nil, false
	}
	return entry.Content, true
}

// publicDetail is the part of err shown to clients. Server side faults only
// show their message.
func publicDetail(err error) string {
	var de *domain.DomainError
	if !errors.As(err, &de) {
		return ""
	}
	if de.Status >= 500 || de.Details == "" {
		return de.Message
	}
	return de.Message + ": " + de.Details
}

func (h *Handler) logError(ctx context.Context, req *http1.Request, code int, err error) {
	attrs := []any{"status", code, "code", domain.GetErrorCode(err), "error", err}
	if req != nil {
		attrs = append(attrs, "method", req.Method, "path", req.Path)
	}
	if code >= 500 {
		h.log(ctx).Error("request failed", attrs...)
		return
	}
	h.log(ctx).Debug("request rejected", attrs...)
}
