package handler

import (
	"context"
	"runtime/debug"
	"strconv"

	"github.com/yndnr/sockhttpd/internal/core/domain"
	"github.com/yndnr/sockhttpd/internal/protocol/http1"
)

// Func answers one request.
type Func func(ctx context.Context, req *http1.Request) *http1.Response

// Middleware wraps a Func with additional functionality.
type Middleware func(Func) Func

// Chain chains multiple middlewares together. The first middleware is the
// outermost.
func Chain(f Func, middlewares ...Middleware) Func {
	for i := len(middlewares) - 1; i >= 0; i-- {
		f = middlewares[i](f)
	}
	return f
}

// Recover turns a panic into a 500 response and logs the stack.
func (h *Handler) Recover() Middleware {
	return func(next Func) Func {
		return func(ctx context.Context, req *http1.Request) (resp *http1.Response) {
			defer func() {
				if r := recover(); r != nil {
					path := ""
					if req != nil {
						path = req.Path
					}
					h.log(ctx).Error("panic recovered",
						"error", r,
						"path", path,
						"stack", string(debug.Stack()),
					)
					resp = h.fallbackError(ctx, req, domain.ErrInternalFault.Errorf("panic: %v", r))
					resp.Close = true
				}
			}()
			return next(ctx, req)
		}
	}
}

// Headers finalizes every response: request id, security and CORS headers,
// and the HEAD body rule.
func (h *Handler) Headers() Middleware {
	return func(next Func) Func {
		return func(ctx context.Context, req *http1.Request) *http1.Response {
			resp := next(ctx, req)
			if resp == nil {
				resp = h.errorResponse(ctx, req, domain.ErrInternalFault.WithDetails("handler returned no response"))
			}
			if resp.Header == nil {
				resp.Header = make(http1.Header)
			}
			hdr := resp.Header

			if req != nil {
				if req.ID != "" {
					hdr.Set("X-Request-ID", req.ID)
				}
				if req.IsHead() {
					resp.SkipBody = true
				}
			}

			if h.cfg.SecurityHeaders {
				hdr.Set("X-Content-Type-Options", "nosniff")
				hdr.Set("X-Frame-Options", "SAMEORIGIN")
				hdr.Set("Referrer-Policy", "strict-origin-when-cross-origin")
				if h.cfg.ContentSecurityPolicy != "" {
					hdr.Set("Content-Security-Policy", h.cfg.ContentSecurityPolicy)
				}
			}

			if h.cfg.CORS {
				origin := h.cfg.CORSAllowOrigin
				if origin == "" {
					origin = "*"
				}
				hdr.Set("Access-Control-Allow-Origin", origin)
				hdr.Set("Access-Control-Allow-Methods", AllowedMethods)
				hdr.Set("Access-Control-Allow-Headers", "Content-Type, Accept, X-Requested-With")
				hdr.Set("Access-Control-Max-Age", strconv.Itoa(86400))
				if origin != "*" {
					hdr.Add("Vary", "Origin")
				}
			}
			return resp
		}
	}
}
