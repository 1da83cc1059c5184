package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"github.com/yndnr/sockhttpd/internal/core/domain"
	"github.com/yndnr/sockhttpd/internal/protocol/http1"
	"github.com/yndnr/sockhttpd/internal/telemetry/metric"
)

// recentUploads bounds the uploads listed on the status page.
const recentUploads = 10

// serveStatus renders the status snapshot as HTML, or as JSON when asked
// with ?format=json or an Accept header preferring application/json.
func (h *Handler) serveStatus(ctx context.Context, req *http1.Request) *http1.Response {
	snap := h.metrics.Snapshot()
	if h.uploads != nil {
		act, err := h.uploads.Activity(ctx, recentUploads)
		if err != nil {
			h.log(ctx).Warn("upload activity unavailable", "error", err)
		} else {
			snap.Uploads = act
		}
	}

	resp := http1.NewResponse(200)
	resp.Header.Set("Cache-Control", "no-store, no-cache, must-revalidate")

	if wantsJSON(req) {
		body, err := json.MarshalIndent(snap, "", "  ")
		if err != nil {
			return h.errorResponse(ctx, req, domain.ErrInternalFault.Wrap(err).WithDetails("encode status"))
		}
		resp.SetBody("application/json", append(body, '\n'))
		return resp
	}

	body, err := h.renderer.Status(snap)
	if err != nil {
		return h.errorResponse(ctx, req, domain.ErrInternalFault.Wrap(err).WithDetails("render status"))
	}
	resp.SetBody("text/html; charset=utf-8", body)
	return resp
}

// serveMetrics writes the prometheus text exposition.
func (h *Handler) serveMetrics(ctx context.Context, req *http1.Request) *http1.Response {
	var buf bytes.Buffer
	if err := h.metrics.WriteText(&buf); err != nil {
		return h.errorResponse(ctx, req, domain.ErrInternalFault.Wrap(err).WithDetails("gather metrics"))
	}
	resp := http1.NewResponse(200)
	resp.Header.Set("Cache-Control", "no-store")
	resp.SetBody(metric.TextContentType, buf.Bytes())
	return resp
}

func wantsJSON(req *http1.Request) bool {
	if req.Query.Get("format") == "json" {
		return true
	}
	accept := req.Header.Get("Accept")
	return strings.Contains(accept, "application/json") && !strings.Contains(accept, "text/html")
}
