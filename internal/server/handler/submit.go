package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"

	"github.com/yndnr/sockhttpd/internal/core/domain"
	"github.com/yndnr/sockhttpd/internal/protocol/http1"
	"github.com/yndnr/sockhttpd/internal/storage/uploads"
)

// serveSubmit accepts a form, JSON or multipart submission and redirects to
// the success page.
func (h *Handler) serveSubmit(ctx context.Context, req *http1.Request) *http1.Response {
	isJSON := req.MediaType() == "application/json"
	if isJSON && len(req.Body) > 0 && !json.Valid(req.Body) {
		return h.errorResponse(ctx, req, domain.ErrMalformedBody.WithDetails("invalid JSON body"))
	}

	files := submittedFiles(req)
	if len(req.Form) == 0 && len(files) == 0 && !(isJSON && hasJSONContent(req.Body)) {
		return h.errorResponse(ctx, req, domain.ErrEmptySubmission)
	}

	var stored []string
	for _, part := range files {
		if h.uploads == nil {
			h.log(ctx).Info("upload ignored, uploads disabled",
				"field", part.FieldName, "file_name", part.FileName, "size", len(part.Content))
			continue
		}
		rec, err := h.uploads.Save(ctx, uploads.Upload{
			Field:       part.FieldName,
			FileName:    part.FileName,
			ContentType: part.ContentType,
			Content:     part.Content,
			ClientAddr:  req.RemoteAddr,
			RequestID:   req.ID,
		})
		if err != nil {
			return h.errorResponse(ctx, req, domain.ErrInternalFault.Wrap(err).WithDetails("store upload"))
		}
		if h.metrics != nil {
			h.metrics.RecordUpload(rec.Size)
		}
		h.log(ctx).Info("file uploaded",
			"id", rec.ID, "field", rec.Field, "stored_name", rec.StoredName, "size", rec.Size)
		stored = append(stored, rec.ID)
	}

	attrs := []any{"fields", len(req.Form), "files", len(files), "stored", len(stored), "json", isJSON}
	if h.uploads != nil {
		sub := uploads.Submission{
			Fields:     req.Form,
			Uploads:    stored,
			ClientAddr: req.RemoteAddr,
			RequestID:  req.ID,
		}
		if isJSON && hasJSONContent(req.Body) {
			sub.JSON = json.RawMessage(req.Body)
		}
		rec, err := h.uploads.SaveSubmission(ctx, sub)
		if err != nil {
			return h.errorResponse(ctx, req, domain.ErrInternalFault.Wrap(err).WithDetails("store submission"))
		}
		attrs = append(attrs, "id", rec.ID)
	}
	h.log(ctx).Info("form submitted", attrs...)

	resp := http1.NewResponse(303)
	resp.Header.Set("Location", h.cfg.SuccessLocation)
	resp.Header.Set("Content-Length", "0")
	return resp
}

// submittedFiles returns the file parts that carry a file name, ordered by
// field name. A file input left empty is sent with an empty file name.
func submittedFiles(req *http1.Request) []*http1.FilePart {
	fields := make([]string, 0, len(req.Files))
	for name := range req.Files {
		fields = append(fields, name)
	}
	sort.Strings(fields)

	var out []*http1.FilePart
	for _, name := range fields {
		for _, part := range req.Files[name] {
			if part.FileName == "" {
				continue
			}
			out = append(out, part)
		}
	}
	return out
}

// hasJSONContent reports whether a valid JSON body carries any data.
func hasJSONContent(body []byte) bool {
	switch string(bytes.TrimSpace(body)) {
	case "", "null", "{}", "[]", `""`:
		return false
	}
	return true
}
