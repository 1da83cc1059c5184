package http1

import (
	"bytes"
	"mime"
	"net/url"
	"strings"

	"github.com/yndnr/sockhttpd/internal/core/domain"
)

// FilePart is one file field of a multipart/form-data body.
type FilePart struct {
	FieldName   string
	FileName    string
	ContentType string
	Header      Header
	Content     []byte
}

// Size returns the content length in bytes.
func (f *FilePart) Size() int64 {
	return int64(len(f.Content))
}

var crlf = []byte("\r\n")

// ParseMultipart splits a multipart/form-data body on boundary.
//
// Text parts are collected into the returned form and parts carrying a
// filename into files. File content is a sub-slice of body and is byte-exact.
// A missing opening or closing delimiter, or a part without a header/body
// separator, yields ErrMalformedBody.
func ParseMultipart(body []byte, boundary string, maxParts int) (url.Values, map[string][]*FilePart, error) {
	if boundary == "" || len(boundary) > 70 {
		return nil, nil, domain.ErrMalformedBody.WithDetails("invalid multipart boundary")
	}
	delim := []byte("--" + boundary)
	nextDelim := append([]byte("\r\n"), delim...)

	// The preamble is ignored; the first delimiter may start the body.
	var pos int
	if bytes.HasPrefix(body, delim) {
		pos = len(delim)
	} else {
		i := bytes.Index(body, nextDelim)
		if i < 0 {
			return nil, nil, domain.ErrMalformedBody.WithDetails("multipart boundary not found")
		}
		pos = i + len(nextDelim)
	}

	form := make(url.Values)
	files := make(map[string][]*FilePart)
	for parts := 0; ; parts++ {
		rest := body[pos:]
		if bytes.HasPrefix(rest, []byte("--")) {
			return form, files, nil
		}
		if parts >= maxParts {
			return nil, nil, domain.ErrPayloadTooLarge.Errorf("more than %d multipart parts", maxParts)
		}

		// Transport padding after the delimiter, then CRLF.
		rest = bytes.TrimLeft(rest, " \t")
		if !bytes.HasPrefix(rest, crlf) {
			return nil, nil, domain.ErrMalformedBody.WithDetails("malformed multipart delimiter line")
		}
		start := len(body) - len(rest) + len(crlf)

		end := bytes.Index(body[start:], nextDelim)
		if end < 0 {
			return nil, nil, domain.ErrMalformedBody.WithDetails("missing closing multipart boundary")
		}
		end += start

		if err := addPart(form, files, body[start:end]); err != nil {
			return nil, nil, err
		}
		pos = end + len(nextDelim)
	}
}

func addPart(form url.Values, files map[string][]*FilePart, raw []byte) error {
	var headerBlock, content []byte
	if bytes.HasPrefix(raw, crlf) {
		content = raw[len(crlf):]
	} else {
		i := bytes.Index(raw, []byte("\r\n\r\n"))
		if i < 0 {
			return domain.ErrMalformedBody.WithDetails("multipart part without header separator")
		}
		headerBlock, content = raw[:i], raw[i+4:]
	}

	h := make(Header)
	for _, line := range strings.Split(string(headerBlock), "\r\n") {
		if line == "" {
			continue
		}
		k, v, ok := strings.Cut(line, ":")
		if !ok {
			return domain.ErrMalformedBody.Errorf("multipart header without colon %q", truncate(line, 64))
		}
		h.Add(strings.TrimSpace(k), strings.TrimSpace(v))
	}

	disposition, params, err := mime.ParseMediaType(h.Get("Content-Disposition"))
	if err != nil || disposition != "form-data" {
		return domain.ErrMalformedBody.WithDetails("multipart part without form-data disposition")
	}
	name := params["name"]
	if name == "" {
		// Unnamed parts cannot be addressed by the handler.
		return nil
	}

	filename, isFile := params["filename"]
	if !isFile {
		form.Add(name, string(content))
		return nil
	}
	ct := h.Get("Content-Type")
	if ct == "" {
		ct = "application/octet-stream"
	}
	files[name] = append(files[name], &FilePart{
		FieldName:   name,
		FileName:    filename,
		ContentType: ct,
		Header:      h,
		Content:     content,
	})
	return nil
}
