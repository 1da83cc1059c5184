package http1

import (
	"bufio"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/yndnr/sockhttpd/internal/core/domain"
)

// Response is a fully buffered response decision.
type Response struct {
	StatusCode int
	Header     Header
	Body       []byte

	// SkipBody omits the body on the wire while keeping its Content-Length.
	// Set for HEAD requests.
	SkipBody bool

	// Close ends the connection after the response is written.
	Close bool
}

// NewResponse returns an empty response with the given status.
func NewResponse(code int) *Response {
	return &Response{StatusCode: code, Header: make(Header)}
}

// SetBody sets the body together with its Content-Type and Content-Length.
func (r *Response) SetBody(contentType string, body []byte) {
	r.Body = body
	if contentType != "" {
		r.Header.Set("Content-Type", contentType)
	}
	r.Header.Set("Content-Length", strconv.Itoa(len(body)))
}

// leadingHeaders are written first, in this order. The rest follow sorted by key.
var leadingHeaders = []string{"Date", "Server", "Content-Type", "Content-Length", "Connection"}

var headerValueReplacer = strings.NewReplacer("\r", " ", "\n", " ")

// Builder serializes responses.
type Builder struct {
	ServerName string
	Now        func() time.Time
}

// NewBuilder returns a Builder that stamps responses with serverName.
func NewBuilder(serverName string) *Builder {
	return &Builder{ServerName: serverName, Now: time.Now}
}

// Write serializes resp to w and flushes it if w is a *bufio.Writer.
//
// Date and Server are filled in when absent. Content-Length is derived from
// the body when absent and removed for 1xx and 204. A 304 never carries a
// body but keeps a declared Content-Length. Otherwise a Content-Length that
// disagrees with the body yields ErrLengthMismatch before any byte is written.
func (b *Builder) Write(w io.Writer, resp *Response) error {
	if resp.Header == nil {
		resp.Header = make(Header)
	}
	h := resp.Header

	switch {
	case resp.StatusCode == 304:
		// A 304 keeps the Content-Length of the representation it stands for.
		resp.Body = nil
	case !bodyAllowed(resp.StatusCode):
		h.Del("Content-Length")
		resp.Body = nil
	default:
		want := strconv.Itoa(len(resp.Body))
		if cl := h.Values("Content-Length"); len(cl) > 0 {
			if len(cl) != 1 || cl[0] != want {
				return domain.ErrLengthMismatch.Errorf("declared %v, body has %s bytes", cl, want)
			}
		} else {
			h.Set("Content-Length", want)
		}
	}

	if !h.Has("Date") {
		now := time.Now
		if b.Now != nil {
			now = b.Now
		}
		h.Set("Date", FormatTime(now()))
	}
	if !h.Has("Server") && b.ServerName != "" {
		h.Set("Server", b.ServerName)
	}
	if resp.Close {
		h.Set("Connection", "close")
	}

	bw, ok := w.(*bufio.Writer)
	if !ok {
		bw = bufio.NewWriter(w)
	}

	bw.WriteString("HTTP/1.1 ")
	bw.WriteString(strconv.Itoa(resp.StatusCode))
	bw.WriteByte(' ')
	bw.WriteString(StatusText(resp.StatusCode))
	bw.WriteString("\r\n")

	for _, key := range orderedKeys(h) {
		for _, v := range h[key] {
			bw.WriteString(key)
			bw.WriteString(": ")
			bw.WriteString(headerValueReplacer.Replace(v))
			bw.WriteString("\r\n")
		}
	}
	bw.WriteString("\r\n")

	if !resp.SkipBody && len(resp.Body) > 0 {
		bw.Write(resp.Body)
	}
	return bw.Flush()
}

// orderedKeys returns the header keys in wire order.
func orderedKeys(h Header) []string {
	keys := make([]string, 0, len(h))
	for _, k := range leadingHeaders {
		if len(h[k]) > 0 {
			keys = append(keys, k)
		}
	}
	rest := make([]string, 0, len(h))
	for k, v := range h {
		if len(v) == 0 || isLeading(k) {
			continue
		}
		rest = append(rest, k)
	}
	sort.Strings(rest)
	return append(keys, rest...)
}

func isLeading(k string) bool {
	for _, l := range leadingHeaders {
		if k == l {
			return true
		}
	}
	return false
}
