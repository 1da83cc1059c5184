package http1

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/url"
	"strconv"
	"strings"

	"github.com/yndnr/sockhttpd/internal/core/domain"
)

// Protocol limits to prevent DoS attacks.
const (
	// DefaultMaxHeaderBytes bounds the request line plus all header lines (16KB).
	DefaultMaxHeaderBytes = 16 * 1024

	// DefaultMaxBodyBytes bounds a non-multipart request body (10MB).
	DefaultMaxBodyBytes = 10 << 20

	// DefaultMaxUploadBytes bounds a multipart/form-data body (10MB).
	DefaultMaxUploadBytes = 10 << 20

	// DefaultMaxParts limits the number of parts in one multipart body.
	DefaultMaxParts = 1000

	// maxEmptyLines is how many stray CRLFs are skipped before a request line.
	maxEmptyLines = 4
)

// Limits bounds the memory a single request may claim.
type Limits struct {
	MaxHeaderBytes int
	MaxBodyBytes   int64
	MaxUploadBytes int64
	MaxParts       int
}

// DefaultLimits returns the default parser limits.
func DefaultLimits() Limits {
	return Limits{
		MaxHeaderBytes: DefaultMaxHeaderBytes,
		MaxBodyBytes:   DefaultMaxBodyBytes,
		MaxUploadBytes: DefaultMaxUploadBytes,
		MaxParts:       DefaultMaxParts,
	}
}

// Request is one parsed HTTP request. It is owned by the worker that read it.
type Request struct {
	Method     string
	Target     string // raw request target as sent
	Path       string // decoded and normalized, always absolute
	RawQuery   string
	Query      url.Values
	Proto      string
	ProtoMinor int
	Header     Header

	ContentLength int64
	Body          []byte

	// Form holds urlencoded fields and multipart text parts.
	Form url.Values
	// Files holds multipart file parts by field name.
	Files map[string][]*FilePart

	RemoteAddr string
	ID         string

	// Close is set when the connection must end after this request.
	Close bool
}

// IsHead reports whether the response body must be omitted.
func (r *Request) IsHead() bool {
	return r.Method == "HEAD"
}

// MediaType returns the lowercased media type of the Content-Type header.
func (r *Request) MediaType() string {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return ""
	}
	return mt
}

// Parser reads requests from a buffered connection.
type Parser struct {
	limits Limits
}

// NewParser creates a parser. Zero limits are replaced by defaults.
func NewParser(limits Limits) *Parser {
	def := DefaultLimits()
	if limits.MaxHeaderBytes <= 0 {
		limits.MaxHeaderBytes = def.MaxHeaderBytes
	}
	if limits.MaxBodyBytes <= 0 {
		limits.MaxBodyBytes = def.MaxBodyBytes
	}
	if limits.MaxUploadBytes <= 0 {
		limits.MaxUploadBytes = def.MaxUploadBytes
	}
	if limits.MaxParts <= 0 {
		limits.MaxParts = def.MaxParts
	}
	return &Parser{limits: limits}
}

// Limits returns the effective limits.
func (p *Parser) Limits() Limits {
	return p.limits
}

// ReadRequest reads exactly one request from r.
//
// io.EOF is returned unchanged when the stream ends before the first byte.
// Protocol violations are domain errors. When the request line and headers
// were parsed, the partial request is returned together with the error so the
// caller can answer it (HEAD, keep-alive). Other errors (timeouts, resets)
// are returned as is.
func (p *Parser) ReadRequest(r *bufio.Reader) (*Request, error) {
	budget := p.limits.MaxHeaderBytes

	var line []byte
	for i := 0; ; i++ {
		var (
			n   int
			err error
		)
		line, n, err = readLine(r, budget)
		if err != nil {
			if errors.Is(err, io.EOF) && i == 0 {
				return nil, io.EOF
			}
			return nil, p.headerErr(err)
		}
		budget -= n
		if len(line) > 0 {
			break
		}
		if i >= maxEmptyLines {
			return nil, domain.ErrMalformedRequest.WithDetails("missing request line")
		}
	}

	req, err := parseRequestLine(string(line))
	if err != nil {
		return nil, err
	}

	for {
		line, n, err := readLine(r, budget)
		if err != nil {
			req.Close = true
			return req, p.headerErr(err)
		}
		budget -= n
		if len(line) == 0 {
			break
		}
		if err := parseHeaderLine(req.Header, string(line)); err != nil {
			req.Close = true
			return req, err
		}
	}

	req.Close = !keepAlive(req)

	if err := p.readBody(r, req); err != nil {
		if domain.ClosesConnection(err) {
			req.Close = true
		}
		return req, err
	}

	target := req.Target
	if i := strings.IndexByte(target, '?'); i >= 0 {
		req.RawQuery = target[i+1:]
		target = target[:i]
	}
	req.Query, _ = url.ParseQuery(req.RawQuery)

	if req.Target == "*" {
		req.Path = "*"
		return req, nil
	}
	clean, err := CleanPath(target)
	if err != nil {
		return req, err
	}
	req.Path = clean
	return req, nil
}

func (p *Parser) headerErr(err error) error {
	switch {
	case domain.IsDomainError(err, ""):
		return err
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return domain.ErrMalformedRequest.Wrap(err).WithDetails("truncated header block")
	}
	return err
}

func (p *Parser) readBody(r *bufio.Reader, req *Request) error {
	if req.Header.Has("Transfer-Encoding") {
		return domain.ErrMalformedRequest.WithDetails("transfer-encoding is not supported")
	}

	values := req.Header.Values("Content-Length")
	if len(values) == 0 {
		return nil
	}
	n, err := parseContentLength(values)
	if err != nil {
		return err
	}
	req.ContentLength = n

	mediaType := req.MediaType()
	limit := p.limits.MaxBodyBytes
	if mediaType == "multipart/form-data" {
		limit = p.limits.MaxUploadBytes
	}
	if n > limit {
		return domain.ErrPayloadTooLarge.Errorf("content length %d exceeds limit %d", n, limit)
	}
	if n == 0 {
		return nil
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		req.Close = true
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return domain.ErrMalformedBody.Wrap(err).Errorf("body shorter than content length %d", n)
		}
		return err
	}
	req.Body = body

	switch mediaType {
	case "multipart/form-data":
		return p.decodeMultipart(req)
	case "application/x-www-form-urlencoded":
		form, err := url.ParseQuery(string(body))
		if err != nil {
			return domain.ErrMalformedBody.Wrap(err).WithDetails("invalid urlencoded body")
		}
		req.Form = form
	}
	return nil
}

func (p *Parser) decodeMultipart(req *Request) error {
	_, params, err := mime.ParseMediaType(req.Header.Get("Content-Type"))
	if err != nil {
		return domain.ErrMalformedBody.Wrap(err).WithDetails("invalid content type")
	}
	boundary := params["boundary"]
	if boundary == "" {
		return domain.ErrMalformedBody.WithDetails("missing multipart boundary")
	}
	form, files, err := ParseMultipart(req.Body, boundary, p.limits.MaxParts)
	if err != nil {
		return err
	}
	req.Form = form
	req.Files = files
	return nil
}

func parseRequestLine(line string) (*Request, error) {
	parts := strings.Split(line, " ")
	if len(parts) != 3 {
		return nil, domain.ErrMalformedRequest.Errorf("invalid request line %q", truncate(line, 64))
	}
	method, target, proto := parts[0], parts[1], parts[2]

	if !isToken(method) {
		return nil, domain.ErrMalformedRequest.Errorf("invalid method %q", truncate(method, 16))
	}
	minor, ok := parseVersion(proto)
	if !ok {
		return nil, domain.ErrMalformedRequest.Errorf("unsupported version %q", truncate(proto, 16))
	}
	if target == "" {
		return nil, domain.ErrMalformedRequest.WithDetails("empty request target")
	}

	// absolute-form: keep only the path and query.
	if !strings.HasPrefix(target, "/") && target != "*" {
		u, err := url.Parse(target)
		if err != nil || u.Scheme == "" {
			return nil, domain.ErrMalformedRequest.Errorf("invalid request target %q", truncate(target, 64))
		}
		target = u.EscapedPath()
		if target == "" {
			target = "/"
		}
		if u.RawQuery != "" {
			target += "?" + u.RawQuery
		}
	}

	return &Request{
		Method:     method,
		Target:     target,
		Proto:      proto,
		ProtoMinor: minor,
		Header:     make(Header),
	}, nil
}

func parseVersion(proto string) (int, bool) {
	switch proto {
	case "HTTP/1.1":
		return 1, true
	case "HTTP/1.0":
		return 0, true
	}
	return 0, false
}

func parseHeaderLine(h Header, line string) error {
	if line[0] == ' ' || line[0] == '\t' {
		return domain.ErrMalformedRequest.WithDetails("obsolete line folding")
	}
	i := strings.IndexByte(line, ':')
	if i < 0 {
		return domain.ErrMalformedRequest.Errorf("header line without colon %q", truncate(line, 64))
	}
	name := line[:i]
	if !isToken(name) {
		return domain.ErrMalformedRequest.Errorf("invalid header name %q", truncate(name, 64))
	}
	h.Add(name, strings.TrimSpace(line[i+1:]))
	return nil
}

func parseContentLength(values []string) (int64, error) {
	var n int64 = -1
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			m, err := strconv.ParseInt(part, 10, 64)
			if err != nil || m < 0 || part[0] == '+' {
				return 0, domain.ErrMalformedRequest.Errorf("invalid content length %q", truncate(v, 32))
			}
			if n >= 0 && m != n {
				return 0, domain.ErrMalformedRequest.WithDetails("conflicting content length values")
			}
			n = m
		}
	}
	return n, nil
}

func keepAlive(req *Request) bool {
	if req.Header.HasToken("Connection", "close") {
		return false
	}
	if req.ProtoMinor == 0 {
		return req.Header.HasToken("Connection", "keep-alive")
	}
	return true
}

// readLine reads one line terminated by LF (CRLF preferred) without letting
// it grow past maxLen. It returns the line without terminator and the number
// of bytes consumed.
func readLine(r *bufio.Reader, maxLen int) ([]byte, int, error) {
	var buf []byte
	for {
		frag, err := r.ReadSlice('\n')
		buf = append(buf, frag...)
		if len(buf) > maxLen {
			return nil, len(buf), domain.ErrMalformedRequest.Wrap(domain.ErrHeaderTooLarge).
				Errorf("header block exceeds limit")
		}
		if err == nil {
			break
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if errors.Is(err, io.EOF) && len(buf) > 0 {
			return nil, len(buf), io.ErrUnexpectedEOF
		}
		return nil, len(buf), err
	}

	n := len(buf)
	buf = buf[:n-1]
	if len(buf) > 0 && buf[len(buf)-1] == '\r' {
		buf = buf[:len(buf)-1]
	}
	return buf, n, nil
}

func isToken(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c <= ' ' || c >= 0x7f || strings.IndexByte(`"(),/:;<=>?@[\]{}`, c) >= 0 {
			return false
		}
	}
	return true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return fmt.Sprintf("%s...", s[:n])
}
