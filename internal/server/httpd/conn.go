package httpd

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/yndnr/sockhttpd/internal/core/domain"
	"github.com/yndnr/sockhttpd/internal/protocol/http1"
	"github.com/yndnr/sockhttpd/internal/telemetry/logger"
)

type connState int

const (
	stateNew connState = iota
	stateActive
	stateIdle
)

// conn is one client connection, owned by a single worker.
type conn struct {
	srv    *Server
	raw    net.Conn
	rw     net.Conn // raw, or the TLS layer over it
	br     *bufio.Reader
	bw     *bufio.Writer
	remote string
	log    *slog.Logger

	mu     sync.Mutex
	state  connState
	closed bool
}

func newConn(s *Server, nc net.Conn) *conn {
	remote := nc.RemoteAddr().String()
	return &conn{
		srv:    s,
		raw:    nc,
		rw:     nc,
		br:     bufio.NewReader(nc),
		bw:     bufio.NewWriter(nc),
		remote: remote,
		log:    s.logger.With("remote", remote),
	}
}

// setState records st and reports whether the connection is still open.
func (c *conn) setState(st connState) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = st
	return !c.closed
}

func (c *conn) closeIfIdle() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == stateIdle && !c.closed {
		c.closed = true
		c.raw.Close()
	}
}

// close closes the socket. It does not wait for a TLS close_notify.
func (c *conn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		c.raw.Close()
	}
}

func (c *conn) serve(ctx context.Context) {
	s := c.srv

	if s.cfg.TLSConfig != nil {
		if err := c.handshake(ctx); err != nil {
			s.metrics.RecordReject("handshake")
			c.log.Warn("tls handshake failed", "code", domain.GetErrorCode(err), "error", err)
			return
		}
	}

	wait := s.cfg.ReadTimeout
	for {
		if s.shutdown.Load() || !c.setState(stateIdle) {
			return
		}

		// Wait for the first byte, then bound the rest of the request.
		if err := c.rw.SetReadDeadline(time.Now().Add(wait)); err != nil {
			return
		}
		if _, err := c.br.Peek(1); err != nil {
			if !errors.Is(err, io.EOF) && !isTimeout(err) && !errors.Is(err, net.ErrClosed) {
				c.log.Debug("connection read error", "error", err)
			}
			return
		}
		if !c.setState(stateActive) {
			return
		}
		if err := c.rw.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout)); err != nil {
			return
		}

		if !c.serveRequest(ctx) {
			return
		}
		wait = s.cfg.IdleTimeout
	}
}

func (c *conn) handshake(ctx context.Context) error {
	tc := tls.Server(c.raw, c.srv.cfg.TLSConfig)
	deadline := time.Now().Add(c.srv.cfg.ReadTimeout)
	if err := tc.SetDeadline(deadline); err != nil {
		return domain.ErrHandshakeFailure.Wrap(err)
	}

	hctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()
	if err := tc.HandshakeContext(hctx); err != nil {
		return domain.ErrHandshakeFailure.Wrap(err)
	}
	if err := tc.SetDeadline(time.Time{}); err != nil {
		return domain.ErrHandshakeFailure.Wrap(err)
	}

	c.rw = tc
	c.br.Reset(tc)
	c.bw.Reset(tc)
	c.log.Debug("tls handshake complete",
		"version", tls.VersionName(tc.ConnectionState().Version),
		"cipher", tls.CipherSuiteName(tc.ConnectionState().CipherSuite),
	)
	return nil
}

// serveRequest reads, answers and writes one request. It reports whether
// the connection stays open.
func (c *conn) serveRequest(ctx context.Context) bool {
	s := c.srv
	start := time.Now()
	id := ulid.Make().String()
	ctx = logger.WithRequestID(ctx, id)

	req, err := s.parser.ReadRequest(c.br)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return false
		}
		if !domain.IsDomainError(err, "") {
			// Timeout or reset in the middle of a request: nothing to answer.
			s.metrics.RecordReject(rejectReason(err))
			c.log.Debug("read request failed", "request_id", id, "error", err)
			return false
		}
		if req != nil {
			req.RemoteAddr = c.remote
			req.ID = id
		}
		s.metrics.RecordReject(rejectReason(err))
		return c.finish(ctx, req, s.handler.Reject(ctx, req, err), start)
	}
	req.RemoteAddr = c.remote
	req.ID = id

	if s.limiter != nil && !s.limiter.Allow(c.remote) {
		s.metrics.RecordReject("rate_limited")
		err := domain.ErrRateLimited.Errorf("client over %.1f requests/s", s.cfg.RateLimit)
		return c.finish(ctx, req, s.handler.Reject(ctx, req, err), start)
	}
	return c.finish(ctx, req, s.handler.Handle(ctx, req), start)
}

// finish writes resp and reports whether the connection stays open.
func (c *conn) finish(ctx context.Context, req *http1.Request, resp *http1.Response, start time.Time) bool {
	s := c.srv

	keep := s.cfg.KeepAlive && req != nil && !req.Close && !resp.Close && !s.shutdown.Load()
	if !keep {
		resp.Close = true
	} else {
		if req.ProtoMinor == 0 {
			resp.Header.Set("Connection", "keep-alive")
		}
		resp.Header.Set("Keep-Alive", "timeout="+strconv.Itoa(int(s.cfg.IdleTimeout/time.Second)))
	}

	err := c.write(resp)
	if errors.Is(err, domain.ErrLengthMismatch) {
		c.log.Error("response framing error", "request_id", logger.RequestIDFromContext(ctx), "error", err)
		resp = s.handler.Reject(ctx, req, err)
		resp.Close = true
		err = c.write(resp)
	}

	method, target := "", ""
	if req != nil {
		method, target = req.Method, logger.RedactTarget(req.Target)
	}
	s.metrics.RecordRequest(method, resp.StatusCode, time.Since(start))
	c.log.Info("request",
		"request_id", logger.RequestIDFromContext(ctx),
		"method", method,
		"target", target,
		"status", resp.StatusCode,
		"bytes", len(resp.Body),
		"duration_ms", float64(time.Since(start).Microseconds())/1000,
	)

	if err != nil {
		if !isTimeout(err) && !errors.Is(err, net.ErrClosed) {
			c.log.Debug("write response failed", "error", err)
		}
		return false
	}
	return !resp.Close
}

func (c *conn) write(resp *http1.Response) error {
	if err := c.rw.SetWriteDeadline(time.Now().Add(c.srv.cfg.WriteTimeout)); err != nil {
		return err
	}
	return c.srv.builder.Write(c.bw, resp)
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// rejectReason labels a failed read for the rejected requests counter.
func rejectReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrHeaderTooLarge):
		return "header_too_large"
	case errors.Is(err, domain.ErrPayloadTooLarge):
		return "payload_too_large"
	case errors.Is(err, domain.ErrMalformedBody):
		return "malformed_body"
	case errors.Is(err, domain.ErrMalformedRequest):
		return "malformed_request"
	case errors.Is(err, domain.ErrForbiddenPath):
		return "forbidden_path"
	case isTimeout(err):
		return "timeout"
	}
	return "read_error"
}
