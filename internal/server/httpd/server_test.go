package httpd

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yndnr/sockhttpd/internal/core/domain"
	"github.com/yndnr/sockhttpd/internal/infra/tlscert"
	"github.com/yndnr/sockhttpd/internal/protocol/http1"
	"github.com/yndnr/sockhttpd/internal/telemetry/logger"
)

// stubHandler answers "ok <path>" unless handle is set.
type stubHandler struct {
	handle func(ctx context.Context, req *http1.Request) *http1.Response
}

func (h *stubHandler) Handle(ctx context.Context, req *http1.Request) *http1.Response {
	if h.handle != nil {
		return h.handle(ctx, req)
	}
	resp := http1.NewResponse(200)
	resp.SetBody("text/plain", []byte("ok "+req.Path))
	return resp
}

func (h *stubHandler) Reject(_ context.Context, _ *http1.Request, err error) *http1.Response {
	resp := http1.NewResponse(domain.StatusOf(err))
	resp.SetBody("text/plain", []byte(domain.GetErrorCode(err)))
	resp.Close = domain.ClosesConnection(err)
	return resp
}

// countingMetrics implements Metrics for testing.
type countingMetrics struct {
	nopMetrics
	requests atomic.Int64
	rejects  atomic.Int64
	accepted atomic.Int64
}

func (m *countingMetrics) RecordRequest(string, int, time.Duration) { m.requests.Add(1) }
func (m *countingMetrics) RecordReject(string)                      { m.rejects.Add(1) }
func (m *countingMetrics) ConnAccepted()                            { m.accepted.Add(1) }

func testServerConfig() *Config {
	return &Config{
		Address:     "127.0.0.1:0",
		MaxWorkers:  4,
		QueueSize:   4,
		ReadTimeout: 2 * time.Second,
		KeepAlive:   true,
		IdleTimeout: 2 * time.Second,
		Limits:      http1.DefaultLimits(),
		ServerName:  "sockhttpd/test",
	}
}

func startServer(t *testing.T, cfg *Config, h Handler, m Metrics) *Server {
	t.Helper()
	if h == nil {
		h = &stubHandler{}
	}
	s := New(cfg, h, m, logger.Discard())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.Shutdown(ctx)
	})
	return s
}

// client is one test connection with its reader.
type client struct {
	t    *testing.T
	conn net.Conn
	br   *bufio.Reader
}

func dial(t *testing.T, s *Server) *client {
	t.Helper()
	c, err := net.DialTimeout("tcp", s.Addr().String(), time.Second)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return &client{t: t, conn: c, br: bufio.NewReader(c)}
}

// roundTrip writes raw and reads one response with its body.
func (c *client) roundTrip(raw string) (*http.Response, string) {
	c.t.Helper()
	c.conn.SetDeadline(time.Now().Add(3 * time.Second))
	if _, err := io.WriteString(c.conn, raw); err != nil {
		c.t.Fatalf("write error = %v", err)
	}
	return c.read()
}

func (c *client) read() (*http.Response, string) {
	c.t.Helper()
	resp, err := http.ReadResponse(c.br, nil)
	if err != nil {
		c.t.Fatalf("ReadResponse() error = %v", err)
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		c.t.Fatalf("read body error = %v", err)
	}
	return resp, string(body)
}

// expectClosed asserts the server closes the connection.
func (c *client) expectClosed() {
	c.t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	buf := make([]byte, 1)
	_, err := c.br.Read(buf)
	if err == nil {
		c.t.Fatal("connection still open, read a byte")
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		c.t.Fatal("connection still open after timeout")
	}
}

func get(path string) string {
	return "GET " + path + " HTTP/1.1\r\nHost: test\r\n\r\n"
}

// ===== Lifecycle =====

func TestServer_StartAndServe(t *testing.T) {
	m := &countingMetrics{}
	s := startServer(t, testServerConfig(), nil, m)

	if s.Addr() == nil {
		t.Fatal("Addr() = nil after Start")
	}

	c := dial(t, s)
	resp, body := c.roundTrip(get("/hello"))
	if resp.StatusCode != 200 || body != "ok /hello" {
		t.Errorf("response = %d %q", resp.StatusCode, body)
	}
	if resp.Header.Get("Server") != "sockhttpd/test" {
		t.Errorf("Server = %q", resp.Header.Get("Server"))
	}
	if resp.Header.Get("Date") == "" {
		t.Error("Date header missing")
	}
	if m.requests.Load() != 1 || m.accepted.Load() != 1 {
		t.Errorf("requests = %d, accepted = %d, want 1, 1", m.requests.Load(), m.accepted.Load())
	}
}

func TestServer_BindFailure(t *testing.T) {
	s := startServer(t, testServerConfig(), nil, nil)

	cfg := testServerConfig()
	cfg.Address = s.Addr().String()
	other := New(cfg, &stubHandler{}, nil, logger.Discard())
	if err := other.Start(context.Background()); err == nil {
		other.Shutdown(context.Background())
		t.Fatal("Start() on a bound address should fail")
	}
}

func TestServer_StartTwice(t *testing.T) {
	s := startServer(t, testServerConfig(), nil, nil)
	if err := s.Start(context.Background()); err == nil {
		t.Error("second Start() should fail")
	}
}

// ===== Keep-alive =====

func TestServer_KeepAlive(t *testing.T) {
	s := startServer(t, testServerConfig(), nil, nil)
	c := dial(t, s)

	for i := 0; i < 3; i++ {
		resp, body := c.roundTrip(get(fmt.Sprintf("/%d", i)))
		if body != fmt.Sprintf("ok /%d", i) {
			t.Errorf("request %d body = %q", i, body)
		}
		if resp.Close {
			t.Errorf("request %d closed the connection", i)
		}
		if !strings.HasPrefix(resp.Header.Get("Keep-Alive"), "timeout=") {
			t.Errorf("Keep-Alive = %q", resp.Header.Get("Keep-Alive"))
		}
	}
}

func TestServer_Pipelined(t *testing.T) {
	s := startServer(t, testServerConfig(), nil, nil)
	c := dial(t, s)

	c.conn.SetDeadline(time.Now().Add(3 * time.Second))
	io.WriteString(c.conn, get("/a")+get("/b")+get("/c"))
	for _, want := range []string{"ok /a", "ok /b", "ok /c"} {
		if _, body := c.read(); body != want {
			t.Errorf("body = %q, want %q", body, want)
		}
	}
}

func TestServer_ConnectionClose(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"http/1.1 close", "GET / HTTP/1.1\r\nConnection: close\r\n\r\n"},
		{"http/1.0 default", "GET / HTTP/1.0\r\n\r\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := startServer(t, testServerConfig(), nil, nil)
			c := dial(t, s)
			resp, _ := c.roundTrip(tt.raw)
			if resp.Header.Get("Connection") != "close" {
				t.Errorf("Connection = %q, want close", resp.Header.Get("Connection"))
			}
			c.expectClosed()
		})
	}
}

func TestServer_HTTP10KeepAlive(t *testing.T) {
	s := startServer(t, testServerConfig(), nil, nil)
	c := dial(t, s)

	raw := "GET /x HTTP/1.0\r\nConnection: keep-alive\r\n\r\n"
	resp, _ := c.roundTrip(raw)
	if resp.Header.Get("Connection") != "keep-alive" {
		t.Errorf("Connection = %q, want keep-alive", resp.Header.Get("Connection"))
	}
	if _, body := c.roundTrip(raw); body != "ok /x" {
		t.Errorf("second body = %q", body)
	}
}

func TestServer_KeepAliveDisabled(t *testing.T) {
	cfg := testServerConfig()
	cfg.KeepAlive = false
	s := startServer(t, cfg, nil, nil)
	c := dial(t, s)

	resp, _ := c.roundTrip(get("/"))
	if resp.Header.Get("Connection") != "close" {
		t.Errorf("Connection = %q, want close", resp.Header.Get("Connection"))
	}
	c.expectClosed()
}

// ===== Timeouts =====

func TestServer_IdleTimeout(t *testing.T) {
	cfg := testServerConfig()
	cfg.IdleTimeout = 100 * time.Millisecond
	s := startServer(t, cfg, nil, nil)
	c := dial(t, s)

	c.roundTrip(get("/"))
	start := time.Now()
	c.expectClosed()
	if time.Since(start) > 2*time.Second {
		t.Error("idle connection closed too late")
	}
}

func TestServer_ReadTimeout(t *testing.T) {
	cfg := testServerConfig()
	cfg.ReadTimeout = 150 * time.Millisecond
	s := startServer(t, cfg, nil, nil)
	c := dial(t, s)

	// A request that never finishes its header block.
	io.WriteString(c.conn, "GET / HTTP/1.1\r\nHost: slow\r\n")
	c.expectClosed()

	// The server keeps serving other clients.
	if _, body := dial(t, s).roundTrip(get("/after")); body != "ok /after" {
		t.Errorf("body = %q", body)
	}
}

// ===== Errors =====

func TestServer_MalformedRequest(t *testing.T) {
	s := startServer(t, testServerConfig(), nil, nil)
	c := dial(t, s)

	resp, body := c.roundTrip("NOT A VALID REQUEST LINE\r\n\r\n")
	if resp.StatusCode != 400 {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	if body != domain.ErrMalformedRequest.Code {
		t.Errorf("body = %q", body)
	}
	c.expectClosed()
}

func TestServer_PayloadTooLarge(t *testing.T) {
	cfg := testServerConfig()
	cfg.Limits.MaxBodyBytes = 8
	s := startServer(t, cfg, nil, nil)
	c := dial(t, s)

	resp, _ := c.roundTrip("POST /submit HTTP/1.1\r\nContent-Length: 100\r\n\r\n")
	if resp.StatusCode != 413 {
		t.Errorf("status = %d, want 413", resp.StatusCode)
	}
	c.expectClosed()
}

func TestServer_MalformedBodyKeepsConnection(t *testing.T) {
	s := startServer(t, testServerConfig(), nil, nil)
	c := dial(t, s)

	raw := "POST /submit HTTP/1.1\r\nContent-Type: multipart/form-data\r\nContent-Length: 4\r\n\r\nabcd"
	resp, _ := c.roundTrip(raw)
	if resp.StatusCode != 400 {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if _, body := c.roundTrip(get("/next")); body != "ok /next" {
		t.Errorf("body after malformed body = %q", body)
	}
}

func TestServer_LengthMismatch(t *testing.T) {
	h := &stubHandler{handle: func(context.Context, *http1.Request) *http1.Response {
		resp := http1.NewResponse(200)
		resp.Header.Set("Content-Length", "99")
		resp.Body = []byte("short")
		return resp
	}}
	s := startServer(t, testServerConfig(), h, nil)
	c := dial(t, s)

	resp, body := c.roundTrip(get("/"))
	if resp.StatusCode != 500 {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
	if body != domain.ErrLengthMismatch.Code {
		t.Errorf("body = %q", body)
	}
	c.expectClosed()
}

func TestServer_RateLimit(t *testing.T) {
	cfg := testServerConfig()
	cfg.RateLimit = 1
	cfg.RateBurst = 2
	m := &countingMetrics{}
	s := startServer(t, cfg, nil, m)
	c := dial(t, s)

	var codes []int
	for i := 0; i < 3; i++ {
		resp, _ := c.roundTrip(get("/"))
		codes = append(codes, resp.StatusCode)
	}
	if codes[0] != 200 || codes[1] != 200 || codes[2] != 503 {
		t.Errorf("statuses = %v, want [200 200 503]", codes)
	}
	if m.rejects.Load() != 1 {
		t.Errorf("rejects = %d, want 1", m.rejects.Load())
	}
}

// ===== Concurrency =====

func TestServer_ConcurrentClients(t *testing.T) {
	cfg := testServerConfig()
	cfg.MaxWorkers = 4
	cfg.QueueSize = 2
	s := startServer(t, cfg, nil, nil)

	var g errgroup.Group
	for i := 0; i < 32; i++ {
		path := fmt.Sprintf("/c%d", i)
		g.Go(func() error {
			conn, err := net.DialTimeout("tcp", s.Addr().String(), time.Second)
			if err != nil {
				return err
			}
			defer conn.Close()
			conn.SetDeadline(time.Now().Add(5 * time.Second))
			if _, err := io.WriteString(conn, "GET "+path+" HTTP/1.1\r\nConnection: close\r\n\r\n"); err != nil {
				return err
			}
			resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return err
			}
			if string(body) != "ok "+path {
				return fmt.Errorf("body = %q, want %q", body, "ok "+path)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
}

func TestServer_Backpressure(t *testing.T) {
	release := make(chan struct{})
	h := &stubHandler{handle: func(_ context.Context, req *http1.Request) *http1.Response {
		<-release
		resp := http1.NewResponse(200)
		resp.SetBody("text/plain", []byte("ok "+req.Path))
		return resp
	}}
	cfg := testServerConfig()
	cfg.MaxWorkers = 1
	cfg.QueueSize = 1
	s := startServer(t, cfg, h, nil)

	clients := make([]*client, 3)
	for i := range clients {
		clients[i] = dial(t, s)
		clients[i].conn.SetDeadline(time.Now().Add(5 * time.Second))
		io.WriteString(clients[i].conn, "GET /"+fmt.Sprint(i)+" HTTP/1.1\r\nConnection: close\r\n\r\n")
	}

	waitFor(t, time.Second, func() bool { return s.Pool().Active() == 1 && s.Pool().Queued() == 1 })
	close(release)

	for i, c := range clients {
		if _, body := c.read(); body != fmt.Sprintf("ok /%d", i) {
			t.Errorf("client %d body = %q", i, body)
		}
	}
}

// ===== Shutdown =====

func TestServer_ShutdownClosesIdle(t *testing.T) {
	s := startServer(t, testServerConfig(), nil, nil)
	c := dial(t, s)
	c.roundTrip(get("/"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	c.expectClosed()

	if _, err := net.DialTimeout("tcp", s.Addr().String(), 200*time.Millisecond); err == nil {
		t.Error("listener still accepting after Shutdown")
	}
}

func TestServer_ShutdownFinishesActive(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	h := &stubHandler{handle: func(context.Context, *http1.Request) *http1.Response {
		close(started)
		<-release
		resp := http1.NewResponse(200)
		resp.SetBody("text/plain", []byte("done"))
		return resp
	}}
	s := startServer(t, testServerConfig(), h, nil)
	c := dial(t, s)
	c.conn.SetDeadline(time.Now().Add(5 * time.Second))
	io.WriteString(c.conn, get("/slow"))
	<-started

	errCh := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		errCh <- s.Shutdown(ctx)
	}()

	time.Sleep(50 * time.Millisecond)
	close(release)

	resp, body := c.read()
	if body != "done" {
		t.Errorf("body = %q, want done", body)
	}
	if resp.Header.Get("Connection") != "close" {
		t.Errorf("Connection = %q, want close during shutdown", resp.Header.Get("Connection"))
	}
	if err := <-errCh; err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestServer_ShutdownForce(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	h := &stubHandler{handle: func(context.Context, *http1.Request) *http1.Response {
		close(started)
		<-release
		return http1.NewResponse(200)
	}}
	s := startServer(t, testServerConfig(), h, nil)
	c := dial(t, s)
	io.WriteString(c.conn, get("/stuck"))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err := s.Shutdown(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Shutdown() error = %v, want DeadlineExceeded", err)
	}
	c.expectClosed()
}

// ===== TLS =====

func tlsServerConfig(t *testing.T) *tls.Config {
	t.Helper()
	certPEM, keyPEM, err := tlscert.GenerateSelfSigned([]string{"127.0.0.1"}, time.Hour)
	if err != nil {
		t.Fatalf("GenerateSelfSigned() error = %v", err)
	}
	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		t.Fatalf("X509KeyPair() error = %v", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
		NextProtos:   []string{"http/1.1"},
	}
}

func TestServer_TLS(t *testing.T) {
	cfg := testServerConfig()
	cfg.TLSConfig = tlsServerConfig(t)
	m := &countingMetrics{}
	s := startServer(t, cfg, nil, m)

	// A plaintext client fails the handshake without stopping the server.
	plain := dial(t, s)
	io.WriteString(plain.conn, get("/"))
	plain.expectClosed()
	waitFor(t, time.Second, func() bool { return m.rejects.Load() == 1 })

	conn, err := tls.Dial("tcp", s.Addr().String(), &tls.Config{InsecureSkipVerify: true})
	if err != nil {
		t.Fatalf("tls.Dial() error = %v", err)
	}
	defer conn.Close()
	c := &client{t: t, conn: conn, br: bufio.NewReader(conn)}

	for _, path := range []string{"/secure", "/again"} {
		if _, body := c.roundTrip(get(path)); body != "ok "+path {
			t.Errorf("body = %q, want %q", body, "ok "+path)
		}
	}
	if v := conn.ConnectionState().Version; v < tls.VersionTLS12 {
		t.Errorf("negotiated version %x below TLS 1.2", v)
	}
}

// ===== Helpers =====

func TestRejectReason(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{domain.ErrMalformedRequest.Wrap(domain.ErrHeaderTooLarge), "header_too_large"},
		{domain.ErrPayloadTooLarge, "payload_too_large"},
		{domain.ErrMalformedBody, "malformed_body"},
		{domain.ErrMalformedRequest, "malformed_request"},
		{domain.ErrForbiddenPath, "forbidden_path"},
		{&net.OpError{Op: "read", Err: timeoutErr{}}, "timeout"},
		{io.ErrUnexpectedEOF, "read_error"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := rejectReason(tt.err); got != tt.want {
				t.Errorf("rejectReason(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }
