package httpd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yndnr/sockhttpd/internal/protocol/http1"
	"github.com/yndnr/sockhttpd/internal/telemetry/logger"
)

// shutdownPollInterval is how often Shutdown looks for connections that
// became idle.
const shutdownPollInterval = 50 * time.Millisecond

// Handler answers parsed requests.
type Handler interface {
	Handle(ctx context.Context, req *http1.Request) *http1.Response
	Reject(ctx context.Context, req *http1.Request, err error) *http1.Response
}

// Metrics receives connection and request events.
type Metrics interface {
	RecordRequest(method string, status int, d time.Duration)
	RecordReject(reason string)
	ConnAccepted()
	ConnActive(delta int64)
	ConnQueued(delta int64)
	SetWorkers(n int)
}

type nopMetrics struct{}

func (nopMetrics) RecordRequest(string, int, time.Duration) {}
func (nopMetrics) RecordReject(string)                      {}
func (nopMetrics) ConnAccepted()                            {}
func (nopMetrics) ConnActive(int64)                         {}
func (nopMetrics) ConnQueued(int64)                         {}
func (nopMetrics) SetWorkers(int)                           {}

// Server accepts connections and hands them to the worker pool.
type Server struct {
	cfg     Config
	handler Handler
	metrics Metrics
	logger  *slog.Logger
	parser  *http1.Parser
	builder *http1.Builder
	limiter *limiterRegistry
	pool    *Pool

	ln       net.Listener
	running  atomic.Bool
	shutdown atomic.Bool
	acceptWG sync.WaitGroup

	baseCtx context.Context
	cancel  context.CancelFunc

	mu    sync.Mutex
	conns map[*conn]struct{}
}

// New creates a server. A nil cfg uses DefaultConfig; nil metrics are dropped.
func New(cfg *Config, h Handler, m Metrics, logger *slog.Logger) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if m == nil {
		m = nopMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := cfg.withDefaults()
	s := &Server{
		cfg:     c,
		handler: h,
		metrics: m,
		logger:  logger,
		parser:  http1.NewParser(c.Limits),
		builder: http1.NewBuilder(c.ServerName),
		conns:   make(map[*conn]struct{}),
	}
	if c.RateLimit > 0 {
		s.limiter = newLimiterRegistry(c.RateLimit, c.RateBurst)
	}
	s.pool = NewPool(c.MaxWorkers, c.QueueSize, s.serveConn, s.discardConn)
	return s
}

// Start binds the listen address and starts the workers and the accept loop.
// A bind failure is returned. Start does not block.
func (s *Server) Start(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return errors.New("httpd: server already started")
	}

	ln, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		s.running.Store(false)
		return fmt.Errorf("httpd: listen %s: %w", s.cfg.Address, err)
	}
	s.ln = ln
	s.baseCtx, s.cancel = context.WithCancel(logger.WithLogger(ctx, s.logger))

	s.metrics.SetWorkers(s.cfg.MaxWorkers)
	s.pool.Start()

	s.acceptWG.Add(1)
	go s.acceptLoop(s.baseCtx)

	s.logger.Info("server listening",
		"address", ln.Addr().String(),
		"tls", s.cfg.TLSConfig != nil,
		"workers", s.cfg.MaxWorkers,
		"queue", s.cfg.QueueSize,
		"keep_alive", s.cfg.KeepAlive,
		"rate_limit", s.cfg.RateLimit,
	)
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Pool returns the worker pool.
func (s *Server) Pool() *Pool {
	return s.pool
}

// Shutdown stops accepting, drops queued connections, closes idle ones and
// waits for active connections to finish their current response. When ctx
// expires the remaining connections are closed, the request context is
// cancelled and ctx.Err() is returned without waiting for the workers.
func (s *Server) Shutdown(ctx context.Context) error {
	if !s.shutdown.CompareAndSwap(false, true) {
		return nil
	}
	s.logger.Info("server shutting down")

	var err error
	if s.ln != nil {
		if e := s.ln.Close(); e != nil && !errors.Is(e, net.ErrClosed) {
			err = e
		}
	}

	poolDone := make(chan struct{})
	go func() {
		s.pool.Close()
		close(poolDone)
	}()

	s.closeIdle()
	ticker := time.NewTicker(shutdownPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-poolDone:
			s.finishShutdown()
			s.logger.Info("server stopped")
			return err
		case <-ticker.C:
			s.closeIdle()
		case <-ctx.Done():
			// Workers still inside a handler finish on their own.
			n := s.closeAll()
			s.finishShutdown()
			s.logger.Warn("server stopped with forced close", "connections", n)
			return errors.Join(err, ctx.Err())
		}
	}
}

func (s *Server) finishShutdown() {
	s.acceptWG.Wait()
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Server) acceptLoop(ctx context.Context) {
	defer s.acceptWG.Done()

	var delay time.Duration
	for {
		nc, err := s.ln.Accept()
		if err != nil {
			if s.shutdown.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			delay = backoff(delay)
			s.logger.Warn("accept failed, retrying", "error", err, "delay", delay)
			select {
			case <-time.After(delay):
				continue
			case <-ctx.Done():
				return
			}
		}
		delay = 0

		s.metrics.ConnAccepted()
		s.metrics.ConnQueued(1)
		// Blocks while the queue is full.
		if err := s.pool.Submit(ctx, nc); err != nil {
			s.discardConn(nc)
			return
		}
	}
}

func backoff(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	if d *= 2; d > time.Second {
		d = time.Second
	}
	return d
}

// serveConn runs on a worker.
func (s *Server) serveConn(nc net.Conn) {
	s.metrics.ConnQueued(-1)
	s.metrics.ConnActive(1)
	defer s.metrics.ConnActive(-1)

	c := newConn(s, nc)
	if !s.track(c) {
		nc.Close()
		return
	}
	defer s.untrack(c)
	defer c.close()

	c.serve(s.baseCtx)
}

// discardConn drops a connection that never reached a worker.
func (s *Server) discardConn(nc net.Conn) {
	s.metrics.ConnQueued(-1)
	s.metrics.RecordReject("shutdown")
	nc.Close()
}

func (s *Server) track(c *conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shutdown.Load() {
		return false
	}
	s.conns[c] = struct{}{}
	return true
}

func (s *Server) untrack(c *conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, c)
}

func (s *Server) closeIdle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		c.closeIfIdle()
	}
}

func (s *Server) closeAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		c.close()
	}
	return len(s.conns)
}
