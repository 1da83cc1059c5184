package httpd

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
)

// ErrPoolClosed is returned by Submit after Close.
var ErrPoolClosed = errors.New("httpd: worker pool closed")

// Pool is a fixed set of workers fed by a bounded FIFO queue of connections.
type Pool struct {
	queue   chan net.Conn
	serve   func(net.Conn)
	discard func(net.Conn)
	workers int

	active atomic.Int64

	// mu orders Submit against Close so no connection is queued after the
	// final drain.
	mu        sync.RWMutex
	closed    bool
	done      chan struct{}
	closeOnce sync.Once
	startOnce sync.Once
	wg        sync.WaitGroup
}

// NewPool creates a pool of workers calling serve for each connection.
// discard receives connections dropped from the queue on Close; nil closes them.
func NewPool(workers, queueSize int, serve, discard func(net.Conn)) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	if discard == nil {
		discard = func(c net.Conn) { c.Close() }
	}
	return &Pool{
		queue:   make(chan net.Conn, queueSize),
		serve:   serve,
		discard: discard,
		workers: workers,
		done:    make(chan struct{}),
	}
}

// Start launches the workers. Later calls do nothing.
func (p *Pool) Start() {
	p.startOnce.Do(func() {
		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			go p.work()
		}
	})
}

// Submit queues c, blocking while the queue is full.
func (p *Pool) Submit(ctx context.Context, c net.Conn) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.queue <- c:
		return nil
	case <-p.done:
		return ErrPoolClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops intake, discards queued connections and waits for the
// workers to finish the connections they own.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		close(p.done)
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
	})
	p.wg.Wait()
	p.drain()
}

// Active returns the number of connections owned by workers.
func (p *Pool) Active() int {
	return int(p.active.Load())
}

// Queued returns the number of connections waiting for a worker.
func (p *Pool) Queued() int {
	return len(p.queue)
}

// Workers returns the pool size.
func (p *Pool) Workers() int {
	return p.workers
}

func (p *Pool) work() {
	defer p.wg.Done()
	for {
		select {
		case <-p.done:
			p.drain()
			return
		default:
		}

		select {
		case c := <-p.queue:
			p.active.Add(1)
			p.serve(c)
			p.active.Add(-1)
		case <-p.done:
			p.drain()
			return
		}
	}
}

func (p *Pool) drain() {
	for {
		select {
		case c := <-p.queue:
			p.discard(c)
		default:
			return
		}
	}
}
