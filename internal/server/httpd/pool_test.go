package httpd

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// waitFor polls cond until it holds or the timeout expires.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func pipeConn(t *testing.T) net.Conn {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	return a
}

// ===== Pool =====

func TestPool_FixedWorkers(t *testing.T) {
	release := make(chan struct{})
	var served atomic.Int32
	p := NewPool(2, 1, func(c net.Conn) {
		<-release
		served.Add(1)
		c.Close()
	}, nil)
	p.Start()
	defer p.Close()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := p.Submit(ctx, pipeConn(t)); err != nil {
			t.Fatalf("Submit(%d) error = %v", i, err)
		}
	}

	waitFor(t, time.Second, func() bool { return p.Active() == 2 && p.Queued() == 1 })
	if p.Workers() != 2 {
		t.Errorf("Workers() = %d, want 2", p.Workers())
	}

	// Queue full: the next submit blocks until the context ends.
	blockCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if err := p.Submit(blockCtx, pipeConn(t)); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Submit() on full queue error = %v, want DeadlineExceeded", err)
	}

	close(release)
	waitFor(t, time.Second, func() bool { return served.Load() == 3 })
	if p.Active() != 0 || p.Queued() != 0 {
		t.Errorf("Active() = %d, Queued() = %d, want 0, 0", p.Active(), p.Queued())
	}
}

func TestPool_FIFO(t *testing.T) {
	var mu sync.Mutex
	var order []net.Conn
	gate := make(chan struct{})

	p := NewPool(1, 4, func(c net.Conn) {
		<-gate
		mu.Lock()
		order = append(order, c)
		mu.Unlock()
	}, nil)

	conns := make([]net.Conn, 4)
	for i := range conns {
		conns[i] = pipeConn(t)
		if err := p.Submit(context.Background(), conns[i]); err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
	}
	p.Start()
	close(gate)
	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 4
	})
	p.Close()

	for i, c := range conns {
		if order[i] != c {
			t.Errorf("connection %d served out of order", i)
		}
	}
}

func TestPool_CloseDiscardsQueued(t *testing.T) {
	release := make(chan struct{})
	var discarded atomic.Int32
	p := NewPool(1, 3, func(net.Conn) { <-release }, func(c net.Conn) {
		discarded.Add(1)
		c.Close()
	})
	p.Start()

	for i := 0; i < 3; i++ {
		if err := p.Submit(context.Background(), pipeConn(t)); err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
	}
	waitFor(t, time.Second, func() bool { return p.Active() == 1 })

	closed := make(chan struct{})
	go func() {
		p.Close()
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatal("Close() returned while a worker still owned a connection")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("Close() did not return")
	}

	if got := discarded.Load(); got != 2 {
		t.Errorf("discarded = %d, want 2", got)
	}
	if err := p.Submit(context.Background(), pipeConn(t)); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("Submit() after Close error = %v, want ErrPoolClosed", err)
	}
}

func TestPool_CloseUnblocksSubmit(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	p := NewPool(1, 0, func(net.Conn) { <-release }, nil)
	p.Start()

	if err := p.Submit(context.Background(), pipeConn(t)); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	waitFor(t, time.Second, func() bool { return p.Active() == 1 })

	errCh := make(chan error, 1)
	go func() {
		errCh <- p.Submit(context.Background(), pipeConn(t))
	}()

	time.Sleep(20 * time.Millisecond)
	go p.Close()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrPoolClosed) {
			t.Errorf("blocked Submit() error = %v, want ErrPoolClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("blocked Submit() was not released by Close")
	}
}
