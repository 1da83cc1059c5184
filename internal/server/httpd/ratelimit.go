package httpd

import (
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// limiterIdle is how long an unused per-client limiter is kept.
const limiterIdle = 10 * time.Minute

// sweepEvery is the number of lookups between sweeps of idle limiters.
const sweepEvery = 1024

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterRegistry holds one token bucket per client IP.
type limiterRegistry struct {
	mu       sync.Mutex
	limiters map[string]*clientLimiter
	limit    rate.Limit
	burst    int
	lookups  int
	now      func() time.Time
}

func newLimiterRegistry(perSecond float64, burst int) *limiterRegistry {
	return &limiterRegistry{
		limiters: make(map[string]*clientLimiter),
		limit:    rate.Limit(perSecond),
		burst:    burst,
		now:      time.Now,
	}
}

// Allow reports whether the client at addr may make a request now.
func (r *limiterRegistry) Allow(addr string) bool {
	now := r.now()
	return r.get(clientIP(addr), now).AllowN(now, 1)
}

// get retrieves an existing limiter or creates a new one.
func (r *limiterRegistry) get(ip string, now time.Time) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lookups++
	if r.lookups >= sweepEvery {
		r.lookups = 0
		r.sweep(now)
	}

	cl, ok := r.limiters[ip]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(r.limit, r.burst)}
		r.limiters[ip] = cl
	}
	cl.lastSeen = now
	return cl.limiter
}

// sweep drops limiters idle for longer than limiterIdle. Caller holds mu.
func (r *limiterRegistry) sweep(now time.Time) {
	for ip, cl := range r.limiters {
		if now.Sub(cl.lastSeen) > limiterIdle {
			delete(r.limiters, ip)
		}
	}
}

// Len returns the number of tracked clients.
func (r *limiterRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.limiters)
}

func clientIP(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
