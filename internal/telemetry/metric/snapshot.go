package metric

import (
	"github.com/yndnr/sockhttpd/internal/core/domain"
)

// Snapshot returns the current counters for the status endpoint.
// ServerName and Version are left for the caller.
func (r *Registry) Snapshot() domain.StatusSnapshot {
	now := r.now()
	uptime := now.Sub(r.started)
	total := r.total.Load()

	s := domain.StatusSnapshot{
		StartedAt:           r.started,
		Uptime:              uptime,
		TotalRequests:       total,
		ByStatusClass:       r.classCounts(),
		ActiveConnections:   r.active.Load(),
		QueuedConnections:   r.queued.Load(),
		AcceptedConnections: r.accepted.Load(),
		RejectedRequests:    r.rejected.Load(),
		Workers:             int(r.workers.Load()),
	}
	if total > 0 {
		s.AverageResponseMs = float64(r.durationNanos.Load()) / float64(total) / 1e6
	}
	if secs := uptime.Seconds(); secs > 0 {
		s.RequestsPerSecond = float64(total) / secs
	}

	if c := r.observedCache(); c != nil {
		cs := c.Stats()
		s.Cache = domain.CacheSnapshot{
			Enabled:   true,
			Size:      cs.Size,
			MaxSize:   cs.MaxSize,
			Bytes:     cs.Bytes,
			Hits:      cs.Hits,
			Misses:    cs.Misses,
			Evictions: cs.Evictions,
			HitRatio:  cs.HitRatio(),
		}
	}
	return s
}
