package metric

import (
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/common/expfmt"

	"github.com/yndnr/sockhttpd/internal/core/domain"
	"github.com/yndnr/sockhttpd/internal/storage/filecache"
)

const namespace = "sockhttpd"

// TextContentType is the media type of WriteText output.
var TextContentType = string(expfmt.NewFormat(expfmt.TypeTextPlain))

// Registry holds all server metrics. Prometheus collectors back the metrics
// endpoint; atomic counters back the status snapshot.
type Registry struct {
	registry *prometheus.Registry
	started  time.Time
	now      func() time.Time

	// Request metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestsReject  *prometheus.CounterVec

	// Connection metrics
	ConnectionsAccepted prometheus.Counter
	ConnectionsActive   prometheus.Gauge
	ConnectionsQueued   prometheus.Gauge
	Workers             prometheus.Gauge

	// Upload metrics
	UploadsTotal prometheus.Counter
	UploadBytes  prometheus.Counter

	total         atomic.Uint64
	byClass       sync.Map // class -> *atomic.Uint64
	durationNanos atomic.Int64
	active        atomic.Int64
	queued        atomic.Int64
	accepted      atomic.Uint64
	rejected      atomic.Uint64
	workers       atomic.Int64

	cacheMu sync.Mutex
	cache   *filecache.Cache
}

// NewRegistry creates a registry with Go runtime and process collectors.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	r := &Registry{
		registry: reg,
		started:  time.Now(),
		now:      time.Now,

		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Requests answered, by method and status class.",
		}, []string{"method", "class"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Time from parsed request to written response.",
			Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"method"}),
		RequestsReject: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejected_total",
			Help:      "Requests or connections refused before handling, by reason.",
		}, []string{"reason"}),
		ConnectionsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_accepted_total",
			Help:      "Connections accepted by the listener.",
		}),
		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Connections currently owned by a worker.",
		}),
		ConnectionsQueued: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_queued",
			Help:      "Accepted connections waiting for a worker.",
		}),
		Workers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workers",
			Help:      "Size of the worker pool.",
		}),
		UploadsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Files stored from form submissions.",
		}),
		UploadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upload_bytes_total",
			Help:      "Bytes stored from form submissions.",
		}),
	}

	reg.MustRegister(
		r.RequestsTotal,
		r.RequestDuration,
		r.RequestsReject,
		r.ConnectionsAccepted,
		r.ConnectionsActive,
		r.ConnectionsQueued,
		r.Workers,
		r.UploadsTotal,
		r.UploadBytes,
		&cacheCollector{registry: r},
	)
	return r
}

// Prometheus returns the underlying registry.
func (r *Registry) Prometheus() *prometheus.Registry {
	return r.registry
}

// ObserveCache exports the statistics of c. A nil cache stops exporting.
func (r *Registry) ObserveCache(c *filecache.Cache) {
	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()
	r.cache = c
}

func (r *Registry) observedCache() *filecache.Cache {
	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()
	return r.cache
}

// RecordRequest counts one answered request.
func (r *Registry) RecordRequest(method string, status int, d time.Duration) {
	method = methodLabel(method)
	class := domain.StatusClass(status)

	r.RequestsTotal.WithLabelValues(method, class).Inc()
	r.RequestDuration.WithLabelValues(method).Observe(d.Seconds())

	r.total.Add(1)
	r.durationNanos.Add(int64(d))
	v, _ := r.byClass.LoadOrStore(class, new(atomic.Uint64))
	v.(*atomic.Uint64).Add(1)
}

// RecordReject counts a request or connection refused for reason.
func (r *Registry) RecordReject(reason string) {
	r.RequestsReject.WithLabelValues(reason).Inc()
	r.rejected.Add(1)
}

// RecordUpload counts one stored file of size bytes.
func (r *Registry) RecordUpload(size int64) {
	r.UploadsTotal.Inc()
	r.UploadBytes.Add(float64(size))
}

// ConnAccepted counts an accepted connection.
func (r *Registry) ConnAccepted() {
	r.ConnectionsAccepted.Inc()
	r.accepted.Add(1)
}

// ConnActive adjusts the number of connections owned by workers.
func (r *Registry) ConnActive(delta int64) {
	r.ConnectionsActive.Set(float64(r.active.Add(delta)))
}

// ConnQueued adjusts the number of queued connections.
func (r *Registry) ConnQueued(delta int64) {
	r.ConnectionsQueued.Set(float64(r.queued.Add(delta)))
}

// SetWorkers records the pool size.
func (r *Registry) SetWorkers(n int) {
	r.workers.Store(int64(n))
	r.Workers.Set(float64(n))
}

// WriteText writes all metrics in the Prometheus text exposition format.
func (r *Registry) WriteText(w io.Writer) error {
	mfs, err := r.registry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range mfs {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}

var knownMethods = map[string]bool{
	"GET": true, "HEAD": true, "POST": true, "OPTIONS": true,
	"PUT": true, "DELETE": true, "PATCH": true, "TRACE": true, "CONNECT": true,
}

// methodLabel bounds label cardinality to the registered methods.
func methodLabel(m string) string {
	if knownMethods[m] {
		return m
	}
	return "OTHER"
}

func (r *Registry) classCounts() map[string]uint64 {
	out := map[string]uint64{"2xx": 0, "3xx": 0, "4xx": 0, "5xx": 0}
	r.byClass.Range(func(k, v any) bool {
		out[k.(string)] = v.(*atomic.Uint64).Load()
		return true
	})
	return out
}
