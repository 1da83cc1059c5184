package metric

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/yndnr/sockhttpd/internal/storage/filecache"
)

func scrape(t *testing.T, r *Registry) string {
	t.Helper()
	var buf bytes.Buffer
	if err := r.WriteText(&buf); err != nil {
		t.Fatalf("WriteText: %v", err)
	}
	return buf.String()
}

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()
	if r == nil {
		t.Fatal("NewRegistry() returned nil")
	}
	if r.registry == nil {
		t.Error("registry field is nil")
	}
	if r.RequestsTotal == nil || r.RequestDuration == nil {
		t.Error("request metrics are nil")
	}
	if r.Prometheus() != r.registry {
		t.Error("Prometheus() should expose the underlying registry")
	}
}

func TestWriteText_RuntimeCollectors(t *testing.T) {
	out := scrape(t, NewRegistry())

	if !strings.Contains(out, "go_goroutines") {
		t.Error("expected go_goroutines metric")
	}
	if !strings.Contains(out, "process_") {
		t.Error("expected process metrics")
	}
	if !strings.HasPrefix(TextContentType, "text/plain") {
		t.Errorf("TextContentType = %q", TextContentType)
	}
}

func TestRequestMetrics(t *testing.T) {
	r := NewRegistry()

	r.RecordRequest("GET", 200, 10*time.Millisecond)
	r.RecordRequest("GET", 304, 2*time.Millisecond)
	r.RecordRequest("HEAD", 200, time.Millisecond)
	r.RecordRequest("BREW", 405, time.Millisecond)

	out := scrape(t, r)
	for _, want := range []string{
		`sockhttpd_requests_total{class="2xx",method="GET"} 1`,
		`sockhttpd_requests_total{class="3xx",method="GET"} 1`,
		`sockhttpd_requests_total{class="2xx",method="HEAD"} 1`,
		`sockhttpd_requests_total{class="4xx",method="OTHER"} 1`,
		`sockhttpd_request_duration_seconds_count{method="GET"} 2`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s", want)
		}
	}
}

func TestConnectionMetrics(t *testing.T) {
	r := NewRegistry()

	r.ConnAccepted()
	r.ConnAccepted()
	r.ConnQueued(2)
	r.ConnQueued(-1)
	r.ConnActive(1)
	r.SetWorkers(4)
	r.RecordReject("rate_limited")
	r.RecordUpload(1024)

	out := scrape(t, r)
	for _, want := range []string{
		"sockhttpd_connections_accepted_total 2",
		"sockhttpd_connections_queued 1",
		"sockhttpd_connections_active 1",
		"sockhttpd_workers 4",
		`sockhttpd_rejected_total{reason="rate_limited"} 1`,
		"sockhttpd_uploads_total 1",
		"sockhttpd_upload_bytes_total 1024",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s", want)
		}
	}
}

func TestCacheCollector(t *testing.T) {
	r := NewRegistry()
	if strings.Contains(scrape(t, r), "sockhttpd_cache_entries") {
		t.Error("cache metrics should be absent before a cache is observed")
	}

	c := filecache.New(filecache.Config{MaxEntries: 7, MaxAge: time.Hour})
	c.Put(&filecache.Entry{Path: "/a", Content: []byte("abc"), Size: 3})
	c.Get("/missing")
	r.ObserveCache(c)

	out := scrape(t, r)
	for _, want := range []string{
		"sockhttpd_cache_entries 1",
		"sockhttpd_cache_max_entries 7",
		"sockhttpd_cache_bytes 3",
		"sockhttpd_cache_misses_total 1",
		`sockhttpd_cache_removed_total{reason="evicted"} 0`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s", want)
		}
	}
}

func TestSnapshot(t *testing.T) {
	r := NewRegistry()
	start := r.started
	r.now = func() time.Time { return start.Add(10 * time.Second) }

	r.RecordRequest("GET", 200, 4*time.Millisecond)
	r.RecordRequest("GET", 404, 2*time.Millisecond)
	r.RecordRequest("POST", 500, 6*time.Millisecond)
	r.ConnActive(2)
	r.ConnQueued(1)
	r.ConnAccepted()
	r.SetWorkers(20)

	s := r.Snapshot()
	if s.TotalRequests != 3 {
		t.Errorf("TotalRequests = %d, want 3", s.TotalRequests)
	}
	if s.ByStatusClass["2xx"] != 1 || s.ByStatusClass["4xx"] != 1 || s.ByStatusClass["5xx"] != 1 || s.ByStatusClass["3xx"] != 0 {
		t.Errorf("ByStatusClass = %v", s.ByStatusClass)
	}
	if s.AverageResponseMs != 4 {
		t.Errorf("AverageResponseMs = %v, want 4", s.AverageResponseMs)
	}
	if s.RequestsPerSecond != 0.3 {
		t.Errorf("RequestsPerSecond = %v, want 0.3", s.RequestsPerSecond)
	}
	if s.Uptime != 10*time.Second {
		t.Errorf("Uptime = %v", s.Uptime)
	}
	if s.ActiveConnections != 2 || s.QueuedConnections != 1 || s.AcceptedConnections != 1 || s.Workers != 20 {
		t.Errorf("connections = %+v", s)
	}
	if s.Cache.Enabled {
		t.Error("cache should be reported disabled when none is observed")
	}

	c := filecache.New(filecache.Config{MaxEntries: 3})
	r.ObserveCache(c)
	if s := r.Snapshot(); !s.Cache.Enabled || s.Cache.MaxSize != 3 {
		t.Errorf("Cache = %+v", s.Cache)
	}
}
