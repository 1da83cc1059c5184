package domain

import "time"

// StatusSnapshot is a point-in-time view of the server counters.
// It is produced by the metric registry and rendered by the status endpoint.
type StatusSnapshot struct {
	ServerName string        `json:"server_name"`
	Version    string        `json:"version"`
	StartedAt  time.Time     `json:"started_at"`
	Uptime     time.Duration `json:"uptime_ns"`

	// Requests
	TotalRequests     uint64            `json:"total_requests"`
	ByStatusClass     map[string]uint64 `json:"by_status_class"`
	AverageResponseMs float64           `json:"average_response_ms"`
	RequestsPerSecond float64           `json:"requests_per_second"`

	// Connections
	ActiveConnections   int64  `json:"active_connections"`
	QueuedConnections   int64  `json:"queued_connections"`
	AcceptedConnections uint64 `json:"accepted_connections"`
	RejectedRequests    uint64 `json:"rejected_requests"`
	Workers             int    `json:"workers"`

	Cache CacheSnapshot `json:"cache"`

	// Uploads is nil when uploads are disabled.
	Uploads *UploadActivity `json:"uploads,omitempty"`
}

// CacheSnapshot describes the file cache part of a StatusSnapshot.
type CacheSnapshot struct {
	Enabled   bool    `json:"enabled"`
	Size      int     `json:"size"`
	MaxSize   int     `json:"max_size"`
	Bytes     int64   `json:"bytes"`
	Hits      uint64  `json:"hits"`
	Misses    uint64  `json:"misses"`
	Evictions uint64  `json:"evictions"`
	HitRatio  float64 `json:"hit_ratio"`
}

// UploadActivity summarizes the upload index.
type UploadActivity struct {
	Files       int             `json:"files"`
	Submissions int             `json:"submissions"`
	Recent      []UploadSummary `json:"recent"`
}

// UploadSummary is one stored upload as listed on the status page.
type UploadSummary struct {
	ID          string    `json:"id"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	Digest      string    `json:"digest"`
	CreatedAt   time.Time `json:"created_at"`
}

// StatusClass returns the "2xx"-style class label of an HTTP status.
func StatusClass(code int) string {
	switch {
	case code >= 100 && code < 200:
		return "1xx"
	case code < 300 && code >= 200:
		return "2xx"
	case code < 400 && code >= 300:
		return "3xx"
	case code < 500 && code >= 400:
		return "4xx"
	case code < 600 && code >= 500:
		return "5xx"
	}
	return "other"
}
