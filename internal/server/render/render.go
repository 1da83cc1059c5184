package render

import (
	"bytes"
	"fmt"
	"html"
	"html/template"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/yndnr/sockhttpd/internal/core/domain"
)

// ContentType is the media type of every rendered page.
const ContentType = "text/html; charset=utf-8"

// HTML renders pages from the built-in templates.
type HTML struct {
	serverName string

	listing *template.Template
	status  *template.Template
	errPage *template.Template
}

// New parses the templates. serverName is printed in page footers.
func New(serverName string) (*HTML, error) {
	r := &HTML{serverName: serverName}

	funcs := template.FuncMap{
		"css":     func() template.CSS { return template.CSS(baseCSS) },
		"server":  func() string { return r.serverName },
		"bytes":   formatBytes,
		"comma":   formatCount,
		"date":    formatDate,
		"uptime":  formatUptime,
		"percent": func(ratio float64) float64 { return ratio * 100 },
	}

	var err error
	if r.listing, err = template.New("listing").Funcs(funcs).Parse(listingTemplate); err != nil {
		return nil, fmt.Errorf("render: parse listing: %w", err)
	}
	if r.status, err = template.New("status").Funcs(funcs).Parse(statusTemplate); err != nil {
		return nil, fmt.Errorf("render: parse status: %w", err)
	}
	if r.errPage, err = template.New("error").Funcs(funcs).Parse(errorTemplate); err != nil {
		return nil, fmt.Errorf("render: parse error page: %w", err)
	}
	return r, nil
}

// Must is like New but panics on a template error.
func Must(serverName string) *HTML {
	r, err := New(serverName)
	if err != nil {
		panic(err)
	}
	return r
}

// Listing renders a directory index.
func (r *HTML) Listing(l *domain.Listing) ([]byte, error) {
	return execute(r.listing, l)
}

// Status renders the status dashboard.
func (r *HTML) Status(s domain.StatusSnapshot) ([]byte, error) {
	return execute(r.status, s)
}

// ErrorPage renders the fallback page for an error status. It does not
// fail: a template error degrades to a minimal escaped page.
func (r *HTML) ErrorPage(code int, reason, detail string) []byte {
	data := struct {
		Code   int
		Reason string
		Detail string
	}{code, reason, detail}

	out, err := execute(r.errPage, data)
	if err != nil {
		return []byte(fmt.Sprintf("<!DOCTYPE html><html><body><h1>%d %s</h1></body></html>\n",
			code, html.EscapeString(reason)))
	}
	return out
}

func execute(t *template.Template, data any) ([]byte, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render: %s: %w", t.Name(), err)
	}
	return buf.Bytes(), nil
}

func formatBytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.IBytes(uint64(n))
}

func formatCount(n uint64) string {
	return humanize.Comma(int64(n))
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04:05 UTC")
}

// formatUptime renders a duration as "3d 4h 5m 6s".
func formatUptime(d time.Duration) string {
	d = d.Round(time.Second)
	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, d/time.Second)
}
