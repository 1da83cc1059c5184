package domain

import (
	"path"
	"sort"
	"strings"
	"time"
)

// ListingEntry is one child of a listed directory.
type ListingEntry struct {
	// Name is the base name. Directories carry a trailing slash.
	Name string `json:"name"`

	// Href is the escaped link target relative to the listed directory.
	Href string `json:"href"`

	// Size is the file size in bytes. Zero for directories.
	Size int64 `json:"size"`

	// ModTime is the last modification time of the entry.
	ModTime time.Time `json:"mod_time"`

	// IsDir reports whether the entry is a directory.
	IsDir bool `json:"is_dir"`
}

// Listing is the data of a directory listing, rendered by an external renderer.
type Listing struct {
	// Path is the request path of the directory, always ending in "/".
	Path string `json:"path"`

	// Parent is the request path of the parent directory, empty at the root.
	Parent string `json:"parent,omitempty"`

	// Entries are sorted with directories first, then by name.
	Entries []ListingEntry `json:"entries"`
}

// NewListing builds a listing for the directory at urlPath.
// Names starting with a dot are dropped unless showHidden is set.
func NewListing(urlPath string, entries []ListingEntry, showHidden bool) *Listing {
	if !strings.HasSuffix(urlPath, "/") {
		urlPath += "/"
	}

	l := &Listing{Path: urlPath, Entries: make([]ListingEntry, 0, len(entries))}
	if urlPath != "/" {
		l.Parent = path.Dir(strings.TrimSuffix(urlPath, "/"))
		if !strings.HasSuffix(l.Parent, "/") {
			l.Parent += "/"
		}
	}

	for _, e := range entries {
		name := strings.TrimSuffix(e.Name, "/")
		if name == "" || (!showHidden && strings.HasPrefix(name, ".")) {
			continue
		}
		if e.IsDir {
			e.Name = name + "/"
			e.Size = 0
		}
		if e.Href == "" {
			e.Href = escapeSegment(name)
			if e.IsDir {
				e.Href += "/"
			}
		}
		l.Entries = append(l.Entries, e)
	}

	sort.SliceStable(l.Entries, func(i, j int) bool {
		a, b := l.Entries[i], l.Entries[j]
		if a.IsDir != b.IsDir {
			return a.IsDir
		}
		return a.Name < b.Name
	})
	return l
}

// escapeSegment percent-encodes a single path segment.
func escapeSegment(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&15])
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	return strings.IndexByte("-._~!$&'()*+,;=:@", c) >= 0
}
