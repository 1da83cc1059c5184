package http1

import (
	"net/url"
	"strings"

	"github.com/yndnr/sockhttpd/internal/core/domain"
)

// CleanPath percent-decodes the path component of a request target and
// resolves its dot segments.
//
// Decoding happens first, so encoded separators and dots ("%2e%2e", "%2F")
// take part in resolution. A ".." that would climb above "/" yields
// ErrForbiddenPath, as do NUL bytes and backslashes. A trailing slash is kept.
func CleanPath(raw string) (string, error) {
	if !strings.HasPrefix(raw, "/") {
		return "", domain.ErrMalformedRequest.Errorf("path %q is not absolute", raw)
	}

	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return "", domain.ErrMalformedRequest.Wrap(err).WithDetails("invalid percent-encoding")
	}
	if strings.ContainsAny(decoded, "\x00\\") {
		return "", domain.ErrForbiddenPath.WithDetails("illegal character in path")
	}

	segments := strings.Split(decoded, "/")
	stack := make([]string, 0, len(segments))
	trailing := false
	for i, seg := range segments {
		last := i == len(segments)-1
		switch seg {
		case "", ".":
			trailing = last
		case "..":
			if len(stack) == 0 {
				return "", domain.ErrForbiddenPath.WithDetails("path escapes document root")
			}
			stack = stack[:len(stack)-1]
			trailing = last
		default:
			stack = append(stack, seg)
			trailing = false
		}
	}

	if len(stack) == 0 {
		return "/", nil
	}
	out := "/" + strings.Join(stack, "/")
	if trailing {
		out += "/"
	}
	return out, nil
}
