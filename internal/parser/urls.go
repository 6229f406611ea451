package parser

import (
	"net/url"
	"strings"
)

// NormalizeURL resolves protocol-relative and root-relative candidates against
// base. Anything else that is not already absolute is returned unchanged, so
// callers must check IsAbsoluteURL before storing the result.
func NormalizeURL(candidate string, base *url.URL) string {
	candidate = strings.TrimSpace(candidate)
	lower := strings.ToLower(candidate)

	switch {
	case candidate == "":
		return ""
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
		return candidate
	case base == nil || base.Scheme == "":
		return candidate
	case strings.HasPrefix(candidate, "//"):
		return base.Scheme + ":" + candidate
	case strings.HasPrefix(candidate, "/"):
		return base.Scheme + "://" + base.Host + candidate
	default:
		return candidate
	}
}

// IsAbsoluteURL reports whether s is an absolute http(s) URL with a host.
func IsAbsoluteURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
