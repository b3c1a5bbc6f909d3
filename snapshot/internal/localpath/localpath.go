// Package localpath maps absolute asset URLs to paths inside a snapshot's
// output tree. The materializer and the document rewriter both go through
// FromURL, so a rewritten reference and the file written for it always agree.
package localpath

import (
	"net/url"
	"strings"
)

// FromURL returns the output-relative path for u: its path with the leading
// separator stripped. The result uses forward slashes and may be empty for
// the root document.
func FromURL(u *url.URL) string {
	return strings.TrimPrefix(u.Path, "/")
}

// IsRoot reports whether u points at the site root ("/" or no path).
func IsRoot(u *url.URL) bool {
	return u.Path == "" || u.Path == "/"
}

// SameHost reports whether a and b share a hostname. Ports and schemes are
// ignored, hostnames compare case-insensitively.
func SameHost(a, b *url.URL) bool {
	return a.Hostname() != "" && strings.EqualFold(a.Hostname(), b.Hostname())
}

// Resolve applies the rewrite rule to one reference found in the document:
//
//   - ref is resolved against base; if that fails ref is returned unchanged
//   - a resolved host that differs from base's returns ref unchanged
//   - otherwise the local path of the resolved URL is returned
//
// Fragment-only references stay untouched so in-page anchors keep working.
func Resolve(ref string, base *url.URL) string {
	trimmed := strings.TrimSpace(ref)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return ref
	}
	u, err := base.Parse(trimmed)
	if err != nil {
		return ref
	}
	if !SameHost(u, base) {
		return ref
	}
	return FromURL(u)
}
