// Package guard holds the safety checks shared by the snapshot engine and
// the HTTP layer: keeping derived paths inside an output root, vetting
// target URLs before a browser is pointed at them, and bounded reads.
package guard

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

// ErrPathTraversal is returned when a relative path would escape its root.
var ErrPathTraversal = errors.New("guard: path escapes output root")

// ErrUnsafeScheme is returned when a URL uses a non-HTTP(S) scheme.
var ErrUnsafeScheme = errors.New("guard: only http and https schemes are allowed")

// ErrSSRF is returned when a URL targets a private or loopback address.
var ErrSSRF = errors.New("guard: URL targets a private or loopback address")

// SafeJoin joins a slash-separated relative path under root. Paths that
// contain ".." segments, are empty, or would land outside root are rejected.
func SafeJoin(root, rel string) (string, error) {
	if rel == "" {
		return "", fmt.Errorf("guard: empty path")
	}
	for _, seg := range strings.Split(rel, "/") {
		if seg == ".." {
			return "", ErrPathTraversal
		}
	}
	if strings.ContainsRune(rel, 0) {
		return "", fmt.Errorf("guard: NUL byte in path")
	}

	cleanRoot := filepath.Clean(root)
	joined := filepath.Join(cleanRoot, filepath.FromSlash(path.Clean("/"+rel)))
	if joined == cleanRoot || !strings.HasPrefix(joined, cleanRoot+string(filepath.Separator)) {
		return "", ErrPathTraversal
	}
	return joined, nil
}

// ValidateTarget checks that rawURL is an absolute http(s) URL with a host.
// With blockPrivate set, hosts resolving to private or loopback addresses
// are rejected as well.
func ValidateTarget(rawURL string, blockPrivate bool) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("guard: invalid URL: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, ErrUnsafeScheme
	}
	host := u.Hostname()
	if host == "" {
		return nil, fmt.Errorf("guard: URL has no host")
	}
	if !blockPrivate {
		return u, nil
	}

	if ip := net.ParseIP(host); ip != nil {
		if isPrivateIP(ip) {
			return nil, ErrSSRF
		}
		return u, nil
	}

	addrs, err := net.LookupHost(host)
	if err != nil {
		// Unresolvable here means navigation fails on its own.
		return u, nil
	}
	for _, a := range addrs {
		if ip := net.ParseIP(a); ip != nil && isPrivateIP(ip) {
			return nil, ErrSSRF
		}
	}
	return u, nil
}

// LimitedReadAll reads at most maxBytes from r and fails if there is more.
func LimitedReadAll(r io.Reader, maxBytes int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("guard: body exceeds %d bytes", maxBytes)
	}
	return data, nil
}

var privateNets = func() []*net.IPNet {
	var nets []*net.IPNet
	for _, cidr := range []string{
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"100.64.0.0/10",
		"fc00::/7",
	} {
		_, n, err := net.ParseCIDR(cidr)
		if err == nil {
			nets = append(nets, n)
		}
	}
	return nets
}()

func isPrivateIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
		return true
	}
	for _, n := range privateNets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}
