// Package resolver turns a free-text keyword (a company, product or service
// name) into the URL of its official website.
package resolver

import (
	"context"
	"errors"
	"net/url"
	"regexp"
	"strings"
)

var (
	// ErrNoResult means the resolver answered but named no website.
	ErrNoResult = errors.New("resolver: no result")
	// ErrRateLimited is returned when the upstream model throttles us.
	ErrRateLimited = errors.New("resolver: rate limited")
	// ErrUnavailable covers transport failures and upstream 5xx answers.
	ErrUnavailable = errors.New("resolver: upstream unavailable")
)

// Resolver maps a keyword to an absolute http(s) URL.
type Resolver interface {
	Resolve(ctx context.Context, keyword string) (string, error)
}

// Func adapts a function to Resolver.
type Func func(ctx context.Context, keyword string) (string, error)

func (f Func) Resolve(ctx context.Context, keyword string) (string, error) {
	return f(ctx, keyword)
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUnavailable)
}

var urlPattern = regexp.MustCompile(`https?://[^\s"]+`)

// ExtractURL returns the first http(s) URL in a free-text answer. Trailing
// punctuation a model tends to append is trimmed.
func ExtractURL(answer string) (string, bool) {
	m := urlPattern.FindString(answer)
	if m == "" {
		return "", false
	}
	m = strings.TrimRight(m, ".,;:!?)]}>'`*")
	u, err := url.Parse(m)
	if err != nil || u.Hostname() == "" {
		return "", false
	}
	return m, true
}

// Direct recognizes input that already is a website address: an absolute
// http(s) URL, or a bare host starting with "www.". Anything else needs a
// real resolver.
func Direct(keyword string) (string, bool) {
	k := strings.TrimSpace(keyword)
	if k == "" || strings.ContainsAny(k, " \t\n") {
		return "", false
	}
	lower := strings.ToLower(k)
	switch {
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
	case strings.HasPrefix(lower, "www."):
		k = "https://" + k
	default:
		return "", false
	}
	u, err := url.Parse(k)
	if err != nil || u.Hostname() == "" {
		return "", false
	}
	return u.String(), true
}

// WithDirect short-circuits r for inputs Direct recognizes.
func WithDirect(r Resolver) Resolver {
	return Func(func(ctx context.Context, keyword string) (string, error) {
		if u, ok := Direct(keyword); ok {
			return u, nil
		}
		return r.Resolve(ctx, keyword)
	})
}
