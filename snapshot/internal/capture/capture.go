// Package capture records the network responses of one snapshot session.
//
// The Interceptor is fed by the browser's event goroutines for the whole
// lifetime of the session and writes into an AssetMap owned by a single
// snapshot operation. The materializer reads the map only through Freeze,
// after the session has been closed.
package capture

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/hazyhaar/pagesnap/snapshot/internal/browser"
)

// Asset is one successful, non-empty response body.
type Asset struct {
	URL  string
	Body []byte
}

// AssetMap maps absolute URL to the last body captured for it.
type AssetMap struct {
	mu     sync.Mutex
	assets map[string]Asset
	frozen bool
}

// NewAssetMap returns an empty map.
func NewAssetMap() *AssetMap {
	return &AssetMap{assets: make(map[string]Asset)}
}

// Put stores a, replacing any earlier asset with the same URL. It reports
// false once the map is frozen.
func (m *AssetMap) Put(a Asset) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.frozen {
		return false
	}
	m.assets[a.URL] = a
	return true
}

// Len returns the number of distinct URLs captured.
func (m *AssetMap) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.assets)
}

// Freeze stops further writes and returns the captured assets sorted by
// URL. Calling it again returns the same content.
func (m *AssetMap) Freeze() []Asset {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frozen = true
	out := make([]Asset, 0, len(m.assets))
	for _, a := range m.assets {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out
}

// StatusOK reports whether a response status is worth keeping: success or
// redirect.
func StatusOK(status int) bool {
	return status >= 200 && status <= 399
}

// Stats counts what the Interceptor saw.
type Stats struct {
	Observed   int64 `json:"observed"`
	Stored     int64 `json:"stored"`
	BadStatus  int64 `json:"bad_status"`
	Empty      int64 `json:"empty"`
	Unreadable int64 `json:"unreadable"`
	TooLarge   int64 `json:"too_large"`
}

// Skipped is the total of responses not stored.
func (s Stats) Skipped() int64 {
	return s.BadStatus + s.Empty + s.Unreadable + s.TooLarge
}

// Interceptor turns observed responses into assets.
type Interceptor struct {
	assets   *AssetMap
	maxBytes int64
	logger   *slog.Logger

	observed   atomic.Int64
	stored     atomic.Int64
	badStatus  atomic.Int64
	empty      atomic.Int64
	unreadable atomic.Int64
	tooLarge   atomic.Int64
}

// Option configures an Interceptor.
type Option func(*Interceptor)

// WithMaxBytes drops bodies larger than n bytes. Zero disables the cap.
func WithMaxBytes(n int64) Option {
	return func(i *Interceptor) { i.maxBytes = n }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(i *Interceptor) { i.logger = l }
}

// NewInterceptor creates an Interceptor writing into m.
func NewInterceptor(m *AssetMap, opts ...Option) *Interceptor {
	i := &Interceptor{assets: m, logger: slog.Default()}
	for _, o := range opts {
		o(i)
	}
	return i
}

// Observe is a browser.ResponseFunc. It never fails: a response that cannot
// be used is counted and dropped.
func (i *Interceptor) Observe(ctx context.Context, r browser.Response) {
	i.observed.Add(1)

	if !StatusOK(r.Status) {
		i.badStatus.Add(1)
		return
	}

	body, err := r.Body(ctx)
	if err != nil {
		i.unreadable.Add(1)
		i.logger.Debug("capture: body unreadable", "url", r.URL, "status", r.Status, "error", err)
		return
	}
	if len(body) == 0 {
		i.empty.Add(1)
		return
	}
	if i.maxBytes > 0 && int64(len(body)) > i.maxBytes {
		i.tooLarge.Add(1)
		i.logger.Debug("capture: body too large", "url", r.URL, "size", len(body))
		return
	}

	if i.assets.Put(Asset{URL: r.URL, Body: body}) {
		i.stored.Add(1)
	}
}

// Stats returns the current counters.
func (i *Interceptor) Stats() Stats {
	return Stats{
		Observed:   i.observed.Load(),
		Stored:     i.stored.Load(),
		BadStatus:  i.badStatus.Load(),
		Empty:      i.empty.Load(),
		Unreadable: i.unreadable.Load(),
		TooLarge:   i.tooLarge.Load(),
	}
}
