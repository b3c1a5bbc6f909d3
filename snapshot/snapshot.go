// Package snapshot turns a live, dynamically rendered web page into a
// self-contained static copy.
//
// One call launches a fresh browser session, records every network
// response while the page loads and settles, tears the session down, then
// writes the same-origin assets and a rewritten index.html whose
// references point at them. Cross-origin references are left untouched.
//
// Output layout:
//
//	index.html
//	styles/inline-style-N.css
//	<asset URL path>            one file per same-origin asset
package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"time"

	"github.com/hazyhaar/pagesnap/guard"
	"github.com/hazyhaar/pagesnap/snapshot/internal/browser"
	"github.com/hazyhaar/pagesnap/snapshot/internal/capture"
	"github.com/hazyhaar/pagesnap/snapshot/internal/materialize"
	"github.com/hazyhaar/pagesnap/snapshot/internal/render"
	"github.com/hazyhaar/pagesnap/snapshot/internal/rewrite"
)

// Fatal failure classes. Errors returned by Capture wrap one of these when
// the browser could not produce a document.
var (
	ErrLaunch    = render.ErrLaunch
	ErrNavigate  = render.ErrNavigate
	ErrSerialize = render.ErrSerialize
)

// Engine captures snapshots. It holds no per-capture state and is safe for
// concurrent use; each call gets its own session and asset map.
type Engine struct {
	cfg      *Config
	launcher Launcher
	logger   *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLauncher replaces the Chrome launcher, typically with a fake in tests
// or a pre-configured remote browser.
func WithLauncher(l Launcher) Option {
	return func(e *Engine) { e.launcher = l }
}

// New creates an Engine. A nil cfg means defaults.
func New(cfg *Config, logger *slog.Logger, opts ...Option) *Engine {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{cfg: cfg, logger: logger}
	for _, o := range opts {
		o(e)
	}
	if e.launcher == nil {
		b := cfg.Browser
		e.launcher = browser.NewChrome(browser.Config{
			RemoteURL:      b.Remote,
			Bin:            b.Bin,
			Sandbox:        b.Sandbox,
			Stealth:        b.StealthEnabled(),
			ViewportWidth:  b.ViewportWidth,
			ViewportHeight: b.ViewportHeight,
			DrainTimeout:   b.DrainTimeout,
			Logger:         logger,
		})
	}
	return e
}

// Snapshot captures sourceURL into outputDir. On failure outputDir may hold
// a partial tree; removing it is up to the caller.
func (e *Engine) Snapshot(ctx context.Context, sourceURL, outputDir string) error {
	_, err := e.Capture(ctx, sourceURL, outputDir)
	return err
}

// Capture is Snapshot with a Report of what was captured and written.
func (e *Engine) Capture(ctx context.Context, sourceURL, outputDir string) (*Report, error) {
	start := time.Now()
	log := e.logger.With("url", sourceURL)

	target, err := guard.ValidateTarget(sourceURL, false)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("snapshot: create output: %w", err)
	}

	assets := capture.NewAssetMap()
	icpt := capture.NewInterceptor(assets,
		capture.WithMaxBytes(e.cfg.Capture.MaxAssetBytes),
		capture.WithLogger(log))

	t := e.cfg.Timing
	drv := render.New(e.launcher, render.Config{
		NavigationTimeout: t.NavigationTimeout,
		SettleDelay:       t.SettleDelay,
		ScrollStep:        t.ScrollStep,
		ScrollInterval:    t.ScrollInterval,
		ScrollGrace:       t.ScrollGrace,
		ScrollTimeout:     t.ScrollTimeout,
		LazyGrace:         t.LazyGrace,
		LazyAttributes:    t.LazyAttributes,
		Logger:            log,
	})

	// Render returns after the session is closed: the asset map is final.
	res, err := drv.Render(ctx, target.String(), icpt.Observe)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}

	base := baseURL(target, res.FinalURL)
	frozen := assets.Freeze()

	rep := &Report{
		URL:        target.String(),
		FinalURL:   res.FinalURL,
		Output:     outputDir,
		LazyImages: res.Lazy,
	}
	if res.Degraded != nil {
		rep.Degraded = res.Degraded.Error()
	}
	rep.addCapture(icpt.Stats(), len(frozen))

	sum := materialize.Run(ctx, materialize.Config{
		Root:    outputDir,
		Base:    base,
		Workers: e.cfg.Capture.WriteWorkers,
		Logger:  log,
	}, frozen)
	rep.addMaterialize(sum)

	st, err := rewrite.Run(res.HTML, rewrite.Config{Root: outputDir, Base: base, Logger: log})
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	rep.addRewrite(st)
	rep.Elapsed = time.Since(start)

	log.Info("snapshot: captured",
		"output", outputDir, "responses", rep.Responses, "captured", rep.Captured,
		"written", rep.Written, "skipped", rep.Skipped, "failed", rep.Failed,
		"styles", rep.Styles, "elapsed", rep.Elapsed)
	return rep, nil
}

// baseURL picks the URL that decides what is same-origin: the post-redirect
// document URL when the browser reported a usable one, else the target.
func baseURL(target *url.URL, final string) *url.URL {
	if final == "" {
		return target
	}
	u, err := url.Parse(final)
	if err != nil || u.Hostname() == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return target
	}
	return u
}
