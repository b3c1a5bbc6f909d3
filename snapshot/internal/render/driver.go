// Package render drives one browser session through a page load and the
// heuristics that approximate "fully loaded": a settle delay, an auto-scroll
// pass and lazy-image forcing. It returns the serialized DOM.
package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/hazyhaar/pagesnap/snapshot/internal/browser"
)

var (
	ErrLaunch    = errors.New("render: browser launch failed")
	ErrNavigate  = errors.New("render: navigation failed")
	ErrSerialize = errors.New("render: serialization failed")
)

// Config holds the timing heuristics. Zero durations disable the
// corresponding wait or bound.
type Config struct {
	NavigationTimeout time.Duration
	SettleDelay       time.Duration
	ScrollStep        int
	ScrollInterval    time.Duration
	ScrollGrace       time.Duration
	ScrollTimeout     time.Duration // bounds the whole scroll pass
	LazyGrace         time.Duration
	LazyAttributes    []string
	Logger            *slog.Logger
}

// Result is the outcome of a render.
type Result struct {
	HTML     string
	FinalURL string // location.href after redirects, empty if unknown
	Lazy     int    // images whose src was forced

	// Degraded is set when the scroll pass, lazy forcing or the second
	// serialization failed and HTML is the first serialization.
	Degraded error
}

// Driver renders pages, one fresh session per call.
type Driver struct {
	launcher browser.Launcher
	cfg      Config
	logger   *slog.Logger
}

// New creates a Driver.
func New(l browser.Launcher, cfg Config) *Driver {
	if cfg.ScrollStep <= 0 {
		cfg.ScrollStep = 300
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Driver{launcher: l, cfg: cfg, logger: log}
}

// Render loads pageURL and returns its final markup. observe, when not nil,
// is attached before navigation and sees every response of the session.
// The session is closed before Render returns, so observe is never called
// afterwards.
func (d *Driver) Render(ctx context.Context, pageURL string, observe browser.ResponseFunc) (*Result, error) {
	sess, err := d.launcher.Launch(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLaunch, err)
	}
	defer func() {
		if err := sess.Close(); err != nil {
			d.logger.Debug("render: close session", "error", err)
		}
	}()

	if observe != nil {
		sess.OnResponse(observe)
	}

	if err := d.navigate(ctx, sess, pageURL); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNavigate, err)
	}
	if err := sleep(ctx, d.cfg.SettleDelay); err != nil {
		return nil, fmt.Errorf("render: settle: %w", err)
	}

	html, err := sess.HTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerialize, err)
	}
	res := &Result{HTML: html}

	if u, err := sess.Eval(ctx, finalURLJS); err == nil {
		res.FinalURL = u
	} else {
		d.logger.Debug("render: final url", "url", pageURL, "error", err)
	}

	if err := d.settle(ctx, sess, res); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("render: %w", ctx.Err())
		}
		res.Degraded = err
		d.logger.Warn("render: dynamic passes failed, keeping first snapshot",
			"url", pageURL, "error", err)
	}

	d.logger.Debug("render: done", "url", pageURL, "final_url", res.FinalURL,
		"bytes", len(res.HTML), "lazy", res.Lazy, "degraded", res.Degraded != nil)
	return res, nil
}

func (d *Driver) navigate(ctx context.Context, sess browser.Session, pageURL string) error {
	if d.cfg.NavigationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.NavigationTimeout)
		defer cancel()
	}
	return sess.Navigate(ctx, pageURL)
}

// settle runs the scroll and lazy-image passes and re-serializes. res.HTML
// is only replaced when every step succeeded.
func (d *Driver) settle(ctx context.Context, sess browser.Session, res *Result) error {
	if err := d.scroll(ctx, sess); err != nil {
		return fmt.Errorf("scroll: %w", err)
	}

	out, err := sess.Eval(ctx, lazyJS(d.cfg.LazyAttributes))
	if err != nil {
		return fmt.Errorf("lazy images: %w", err)
	}
	n, _ := strconv.Atoi(out)
	if err := sleep(ctx, d.cfg.LazyGrace); err != nil {
		return fmt.Errorf("lazy grace: %w", err)
	}

	html, err := sess.HTML(ctx)
	if err != nil {
		return fmt.Errorf("reserialize: %w", err)
	}
	res.HTML, res.Lazy = html, n
	return nil
}

func (d *Driver) scroll(ctx context.Context, sess browser.Session) error {
	if d.cfg.ScrollTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.ScrollTimeout)
		defer cancel()
	}
	js := scrollJS(d.cfg.ScrollStep,
		int(d.cfg.ScrollInterval/time.Millisecond),
		int(d.cfg.ScrollGrace/time.Millisecond))
	_, err := sess.Eval(ctx, js)
	return err
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
