package browser

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// serializeJS returns the document as page.content() would: doctype plus
// the outer HTML of the root element.
const serializeJS = `() => {
	const dt = document.doctype;
	const head = dt ? new XMLSerializer().serializeToString(dt) + "\n" : "";
	return head + document.documentElement.outerHTML;
}`

type sessionParts struct {
	browser *rod.Browser
	owner   *rod.Browser // incognito context on a remote Chrome, else browser
	page    *rod.Page
	lnch    *launcher.Launcher
	conn    io.Closer // CDP websocket
	drain   time.Duration
	logger  *slog.Logger
}

// rodSession is a Session over one rod page. Response events flow through
// a dispatcher; Close stops it before closing the tab.
type rodSession struct {
	sessionParts
	events *dispatcher

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

func newSession(p sessionParts) *rodSession {
	return &rodSession{
		sessionParts: p,
		events:       newDispatcher(p.drain, p.logger),
	}
}

func (s *rodSession) OnResponse(fn ResponseFunc) {
	if fn == nil || s.closed.Load() {
		return
	}

	d := s.events
	d.run(s.page.Context(d.loopCtx).EachEvent(
		func(e *proto.NetworkResponseReceived) {
			if e.Response == nil {
				return
			}
			d.tracker.received(e.RequestID, e.Response.URL, e.Response.Status, string(e.Type))
		},
		func(e *proto.NetworkLoadingFinished) {
			d.finish(e.RequestID, fn, s.response)
		},
		func(e *proto.NetworkLoadingFailed) {
			d.tracker.failed(e.RequestID)
		},
	))
}

func (s *rodSession) response(m responseMeta) Response {
	r := NewResponse(m.url, m.status, func(ctx context.Context) ([]byte, error) {
		res, err := proto.NetworkGetResponseBody{RequestID: m.id}.Call(s.page.Context(ctx))
		if err != nil {
			return nil, fmt.Errorf("browser: get body %s: %w", m.url, err)
		}
		return decodeBody(res.Body, res.Base64Encoded)
	})
	r.Type = m.kind
	return r
}

func (s *rodSession) Navigate(ctx context.Context, pageURL string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	p := s.page.Context(ctx)
	if err := p.Navigate(pageURL); err != nil {
		return fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("browser: wait load %s: %w", pageURL, err)
	}
	return nil
}

func (s *rodSession) Eval(ctx context.Context, js string) (string, error) {
	if s.closed.Load() {
		return "", ErrClosed
	}
	res, err := s.page.Context(ctx).Eval(js)
	if err != nil {
		return "", fmt.Errorf("browser: eval: %w", err)
	}
	if res.Type == proto.RuntimeRemoteObjectTypeUndefined {
		return "", nil
	}
	return res.Value.Str(), nil
}

func (s *rodSession) HTML(ctx context.Context) (string, error) {
	html, err := s.Eval(ctx, serializeJS)
	if err != nil {
		return "", fmt.Errorf("browser: get DOM: %w", err)
	}
	return html, nil
}

func (s *rodSession) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.events.stop()

		if err := s.page.Close(); err != nil {
			s.logger.Debug("browser: close tab", "error", err)
		}
		s.closeErr = closeBrowser(s.browser, s.owner, s.lnch, s.conn)
		s.logger.Debug("browser: session closed")
	})
	return s.closeErr
}
