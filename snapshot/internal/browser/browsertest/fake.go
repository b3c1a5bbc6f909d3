// Package browsertest provides an in-memory browser.Session for tests.
package browsertest

import (
	"context"
	"strings"
	"sync"

	"github.com/hazyhaar/pagesnap/snapshot/internal/browser"
)

// Page describes what a fake session serves.
type Page struct {
	// Responses are delivered to the observer during Navigate.
	Responses []browser.Response
	// HTML is returned by successive HTML calls; the last entry repeats.
	HTML []string
	// FinalURL is the value of location.href.
	FinalURL string

	NavigateErr error
	LaunchErr   error
	// EvalErr, when set, is consulted for every Eval call.
	EvalErr func(js string) error
	// HTMLErr fails the n-th HTML call (1-based) when n is a key.
	HTMLErr map[int]error
}

// Session is a fake browser.Session driven by a Page.
type Session struct {
	page Page

	mu       sync.Mutex
	observer browser.ResponseFunc
	htmlN    int
	evals    []string
	closes   int
	closed   bool
}

// Closes reports how many times Close was called.
func (s *Session) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

// Evals returns the scripts passed to Eval, in order.
func (s *Session) Evals() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.evals...)
}

func (s *Session) OnResponse(fn browser.ResponseFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observer = fn
}

func (s *Session) Navigate(ctx context.Context, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.page.NavigateErr != nil {
		return s.page.NavigateErr
	}
	s.mu.Lock()
	fn := s.observer
	s.mu.Unlock()
	if fn == nil {
		return nil
	}
	var wg sync.WaitGroup
	for _, r := range s.page.Responses {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(ctx, r)
		}()
	}
	wg.Wait()
	return nil
}

func (s *Session) Eval(ctx context.Context, js string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	closed := s.closed
	s.evals = append(s.evals, js)
	s.mu.Unlock()
	if closed {
		return "", browser.ErrClosed
	}
	if s.page.EvalErr != nil {
		if err := s.page.EvalErr(js); err != nil {
			return "", err
		}
	}
	switch {
	case strings.Contains(js, "location.href"):
		return s.page.FinalURL, nil
	case strings.Contains(js, "querySelectorAll"):
		return "0", nil
	}
	return "", nil
}

func (s *Session) HTML(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	s.htmlN++
	n := s.htmlN
	s.mu.Unlock()
	if err := s.page.HTMLErr[n]; err != nil {
		return "", err
	}
	if len(s.page.HTML) == 0 {
		return "<html></html>", nil
	}
	if n > len(s.page.HTML) {
		n = len(s.page.HTML)
	}
	return s.page.HTML[n-1], nil
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	s.closed = true
	return nil
}

// Launcher hands out fake sessions for one Page and remembers them.
type Launcher struct {
	Page Page

	mu       sync.Mutex
	sessions []*Session
}

func (l *Launcher) Launch(ctx context.Context) (browser.Session, error) {
	if l.Page.LaunchErr != nil {
		return nil, l.Page.LaunchErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := &Session{page: l.Page}
	l.mu.Lock()
	l.sessions = append(l.sessions, s)
	l.mu.Unlock()
	return s, nil
}

// Sessions returns every session launched so far.
func (l *Launcher) Sessions() []*Session {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*Session(nil), l.sessions...)
}

// Body returns a Response whose body is the given string.
func Body(rawURL string, status int, body string) browser.Response {
	return browser.NewResponse(rawURL, status, func(context.Context) ([]byte, error) {
		return []byte(body), nil
	})
}
