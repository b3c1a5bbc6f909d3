// Package browser narrows go-rod down to what a snapshot needs: one
// isolated Chrome per session, every network response surfaced to a single
// observer, and a teardown that is safe to call on any exit path.
package browser

import (
	"context"
	"errors"
)

// ErrClosed is returned by Session methods called after Close.
var ErrClosed = errors.New("browser: session closed")

// Response is a network response observed during a session. The body is
// fetched lazily so observers can reject a response on its status alone.
type Response struct {
	URL    string
	Status int
	Type   string // CDP resource type: Document, Stylesheet, Image, ...

	body func(ctx context.Context) ([]byte, error)
}

// NewResponse builds a Response whose body is produced by body.
func NewResponse(rawURL string, status int, body func(ctx context.Context) ([]byte, error)) Response {
	return Response{URL: rawURL, Status: status, body: body}
}

// Body returns the response payload. It fails when the browser no longer
// holds the body (evicted, redirected, or the session is shutting down).
func (r Response) Body(ctx context.Context) ([]byte, error) {
	if r.body == nil {
		return nil, errors.New("browser: response has no body")
	}
	return r.body(ctx)
}

// ResponseFunc observes responses. It may be called from several goroutines
// at once and must not block for long.
type ResponseFunc func(ctx context.Context, r Response)

// Session is one browser tab in its own browser context.
type Session interface {
	// OnResponse registers the response observer. It must be called before
	// Navigate, otherwise early responses are lost.
	OnResponse(fn ResponseFunc)
	// Navigate loads url and waits for the load event.
	Navigate(ctx context.Context, url string) error
	// Eval runs a JS function definition, awaiting a returned promise, and
	// returns the result rendered as a string.
	Eval(ctx context.Context, js string) (string, error)
	// HTML serialises the current DOM including the doctype.
	HTML(ctx context.Context) (string, error)
	// Close tears the session down. When it returns no observer call is in
	// progress and none will follow. Calls after the first are no-ops.
	Close() error
}

// Launcher starts sessions.
type Launcher interface {
	Launch(ctx context.Context) (Session, error)
}
