package browser

import (
	"context"
	"encoding/base64"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-rod/rod"
)

func TestResponseTracker_FinishedAfterReceived(t *testing.T) {
	tr := newResponseTracker()
	tr.received("1", "https://example.com/style.css", 200, "Stylesheet")

	m, ok := tr.finished("1")
	if !ok {
		t.Fatal("expected pending response")
	}
	if m.url != "https://example.com/style.css" || m.status != 200 || m.kind != "Stylesheet" {
		t.Errorf("unexpected meta: %+v", m)
	}
	if _, ok := tr.finished("1"); ok {
		t.Error("finished twice for the same id")
	}
}

func TestResponseTracker_RedirectKeepsLatestHop(t *testing.T) {
	tr := newResponseTracker()
	tr.received("7", "https://example.com/old.js", 301, "Script")
	tr.received("7", "https://example.com/new.js", 200, "Script")

	m, ok := tr.finished("7")
	if !ok || m.url != "https://example.com/new.js" || m.status != 200 {
		t.Errorf("got %+v ok=%v, want latest hop", m, ok)
	}
}

func TestResponseTracker_Failed(t *testing.T) {
	tr := newResponseTracker()
	tr.received("2", "https://example.com/a.png", 200, "Image")
	tr.failed("2")

	if _, ok := tr.finished("2"); ok {
		t.Error("failed request should not finish")
	}
	if tr.len() != 0 {
		t.Errorf("pending = %d, want 0", tr.len())
	}
}

func TestResponseTracker_UnknownFinish(t *testing.T) {
	tr := newResponseTracker()
	if _, ok := tr.finished("nope"); ok {
		t.Error("unknown id should not finish")
	}
}

func TestDecodeBody(t *testing.T) {
	plain, err := decodeBody("body{}", false)
	if err != nil || string(plain) != "body{}" {
		t.Fatalf("plain: %q, %v", plain, err)
	}

	raw := []byte{0x89, 'P', 'N', 'G', 0x00}
	got, err := decodeBody(base64.StdEncoding.EncodeToString(raw), true)
	if err != nil {
		t.Fatalf("base64: %v", err)
	}
	if string(got) != string(raw) {
		t.Errorf("decoded %v, want %v", got, raw)
	}

	if _, err := decodeBody("%%%", true); err == nil {
		t.Error("expected error for invalid base64")
	}
}

func TestResponse_Body(t *testing.T) {
	r := NewResponse("https://example.com/a.js", 200, func(context.Context) ([]byte, error) {
		return []byte("x"), nil
	})
	b, err := r.Body(context.Background())
	if err != nil || string(b) != "x" {
		t.Fatalf("Body = %q, %v", b, err)
	}

	var empty Response
	if _, err := empty.Body(context.Background()); err == nil {
		t.Error("expected error for response without body func")
	}
}

func metaResponse(m responseMeta) Response {
	return NewResponse(m.url, m.status, nil)
}

// startLoop runs a loop that stays up until the dispatcher stops it and
// reports when it has exited.
func startLoop(d *dispatcher) *atomic.Bool {
	var exited atomic.Bool
	d.run(func() {
		<-d.loopCtx.Done()
		exited.Store(true)
	})
	return &exited
}

func TestDispatcher_StopWaitsForObservers(t *testing.T) {
	d := newDispatcher(time.Second, nil)
	exited := startLoop(d)

	release := make(chan struct{})
	var got atomic.Value
	d.tracker.received("1", "https://example.com/app.js", 200, "Script")
	d.finish("1", func(ctx context.Context, r Response) {
		<-release
		got.Store(r.URL)
		if ctx.Err() != nil {
			t.Error("body context cancelled before drain finished")
		}
	}, metaResponse)

	stopped := make(chan bool)
	go func() { stopped <- d.stop() }()

	select {
	case <-stopped:
		t.Fatal("stop returned while an observer was still running")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)

	if abandoned := <-stopped; abandoned {
		t.Error("drain should not have timed out")
	}
	if !exited.Load() {
		t.Error("stop returned before the event loop exited")
	}
	if got.Load() != "https://example.com/app.js" {
		t.Errorf("observer saw %v", got.Load())
	}
}

func TestDispatcher_DrainTimeoutCancelsBodies(t *testing.T) {
	d := newDispatcher(20*time.Millisecond, nil)
	startLoop(d)

	var cancelled atomic.Bool
	d.tracker.received("9", "https://example.com/stream", 200, "Fetch")
	d.finish("9", func(ctx context.Context, _ Response) {
		<-ctx.Done()
		cancelled.Store(errors.Is(ctx.Err(), context.Canceled))
	}, metaResponse)

	if !d.stop() {
		t.Error("expected drain timeout")
	}
	if !cancelled.Load() {
		t.Error("pending body read was not cancelled")
	}
}

func TestDispatcher_FinishWithoutReceived(t *testing.T) {
	d := newDispatcher(time.Second, nil)
	called := false
	d.finish("404", func(context.Context, Response) { called = true }, metaResponse)
	d.stop()
	if called {
		t.Error("observer called for an unknown request id")
	}
}

type closeRecorder struct{ closed int }

func (c *closeRecorder) Close() error {
	c.closed++
	return nil
}

func TestCloseBrowser_RemoteReleasesSocketOnly(t *testing.T) {
	// Remote Chrome without an incognito context: nothing to close on the
	// browser side, but the websocket must still go.
	b := rod.New()
	conn := &closeRecorder{}
	if err := closeBrowser(b, b, nil, conn); err != nil {
		t.Fatal(err)
	}
	if conn.closed != 1 {
		t.Errorf("websocket closed %d times, want 1", conn.closed)
	}
}
