package browser

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod/lib/proto"
)

// responseMeta is what Network.responseReceived tells us. The body only
// becomes readable once Network.loadingFinished arrives for the same id.
type responseMeta struct {
	id     proto.NetworkRequestID
	url    string
	status int
	kind   string
}

// responseTracker pairs responseReceived with loadingFinished events.
// Requests that fail after headers arrive are dropped.
type responseTracker struct {
	mu      sync.Mutex
	pending map[proto.NetworkRequestID]responseMeta
}

func newResponseTracker() *responseTracker {
	return &responseTracker{pending: make(map[proto.NetworkRequestID]responseMeta)}
}

func (t *responseTracker) received(id proto.NetworkRequestID, url string, status int, kind string) {
	t.mu.Lock()
	// A redirect chain reuses the request id; the latest hop wins.
	t.pending[id] = responseMeta{id: id, url: url, status: status, kind: kind}
	t.mu.Unlock()
}

func (t *responseTracker) finished(id proto.NetworkRequestID) (responseMeta, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.pending[id]
	if ok {
		delete(t.pending, id)
	}
	return m, ok
}

func (t *responseTracker) failed(id proto.NetworkRequestID) {
	t.mu.Lock()
	delete(t.pending, id)
	t.mu.Unlock()
}

func (t *responseTracker) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// decodeBody turns a Network.getResponseBody result into raw bytes.
func decodeBody(body string, base64Encoded bool) ([]byte, error) {
	if !base64Encoded {
		return []byte(body), nil
	}
	data, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return nil, fmt.Errorf("browser: decode body: %w", err)
	}
	return data, nil
}

// dispatcher owns the response event loop of one session. Finished
// responses go to the observer on their own goroutine so body reads never
// stall the event stream. stop ends the loop first, then waits (bounded by
// drain) for observers still reading bodies.
type dispatcher struct {
	tracker *responseTracker
	drain   time.Duration
	logger  *slog.Logger

	loopCtx    context.Context
	stopLoop   context.CancelFunc
	bodyCtx    context.Context
	stopBodies context.CancelFunc

	loop     sync.WaitGroup
	inflight sync.WaitGroup
}

func newDispatcher(drain time.Duration, logger *slog.Logger) *dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	loopCtx, stopLoop := context.WithCancel(context.Background())
	bodyCtx, stopBodies := context.WithCancel(context.Background())
	return &dispatcher{
		tracker:    newResponseTracker(),
		drain:      drain,
		logger:     logger,
		loopCtx:    loopCtx,
		stopLoop:   stopLoop,
		bodyCtx:    bodyCtx,
		stopBodies: stopBodies,
	}
}

// run consumes the event stream until wait returns. wait must return once
// loopCtx is done.
func (d *dispatcher) run(wait func()) {
	d.loop.Add(1)
	go func() {
		defer d.loop.Done()
		wait()
	}()
}

// finish hands a finished response to fn. Only called from the loop.
func (d *dispatcher) finish(id proto.NetworkRequestID, fn ResponseFunc, build func(responseMeta) Response) {
	meta, ok := d.tracker.finished(id)
	if !ok {
		return
	}
	d.inflight.Add(1)
	go func() {
		defer d.inflight.Done()
		fn(d.bodyCtx, build(meta))
	}()
}

// stop ends the loop and drains observers. It reports whether the drain
// timed out, in which case pending body reads were cancelled.
func (d *dispatcher) stop() (abandoned bool) {
	// No new observer goroutines can start once the loop has exited.
	d.stopLoop()
	d.loop.Wait()

	done := make(chan struct{})
	go func() {
		d.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d.drain):
		d.logger.Warn("browser: drain timeout, abandoning pending bodies",
			"pending", d.tracker.len())
		d.stopBodies()
		<-done
		abandoned = true
	}
	d.stopBodies()
	return abandoned
}
