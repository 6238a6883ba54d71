package chat

import (
	"context"
	"io"
	"sync"
)

// FakeTransport replays a scripted event sequence. Test helper.
type FakeTransport struct {
	mu      sync.Mutex
	scripts [][]Event
	openErr error

	// Opened records the requests passed to Open, in order.
	Opened []Request
}

// NewFakeTransport creates a transport that replays script on the
// first Open, then subsequent scripts added with AddScript.
func NewFakeTransport(script ...Event) *FakeTransport {
	return &FakeTransport{scripts: [][]Event{script}}
}

// AddScript queues another event sequence for the next Open call.
func (t *FakeTransport) AddScript(script ...Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.scripts = append(t.scripts, script)
}

// FailOpen makes the next Open return err.
func (t *FakeTransport) FailOpen(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.openErr = err
}

func (t *FakeTransport) Open(_ context.Context, req Request) (Stream, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.Opened = append(t.Opened, req)
	if t.openErr != nil {
		err := t.openErr
		t.openErr = nil
		return nil, err
	}

	var script []Event
	if len(t.scripts) > 0 {
		script = t.scripts[0]
		t.scripts = t.scripts[1:]
	}
	return &scriptStream{events: script, cancelled: make(chan struct{})}, nil
}

// scriptStream hands out scripted events one per Next call. Once the
// script runs out it blocks like a stalled connection.
type scriptStream struct {
	mu     sync.Mutex
	events []Event

	cancelOnce sync.Once
	cancelled  chan struct{}
}

func (s *scriptStream) Next(ctx context.Context) (Event, error) {
	select {
	case <-s.cancelled:
		return Event{}, io.EOF
	case <-ctx.Done():
		return Event{}, ctx.Err()
	default:
	}

	s.mu.Lock()
	if len(s.events) == 0 {
		s.mu.Unlock()
		// Script exhausted without a terminal event: block until
		// cancelled, like a stalled connection.
		select {
		case <-s.cancelled:
			return Event{}, io.EOF
		case <-ctx.Done():
			return Event{}, ctx.Err()
		}
	}
	ev := s.events[0]
	s.events = s.events[1:]
	s.mu.Unlock()
	return ev, nil
}

func (s *scriptStream) Cancel() {
	s.cancelOnce.Do(func() { close(s.cancelled) })
}

// BlockingStream never produces an event until cancelled. Test helper
// for stall and stop paths.
type BlockingStream struct {
	cancelOnce sync.Once
	cancelled  chan struct{}
}

// NewBlockingStream creates a stream that blocks in Next.
func NewBlockingStream() *BlockingStream {
	return &BlockingStream{cancelled: make(chan struct{})}
}

func (s *BlockingStream) Next(ctx context.Context) (Event, error) {
	select {
	case <-s.cancelled:
		return Event{}, io.EOF
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}

func (s *BlockingStream) Cancel() {
	s.cancelOnce.Do(func() { close(s.cancelled) })
}

// StaticStreamTransport returns a fixed stream from every Open.
type StaticStreamTransport struct {
	S Stream
}

func (t StaticStreamTransport) Open(context.Context, Request) (Stream, error) {
	return t.S, nil
}
