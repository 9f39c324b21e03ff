package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bluenviron/gomavlib/v3"
	"github.com/bluenviron/gomavlib/v3/pkg/frame"
	"github.com/bluenviron/gomavlib/v3/pkg/message"
	"github.com/stretchr/testify/require"
)

// fakeLink is an in-memory Link.
type fakeLink struct {
	events chan gomavlib.Event

	mu       sync.Mutex
	written  []message.Message
	frames   []frame.Frame
	writeErr error
	closed   bool
}

func newFakeLink() *fakeLink {
	return &fakeLink{events: make(chan gomavlib.Event, 64)}
}

func (l *fakeLink) Events() chan gomavlib.Event { return l.events }

func (l *fakeLink) WriteMessageAll(msg message.Message) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.writeErr != nil {
		return l.writeErr
	}
	l.written = append(l.written, msg)
	return nil
}

func (l *fakeLink) WriteFrameAll(fr frame.Frame) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.writeErr != nil {
		return l.writeErr
	}
	l.frames = append(l.frames, fr)
	return nil
}

func (l *fakeLink) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.closed {
		l.closed = true
		close(l.events)
	}
}

func (l *fakeLink) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

func (l *fakeLink) setWriteErr(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writeErr = err
}

func (l *fakeLink) messages() []message.Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]message.Message(nil), l.written...)
}

// deliver pushes msg as if it had been received from systemID.
func (l *fakeLink) deliver(systemID byte, msg message.Message) {
	l.events <- &gomavlib.EventFrame{Frame: &frame.V2Frame{SystemID: systemID, ComponentID: 1, Message: msg}}
}

func linkDialer(l Link) Dialer {
	return func(ctx context.Context, spec Spec) (Link, error) {
		return l, nil
	}
}

func waitStatus(t *testing.T, s interface{ State() State }, want Status) {
	t.Helper()
	require.Eventually(t, func() bool {
		return s.State().Status == want
	}, 2*time.Second, 5*time.Millisecond, "expected status %s, have %s", want, s.State())
}
