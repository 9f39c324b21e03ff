package session

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bluenviron/gomavlib/v3"
	"github.com/bluenviron/gomavlib/v3/pkg/frame"
	"github.com/bluenviron/gomavlib/v3/pkg/message"
	"github.com/skyhil/hilbridge/internal/diag"
	"github.com/skyhil/hilbridge/internal/queue"
)

// DefaultInboundCapacity bounds the messages held between two drains.
const DefaultInboundCapacity = 1024

var (
	// ErrNotConnected is returned by sends on a session without an open link.
	ErrNotConnected = errors.New("not connected")
	// ErrLinkClosed is the reason recorded when the transport goes away.
	ErrLinkClosed = errors.New("link closed by transport")
)

// Received is one inbound frame with its arrival time.
type Received struct {
	Time     time.Time
	SystemID byte
	Frame    frame.Frame
}

// Message returns the decoded message carried by the frame.
func (r Received) Message() message.Message {
	return r.Frame.GetMessage()
}

// Stats are cumulative counters for one session.
type Stats struct {
	Received    uint64
	Sent        uint64
	SendErrors  uint64
	Dropped     uint64
	ParseErrors uint64
}

// Options configure a Session.
type Options struct {
	Dialer          Dialer
	Logger          *slog.Logger
	InboundCapacity int
	// OnStatus is called after every status change, outside the session lock.
	OnStatus func(name string, st State)
}

// Session is one MAVLink endpoint: connect asynchronously, collect inbound
// frames for the tick to drain, and write best-effort.
type Session struct {
	spec     Spec
	dial     Dialer
	logger   *slog.Logger
	onStatus func(string, State)
	inbound  *queue.Queue[Received]
	metrics  *instruments

	mu           sync.Mutex
	state        State
	link         Link
	cancel       context.CancelFunc
	gen          uint64
	lastReceived time.Time

	received    atomic.Uint64
	sent        atomic.Uint64
	sendErrors  atomic.Uint64
	parseErrors atomic.Uint64
}

// New creates a disconnected session.
func New(spec Spec, opts Options) *Session {
	if opts.Dialer == nil {
		opts.Dialer = DialNode
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.InboundCapacity <= 0 {
		opts.InboundCapacity = DefaultInboundCapacity
	}
	return &Session{
		spec:     spec,
		dial:     opts.Dialer,
		logger:   opts.Logger.With("endpoint", spec.Name),
		onStatus: opts.OnStatus,
		inbound:  queue.NewBounded[Received](opts.InboundCapacity),
		metrics:  newInstruments(spec.Name),
	}
}

// Name returns the endpoint label.
func (s *Session) Name() string {
	return s.spec.Name
}

// State returns the current status snapshot.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connected reports whether the link is open.
func (s *Session) Connected() bool {
	return s.State().Status == StatusConnected
}

// Connect starts opening the link in the background and returns at once.
// The status is Connecting on return. Connecting an already connecting or
// connected session does nothing.
func (s *Session) Connect() {
	s.mu.Lock()
	if s.state.Status == StatusConnecting || s.state.Status == StatusConnected {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.gen++
	gen := s.gen
	s.cancel = cancel
	stale := s.link
	s.link = nil
	notify := s.setStateLocked(State{Status: StatusConnecting})
	s.mu.Unlock()
	if stale != nil {
		stale.Close()
	}
	notify()

	go s.connect(ctx, gen)
}

func (s *Session) connect(ctx context.Context, gen uint64) {
	link, err := s.dial(ctx, s.spec)

	s.mu.Lock()
	if ctx.Err() != nil || gen != s.gen {
		s.mu.Unlock()
		if link != nil {
			link.Close()
		}
		return
	}
	if err != nil {
		notify := s.setStateLocked(State{Status: StatusError, Reason: diag.Wrap(diag.KindConnection, s.spec.Name, err)})
		s.mu.Unlock()
		notify()
		return
	}
	s.link = link
	notify := s.setStateLocked(State{Status: StatusConnected})
	s.mu.Unlock()
	notify()

	go s.readLoop(link, gen)
}

func (s *Session) readLoop(link Link, gen uint64) {
	for ev := range link.Events() {
		switch e := ev.(type) {
		case *gomavlib.EventFrame:
			now := time.Now()
			s.mu.Lock()
			if gen != s.gen {
				s.mu.Unlock()
				continue
			}
			s.lastReceived = now
			s.mu.Unlock()

			if n := s.inbound.Push(Received{Time: now, SystemID: e.SystemID(), Frame: e.Frame}); n > 0 {
				s.metrics.add(s.metrics.dropped, int64(n))
			}
			s.received.Add(1)
			s.metrics.add(s.metrics.received, 1)
		case *gomavlib.EventParseError:
			s.parseErrors.Add(1)
			s.logger.Debug("parse error", "error", e.Error)
		case *gomavlib.EventChannelOpen:
			s.logger.Debug("channel opened", "channel", e.Channel)
		case *gomavlib.EventChannelClose:
			s.logger.Debug("channel closed", "channel", e.Channel)
		}
	}

	// Events closes when the link goes away. If nobody asked for it, the
	// session is no longer usable.
	s.mu.Lock()
	if gen != s.gen || s.state.Status != StatusConnected {
		s.mu.Unlock()
		return
	}
	s.link = nil
	notify := s.setStateLocked(State{Status: StatusError, Reason: diag.Wrap(diag.KindConnection, s.spec.Name, ErrLinkClosed)})
	s.mu.Unlock()
	notify()
}

// Close tears the link down and cancels an in-flight connect. Idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.gen++
	link := s.link
	s.link = nil
	var notify func()
	if s.state.Status != StatusDisconnected {
		notify = s.setStateLocked(State{Status: StatusDisconnected})
	}
	s.mu.Unlock()

	if link != nil {
		link.Close()
	}
	if notify != nil {
		notify()
	}
}

// DrainInbound yields every message received since the previous drain.
// It never blocks; the snapshot is taken when it is called.
func (s *Session) DrainInbound() iter.Seq[message.Message] {
	items := s.inbound.GetAndEmpty()
	return func(yield func(message.Message) bool) {
		for _, r := range items {
			if !yield(r.Message()) {
				return
			}
		}
	}
}

// DrainReceived is DrainInbound with frame metadata, for forwarding.
func (s *Session) DrainReceived() iter.Seq[Received] {
	items := s.inbound.GetAndEmpty()
	return func(yield func(Received) bool) {
		for _, r := range items {
			if !yield(r) {
				return
			}
		}
	}
}

// Discard drops buffered inbound messages.
func (s *Session) Discard() {
	s.inbound.Clear()
}

// SendRaw writes msg to every channel of the link. The message is dropped
// when the session is not connected. A write failure moves the session to
// StatusError.
func (s *Session) SendRaw(msg message.Message) error {
	return s.write(func(l Link) error { return l.WriteMessageAll(msg) })
}

// Forward writes an already-encoded frame, keeping its origin identity.
func (s *Session) Forward(fr frame.Frame) error {
	return s.write(func(l Link) error { return l.WriteFrameAll(fr) })
}

func (s *Session) write(fn func(Link) error) error {
	s.mu.Lock()
	link, gen := s.link, s.gen
	connected := s.state.Status == StatusConnected
	s.mu.Unlock()

	if !connected || link == nil {
		return diag.Wrap(diag.KindConnection, s.spec.Name, ErrNotConnected)
	}

	if err := fn(link); err != nil {
		s.sendErrors.Add(1)
		s.metrics.add(s.metrics.failed, 1)
		werr := diag.Wrap(diag.KindConnection, s.spec.Name, err)

		// The faulted link is detached so a later Connect starts clean and
		// its read loop stops feeding inbound.
		s.mu.Lock()
		var notify func()
		var stale Link
		if gen == s.gen && s.state.Status == StatusConnected {
			stale = s.link
			s.link = nil
			s.gen++
			notify = s.setStateLocked(State{Status: StatusError, Reason: werr})
		}
		s.mu.Unlock()
		if stale != nil {
			stale.Close()
		}
		if notify != nil {
			notify()
		}
		return werr
	}

	s.sent.Add(1)
	s.metrics.add(s.metrics.sent, 1)
	return nil
}

// LastReceived returns when the last frame arrived, zero if none has.
func (s *Session) LastReceived() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastReceived
}

// Stats returns cumulative counters.
func (s *Session) Stats() Stats {
	return Stats{
		Received:    s.received.Load(),
		Sent:        s.sent.Load(),
		SendErrors:  s.sendErrors.Load(),
		Dropped:     s.inbound.Dropped(),
		ParseErrors: s.parseErrors.Load(),
	}
}

// setStateLocked must be called with mu held. The returned func delivers
// the change notification and must be called after unlocking.
func (s *Session) setStateLocked(st State) func() {
	s.state = st
	switch st.Status {
	case StatusError:
		s.logger.Warn("session error", "error", st.Reason)
	default:
		s.logger.Debug("session status", "status", st.Status.String())
	}
	fn := s.onStatus
	name := s.spec.Name
	return func() {
		if fn != nil {
			fn(name, st)
		}
	}
}
