package diag

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/skyhil/hilbridge/internal/queue"
)

// DefaultCapacity is the status queue size used when none is configured.
const DefaultCapacity = 100

// Message is one structured diagnostic entry.
type Message struct {
	Time     time.Time
	Kind     Kind
	Endpoint string
	Text     string
	Err      error
}

func (m Message) String() string {
	prefix := m.Kind.String()
	if m.Endpoint != "" {
		prefix += " [" + m.Endpoint + "]"
	}
	if m.Err != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, m.Text, m.Err)
	}
	return fmt.Sprintf("%s: %s", prefix, m.Text)
}

// Reporter is the bounded status channel between the bridge and its host.
// Oldest entries are discarded on overflow. Safe for concurrent use.
type Reporter struct {
	q      *queue.Queue[Message]
	logger *slog.Logger
	now    func() time.Time

	mu        sync.RWMutex
	listeners []func(Message)
}

// NewReporter creates a reporter holding at most capacity messages.
// Every message is mirrored to logger when it is not nil.
func NewReporter(capacity int, logger *slog.Logger) *Reporter {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Reporter{
		q:      queue.NewBounded[Message](capacity),
		logger: logger,
		now:    time.Now,
	}
}

// OnReport registers a callback invoked synchronously for every message.
// Callbacks must not block.
func (r *Reporter) OnReport(fn func(Message)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

// Report enqueues a message, stamping its time if unset.
func (r *Reporter) Report(m Message) {
	if m.Time.IsZero() {
		m.Time = r.now()
	}
	r.q.Push(m)

	if r.logger != nil {
		attrs := []any{"kind", m.Kind.String()}
		if m.Endpoint != "" {
			attrs = append(attrs, "endpoint", m.Endpoint)
		}
		if m.Err != nil {
			attrs = append(attrs, "error", m.Err)
		}
		if m.Kind.IsError() {
			r.logger.Warn(m.Text, attrs...)
		} else {
			r.logger.Info(m.Text, attrs...)
		}
	}

	r.mu.RLock()
	listeners := r.listeners
	r.mu.RUnlock()
	for _, fn := range listeners {
		fn(m)
	}
}

// Infof reports a KindInfo message.
func (r *Reporter) Infof(endpoint, format string, args ...any) {
	r.Report(Message{Kind: KindInfo, Endpoint: endpoint, Text: fmt.Sprintf(format, args...)})
}

// Error reports err under its derived kind.
func (r *Reporter) Error(endpoint, text string, err error) {
	r.Report(Message{Kind: KindOf(err), Endpoint: endpoint, Text: text, Err: err})
}

// Drain returns and removes every queued message, oldest first.
func (r *Reporter) Drain() []Message {
	return r.q.GetAndEmpty()
}

// DrainStrings is Drain rendered for hosts that only want text.
func (r *Reporter) DrainStrings() []string {
	msgs := r.Drain()
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.String()
	}
	return out
}

// Len returns the number of pending messages.
func (r *Reporter) Len() int {
	return r.q.Len()
}

// Dropped returns how many messages were discarded on overflow.
func (r *Reporter) Dropped() uint64 {
	return r.q.Dropped()
}
