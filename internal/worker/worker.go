package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/skyhil/hilbridge/internal/dispatcher"
	"github.com/skyhil/hilbridge/internal/logging"
	"github.com/skyhil/hilbridge/internal/storage"
	"github.com/skyhil/hilbridge/pkg/core"
)

// EventRecord is the single ordered queue every recording goes through.
// Run boundaries share it with samples so a sample is always written under
// the run that was active when it was taken.
const EventRecord = ":RECORD:"

const (
	// DefaultBufferSize bounds the samples waiting for the backend.
	DefaultBufferSize = 10000
	// controlTimeout bounds how long run start/stop wait for queue space
	// and for the backend.
	controlTimeout = 10 * time.Second
)

// ErrTimeout is returned by RunStopped when the backend did not finish in time.
var ErrTimeout = errors.New("recorder timed out")

type runStart struct {
	run core.Session
}

type runStop struct {
	end  time.Time
	done chan error
}

// Stats are cumulative recorder counters.
type Stats struct {
	Recorded uint64
	Dropped  uint64
	Failed   uint64
}

// Uploader ships an exported flight log once its run has ended.
type Uploader interface {
	Upload(ctx context.Context, filePath string, meta core.UploadMetadata) error
}

// UploadTimeout bounds one flight log upload including retries.
const UploadTimeout = 2 * time.Minute

// Manager feeds samples from the controller to a storage backend without
// blocking the caller.
type Manager struct {
	backend    storage.Backend
	d          *dispatcher.Dispatcher
	logger     *slog.Logger
	bufferSize int

	uploader  Uploader
	uploadTag string
	uploads   sync.WaitGroup
	// current is only touched by the record handler
	current core.Session

	recorded atomic.Uint64
	dropped  atomic.Uint64
	failed   atomic.Uint64
	closed   atomic.Bool
}

// NewManager creates a manager with its own dispatcher and registers the
// recording handler. bufferSize <= 0 uses DefaultBufferSize.
func NewManager(backend storage.Backend, logger *slog.Logger, bufferSize int) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	d, err := dispatcher.New(logging.NewDispatcherLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("creating dispatcher: %w", err)
	}

	m := &Manager{
		backend:    backend,
		d:          d,
		logger:     logger,
		bufferSize: bufferSize,
	}
	m.RegisterHandlers(d)
	return m, nil
}

// RegisterHandlers registers the recording handler with the dispatcher.
func (m *Manager) RegisterHandlers(d *dispatcher.Dispatcher) {
	d.Register(EventRecord, m.handleRecord, dispatcher.Buffered(m.bufferSize))
}

// Stats returns cumulative counters.
func (m *Manager) Stats() Stats {
	return Stats{
		Recorded: m.recorded.Load(),
		Dropped:  m.dropped.Load(),
		Failed:   m.failed.Load(),
	}
}

// SetUploader enables flight log uploads for backends that export files.
// It must be called before the first run starts.
func (m *Manager) SetUploader(u Uploader, tag string) {
	m.uploader = u
	m.uploadTag = tag
}

// Close drains the queue, waits for pending uploads and closes the backend.
func (m *Manager) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	m.d.Close()
	m.uploads.Wait()
	return m.backend.Close()
}

func (m *Manager) RecordSensor(s core.SensorSample)      { m.enqueue(&s) }
func (m *Manager) RecordGps(s core.GpsSample)            { m.enqueue(&s) }
func (m *Manager) RecordActuators(s core.ActuatorSample) { m.enqueue(&s) }
func (m *Manager) RecordCollision(e core.CollisionEvent) { m.enqueue(&e) }
func (m *Manager) RecordStatus(e core.StatusEvent)       { m.enqueue(&e) }

// RunStarted queues the start of a run. It waits for queue space but not
// for the backend.
func (m *Manager) RunStarted(run core.Session) {
	if err := m.enqueueControl(runStart{run: run}); err != nil {
		m.logger.Error("run start not recorded", "error", err)
	}
}

// RunStopped queues the end of a run behind every sample already queued and
// waits until the backend has closed it.
func (m *Manager) RunStopped(end time.Time) error {
	done := make(chan error, 1)
	if err := m.enqueueControl(runStop{end: end, done: done}); err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-time.After(controlTimeout):
		return fmt.Errorf("closing run: %w", ErrTimeout)
	}
}

func (m *Manager) enqueue(payload any) {
	if _, err := m.d.Dispatch(dispatcher.Event{Name: EventRecord, Payload: payload, Timestamp: time.Now()}); err != nil {
		if m.dropped.Add(1) == 1 {
			m.logger.Warn("recorder dropping samples", "error", err)
		}
	}
}

// enqueueControl retries until the event is queued. Run boundaries are rare
// and must not be lost to a momentarily full queue.
func (m *Manager) enqueueControl(payload any) error {
	deadline := time.Now().Add(controlTimeout)
	for {
		_, err := m.d.Dispatch(dispatcher.Event{Name: EventRecord, Payload: payload, Timestamp: time.Now()})
		if err == nil {
			return nil
		}
		if errors.Is(err, dispatcher.ErrClosed) {
			return err
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("queueing %T: %w", payload, ErrTimeout)
		}
		time.Sleep(time.Millisecond)
	}
}
