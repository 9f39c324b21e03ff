package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/skyhil/hilbridge/pkg/core"
	"github.com/skyhil/hilbridge/pkg/streaming"
)

// Config holds WebSocket backend configuration.
type Config struct {
	URL    string
	Secret string
}

// Backend streams run telemetry over WebSocket to a flight review server.
// It implements storage.Backend but not storage.Exportable.
type Backend struct {
	conn  *connection
	cfg   Config
	runID uint
}

// New creates a new WebSocket storage backend.
func New(cfg Config, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		conn: newConnection(logger.With("storage", "websocket")),
		cfg:  cfg,
	}
}

// Init connects to the WebSocket server.
func (b *Backend) Init() error {
	if b.cfg.URL == "" {
		return fmt.Errorf("websocket URL not set")
	}
	return b.conn.dial(b.cfg.URL, b.cfg.Secret)
}

// Close disconnects from the WebSocket server.
func (b *Backend) Close() error {
	return b.conn.close()
}

// Dropped returns how many messages were discarded because the send
// channel was full.
func (b *Backend) Dropped() uint64 {
	return b.conn.dropped.Load()
}

// marshalEnvelope builds a JSON-encoded Envelope from a message type and payload.
func marshalEnvelope(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	env := streaming.Envelope{Type: msgType, Payload: raw}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}

// sendEnvelope marshals the payload into an Envelope and pushes it
// to the write loop (fire-and-forget).
func (b *Backend) sendEnvelope(msgType string, payload any) error {
	data, err := marshalEnvelope(msgType, payload)
	if err != nil {
		return err
	}
	b.conn.send(data)
	return nil
}

// StartRun sends the run header and waits for the server ack. The run ID
// is kept as assigned by the caller.
func (b *Backend) StartRun(run *core.Session) error {
	data, err := marshalEnvelope(streaming.TypeStartRun, streaming.StartRunPayload{Run: run})
	if err != nil {
		return err
	}

	b.conn.setStartRun(data)
	b.runID = run.ID

	return b.conn.sendAndWait(data, streaming.TypeStartRun, ackTimeout)
}

// EndRun sends end_run and waits for the server ack.
func (b *Backend) EndRun(end time.Time) error {
	data, err := marshalEnvelope(streaming.TypeEndRun, streaming.EndRunPayload{
		RunID:   b.runID,
		EndTime: end.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return err
	}
	err = b.conn.sendAndWait(data, streaming.TypeEndRun, ackTimeout)

	// Clear cached state regardless of error.
	b.conn.setStartRun(nil)
	b.runID = 0

	return err
}

func (b *Backend) RecordSensor(s *core.SensorSample) error {
	return b.sendEnvelope(streaming.TypeSensor, s)
}

func (b *Backend) RecordGps(s *core.GpsSample) error {
	return b.sendEnvelope(streaming.TypeGps, s)
}

func (b *Backend) RecordActuators(s *core.ActuatorSample) error {
	return b.sendEnvelope(streaming.TypeActuators, s)
}

func (b *Backend) RecordCollision(e *core.CollisionEvent) error {
	return b.sendEnvelope(streaming.TypeCollision, e)
}

func (b *Backend) RecordStatus(e *core.StatusEvent) error {
	return b.sendEnvelope(streaming.TypeStatus, e)
}
