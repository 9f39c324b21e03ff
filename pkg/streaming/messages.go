package streaming

import (
	"encoding/json"

	"github.com/skyhil/hilbridge/pkg/core"
)

// Message type constants matching the streaming protocol.
const (
	TypeStartRun  = "start_run"
	TypeEndRun    = "end_run"
	TypeSensor    = "sensor"
	TypeGps       = "gps"
	TypeActuators = "actuators"
	TypeCollision = "collision"
	TypeStatus    = "status"
	TypeAck       = "ack"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the server's acknowledgement response.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`  // the message type being acknowledged
}

// StartRunPayload announces a run and the vehicle it flies.
type StartRunPayload struct {
	Run *core.Session `json:"run"`
}

// EndRunPayload closes the run opened by the last start_run.
type EndRunPayload struct {
	RunID   uint   `json:"runId"`
	EndTime string `json:"endTime"`
}
