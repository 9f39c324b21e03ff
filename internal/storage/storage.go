// internal/storage/storage.go
package storage

import (
	"time"

	"github.com/skyhil/hilbridge/pkg/core"
)

// Backend is the interface all flight recorder storage implementations must satisfy.
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Run management. StartRun assigns run.ID when the backend owns IDs.
	StartRun(run *core.Session) error
	EndRun(end time.Time) error

	// Samples exchanged with the autopilot
	RecordSensor(s *core.SensorSample) error
	RecordGps(s *core.GpsSample) error
	RecordActuators(s *core.ActuatorSample) error

	// Events
	RecordCollision(e *core.CollisionEvent) error
	RecordStatus(e *core.StatusEvent) error
}

// Exportable is an optional interface for backends that write a flight log
// file when a run ends.
type Exportable interface {
	GetExportedFilePath() string
}
