package controller

import (
	"time"

	"github.com/skyhil/hilbridge/pkg/core"
)

// Tap receives a copy of everything the bridge exchanges with the
// autopilot. Implementations must not block the tick; the recording worker
// buffers and persists asynchronously.
type Tap interface {
	RecordSensor(core.SensorSample)
	RecordGps(core.GpsSample)
	RecordActuators(core.ActuatorSample)
	RecordCollision(core.CollisionEvent)
	RecordStatus(core.StatusEvent)
	RunStarted(core.Session)
	RunStopped(end time.Time) error
}

// NopTap discards everything.
type NopTap struct{}

func (NopTap) RecordSensor(core.SensorSample)      {}
func (NopTap) RecordGps(core.GpsSample)            {}
func (NopTap) RecordActuators(core.ActuatorSample) {}
func (NopTap) RecordCollision(core.CollisionEvent) {}
func (NopTap) RecordStatus(core.StatusEvent)       {}
func (NopTap) RunStarted(core.Session)             {}
func (NopTap) RunStopped(time.Time) error          { return nil }
