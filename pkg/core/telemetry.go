// pkg/core/telemetry.go
package core

import "time"

// SensorSample is one HIL_SENSOR payload as sent to the autopilot.
type SensorSample struct {
	Time             time.Time `json:"time"`
	Acceleration     Vector3   `json:"acceleration"`
	AngularVelocity  Vector3   `json:"angularVelocity"`
	MagneticField    Vector3   `json:"magneticField"`
	AbsPressure      float64   `json:"absPressure"`
	PressureAltitude float64   `json:"pressureAltitude"`
}

// GpsSample is one HIL_GPS payload as sent to the autopilot.
type GpsSample struct {
	Time time.Time `json:"time"`
	Fix  GpsFix    `json:"fix"`
}

// ActuatorSample is a rotor control vector accepted from the autopilot.
type ActuatorSample struct {
	Time     time.Time `json:"time"`
	Controls []float64 `json:"controls"`
}

// CollisionEvent is a contact reported by the physics host.
type CollisionEvent struct {
	Time   time.Time `json:"time"`
	Normal Vector3   `json:"normal"`
}

// StatusEvent mirrors a diagnostic message for recording.
type StatusEvent struct {
	Time     time.Time `json:"time"`
	Kind     string    `json:"kind"`
	Endpoint string    `json:"endpoint"`
	Message  string    `json:"message"`
}
