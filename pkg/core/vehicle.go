// pkg/core/vehicle.go
package core

import "time"

// FixType is the GPS quality classification carried in HIL_GPS.
type FixType uint8

const (
	FixNone     FixType = 0
	FixNoFix    FixType = 1
	Fix2D       FixType = 2
	Fix3D       FixType = 3
	FixDGPS     FixType = 4
	FixRTKFloat FixType = 5
	FixRTKFixed FixType = 6
)

func (f FixType) String() string {
	switch f {
	case FixNone:
		return "none"
	case FixNoFix:
		return "no-fix"
	case Fix2D:
		return "2d"
	case Fix3D:
		return "3d"
	case FixDGPS:
		return "dgps"
	case FixRTKFloat:
		return "rtk-float"
	case FixRTKFixed:
		return "rtk-fixed"
	default:
		return "unknown"
	}
}

// GpsFix is the simulated receiver output.
// Eph and Epv are 1-sigma errors in meters; Cog is degrees from north.
type GpsFix struct {
	Position          GeoPoint `json:"position"`
	Velocity          Vector3  `json:"velocity"`
	VelocityXY        float64  `json:"velocityXY"`
	Cog               float64  `json:"cog"`
	Eph               float64  `json:"eph"`
	Epv               float64  `json:"epv"`
	FixType           FixType  `json:"fixType"`
	SatellitesVisible uint     `json:"satellitesVisible"`
}

// Barometer is absolute pressure in millibar and the pressure altitude in meters.
type Barometer struct {
	Pressure float64
	Altitude float64
}

// VehicleState is the read-only view of the simulated vehicle that the bridge
// samples every tick. Implementations are owned by the physics host and must
// not be mutated through this interface.
type VehicleState interface {
	Acceleration() Vector3
	AngularVelocity() Vector3
	MagneticField() Vector3
	Barometer() Barometer
	GPS() GpsFix
	Pose() Pose
	RotorCount() int
}

// ExternalState is the ground truth reported by an external simulator
// through HIL_STATE_QUATERNION.
type ExternalState struct {
	Time            time.Time
	Orientation     Quaternion
	AngularVelocity Vector3
	Position        GeoPoint
	Velocity        Vector3
	Acceleration    Vector3
}
