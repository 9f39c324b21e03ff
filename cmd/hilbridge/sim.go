package main

import (
	"math"
	"sync"
	"time"

	"github.com/skyhil/hilbridge/pkg/core"
)

const (
	gravity     = 9.80665
	frameWidth  = 64
	frameHeight = 48
)

// earth field near the default home, gauss
var magField = core.Vector3{X: 0.21, Y: 0.02, Z: 0.42}

// hoverVehicle is a vehicle holding position over home. It keeps the
// autopilot fed with plausible sensor data so the link can be exercised
// without a physics engine.
type hoverVehicle struct {
	home   core.GeoPoint
	rotors int

	mu       sync.Mutex
	elapsed  time.Duration
	throttle float64
	frame    []byte
}

func newHoverVehicle(home core.GeoPoint, rotors int) *hoverVehicle {
	if rotors <= 0 {
		rotors = 4
	}
	return &hoverVehicle{
		home:   home,
		rotors: rotors,
		frame:  make([]byte, frameWidth*frameHeight),
	}
}

// Step advances the clock and keeps the last rotor throttle for the frame.
func (v *hoverVehicle) Step(dt time.Duration, rotors []float64) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.elapsed += dt
	var sum float64
	for _, r := range rotors {
		sum += r
	}
	if len(rotors) > 0 {
		v.throttle = sum / float64(len(rotors))
	}
}

// Frame returns a grey 8-bit image whose brightness follows the throttle.
func (v *hoverVehicle) Frame() ([]byte, int, int) {
	v.mu.Lock()
	defer v.mu.Unlock()

	shade := byte(math.Round(math.Max(0, math.Min(1, v.throttle)) * 255))
	for i := range v.frame {
		v.frame[i] = shade
	}
	out := make([]byte, len(v.frame))
	copy(out, v.frame)
	return out, frameWidth, frameHeight
}

func (v *hoverVehicle) Acceleration() core.Vector3 {
	return core.Vector3{Z: -gravity}
}

func (v *hoverVehicle) AngularVelocity() core.Vector3 {
	return core.Vector3{}
}

func (v *hoverVehicle) MagneticField() core.Vector3 {
	return magField
}

func (v *hoverVehicle) Barometer() core.Barometer {
	return core.Barometer{
		Pressure: pressureAt(v.home.Altitude),
		Altitude: v.home.Altitude,
	}
}

func (v *hoverVehicle) GPS() core.GpsFix {
	return core.GpsFix{
		Position:          v.home,
		Eph:               0.3,
		Epv:               0.4,
		FixType:           core.Fix3D,
		SatellitesVisible: 10,
	}
}

func (v *hoverVehicle) Pose() core.Pose {
	return core.Pose{Orientation: core.IdentityQuaternion}
}

func (v *hoverVehicle) RotorCount() int {
	return v.rotors
}

// pressureAt is the ISA pressure in millibar at altitude h meters.
func pressureAt(h float64) float64 {
	return 1013.25 * math.Pow(1-2.25577e-5*h, 5.25588)
}
