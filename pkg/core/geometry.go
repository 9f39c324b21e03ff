// pkg/core/geometry.go
package core

import "math"

// Vector3 is a right-handed NED vector in SI units unless noted otherwise.
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Norm returns the Euclidean length of v.
func (v Vector3) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// IsFinite reports whether every component is neither NaN nor infinite.
func (v Vector3) IsFinite() bool {
	return isFinite(v.X) && isFinite(v.Y) && isFinite(v.Z)
}

// Quaternion is a Hamilton quaternion, W first.
type Quaternion struct {
	W float64 `json:"w"`
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// IdentityQuaternion is the zero rotation.
var IdentityQuaternion = Quaternion{W: 1}

// Normalized returns q scaled to unit length. A zero quaternion maps to identity.
func (q Quaternion) Normalized() Quaternion {
	n := math.Sqrt(q.W*q.W + q.X*q.X + q.Y*q.Y + q.Z*q.Z)
	if n == 0 || !isFinite(n) {
		return IdentityQuaternion
	}
	return Quaternion{W: q.W / n, X: q.X / n, Y: q.Y / n, Z: q.Z / n}
}

// GeoPoint is a WGS84 position. Altitude is meters above mean sea level.
type GeoPoint struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
	Altitude  float64 `json:"alt"`
}

// Pose is a position in the local NED frame plus orientation.
type Pose struct {
	Position    Vector3    `json:"position"`
	Orientation Quaternion `json:"orientation"`
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
