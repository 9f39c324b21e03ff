package translate

import (
	"time"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/skyhil/hilbridge/pkg/core"
)

// CollisionName is the DEBUG_VECT name used for collision events.
const CollisionName = "collision"

const standardGravity = 9.80665

// MocapPose builds ATT_POS_MOCAP from a local NED pose.
func MocapPose(t time.Time, pose core.Pose) (*common.MessageAttPosMocap, error) {
	q := pose.Orientation
	if !pose.Position.IsFinite() || !finite(q.W, q.X, q.Y, q.Z) {
		return nil, translationErr("mocap pose contains non-finite values")
	}
	q = q.Normalized()
	return &common.MessageAttPosMocap{
		TimeUsec: usec(t),
		Q:        [4]float32{float32(q.W), float32(q.X), float32(q.Y), float32(q.Z)},
		X:        float32(pose.Position.X),
		Y:        float32(pose.Position.Y),
		Z:        float32(pose.Position.Z),
	}, nil
}

// PoseFromMocap decodes ATT_POS_MOCAP into a pose and its timestamp.
func PoseFromMocap(m *common.MessageAttPosMocap) (core.Pose, time.Time, error) {
	pose := core.Pose{
		Position: core.Vector3{X: float64(m.X), Y: float64(m.Y), Z: float64(m.Z)},
		Orientation: core.Quaternion{
			W: float64(m.Q[0]),
			X: float64(m.Q[1]),
			Y: float64(m.Q[2]),
			Z: float64(m.Q[3]),
		},
	}
	q := pose.Orientation
	if !pose.Position.IsFinite() || !finite(q.W, q.X, q.Y, q.Z) {
		return core.Pose{}, time.Time{}, translationErr("ATT_POS_MOCAP contains non-finite values")
	}
	pose.Orientation = q.Normalized()
	return pose, fromUsec(m.TimeUsec), nil
}

// Collision builds the DEBUG_VECT carrying a contact normal.
func Collision(t time.Time, normal core.Vector3) (*common.MessageDebugVect, error) {
	if !normal.IsFinite() {
		return nil, translationErr("collision normal contains non-finite values")
	}
	return &common.MessageDebugVect{
		Name:     CollisionName,
		TimeUsec: usec(t),
		X:        float32(normal.X),
		Y:        float32(normal.Y),
		Z:        float32(normal.Z),
	}, nil
}

// ExternalStateFromHIL decodes HIL_STATE_QUATERNION from an external simulator.
func ExternalStateFromHIL(m *common.MessageHilStateQuaternion) core.ExternalState {
	q := m.AttitudeQuaternion
	return core.ExternalState{
		Time: fromUsec(m.TimeUsec),
		Orientation: core.Quaternion{
			W: float64(q[0]),
			X: float64(q[1]),
			Y: float64(q[2]),
			Z: float64(q[3]),
		}.Normalized(),
		AngularVelocity: core.Vector3{X: float64(m.Rollspeed), Y: float64(m.Pitchspeed), Z: float64(m.Yawspeed)},
		Position: core.GeoPoint{
			Latitude:  float64(m.Lat) / 1e7,
			Longitude: float64(m.Lon) / 1e7,
			Altitude:  float64(m.Alt) / 1000,
		},
		Velocity: core.Vector3{X: float64(m.Vx) / 100, Y: float64(m.Vy) / 100, Z: float64(m.Vz) / 100},
		Acceleration: core.Vector3{
			X: float64(m.Xacc) * standardGravity / 1000,
			Y: float64(m.Yacc) * standardGravity / 1000,
			Z: float64(m.Zacc) * standardGravity / 1000,
		},
	}
}
