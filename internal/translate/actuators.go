package translate

import (
	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
)

// MaxActuatorControls is the width of HIL_ACTUATOR_CONTROLS.controls.
const MaxActuatorControls = 16

// RotorControls extracts the first rotorCount actuator outputs. Every value
// must be finite and within [-1, 1]; a violation rejects the whole message
// so the caller keeps its previous vector.
func RotorControls(m *common.MessageHilActuatorControls, rotorCount int) ([]float64, error) {
	if m == nil {
		return nil, translationErr("nil actuator message")
	}
	if rotorCount < 0 || rotorCount > MaxActuatorControls {
		return nil, translationErr("rotor count %d outside actuator range [0, %d]", rotorCount, MaxActuatorControls)
	}
	out := make([]float64, rotorCount)
	for i := range rotorCount {
		v := float64(m.Controls[i])
		if !finite(v) {
			return nil, translationErr("actuator %d is not finite", i)
		}
		if v < -1 || v > 1 {
			return nil, translationErr("actuator %d value %g outside [-1, 1]", i, v)
		}
		out[i] = v
	}
	return out, nil
}
