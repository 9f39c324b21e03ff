package translate

import (
	"math"
	"time"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/skyhil/hilbridge/pkg/core"
)

// sensorFieldsUpdated marks acc, gyro, mag, abs pressure, diff pressure,
// pressure altitude and temperature (bits 0..12) as fresh.
const sensorFieldsUpdated = 0x1FFF

// Unknown values for HIL_GPS fields.
const (
	unknownU16 = math.MaxUint16
)

// HILSensor builds HIL_SENSOR. Units: accel m/s², gyro rad/s, mag gauss,
// absPressure hPa (millibar), pressureAlt meters.
func HILSensor(t time.Time, accel, gyro, mag core.Vector3, absPressure, pressureAlt float64) (*common.MessageHilSensor, error) {
	if !accel.IsFinite() || !gyro.IsFinite() || !mag.IsFinite() || !finite(absPressure, pressureAlt) {
		return nil, translationErr("sensor sample contains non-finite values")
	}
	return &common.MessageHilSensor{
		TimeUsec:      usec(t),
		Xacc:          float32(accel.X),
		Yacc:          float32(accel.Y),
		Zacc:          float32(accel.Z),
		Xgyro:         float32(gyro.X),
		Ygyro:         float32(gyro.Y),
		Zgyro:         float32(gyro.Z),
		Xmag:          float32(mag.X),
		Ymag:          float32(mag.Y),
		Zmag:          float32(mag.Z),
		AbsPressure:   float32(absPressure),
		PressureAlt:   float32(pressureAlt),
		FieldsUpdated: sensorFieldsUpdated,
	}, nil
}

// SensorFromVehicle samples the vehicle into a core.SensorSample.
func SensorFromVehicle(t time.Time, v core.VehicleState) core.SensorSample {
	baro := v.Barometer()
	return core.SensorSample{
		Time:             t,
		Acceleration:     v.Acceleration(),
		AngularVelocity:  v.AngularVelocity(),
		MagneticField:    v.MagneticField(),
		AbsPressure:      baro.Pressure,
		PressureAltitude: baro.Altitude,
	}
}

// HILSensorSample is HILSensor for a recorded sample.
func HILSensorSample(s core.SensorSample) (*common.MessageHilSensor, error) {
	return HILSensor(s.Time, s.Acceleration, s.AngularVelocity, s.MagneticField, s.AbsPressure, s.PressureAltitude)
}

// ValidateFix rejects GPS fixtures the autopilot would treat as contradictory:
//   - fix type above RTK fixed
//   - no fix (0, 1) with sub-meter eph or epv
//   - 2D fix with fewer than 3 satellites, 3D or better with fewer than 4
//   - non-finite position, velocity or error estimates
func ValidateFix(fix core.GpsFix) error {
	if fix.FixType > core.FixRTKFixed {
		return translationErr("unsupported gps fix type %d", fix.FixType)
	}
	p := fix.Position
	if !finite(p.Latitude, p.Longitude, p.Altitude, fix.VelocityXY, fix.Cog, fix.Eph, fix.Epv) || !fix.Velocity.IsFinite() {
		return translationErr("gps fix contains non-finite values")
	}
	if fix.Eph < 0 || fix.Epv < 0 {
		return translationErr("negative gps error estimate eph=%g epv=%g", fix.Eph, fix.Epv)
	}
	switch {
	case fix.FixType <= core.FixNoFix:
		if fix.Eph < 1 || fix.Epv < 1 {
			return translationErr("%s carries sub-meter error estimate eph=%g epv=%g", fix.FixType, fix.Eph, fix.Epv)
		}
	case fix.FixType == core.Fix2D:
		if fix.SatellitesVisible < 3 {
			return translationErr("2d fix with %d satellites", fix.SatellitesVisible)
		}
	default:
		if fix.SatellitesVisible < 4 {
			return translationErr("%s fix with %d satellites", fix.FixType, fix.SatellitesVisible)
		}
	}
	if p.Latitude < -90 || p.Latitude > 90 || p.Longitude < -180 || p.Longitude > 180 {
		return translationErr("gps position out of range lat=%g lon=%g", p.Latitude, p.Longitude)
	}
	return nil
}

// HILGps builds HIL_GPS after ValidateFix. Units on the wire: lat/lon degE7,
// alt mm, eph/epv cm, vel and vn/ve/vd cm/s, cog cdeg in [0, 36000).
func HILGps(t time.Time, fix core.GpsFix) (*common.MessageHilGps, error) {
	if err := ValidateFix(fix); err != nil {
		return nil, err
	}
	cog := math.Mod(fix.Cog, 360)
	if cog < 0 {
		cog += 360
	}
	cdeg := uint16(clampInt(cog*100, 0, 35999))

	return &common.MessageHilGps{
		TimeUsec:          usec(t),
		FixType:           uint8(fix.FixType),
		Lat:               int32(clampInt(fix.Position.Latitude*1e7, math.MinInt32, math.MaxInt32)),
		Lon:               int32(clampInt(fix.Position.Longitude*1e7, math.MinInt32, math.MaxInt32)),
		Alt:               int32(clampInt(fix.Position.Altitude*1000, math.MinInt32, math.MaxInt32)),
		Eph:               uint16(clampInt(fix.Eph*100, 0, unknownU16)),
		Epv:               uint16(clampInt(fix.Epv*100, 0, unknownU16)),
		Vel:               uint16(clampInt(math.Abs(fix.VelocityXY)*100, 0, unknownU16-1)),
		Vn:                int16(clampInt(fix.Velocity.X*100, math.MinInt16, math.MaxInt16)),
		Ve:                int16(clampInt(fix.Velocity.Y*100, math.MinInt16, math.MaxInt16)),
		Vd:                int16(clampInt(fix.Velocity.Z*100, math.MinInt16, math.MaxInt16)),
		Cog:               cdeg,
		SatellitesVisible: uint8(min(fix.SatellitesVisible, math.MaxUint8-1)),
	}, nil
}

// FixFromHILGps decodes HIL_GPS back into a fix, used for recorded replays.
func FixFromHILGps(m *common.MessageHilGps) core.GpsFix {
	return core.GpsFix{
		Position: core.GeoPoint{
			Latitude:  float64(m.Lat) / 1e7,
			Longitude: float64(m.Lon) / 1e7,
			Altitude:  float64(m.Alt) / 1000,
		},
		Velocity:          core.Vector3{X: float64(m.Vn) / 100, Y: float64(m.Ve) / 100, Z: float64(m.Vd) / 100},
		VelocityXY:        float64(m.Vel) / 100,
		Cog:               float64(m.Cog) / 100,
		Eph:               float64(m.Eph) / 100,
		Epv:               float64(m.Epv) / 100,
		FixType:           core.FixType(m.FixType),
		SatellitesVisible: uint(m.SatellitesVisible),
	}
}
