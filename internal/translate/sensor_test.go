package translate

import (
	"math"
	"testing"
	"time"

	"github.com/skyhil/hilbridge/internal/diag"
	"github.com/skyhil/hilbridge/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var tick = time.Date(2026, 3, 1, 12, 0, 0, 500_000, time.UTC)

func TestHILSensor_FieldMapping(t *testing.T) {
	m, err := HILSensor(tick,
		core.Vector3{X: 0.1, Y: -0.2, Z: -9.81},
		core.Vector3{X: 0.01, Y: 0.02, Z: -0.03},
		core.Vector3{X: 0.21, Y: 0.01, Z: 0.42},
		1013.25, 122.5)
	require.NoError(t, err)

	assert.Equal(t, uint64(tick.UnixMicro()), m.TimeUsec)
	assert.InDelta(t, 0.1, m.Xacc, 1e-6)
	assert.InDelta(t, -0.2, m.Yacc, 1e-6)
	assert.InDelta(t, -9.81, m.Zacc, 1e-6)
	assert.InDelta(t, 0.01, m.Xgyro, 1e-6)
	assert.InDelta(t, -0.03, m.Zgyro, 1e-6)
	assert.InDelta(t, 0.21, m.Xmag, 1e-6)
	assert.InDelta(t, 0.42, m.Zmag, 1e-6)
	assert.InDelta(t, 1013.25, m.AbsPressure, 1e-3)
	assert.InDelta(t, 122.5, m.PressureAlt, 1e-3)
	assert.EqualValues(t, 0x1FFF, m.FieldsUpdated)
}

func TestHILSensor_RejectsNonFinite(t *testing.T) {
	_, err := HILSensor(tick, core.Vector3{X: math.NaN()}, core.Vector3{}, core.Vector3{}, 1013, 0)
	assert.ErrorIs(t, err, diag.ErrTranslation)

	_, err = HILSensor(tick, core.Vector3{}, core.Vector3{}, core.Vector3{}, math.Inf(1), 0)
	assert.ErrorIs(t, err, diag.ErrTranslation)
}

func TestHILSensorSample_ZeroTime(t *testing.T) {
	m, err := HILSensorSample(core.SensorSample{})
	require.NoError(t, err)
	assert.Zero(t, m.TimeUsec)
}

func goodFix() core.GpsFix {
	return core.GpsFix{
		Position:          core.GeoPoint{Latitude: 47.641468, Longitude: -122.140165, Altitude: 122.25},
		Velocity:          core.Vector3{X: 1.5, Y: -0.5, Z: 0.25},
		VelocityXY:        1.58,
		Cog:               341.5,
		Eph:               0.3,
		Epv:               0.4,
		FixType:           core.Fix3D,
		SatellitesVisible: 10,
	}
}

func TestHILGps_Units(t *testing.T) {
	m, err := HILGps(tick, goodFix())
	require.NoError(t, err)

	assert.Equal(t, uint8(3), m.FixType)
	assert.Equal(t, int32(476414680), m.Lat)
	assert.Equal(t, int32(-1221401650), m.Lon)
	assert.Equal(t, int32(122250), m.Alt)
	assert.Equal(t, uint16(30), m.Eph)
	assert.Equal(t, uint16(40), m.Epv)
	assert.Equal(t, uint16(158), m.Vel)
	assert.Equal(t, int16(150), m.Vn)
	assert.Equal(t, int16(-50), m.Ve)
	assert.Equal(t, int16(25), m.Vd)
	assert.Equal(t, uint16(34150), m.Cog)
	assert.Equal(t, uint8(10), m.SatellitesVisible)
}

func TestHILGps_CogNormalized(t *testing.T) {
	tests := []struct {
		cog  float64
		want uint16
	}{
		{0, 0},
		{360, 0},
		{-90, 27000},
		{725, 500},
		{359.999, 35999},
	}
	for _, tt := range tests {
		fix := goodFix()
		fix.Cog = tt.cog
		m, err := HILGps(tick, fix)
		require.NoError(t, err)
		assert.Equal(t, tt.want, m.Cog, "cog %g", tt.cog)
	}
}

func TestHILGps_SaturatesVelocity(t *testing.T) {
	fix := goodFix()
	fix.Velocity.X = 1000
	fix.VelocityXY = 1000
	fix.Eph = 1000

	m, err := HILGps(tick, fix)
	require.NoError(t, err)
	assert.Equal(t, int16(math.MaxInt16), m.Vn)
	assert.Equal(t, uint16(math.MaxUint16-1), m.Vel)
	assert.Equal(t, uint16(math.MaxUint16), m.Eph, "saturated eph reads as unknown")
}

func TestValidateFix(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*core.GpsFix)
		wantErr bool
	}{
		{"3d fix", func(*core.GpsFix) {}, false},
		{"no fix with sub-meter errors", func(f *core.GpsFix) { f.FixType, f.SatellitesVisible = core.FixNoFix, 0 }, true},
		{"none with sub-meter errors", func(f *core.GpsFix) { f.FixType = core.FixNone }, true},
		{"no fix with large errors", func(f *core.GpsFix) {
			f.FixType, f.SatellitesVisible, f.Eph, f.Epv = core.FixNoFix, 0, 99.99, 99.99
		}, false},
		{"2d with 3 satellites", func(f *core.GpsFix) { f.FixType, f.SatellitesVisible = core.Fix2D, 3 }, false},
		{"2d with 2 satellites", func(f *core.GpsFix) { f.FixType, f.SatellitesVisible = core.Fix2D, 2 }, true},
		{"3d with 3 satellites", func(f *core.GpsFix) { f.SatellitesVisible = 3 }, true},
		{"rtk with zero satellites", func(f *core.GpsFix) { f.FixType, f.SatellitesVisible = core.FixRTKFixed, 0 }, true},
		{"unknown fix type", func(f *core.GpsFix) { f.FixType = 7 }, true},
		{"nan latitude", func(f *core.GpsFix) { f.Position.Latitude = math.NaN() }, true},
		{"latitude out of range", func(f *core.GpsFix) { f.Position.Latitude = 91 }, true},
		{"negative eph", func(f *core.GpsFix) { f.Eph = -1 }, true},
		{"infinite velocity", func(f *core.GpsFix) { f.Velocity.Z = math.Inf(-1) }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fix := goodFix()
			tt.mutate(&fix)
			err := ValidateFix(fix)
			if tt.wantErr {
				assert.ErrorIs(t, err, diag.ErrTranslation)
				_, gpsErr := HILGps(tick, fix)
				assert.ErrorIs(t, gpsErr, diag.ErrTranslation)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFixFromHILGps(t *testing.T) {
	m, err := HILGps(tick, goodFix())
	require.NoError(t, err)

	back := FixFromHILGps(m)
	assert.InDelta(t, 47.641468, back.Position.Latitude, 1e-7)
	assert.InDelta(t, 122.25, back.Position.Altitude, 1e-3)
	assert.InDelta(t, 341.5, back.Cog, 1e-2)
	assert.Equal(t, core.Fix3D, back.FixType)
}

func TestSensorFromVehicle(t *testing.T) {
	v := &stubVehicle{
		accel: core.Vector3{Z: -9.8},
		baro:  core.Barometer{Pressure: 1000, Altitude: 110},
	}
	s := SensorFromVehicle(tick, v)
	assert.Equal(t, tick, s.Time)
	assert.Equal(t, -9.8, s.Acceleration.Z)
	assert.Equal(t, 1000.0, s.AbsPressure)
	assert.Equal(t, 110.0, s.PressureAltitude)
}

type stubVehicle struct {
	accel core.Vector3
	baro  core.Barometer
}

func (v *stubVehicle) Acceleration() core.Vector3    { return v.accel }
func (v *stubVehicle) AngularVelocity() core.Vector3 { return core.Vector3{} }
func (v *stubVehicle) MagneticField() core.Vector3   { return core.Vector3{} }
func (v *stubVehicle) Barometer() core.Barometer     { return v.baro }
func (v *stubVehicle) GPS() core.GpsFix              { return core.GpsFix{} }
func (v *stubVehicle) Pose() core.Pose               { return core.Pose{} }
func (v *stubVehicle) RotorCount() int               { return 4 }
