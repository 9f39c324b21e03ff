// Package convert provides functions to convert between GORM models and core models
package convert

import (
	"encoding/json"

	"github.com/skyhil/hilbridge/internal/geo"
	"github.com/skyhil/hilbridge/internal/model"
	"github.com/skyhil/hilbridge/pkg/core"
	"gorm.io/datatypes"
)

func vector(v core.Vector3) model.Vector3 {
	return model.Vector3{X: v.X, Y: v.Y, Z: v.Z}
}

func coreVector(v model.Vector3) core.Vector3 {
	return core.Vector3{X: v.X, Y: v.Y, Z: v.Z}
}

// controlsToJSON converts a control vector to datatypes.JSON for DB storage.
func controlsToJSON(controls []float64) datatypes.JSON {
	if len(controls) == 0 {
		return datatypes.JSON("[]")
	}
	data, _ := json.Marshal(controls)
	return datatypes.JSON(data)
}

// CoreToRun converts a core.Session to a GORM model.Run.
// A zero EndTime stays NULL.
func CoreToRun(s core.Session) model.Run {
	r := model.Run{
		VehicleName:   s.VehicleName,
		Link:          s.Link,
		Mode:          s.Mode,
		StartTime:     s.StartTime,
		Version:       s.Version,
		Home:          geo.PointFromGeo(s.Home),
		HomeLatitude:  s.Home.Latitude,
		HomeLongitude: s.Home.Longitude,
	}
	r.ID = s.ID
	if !s.EndTime.IsZero() {
		end := s.EndTime
		r.EndTime = &end
	}
	return r
}

// RunToCore converts a GORM model.Run back to a core.Session.
func RunToCore(r model.Run) core.Session {
	s := core.Session{
		ID:          r.ID,
		VehicleName: r.VehicleName,
		Link:        r.Link,
		Mode:        r.Mode,
		StartTime:   r.StartTime,
		Version:     r.Version,
		Home:        core.GeoPoint{Latitude: r.HomeLatitude, Longitude: r.HomeLongitude},
	}
	if c, ok := r.Home.Coordinates(); ok {
		s.Home.Altitude = c.Z
	}
	if r.EndTime != nil {
		s.EndTime = *r.EndTime
	}
	return s
}

// CoreToSensorSample converts a core.SensorSample to a GORM model.SensorSample.
func CoreToSensorSample(s core.SensorSample) model.SensorSample {
	return model.SensorSample{
		Time:             s.Time,
		Acceleration:     vector(s.Acceleration),
		AngularVelocity:  vector(s.AngularVelocity),
		MagneticField:    vector(s.MagneticField),
		AbsPressure:      s.AbsPressure,
		PressureAltitude: s.PressureAltitude,
	}
}

// SensorSampleToCore converts a GORM model.SensorSample back to core.
func SensorSampleToCore(m model.SensorSample) core.SensorSample {
	return core.SensorSample{
		Time:             m.Time,
		Acceleration:     coreVector(m.Acceleration),
		AngularVelocity:  coreVector(m.AngularVelocity),
		MagneticField:    coreVector(m.MagneticField),
		AbsPressure:      m.AbsPressure,
		PressureAltitude: m.PressureAltitude,
	}
}

// CoreToGpsSample converts a core.GpsSample to a GORM model.GpsSample.
// The position is stored both projected and as plain degrees.
func CoreToGpsSample(s core.GpsSample) model.GpsSample {
	f := s.Fix
	return model.GpsSample{
		Time:       s.Time,
		Location:   geo.PointFromGeo(f.Position),
		Latitude:   f.Position.Latitude,
		Longitude:  f.Position.Longitude,
		Velocity:   vector(f.Velocity),
		VelocityXY: f.VelocityXY,
		Cog:        f.Cog,
		Eph:        f.Eph,
		Epv:        f.Epv,
		FixType:    uint8(f.FixType),
		Satellites: uint16(f.SatellitesVisible),
	}
}

// GpsSampleToCore converts a GORM model.GpsSample back to core.
func GpsSampleToCore(m model.GpsSample) core.GpsSample {
	pos := core.GeoPoint{Latitude: m.Latitude, Longitude: m.Longitude}
	if c, ok := m.Location.Coordinates(); ok {
		pos.Altitude = c.Z
	}
	return core.GpsSample{
		Time: m.Time,
		Fix: core.GpsFix{
			Position:          pos,
			Velocity:          coreVector(m.Velocity),
			VelocityXY:        m.VelocityXY,
			Cog:               m.Cog,
			Eph:               m.Eph,
			Epv:               m.Epv,
			FixType:           core.FixType(m.FixType),
			SatellitesVisible: uint(m.Satellites),
		},
	}
}

// CoreToActuatorSample converts a core.ActuatorSample to a GORM model.ActuatorSample.
func CoreToActuatorSample(s core.ActuatorSample) model.ActuatorSample {
	return model.ActuatorSample{
		Time:     s.Time,
		Controls: controlsToJSON(s.Controls),
	}
}

// ActuatorSampleToCore converts a GORM model.ActuatorSample back to core.
func ActuatorSampleToCore(m model.ActuatorSample) (core.ActuatorSample, error) {
	var controls []float64
	if len(m.Controls) > 0 {
		if err := json.Unmarshal(m.Controls, &controls); err != nil {
			return core.ActuatorSample{}, err
		}
	}
	return core.ActuatorSample{Time: m.Time, Controls: controls}, nil
}

// CoreToCollisionEvent converts a core.CollisionEvent to a GORM model.CollisionEvent.
func CoreToCollisionEvent(e core.CollisionEvent) model.CollisionEvent {
	return model.CollisionEvent{
		Time:   e.Time,
		Normal: vector(e.Normal),
	}
}

// CoreToStatusEvent converts a core.StatusEvent to a GORM model.StatusEvent.
// Messages longer than the column are truncated.
func CoreToStatusEvent(e core.StatusEvent) model.StatusEvent {
	msg := e.Message
	if len(msg) > 2000 {
		msg = msg[:2000]
	}
	return model.StatusEvent{
		Time:     e.Time,
		Kind:     e.Kind,
		Endpoint: e.Endpoint,
		Message:  msg,
	}
}
