package model

import (
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&Run{},
	&SensorSample{},
	&GpsSample{},
	&ActuatorSample{},
	&CollisionEvent{},
	&StatusEvent{},
}

// Vector3 is embedded with a column prefix wherever a model stores a vector.
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

////////////////////////
// RUNS
////////////////////////

// Run is one bridge session from Running to Stopped.
type Run struct {
	gorm.Model
	VehicleName   string     `json:"vehicleName" gorm:"size:64"`
	Link          string     `json:"link" gorm:"size:128"`
	Mode          string     `json:"mode" gorm:"size:16"`
	StartTime     time.Time  `json:"startTime" gorm:"type:timestamptz;index:idx_run_start_time"`
	EndTime       *time.Time `json:"endTime" gorm:"type:timestamptz"`
	Version       string     `json:"version" gorm:"size:32"`
	Home          geom.Point `json:"home"` // EPSG:3857, Z is altitude AMSL
	HomeLatitude  float64    `json:"homeLatitude"`
	HomeLongitude float64    `json:"homeLongitude"`
}

func (*Run) TableName() string {
	return "runs"
}

////////////////////////
// SAMPLES
////////////////////////

// SensorSample is one HIL_SENSOR message sent to the autopilot.
type SensorSample struct {
	ID    uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	Time  time.Time `json:"time" gorm:"type:timestamptz;index:idx_sensor_time"`
	RunID uint      `json:"runId" gorm:"index:idx_sensorsample_run_id"`
	Run   Run       `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:RunID;"`

	Acceleration     Vector3 `json:"acceleration" gorm:"embedded;embeddedPrefix:accel_"`   // m/s2, body frame
	AngularVelocity  Vector3 `json:"angularVelocity" gorm:"embedded;embeddedPrefix:gyro_"` // rad/s
	MagneticField    Vector3 `json:"magneticField" gorm:"embedded;embeddedPrefix:mag_"`    // gauss
	AbsPressure      float64 `json:"absPressure"`                                          // mbar
	PressureAltitude float64 `json:"pressureAltitude"`
}

func (*SensorSample) TableName() string {
	return "sensor_samples"
}

// GpsSample is one HIL_GPS message sent to the autopilot.
type GpsSample struct {
	ID    uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	Time  time.Time `json:"time" gorm:"type:timestamptz;index:idx_gps_time"`
	RunID uint      `json:"runId" gorm:"index:idx_gpssample_run_id"`
	Run   Run       `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:RunID;"`

	Location   geom.Point `json:"location"` // EPSG:3857, Z is altitude AMSL
	Latitude   float64    `json:"latitude"`
	Longitude  float64    `json:"longitude"`
	Velocity   Vector3    `json:"velocity" gorm:"embedded;embeddedPrefix:vel_"` // NED m/s
	VelocityXY float64    `json:"velocityXY"`
	Cog        float64    `json:"cog"`
	Eph        float64    `json:"eph"`
	Epv        float64    `json:"epv"`
	FixType    uint8      `json:"fixType" gorm:"default:0"`
	Satellites uint16     `json:"satellites" gorm:"default:0"`
}

func (*GpsSample) TableName() string {
	return "gps_samples"
}

// ActuatorSample is a rotor control vector accepted from HIL_ACTUATOR_CONTROLS.
type ActuatorSample struct {
	ID    uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	Time  time.Time `json:"time" gorm:"type:timestamptz;index:idx_actuator_time"`
	RunID uint      `json:"runId" gorm:"index:idx_actuatorsample_run_id"`
	Run   Run       `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:RunID;"`

	Controls datatypes.JSON `json:"controls"` // []float64 in [-1, 1]
}

func (*ActuatorSample) TableName() string {
	return "actuator_samples"
}

////////////////////////
// EVENTS
////////////////////////

// CollisionEvent is a contact reported by the physics host.
type CollisionEvent struct {
	ID    uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	Time  time.Time `json:"time" gorm:"type:timestamptz;"`
	RunID uint      `json:"runId" gorm:"index:idx_collisionevent_run_id"`
	Run   Run       `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:RunID;"`

	Normal Vector3 `json:"normal" gorm:"embedded;embeddedPrefix:normal_"`
}

func (*CollisionEvent) TableName() string {
	return "collision_events"
}

// StatusEvent is a diagnostic message raised during the run.
type StatusEvent struct {
	ID    uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	Time  time.Time `json:"time" gorm:"type:timestamptz;"`
	RunID uint      `json:"runId" gorm:"index:idx_statusevent_run_id"`
	Run   Run       `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:RunID;"`

	Kind     string `json:"kind" gorm:"size:32"`
	Endpoint string `json:"endpoint" gorm:"size:32"`
	Message  string `json:"message" gorm:"size:2000"`
}

func (*StatusEvent) TableName() string {
	return "status_events"
}
