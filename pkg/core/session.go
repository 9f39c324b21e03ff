// pkg/core/session.go
package core

import "time"

// Session is one recorded bridge run.
type Session struct {
	ID          uint      `json:"id"`
	VehicleName string    `json:"vehicleName"`
	Link        string    `json:"link"`
	Mode        string    `json:"mode"`
	StartTime   time.Time `json:"startTime"`
	EndTime     time.Time `json:"endTime"`
	Version     string    `json:"version"`
	Home        GeoPoint  `json:"home"`
}

// UploadMetadata describes a flight log sent to the log server.
type UploadMetadata struct {
	VehicleName string
	Mode        string
	Duration    float64
	Tag         string
}
