// internal/storage/memory/export.go
package memory

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/skyhil/hilbridge/pkg/core"
)

// FlightLog is the root JSON structure of an exported run.
// Samples are compact arrays; time is seconds since the run started.
type FlightLog struct {
	Version     string    `json:"version"`
	RunID       uint      `json:"runId"`
	VehicleName string    `json:"vehicleName"`
	Link        string    `json:"link"`
	Mode        string    `json:"mode"`
	StartTime   string    `json:"startTime"`
	EndTime     string    `json:"endTime"`
	Duration    float64   `json:"duration"`
	Home        []float64 `json:"home"`

	// [t, [ax, ay, az], [gx, gy, gz], [mx, my, mz], absPressure, pressureAlt]
	Sensors [][]any `json:"sensors"`
	// [t, [lat, lon, alt], [vn, ve, vd], eph, epv, fixType, satellites]
	Gps [][]any `json:"gps"`
	// [t, [c0, c1, ...]]
	Actuators [][]any `json:"actuators"`
	// [t, [nx, ny, nz]]
	Collisions [][]any `json:"collisions"`
	// [t, kind, endpoint, message]
	Status [][]any `json:"status"`
}

// exportJSON writes the run to a (optionally gzipped) JSON file.
func (b *Backend) exportJSON() error {
	export := b.buildExport()

	name := strings.ReplaceAll(b.run.VehicleName, " ", "_")
	name = strings.ReplaceAll(name, ":", "_")
	if name == "" {
		name = "run"
	}
	timestamp := b.run.StartTime.Format("20060102_150405")

	filename := fmt.Sprintf("%s_%s_%d.json", name, timestamp, b.run.ID)
	if b.cfg.CompressOutput {
		filename += ".gz"
	}

	outputPath := filepath.Join(b.cfg.OutputDir, filename)

	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	var err error
	if b.cfg.CompressOutput {
		err = writeGzipJSON(outputPath, export)
	} else {
		err = writeJSON(outputPath, export)
	}
	if err != nil {
		return err
	}

	b.lastExportPath = outputPath
	return nil
}

func (b *Backend) buildExport() FlightLog {
	start := b.run.StartTime
	since := func(t time.Time) float64 {
		return round3(t.Sub(start).Seconds())
	}

	export := FlightLog{
		Version:     b.run.Version,
		RunID:       b.run.ID,
		VehicleName: b.run.VehicleName,
		Link:        b.run.Link,
		Mode:        b.run.Mode,
		StartTime:   start.UTC().Format(time.RFC3339Nano),
		EndTime:     b.run.EndTime.UTC().Format(time.RFC3339Nano),
		Duration:    round3(b.run.EndTime.Sub(start).Seconds()),
		Home:        geo(b.run.Home),
		Sensors:     make([][]any, 0, len(b.sensors)),
		Gps:         make([][]any, 0, len(b.gps)),
		Actuators:   make([][]any, 0, len(b.actuators)),
		Collisions:  make([][]any, 0, len(b.collisions)),
		Status:      make([][]any, 0, len(b.status)),
	}

	for _, s := range b.sensors {
		export.Sensors = append(export.Sensors, []any{
			since(s.Time),
			vec(s.Acceleration),
			vec(s.AngularVelocity),
			vec(s.MagneticField),
			s.AbsPressure,
			s.PressureAltitude,
		})
	}

	for _, s := range b.gps {
		export.Gps = append(export.Gps, []any{
			since(s.Time),
			geo(s.Fix.Position),
			vec(s.Fix.Velocity),
			s.Fix.Eph,
			s.Fix.Epv,
			uint8(s.Fix.FixType),
			s.Fix.SatellitesVisible,
		})
	}

	for _, s := range b.actuators {
		export.Actuators = append(export.Actuators, []any{since(s.Time), s.Controls})
	}

	for _, e := range b.collisions {
		export.Collisions = append(export.Collisions, []any{since(e.Time), vec(e.Normal)})
	}

	for _, e := range b.status {
		export.Status = append(export.Status, []any{since(e.Time), e.Kind, e.Endpoint, e.Message})
	}

	return export
}

func vec(v core.Vector3) []float64 {
	return []float64{v.X, v.Y, v.Z}
}

func geo(p core.GeoPoint) []float64 {
	return []float64{p.Latitude, p.Longitude, p.Altitude}
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}

func writeJSON(path string, data FlightLog) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	return encoder.Encode(data)
}

func writeGzipJSON(path string, data FlightLog) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	gzWriter := gzip.NewWriter(f)
	if err := json.NewEncoder(gzWriter).Encode(data); err != nil {
		_ = gzWriter.Close()
		return fmt.Errorf("failed to encode flight log: %w", err)
	}
	return gzWriter.Close()
}
