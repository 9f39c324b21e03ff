package influx

import (
	"time"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/skyhil/hilbridge/internal/controller"
	"github.com/skyhil/hilbridge/internal/session"
	"github.com/skyhil/hilbridge/internal/worker"
)

// Measurement names.
const (
	MeasurementEndpoint = "hil_endpoint"
	MeasurementBridge   = "hil_bridge"
	MeasurementRecorder = "hil_recorder"
)

// LinkPoints turns one controller snapshot into a point per endpoint plus
// one bridge-wide point.
func LinkPoints(vehicle string, st controller.Stats, at time.Time) []*influxdb2_write.Point {
	points := make([]*influxdb2_write.Point, 0, len(st.Endpoints)+1)

	for _, ep := range st.Endpoints {
		points = append(points, influxdb2_write.NewPoint(
			MeasurementEndpoint,
			map[string]string{
				"vehicle":  vehicle,
				"endpoint": ep.Name,
			},
			map[string]any{
				"connected":    ep.State.Status == session.StatusConnected,
				"status":       ep.State.Status.String(),
				"received":     int64(ep.Counts.Received),
				"sent":         int64(ep.Counts.Sent),
				"send_errors":  int64(ep.Counts.SendErrors),
				"dropped":      int64(ep.Counts.Dropped),
				"parse_errors": int64(ep.Counts.ParseErrors),
			},
			at,
		))
	}

	fields := map[string]any{
		"link_alive":     st.LinkAlive,
		"status_pending": int64(st.StatusPending),
		"status_dropped": int64(st.StatusDropped),
		"video_requests": int64(st.Video.Requests),
		"video_sent":     int64(st.Video.Sent),
		"video_dropped":  int64(st.Video.Dropped),
		"rotor_count":    int64(len(st.Rotors)),
		"rotor_throttle": meanOf(st.Rotors),
	}
	points = append(points, influxdb2_write.NewPoint(
		MeasurementBridge,
		map[string]string{"vehicle": vehicle, "mode": st.Mode.String()},
		fields,
		at,
	))
	return points
}

// RecorderPoint reports the flight recorder counters.
func RecorderPoint(vehicle string, st worker.Stats, at time.Time) *influxdb2_write.Point {
	return influxdb2_write.NewPoint(
		MeasurementRecorder,
		map[string]string{"vehicle": vehicle},
		map[string]any{
			"recorded": int64(st.Recorded),
			"dropped":  int64(st.Dropped),
			"failed":   int64(st.Failed),
		},
		at,
	)
}

func meanOf(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	var sum float64
	for _, x := range v {
		sum += x
	}
	return sum / float64(len(v))
}
