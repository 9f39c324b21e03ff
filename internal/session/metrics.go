package session

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/skyhil/hilbridge/internal/session"

type instruments struct {
	received metric.Int64Counter
	sent     metric.Int64Counter
	failed   metric.Int64Counter
	dropped  metric.Int64Counter
	attrs    metric.MeasurementOption
}

// newInstruments never fails: a broken meter leaves no-op counters behind.
func newInstruments(endpoint string) *instruments {
	m := otel.Meter(instrumentationName)
	in := &instruments{attrs: metric.WithAttributes(attribute.String("endpoint", endpoint))}
	in.received, _ = m.Int64Counter("session.messages.received",
		metric.WithDescription("MAVLink messages received"))
	in.sent, _ = m.Int64Counter("session.messages.sent",
		metric.WithDescription("MAVLink messages written"))
	in.failed, _ = m.Int64Counter("session.messages.failed",
		metric.WithDescription("MAVLink writes that failed"))
	in.dropped, _ = m.Int64Counter("session.inbound.dropped",
		metric.WithDescription("Inbound messages evicted before being drained"))
	return in
}

func (in *instruments) add(c metric.Int64Counter, n int64) {
	if c == nil || n == 0 {
		return
	}
	c.Add(context.Background(), n, in.attrs)
}
