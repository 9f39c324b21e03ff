package controller

import (
	"github.com/skyhil/hilbridge/internal/session"
	"github.com/skyhil/hilbridge/internal/video"
)

// EndpointStats is the link view of one endpoint.
type EndpointStats struct {
	Name   string
	State  session.State
	Counts session.Stats
}

// Stats is a point-in-time snapshot for monitoring.
type Stats struct {
	Mode          Mode
	LinkAlive     bool
	Rotors        []float64
	StatusPending int
	StatusDropped uint64
	Video         video.Stats
	Endpoints     []EndpointStats
}

// Stats returns the current counters of every endpoint.
func (c *Controller) Stats() Stats {
	st := Stats{
		Mode:          c.Mode(),
		LinkAlive:     c.LinkAlive(),
		Rotors:        c.RotorControls(),
		StatusPending: c.reporter.Len(),
		StatusDropped: c.reporter.Dropped(),
		Video:         c.streamer.Stats(),
	}
	st.Endpoints = append(st.Endpoints, EndpointStats{
		Name:   session.AutopilotName,
		State:  c.autopilot.State(),
		Counts: c.autopilot.Stats(),
	})
	for _, s := range c.auxSessions() {
		st.Endpoints = append(st.Endpoints, EndpointStats{Name: s.Name(), State: s.State(), Counts: s.Stats()})
	}
	return st
}
