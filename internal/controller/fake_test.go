package controller

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bluenviron/gomavlib/v3"
	"github.com/bluenviron/gomavlib/v3/pkg/frame"
	"github.com/bluenviron/gomavlib/v3/pkg/message"
	"github.com/skyhil/hilbridge/internal/session"
	"github.com/skyhil/hilbridge/pkg/core"
	"github.com/stretchr/testify/require"
)

type fakeLink struct {
	events chan gomavlib.Event

	mu      sync.Mutex
	written []message.Message
	frames  []frame.Frame
	closed  bool
}

func newFakeLink() *fakeLink {
	return &fakeLink{events: make(chan gomavlib.Event, 256)}
}

func (l *fakeLink) Events() chan gomavlib.Event { return l.events }

func (l *fakeLink) WriteMessageAll(msg message.Message) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.written = append(l.written, msg)
	return nil
}

func (l *fakeLink) WriteFrameAll(fr frame.Frame) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.frames = append(l.frames, fr)
	return nil
}

func (l *fakeLink) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.closed {
		l.closed = true
		close(l.events)
	}
}

func (l *fakeLink) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

func (l *fakeLink) deliver(systemID byte, msg message.Message) {
	l.events <- &gomavlib.EventFrame{Frame: &frame.V2Frame{SystemID: systemID, ComponentID: 1, Message: msg}}
}

func (l *fakeLink) messages() []message.Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]message.Message(nil), l.written...)
}

func (l *fakeLink) forwarded() []frame.Frame {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]frame.Frame(nil), l.frames...)
}

// fakeNet hands out one fakeLink per endpoint name. A closed link is
// replaced on the next dial.
type fakeNet struct {
	mu    sync.Mutex
	links map[string]*fakeLink
	specs map[string]session.Spec
	gate  chan struct{}
	dials atomic.Int32
}

func newFakeNet() *fakeNet {
	return &fakeNet{links: map[string]*fakeLink{}, specs: map[string]session.Spec{}}
}

func (n *fakeNet) dial(ctx context.Context, spec session.Spec) (session.Link, error) {
	n.dials.Add(1)
	n.mu.Lock()
	gate := n.gate
	n.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	l := n.links[spec.Name]
	if l == nil || l.isClosed() {
		l = newFakeLink()
		n.links[spec.Name] = l
	}
	n.specs[spec.Name] = spec
	return l, nil
}

func (n *fakeNet) link(name string) *fakeLink {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.links[name]
}

func (n *fakeNet) spec(name string) session.Spec {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.specs[name]
}

type stubVehicle struct {
	rotors int
	gps    core.GpsFix
	pose   core.Pose
}

func (v *stubVehicle) Acceleration() core.Vector3    { return core.Vector3{Z: -9.81} }
func (v *stubVehicle) AngularVelocity() core.Vector3 { return core.Vector3{} }
func (v *stubVehicle) MagneticField() core.Vector3   { return core.Vector3{X: 0.21, Z: 0.43} }
func (v *stubVehicle) Barometer() core.Barometer {
	return core.Barometer{Pressure: 1013.25, Altitude: 122}
}
func (v *stubVehicle) GPS() core.GpsFix { return v.gps }
func (v *stubVehicle) Pose() core.Pose  { return v.pose }
func (v *stubVehicle) RotorCount() int  { return v.rotors }

func newStubVehicle() *stubVehicle {
	return &stubVehicle{
		rotors: 4,
		gps: core.GpsFix{
			Position:          core.GeoPoint{Latitude: 47.641468, Longitude: -122.140165, Altitude: 122},
			Eph:               0.3,
			Epv:               0.4,
			FixType:           core.Fix3D,
			SatellitesVisible: 10,
		},
		pose: core.Pose{Orientation: core.IdentityQuaternion},
	}
}

type recordingTap struct {
	mu         sync.Mutex
	sensors    []core.SensorSample
	gps        []core.GpsSample
	actuators  []core.ActuatorSample
	collisions []core.CollisionEvent
	status     []core.StatusEvent
	runs       []core.Session
	stops      int
	stopErr    error
}

func (r *recordingTap) RecordSensor(s core.SensorSample) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sensors = append(r.sensors, s)
}

func (r *recordingTap) RecordGps(s core.GpsSample) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gps = append(r.gps, s)
}

func (r *recordingTap) RecordActuators(s core.ActuatorSample) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actuators = append(r.actuators, s)
}

func (r *recordingTap) RecordCollision(e core.CollisionEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.collisions = append(r.collisions, e)
}

func (r *recordingTap) RecordStatus(e core.StatusEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = append(r.status, e)
}

func (r *recordingTap) RunStarted(s core.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, s)
}

func (r *recordingTap) RunStopped(time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stops++
	return r.stopErr
}

var udpInfo = core.ConnectionInfo{
	VehicleName: "Pixhawk",
	UseSerial:   false,
	IPAddress:   "127.0.0.1",
	IPPort:      14560,
}

type harness struct {
	c       *Controller
	net     *fakeNet
	tap     *recordingTap
	vehicle *stubVehicle
	finds   *atomic.Int32
}

func newHarness(t *testing.T, tweak func(*Options)) *harness {
	t.Helper()
	h := &harness{
		net:     newFakeNet(),
		tap:     &recordingTap{},
		vehicle: newStubVehicle(),
		finds:   &atomic.Int32{},
	}
	opts := Options{
		Dialer: h.net.dial,
		Tap:    h.tap,
		FindPort: func() string {
			h.finds.Add(1)
			return "/dev/ttyACM0"
		},
		Video:     AuxEndpoint{Address: "127.0.0.1:14580"},
		LogViewer: AuxEndpoint{Address: "127.0.0.1:14570"},
		QGC:       AuxEndpoint{Address: "127.0.0.1:14550"},
		Mocap:     AuxEndpoint{Address: "127.0.0.1:14590"},
	}
	if tweak != nil {
		tweak(&opts)
	}
	c, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	h.c = c
	return h
}

// runningHIL initializes over UDP and brings the autopilot up.
func (h *harness) runningHIL(t *testing.T) *fakeLink {
	t.Helper()
	require.NoError(t, h.c.Initialize(udpInfo, h.vehicle))
	h.c.Start()
	h.c.SetHILMode()
	waitState(t, h.c, session.AutopilotName, session.StatusConnected)
	return h.net.link(session.AutopilotName)
}

func waitState(t *testing.T, c *Controller, name string, want session.Status) {
	t.Helper()
	require.Eventually(t, func() bool {
		st, ok := c.EndpointState(name)
		return ok && st.Status == want
	}, 2*time.Second, 5*time.Millisecond, "endpoint %s never reached %s", name, want)
}

// waitInbound waits until the session has buffered n frames.
func waitInbound(t *testing.T, c *Controller, name string, n uint64) {
	t.Helper()
	require.Eventually(t, func() bool {
		for _, e := range c.Stats().Endpoints {
			if e.Name == name {
				return e.Counts.Received >= n
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)
}
