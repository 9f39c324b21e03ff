package controller

import (
	"errors"
	"fmt"
	"time"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/bluenviron/gomavlib/v3/pkg/message"
	"github.com/skyhil/hilbridge/internal/diag"
	"github.com/skyhil/hilbridge/internal/dispatcher"
	"github.com/skyhil/hilbridge/internal/session"
	"github.com/skyhil/hilbridge/internal/translate"
	"github.com/skyhil/hilbridge/pkg/core"
)

// Inbound autopilot messages handled by the controller, by dispatcher name.
const (
	msgActuatorControls = "HilActuatorControls"
	msgStatusText       = "Statustext"
	msgCommandAck       = "CommandAck"
)

func (c *Controller) registerHandlers() {
	c.inbound.Register(msgActuatorControls, c.handleActuatorControls)
	c.inbound.Register(msgStatusText, c.handleStatusText)
	c.inbound.Register(msgCommandAck, c.handleCommandAck)
}

// Update advances one simulation tick. It never blocks on I/O and never
// fails: problems are reported through the status queue.
func (c *Controller) Update(dt time.Duration) {
	mode := c.Mode()
	if mode.Lifecycle == Stopped {
		return
	}
	now := c.now()

	c.serviceAuxiliary(now, mode)
	if mode.Operating == HIL {
		c.serviceHIL(now)
	}
}

func (c *Controller) serviceAuxiliary(now time.Time, mode Mode) {
	// a failed frame write already shows up as a video status change
	_ = c.streamer.Service()

	// Log viewers only listen.
	c.logViewer.Discard()

	for r := range c.qgc.DrainReceived() {
		if mode.Operating == HIL && c.autopilot.State().Status == session.StatusConnected {
			_ = c.autopilot.Forward(r.Frame)
		}
	}

	if c.opts.MocapDirection == MocapInbound {
		for msg := range c.mocap.DrainInbound() {
			m, ok := msg.(*common.MessageAttPosMocap)
			if !ok {
				continue
			}
			pose, ts, err := translate.PoseFromMocap(m)
			if err != nil {
				c.reporter.Error(EndpointMocap, "bad mocap pose", err)
				continue
			}
			if ts.IsZero() {
				ts = now
			}
			c.mu.Lock()
			c.mocapPose, c.mocapTime, c.hasMocap = pose, ts, true
			c.mu.Unlock()
		}
	} else if c.mocap.Connected() {
		c.mocap.Discard()
		c.mu.Lock()
		vehicle := c.vehicle
		c.mu.Unlock()
		if vehicle != nil {
			_ = c.SendMocapPose(vehicle.Pose())
		}
	}

	for msg := range c.externalSim.DrainInbound() {
		if m, ok := msg.(*common.MessageHilStateQuaternion); ok {
			st := translate.ExternalStateFromHIL(m)
			if st.Time.IsZero() {
				st.Time = now
			}
			c.mu.Lock()
			c.external, c.hasExternal = st, true
			c.mu.Unlock()
		}
	}
}

func (c *Controller) serviceHIL(now time.Time) {
	forwardLog := c.logViewer.Connected()
	forwardGCS := c.qgc.Connected()

	for r := range c.autopilot.DrainReceived() {
		msg := r.Message()
		// Commands go to whichever system last announced itself.
		if _, ok := msg.(*common.MessageHeartbeat); ok {
			c.mu.Lock()
			c.targetSystem = r.SystemID
			c.mu.Unlock()
		}
		e := dispatcher.MessageEvent(session.AutopilotName, msg, r.Time)
		if c.inbound.HasHandler(e.Name) {
			if _, err := c.inbound.Dispatch(e); err != nil {
				c.reporter.Error(session.AutopilotName, "rejected "+e.Name, err)
			}
		}
		if forwardLog {
			_ = c.logViewer.Forward(r.Frame)
		}
		if forwardGCS {
			_ = c.qgc.Forward(r.Frame)
		}
	}

	c.checkLink(now)

	if c.autopilot.State().Status != session.StatusConnected {
		return
	}

	c.mu.Lock()
	vehicle := c.vehicle
	gpsDue := now.Sub(c.lastGps) >= c.opts.GpsPeriod
	if gpsDue {
		c.lastGps = now
	}
	c.mu.Unlock()
	if vehicle == nil {
		return
	}

	s := translate.SensorFromVehicle(now, vehicle)
	_ = c.sendSensor(s)
	if gpsDue {
		_ = c.sendGps(core.GpsSample{Time: now, Fix: vehicle.GPS()})
	}
}

// checkLink is the heartbeat watchdog: a connected autopilot that stays
// silent for LinkTimeout is reported down, and up again on the next frame.
func (c *Controller) checkLink(now time.Time) {
	connected := c.autopilot.State().Status == session.StatusConnected
	last := c.autopilot.LastReceived()

	c.mu.Lock()
	if !connected {
		c.linkAlive = false
		c.linkWatch = time.Time{}
		c.mu.Unlock()
		return
	}
	if c.linkWatch.IsZero() {
		c.linkWatch = now
	}
	ref := last
	if ref.Before(c.linkWatch) {
		ref = c.linkWatch
	}
	silent := now.Sub(ref) > c.opts.LinkTimeout
	fresh := !last.IsZero() && !last.Before(c.linkWatch)

	var msg *diag.Message
	switch {
	case c.linkAlive && silent:
		c.linkAlive = false
		c.linkWatch = now
		err := diag.Wrap(diag.KindConnection, session.AutopilotName,
			fmt.Errorf("no data for %s", c.opts.LinkTimeout))
		msg = &diag.Message{Kind: diag.KindConnection, Endpoint: session.AutopilotName, Text: "autopilot link lost", Err: err}
	case !c.linkAlive && fresh && !silent:
		c.linkAlive = true
		msg = &diag.Message{Kind: diag.KindStateChange, Endpoint: session.AutopilotName, Text: "autopilot link up"}
	}
	c.mu.Unlock()

	if msg != nil {
		c.reporter.Report(*msg)
	}
}

// LinkAlive reports whether the autopilot has been heard from recently.
func (c *Controller) LinkAlive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.linkAlive
}

func (c *Controller) handleActuatorControls(e dispatcher.Event) (any, error) {
	m := e.Payload.(*common.MessageHilActuatorControls)

	c.rotorMu.Lock()
	controls, err := translate.RotorControls(m, len(c.rotors))
	if err == nil {
		copy(c.rotors, controls)
	}
	c.rotorMu.Unlock()

	if err != nil {
		return nil, err
	}
	c.tap.RecordActuators(core.ActuatorSample{Time: e.Timestamp, Controls: controls})
	return controls, nil
}

func (c *Controller) handleStatusText(e dispatcher.Event) (any, error) {
	m := e.Payload.(*common.MessageStatustext)
	c.reporter.Report(diag.Message{
		Time:     e.Timestamp,
		Kind:     diag.KindAutopilot,
		Endpoint: e.Endpoint,
		Text:     fmt.Sprintf("%s: %s", translate.Severity(m.Severity), m.Text),
	})
	return nil, nil
}

func (c *Controller) handleCommandAck(e dispatcher.Event) (any, error) {
	m := e.Payload.(*common.MessageCommandAck)
	if dc := c.droneControl(); dc != nil {
		dc.handleAck(m)
	}
	return nil, nil
}

// SendHILSensor sends one HIL_SENSOR to the autopilot.
func (c *Controller) SendHILSensor(accel, gyro, mag core.Vector3, absPressure, pressureAlt float64) error {
	return c.sendSensor(core.SensorSample{
		Time:             c.now(),
		Acceleration:     accel,
		AngularVelocity:  gyro,
		MagneticField:    mag,
		AbsPressure:      absPressure,
		PressureAltitude: pressureAlt,
	})
}

func (c *Controller) sendSensor(s core.SensorSample) error {
	msg, err := translate.HILSensorSample(s)
	if err != nil {
		c.reporter.Error(session.AutopilotName, "HIL_SENSOR not sent", err)
		return err
	}
	if err := c.sendAutopilot("HIL_SENSOR", msg); err != nil {
		return err
	}
	c.tap.RecordSensor(s)
	return nil
}

// SendHILGps sends one HIL_GPS. Inconsistent fixes are rejected and
// reported; nothing is sent.
func (c *Controller) SendHILGps(fix core.GpsFix) error {
	return c.sendGps(core.GpsSample{Time: c.now(), Fix: fix})
}

func (c *Controller) sendGps(s core.GpsSample) error {
	msg, err := translate.HILGps(s.Time, s.Fix)
	if err != nil {
		c.reporter.Error(session.AutopilotName, "HIL_GPS not sent", err)
		return err
	}
	if err := c.sendAutopilot("HIL_GPS", msg); err != nil {
		return err
	}
	c.tap.RecordGps(s)
	return nil
}

var errMocapInbound = errors.New("mocap endpoint is configured inbound")

// SendMocapPose sends the pose to the motion capture endpoint. Only the
// outbound direction writes; an inbound rig owns the pose stream.
func (c *Controller) SendMocapPose(pose core.Pose) error {
	if c.opts.MocapDirection != MocapOutbound {
		err := diag.Wrap(diag.KindLifecycle, EndpointMocap, errMocapInbound)
		c.reporter.Error(EndpointMocap, "ATT_POS_MOCAP not sent", err)
		return err
	}
	msg, err := translate.MocapPose(c.now(), pose)
	if err != nil {
		c.reporter.Error(EndpointMocap, "ATT_POS_MOCAP not sent", err)
		return err
	}
	return quiet(c.mocap.SendRaw(msg))
}

// SendCollision publishes a contact normal to the connected log viewer and
// ground station. With neither connected the event is only recorded.
func (c *Controller) SendCollision(normal core.Vector3) error {
	now := c.now()
	msg, err := translate.Collision(now, normal)
	if err != nil {
		c.reporter.Error("", "collision not sent", err)
		return err
	}
	c.tap.RecordCollision(core.CollisionEvent{Time: now, Normal: normal})

	var errs []error
	for _, s := range []*session.Session{c.logViewer, c.qgc} {
		if s.Connected() {
			errs = append(errs, s.SendRaw(msg))
		}
	}
	return errors.Join(errs...)
}

// HasVideoRequest reports whether the video consumer asked for a frame.
func (c *Controller) HasVideoRequest() bool {
	return c.streamer.HasRequest()
}

// SendImage queues one PNG frame if the video consumer requested one and
// reports whether it was accepted. Update writes the rest of a large frame
// over the following ticks. Without a request the frame is dropped silently.
func (c *Controller) SendImage(data []byte, width, height int) bool {
	sent, err := c.streamer.SendImage(data, width, height)
	if err != nil && diag.KindOf(err) == diag.KindTranslation {
		c.reporter.Error(EndpointVideo, "frame not sent", err)
	}
	return sent
}

// sendAutopilot writes msg to the autopilot. A send on a closed link is
// reported here; a failing write is reported by the resulting status change.
func (c *Controller) sendAutopilot(name string, msg message.Message) error {
	err := c.autopilot.SendRaw(msg)
	if errors.Is(err, session.ErrNotConnected) || errors.Is(err, session.ErrNotInitialized) {
		c.reporter.Report(diag.Message{
			Kind:     diag.KindDropped,
			Endpoint: session.AutopilotName,
			Text:     name + " dropped",
			Err:      err,
		})
	}
	return err
}

// quiet turns "not connected" into nil: dropping a send on a closed
// endpoint is expected and is not an error for the caller. Write failures
// already reached the status queue through the session status callback.
func quiet(err error) error {
	if errors.Is(err, session.ErrNotConnected) {
		return nil
	}
	return err
}
