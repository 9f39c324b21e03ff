package controller

import (
	"fmt"
	"sync"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/skyhil/hilbridge/internal/session"
	"github.com/skyhil/hilbridge/internal/translate"
)

const autopilotComponent = 1

// DroneControl issues COMMAND_LONG requests to the autopilot. Commands are
// fire-and-forget; acknowledgements are collected from the inbound stream
// and can be inspected with LastAck.
type DroneControl struct {
	c *Controller

	mu   sync.Mutex
	acks map[common.MAV_CMD]common.MAV_RESULT
}

func newDroneControl(c *Controller) *DroneControl {
	return &DroneControl{c: c, acks: make(map[common.MAV_CMD]common.MAV_RESULT)}
}

// Arm arms the motors.
func (d *DroneControl) Arm() error {
	return d.send(common.MAV_CMD_COMPONENT_ARM_DISARM, 1)
}

// Disarm disarms the motors.
func (d *DroneControl) Disarm() error {
	return d.send(common.MAV_CMD_COMPONENT_ARM_DISARM, 0)
}

// Takeoff climbs to altitude meters above home.
func (d *DroneControl) Takeoff(altitude float32) error {
	return d.send(common.MAV_CMD_NAV_TAKEOFF, 0, 0, 0, 0, 0, 0, altitude)
}

func (d *DroneControl) Land() error {
	return d.send(common.MAV_CMD_NAV_LAND)
}

func (d *DroneControl) ReturnToLaunch() error {
	return d.send(common.MAV_CMD_NAV_RETURN_TO_LAUNCH)
}

// LastAck returns the most recent result reported for cmd.
func (d *DroneControl) LastAck(cmd common.MAV_CMD) (common.MAV_RESULT, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.acks[cmd]
	return r, ok
}

func (d *DroneControl) send(cmd common.MAV_CMD, params ...float32) error {
	d.c.mu.Lock()
	target := d.c.targetSystem
	d.c.mu.Unlock()

	d.mu.Lock()
	delete(d.acks, cmd)
	d.mu.Unlock()

	msg := translate.Command(target, autopilotComponent, cmd, params...)
	if err := d.c.autopilot.SendRaw(msg); err != nil {
		d.c.reporter.Error(session.AutopilotName, fmt.Sprintf("command %s not sent", cmd), err)
		return err
	}
	return nil
}

func (d *DroneControl) handleAck(m *common.MessageCommandAck) {
	d.mu.Lock()
	d.acks[m.Command] = m.Result
	d.mu.Unlock()

	if m.Result != common.MAV_RESULT_ACCEPTED && m.Result != common.MAV_RESULT_IN_PROGRESS {
		d.c.reporter.Infof(session.AutopilotName, "command %s: %s", m.Command, m.Result)
	}
}
