package session

import (
	"errors"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/bluenviron/gomavlib/v3"
	"github.com/bluenviron/gomavlib/v3/pkg/frame"
	"github.com/bluenviron/gomavlib/v3/pkg/message"
	"github.com/skyhil/hilbridge/internal/diag"
	"github.com/skyhil/hilbridge/pkg/core"
)

// AutopilotName labels the HIL link in status messages and metrics.
const AutopilotName = "autopilot"

// ErrNotInitialized is returned when the autopilot link is used before Initialize.
var ErrNotInitialized = errors.New("autopilot link not initialized")

// Autopilot is the HIL transport session. It validates the connection
// descriptor, resolves the serial device and owns the underlying Session.
type Autopilot struct {
	opts        Options
	systemID    byte
	componentID byte
	// FindPort resolves core.AnySerialPort. Defaults to FindPixhawk.
	FindPort func() string

	mu      sync.Mutex
	info    core.ConnectionInfo
	device  string
	vehicle core.VehicleState
	sess    *Session
}

// NewAutopilot creates an uninitialized autopilot link.
func NewAutopilot(systemID, componentID byte, opts Options) *Autopilot {
	return &Autopilot{
		opts:        opts,
		systemID:    systemID,
		componentID: componentID,
		FindPort:    FindPixhawk,
	}
}

// Validate checks a descriptor without touching any device.
func Validate(info core.ConnectionInfo) error {
	if info.UseSerial {
		if info.SerialPort == "" {
			return diag.Wrap(diag.KindConfiguration, AutopilotName, errors.New("serial port is empty"))
		}
		if info.BaudRate <= 0 {
			return diag.Wrap(diag.KindConfiguration, AutopilotName, fmt.Errorf("invalid baud rate %d", info.BaudRate))
		}
		return nil
	}
	if info.IPAddress == "" {
		return diag.Wrap(diag.KindConfiguration, AutopilotName, errors.New("ip address is empty"))
	}
	if info.IPPort < 1 || info.IPPort > 65535 {
		return diag.Wrap(diag.KindConfiguration, AutopilotName, fmt.Errorf("invalid ip port %d", info.IPPort))
	}
	return nil
}

// Initialize validates info, resolves "*" serial ports, stores the vehicle
// and leaves the link Disconnected. Any previous link is closed.
func (a *Autopilot) Initialize(info core.ConnectionInfo, vehicle core.VehicleState) error {
	if err := Validate(info); err != nil {
		return err
	}

	device := info.SerialPort
	if info.UseSerial && device == core.AnySerialPort {
		device = a.FindPort()
		if device == "" {
			return diag.Wrap(diag.KindConfiguration, AutopilotName, errors.New("no autopilot serial device found"))
		}
	}

	resolved := info
	resolved.SerialPort = device
	spec := Spec{
		Name:        AutopilotName,
		Endpoints:   []gomavlib.EndpointConf{AutopilotEndpoint(resolved)},
		SystemID:    a.systemID,
		ComponentID: a.componentID,
	}

	a.mu.Lock()
	old := a.sess
	a.info = info
	a.device = device
	a.vehicle = vehicle
	a.sess = New(spec, a.opts)
	a.mu.Unlock()

	if old != nil {
		old.Close()
	}
	return nil
}

func (a *Autopilot) session() *Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sess
}

// Initialized reports whether Initialize has succeeded.
func (a *Autopilot) Initialized() bool {
	return a.session() != nil
}

// Info returns the descriptor given to Initialize.
func (a *Autopilot) Info() core.ConnectionInfo {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.info
}

// Device returns the serial device in use after discovery.
func (a *Autopilot) Device() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.device
}

// Vehicle returns the vehicle state provider.
func (a *Autopilot) Vehicle() core.VehicleState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.vehicle
}

// Session returns the underlying session, nil before Initialize.
func (a *Autopilot) Session() *Session {
	return a.session()
}

// Connect starts connecting. Before Initialize it does nothing.
func (a *Autopilot) Connect() {
	if s := a.session(); s != nil {
		s.Connect()
	}
}

// Close closes the link. Idempotent.
func (a *Autopilot) Close() {
	if s := a.session(); s != nil {
		s.Close()
	}
}

// State returns the link status. Before Initialize it is Disconnected.
func (a *Autopilot) State() State {
	if s := a.session(); s != nil {
		return s.State()
	}
	return State{Status: StatusDisconnected}
}

// DrainInbound yields messages received since the previous drain.
func (a *Autopilot) DrainInbound() iter.Seq[message.Message] {
	if s := a.session(); s != nil {
		return s.DrainInbound()
	}
	return func(func(message.Message) bool) {}
}

// DrainReceived yields received frames since the previous drain.
func (a *Autopilot) DrainReceived() iter.Seq[Received] {
	if s := a.session(); s != nil {
		return s.DrainReceived()
	}
	return func(func(Received) bool) {}
}

// Discard drops buffered inbound messages.
func (a *Autopilot) Discard() {
	if s := a.session(); s != nil {
		s.Discard()
	}
}

// SendRaw writes msg best-effort.
func (a *Autopilot) SendRaw(msg message.Message) error {
	s := a.session()
	if s == nil {
		return diag.Wrap(diag.KindConnection, AutopilotName, ErrNotInitialized)
	}
	return s.SendRaw(msg)
}

// Forward writes an encoded frame best-effort.
func (a *Autopilot) Forward(fr frame.Frame) error {
	s := a.session()
	if s == nil {
		return diag.Wrap(diag.KindConnection, AutopilotName, ErrNotInitialized)
	}
	return s.Forward(fr)
}

// LastReceived returns when the last autopilot frame arrived.
func (a *Autopilot) LastReceived() time.Time {
	if s := a.session(); s != nil {
		return s.LastReceived()
	}
	return time.Time{}
}

// Stats returns the link counters.
func (a *Autopilot) Stats() Stats {
	if s := a.session(); s != nil {
		return s.Stats()
	}
	return Stats{}
}
