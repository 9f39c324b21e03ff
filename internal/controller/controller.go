// Package controller is the HIL bridge facade: it owns every MAVLink
// session, runs the mode state machine and exchanges sensor data and rotor
// commands with the autopilot once per simulation tick.
package controller

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bluenviron/gomavlib/v3"
	"github.com/hashicorp/go-multierror"
	"github.com/skyhil/hilbridge/internal/diag"
	"github.com/skyhil/hilbridge/internal/dispatcher"
	"github.com/skyhil/hilbridge/internal/logging"
	"github.com/skyhil/hilbridge/internal/session"
	"github.com/skyhil/hilbridge/internal/video"
	"github.com/skyhil/hilbridge/pkg/core"
)

// InvalidControlSignal is returned for rotor indices outside the vector.
const InvalidControlSignal = 0.0

// Endpoint labels used in status messages.
const (
	EndpointVideo       = "video"
	EndpointLogViewer   = "logviewer"
	EndpointQGC         = "qgc"
	EndpointMocap       = "mocap"
	EndpointExternalSim = "externalsim"
)

// Mocap directions.
const (
	MocapInbound  = "inbound"
	MocapOutbound = "outbound"
)

// Defaults applied by New.
const (
	DefaultGpsPeriod   = 100 * time.Millisecond
	DefaultLinkTimeout = 2 * time.Second
)

// AuxEndpoint is the address of an auxiliary consumer. Enabled endpoints
// are connected by Start; all endpoints with an address can be connected
// explicitly.
type AuxEndpoint struct {
	Address string
	Enabled bool
}

// Options configure a Controller. Zero values pick defaults.
type Options struct {
	Logger   *slog.Logger
	Reporter *diag.Reporter
	Dialer   session.Dialer
	Tap      Tap
	// FindPort overrides serial discovery for "*" ports.
	FindPort func() string

	SystemID        byte
	ComponentID     byte
	GpsPeriod       time.Duration
	LinkTimeout     time.Duration
	StatusQueueSize int

	Video          AuxEndpoint
	LogViewer      AuxEndpoint
	QGC            AuxEndpoint
	Mocap          AuxEndpoint
	MocapDirection string
	ExternalSim    AuxEndpoint

	Version string
}

// Controller is the bridge facade. All methods are safe for concurrent use;
// Update is expected to be driven from a single simulation goroutine.
type Controller struct {
	logger   *slog.Logger
	reporter *diag.Reporter
	tap      Tap
	inbound  *dispatcher.Dispatcher
	now      func() time.Time
	opts     Options

	autopilot   *session.Autopilot
	video       *session.Session
	streamer    *video.Streamer
	logViewer   *session.Session
	qgc         *session.Session
	mocap       *session.Session
	externalSim *session.Session

	mu           sync.Mutex
	mode         Mode
	info         core.ConnectionInfo
	vehicle      core.VehicleState
	initialized  bool
	lastGps      time.Time
	linkAlive    bool
	linkWatch    time.Time
	mocapPose    core.Pose
	mocapTime    time.Time
	hasMocap     bool
	external     core.ExternalState
	hasExternal  bool
	targetSystem byte
	runStart     time.Time
	control      *DroneControl

	rotorMu sync.RWMutex
	rotors  []float64
}

// New builds a stopped controller in Normal mode. Sessions are created but
// nothing connects until Start or an explicit ConnectTo call.
func New(opts Options) (*Controller, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.SystemID == 0 {
		opts.SystemID = session.DefaultSystemID
	}
	if opts.ComponentID == 0 {
		opts.ComponentID = session.DefaultComponentID
	}
	if opts.GpsPeriod <= 0 {
		opts.GpsPeriod = DefaultGpsPeriod
	}
	if opts.LinkTimeout <= 0 {
		opts.LinkTimeout = DefaultLinkTimeout
	}
	if opts.MocapDirection != MocapOutbound {
		opts.MocapDirection = MocapInbound
	}
	if opts.Reporter == nil {
		opts.Reporter = diag.NewReporter(opts.StatusQueueSize, opts.Logger)
	}
	if opts.Tap == nil {
		opts.Tap = NopTap{}
	}

	c := &Controller{
		logger:       opts.Logger,
		reporter:     opts.Reporter,
		tap:          opts.Tap,
		now:          time.Now,
		opts:         opts,
		targetSystem: 1,
	}

	d, err := dispatcher.New(logging.NewDispatcherLogger(opts.Logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create inbound dispatcher: %w", err)
	}
	c.inbound = d
	c.registerHandlers()

	sessOpts := session.Options{
		Dialer:   opts.Dialer,
		Logger:   opts.Logger,
		OnStatus: c.onSessionStatus,
	}
	c.autopilot = session.NewAutopilot(opts.SystemID, opts.ComponentID, sessOpts)
	if opts.FindPort != nil {
		c.autopilot.FindPort = opts.FindPort
	}

	aux := func(name string, endpoints func(string) []gomavlib.EndpointConf, ep AuxEndpoint) *session.Session {
		return session.New(session.Spec{
			Name:        name,
			Endpoints:   endpoints(ep.Address),
			SystemID:    opts.SystemID,
			ComponentID: opts.ComponentID,
		}, sessOpts)
	}
	c.video = aux(EndpointVideo, session.UDPClient, opts.Video)
	c.streamer = video.NewStreamer(c.video)
	c.logViewer = aux(EndpointLogViewer, session.UDPClient, opts.LogViewer)
	c.qgc = aux(EndpointQGC, session.UDPClient, opts.QGC)
	if opts.MocapDirection == MocapOutbound {
		c.mocap = aux(EndpointMocap, session.UDPClient, opts.Mocap)
	} else {
		c.mocap = aux(EndpointMocap, session.UDPServer, opts.Mocap)
	}
	c.externalSim = aux(EndpointExternalSim, session.UDPClient, opts.ExternalSim)

	c.reporter.OnReport(func(m diag.Message) {
		c.tap.RecordStatus(core.StatusEvent{
			Time:     m.Time,
			Kind:     m.Kind.String(),
			Endpoint: m.Endpoint,
			Message:  m.String(),
		})
	})

	return c, nil
}

// Initialize validates the autopilot descriptor, resolves the serial device
// and sizes the rotor vector from the vehicle. It must be called while
// stopped; configuration stays fixed until the next Initialize.
func (c *Controller) Initialize(info core.ConnectionInfo, vehicle core.VehicleState) error {
	c.mu.Lock()
	running := c.mode.Lifecycle == Running
	c.mu.Unlock()
	if running {
		err := fmt.Errorf("%w: initialize called while running", diag.ErrLifecycle)
		c.reporter.Error("", "initialize rejected", err)
		return err
	}

	if err := c.autopilot.Initialize(info, vehicle); err != nil {
		c.reporter.Error(session.AutopilotName, "invalid connection settings", err)
		return err
	}

	rotorCount := 0
	if vehicle != nil {
		rotorCount = vehicle.RotorCount()
	}

	c.mu.Lock()
	c.info = info
	c.vehicle = vehicle
	c.initialized = true
	c.mu.Unlock()

	c.rotorMu.Lock()
	c.rotors = make([]float64, rotorCount)
	c.rotorMu.Unlock()

	c.reporter.Infof(session.AutopilotName, "initialized %s", info)
	return nil
}

// GetHILConnectionInfo returns the descriptor passed to Initialize.
func (c *Controller) GetHILConnectionInfo() core.ConnectionInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.info
}

// Mode returns the current state machine mode.
func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Start moves Stopped to RunningNormal, or RunningHIL when HIL was selected
// while stopped, and connects the enabled auxiliary endpoints. Idempotent.
func (c *Controller) Start() {
	_ = c.fire(EventStart)
}

// Stop closes every endpoint and moves to Stopped. Idempotent.
func (c *Controller) Stop() {
	_ = c.fire(EventStop)
}

// SetHILMode selects HIL. While running it connects the autopilot.
func (c *Controller) SetHILMode() {
	_ = c.fire(EventSetHIL)
}

// SetNormalMode selects Normal. While running it closes the autopilot link
// and leaves auxiliary endpoints alone.
func (c *Controller) SetNormalMode() {
	_ = c.fire(EventSetNormal)
}

// Reset clears transient state: the rotor vector is zeroed and buffered
// inbound messages are discarded. Only valid while stopped; otherwise it
// returns ErrLifecycle and changes nothing.
func (c *Controller) Reset() error {
	return c.fire(EventReset)
}

func (c *Controller) fire(e Event) error {
	c.mu.Lock()
	from := c.mode
	t := step(from, e)
	if t.err != nil {
		c.mu.Unlock()
		c.reporter.Error("", fmt.Sprintf("%s rejected in %s", e, from), t.err)
		return t.err
	}
	c.mode = t.next
	if t.actions&actConnectAux != 0 {
		c.runStart = c.now()
	}
	c.mu.Unlock()

	if from != t.next {
		c.reporter.Report(diag.Message{Kind: diag.KindStateChange, Text: fmt.Sprintf("%s -> %s", from, t.next)})
	}

	if t.actions&actConnectAux != 0 {
		c.connectEnabledAux()
		c.startRun()
	}
	if t.actions&actConnectHIL != 0 {
		c.ConnectToHIL()
	}
	if t.actions&actCloseHIL != 0 {
		c.autopilot.Close()
		c.resetLinkWatch()
	}
	if t.actions&actCloseAll != 0 {
		c.closeAll()
	}
	if t.actions&actReset != 0 {
		c.reset()
	}
	return nil
}

func (c *Controller) connectEnabledAux() {
	for _, a := range []struct {
		ep   AuxEndpoint
		sess *session.Session
	}{
		{c.opts.Video, c.video},
		{c.opts.LogViewer, c.logViewer},
		{c.opts.QGC, c.qgc},
		{c.opts.Mocap, c.mocap},
		{c.opts.ExternalSim, c.externalSim},
	} {
		if a.ep.Enabled && a.ep.Address != "" {
			a.sess.Connect()
		}
	}
}

func (c *Controller) startRun() {
	c.mu.Lock()
	run := core.Session{
		VehicleName: c.info.VehicleName,
		Link:        c.info.String(),
		Mode:        c.mode.String(),
		StartTime:   c.runStart,
		Version:     c.opts.Version,
	}
	if c.vehicle != nil {
		run.Home = c.vehicle.GPS().Position
	}
	c.mu.Unlock()
	c.tap.RunStarted(run)
}

// closeAll closes every session. Faults that endpoints were still in are
// collected and reported once the links are down.
func (c *Controller) closeAll() {
	var result *multierror.Error

	collect := func(name string, st session.State) {
		if st.Status == session.StatusError && st.Reason != nil {
			result = multierror.Append(result, fmt.Errorf("%s closed while faulted: %w", name, st.Reason))
		}
	}

	collect(session.AutopilotName, c.autopilot.State())
	c.autopilot.Close()
	for _, s := range c.auxSessions() {
		collect(s.Name(), s.State())
		s.Close()
	}
	c.resetLinkWatch()
	c.streamer.Reset()

	if err := c.tap.RunStopped(c.now()); err != nil {
		result = multierror.Append(result, fmt.Errorf("telemetry: %w", err))
	}

	if err := result.ErrorOrNil(); err != nil {
		for _, e := range result.Errors {
			c.reporter.Error("", "stop", e)
		}
		c.logger.Warn("stopped with errors", "error", err)
	}
}

func (c *Controller) auxSessions() []*session.Session {
	return []*session.Session{c.video, c.logViewer, c.qgc, c.mocap, c.externalSim}
}

func (c *Controller) reset() {
	c.rotorMu.Lock()
	clear(c.rotors)
	c.rotorMu.Unlock()

	c.autopilot.Discard()
	for _, s := range c.auxSessions() {
		s.Discard()
	}
	c.streamer.Reset()

	c.mu.Lock()
	c.lastGps = time.Time{}
	c.hasMocap = false
	c.mocapPose = core.Pose{}
	c.mocapTime = time.Time{}
	c.hasExternal = false
	c.external = core.ExternalState{}
	c.mu.Unlock()

	c.reporter.Infof("", "reset")
}

// Close shuts the controller down regardless of mode.
func (c *Controller) Close() {
	c.Stop()
	c.autopilot.Close()
	for _, s := range c.auxSessions() {
		s.Close()
	}
	c.inbound.Close()
}

// ConnectToHIL starts connecting the autopilot link.
func (c *Controller) ConnectToHIL() {
	if !c.autopilot.Initialized() {
		c.reporter.Error(session.AutopilotName, "cannot connect",
			diag.Wrap(diag.KindConfiguration, session.AutopilotName, session.ErrNotInitialized))
		return
	}
	c.resetLinkWatch()
	c.autopilot.Connect()
}

// ConnectToVideoServer starts connecting the video consumer.
func (c *Controller) ConnectToVideoServer() {
	c.connectAux(c.video, c.opts.Video)
}

// ConnectToLogViewer starts connecting the log viewer. It reports whether
// an attempt was started; the outcome arrives through the status queue.
func (c *Controller) ConnectToLogViewer() bool {
	return c.connectAux(c.logViewer, c.opts.LogViewer)
}

// ConnectToQGC starts connecting the ground control station. It reports
// whether an attempt was started.
func (c *Controller) ConnectToQGC() bool {
	return c.connectAux(c.qgc, c.opts.QGC)
}

// ConnectToMocap starts the motion capture endpoint.
func (c *Controller) ConnectToMocap() bool {
	return c.connectAux(c.mocap, c.opts.Mocap)
}

// ConnectToExternalSim starts connecting the external simulator.
func (c *Controller) ConnectToExternalSim() {
	c.connectAux(c.externalSim, c.opts.ExternalSim)
}

func (c *Controller) connectAux(s *session.Session, ep AuxEndpoint) bool {
	if ep.Address == "" {
		c.reporter.Error(s.Name(), "cannot connect",
			diag.Wrap(diag.KindConfiguration, s.Name(), errors.New("no address configured")))
		return false
	}
	s.Connect()
	return true
}

// EndpointState returns the status of the named endpoint.
func (c *Controller) EndpointState(name string) (session.State, bool) {
	if name == session.AutopilotName {
		return c.autopilot.State(), true
	}
	for _, s := range c.auxSessions() {
		if s.Name() == name {
			return s.State(), true
		}
	}
	return session.State{}, false
}

// GetRotorControlsCount returns the length of the rotor vector.
func (c *Controller) GetRotorControlsCount() int {
	c.rotorMu.RLock()
	defer c.rotorMu.RUnlock()
	return len(c.rotors)
}

// GetVertexControlSignal returns the control signal for rotor index. An
// index outside the vector yields InvalidControlSignal, an ErrIndex error
// and a status message.
func (c *Controller) GetVertexControlSignal(index int) (float64, error) {
	c.rotorMu.RLock()
	n := len(c.rotors)
	if index >= 0 && index < n {
		v := c.rotors[index]
		c.rotorMu.RUnlock()
		return v, nil
	}
	c.rotorMu.RUnlock()

	err := diag.Wrap(diag.KindIndex, "", fmt.Errorf("rotor index %d outside [0, %d)", index, n))
	c.reporter.Error("", "invalid rotor query", err)
	return InvalidControlSignal, err
}

// RotorControls returns a copy of the rotor vector.
func (c *Controller) RotorControls() []float64 {
	c.rotorMu.RLock()
	defer c.rotorMu.RUnlock()
	return append([]float64(nil), c.rotors...)
}

// GetStatusMessages drains the status queue as text, oldest first.
func (c *Controller) GetStatusMessages() []string {
	return c.reporter.DrainStrings()
}

// StatusEvents drains the status queue as structured messages.
func (c *Controller) StatusEvents() []diag.Message {
	return c.reporter.Drain()
}

// Reporter returns the status channel.
func (c *Controller) Reporter() *diag.Reporter {
	return c.reporter
}

// GetMocapPose returns the last pose received from motion capture.
func (c *Controller) GetMocapPose() (core.Pose, time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mocapPose, c.mocapTime, c.hasMocap
}

// ExternalState returns the last ground truth from the external simulator.
func (c *Controller) ExternalState() (core.ExternalState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.external, c.hasExternal
}

// CreateOrGetDroneControl returns the offboard command surface, creating
// it on first use.
func (c *Controller) CreateOrGetDroneControl() *DroneControl {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.control == nil {
		c.control = newDroneControl(c)
	}
	return c.control
}

func (c *Controller) droneControl() *DroneControl {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.control
}

func (c *Controller) onSessionStatus(name string, st session.State) {
	switch st.Status {
	case session.StatusError:
		c.reporter.Error(name, "connection failed", st.Reason)
	default:
		c.reporter.Report(diag.Message{Kind: diag.KindStateChange, Endpoint: name, Text: st.Status.String()})
	}
}

func (c *Controller) resetLinkWatch() {
	c.mu.Lock()
	c.linkAlive = false
	c.linkWatch = time.Time{}
	c.mu.Unlock()
}
