package controller

import (
	"fmt"

	"github.com/skyhil/hilbridge/internal/diag"
)

// Lifecycle is whether the controller is ticking.
type Lifecycle int

const (
	Stopped Lifecycle = iota
	Running
)

// OperatingMode selects whether the autopilot is in the loop.
type OperatingMode int

const (
	Normal OperatingMode = iota
	HIL
)

func (o OperatingMode) String() string {
	if o == HIL {
		return "hil"
	}
	return "normal"
}

// Mode is the combined controller state.
type Mode struct {
	Lifecycle Lifecycle
	Operating OperatingMode
}

// String renders Stopped, RunningNormal or RunningHIL.
func (m Mode) String() string {
	if m.Lifecycle == Stopped {
		return "Stopped"
	}
	if m.Operating == HIL {
		return "RunningHIL"
	}
	return "RunningNormal"
}

// Event drives the mode state machine.
type Event int

const (
	EventStart Event = iota
	EventStop
	EventSetHIL
	EventSetNormal
	EventReset
)

func (e Event) String() string {
	switch e {
	case EventStart:
		return "start"
	case EventStop:
		return "stop"
	case EventSetHIL:
		return "set-hil"
	case EventSetNormal:
		return "set-normal"
	case EventReset:
		return "reset"
	default:
		return fmt.Sprintf("event(%d)", int(e))
	}
}

// action is a side effect requested by a transition.
type action uint8

const (
	actConnectAux action = 1 << iota
	actConnectHIL
	actCloseHIL
	actCloseAll
	actReset
)

type transitionKey struct {
	lifecycle Lifecycle
	operating OperatingMode
	event     Event
}

type transition struct {
	next    Mode
	actions action
	err     error
}

var (
	stoppedNormal = Mode{Stopped, Normal}
	stoppedHIL    = Mode{Stopped, HIL}
	runningNormal = Mode{Running, Normal}
	runningHIL    = Mode{Running, HIL}
)

var transitions = map[transitionKey]transition{
	{Stopped, Normal, EventStart}: {next: runningNormal, actions: actConnectAux},
	{Stopped, HIL, EventStart}:    {next: runningHIL, actions: actConnectAux | actConnectHIL},
	{Running, Normal, EventStart}: {next: runningNormal},
	{Running, HIL, EventStart}:    {next: runningHIL},

	{Stopped, Normal, EventStop}: {next: stoppedNormal},
	{Stopped, HIL, EventStop}:    {next: stoppedHIL},
	{Running, Normal, EventStop}: {next: stoppedNormal, actions: actCloseAll},
	{Running, HIL, EventStop}:    {next: stoppedHIL, actions: actCloseAll},

	{Stopped, Normal, EventSetHIL}: {next: stoppedHIL},
	{Stopped, HIL, EventSetHIL}:    {next: stoppedHIL},
	{Running, Normal, EventSetHIL}: {next: runningHIL, actions: actConnectHIL},
	{Running, HIL, EventSetHIL}:    {next: runningHIL},

	{Stopped, Normal, EventSetNormal}: {next: stoppedNormal},
	{Stopped, HIL, EventSetNormal}:    {next: stoppedNormal},
	{Running, Normal, EventSetNormal}: {next: runningNormal},
	{Running, HIL, EventSetNormal}:    {next: runningNormal, actions: actCloseHIL},

	{Stopped, Normal, EventReset}: {next: stoppedNormal, actions: actReset},
	{Stopped, HIL, EventReset}:    {next: stoppedHIL, actions: actReset},
	{Running, Normal, EventReset}: {next: runningNormal, err: errResetWhileRunning},
	{Running, HIL, EventReset}:    {next: runningHIL, err: errResetWhileRunning},
}

var errResetWhileRunning = fmt.Errorf("%w: reset called while running", diag.ErrLifecycle)

// step looks up the transition for e from m. Every (mode, event) pair is in
// the table, so a miss is a programming error reported as ErrLifecycle.
func step(m Mode, e Event) transition {
	t, ok := transitions[transitionKey{m.Lifecycle, m.Operating, e}]
	if !ok {
		return transition{next: m, err: fmt.Errorf("%w: no transition for %s from %s", diag.ErrLifecycle, e, m)}
	}
	return t
}
