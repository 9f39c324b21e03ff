package session

import (
	"context"
	"fmt"

	"github.com/bluenviron/gomavlib/v3"
	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/bluenviron/gomavlib/v3/pkg/frame"
	"github.com/bluenviron/gomavlib/v3/pkg/message"
	"github.com/skyhil/hilbridge/pkg/core"
)

// Default MAVLink identity of the bridge.
const (
	DefaultSystemID    = 134
	DefaultComponentID = 1
)

// Link is an open MAVLink transport. *gomavlib.Node satisfies it.
type Link interface {
	Events() chan gomavlib.Event
	WriteMessageAll(msg message.Message) error
	WriteFrameAll(fr frame.Frame) error
	Close()
}

// Spec describes how to open one endpoint.
type Spec struct {
	Name        string
	Endpoints   []gomavlib.EndpointConf
	SystemID    byte
	ComponentID byte
}

// Dialer opens a Link for a Spec. It may block; sessions call it from a
// background goroutine and abandon the result when ctx is cancelled.
type Dialer func(ctx context.Context, spec Spec) (Link, error)

// DialNode opens a gomavlib node speaking MAVLink v2 with the common dialect.
func DialNode(ctx context.Context, spec Spec) (Link, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sysID, compID := spec.SystemID, spec.ComponentID
	if sysID == 0 {
		sysID = DefaultSystemID
	}
	if compID == 0 {
		compID = DefaultComponentID
	}
	node, err := gomavlib.NewNode(gomavlib.NodeConf{
		Endpoints:      spec.Endpoints,
		Dialect:        common.Dialect,
		OutVersion:     gomavlib.V2,
		OutSystemID:    sysID,
		OutComponentID: compID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MAVLink node for %s: %w", spec.Name, err)
	}
	return node, nil
}

// AutopilotEndpoint builds the transport for the HIL link. Serial links use
// info.SerialPort as given, so discovery must already have run.
func AutopilotEndpoint(info core.ConnectionInfo) gomavlib.EndpointConf {
	if info.UseSerial {
		return gomavlib.EndpointSerial{Device: info.SerialPort, Baud: info.BaudRate}
	}
	return gomavlib.EndpointUDPClient{Address: info.Address()}
}

// UDPClient sends to a remote UDP listener.
func UDPClient(address string) []gomavlib.EndpointConf {
	return []gomavlib.EndpointConf{gomavlib.EndpointUDPClient{Address: address}}
}

// UDPServer listens for UDP peers on address.
func UDPServer(address string) []gomavlib.EndpointConf {
	return []gomavlib.EndpointConf{gomavlib.EndpointUDPServer{Address: address}}
}
