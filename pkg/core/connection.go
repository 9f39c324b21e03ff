// pkg/core/connection.go
package core

import (
	"fmt"
	"net"
	"strconv"
)

// AnySerialPort asks the bridge to discover the autopilot's serial device.
const AnySerialPort = "*"

// ConnectionInfo describes one HIL link. When UseSerial is set only the
// serial fields are used, otherwise only the network fields.
type ConnectionInfo struct {
	VehicleName string `json:"vehicleName" mapstructure:"vehicleName"`
	UseSerial   bool   `json:"useSerial" mapstructure:"useSerial"`
	IPAddress   string `json:"ipAddress" mapstructure:"ipAddress"`
	IPPort      int    `json:"ipPort" mapstructure:"ipPort"`
	SerialPort  string `json:"serialPort" mapstructure:"serialPort"`
	BaudRate    int    `json:"baudRate" mapstructure:"baudRate"`
}

// DefaultConnectionInfo returns the settings used when nothing is configured.
func DefaultConnectionInfo() ConnectionInfo {
	return ConnectionInfo{
		VehicleName: "Pixhawk",
		UseSerial:   true,
		IPAddress:   "127.0.0.1",
		IPPort:      14560,
		SerialPort:  AnySerialPort,
		BaudRate:    115200,
	}
}

// Address returns host:port for network links.
func (c ConnectionInfo) Address() string {
	return net.JoinHostPort(c.IPAddress, strconv.Itoa(c.IPPort))
}

func (c ConnectionInfo) String() string {
	if c.UseSerial {
		return fmt.Sprintf("%s serial %s@%d", c.VehicleName, c.SerialPort, c.BaudRate)
	}
	return fmt.Sprintf("%s udp %s", c.VehicleName, c.Address())
}
