package session

import (
	"strings"

	"go.bug.st/serial/enumerator"
)

// USB vendor IDs of PX4-family flight controllers.
var pixhawkVendors = []string{
	"26AC", // 3D Robotics / PX4
	"2DAE", // CubePilot
	"3162", // Holybro
	"1209", // pid.codes, used by several FMU boards
}

// Replaced in tests.
var listPorts = enumerator.GetDetailedPortsList

// FindPixhawk returns the device name of the first attached serial port
// that looks like a PX4 autopilot, or "" when none is found. Every call
// rescans the bus.
func FindPixhawk() string {
	ports, err := listPorts()
	if err != nil {
		return ""
	}
	for _, p := range ports {
		if p == nil || !p.IsUSB {
			continue
		}
		if isPixhawk(p) {
			return p.Name
		}
	}
	return ""
}

func isPixhawk(p *enumerator.PortDetails) bool {
	for _, vid := range pixhawkVendors {
		if strings.EqualFold(p.VID, vid) {
			return true
		}
	}
	product := strings.ToLower(p.Product)
	return strings.Contains(product, "px4") || strings.Contains(product, "pixhawk")
}
