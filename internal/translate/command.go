package translate

import (
	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
)

// Command builds COMMAND_LONG. Missing params are zero.
func Command(targetSystem, targetComponent byte, cmd common.MAV_CMD, params ...float32) *common.MessageCommandLong {
	var p [7]float32
	copy(p[:], params)
	return &common.MessageCommandLong{
		TargetSystem:    targetSystem,
		TargetComponent: targetComponent,
		Command:         cmd,
		Param1:          p[0],
		Param2:          p[1],
		Param3:          p[2],
		Param4:          p[3],
		Param5:          p[4],
		Param6:          p[5],
		Param7:          p[6],
	}
}

// Severity renders a STATUSTEXT severity the way ground stations label it.
func Severity(s common.MAV_SEVERITY) string {
	switch s {
	case common.MAV_SEVERITY_EMERGENCY:
		return "emergency"
	case common.MAV_SEVERITY_ALERT:
		return "alert"
	case common.MAV_SEVERITY_CRITICAL:
		return "critical"
	case common.MAV_SEVERITY_ERROR:
		return "error"
	case common.MAV_SEVERITY_WARNING:
		return "warning"
	case common.MAV_SEVERITY_NOTICE:
		return "notice"
	case common.MAV_SEVERITY_INFO:
		return "info"
	default:
		return "debug"
	}
}
