// Package safety carries the distinguished error raised by a control
// task when it needs to escalate into the supervisory Fault state.
package safety

import "fmt"

// Code enumerates the named escalation reasons
type Code int

const (
	MixingValveTimeout Code = iota
	MixingValveMovedOutOfTarget
	EGWPump
	EGWPumpStartup
	TemperatureSensors
)

func (c Code) String() string {
	switch c {
	case MixingValveTimeout:
		return "MixingValveTimeout"
	case MixingValveMovedOutOfTarget:
		return "MixingValveMovedOutOfTarget"
	case EGWPump:
		return "EGWPump"
	case EGWPumpStartup:
		return "EGWPumpStartup"
	case TemperatureSensors:
		return "TemperatureSensors"
	default:
		return "Unknown"
	}
}

// Fault is returned by a control task (internal/control, internal/valve)
// in place of a plain error when the controller must switch to Fault
// and command the FPGA into its panic-safe state (valve closed).
type Fault struct {
	Code    Code
	Message string
}

func (f *Fault) Error() string {
	return fmt.Sprintf("safety fault %s: %s", f.Code, f.Message)
}

func New(code Code, format string, args ...interface{}) *Fault {
	return &Fault{Code: code, Message: fmt.Sprintf(format, args...)}
}
