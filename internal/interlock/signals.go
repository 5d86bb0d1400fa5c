// Package interlock implements the hardware interlock evaluator and its
// Standby/Disabled/Fault state machine.
package interlock

import (
	"time"

	"github.com/skytelescope/mirrortherm/internal/severity"
)

// SignalName indexes the nine named interlock booleans decoded from the
// raw hardware status word, in their fixed bit order.
type SignalName int

const (
	FanCoilHeatersOff SignalName = iota
	CoolantPumpOff
	GISHeartbeatLost
	MixingValveClosed
	SupportSystemHeartbeatLost
	CellDoorOpen
	GISEarthquake
	CoolantPumpEStop
	CabinetOverTemp
	numSignals
)

var signalNames = [numSignals]string{
	"fanCoilHeatersOff", "coolantPumpOff", "gisHeartbeatLost", "mixingValveClosed",
	"supportSystemHeartbeatLost", "cellDoorOpen", "gisEarthquake", "coolantPumpEStop",
	"cabinetOverTemp",
}

func (n SignalName) String() string {
	if n < 0 || n >= numSignals {
		return "unknown"
	}
	return signalNames[n]
}

// RawSample is one FPGA digital-input read: a timestamp and the 32-bit
// status word.
type RawSample struct {
	Timestamp time.Time
	Word      uint32
}

// SignalSettings configures how one named signal is decoded from the raw
// word and what severity its presence carries.
type SignalSettings struct {
	Decode severity.AllBitNotSetFunction
	Limit  severity.EqualLimit // evaluated against 1/0 of the decoded bool
}

// Settings configures an Evaluator: one SignalSettings per named signal,
// plus the heartbeat toggle cadence.
type Settings struct {
	Signals              [numSignals]SignalSettings
	HeartbeatTogglePeriod uint32
}

// DefaultSettings returns masks matching the SLOT4_DIS layout: the nine
// signals occupy bits 16-24 of the 32-bit word in listed order, one bit
// per signal, clear => active. This hardcoded table is the one
// cmd/thermalctl runs with and the one the unit tests use; no settings
// sub-document under the configuration root overrides it.
func DefaultSettings() Settings {
	s := Settings{HeartbeatTogglePeriod: 10}
	warnSignals := map[SignalName]bool{CellDoorOpen: true}
	for i := SignalName(0); i < numSignals; i++ {
		mask := uint64(1) << uint(16+int(i))
		sev := severity.Fault
		if warnSignals[i] {
			sev = severity.Warning
		}
		s.Signals[i] = SignalSettings{
			Decode: severity.AllBitNotSetFunction{Mask: mask},
			Limit:  severity.EqualLimit{Threshold: 1, Severity: sev},
		}
	}
	return s
}

// Data is the mutable interlock state, touched only by the controller
// goroutine.
type Data struct {
	State           State
	SampleTimestamp time.Time
	RawSample       uint32

	Active     [numSignals]bool
	Severities [numSignals]severity.Severity

	HeartbeatCommand bool
}

// SignalStatus is one named signal's current decoded state, for
// read-only observers (e.g. internal/webui) outside this package.
type SignalStatus struct {
	Name     string
	Active   bool
	Severity severity.Severity
}

// Signals reports every named signal's current status in fixed bit
// order.
func (d *Data) Signals() []SignalStatus {
	out := make([]SignalStatus, numSignals)
	for i := SignalName(0); i < numSignals; i++ {
		out[i] = SignalStatus{Name: i.String(), Active: d.Active[i], Severity: d.Severities[i]}
	}
	return out
}
