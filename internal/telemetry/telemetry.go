// Package telemetry publishes the named events and telemetry streams
// (summaryState, thermalData, heartbeat, flowMeter, ...) through a
// single Publisher interface, so the supervisor, control, valve, and
// device packages can publish without depending on Prometheus
// directly.
package telemetry

import "github.com/skytelescope/mirrortherm/internal/severity"

// SummaryState mirrors supervisory state names, independent
// of the internal/supervisor.State type, so this package has no import
// cycle back into the controller.
type SummaryState int

const (
	Offline SummaryState = iota
	Standby
	Disabled
	Enabled
	Engineering
	Fault
)

func (s SummaryState) String() string {
	names := [...]string{"Offline", "Standby", "Disabled", "Enabled", "Engineering", "Fault"}
	if int(s) < 0 || int(s) >= len(names) {
		return "Unknown"
	}
	return names[s]
}

// ThermalInfo is published on start/reconfiguration.
type ThermalInfo struct {
	Label  string
	NumFCU int
}

// ThermalData is the per-tick FCU poll summary.
type ThermalData struct {
	Differential []float64
	Absolute     []float64
	FanRPM       []float64
}

// FlowMeterSample is one flow-meter readout.
type FlowMeterSample struct {
	FlowRate    float64
	Temperature float64
	Severity    severity.Severity
}

// GlycolPumpSample is the pump VFD readout: decoded register fields
// plus the DriveStatus2 bits.
type GlycolPumpSample struct {
	RunningFrequencyHz float64
	Status2            uint32
	Fault              bool
}

// MixingValveSample reports the fine controller's current mode/position.
type MixingValveSample struct {
	Mode               string
	CurrentPercent     float64
	CompensatedPercent float64
}

// ErrorCode is a fault event: a numeric code paired with a human-
// readable report, published whenever a control task escalates.
type ErrorCode struct {
	Code   int
	Report string
}

// Publisher is the sink every controller component publishes through.
// The Prometheus-backed implementation lives in prometheus.go; a
// NoopPublisher is provided for tests that do not care about telemetry.
type Publisher interface {
	PublishSummaryState(s SummaryState)
	PublishEngineeringMode(enabled bool)
	PublishThermalInfo(info ThermalInfo)
	PublishThermalData(data ThermalData)
	PublishEnabledILC(mask uint64)
	PublishHeartbeat(command bool)
	PublishFlowMeter(sample FlowMeterSample)
	PublishGlycolLoopTemperature(setpoint, measured float64)
	PublishGlycolPump(sample GlycolPumpSample)
	PublishMixingValve(sample MixingValveSample)
	PublishAppliedSetpoint(glycol, heaters float64)
	PublishFCUTargets(heaterPWM, fanRPM []float64)
	PublishAirNozzles(installed, blocked, offset, covered, superShort int)
	PublishErrorCode(e ErrorCode)
	PublishLogLevel(level int)
}

// NoopPublisher discards every publication; useful where a collaborator
// is required but telemetry is out of scope for a given test.
type NoopPublisher struct{}

func (NoopPublisher) PublishSummaryState(SummaryState)                 {}
func (NoopPublisher) PublishEngineeringMode(bool)                      {}
func (NoopPublisher) PublishThermalInfo(ThermalInfo)                   {}
func (NoopPublisher) PublishThermalData(ThermalData)                   {}
func (NoopPublisher) PublishEnabledILC(uint64)                         {}
func (NoopPublisher) PublishHeartbeat(bool)                            {}
func (NoopPublisher) PublishFlowMeter(FlowMeterSample)                 {}
func (NoopPublisher) PublishGlycolLoopTemperature(float64, float64)    {}
func (NoopPublisher) PublishGlycolPump(GlycolPumpSample)               {}
func (NoopPublisher) PublishMixingValve(MixingValveSample)             {}
func (NoopPublisher) PublishAppliedSetpoint(float64, float64)          {}
func (NoopPublisher) PublishFCUTargets([]float64, []float64)           {}
func (NoopPublisher) PublishAirNozzles(int, int, int, int, int)        {}
func (NoopPublisher) PublishErrorCode(ErrorCode)                       {}
func (NoopPublisher) PublishLogLevel(int)                              {}
