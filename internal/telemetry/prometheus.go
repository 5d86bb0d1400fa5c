package telemetry

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusPublisher registers one gauge/gauge-vec family per telemetry
// stream, lazily creating per-unit vec members as FCU count becomes known.
type PrometheusPublisher struct {
	mu sync.Mutex

	summaryState     prometheus.Gauge
	engineeringMode  prometheus.Gauge
	numFCU           prometheus.Gauge
	thermalDiff      *prometheus.GaugeVec
	thermalAbs       *prometheus.GaugeVec
	thermalFan       *prometheus.GaugeVec
	enabledILCMask   prometheus.Gauge
	heartbeat        prometheus.Gauge
	flowRate         prometheus.Gauge
	flowTemp         prometheus.Gauge
	flowSeverity     prometheus.Gauge
	glycolSetpoint   prometheus.Gauge
	glycolMeasured   prometheus.Gauge
	pumpFrequency    prometheus.Gauge
	pumpStatus2      prometheus.Gauge
	pumpFault        prometheus.Gauge
	valveCurrent     prometheus.Gauge
	valveCompensated prometheus.Gauge
	valveMode        *prometheus.GaugeVec
	appliedGlycol    prometheus.Gauge
	appliedHeaters   prometheus.Gauge
	fcuHeaterTarget  *prometheus.GaugeVec
	fcuFanTarget     *prometheus.GaugeVec
	nozzleCounts     *prometheus.GaugeVec
	errorCode        prometheus.Gauge
	logLevel         prometheus.Gauge
}

// NewPrometheusPublisher constructs and registers every metric family
// against reg (pass prometheus.DefaultRegisterer from cmd/thermalctl).
func NewPrometheusPublisher(reg prometheus.Registerer) *PrometheusPublisher {
	p := &PrometheusPublisher{
		summaryState:     gauge("therm_summary_state", "Supervisory state (0=Offline..5=Fault)"),
		engineeringMode:  gauge("therm_engineering_mode", "1 when engineering mode is set"),
		numFCU:           gauge("therm_num_fcu", "Configured FCU count"),
		thermalDiff:      gaugeVec("therm_fcu_differential_temperature_celsius", "Per-FCU differential temperature", "addr"),
		thermalAbs:       gaugeVec("therm_fcu_absolute_temperature_celsius", "Per-FCU absolute temperature", "addr"),
		thermalFan:       gaugeVec("therm_fcu_fan_rpm", "Per-FCU fan RPM", "addr"),
		enabledILCMask:   gauge("therm_enabled_ilc_mask", "Bitmask of enabled FCU addresses"),
		heartbeat:        gauge("therm_heartbeat_command", "Current software heartbeat toggle value"),
		flowRate:         gauge("therm_flow_rate", "Glycol flow rate"),
		flowTemp:         gauge("therm_flow_temperature_celsius", "Glycol flow temperature"),
		flowSeverity:     gauge("therm_flow_severity", "Flow meter severity"),
		glycolSetpoint:   gauge("therm_glycol_setpoint_celsius", "Glycol loop setpoint"),
		glycolMeasured:   gauge("therm_glycol_measured_celsius", "Glycol loop measured temperature"),
		pumpFrequency:    gauge("therm_glycol_pump_frequency_hz", "Glycol pump VFD running frequency"),
		pumpStatus2:      gauge("therm_glycol_pump_status2", "Glycol pump VFD DriveStatus2 bitmask"),
		pumpFault:        gauge("therm_glycol_pump_fault", "1 when the pump VFD reports a fault"),
		valveCurrent:     gauge("therm_mixing_valve_percent", "Mixing valve current position, 0-100%"),
		valveCompensated: gauge("therm_mixing_valve_compensated_percent", "Mixing valve backlash-compensated target, 0-100%"),
		valveMode:        gaugeVec("therm_mixing_valve_mode", "Fine-controller mode, one-hot", "mode"),
		appliedGlycol:    gauge("therm_applied_setpoint_glycol_celsius", "Last applied glycol setpoint"),
		appliedHeaters:   gauge("therm_applied_setpoint_heaters_celsius", "Last applied heaters setpoint"),
		fcuHeaterTarget:  gaugeVec("therm_fcu_heater_pwm_target_percent", "Per-FCU heater PWM target", "addr"),
		fcuFanTarget:     gaugeVec("therm_fcu_fan_rpm_target", "Per-FCU fan RPM target", "addr"),
		nozzleCounts:     gaugeVec("therm_air_nozzle_count", "Air nozzle count by type", "type"),
		errorCode:        gauge("therm_last_error_code", "Last ErrorCode event code"),
		logLevel:         gauge("therm_log_level", "Current configured log level"),
	}
	for _, c := range p.collectors() {
		reg.MustRegister(c)
	}
	return p
}

func (p *PrometheusPublisher) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		p.summaryState, p.engineeringMode, p.numFCU, p.thermalDiff, p.thermalAbs, p.thermalFan,
		p.enabledILCMask, p.heartbeat, p.flowRate, p.flowTemp, p.flowSeverity,
		p.glycolSetpoint, p.glycolMeasured, p.pumpFrequency, p.pumpStatus2, p.pumpFault,
		p.valveCurrent, p.valveCompensated, p.valveMode, p.appliedGlycol, p.appliedHeaters,
		p.fcuHeaterTarget, p.fcuFanTarget, p.nozzleCounts, p.errorCode, p.logLevel,
	}
}

func gauge(name, help string) prometheus.Gauge {
	return prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: help})
}

func gaugeVec(name, help string, label string) *prometheus.GaugeVec {
	return prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: help}, []string{label})
}

func (p *PrometheusPublisher) PublishSummaryState(s SummaryState) {
	p.summaryState.Set(float64(s))
}

func (p *PrometheusPublisher) PublishEngineeringMode(enabled bool) {
	p.engineeringMode.Set(boolToFloat(enabled))
}

func (p *PrometheusPublisher) PublishThermalInfo(info ThermalInfo) {
	p.numFCU.Set(float64(info.NumFCU))
}

func (p *PrometheusPublisher) PublishThermalData(data ThermalData) {
	for i, v := range data.Differential {
		p.thermalDiff.WithLabelValues(fmt.Sprintf("%d", i)).Set(v)
	}
	for i, v := range data.Absolute {
		p.thermalAbs.WithLabelValues(fmt.Sprintf("%d", i)).Set(v)
	}
	for i, v := range data.FanRPM {
		p.thermalFan.WithLabelValues(fmt.Sprintf("%d", i)).Set(v)
	}
}

func (p *PrometheusPublisher) PublishEnabledILC(mask uint64) {
	p.enabledILCMask.Set(float64(mask))
}

func (p *PrometheusPublisher) PublishHeartbeat(command bool) {
	p.heartbeat.Set(boolToFloat(command))
}

func (p *PrometheusPublisher) PublishFlowMeter(sample FlowMeterSample) {
	p.flowRate.Set(sample.FlowRate)
	p.flowTemp.Set(sample.Temperature)
	p.flowSeverity.Set(float64(sample.Severity))
}

func (p *PrometheusPublisher) PublishGlycolLoopTemperature(setpoint, measured float64) {
	p.glycolSetpoint.Set(setpoint)
	p.glycolMeasured.Set(measured)
}

func (p *PrometheusPublisher) PublishGlycolPump(sample GlycolPumpSample) {
	p.pumpFrequency.Set(sample.RunningFrequencyHz)
	p.pumpStatus2.Set(float64(sample.Status2))
	p.pumpFault.Set(boolToFloat(sample.Fault))
}

func (p *PrometheusPublisher) PublishMixingValve(sample MixingValveSample) {
	p.valveCurrent.Set(sample.CurrentPercent)
	p.valveCompensated.Set(sample.CompensatedPercent)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.valveMode.Reset()
	p.valveMode.WithLabelValues(sample.Mode).Set(1)
}

func (p *PrometheusPublisher) PublishAppliedSetpoint(glycol, heaters float64) {
	p.appliedGlycol.Set(glycol)
	p.appliedHeaters.Set(heaters)
}

func (p *PrometheusPublisher) PublishFCUTargets(heaterPWM, fanRPM []float64) {
	for i, v := range heaterPWM {
		p.fcuHeaterTarget.WithLabelValues(fmt.Sprintf("%d", i)).Set(v)
	}
	for i, v := range fanRPM {
		p.fcuFanTarget.WithLabelValues(fmt.Sprintf("%d", i)).Set(v)
	}
}

func (p *PrometheusPublisher) PublishAirNozzles(installed, blocked, offset, covered, superShort int) {
	p.nozzleCounts.WithLabelValues("Installed").Set(float64(installed))
	p.nozzleCounts.WithLabelValues("Blocked").Set(float64(blocked))
	p.nozzleCounts.WithLabelValues("Offset").Set(float64(offset))
	p.nozzleCounts.WithLabelValues("Covered").Set(float64(covered))
	p.nozzleCounts.WithLabelValues("SuperShort").Set(float64(superShort))
}

func (p *PrometheusPublisher) PublishErrorCode(e ErrorCode) {
	p.errorCode.Set(float64(e.Code))
}

func (p *PrometheusPublisher) PublishLogLevel(level int) {
	p.logLevel.Set(float64(level))
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
