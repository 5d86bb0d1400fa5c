// Package settings implements the typed, version-selected settings model:
// a root YAML document fanning out into per-subsystem sub-documents,
// plus the saved-setpoints and nozzle-table loaders.
//
// Parsed with gopkg.in/yaml.v3, the only directly-imported YAML
// library in the retrieval pack.
package settings

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/skytelescope/mirrortherm/internal/severity"
)

// FlowMeterSettings configures the flow-meter Modbus readout.
type FlowMeterSettings struct {
	Host           string  `yaml:"host"`
	Port           int     `yaml:"port"`
	UnitID         uint8   `yaml:"unitId"`
	PollIntervalMs int     `yaml:"pollIntervalMs"`
	FlowRateLow    float64 `yaml:"flowRateLow"`
}

// GlycolPumpSettings configures whether the pump is powered at Start, and
// the pump VFD's Modbus address.
type GlycolPumpSettings struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	UnitID  uint8  `yaml:"unitId"`
}

// MixingValveSettings carries the four fixed calibration points defining
// the two linear maps (commanded<->percent, position<->percent), plus the
// fine-controller tuning
type MixingValveSettings struct {
	// CommandedAtZeroPercent/CommandedAtHundredPercent and
	// PositionAtZeroPercent/PositionAtHundredPercent are the four fixed
	// points defining the two linear maps.
	CommandedAtZeroPercent    float64 `yaml:"commandedAtZeroPercent"`
	CommandedAtHundredPercent float64 `yaml:"commandedAtHundredPercent"`
	PositionAtZeroPercent     float64 `yaml:"positionAtZeroPercent"`
	PositionAtHundredPercent  float64 `yaml:"positionAtHundredPercent"`

	MinimalMove   float64 `yaml:"minimalMove"`
	BacklashStep  float64 `yaml:"backlashStep"`
	InPosition    float64 `yaml:"inPosition"`
	MaxMovingTime float64 `yaml:"maxMovingTime"` // seconds
}

// PercentsToCommanded maps a commanded valve position, 0-100%, onto the
// device-commanded float "configured linear mapping".
func (m MixingValveSettings) PercentsToCommanded(percent float64) float64 {
	return severity.LinearFromTwoPoints(0, m.CommandedAtZeroPercent, 100, m.CommandedAtHundredPercent).Evaluate(percent)
}

// PositionToPercents maps a raw position readout onto a 0-100% value.
func (m MixingValveSettings) PositionToPercents(position float64) float64 {
	return severity.LinearFromTwoPoints(m.PositionAtZeroPercent, 0, m.PositionAtHundredPercent, 100).Evaluate(position)
}

// HeatersSettings configures the FCU heater/fan control task.
type HeatersSettings struct {
	IntervalSeconds float64 `yaml:"interval"`
	HeatersSetpoint float64 `yaml:"heatersSetpoint"`
}

// SetpointSettings configures the glycol-temperature control task
// and the saved-setpoints policy.
type SetpointSettings struct {
	TimestepSeconds       float64 `yaml:"timestep"`
	Precision             float64 `yaml:"precision"`
	MixingValveStep       float64 `yaml:"mixingValveStep"`
	Low                   float64 `yaml:"low"`
	High                  float64 `yaml:"high"`
	SavedSetpointsMaxAge  int64   `yaml:"savedSetpointsMaxAge"` // seconds
}

// FCUSettings configures the FCU population and auto-disable policy.
type FCUSettings struct {
	NumILC           int     `yaml:"numIlc"`
	Host             string  `yaml:"host"`
	Port             int     `yaml:"port"`
	AutoDisable      bool    `yaml:"autoDisable"`
	FailuresToDisable int    `yaml:"failuresToDisable"`
	HeaterFanIntervalS float64 `yaml:"heaterFanInterval"`
}

// FPGASettings configures the Modbus/TCP address of the interlock/valve
// FPGA (digital inputs, heartbeat, mixing valve, thermocouple FIFO).
type FPGASettings struct {
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	UnitID uint8  `yaml:"unitId"`
}

// Root is the fully-loaded, immutable settings snapshot the controller
// holds and replaces wholesale on each `start`.
type Root struct {
	Label      string
	FlowMeter  FlowMeterSettings  `yaml:"FlowMeter"`
	GlycolPump GlycolPumpSettings `yaml:"GlycolPump"`
	MixingValve MixingValveSettings `yaml:"MixingValve"`
	Heaters    HeatersSettings    `yaml:"Heaters"`
	Setpoint   SetpointSettings   `yaml:"Setpoint"`
	FCU        FCUSettings        `yaml:"FCU"`
	FPGA       FPGASettings       `yaml:"FPGA"`
}

// rootDoc mirrors the top-level _init.yaml, whose keys name sub-documents
// to load. Each value is either an inline mapping or a
// filename string; this loader accepts inline mappings, which is what the
// generated default settings and the tests use.
type rootDoc struct {
	FlowMeter   yaml.Node `yaml:"FlowMeter"`
	GlycolPump  yaml.Node `yaml:"GlycolPump"`
	MixingValve yaml.Node `yaml:"MixingValve"`
	Heaters     yaml.Node `yaml:"Heaters"`
	Setpoint    yaml.Node `yaml:"Setpoint"`
	FCU         yaml.Node `yaml:"FCU"`
	FPGA        yaml.Node `yaml:"FPGA"`
}

// Load reads $CFG/v1/<label>.yaml (default label "Default") and its
// sub-documents configuration root layout.
func Load(configRoot, label string) (*Root, error) {
	if label == "" {
		label = "Default"
	}
	path := filepath.Join(configRoot, "v1", label+".yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading settings %q: %w", path, err)
	}
	return parse(data, label)
}

func parse(data []byte, label string) (*Root, error) {
	var doc rootDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing settings yaml: %w", err)
	}

	root := &Root{Label: label}
	decoders := []struct {
		name string
		node yaml.Node
		out  interface{}
	}{
		{"FlowMeter", doc.FlowMeter, &root.FlowMeter},
		{"GlycolPump", doc.GlycolPump, &root.GlycolPump},
		{"MixingValve", doc.MixingValve, &root.MixingValve},
		{"Heaters", doc.Heaters, &root.Heaters},
		{"Setpoint", doc.Setpoint, &root.Setpoint},
		{"FCU", doc.FCU, &root.FCU},
		{"FPGA", doc.FPGA, &root.FPGA},
	}
	for _, d := range decoders {
		if d.node.Kind == 0 {
			return nil, fmt.Errorf("settings missing required key %q (line %d)", d.name, d.node.Line)
		}
		if err := d.node.Decode(d.out); err != nil {
			return nil, fmt.Errorf("decoding %q (line %d): %w", d.name, d.node.Line, err)
		}
	}
	return root, nil
}

// Default returns a settings tree usable without a configuration root, for
// tests and the scenario fixtures
func Default() *Root {
	return &Root{
		Label: "Default",
		FlowMeter: FlowMeterSettings{
			Host: "127.0.0.1", Port: 502, UnitID: 1, PollIntervalMs: 2000, FlowRateLow: 2.0,
		},
		GlycolPump: GlycolPumpSettings{Enabled: true, Host: "127.0.0.1", Port: 502, UnitID: 2},
		MixingValve: MixingValveSettings{
			CommandedAtZeroPercent: 0, CommandedAtHundredPercent: 10,
			PositionAtZeroPercent: 0, PositionAtHundredPercent: 100,
			MinimalMove: 5, BacklashStep: 3, InPosition: 0.1, MaxMovingTime: 2,
		},
		Heaters: HeatersSettings{IntervalSeconds: 1, HeatersSetpoint: 12},
		Setpoint: SetpointSettings{
			TimestepSeconds: 60, Precision: 0.05, MixingValveStep: 1,
			Low: 2, High: 18, SavedSetpointsMaxAge: 86400,
		},
		FCU: FCUSettings{NumILC: 8, Host: "127.0.0.1", Port: 502, AutoDisable: true, FailuresToDisable: 5, HeaterFanIntervalS: 60},
		FPGA: FPGASettings{Host: "127.0.0.1", Port: 502, UnitID: 3},
	}
}
