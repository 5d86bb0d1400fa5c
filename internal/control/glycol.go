// Package control implements the two periodic closed-loop control tasks:
// glycol-temperature control via the mixing valve, and FCU heater/fan
// demand from per-unit absolute temperature feedback.
package control

import "github.com/skytelescope/mirrortherm/internal/settings"

// GlycolLoop steps the mixing-valve commanded percent toward the applied
// glycol setpoint by a fixed step size whenever the measured-minus-target
// difference exceeds tolerance
type GlycolLoop struct {
	cfg          settings.SetpointSettings
	valvePercent float64
}

// NewGlycolLoop starts the commanded percent at a fixed 10%.
func NewGlycolLoop(cfg settings.SetpointSettings) *GlycolLoop {
	return &GlycolLoop{cfg: cfg, valvePercent: 10.0}
}

// Step computes the next mixing-valve commanded percent from the
// measured mirror-loop average and the currently applied glycol
// setpoint. ok is false when the measurement is within tolerance and no
// new command is needed.
func (g *GlycolLoop) Step(mirrorLoopAverage, appliedGlycolSetpoint float64) (percent float64, ok bool) {
	diff := mirrorLoopAverage - appliedGlycolSetpoint
	tolerance := g.cfg.Precision

	switch {
	case diff > tolerance:
		g.valvePercent += g.cfg.MixingValveStep
	case diff < -tolerance:
		g.valvePercent -= g.cfg.MixingValveStep
	default:
		return 0, false
	}

	if g.valvePercent > 100 {
		g.valvePercent = 100
	} else if g.valvePercent < 0 {
		g.valvePercent = 0
	}
	return g.valvePercent, true
}
