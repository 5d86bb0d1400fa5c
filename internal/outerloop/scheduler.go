// Package outerloop drives the 500ms supervisory cadence:
// it periodically enqueues the Update command while control is active and
// gates the slower glycol-temperature control task onto its own timestep.
package outerloop

import (
	"time"

	"github.com/skytelescope/mirrortherm/internal/command"
	"github.com/skytelescope/mirrortherm/internal/supervisor"
)

// TickResult reports what one Tick call decided to do, so callers (and
// tests) can observe scheduling decisions without re-deriving them.
//
// The FPGA heartbeat toggle is not scheduled here: internal/interlock's
// Model already maintains it as a tick counter against
// Settings.HeartbeatTogglePeriod, advanced once per interlock Update call
// (driven by the Update command this scheduler enqueues). A second,
// independent heartbeat clock here would race the same register.
type TickResult struct {
	UpdateEnqueued bool
	GlycolDue      bool
	HeaterFanDue   bool
}

// Scheduler runs the outer control loop: an Update command every tick
// while the controller is active, and the glycol-temperature and
// heater/fan control tasks on their own, slower timesteps whenever the
// plant is Enabled under automatic (non-engineering) control.
type Scheduler struct {
	queue      *command.Queue
	controller *supervisor.Controller

	glycolTimestep  time.Duration
	lastGlycolRun   time.Time
	glycolScheduled bool

	heaterFanTimestep  time.Duration
	lastHeaterFanRun   time.Time
	heaterFanScheduled bool
}

// NewScheduler builds a Scheduler. glycolTimestep and heaterFanTimestep
// come from settings.SetpointSettings and settings.HeatersSettings
// respectively in production use.
func NewScheduler(queue *command.Queue, controller *supervisor.Controller, glycolTimestep, heaterFanTimestep time.Duration) *Scheduler {
	return &Scheduler{
		queue:             queue,
		controller:        controller,
		glycolTimestep:    glycolTimestep,
		heaterFanTimestep: heaterFanTimestep,
	}
}

// Tick executes one cadence step at the given time:
//  1. while the supervisor is active, enqueue an Update command (which
//     drives the interlock evaluator, and with it the FPGA heartbeat);
//  2. schedule the glycol task when Enabled and not under engineering
//     override, fire it on the first tick after it is scheduled, and
//     again each time its timestep has elapsed since the last run;
//  3. likewise for the heater/fan control task, gated the same way since
//     it is also superseded by a direct heaterFanDemand command in
//     Engineering.
func (s *Scheduler) Tick(now time.Time) TickResult {
	var result TickResult

	state := s.controller.State()
	if state.Active() {
		s.queue.Push(command.Command{Kind: command.Update, Sink: command.NullSink{}, Submitted: now})
		result.UpdateEnqueued = true
	}

	automatic := state == supervisor.Enabled && !s.controller.EngineeringModeFlag()

	if automatic && !s.glycolScheduled {
		s.glycolScheduled = true
		s.lastGlycolRun = now.Add(-s.glycolTimestep)
	} else if !automatic {
		s.glycolScheduled = false
	}
	if s.glycolScheduled && now.Sub(s.lastGlycolRun) >= s.glycolTimestep {
		result.GlycolDue = true
		s.lastGlycolRun = now
	}

	if automatic && !s.heaterFanScheduled {
		s.heaterFanScheduled = true
		s.lastHeaterFanRun = now.Add(-s.heaterFanTimestep)
	} else if !automatic {
		s.heaterFanScheduled = false
	}
	if s.heaterFanScheduled && now.Sub(s.lastHeaterFanRun) >= s.heaterFanTimestep {
		result.HeaterFanDue = true
		s.lastHeaterFanRun = now
	}

	return result
}
