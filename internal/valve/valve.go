// Package valve implements the mixing-valve fine controller: a
// four-state machine layering backlash compensation and move-timeout
// supervision on top of the raw valve position.
package valve

import (
	"math"
	"sync"
	"time"

	"github.com/skytelescope/mirrortherm/internal/safety"
	"github.com/skytelescope/mirrortherm/internal/settings"
)

// Mode names the fine-controller states
type Mode int

const (
	MovingToCompensatedTarget Mode = iota
	MovingToTarget
	OnTarget
	Faulted
)

func (m Mode) String() string {
	switch m {
	case MovingToCompensatedTarget:
		return "MovingToCompensatedTarget"
	case MovingToTarget:
		return "MovingToTarget"
	case OnTarget:
		return "OnTarget"
	case Faulted:
		return "Faulted"
	default:
		return "Unknown"
	}
}

// FineController tracks the compensated/target setpoints and move
// deadline across calls to SetTarget/GetTarget behind a mutex, so the
// outer-loop poll and a concurrent SetTarget command never race.
type FineController struct {
	mu sync.Mutex

	cfg settings.MixingValveSettings

	mode                Mode
	lastSetpoint        float64
	compensatedSetpoint float64
	moveDeadline        time.Time
}

// NewFineController starts OnTarget with a move deadline twice
// maxMovingTime out, so a stale deadline can never look newly expired.
func NewFineController(cfg settings.MixingValveSettings, now time.Time) *FineController {
	return &FineController{
		cfg:                 cfg,
		mode:                OnTarget,
		compensatedSetpoint: math.NaN(),
		moveDeadline:        now.Add(2 * durationFromSeconds(cfg.MaxMovingTime)),
	}
}

func durationFromSeconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func (f *FineController) Mode() Mode {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mode
}

// SetTarget records a new commanded percent, computing the
// backlash-compensated intermediate target when the move is small
// (≤ minimalMove) and re-arming the move deadline
func (f *FineController) SetTarget(demand float64, now time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if demand == f.lastSetpoint {
		return
	}

	backlash := f.cfg.BacklashStep
	if math.Abs(demand-f.lastSetpoint) > f.cfg.MinimalMove {
		f.mode = MovingToTarget
	} else {
		f.mode = MovingToCompensatedTarget
		if demand < f.lastSetpoint {
			if demand < backlash {
				f.compensatedSetpoint = f.lastSetpoint + backlash
			} else {
				f.compensatedSetpoint = demand - backlash
			}
		} else {
			if demand > (100 - backlash) {
				f.compensatedSetpoint = f.lastSetpoint - backlash
			} else {
				f.compensatedSetpoint = demand + backlash
			}
		}
	}
	f.lastSetpoint = demand
	f.moveDeadline = now.Add(durationFromSeconds(f.cfg.MaxMovingTime))
}

// GetTarget advances the state machine against the current valve
// position. ok is false when there is nothing new to command (the
// controller is idle or faulted); fault is non-nil when this call
// tripped a safety escalation.
func (f *FineController) GetTarget(valvePosition float64, now time.Time) (target float64, ok bool, fault *safety.Fault) {
	f.mu.Lock()
	defer f.mu.Unlock()

	debounceFloor := durationFromSeconds(f.cfg.MaxMovingTime * 0.8)
	transition := f.moveDeadline.Sub(now) < debounceFloor

	switch f.mode {
	case MovingToCompensatedTarget:
		if math.Abs(valvePosition-f.compensatedSetpoint) < f.cfg.InPosition && transition {
			f.mode = MovingToTarget
			f.moveDeadline = now.Add(durationFromSeconds(f.cfg.MaxMovingTime))
			return f.lastSetpoint, true, nil
		}
		if !now.Before(f.moveDeadline) {
			f.mode = Faulted
			return 0, false, safety.New(safety.MixingValveTimeout,
				"timeout moving to compensated target value (valve_position is %v, demand is %v)",
				valvePosition, f.compensatedSetpoint)
		}
		return f.compensatedSetpoint, true, nil

	case MovingToTarget:
		if math.Abs(valvePosition-f.lastSetpoint) < f.cfg.InPosition && transition {
			f.mode = OnTarget
			return 0, false, nil
		}
		if !now.Before(f.moveDeadline) {
			f.mode = Faulted
			return 0, false, safety.New(safety.MixingValveTimeout,
				"timeout moving to target value (valve_position is %v, demand is %v)",
				valvePosition, f.lastSetpoint)
		}
		return f.lastSetpoint, true, nil

	case OnTarget:
		if math.Abs(valvePosition-f.lastSetpoint) >= f.cfg.InPosition {
			f.mode = Faulted
			return 0, false, safety.New(safety.MixingValveMovedOutOfTarget,
				"moved out of target while on target: %v, demand was %v", valvePosition, f.lastSetpoint)
		}
		return 0, false, nil

	case Faulted:
		return 0, false, nil

	default:
		return f.lastSetpoint, true, nil
	}
}
