package interlock

import (
	"fmt"

	"github.com/skytelescope/mirrortherm/internal/severity"
)

// State names the three interlock states
type State int

const (
	Standby State = iota
	Disabled
	Fault
)

func (s State) String() string {
	switch s {
	case Standby:
		return "Standby"
	case Disabled:
		return "Disabled"
	case Fault:
		return "Fault"
	default:
		return "Unknown"
	}
}

// ResultKind is the outcome of dispatching one command to the interlock
// state machine: acceptance, a fault transition, or no state change.
type ResultKind int

const (
	ResultOk ResultKind = iota
	ResultNoStateTransition
	ResultFault
	ResultInvalidState
)

// Result is returned by every Context method.
type Result struct {
	Kind        ResultKind
	Description string
}

// Context owns the current interlock state and the shared Model, and
// dispatches update/start/standby to the state-specific handler: a
// tagged State plus per-state handler functions rather than a class
// hierarchy.
type Context struct {
	model *Model
	state State
}

func NewContext(model *Model) *Context {
	return &Context{model: model, state: Standby}
}

func (c *Context) State() State { return c.state }

func (c *Context) invalid(cmd string) Result {
	return Result{Kind: ResultInvalidState, Description: fmt.Sprintf("the interlock system cannot execute the %s command from the %s state", cmd, c.state)}
}

// computeSeverities evaluates every signal's per-signal Limit from its
// already-decoded boolean state and combines them into one overall
// severity.
func (c *Context) computeSeverities() severity.Severity {
	data := c.model.Data()
	settings := c.model.Settings()
	merged := severity.Unknown
	for i := SignalName(0); i < numSignals; i++ {
		var x int64
		if data.Active[i] {
			x = 1
		}
		sev := settings.Signals[i].Limit.Evaluate(x)
		data.Severities[i] = sev
		merged = severity.Merge(merged, sev)
	}
	return merged
}

// Update dispatches the update command to the current state's handler.
func (c *Context) Update() Result {
	switch c.state {
	case Standby:
		c.model.Update()
		c.computeSeverities()
		return Result{Kind: ResultNoStateTransition}
	case Disabled:
		c.model.Update()
		merged := c.computeSeverities()
		if merged == severity.Fault {
			c.state = Fault
			desc := "merged interlock severity reached Fault"
			return Result{Kind: ResultFault, Description: desc}
		}
		return Result{Kind: ResultNoStateTransition}
	case Fault:
		// Observability only; do not transition.
		c.model.Update()
		c.computeSeverities()
		return Result{Kind: ResultNoStateTransition}
	default:
		return c.invalid("update")
	}
}

// Start dispatches the start command: only legal from Standby.
func (c *Context) Start() Result {
	if c.state != Standby {
		return c.invalid("start")
	}
	c.state = Disabled
	return Result{Kind: ResultOk}
}

// StandbyCmd dispatches the standby command: legal from Disabled and Fault.
func (c *Context) StandbyCmd() Result {
	switch c.state {
	case Disabled, Fault:
		c.state = Standby
		return Result{Kind: ResultOk}
	default:
		return c.invalid("standby")
	}
}
