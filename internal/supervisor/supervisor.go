// Package supervisor implements the supervisory state machine:
// Offline/Standby/Disabled/Enabled/Engineering/Fault, dispatching every
// RPC command onto the legal-transition table and the
// state-gated side effects (FCU mode broadcasts, glycol-pump power,
// cascaded interlock start/standby).
package supervisor

import (
	"sync"

	"github.com/skytelescope/mirrortherm/internal/command"
	"github.com/skytelescope/mirrortherm/internal/interlock"
	"github.com/skytelescope/mirrortherm/internal/safety"
	"github.com/skytelescope/mirrortherm/internal/settings"
	"github.com/skytelescope/mirrortherm/internal/telemetry"
)

// State names the supervisory modes
type State int

const (
	Offline State = iota
	Standby
	Disabled
	Enabled
	Engineering
	Fault
)

func (s State) String() string {
	names := [...]string{"Offline", "Standby", "Disabled", "Enabled", "Engineering", "Fault"}
	if int(s) < 0 || int(s) >= len(names) {
		return "Unknown"
	}
	return names[s]
}

func (s State) telemetry() telemetry.SummaryState { return telemetry.SummaryState(s) }

// Active reports whether supervisory state is Disabled, Enabled or
// Engineering, the states in which the interlock is running in its own
// Disabled (running, unlatched) state.
func (s State) Active() bool { return s == Disabled || s == Enabled || s == Engineering }

// ILCMode is one of the four broadcast modes sent to every enabled FCU
// address on state transitions.
type ILCMode int

const (
	ILCModeDisabled ILCMode = iota
	ILCModeEnabled
	ILCModeClearFaults
	ILCModeStandby
)

// FCUBus is the collaborator the controller drives on state transitions
// and outer-loop polling; the real Modbus-backed implementation lives in
// internal/device.
type FCUBus interface {
	BroadcastMode(mode ILCMode) error
	RequestServerID() error
	SetPower(on bool) error
	EnabledMask() uint64
	NumEnabled() int
}

// GlycolPump is the collaborator for powering the coolant pump VFD on
// start/disable, distinct from the engineering-only pump commands
// (start/stop/frequency/reset) handled directly by internal/device.
type GlycolPump interface {
	SetPower(on bool) error
}

// Interlock is the subset of *interlock.Context the supervisor cascades
// start/standby into; narrowed to an interface so tests can substitute a
// fake without building a full Model/Sampler.
type Interlock interface {
	Start() interlock.Result
	StandbyCmd() interlock.Result
	State() interlock.State
}

// SettingsLoader loads (or reloads) the named configuration, invoked on
// every `start`
type SettingsLoader func(label string) (*settings.Root, error)

// Controller owns the supervisory state and dispatches commands to it.
// State mutation happens only from the single controller goroutine that
// calls Dispatch; State() itself takes a read lock so external adapters
// can observe it concurrently.
type Controller struct {
	mu    sync.RWMutex
	state State

	engineeringModeFlag bool
	settings             *settings.Root
	label                string

	fcu       FCUBus
	pump      GlycolPump
	interlock Interlock
	loadFn    SettingsLoader
	publisher telemetry.Publisher
}

// New constructs a Controller in the Offline state.
func New(fcu FCUBus, pump GlycolPump, il Interlock, loadFn SettingsLoader, publisher telemetry.Publisher) *Controller {
	if publisher == nil {
		publisher = telemetry.NoopPublisher{}
	}
	return &Controller{state: Offline, fcu: fcu, pump: pump, interlock: il, loadFn: loadFn, publisher: publisher}
}

// State returns the current supervisory state under a read lock.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// EngineeringModeFlag reports whether engineering bypass mode is set.
// The outer-loop scheduler only runs the automatic glycol and
// heater/fan control tasks when state is Enabled and this flag is clear.
func (c *Controller) EngineeringModeFlag() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.engineeringModeFlag
}

// Settings returns the currently loaded configuration, or nil before the
// first `start`.
func (c *Controller) Settings() *settings.Root {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.settings
}

func (c *Controller) setState(s State) {
	c.state = s
	c.publisher.PublishSummaryState(s.telemetry())
}

// Dispatch executes one command against the current state, acking
// through cmd.Sink exactly once (plus any AckInProgress calls).
func (c *Controller) Dispatch(cmd command.Command) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch cmd.Kind {
	case command.Boot:
		c.dispatchBoot(cmd)
	case command.Update:
		c.dispatchUpdate(cmd)
	case command.Start:
		c.dispatchStart(cmd)
	case command.Standby:
		c.dispatchStandby(cmd)
	case command.Enable:
		c.dispatchEnable(cmd)
	case command.Disable:
		c.dispatchDisable(cmd)
	case command.ExitControl:
		c.dispatchExitControl(cmd)
	case command.EnterEngineering:
		c.dispatchEnterEngineering(cmd)
	case command.ExitEngineering:
		c.dispatchExitEngineering(cmd)
	case command.SetLogLevel:
		c.dispatchSetLogLevel(cmd)
	case command.SetEngineeringMode:
		c.dispatchSetEngineeringMode(cmd)
	case command.HeaterFanDemand, command.SetMixingValve,
		command.CoolantPumpPower, command.CoolantPumpStart, command.CoolantPumpStop,
		command.CoolantPumpFrequency, command.CoolantPumpReset:
		c.dispatchEngineeringOnly(cmd)
	case command.ApplySetpoint:
		c.dispatchApplySetpoint(cmd)
	default:
		cmd.Sink.AckFailed(command.InvalidParameter, "unknown command kind")
	}
}

func (c *Controller) dispatchBoot(cmd command.Command) {
	if c.state != Offline {
		cmd.Sink.AckNotPermitted(command.InvalidState, "boot is only legal from Offline")
		return
	}
	c.setState(Standby)
	cmd.Sink.AckComplete()
}

// dispatchUpdate is the self-transition every state but Offline accepts; it
// is also enqueued by the outer-loop scheduler. It carries no side
// effects of its own here: the interlock and control tasks are updated
// by their own owning goroutines, which Dispatch does not replace.
// Update exists on the supervisory command surface purely so `update`
// is a legal, acked no-op command in every state but Offline.
func (c *Controller) dispatchUpdate(cmd command.Command) {
	switch c.state {
	case Standby, Disabled, Enabled, Engineering, Fault:
		cmd.Sink.AckComplete()
	default:
		cmd.Sink.AckNotPermitted(command.InvalidState, "update is not legal from Offline")
	}
}

func (c *Controller) dispatchStart(cmd command.Command) {
	if c.state != Standby {
		cmd.Sink.AckNotPermitted(command.InvalidState, "start is only legal from Standby")
		return
	}
	loaded, err := c.loadFn(cmd.Params.ConfigurationLabel)
	if err != nil {
		cmd.Sink.AckFailed(command.InvalidParameter, "loading settings: "+err.Error())
		return
	}
	c.settings = loaded
	c.label = loaded.Label

	if res := c.interlock.Start(); res.Kind != interlock.ResultOk {
		cmd.Sink.AckFailed(command.ExecutionBlocked, "interlock start: "+res.Description)
		return
	}

	if loaded.GlycolPump.Enabled {
		if err := c.pump.SetPower(true); err != nil {
			cmd.Sink.AckFailed(command.ExecutionBlocked, "glycol pump power: "+err.Error())
			return
		}
	}
	_ = c.fcu.BroadcastMode(ILCModeDisabled)
	_ = c.fcu.RequestServerID()

	c.publisher.PublishThermalInfo(telemetry.ThermalInfo{Label: c.label, NumFCU: c.fcu.NumEnabled()})
	c.setState(Disabled)
	cmd.Sink.AckComplete()
}

func (c *Controller) dispatchStandby(cmd command.Command) {
	switch c.state {
	case Disabled, Fault:
	default:
		cmd.Sink.AckNotPermitted(command.InvalidState, "standby is only legal from Disabled or Fault")
		return
	}
	if res := c.interlock.StandbyCmd(); res.Kind != interlock.ResultOk {
		cmd.Sink.AckFailed(command.ExecutionBlocked, "interlock standby: "+res.Description)
		return
	}
	_ = c.fcu.BroadcastMode(ILCModeClearFaults)
	_ = c.fcu.BroadcastMode(ILCModeStandby)
	c.setState(Standby)
	cmd.Sink.AckComplete()
}

func (c *Controller) dispatchEnable(cmd command.Command) {
	if c.state != Disabled {
		cmd.Sink.AckNotPermitted(command.InvalidState, "enable is only legal from Disabled")
		return
	}
	_ = c.fcu.BroadcastMode(ILCModeEnabled)
	if err := c.fcu.SetPower(true); err != nil {
		cmd.Sink.AckFailed(command.ExecutionBlocked, "fcu power: "+err.Error())
		return
	}
	c.setState(Enabled)
	cmd.Sink.AckComplete()
}

func (c *Controller) dispatchDisable(cmd command.Command) {
	switch c.state {
	case Enabled, Engineering:
	default:
		cmd.Sink.AckNotPermitted(command.InvalidState, "disable is only legal from Enabled or Engineering")
		return
	}
	_ = c.fcu.BroadcastMode(ILCModeDisabled)
	_ = c.fcu.SetPower(false)
	_ = c.pump.SetPower(false)
	c.engineeringModeFlag = false
	c.publisher.PublishEngineeringMode(false)
	c.setState(Disabled)
	cmd.Sink.AckComplete()
}

func (c *Controller) dispatchExitControl(cmd command.Command) {
	if c.state != Standby {
		cmd.Sink.AckNotPermitted(command.InvalidState, "exitControl is only legal from Standby")
		return
	}
	c.setState(Offline)
	cmd.Sink.AckComplete()
}

func (c *Controller) dispatchEnterEngineering(cmd command.Command) {
	if c.state != Enabled {
		cmd.Sink.AckNotPermitted(command.InvalidState, "enterEngineering is only legal from Enabled")
		return
	}
	c.setState(Engineering)
	cmd.Sink.AckComplete()
}

func (c *Controller) dispatchExitEngineering(cmd command.Command) {
	if c.state != Engineering {
		cmd.Sink.AckNotPermitted(command.InvalidState, "exitEngineering is only legal from Engineering")
		return
	}
	c.setState(Enabled)
	cmd.Sink.AckComplete()
}

// dispatchSetLogLevel is legal in every state and has no effect on the
// state machine itself.
func (c *Controller) dispatchSetLogLevel(cmd command.Command) {
	c.publisher.PublishLogLevel(cmd.Params.LogLevel)
	cmd.Sink.AckComplete()
}

func (c *Controller) dispatchSetEngineeringMode(cmd command.Command) {
	switch c.state {
	case Enabled, Engineering:
	default:
		cmd.Sink.AckNotPermitted(command.InvalidState, "setEngineeringMode is only legal from Enabled or Engineering")
		return
	}
	c.engineeringModeFlag = cmd.Params.EnableEngineeringMode
	c.publisher.PublishEngineeringMode(c.engineeringModeFlag)
	cmd.Sink.AckComplete()
}

// dispatchEngineeringOnly routes the manual-actuator commands that are
// legal only in Engineering, InvalidState everywhere else. The actual device I/O is
// performed by internal/device collaborators wired in by internal/app;
// this dispatcher only gates state and acknowledges, since the device
// write itself is out of this package's concern.
func (c *Controller) dispatchEngineeringOnly(cmd command.Command) {
	if c.state != Engineering {
		cmd.Sink.AckNotPermitted(command.InvalidState, cmd.Kind.String()+" is only legal in Engineering")
		return
	}
	cmd.Sink.AckComplete()
}

func (c *Controller) dispatchApplySetpoint(cmd command.Command) {
	switch c.state {
	case Enabled, Engineering:
	default:
		cmd.Sink.AckNotPermitted(command.InvalidState, "applySetpoint is only legal from Enabled or Engineering")
		return
	}
	c.publisher.PublishAppliedSetpoint(cmd.Params.SetpointGlycol, cmd.Params.SetpointHeaters)
	cmd.Sink.AckComplete()
}

// Escalate implements the Fault-side-effect path: any
// caller that observes a *safety.Fault from a control task calls this to
// switch the supervisor into Fault and publish the ErrorCode event. It
// does not itself command the FPGA panic-safe state; that is the
// caller's responsibility (internal/app).
func (c *Controller) Escalate(fault *safety.Fault) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Fault {
		return
	}
	c.setState(Fault)
	c.publisher.PublishErrorCode(telemetry.ErrorCode{Code: int(fault.Code), Report: fault.Message})
}
