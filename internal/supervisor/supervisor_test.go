package supervisor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skytelescope/mirrortherm/internal/command"
	"github.com/skytelescope/mirrortherm/internal/interlock"
	"github.com/skytelescope/mirrortherm/internal/settings"
)

type fakeFCU struct {
	modes   []ILCMode
	powered bool
	mask    uint64
}

func (f *fakeFCU) BroadcastMode(mode ILCMode) error { f.modes = append(f.modes, mode); return nil }
func (f *fakeFCU) RequestServerID() error           { return nil }
func (f *fakeFCU) SetPower(on bool) error           { f.powered = on; return nil }
func (f *fakeFCU) EnabledMask() uint64              { return f.mask }
func (f *fakeFCU) NumEnabled() int                  { return 8 }

type fakePump struct {
	powered bool
}

func (p *fakePump) SetPower(on bool) error { p.powered = on; return nil }

type fakeInterlock struct {
	state    interlock.State
	startRes interlock.Result
}

func (f *fakeInterlock) Start() interlock.Result {
	f.state = interlock.Disabled
	return f.startRes
}
func (f *fakeInterlock) StandbyCmd() interlock.Result {
	f.state = interlock.Standby
	return interlock.Result{Kind: interlock.ResultOk}
}
func (f *fakeInterlock) State() interlock.State { return f.state }

func newTestController() (*Controller, *fakeFCU, *fakePump, *fakeInterlock) {
	fcu := &fakeFCU{}
	pump := &fakePump{}
	il := &fakeInterlock{startRes: interlock.Result{Kind: interlock.ResultOk}}
	loadFn := func(label string) (*settings.Root, error) { return settings.Default(), nil }
	c := New(fcu, pump, il, loadFn, nil)
	return c, fcu, pump, il
}

func dispatchSync(c *Controller, kind command.Kind, params command.Params) *command.ChanSink {
	sink := command.NewChanSink()
	c.Dispatch(command.Command{Kind: kind, Params: params, Sink: sink})
	return sink
}

// boot, start, enable reaches Enabled; disable, standby, exitControl
// returns to Offline.
func TestBootStartEnableDisableStandbyExit(t *testing.T) {
	c, fcu, pump, _ := newTestController()

	require.Equal(t, command.AckComplete, dispatchSync(c, command.Boot, command.Params{}).Last().State)
	assert.Equal(t, Standby, c.State())

	require.Equal(t, command.AckComplete, dispatchSync(c, command.Start, command.Params{ConfigurationLabel: "Default"}).Last().State)
	assert.Equal(t, Disabled, c.State())
	assert.True(t, pump.powered)
	assert.Contains(t, fcu.modes, ILCModeDisabled)

	require.Equal(t, command.AckComplete, dispatchSync(c, command.Enable, command.Params{}).Last().State)
	assert.Equal(t, Enabled, c.State())
	assert.True(t, fcu.powered)

	require.Equal(t, command.AckComplete, dispatchSync(c, command.Disable, command.Params{}).Last().State)
	assert.Equal(t, Disabled, c.State())
	assert.False(t, fcu.powered)
	assert.False(t, pump.powered)

	require.Equal(t, command.AckComplete, dispatchSync(c, command.Standby, command.Params{}).Last().State)
	assert.Equal(t, Standby, c.State())

	require.Equal(t, command.AckComplete, dispatchSync(c, command.ExitControl, command.Params{}).Last().State)
	assert.Equal(t, Offline, c.State())
}

// Command submitted during the wrong state: Standby, submit enable.
func TestEnableFromStandbyRejected(t *testing.T) {
	c, _, _, _ := newTestController()
	dispatchSync(c, command.Boot, command.Params{})
	require.Equal(t, Standby, c.State())

	ack := dispatchSync(c, command.Enable, command.Params{})
	assert.Equal(t, command.AckNotPermitted, ack.Last().State)
	assert.Equal(t, command.InvalidState, ack.Last().Kind)
	assert.Equal(t, Standby, c.State())
}

func TestEngineeringOnlyCommandsGatedToEngineering(t *testing.T) {
	c, _, _, _ := newTestController()
	dispatchSync(c, command.Boot, command.Params{})
	dispatchSync(c, command.Start, command.Params{})
	dispatchSync(c, command.Enable, command.Params{})
	require.Equal(t, Enabled, c.State())

	ack := dispatchSync(c, command.SetMixingValve, command.Params{MixingValveTarget: 50})
	assert.Equal(t, command.AckNotPermitted, ack.Last().State)

	dispatchSync(c, command.EnterEngineering, command.Params{})
	require.Equal(t, Engineering, c.State())

	ack = dispatchSync(c, command.SetMixingValve, command.Params{MixingValveTarget: 50})
	assert.Equal(t, command.AckComplete, ack.Last().State)

	ack = dispatchSync(c, command.ExitEngineering, command.Params{})
	assert.Equal(t, command.AckComplete, ack.Last().State)
	assert.Equal(t, Enabled, c.State())
}

func TestApplySetpointRequiresActiveControl(t *testing.T) {
	c, _, _, _ := newTestController()
	ack := dispatchSync(c, command.ApplySetpoint, command.Params{SetpointGlycol: 8, SetpointHeaters: 12})
	assert.Equal(t, command.AckNotPermitted, ack.Last().State)

	dispatchSync(c, command.Boot, command.Params{})
	dispatchSync(c, command.Start, command.Params{})
	dispatchSync(c, command.Enable, command.Params{})
	ack = dispatchSync(c, command.ApplySetpoint, command.Params{SetpointGlycol: 8, SetpointHeaters: 12})
	assert.Equal(t, command.AckComplete, ack.Last().State)
}

func TestSetLogLevelLegalInEveryState(t *testing.T) {
	c, _, _, _ := newTestController()
	ack := dispatchSync(c, command.SetLogLevel, command.Params{LogLevel: 3})
	assert.Equal(t, command.AckComplete, ack.Last().State)
	assert.Equal(t, Offline, c.State())
}
