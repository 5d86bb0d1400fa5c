package outerloop

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skytelescope/mirrortherm/internal/command"
	"github.com/skytelescope/mirrortherm/internal/interlock"
	"github.com/skytelescope/mirrortherm/internal/settings"
	"github.com/skytelescope/mirrortherm/internal/supervisor"
)

type fakeFCU struct{ mask uint64 }

func (f *fakeFCU) BroadcastMode(mode supervisor.ILCMode) error { return nil }
func (f *fakeFCU) RequestServerID() error                      { return nil }
func (f *fakeFCU) SetPower(on bool) error                      { return nil }
func (f *fakeFCU) EnabledMask() uint64                         { return f.mask }
func (f *fakeFCU) NumEnabled() int                             { return 8 }

type fakePump struct{}

func (p *fakePump) SetPower(on bool) error { return nil }

type fakeInterlock struct{ state interlock.State }

func (f *fakeInterlock) Start() interlock.Result {
	f.state = interlock.Disabled
	return interlock.Result{Kind: interlock.ResultOk}
}
func (f *fakeInterlock) StandbyCmd() interlock.Result {
	f.state = interlock.Standby
	return interlock.Result{Kind: interlock.ResultOk}
}
func (f *fakeInterlock) State() interlock.State { return f.state }

func newTestController() *supervisor.Controller {
	loadFn := func(label string) (*settings.Root, error) { return settings.Default(), nil }
	return supervisor.New(&fakeFCU{}, &fakePump{}, &fakeInterlock{}, loadFn, nil)
}

func dispatchSync(c *supervisor.Controller, kind command.Kind, params command.Params) *command.ChanSink {
	sink := command.NewChanSink()
	c.Dispatch(command.Command{Kind: kind, Params: params, Sink: sink})
	return sink
}

func TestTickDoesNothingWhileOffline(t *testing.T) {
	c := newTestController()
	queue := command.NewQueue()
	s := NewScheduler(queue, c, time.Second, time.Second)

	result := s.Tick(time.Unix(0, 0))
	assert.False(t, result.UpdateEnqueued)
	assert.False(t, result.GlycolDue)
	assert.Equal(t, 0, queue.Len())
}

func TestTickEnqueuesUpdateWhileActive(t *testing.T) {
	c := newTestController()
	dispatchSync(c, command.Boot, command.Params{})
	dispatchSync(c, command.Start, command.Params{})

	queue := command.NewQueue()
	s := NewScheduler(queue, c, time.Second, time.Second)

	result := s.Tick(time.Unix(0, 0))
	assert.True(t, result.UpdateEnqueued)
	assert.Equal(t, 1, queue.Len())
}

func TestGlycolTaskScheduledOnlyWhenEnabledAndAutomatic(t *testing.T) {
	c := newTestController()
	dispatchSync(c, command.Boot, command.Params{})
	dispatchSync(c, command.Start, command.Params{})
	dispatchSync(c, command.Enable, command.Params{})
	require.Equal(t, supervisor.Enabled, c.State())

	queue := command.NewQueue()
	glycolStep := 2 * time.Second
	s := NewScheduler(queue, c, glycolStep, time.Hour)

	t0 := time.Unix(100, 0)
	result := s.Tick(t0)
	assert.True(t, result.GlycolDue, "first tick after scheduling should run immediately")

	result = s.Tick(t0.Add(time.Second))
	assert.False(t, result.GlycolDue, "glycol timestep has not elapsed yet")

	result = s.Tick(t0.Add(3 * time.Second))
	assert.True(t, result.GlycolDue)
}

func TestGlycolTaskUnscheduledUnderEngineeringOverride(t *testing.T) {
	c := newTestController()
	dispatchSync(c, command.Boot, command.Params{})
	dispatchSync(c, command.Start, command.Params{})
	dispatchSync(c, command.Enable, command.Params{})
	dispatchSync(c, command.EnterEngineering, command.Params{})
	require.Equal(t, supervisor.Engineering, c.State())

	queue := command.NewQueue()
	s := NewScheduler(queue, c, time.Second, time.Second)

	result := s.Tick(time.Unix(0, 0))
	assert.False(t, result.GlycolDue)
}

func TestHeaterFanTaskScheduledOnlyWhenEnabledAndAutomatic(t *testing.T) {
	c := newTestController()
	dispatchSync(c, command.Boot, command.Params{})
	dispatchSync(c, command.Start, command.Params{})
	dispatchSync(c, command.Enable, command.Params{})
	require.Equal(t, supervisor.Enabled, c.State())

	queue := command.NewQueue()
	heaterFanStep := 5 * time.Second
	s := NewScheduler(queue, c, time.Hour, heaterFanStep)

	t0 := time.Unix(200, 0)
	result := s.Tick(t0)
	assert.True(t, result.HeaterFanDue)

	result = s.Tick(t0.Add(2 * time.Second))
	assert.False(t, result.HeaterFanDue)

	result = s.Tick(t0.Add(6 * time.Second))
	assert.True(t, result.HeaterFanDue)

	dispatchSync(c, command.EnterEngineering, command.Params{})
	result = s.Tick(t0.Add(20 * time.Second))
	assert.False(t, result.HeaterFanDue, "heater/fan task is superseded by direct commands in Engineering")
}
