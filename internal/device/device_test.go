package device

import (
	"testing"

	"github.com/simonvetter/modbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skytelescope/mirrortherm/internal/settings"
	"github.com/skytelescope/mirrortherm/internal/supervisor"
)

type fakeClient struct {
	holding map[uint16]uint16
	failAt  map[uint16]bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{holding: map[uint16]uint16{}, failAt: map[uint16]bool{}}
}

func (f *fakeClient) Open() error                    { return nil }
func (f *fakeClient) Close() error                    { return nil }
func (f *fakeClient) SetUnitId(id uint8) error        { return nil }

func (f *fakeClient) ReadRegisters(addr, quantity uint16, regType modbus.RegType) ([]uint16, error) {
	out := make([]uint16, quantity)
	for i := uint16(0); i < quantity; i++ {
		a := addr + i
		if f.failAt[a] {
			return nil, assertError{}
		}
		out[i] = f.holding[a]
	}
	return out, nil
}

func (f *fakeClient) WriteRegister(addr uint16, value uint16) error {
	f.holding[addr] = value
	return nil
}

type assertError struct{}

func (assertError) Error() string { return "simulated modbus failure" }

func TestFlowMeterDecodesSwappedWordFloat(t *testing.T) {
	client := newFakeClient()
	// encode 2.5 as float32, then place its two words swapped at 1000/1001
	// per decodeFloat32's reg+1-first convention.
	words := encodeFloat32LE(2.5)
	client.holding[flowMeterBlockSignalStrength] = words[1]
	client.holding[flowMeterBlockSignalStrength+1] = words[0]
	client.holding[flowMeterBlockSignalStrength+2] = words[1]
	client.holding[flowMeterBlockSignalStrength+3] = words[0]
	client.holding[flowMeterBlockStatus] = 0

	fm := NewFlowMeter(client)
	sample, err := fm.Read()
	require.NoError(t, err)
	assert.InDelta(t, 2.5, sample.SignalStrength, 1e-6)
	assert.InDelta(t, 2.5, sample.FlowRate, 1e-6)
}

func TestGlycolPumpControlBitsAndFrequency(t *testing.T) {
	client := newFakeClient()
	pump := NewGlycolPump(client)

	require.NoError(t, pump.SetPower(true))
	assert.Equal(t, pumpCtrlPower, client.holding[pumpBlockControl])

	require.NoError(t, pump.Start())
	assert.Equal(t, pumpCtrlStart, client.holding[pumpBlockControl])

	require.NoError(t, pump.Frequency(12.3))
	assert.Equal(t, uint16(123), client.holding[pumpBlockControl+4])

	assert.Error(t, pump.Frequency(-1))
}

func TestFCUBusBroadcastModeSkipsDisabled(t *testing.T) {
	client := newFakeClient()
	cfg := settings.FCUSettings{NumILC: 3, AutoDisable: true, FailuresToDisable: 1}
	bus := NewFCUBus(client, cfg)
	bus.units[1].Enabled = false

	require.NoError(t, bus.BroadcastMode(supervisor.ILCModeEnabled))
	assert.Equal(t, uint16(supervisor.ILCModeEnabled), client.holding[bus.baseAddr(bus.units[0])])
	_, wrote := client.holding[bus.baseAddr(bus.units[1])]
	assert.False(t, wrote)
}

func TestFCUBusAutoDisablesAfterRepeatedErrors(t *testing.T) {
	client := newFakeClient()
	cfg := settings.FCUSettings{NumILC: 1, AutoDisable: true, FailuresToDisable: 1}
	bus := NewFCUBus(client, cfg)
	client.failAt[bus.baseAddr(bus.units[0])] = true

	require.NoError(t, bus.RequestServerID())
	assert.True(t, bus.units[0].Enabled)
	require.NoError(t, bus.RequestServerID())
	assert.False(t, bus.units[0].Enabled)
	assert.True(t, bus.units[0].AutoDisabled)
}

func TestFPGAHeartbeatAndValveRoundtrip(t *testing.T) {
	client := newFakeClient()
	fpga := NewFPGA(client)

	require.NoError(t, fpga.WriteHeartbeat(true))
	assert.Equal(t, uint16(1), client.holding[fpgaRegHeartbeat])

	require.NoError(t, fpga.SetMixingValvePosition(7.5))
	pos, err := readBackValve(client)
	require.NoError(t, err)
	assert.InDelta(t, 7.5, pos, 1e-6)

	require.NoError(t, fpga.Panic())
	pos, err = readBackValve(client)
	require.NoError(t, err)
	assert.InDelta(t, 0, pos, 1e-6)
}

func readBackValve(client *fakeClient) (float64, error) {
	var buf [4]byte
	lo := client.holding[fpgaRegMixingValveCmd]
	hi := client.holding[fpgaRegMixingValveCmd+1]
	buf[0] = byte(lo)
	buf[1] = byte(lo >> 8)
	buf[2] = byte(hi)
	buf[3] = byte(hi >> 8)
	return float64(float32FromLEBytes(buf)), nil
}
