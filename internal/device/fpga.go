package device

import (
	"fmt"
	"time"

	"github.com/simonvetter/modbus"

	"github.com/skytelescope/mirrortherm/internal/interlock"
)

// FPGA register addresses. The FPGA exposes its digital inputs,
// heartbeat, and mixing-valve control over the same holding-register
// Modbus seam as the rest of internal/device.
const (
	fpgaRegDigitalInputs   = 0x4000
	fpgaRegHeartbeat       = 0x4002
	fpgaRegMixingValveCmd  = 0x4004 // float32, two words
	fpgaRegMixingValvePos  = 0x4006 // float32, two words (readout)
)

// FPGA implements interlock.Sampler and the mixing-valve/panic commands.
type FPGA struct {
	client ModbusClient
}

func NewFPGA(client ModbusClient) *FPGA {
	return &FPGA{client: client}
}

var _ interlock.Sampler = (*FPGA)(nil)

// LatestDigitalInputs reads the 32-bit interlock status word off the
// SLOT4_DIS holding registers.
func (f *FPGA) LatestDigitalInputs() interlock.RawSample {
	words, err := f.client.ReadRegisters(fpgaRegDigitalInputs, 2, modbus.HOLDING_REGISTER)
	if err != nil {
		return interlock.RawSample{Timestamp: time.Now()}
	}
	word := uint32(words[0]) | uint32(words[1])<<16
	return interlock.RawSample{Timestamp: time.Now(), Word: word}
}

// WriteHeartbeat toggles the software heartbeat register.
func (f *FPGA) WriteHeartbeat(on bool) error {
	var value uint16
	if on {
		value = 1
	}
	if err := f.client.WriteRegister(fpgaRegHeartbeat, value); err != nil {
		return fmt.Errorf("writing heartbeat register: %w", err)
	}
	return nil
}

// SetMixingValvePosition commands the mixing valve to the given
// device-commanded value (already through
// settings.MixingValveSettings.PercentsToCommanded).
func (f *FPGA) SetMixingValvePosition(commanded float64) error {
	words := encodeFloat32LE(float32(commanded))
	if err := f.client.WriteRegister(fpgaRegMixingValveCmd, words[0]); err != nil {
		return fmt.Errorf("writing mixing valve command (low word): %w", err)
	}
	if err := f.client.WriteRegister(fpgaRegMixingValveCmd+1, words[1]); err != nil {
		return fmt.Errorf("writing mixing valve command (high word): %w", err)
	}
	return nil
}

// MixingValvePosition reads the raw device position back.
func (f *FPGA) MixingValvePosition() (float64, error) {
	words, err := f.client.ReadRegisters(fpgaRegMixingValvePos, 2, modbus.HOLDING_REGISTER)
	if err != nil {
		return 0, fmt.Errorf("reading mixing valve position: %w", err)
	}
	return float64(decodeFloat32(words)), nil
}

// Panic drives the valve closed, the panic-safe state a Fault
// escalation commands.
func (f *FPGA) Panic() error {
	return f.SetMixingValvePosition(0)
}

func encodeFloat32LE(v float32) [2]uint16 {
	bits := float32Bits(v)
	return [2]uint16{uint16(bits), uint16(bits >> 16)}
}
