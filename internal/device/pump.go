package device

import (
	"fmt"

	"github.com/simonvetter/modbus"
)

// Glycol pump VFD holding-register blocks.
const (
	pumpBlockControl = 0x2000 // power/start/stop/reset bits
	pumpBlockStatus  = 0x2100 // running frequency (float32) + DriveStatus2 word
)

// Status2 bit flags decoded from the VFD's status word.
type Status2 uint16

const (
	Status2Jogging       Status2 = 0x0001
	Status2FluxBreaking  Status2 = 0x0002
	Status2MotorOverload Status2 = 0x0004
	Status2AutoRstCtdn   Status2 = 0x0008
	Status2DCBraking     Status2 = 0x0010
	Status2AtFrequency   Status2 = 0x0020
	Status2AutoTuning    Status2 = 0x0040
	Status2EMBraking     Status2 = 0x0080
	Status2CurrentLimit  Status2 = 0x0100
	Status2SafetyS1      Status2 = 0x0400
	Status2SafetyS2      Status2 = 0x0800
	Status2F111Status    Status2 = 0x1000
	Status2SafetyPermit  Status2 = 0x2000
)

func (s Status2) MotorOverload() bool { return s&Status2MotorOverload != 0 }

// control-register bits.
const (
	pumpCtrlPower uint16 = 1 << 0
	pumpCtrlStart uint16 = 1 << 1
	pumpCtrlStop  uint16 = 1 << 2
	pumpCtrlReset uint16 = 1 << 3
)

// GlycolPump drives the coolant pump VFD over Modbus: powering the drive
// (supervisor.GlycolPump), plus the engineering-only start/stop/
// frequency/reset commands
type GlycolPump struct {
	client ModbusClient
}

func NewGlycolPump(client ModbusClient) *GlycolPump {
	return &GlycolPump{client: client}
}

func (p *GlycolPump) SetPower(on bool) error {
	return p.writeControlBit(pumpCtrlPower, on)
}

func (p *GlycolPump) Start() error { return p.writeControlBit(pumpCtrlStart, true) }
func (p *GlycolPump) Stop() error  { return p.writeControlBit(pumpCtrlStop, true) }
func (p *GlycolPump) Reset() error { return p.writeControlBit(pumpCtrlReset, true) }

// Frequency commands the VFD's running frequency in Hz, encoded as a
// single register in deci-Hertz (one decimal place).
func (p *GlycolPump) Frequency(hz float64) error {
	if hz < 0 {
		return fmt.Errorf("frequency must be >= 0 Hz, got %v", hz)
	}
	encoded := uint16(hz * 10)
	if err := p.client.WriteRegister(pumpBlockControl+4, encoded); err != nil {
		return fmt.Errorf("writing pump frequency: %w", err)
	}
	return nil
}

func (p *GlycolPump) writeControlBit(bit uint16, set bool) error {
	var value uint16
	if set {
		value = bit
	}
	if err := p.client.WriteRegister(pumpBlockControl, value); err != nil {
		return fmt.Errorf("writing pump control register: %w", err)
	}
	return nil
}

// ReadoutSample is the pump's telemetry readout.
type ReadoutSample struct {
	RunningFrequencyHz float64
	Status2            Status2
}

// Read polls the status block: two words for running frequency
// (swap-ordered float32), one word for the Status2 bitmask.
func (p *GlycolPump) Read() (ReadoutSample, error) {
	words, err := p.client.ReadRegisters(pumpBlockStatus, 3, modbus.HOLDING_REGISTER)
	if err != nil {
		return ReadoutSample{}, fmt.Errorf("reading pump status block: %w", err)
	}
	freq := decodeFloat32(words[0:2])
	return ReadoutSample{RunningFrequencyHz: float64(freq), Status2: Status2(words[2])}, nil
}
