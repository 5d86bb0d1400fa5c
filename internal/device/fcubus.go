package device

import (
	"fmt"

	"github.com/simonvetter/modbus"

	"github.com/skytelescope/mirrortherm/internal/settings"
	"github.com/skytelescope/mirrortherm/internal/supervisor"
	"github.com/skytelescope/mirrortherm/internal/telemetry"
)

// unitRegisterStride is the number of holding registers reserved per
// FCU address in the bus's register map: mode(1), control(1), status
// request opcode(1), differential temp(2, float32), absolute temp(2,
// float32), fan rpm(2, float32), heater PWM target(1), fan RPM target(1).
const unitRegisterStride = 11

// statusRequestServer and statusRequestThermal are the two opcodes Poll
// writes to a unit's status-request register before reading back its
// telemetry block. They mirror the ILC's reportServerStatus vs
// reportThermalStatus dispatch (TS/Commands/Update.cpp's _sendFCU):
// reportThermalStatus is requested while the supervisory state is
// active (Enabled/Engineering), reportServerStatus otherwise.
const (
	statusRequestServer  uint16 = 0
	statusRequestThermal uint16 = 1
)

// Unit mirrors FCU inventory entry.
type Unit struct {
	Address                 uint8
	XPosition, YPosition    float64
	Enabled                 bool
	AutoDisabled            bool
	ErrorCount              int
	DifferentialTemperature float64
	AbsoluteTemperature     float64
	FanRPM                  float64
	HeaterPWMTarget         float64
	FanRPMTarget            float64
}

// FCUBus drives the FCU population over Modbus, implementing
// supervisor.FCUBus and feeding internal/control's per-unit feedback
// arrays.
type FCUBus struct {
	client ModbusClient
	cfg    settings.FCUSettings
	units  []Unit
}

// NewFCUBus populates cfg.NumILC units at sequential addresses 1..N,
// all enabled, positions left zero (loaded from a placement table that
// is out of scope here).
func NewFCUBus(client ModbusClient, cfg settings.FCUSettings) *FCUBus {
	units := make([]Unit, cfg.NumILC)
	for i := range units {
		units[i] = Unit{Address: uint8(i + 1), Enabled: true}
	}
	return &FCUBus{client: client, cfg: cfg, units: units}
}

func (b *FCUBus) Units() []Unit { return b.units }

func (b *FCUBus) baseAddr(u Unit) uint16 {
	return uint16(u.Address) * unitRegisterStride
}

// BroadcastMode writes the ILC mode word to every enabled address.
func (b *FCUBus) BroadcastMode(mode supervisor.ILCMode) error {
	for _, u := range b.units {
		if !u.Enabled {
			continue
		}
		if err := b.client.WriteRegister(b.baseAddr(u), uint16(mode)); err != nil {
			return fmt.Errorf("broadcasting mode to FCU %d: %w", u.Address, err)
		}
	}
	return nil
}

// RequestServerID pings every enabled address, recording an error on
// any that doesn't answer.
func (b *FCUBus) RequestServerID() error {
	for _, u := range b.units {
		if !u.Enabled {
			continue
		}
		if _, err := b.client.ReadRegisters(b.baseAddr(u), 1, modbus.HOLDING_REGISTER); err != nil {
			b.recordError(u.Address)
		}
	}
	return nil
}

// SetPower asserts or de-asserts FCU power on every enabled address.
func (b *FCUBus) SetPower(on bool) error {
	var value uint16
	if on {
		value = 1
	}
	for _, u := range b.units {
		if !u.Enabled {
			continue
		}
		if err := b.client.WriteRegister(b.baseAddr(u)+1, value); err != nil {
			return fmt.Errorf("setting FCU %d power: %w", u.Address, err)
		}
	}
	return nil
}

func (b *FCUBus) EnabledMask() uint64 {
	var mask uint64
	for i, u := range b.units {
		if u.Enabled {
			mask |= 1 << uint(i)
		}
	}
	return mask
}

func (b *FCUBus) NumEnabled() int {
	n := 0
	for _, u := range b.units {
		if u.Enabled {
			n++
		}
	}
	return n
}

// recordError increments the named unit's error count and auto-disables
// it once errorCount exceeds FailuresToDisable, if auto-disable is
// configured on.
func (b *FCUBus) recordError(addr uint8) {
	for i := range b.units {
		if b.units[i].Address != addr {
			continue
		}
		b.units[i].ErrorCount++
		if b.cfg.AutoDisable && b.units[i].ErrorCount > b.cfg.FailuresToDisable {
			b.units[i].AutoDisabled = true
			b.units[i].Enabled = false
		}
		return
	}
}

// Poll requests reportThermalStatus (active==true, supervisory state
// Enabled/Engineering) or reportServerStatus (otherwise) from every
// enabled address by writing the corresponding opcode to its
// status-request register, then reads back its reply block, applies
// auto-disable on a missing reply, and returns the aggregated
// telemetry.ThermalData.
func (b *FCUBus) Poll(active bool) telemetry.ThermalData {
	data := telemetry.ThermalData{
		Differential: make([]float64, len(b.units)),
		Absolute:     make([]float64, len(b.units)),
		FanRPM:       make([]float64, len(b.units)),
	}
	opcode := statusRequestServer
	if active {
		opcode = statusRequestThermal
	}
	for i := range b.units {
		u := &b.units[i]
		if !u.Enabled {
			continue
		}
		if err := b.client.WriteRegister(b.baseAddr(*u)+2, opcode); err != nil {
			b.recordError(u.Address)
			continue
		}
		words, err := b.client.ReadRegisters(b.baseAddr(*u)+3, 6, modbus.HOLDING_REGISTER)
		if err != nil {
			b.recordError(u.Address)
			continue
		}
		u.DifferentialTemperature = float64(decodeFloat32(words[0:2]))
		u.AbsoluteTemperature = float64(decodeFloat32(words[2:4]))
		u.FanRPM = float64(decodeFloat32(words[4:6]))
		data.Differential[i] = u.DifferentialTemperature
		data.Absolute[i] = u.AbsoluteTemperature
		data.FanRPM[i] = u.FanRPM
	}
	return data
}

// ApplyHeaterFanTargets writes the per-unit heater/fan raw demand
// produced by internal/control's HeaterFanControl.
func (b *FCUBus) ApplyHeaterFanTargets(heaterRaw, fanRaw []int) error {
	for i := range b.units {
		u := &b.units[i]
		if !u.Enabled || i >= len(heaterRaw) {
			continue
		}
		if err := b.client.WriteRegister(b.baseAddr(*u)+9, uint16(heaterRaw[i])); err != nil {
			return fmt.Errorf("writing FCU %d heater target: %w", u.Address, err)
		}
		if err := b.client.WriteRegister(b.baseAddr(*u)+10, uint16(fanRaw[i])); err != nil {
			return fmt.Errorf("writing FCU %d fan target: %w", u.Address, err)
		}
		u.HeaterPWMTarget = float64(heaterRaw[i])
		u.FanRPMTarget = float64(fanRaw[i])
	}
	return nil
}
