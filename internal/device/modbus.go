// Package device implements the hardware-facing collaborators: the
// glycol flow meter, coolant pump VFD, FCU bus, FPGA interlock/valve
// interface, and mirror-loop thermocouple unit, all reached over
// Modbus/TCP.
package device

import (
	"fmt"
	"time"

	"github.com/simonvetter/modbus"
)

// ModbusClient narrows *modbus.ModbusClient to the subset this package
// calls, so fakes can stand in for tests without a live Modbus endpoint.
type ModbusClient interface {
	Open() error
	Close() error
	SetUnitId(id uint8) error
	ReadRegisters(addr, quantity uint16, regType modbus.RegType) ([]uint16, error)
	WriteRegister(addr uint16, value uint16) error
}

// DialTCP opens a Modbus/TCP client against host:port with the given
// unit ID.
func DialTCP(host string, port int, unitID uint8, timeout time.Duration) (*modbus.ModbusClient, error) {
	client, err := modbus.NewClient(&modbus.ClientConfiguration{
		URL:     fmt.Sprintf("tcp://%s:%d", host, port),
		Timeout: timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("creating modbus client for %s:%d: %w", host, port, err)
	}
	if err := client.SetUnitId(unitID); err != nil {
		return nil, fmt.Errorf("setting unit id %d: %w", unitID, err)
	}
	if err := client.Open(); err != nil {
		return nil, fmt.Errorf("connecting to %s:%d: %w", host, port, err)
	}
	return client, nil
}

// decodeFloat32 decodes a float32 from two holding registers: the two
// 16-bit words making up the float are read in swapped order (reg+1
// first, reg second).
func decodeFloat32(words []uint16) float32 {
	var buf [4]byte
	buf[0] = byte(words[1])
	buf[1] = byte(words[1] >> 8)
	buf[2] = byte(words[0])
	buf[3] = byte(words[0] >> 8)
	return float32FromLEBytes(buf)
}
