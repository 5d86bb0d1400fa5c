package device

import (
	"fmt"

	"github.com/simonvetter/modbus"
)

// Flow meter holding-register blocks.
const (
	flowMeterBlockSignalStrength = 1000 // 4 words: signal strength + flow rate, float32 pairs
	flowMeterBlockTotalizers     = 2500 // 6 words: net/positive/negative totalizer, float32 triple; not read by Read
	flowMeterBlockStatus         = 5500 // 1 word: status bitmask
)

// FlowMeter reads the glycol flow-meter readout over Modbus: signal
// strength, flow rate, and status. The totalizer block is not read, and
// no severity limit is evaluated on the flow rate.
type FlowMeter struct {
	client ModbusClient
}

func NewFlowMeter(client ModbusClient) *FlowMeter {
	return &FlowMeter{client: client}
}

// Sample is one flow-meter readout.
type Sample struct {
	SignalStrength float32
	FlowRate       float32
	Status         uint16
}

// Read polls the signal/rate block and the status block, and decodes
// SignalStrength/FlowRate as swap-ordered float32s, and Status as a
// plain single register.
func (f *FlowMeter) Read() (Sample, error) {
	words, err := f.client.ReadRegisters(flowMeterBlockSignalStrength, 4, modbus.HOLDING_REGISTER)
	if err != nil {
		return Sample{}, fmt.Errorf("reading flow meter signal/rate block: %w", err)
	}
	signal := decodeFloat32(words[0:2])
	rate := decodeFloat32(words[2:4])

	statusWords, err := f.client.ReadRegisters(flowMeterBlockStatus, 1, modbus.HOLDING_REGISTER)
	if err != nil {
		return Sample{}, fmt.Errorf("reading flow meter status block: %w", err)
	}

	return Sample{SignalStrength: signal, FlowRate: rate, Status: statusWords[0]}, nil
}
