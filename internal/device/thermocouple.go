package device

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/simonvetter/modbus"
)

// thermocoupleChannelCount and the no-sensor sentinel come straight from
// framed ASCII description: "C01=nn.nnnn,...C08=nn.nnnn\r\n
// where a value >= 900 denotes 'no sensor'".
const (
	thermocoupleChannelCount     = 8
	thermocoupleNoSensorSentinel = 900.0
	thermocoupleFrameWords       = 48
	fpgaRegModbusARx             = 0x4010
)

// ThermocoupleFrame is one parsed reading from the glycol mirror
// loop's eight supply/return thermocouples.
type ThermocoupleFrame struct {
	Channels [thermocoupleChannelCount]float64
}

// parseThermocoupleFrame decodes the ASCII line
func parseThermocoupleFrame(line string) (ThermocoupleFrame, error) {
	var frame ThermocoupleFrame
	line = strings.TrimRight(line, "\x00\r\n")
	fields := strings.Split(line, ",")
	if len(fields) != thermocoupleChannelCount {
		return frame, fmt.Errorf("thermocouple frame: expected %d channels, got %d", thermocoupleChannelCount, len(fields))
	}
	for i, field := range fields {
		parts := strings.SplitN(field, "=", 2)
		if len(parts) != 2 {
			return frame, fmt.Errorf("thermocouple frame: malformed channel %q", field)
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			return frame, fmt.Errorf("thermocouple frame: channel %q: %w", field, err)
		}
		if value >= thermocoupleNoSensorSentinel {
			value = math.NaN()
		}
		frame.Channels[i] = value
	}
	return frame, nil
}

// MirrorLoopAverage weights the supply bank (channels 0-3) and return
// bank (channels 4-7) equally, skipping any no-sensor (NaN) channel
// within a bank and falling back to whichever bank is valid if the
// other is entirely NaN. ok is false when neither bank has a valid
// reading.
func (f ThermocoupleFrame) MirrorLoopAverage() (average float64, ok bool) {
	supply, supplyOK := bankAverage(f.Channels[0:4])
	ret, retOK := bankAverage(f.Channels[4:8])
	switch {
	case supplyOK && retOK:
		return (supply + ret) / 2, true
	case supplyOK:
		return supply, true
	case retOK:
		return ret, true
	default:
		return 0, false
	}
}

func bankAverage(channels []float64) (average float64, ok bool) {
	var sum float64
	var n int
	for _, c := range channels {
		if math.IsNaN(c) {
			continue
		}
		sum += c
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

// GlycolThermocouple reads the mirror loop thermocouple unit over the
// FPGA's framed MODBUS_A_RX bus, the only ASCII-framed device on this bus.
type GlycolThermocouple struct {
	fpga *FPGA
}

func NewGlycolThermocouple(fpga *FPGA) *GlycolThermocouple {
	return &GlycolThermocouple{fpga: fpga}
}

// Read polls one frame and parses it.
func (g *GlycolThermocouple) Read() (ThermocoupleFrame, error) {
	line, err := g.fpga.ReadThermocoupleFrame()
	if err != nil {
		return ThermocoupleFrame{}, fmt.Errorf("reading thermocouple unit: %w", err)
	}
	return parseThermocoupleFrame(line)
}

// ReadThermocoupleFrame reads the MODBUS_A_RX FIFO and reassembles it as
// an ASCII line, two bytes per register.
func (f *FPGA) ReadThermocoupleFrame() (string, error) {
	words, err := f.client.ReadRegisters(fpgaRegModbusARx, thermocoupleFrameWords, modbus.HOLDING_REGISTER)
	if err != nil {
		return "", fmt.Errorf("reading modbus-A rx fifo: %w", err)
	}
	var b strings.Builder
	for _, w := range words {
		b.WriteByte(byte(w))
		b.WriteByte(byte(w >> 8))
	}
	return b.String(), nil
}
