package device

import (
	"encoding/binary"
	"math"
)

func float32FromLEBytes(b [4]byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b[:]))
}

func float32Bits(v float32) uint32 {
	return math.Float32bits(v)
}
