package control

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/skytelescope/mirrortherm/internal/settings"
)

func TestGlycolLoopStepsTowardSetpoint(t *testing.T) {
	cfg := settings.SetpointSettings{Precision: 0.05, MixingValveStep: 1}
	loop := NewGlycolLoop(cfg)

	percent, ok := loop.Step(10.0, 8.0) // diff=2 > tolerance
	assert.True(t, ok)
	assert.InDelta(t, 11.0, percent, 1e-9)

	percent, ok = loop.Step(6.0, 8.0) // diff=-2 < -tolerance
	assert.True(t, ok)
	assert.InDelta(t, 10.0, percent, 1e-9)

	_, ok = loop.Step(8.01, 8.0) // within tolerance
	assert.False(t, ok)
}

func TestGlycolLoopClampsToRange(t *testing.T) {
	cfg := settings.SetpointSettings{Precision: 0.05, MixingValveStep: 50}
	loop := NewGlycolLoop(cfg)

	percent, ok := loop.Step(100, 0)
	assert.True(t, ok)
	assert.Equal(t, 60.0, percent)

	percent, _ = loop.Step(100, 0)
	assert.Equal(t, 100.0, percent)

	percent, _ = loop.Step(0, 100)
	assert.Equal(t, 50.0, percent)

	percent, _ = loop.Step(0, 100)
	assert.Equal(t, 0.0, percent)
}

// Heater step-up.
func TestHeaterStepUp(t *testing.T) {
	hf := NewHeaterFanControl()
	heaterRaw, fanRaw := hf.Step([]float64{50}, []float64{10}, 12)
	assert.Equal(t, 129, heaterRaw[0])
	assert.Equal(t, 2, fanRaw[0])
}

func TestHeaterStepsDownWhenAboveSetpoint(t *testing.T) {
	hf := NewHeaterFanControl()
	heaterRaw, _ := hf.Step([]float64{50}, []float64{20}, 12)
	assert.Equal(t, 127, heaterRaw[0])
}

func TestHeaterStepsDownAtFullPWM(t *testing.T) {
	hf := NewHeaterFanControl()
	heaterRaw, _ := hf.Step([]float64{100}, []float64{5}, 12)
	assert.Equal(t, 254, heaterRaw[0]) // heaterPWM already at 100%, so the step-down branch applies
}
