package valve

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skytelescope/mirrortherm/internal/settings"
)

func testCfg() settings.MixingValveSettings {
	return settings.MixingValveSettings{
		MinimalMove:   5,
		BacklashStep:  3,
		InPosition:    0.1,
		MaxMovingTime: 2, // seconds
	}
}

// Valve fine-control backlash.
func TestBacklashCompensation(t *testing.T) {
	now := time.Now()
	fc := NewFineController(testCfg(), now)
	fc.lastSetpoint = 40 // seed as if already settled there

	fc.SetTarget(42, now)
	assert.Equal(t, MovingToCompensatedTarget, fc.Mode())
	assert.InDelta(t, 45, fc.compensatedSetpoint, 1e-9)

	// 200ms in: still within the compensated-target debounce window.
	target, ok, fault := fc.GetTarget(44.99, now.Add(200*time.Millisecond))
	require.Nil(t, fault)
	require.True(t, ok)
	assert.InDelta(t, 45, target, 1e-9)
	assert.Equal(t, MovingToCompensatedTarget, fc.Mode())

	// 1600ms in (80% of 2000ms): debounce has elapsed, in-position -> advance.
	target, ok, fault = fc.GetTarget(44.99, now.Add(1600*time.Millisecond))
	require.Nil(t, fault)
	require.True(t, ok)
	assert.InDelta(t, 42, target, 1e-9)
	assert.Equal(t, MovingToTarget, fc.Mode())
}

// property 11. Failure to reach target within maxMovingTime -> Faulted +
// MixingValveTimeout.
func TestTimeoutEscalatesToFaulted(t *testing.T) {
	now := time.Now()
	fc := NewFineController(testCfg(), now)
	fc.lastSetpoint = 0
	fc.SetTarget(50, now) // large move: MovingToTarget directly

	require.Equal(t, MovingToTarget, fc.Mode())

	_, ok, fault := fc.GetTarget(10, now.Add(3*time.Second))
	assert.False(t, ok)
	require.NotNil(t, fault)
	assert.Equal(t, Faulted, fc.Mode())
}

// property 12. Once OnTarget, a position deviation >= inPosition
// triggers MixingValveMovedOutOfTarget and Faulted.
func TestOnTargetDeviationEscalates(t *testing.T) {
	now := time.Now()
	fc := NewFineController(testCfg(), now)
	fc.lastSetpoint = 50
	fc.mode = OnTarget

	_, ok, fault := fc.GetTarget(50.05, now)
	assert.False(t, ok)
	assert.Nil(t, fault)
	assert.Equal(t, OnTarget, fc.Mode())

	_, ok, fault = fc.GetTarget(50.2, now)
	assert.False(t, ok)
	require.NotNil(t, fault)
	assert.Equal(t, Faulted, fc.Mode())
}
