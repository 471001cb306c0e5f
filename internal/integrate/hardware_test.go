package integrate_test

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/scangrid/internal/integrate"
	"github.com/vk/scangrid/internal/sim"
)

func TestHardwareAcquisition_PrepareQuantizesToCycles(t *testing.T) {
	t.Parallel()

	meter := sim.NewMeter("k2000", 10*time.Millisecond)
	acq := integrate.NewHardwareAcquisition(meter, 105*time.Millisecond)

	require.NoError(t, acq.Prepare(context.Background()))
	assert.Equal(t, 10, acq.Samples())
	assert.Equal(t, 100*time.Millisecond, acq.AchievableTime())
	assert.Equal(t, 10, meter.ConfiguredSamples())
}

func TestHardwareAcquisition_BelowOneCycleUnsupported(t *testing.T) {
	t.Parallel()

	meter := sim.NewMeter("k2000", 10*time.Millisecond)
	acq := integrate.NewHardwareAcquisition(meter, 5*time.Millisecond)

	err := acq.Prepare(context.Background())
	require.ErrorIs(t, err, integrate.ErrContinuousUnsupported)
}

func TestHardwareAcquisition_BufferCapacityEnforced(t *testing.T) {
	t.Parallel()

	t.Run("default capacity", func(t *testing.T) {
		t.Parallel()
		meter := sim.NewMeter("k2000", time.Millisecond)
		assert.Equal(t, 2499, meter.BufferCapacity())

		// 2500 one-millisecond cycles is one sample over the buffer.
		acq := integrate.NewHardwareAcquisition(meter, 2500*time.Millisecond)
		err := acq.Prepare(context.Background())
		var capErr *integrate.CapacityError
		require.ErrorAs(t, err, &capErr)
		assert.Equal(t, 2500, capErr.Samples)
		assert.Equal(t, 2499, capErr.Capacity)
	})

	t.Run("shrunk capacity", func(t *testing.T) {
		t.Parallel()
		meter := sim.NewMeter("k2000", time.Millisecond)
		meter.SetCapacity(5)

		acq := integrate.NewHardwareAcquisition(meter, 10*time.Millisecond)
		err := acq.Prepare(context.Background())
		var capErr *integrate.CapacityError
		require.ErrorAs(t, err, &capErr)
		assert.Equal(t, 10, capErr.Samples)
		assert.Equal(t, 5, capErr.Capacity)
	})
}

func TestHardwareAcquisition_Value(t *testing.T) {
	t.Parallel()

	meter := sim.NewMeter("k2000", time.Millisecond)
	meter.SetValues(2, 0)
	acq := integrate.NewHardwareAcquisition(meter, 5*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, acq.Prepare(ctx))
	require.NoError(t, acq.Start(ctx))

	value, err := acq.Value(ctx)
	require.NoError(t, err)
	assert.Equal(t, float64(2), value)

	last, ok := acq.LastValue()
	require.True(t, ok)
	assert.Equal(t, float64(2), last)
	assert.False(t, acq.EndTime().IsZero())
}

func TestHardwareAcquisition_FetchFailureYieldsNaN(t *testing.T) {
	t.Parallel()

	meter := sim.NewMeter("k2000", time.Millisecond)
	meter.FailFetch(true)
	acq := integrate.NewHardwareAcquisition(meter, 5*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, acq.Prepare(ctx))
	require.NoError(t, acq.Start(ctx))

	value, err := acq.Value(ctx)
	require.NoError(t, err, "a transient fetch fault must not fail the acquisition")
	assert.True(t, math.IsNaN(value))
}

func TestHardwareAcquisition_Abort(t *testing.T) {
	t.Parallel()

	meter := sim.NewMeter("k2000", 10*time.Millisecond)
	acq := integrate.NewHardwareAcquisition(meter, 10*time.Second)
	ctx := context.Background()

	require.NoError(t, acq.Prepare(ctx))
	require.NoError(t, acq.Start(ctx))
	require.NoError(t, acq.Abort(ctx))

	_, err := acq.Value(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, meter.Aborts())
}

func TestHardwareAcquisition_ValueBeforeStart(t *testing.T) {
	t.Parallel()

	acq := integrate.NewHardwareAcquisition(sim.NewMeter("k2000", time.Millisecond), 5*time.Millisecond)
	_, err := acq.Value(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not started")
}
