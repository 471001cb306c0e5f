package chain_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/scangrid/internal/chain"
	"github.com/vk/scangrid/internal/sink"
)

func TestTimerMaster_PrepareValidation(t *testing.T) {
	t.Parallel()

	t.Run("count time must be positive", func(t *testing.T) {
		t.Parallel()
		timer := chain.NewTimerMaster(chain.ScanParams{NPoints: 1}, sink.NewMemory())
		err := timer.Prepare(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "count time")
	})

	t.Run("point count must be positive", func(t *testing.T) {
		t.Parallel()
		timer := chain.NewTimerMaster(chain.ScanParams{CountTime: time.Millisecond}, sink.NewMemory())
		err := timer.Prepare(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "point count")
	})
}

func TestTimerMaster_TriggerPacesAndPublishes(t *testing.T) {
	t.Parallel()

	mem := sink.NewMemory()
	scan := chain.ScanParams{NPoints: 2, CountTime: 5 * time.Millisecond}
	timer := chain.NewTimerMaster(scan, mem)
	ctx := context.Background()

	require.NoError(t, timer.Prepare(ctx))
	require.NoError(t, timer.Start(ctx))

	began := time.Now()
	require.NoError(t, timer.Trigger(ctx))
	require.NoError(t, timer.Trigger(ctx))
	assert.GreaterOrEqual(t, time.Since(began), 2*scan.CountTime)

	points := mem.Points("timer:elapsed_time")
	require.Len(t, points, 2)
	assert.Equal(t, 0, points[0].Index)
	assert.Equal(t, 1, points[1].Index)
	// The second point's elapsed time includes the first count window.
	assert.GreaterOrEqual(t, points[1].Value.(float64), scan.CountTime.Seconds()*0.9)
}

func TestTimerMaster_TriggerHonorsCancellation(t *testing.T) {
	t.Parallel()

	timer := chain.NewTimerMaster(chain.ScanParams{NPoints: 1, CountTime: time.Minute}, sink.NewMemory())
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, timer.Start(ctx))

	done := make(chan error, 1)
	go func() { done <- timer.Trigger(ctx) }()
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("trigger never observed cancellation")
	}
}
