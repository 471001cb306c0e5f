package device_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/scangrid/internal/counter"
	"github.com/vk/scangrid/internal/device"
	"github.com/vk/scangrid/internal/sim"
	"github.com/vk/scangrid/internal/sink"
)

func newTestDevice(t *testing.T, cfg device.PollConfig, counterNames ...string) (*device.PollDevice, *sim.Instrument, *sink.Memory) {
	t.Helper()
	mem := sink.NewMemory()
	inst := sim.NewInstrument("det", counterNames...)
	dev := device.NewPollDevice(inst, cfg, mem)
	for _, name := range counterNames {
		dev.AddCounter(&counter.Counter{
			Name:     name,
			FullName: "det:" + name,
			DType:    counter.Float64,
		})
	}
	return dev, inst, mem
}

func values(points []device.Point) []any {
	out := make([]any, len(points))
	for i, p := range points {
		out[i] = p.Value
	}
	return out
}

func TestPollDevice_SoftwareReading(t *testing.T) {
	t.Parallel()

	dev, inst, mem := newTestDevice(t, device.PollConfig{
		NPoints:    3,
		Mode:       device.Software,
		PresetTime: time.Millisecond,
	}, "c1")
	ctx := context.Background()

	require.NoError(t, dev.Prepare(ctx))
	require.NoError(t, dev.Start(ctx))

	done := make(chan error, 1)
	go func() { done <- dev.Reading(ctx) }()

	// Strict alternation: each point needs the previous one consumed.
	for i := 0; i < 3; i++ {
		require.NoError(t, dev.WaitReady(ctx))
		require.NoError(t, dev.Trigger(ctx))
	}

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("reading task never finished")
	}
	require.NoError(t, dev.Stop(ctx))

	points := mem.Points("det:c1")
	require.Len(t, points, 3)
	assert.Equal(t, []any{float64(0), float64(1), float64(2)}, values(points))
	for i, p := range points {
		assert.Equal(t, i, p.Index)
	}
	assert.Zero(t, inst.OpenSessions(), "hardware session leaked")
}

func TestPollDevice_SoftwarePrepareRequiresPresetTime(t *testing.T) {
	t.Parallel()

	dev, _, _ := newTestDevice(t, device.PollConfig{
		NPoints: 3,
		Mode:    device.Software,
	}, "c1")

	err := dev.Prepare(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires a preset time")
}

func TestPollDevice_SyncDiscardsFirstFrame(t *testing.T) {
	t.Parallel()

	dev, inst, mem := newTestDevice(t, device.PollConfig{
		NPoints: 3,
		Mode:    device.Sync,
	}, "c1")
	ctx := context.Background()

	require.NoError(t, dev.Prepare(ctx))
	// One extra point is polled to compensate the trigger/start skew.
	assert.Equal(t, 4, inst.Mode().NPoints)

	require.NoError(t, dev.Start(ctx))
	require.NoError(t, dev.Reading(ctx))
	require.NoError(t, dev.Stop(ctx))

	points := mem.Points("det:c1")
	require.Len(t, points, 3)
	assert.Equal(t, []any{float64(1), float64(2), float64(3)}, values(points))
	assert.Zero(t, inst.OpenSessions(), "hardware session leaked")
}

func TestPollDevice_GateModePublishesAll(t *testing.T) {
	t.Parallel()

	dev, inst, mem := newTestDevice(t, device.PollConfig{
		NPoints: 2,
		Mode:    device.Gate,
	}, "c1")
	ctx := context.Background()

	require.NoError(t, dev.Prepare(ctx))
	assert.Equal(t, 2, inst.Mode().NPoints)

	require.NoError(t, dev.Start(ctx))
	require.NoError(t, dev.Reading(ctx))
	require.NoError(t, dev.Stop(ctx))

	points := mem.Points("det:c1")
	require.Len(t, points, 2)
	assert.Equal(t, []any{float64(0), float64(1)}, values(points))
}

func TestPollDevice_HardwareModeRequiresPointCount(t *testing.T) {
	t.Parallel()

	for _, mode := range []device.TriggerMode{device.Sync, device.Gate} {
		mode := mode
		t.Run(mode.String(), func(t *testing.T) {
			t.Parallel()
			dev, _, _ := newTestDevice(t, device.PollConfig{Mode: mode}, "c1")
			err := dev.Prepare(context.Background())
			require.Error(t, err)
			assert.Contains(t, err.Error(), "requires a fixed point count")
		})
	}
}

func TestPollDevice_MissingCounterValueIsIntegrityError(t *testing.T) {
	t.Parallel()

	mem := sink.NewMemory()
	inst := sim.NewInstrument("det", "c1")
	dev := device.NewPollDevice(inst, device.PollConfig{
		NPoints: 2,
		Mode:    device.Gate,
	}, mem)
	// Bound counter the instrument never serves.
	dev.AddCounter(&counter.Counter{Name: "ghost", FullName: "det:ghost"})

	ctx := context.Background()
	require.NoError(t, dev.Prepare(ctx))
	require.NoError(t, dev.Start(ctx))

	err := dev.Reading(ctx)
	var integrity *device.IntegrityError
	require.ErrorAs(t, err, &integrity)
	assert.Equal(t, "det", integrity.Device)
	assert.Contains(t, integrity.Reason, "ghost")
	require.NoError(t, dev.Stop(ctx))
	assert.Zero(t, inst.OpenSessions(), "hardware session leaked after failure")
}

func TestPollDevice_HardwareFaultPropagates(t *testing.T) {
	t.Parallel()

	dev, inst, _ := newTestDevice(t, device.PollConfig{
		NPoints: 3,
		Mode:    device.Gate,
	}, "c1")
	inst.FailAt(1)
	ctx := context.Background()

	require.NoError(t, dev.Prepare(ctx))
	require.NoError(t, dev.Start(ctx))

	err := dev.Reading(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "simulated hardware fault")
	require.NoError(t, dev.Stop(ctx))
	assert.Zero(t, inst.OpenSessions(), "hardware session leaked after failure")
}

func TestPollDevice_StopUnblocksSoftwareReading(t *testing.T) {
	t.Parallel()

	dev, inst, _ := newTestDevice(t, device.PollConfig{
		NPoints:    3,
		Mode:       device.Software,
		PresetTime: time.Millisecond,
	}, "c1")
	ctx := context.Background()

	require.NoError(t, dev.Prepare(ctx))
	require.NoError(t, dev.Start(ctx))

	done := make(chan error, 1)
	go func() { done <- dev.Reading(ctx) }()

	// Let the reading task reach its wait for the first trigger.
	require.Eventually(t, func() bool { return inst.OpenSessions() == 1 },
		time.Second, time.Millisecond)

	require.NoError(t, dev.Stop(ctx))

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("reading task never unblocked after stop")
	}
	assert.Zero(t, inst.OpenSessions(), "hardware session leaked after stop")
	assert.True(t, dev.TriggerReady())
}
