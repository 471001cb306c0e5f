package chain_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/scangrid/internal/chain"
	"github.com/vk/scangrid/internal/device"
	"github.com/vk/scangrid/internal/sim"
	"github.com/vk/scangrid/internal/sink"
)

// stubDevice is a minimal inert device for parenting tests.
type stubDevice struct {
	name string
}

func (d *stubDevice) Name() string                        { return d.name }
func (d *stubDevice) NPoints() int                        { return 0 }
func (d *stubDevice) TriggerMode() device.TriggerMode     { return device.Software }
func (d *stubDevice) Prepare(ctx context.Context) error   { return nil }
func (d *stubDevice) Start(ctx context.Context) error     { return nil }
func (d *stubDevice) Stop(ctx context.Context) error      { return nil }
func (d *stubDevice) Trigger(ctx context.Context) error   { return nil }
func (d *stubDevice) TriggerReady() bool                  { return true }
func (d *stubDevice) WaitReady(ctx context.Context) error { return nil }
func (d *stubDevice) Reading(ctx context.Context) error   { return nil }
func (d *stubDevice) Channels() []*device.Channel         { return nil }

func defaultScan() chain.ScanParams {
	return chain.ScanParams{NPoints: 5, CountTime: 10 * time.Millisecond}
}

func TestDefaultChain_Get(t *testing.T) {
	t.Parallel()

	dc := chain.NewDefaultChain(sink.NewMemory())
	diode := sim.NewController("diode", device.Software, "d1", "d2")

	c, err := dc.Get(context.Background(), defaultScan(), []any{diode}, nil)
	require.NoError(t, err)

	tops := c.TopMasters()
	require.Len(t, tops, 1)
	require.NotNil(t, c.Timer())
	assert.Same(t, device.Device(c.Timer()), tops[0])
	assert.Equal(t, 5, c.Timer().NPoints())

	slaves := c.Slaves(c.Timer())
	require.Len(t, slaves, 1)
	assert.Equal(t, "diode", slaves[0].Name())

	dev, ok := slaves[0].(*device.PollDevice)
	require.True(t, ok)
	assert.Equal(t, 5, dev.NPoints())
	assert.Equal(t, device.Software, dev.TriggerMode())
	assert.Len(t, dev.Counters(), 2)
}

func TestDefaultChain_SettingsOverrideScanParams(t *testing.T) {
	t.Parallel()

	dc := chain.NewDefaultChain(sink.NewMemory())
	diode := sim.NewController("diode", device.Software, "d1")
	require.NoError(t, dc.SetSettings([]chain.SettingsEntry{{
		Device:      diode,
		Acquisition: chain.AcqParams{"npoints": 7},
	}}))

	c, err := dc.Get(context.Background(), defaultScan(), []any{diode}, nil)
	require.NoError(t, err)

	slaves := c.Slaves(c.Timer())
	require.Len(t, slaves, 1)
	assert.Equal(t, 7, slaves[0].NPoints())
}

func TestDefaultChain_SettingsByCounter(t *testing.T) {
	t.Parallel()

	dc := chain.NewDefaultChain(sink.NewMemory())
	diode := sim.NewController("diode", device.Software, "d1")

	// A counter names its controller's settings.
	require.NoError(t, dc.SetSettings([]chain.SettingsEntry{{
		Device:      diode.Counters()[0],
		Acquisition: chain.AcqParams{"npoints": 9},
	}}))

	c, err := dc.Get(context.Background(), defaultScan(), []any{diode}, nil)
	require.NoError(t, err)
	assert.Equal(t, 9, c.Slaves(c.Timer())[0].NPoints())
}

func TestDefaultChain_MeterRejectsHardwarePacing(t *testing.T) {
	t.Parallel()

	dc := chain.NewDefaultChain(sink.NewMemory())
	pico := sim.NewMeterController("pico", sim.NewMeter("pico", time.Millisecond), sim.HardwareTiming)
	require.NoError(t, dc.SetSettings([]chain.SettingsEntry{{
		Device:      pico,
		Acquisition: chain.AcqParams{"trigger_mode": "GATE"},
	}}))

	_, err := dc.Get(context.Background(), defaultScan(), []any{pico}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "only support software pacing")
}

func TestDefaultChain_DeclaredMasterInserted(t *testing.T) {
	t.Parallel()

	dc := chain.NewDefaultChain(sink.NewMemory())
	diode := sim.NewController("diode", device.Software, "d1")
	musst := sim.NewController("musst", device.Software, "m1")
	require.NoError(t, dc.SetSettings([]chain.SettingsEntry{{
		Device: diode,
		Master: musst,
	}}))

	c, err := dc.Get(context.Background(), defaultScan(), []any{diode}, nil)
	require.NoError(t, err)

	levels := c.Levels()
	require.Len(t, levels, 3)
	assert.Equal(t, "timer", levels[0][0].Name())
	require.Len(t, levels[1], 1)
	assert.Equal(t, "musst", levels[1][0].Name())
	require.Len(t, levels[2], 1)
	assert.Equal(t, "diode", levels[2][0].Name())
}

func TestDefaultChain_CircularMasterFails(t *testing.T) {
	t.Parallel()

	dc := chain.NewDefaultChain(sink.NewMemory())
	a := sim.NewController("a", device.Software, "c1")
	b := sim.NewController("b", device.Software, "c2")
	require.NoError(t, dc.SetSettings([]chain.SettingsEntry{
		{Device: a, Master: b},
		{Device: b, Master: a},
	}))

	_, err := dc.Get(context.Background(), defaultScan(), []any{a}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circular master declaration")
}

func TestDefaultChain_TopMasterAboveTimer(t *testing.T) {
	t.Parallel()

	dc := chain.NewDefaultChain(sink.NewMemory())
	diode := sim.NewController("diode", device.Software, "d1")
	top := &stubDevice{name: "sequencer"}

	c, err := dc.Get(context.Background(), defaultScan(), []any{diode}, top)
	require.NoError(t, err)

	tops := c.TopMasters()
	require.Len(t, tops, 1)
	assert.Same(t, device.Device(top), tops[0])
	slaves := c.Slaves(top)
	require.Len(t, slaves, 1)
	assert.Same(t, device.Device(c.Timer()), slaves[0])
}

func TestDefaultChain_InvalidSettingsDevice(t *testing.T) {
	t.Parallel()

	dc := chain.NewDefaultChain(sink.NewMemory())
	err := dc.SetSettings([]chain.SettingsEntry{{Device: "diode"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be a counter or controller")
}

func TestChain_AddRejectsReparenting(t *testing.T) {
	t.Parallel()

	c := chain.New()
	m1 := &stubDevice{name: "m1"}
	m2 := &stubDevice{name: "m2"}
	slave := &stubDevice{name: "slave"}

	require.NoError(t, c.Add(m1, slave))
	require.NoError(t, c.Add(m1, slave), "same link twice is idempotent")

	err := c.Add(m2, slave)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "multiple masters")
}

func TestChain_AddRejectsDuplicateMasterNames(t *testing.T) {
	t.Parallel()

	c := chain.New()
	require.NoError(t, c.Add(&stubDevice{name: "m"}, &stubDevice{name: "s1"}))
	err := c.Add(&stubDevice{name: "m"}, &stubDevice{name: "s2"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicated name")
}
