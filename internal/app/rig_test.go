package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/scangrid/internal/config"
	"github.com/vk/scangrid/internal/sim"
)

func rigModel() *config.Model {
	return &config.Model{
		Scan: config.ScanConfig{NPoints: 3, CountTime: 10 * time.Millisecond},
		Controllers: []*config.ControllerConfig{
			{Name: "diode", Counters: []string{"d1", "d2"}},
			{Name: "mca", Counters: []string{"spectrum"}, TriggerMode: "SYNC", Master: "diode"},
		},
		Meters: []*config.MeterConfig{
			{Name: "pico", Cycle: time.Millisecond, Timing: "SOFTWARE"},
		},
		Calcs: []*config.CalcConfig{
			{Name: "ratio", Inputs: []string{"diode:d1", "diode:d2"}, Op: "ratio"},
		},
	}
}

func TestBuildRig(t *testing.T) {
	t.Parallel()

	rig, err := BuildRig(rigModel())
	require.NoError(t, err)

	diode, ok := rig.Controller("diode")
	require.True(t, ok)
	assert.Len(t, diode.Counters(), 2)

	mca, ok := rig.Controller("mca")
	require.True(t, ok)
	assert.Same(t, diode, mca.MasterController())

	pico, ok := rig.Controller("pico")
	require.True(t, ok)
	meter, ok := pico.(*sim.MeterController)
	require.True(t, ok)
	require.NotNil(t, meter.Meter())
	assert.Equal(t, time.Millisecond, meter.Meter().CycleCost())

	ratio, ok := rig.Controller("ratio")
	require.True(t, ok)
	calc, ok := ratio.(*sim.CalcController)
	require.True(t, ok)
	assert.Len(t, calc.Inputs(), 2)

	args := rig.CounterArgs()
	require.Len(t, args, 4)
	assert.Same(t, diode, args[0])
}

func TestBuildRig_Errors(t *testing.T) {
	t.Parallel()

	t.Run("unknown trigger mode", func(t *testing.T) {
		t.Parallel()
		model := rigModel()
		model.Controllers[0].TriggerMode = "BURST"
		_, err := BuildRig(model)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown trigger mode")
	})

	t.Run("unknown master", func(t *testing.T) {
		t.Parallel()
		model := rigModel()
		model.Controllers[1].Master = "ghost"
		_, err := BuildRig(model)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `unknown master "ghost"`)
	})

	t.Run("unknown integration timing", func(t *testing.T) {
		t.Parallel()
		model := rigModel()
		model.Meters[0].Timing = "QUANTUM"
		_, err := BuildRig(model)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `unknown integration timing "QUANTUM"`)
	})

	t.Run("unknown calc input", func(t *testing.T) {
		t.Parallel()
		model := rigModel()
		model.Calcs[0].Inputs = []string{"diode:d1", "ghost:g"}
		_, err := BuildRig(model)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `unknown input counter "ghost:g"`)
	})

	t.Run("unknown op", func(t *testing.T) {
		t.Parallel()
		model := rigModel()
		model.Calcs[0].Op = "median"
		_, err := BuildRig(model)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown calc op")
	})
}

func TestRig_ResolveSettings(t *testing.T) {
	t.Parallel()

	rig, err := BuildRig(rigModel())
	require.NoError(t, err)
	diode, _ := rig.Controller("diode")

	t.Run("device by controller name", func(t *testing.T) {
		t.Parallel()
		entries, err := rig.ResolveSettings([]config.SettingsConfig{{
			Device:              "diode",
			AcquisitionSettings: map[string]any{"npoints": 7},
		}})
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Same(t, diode, entries[0].Device)
		assert.Equal(t, 7, entries[0].Acquisition["npoints"])
	})

	t.Run("device by counter fullname", func(t *testing.T) {
		t.Parallel()
		entries, err := rig.ResolveSettings([]config.SettingsConfig{{Device: "mca:spectrum"}})
		require.NoError(t, err)
		require.Len(t, entries, 1)
	})

	t.Run("master resolved", func(t *testing.T) {
		t.Parallel()
		entries, err := rig.ResolveSettings([]config.SettingsConfig{{Device: "mca", Master: "diode"}})
		require.NoError(t, err)
		assert.Same(t, diode, entries[0].Master)
	})

	t.Run("unknown device", func(t *testing.T) {
		t.Parallel()
		_, err := rig.ResolveSettings([]config.SettingsConfig{{Device: "ghost"}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), `unknown device "ghost"`)
	})

	t.Run("unknown master", func(t *testing.T) {
		t.Parallel()
		_, err := rig.ResolveSettings([]config.SettingsConfig{{Device: "diode", Master: "ghost"}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), `unknown master "ghost"`)
	})
}
