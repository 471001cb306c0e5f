package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSettings(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0600))
	return path
}

func TestLoadSettings(t *testing.T) {
	t.Parallel()

	path := writeSettings(t, `
- device: diode
  master: musst
  acquisition_settings:
    trigger_mode: GATE
    block_size: 50
- device: mca:spectrum
`)

	entries, err := LoadSettings(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "diode", entries[0].Device)
	assert.Equal(t, "musst", entries[0].Master)
	assert.Equal(t, "GATE", entries[0].AcquisitionSettings["trigger_mode"])
	assert.Equal(t, 50, entries[0].AcquisitionSettings["block_size"])

	assert.Equal(t, "mca:spectrum", entries[1].Device)
	assert.Empty(t, entries[1].Master)
	assert.Nil(t, entries[1].AcquisitionSettings)
}

func TestLoadSettings_Errors(t *testing.T) {
	t.Parallel()

	t.Run("missing device", func(t *testing.T) {
		t.Parallel()
		path := writeSettings(t, `
- master: musst
`)
		_, err := LoadSettings(context.Background(), path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "device is required")
	})

	t.Run("invalid yaml", func(t *testing.T) {
		t.Parallel()
		path := writeSettings(t, `{not a list`)
		_, err := LoadSettings(context.Background(), path)
		require.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()
		_, err := LoadSettings(context.Background(), filepath.Join(t.TempDir(), "absent.yaml"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to read settings file")
	})
}
