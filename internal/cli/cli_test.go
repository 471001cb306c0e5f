package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_NoArgsPrintsUsage(t *testing.T) {
	t.Parallel()

	out := &bytes.Buffer{}
	cfg, shouldExit, err := Parse(nil, out)
	require.NoError(t, err)
	assert.True(t, shouldExit)
	assert.Nil(t, cfg)
	assert.Contains(t, out.String(), "Usage:")
}

func TestParse_HelpFlag(t *testing.T) {
	t.Parallel()

	out := &bytes.Buffer{}
	cfg, shouldExit, err := Parse([]string{"-h"}, out)
	require.NoError(t, err)
	assert.True(t, shouldExit)
	assert.Nil(t, cfg)
}

func TestParse_PositionalScanPath(t *testing.T) {
	t.Parallel()

	out := &bytes.Buffer{}
	cfg, shouldExit, err := Parse([]string{"rig.hcl"}, out)
	require.NoError(t, err)
	require.False(t, shouldExit)
	require.NotNil(t, cfg)
	assert.Equal(t, "rig.hcl", cfg.ScanPath)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestParse_FlagsOverridePositional(t *testing.T) {
	t.Parallel()

	out := &bytes.Buffer{}
	cfg, shouldExit, err := Parse([]string{
		"--scan", "rig.hcl",
		"--settings", "settings.yaml",
		"--log-format", "text",
		"--log-level", "DEBUG",
		"--healthcheck-port", "8080",
	}, out)
	require.NoError(t, err)
	require.False(t, shouldExit)
	assert.Equal(t, "rig.hcl", cfg.ScanPath)
	assert.Equal(t, "settings.yaml", cfg.SettingsPath)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "debug", cfg.LogLevel, "log level is lower-cased")
	assert.Equal(t, 8080, cfg.HealthcheckPort)
}

func TestParse_Shorthand(t *testing.T) {
	t.Parallel()

	out := &bytes.Buffer{}
	cfg, _, err := Parse([]string{"-s", "rig.hcl"}, out)
	require.NoError(t, err)
	assert.Equal(t, "rig.hcl", cfg.ScanPath)
}

func TestParse_InvalidValues(t *testing.T) {
	t.Parallel()

	t.Run("log format", func(t *testing.T) {
		t.Parallel()
		_, _, err := Parse([]string{"--log-format", "xml", "rig.hcl"}, &bytes.Buffer{})
		require.Error(t, err)
		exitErr, ok := err.(*ExitError)
		require.True(t, ok)
		assert.Equal(t, 2, exitErr.Code)
		assert.Contains(t, exitErr.Message, "invalid log-format")
	})

	t.Run("log level", func(t *testing.T) {
		t.Parallel()
		_, _, err := Parse([]string{"--log-level", "verbose", "rig.hcl"}, &bytes.Buffer{})
		require.Error(t, err)
		exitErr, ok := err.(*ExitError)
		require.True(t, ok)
		assert.Equal(t, 2, exitErr.Code)
		assert.Contains(t, exitErr.Message, "invalid log-level")
	})

	t.Run("unknown flag", func(t *testing.T) {
		t.Parallel()
		_, _, err := Parse([]string{"--no-such-flag"}, &bytes.Buffer{})
		require.Error(t, err)
		exitErr, ok := err.(*ExitError)
		require.True(t, ok)
		assert.Equal(t, 2, exitErr.Code)
	})
}
