package config

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/vk/scangrid/internal/ctxlog"
)

// SettingsConfig is one per-device acquisition override loaded from the
// YAML settings file. Device names a controller (or one of its counters by
// fullname); master optionally pins the device under another controller in
// the chain.
type SettingsConfig struct {
	Device              string         `yaml:"device"`
	Master              string         `yaml:"master,omitempty"`
	AcquisitionSettings map[string]any `yaml:"acquisition_settings,omitempty"`
}

// LoadSettings reads the YAML settings file, a list of per-device entries.
func LoadSettings(ctx context.Context, path string) ([]SettingsConfig, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Loading acquisition settings.", "path", path)

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}
	var entries []SettingsConfig
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode settings file %s: %w", path, err)
	}
	for i, entry := range entries {
		if entry.Device == "" {
			return nil, fmt.Errorf("%s: settings entry %d: device is required", path, i)
		}
	}
	logger.Debug("Acquisition settings loaded.", "entries", len(entries))
	return entries, nil
}
