package app

import "errors"

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	ScanPath     string // hcl rig definition
	SettingsPath string // yaml acquisition settings, optional

	LogFormat       string
	LogLevel        string
	HealthcheckPort int
}

func NewConfig(cfg Config) (*Config, error) {
	if cfg.ScanPath == "" {
		return nil, errors.New("ScanPath is a required configuration field and cannot be empty")
	}

	return &cfg, nil
}
