// Package app wires configuration, the simulated rig, and the acquisition
// chain into a runnable application with its own isolated logger.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/vk/scangrid/internal/chain"
	"github.com/vk/scangrid/internal/config"
	"github.com/vk/scangrid/internal/ctxlog"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	config   *Config
	model    *config.Model
	rig      *Rig
	settings []chain.SettingsEntry
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance, including its own isolated logger and rig.
// Configuration failures are fatal startup errors and panic.
func NewApp(outW io.Writer, appConfig *Config) *App {
	logger := newLogger(appConfig.LogLevel, appConfig.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	model, err := config.LoadRig(ctx, appConfig.ScanPath)
	if err != nil {
		panic(fmt.Errorf("failed to load configuration: %w", err))
	}
	logger.Debug("Configuration loaded and translated into unified model.")

	rig, err := BuildRig(model)
	if err != nil {
		panic(fmt.Errorf("failed to build rig: %w", err))
	}
	logger.Debug("Rig built.", "controllers", len(model.Controllers), "calcs", len(model.Calcs))

	var settings []chain.SettingsEntry
	if appConfig.SettingsPath != "" {
		entries, err := config.LoadSettings(ctx, appConfig.SettingsPath)
		if err != nil {
			panic(fmt.Errorf("failed to load settings: %w", err))
		}
		if settings, err = rig.ResolveSettings(entries); err != nil {
			panic(fmt.Errorf("failed to resolve settings: %w", err))
		}
		logger.Debug("Acquisition settings resolved.", "entries", len(settings))
	}

	return &App{
		outW:     outW,
		logger:   logger,
		config:   appConfig,
		model:    model,
		rig:      rig,
		settings: settings,
	}
}

// Rig returns the application's rig. This is primarily for testing.
func (a *App) Rig() *Rig {
	return a.rig
}
