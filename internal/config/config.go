// Package config loads the scan rig definition from HCL files and the
// per-controller acquisition settings from YAML, translating both into a
// format-agnostic model the application wires into a chain.
package config

import (
	"fmt"
	"time"
)

// Model is the aggregated rig definition loaded from configuration.
type Model struct {
	Scan        ScanConfig
	Controllers []*ControllerConfig
	Meters      []*MeterConfig
	Calcs       []*CalcConfig
}

// ScanConfig holds the scan-wide acquisition parameters.
type ScanConfig struct {
	NPoints   int
	CountTime time.Duration
	SleepTime time.Duration
}

// ControllerConfig declares one simulated hardware controller.
type ControllerConfig struct {
	Name        string
	Counters    []string
	TriggerMode string
	Master      string
}

// MeterConfig declares one integrating counter backed by a buffered meter.
type MeterConfig struct {
	Name   string
	Cycle  time.Duration
	Timing string
	Master string
}

// CalcConfig declares one derived counter computed from other counters.
type CalcConfig struct {
	Name   string
	Inputs []string
	Op     string
	Master string
}

// Validate checks cross-block consistency the decoder cannot express.
func (m *Model) Validate() error {
	if m.Scan.NPoints < 0 {
		return fmt.Errorf("scan: npoints must not be negative, got %d", m.Scan.NPoints)
	}
	if m.Scan.CountTime <= 0 {
		return fmt.Errorf("scan: count_time must be positive, got %s", m.Scan.CountTime)
	}

	seen := make(map[string]bool)
	for _, ctrl := range m.Controllers {
		if seen[ctrl.Name] {
			return fmt.Errorf("controller %q declared twice", ctrl.Name)
		}
		seen[ctrl.Name] = true
		if len(ctrl.Counters) == 0 {
			return fmt.Errorf("controller %q: at least one counter is required", ctrl.Name)
		}
	}
	for _, meter := range m.Meters {
		if seen[meter.Name] {
			return fmt.Errorf("meter %q collides with another block of the same name", meter.Name)
		}
		seen[meter.Name] = true
		if meter.Cycle <= 0 {
			return fmt.Errorf("meter %q: cycle must be positive, got %s", meter.Name, meter.Cycle)
		}
	}
	for _, calc := range m.Calcs {
		if seen[calc.Name] {
			return fmt.Errorf("calc %q collides with another block of the same name", calc.Name)
		}
		seen[calc.Name] = true
		if len(calc.Inputs) == 0 {
			return fmt.Errorf("calc %q: at least one input is required", calc.Name)
		}
	}
	return nil
}
