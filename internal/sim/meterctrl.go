package sim

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vk/scangrid/internal/chain"
	"github.com/vk/scangrid/internal/counter"
	"github.com/vk/scangrid/internal/device"
	"github.com/vk/scangrid/internal/integrate"
)

// IntegrationTiming selects which back-end integrates a meter counter over
// the count time of each point.
type IntegrationTiming int

const (
	// HardwareTiming buffers samples on the meter's own clock and fetches
	// one averaged reading per point.
	HardwareTiming IntegrationTiming = iota
	// SoftwareTiming issues back-to-back synchronous reads for the count
	// time and averages in the host.
	SoftwareTiming
)

func (t IntegrationTiming) String() string {
	if t == SoftwareTiming {
		return "SOFTWARE"
	}
	return "HARDWARE"
}

// ParseIntegrationTiming converts a configuration string into an
// IntegrationTiming.
func ParseIntegrationTiming(s string) (IntegrationTiming, bool) {
	switch s {
	case "HARDWARE":
		return HardwareTiming, true
	case "SOFTWARE":
		return SoftwareTiming, true
	}
	return HardwareTiming, false
}

// MeterController owns a single integrating counter backed by a buffered
// meter. Each scan point runs one full integration over the count time,
// using the configured timing back-end.
type MeterController struct {
	name   string
	self   *counter.Counter
	meter  *Meter
	timing IntegrationTiming
	master counter.Controller
}

// NewMeterController creates a controller integrating the given meter.
func NewMeterController(name string, meter *Meter, timing IntegrationTiming) *MeterController {
	c := &MeterController{
		name:   name,
		meter:  meter,
		timing: timing,
	}
	c.self = &counter.Counter{
		Name:       name,
		FullName:   name + ":" + name,
		DType:      counter.Float64,
		Controller: c,
	}
	return c
}

func (c *MeterController) Name() string                         { return c.name }
func (c *MeterController) Counters() []*counter.Counter         { return []*counter.Counter{c.self} }
func (c *MeterController) MasterController() counter.Controller { return c.master }

// SetMaster declares the parent controller in the hardware hierarchy.
func (c *MeterController) SetMaster(master counter.Controller) { c.master = master }

// Meter exposes the simulated meter for tests and failure injection.
func (c *MeterController) Meter() *Meter { return c.meter }

// DefaultChainParams implements chain.DeviceFactory. Integrating meters
// are always software-paced: the integration itself fills the count time
// of each point.
func (c *MeterController) DefaultChainParams(scan chain.ScanParams, extra chain.AcqParams) chain.AcqParams {
	params := chain.AcqParams{
		"npoints":      scan.NPoints,
		"count_time":   scan.CountTime,
		"trigger_mode": device.Software.String(),
		"timing":       c.timing.String(),
	}
	for k, v := range extra {
		params[k] = v
	}
	return params
}

// CreateDevice implements chain.DeviceFactory.
func (c *MeterController) CreateDevice(node *chain.Node, scan chain.ScanParams, acq chain.AcqParams, s device.Sink) (device.Device, error) {
	cfg, err := pollConfigFromParams(c.name, acq)
	if err != nil {
		return nil, err
	}
	if cfg.Mode != device.Software {
		return nil, fmt.Errorf("%s: integrating meters only support software pacing", c.name)
	}

	timing := c.timing
	if raw, ok := acq["timing"].(string); ok && raw != "" {
		parsed, ok := ParseIntegrationTiming(raw)
		if !ok {
			return nil, fmt.Errorf("%s: unknown integration timing %q", c.name, raw)
		}
		timing = parsed
	}

	dev := device.NewPollDevice(&meterInstrument{ctrl: c, timing: timing}, cfg, s)
	for _, cnt := range node.Counters() {
		dev.AddCounter(cnt)
	}
	return dev, nil
}

// meterInstrument is the software-only instrument behind a meter device:
// each acquisition runs one integration back-end to completion and yields
// its averaged value.
type meterInstrument struct {
	ctrl   *MeterController
	timing IntegrationTiming

	mu         sync.Mutex
	presetTime time.Duration
	active     integrate.Acquisition
}

func (i *meterInstrument) Name() string { return i.ctrl.name }

func (i *meterInstrument) ApplyMode(cfg device.ModeConfig) error {
	if cfg.Trigger != device.Software {
		return fmt.Errorf("%s: integrating meters only support software pacing", i.ctrl.name)
	}
	if cfg.PresetTime <= 0 {
		return fmt.Errorf("%s: software mode requires a preset time", i.ctrl.name)
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	i.presetTime = cfg.PresetTime
	return nil
}

func (i *meterInstrument) StartAcquisition(ctx context.Context) error { return nil }

// StopAcquisition aborts the in-flight integration, if any, and halts the
// meter. Idempotent.
func (i *meterInstrument) StopAcquisition(ctx context.Context) error {
	i.mu.Lock()
	active := i.active
	i.mu.Unlock()
	if active != nil {
		return active.Abort(ctx)
	}
	return i.ctrl.meter.Abort(ctx)
}

func (i *meterInstrument) PollFrames(ctx context.Context, n int, period time.Duration) (*device.Stream, error) {
	return nil, fmt.Errorf("%s: hardware polling unsupported for integrating meters", i.ctrl.name)
}

func (i *meterInstrument) SoftwareRun(ctx context.Context, n int, period time.Duration) (*device.Stream, error) {
	i.mu.Lock()
	presetTime := i.presetTime
	i.mu.Unlock()
	if presetTime <= 0 {
		return nil, fmt.Errorf("%s: software run before mode configuration", i.ctrl.name)
	}

	next := func(ctx context.Context) (device.Frame, error) {
		var acq integrate.Acquisition
		if i.timing == SoftwareTiming {
			acq = integrate.NewSoftwareAcquisition(i.ctrl.meter, presetTime)
		} else {
			acq = integrate.NewHardwareAcquisition(i.ctrl.meter, presetTime)
		}
		if err := acq.Prepare(ctx); err != nil {
			return device.Frame{}, err
		}
		i.mu.Lock()
		i.active = acq
		i.mu.Unlock()
		if err := acq.Start(ctx); err != nil {
			return device.Frame{}, err
		}
		value, err := acq.Value(ctx)
		i.mu.Lock()
		i.active = nil
		i.mu.Unlock()
		if err != nil {
			return device.Frame{}, err
		}
		return device.Frame{
			Values: map[string]any{i.ctrl.name: value},
		}, nil
	}
	return device.NewStream(next, nil), nil
}

var _ counter.Controller = (*MeterController)(nil)
var _ chain.DeviceFactory = (*MeterController)(nil)
var _ device.Instrument = (*meterInstrument)(nil)
