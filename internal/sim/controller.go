package sim

import (
	"fmt"
	"time"

	"github.com/vk/scangrid/internal/chain"
	"github.com/vk/scangrid/internal/counter"
	"github.com/vk/scangrid/internal/device"
)

// Controller is a simulated hardware controller owning a set of real
// counters read through one Instrument. It builds its own chain device, so
// it implements both counter.Controller and chain.DeviceFactory.
type Controller struct {
	name     string
	counters []*counter.Counter
	master   counter.Controller
	inst     *Instrument
	mode     device.TriggerMode
}

// NewController creates a controller with one counter per name. The
// trigger mode is the controller's default; per-scan settings can override
// it.
func NewController(name string, mode device.TriggerMode, counterNames ...string) *Controller {
	c := &Controller{
		name: name,
		inst: NewInstrument(name, counterNames...),
		mode: mode,
	}
	for _, cname := range counterNames {
		c.counters = append(c.counters, &counter.Counter{
			Name:       cname,
			FullName:   name + ":" + cname,
			DType:      counter.Float64,
			Controller: c,
		})
	}
	return c
}

func (c *Controller) Name() string                         { return c.name }
func (c *Controller) Counters() []*counter.Counter         { return c.counters }
func (c *Controller) MasterController() counter.Controller { return c.master }

// SetMaster declares the parent controller in the hardware hierarchy.
func (c *Controller) SetMaster(master counter.Controller) { c.master = master }

// Instrument exposes the simulated hardware for tests and failure
// injection.
func (c *Controller) Instrument() *Instrument { return c.inst }

// DefaultChainParams implements chain.DeviceFactory: scan parameters plus
// the controller's defaults, overridden by declared settings.
func (c *Controller) DefaultChainParams(scan chain.ScanParams, extra chain.AcqParams) chain.AcqParams {
	params := chain.AcqParams{
		"npoints":      scan.NPoints,
		"count_time":   scan.CountTime,
		"trigger_mode": c.mode.String(),
	}
	for k, v := range extra {
		params[k] = v
	}
	return params
}

// CreateDevice implements chain.DeviceFactory.
func (c *Controller) CreateDevice(node *chain.Node, scan chain.ScanParams, acq chain.AcqParams, s device.Sink) (device.Device, error) {
	cfg, err := pollConfigFromParams(c.name, acq)
	if err != nil {
		return nil, err
	}
	dev := device.NewPollDevice(c.inst, cfg, s)
	for _, cnt := range node.Counters() {
		dev.AddCounter(cnt)
	}
	return dev, nil
}

// pollConfigFromParams decodes the opaque acquisition parameters a scan
// declared for this controller.
func pollConfigFromParams(name string, acq chain.AcqParams) (device.PollConfig, error) {
	var cfg device.PollConfig
	var err error

	if cfg.NPoints, err = intParam(acq, "npoints", 0); err != nil {
		return cfg, fmt.Errorf("%s: %w", name, err)
	}
	if cfg.PresetTime, err = durationParam(acq, "count_time", 0); err != nil {
		return cfg, fmt.Errorf("%s: %w", name, err)
	}
	if cfg.PollPeriod, err = durationParam(acq, "poll_period", 0); err != nil {
		return cfg, fmt.Errorf("%s: %w", name, err)
	}
	if cfg.BlockSize, err = intParam(acq, "block_size", 0); err != nil {
		return cfg, fmt.Errorf("%s: %w", name, err)
	}

	modeStr, _ := acq["trigger_mode"].(string)
	if modeStr == "" {
		modeStr = device.Software.String()
	}
	mode, ok := device.ParseTriggerMode(modeStr)
	if !ok {
		return cfg, fmt.Errorf("%s: unknown trigger mode %q", name, modeStr)
	}
	cfg.Mode = mode
	return cfg, nil
}

func intParam(acq chain.AcqParams, key string, fallback int) (int, error) {
	v, ok := acq[key]
	if !ok {
		return fallback, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	}
	return 0, fmt.Errorf("parameter %q: expected an integer, got %T", key, v)
}

// durationParam accepts a time.Duration, a float64 in seconds, or a
// duration string, the forms settings files and code produce.
func durationParam(acq chain.AcqParams, key string, fallback time.Duration) (time.Duration, error) {
	v, ok := acq[key]
	if !ok {
		return fallback, nil
	}
	switch d := v.(type) {
	case time.Duration:
		return d, nil
	case float64:
		return time.Duration(d * float64(time.Second)), nil
	case int:
		return time.Duration(d) * time.Second, nil
	case string:
		parsed, err := time.ParseDuration(d)
		if err != nil {
			return 0, fmt.Errorf("parameter %q: %w", key, err)
		}
		return parsed, nil
	}
	return 0, fmt.Errorf("parameter %q: expected a duration, got %T", key, v)
}

var _ counter.Controller = (*Controller)(nil)
var _ chain.DeviceFactory = (*Controller)(nil)
