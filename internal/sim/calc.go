package sim

import (
	"context"
	"fmt"
	"time"

	"github.com/vk/scangrid/internal/chain"
	"github.com/vk/scangrid/internal/counter"
	"github.com/vk/scangrid/internal/device"
)

// ValueSource lets a derived device read the points its inputs published.
// The in-memory sink satisfies it.
type ValueSource interface {
	WaitPoint(ctx context.Context, channel string, index int) (device.Point, error)
}

// ComputeFunc derives one value from the input values of the same point
// index, keyed by input fullname.
type ComputeFunc func(inputs map[string]float64) float64

// CalcController owns a single derived counter computed from other
// counters. Its counter list starts with the calc counter itself, followed
// by its dependencies.
type CalcController struct {
	name    string
	self    *counter.Counter
	inputs  []*counter.Counter
	compute ComputeFunc
	master  counter.Controller
}

// NewCalcController creates a derived-counter controller.
func NewCalcController(name string, compute ComputeFunc, inputs ...*counter.Counter) *CalcController {
	c := &CalcController{
		name:    name,
		inputs:  inputs,
		compute: compute,
	}
	c.self = &counter.Counter{
		Name:       name,
		FullName:   name + ":" + name,
		DType:      counter.Float64,
		Controller: c,
	}
	return c
}

func (c *CalcController) Name() string { return c.name }

func (c *CalcController) Counters() []*counter.Counter {
	return append([]*counter.Counter{c.self}, c.inputs...)
}

func (c *CalcController) Inputs() []*counter.Counter { return c.inputs }

func (c *CalcController) MasterController() counter.Controller { return c.master }

// SetMaster declares the parent controller in the hardware hierarchy.
func (c *CalcController) SetMaster(master counter.Controller) { c.master = master }

// Counter returns the derived counter.
func (c *CalcController) Counter() *counter.Counter { return c.self }

// DefaultChainParams implements chain.DeviceFactory. Calc devices are
// always software-paced: they follow the same trigger as their inputs.
func (c *CalcController) DefaultChainParams(scan chain.ScanParams, extra chain.AcqParams) chain.AcqParams {
	params := chain.AcqParams{
		"npoints":      scan.NPoints,
		"count_time":   scan.CountTime,
		"trigger_mode": device.Software.String(),
	}
	for k, v := range extra {
		params[k] = v
	}
	return params
}

// CreateDevice implements chain.DeviceFactory.
func (c *CalcController) CreateDevice(node *chain.Node, scan chain.ScanParams, acq chain.AcqParams, s device.Sink) (device.Device, error) {
	src, ok := s.(ValueSource)
	if !ok {
		return nil, fmt.Errorf("%s: sink %T cannot serve derived counters", c.name, s)
	}
	cfg, err := pollConfigFromParams(c.name, acq)
	if err != nil {
		return nil, err
	}
	if cfg.Mode != device.Software {
		return nil, fmt.Errorf("%s: derived counters only support software pacing", c.name)
	}
	dev := device.NewPollDevice(&calcInstrument{ctrl: c, src: src}, cfg, s)
	for _, cnt := range node.Counters() {
		dev.AddCounter(cnt)
	}
	return dev, nil
}

// calcInstrument is the software-only instrument behind a calc device:
// each acquisition waits for the same point index on every input and
// applies the compute function.
type calcInstrument struct {
	ctrl *CalcController
	src  ValueSource
}

func (i *calcInstrument) Name() string { return i.ctrl.name }

func (i *calcInstrument) ApplyMode(cfg device.ModeConfig) error {
	if cfg.Trigger != device.Software {
		return fmt.Errorf("%s: derived counters only support software pacing", i.ctrl.name)
	}
	return nil
}

func (i *calcInstrument) StartAcquisition(ctx context.Context) error { return nil }
func (i *calcInstrument) StopAcquisition(ctx context.Context) error  { return nil }

func (i *calcInstrument) PollFrames(ctx context.Context, n int, period time.Duration) (*device.Stream, error) {
	return nil, fmt.Errorf("%s: hardware polling unsupported for derived counters", i.ctrl.name)
}

func (i *calcInstrument) SoftwareRun(ctx context.Context, n int, period time.Duration) (*device.Stream, error) {
	index := 0
	next := func(ctx context.Context) (device.Frame, error) {
		values := make(map[string]float64, len(i.ctrl.inputs))
		for _, input := range i.ctrl.inputs {
			point, err := i.src.WaitPoint(ctx, input.FullName, index)
			if err != nil {
				return device.Frame{}, err
			}
			value, err := toFloat(point.Value)
			if err != nil {
				return device.Frame{}, fmt.Errorf("%s: input %q: %w", i.ctrl.name, input.FullName, err)
			}
			values[input.FullName] = value
		}
		index++
		return device.Frame{
			Values: map[string]any{i.ctrl.name: i.ctrl.compute(values)},
		}, nil
	}
	return device.NewStream(next, nil), nil
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint32:
		return float64(n), nil
	}
	return 0, fmt.Errorf("value %T is not numeric", v)
}

var _ counter.CalcController = (*CalcController)(nil)
var _ chain.DeviceFactory = (*CalcController)(nil)
var _ device.Instrument = (*calcInstrument)(nil)
