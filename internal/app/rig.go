package app

import (
	"fmt"

	"github.com/vk/scangrid/internal/chain"
	"github.com/vk/scangrid/internal/config"
	"github.com/vk/scangrid/internal/counter"
	"github.com/vk/scangrid/internal/device"
	"github.com/vk/scangrid/internal/sim"
)

// Rig is the set of live controllers built from the configuration model,
// ready to be resolved into an acquisition chain.
type Rig struct {
	controllers map[string]counter.Controller
	counters    map[string]*counter.Counter
	order       []counter.Controller
}

// BuildRig instantiates simulated controllers, integrating meters, and
// derived counters from the loaded model, resolving master and input
// references by name.
func BuildRig(model *config.Model) (*Rig, error) {
	rig := &Rig{
		controllers: make(map[string]counter.Controller),
		counters:    make(map[string]*counter.Counter),
	}

	for _, cc := range model.Controllers {
		mode := device.Software
		if cc.TriggerMode != "" {
			parsed, ok := device.ParseTriggerMode(cc.TriggerMode)
			if !ok {
				return nil, fmt.Errorf("controller %q: unknown trigger mode %q", cc.Name, cc.TriggerMode)
			}
			mode = parsed
		}
		ctrl := sim.NewController(cc.Name, mode, cc.Counters...)
		rig.add(ctrl)
	}

	for _, mc := range model.Meters {
		timing := sim.HardwareTiming
		if mc.Timing != "" {
			parsed, ok := sim.ParseIntegrationTiming(mc.Timing)
			if !ok {
				return nil, fmt.Errorf("meter %q: unknown integration timing %q", mc.Name, mc.Timing)
			}
			timing = parsed
		}
		rig.add(sim.NewMeterController(mc.Name, sim.NewMeter(mc.Name, mc.Cycle), timing))
	}

	// Calc blocks are resolved in declaration order, so a calc may feed a
	// later calc but not an earlier one.
	for _, cc := range model.Calcs {
		inputs := make([]*counter.Counter, len(cc.Inputs))
		for i, fullname := range cc.Inputs {
			cnt, ok := rig.counters[fullname]
			if !ok {
				return nil, fmt.Errorf("calc %q: unknown input counter %q", cc.Name, fullname)
			}
			inputs[i] = cnt
		}
		compute, err := sim.ComputeOp(cc.Op, cc.Inputs)
		if err != nil {
			return nil, fmt.Errorf("calc %q: %w", cc.Name, err)
		}
		rig.add(sim.NewCalcController(cc.Name, compute, inputs...))
	}

	// Master links are resolved after all controllers exist so declaration
	// order does not matter for them.
	for _, cc := range model.Controllers {
		if cc.Master == "" {
			continue
		}
		master, ok := rig.controllers[cc.Master]
		if !ok {
			return nil, fmt.Errorf("controller %q: unknown master %q", cc.Name, cc.Master)
		}
		rig.controllers[cc.Name].(*sim.Controller).SetMaster(master)
	}
	for _, mc := range model.Meters {
		if mc.Master == "" {
			continue
		}
		master, ok := rig.controllers[mc.Master]
		if !ok {
			return nil, fmt.Errorf("meter %q: unknown master %q", mc.Name, mc.Master)
		}
		rig.controllers[mc.Name].(*sim.MeterController).SetMaster(master)
	}
	for _, cc := range model.Calcs {
		if cc.Master == "" {
			continue
		}
		master, ok := rig.controllers[cc.Master]
		if !ok {
			return nil, fmt.Errorf("calc %q: unknown master %q", cc.Name, cc.Master)
		}
		rig.controllers[cc.Name].(*sim.CalcController).SetMaster(master)
	}

	return rig, nil
}

func (r *Rig) add(ctrl counter.Controller) {
	r.controllers[ctrl.Name()] = ctrl
	r.order = append(r.order, ctrl)
	for _, cnt := range ctrl.Counters() {
		r.counters[cnt.FullName] = cnt
	}
}

// Controller looks up a controller by name.
func (r *Rig) Controller(name string) (counter.Controller, bool) {
	ctrl, ok := r.controllers[name]
	return ctrl, ok
}

// CounterArgs returns the controllers in declaration order, in the form
// the counter resolver accepts.
func (r *Rig) CounterArgs() []any {
	args := make([]any, len(r.order))
	for i, ctrl := range r.order {
		args[i] = ctrl
	}
	return args
}

// ResolveSettings translates the loaded settings entries into chain
// settings, resolving device and master references against the rig.
func (r *Rig) ResolveSettings(entries []config.SettingsConfig) ([]chain.SettingsEntry, error) {
	resolved := make([]chain.SettingsEntry, 0, len(entries))
	for _, entry := range entries {
		var dev any
		if ctrl, ok := r.controllers[entry.Device]; ok {
			dev = ctrl
		} else if cnt, ok := r.counters[entry.Device]; ok {
			dev = cnt
		} else {
			return nil, fmt.Errorf("settings: unknown device %q", entry.Device)
		}

		out := chain.SettingsEntry{
			Device:      dev,
			Acquisition: chain.AcqParams(entry.AcquisitionSettings),
		}
		if entry.Master != "" {
			master, ok := r.controllers[entry.Master]
			if !ok {
				return nil, fmt.Errorf("settings: device %q: unknown master %q", entry.Device, entry.Master)
			}
			out.Master = master
		}
		resolved = append(resolved, out)
	}
	return resolved, nil
}
