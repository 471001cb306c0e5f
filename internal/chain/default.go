package chain

import (
	"context"
	"fmt"

	"github.com/vk/scangrid/internal/counter"
	"github.com/vk/scangrid/internal/ctxlog"
	"github.com/vk/scangrid/internal/device"
)

// Settings are the default acquisition parameters declared for one
// controller in the default scan chain, plus an optional master controller
// to parent it under.
type Settings struct {
	Acquisition AcqParams
	Master      counter.Controller
}

// SettingsEntry is one declaration in a settings list. Device accepts a
// *counter.Counter (its controller is used) or a counter.Controller.
type SettingsEntry struct {
	Device      any
	Acquisition AcqParams
	Master      counter.Controller
}

// DefaultChain assembles the standard scan topology: every top-level node
// parented (directly or through its declared masters) under one software
// timer.
type DefaultChain struct {
	settings map[counter.Controller]Settings
	presets  []Preset
	sink     device.Sink
}

// NewDefaultChain creates a default chain publishing points to sink.
func NewDefaultChain(sink device.Sink) *DefaultChain {
	return &DefaultChain{
		settings: make(map[counter.Controller]Settings),
		sink:     sink,
	}
}

// SetSettings replaces the per-controller default acquisition parameters.
func (d *DefaultChain) SetSettings(entries []SettingsEntry) error {
	settings := make(map[counter.Controller]Settings, len(entries))
	for _, entry := range entries {
		var ctrl counter.Controller
		switch v := entry.Device.(type) {
		case *counter.Counter:
			ctrl = v.Controller
		case counter.Controller:
			ctrl = v
		default:
			return fmt.Errorf("settings device must be a counter or controller, got %T", entry.Device)
		}
		if ctrl == nil {
			return fmt.Errorf("settings entry has no resolvable controller")
		}
		settings[ctrl] = Settings{
			Acquisition: entry.Acquisition,
			Master:      entry.Master,
		}
	}
	d.settings = settings
	return nil
}

// AddPreset registers a preset attached to every chain built by Get.
func (d *DefaultChain) AddPreset(p Preset) {
	d.presets = append(d.presets, p)
}

// Get builds the chain for one scan: a timer master from the scan
// parameters, the node graph in default mode, each top-level sub-chain
// hung under the timer through any declared ancestor masters, presets
// attached, and an optional topMaster above the timer.
func (d *DefaultChain) Get(ctx context.Context, scan ScanParams, counterArgs []any, topMaster device.Device) (*Chain, error) {
	logger := ctxlog.FromContext(ctx)

	timer := NewTimerMaster(scan, d.sink)

	builder, err := NewDefaultBuilder(counterArgs...)
	if err != nil {
		return nil, err
	}

	c := New()
	c.timer = timer

	for _, node := range builder.Nodes() {
		settings, declared := d.settings[node.Controller()]

		var extra AcqParams
		if declared {
			extra = settings.Acquisition
		}
		if err := d.applyNode(ctx, node, scan, extra); err != nil {
			return nil, err
		}
		for _, child := range node.Children() {
			if err := d.applyNode(ctx, child, scan, nil); err != nil {
				return nil, err
			}
			if err := c.Add(node.AcquisitionObj(), child.AcquisitionObj()); err != nil {
				return nil, err
			}
		}

		// Walk declared ancestors, creating and configuring their nodes,
		// until no further master is declared. A revisited controller is a
		// circular declaration and fails the build.
		top := node
		if declared {
			seen := map[counter.Controller]bool{node.Controller(): true}
			master := settings.Master
			for master != nil {
				if seen[master] {
					return nil, fmt.Errorf("circular master declaration involving controller %q", master.Name())
				}
				seen[master] = true

				masterNode, err := builder.CreateNode(master)
				if err != nil {
					return nil, err
				}

				var masterExtra AcqParams
				var next counter.Controller
				if ms, ok := d.settings[master]; ok {
					masterExtra = ms.Acquisition
					next = ms.Master
				}
				if err := d.applyNode(ctx, masterNode, scan, masterExtra); err != nil {
					return nil, err
				}
				if err := c.Add(masterNode.AcquisitionObj(), top.AcquisitionObj()); err != nil {
					return nil, err
				}
				top = masterNode
				master = next
			}
		}

		if err := c.Add(timer, top.AcquisitionObj()); err != nil {
			return nil, err
		}
	}

	for _, p := range d.presets {
		c.AddPreset(p)
	}

	if topMaster != nil {
		if err := c.Add(topMaster, timer); err != nil {
			return nil, err
		}
	}

	logger.Debug("Default chain assembled.",
		"scan_id", c.ID().String(),
		"devices", len(c.Devices()),
		"presets", len(c.Presets()),
	)
	return c, nil
}

// applyNode resolves effective parameters through the controller's device
// factory, stores them, and attaches the node's device.
func (d *DefaultChain) applyNode(ctx context.Context, node *Node, scan ScanParams, extra AcqParams) error {
	params := extra
	if factory, ok := node.Controller().(DeviceFactory); ok {
		params = factory.DefaultChainParams(scan, extra)
	}
	node.SetParameters(scan, params)
	_, err := node.EnsureDevice(ctx, d.sink)
	return err
}
