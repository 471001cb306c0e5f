package chain

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/vk/scangrid/internal/device"
)

// Chain is the scheduling topology of one scan: a tree of acquisition
// devices under one or more top masters, plus attached presets. Graph
// construction (pure dependency) stays in Builder; the chain only decides
// pacing and parenting, so one graph can serve different topologies.
type Chain struct {
	id      uuid.UUID
	slaves  map[device.Device][]device.Device
	parent  map[device.Device]device.Device
	order   []device.Device
	presets []Preset
	timer   *TimerMaster
}

// New creates an empty acquisition chain with a fresh scan identity.
func New() *Chain {
	return &Chain{
		id:     uuid.New(),
		slaves: make(map[device.Device][]device.Device),
		parent: make(map[device.Device]device.Device),
	}
}

// ID is the scan identifier stamped on runs and log lines.
func (c *Chain) ID() uuid.UUID { return c.id }

// Timer returns the software pacing master, when the chain was assembled
// by DefaultChain.
func (c *Chain) Timer() *TimerMaster { return c.timer }

// Add links slave under master. A device cannot be re-parented to a
// different master; masters must have unique names.
func (c *Chain) Add(master, slave device.Device) error {
	if master == nil || slave == nil {
		return fmt.Errorf("chain: cannot add a nil device")
	}
	if existing, ok := c.parent[slave]; ok {
		if existing == master {
			return nil
		}
		return fmt.Errorf(
			"cannot add device %q to multiple masters, current master is %q",
			slave.Name(), existing.Name(),
		)
	}

	if !c.known(master) {
		for _, dev := range c.order {
			if dev.Name() == master.Name() {
				return fmt.Errorf("cannot add master with name %q: duplicated name", master.Name())
			}
		}
		c.order = append(c.order, master)
	}
	if !c.known(slave) {
		c.order = append(c.order, slave)
	}

	c.slaves[master] = append(c.slaves[master], slave)
	c.parent[slave] = master
	return nil
}

func (c *Chain) known(dev device.Device) bool {
	if _, ok := c.parent[dev]; ok {
		return true
	}
	for _, d := range c.order {
		if d == dev {
			return true
		}
	}
	return false
}

// Slaves returns the direct slaves of a master, in add order.
func (c *Chain) Slaves(master device.Device) []device.Device {
	return c.slaves[master]
}

// TopMasters returns the devices with no parent, in add order.
func (c *Chain) TopMasters() []device.Device {
	var tops []device.Device
	for _, dev := range c.order {
		if _, ok := c.parent[dev]; !ok {
			tops = append(tops, dev)
		}
	}
	return tops
}

// Levels returns the devices grouped by tree depth, shallowest first,
// masters before their slaves within the walk.
func (c *Chain) Levels() [][]device.Device {
	var levels [][]device.Device
	current := c.TopMasters()
	for len(current) > 0 {
		levels = append(levels, current)
		var next []device.Device
		for _, dev := range current {
			next = append(next, c.slaves[dev]...)
		}
		current = next
	}
	return levels
}

// Devices returns every device, breadth-first, masters before slaves.
func (c *Chain) Devices() []device.Device {
	var out []device.Device
	for _, level := range c.Levels() {
		out = append(out, level...)
	}
	return out
}

// AddPreset attaches a scan-lifecycle hook to the chain.
func (c *Chain) AddPreset(p Preset) {
	c.presets = append(c.presets, p)
}

// Presets returns the attached presets in add order.
func (c *Chain) Presets() []Preset { return c.presets }
