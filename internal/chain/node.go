// Package chain turns a flat counter list into a deduplicated controller
// graph, assembles that graph under a pacing master, and drives the
// resulting device tree through a point-by-point scan.
package chain

import (
	"context"
	"fmt"
	"time"

	"github.com/vk/scangrid/internal/counter"
	"github.com/vk/scangrid/internal/device"
)

// ScanParams are the per-scan pacing parameters.
type ScanParams struct {
	CountTime time.Duration
	NPoints   int
	// SleepTime is an extra settle delay between points.
	SleepTime time.Duration
}

// AcqParams are per-device acquisition settings, opaque to the chain and
// interpreted by the controller's device factory.
type AcqParams map[string]any

// merged returns a copy of base overlaid with extra.
func (p AcqParams) merged(extra AcqParams) AcqParams {
	out := make(AcqParams, len(p)+len(extra))
	for k, v := range p {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// NodeProvider lets a controller describe a customized chain node.
// Controllers without it get a standard node.
type NodeProvider interface {
	CreateChainNode() *Node
}

// DeviceFactory is implemented by controllers that can build the
// acquisition device for their node.
type DeviceFactory interface {
	// DefaultChainParams resolves the effective acquisition parameters
	// for a default-chain scan from the scan parameters and any declared
	// settings.
	DefaultChainParams(scan ScanParams, acq AcqParams) AcqParams
	// CreateDevice builds the device for the node using the parameters
	// previously stored on it.
	CreateDevice(node *Node, scan ScanParams, acq AcqParams, sink device.Sink) (device.Device, error)
}

// Node is the per-controller graph vertex. Exactly one node exists per
// distinct controller instance per scan; it is mutated only during graph
// construction and then consumed by the execution phase.
type Node struct {
	// Kind distinguishes customized node flavors supplied by
	// NodeProviders. Standard nodes are "standard".
	Kind string

	controller counter.Controller
	counters   []*counter.Counter
	children   []*Node
	calcDeps   map[counter.Controller]*Node

	topLevel     bool
	defaultChain bool

	scanParams ScanParams
	acqParams  AcqParams
	paramsSet  bool

	acqObj device.Device
}

// NewNode wraps a controller in a standard chain node.
func NewNode(ctrl counter.Controller) *Node {
	return &Node{
		Kind:       "standard",
		controller: ctrl,
		calcDeps:   make(map[counter.Controller]*Node),
		topLevel:   true,
	}
}

func (n *Node) Controller() counter.Controller { return n.controller }
func (n *Node) Counters() []*counter.Counter   { return n.counters }
func (n *Node) Children() []*Node              { return n.children }

// CalcDependencies maps, for a calc controller, every dependency
// controller to its already-built node.
func (n *Node) CalcDependencies() map[counter.Controller]*Node { return n.calcDeps }

// IsTopLevel reports whether no master controller was resolved above this
// node.
func (n *Node) IsTopLevel() bool { return n.topLevel }

// IsDefaultChain reports whether the node was built in default mode, where
// controllers build their implicit standard device.
func (n *Node) IsDefaultChain() bool { return n.defaultChain }

// AcquisitionObj returns the attached device, or nil while unattached.
func (n *Node) AcquisitionObj() device.Device { return n.acqObj }

// AddCounter attaches a counter to the node. Insertion order is not
// significant; duplicates are ignored.
func (n *Node) AddCounter(cnt *counter.Counter) {
	for _, existing := range n.counters {
		if existing.FullName == cnt.FullName {
			return
		}
	}
	n.counters = append(n.counters, cnt)
}

// AddChild links a child node under this one, once.
func (n *Node) AddChild(child *Node) {
	for _, existing := range n.children {
		if existing == child {
			return
		}
	}
	n.children = append(n.children, child)
	child.topLevel = false
}

// SetParameters stores the scan and acquisition parameters used to build
// the node's device.
func (n *Node) SetParameters(scan ScanParams, acq AcqParams) {
	n.scanParams = scan
	n.acqParams = acq
	n.paramsSet = true
}

// EnsureDevice builds and attaches the node's acquisition device from the
// stored parameters, once. The controller must implement DeviceFactory.
func (n *Node) EnsureDevice(ctx context.Context, sink device.Sink) (device.Device, error) {
	if n.acqObj != nil {
		return n.acqObj, nil
	}
	factory, ok := n.controller.(DeviceFactory)
	if !ok {
		return nil, fmt.Errorf("controller %q cannot build an acquisition device", n.controller.Name())
	}
	if !n.paramsSet {
		return nil, fmt.Errorf("controller %q: node parameters were never set", n.controller.Name())
	}
	dev, err := factory.CreateDevice(n, n.scanParams, n.acqParams, sink)
	if err != nil {
		return nil, fmt.Errorf("controller %q: building device: %w", n.controller.Name(), err)
	}
	n.acqObj = dev
	return dev, nil
}
