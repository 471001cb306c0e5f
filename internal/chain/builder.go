package chain

import (
	"fmt"

	"github.com/vk/scangrid/internal/counter"
	"github.com/vk/scangrid/internal/device"
)

// Builder resolves a flat counter list into a cached, deduplicated node
// graph. Real counters are processed before calc counters; calc counters
// are ordered by a verified topological sort over their dependency graph,
// failing fast on cycles, so every dependency's node exists before a calc
// node is created.
type Builder struct {
	counters    []*counter.Counter
	cache       map[counter.Controller]*Node
	order       []*Node
	defaultMode bool
}

// NewBuilder resolves the counter arguments and builds the node graph.
func NewBuilder(args ...any) (*Builder, error) {
	return newBuilder(false, args)
}

// NewDefaultBuilder is NewBuilder in default mode: every produced node is
// tagged so controllers build their implicit standard device rather than a
// caller-customized one.
func NewDefaultBuilder(args ...any) (*Builder, error) {
	return newBuilder(true, args)
}

func newBuilder(defaultMode bool, args []any) (*Builder, error) {
	counters, err := counter.Resolve(args...)
	if err != nil {
		return nil, err
	}

	var real, calc []*counter.Counter
	for _, cnt := range counters {
		if counter.IsCalc(cnt) {
			calc = append(calc, cnt)
		} else {
			real = append(real, cnt)
		}
	}
	calc, err = sortCalcCounters(calc)
	if err != nil {
		return nil, err
	}

	b := &Builder{
		counters:    append(real, calc...),
		cache:       make(map[counter.Controller]*Node),
		defaultMode: defaultMode,
	}
	if err := b.introspect(); err != nil {
		return nil, err
	}
	return b, nil
}

// sortCalcCounters orders calc counters so that every counter appears
// after all calc counters it depends on. Classic three-color DFS; a gray
// revisit is a cycle and aborts the build.
func sortCalcCounters(calcs []*counter.Counter) ([]*counter.Counter, error) {
	byController := make(map[counter.Controller]*counter.Counter, len(calcs))
	for _, cnt := range calcs {
		byController[cnt.Controller] = cnt
	}

	const (
		white = iota
		gray
		black
	)
	colors := make(map[counter.Controller]int, len(calcs))
	sorted := make([]*counter.Counter, 0, len(calcs))

	var visit func(cnt *counter.Counter) error
	visit = func(cnt *counter.Counter) error {
		switch colors[cnt.Controller] {
		case black:
			return nil
		case gray:
			return fmt.Errorf("calc counter dependency cycle involving %q", cnt.FullName)
		}
		colors[cnt.Controller] = gray

		calcCtrl := cnt.Controller.(counter.CalcController)
		for _, input := range calcCtrl.Inputs() {
			if dep, ok := byController[input.Controller]; ok {
				if err := visit(dep); err != nil {
					return err
				}
			}
		}

		colors[cnt.Controller] = black
		sorted = append(sorted, cnt)
		return nil
	}

	for _, cnt := range calcs {
		if err := visit(cnt); err != nil {
			return nil, err
		}
	}
	return sorted, nil
}

// CreateNode returns the cached node for a controller, creating and
// caching it on first use. For calc controllers it records, for every
// dependency counter's controller, the node already cached for it.
func (b *Builder) CreateNode(ctrl counter.Controller) (*Node, error) {
	if node, ok := b.cache[ctrl]; ok {
		return node, nil
	}

	var node *Node
	if provider, ok := ctrl.(NodeProvider); ok {
		node = provider.CreateChainNode()
	} else {
		node = NewNode(ctrl)
	}
	node.defaultChain = b.defaultMode
	b.cache[ctrl] = node
	b.order = append(b.order, node)

	if calcCtrl, ok := ctrl.(counter.CalcController); ok {
		for _, input := range calcCtrl.Inputs() {
			depNode, ok := b.cache[input.Controller]
			if !ok {
				return nil, fmt.Errorf(
					"calc controller %q: dependency %q has no chain node yet",
					ctrl.Name(), input.FullName,
				)
			}
			node.calcDeps[input.Controller] = depNode
		}
	}
	return node, nil
}

// introspect assembles the graph: one pass over the sorted counter list,
// creating a counter's master node (if any) before its own, and linking
// master→child edges.
func (b *Builder) introspect() error {
	for _, cnt := range b.counters {
		if cnt.Controller == nil {
			return fmt.Errorf("counter %q must have a controller", cnt.FullName)
		}

		var masterNode *Node
		if masterCtrl := cnt.Controller.MasterController(); masterCtrl != nil {
			var err error
			if masterNode, err = b.CreateNode(masterCtrl); err != nil {
				return err
			}
		}

		node, err := b.CreateNode(cnt.Controller)
		if err != nil {
			return err
		}
		node.AddCounter(cnt)

		if masterNode != nil {
			masterNode.AddChild(node)
		}
	}
	return nil
}

// Counters returns the resolved counter list in build order.
func (b *Builder) Counters() []*counter.Counter { return b.counters }

// AllNodes returns every node, top-level and children, in creation order.
func (b *Builder) AllNodes() []*Node {
	out := make([]*Node, len(b.order))
	copy(out, b.order)
	return out
}

// Nodes returns the top-level nodes (those with no master resolved).
func (b *Builder) Nodes() []*Node {
	return filterNodes(b.AllNodes(), func(n *Node) bool { return n.IsTopLevel() })
}

// NodesNotReady returns top-level nodes whose device is still unattached.
func (b *Builder) NodesNotReady() []*Node {
	return filterNodes(b.Nodes(), func(n *Node) bool { return n.AcquisitionObj() == nil })
}

// NodesWithChildren returns top-level nodes that have child nodes.
func (b *Builder) NodesWithChildren() []*Node {
	return filterNodes(b.Nodes(), func(n *Node) bool { return len(n.Children()) > 0 })
}

// NodesByControllerName returns top-level nodes owned by the named
// controller.
func (b *Builder) NodesByControllerName(name string) []*Node {
	return filterNodes(b.Nodes(), func(n *Node) bool { return n.Controller().Name() == name })
}

// NodesByKind returns top-level nodes of the given node kind.
func (b *Builder) NodesByKind(kind string) []*Node {
	return filterNodes(b.Nodes(), func(n *Node) bool { return n.Kind == kind })
}

// NodesByControllerType filters nodes whose controller satisfies T.
func NodesByControllerType[T counter.Controller](nodes []*Node) []*Node {
	return filterNodes(nodes, func(n *Node) bool {
		_, ok := any(n.Controller()).(T)
		return ok
	})
}

// NodesByDeviceType filters nodes whose attached device satisfies T.
// Unattached nodes never match.
func NodesByDeviceType[T device.Device](nodes []*Node) []*Node {
	return filterNodes(nodes, func(n *Node) bool {
		if n.AcquisitionObj() == nil {
			return false
		}
		_, ok := any(n.AcquisitionObj()).(T)
		return ok
	})
}

func filterNodes(nodes []*Node, keep func(*Node) bool) []*Node {
	var out []*Node
	for _, n := range nodes {
		if keep(n) {
			out = append(out, n)
		}
	}
	return out
}
