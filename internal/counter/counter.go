// Package counter defines the data-model leaves of a scan: counters, the
// controllers that own them, and the resolution of heterogeneous counter
// arguments into a flat, deduplicated counter set.
package counter

// DType identifies the element type of a counter's published values.
type DType string

const (
	Float64 DType = "float64"
	Int64   DType = "int64"
	Uint32  DType = "uint32"
)

// Counter is the smallest named, typed, shaped acquirable quantity.
type Counter struct {
	// Name is the short name, unique within one controller.
	Name string
	// FullName is the globally unique key, conventionally
	// "<controller>:<name>". All deduplication is keyed on it.
	FullName string
	DType    DType
	// Shape is the per-point value shape; empty means scalar.
	Shape []int
	// Controller owns this counter. A counter without a controller is a
	// configuration error, caught at chain-build time.
	Controller Controller
}

// Controller owns an ordered set of counters and anchors them to one piece
// of hardware. Implementations must be pointer-backed: chain construction
// keys its node cache on controller identity.
type Controller interface {
	Name() string
	// Counters returns the owned counters in declaration order. For a calc
	// controller the first entry is the calc counter itself, followed by
	// the counters it derives from.
	Counters() []*Counter
	// MasterController returns the parent controller establishing the
	// hardware hierarchy, or nil for a top-level controller.
	MasterController() Controller
}

// CalcController marks a controller whose single counter is derived from
// other counters instead of read from hardware.
type CalcController interface {
	Controller
	// Inputs returns the counters this controller's value is computed
	// from. Equivalent to Counters()[1:].
	Inputs() []*Counter
}

// IsCalc reports whether cnt is a derived counter.
func IsCalc(cnt *Counter) bool {
	_, ok := cnt.Controller.(CalcController)
	return ok
}
