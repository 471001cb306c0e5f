package chain

import "context"

// Preset is an opaque scan-lifecycle hook attached to a chain. Typical
// uses are shutter control or beamline multiplexer switching around a
// scan. Hooks run in attach order; a failing Prepare or Start aborts the
// scan, Stop always runs during unwind.
type Preset interface {
	Prepare(ctx context.Context, c *Chain) error
	Start(ctx context.Context, c *Chain) error
	Stop(ctx context.Context, c *Chain) error
}
