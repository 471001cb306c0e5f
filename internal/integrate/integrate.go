// Package integrate provides the two interchangeable integration
// back-ends for buffered meters: hardware-buffered (the instrument
// averages a fixed number of samples on its own clock) and software-paced
// (back-to-back synchronous reads averaged in the host). Both run as one
// spawned cooperative task behind a shared contract.
package integrate

import (
	"context"
	"time"
)

// Meter is the hardware-driving collaborator. Wire protocol is out of
// scope; implementations treat blocking calls as cooperative suspension
// points.
type Meter interface {
	Name() string
	// CycleCost is the fixed per-sample hardware acquisition cost.
	CycleCost() time.Duration
	// BufferCapacity is the hard limit on buffered samples.
	BufferCapacity() int
	// ConfigureBuffer sets the hardware to trigger and store exactly n
	// samples.
	ConfigureBuffer(n int) error
	// Start launches the buffered acquisition.
	Start(ctx context.Context) error
	// Fetch blocks until the buffered acquisition completes and returns
	// the averaged reading.
	Fetch(ctx context.Context) (float64, error)
	// Read performs one immediate synchronous reading.
	Read(ctx context.Context) (float64, error)
	// Abort halts the hardware. Idempotent.
	Abort(ctx context.Context) error
}

// Acquisition is the common contract of both timing back-ends.
type Acquisition interface {
	// Prepare validates and pushes the integration configuration.
	Prepare(ctx context.Context) error
	// Start spawns the acquisition task.
	Start(ctx context.Context) error
	// Value blocks on the task and re-raises any task failure.
	Value(ctx context.Context) (float64, error)
	// Abort cancels the in-flight task and issues a hardware abort.
	Abort(ctx context.Context) error
}
