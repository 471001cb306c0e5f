package sim

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vk/scangrid/internal/integrate"
)

// DefaultBufferCapacity matches the common bench-meter buffer of 2500
// readings, of which the last slot is reserved by the firmware.
const DefaultBufferCapacity = 2499

// Meter is a simulated buffered measurement instrument implementing
// integrate.Meter. Individual reads return base + step*i for the i-th read
// since creation; a buffered fetch returns the mean of the configured
// sample window.
type Meter struct {
	name     string
	cycle    time.Duration
	capacity int

	mu         sync.Mutex
	base       float64
	step       float64
	reads      int
	configured int
	started    bool
	aborts     int
	failFetch  bool
}

// NewMeter creates a simulated meter with the given per-sample cycle cost.
func NewMeter(name string, cycle time.Duration) *Meter {
	return &Meter{
		name:     name,
		cycle:    cycle,
		capacity: DefaultBufferCapacity,
		base:     1,
	}
}

// SetValues sets the deterministic read sequence: read i yields
// base + step*i.
func (m *Meter) SetValues(base, step float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.base, m.step = base, step
}

// SetCapacity overrides the buffer capacity.
func (m *Meter) SetCapacity(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.capacity = n
}

// FailFetch makes the next buffered fetch fail, simulating a readout
// fault.
func (m *Meter) FailFetch(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failFetch = fail
}

// ConfiguredSamples returns the buffer size applied by the last
// ConfigureBuffer call.
func (m *Meter) ConfiguredSamples() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.configured
}

// Started reports whether a buffered acquisition is armed.
func (m *Meter) Started() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started
}

// Aborts counts hardware abort commands issued so far.
func (m *Meter) Aborts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.aborts
}

// Reads counts individual synchronous reads issued so far.
func (m *Meter) Reads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads
}

func (m *Meter) Name() string { return m.name }

func (m *Meter) CycleCost() time.Duration { return m.cycle }

func (m *Meter) BufferCapacity() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.capacity
}

// ConfigureBuffer sets the buffered sample count.
func (m *Meter) ConfigureBuffer(n int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n <= 0 {
		return fmt.Errorf("%s: buffer size must be positive, got %d", m.name, n)
	}
	if n > m.capacity {
		return fmt.Errorf("%s: buffer size %d exceeds capacity %d", m.name, n, m.capacity)
	}
	m.configured = n
	return nil
}

// Start arms the buffered acquisition.
func (m *Meter) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.configured == 0 {
		return fmt.Errorf("%s: start before buffer configuration", m.name)
	}
	m.started = true
	return nil
}

// Fetch returns the mean of the buffered sample window.
func (m *Meter) Fetch(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failFetch {
		return 0, errors.New(m.name + ": simulated fetch fault")
	}
	if !m.started {
		return 0, fmt.Errorf("%s: fetch before acquisition start", m.name)
	}
	m.started = false
	n := m.configured
	// Mean of base+step*0 .. base+step*(n-1).
	return m.base + m.step*float64(n-1)/2, nil
}

// Read performs one synchronous measurement, taking one cycle.
func (m *Meter) Read(ctx context.Context) (float64, error) {
	if m.cycle > 0 {
		timer := time.NewTimer(m.cycle)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-timer.C:
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	value := m.base + m.step*float64(m.reads)
	m.reads++
	return value, nil
}

// Abort disarms the meter. Idempotent.
func (m *Meter) Abort(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = false
	m.aborts++
	return nil
}

var _ integrate.Meter = (*Meter)(nil)
