package integrate

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// SoftwareAcquisition integrates in the host: individual synchronous reads
// issued back-to-back for the requested wall-clock duration, returning the
// arithmetic mean. The sample count is not known in advance.
type SoftwareAcquisition struct {
	meter           Meter
	integrationTime time.Duration

	mu        sync.Mutex
	task      *task
	endTime   time.Time
	lastValue float64
	hasValue  bool
	samples   int
}

// NewSoftwareAcquisition builds a software-paced integration for the
// requested time.
func NewSoftwareAcquisition(meter Meter, integrationTime time.Duration) *SoftwareAcquisition {
	return &SoftwareAcquisition{meter: meter, integrationTime: integrationTime}
}

// EndTime returns when the acquisition task finished, zero while running.
func (a *SoftwareAcquisition) EndTime() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.endTime
}

// LastValue returns the cached result of the last successful acquisition.
func (a *SoftwareAcquisition) LastValue() (float64, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastValue, a.hasValue
}

// SampleCount returns how many reads the last acquisition accumulated.
func (a *SoftwareAcquisition) SampleCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.samples
}

// Prepare validates the integration time. No hardware configuration is
// needed: pacing is entirely host-side.
func (a *SoftwareAcquisition) Prepare(ctx context.Context) error {
	if a.integrationTime <= 0 {
		return fmt.Errorf("%s: integration time must be positive, got %s", a.meter.Name(), a.integrationTime)
	}
	return nil
}

// Start spawns the read-accumulate task.
func (a *SoftwareAcquisition) Start(ctx context.Context) error {
	run := func(ctx context.Context) (float64, error) {
		start := time.Now()
		var sum float64
		n := 0
		for n == 0 || time.Since(start) < a.integrationTime {
			if err := ctx.Err(); err != nil {
				return 0, err
			}
			value, err := a.meter.Read(ctx)
			if err != nil {
				return 0, err
			}
			sum += value
			n++
		}
		a.mu.Lock()
		a.samples = n
		a.mu.Unlock()
		return sum / float64(n), nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.endTime = time.Time{}
	a.task = spawn(ctx, run,
		func() {
			a.mu.Lock()
			a.endTime = time.Now()
			a.mu.Unlock()
		},
		func(value float64) {
			a.mu.Lock()
			a.lastValue = value
			a.hasValue = true
			a.mu.Unlock()
		},
	)
	return nil
}

// Value blocks on the acquisition task and re-raises its failure, if any.
func (a *SoftwareAcquisition) Value(ctx context.Context) (float64, error) {
	a.mu.Lock()
	t := a.task
	a.mu.Unlock()
	if t == nil {
		return 0, fmt.Errorf("%s: %w", a.meter.Name(), errNotStarted)
	}
	return t.wait(ctx)
}

// Abort cancels the in-flight task and issues a hardware abort.
func (a *SoftwareAcquisition) Abort(ctx context.Context) error {
	a.mu.Lock()
	t := a.task
	a.mu.Unlock()
	if t != nil {
		t.kill()
	}
	return a.meter.Abort(ctx)
}

var _ Acquisition = (*SoftwareAcquisition)(nil)
