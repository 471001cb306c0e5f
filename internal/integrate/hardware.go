package integrate

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/vk/scangrid/internal/ctxlog"
)

// ErrContinuousUnsupported is returned when the requested integration time
// is shorter than one hardware cycle: the meter cannot acquire zero
// buffered samples.
var ErrContinuousUnsupported = errors.New("continuous acquisition not supported")

// CapacityError reports an integration time that would overflow the
// meter's sample buffer.
type CapacityError struct {
	Meter    string
	Samples  int
	Capacity int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("%s: %d samples exceed buffer capacity of %d", e.Meter, e.Samples, e.Capacity)
}

// HardwareAcquisition integrates on the meter's own clock: the buffer is
// sized from the requested integration time and the fixed per-sample cycle
// cost, and one blocking fetch retrieves the averaged result. Transient
// fetch failures degrade to a NaN placeholder rather than aborting; this
// is a deliberate best-effort policy for noisy instruments, distinct from
// the fatal treatment of integrity mismatches.
type HardwareAcquisition struct {
	meter           Meter
	integrationTime time.Duration

	samples    int
	achievable time.Duration

	mu        sync.Mutex
	task      *task
	endTime   time.Time
	lastValue float64
	hasValue  bool
}

// NewHardwareAcquisition builds a buffered integration for the requested
// time.
func NewHardwareAcquisition(meter Meter, integrationTime time.Duration) *HardwareAcquisition {
	return &HardwareAcquisition{meter: meter, integrationTime: integrationTime}
}

// Samples returns the computed buffered sample count, valid after Prepare.
func (a *HardwareAcquisition) Samples() int { return a.samples }

// AchievableTime returns the integration time recomputed from the sample
// count, valid after Prepare.
func (a *HardwareAcquisition) AchievableTime() time.Duration { return a.achievable }

// EndTime returns when the acquisition task finished, zero while running.
func (a *HardwareAcquisition) EndTime() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.endTime
}

// LastValue returns the cached result of the last successful acquisition.
func (a *HardwareAcquisition) LastValue() (float64, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastValue, a.hasValue
}

// Prepare sizes the buffer and configures the meter. The requested
// integration time is quantized to whole hardware cycles; the achievable
// time is recomputed from the resulting count.
func (a *HardwareAcquisition) Prepare(ctx context.Context) error {
	cycleMs := float64(a.meter.CycleCost()) / float64(time.Millisecond)
	if cycleMs <= 0 {
		return fmt.Errorf("%s: meter reports a non-positive cycle cost", a.meter.Name())
	}

	samples := int(math.Floor(float64(a.integrationTime) / float64(time.Millisecond) / cycleMs))
	if samples == 0 {
		return fmt.Errorf("%s: integration time %s below one %s cycle: %w",
			a.meter.Name(), a.integrationTime, a.meter.CycleCost(), ErrContinuousUnsupported)
	}
	if capacity := a.meter.BufferCapacity(); samples > capacity {
		return &CapacityError{Meter: a.meter.Name(), Samples: samples, Capacity: capacity}
	}

	a.samples = samples
	a.achievable = time.Duration(samples) * a.meter.CycleCost()

	return a.meter.ConfigureBuffer(samples)
}

// Start launches the hardware acquisition and spawns the fetch task: sleep
// for slightly less than the expected duration, then issue the blocking
// fetch.
func (a *HardwareAcquisition) Start(ctx context.Context) error {
	if a.samples == 0 {
		return fmt.Errorf("%s: Start before Prepare", a.meter.Name())
	}
	if err := a.meter.Start(ctx); err != nil {
		return err
	}

	logger := ctxlog.FromContext(ctx).With("meter", a.meter.Name())

	run := func(ctx context.Context) (float64, error) {
		// Sleep one cycle short of the expected duration so the blocking
		// fetch issues just before the buffer completes.
		if wait := a.achievable - a.meter.CycleCost(); wait > 0 {
			timer := time.NewTimer(wait)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-timer.C:
			}
		}
		value, err := a.meter.Fetch(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return 0, err
			}
			logger.Warn("Fetch failed, substituting NaN.", "error", err)
			return math.NaN(), nil
		}
		return value, nil
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
func (a *HardwareAcquisition) Value(ctx context.Context) (float64, error) {
	a.mu.Lock()
	t := a.task
	a.mu.Unlock()
	if t == nil {
		return 0, fmt.Errorf("%s: %w", a.meter.Name(), errNotStarted)
	}
	return t.wait(ctx)
}

// Abort cancels the in-flight task and issues a hardware abort.
func (a *HardwareAcquisition) Abort(ctx context.Context) error {
	a.mu.Lock()
	t := a.task
	a.mu.Unlock()
	if t != nil {
		t.kill()
	}
	return a.meter.Abort(ctx)
}

var _ Acquisition = (*HardwareAcquisition)(nil)
