package chain

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vk/scangrid/internal/counter"
	"github.com/vk/scangrid/internal/device"
)

// TimerMaster is the software pacing master: the default per-point clock
// when no hardware master is supplied. Each trigger publishes the elapsed
// time since start and then holds the point open for the count time (plus
// an optional settle sleep).
type TimerMaster struct {
	name      string
	countTime time.Duration
	sleepTime time.Duration
	npoints   int
	elapsed   *device.Channel

	mu    sync.Mutex
	start time.Time
	index int
}

// NewTimerMaster builds the timer from the scan pacing parameters.
func NewTimerMaster(scan ScanParams, sink device.Sink) *TimerMaster {
	cnt := &counter.Counter{
		Name:     "elapsed_time",
		FullName: "timer:elapsed_time",
		DType:    counter.Float64,
	}
	return &TimerMaster{
		name:      "timer",
		countTime: scan.CountTime,
		sleepTime: scan.SleepTime,
		npoints:   scan.NPoints,
		elapsed:   device.NewChannel(cnt, sink),
	}
}

func (t *TimerMaster) Name() string                    { return t.name }
func (t *TimerMaster) NPoints() int                    { return t.npoints }
func (t *TimerMaster) TriggerMode() device.TriggerMode { return device.Software }
func (t *TimerMaster) Channels() []*device.Channel     { return []*device.Channel{t.elapsed} }

// CountTime returns the per-point integration window.
func (t *TimerMaster) CountTime() time.Duration { return t.countTime }

// Prepare validates the pacing parameters.
func (t *TimerMaster) Prepare(ctx context.Context) error {
	if t.countTime <= 0 {
		return fmt.Errorf("timer: count time must be positive, got %s", t.countTime)
	}
	if t.npoints <= 0 {
		return fmt.Errorf("timer: point count must be positive, got %d", t.npoints)
	}
	return nil
}

// Start records the scan start time.
func (t *TimerMaster) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.start = time.Now()
	t.index = 0
	return nil
}

// Stop is a no-op: the timer holds no hardware.
func (t *TimerMaster) Stop(ctx context.Context) error { return nil }

// Trigger publishes the elapsed time for the new point, then paces: the
// point stays open for the count time, followed by the settle sleep.
func (t *TimerMaster) Trigger(ctx context.Context) error {
	t.mu.Lock()
	index := t.index
	t.index++
	elapsed := time.Since(t.start).Seconds()
	t.mu.Unlock()

	t.elapsed.Emit(ctx, index, elapsed)

	if err := sleepCtx(ctx, t.countTime); err != nil {
		return err
	}
	if t.sleepTime > 0 {
		return sleepCtx(ctx, t.sleepTime)
	}
	return nil
}

func (t *TimerMaster) TriggerReady() bool { return true }

// WaitReady returns immediately: pacing happens inside Trigger.
func (t *TimerMaster) WaitReady(ctx context.Context) error { return nil }

// Reading is empty: the timer publishes synchronously from Trigger.
func (t *TimerMaster) Reading(ctx context.Context) error { return nil }

// sleepCtx sleeps cooperatively, honoring cancellation.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
