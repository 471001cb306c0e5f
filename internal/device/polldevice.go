package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/vk/scangrid/internal/counter"
	"github.com/vk/scangrid/internal/ctxlog"
	"github.com/vk/scangrid/internal/metrics"
)

// IntegrityError marks a data-integrity mismatch (wrong sample count,
// missing counter value in a frame). Fatal for the current scan, never
// retried.
type IntegrityError struct {
	Device string
	Reason string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("%s: data integrity: %s", e.Device, e.Reason)
}

const defaultPollPeriod = 100 * time.Millisecond

// PollConfig carries the per-scan parameters of a PollDevice.
type PollConfig struct {
	NPoints int
	Mode    TriggerMode
	// PresetTime is the per-point integration time in software mode.
	PresetTime time.Duration
	// PollPeriod is the hardware polling interval.
	PollPeriod time.Duration
	BlockSize  int
}

// PollDevice drives one Instrument through the generic device lifecycle.
// The reading strategy follows the trigger mode: software pacing enforces
// strict trigger/point alternation through the gate, hardware pacing
// drains a buffered point stream.
type PollDevice struct {
	name     string
	inst     Instrument
	cfg      PollConfig
	gate     *TriggerGate
	sink     Sink
	counters []*counter.Counter
	channels []*Channel
	byName   map[string]*Channel

	mu          sync.Mutex
	stopReading context.CancelFunc
}

// NewPollDevice builds a device around an instrument. Counters are bound
// afterwards with AddCounter.
func NewPollDevice(inst Instrument, cfg PollConfig, sink Sink) *PollDevice {
	if cfg.PollPeriod <= 0 {
		cfg.PollPeriod = defaultPollPeriod
	}
	return &PollDevice{
		name:   inst.Name(),
		inst:   inst,
		cfg:    cfg,
		gate:   NewGate(),
		sink:   sink,
		byName: make(map[string]*Channel),
	}
}

func (d *PollDevice) Name() string             { return d.name }
func (d *PollDevice) NPoints() int             { return d.cfg.NPoints }
func (d *PollDevice) TriggerMode() TriggerMode { return d.cfg.Mode }
func (d *PollDevice) Channels() []*Channel     { return d.channels }

// Counters returns the counters bound to this device, in binding order.
func (d *PollDevice) Counters() []*counter.Counter { return d.counters }

// AddCounter binds a counter and creates its acquisition channel.
// Duplicate bindings are ignored.
func (d *PollDevice) AddCounter(cnt *counter.Counter) {
	if _, ok := d.byName[cnt.Name]; ok {
		return
	}
	ch := NewChannel(cnt, d.sink)
	d.counters = append(d.counters, cnt)
	d.channels = append(d.channels, ch)
	d.byName[cnt.Name] = ch
}

// Prepare validates the mode combination and pushes it to the instrument.
func (d *PollDevice) Prepare(ctx context.Context) error {
	defer metrics.ObservePhase(d.name, "prepare")()

	if d.cfg.NPoints < 0 {
		return fmt.Errorf("%s: negative point count %d", d.name, d.cfg.NPoints)
	}
	switch d.cfg.Mode {
	case Software:
		if d.cfg.PresetTime <= 0 {
			return fmt.Errorf("%s: software trigger mode requires a preset time", d.name)
		}
		return d.inst.ApplyMode(ModeConfig{
			Trigger:    Software,
			PresetTime: d.cfg.PresetTime,
		})
	case Sync:
		if d.cfg.NPoints == 0 {
			return fmt.Errorf("%s: sync trigger mode requires a fixed point count", d.name)
		}
		return d.inst.ApplyMode(ModeConfig{
			Trigger:   Sync,
			NPoints:   d.cfg.NPoints + 1,
			BlockSize: d.cfg.BlockSize,
		})
	case Gate:
		if d.cfg.NPoints == 0 {
			return fmt.Errorf("%s: gate trigger mode requires a fixed point count", d.name)
		}
		return d.inst.ApplyMode(ModeConfig{
			Trigger:   Gate,
			NPoints:   d.cfg.NPoints,
			BlockSize: d.cfg.BlockSize,
		})
	}
	return fmt.Errorf("%s: unknown trigger mode %d", d.name, d.cfg.Mode)
}

// Start arms hardware-paced acquisition. Software pacing arms per point.
func (d *PollDevice) Start(ctx context.Context) error {
	defer metrics.ObservePhase(d.name, "start")()
	if d.cfg.Mode == Software {
		return nil
	}
	return d.inst.StartAcquisition(ctx)
}

// Stop halts the instrument and forces the gate back to READY. Safe to
// call from any state, any number of times, even after a reading failure.
func (d *PollDevice) Stop(ctx context.Context) error {
	defer metrics.ObservePhase(d.name, "stop")()

	var err error
	if d.cfg.Mode == Software {
		d.mu.Lock()
		cancel := d.stopReading
		d.mu.Unlock()
		if cancel != nil {
			cancel()
		}
	} else {
		err = d.inst.StopAcquisition(ctx)
	}
	d.gate.ForceReady()
	return err
}

// Trigger requests one new point. Hardware-paced devices are triggered by
// their hardware signal, so this is a no-op for them.
func (d *PollDevice) Trigger(ctx context.Context) error {
	defer metrics.ObservePhase(d.name, "trigger")()
	if d.cfg.Mode != Software {
		return nil
	}
	return d.gate.Trigger(ctx)
}

// TriggerReady reports whether a new trigger would be accepted now.
func (d *PollDevice) TriggerReady() bool {
	if d.cfg.Mode != Software {
		return true
	}
	return d.gate.Ready()
}

// WaitReady blocks until the in-flight point, if any, has been consumed.
func (d *PollDevice) WaitReady(ctx context.Context) error {
	if d.cfg.Mode != Software {
		return nil
	}
	defer metrics.ObservePhase(d.name, "wait_ready")()
	return d.gate.Wait(ctx, StateReady)
}

// Reading runs the per-device point production task. It returns once all
// expected points are published, or with the first error; the caller is
// expected to Stop every device during unwind.
func (d *PollDevice) Reading(ctx context.Context) error {
	defer metrics.ObservePhase(d.name, "reading")()

	ctx, cancel := context.WithCancel(ctx)
	d.mu.Lock()
	d.stopReading = cancel
	d.mu.Unlock()
	defer func() {
		cancel()
		d.mu.Lock()
		d.stopReading = nil
		d.mu.Unlock()
	}()

	ctx = ctxlog.With(ctx, "device", d.name, "trigger_mode", d.cfg.Mode.String())
	if d.cfg.Mode == Software {
		return d.softReading(ctx)
	}
	return d.hardReading(ctx)
}

// softReading alternates strictly with the pacing loop: wait for a
// trigger, pull exactly one frame, publish it, return to READY.
func (d *PollDevice) softReading(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)

	stream, err := d.inst.SoftwareRun(ctx, d.cfg.NPoints, d.cfg.PollPeriod)
	if err != nil {
		return err
	}
	defer stream.Stop()

	for i := 0; d.cfg.NPoints == 0 || i < d.cfg.NPoints; i++ {
		if err := d.gate.Wait(ctx, StateTriggered); err != nil {
			return err
		}

		frame, err := stream.Next(ctx)
		if errors.Is(err, io.EOF) {
			return &IntegrityError{Device: d.name, Reason: fmt.Sprintf("stream ended at point %d of %d", i, d.cfg.NPoints)}
		}
		if err != nil {
			return err
		}
		if err := d.publish(ctx, i, frame); err != nil {
			return err
		}
		logger.Debug("Point published.", "index", i)

		d.gate.Consume()
	}
	return nil
}

// hardReading drains the hardware buffer in FIFO order. In sync mode one
// extra point is polled and the first yielded frame is discarded: it
// compensates the known skew between external-trigger start and device
// acquisition start.
func (d *PollDevice) hardReading(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)

	polled := d.cfg.NPoints
	if d.cfg.Mode == Sync {
		polled++
	}

	stream, err := d.inst.PollFrames(ctx, polled, d.cfg.PollPeriod)
	if err != nil {
		return err
	}
	defer stream.Stop()

	if d.cfg.Mode == Sync {
		if _, err := stream.Next(ctx); err != nil {
			return err
		}
		logger.Debug("Discarded skew-compensation point.")
	}

	published := 0
	for {
		frame, err := stream.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if err := d.publish(ctx, published, frame); err != nil {
			return err
		}
		published++
	}

	if published != d.cfg.NPoints {
		return &IntegrityError{
			Device: d.name,
			Reason: fmt.Sprintf("published %d points, expected %d", published, d.cfg.NPoints),
		}
	}
	logger.Debug("Hardware reading drained.", "points", published)
	return nil
}

// publish feeds one frame to every bound counter's channel.
func (d *PollDevice) publish(ctx context.Context, index int, frame Frame) error {
	for _, cnt := range d.counters {
		value, ok := frame.Values[cnt.Name]
		if !ok {
			return &IntegrityError{
				Device: d.name,
				Reason: fmt.Sprintf("frame %d is missing a value for counter %q", index, cnt.Name),
			}
		}
		d.byName[cnt.Name].Emit(ctx, index, value)
	}
	return nil
}
