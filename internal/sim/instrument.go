// Package sim provides deterministic simulated hardware: instruments,
// controllers, and buffered meters exercising every trigger mode without
// real wire protocols. It backs the CLI demo rig and the test suite.
package sim

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/vk/scangrid/internal/device"
)

// ValueFunc produces the simulated value of one counter at one point
// index.
type ValueFunc func(name string, index int) any

// Instrument is a simulated hardware front-end implementing
// device.Instrument. Values are deterministic: counter i at point n yields
// float64(n) unless a ValueFunc overrides it.
type Instrument struct {
	name         string
	counterNames []string
	valueAt      ValueFunc

	mu           sync.Mutex
	mode         device.ModeConfig
	applied      bool
	started      bool
	openSessions int
	failAt       int // frame index at which Next errors; -1 disables
}

// NewInstrument creates a simulated instrument serving the named counters.
func NewInstrument(name string, counterNames ...string) *Instrument {
	return &Instrument{
		name:         name,
		counterNames: counterNames,
		failAt:       -1,
		valueAt: func(_ string, index int) any {
			return float64(index)
		},
	}
}

func (i *Instrument) Name() string { return i.name }

// SetValueFunc overrides the simulated value generator.
func (i *Instrument) SetValueFunc(f ValueFunc) { i.valueAt = f }

// FailAt injects a read failure at the given frame index.
func (i *Instrument) FailAt(index int) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.failAt = index
}

// OpenSessions reports how many polling sessions are currently open. A
// non-zero count after a scan is a leaked hardware session.
func (i *Instrument) OpenSessions() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.openSessions
}

// Started reports whether a hardware acquisition is armed.
func (i *Instrument) Started() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.started
}

// Mode returns the last applied mode configuration.
func (i *Instrument) Mode() device.ModeConfig {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.mode
}

// ApplyMode implements device.Instrument, rejecting invalid combinations.
func (i *Instrument) ApplyMode(cfg device.ModeConfig) error {
	switch cfg.Trigger {
	case device.Software:
		if cfg.PresetTime <= 0 {
			return fmt.Errorf("%s: software mode requires a preset time", i.name)
		}
	case device.Sync, device.Gate:
		if cfg.NPoints <= 0 {
			return fmt.Errorf("%s: hardware mode requires a positive point count", i.name)
		}
	default:
		return fmt.Errorf("%s: unknown trigger mode %d", i.name, cfg.Trigger)
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	i.mode = cfg
	i.applied = true
	return nil
}

// StartAcquisition arms the simulated hardware.
func (i *Instrument) StartAcquisition(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if !i.applied {
		return fmt.Errorf("%s: start before mode configuration", i.name)
	}
	i.started = true
	return nil
}

// StopAcquisition disarms the hardware. Idempotent.
func (i *Instrument) StopAcquisition(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.started = false
	return nil
}

func (i *Instrument) frame(index int) device.Frame {
	values := make(map[string]any, len(i.counterNames))
	for _, name := range i.counterNames {
		values[name] = i.valueAt(name, index)
	}
	return device.Frame{Values: values}
}

func (i *Instrument) newStream(n int) *device.Stream {
	i.mu.Lock()
	i.openSessions++
	i.mu.Unlock()

	index := 0
	next := func(ctx context.Context) (device.Frame, error) {
		i.mu.Lock()
		failAt := i.failAt
		i.mu.Unlock()
		if failAt >= 0 && index == failAt {
			return device.Frame{}, fmt.Errorf("%s: simulated hardware fault at frame %d", i.name, index)
		}
		if n > 0 && index >= n {
			return device.Frame{}, io.EOF
		}
		f := i.frame(index)
		index++
		return f, nil
	}
	stop := func() error {
		i.mu.Lock()
		i.openSessions--
		i.mu.Unlock()
		return nil
	}
	return device.NewStream(next, stop)
}

// PollFrames opens the simulated hardware-polling session for n frames.
func (i *Instrument) PollFrames(ctx context.Context, n int, period time.Duration) (*device.Stream, error) {
	i.mu.Lock()
	started := i.started
	i.mu.Unlock()
	if !started {
		return nil, fmt.Errorf("%s: polling before acquisition start", i.name)
	}
	return i.newStream(n), nil
}

// SoftwareRun opens the software-controlled session: each Next performs
// one immediate acquisition.
func (i *Instrument) SoftwareRun(ctx context.Context, n int, period time.Duration) (*device.Stream, error) {
	i.mu.Lock()
	applied := i.applied
	i.mu.Unlock()
	if !applied {
		return nil, fmt.Errorf("%s: software run before mode configuration", i.name)
	}
	return i.newStream(n), nil
}
