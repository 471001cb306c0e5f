// Package device defines the generic runtime contract for acquisition
// devices bound to chain nodes: a prepare/start/trigger/stop/reading
// lifecycle, a two-state trigger gate, and two interchangeable reading
// strategies (software-paced and hardware-buffered).
package device

import (
	"context"
	"time"
)

// TriggerMode is the policy for which party paces each acquisition point.
type TriggerMode int

const (
	// Software: an external pacing loop requests every point.
	Software TriggerMode = iota
	// Sync: hardware paces itself after an external trigger starts it.
	// The first buffered point compensates a known start skew and is
	// discarded.
	Sync
	// Gate: every point is gated by an external hardware signal.
	Gate
)

func (m TriggerMode) String() string {
	switch m {
	case Software:
		return "SOFTWARE"
	case Sync:
		return "SYNC"
	case Gate:
		return "GATE"
	}
	return "UNKNOWN"
}

// ParseTriggerMode converts a configuration string into a TriggerMode.
func ParseTriggerMode(s string) (TriggerMode, bool) {
	switch s {
	case "SOFTWARE":
		return Software, true
	case "SYNC":
		return Sync, true
	case "GATE":
		return Gate, true
	}
	return Software, false
}

// Device is the runtime object attached to a chain node. The scan loop is
// the only caller; every method must stay safe to invoke during a generic
// unwind, on a device that never started or already failed.
type Device interface {
	Name() string
	NPoints() int
	TriggerMode() TriggerMode

	// Prepare pushes mode and timing configuration to hardware. It fails
	// fast on invalid mode combinations, before any acquisition starts.
	Prepare(ctx context.Context) error
	// Start arms hardware-paced devices. Pure software pacing arms per
	// point instead, so Start is a no-op there.
	Start(ctx context.Context) error
	// Stop unconditionally halts hardware and forces the trigger gate
	// back to READY. Idempotent, callable from any state.
	Stop(ctx context.Context) error
	// Trigger requests that one new point begin. In software mode it
	// blocks until the previous point has been consumed, so at most one
	// trigger is ever outstanding.
	Trigger(ctx context.Context) error
	// TriggerReady is the non-blocking acceptance check.
	TriggerReady() bool
	// WaitReady blocks until the device returns to READY. The pacing loop
	// uses it to avoid outrunning data consumption.
	WaitReady(ctx context.Context) error
	// Reading is the long-running per-device task producing the point
	// sequence. Errors propagate to the driving scan loop.
	Reading(ctx context.Context) error

	Channels() []*Channel
}

// ModeConfig is the configuration a device pushes to its instrument during
// Prepare.
type ModeConfig struct {
	Trigger    TriggerMode
	PresetTime time.Duration
	// NPoints is the number of hardware-stored points (already including
	// the sync-mode skew compensation point).
	NPoints   int
	BlockSize int
}

// Instrument is the hardware-driving collaborator behind a PollDevice.
// Wire protocols and vendor SDKs live behind this interface and are out of
// scope here.
type Instrument interface {
	Name() string
	// ApplyMode pushes trigger mode and timing configuration. It must
	// reject invalid combinations before acquisition starts.
	ApplyMode(cfg ModeConfig) error
	StartAcquisition(ctx context.Context) error
	// StopAcquisition halts the hardware. It must be idempotent and safe
	// to call whatever state the device is in.
	StopAcquisition(ctx context.Context) error
	// PollFrames opens the continuous hardware-polling primitive yielding
	// n frames. The returned stream owns the hardware session.
	PollFrames(ctx context.Context, n int, period time.Duration) (*Stream, error)
	// SoftwareRun opens a software-controlled primitive where each Next
	// performs exactly one synchronous acquisition.
	SoftwareRun(ctx context.Context, n int, period time.Duration) (*Stream, error)
}
