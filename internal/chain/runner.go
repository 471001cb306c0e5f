package chain

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/vk/scangrid/internal/ctxlog"
	"github.com/vk/scangrid/internal/device"
	"github.com/vk/scangrid/internal/metrics"
)

// Runner drives an assembled chain through one scan: parallel prepare and
// start (deepest level first), one long-running reading task per device,
// and a per-point pacing loop that triggers every software-paced device
// master-to-slave and never outruns data consumption. On any failure every
// device is stopped during unwind; the device contract keeps that safe.
type Runner struct {
	chain *Chain
	scan  ScanParams
}

// NewRunner binds a runner to an assembled chain.
func NewRunner(c *Chain, scan ScanParams) *Runner {
	return &Runner{chain: c, scan: scan}
}

// Run executes the scan. It returns the first real error from pacing or a
// reading task, after all devices have been stopped.
func (r *Runner) Run(ctx context.Context) (err error) {
	logger := ctxlog.FromContext(ctx).With("scan_id", r.chain.ID().String())
	ctx = ctxlog.WithLogger(ctx, logger)

	devs := r.chain.Devices()
	if len(devs) == 0 {
		return errors.New("empty acquisition chain")
	}
	levels := r.chain.Levels()

	defer func() {
		if err != nil {
			metrics.ScanErrors.Inc()
		}
	}()

	for _, p := range r.chain.Presets() {
		if err := p.Prepare(ctx, r.chain); err != nil {
			return fmt.Errorf("preset prepare failed: %w", err)
		}
	}

	// Prepare deepest level first so slaves are configured before the
	// masters that will pace them.
	logger.Debug("Preparing devices.", "levels", len(levels))
	for i := len(levels) - 1; i >= 0; i-- {
		if err := forEachParallel(ctx, levels[i], func(gctx context.Context, dev device.Device) error {
			return dev.Prepare(gctx)
		}); err != nil {
			return fmt.Errorf("prepare failed: %w", err)
		}
	}

	// Generic unwind: stop every device and preset whatever happened,
	// masters first. Stop is idempotent and safe on never-started devices.
	defer func() {
		stopCtx := context.WithoutCancel(ctx)
		for _, dev := range devs {
			if stopErr := dev.Stop(stopCtx); stopErr != nil && err == nil {
				err = stopErr
			}
		}
		for _, p := range r.chain.Presets() {
			if stopErr := p.Stop(stopCtx, r.chain); stopErr != nil && err == nil {
				err = stopErr
			}
		}
	}()

	for _, p := range r.chain.Presets() {
		if err := p.Start(ctx, r.chain); err != nil {
			return fmt.Errorf("preset start failed: %w", err)
		}
	}

	logger.Debug("Starting devices.")
	for i := len(levels) - 1; i >= 0; i-- {
		if err := forEachParallel(ctx, levels[i], func(gctx context.Context, dev device.Device) error {
			return dev.Start(gctx)
		}); err != nil {
			return fmt.Errorf("start failed: %w", err)
		}
	}

	// Spawn one reading task per device. A reader failure cancels
	// readerCtx and unblocks the pacing loop; a pacing failure cancels
	// readCtx and unblocks the readers.
	readCtx, cancelReaders := context.WithCancel(ctx)
	defer cancelReaders()
	readers, readerCtx := errgroup.WithContext(readCtx)
	for _, dev := range devs {
		dev := dev
		readers.Go(func() error { return dev.Reading(readerCtx) })
	}

	pacingErr := r.pace(readerCtx, levels, devs)
	if pacingErr != nil {
		cancelReaders()
	}

	readerErr := readers.Wait()

	switch {
	case readerErr != nil && !errors.Is(readerErr, context.Canceled):
		err = readerErr
	case pacingErr != nil:
		err = pacingErr
	default:
		err = readerErr
	}
	if err != nil {
		logger.Error("Scan failed.", "error", err)
		return err
	}
	logger.Info("Scan complete.", "points", r.scan.NPoints)
	return nil
}

// pace runs the per-point loop: wait for every device to be ready, then
// trigger master-to-slave so a shared master always triggers all children
// before the next point.
func (r *Runner) pace(ctx context.Context, levels [][]device.Device, devs []device.Device) error {
	logger := ctxlog.FromContext(ctx)

	for point := 0; point < r.scan.NPoints; point++ {
		if err := forEachParallel(ctx, devs, func(gctx context.Context, dev device.Device) error {
			return dev.WaitReady(gctx)
		}); err != nil {
			return fmt.Errorf("point %d: wait ready: %w", point, err)
		}

		for _, level := range levels {
			if err := forEachParallel(ctx, level, func(gctx context.Context, dev device.Device) error {
				if dev.TriggerMode() != device.Software {
					return nil
				}
				return dev.Trigger(gctx)
			}); err != nil {
				return fmt.Errorf("point %d: trigger: %w", point, err)
			}
		}
		logger.Debug("Point paced.", "index", point)
	}

	// The scan only finishes once every in-flight point is consumed.
	return forEachParallel(ctx, devs, func(gctx context.Context, dev device.Device) error {
		return dev.WaitReady(gctx)
	})
}

func forEachParallel(ctx context.Context, devs []device.Device, fn func(context.Context, device.Device) error) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, dev := range devs {
		dev := dev
		g.Go(func() error { return fn(gctx, dev) })
	}
	return g.Wait()
}
