package app

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/vk/scangrid/internal/chain"
	"github.com/vk/scangrid/internal/ctxlog"
	"github.com/vk/scangrid/internal/sink"
)

// Run executes one scan with the loaded rig and configuration.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	if a.config.HealthcheckPort > 0 {
		a.startHealthcheckServer(a.config.HealthcheckPort)
	}

	scan := chain.ScanParams{
		NPoints:   a.model.Scan.NPoints,
		CountTime: a.model.Scan.CountTime,
		SleepTime: a.model.Scan.SleepTime,
	}

	memory := sink.NewMemory()
	defaultChain := chain.NewDefaultChain(memory)
	if err := defaultChain.SetSettings(a.settings); err != nil {
		return fmt.Errorf("failed to apply settings: %w", err)
	}

	a.logger.Debug("Assembling acquisition chain from rig...")
	c, err := defaultChain.Get(ctx, scan, a.rig.CounterArgs(), nil)
	if err != nil {
		return fmt.Errorf("failed to assemble acquisition chain: %w", err)
	}
	a.logger.Info("🚀 Starting scan...",
		"scan_id", c.ID().String(),
		"devices", len(c.Devices()),
		"npoints", scan.NPoints,
	)

	if err := chain.NewRunner(c, scan).Run(ctx); err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}
	a.logger.Info("🏁 Scan finished.")

	a.printResults(memory)
	a.logger.Debug("App.Run method finished.")
	return nil
}

// printResults writes the acquired series per channel to the output
// writer.
func (a *App) printResults(memory *sink.Memory) {
	w := tabwriter.NewWriter(a.outW, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CHANNEL\tPOINTS\tVALUES")
	for _, channel := range memory.Channels() {
		points := memory.Points(channel)
		values := make([]any, len(points))
		for i, p := range points {
			values[i] = p.Value
		}
		fmt.Fprintf(w, "%s\t%d\t%v\n", channel, len(points), values)
	}
	if err := w.Flush(); err != nil {
		a.logger.Error("Failed to print results.", "error", err)
	}
}
