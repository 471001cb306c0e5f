package config

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/vk/scangrid/internal/ctxlog"
)

// hclFile represents the top-level structure of a rig file for decoding.
type hclFile struct {
	Scan        *hclScan         `hcl:"scan,block"`
	Controllers []*hclController `hcl:"controller,block"`
	Meters      []*hclMeter      `hcl:"meter,block"`
	Calcs       []*hclCalc       `hcl:"calc,block"`
}

type hclScan struct {
	NPoints   int     `hcl:"npoints"`
	CountTime string  `hcl:"count_time"`
	SleepTime *string `hcl:"sleep_time"`
}

type hclController struct {
	Name        string   `hcl:"name,label"`
	Counters    []string `hcl:"counters"`
	TriggerMode *string  `hcl:"trigger_mode"`
	Master      *string  `hcl:"master"`
}

type hclMeter struct {
	Name   string  `hcl:"name,label"`
	Cycle  string  `hcl:"cycle"`
	Timing *string `hcl:"timing"`
	Master *string `hcl:"master"`
}

type hclCalc struct {
	Name   string   `hcl:"name,label"`
	Inputs []string `hcl:"inputs"`
	Op     string   `hcl:"op"`
	Master *string  `hcl:"master"`
}

// LoadRig parses a single .hcl rig file into the agnostic model.
func LoadRig(ctx context.Context, path string) (*Model, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Loading rig definition.", "path", path)

	parser := hclparse.NewParser()
	hclF, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", path, diags)
	}

	var parsed hclFile
	if diags := gohcl.DecodeBody(hclF.Body, nil, &parsed); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", path, diags)
	}
	if parsed.Scan == nil {
		return nil, fmt.Errorf("%s: a scan block is required", path)
	}

	model, err := translate(&parsed)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := model.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	logger.Debug("Rig definition loaded.",
		"controllers", len(model.Controllers), "meters", len(model.Meters), "calcs", len(model.Calcs))
	return model, nil
}

// translate converts the HCL-specific schema into the agnostic model.
func translate(parsed *hclFile) (*Model, error) {
	countTime, err := time.ParseDuration(parsed.Scan.CountTime)
	if err != nil {
		return nil, fmt.Errorf("scan: count_time: %w", err)
	}
	var sleepTime time.Duration
	if parsed.Scan.SleepTime != nil {
		if sleepTime, err = time.ParseDuration(*parsed.Scan.SleepTime); err != nil {
			return nil, fmt.Errorf("scan: sleep_time: %w", err)
		}
	}

	model := &Model{
		Scan: ScanConfig{
			NPoints:   parsed.Scan.NPoints,
			CountTime: countTime,
			SleepTime: sleepTime,
		},
	}
	for _, c := range parsed.Controllers {
		cc := &ControllerConfig{Name: c.Name, Counters: c.Counters}
		if c.TriggerMode != nil {
			cc.TriggerMode = *c.TriggerMode
		}
		if c.Master != nil {
			cc.Master = *c.Master
		}
		model.Controllers = append(model.Controllers, cc)
	}
	for _, m := range parsed.Meters {
		cycle, err := time.ParseDuration(m.Cycle)
		if err != nil {
			return nil, fmt.Errorf("meter %q: cycle: %w", m.Name, err)
		}
		mc := &MeterConfig{Name: m.Name, Cycle: cycle}
		if m.Timing != nil {
			mc.Timing = *m.Timing
		}
		if m.Master != nil {
			mc.Master = *m.Master
		}
		model.Meters = append(model.Meters, mc)
	}
	for _, c := range parsed.Calcs {
		cc := &CalcConfig{Name: c.Name, Inputs: c.Inputs, Op: c.Op}
		if c.Master != nil {
			cc.Master = *c.Master
		}
		model.Calcs = append(model.Calcs, cc)
	}
	return model, nil
}
