//go:build linux

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ja7ad/energybench/pkg/energy"
	"github.com/ja7ad/energybench/pkg/system/proc"
	"github.com/ja7ad/energybench/pkg/system/util"
)

// runRow is one measured run of the workload.
type runRow struct {
	Run         int           `json:"run"`
	DurationSec float64       `json:"duration_sec"`
	CPUUtil     float64       `json:"cpu_util"`
	PowerW      float64       `json:"power_w"`
	VsFirstPct  float64       `json:"vs_first_pct"` // cost change relative to run 1
	Energy      energy.Report `json:"energy"`
}

type measureReport struct {
	Command    []string `json:"command"`
	Runs       []runRow `json:"runs"`
	AvgSec     float64  `json:"avg_duration_sec"`
	AvgCost    float64  `json:"avg_cost_uj"`
	AvgPowerW  float64  `json:"avg_power_w"`
	TotalJoule float64  `json:"total_j"`
}

func newMeasureCmd(a *app) *cobra.Command {
	var iterations int
	cmd := &cobra.Command{
		Use:   "measure [flags] -- COMMAND [ARG...]",
		Short: "Measure the energy spent running a command",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("iterations") {
				a.cfg.Iterations = iterations
			}
			if a.cfg.Iterations <= 0 {
				return fmt.Errorf("iterations must be > 0")
			}
			return a.measure(cmd.Context(), args)
		},
	}
	cmd.Flags().IntVarP(&iterations, "iterations", "n", 1, "number of runs to average")
	return cmd
}

func (a *app) measure(ctx context.Context, args []string) error {
	e, err := a.openEnergy()
	if err != nil {
		return err
	}
	defer e.Fini()

	acc := energy.NewAccumulator()
	report := measureReport{Command: args}

	var tw *tabwriter.Writer
	if !a.json {
		fmt.Fprintf(a.out, "command: %s\n\n", strings.Join(args, " "))
		tw = newTable(a.out)
		printMeasureHeader(tw)
	}

	var firstCost float64
	for i := 1; i <= a.cfg.Iterations; i++ {
		row, runErr := a.measureOnce(ctx, e, acc, i, args)
		if row != nil {
			if i == 1 {
				firstCost = row.Energy.Total
			}
			row.VsFirstPct = util.Ratio(firstCost, row.Energy.Total)
			report.Runs = append(report.Runs, *row)
			if tw != nil {
				printMeasureRow(tw, row)
			}
		}
		if runErr != nil {
			return runErr
		}
	}

	avg := acc.Averages()
	report.AvgSec = avg.Duration.Seconds()
	report.AvgCost = float64(avg.Cost)
	report.AvgPowerW = avg.Watts()
	report.TotalJoule = acc.EnergyCum().Joules()

	if a.json {
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	printSummary(a.out, acc)
	return nil
}

// measureOnce runs the workload once between two sensor reads and folds the
// window into acc. The running sample e holds the window's delta afterwards.
func (a *app) measureOnce(ctx context.Context, e *energy.Energy, acc *energy.Accumulator, run int, args []string) (*runRow, error) {
	before := e.Clone()
	defer before.Fini()

	cpu0, cpuErr := proc.ReadCPU("")
	if err := before.Read(); err != nil && !errors.Is(err, energy.ErrNoSensor) {
		return nil, err
	}

	start := time.Now()
	c := exec.CommandContext(ctx, args[0], args[1:]...)
	c.Stdin, c.Stdout, c.Stderr = os.Stdin, os.Stdout, os.Stderr
	if a.json {
		// keep stdout parseable
		c.Stdout = os.Stderr
	}
	runErr := c.Run()
	d := time.Since(start)

	if err := e.Read(); err != nil && !errors.Is(err, energy.ErrNoSensor) {
		return nil, err
	}
	if err := energy.Delta(before, e, e); err != nil {
		return nil, err
	}
	res := acc.Apply(d, e)

	row := &runRow{
		Run:         run,
		DurationSec: d.Seconds(),
		PowerW:      res.Watts(),
		Energy:      e.Report(),
	}
	if cpuErr == nil {
		if cpu1, err := proc.ReadCPU(""); err == nil {
			row.CPUUtil = proc.Utilization(cpu0, cpu1)
		}
	} else {
		a.logger.Debug("cpu utilization unavailable", "err", cpuErr)
	}

	if runErr != nil {
		return row, fmt.Errorf("run %d: %s: %w", run, args[0], runErr)
	}
	a.logger.Debug("run measured", "run", run, "duration", d, "cost", res.Cost.Humanized())
	return row, nil
}

func printMeasureHeader(tw *tabwriter.Writer) {
	fmt.Fprintln(tw, "RUN\tTIME (s)\tU_cpu\tPACKAGE\tCORE\tNONCORE\tDRAM\tCOST\tPOWER (W)\tVS RUN 1")
	fmt.Fprintln(tw, "---\t--------\t-----\t-------\t----\t-------\t----\t----\t---------\t--------")
	tw.Flush()
}

func printMeasureRow(tw *tabwriter.Writer, r *runRow) {
	var pkg, core, noncore float64
	for _, p := range r.Energy.Packages {
		pkg += p.Package
		core += p.Core
		noncore += p.NonCore
	}
	fmt.Fprintf(tw, "%d\t%.3f\t%.4f\t%s\t%s\t%s\t%s\t%s\t%.3f\t%+.1f%%\n",
		r.Run, r.DurationSec, r.CPUUtil,
		joules(pkg), joules(core), joules(noncore), joules(r.Energy.DRAM),
		joules(r.Energy.Total), r.PowerW, r.VsFirstPct,
	)
	tw.Flush()
}

func printSummary(w io.Writer, acc *energy.Accumulator) {
	avg := acc.Averages()
	fmt.Fprintln(w)
	fmt.Fprintf(w, "energy avg (over %d runs of ~%s):\n", acc.Count(), avg.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "- package:  %s\n", avg.Package.Humanized())
	fmt.Fprintf(w, "- core:     %s\n", avg.Core.Humanized())
	fmt.Fprintf(w, "- noncore:  %s\n", avg.NonCore.Humanized())
	fmt.Fprintf(w, "- dram:     %s\n", avg.DRAM.Humanized())
	fmt.Fprintf(w, "- gpu:      %s\n", avg.GPU.Humanized())
	fmt.Fprintf(w, "- cost:     %s (%.3f W)\n", avg.Cost.Humanized(), avg.Watts())
	fmt.Fprintf(w, "- total:    %s\n", acc.EnergyCum().Humanized())
	fmt.Fprintln(w)
}
