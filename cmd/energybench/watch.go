//go:build linux

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ja7ad/energybench/pkg/energy"
	"github.com/ja7ad/energybench/pkg/system/proc"
	"github.com/ja7ad/energybench/pkg/types"
)

type tickRow struct {
	At         time.Time     `json:"time"`
	CPUUtil    float64       `json:"cpu_util"`
	PowerW     float64       `json:"power_w"`
	EnergyCumJ float64       `json:"e_cum_j"`
	Energy     energy.Report `json:"energy"`
}

func newWatchCmd(a *app) *cobra.Command {
	var (
		samples  int
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print host energy per interval until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("samples") {
				a.cfg.Samples = samples
			}
			if cmd.Flags().Changed("interval") {
				a.cfg.Interval = interval
			}
			if a.cfg.Interval <= 0 {
				return fmt.Errorf("interval must be > 0")
			}
			return a.watch(cmd.Context())
		},
	}
	cmd.Flags().IntVarP(&samples, "samples", "s", 0, "number of samples to collect (0 = run until Ctrl-C)")
	cmd.Flags().DurationVarP(&interval, "interval", "i", time.Second, "sampling interval (e.g. 1s, 500ms)")
	return cmd
}

func (a *app) watch(ctx context.Context) error {
	e, err := a.openEnergy()
	if err != nil {
		return err
	}
	defer e.Fini()

	if e.Backend() == nil {
		return energy.ErrNoSensor
	}

	// e is the running sample; before holds the previous reading.
	if err := e.Read(); err != nil {
		return err
	}
	before := e.Clone()
	defer before.Fini()
	delta := e.Clone()
	defer delta.Fini()
	if err := energy.Copy(before, e); err != nil {
		return err
	}

	cpuPrev, cpuErr := proc.ReadCPU("")
	if cpuErr != nil {
		a.logger.Debug("cpu utilization unavailable", "err", cpuErr)
	}

	var (
		tw  *tabwriter.Writer
		enc *json.Encoder
	)
	if a.json {
		enc = json.NewEncoder(a.out)
	} else {
		tw = newTable(a.out)
		printWatchHeader(tw)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()

	acc := energy.NewAccumulator()
	last := time.Now()

loop:
	for {
		select {
		case <-ctx.Done():
			a.logger.Info("interrupted")
			break loop

		case now := <-ticker.C:
			if err := e.Read(); err != nil {
				if errors.Is(err, energy.ErrNoSensor) {
					return err
				}
				a.logger.Warn("sample error", "err", err)
				continue
			}
			if err := energy.Delta(before, e, delta); err != nil {
				return err
			}
			if err := energy.Copy(before, e); err != nil {
				return err
			}

			dt := now.Sub(last)
			last = now
			res := acc.Apply(dt, delta)

			row := tickRow{
				At:         now,
				PowerW:     res.Watts(),
				EnergyCumJ: acc.EnergyCum().Joules(),
				Energy:     delta.Report(),
			}
			if cpuErr == nil {
				if cpuNow, err := proc.ReadCPU(""); err == nil {
					row.CPUUtil = proc.Utilization(cpuPrev, cpuNow)
					cpuPrev = cpuNow
				}
			}

			if enc != nil {
				if err := enc.Encode(row); err != nil {
					return err
				}
			} else {
				printWatchRow(tw, row, res)
			}

			if a.cfg.Samples > 0 && acc.Count() >= a.cfg.Samples {
				break loop
			}
		}
	}
	if !a.json {
		printSummary(a.out, acc)
	}
	return nil
}

func printWatchHeader(tw *tabwriter.Writer) {
	fmt.Fprintln(tw, "TIME\tU_cpu\tPACKAGE\tCORE\tNONCORE\tDRAM\tP_total (W)\tE_cum")
	fmt.Fprintln(tw, "----\t-----\t-------\t----\t-------\t----\t-----------\t-----")
	tw.Flush()
}

func printWatchRow(tw *tabwriter.Writer, r tickRow, res energy.Result) {
	fmt.Fprintf(tw, "%s\t%.4f\t%s\t%s\t%s\t%s\t%.3f\t%s\n",
		r.At.Format("2006-01-02 15:04:05"), r.CPUUtil,
		res.Package.Humanized(), res.Core.Humanized(), res.NonCore.Humanized(), res.DRAM.Humanized(),
		r.PowerW, types.FromJoules(r.EnergyCumJ).Humanized(),
	)
	tw.Flush()
}

func joules(uj float64) string {
	return types.Microjoules(uj).Humanized()
}
