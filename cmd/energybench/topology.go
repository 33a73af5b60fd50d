//go:build linux

package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ja7ad/energybench/pkg/system/topology"
)

func newTopologyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "topology",
		Short: "Print the package/core/thread hierarchy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			topo, err := a.discover()
			if err != nil {
				return err
			}
			if a.json {
				enc := json.NewEncoder(a.out)
				enc.SetIndent("", "  ")
				return enc.Encode(topo)
			}
			return a.printTopology(topo)
		},
	}
}

func (a *app) printTopology(topo *topology.Topology) error {
	tw := newTable(a.out)
	fmt.Fprintln(tw, "PACKAGE\tCORE\tTHREAD\tCPU")
	fmt.Fprintln(tw, "-------\t----\t------\t---")
	for _, p := range topo.Packages {
		for _, c := range p.Cores {
			for _, th := range c.Threads {
				fmt.Fprintf(tw, "%d\t%d\t%d\t%d\n", p.ID, c.ID, th.ID, th.Unit)
			}
		}
	}
	fmt.Fprintf(tw, "\n%d packages, %d cpus\n", topo.NumPackages(), topo.NumUnits())
	return tw.Flush()
}
