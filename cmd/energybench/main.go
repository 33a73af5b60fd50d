//go:build linux

package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/ja7ad/energybench/pkg/config"
	"github.com/ja7ad/energybench/pkg/energy"
	"github.com/ja7ad/energybench/pkg/sensor"
	"github.com/ja7ad/energybench/pkg/sensor/rapl"
	"github.com/ja7ad/energybench/pkg/system/msr"
	"github.com/ja7ad/energybench/pkg/system/topology"
)

// app carries what every subcommand needs once flags are parsed.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	json   bool
	out    io.Writer

	configPath string
	flags      config.Config
}

func main() {
	a := &app{out: os.Stdout}

	root := &cobra.Command{
		Use:   "energybench",
		Short: "Hardware energy measurement around workloads",
		Long: `energybench discovers the processor topology of a Linux host, binds an
energy sensor (RAPL over /dev/cpu/*/msr, or a sensor module found in the
sensor directory) and reports the energy spent by a workload per package,
core, uncore, DRAM and GPU domain.

Examples:
  energybench topology
  energybench measure -n 5 -- gzip -9 -k big.tar
  energybench watch -s 20 -i 500ms --json`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&a.configPath, "config", "c", "", "YAML configuration file")
	pf.StringVar(&a.flags.LogLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&a.flags.SysfsCPU, "sysfs", "", "cpu topology root (default /sys/devices/system/cpu)")
	pf.StringVar(&a.flags.MSRPath, "msr", "", "msr device pattern, %d is the cpu (default /dev/cpu/%d/msr)")
	pf.StringVar(&a.flags.SensorDir, "sensors", "", "directory scanned for sensor modules (default ./sensors)")
	pf.BoolVar(&a.json, "json", false, "print JSON instead of tables")

	root.AddCommand(newTopologyCmd(a), newMeasureCmd(a), newWatchCmd(a))

	if err := root.Execute(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

// setup loads the configuration file, applies the flags that were set and
// installs the logger.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}

	pf := cmd.Flags()
	if pf.Changed("log-level") {
		cfg.LogLevel = a.flags.LogLevel
	}
	if pf.Changed("sysfs") {
		cfg.SysfsCPU = a.flags.SysfsCPU
	}
	if pf.Changed("msr") {
		cfg.MSRPath = a.flags.MSRPath
	}
	if pf.Changed("sensors") {
		cfg.SensorDir = a.flags.SensorDir
	}

	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	a.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(a.logger)
	a.cfg = cfg
	return nil
}

func (a *app) discover() (*topology.Topology, error) {
	topo, err := topology.Discover(a.cfg.SysfsCPU)
	if err != nil {
		return nil, fmt.Errorf("topology: %w", err)
	}
	topo.Show(a.logger)
	return topo, nil
}

// openEnergy discovers the topology and binds a sensor. The returned sample
// owns the backend; the caller must Fini it.
func (a *app) openEnergy() (*energy.Energy, error) {
	topo, err := a.discover()
	if err != nil {
		return nil, err
	}

	reg := sensor.NewRegistry(a.cfg.SensorDir,
		sensor.WithLogger(a.logger),
		sensor.WithBackends(rapl.New(rapl.WithReader(msr.NewReader(a.cfg.MSRPath)))),
	)
	e, err := energy.Init(topo, reg, a.logger)
	if err != nil {
		return nil, err
	}
	if !a.json {
		a.printHeader(topo, e)
	}
	return e, nil
}

func (a *app) printHeader(topo *topology.Topology, e *energy.Energy) {
	host, kernel := "unknown", "unknown"
	var u unix.Utsname
	if err := unix.Uname(&u); err == nil {
		host = unix.ByteSliceToString(u.Nodename[:])
		kernel = unix.ByteSliceToString(u.Release[:])
	}
	sensorName := "none"
	if b := e.Backend(); b != nil {
		sensorName = b.Name()
	}
	fmt.Fprintf(a.out, _console, host, kernel, topo.NumPackages(), topo.NumUnits(),
		sensorName, e.Flags, time.Now().Format("2006-01-02 15:04:05"))
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

const _console = `energybench - hardware energy measurement

       Host: %s
       Kernel: %s
       Packages: %d
       CPUs: %d
       Sensor: %s (%s)

Energy report as of %s:

`
