//go:build linux

// Package rapl is an energy sensor backend reading Intel RAPL counters
// through the msr driver.
//
// Energy status registers are 32-bit counters updated about every
// millisecond. They wrap after roughly a minute under heavy load; no
// wrap correction is done here, so a measurement window longer than the
// wrap period produces a wrong delta.
package rapl

import (
	"fmt"
	"slices"

	"golang.org/x/sys/unix"

	"github.com/ja7ad/energybench/pkg/sensor"
	"github.com/ja7ad/energybench/pkg/system/msr"
	"github.com/ja7ad/energybench/pkg/types"
)

// Name is the backend name.
const Name = "rapl"

// Register offsets.
const (
	msrRAPLPowerUnit    = 0x606
	msrPkgEnergyStatus  = 0x611 // package domain
	msrDRAMEnergyStatus = 0x619 // DRAM domain
	msrPP0EnergyStatus  = 0x639 // cores
	msrPP1EnergyStatus  = 0x641 // uncore / integrated graphics plane

	energyCounterMask = 0xffffffff // total energy consumed, bits 31:0
)

var supportedMachines = []string{"i386", "i686", "x86_64"}

// domainRegister maps a domain to its energy status register; 0 means the
// backend has no counter for it.
var domainRegister = map[sensor.Flags]int64{
	sensor.CoreSupported:    msrPP0EnergyStatus,
	sensor.NonCoreSupported: msrPP1EnergyStatus,
	sensor.PackageSupported: msrPkgEnergyStatus,
	sensor.DRAMSupported:    msrDRAMEnergyStatus,
	sensor.GPUSupported:     0,
}

// State is the per-package scale units, indexed like Topology.Packages.
type State struct {
	Units []Units
}

// Backend implements sensor.Backend.
type Backend struct {
	reader  *msr.Reader
	machine func() (string, error)
	state   *State
}

type Option func(*Backend)

// WithReader sets the register reader.
func WithReader(r *msr.Reader) Option {
	return func(b *Backend) { b.reader = r }
}

// WithMachine overrides how the hardware name (uname -m) is obtained.
func WithMachine(fn func() (string, error)) Option {
	return func(b *Backend) { b.machine = fn }
}

func New(opts ...Option) *Backend {
	b := &Backend{
		reader:  msr.NewReader(""),
		machine: unameMachine,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Backend) Name() string { return Name }

// Probe checks the architecture and that register files are readable.
func (b *Backend) Probe() error {
	m, err := b.machine()
	if err != nil {
		return fmt.Errorf("rapl: uname: %w", err)
	}
	if !slices.Contains(supportedMachines, m) {
		return fmt.Errorf("%w: %s", ErrUnsupportedMachine, m)
	}
	if _, err := b.reader.Read(0, 0); err != nil {
		return fmt.Errorf("rapl: msr not readable (modprobe msr? permission?): %w", err)
	}
	return nil
}

// Init decodes the units of every package and negotiates the capability
// flags: a domain is flagged only if its counter could be read on every
// package. A domain readable on some packages but not on all stays
// unflagged.
func (b *Backend) Init(ctx *sensor.Context) error {
	topo := ctx.Topology
	if topo.NumPackages() == 0 {
		return ErrNoPackages
	}

	units := make([]Units, topo.NumPackages())
	supported := sensor.Flags(0)
	for _, d := range sensor.Domains {
		supported |= d
	}

	for i := range topo.Packages {
		cpu := topo.Unit(i)
		raw, err := b.reader.Read(cpu, msrRAPLPowerUnit)
		if err != nil {
			return fmt.Errorf("rapl: power unit of package %d: %w", topo.Packages[i].ID, err)
		}
		units[i] = DecodeUnits(raw)

		for _, d := range sensor.Domains {
			if _, err := b.readDomain(cpu, units[i], d); err != nil {
				supported &^= d
			}
		}
	}

	b.state = &State{Units: units}
	ctx.State = b.state
	ctx.Flags = supported
	return nil
}

// Read refreshes every flagged domain. DRAM is reported system-wide as the
// sum over packages. A context holding state released by Fini, or created by
// another Init, is rejected with ErrNotInitialized.
func (b *Backend) Read(ctx *sensor.Context) error {
	st, ok := ctx.State.(*State)
	if !ok || st == nil || st != b.state {
		return ErrNotInitialized
	}
	topo := ctx.Topology

	var dram types.Microjoules
	for i := range ctx.Packages {
		cpu := topo.Unit(i)
		u := st.Units[i]
		pkg := &ctx.Packages[i]

		for _, d := range []struct {
			flag sensor.Flags
			dst  *types.Microjoules
		}{
			{sensor.CoreSupported, &pkg.Core},
			{sensor.NonCoreSupported, &pkg.NonCore},
			{sensor.PackageSupported, &pkg.Package},
		} {
			if !ctx.Flags.Has(d.flag) {
				continue
			}
			v, err := b.readDomain(cpu, u, d.flag)
			if err != nil {
				return err
			}
			*d.dst = v
		}

		if ctx.Flags.Has(sensor.DRAMSupported) {
			v, err := b.readDomain(cpu, u, sensor.DRAMSupported)
			if err != nil {
				return err
			}
			dram += v
		}
	}

	if ctx.Flags.Has(sensor.DRAMSupported) {
		ctx.System.DRAM = dram
	}
	if ctx.Flags.Has(sensor.GPUSupported) {
		v, err := b.readDomain(topo.Unit(0), st.Units[0], sensor.GPUSupported)
		if err != nil {
			return err
		}
		ctx.System.GPU = v
	}
	return nil
}

// Fini drops the state created by Init.
func (b *Backend) Fini(ctx *sensor.Context) {
	b.state = nil
	if ctx != nil {
		ctx.State = nil
	}
}

// readDomain reads the domain's counter on cpu and scales it to microjoules.
func (b *Backend) readDomain(cpu int, u Units, d sensor.Flags) (types.Microjoules, error) {
	reg := domainRegister[d]
	if reg == 0 {
		return 0, fmt.Errorf("rapl: %s: %w", d, sensor.ErrUnsupportedDomain)
	}
	raw, err := b.reader.Read(cpu, reg)
	if err != nil {
		return 0, fmt.Errorf("rapl: %s energy on cpu%d: %w", d, cpu, err)
	}
	return types.FromJoules(float64(raw&energyCounterMask) * u.Energy), nil
}

func unameMachine() (string, error) {
	var u unix.Utsname
	if err := unix.Uname(&u); err != nil {
		return "", err
	}
	return unix.ByteSliceToString(u.Machine[:]), nil
}
