//go:build linux

package rapl

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ja7ad/energybench/pkg/sensor"
	"github.com/ja7ad/energybench/pkg/system/msr"
	"github.com/ja7ad/energybench/pkg/system/topology"
	"github.com/ja7ad/energybench/pkg/types"
)

const (
	defaultUnits = 0xa1003 // ESU = 1/65536 J
	oneJoule     = 65536   // raw counter worth one joule with defaultUnits
)

// writeRegs writes a synthetic register file for cpu holding the given
// offset -> value pairs. Reads past the highest register fail.
func writeRegs(t *testing.T, dir string, cpu int, regs map[int64]uint64) {
	t.Helper()
	var size int64
	for off := range regs {
		size = max(size, off+8)
	}
	buf := make([]byte, size)
	for off, v := range regs {
		binary.NativeEndian.PutUint64(buf[off:], v)
	}
	p := filepath.Join(dir, fmt.Sprintf("cpu%d", cpu), "msr")
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, buf, 0o644))
}

// twoPackages returns a topology whose packages are addressed through cpu0
// and cpu4.
func twoPackages() *topology.Topology {
	return &topology.Topology{Packages: []topology.Package{
		{ID: 0, Cores: []topology.Core{{ID: 0, Unit: 0, Threads: []topology.Thread{{ID: 0, Unit: 0}}}}},
		{ID: 1, Cores: []topology.Core{{ID: 0, Unit: 4, Threads: []topology.Thread{{ID: 0, Unit: 4}}}}},
	}}
}

func newBackend(dir string, machine string) *Backend {
	return New(
		WithReader(msr.NewReader(filepath.Join(dir, "cpu%d", "msr"))),
		WithMachine(func() (string, error) { return machine, nil }),
	)
}

// fullHost has core, package and DRAM counters on both packages but no PP1.
func fullHost(t *testing.T, scale uint64) string {
	t.Helper()
	dir := t.TempDir()
	writeRegs(t, dir, 0, map[int64]uint64{
		0:                   1,
		msrRAPLPowerUnit:    defaultUnits,
		msrPkgEnergyStatus:  10 * oneJoule * scale,
		msrDRAMEnergyStatus: 2 * oneJoule * scale,
		msrPP0EnergyStatus:  4 * oneJoule * scale,
	})
	writeRegs(t, dir, 4, map[int64]uint64{
		msrRAPLPowerUnit:    defaultUnits,
		msrPkgEnergyStatus:  20 * oneJoule * scale,
		msrDRAMEnergyStatus: 3 * oneJoule * scale,
		msrPP0EnergyStatus:  8 * oneJoule * scale,
	})
	return dir
}

func TestBackend_Probe(t *testing.T) {
	dir := fullHost(t, 1)

	t.Run("x86_64", func(t *testing.T) {
		require.NoError(t, newBackend(dir, "x86_64").Probe())
	})
	t.Run("i686", func(t *testing.T) {
		require.NoError(t, newBackend(dir, "i686").Probe())
	})
	t.Run("unsupported_machine", func(t *testing.T) {
		err := newBackend(dir, "aarch64").Probe()
		assert.ErrorIs(t, err, ErrUnsupportedMachine)
	})
	t.Run("uname_failure", func(t *testing.T) {
		b := New(WithMachine(func() (string, error) { return "", errors.New("boom") }))
		assert.Error(t, b.Probe())
	})
	t.Run("no_msr", func(t *testing.T) {
		err := newBackend(t.TempDir(), "x86_64").Probe()
		require.Error(t, err)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
	assert.Equal(t, "rapl", newBackend(dir, "x86_64").Name())
}

func TestBackend_InitNegotiatesFlags(t *testing.T) {
	b := newBackend(fullHost(t, 1), "x86_64")
	ctx := sensor.NewContext(twoPackages())

	require.NoError(t, b.Init(ctx))
	assert.Equal(t, sensor.CoreSupported|sensor.PackageSupported|sensor.DRAMSupported, ctx.Flags)
	assert.False(t, ctx.Flags.Has(sensor.NonCoreSupported), "PP1 register is absent")
	assert.False(t, ctx.Flags.Has(sensor.GPUSupported), "no GPU counter")

	st, ok := ctx.State.(*State)
	require.True(t, ok)
	require.Len(t, st.Units, 2)
	assert.Equal(t, DecodeUnits(defaultUnits), st.Units[1])
}

func TestBackend_InitFlagNeedsEveryPackage(t *testing.T) {
	dir := t.TempDir()
	writeRegs(t, dir, 0, map[int64]uint64{
		msrRAPLPowerUnit:    defaultUnits,
		msrPkgEnergyStatus:  1,
		msrDRAMEnergyStatus: 1,
		msrPP0EnergyStatus:  1,
	})
	// package 1 only reaches up to the package counter
	writeRegs(t, dir, 4, map[int64]uint64{
		msrRAPLPowerUnit:   defaultUnits,
		msrPkgEnergyStatus: 1,
	})

	ctx := sensor.NewContext(twoPackages())
	require.NoError(t, newBackend(dir, "x86_64").Init(ctx))
	assert.Equal(t, sensor.PackageSupported, ctx.Flags)
}

func TestBackend_InitErrors(t *testing.T) {
	t.Run("units_unreadable", func(t *testing.T) {
		dir := t.TempDir()
		writeRegs(t, dir, 0, map[int64]uint64{msrRAPLPowerUnit: defaultUnits})

		ctx := sensor.NewContext(twoPackages())
		err := newBackend(dir, "x86_64").Init(ctx)
		require.Error(t, err)
		assert.Nil(t, ctx.State)
	})
	t.Run("empty_topology", func(t *testing.T) {
		ctx := sensor.NewContext(&topology.Topology{})
		assert.ErrorIs(t, newBackend(t.TempDir(), "x86_64").Init(ctx), ErrNoPackages)
	})
}

func TestBackend_Read(t *testing.T) {
	b := newBackend(fullHost(t, 1), "x86_64")
	ctx := sensor.NewContext(twoPackages())
	require.NoError(t, b.Init(ctx))

	// unflagged domains must survive a read
	ctx.Packages[0].NonCore = 42
	ctx.System.GPU = 7

	require.NoError(t, b.Read(ctx))

	assert.Equal(t, sensor.PackageEnergy{Package: 10e6, Core: 4e6, NonCore: 42}, ctx.Packages[0])
	assert.Equal(t, sensor.PackageEnergy{Package: 20e6, Core: 8e6}, ctx.Packages[1])
	assert.Equal(t, types.Microjoules(5e6), ctx.System.DRAM)
	assert.Equal(t, types.Microjoules(7), ctx.System.GPU)
}

func TestBackend_ReadMasksCounterTo32Bits(t *testing.T) {
	dir := t.TempDir()
	regs := map[int64]uint64{
		0:                  1,
		msrRAPLPowerUnit:   defaultUnits,
		msrPkgEnergyStatus: 1<<32 | oneJoule,
	}
	writeRegs(t, dir, 0, regs)
	writeRegs(t, dir, 4, regs)

	ctx := sensor.NewContext(twoPackages())
	b := newBackend(dir, "x86_64")
	require.NoError(t, b.Init(ctx))
	require.NoError(t, b.Read(ctx))
	assert.Equal(t, types.Microjoules(1e6), ctx.Packages[0].Package)
}

func TestBackend_SequentialReadsAreMonotonic(t *testing.T) {
	dir := fullHost(t, 1)
	b := newBackend(dir, "x86_64")
	ctx := sensor.NewContext(twoPackages())
	require.NoError(t, b.Init(ctx))
	require.NoError(t, b.Read(ctx))
	first := append([]sensor.PackageEnergy(nil), ctx.Packages...)
	firstSys := ctx.System

	// counters advance, no wrap
	next := fullHost(t, 3)
	b.reader = msr.NewReader(filepath.Join(next, "cpu%d", "msr"))
	require.NoError(t, b.Read(ctx))

	for i := range ctx.Packages {
		assert.GreaterOrEqual(t, float64(ctx.Packages[i].Package-first[i].Package), 0.0)
		assert.GreaterOrEqual(t, float64(ctx.Packages[i].Core-first[i].Core), 0.0)
	}
	assert.GreaterOrEqual(t, float64(ctx.System.DRAM-firstSys.DRAM), 0.0)
	assert.Equal(t, types.Microjoules(15e6), ctx.System.DRAM)
}

func TestBackend_ReadErrors(t *testing.T) {
	t.Run("not_initialized", func(t *testing.T) {
		ctx := sensor.NewContext(twoPackages())
		assert.ErrorIs(t, newBackend(t.TempDir(), "x86_64").Read(ctx), ErrNotInitialized)
	})
	t.Run("register_vanishes", func(t *testing.T) {
		dir := fullHost(t, 1)
		b := newBackend(dir, "x86_64")
		ctx := sensor.NewContext(twoPackages())
		require.NoError(t, b.Init(ctx))

		require.NoError(t, os.Remove(filepath.Join(dir, "cpu4", "msr")))
		err := b.Read(ctx)
		require.Error(t, err)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
	t.Run("after_fini", func(t *testing.T) {
		b := newBackend(fullHost(t, 1), "x86_64")
		ctx := sensor.NewContext(twoPackages())
		require.NoError(t, b.Init(ctx))
		b.Fini(ctx)
		assert.Nil(t, ctx.State)
		assert.ErrorIs(t, b.Read(ctx), ErrNotInitialized)
	})
	t.Run("copied_state_after_fini", func(t *testing.T) {
		b := newBackend(fullHost(t, 1), "x86_64")
		ctx := sensor.NewContext(twoPackages())
		require.NoError(t, b.Init(ctx))

		other := sensor.NewContext(twoPackages())
		other.Flags, other.State = ctx.Flags, ctx.State
		require.NoError(t, b.Read(other))

		b.Fini(ctx)
		assert.ErrorIs(t, b.Read(other), ErrNotInitialized)
	})
	t.Run("state_of_previous_init", func(t *testing.T) {
		b := newBackend(fullHost(t, 1), "x86_64")
		old := sensor.NewContext(twoPackages())
		require.NoError(t, b.Init(old))
		ctx := sensor.NewContext(twoPackages())
		require.NoError(t, b.Init(ctx))

		assert.ErrorIs(t, b.Read(old), ErrNotInitialized)
		assert.NoError(t, b.Read(ctx))
	})
}

func TestBackend_UnsupportedDomain(t *testing.T) {
	b := newBackend(fullHost(t, 1), "x86_64")
	_, err := b.readDomain(0, DecodeUnits(defaultUnits), sensor.GPUSupported)
	assert.ErrorIs(t, err, sensor.ErrUnsupportedDomain)
}
