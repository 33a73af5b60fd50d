//go:build linux

package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ja7ad/energybench/pkg/config"
)

const (
	powerUnitReg = 0x606
	pkgReg       = 0x611
	dramReg      = 0x619
	pp0Reg       = 0x639

	energyUnits = 0xa1003 // ESU = 1/65536 J
	joule       = 65536
)

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

// testApp returns an app over a one-package, two-cpu synthetic host whose
// register files carry core, package and DRAM counters.
func testApp(t *testing.T) (*app, *bytes.Buffer) {
	t.Helper()
	if runtime.GOARCH != "amd64" && runtime.GOARCH != "386" {
		t.Skip("rapl needs an x86 host")
	}

	sysfs, dev := t.TempDir(), t.TempDir()
	for u := 0; u < 2; u++ {
		topo := filepath.Join(sysfs, fmt.Sprintf("cpu%d", u), "topology")
		writeFile(t, filepath.Join(topo, "physical_package_id"), []byte("0\n"))
		writeFile(t, filepath.Join(topo, "core_id"), []byte(fmt.Sprintf("%d\n", u)))
	}

	regs := make([]byte, pp0Reg+8)
	binary.NativeEndian.PutUint64(regs[powerUnitReg:], energyUnits)
	binary.NativeEndian.PutUint64(regs[pkgReg:], 10*joule)
	binary.NativeEndian.PutUint64(regs[dramReg:], 2*joule)
	binary.NativeEndian.PutUint64(regs[pp0Reg:], 4*joule)
	for u := 0; u < 2; u++ {
		writeFile(t, filepath.Join(dev, fmt.Sprintf("cpu%d", u), "msr"), regs)
	}

	cfg := config.Default()
	cfg.SysfsCPU = sysfs
	cfg.MSRPath = filepath.Join(dev, "cpu%d", "msr")
	cfg.SensorDir = t.TempDir()
	cfg.Interval = 10 * time.Millisecond

	var out bytes.Buffer
	return &app{
		cfg:    cfg,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		json:   true,
		out:    &out,
	}, &out
}

func TestWatch_JSON(t *testing.T) {
	a, out := testApp(t)
	a.cfg.Samples = 3

	require.NoError(t, a.watch(context.Background()))

	var rows []tickRow
	dec := json.NewDecoder(out)
	for dec.More() {
		var r tickRow
		require.NoError(t, dec.Decode(&r))
		rows = append(rows, r)
	}
	require.Len(t, rows, 3)
	for i, r := range rows {
		assert.Equal(t, "rapl", r.Energy.Sensor, "row %d", i)
		assert.Equal(t, "core|package|dram", r.Energy.Domains, "row %d", i)
		require.Len(t, r.Energy.Packages, 1)
		// counters do not move on the synthetic host
		assert.Zero(t, r.Energy.Total, "row %d", i)
		assert.Zero(t, r.Energy.Packages[0].Package, "row %d", i)
	}
}

func TestMeasure_JSON(t *testing.T) {
	a, out := testApp(t)
	bin, err := exec.LookPath("true")
	if err != nil {
		t.Skip("no true(1) on this host")
	}
	a.cfg.Iterations = 2

	require.NoError(t, a.measure(context.Background(), []string{bin}))

	var rep measureReport
	require.NoError(t, json.Unmarshal(out.Bytes(), &rep))
	assert.Equal(t, []string{bin}, rep.Command)
	require.Len(t, rep.Runs, 2)
	for i, r := range rep.Runs {
		assert.Equal(t, i+1, r.Run)
		assert.Equal(t, "rapl", r.Energy.Sensor)
		assert.Zero(t, r.Energy.Total)
		assert.GreaterOrEqual(t, r.DurationSec, 0.0)
	}
	assert.Zero(t, rep.TotalJoule)
}

func TestMeasure_CommandFailure(t *testing.T) {
	a, _ := testApp(t)
	bin, err := exec.LookPath("false")
	if err != nil {
		t.Skip("no false(1) on this host")
	}

	err = a.measure(context.Background(), []string{bin})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run 1")
}
