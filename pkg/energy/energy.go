//go:build linux

package energy

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/ja7ad/energybench/pkg/sensor"
	"github.com/ja7ad/energybench/pkg/system/topology"
	"github.com/ja7ad/energybench/pkg/types"
)

// Energy is an energy sample: per-package counters, system counters and the
// capability flags negotiated by the bound backend.
//
// The sample returned by Init owns the backend state. Clones share the
// backend and its state but never release them; they are meant to be used
// as "before" snapshots and dropped after Delta.
type Energy struct {
	sensor.Context

	backend sensor.Backend
	owner   bool
	logger  *slog.Logger
}

// Alloc returns a zeroed sample sized to topo, bound to no backend.
func Alloc(topo *topology.Topology) *Energy {
	return &Energy{
		Context: *sensor.NewContext(topo),
		logger:  discard,
	}
}

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// Init selects a backend from reg and initializes it on a fresh sample.
//
// Without any probing backend the returned sample has no flags and Read
// reports ErrNoSensor. An error is returned only for conditions the caller
// cannot run with: a module missing entry points, or a backend whose Init
// failed.
func Init(topo *topology.Topology, reg *sensor.Registry, logger *slog.Logger) (*Energy, error) {
	if logger == nil {
		logger = discard
	}
	e := Alloc(topo)
	e.logger = logger

	b, err := reg.Select()
	if err != nil {
		return nil, fmt.Errorf("energy: select sensor: %w", err)
	}
	if b == nil {
		logger.Warn("energy measurement disabled: no sensor")
		return e, nil
	}

	if err := b.Init(&e.Context); err != nil {
		return nil, fmt.Errorf("energy: %s init: %w", b.Name(), err)
	}
	e.backend = b
	e.owner = true

	logger.Info("energy sensor ready", "sensor", b.Name(), "domains", e.Flags.String())
	return e, nil
}

// Backend returns the bound backend, nil in no-sensor mode.
func (e *Energy) Backend() sensor.Backend { return e.backend }

// Read refreshes the sample in place.
func (e *Energy) Read() error {
	if e.backend == nil {
		return ErrNoSensor
	}
	if err := e.backend.Read(&e.Context); err != nil {
		return fmt.Errorf("energy: %s read: %w", e.backend.Name(), err)
	}
	return nil
}

// Clone returns a new sample on the same topology with the same flags,
// backend and backend state reference. Counters are zeroed; the per-package
// slice is not shared.
func (e *Energy) Clone() *Energy {
	c := Alloc(e.Topology)
	c.Flags = e.Flags
	c.State = e.State
	c.backend = e.backend
	c.logger = e.logger
	return c
}

// Delta stores after - before into result, domain by domain. result may be
// after itself. Values are already scaled; nothing is rescaled here.
func Delta(before, after, result *Energy) error {
	if before.Topology != after.Topology || result.Topology != after.Topology ||
		len(before.Packages) != len(after.Packages) || len(result.Packages) != len(after.Packages) {
		return ErrTopologyMismatch
	}

	logger := after.logger
	if logger == nil {
		logger = discard
	}

	for i := range after.Packages {
		result.Packages[i].Package = after.Packages[i].Package - before.Packages[i].Package
		result.Packages[i].Core = after.Packages[i].Core - before.Packages[i].Core
		result.Packages[i].NonCore = after.Packages[i].NonCore - before.Packages[i].NonCore
		logger.Debug("energy delta", "package", i,
			"pkg_uj", float64(result.Packages[i].Package),
			"core_uj", float64(result.Packages[i].Core),
			"noncore_uj", float64(result.Packages[i].NonCore))
	}

	result.System.DRAM = after.System.DRAM - before.System.DRAM
	result.System.GPU = after.System.GPU - before.System.GPU
	logger.Debug("energy delta", "dram_uj", float64(result.System.DRAM), "gpu_uj", float64(result.System.GPU))
	return nil
}

// Copy stores the counters of src into dst. Flags, backend and state of dst
// are left as they are.
func Copy(dst, src *Energy) error {
	if dst.Topology != src.Topology || len(dst.Packages) != len(src.Packages) {
		return ErrTopologyMismatch
	}
	copy(dst.Packages, src.Packages)
	dst.System = src.System
	return nil
}

// Cost returns the total energy of the sample: every package total plus
// DRAM and GPU.
func (e *Energy) Cost() types.Microjoules {
	var cost types.Microjoules
	for _, p := range e.Packages {
		cost += p.Package
	}
	return cost + e.System.DRAM + e.System.GPU
}

// Result sums the sample over packages. Duration is left to the caller.
func (e *Energy) Result() Result {
	var r Result
	for _, p := range e.Packages {
		r.Package += p.Package
		r.Core += p.Core
		r.NonCore += p.NonCore
	}
	r.DRAM = e.System.DRAM
	r.GPU = e.System.GPU
	r.Cost = e.Cost()
	return r
}

// Report returns the JSON view of the sample.
func (e *Energy) Report() Report {
	r := Report{
		Sensor:   "none",
		Domains:  e.Flags.String(),
		Packages: make([]PackageReport, len(e.Packages)),
		DRAM:     float64(e.System.DRAM),
		GPU:      float64(e.System.GPU),
		Total:    float64(e.Cost()),
	}
	if e.backend != nil {
		r.Sensor = e.backend.Name()
	}
	for i, p := range e.Packages {
		id := i
		if e.Topology != nil && i < len(e.Topology.Packages) {
			id = e.Topology.Packages[i].ID
		}
		r.Packages[i] = PackageReport{
			ID:      id,
			Package: float64(p.Package),
			Core:    float64(p.Core),
			NonCore: float64(p.NonCore),
		}
	}
	return r
}

// Fini releases the backend state if e owns it. On a clone it only drops
// the references.
func (e *Energy) Fini() {
	if e.owner && e.backend != nil {
		e.backend.Fini(&e.Context)
	}
	e.backend = nil
	e.owner = false
	e.State = nil
}
