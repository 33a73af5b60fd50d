//go:build linux

package topology

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ja7ad/energybench/pkg/system/util"
)

// DefaultRoot is the sysfs directory holding the cpu<N> entries.
const DefaultRoot = "/sys/devices/system/cpu"

// unitIDs are the grouping ids reported by the platform for one unit.
type unitIDs struct {
	unit   int
	pkgID  int
	coreID int
}

// Discover builds the topology of the host from the sysfs tree at root
// (DefaultRoot when empty).
//
// The unit set comes from <root>/online when that file exists, otherwise it
// is 0..N-1 where N is the number of cpu<N> entries. For every unit the
// package and core grouping ids are read from <root>/cpu<N>/topology; if any
// of them cannot be read, discovery fails as a whole.
func Discover(root string) (*Topology, error) {
	if root == "" {
		root = DefaultRoot
	}

	units, err := listUnits(root)
	if err != nil {
		return nil, err
	}

	ids := make([]unitIDs, 0, len(units))
	for _, u := range units {
		pkgID, err := readGroupingID(root, u, "physical_package_id")
		if err != nil {
			return nil, err
		}
		coreID, err := readGroupingID(root, u, "core_id")
		if err != nil {
			return nil, err
		}
		ids = append(ids, unitIDs{unit: u, pkgID: pkgID, coreID: coreID})
	}

	return build(ids), nil
}

// build groups units into packages and cores. Packages and cores keep the
// order in which they were first seen; a thread's ID is its position in the
// core's thread list.
func build(ids []unitIDs) *Topology {
	type coreKey struct{ pkg, core int }

	topo := &Topology{}
	pkgSeen := map[int]int{}      // package id -> index in topo.Packages
	coreSeen := map[coreKey]int{} // (package id, core id) -> index in Package.Cores

	for _, u := range ids {
		pi, ok := pkgSeen[u.pkgID]
		if !ok {
			pi = len(topo.Packages)
			pkgSeen[u.pkgID] = pi
			topo.Packages = append(topo.Packages, Package{ID: u.pkgID})
		}
		pkg := &topo.Packages[pi]

		key := coreKey{pkg: u.pkgID, core: u.coreID}
		ci, ok := coreSeen[key]
		if !ok {
			ci = len(pkg.Cores)
			coreSeen[key] = ci
			pkg.Cores = append(pkg.Cores, Core{ID: u.coreID, Unit: u.unit})
		}
		core := &pkg.Cores[ci]
		core.Threads = append(core.Threads, Thread{ID: len(core.Threads), Unit: u.unit})
	}
	return topo
}

// Show logs the hierarchy at debug level.
func (t *Topology) Show(logger *slog.Logger) {
	if t == nil || logger == nil {
		return
	}
	for _, p := range t.Packages {
		logger.Debug("package", "id", p.ID, "cores", len(p.Cores))
		for _, c := range p.Cores {
			logger.Debug("  core", "id", c.ID, "cpu", c.Unit, "threads", len(c.Threads))
			for _, th := range c.Threads {
				logger.Debug("    thread", "id", th.ID, "cpu", th.Unit)
			}
		}
	}
}

func listUnits(root string) ([]int, error) {
	b, err := os.ReadFile(filepath.Join(root, "online"))
	switch {
	case err == nil:
		units, err := util.ParseCPUList(string(b))
		if err != nil {
			return nil, fmt.Errorf("topology: online: %w", err)
		}
		return units, nil
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("topology: online: %w", err)
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("topology: %w", err)
	}
	n := 0
	for _, e := range entries {
		if isCPUDir(e.Name()) {
			n++
		}
	}
	if n == 0 {
		return nil, ErrNoUnits
	}
	units := make([]int, n)
	for i := range units {
		units[i] = i
	}
	return units, nil
}

// isCPUDir matches cpu<N>, skipping cpufreq, cpuidle and friends.
func isCPUDir(name string) bool {
	suffix, ok := strings.CutPrefix(name, "cpu")
	if !ok || suffix == "" {
		return false
	}
	_, err := strconv.Atoi(suffix)
	return err == nil
}

func readGroupingID(root string, unit int, file string) (int, error) {
	p := filepath.Join(root, fmt.Sprintf("cpu%d", unit), "topology", file)
	v, err := util.ReadInt(p)
	if err != nil {
		return 0, fmt.Errorf("%w: cpu%d %s: %v", ErrGroupingID, unit, file, err)
	}
	return v, nil
}
