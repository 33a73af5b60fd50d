package topology

// Thread is a logical processing unit. ID is the discovery index within its
// core, Unit is the platform cpu number.
type Thread struct {
	ID   int `json:"id"`
	Unit int `json:"unit"`
}

// Core is a physical core. Unit is the first cpu seen on that core and is
// the one used to address per-core hardware registers.
type Core struct {
	ID      int      `json:"id"`
	Unit    int      `json:"unit"`
	Threads []Thread `json:"threads"`
}

// Package is a processor socket.
type Package struct {
	ID    int    `json:"id"`
	Cores []Core `json:"cores"`
}

// Topology is the Package -> Core -> Thread hierarchy of the host. It is
// built once and must be treated as read-only afterwards.
type Topology struct {
	Packages []Package `json:"packages"`
}

// NumPackages returns the number of packages.
func (t *Topology) NumPackages() int {
	if t == nil {
		return 0
	}
	return len(t.Packages)
}

// NumUnits returns the number of threads across all packages.
func (t *Topology) NumUnits() int {
	return len(t.Units())
}

// Units returns every thread's unit id in package, core, thread order.
func (t *Topology) Units() []int {
	if t == nil {
		return nil
	}
	var out []int
	for _, p := range t.Packages {
		for _, c := range p.Cores {
			for _, th := range c.Threads {
				out = append(out, th.Unit)
			}
		}
	}
	return out
}

// Unit returns the representative unit of package i: the first core's unit.
// It returns -1 when the package index is out of range or has no cores.
func (t *Topology) Unit(pkg int) int {
	if t == nil || pkg < 0 || pkg >= len(t.Packages) || len(t.Packages[pkg].Cores) == 0 {
		return -1
	}
	return t.Packages[pkg].Cores[0].Unit
}
