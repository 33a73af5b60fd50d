// Package sensor defines the energy sensor backend contract and the registry
// that selects one backend per process.
//
// A backend negotiates, at Init time, which accounting domains it can
// actually read on this host and records them as capability Flags on the
// Context. Read only ever touches flagged domains.
//
// Backends come from two places: Go plugin modules (*.so) found in a sensor
// directory, and backends compiled into the binary and handed to the
// registry with WithBackends. A plugin module exports:
//
//	func Probe() error
//	func Init(*sensor.Context) error
//	func Read(*sensor.Context) error
//	func Fini(*sensor.Context)
package sensor

import (
	"strings"

	"github.com/ja7ad/energybench/pkg/system/topology"
	"github.com/ja7ad/energybench/pkg/types"
)

// Flags is the set of domains a backend can read on this host.
type Flags uint8

const (
	CoreSupported    Flags = 1 << iota // 0x1
	NonCoreSupported                   // 0x2
	PackageSupported                   // 0x4
	DRAMSupported                      // 0x8
	GPUSupported                       // 0x10
)

// Domains lists every domain flag in a stable order.
var Domains = []Flags{CoreSupported, NonCoreSupported, PackageSupported, DRAMSupported, GPUSupported}

// Has reports whether all domains in d are set.
func (f Flags) Has(d Flags) bool { return d != 0 && f&d == d }

func (f Flags) String() string {
	if f == 0 {
		return "none"
	}
	var names []string
	for _, d := range Domains {
		if f.Has(d) {
			names = append(names, domainName(d))
		}
	}
	return strings.Join(names, "|")
}

func domainName(d Flags) string {
	switch d {
	case CoreSupported:
		return "core"
	case NonCoreSupported:
		return "noncore"
	case PackageSupported:
		return "package"
	case DRAMSupported:
		return "dram"
	case GPUSupported:
		return "gpu"
	default:
		return "unknown"
	}
}

// PackageEnergy holds the per-package counters.
type PackageEnergy struct {
	Package types.Microjoules // whole package
	Core    types.Microjoules // cores only (PP0)
	NonCore types.Microjoules // uncore/graphics plane (PP1)
}

// SystemEnergy holds the counters that are not attributed to a package.
type SystemEnergy struct {
	DRAM types.Microjoules
	GPU  types.Microjoules
}

// State is backend-private data. A Context only references it; the backend
// that created it is the one that releases it in Fini.
type State any

// Context is what backends read from and write into.
type Context struct {
	Flags    Flags
	Packages []PackageEnergy
	System   SystemEnergy
	Topology *topology.Topology
	State    State
}

// NewContext returns an empty context sized to topo.
func NewContext(topo *topology.Topology) *Context {
	return &Context{
		Packages: make([]PackageEnergy, topo.NumPackages()),
		Topology: topo,
	}
}

// Backend is an energy sensor implementation.
//
// Probe checks that the backend can run on this host and has no side
// effects. Init negotiates capability flags and attaches State. Read
// refreshes every flagged domain and leaves the others untouched. Fini
// releases what Init allocated.
type Backend interface {
	Name() string
	Probe() error
	Init(ctx *Context) error
	Read(ctx *Context) error
	Fini(ctx *Context)
}
