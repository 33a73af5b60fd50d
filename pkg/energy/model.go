package energy

import (
	"time"

	"github.com/ja7ad/energybench/pkg/types"
)

// PackageReport is the JSON view of one package's counters.
type PackageReport struct {
	ID      int     `json:"id"`
	Package float64 `json:"package_uj"`
	Core    float64 `json:"core_uj"`
	NonCore float64 `json:"noncore_uj"`
}

// Report is the JSON view of a sample.
type Report struct {
	Sensor   string          `json:"sensor"`
	Domains  string          `json:"domains"`
	Packages []PackageReport `json:"packages"`
	DRAM     float64         `json:"dram_uj"`
	GPU      float64         `json:"gpu_uj"`
	Total    float64         `json:"total_uj"`
}

// Result is the energy breakdown of one measurement window, summed over
// packages.
type Result struct {
	Duration time.Duration
	Package  types.Microjoules
	Core     types.Microjoules
	NonCore  types.Microjoules
	DRAM     types.Microjoules
	GPU      types.Microjoules
	Cost     types.Microjoules
}

// Watts returns the average power over the window.
func (r Result) Watts() float64 {
	return r.Cost.Watts(r.Duration.Seconds())
}
