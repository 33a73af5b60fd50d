//go:build linux

package energy

import (
	"time"

	"github.com/ja7ad/energybench/pkg/system/util"
	"github.com/ja7ad/energybench/pkg/types"
)

// Accumulator keeps running averages over repeated measurement windows of
// the same workload.
type Accumulator struct {
	count     int
	energyCum types.Microjoules

	avgSeconds float64
	avgPackage float64
	avgCore    float64
	avgNonCore float64
	avgDRAM    float64
	avgGPU     float64
	avgCost    float64
}

func NewAccumulator() *Accumulator { return &Accumulator{} }

// Apply folds one window into the averages. delta is the Delta of the
// window, d its wall-clock duration. It returns the window's own breakdown.
func (a *Accumulator) Apply(d time.Duration, delta *Energy) Result {
	r := delta.Result()
	r.Duration = d

	a.count++
	a.energyCum += r.Cost

	n := a.count
	a.avgSeconds = util.StreamAvg(a.avgSeconds, d.Seconds(), n)
	a.avgPackage = util.StreamAvg(a.avgPackage, float64(r.Package), n)
	a.avgCore = util.StreamAvg(a.avgCore, float64(r.Core), n)
	a.avgNonCore = util.StreamAvg(a.avgNonCore, float64(r.NonCore), n)
	a.avgDRAM = util.StreamAvg(a.avgDRAM, float64(r.DRAM), n)
	a.avgGPU = util.StreamAvg(a.avgGPU, float64(r.GPU), n)
	a.avgCost = util.StreamAvg(a.avgCost, float64(r.Cost), n)

	return r
}

// Count returns the number of applied windows.
func (a *Accumulator) Count() int { return a.count }

// EnergyCum returns the energy summed over all windows.
func (a *Accumulator) EnergyCum() types.Microjoules { return a.energyCum }

// Averages returns the mean window.
func (a *Accumulator) Averages() Result {
	if a.count == 0 {
		return Result{}
	}
	return Result{
		Duration: time.Duration(a.avgSeconds * float64(time.Second)),
		Package:  types.Microjoules(a.avgPackage),
		Core:     types.Microjoules(a.avgCore),
		NonCore:  types.Microjoules(a.avgNonCore),
		DRAM:     types.Microjoules(a.avgDRAM),
		GPU:      types.Microjoules(a.avgGPU),
		Cost:     types.Microjoules(a.avgCost),
	}
}
