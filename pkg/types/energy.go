package types

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// Microjoules is a float64 wrapper representing an amount of energy in µJ.
type Microjoules float64

// FromJoules converts a value in joules to Microjoules.
func FromJoules(j float64) Microjoules { return Microjoules(j * 1e6) }

// Joules returns the amount in joules.
func (m Microjoules) Joules() float64 { return float64(m) / 1e6 }

// Millijoules returns the amount in millijoules.
func (m Microjoules) Millijoules() float64 { return float64(m) / 1e3 }

// Humanized returns the amount with an SI prefix on joules (µJ, mJ, J, kJ, ...).
func (m Microjoules) Humanized() string {
	return humanize.SIWithDigits(m.Joules(), 2, "J")
}

// String prints the raw microjoule value.
func (m Microjoules) String() string {
	return fmt.Sprintf("%.3f uJ", float64(m))
}

// Watts returns the average power over d seconds. Zero or negative windows yield 0.
func (m Microjoules) Watts(seconds float64) float64 {
	if seconds <= 0 {
		return 0
	}
	return m.Joules() / seconds
}
