//go:build linux

package util

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
)

// ErrEmptyList is returned by ParseCPUList for an empty or blank list.
var ErrEmptyList = errors.New("util: empty cpu list")

// ReadInt reads a single decimal integer from a sysfs-style pseudo-file.
// Surrounding whitespace (the trailing newline) is ignored.
func ReadInt(path string) (int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}
	return v, nil
}

// ParseCPUList parses the kernel cpulist format used by
// /sys/devices/system/cpu/{online,possible,present}, e.g. "0-3,8,10-11".
// The result is sorted and free of duplicates.
func ParseCPUList(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrEmptyList
	}

	set := map[int]struct{}{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lo, hi, isRange := strings.Cut(part, "-")
		first, err := strconv.Atoi(lo)
		if err != nil {
			return nil, fmt.Errorf("cpulist %q: %w", s, err)
		}
		last := first
		if isRange {
			last, err = strconv.Atoi(hi)
			if err != nil {
				return nil, fmt.Errorf("cpulist %q: %w", s, err)
			}
		}
		if first < 0 || last < first {
			return nil, fmt.Errorf("cpulist %q: bad range %q", s, part)
		}
		for id := first; id <= last; id++ {
			set[id] = struct{}{}
		}
	}
	if len(set) == 0 {
		return nil, ErrEmptyList
	}

	out := make([]int, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Ints(out)
	return out, nil
}

// StreamAvg folds the n-th value (1-based) into a running average:
//
//	avg = avg + (v - avg) / n
func StreamAvg(avg, v float64, n int) float64 {
	if n <= 0 {
		return avg
	}
	return avg + (v-avg)/float64(n)
}

func SafeDiv(n, d float64) float64 {
	const eps = 1e-12
	if d > eps || d < -eps {
		return n / d
	}
	return 0
}

// Ratio returns the relative change from v1 to v2 in percent.
func Ratio(v1, v2 float64) float64 {
	return SafeDiv(v2-v1, v1) * 100
}
