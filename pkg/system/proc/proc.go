//go:build linux

// Package proc reads system CPU time from /proc/stat so that energy windows
// can be reported next to the load that produced them.
package proc

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ja7ad/energybench/pkg/system/util"
)

// DefaultStatPath is the kernel's CPU accounting file.
const DefaultStatPath = "/proc/stat"

// CPUTimes holds the aggregate jiffy counters of the "cpu" line.
//   - Active: user + nice + system + irq + softirq + steal
//   - Total:  Active + idle + iowait
type CPUTimes struct {
	Active uint64
	Total  uint64
}

// ReadCPU parses the aggregate CPU line of a /proc/stat formatted file.
// Counters are monotonic; take deltas between two reads.
func ReadCPU(path string) (CPUTimes, error) {
	if path == "" {
		path = DefaultStatPath
	}
	f, err := os.Open(path)
	if err != nil {
		return CPUTimes{}, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fs := strings.Fields(sc.Text())
		if len(fs) == 0 || fs[0] != "cpu" {
			continue
		}
		if len(fs) < 9 {
			return CPUTimes{}, fmt.Errorf("%w: %d fields", ErrShortCPU, len(fs)-1)
		}
		var vals [8]uint64
		for i := range vals {
			v, err := strconv.ParseUint(fs[i+1], 10, 64)
			if err != nil {
				return CPUTimes{}, fmt.Errorf("proc: cpu field %d: %w", i+1, err)
			}
			vals[i] = v
		}
		active := vals[0] + vals[1] + vals[2] + vals[5] + vals[6] + vals[7]
		return CPUTimes{Active: active, Total: active + vals[3] + vals[4]}, nil
	}
	if err := sc.Err(); err != nil {
		return CPUTimes{}, err
	}
	return CPUTimes{}, ErrNoCPU
}

// Utilization returns the busy fraction in [0,1] between two reads.
func Utilization(before, after CPUTimes) float64 {
	active := deltaU64(after.Active, before.Active)
	total := deltaU64(after.Total, before.Total)
	return clamp01(util.SafeDiv(float64(active), float64(total)))
}

// deltaU64 returns now - prev, or 0 when the counter went backwards.
func deltaU64(now, prev uint64) uint64 {
	if now < prev {
		return 0
	}
	return now - prev
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
