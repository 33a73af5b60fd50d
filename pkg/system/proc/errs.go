package proc

import "errors"

var (
	// ErrNoCPU indicates that /proc/stat had no aggregate CPU line.
	ErrNoCPU = errors.New("proc: no cpu line")

	// ErrShortCPU indicates that the aggregate CPU line had fewer fields than expected.
	ErrShortCPU = errors.New("proc: short cpu line")
)
