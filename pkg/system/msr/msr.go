//go:build linux

// Package msr reads model-specific registers through the Linux msr driver
// (/dev/cpu/<N>/msr). A register is addressed by seeking to its offset and
// reading eight bytes in native byte order.
package msr

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// DefaultPath is the per-cpu register file template.
const DefaultPath = "/dev/cpu/%d/msr"

// ErrShortRead indicates that fewer than eight bytes were available at the offset.
var ErrShortRead = errors.New("msr: short read")

// Reader reads registers from files named by a cpu-indexed path template.
// The zero value uses DefaultPath.
type Reader struct {
	Path string
}

// NewReader returns a Reader over the given template (DefaultPath when empty).
func NewReader(path string) *Reader {
	if path == "" {
		path = DefaultPath
	}
	return &Reader{Path: path}
}

// File returns the register file path for cpu.
func (r *Reader) File(cpu int) string {
	path := r.Path
	if path == "" {
		path = DefaultPath
	}
	return fmt.Sprintf(path, cpu)
}

// Read returns the 64-bit register at offset on cpu.
func (r *Reader) Read(cpu int, offset int64) (uint64, error) {
	f, err := os.Open(r.File(cpu))
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var buf [8]byte
	n, err := f.ReadAt(buf[:], offset)
	if n != len(buf) {
		if err == nil || errors.Is(err, io.EOF) {
			err = ErrShortRead
		}
		return 0, fmt.Errorf("msr: cpu%d offset %#x: %w", cpu, offset, err)
	}
	return binary.NativeEndian.Uint64(buf[:]), nil
}
