package rapl

import "errors"

var (
	// ErrUnsupportedMachine indicates that the host architecture has no RAPL.
	ErrUnsupportedMachine = errors.New("rapl: unsupported machine")

	// ErrNotInitialized indicates Read on a context without RAPL state.
	ErrNotInitialized = errors.New("rapl: context not initialized")

	// ErrNoPackages indicates Init on an empty topology.
	ErrNoPackages = errors.New("rapl: topology has no packages")
)
