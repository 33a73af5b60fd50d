package sensor

import "errors"

var (
	// ErrNoProbe indicates that a candidate module exports no usable Probe
	// entry point. The candidate is skipped.
	ErrNoProbe = errors.New("sensor: no probe entry point")

	// ErrMissingEntryPoint indicates that a module probed successfully but
	// lacks one of Init, Read or Fini (or exports it with the wrong type).
	// It is not recoverable.
	ErrMissingEntryPoint = errors.New("sensor: missing entry point")

	// ErrAlreadyBound is returned when Select is called on a registry that
	// already bound a backend.
	ErrAlreadyBound = errors.New("sensor: backend already bound")

	// ErrUnsupportedDomain is returned by backends for a domain they have
	// no counter for.
	ErrUnsupportedDomain = errors.New("sensor: unsupported domain")
)
