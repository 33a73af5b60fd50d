package energy

import "errors"

var (
	// ErrNoSensor is returned by Read when no backend was bound. The
	// sample stays usable for Clone, Delta and Cost.
	ErrNoSensor = errors.New("energy: no sensor")

	// ErrTopologyMismatch is returned by Delta when the samples were not
	// allocated on the same topology.
	ErrTopologyMismatch = errors.New("energy: samples from different topologies")
)
