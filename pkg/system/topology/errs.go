package topology

import "errors"

var (
	// ErrGroupingID indicates that a unit's physical_package_id or core_id
	// could not be read. Discovery never returns a partial topology.
	ErrGroupingID = errors.New("topology: unreadable grouping id")

	// ErrNoUnits indicates that no processing unit was found under the sysfs root.
	ErrNoUnits = errors.New("topology: no processing units")
)
