package rulebook

import "errors"

var (
	// ErrConfiguration marks parameter problems detected before any worker
	// is dispatched: rank mismatches, unsupported ranks, shape/grid
	// disagreements.
	ErrConfiguration = errors.New("rulebook: invalid configuration")

	// ErrDeviceExecution marks a fatal failure inside a parallel phase. No
	// partial result is valid afterward and the grid must be reset before
	// the next build.
	ErrDeviceExecution = errors.New("rulebook: device execution failed")

	// ErrUnsupportedPath marks execution paths that are declared but not
	// implemented. They fail loudly rather than fall back.
	ErrUnsupportedPath = errors.New("rulebook: unsupported execution path")
)
