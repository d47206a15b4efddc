package rulebook

import "fmt"

// Backend selects the execution target for a build.
type Backend int

const (
	// CPU fans work out across goroutines. The only implemented backend.
	CPU Backend = iota
	// Accel is reserved for an accelerator port. Builds requesting it fail
	// with ErrUnsupportedPath; there is no silent fallback.
	Accel
)

func (b Backend) String() string {
	switch b {
	case CPU:
		return "cpu"
	case Accel:
		return "accel"
	default:
		return fmt.Sprintf("backend(%d)", int(b))
	}
}

// Options controls a build call.
type Options struct {
	// Transpose switches the regular builder to the inverse
	// (deconvolution-style) coordinate map.
	Transpose bool
	// ResetGrid clears every touched grid cell after the build so the same
	// grid memory can serve the next call at this resolution.
	ResetGrid bool
	// Backend selects the execution target. Zero value is CPU.
	Backend Backend
}

func checkBackend(b Backend) error {
	if b != CPU {
		return fmt.Errorf("%w: %s backend not ported", ErrUnsupportedPath, b)
	}
	return nil
}
