package rulebook

import (
	"fmt"

	"github.com/fumitoshi0524/sparseconv/internal/parallel"
)

// BuildSubmanifold constructs the rulebook for a convolution whose output
// occupancy equals its input occupancy: no sites are created or dropped, and
// the returned OutCoords aliases the input list. Single phase: the grid is
// populated one-to-one from the input (no contention, rows are distinct per
// batch), then every site enumerates its kernel neighborhood and records a
// pair for each neighbor found. The center offset yields the expected
// self-pair for every site.
//
// Kernel sizes must be odd in every dimension so the center is well defined,
// and transpose mode does not apply.
func BuildSubmanifold(g *Grid, in *Coords, p Params, opts Options) (*Rulebook, error) {
	if err := checkBackend(opts.Backend); err != nil {
		return nil, err
	}
	if opts.Transpose {
		return nil, fmt.Errorf("%w: submanifold build has no transpose form", ErrConfiguration)
	}
	rank := in.Rank()
	if err := p.validate(rank); err != nil {
		return nil, err
	}
	if !p.oddKernel() {
		return nil, fmt.Errorf("%w: submanifold build requires odd kernel sizes, got %v", ErrConfiguration, p.KernelSize)
	}
	if !g.matches(p.OutSpatialShape) {
		return nil, fmt.Errorf("%w: grid shaped %v does not cover output shape %v", ErrConfiguration, g.shape, p.OutSpatialShape)
	}

	kv := p.KernelVolume()
	n := in.Len()
	pairs := newPairs(kv, n)
	if n == 0 {
		return &Rulebook{Pairs: pairs, OutCoords: in}, nil
	}

	codes := make([]int32, n)
	err := parallel.Try(n, func(start, end int) error {
		for i := start; i < end; i++ {
			code := g.Encode(in.Row(i))
			codes[i] = int32(code)
			g.Set(code, int32(i))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: populate phase: %v", ErrDeviceExecution, err)
	}

	offs := p.kernelOffsets()
	center := p.centerOffset()
	err = parallel.Try(n, func(start, end int) error {
		for i := start; i < end; i++ {
			row := in.Row(i)
			for k := 0; k < kv; k++ {
				code, ok := neighborCode(row, p, offs[k], center)
				if !ok {
					continue
				}
				if v := g.Lookup(code); v != Vacant {
					pairs.append(k, v, int32(i))
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: pair phase: %v", ErrDeviceExecution, err)
	}

	if opts.ResetGrid {
		g.ClearCodes(codes)
	}
	return &Rulebook{Pairs: pairs, OutCoords: in, NumOut: n}, nil
}

// neighborCode encodes in + (offset-center)*dilation, rejecting neighbors
// falling off the grid.
func neighborCode(row []int32, p Params, off, center []int) (int, bool) {
	code := int(row[0])
	for d := 0; d < len(off); d++ {
		o := int(row[d+1]) + (off[d]-center[d])*p.Dilation[d]
		if o < 0 || o >= p.OutSpatialShape[d] {
			return 0, false
		}
		code = code*p.OutSpatialShape[d] + o
	}
	return code, true
}
