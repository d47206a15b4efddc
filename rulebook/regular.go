package rulebook

import (
	"fmt"

	"golang.org/x/exp/slices"

	"github.com/fumitoshi0524/sparseconv/internal/parallel"
)

// BuildRegular constructs the rulebook for a standard, strided, dilated or
// (with opts.Transpose) deconvolution-style sparse convolution. The build
// runs in two phases separated by a full barrier: phase 1 projects every
// (input site, kernel offset) combination to its candidate output cell and
// claims it optimistically; after a sort+unique compaction assigns every
// distinct realized coordinate a dense index, phase 2 re-resolves each
// combination against the authoritative grid and emits the pair table.
//
// The grid must match params.OutSpatialShape, be fully vacant on entry, and
// is caller-owned. On error the grid state is undefined and must be Reset
// before reuse.
func BuildRegular(g *Grid, in *Coords, p Params, opts Options) (*Rulebook, error) {
	if err := checkBackend(opts.Backend); err != nil {
		return nil, err
	}
	rank := in.Rank()
	if err := p.validate(rank); err != nil {
		return nil, err
	}
	if !g.matches(p.OutSpatialShape) {
		return nil, fmt.Errorf("%w: grid shaped %v does not cover output shape %v", ErrConfiguration, g.shape, p.OutSpatialShape)
	}

	kv := p.KernelVolume()
	n := in.Len()
	pairs := newPairs(kv, n)
	if n == 0 {
		return &Rulebook{Pairs: pairs, OutCoords: ownedCoords(nil, rank)}, nil
	}

	offs := p.kernelOffsets()

	// Phase 1: worst-case candidate table, one entry per (site, offset).
	// Invalid projections hold -1; valid ones hold the encoded output cell.
	candidates := make([]int32, n*kv)
	err := parallel.Try(n, func(start, end int) error {
		for i := start; i < end; i++ {
			row := in.Row(i)
			base := i * kv
			for k := 0; k < kv; k++ {
				code, ok := projectSite(row, p, offs[k], opts.Transpose)
				if !ok {
					candidates[base+k] = -1
					continue
				}
				candidates[base+k] = int32(code)
				g.Claim(code, int32(i))
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: prepare phase: %v", ErrDeviceExecution, err)
	}

	// Deduplicate the candidate cells. -1 entries sort to the front and are
	// skipped; the compacted tail is the realized output set.
	sorted := append([]int32(nil), candidates...)
	slices.Sort(sorted)
	first := len(sorted)
	for i, c := range sorted {
		if c >= 0 {
			first = i
			break
		}
	}
	uniq := slices.Compact(sorted[first:])
	numOut := len(uniq)

	// Phase 2: overwrite the optimistic claims with final sequential
	// indices and materialize the output coordinate list.
	outData := make([]int32, numOut*(rank+1))
	err = parallel.Try(numOut, func(start, end int) error {
		for j := start; j < end; j++ {
			code := int(uniq[j])
			g.Set(code, int32(j))
			g.Decode(code, outData[j*(rank+1):(j+1)*(rank+1)])
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: assign phase: %v", ErrDeviceExecution, err)
	}

	err = parallel.Try(n, func(start, end int) error {
		for i := start; i < end; i++ {
			base := i * kv
			for k := 0; k < kv; k++ {
				code := candidates[base+k]
				if code < 0 {
					continue
				}
				out := g.Lookup(int(code))
				if out == Vacant {
					continue
				}
				pairs.append(k, int32(i), out)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: pair phase: %v", ErrDeviceExecution, err)
	}

	if opts.ResetGrid {
		g.ClearCodes(uniq)
	}
	return &Rulebook{Pairs: pairs, OutCoords: ownedCoords(outData, rank), NumOut: numOut}, nil
}

// projectSite maps an input row to its candidate output cell for one kernel
// offset. Forward mode inverts out = in*stride - padding + offset*dilation,
// so the residue check rejects positions a strided kernel can never reach.
// Transpose mode applies that map directly with the offset mirrored, which
// keeps forward pair (a,b) at slot k aligned with transpose pair (b,a) at
// slot kernelVolume-1-k.
func projectSite(row []int32, p Params, off []int, transpose bool) (int, bool) {
	code := int(row[0])
	for d := 0; d < len(off); d++ {
		var o int
		if transpose {
			o = int(row[d+1])*p.Stride[d] - p.Padding[d] + (p.KernelSize[d]-1-off[d])*p.Dilation[d]
		} else {
			x := int(row[d+1]) + p.Padding[d] - off[d]*p.Dilation[d]
			if x%p.Stride[d] != 0 {
				return 0, false
			}
			o = x / p.Stride[d]
		}
		if o < 0 || o >= p.OutSpatialShape[d] {
			return 0, false
		}
		code = code*p.OutSpatialShape[d] + o
	}
	return code, true
}
