package rulebook

import (
	"fmt"
	"sync/atomic"

	"github.com/fumitoshi0524/sparseconv/internal/parallel"
)

// ConcatRulebook maps two coordinate sets into one merged, deduplicated
// output set. PairsA and PairsB have a single offset slot each: pair p reads
// (original index in that input, index in Merged).
type ConcatRulebook struct {
	PairsA    *Pairs
	PairsB    *Pairs
	Merged    *Coords
	NumMerged int
}

// BuildConcat merges the active sites of a and b over the same spatial
// resolution, recording for each input the mapping from its site indices to
// the merged indexing. Set b seeds the grid and keeps its original positions
// as the low range of the merged list; step 1 resolves each site of a
// against the grid, minting a fresh merged index from a shared append
// counter whenever its coordinate is new; step 2 re-resolves b against the
// final grid state. The merged count is the counter value read after both
// barriers.
//
// Coordinates must be distinct within each input per batch; a duplicate
// inside a can leave an unused hole in the merged range.
func BuildConcat(g *Grid, a, b *Coords, outSpatialShape []int, opts Options) (*ConcatRulebook, error) {
	if err := checkBackend(opts.Backend); err != nil {
		return nil, err
	}
	if a.Rank() != b.Rank() {
		return nil, fmt.Errorf("%w: spatial ranks %d and %d differ", ErrConfiguration, a.Rank(), b.Rank())
	}
	rank := a.Rank()
	if len(outSpatialShape) != rank {
		return nil, fmt.Errorf("%w: output shape length %d does not match spatial rank %d", ErrConfiguration, len(outSpatialShape), rank)
	}
	if !g.matches(outSpatialShape) {
		return nil, fmt.Errorf("%w: grid shaped %v does not cover output shape %v", ErrConfiguration, g.shape, outSpatialShape)
	}

	na, nb := a.Len(), b.Len()
	pairsA := newPairs(1, na)
	pairsB := newPairs(1, nb)
	if na == 0 && nb == 0 {
		return &ConcatRulebook{PairsA: pairsA, PairsB: pairsB, Merged: ownedCoords(nil, rank)}, nil
	}

	w := rank + 1
	mergedData := make([]int32, (na+nb)*w)
	codes := make([]int32, na+nb)
	counter := int32(nb)

	err := parallel.Try(nb, func(start, end int) error {
		for j := start; j < end; j++ {
			row := b.Row(j)
			copy(mergedData[j*w:(j+1)*w], row)
			code := g.Encode(row)
			codes[j] = int32(code)
			g.Set(code, int32(j))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: seed phase: %v", ErrDeviceExecution, err)
	}

	err = parallel.Try(na, func(start, end int) error {
		for i := start; i < end; i++ {
			row := a.Row(i)
			code := g.Encode(row)
			v := g.Lookup(code)
			if v == Vacant {
				idx := atomic.AddInt32(&counter, 1) - 1
				if won := g.Claim(code, idx); won == idx {
					copy(mergedData[int(idx)*w:(int(idx)+1)*w], row)
					codes[idx] = int32(code)
					v = idx
				} else {
					v = won
				}
			}
			pairsA.append(0, int32(i), v)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: merge phase: %v", ErrDeviceExecution, err)
	}

	err = parallel.Try(nb, func(start, end int) error {
		for j := start; j < end; j++ {
			pairsB.append(0, int32(j), g.Lookup(int(codes[j])))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: resolve phase: %v", ErrDeviceExecution, err)
	}

	numMerged := int(atomic.LoadInt32(&counter))
	if opts.ResetGrid {
		g.ClearCodes(codes[:numMerged])
	}
	return &ConcatRulebook{
		PairsA:    pairsA,
		PairsB:    pairsB,
		Merged:    ownedCoords(mergedData[:numMerged*w], rank),
		NumMerged: numMerged,
	}, nil
}
