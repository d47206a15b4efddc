package rulebook

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/fumitoshi0524/sparseconv/internal/parallel"
)

// Vacant is the sentinel stored in unclaimed grid cells. Site indices are
// always non-negative, so it can never collide with a legitimate value.
const Vacant int32 = -1

// Grid is a dense map from an encoded (batch, coordinate) to the active-site
// index currently claiming that cell. It is allocated once per spatial
// resolution by the caller and reused across builds; builders populate it and
// hand it back fully vacant (or leave it for the caller to Reset).
type Grid struct {
	cells []int32
	shape []int
	batch int
}

// NewGrid allocates a vacant grid covering batchSize x prod(spatialShape)
// cells.
func NewGrid(batchSize int, spatialShape []int) (*Grid, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("%w: batch size must be positive", ErrConfiguration)
	}
	rank := len(spatialShape)
	if rank < MinRank || rank > MaxRank {
		return nil, fmt.Errorf("%w: spatial rank %d outside [%d,%d]", ErrConfiguration, rank, MinRank, MaxRank)
	}
	volume := batchSize
	for _, d := range spatialShape {
		if d <= 0 {
			return nil, fmt.Errorf("%w: spatial shape must be positive in every dimension", ErrConfiguration)
		}
		volume *= d
	}
	if volume > math.MaxInt32 {
		return nil, fmt.Errorf("%w: grid volume %d exceeds 32-bit encoding", ErrConfiguration, volume)
	}
	g := &Grid{
		cells: make([]int32, volume),
		shape: append([]int(nil), spatialShape...),
		batch: batchSize,
	}
	g.Reset()
	return g, nil
}

// Rank returns the spatial rank the grid was shaped for.
func (g *Grid) Rank() int {
	return len(g.shape)
}

// Volume returns the total cell count.
func (g *Grid) Volume() int {
	return len(g.cells)
}

// matches reports whether the grid covers exactly the given spatial shape.
func (g *Grid) matches(spatialShape []int) bool {
	if len(spatialShape) != len(g.shape) {
		return false
	}
	for d, s := range spatialShape {
		if g.shape[d] != s {
			return false
		}
	}
	return true
}

// Encode maps a (batch, d1..dN) row to its linear cell index.
func (g *Grid) Encode(row []int32) int {
	code := int(row[0])
	for d, s := range g.shape {
		code = code*s + int(row[d+1])
	}
	return code
}

// Decode is the inverse of Encode, writing the (batch, d1..dN) row into dst.
func (g *Grid) Decode(code int, dst []int32) {
	for d := len(g.shape) - 1; d >= 0; d-- {
		s := g.shape[d]
		dst[d+1] = int32(code % s)
		code /= s
	}
	dst[0] = int32(code)
}

// Lookup returns the site index claiming the cell, or Vacant.
func (g *Grid) Lookup(code int) int32 {
	return atomic.LoadInt32(&g.cells[code])
}

// Claim installs idx into the cell if it is vacant and returns the winning
// value. Exactly one concurrent claimant succeeds; which one is unspecified.
func (g *Grid) Claim(code int, idx int32) int32 {
	for {
		v := atomic.LoadInt32(&g.cells[code])
		if v != Vacant {
			return v
		}
		if atomic.CompareAndSwapInt32(&g.cells[code], Vacant, idx) {
			return idx
		}
	}
}

// Set overwrites the cell unconditionally. Used between phases, after the
// barrier, when claims are re-assigned their final dense indices.
func (g *Grid) Set(code int, idx int32) {
	atomic.StoreInt32(&g.cells[code], idx)
}

// ClearCodes vacates exactly the listed cells. Preferred over Reset when the
// occupied set is sparse relative to the full volume.
func (g *Grid) ClearCodes(codes []int32) {
	for _, c := range codes {
		atomic.StoreInt32(&g.cells[c], Vacant)
	}
}

// Reset sweeps the whole volume back to vacant. Required after a failed
// build, whose grid state is undefined.
func (g *Grid) Reset() {
	parallel.For(len(g.cells), func(start, end int) {
		cells := g.cells[start:end]
		for i := range cells {
			cells[i] = Vacant
		}
	})
}
