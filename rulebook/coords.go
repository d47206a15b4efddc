package rulebook

import "fmt"

// MinRank and MaxRank bound the supported spatial dimensionality.
const (
	MinRank = 1
	MaxRank = 4
)

// Coords is an ordered list of active sites. Each row is (batch, d1..dN) and
// the row position is the site index used to address the site's feature
// vector elsewhere. Rows are assumed distinct per batch.
type Coords struct {
	data []int32
	rank int
}

// NewCoords copies data into a coordinate list of the given spatial rank.
// Row width is rank+1 because of the leading batch index.
func NewCoords(data []int32, rank int) (*Coords, error) {
	if rank < MinRank || rank > MaxRank {
		return nil, fmt.Errorf("%w: spatial rank %d outside [%d,%d]", ErrConfiguration, rank, MinRank, MaxRank)
	}
	if len(data)%(rank+1) != 0 {
		return nil, fmt.Errorf("%w: %d values do not split into rows of width %d", ErrConfiguration, len(data), rank+1)
	}
	return &Coords{data: append([]int32(nil), data...), rank: rank}, nil
}

// MustNewCoords is NewCoords that panics on error.
func MustNewCoords(data []int32, rank int) *Coords {
	c, err := NewCoords(data, rank)
	if err != nil {
		panic(err)
	}
	return c
}

// ownedCoords wraps data without copying. For builder-produced output lists.
func ownedCoords(data []int32, rank int) *Coords {
	return &Coords{data: data, rank: rank}
}

// Len returns the number of sites.
func (c *Coords) Len() int {
	return len(c.data) / (c.rank + 1)
}

// Rank returns the spatial rank N.
func (c *Coords) Rank() int {
	return c.rank
}

// Row returns site i as (batch, d1..dN). The slice aliases internal storage.
func (c *Coords) Row(i int) []int32 {
	w := c.rank + 1
	return c.data[i*w : (i+1)*w]
}

// Data returns the flat row-major backing slice.
func (c *Coords) Data() []int32 {
	return c.data
}
