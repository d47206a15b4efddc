// Package sparse carries the metadata side of a sparse tensor: its active
// site list, spatial shape and batch size, plus a cache of built rulebooks
// keyed by name so layers sharing geometry reuse one index build. Feature
// values never pass through here.
package sparse

import (
	"fmt"
	"sync"

	"github.com/fumitoshi0524/sparseconv/rulebook"
)

// Tensor describes the occupancy of a sparse tensor.
type Tensor struct {
	Indices      *rulebook.Coords
	SpatialShape []int
	BatchSize    int

	mu        sync.RWMutex
	rulebooks map[string]*rulebook.Rulebook
}

// NewTensor validates that indices and shape agree and wraps them.
func NewTensor(indices *rulebook.Coords, spatialShape []int, batchSize int) (*Tensor, error) {
	if indices == nil {
		return nil, fmt.Errorf("%w: nil indices", rulebook.ErrConfiguration)
	}
	if len(spatialShape) != indices.Rank() {
		return nil, fmt.Errorf("%w: spatial shape length %d does not match coordinate rank %d",
			rulebook.ErrConfiguration, len(spatialShape), indices.Rank())
	}
	if batchSize <= 0 {
		return nil, fmt.Errorf("%w: batch size must be positive", rulebook.ErrConfiguration)
	}
	return &Tensor{
		Indices:      indices,
		SpatialShape: append([]int(nil), spatialShape...),
		BatchSize:    batchSize,
		rulebooks:    make(map[string]*rulebook.Rulebook),
	}, nil
}

// SpatialSize returns the dense cell count per batch element.
func (t *Tensor) SpatialSize() int {
	size := 1
	for _, d := range t.SpatialShape {
		size *= d
	}
	return size
}

// Sparsity returns the occupied fraction of the dense volume.
func (t *Tensor) Sparsity() float64 {
	return float64(t.Indices.Len()) / float64(t.BatchSize*t.SpatialSize())
}

// FindRulebook returns the cached build for key, if any.
func (t *Tensor) FindRulebook(key string) (*rulebook.Rulebook, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rb, ok := t.rulebooks[key]
	return rb, ok
}

// SaveRulebook caches a build under key, replacing any previous entry.
func (t *Tensor) SaveRulebook(key string, rb *rulebook.Rulebook) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rulebooks[key] = rb
}
