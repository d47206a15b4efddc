package rulebook

import "fmt"

// Params bundles the geometry of one sparse convolution. Every vector must
// have the same length as the spatial rank of the coordinates it is used
// with.
type Params struct {
	KernelSize      []int
	Stride          []int
	Padding         []int
	Dilation        []int
	OutSpatialShape []int
}

// Identity returns the degenerate configuration mapping every site to
// itself: 1^rank kernel, unit stride and dilation, zero padding.
func Identity(outSpatialShape []int) Params {
	rank := len(outSpatialShape)
	p := Params{
		KernelSize:      make([]int, rank),
		Stride:          make([]int, rank),
		Padding:         make([]int, rank),
		Dilation:        make([]int, rank),
		OutSpatialShape: append([]int(nil), outSpatialShape...),
	}
	for d := 0; d < rank; d++ {
		p.KernelSize[d] = 1
		p.Stride[d] = 1
		p.Dilation[d] = 1
	}
	return p
}

func (p Params) validate(rank int) error {
	if rank < MinRank || rank > MaxRank {
		return fmt.Errorf("%w: spatial rank %d outside [%d,%d]", ErrConfiguration, rank, MinRank, MaxRank)
	}
	for _, v := range [][]int{p.KernelSize, p.Stride, p.Padding, p.Dilation, p.OutSpatialShape} {
		if len(v) != rank {
			return fmt.Errorf("%w: parameter vector length %d does not match spatial rank %d", ErrConfiguration, len(v), rank)
		}
	}
	for d := 0; d < rank; d++ {
		if p.KernelSize[d] <= 0 || p.Stride[d] <= 0 || p.Dilation[d] <= 0 || p.OutSpatialShape[d] <= 0 {
			return fmt.Errorf("%w: kernel/stride/dilation/shape must be positive in every dimension", ErrConfiguration)
		}
		if p.Padding[d] < 0 {
			return fmt.Errorf("%w: padding must be non-negative", ErrConfiguration)
		}
	}
	return nil
}

// KernelVolume is the number of kernel offsets, the product of KernelSize.
func (p Params) KernelVolume() int {
	v := 1
	for _, k := range p.KernelSize {
		v *= k
	}
	return v
}

// kernelOffsets enumerates all kernel offsets in row-major order, so offset
// slot k decomposes over KernelSize the same way a coordinate decomposes
// over a spatial shape. Mirror slot of k is kernelVolume-1-k.
func (p Params) kernelOffsets() [][]int {
	kv := p.KernelVolume()
	rank := len(p.KernelSize)
	offs := make([][]int, kv)
	flat := make([]int, kv*rank)
	for k := 0; k < kv; k++ {
		off := flat[k*rank : (k+1)*rank]
		rem := k
		for d := rank - 1; d >= 0; d-- {
			off[d] = rem % p.KernelSize[d]
			rem /= p.KernelSize[d]
		}
		offs[k] = off
	}
	return offs
}

// centerOffset is the per-dimension kernel center, used by the submanifold
// builder. Only meaningful for odd kernel sizes.
func (p Params) centerOffset() []int {
	c := make([]int, len(p.KernelSize))
	for d, k := range p.KernelSize {
		c[d] = (k - 1) / 2
	}
	return c
}

// ConvOutputShape computes the dense output shape of a forward convolution
// over inSpatialShape with this geometry, the usual fill-in for
// OutSpatialShape when the caller has no externally imposed one.
func ConvOutputShape(inSpatialShape, kernelSize, stride, padding, dilation []int) []int {
	out := make([]int, len(inSpatialShape))
	for d := range inSpatialShape {
		out[d] = (inSpatialShape[d]+2*padding[d]-dilation[d]*(kernelSize[d]-1)-1)/stride[d] + 1
	}
	return out
}

func (p Params) oddKernel() bool {
	for _, k := range p.KernelSize {
		if k%2 == 0 {
			return false
		}
	}
	return true
}
