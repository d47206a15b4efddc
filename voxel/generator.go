// Package voxel buckets float point clouds into voxel cells, producing the
// integer coordinate lists the rulebook builders consume. Feature payloads
// ride along untouched past the first three position values.
package voxel

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"
)

const spatialDims = 3

// Generator converts point clouds inside a fixed axis-aligned range into
// voxel buckets. The coordinate-to-voxel map is allocated once and reused
// across Generate calls; only touched cells are cleared afterward.
type Generator struct {
	voxelSize []float64
	origin    []float64
	gridSize  []int
	maxPoints int
	maxVoxels int
	fullMean  bool
	lookup    []int32
}

// NewGenerator builds a generator for the given voxel size (x,y,z) and point
// cloud range (xmin,ymin,zmin,xmax,ymax,zmax). With fullMean, a voxel's
// unfilled point slots are set to the mean of its real points instead of
// zero.
func NewGenerator(voxelSize, pointCloudRange []float64, maxPointsPerVoxel, maxVoxels int, fullMean bool) (*Generator, error) {
	if len(voxelSize) != spatialDims {
		return nil, errors.New("voxel size must have 3 components")
	}
	if len(pointCloudRange) != 2*spatialDims {
		return nil, errors.New("point cloud range must have 6 components")
	}
	if maxPointsPerVoxel <= 0 || maxVoxels <= 0 {
		return nil, errors.New("point and voxel caps must be positive")
	}
	g := &Generator{
		voxelSize: append([]float64(nil), voxelSize...),
		origin:    append([]float64(nil), pointCloudRange[:spatialDims]...),
		gridSize:  make([]int, spatialDims),
		maxPoints: maxPointsPerVoxel,
		maxVoxels: maxVoxels,
		fullMean:  fullMean,
	}
	volume := 1
	for j := 0; j < spatialDims; j++ {
		if voxelSize[j] <= 0 {
			return nil, errors.New("voxel size must be positive")
		}
		extent := pointCloudRange[spatialDims+j] - pointCloudRange[j]
		n := int(extent/voxelSize[j] + 0.5)
		if n <= 0 {
			return nil, fmt.Errorf("degenerate range along axis %d", j)
		}
		g.gridSize[j] = n
		volume *= n
	}
	g.lookup = make([]int32, volume)
	for i := range g.lookup {
		g.lookup[i] = -1
	}
	return g, nil
}

// GridSize returns the voxel grid extents in xyz order.
func (g *Generator) GridSize() []int {
	return append([]int(nil), g.gridSize...)
}

// MaxPointsPerVoxel returns the per-voxel point cap.
func (g *Generator) MaxPointsPerVoxel() int {
	return g.maxPoints
}

// Result is one voxelization outcome. Voxels is [NumVoxels][maxPoints][PointDim]
// flat; Coords is [NumVoxels][3] in zyx order, matching the layout the sparse
// convolution stack indexes with.
type Result struct {
	Voxels            []float64
	Coords            []int32
	NumPointsPerVoxel []int32
	NumVoxels         int
	PointDim          int
	maxPoints         int
}

// Voxel returns bucket i's point storage.
func (r *Result) Voxel(i int) []float64 {
	w := r.maxPoints * r.PointDim
	return r.Voxels[i*w : (i+1)*w]
}

// Coord returns bucket i's zyx coordinate.
func (r *Result) Coord(i int) []int32 {
	return r.Coords[i*spatialDims : (i+1)*spatialDims]
}

// Generate buckets points into voxels in one pass. Each point is pointDim
// wide with position in its first three values. Points outside the range are
// dropped; voxels past the voxel cap and points past the per-voxel cap are
// dropped in arrival order.
func (g *Generator) Generate(points []float64, pointDim int) (*Result, error) {
	if pointDim < spatialDims {
		return nil, errors.New("points must carry at least xyz")
	}
	if len(points)%pointDim != 0 {
		return nil, fmt.Errorf("%d values do not split into points of width %d", len(points), pointDim)
	}
	n := len(points) / pointDim

	res := &Result{
		Voxels:            make([]float64, g.maxVoxels*g.maxPoints*pointDim),
		Coords:            make([]int32, g.maxVoxels*spatialDims),
		NumPointsPerVoxel: make([]int32, g.maxVoxels),
		PointDim:          pointDim,
		maxPoints:         g.maxPoints,
	}
	touched := make([]int, 0, g.maxVoxels)

	var cell [spatialDims]int
	for i := 0; i < n; i++ {
		pt := points[i*pointDim : (i+1)*pointDim]
		inRange := true
		for j := 0; j < spatialDims; j++ {
			c := int((pt[j] - g.origin[j]) / g.voxelSize[j])
			if pt[j] < g.origin[j] || c < 0 || c >= g.gridSize[j] {
				inRange = false
				break
			}
			cell[j] = c
		}
		if !inRange {
			continue
		}
		code := (cell[2]*g.gridSize[1]+cell[1])*g.gridSize[0] + cell[0]
		v := g.lookup[code]
		if v == -1 {
			if res.NumVoxels >= g.maxVoxels {
				continue
			}
			v = int32(res.NumVoxels)
			res.NumVoxels++
			g.lookup[code] = v
			touched = append(touched, code)
			coord := res.Coord(int(v))
			coord[0] = int32(cell[2])
			coord[1] = int32(cell[1])
			coord[2] = int32(cell[0])
		}
		cnt := res.NumPointsPerVoxel[v]
		if int(cnt) < g.maxPoints {
			slot := (int(v)*g.maxPoints + int(cnt)) * pointDim
			copy(res.Voxels[slot:slot+pointDim], pt)
			res.NumPointsPerVoxel[v] = cnt + 1
		}
	}

	if g.fullMean {
		mean := make([]float64, pointDim)
		for v := 0; v < res.NumVoxels; v++ {
			cnt := int(res.NumPointsPerVoxel[v])
			if cnt == 0 || cnt == g.maxPoints {
				continue
			}
			for j := range mean {
				mean[j] = 0
			}
			bucket := res.Voxel(v)
			for p := 0; p < cnt; p++ {
				floats.Add(mean, bucket[p*pointDim:(p+1)*pointDim])
			}
			floats.Scale(1/float64(cnt), mean)
			for p := cnt; p < g.maxPoints; p++ {
				copy(bucket[p*pointDim:(p+1)*pointDim], mean)
			}
		}
	}

	for _, code := range touched {
		g.lookup[code] = -1
	}

	res.Voxels = res.Voxels[:res.NumVoxels*g.maxPoints*pointDim]
	res.Coords = res.Coords[:res.NumVoxels*spatialDims]
	res.NumPointsPerVoxel = res.NumPointsPerVoxel[:res.NumVoxels]
	return res, nil
}
