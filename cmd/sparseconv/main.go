// Command sparseconv builds rulebooks over synthetic sparse inputs and
// reports what they realize. Useful for eyeballing pair counts and occupancy
// before wiring the builders into a network.
package main

import (
	"log/slog"
	"math/rand"
	"os"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/stat"

	"github.com/fumitoshi0524/sparseconv/rulebook"
	"github.com/fumitoshi0524/sparseconv/sparse"
	"github.com/fumitoshi0524/sparseconv/voxel"
)

func main() {
	root := &cobra.Command{
		Use:           "sparseconv",
		Short:         "Inspect sparse convolution rulebook builds",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(submCommand(), regularCommand(), concatCommand(), voxelizeCommand())
	if err := root.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

type buildFlags struct {
	shape    []int
	batch    int
	sites    int
	kernel   int
	stride   int
	padding  int
	dilation int
	seed     int64
}

func (f *buildFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntSliceVar(&f.shape, "shape", []int{20, 20, 20}, "input spatial shape")
	cmd.Flags().IntVar(&f.batch, "batch", 1, "batch size")
	cmd.Flags().IntVar(&f.sites, "sites", 500, "number of active input sites")
	cmd.Flags().IntVar(&f.kernel, "kernel", 3, "kernel size per dimension")
	cmd.Flags().IntVar(&f.stride, "stride", 1, "stride per dimension")
	cmd.Flags().IntVar(&f.padding, "padding", 1, "padding per dimension")
	cmd.Flags().IntVar(&f.dilation, "dilation", 1, "dilation per dimension")
	cmd.Flags().Int64Var(&f.seed, "seed", 1, "random seed for site placement")
}

func (f *buildFlags) params(outShape []int) rulebook.Params {
	rank := len(f.shape)
	p := rulebook.Params{
		KernelSize:      make([]int, rank),
		Stride:          make([]int, rank),
		Padding:         make([]int, rank),
		Dilation:        make([]int, rank),
		OutSpatialShape: outShape,
	}
	for d := 0; d < rank; d++ {
		p.KernelSize[d] = f.kernel
		p.Stride[d] = f.stride
		p.Padding[d] = f.padding
		p.Dilation[d] = f.dilation
	}
	return p
}

// randomSites draws n distinct (batch, coordinate) rows over the shape.
func randomSites(rng *rand.Rand, batch int, shape []int, n int) *rulebook.Coords {
	volume := batch
	for _, d := range shape {
		volume *= d
	}
	if n > volume {
		n = volume
	}
	rank := len(shape)
	data := make([]int32, 0, n*(rank+1))
	for _, code := range rng.Perm(volume)[:n] {
		row := make([]int32, rank+1)
		for d := rank - 1; d >= 0; d-- {
			row[d+1] = int32(code % shape[d])
			code /= shape[d]
		}
		row[0] = int32(code)
		data = append(data, row...)
	}
	return rulebook.MustNewCoords(data, rank)
}

func submCommand() *cobra.Command {
	var f buildFlags
	cmd := &cobra.Command{
		Use:   "subm",
		Short: "Build a submanifold rulebook over random sites",
		RunE: func(cmd *cobra.Command, args []string) error {
			rng := rand.New(rand.NewSource(f.seed))
			in := randomSites(rng, f.batch, f.shape, f.sites)
			grid, err := rulebook.NewGrid(f.batch, f.shape)
			if err != nil {
				return err
			}
			p := f.params(f.shape)
			rb, err := rulebook.BuildSubmanifold(grid, in, p, rulebook.Options{ResetGrid: true})
			if err != nil {
				return err
			}
			ten, err := sparse.NewTensor(in, f.shape, f.batch)
			if err != nil {
				return err
			}
			ten.SaveRulebook("subm0", rb)
			slog.Info("submanifold rulebook",
				"sites", in.Len(),
				"kernelVolume", rb.Pairs.KernelVolume(),
				"pairs", rb.Pairs.Total(),
				"centerPairs", rb.Pairs.Num(rb.Pairs.KernelVolume()/2),
				"sparsity", ten.Sparsity())
			return nil
		},
	}
	f.register(cmd)
	return cmd
}

func regularCommand() *cobra.Command {
	var f buildFlags
	var transpose bool
	cmd := &cobra.Command{
		Use:   "regular",
		Short: "Build a regular/strided rulebook over random sites",
		RunE: func(cmd *cobra.Command, args []string) error {
			rng := rand.New(rand.NewSource(f.seed))
			in := randomSites(rng, f.batch, f.shape, f.sites)
			p := f.params(f.shape)
			outShape := f.shape
			if !transpose {
				outShape = rulebook.ConvOutputShape(f.shape, p.KernelSize, p.Stride, p.Padding, p.Dilation)
				p.OutSpatialShape = outShape
			}
			grid, err := rulebook.NewGrid(f.batch, outShape)
			if err != nil {
				return err
			}
			rb, err := rulebook.BuildRegular(grid, in, p, rulebook.Options{Transpose: transpose, ResetGrid: true})
			if err != nil {
				return err
			}
			slog.Info("regular rulebook",
				"sites", in.Len(),
				"outShape", outShape,
				"outSites", rb.NumOut,
				"kernelVolume", rb.Pairs.KernelVolume(),
				"pairs", rb.Pairs.Total(),
				"transpose", transpose)
			return nil
		},
	}
	f.register(cmd)
	cmd.Flags().BoolVar(&transpose, "transpose", false, "use the deconvolution-style inverse map")
	return cmd
}

func concatCommand() *cobra.Command {
	var f buildFlags
	var sitesB int
	cmd := &cobra.Command{
		Use:   "concat",
		Short: "Merge two random site sets and report the fused occupancy",
		RunE: func(cmd *cobra.Command, args []string) error {
			rng := rand.New(rand.NewSource(f.seed))
			a := randomSites(rng, f.batch, f.shape, f.sites)
			b := randomSites(rng, f.batch, f.shape, sitesB)
			grid, err := rulebook.NewGrid(f.batch, f.shape)
			if err != nil {
				return err
			}
			rb, err := rulebook.BuildConcat(grid, a, b, f.shape, rulebook.Options{ResetGrid: true})
			if err != nil {
				return err
			}
			slog.Info("concat rulebook",
				"sitesA", a.Len(),
				"sitesB", b.Len(),
				"merged", rb.NumMerged,
				"overlap", a.Len()+b.Len()-rb.NumMerged)
			return nil
		},
	}
	f.register(cmd)
	cmd.Flags().IntVar(&sitesB, "sites-b", 500, "number of active sites in the second input")
	return cmd
}

func voxelizeCommand() *cobra.Command {
	var points int
	var maxPoints, maxVoxels int
	var fullMean bool
	var seed int64
	cmd := &cobra.Command{
		Use:   "voxelize",
		Short: "Bucket a random point cloud and report voxel occupancy",
		RunE: func(cmd *cobra.Command, args []string) error {
			rng := rand.New(rand.NewSource(seed))
			gen, err := voxel.NewGenerator(
				[]float64{0.2, 0.2, 0.2},
				[]float64{0, -4, -2, 8, 4, 2},
				maxPoints, maxVoxels, fullMean)
			if err != nil {
				return err
			}
			cloud := make([]float64, points*3)
			for i := 0; i < points; i++ {
				cloud[i*3] = rng.Float64() * 8
				cloud[i*3+1] = rng.Float64()*8 - 4
				cloud[i*3+2] = rng.Float64()*4 - 2
			}
			res, err := gen.Generate(cloud, 3)
			if err != nil {
				return err
			}
			counts := make([]float64, res.NumVoxels)
			for i, c := range res.NumPointsPerVoxel {
				counts[i] = float64(c)
			}
			slog.Info("voxelized point cloud",
				"points", points,
				"voxels", res.NumVoxels,
				"gridSize", gen.GridSize(),
				"meanPointsPerVoxel", stat.Mean(counts, nil))
			return nil
		},
	}
	cmd.Flags().IntVar(&points, "points", 20000, "number of random points")
	cmd.Flags().IntVar(&maxPoints, "max-points", 35, "point cap per voxel")
	cmd.Flags().IntVar(&maxVoxels, "max-voxels", 20000, "voxel cap")
	cmd.Flags().BoolVar(&fullMean, "full-mean", false, "fill empty voxel slots with the point mean")
	cmd.Flags().Int64Var(&seed, "seed", 1, "random seed")
	return cmd
}
