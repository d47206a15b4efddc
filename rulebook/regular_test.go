package rulebook

import (
	"errors"
	"testing"
)

func mustGrid(t *testing.T, batch int, shape []int) *Grid {
	t.Helper()
	g, err := NewGrid(batch, shape)
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func gridFullyVacant(g *Grid) bool {
	for code := 0; code < g.Volume(); code++ {
		if g.Lookup(code) != Vacant {
			return false
		}
	}
	return true
}

// pairSet collects offset k's realized pairs into a map keyed by (in, out).
func pairSet(p *Pairs, k int) map[[2]int32]bool {
	set := make(map[[2]int32]bool)
	in, out := p.In(k), p.Out(k)
	for i := 0; i < p.Num(k); i++ {
		set[[2]int32{in[i], out[i]}] = true
	}
	return set
}

func coordSet(c *Coords) map[[5]int32]bool {
	set := make(map[[5]int32]bool)
	for i := 0; i < c.Len(); i++ {
		var key [5]int32
		copy(key[:], c.Row(i))
		set[key] = true
	}
	return set
}

func conv2dParams(kernel, stride, pad, dilation int, outShape []int) Params {
	return Params{
		KernelSize:      []int{kernel, kernel},
		Stride:          []int{stride, stride},
		Padding:         []int{pad, pad},
		Dilation:        []int{dilation, dilation},
		OutSpatialShape: outShape,
	}
}

func TestBuildRegularEmptyInput(t *testing.T) {
	g := mustGrid(t, 1, []int{5, 5})
	in := MustNewCoords(nil, 2)
	rb, err := BuildRegular(g, in, conv2dParams(3, 1, 1, 1, []int{5, 5}), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if rb.NumOut != 0 || rb.OutCoords.Len() != 0 {
		t.Fatalf("expected zero output sites, got %d", rb.NumOut)
	}
	for k := 0; k < rb.Pairs.KernelVolume(); k++ {
		if rb.Pairs.Num(k) != 0 {
			t.Fatalf("offset %d has %d pairs on empty input", k, rb.Pairs.Num(k))
		}
	}
	if !gridFullyVacant(g) {
		t.Fatalf("empty build must not touch the grid")
	}
}

func TestBuildRegularIdentityMapsEverySiteToItself(t *testing.T) {
	g := mustGrid(t, 2, []int{6, 6})
	in := MustNewCoords([]int32{
		0, 1, 2,
		0, 4, 0,
		1, 3, 3,
		1, 0, 5,
	}, 2)
	rb, err := BuildRegular(g, in, Identity([]int{6, 6}), Options{ResetGrid: true})
	if err != nil {
		t.Fatal(err)
	}
	if rb.Pairs.KernelVolume() != 1 {
		t.Fatalf("identity kernel volume should be 1, got %d", rb.Pairs.KernelVolume())
	}
	if rb.NumOut != in.Len() {
		t.Fatalf("identity should keep %d sites, got %d", in.Len(), rb.NumOut)
	}
	want := coordSet(in)
	got := coordSet(rb.OutCoords)
	if len(got) != len(want) {
		t.Fatalf("output set size %d, want %d", len(got), len(want))
	}
	for key := range want {
		if !got[key] {
			t.Fatalf("output set missing coordinate %v", key)
		}
	}
	pairs := pairSet(rb.Pairs, 0)
	if len(pairs) != in.Len() {
		t.Fatalf("expected %d pairs, got %d", in.Len(), len(pairs))
	}
	for i := 0; i < in.Len(); i++ {
		inRow := in.Row(i)
		matched := false
		for pair := range pairs {
			if pair[0] != int32(i) {
				continue
			}
			outRow := rb.OutCoords.Row(int(pair[1]))
			same := true
			for d := range inRow {
				if inRow[d] != outRow[d] {
					same = false
					break
				}
			}
			if same {
				matched = true
			}
		}
		if !matched {
			t.Fatalf("site %d has no identity pair", i)
		}
	}
	if !gridFullyVacant(g) {
		t.Fatalf("ResetGrid left claimed cells behind")
	}
}

func TestBuildRegularSingleSiteFullNeighborhood(t *testing.T) {
	g := mustGrid(t, 1, []int{5, 5})
	in := MustNewCoords([]int32{0, 2, 2}, 2)
	rb, err := BuildRegular(g, in, conv2dParams(3, 1, 1, 1, []int{5, 5}), Options{ResetGrid: true})
	if err != nil {
		t.Fatal(err)
	}
	if rb.NumOut != 9 {
		t.Fatalf("expected 9 output sites, got %d", rb.NumOut)
	}
	for k := 0; k < 9; k++ {
		if rb.Pairs.Num(k) != 1 {
			t.Fatalf("offset %d should realize exactly one pair, got %d", k, rb.Pairs.Num(k))
		}
		if rb.Pairs.In(k)[0] != 0 {
			t.Fatalf("offset %d pair should originate from site 0", k)
		}
	}
	got := coordSet(rb.OutCoords)
	for x := int32(1); x <= 3; x++ {
		for y := int32(1); y <= 3; y++ {
			if !got[[5]int32{0, x, y}] {
				t.Fatalf("missing output coordinate (0,%d,%d)", x, y)
			}
		}
	}
}

func TestBuildRegularStrideResidue(t *testing.T) {
	g := mustGrid(t, 1, []int{5})
	p := Params{
		KernelSize:      []int{1},
		Stride:          []int{2},
		Padding:         []int{0},
		Dilation:        []int{1},
		OutSpatialShape: []int{5},
	}
	in := MustNewCoords([]int32{0, 1, 0, 4}, 1)
	rb, err := BuildRegular(g, in, p, Options{ResetGrid: true})
	if err != nil {
		t.Fatal(err)
	}
	// Position 1 cannot be hit by a stride-2 kernel; position 4 maps to 2.
	if rb.NumOut != 1 {
		t.Fatalf("expected 1 output site, got %d", rb.NumOut)
	}
	if rb.Pairs.Num(0) != 1 {
		t.Fatalf("expected a single pair, got %d", rb.Pairs.Num(0))
	}
	if rb.Pairs.In(0)[0] != 1 {
		t.Fatalf("pair should come from site 1 at position 4")
	}
	if out := rb.OutCoords.Row(0); out[1] != 2 {
		t.Fatalf("expected output position 2, got %d", out[1])
	}
}

func TestBuildRegularTransposeRoundTrip(t *testing.T) {
	inShape := []int{8, 8}
	outShape := []int{4, 4}
	p := conv2dParams(3, 2, 1, 1, outShape)
	in := MustNewCoords([]int32{
		0, 0, 0,
		0, 3, 4,
		0, 4, 3,
		0, 7, 6,
		0, 5, 5,
	}, 2)
	fwdGrid := mustGrid(t, 1, outShape)
	fwd, err := BuildRegular(fwdGrid, in, p, Options{ResetGrid: true})
	if err != nil {
		t.Fatal(err)
	}
	if fwd.NumOut == 0 {
		t.Fatalf("forward build realized no output sites")
	}

	tp := p
	tp.OutSpatialShape = inShape
	tpGrid := mustGrid(t, 1, inShape)
	bwd, err := BuildRegular(tpGrid, fwd.OutCoords, tp, Options{Transpose: true, ResetGrid: true})
	if err != nil {
		t.Fatal(err)
	}

	kv := p.KernelVolume()
	for k := 0; k < kv; k++ {
		fwdPairs := pairSet(fwd.Pairs, k)
		mirrored := pairSet(bwd.Pairs, kv-1-k)
		for pair := range fwdPairs {
			inRow := in.Row(int(pair[0]))
			found := false
			for mp := range mirrored {
				if mp[0] != pair[1] {
					continue
				}
				outRow := bwd.OutCoords.Row(int(mp[1]))
				same := true
				for d := range inRow {
					if inRow[d] != outRow[d] {
						same = false
						break
					}
				}
				if same {
					found = true
					break
				}
			}
			if !found {
				t.Fatalf("forward pair %v at offset %d has no mirror at offset %d", pair, k, kv-1-k)
			}
		}
	}
	if !gridFullyVacant(fwdGrid) || !gridFullyVacant(tpGrid) {
		t.Fatalf("ResetGrid left claimed cells behind")
	}
}

func TestBuildRegularRejectsBadConfig(t *testing.T) {
	g := mustGrid(t, 1, []int{5, 5})
	in := MustNewCoords([]int32{0, 1, 1}, 2)
	p := conv2dParams(3, 1, 1, 1, []int{5, 5})
	p.Stride = []int{1}
	if _, err := BuildRegular(g, in, p, Options{}); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected configuration error for rank mismatch, got %v", err)
	}
	wrongGrid := mustGrid(t, 1, []int{4, 4})
	if _, err := BuildRegular(wrongGrid, in, conv2dParams(3, 1, 1, 1, []int{5, 5}), Options{}); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected configuration error for grid/shape mismatch, got %v", err)
	}
}

func TestBuildRegularRejectsAccelBackend(t *testing.T) {
	g := mustGrid(t, 1, []int{5, 5})
	in := MustNewCoords([]int32{0, 1, 1}, 2)
	_, err := BuildRegular(g, in, conv2dParams(3, 1, 1, 1, []int{5, 5}), Options{Backend: Accel})
	if !errors.Is(err, ErrUnsupportedPath) {
		t.Fatalf("expected unsupported path error, got %v", err)
	}
	if !gridFullyVacant(g) {
		t.Fatalf("rejected build must not touch the grid")
	}
}
