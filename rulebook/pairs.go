package rulebook

import "sync/atomic"

// Pairs is the rulebook proper: for each kernel offset slot, the list of
// (input site, output site) index pairs realized for that offset. Storage is
// preallocated to the worst case of one pair per input site per offset; the
// true per-offset lengths live in Num and are always <= that bound. Unfilled
// entries hold -1.
type Pairs struct {
	kernelVolume int
	maxPairs     int
	in           []int32
	out          []int32
	num          []int32
}

func newPairs(kernelVolume, maxPairs int) *Pairs {
	p := &Pairs{
		kernelVolume: kernelVolume,
		maxPairs:     maxPairs,
		in:           make([]int32, kernelVolume*maxPairs),
		out:          make([]int32, kernelVolume*maxPairs),
		num:          make([]int32, kernelVolume),
	}
	for i := range p.in {
		p.in[i] = -1
		p.out[i] = -1
	}
	return p
}

// KernelVolume returns the number of offset slots.
func (p *Pairs) KernelVolume() int {
	return p.kernelVolume
}

// Cap returns the preallocated per-offset capacity (the input site count).
func (p *Pairs) Cap() int {
	return p.maxPairs
}

// Num returns the realized pair count for offset slot k.
func (p *Pairs) Num(k int) int {
	return int(atomic.LoadInt32(&p.num[k]))
}

// Total returns the realized pair count over all offsets.
func (p *Pairs) Total() int {
	t := 0
	for k := 0; k < p.kernelVolume; k++ {
		t += p.Num(k)
	}
	return t
}

// In returns offset k's input-site column, valid through Num(k). Pair order
// within a slot is unspecified.
func (p *Pairs) In(k int) []int32 {
	return p.in[k*p.maxPairs : (k+1)*p.maxPairs]
}

// Out returns offset k's output-site column, valid through Num(k).
func (p *Pairs) Out(k int) []int32 {
	return p.out[k*p.maxPairs : (k+1)*p.maxPairs]
}

// append claims the next slot of offset k and records the pair. Safe under
// concurrent appenders; callers guarantee at most maxPairs appends per
// offset.
func (p *Pairs) append(k int, in, out int32) {
	slot := atomic.AddInt32(&p.num[k], 1) - 1
	base := k * p.maxPairs
	p.in[base+int(slot)] = in
	p.out[base+int(slot)] = out
}

// Rulebook is the result of a pair build: the pair table plus the realized
// output site list. For submanifold builds OutCoords aliases the input list.
type Rulebook struct {
	Pairs     *Pairs
	OutCoords *Coords
	NumOut    int
}
