// Package regalloc implements the local (single-basic-block) register
// allocator: the pass that walks a Block's linear instruction sequence,
// assigns every operand to one of K physical registers, and rewrites the
// block -- inserting spill/load_spilled pseudo-instructions -- so that no
// instruction ever requires more live values in registers than K.
//
// The allocator state mirrors the teacher's RegisterAllocator
// (register_allocator.go): a free-register pool, a reverse map from
// register to the value occupying it, and spill-slot bookkeeping. Unlike
// the teacher's linear-scan-over-live-intervals approach, this allocator
// walks the block once, step by step, applying Belady's farthest-next-use
// heuristic at the point of eviction -- see allocator.go.
package regalloc

import (
	"math/bits"

	"github.com/Jonathan-Weinstein/tc/internal/ir"
)

// MaxRegisters is the hard ceiling on K: free-register and spill-slot
// bookkeeping are 32-bit bitsets.
const MaxRegisters = 32

// state holds one invocation's allocator bookkeeping. A fresh state is
// created per call to Allocate and discarded afterward.
type state struct {
	module   *ir.Module
	regLimit int

	freeRegs   uint32
	regToValue [MaxRegisters]*ir.Instruction

	occupiedSpills uint32
	spillNames     [MaxRegisters]string
	reloadCounts   map[*ir.Instruction]int

	out []*ir.Instruction
}

func newState(module *ir.Module, regLimit int) *state {
	var free uint32
	if regLimit > 0 {
		free = maskForK(regLimit)
	}
	return &state{
		module:       module,
		regLimit:     regLimit,
		freeRegs:     free,
		reloadCounts: make(map[*ir.Instruction]int),
	}
}

// maskForK returns the low k bits set. k must be in [0, 32].
func maskForK(k int) uint32 {
	if k <= 0 {
		return 0
	}
	if k >= 32 {
		return ^uint32(0)
	}
	return (uint32(1) << uint(k)) - 1
}

// lowestSetBit returns the index of the lowest set bit of mask, or -1 if
// mask is zero. Equivalent to the C++ reference's bsf().
func lowestSetBit(mask uint32) int {
	if mask == 0 {
		return -1
	}
	return bits.TrailingZeros32(mask)
}
