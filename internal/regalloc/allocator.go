package regalloc

import (
	"fmt"
	"math"

	"github.com/Jonathan-Weinstein/tc/internal/compilerr"
	"github.com/Jonathan-Weinstein/tc/internal/ir"
)

// infiniteNextUse stands in for "no further use in this block" when
// computing Belady distance: any finite next-use index loses to it.
const infiniteNextUse = math.MaxInt32

// Allocate performs local register allocation on block using at most
// regLimit physical registers, per spec sections 4.2-4.4. On success the
// block's instruction list is replaced with the rewritten sequence and
// nil is returned. On failure (insufficient registers) a
// *compilerr.AllocError of kind PressureExceeded is returned and the
// block is left untouched.
//
// regLimit must be in [0, MaxRegisters]; 0 always fails for a non-empty
// block (see spec scenario 5).
func Allocate(module *ir.Module, block *ir.Block, regLimit int) error {
	if regLimit < 0 || regLimit > MaxRegisters {
		return compilerr.NewPressureExceeded(-1, "register limit %d out of range [0, %d]", regLimit, MaxRegisters)
	}
	if regLimit == 0 && len(block.Instructions) > 0 {
		return compilerr.NewPressureExceeded(-1, "register limit 0 cannot allocate a non-empty block")
	}

	st := newState(module, regLimit)
	original := block.Instructions

	for idx, instr := range original {
		uniqueSrcIndexes, err := allocateSources(st, idx, instr)
		if err != nil {
			return err
		}
		releaseSources(st, instr, uniqueSrcIndexes)

		if instr.Type() != ir.Void {
			reg, err := ensureRegisterFor(st, idx, instr, instr)
			if err != nil {
				return err
			}
			instr.RA.DstReg = reg
		}

		st.out = append(st.out, instr)
	}

	if len(original) > 0 && original[len(original)-1].Opcode() == ir.OpReturn {
		for _, instr := range original {
			if instr.UseCursor != len(instr.Uses) {
				compilerr.Invariant(
					"block terminates with return but %q has %d unconsumed use(s)",
					instr.DebugName, len(instr.Uses)-instr.UseCursor,
				)
			}
		}
	}

	block.SetInstructions(st.out)
	return nil
}

// allocateSources is Step A of spec section 4.3: for every operand of
// instr, resolve (and possibly spill/reload for) a source register. It
// returns a bitmask of the operand indexes that were unique sources
// (the first occurrence of a distinct RuntimeValue among instr's
// operands) -- duplicate occurrences are fully handled here and excluded
// from the mask, per spec's "use_cursor accounting under duplicate
// operands" note.
func allocateSources(st *state, idx int, instr *ir.Instruction) (uniqueSrcIndexes uint32, err error) {
	for i := 0; i < instr.OperandCount; i++ {
		operand := instr.Operand(i)
		if operand.IsLiteral() {
			continue
		}
		src := operand.(*ir.Instruction)

		if dupOf, ok := earlierDuplicate(instr, src, i); ok {
			if instr.RA.SrcRegs[dupOf] != src.CurrentReg {
				compilerr.Invariant("duplicate operand %d of %q disagrees with src reg of operand %d", i, instr.DebugName, dupOf)
			}
			instr.RA.SrcRegs[i] = src.CurrentReg
			src.UseCursor++ // accounts for this Use entry; the first occurrence advances in releaseSources.
			continue
		}

		uniqueSrcIndexes |= 1 << uint(i)
		if src.CurrentReg == ir.RegLocInvalid {
			reg, err := ensureRegisterFor(st, idx, instr, src)
			if err != nil {
				return 0, err
			}
			instr.RA.SrcRegs[i] = reg
		} else {
			instr.RA.SrcRegs[i] = src.CurrentReg
		}
	}
	return uniqueSrcIndexes, nil
}

// earlierDuplicate reports whether src already appears at some operand
// index j < i of instr.
func earlierDuplicate(instr *ir.Instruction, src *ir.Instruction, i int) (j int, ok bool) {
	for j = 0; j < i; j++ {
		if other, isInstr := instr.Operand(j).(*ir.Instruction); isInstr && other == src {
			return j, true
		}
	}
	return 0, false
}

// releaseSources is Step B of spec section 4.3: for each unique source
// flagged by allocateSources, advance its use cursor and free its
// register (and dead spill slot) if that was its last use in the block.
func releaseSources(st *state, instr *ir.Instruction, uniqueSrcIndexes uint32) {
	for bits := uniqueSrcIndexes; bits != 0; bits &= bits - 1 {
		i := lowestSetBit(bits)
		src := instr.Operand(i).(*ir.Instruction)
		reg := instr.RA.SrcRegs[i]

		if src.CurrentReg != reg {
			compilerr.Invariant("src %q register %d disagrees with recorded current register %d", src.DebugName, reg, src.CurrentReg)
		}
		if st.freeRegs&(1<<uint(reg)) != 0 {
			compilerr.Invariant("register %d marked free while still holding %q", reg, src.DebugName)
		}

		src.UseCursor++
		if src.UseCursor == len(src.Uses) {
			src.CurrentReg = ir.RegLocInvalid
			st.regToValue[reg] = nil
			st.freeRegs |= 1 << uint(reg)

			// Slots are reclaimed at last-use, not just at block end: once
			// src's final consumer has run, its spill slot (if any) goes
			// back into the free pool so a later value can reuse it.
			if src.SpillSlot != ir.SpillLocInvalid {
				st.occupiedSpills &^= 1 << uint(src.SpillSlot)
				src.SpillSlot = ir.SpillLocInvalid
			}
		}
	}
}

// ensureRegisterFor implements spec section 4.4: allocate a register for
// v (a source of owner, or owner itself for a destination allocation),
// evicting via Belady's farthest-next-use heuristic if none is free, and
// emitting spill/load_spilled pseudo-instructions into st.out as needed.
func ensureRegisterFor(st *state, idx int, owner *ir.Instruction, v *ir.Instruction) (ir.RegLoc, error) {
	if v.CurrentReg != ir.RegLocInvalid {
		compilerr.Invariant("ensureRegisterFor called for %q which already holds register %d", v.DebugName, v.CurrentReg)
	}

	var reg int
	if st.freeRegs != 0 {
		reg = lowestSetBit(st.freeRegs)
		st.freeRegs &^= 1 << uint(reg)
	} else {
		evicted, err := evictFarthestNextUse(st, idx, owner)
		if err != nil {
			return ir.RegLocInvalid, err
		}
		reg = evicted
	}

	if v.SpillSlot != ir.SpillLocInvalid {
		if owner == v {
			compilerr.Invariant("destination allocation for %q requested a reload (value is being defined, not used)", v.DebugName)
		}
		loadInstr := ir.NewLoadSpilledInstr(st.module, v.SpillSlot, reloadDebugName(st, v))
		loadInstr.RA.DstReg = ir.RegLoc(reg)
		st.out = append(st.out, loadInstr)
	}

	st.regToValue[reg] = v
	v.CurrentReg = ir.RegLoc(reg)
	return ir.RegLoc(reg), nil
}

// isCommittedSource reports whether reg has already been assigned to one
// of owner's operands earlier in the current instruction's Step A/C pass
// -- such a register is off limits to eviction: the value it holds is
// needed live for this same instruction and has not gone through Step B
// yet (or, for a destination allocation, was just read by it).
func isCommittedSource(owner *ir.Instruction, reg int) bool {
	for j := 0; j < owner.OperandCount; j++ {
		if owner.RA.SrcRegs[j] == ir.RegLoc(reg) {
			return true
		}
	}
	return false
}

// evictFarthestNextUse scans the occupied registers in [0, regLimit),
// excluding any already committed to one of owner's operands this
// instruction (spec section 4.4 step 3's safety rule), and picks the
// remaining one whose resident value's next use (per spec's Belady
// heuristic) is farthest from idx. It spills that value if it has not
// already been spilled this block, and returns the freed register index.
// If every occupied register is off limits -- i.e. K is too small to hold
// this instruction's unique-source-count plus destination -- it returns
// PressureExceeded rather than evicting an unsafe register.
func evictFarthestNextUse(st *state, idx int, owner *ir.Instruction) (int, error) {
	occupied := maskForK(st.regLimit)
	if occupied == 0 {
		return -1, compilerr.NewPressureExceeded(idx, "register limit %d leaves no register to allocate or evict", st.regLimit)
	}

	farthestDist := -1
	farthestReg := -1
	for bits := occupied; bits != 0; bits &= bits - 1 {
		r := lowestSetBit(bits)
		if isCommittedSource(owner, r) {
			continue
		}
		victim := st.regToValue[r]
		if victim == nil {
			compilerr.Invariant("register %d marked occupied but holds no value", r)
		}

		dist := infiniteNextUse
		if nextIdx, hasNext := victim.NextUseIndex(); hasNext {
			if nextIdx < idx {
				compilerr.Invariant("next use of %q at index %d precedes current instruction index %d", victim.DebugName, nextIdx, idx)
			}
			dist = nextIdx - idx
		}
		if dist > farthestDist {
			farthestDist = dist
			farthestReg = r
		}
	}
	if farthestReg < 0 {
		return -1, compilerr.NewPressureExceeded(idx, "register limit %d insufficient for instruction %q: not enough registers to hold its live operands simultaneously", st.regLimit, owner.DebugName)
	}

	victim := st.regToValue[farthestReg]
	victim.CurrentReg = ir.RegLocInvalid

	if victim.SpillSlot == ir.SpillLocInvalid {
		freeSpills := ^st.occupiedSpills
		if freeSpills == 0 {
			compilerr.Invariant("no free spill slot available to evict %q", victim.DebugName)
		}
		slot := lowestSetBit(freeSpills)
		st.occupiedSpills |= 1 << uint(slot)
		victim.SpillSlot = ir.SpillLoc(slot)
		st.spillNames[slot] = victim.DebugName

		spillInstr := ir.NewSpillInstr(st.module, victim.SpillSlot, victim)
		spillInstr.RA.SrcRegs[1] = ir.RegLoc(farthestReg)
		st.out = append(st.out, spillInstr)
	}

	st.regToValue[farthestReg] = nil
	return farthestReg, nil
}

// reloadDebugName names a load_spilled instruction after the spilled
// value, decorating with a "#N" reload sequence number once a value has
// been reloaded more than once within the block -- a value spilled once
// can still be evicted and reloaded repeatedly, per spec section 4.5.
func reloadDebugName(st *state, v *ir.Instruction) string {
	st.reloadCounts[v]++
	n := st.reloadCounts[v]
	if n == 1 {
		return st.spillNames[v.SpillSlot]
	}
	return fmt.Sprintf("%s#%d", st.spillNames[v.SpillSlot], n)
}
