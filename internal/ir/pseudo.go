package ir

// Pseudo-instructions the allocator emits. These are built directly
// against package-private RuntimeValue fields since they are never
// produced through Block.Append -- they are spliced into the allocator's
// rewritten output, not appended to a Block under construction. Per spec
// section 4.5 they carry no use-list bookkeeping contract: operand 1 of a
// spill is a read of the victim's current register value, not a logical
// "use" a later pass should walk.

// NewSpillInstr builds a `spill(slot, value)` pseudo-instruction: type
// void, no destination register. The caller is responsible for recording
// the source register the victim currently occupies in RA.SrcRegs[1].
func NewSpillInstr(module *Module, slot SpillLoc, victim *Instruction) *Instruction {
	instr := &Instruction{
		RuntimeValue: RuntimeValue{
			opcode:       OpSpill,
			typ:          Void,
			CurrentReg:   RegLocInvalid,
			SpillSlot:    SpillLocInvalid,
			IndexInBlock: -1,
		},
		OperandCount: 2,
		RA:           newRegAllocState(),
	}
	instr.Operands[0] = module.InternU32Literal(uint32(slot))
	instr.Operands[1] = victim
	return instr
}

// NewLoadSpilledInstr builds a `name = load_spilled(slot)` pseudo-
// instruction: type a32, reading slot into a destination register the
// caller assigns via RA.DstReg. spillSlot is preserved on the returned
// value's RuntimeValue so that, in principle, a later pass could tell
// which slot a given reload came from; the allocator itself only ever
// consults spillSlot on the ORIGINAL value, not on this pseudo-value.
func NewLoadSpilledInstr(module *Module, slot SpillLoc, debugName string) *Instruction {
	instr := &Instruction{
		RuntimeValue: RuntimeValue{
			opcode:       OpLoadSpilled,
			typ:          A32,
			CurrentReg:   RegLocInvalid,
			SpillSlot:    slot,
			DebugName:    debugName,
			IndexInBlock: -1,
		},
		OperandCount: 1,
		RA:           newRegAllocState(),
	}
	instr.Operands[0] = module.InternU32Literal(uint32(slot))
	return instr
}
