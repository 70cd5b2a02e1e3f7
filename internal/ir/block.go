package ir

import "github.com/Jonathan-Weinstein/tc/internal/compilerr"

// Block owns a contiguous ordered sequence of Instructions. The allocator
// is the only thing permitted to replace Instructions wholesale (via
// SetInstructions) once a block has been built.
type Block struct {
	Instructions []*Instruction
}

// NewBlock creates an empty block.
func NewBlock() *Block {
	return &Block{}
}

// Append creates a new Instruction with operandCount unset operand slots,
// appends it to the block, and returns it. Callers must fill every operand
// slot via SetOperand before the allocator runs.
func (b *Block) Append(opcode Opcode, typ TypeTag, operandCount int, debugName string) *Instruction {
	if operandCount > MaxOperands {
		compilerr.Build("Block.Append: operandCount %d exceeds MaxOperands %d", operandCount, MaxOperands)
	}
	instr := &Instruction{
		RuntimeValue: RuntimeValue{
			opcode:       opcode,
			typ:          typ,
			CurrentReg:   RegLocInvalid,
			SpillSlot:    SpillLocInvalid,
			DebugName:    debugName,
			IndexInBlock: len(b.Instructions),
		},
		OperandCount: operandCount,
		RA:           newRegAllocState(),
	}
	b.Instructions = append(b.Instructions, instr)
	return instr
}

// Append1 appends a one-operand instruction and sets its operand.
// Convenience mirroring the teacher's CreateThenAppendInstr1.
func (b *Block) Append1(opcode Opcode, typ TypeTag, src Value, debugName string) *Instruction {
	instr := b.Append(opcode, typ, 1, debugName)
	instr.SetOperand(0, src)
	return instr
}

// Append2 appends a two-operand instruction and sets both operands.
// Convenience mirroring the teacher's CreateThenAppendInstr2.
func (b *Block) Append2(opcode Opcode, typ TypeTag, a, c Value, debugName string) *Instruction {
	instr := b.Append(opcode, typ, 2, debugName)
	instr.SetOperand(0, a)
	instr.SetOperand(1, c)
	return instr
}

// SetInstructions replaces the block's instruction vector. Only the
// allocator calls this, after producing a rewritten sequence.
func (b *Block) SetInstructions(instrs []*Instruction) {
	b.Instructions = instrs
}
