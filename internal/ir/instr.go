package ir

import "github.com/Jonathan-Weinstein/tc/internal/compilerr"

// RegAllocState holds the register assignments the allocator records on an
// Instruction. Every field is RegLocInvalid until the allocator runs.
type RegAllocState struct {
	DstReg  RegLoc
	SrcRegs [MaxOperands]RegLoc
}

func newRegAllocState() RegAllocState {
	ra := RegAllocState{DstReg: RegLocInvalid}
	for i := range ra.SrcRegs {
		ra.SrcRegs[i] = RegLocInvalid
	}
	return ra
}

// Instruction is the concrete RuntimeValue: an opcode, a type tag, up to
// MaxOperands operands (which may mix Literals and other *Instruction
// values), and the register-allocation annotations the allocator fills in.
type Instruction struct {
	RuntimeValue

	Operands     [MaxOperands]Value
	OperandCount int

	RA RegAllocState
}

// OperandCountOf returns the instruction's operand count. Named to avoid
// colliding with the OperandCount field when embedded call sites want the
// method form. It is a thin accessor; the field itself stays exported and
// the printer, the allocator and the tests read it directly.
func (i *Instruction) OperandCountOf() int { return i.OperandCount }

// Operand returns operand i. Panics with a BuilderError if i is out of
// range or the slot has not been set yet -- both are programmer bugs per
// spec section 7.
func (i *Instruction) Operand(idx int) Value {
	if idx >= i.OperandCount {
		compilerr.Build("Instruction.Operand: index %d out of range (operand count %d)", idx, i.OperandCount)
	}
	v := i.Operands[idx]
	if v == nil {
		compilerr.Build("Instruction.Operand: slot %d not yet set", idx)
	}
	return v
}

// SetOperand writes operand slot i to value. Preconditions: i <
// OperandCount, the slot is currently unset, and value is not nil. If
// value is a RuntimeValue (i.e. another *Instruction), a Use(self, i) is
// appended to value's use list -- operand slots are write-once, so this
// can never double-count a use.
func (i *Instruction) SetOperand(idx int, value Value) {
	if idx >= i.OperandCount {
		compilerr.Build("Instruction.SetOperand: index %d out of range (operand count %d)", idx, i.OperandCount)
	}
	if i.Operands[idx] != nil {
		compilerr.Build("Instruction.SetOperand: slot %d already set", idx)
	}
	if value == nil {
		compilerr.Build("Instruction.SetOperand: nil value")
	}
	i.Operands[idx] = value

	if !value.IsLiteral() {
		rv := value.(*Instruction)
		rv.Uses = append(rv.Uses, Use{Instr: i, OperandIndex: idx})
	}
}
