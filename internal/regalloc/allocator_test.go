package regalloc

import (
	"strings"
	"testing"

	"github.com/Jonathan-Weinstein/tc/internal/ir"
)

// buildChain returns a block computing a chain of n independent reads
// combined left-to-right, forcing at least one eviction whenever n exceeds
// the register limit: read a0..a(n-1), then s1 = a0+a1, s2 = s1+a2, ...
// keeping every prior read live until it's consumed by the running sum.
func buildChain(m *ir.Module, n int) *ir.Block {
	block := ir.NewBlock()
	reads := make([]*ir.Instruction, n)
	for i := 0; i < n; i++ {
		reads[i] = block.Append1(ir.OpReadTestInput, ir.A32, m.InternU32Literal(uint32(i*4)), letterName(i))
	}
	sum := reads[0]
	for i := 1; i < n; i++ {
		sum = block.Append2(ir.OpIAdd, ir.A32, sum, reads[i], "s"+letterName(i))
	}
	appendWrite(block, m, 0, sum)
	block.Append(ir.OpReturn, ir.Void, 0, "")
	return block
}

// appendWrite appends a write_test_output(slot, value) instruction,
// matching the two-operand form used throughout the scenario fixtures.
func appendWrite(block *ir.Block, m *ir.Module, slot uint32, value *ir.Instruction) *ir.Instruction {
	return block.Append2(ir.OpWriteTestOutput, ir.Void, m.InternU32Literal(slot), value, "")
}

func letterName(i int) string {
	return string(rune('a' + i))
}

func TestAllocateScenarioNoPressure(t *testing.T) {
	m := ir.NewModule()
	block := ir.NewBlock()
	x := block.Append1(ir.OpReadTestInput, ir.A32, m.InternU32Literal(0), "x")
	y := block.Append1(ir.OpReadTestInput, ir.A32, m.InternU32Literal(4), "y")
	xy := block.Append2(ir.OpIAdd, ir.A32, x, y, "xy")
	appendWrite(block, m, 0, xy)
	block.Append(ir.OpReturn, ir.Void, 0, "")

	if err := Allocate(m, block, 4); err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if len(block.Instructions) != 5 {
		t.Fatalf("got %d output instructions, want 5", len(block.Instructions))
	}
	for _, instr := range block.Instructions {
		if instr.Opcode() == ir.OpSpill || instr.Opcode() == ir.OpLoadSpilled {
			t.Errorf("unexpected pseudo-instruction %s at K=4 with no pressure", instr.Opcode())
		}
	}
	if x.RA.DstReg != 0 || y.RA.DstReg != 1 {
		t.Errorf("expected greedy assignment x=r0, y=r1; got x=%d y=%d", x.RA.DstReg, y.RA.DstReg)
	}
}

// TestAllocateScenarioSingleSpill reproduces the reference fixture at K=2:
// two spills (xy and zy), w shared across both of ww's operands, and the
// block rewritten without disturbing relative instruction order.
func TestAllocateScenarioSingleSpill(t *testing.T) {
	m := ir.NewModule()
	block := ir.NewBlock()

	x := block.Append1(ir.OpReadTestInput, ir.A32, m.InternU32Literal(0), "x")
	y := block.Append1(ir.OpReadTestInput, ir.A32, m.InternU32Literal(4), "y")
	xy := block.Append2(ir.OpIAdd, ir.A32, x, y, "xy")
	z := block.Append1(ir.OpReadTestInput, ir.A32, m.InternU32Literal(8), "z")
	zy := block.Append2(ir.OpIAdd, ir.A32, z, y, "zy")
	appendWrite(block, m, 0, xy)
	appendWrite(block, m, 4, zy)
	w := block.Append1(ir.OpReadTestInput, ir.A32, m.InternU32Literal(12), "w")
	ww := block.Append2(ir.OpIAdd, ir.A32, w, w, "ww")
	appendWrite(block, m, 8, ww)
	block.Append(ir.OpReturn, ir.Void, 0, "")

	original := append([]*ir.Instruction(nil), block.Instructions...)

	if err := Allocate(m, block, 2); err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	var spills []*ir.Instruction
	var withoutPseudo []*ir.Instruction
	for _, instr := range block.Instructions {
		switch instr.Opcode() {
		case ir.OpSpill:
			spills = append(spills, instr)
		case ir.OpLoadSpilled:
			// excluded from withoutPseudo, same as spill.
		default:
			withoutPseudo = append(withoutPseudo, instr)
		}
	}

	if len(spills) != 2 {
		t.Fatalf("got %d spills, want 2 (xy and zy)", len(spills))
	}
	spilledNames := map[string]bool{}
	for _, s := range spills {
		spilledNames[s.Operand(1).(*ir.Instruction).DebugName] = true
	}
	if !spilledNames["xy"] || !spilledNames["zy"] {
		t.Errorf("expected xy and zy to be spilled, got %v", spilledNames)
	}

	// P6: removing pseudo-instructions yields the original order.
	if len(withoutPseudo) != len(original) {
		t.Fatalf("got %d non-pseudo instructions, want %d", len(withoutPseudo), len(original))
	}
	for i := range original {
		if withoutPseudo[i] != original[i] {
			t.Errorf("withoutPseudo[%d] != original[%d]: relative order not preserved", i, i)
		}
	}

	if ww.RA.SrcRegs[0] != ww.RA.SrcRegs[1] {
		t.Errorf("ww's duplicate w operand split across registers: %d vs %d", ww.RA.SrcRegs[0], ww.RA.SrcRegs[1])
	}
	if w.UseCursor != len(w.Uses) {
		t.Errorf("w.UseCursor = %d, want %d (both uses consumed)", w.UseCursor, len(w.Uses))
	}
}

func TestAllocateSimpleFitsWithoutSpills(t *testing.T) {
	m := ir.NewModule()
	block := buildChain(m, 3)

	if err := Allocate(m, block, 4); err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	for _, instr := range block.Instructions {
		if instr.Opcode() == ir.OpSpill || instr.Opcode() == ir.OpLoadSpilled {
			t.Errorf("unexpected pseudo-instruction %s with ample registers", instr.Opcode())
		}
	}
}

func TestAllocateAllRegsAssignedWithinLimit(t *testing.T) {
	m := ir.NewModule()
	block := buildChain(m, 3)
	const k = 2

	if err := Allocate(m, block, k); err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	for _, instr := range block.Instructions {
		if instr.Type() != ir.Void && (instr.RA.DstReg < 0 || int(instr.RA.DstReg) >= k) {
			t.Errorf("instruction %q assigned out-of-range register %d", instr.DebugName, instr.RA.DstReg)
		}
		for i := 0; i < instr.OperandCount; i++ {
			if instr.Operand(i).IsLiteral() {
				continue
			}
			r := instr.RA.SrcRegs[i]
			if r < 0 || int(r) >= k {
				t.Errorf("instruction %q operand %d assigned out-of-range register %d", instr.DebugName, i, r)
			}
		}
	}
}

func TestAllocateInsertsSpillAndReload(t *testing.T) {
	m := ir.NewModule()
	block := buildChain(m, 5)
	const k = 2

	if err := Allocate(m, block, k); err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	var sawSpill, sawReload bool
	for _, instr := range block.Instructions {
		switch instr.Opcode() {
		case ir.OpSpill:
			sawSpill = true
			if instr.RA.SrcRegs[1] == ir.RegLocInvalid {
				t.Errorf("spill instruction missing source register annotation")
			}
		case ir.OpLoadSpilled:
			sawReload = true
			if instr.RA.DstReg == ir.RegLocInvalid {
				t.Errorf("load_spilled instruction missing destination register")
			}
		}
	}
	if !sawSpill {
		t.Errorf("expected at least one spill under register pressure, got none")
	}
	if !sawReload {
		t.Errorf("expected at least one reload under register pressure, got none")
	}
}

func TestAllocateAtMostOneSpillPerValue(t *testing.T) {
	m := ir.NewModule()
	block := buildChain(m, 8)
	const k = 2

	if err := Allocate(m, block, k); err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	spillCount := map[string]int{}
	for _, instr := range block.Instructions {
		if instr.Opcode() == ir.OpSpill {
			victim := instr.Operand(1).(*ir.Instruction)
			spillCount[victim.DebugName]++
		}
	}
	for name, n := range spillCount {
		if n > 1 {
			t.Errorf("value %q spilled %d times, want at most 1 per block", name, n)
		}
	}
}

func TestAllocateZeroLimitFailsOnNonEmptyBlock(t *testing.T) {
	m := ir.NewModule()
	block := ir.NewBlock()
	block.Append1(ir.OpReadTestInput, ir.A32, m.InternU32Literal(0), "x")
	block.Append(ir.OpReturn, ir.Void, 0, "")

	err := Allocate(m, block, 0)
	if err == nil {
		t.Fatalf("expected error with register limit 0, got nil")
	}
	if !strings.Contains(err.Error(), "pressure exceeded") {
		t.Errorf("error = %v, want pressure exceeded", err)
	}
}

func TestAllocateLeavesBlockUntouchedOnFailure(t *testing.T) {
	m := ir.NewModule()
	block := buildChain(m, 4)
	before := append([]*ir.Instruction(nil), block.Instructions...)

	err := Allocate(m, block, 0)
	if err == nil {
		t.Fatalf("expected allocation failure")
	}
	if len(block.Instructions) != len(before) {
		t.Fatalf("block mutated on failure: len %d vs original %d", len(block.Instructions), len(before))
	}
	for i := range before {
		if block.Instructions[i] != before[i] {
			t.Errorf("block.Instructions[%d] changed on failed allocation", i)
		}
	}
}

func TestAllocateDuplicateOperandSharesRegister(t *testing.T) {
	m := ir.NewModule()
	block := ir.NewBlock()
	w := block.Append1(ir.OpReadTestInput, ir.A32, m.InternU32Literal(12), "w")
	ww := block.Append2(ir.OpIAdd, ir.A32, w, w, "ww")
	appendWrite(block, m, 0, ww)
	block.Append(ir.OpReturn, ir.Void, 0, "")

	if err := Allocate(m, block, 4); err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if ww.RA.SrcRegs[0] != ww.RA.SrcRegs[1] {
		t.Errorf("duplicate operand registers diverged: %d vs %d", ww.RA.SrcRegs[0], ww.RA.SrcRegs[1])
	}
}

// TestAllocateBinaryOpExceedsSingleRegister checks spec section 4.2: an
// instruction needing two simultaneously-live unique source registers
// cannot be satisfied by K=1, however eviction is attempted, and must fail
// with PressureExceeded rather than evicting a register the instruction
// itself just populated.
func TestAllocateBinaryOpExceedsSingleRegister(t *testing.T) {
	m := ir.NewModule()
	block := buildChain(m, 4)
	before := append([]*ir.Instruction(nil), block.Instructions...)

	err := Allocate(m, block, 1)
	if err == nil {
		t.Fatalf("expected PressureExceeded allocating a two-source iadd with K=1, got nil")
	}
	if !strings.Contains(err.Error(), "pressure exceeded") {
		t.Errorf("error = %v, want pressure exceeded", err)
	}
	if len(block.Instructions) != len(before) {
		t.Fatalf("block mutated on failure: len %d vs original %d", len(block.Instructions), len(before))
	}
}

// TestAllocateDuplicateOperandFitsSingleRegister checks that K=1 still
// succeeds when a binary op's two operands are the same value: only one
// register is ever live at once, so no eviction of a committed source is
// needed.
func TestAllocateDuplicateOperandFitsSingleRegister(t *testing.T) {
	m := ir.NewModule()
	block := ir.NewBlock()
	w := block.Append1(ir.OpReadTestInput, ir.A32, m.InternU32Literal(12), "w")
	ww := block.Append2(ir.OpIAdd, ir.A32, w, w, "ww")
	appendWrite(block, m, 0, ww)
	block.Append(ir.OpReturn, ir.Void, 0, "")

	if err := Allocate(m, block, 1); err != nil {
		t.Fatalf("Allocate with K=1: %v", err)
	}
	if ww.RA.SrcRegs[0] != 0 || ww.RA.SrcRegs[1] != 0 {
		t.Errorf("got src regs %d, %d; want both 0", ww.RA.SrcRegs[0], ww.RA.SrcRegs[1])
	}
}

func TestAllocateInvalidRegLimitRejected(t *testing.T) {
	m := ir.NewModule()
	block := buildChain(m, 2)

	if err := Allocate(m, block, MaxRegisters+1); err == nil {
		t.Errorf("expected error for regLimit above MaxRegisters")
	}
	if err := Allocate(m, block, -1); err == nil {
		t.Errorf("expected error for negative regLimit")
	}
}

func TestAllocateReusesRegisterAfterRelease(t *testing.T) {
	m := ir.NewModule()
	block := ir.NewBlock()
	a := block.Append1(ir.OpReadTestInput, ir.A32, m.InternU32Literal(0), "a")
	appendWrite(block, m, 0, a)
	b := block.Append1(ir.OpReadTestInput, ir.A32, m.InternU32Literal(4), "b")
	appendWrite(block, m, 4, b)
	block.Append(ir.OpReturn, ir.Void, 0, "")

	if err := Allocate(m, block, 1); err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if a.RA.DstReg != b.RA.DstReg {
		t.Errorf("expected a and b to share the single register once a's uses are consumed, got %d and %d", a.RA.DstReg, b.RA.DstReg)
	}
}
