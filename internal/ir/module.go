package ir

// literalKey packs a TypeTag and a zero-extended payload into one
// comparable map key, mirroring the C++ reference's
// `uint64_t(typekind) << 32 | z` packing in Module::LiteralU32.
type literalKey struct {
	typ  TypeTag
	zext uint64
}

// Module interns Literal values so that two requests for the same
// (TypeTag, bits) key return the identical *Literal. This is what lets
// downstream code compare literal identity instead of value equality.
type Module struct {
	literals map[literalKey]*Literal
}

// NewModule creates an empty Module.
func NewModule() *Module {
	return &Module{literals: make(map[literalKey]*Literal)}
}

// InternLiteral returns the canonical Literal for (typ, zext), creating it
// on first request. Deterministic and idempotent: repeated calls with an
// equal key return the same pointer.
func (m *Module) InternLiteral(typ TypeTag, zext uint64) *Literal {
	key := literalKey{typ: typ, zext: zext}
	if lit, ok := m.literals[key]; ok {
		return lit
	}
	lit := &Literal{typ: typ, Zext: zext}
	m.literals[key] = lit
	return lit
}

// InternU32Literal interns a 32-bit a32-typed literal. The primary entry
// point named by spec section 6 (Module::intern_u32_literal).
func (m *Module) InternU32Literal(v uint32) *Literal {
	return m.InternLiteral(A32, uint64(v))
}

// InternBoolLiteral interns a bool-typed literal (0 or 1).
func (m *Module) InternBoolLiteral(v bool) *Literal {
	var z uint64
	if v {
		z = 1
	}
	return m.InternLiteral(Bool, z)
}
