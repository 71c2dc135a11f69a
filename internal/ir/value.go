package ir

// ValueID identifies a value inside a module. IDs are dense and follow
// creation order, which keeps printed output deterministic.
type ValueID uint32

// Kind enumerates the value kinds of the IR.
type Kind uint8

const (
	// KindInvalid is the zero kind.
	KindInvalid Kind = iota
	// KindConst represents a literal or a constant expression.
	KindConst
	// KindArgument represents a function parameter.
	KindArgument
	// KindGlobal represents a module-level global variable.
	KindGlobal
	// KindCast represents a unary conversion instruction.
	KindCast
	// KindLoad represents a load through an address operand.
	KindLoad
	// KindBinary represents a two-operand arithmetic or bitwise instruction.
	KindBinary
	// KindOther represents any instruction the analysis has no rule for.
	KindOther
)

// String returns the string representation of Kind.
func (k Kind) String() string {
	switch k {
	case KindConst:
		return "const"
	case KindArgument:
		return "arg"
	case KindGlobal:
		return "global"
	case KindCast:
		return "cast"
	case KindLoad:
		return "load"
	case KindBinary:
		return "binary"
	case KindOther:
		return "other"
	default:
		return "invalid"
	}
}

// IsInstr reports whether values of this kind are defined by an instruction.
func (k Kind) IsInstr() bool {
	return k == KindCast || k == KindLoad || k == KindBinary || k == KindOther
}

// Opcode enumerates binary operators.
type Opcode uint8

const (
	OpInvalid Opcode = iota
	OpAdd
	OpSub
	OpMul
	OpShl
	OpLShr
	OpAShr
	OpAnd
	OpOr
	OpXor
	OpUDiv
	OpSDiv
	OpURem
	OpSRem
	OpFAdd
	OpFSub
	OpFMul
	OpFDiv
	OpFRem
)

var opcodeNames = [...]string{
	OpInvalid: "invalid",
	OpAdd:     "add",
	OpSub:     "sub",
	OpMul:     "mul",
	OpShl:     "shl",
	OpLShr:    "lshr",
	OpAShr:    "ashr",
	OpAnd:     "and",
	OpOr:      "or",
	OpXor:     "xor",
	OpUDiv:    "udiv",
	OpSDiv:    "sdiv",
	OpURem:    "urem",
	OpSRem:    "srem",
	OpFAdd:    "fadd",
	OpFSub:    "fsub",
	OpFMul:    "fmul",
	OpFDiv:    "fdiv",
	OpFRem:    "frem",
}

// String returns the mnemonic of the opcode.
func (op Opcode) String() string {
	if int(op) < len(opcodeNames) {
		return opcodeNames[op]
	}
	return "invalid"
}

// CastOp enumerates conversion instructions.
type CastOp uint8

const (
	CastInvalid CastOp = iota
	CastTrunc
	CastZExt
	CastSExt
	CastPtrToInt
	CastIntToPtr
	CastBitCast
	CastAddrSpace
	CastFPTrunc
	CastFPExt
	CastFPToUI
	CastFPToSI
	CastUIToFP
	CastSIToFP
)

var castNames = [...]string{
	CastInvalid:   "invalid",
	CastTrunc:     "trunc",
	CastZExt:      "zext",
	CastSExt:      "sext",
	CastPtrToInt:  "ptrtoint",
	CastIntToPtr:  "inttoptr",
	CastBitCast:   "bitcast",
	CastAddrSpace: "addrspacecast",
	CastFPTrunc:   "fptrunc",
	CastFPExt:     "fpext",
	CastFPToUI:    "fptoui",
	CastFPToSI:    "fptosi",
	CastUIToFP:    "uitofp",
	CastSIToFP:    "sitofp",
}

// String returns the mnemonic of the cast.
func (c CastOp) String() string {
	if int(c) < len(castNames) {
		return castNames[c]
	}
	return "invalid"
}

// TypeKind distinguishes the coarse type classes the analysis cares about.
type TypeKind uint8

const (
	TypeVoid TypeKind = iota
	TypeInt
	TypePtr
	TypeFloat
	TypeOther
)

// Type is a minimal value type: integers carry their width, floats their
// precision, pointers and everything else only their class.
type Type struct {
	Kind TypeKind
	Bits uint16
}

// Common types.
var (
	Void = Type{Kind: TypeVoid}
	I1   = Type{Kind: TypeInt, Bits: 1}
	I8   = Type{Kind: TypeInt, Bits: 8}
	I16  = Type{Kind: TypeInt, Bits: 16}
	I32  = Type{Kind: TypeInt, Bits: 32}
	I64  = Type{Kind: TypeInt, Bits: 64}
	F32  = Type{Kind: TypeFloat, Bits: 32}
	F64  = Type{Kind: TypeFloat, Bits: 64}
	Ptr  = Type{Kind: TypePtr}
)

// IsInt reports whether t is an integer type.
func (t Type) IsInt() bool { return t.Kind == TypeInt }

// Const is the payload of a KindConst value.
type Const struct {
	IsInt bool
	Int   int64
	// Text is the printed form for non-integer constants.
	Text string
}

// Value is a node of the IR graph. The fields used depend on Kind:
//
//   - KindConst: Const
//   - KindCast: Cast, Operands[0] is the source
//   - KindLoad: Operands[0] is the address
//   - KindBinary: Op, Operands[0] and Operands[1]
//   - KindOther: Mnemonic, Operands as recorded by the producer
//
// Values are compared by pointer.
type Value struct {
	ID       ValueID
	Kind     Kind
	Name     string
	Type     Type
	Op       Opcode
	Cast     CastOp
	Mnemonic string
	Operands []*Value
	Const    Const
}

// Operand returns the i-th operand or nil when out of range.
func (v *Value) Operand(i int) *Value {
	if v == nil || i < 0 || i >= len(v.Operands) {
		return nil
	}
	return v.Operands[i]
}

// IntConst returns the integer payload of an integer constant.
func (v *Value) IntConst() (int64, bool) {
	if v == nil || v.Kind != KindConst || !v.Const.IsInt {
		return 0, false
	}
	return v.Const.Int, true
}

// IsIntegerCast reports whether v only changes the width of an integer:
// trunc, zext, sext, or a bitcast between two integer types.
func (v *Value) IsIntegerCast() bool {
	if v == nil || v.Kind != KindCast {
		return false
	}
	switch v.Cast {
	case CastTrunc, CastZExt, CastSExt:
		return true
	case CastBitCast:
		src := v.Operand(0)
		return src != nil && src.Type.IsInt() && v.Type.IsInt()
	}
	return false
}

// IsPtrIntConversion reports whether v is a ptrtoint or inttoptr.
func (v *Value) IsPtrIntConversion() bool {
	return v != nil && v.Kind == KindCast && (v.Cast == CastPtrToInt || v.Cast == CastIntToPtr)
}
