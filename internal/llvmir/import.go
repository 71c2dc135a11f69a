// Package llvmir imports LLVM textual IR (.ll) into lanevar's IR.
//
// Integer arithmetic, casts and loads keep their structure; every other
// instruction becomes a KindOther value that records its operands so uses
// can still be counted. Constants that do not fit an int64, constant
// expressions, functions referenced as values and metadata become opaque
// constants.
package llvmir

import (
	"fmt"
	"os"
	"strings"

	"fortio.org/safecast"
	"github.com/llir/llvm/asm"
	llir "github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"

	"lanevar/internal/ir"
)

// ParseFile reads and imports the .ll file at path.
func ParseFile(path string) (*ir.Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return ParseBytes(path, data)
}

// ParseBytes imports LLVM IR held in memory; path is only used in errors
// and as the module name.
func ParseBytes(path string, data []byte) (*ir.Module, error) {
	src, err := asm.ParseBytes(path, data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse LLVM IR %s: %w", path, err)
	}
	return Import(path, src), nil
}

// ParseString is ParseBytes for string input.
func ParseString(path, content string) (*ir.Module, error) {
	return ParseBytes(path, []byte(content))
}

// Import converts a parsed llir module. It never fails: constructs without
// a counterpart degrade to opaque values.
func Import(name string, src *llir.Module) *ir.Module {
	imp := &importer{
		mod:     ir.NewModule(name),
		globals: make(map[value.Value]*ir.Value, len(src.Globals)),
	}
	for _, g := range src.Globals {
		imp.globals[g] = imp.mod.NewGlobal(g.Name())
	}
	for _, f := range src.Funcs {
		imp.importFunc(f)
	}
	return imp.mod
}

type importer struct {
	mod     *ir.Module
	globals map[value.Value]*ir.Value
	locals  map[value.Value]*ir.Value
}

type pending struct {
	dst *ir.Value
	src any
}

func (imp *importer) importFunc(src *llir.Func) {
	f := imp.mod.NewFunc(src.Name())
	imp.locals = make(map[value.Value]*ir.Value)

	for _, p := range src.Params {
		imp.locals[p] = f.NewParam(p.Name(), convType(p.Type()))
	}

	// First pass allocates every value so that operands referring to later
	// instructions (phi, loops) resolve in the second pass.
	var work []pending
	for _, bb := range src.Blocks {
		blk := f.NewBlock(bb.Name())
		for _, inst := range bb.Insts {
			work = append(work, pending{dst: imp.allocInstr(blk, inst), src: inst})
		}
		if bb.Term != nil {
			v := blk.NewInstr(ir.KindOther, "", ir.Void)
			v.Mnemonic = mnemonic(bb.Term)
			work = append(work, pending{dst: v, src: bb.Term})
		}
	}
	for _, w := range work {
		imp.fillOperands(w.dst, w.src)
	}
}

func (imp *importer) allocInstr(blk *ir.Block, inst llir.Instruction) *ir.Value {
	name, typ := "", ir.Void
	if v, ok := inst.(value.Value); ok {
		typ = convType(v.Type())
		if typ.Kind != ir.TypeVoid {
			if named, ok := inst.(interface{ Name() string }); ok {
				name = named.Name()
			}
		}
	}

	var out *ir.Value
	switch {
	case binaryOp(inst) != ir.OpInvalid:
		out = blk.NewInstr(ir.KindBinary, name, typ)
		out.Op = binaryOp(inst)
	case castOp(inst) != ir.CastInvalid:
		out = blk.NewInstr(ir.KindCast, name, typ)
		out.Cast = castOp(inst)
	default:
		if _, ok := inst.(*llir.InstLoad); ok {
			out = blk.NewInstr(ir.KindLoad, name, typ)
		} else {
			out = blk.NewInstr(ir.KindOther, name, typ)
			out.Mnemonic = mnemonic(inst)
		}
	}
	if named, ok := inst.(value.Value); ok && name != "" {
		imp.locals[named] = out
	}
	return out
}

func (imp *importer) fillOperands(dst *ir.Value, src any) {
	switch dst.Kind {
	case ir.KindBinary:
		x, y := binaryOperands(src)
		dst.Operands = []*ir.Value{imp.operand(x), imp.operand(y)}
	case ir.KindCast:
		dst.Operands = []*ir.Value{imp.operand(castSource(src))}
	case ir.KindLoad:
		dst.Operands = []*ir.Value{imp.operand(src.(*llir.InstLoad).Src)}
	default:
		user, ok := src.(interface{ Operands() []*value.Value })
		if !ok {
			return
		}
		for _, op := range user.Operands() {
			if op == nil || *op == nil {
				continue
			}
			if v := imp.operand(*op); v != nil {
				dst.Operands = append(dst.Operands, v)
			}
		}
	}
}

// operand maps an llir value to an IR value. Labels and types used as
// operands yield nil.
func (imp *importer) operand(v value.Value) *ir.Value {
	if v == nil {
		return nil
	}
	if mapped, ok := imp.locals[v]; ok {
		return mapped
	}
	if mapped, ok := imp.globals[v]; ok {
		return mapped
	}

	var out *ir.Value
	switch c := v.(type) {
	case *llir.Block:
		return nil
	case *constant.Int:
		typ := convType(c.Typ)
		if c.X != nil && c.X.IsInt64() {
			out = imp.mod.ConstInt(typ, c.X.Int64())
		} else {
			out = imp.mod.Const(typ, c.Ident())
		}
	default:
		out = imp.mod.Const(convType(v.Type()), v.Ident())
	}
	imp.locals[v] = out
	return out
}

func convType(t types.Type) ir.Type {
	switch t := t.(type) {
	case nil:
		return ir.Void
	case *types.VoidType:
		return ir.Void
	case *types.IntType:
		bits, err := safecast.Conv[uint16](t.BitSize)
		if err != nil {
			return ir.Type{Kind: ir.TypeOther}
		}
		return ir.Type{Kind: ir.TypeInt, Bits: bits}
	case *types.PointerType:
		return ir.Ptr
	case *types.FloatType:
		switch t.String() {
		case "half":
			return ir.Type{Kind: ir.TypeFloat, Bits: 16}
		case "float":
			return ir.F32
		case "double":
			return ir.F64
		}
		return ir.Type{Kind: ir.TypeFloat}
	default:
		return ir.Type{Kind: ir.TypeOther}
	}
}

func binaryOp(inst any) ir.Opcode {
	switch inst.(type) {
	case *llir.InstAdd:
		return ir.OpAdd
	case *llir.InstSub:
		return ir.OpSub
	case *llir.InstMul:
		return ir.OpMul
	case *llir.InstShl:
		return ir.OpShl
	case *llir.InstLShr:
		return ir.OpLShr
	case *llir.InstAShr:
		return ir.OpAShr
	case *llir.InstAnd:
		return ir.OpAnd
	case *llir.InstOr:
		return ir.OpOr
	case *llir.InstXor:
		return ir.OpXor
	case *llir.InstUDiv:
		return ir.OpUDiv
	case *llir.InstSDiv:
		return ir.OpSDiv
	case *llir.InstURem:
		return ir.OpURem
	case *llir.InstSRem:
		return ir.OpSRem
	case *llir.InstFAdd:
		return ir.OpFAdd
	case *llir.InstFSub:
		return ir.OpFSub
	case *llir.InstFMul:
		return ir.OpFMul
	case *llir.InstFDiv:
		return ir.OpFDiv
	case *llir.InstFRem:
		return ir.OpFRem
	}
	return ir.OpInvalid
}

func binaryOperands(inst any) (value.Value, value.Value) {
	switch i := inst.(type) {
	case *llir.InstAdd:
		return i.X, i.Y
	case *llir.InstSub:
		return i.X, i.Y
	case *llir.InstMul:
		return i.X, i.Y
	case *llir.InstShl:
		return i.X, i.Y
	case *llir.InstLShr:
		return i.X, i.Y
	case *llir.InstAShr:
		return i.X, i.Y
	case *llir.InstAnd:
		return i.X, i.Y
	case *llir.InstOr:
		return i.X, i.Y
	case *llir.InstXor:
		return i.X, i.Y
	case *llir.InstUDiv:
		return i.X, i.Y
	case *llir.InstSDiv:
		return i.X, i.Y
	case *llir.InstURem:
		return i.X, i.Y
	case *llir.InstSRem:
		return i.X, i.Y
	case *llir.InstFAdd:
		return i.X, i.Y
	case *llir.InstFSub:
		return i.X, i.Y
	case *llir.InstFMul:
		return i.X, i.Y
	case *llir.InstFDiv:
		return i.X, i.Y
	case *llir.InstFRem:
		return i.X, i.Y
	}
	return nil, nil
}

func castOp(inst any) ir.CastOp {
	switch inst.(type) {
	case *llir.InstTrunc:
		return ir.CastTrunc
	case *llir.InstZExt:
		return ir.CastZExt
	case *llir.InstSExt:
		return ir.CastSExt
	case *llir.InstPtrToInt:
		return ir.CastPtrToInt
	case *llir.InstIntToPtr:
		return ir.CastIntToPtr
	case *llir.InstBitCast:
		return ir.CastBitCast
	case *llir.InstAddrSpaceCast:
		return ir.CastAddrSpace
	case *llir.InstFPTrunc:
		return ir.CastFPTrunc
	case *llir.InstFPExt:
		return ir.CastFPExt
	case *llir.InstFPToUI:
		return ir.CastFPToUI
	case *llir.InstFPToSI:
		return ir.CastFPToSI
	case *llir.InstUIToFP:
		return ir.CastUIToFP
	case *llir.InstSIToFP:
		return ir.CastSIToFP
	}
	return ir.CastInvalid
}

func castSource(inst any) value.Value {
	switch i := inst.(type) {
	case *llir.InstTrunc:
		return i.From
	case *llir.InstZExt:
		return i.From
	case *llir.InstSExt:
		return i.From
	case *llir.InstPtrToInt:
		return i.From
	case *llir.InstIntToPtr:
		return i.From
	case *llir.InstBitCast:
		return i.From
	case *llir.InstAddrSpaceCast:
		return i.From
	case *llir.InstFPTrunc:
		return i.From
	case *llir.InstFPExt:
		return i.From
	case *llir.InstFPToUI:
		return i.From
	case *llir.InstFPToSI:
		return i.From
	case *llir.InstUIToFP:
		return i.From
	case *llir.InstSIToFP:
		return i.From
	}
	return nil
}

// mnemonic derives the LLVM opcode name from the llir type name, e.g.
// *ir.InstGetElementPtr -> "getelementptr", *ir.TermRet -> "ret".
func mnemonic(inst any) string {
	name := fmt.Sprintf("%T", inst)
	name = name[strings.LastIndexByte(name, '.')+1:]
	name = strings.TrimPrefix(name, "Inst")
	name = strings.TrimPrefix(name, "Term")
	return strings.ToLower(name)
}
