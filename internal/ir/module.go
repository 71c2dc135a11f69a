package ir

import (
	"fmt"

	"fortio.org/safecast"
)

// Module owns globals, functions and the ID space of every value created
// through it.
type Module struct {
	Name    string
	Globals []*Value
	Funcs   []*Func

	nextID  ValueID
	globals map[string]*Value
	funcs   map[string]*Func
}

// Func is a function with parameters and basic blocks.
type Func struct {
	Name   string
	Module *Module
	Params []*Value
	Blocks []*Block

	byName map[string]*Value
}

// Block is a straight-line list of instructions.
type Block struct {
	Name   string
	Func   *Func
	Instrs []*Value
}

// NewModule creates an empty module.
func NewModule(name string) *Module {
	return &Module{
		Name:    name,
		globals: make(map[string]*Value),
		funcs:   make(map[string]*Func),
	}
}

func (m *Module) newValue(kind Kind, name string, typ Type) *Value {
	v := &Value{ID: m.nextID, Kind: kind, Name: name, Type: typ}
	next, err := safecast.Conv[uint32](uint64(m.nextID) + 1)
	if err != nil {
		panic(fmt.Errorf("value id overflow: %w", err))
	}
	m.nextID = ValueID(next)
	return v
}

// NewGlobal declares a global variable. Globals are addresses, so their
// type is always a pointer.
func (m *Module) NewGlobal(name string) *Value {
	g := m.newValue(KindGlobal, name, Ptr)
	m.Globals = append(m.Globals, g)
	m.globals[name] = g
	return g
}

// Global returns the global with the given name.
func (m *Module) Global(name string) *Value {
	return m.globals[name]
}

// NewFunc declares a function.
func (m *Module) NewFunc(name string) *Func {
	f := &Func{Name: name, Module: m, byName: make(map[string]*Value)}
	m.Funcs = append(m.Funcs, f)
	m.funcs[name] = f
	return f
}

// Func returns the function with the given name.
func (m *Module) Func(name string) *Func {
	return m.funcs[name]
}

// ConstInt creates an integer constant. Constants are not shared: two
// calls with the same arguments yield distinct values.
func (m *Module) ConstInt(typ Type, x int64) *Value {
	v := m.newValue(KindConst, "", typ)
	v.Const = Const{IsInt: true, Int: x}
	return v
}

// Const creates an opaque constant (float literal, null, constant
// expression and so on) printed as text.
func (m *Module) Const(typ Type, text string) *Value {
	v := m.newValue(KindConst, "", typ)
	v.Const = Const{Text: text}
	return v
}

// NewParam appends a parameter to f.
func (f *Func) NewParam(name string, typ Type) *Value {
	p := f.Module.newValue(KindArgument, name, typ)
	f.Params = append(f.Params, p)
	f.bind(p)
	return p
}

// NewBlock appends a basic block to f.
func (f *Func) NewBlock(name string) *Block {
	b := &Block{Name: name, Func: f}
	f.Blocks = append(f.Blocks, b)
	return b
}

func (f *Func) bind(v *Value) {
	if v.Name != "" {
		f.byName[v.Name] = v
	}
}

// Lookup resolves a local name (parameter or instruction) and falls back
// to module globals.
func (f *Func) Lookup(name string) *Value {
	if v, ok := f.byName[name]; ok {
		return v
	}
	if f.Module != nil {
		return f.Module.Global(name)
	}
	return nil
}

// Values returns the parameters followed by every instruction in block
// order.
func (f *Func) Values() []*Value {
	n := len(f.Params)
	for _, b := range f.Blocks {
		n += len(b.Instrs)
	}
	out := make([]*Value, 0, n)
	out = append(out, f.Params...)
	for _, b := range f.Blocks {
		out = append(out, b.Instrs...)
	}
	return out
}

// UseCount returns how many operand slots of instructions in f refer to v.
func (f *Func) UseCount(v *Value) int {
	if v == nil {
		return 0
	}
	n := 0
	for _, b := range f.Blocks {
		for _, instr := range b.Instrs {
			for _, op := range instr.Operands {
				if op == v {
					n++
				}
			}
		}
	}
	return n
}

// NewInstr allocates an instruction at the end of b and leaves opcode
// and operands to the caller. Importers use it to create every value of a
// function before resolving forward references.
func (b *Block) NewInstr(kind Kind, name string, typ Type) *Value {
	v := b.Func.Module.newValue(kind, name, typ)
	b.Instrs = append(b.Instrs, v)
	b.Func.bind(v)
	return v
}

func (b *Block) append(kind Kind, name string, typ Type, operands ...*Value) *Value {
	v := b.NewInstr(kind, name, typ)
	v.Operands = operands
	return v
}

// Binary appends a binary operator; the result type is the type of x.
func (b *Block) Binary(name string, op Opcode, x, y *Value) *Value {
	v := b.append(KindBinary, name, x.Type, x, y)
	v.Op = op
	return v
}

// Cast appends a conversion of x to type to.
func (b *Block) Cast(name string, op CastOp, x *Value, to Type) *Value {
	v := b.append(KindCast, name, to, x)
	v.Cast = op
	return v
}

// Load appends a load of type typ from addr.
func (b *Block) Load(name string, typ Type, addr *Value) *Value {
	return b.append(KindLoad, name, typ, addr)
}

// Other appends an instruction without dedicated analysis rules (call,
// phi, getelementptr, compare, store, ...). Void instructions pass an
// empty name and Void type.
func (b *Block) Other(name, mnemonic string, typ Type, operands ...*Value) *Value {
	v := b.append(KindOther, name, typ, operands...)
	v.Mnemonic = mnemonic
	return v
}
