package ir

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// String returns the printed form of the type.
func (t Type) String() string {
	switch t.Kind {
	case TypeVoid:
		return "void"
	case TypeInt:
		return "i" + strconv.Itoa(int(t.Bits))
	case TypePtr:
		return "ptr"
	case TypeFloat:
		switch t.Bits {
		case 16:
			return "half"
		case 32:
			return "float"
		case 64:
			return "double"
		}
		return "f" + strconv.Itoa(int(t.Bits))
	default:
		return "opaque"
	}
}

// Ref returns the operand form of v: %name for locals, @name for
// globals, the literal for constants.
func (v *Value) Ref() string {
	if v == nil {
		return "<nil>"
	}
	switch v.Kind {
	case KindConst:
		if v.Const.IsInt {
			return strconv.FormatInt(v.Const.Int, 10)
		}
		if v.Const.Text != "" {
			return v.Const.Text
		}
		return "const"
	case KindGlobal:
		return "@" + v.displayName()
	default:
		return "%" + v.displayName()
	}
}

func (v *Value) displayName() string {
	if v.Name != "" {
		return v.Name
	}
	return "v" + strconv.FormatUint(uint64(v.ID), 10)
}

// String implements fmt.Stringer using the definition form.
func (v *Value) String() string {
	return v.Format()
}

// Format returns the definition form of v, for example
// "%idx = mul i32 %tid, 4". Non-instructions print as "<type> <ref>".
func (v *Value) Format() string {
	if v == nil {
		return "<nil>"
	}
	switch v.Kind {
	case KindBinary:
		return fmt.Sprintf("%s = %s %s %s, %s", v.Ref(), v.Op, v.Type, v.Operand(0).Ref(), v.Operand(1).Ref())
	case KindCast:
		src := v.Operand(0)
		return fmt.Sprintf("%s = %s %s %s to %s", v.Ref(), v.Cast, src.typeString(), src.Ref(), v.Type)
	case KindLoad:
		return fmt.Sprintf("%s = load %s, ptr %s", v.Ref(), v.Type, v.Operand(0).Ref())
	case KindOther:
		var sb strings.Builder
		if v.Type.Kind != TypeVoid {
			sb.WriteString(v.Ref())
			sb.WriteString(" = ")
		}
		sb.WriteString(v.Mnemonic)
		for i, op := range v.Operands {
			if i == 0 {
				sb.WriteString(" ")
			} else {
				sb.WriteString(", ")
			}
			sb.WriteString(op.Ref())
		}
		return sb.String()
	default:
		return v.Type.String() + " " + v.Ref()
	}
}

func (v *Value) typeString() string {
	if v == nil {
		return "?"
	}
	return v.Type.String()
}

// DumpFunc writes a human-readable listing of f.
func DumpFunc(w io.Writer, f *Func) error {
	if w == nil || f == nil {
		return nil
	}
	params := make([]string, len(f.Params))
	for i, p := range f.Params {
		params[i] = p.Type.String() + " " + p.Ref()
	}
	if _, err := fmt.Fprintf(w, "define @%s(%s) {\n", f.Name, strings.Join(params, ", ")); err != nil {
		return err
	}
	for i, b := range f.Blocks {
		if i > 0 {
			if _, err := fmt.Fprintln(w); err != nil {
				return err
			}
		}
		name := b.Name
		if name == "" {
			name = "bb" + strconv.Itoa(i)
		}
		if _, err := fmt.Fprintf(w, "%s:\n", name); err != nil {
			return err
		}
		for _, instr := range b.Instrs {
			if _, err := fmt.Fprintf(w, "  %s\n", instr.Format()); err != nil {
				return err
			}
		}
	}
	_, err := fmt.Fprintln(w, "}")
	return err
}

// DumpModule writes the globals of m followed by every function.
func DumpModule(w io.Writer, m *Module) error {
	if w == nil || m == nil {
		return nil
	}
	for _, g := range m.Globals {
		if _, err := fmt.Fprintf(w, "%s = global\n", g.Ref()); err != nil {
			return err
		}
	}
	for _, f := range m.Funcs {
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
		if err := DumpFunc(w, f); err != nil {
			return err
		}
	}
	return nil
}
