// Package kernel models the thread-local argument descriptor a vectorized
// kernel receives and the static variance of each of its fields.
package kernel

import (
	"fmt"
	"strings"

	"lanevar/internal/ir"
)

// Field names one slot of the thread-local argument descriptor.
type Field uint8

const (
	FieldThreadDescriptor Field = iota
	FieldLocalMemory
	FieldParamMemory
	FieldSharedMemory
	FieldConstMemory
	FieldGlobalMemory
	FieldThreadIDX
	FieldThreadIDY
	FieldThreadIDZ
	FieldBlockDimX
	FieldBlockDimY
	FieldBlockDimZ
	FieldBlockIDX
	FieldBlockIDY
	FieldBlockIDZ
	FieldGridDimX
	FieldGridDimY
	FieldGridDimZ
	// FieldDescriptorArray terminates every VarianceMap.
	FieldDescriptorArray

	numFields
)

var fieldNames = [numFields]string{
	FieldThreadDescriptor: "thread_descriptor",
	FieldLocalMemory:      "local_memory",
	FieldParamMemory:      "param_memory",
	FieldSharedMemory:     "shared_memory",
	FieldConstMemory:      "const_memory",
	FieldGlobalMemory:     "global_memory",
	FieldThreadIDX:        "thread_id_x",
	FieldThreadIDY:        "thread_id_y",
	FieldThreadIDZ:        "thread_id_z",
	FieldBlockDimX:        "block_dim_x",
	FieldBlockDimY:        "block_dim_y",
	FieldBlockDimZ:        "block_dim_z",
	FieldBlockIDX:         "block_id_x",
	FieldBlockIDY:         "block_id_y",
	FieldBlockIDZ:         "block_id_z",
	FieldGridDimX:         "grid_dim_x",
	FieldGridDimY:         "grid_dim_y",
	FieldGridDimZ:         "grid_dim_z",
	FieldDescriptorArray:  "descriptor_array",
}

// ThreadIDFields lists the per-dimension thread id fields.
var ThreadIDFields = [3]Field{FieldThreadIDX, FieldThreadIDY, FieldThreadIDZ}

// String returns the snake_case name of the field.
func (f Field) String() string {
	if f < numFields {
		return fieldNames[f]
	}
	return fmt.Sprintf("field(%d)", uint8(f))
}

// ParseField converts a snake_case name to a Field.
func ParseField(name string) (Field, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range fieldNames {
		if n == name {
			return Field(i), nil
		}
	}
	return 0, fmt.Errorf("unknown descriptor field %q", name)
}

// FieldVariance pairs a field with its thread variance.
type FieldVariance struct {
	Field   Field
	Variant bool
}

// VarianceMap is an ordered list of descriptor fields terminated by
// FieldDescriptorArray. Entries after the sentinel are ignored.
type VarianceMap []FieldVariance

// DefaultVarianceMap returns the stock map: the descriptor pointer, local
// memory and the thread ids differ per lane, everything else is shared by
// the whole block.
func DefaultVarianceMap() VarianceMap {
	vm := make(VarianceMap, 0, numFields)
	for f := Field(0); f < numFields; f++ {
		variant := false
		switch f {
		case FieldThreadDescriptor, FieldLocalMemory, FieldThreadIDX, FieldThreadIDY, FieldThreadIDZ:
			variant = true
		}
		vm = append(vm, FieldVariance{Field: f, Variant: variant})
	}
	return vm
}

// With returns a copy of vm with the variance of field replaced. Setting
// the sentinel is a no-op.
func (vm VarianceMap) With(field Field, variant bool) VarianceMap {
	out := make(VarianceMap, len(vm))
	copy(out, vm)
	for i := range out {
		if out[i].Field == FieldDescriptorArray {
			break
		}
		if out[i].Field == field {
			out[i].Variant = variant
		}
	}
	return out
}

// Each calls fn for every entry before the sentinel.
func (vm VarianceMap) Each(fn func(FieldVariance)) {
	for _, fv := range vm {
		if fv.Field == FieldDescriptorArray {
			return
		}
		fn(fv)
	}
}

// ThreadLocalArgument binds descriptor fields to IR values of one function.
type ThreadLocalArgument struct {
	values [numFields]*ir.Value

	// ThreadIDUses is the number of distinct thread id dimensions the
	// function references.
	ThreadIDUses int
}

// Bind associates field with v.
func (a *ThreadLocalArgument) Bind(field Field, v *ir.Value) {
	if field < numFields {
		a.values[field] = v
	}
}

// Value returns the value bound to field, or nil.
func (a *ThreadLocalArgument) Value(field Field) *ir.Value {
	if a == nil || field >= numFields {
		return nil
	}
	return a.values[field]
}

// Fields returns the bound fields in declaration order.
func (a *ThreadLocalArgument) Fields() []Field {
	if a == nil {
		return nil
	}
	var out []Field
	for f, v := range a.values {
		if v != nil {
			out = append(out, Field(f))
		}
	}
	return out
}

// CountThreadIDUses returns how many thread id dimensions bound in args
// are used by at least one instruction of fn.
func CountThreadIDUses(fn *ir.Func, args *ThreadLocalArgument) int {
	if fn == nil || args == nil {
		return 0
	}
	n := 0
	for _, f := range ThreadIDFields {
		if v := args.Value(f); v != nil && fn.UseCount(v) > 0 {
			n++
		}
	}
	return n
}
