// Package types implements ANVIL's type system: interned primitive types and
// constructors for derived types (pointer, array, struct, function). Struct
// construction computes field offsets eagerly, the way a real ABI layout
// algorithm must.
package types

import (
	"fmt"
	"strings"
)

// Kind discriminates the tagged Type variant.
type Kind int

const (
	Void Kind = iota
	I8
	I16
	I32
	I64
	U8
	U16
	U32
	U64
	F32
	F64
	Ptr
	Array
	Struct
	Func
)

func (k Kind) String() string {
	names := [...]string{"void", "i8", "i16", "i32", "i64", "u8", "u16", "u32", "u64", "f32", "f64", "ptr", "array", "struct", "func"}
	if int(k) < len(names) {
		return names[k]
	}
	return "?"
}

// Field is one member of a struct type, with its offset already computed
// from the layout algorithm.
type Field struct {
	Name   string
	Type   *Type
	Offset int64
}

// Type is a tagged variant over every type ANVIL's IR can express. Instances
// of primitive kinds are interned per Cache; derived types (Ptr, Array,
// Struct, Func) are allocated fresh by their constructor but are immutable
// once built, so sharing is safe though not required.
type Type struct {
	Kind Kind
	Size int64 // bytes; 0 for Void and Func
	Align int64 // bytes; 1 for Void

	Pointee *Type // Ptr

	Elem  *Type // Array
	Count int64 // Array

	Name   string  // Struct, optional
	Fields []Field // Struct
	Packed bool    // Struct: disable alignment padding when true

	Ret      *Type   // Func
	Params   []*Type // Func
	Variadic bool    // Func
}

func (t *Type) String() string {
	if t == nil {
		return "<nil type>"
	}
	switch t.Kind {
	case Ptr:
		return t.Pointee.String() + "*"
	case Array:
		return fmt.Sprintf("[%d x %s]", t.Count, t.Elem.String())
	case Struct:
		if t.Name != "" {
			return "%" + t.Name
		}
		parts := make([]string, len(t.Fields))
		for i, f := range t.Fields {
			parts[i] = f.Type.String()
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case Func:
		parts := make([]string, len(t.Params))
		for i, p := range t.Params {
			parts[i] = p.String()
		}
		variadic := ""
		if t.Variadic {
			if len(parts) > 0 {
				variadic = ", ..."
			} else {
				variadic = "..."
			}
		}
		return fmt.Sprintf("%s (%s%s)", t.Ret.String(), strings.Join(parts, ", "), variadic)
	default:
		return t.Kind.String()
	}
}

// IsInteger reports whether t is one of the signed or unsigned integer kinds.
func (t *Type) IsInteger() bool {
	switch t.Kind {
	case I8, I16, I32, I64, U8, U16, U32, U64:
		return true
	}
	return false
}

// IsSigned reports whether t is a signed integer kind.
func (t *Type) IsSigned() bool {
	switch t.Kind {
	case I8, I16, I32, I64:
		return true
	}
	return false
}

// IsFloat reports whether t is F32 or F64.
func (t *Type) IsFloat() bool {
	return t.Kind == F32 || t.Kind == F64
}

// Equal reports structural equality between two types. Interned primitives
// compare equal by pointer too, but derived types need structural
// comparison since the builder never deduplicates them.
func Equal(a, b *Type) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil || a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case Ptr:
		return Equal(a.Pointee, b.Pointee)
	case Array:
		return a.Count == b.Count && Equal(a.Elem, b.Elem)
	case Struct:
		if len(a.Fields) != len(b.Fields) {
			return false
		}
		for i := range a.Fields {
			if !Equal(a.Fields[i].Type, b.Fields[i].Type) {
				return false
			}
		}
		return true
	case Func:
		if a.Variadic != b.Variadic || len(a.Params) != len(b.Params) || !Equal(a.Ret, b.Ret) {
			return false
		}
		for i := range a.Params {
			if !Equal(a.Params[i], b.Params[i]) {
				return false
			}
		}
		return true
	default:
		return a.Size == b.Size
	}
}

func primitiveSizeAlign(k Kind, ptrSize int64) (int64, int64) {
	switch k {
	case Void:
		return 0, 1
	case I8, U8:
		return 1, 1
	case I16, U16:
		return 2, 2
	case I32, U32, F32:
		return 4, 4
	case I64, U64, F64:
		return 8, 8
	}
	return ptrSize, ptrSize
}

// Cache interns the primitive types for a single context. Pointer-sized
// types (and anything whose size depends on the target) are re-derived
// whenever the word size changes, so reselecting a target keeps type sizes
// consistent as the spec requires.
type Cache struct {
	ptrSize    int64
	primitives map[Kind]*Type
}

// NewCache builds a primitive-type cache for a target with the given
// pointer size in bytes.
func NewCache(ptrSize int64) *Cache {
	c := &Cache{}
	c.SetPointerSize(ptrSize)
	return c
}

// SetPointerSize re-derives every interned primitive for a new pointer
// size. Existing *Type values obtained before the change keep their old
// (now stale) size/align; callers should re-fetch primitives after
// retargeting, which is exactly what ctx_set_target does.
func (c *Cache) SetPointerSize(ptrSize int64) {
	c.ptrSize = ptrSize
	c.primitives = make(map[Kind]*Type, 11)
	for _, k := range []Kind{Void, I8, I16, I32, I64, U8, U16, U32, U64, F32, F64} {
		sz, al := primitiveSizeAlign(k, ptrSize)
		c.primitives[k] = &Type{Kind: k, Size: sz, Align: al}
	}
}

// PointerSize returns the word size this cache was built with.
func (c *Cache) PointerSize() int64 { return c.ptrSize }

func (c *Cache) prim(k Kind) *Type { return c.primitives[k] }

func (c *Cache) Void() *Type { return c.prim(Void) }
func (c *Cache) I8() *Type   { return c.prim(I8) }
func (c *Cache) I16() *Type  { return c.prim(I16) }
func (c *Cache) I32() *Type  { return c.prim(I32) }
func (c *Cache) I64() *Type  { return c.prim(I64) }
func (c *Cache) U8() *Type   { return c.prim(U8) }
func (c *Cache) U16() *Type  { return c.prim(U16) }
func (c *Cache) U32() *Type  { return c.prim(U32) }
func (c *Cache) U64() *Type  { return c.prim(U64) }
func (c *Cache) F32() *Type  { return c.prim(F32) }
func (c *Cache) F64() *Type  { return c.prim(F64) }

// Ptr returns a pointer-to-pointee type sized to this cache's target.
func (c *Cache) Ptr(pointee *Type) *Type {
	return &Type{Kind: Ptr, Size: c.ptrSize, Align: c.ptrSize, Pointee: pointee}
}

// Array returns a fixed-length array type of count elements of elem.
func (c *Cache) Array(elem *Type, count int64) *Type {
	return &Type{Kind: Array, Size: elem.Size * count, Align: elem.Align, Elem: elem, Count: count}
}

// Struct lays out fields in declaration order: each field's offset is the
// running offset rounded up to the field's own alignment, and the struct's
// final size is padded up to its maximum field alignment. name may be
// empty for an anonymous struct. packed disables the alignment padding
// (both inter-field and trailing), matching a "packed struct" attribute.
func (c *Cache) Struct(name string, fieldTypes []*Type, fieldNames []string, packed bool) *Type {
	fields := make([]Field, len(fieldTypes))
	var offset, maxAlign int64 = 0, 1
	for i, ft := range fieldTypes {
		align := ft.Align
		if packed {
			align = 1
		}
		offset = alignUp(offset, align)
		fname := ""
		if i < len(fieldNames) {
			fname = fieldNames[i]
		}
		fields[i] = Field{Name: fname, Type: ft, Offset: offset}
		offset += ft.Size
		if align > maxAlign {
			maxAlign = align
		}
	}
	size := offset
	if !packed {
		size = alignUp(size, maxAlign)
	} else {
		maxAlign = 1
	}
	return &Type{Kind: Struct, Name: name, Fields: fields, Packed: packed, Size: size, Align: maxAlign}
}

// Func builds a function type. Function types carry no meaningful size.
func (c *Cache) Func(ret *Type, params []*Type, variadic bool) *Type {
	return &Type{Kind: Func, Ret: ret, Params: append([]*Type(nil), params...), Variadic: variadic}
}

func alignUp(v, align int64) int64 {
	if align <= 1 {
		return v
	}
	rem := v % align
	if rem == 0 {
		return v
	}
	return v + (align - rem)
}

// FieldByIndex returns the field at idx in a struct type's layout, or an
// error if idx is out of range. STRUCT_GEP construction uses this to fail
// fast on a bad field index rather than build an instruction with a
// dangling offset.
func FieldByIndex(t *Type, idx int) (Field, error) {
	if t.Kind != Struct {
		return Field{}, fmt.Errorf("anvil: struct_gep on non-struct type %s", t)
	}
	if idx < 0 || idx >= len(t.Fields) {
		return Field{}, fmt.Errorf("anvil: field index %d out of range for struct %s (%d fields)", idx, t, len(t.Fields))
	}
	return t.Fields[idx], nil
}
