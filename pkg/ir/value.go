package ir

import (
	"fmt"

	"github.com/bencz/anvil-go/pkg/types"
)

// ValueKind discriminates the tagged Value variant (spec §3).
type ValueKind int

const (
	ValConstInt ValueKind = iota
	ValConstFloat
	ValConstNull
	ValConstString
	ValConstArray
	ValGlobal
	ValFunc
	ValParam
	ValInstrResult
	ValBlockLabel
)

// Value is ANVIL's single value representation: constants, globals,
// function references, parameters, instruction results, and block labels
// all share this type, discriminated by Kind. Which payload fields are
// meaningful depends entirely on Kind; see the comment on each field.
type Value struct {
	Kind ValueKind
	Type *types.Type
	Name string
	ID   int

	IntVal    int64    // ValConstInt
	FloatVal  float64  // ValConstFloat
	StringVal []byte   // ValConstString
	Elems     []*Value // ValConstArray

	Global *Global // ValGlobal
	Fn     *Function // ValFunc
	Param  int       // ValParam: index into Function.Params

	Instr *Instruction // ValInstrResult: defining instruction
	Label *BasicBlock  // ValBlockLabel: referenced block (non-owning)
}

func (v *Value) String() string {
	if v == nil {
		return "<nil>"
	}
	switch v.Kind {
	case ValConstInt:
		return fmt.Sprintf("%d", v.IntVal)
	case ValConstFloat:
		return fmt.Sprintf("%g", v.FloatVal)
	case ValConstNull:
		return "null"
	case ValConstString:
		return fmt.Sprintf("%q", string(v.StringVal))
	case ValConstArray:
		return "const_array"
	case ValGlobal:
		return "@" + v.Global.Name
	case ValFunc:
		return "@" + v.Fn.Name
	case ValParam:
		if v.Name != "" {
			return "%" + v.Name
		}
		return fmt.Sprintf("%%arg%d", v.Param)
	case ValInstrResult:
		if v.Name != "" {
			return "%" + v.Name
		}
		return fmt.Sprintf("%%t%d", v.ID)
	case ValBlockLabel:
		return v.Label.Name
	}
	return "?"
}

// IsConstant reports whether v was produced by a constant factory (as
// opposed to being computed at run time).
func (v *Value) IsConstant() bool {
	switch v.Kind {
	case ValConstInt, ValConstFloat, ValConstNull, ValConstString, ValConstArray:
		return true
	}
	return false
}

// Global wraps a module-level value: its declared type, an optional
// initializer, and linkage. Function declarations/definitions use
// Function, not Global; Global is for data.
type Global struct {
	Name        string
	Type        *types.Type
	Initializer *Value
	Linkage     Linkage
	Value       *Value // the ValGlobal Value usable as an operand
}

// Linkage controls how a symbol is visible across translation units.
type Linkage int

const (
	LinkageInternal Linkage = iota
	LinkageExternal
	LinkageWeak
	LinkageCommon
)

func (l Linkage) String() string {
	switch l {
	case LinkageInternal:
		return "internal"
	case LinkageExternal:
		return "external"
	case LinkageWeak:
		return "weak"
	case LinkageCommon:
		return "common"
	}
	return "?"
}

// nextValueID assigns a process-local monotonically increasing id to
// every value this package and the builder mint, mirroring the "numeric id" field the
// spec assigns every Value.
var globalValueCounter int

func nextValueID() int {
	globalValueCounter++
	return globalValueCounter
}

// NextValueID mints the next id in the shared value-numbering sequence.
// Exported for callers outside this package (the builder) that construct
// Value literals directly instead of going through a factory here.
func NextValueID() int { return nextValueID() }

// ConstInt builds a ValConstInt value of type ty.
func ConstInt(ty *types.Type, v int64) *Value {
	return &Value{Kind: ValConstInt, Type: ty, IntVal: v, ID: nextValueID()}
}

// ConstFloat builds a ValConstFloat value of type ty.
func ConstFloat(ty *types.Type, v float64) *Value {
	return &Value{Kind: ValConstFloat, Type: ty, FloatVal: v, ID: nextValueID()}
}

// ConstNull builds a null pointer constant of pointer type ptrTy.
func ConstNull(ptrTy *types.Type) *Value {
	return &Value{Kind: ValConstNull, Type: ptrTy, ID: nextValueID()}
}

// ConstString builds a string-literal constant. Interning into the
// module's label table happens at emission time (module.InternStrings),
// not here: two calls with identical contents yield distinct Value
// objects that the interner later maps to the same label.
func ConstString(ty *types.Type, data []byte) *Value {
	cp := append([]byte(nil), data...)
	return &Value{Kind: ValConstString, Type: ty, StringVal: cp, ID: nextValueID()}
}

// ConstArray builds a constant aggregate of elems, all of element type ty.
func ConstArray(arrTy *types.Type, elems []*Value) *Value {
	return &Value{Kind: ValConstArray, Type: arrTy, Elems: append([]*Value(nil), elems...), ID: nextValueID()}
}
