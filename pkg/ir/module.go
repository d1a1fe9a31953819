package ir

import (
	"fmt"

	"github.com/bencz/anvil-go/pkg/types"
)

// Module is a linked collection of functions and globals plus a
// string-literal table used to deduplicate string constants. The
// "owning context pointer" from the spec's data model is represented
// here as just the pointer size the module was created for: Go's garbage
// collector makes the rest of the ownership graph (context -> module ->
// function -> block -> instruction) self-managing, so ctx_destroy /
// module_destroy have no work to do beyond dropping references.
type Module struct {
	Name      string
	PtrSize   int64
	Functions []*Function
	Globals   []*Global

	strTable  map[string]int // content -> label index, built by InternStrings
	strOrder  []string       // insertion order, for deterministic emission
}

// NewModule creates an empty module. ptrSize should match the context's
// current target; it is recorded as PtrSize, and nothing in this package
// reads it.
func NewModule(name string, ptrSize int64) *Module {
	return &Module{Name: name, PtrSize: ptrSize}
}

// NewFunction defines a function with a body (an entry block is created
// automatically) and appends it to the module.
func (m *Module) NewFunction(name string, ty *types.Type, linkage Linkage) *Function {
	f := newFunction(name, ty, linkage, false)
	f.Module = m
	m.Functions = append(m.Functions, f)
	return f
}

// Declare adds an extern function declaration (no body) to the module.
func (m *Module) Declare(name string, ty *types.Type) *Function {
	f := newFunction(name, ty, LinkageExternal, true)
	f.Module = m
	m.Functions = append(m.Functions, f)
	return f
}

// AddGlobal adds a global variable of the given type and linkage.
func (m *Module) AddGlobal(name string, ty *types.Type, linkage Linkage) *Global {
	g := &Global{Name: name, Type: ty, Linkage: linkage}
	g.Value = &Value{Kind: ValGlobal, Type: ty, Global: g, Name: name, ID: nextValueID()}
	m.Globals = append(m.Globals, g)
	return g
}

// SetInitializer attaches (or replaces) a global's initializer value.
func (m *Module) SetInitializer(g *Global, init *Value) {
	g.Initializer = init
}

// InternStrings assigns a stable label to every distinct string-literal
// byte sequence reachable from the module (global initializers and
// instruction operands), deduplicating by content through a map plus an
// insertion-order slice. It is idempotent: running it twice never grows the
// table. Backends call this once before emission.
func (m *Module) InternStrings() {
	if m.strTable == nil {
		m.strTable = make(map[string]int)
	}
	intern := func(v *Value) {
		if v == nil || v.Kind != ValConstString {
			return
		}
		key := string(v.StringVal)
		if _, ok := m.strTable[key]; !ok {
			m.strTable[key] = len(m.strOrder)
			m.strOrder = append(m.strOrder, key)
		}
	}
	for _, g := range m.Globals {
		intern(g.Initializer)
	}
	for _, f := range m.Functions {
		for _, b := range f.Blocks() {
			for _, instr := range b.Instructions() {
				for _, op := range instr.Operands {
					intern(op)
				}
				for _, op := range instr.PhiIncoming {
					intern(op)
				}
			}
		}
	}
}

// StringLabel returns the emission label for a previously-interned
// string's contents, e.g. "L.str.3". Panics if InternStrings was never
// run or the content wasn't found, since that indicates a backend bug
// (internal error, not a user-facing one) rather than bad input.
func (m *Module) StringLabel(v *Value) string {
	if v.Kind != ValConstString {
		panic("anvil: StringLabel on non-string value")
	}
	idx, ok := m.strTable[string(v.StringVal)]
	if !ok {
		panic("anvil: string constant used before InternStrings")
	}
	return fmt.Sprintf("L.str.%d", idx)
}

// InternedStrings returns every distinct string and its label, in
// insertion order, for a backend's data-section emission pass.
func (m *Module) InternedStrings() []struct {
	Label string
	Data  []byte
} {
	out := make([]struct {
		Label string
		Data  []byte
	}, len(m.strOrder))
	for i, s := range m.strOrder {
		out[i] = struct {
			Label string
			Data  []byte
		}{Label: fmt.Sprintf("L.str.%d", i), Data: []byte(s)}
	}
	return out
}
