// Printer support: a human-readable textual form of modules, functions,
// blocks, instructions, and values (module_to_string / the IR dump
// component of the spec). Format is ANVIL-specific, not tied to any
// particular assembler dialect.
package ir

import (
	"fmt"
	"io"
	"strings"
)

// Printer writes ANVIL IR modules in a human-readable textual form.
type Printer struct {
	w io.Writer
}

// NewPrinter creates a new IR printer.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// PrintModule writes m in its entirety: globals, then functions, in
// declaration order.
func (p *Printer) PrintModule(m *Module) {
	fmt.Fprintf(p.w, "; module %q\n", m.Name)
	for _, g := range m.Globals {
		p.printGlobal(g)
	}
	if len(m.Globals) > 0 {
		fmt.Fprintln(p.w)
	}
	for i, f := range m.Functions {
		p.PrintFunction(f)
		if i < len(m.Functions)-1 {
			fmt.Fprintln(p.w)
		}
	}
}

func (p *Printer) printGlobal(g *Global) {
	init := ""
	if g.Initializer != nil {
		init = " = " + g.Initializer.String()
	}
	fmt.Fprintf(p.w, "%s global %s @%s%s\n", g.Linkage, g.Type, g.Name, init)
}

// PrintFunction writes a single function: its signature, then each block
// in linked-list (textual) order.
func (p *Printer) PrintFunction(f *Function) {
	params := ""
	for i, pv := range f.Params {
		if i > 0 {
			params += ", "
		}
		params += fmt.Sprintf("%s %s", pv.Type, pv.String())
	}
	variadic := ""
	if f.Type.Variadic {
		if len(f.Params) > 0 {
			variadic = ", ..."
		} else {
			variadic = "..."
		}
	}
	kind := "define"
	if f.IsDeclaration {
		kind = "declare"
	}
	fmt.Fprintf(p.w, "%s %s %s @%s(%s%s) {\n", kind, f.Linkage, f.Type.Ret, f.Name, params, variadic)
	for _, b := range f.Blocks() {
		p.printBlock(b)
	}
	fmt.Fprintln(p.w, "}")
}

func (p *Printer) printBlock(b *BasicBlock) {
	fmt.Fprintf(p.w, "%s:\n", b.Name)
	for _, instr := range b.Instructions() {
		fmt.Fprint(p.w, "    ")
		p.printInstruction(instr)
		fmt.Fprintln(p.w)
	}
}

func (p *Printer) printInstruction(i *Instruction) {
	if i.Result != nil {
		fmt.Fprintf(p.w, "%s = ", i.Result.String())
	}
	switch i.Opcode {
	case OpAlloca:
		fmt.Fprintf(p.w, "alloca %s", i.AuxType)
	case OpLoad:
		fmt.Fprintf(p.w, "load %s, %s", i.AuxType, i.Operands[0])
	case OpStore:
		fmt.Fprintf(p.w, "store %s, %s", i.Operands[0], i.Operands[1])
	case OpGEP:
		fmt.Fprintf(p.w, "gep %s, %s", i.AuxType, i.Operands[0])
		for _, idx := range i.Operands[1:] {
			fmt.Fprintf(p.w, ", %s", idx)
		}
	case OpStructGEP:
		fmt.Fprintf(p.w, "struct_gep %s, %s, %d", i.AuxType, i.Operands[0], i.FieldIndex)
	case OpBr:
		fmt.Fprintf(p.w, "br %s", i.TrueBlock.Name)
	case OpBrCond:
		fmt.Fprintf(p.w, "br_cond %s, %s, %s", i.Operands[0], i.TrueBlock.Name, i.FalseBlock.Name)
	case OpCall:
		fmt.Fprintf(p.w, "call %s(", i.Callee)
		for idx, a := range i.Operands {
			if idx > 0 {
				fmt.Fprint(p.w, ", ")
			}
			fmt.Fprint(p.w, a)
		}
		fmt.Fprint(p.w, ")")
	case OpRet:
		if len(i.Operands) > 0 {
			fmt.Fprintf(p.w, "ret %s", i.Operands[0])
		} else {
			fmt.Fprint(p.w, "ret")
		}
	case OpSwitch:
		fmt.Fprintf(p.w, "switch %s, default %s [", i.Operands[0], i.SwitchDefault.Name)
		for idx, c := range i.SwitchCases {
			if idx > 0 {
				fmt.Fprint(p.w, ", ")
			}
			fmt.Fprintf(p.w, "%d: %s", c.Value, c.Block.Name)
		}
		fmt.Fprint(p.w, "]")
	case OpPhi:
		fmt.Fprint(p.w, "phi [")
		for idx := range i.PhiIncoming {
			if idx > 0 {
				fmt.Fprint(p.w, ", ")
			}
			fmt.Fprintf(p.w, "%s: %s", i.PhiBlocks[idx].Name, i.PhiIncoming[idx])
		}
		fmt.Fprint(p.w, "]")
	case OpSelect:
		fmt.Fprintf(p.w, "select %s, %s, %s", i.Operands[0], i.Operands[1], i.Operands[2])
	case OpFCmp:
		fmt.Fprintf(p.w, "fcmp %s %s, %s", i.Cond, i.Operands[0], i.Operands[1])
	case OpTrunc, OpZExt, OpSExt, OpFPTrunc, OpFPExt, OpFPToSI, OpFPToUI,
		OpSIToFP, OpUIToFP, OpPtrToInt, OpIntToPtr, OpBitcast:
		fmt.Fprintf(p.w, "%s %s to %s", i.Opcode, i.Operands[0], i.AuxType)
	case OpNop:
		fmt.Fprint(p.w, "nop")
	default:
		fmt.Fprintf(p.w, "%s", i.Opcode)
		for idx, op := range i.Operands {
			if idx > 0 {
				fmt.Fprint(p.w, ",")
			}
			fmt.Fprintf(p.w, " %s", op)
		}
	}
}

// String renders m to a string via PrintModule. Two consecutive calls on
// the same (unmutated) module return identical strings, matching the
// spec's round-trip property.
func (m *Module) String() string {
	var sb strings.Builder
	NewPrinter(&sb).PrintModule(m)
	return sb.String()
}
