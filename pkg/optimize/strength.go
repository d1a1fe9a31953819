package optimize

import "github.com/bencz/anvil-go/pkg/ir"

// runStrengthReduction rewrites x*2^n into x<<n, and (for unsigned ops)
// x/2^n into x>>n and x%2^n into x&(2^n-1), leaving the rewritten
// instruction in place with a new opcode/operands so later passes (CSE,
// DCE) see it like any other instruction (spec §4.5: "Strength
// reduction").
func runStrengthReduction(f *ir.Function) bool {
	changed := false
	for _, b := range f.Blocks() {
		for _, instr := range b.Instructions() {
			if rewriteStrengthReduce(instr) {
				changed = true
			}
		}
	}
	return changed
}

func rewriteStrengthReduce(instr *ir.Instruction) bool {
	switch instr.Opcode {
	case ir.OpMul:
		lhs, rhs := instr.Operands[0], instr.Operands[1]
		if n, ok := asConstInt(rhs); ok {
			if shift, pow := isPowerOfTwo(n); pow {
				instr.Opcode = ir.OpShl
				instr.Operands = []*ir.Value{lhs, ir.ConstInt(rhs.Type, shift)}
				return true
			}
		}
		if n, ok := asConstInt(lhs); ok {
			if shift, pow := isPowerOfTwo(n); pow {
				instr.Opcode = ir.OpShl
				instr.Operands = []*ir.Value{rhs, ir.ConstInt(lhs.Type, shift)}
				return true
			}
		}
	case ir.OpUDiv:
		lhs, rhs := instr.Operands[0], instr.Operands[1]
		if n, ok := asConstInt(rhs); ok {
			if shift, pow := isPowerOfTwo(n); pow {
				instr.Opcode = ir.OpShr
				instr.Operands = []*ir.Value{lhs, ir.ConstInt(rhs.Type, shift)}
				return true
			}
		}
	case ir.OpUMod:
		lhs, rhs := instr.Operands[0], instr.Operands[1]
		if n, ok := asConstInt(rhs); ok {
			if _, pow := isPowerOfTwo(n); pow {
				instr.Opcode = ir.OpAnd
				instr.Operands = []*ir.Value{lhs, ir.ConstInt(rhs.Type, n-1)}
				return true
			}
		}
	}
	return false
}
