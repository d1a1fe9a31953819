package optimize

import "github.com/bencz/anvil-go/pkg/ir"

// runCopyProp implements both "algebraic identities" and "copy
// propagation" from spec §4.5: for an instruction that computes the
// identity of one of its operands (x+0, x*1, x|0, x&~0, x^0, x<<0, x>>0,
// x&x) or a constant independent of its operands' values (x*0, x-x,
// x^x), it rewrites every later use of the result directly to that
// value and marks the instruction NOP. DCE is expected to run afterward
// to remove anything this leaves dead.
func runCopyProp(f *ir.Function) bool {
	changed := false
	for _, b := range f.Blocks() {
		for _, instr := range b.Instructions() {
			if instr.Result == nil || instr.Opcode == ir.OpNop {
				continue
			}
			repl := identityReplacement(instr)
			if repl == nil {
				continue
			}
			replaceAllUses(f, instr.Result, repl)
			instr.MakeNop()
			changed = true
		}
	}
	return changed
}

// identityReplacement returns the value instr's result can be replaced
// with everywhere, or nil if instr isn't one of the recognized identity
// shapes.
func identityReplacement(instr *ir.Instruction) *ir.Value {
	switch instr.Opcode {
	case ir.OpAdd, ir.OpOr, ir.OpXor:
		lhs, rhs := instr.Operands[0], instr.Operands[1]
		if isIntConst(rhs, 0) {
			return lhs
		}
		if isIntConst(lhs, 0) {
			return rhs
		}
		if instr.Opcode == ir.OpXor && sameInstrOperand(lhs, rhs) {
			return ir.ConstInt(instr.Result.Type, 0)
		}
	case ir.OpSub:
		lhs, rhs := instr.Operands[0], instr.Operands[1]
		if isIntConst(rhs, 0) {
			return lhs
		}
		if sameInstrOperand(lhs, rhs) {
			return ir.ConstInt(instr.Result.Type, 0)
		}
	case ir.OpMul:
		lhs, rhs := instr.Operands[0], instr.Operands[1]
		if isIntConst(rhs, 1) {
			return lhs
		}
		if isIntConst(lhs, 1) {
			return rhs
		}
		if isIntConst(rhs, 0) || isIntConst(lhs, 0) {
			return ir.ConstInt(instr.Result.Type, 0)
		}
	case ir.OpAnd:
		lhs, rhs := instr.Operands[0], instr.Operands[1]
		if isAllOnes(rhs) {
			return lhs
		}
		if isAllOnes(lhs) {
			return rhs
		}
		if sameInstrOperand(lhs, rhs) {
			return lhs
		}
	case ir.OpShl, ir.OpShr, ir.OpSar:
		lhs, rhs := instr.Operands[0], instr.Operands[1]
		if isIntConst(rhs, 0) {
			return lhs
		}
	}
	return nil
}

func isIntConst(v *ir.Value, want int64) bool {
	n, ok := asConstInt(v)
	return ok && n == want
}

func isAllOnes(v *ir.Value) bool {
	n, ok := asConstInt(v)
	return ok && n == -1
}

// sameInstrOperand reports whether a and b are the very same value
// (pointer identity), i.e. "x op x".
func sameInstrOperand(a, b *ir.Value) bool {
	return a == b
}
