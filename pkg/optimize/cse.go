package optimize

import "github.com/bencz/anvil-go/pkg/ir"

// cseKey identifies an instruction for local common-subexpression
// matching: its opcode plus up to two operands. Only pure, fixed-arity
// (<=2 operand) opcodes are considered - loads, calls, and anything with
// side effects are excluded by runCSE before a key is ever built.
type cseKey struct {
	op    ir.Opcode
	a, b  *ir.Value
	fcond ir.Condition
}

// runCSE performs local (per-block) common subexpression elimination:
// within one block, a later instruction identical to an earlier one
// (same opcode and operands, matching swapped operands for commutative
// opcodes) is rewritten to reuse the earlier result and marked NOP. Any
// STORE or CALL invalidates the whole table (spec §4.5: conservative
// memory model).
func runCSE(f *ir.Function) bool {
	changed := false
	for _, b := range f.Blocks() {
		table := make(map[cseKey]*ir.Value)
		for _, instr := range b.Instructions() {
			if instr.Opcode == ir.OpStore || instr.Opcode == ir.OpCall {
				table = make(map[cseKey]*ir.Value)
				continue
			}
			if !cseEligible(instr.Opcode) {
				continue
			}
			key, ok := makeCSEKey(instr)
			if !ok {
				continue
			}
			if prior, found := table[key]; found {
				replaceAllUses(f, instr.Result, prior)
				instr.MakeNop()
				changed = true
				continue
			}
			if instr.Result != nil {
				table[key] = instr.Result
			}
		}
	}
	return changed
}

func cseEligible(op ir.Opcode) bool {
	switch op {
	case ir.OpAdd, ir.OpSub, ir.OpMul, ir.OpSDiv, ir.OpUDiv, ir.OpSMod, ir.OpUMod,
		ir.OpAnd, ir.OpOr, ir.OpXor, ir.OpShl, ir.OpShr, ir.OpSar,
		ir.OpCmpEQ, ir.OpCmpNE, ir.OpCmpLT, ir.OpCmpLE, ir.OpCmpGT, ir.OpCmpGE,
		ir.OpCmpULT, ir.OpCmpULE, ir.OpCmpUGT, ir.OpCmpUGE,
		ir.OpFAdd, ir.OpFSub, ir.OpFMul, ir.OpFDiv, ir.OpFCmp,
		ir.OpNeg, ir.OpNot, ir.OpFNeg, ir.OpFAbs:
		return true
	}
	return false
}

func makeCSEKey(instr *ir.Instruction) (cseKey, bool) {
	switch len(instr.Operands) {
	case 1:
		return cseKey{op: instr.Opcode, a: instr.Operands[0], fcond: instr.Cond}, true
	case 2:
		a, b := instr.Operands[0], instr.Operands[1]
		if instr.Opcode.IsCommutative() && valueOrder(b) < valueOrder(a) {
			a, b = b, a
		}
		return cseKey{op: instr.Opcode, a: a, b: b, fcond: instr.Cond}, true
	}
	return cseKey{}, false
}

// valueOrder gives a stable (if arbitrary) total order over values so
// commutative operand matching can canonicalize operand order.
func valueOrder(v *ir.Value) int {
	return v.ID
}
