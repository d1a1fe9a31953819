package optimize

import "github.com/bencz/anvil-go/pkg/ir"

// runConstFold evaluates instructions whose operands are all constants,
// replaces their uses with the folded constant, and marks the original
// NOP (spec §4.5: "Constant folding").
func runConstFold(f *ir.Function) bool {
	changed := false
	for _, b := range f.Blocks() {
		for _, instr := range b.Instructions() {
			folded := foldInstruction(instr)
			if folded == nil {
				continue
			}
			if instr.Result != nil {
				replaceAllUses(f, instr.Result, folded)
			}
			instr.MakeNop()
			changed = true
		}
	}
	return changed
}

func asConstInt(v *ir.Value) (int64, bool) {
	if v.Kind == ir.ValConstInt {
		return v.IntVal, true
	}
	return 0, false
}

func asConstFloat(v *ir.Value) (float64, bool) {
	if v.Kind == ir.ValConstFloat {
		return v.FloatVal, true
	}
	return 0, false
}

// foldInstruction returns the constant value instr reduces to, or nil if
// instr isn't foldable (some operand isn't a constant, or the opcode has
// no constant-folding rule).
func foldInstruction(instr *ir.Instruction) *ir.Value {
	switch instr.Opcode {
	case ir.OpAdd, ir.OpSub, ir.OpMul, ir.OpSDiv, ir.OpUDiv, ir.OpSMod, ir.OpUMod,
		ir.OpAnd, ir.OpOr, ir.OpXor, ir.OpShl, ir.OpShr, ir.OpSar:
		a, ok1 := asConstInt(instr.Operands[0])
		b, ok2 := asConstInt(instr.Operands[1])
		if !ok1 || !ok2 {
			return nil
		}
		return foldIntBinop(instr, a, b)
	case ir.OpNeg:
		a, ok := asConstInt(instr.Operands[0])
		if !ok {
			return nil
		}
		return ir.ConstInt(instr.Result.Type, -a)
	case ir.OpNot:
		a, ok := asConstInt(instr.Operands[0])
		if !ok {
			return nil
		}
		return ir.ConstInt(instr.Result.Type, ^a)
	case ir.OpCmpEQ, ir.OpCmpNE, ir.OpCmpLT, ir.OpCmpLE, ir.OpCmpGT, ir.OpCmpGE,
		ir.OpCmpULT, ir.OpCmpULE, ir.OpCmpUGT, ir.OpCmpUGE:
		a, ok1 := asConstInt(instr.Operands[0])
		b, ok2 := asConstInt(instr.Operands[1])
		if !ok1 || !ok2 {
			return nil
		}
		return foldIntCompare(instr, a, b)
	case ir.OpFAdd, ir.OpFSub, ir.OpFMul, ir.OpFDiv:
		a, ok1 := asConstFloat(instr.Operands[0])
		b, ok2 := asConstFloat(instr.Operands[1])
		if !ok1 || !ok2 {
			return nil
		}
		return foldFloatBinop(instr, a, b)
	case ir.OpFNeg:
		a, ok := asConstFloat(instr.Operands[0])
		if !ok {
			return nil
		}
		return ir.ConstFloat(instr.Result.Type, -a)
	case ir.OpFAbs:
		a, ok := asConstFloat(instr.Operands[0])
		if !ok {
			return nil
		}
		if a < 0 {
			a = -a
		}
		return ir.ConstFloat(instr.Result.Type, a)
	}
	return nil
}

func foldIntBinop(instr *ir.Instruction, a, b int64) *ir.Value {
	ty := instr.Result.Type
	switch instr.Opcode {
	case ir.OpAdd:
		return ir.ConstInt(ty, a+b)
	case ir.OpSub:
		return ir.ConstInt(ty, a-b)
	case ir.OpMul:
		return ir.ConstInt(ty, a*b)
	case ir.OpSDiv:
		if b == 0 {
			return nil
		}
		return ir.ConstInt(ty, a/b)
	case ir.OpUDiv:
		if b == 0 {
			return nil
		}
		return ir.ConstInt(ty, int64(uint64(a)/uint64(b)))
	case ir.OpSMod:
		if b == 0 {
			return nil
		}
		return ir.ConstInt(ty, a%b)
	case ir.OpUMod:
		if b == 0 {
			return nil
		}
		return ir.ConstInt(ty, int64(uint64(a)%uint64(b)))
	case ir.OpAnd:
		return ir.ConstInt(ty, a&b)
	case ir.OpOr:
		return ir.ConstInt(ty, a|b)
	case ir.OpXor:
		return ir.ConstInt(ty, a^b)
	case ir.OpShl:
		return ir.ConstInt(ty, a<<uint64(b))
	case ir.OpShr:
		return ir.ConstInt(ty, int64(uint64(a)>>uint64(b)))
	case ir.OpSar:
		return ir.ConstInt(ty, a>>uint64(b))
	}
	return nil
}

func foldFloatBinop(instr *ir.Instruction, a, b float64) *ir.Value {
	ty := instr.Result.Type
	switch instr.Opcode {
	case ir.OpFAdd:
		return ir.ConstFloat(ty, a+b)
	case ir.OpFSub:
		return ir.ConstFloat(ty, a-b)
	case ir.OpFMul:
		return ir.ConstFloat(ty, a*b)
	case ir.OpFDiv:
		if b == 0 {
			return nil
		}
		return ir.ConstFloat(ty, a/b)
	}
	return nil
}

func foldIntCompare(instr *ir.Instruction, a, b int64) *ir.Value {
	ty := instr.Result.Type
	boolInt := func(v bool) *ir.Value {
		if v {
			return ir.ConstInt(ty, 1)
		}
		return ir.ConstInt(ty, 0)
	}
	switch instr.Opcode {
	case ir.OpCmpEQ:
		return boolInt(a == b)
	case ir.OpCmpNE:
		return boolInt(a != b)
	case ir.OpCmpLT:
		return boolInt(a < b)
	case ir.OpCmpLE:
		return boolInt(a <= b)
	case ir.OpCmpGT:
		return boolInt(a > b)
	case ir.OpCmpGE:
		return boolInt(a >= b)
	case ir.OpCmpULT:
		return boolInt(uint64(a) < uint64(b))
	case ir.OpCmpULE:
		return boolInt(uint64(a) <= uint64(b))
	case ir.OpCmpUGT:
		return boolInt(uint64(a) > uint64(b))
	case ir.OpCmpUGE:
		return boolInt(uint64(a) >= uint64(b))
	}
	return nil
}
