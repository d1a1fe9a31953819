package optimize

import "github.com/bencz/anvil-go/pkg/ir"

// countUses returns, for every value defined within f, how many operand
// slots (plain operands, phi incoming, callee) reference it. Values not
// present in the map have zero uses.
func countUses(f *ir.Function) map[*ir.Value]int {
	uses := make(map[*ir.Value]int)
	for _, b := range f.Blocks() {
		for _, instr := range b.Instructions() {
			for _, op := range instr.Operands {
				uses[op]++
			}
			for _, op := range instr.PhiIncoming {
				uses[op]++
			}
			if instr.Callee != nil {
				uses[instr.Callee]++
			}
		}
	}
	return uses
}

// replaceAllUses rewrites every operand (in every instruction of f) that
// points to old so it points to new instead.
func replaceAllUses(f *ir.Function, old, new *ir.Value) {
	for _, b := range f.Blocks() {
		for _, instr := range b.Instructions() {
			instr.ReplaceOperand(old, new)
			if instr.Callee == old {
				instr.Callee = new
			}
		}
	}
}

// isPowerOfTwo reports whether v is a positive power of two, and returns
// its log2 if so.
func isPowerOfTwo(v int64) (shift int64, ok bool) {
	if v <= 0 {
		return 0, false
	}
	if v&(v-1) != 0 {
		return 0, false
	}
	shift = 0
	for v > 1 {
		v >>= 1
		shift++
	}
	return shift, true
}
