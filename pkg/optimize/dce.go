package optimize

import "github.com/bencz/anvil-go/pkg/ir"

// runDCE removes instructions whose result has zero uses and whose
// opcode has no side effect (spec §4.5: "Dead code elimination").
// Terminators, STORE, and CALL are never removed even with zero uses on
// their result (CALL may have no result at all, but still has side
// effects).
func runDCE(f *ir.Function) bool {
	uses := countUses(f)
	changed := false
	for _, b := range f.Blocks() {
		for _, instr := range b.Instructions() {
			if instr.Opcode == ir.OpNop {
				continue
			}
			if instr.Opcode.HasSideEffect() {
				continue
			}
			if instr.Result == nil {
				continue
			}
			if uses[instr.Result] > 0 {
				continue
			}
			instr.MakeNop()
			changed = true
		}
	}
	return changed
}
