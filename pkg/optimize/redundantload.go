package optimize

import "github.com/bencz/anvil-go/pkg/ir"

// runRedundantLoad eliminates a LOAD whose pointer operand is the exact
// same value (pointer identity, not alias analysis) as an earlier LOAD
// in the same block, provided no STORE or CALL appears between them
// (spec §4.5: "Redundant load elimination", conservative memory model -
// any STORE or CALL invalidates every tracked address, and two distinct
// ALLOCA results are never considered aliasing since each ALLOCA
// produces a fresh, disjoint stack slot).
func runRedundantLoad(f *ir.Function) bool {
	changed := false
	for _, b := range f.Blocks() {
		live := make(map[*ir.Value]*ir.Value)
		for _, instr := range b.Instructions() {
			switch instr.Opcode {
			case ir.OpStore, ir.OpCall:
				live = make(map[*ir.Value]*ir.Value)
			case ir.OpLoad:
				ptr := instr.Operands[0]
				if prior, ok := live[ptr]; ok {
					replaceAllUses(f, instr.Result, prior)
					instr.MakeNop()
					changed = true
					continue
				}
				live[ptr] = instr.Result
			}
		}
	}
	return changed
}
