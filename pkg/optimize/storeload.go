package optimize

import "github.com/bencz/anvil-go/pkg/ir"

// runStoreLoadForward rewrites a LOAD that follows, in the same block
// and with no other STORE or CALL in between, a STORE to the identical
// pointer value into a direct use of the stored value, skipping the memory round trip (spec
// §4.5: "Store-to-load forwarding"). Only the single most recent STORE
// per pointer is tracked per block; any other STORE or a CALL clears
// the whole table, matching the conservative model runRedundantLoad and
// runCSE use.
func runStoreLoadForward(f *ir.Function) bool {
	changed := false
	for _, b := range f.Blocks() {
		stored := make(map[*ir.Value]*ir.Value)
		for _, instr := range b.Instructions() {
			switch instr.Opcode {
			case ir.OpCall:
				stored = make(map[*ir.Value]*ir.Value)
			case ir.OpStore:
				val, ptr := instr.Operands[0], instr.Operands[1]
				stored = make(map[*ir.Value]*ir.Value)
				stored[ptr] = val
			case ir.OpLoad:
				ptr := instr.Operands[0]
				if val, ok := stored[ptr]; ok {
					replaceAllUses(f, instr.Result, val)
					instr.MakeNop()
					changed = true
				}
			}
		}
	}
	return changed
}
