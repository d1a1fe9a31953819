package optimize

import "github.com/bencz/anvil-go/pkg/ir"

// runCFGSimplify implements spec §4.5's "CFG simplification": fold a
// BR_COND whose condition is a constant into an unconditional BR, splice
// out blocks that contain nothing but an unconditional BR (bypassing
// them to their successor), drop blocks unreachable from entry, and
// merge a block into its single predecessor when that predecessor has
// no other successor. Each of the four rewrites can expose another, so
// the pass repeats until a full sweep makes no further change; the
// pipeline's own fixpoint loop (optimize.go) additionally re-runs this
// pass alongside the others.
func runCFGSimplify(f *ir.Function) bool {
	changed := false
	for {
		f.RecomputeCFG()
		sweep := false
		if foldConstantBranches(f) {
			sweep = true
		}
		f.RecomputeCFG()
		if bypassEmptyBlocks(f) {
			sweep = true
		}
		f.RecomputeCFG()
		if removeUnreachableBlocks(f) {
			sweep = true
		}
		f.RecomputeCFG()
		if mergeSinglePredecessors(f) {
			sweep = true
		}
		if !sweep {
			break
		}
		changed = true
	}
	return changed
}

func foldConstantBranches(f *ir.Function) bool {
	changed := false
	for _, b := range f.Blocks() {
		term := b.Terminator()
		if term == nil || term.Opcode != ir.OpBrCond {
			continue
		}
		n, ok := asConstInt(term.Operands[0])
		if !ok {
			continue
		}
		target := term.FalseBlock
		if n != 0 {
			target = term.TrueBlock
		}
		term.Opcode = ir.OpBr
		term.Operands = nil
		term.TrueBlock = target
		term.FalseBlock = nil
		changed = true
	}
	return changed
}

// bypassEmptyBlocks retargets any branch into a block whose entire body
// is a single unconditional BR, pointing directly at that BR's target.
// The bypassed block is left in place with no predecessors;
// removeUnreachableBlocks deletes it. Never bypasses the entry block (it has no
// predecessor edge to retarget) or a block that is itself a PHI target
// carrying distinct incoming values per predecessor (PHI blocks are
// left alone; mergeSinglePredecessors handles the safe cases of those).
func bypassEmptyBlocks(f *ir.Function) bool {
	changed := false
	for _, b := range f.Blocks() {
		if b == f.Entry() {
			continue
		}
		if b.First() == nil || b.First() != b.Last() {
			continue
		}
		only := b.First()
		if only.Opcode != ir.OpBr {
			continue
		}
		if hasPhi(only.TrueBlock) {
			continue
		}
		target := only.TrueBlock
		if target == b {
			continue
		}
		for _, pred := range append([]*ir.BasicBlock(nil), b.Preds...) {
			retargetBlock(pred.Terminator(), b, target)
			changed = true
		}
	}
	return changed
}

func hasPhi(b *ir.BasicBlock) bool {
	for i := b.First(); i != nil; i = i.Next() {
		if i.Opcode == ir.OpPhi {
			return true
		}
	}
	return false
}

func retargetBlock(term *ir.Instruction, old, new *ir.BasicBlock) {
	if term == nil {
		return
	}
	if term.TrueBlock == old {
		term.TrueBlock = new
	}
	if term.FalseBlock == old {
		term.FalseBlock = new
	}
	if term.SwitchDefault == old {
		term.SwitchDefault = new
	}
	for i := range term.SwitchCases {
		if term.SwitchCases[i].Block == old {
			term.SwitchCases[i].Block = new
		}
	}
}

// removeUnreachableBlocks deletes every block not reachable from entry
// by a DFS over terminator successors.
func removeUnreachableBlocks(f *ir.Function) bool {
	reachable := map[*ir.BasicBlock]bool{f.Entry(): true}
	stack := []*ir.BasicBlock{f.Entry()}
	for len(stack) > 0 {
		b := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		term := b.Terminator()
		if term == nil {
			continue
		}
		for _, s := range term.Successors() {
			if s != nil && !reachable[s] {
				reachable[s] = true
				stack = append(stack, s)
			}
		}
	}
	changed := false
	for _, b := range f.Blocks() {
		if !reachable[b] {
			f.RemoveBlock(b)
			changed = true
		}
	}
	return changed
}

// mergeSinglePredecessors folds a block into its sole predecessor when
// that predecessor's only successor is this block: the predecessor's
// terminator is discarded, this block's instructions are appended in
// its place, and the block itself is removed from the function.
func mergeSinglePredecessors(f *ir.Function) bool {
	changed := false
	for _, b := range f.Blocks() {
		if b == f.Entry() {
			continue
		}
		if len(b.Preds) != 1 {
			continue
		}
		pred := b.Preds[0]
		if len(pred.Succs) != 1 || hasPhi(b) {
			continue
		}
		predTerm := pred.Terminator()
		if predTerm == nil || predTerm.Opcode != ir.OpBr {
			continue
		}
		pred.Remove(predTerm)
		for _, instr := range b.Instructions() {
			b.Remove(instr)
			pred.Append(instr)
		}
		f.RemoveBlock(b)
		changed = true
	}
	return changed
}
