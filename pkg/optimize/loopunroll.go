package optimize

import "github.com/bencz/anvil-go/pkg/ir"

// maxUnrollTripCount bounds how large a constant-trip-count loop this
// pass will actually unroll; anything larger is left as a loop (spec
// §9 leaves the general policy open - this pass resolves it for the
// one shape it can prove safe and small, and otherwise leaves the loop
// to be detected again the next sweep without ever fully unwinding a
// loop a programmer meant to keep as a loop).
const maxUnrollTripCount = 8

// runLoopUnroll finds the single-block "rotated" counted-loop shape - a
// block whose lone PHI carries a constant initial value from outside
// the loop and a next value computed by a constant-step ADD fed back
// from the block's own conditional branch to itself - and, when the
// trip count is a small compile-time constant, clones the body once per
// iteration with the induction variable replaced by its per-iteration
// constant, then rewires the loop away entirely. Any other loop shape
// (multi-block body, non-constant bound, non-ADD step, or a trip count
// above maxUnrollTripCount) is left untouched.
func runLoopUnroll(f *ir.Function) bool {
	changed := false
	for _, b := range f.Blocks() {
		if tryUnrollBlock(f, b) {
			changed = true
		}
	}
	if changed {
		f.RecomputeCFG()
	}
	return changed
}

func tryUnrollBlock(f *ir.Function, header *ir.BasicBlock) bool {
	phi := singlePhi(header)
	if phi == nil || len(phi.PhiBlocks) != 2 {
		return false
	}
	term := header.Terminator()
	if term == nil || term.Opcode != ir.OpBrCond {
		return false
	}
	var exit *ir.BasicBlock
	switch {
	case term.TrueBlock == header:
		exit = term.FalseBlock
	case term.FalseBlock == header:
		exit = term.TrueBlock
	default:
		return false
	}
	if exit == header {
		return false
	}

	initVal, nextVal, ok := phiSelfLoopOperands(phi, header)
	if !ok {
		return false
	}
	init, ok := asConstInt(initVal)
	if !ok {
		return false
	}

	incr := findProducer(header, nextVal)
	if incr == nil || incr.Opcode != ir.OpAdd {
		return false
	}
	step, ok := stepFromAdd(incr, phi.Result)
	if !ok || step == 0 {
		return false
	}

	cond, lhsIsIV, bound, ok := compareAgainstConst(term.Operands[0], header, phi.Result)
	if !ok {
		return false
	}

	trip, ok := constantTripCount(init, step, bound, cond, lhsIsIV, term.TrueBlock == header)
	if !ok || trip <= 0 || trip > maxUnrollTripCount {
		return false
	}

	body := bodyInstructions(header, phi, incr, term)
	unrollLoopBody(f, header, exit, phi, incr, term, body, init, step, trip)
	return true
}

func singlePhi(b *ir.BasicBlock) *ir.Instruction {
	var found *ir.Instruction
	for i := b.First(); i != nil; i = i.Next() {
		if i.Opcode == ir.OpPhi {
			if found != nil {
				return nil
			}
			found = i
		}
	}
	return found
}

// phiSelfLoopOperands returns (valueFromOutside, valueFromSelfEdge, ok)
// for a 2-incoming PHI where exactly one incoming block is header itself.
func phiSelfLoopOperands(phi *ir.Instruction, header *ir.BasicBlock) (*ir.Value, *ir.Value, bool) {
	var outside, self *ir.Value
	sawSelf := false
	for idx, blk := range phi.PhiBlocks {
		if blk == header {
			self = phi.PhiIncoming[idx]
			sawSelf = true
		} else {
			outside = phi.PhiIncoming[idx]
		}
	}
	if !sawSelf || outside == nil || self == nil {
		return nil, nil, false
	}
	return outside, self, true
}

func findProducer(b *ir.BasicBlock, v *ir.Value) *ir.Instruction {
	if v == nil || v.Kind != ir.ValInstrResult {
		return nil
	}
	for i := b.First(); i != nil; i = i.Next() {
		if i.Result == v {
			return i
		}
	}
	return nil
}

func stepFromAdd(add *ir.Instruction, iv *ir.Value) (int64, bool) {
	lhs, rhs := add.Operands[0], add.Operands[1]
	if lhs == iv {
		return asConstInt(rhs)
	}
	if rhs == iv {
		return asConstInt(lhs)
	}
	return 0, false
}

// compareAgainstConst recognizes `iv CMP const` or `const CMP iv` where
// the comparison feeds term's condition directly.
func compareAgainstConst(condVal *ir.Value, header *ir.BasicBlock, iv *ir.Value) (cond ir.Condition, lhsIsIV bool, bound int64, ok bool) {
	cmp := findProducer(header, condVal)
	if cmp == nil {
		return 0, false, 0, false
	}
	c, unsigned, isCmp := ir.ConditionFromCmpOpcode(cmp.Opcode)
	if !isCmp {
		return 0, false, 0, false
	}
	_ = unsigned
	lhs, rhs := cmp.Operands[0], cmp.Operands[1]
	if lhs == iv {
		b, ok2 := asConstInt(rhs)
		return c, true, b, ok2
	}
	if rhs == iv {
		b, ok2 := asConstInt(lhs)
		return c, false, b, ok2
	}
	return 0, false, 0, false
}

// constantTripCount computes how many times the loop body executes
// before the branch back to header is no longer taken, given the
// induction variable starts at init, steps by step each iteration, and
// is compared against bound with cond. continueOnTrue reports whether
// the header's TrueBlock (vs FalseBlock) is the self-edge, i.e. whether
// the branch continues the loop when the comparison is true.
func constantTripCount(init, step, bound int64, cond ir.Condition, lhsIsIV, continueOnTrue bool) (int64, bool) {
	if step == 0 {
		return 0, false
	}
	iv := init
	for n := int64(0); n <= maxUnrollTripCount; n++ {
		lhs, rhs := iv, bound
		if !lhsIsIV {
			lhs, rhs = bound, iv
		}
		taken := evalCondition(cond, lhs, rhs)
		willLoop := taken == continueOnTrue
		if !willLoop {
			// The body already ran for this value of iv before the
			// comparison sent control to exit.
			return n + 1, true
		}
		iv += step
	}
	return 0, false
}

func evalCondition(cond ir.Condition, a, b int64) bool {
	switch cond {
	case ir.Ceq:
		return a == b
	case ir.Cne:
		return a != b
	case ir.Clt:
		return a < b
	case ir.Cle:
		return a <= b
	case ir.Cgt:
		return a > b
	case ir.Cge:
		return a >= b
	}
	return false
}

// bodyInstructions returns header's instructions excluding the PHI, the
// induction increment, and the terminating BR_COND - the part that gets
// cloned once per iteration.
func bodyInstructions(header *ir.BasicBlock, phi, incr, term *ir.Instruction) []*ir.Instruction {
	var out []*ir.Instruction
	for i := header.First(); i != nil; i = i.Next() {
		if i == phi || i == incr || i == term {
			continue
		}
		out = append(out, i)
	}
	return out
}

// unrollLoopBody replaces header with trip fresh blocks, one per
// iteration, each a straight-line copy of body with the induction
// variable substituted by its constant value for that iteration, then
// branches to exit. header itself becomes the first iteration's block
// (so existing predecessors of header need no retargeting) and any
// extra iterations are appended as new blocks before exit.
func unrollLoopBody(f *ir.Function, header, exit *ir.BasicBlock, phi, incr, term *ir.Instruction, body []*ir.Instruction, init, step, trip int64) {
	ivTy := phi.Result.Type
	blocks := make([]*ir.BasicBlock, trip)
	blocks[0] = header
	for n := int64(1); n < trip; n++ {
		blocks[n] = f.NewBlock(header.Name + ".unroll")
	}

	header.Remove(phi)
	header.Remove(incr)
	header.Remove(term)

	for n := int64(0); n < trip; n++ {
		blk := blocks[n]
		ivConst := ir.ConstInt(ivTy, init+step*n)
		remap := map[*ir.Value]*ir.Value{phi.Result: ivConst}
		cloneBodyInto(blk, body, remap, blk == header)
		next := exit
		if n+1 < trip {
			next = blocks[n+1]
		}
		blk.Append(&ir.Instruction{Opcode: ir.OpBr, TrueBlock: next})
	}
}

// cloneBodyInto appends a copy of body to blk, rewriting operand
// references through remap (the induction variable's constant binding
// plus each iteration's freshly cloned results). When intoHeader is
// true the originals are first unlinked from header since blk==header
// reuses the same block.
func cloneBodyInto(blk *ir.BasicBlock, body []*ir.Instruction, remap map[*ir.Value]*ir.Value, intoHeader bool) {
	if intoHeader {
		for _, instr := range body {
			blk.Remove(instr)
		}
	}
	for _, instr := range body {
		clone := cloneInstruction(instr, remap)
		blk.Append(clone)
		if instr.Result != nil {
			remap[instr.Result] = clone.Result
		}
	}
}

func cloneInstruction(instr *ir.Instruction, remap map[*ir.Value]*ir.Value) *ir.Instruction {
	c := instr.CloneShallow()
	c.Operands = remapValues(instr.Operands, remap)
	if instr.Result != nil {
		c.Result = &ir.Value{Kind: instr.Result.Kind, Type: instr.Result.Type, Name: instr.Result.Name, ID: ir.NextValueID()}
	}
	return c
}

func remapValues(vs []*ir.Value, remap map[*ir.Value]*ir.Value) []*ir.Value {
	if vs == nil {
		return nil
	}
	out := make([]*ir.Value, len(vs))
	for i, v := range vs {
		if rv, ok := remap[v]; ok {
			out[i] = rv
		} else {
			out[i] = v
		}
	}
	return out
}
