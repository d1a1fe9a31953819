package ir

// BasicBlock owns a doubly-linked list of instructions and carries a
// stable id plus lazily-maintained predecessor/successor arrays. The
// function's block list (BasicBlock.next/prev) defines textual emission
// order.
type BasicBlock struct {
	ID   int
	Name string

	first, last *Instruction
	Preds       []*BasicBlock
	Succs       []*BasicBlock

	Func *Function

	prev, next *BasicBlock

	label *Value // ValBlockLabel Value usable as an operand
}

// Label returns the Value that names this block as a branch target.
func (b *BasicBlock) Label() *Value { return b.label }

// Next returns the following block in the function's block list.
func (b *BasicBlock) Next() *BasicBlock { return b.next }

// Prev returns the preceding block in the function's block list.
func (b *BasicBlock) Prev() *BasicBlock { return b.prev }

// First returns the block's first instruction, or nil if empty.
func (b *BasicBlock) First() *Instruction { return b.first }

// Last returns the block's last instruction, or nil if empty.
func (b *BasicBlock) Last() *Instruction { return b.last }

// Terminator returns the block's terminating instruction, or nil if the
// block is empty or (transiently, mid-construction) not yet terminated.
func (b *BasicBlock) Terminator() *Instruction {
	if b.last != nil && b.last.Opcode.IsTerminator() {
		return b.last
	}
	return nil
}

// IsTerminated reports whether the block already ends in a terminator.
func (b *BasicBlock) IsTerminated() bool {
	return b.Terminator() != nil
}

// Instructions returns the block's instructions in order. Callers that
// mutate the list mid-iteration (NOPing, unlinking) should capture Next()
// before doing so; this slice is a fresh copy.
func (b *BasicBlock) Instructions() []*Instruction {
	var out []*Instruction
	for i := b.first; i != nil; i = i.next {
		out = append(out, i)
	}
	return out
}

// Append links instr onto the end of b's instruction list.
func (b *BasicBlock) Append(instr *Instruction) {
	instr.block = b
	instr.prev = b.last
	instr.next = nil
	if b.last != nil {
		b.last.next = instr
	} else {
		b.first = instr
	}
	b.last = instr
}

// Remove unlinks instr from b's instruction list. Passes generally prefer
// Instruction.MakeNop to preserve identity across a rewrite; Remove is for
// CFG simplification, which genuinely deletes dead blocks/instructions.
func (b *BasicBlock) Remove(instr *Instruction) {
	if instr.prev != nil {
		instr.prev.next = instr.next
	} else {
		b.first = instr.next
	}
	if instr.next != nil {
		instr.next.prev = instr.prev
	} else {
		b.last = instr.prev
	}
	instr.prev, instr.next, instr.block = nil, nil, nil
}

// recomputePredsSuccs rebuilds every block's Preds/Succs in a function from
// terminator successors. Preds/Succs are maintained lazily (spec §3): the
// builder doesn't update them on every branch construction; callers
// (optimizer, backends) recompute before relying on them.
func recomputePredsSuccs(f *Function) {
	for b := f.firstBlock; b != nil; b = b.next {
		b.Preds = nil
		b.Succs = nil
	}
	for b := f.firstBlock; b != nil; b = b.next {
		term := b.Terminator()
		if term == nil {
			continue
		}
		for _, s := range term.Successors() {
			if s == nil {
				continue
			}
			b.Succs = append(b.Succs, s)
			s.Preds = append(s.Preds, b)
		}
	}
}
