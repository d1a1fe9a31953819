package backend

import "github.com/bencz/anvil-go/pkg/ir"

// Frame is the per-function stack layout every backend builds before
// emitting code: one slot per instruction result (the accumulator/
// scratch-register scheme spec §4.7 calls for instead of competitive
// register allocation - every intermediate value round-trips through
// its own stack slot rather than staying live in a register across
// instructions) plus one slot per incoming parameter.
type Frame struct {
	WordSize    int64
	SlotOffset  map[*ir.Value]int64 // value -> offset from frame base, growing downward
	ParamOffset []int64             // parallel to f.Params
	Size        int64               // total bytes to reserve, already aligned
}

// BuildFrame walks every block of f once, in order, assigning each
// instruction result and each parameter a distinct word-sized slot.
// Values never share a slot (no liveness-based reuse): this keeps the
// lowering trivially correct at the cost of a larger frame, matching
// the spec's explicit non-goal of register/stack-slot allocation.
func BuildFrame(f *ir.Function, wordSize int64, align int64) *Frame {
	fr := &Frame{WordSize: wordSize, SlotOffset: make(map[*ir.Value]int64)}
	offset := int64(0)

	alloc := func() int64 {
		offset += wordSize
		return offset
	}

	fr.ParamOffset = make([]int64, len(f.Params))
	for i, p := range f.Params {
		o := alloc()
		fr.ParamOffset[i] = o
		fr.SlotOffset[p] = o
	}

	for _, b := range f.Blocks() {
		for _, instr := range b.Instructions() {
			if instr.Result != nil {
				fr.SlotOffset[instr.Result] = alloc()
			}
		}
	}

	if align > 0 {
		offset = alignUp(offset, align)
	}
	fr.Size = offset
	return fr
}

func alignUp(v, align int64) int64 {
	if align <= 1 {
		return v
	}
	return (v + align - 1) &^ (align - 1)
}

// SlotOf returns the frame offset for v, or 0 with ok=false for a
// value that never occupies a slot (constants, globals, block labels,
// function references).
func (fr *Frame) SlotOf(v *ir.Value) (int64, bool) {
	o, ok := fr.SlotOffset[v]
	return o, ok
}

// PhiCopies returns, for a branch from pred into succ, the (slot,
// incomingValue) pairs that must be written into succ's PHI slots
// before the branch is taken - the stack-slot scheme's replacement
// for SSA's implicit "the PHI reads whichever edge was taken", since
// here a PHI's result already lives in a fixed slot that every
// predecessor must fill in directly.
func PhiCopies(fr *Frame, pred, succ *ir.BasicBlock) []PhiCopy {
	var out []PhiCopy
	for i := succ.First(); i != nil; i = i.Next() {
		if i.Opcode != ir.OpPhi {
			continue
		}
		for idx, blk := range i.PhiBlocks {
			if blk == pred {
				out = append(out, PhiCopy{Slot: fr.SlotOffset[i.Result], Value: i.PhiIncoming[idx]})
			}
		}
	}
	return out
}

// PhiCopy is one (destination slot, source value) assignment a
// terminator must perform before transferring control.
type PhiCopy struct {
	Slot  int64
	Value *ir.Value
}
