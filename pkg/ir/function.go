package ir

import "github.com/bencz/anvil-go/pkg/types"

// Function holds a linked list of blocks starting with an auto-created
// entry block, one parameter Value per declared parameter, and the
// frame-layout numbers backends fill in during codegen.
type Function struct {
	Name    string
	Linkage Linkage
	Type    *types.Type // Func type: Ret, Params, Variadic
	Params  []*Value

	firstBlock, lastBlock *BasicBlock
	entry                 *BasicBlock

	value         *Value // ValFunc Value usable as a call operand
	IsDeclaration bool

	Module *Module

	// Filled in by backend codegen (spec §4.7 step 1).
	StackFrameSize      int64
	MaxOutgoingArgSlots int

	nextBlockID int
}

// Value returns the Value that names this function (used as a CALL
// callee or taken as an address).
func (f *Function) Value() *Value { return f.value }

// Entry returns the function's entry block.
func (f *Function) Entry() *BasicBlock { return f.entry }

// Blocks returns the function's blocks in textual (linked-list) order.
func (f *Function) Blocks() []*BasicBlock {
	var out []*BasicBlock
	for b := f.firstBlock; b != nil; b = b.next {
		out = append(out, b)
	}
	return out
}

// Param returns the i'th parameter value, matching func_get_param.
func (f *Function) Param(i int) *Value {
	if i < 0 || i >= len(f.Params) {
		return nil
	}
	return f.Params[i]
}

// newFunction constructs a function of the given name/type/linkage. When
// declOnly is true no entry block is created (an extern has no body).
func newFunction(name string, ty *types.Type, linkage Linkage, declOnly bool) *Function {
	f := &Function{Name: name, Type: ty, Linkage: linkage, IsDeclaration: declOnly}
	f.value = &Value{Kind: ValFunc, Type: ty, Fn: f, ID: nextValueID()}
	f.Params = make([]*Value, len(ty.Params))
	for i, pt := range ty.Params {
		f.Params[i] = &Value{Kind: ValParam, Type: pt, Param: i, ID: nextValueID()}
	}
	if !declOnly {
		f.entry = f.NewBlock("entry")
	}
	return f
}

// NewBlock appends a new, empty block named name to the function. It does
// not move the builder cursor (spec §4.3): the caller must explicitly
// SetInsertPoint to it.
func (f *Function) NewBlock(name string) *BasicBlock {
	f.nextBlockID++
	b := &BasicBlock{ID: f.nextBlockID, Name: name, Func: f}
	b.label = &Value{Kind: ValBlockLabel, Label: b, ID: nextValueID()}
	b.prev = f.lastBlock
	if f.lastBlock != nil {
		f.lastBlock.next = b
	} else {
		f.firstBlock = b
	}
	f.lastBlock = b
	return b
}

// RecomputeCFG rebuilds predecessor/successor links for every block from
// terminator successors.
func (f *Function) RecomputeCFG() { recomputePredsSuccs(f) }

// RemoveBlock unlinks b from the function's block list. Callers must
// first retarget any branch still referencing b; RemoveBlock does not
// touch other blocks' instructions. The entry block cannot be removed.
func (f *Function) RemoveBlock(b *BasicBlock) {
	if b == f.entry {
		return
	}
	if b.prev != nil {
		b.prev.next = b.next
	} else {
		f.firstBlock = b.next
	}
	if b.next != nil {
		b.next.prev = b.prev
	} else {
		f.lastBlock = b.prev
	}
	b.prev, b.next = nil, nil
}
