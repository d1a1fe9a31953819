package ir

import "github.com/bencz/anvil-go/pkg/types"

// SwitchCase is one arm of a SWITCH instruction: branch to Block when the
// scrutinee equals Value.
type SwitchCase struct {
	Value int64
	Block *BasicBlock
}

// Instruction is a single node in a block's instruction list. Which fields
// are meaningful depends on Opcode; unused fields are left zero.
//
// The opcode set is closed (see Opcode); this struct is the one node shape
// shared by every opcode rather than a family of opcode-specific structs,
// trading a few unused fields per instruction for a single simple
// allocation and traversal shape - the same trade the source's tagged
// union makes.
type Instruction struct {
	Opcode   Opcode
	Operands []*Value
	Result   *Value // nil if this opcode/instance produces no value

	// Control flow
	TrueBlock  *BasicBlock // BR target; BR_COND true target
	FalseBlock *BasicBlock // BR_COND false target

	// GEP / conversions
	AuxType    *types.Type // element type for GEP/STRUCT_GEP; target type for conversions
	FieldIndex int         // STRUCT_GEP field index into AuxType's layout

	// PHI
	PhiIncoming []*Value
	PhiBlocks   []*BasicBlock

	// FCMP
	Cond Condition

	// SWITCH
	SwitchCases   []SwitchCase
	SwitchDefault *BasicBlock

	// CALL
	Callee  *Value // function value or function-pointer value
	CallSig *types.Type // Func type of the callee, needed even when Callee is an indirect pointer

	prev, next *Instruction
	block      *BasicBlock
}

// Block returns the basic block this instruction belongs to.
func (i *Instruction) Block() *BasicBlock { return i.block }

// Next returns the following instruction in block order, or nil at the
// block's end.
func (i *Instruction) Next() *Instruction { return i.next }

// Prev returns the preceding instruction in block order, or nil at the
// block's start.
func (i *Instruction) Prev() *Instruction { return i.prev }

// Successors returns the blocks this instruction can transfer control to,
// used by CFG construction and by passes that need a terminator's targets
// uniformly.
func (i *Instruction) Successors() []*BasicBlock {
	switch i.Opcode {
	case OpBr:
		return []*BasicBlock{i.TrueBlock}
	case OpBrCond:
		return []*BasicBlock{i.TrueBlock, i.FalseBlock}
	case OpSwitch:
		succs := make([]*BasicBlock, 0, len(i.SwitchCases)+1)
		if i.SwitchDefault != nil {
			succs = append(succs, i.SwitchDefault)
		}
		for _, c := range i.SwitchCases {
			succs = append(succs, c.Block)
		}
		return succs
	default:
		return nil
	}
}

// ReplaceOperand substitutes old with new wherever old appears among i's
// plain operands. Used by passes (copy propagation, CSE, store-load
// forwarding) that rewrite later uses of a value.
func (i *Instruction) ReplaceOperand(old, new *Value) {
	for idx, op := range i.Operands {
		if op == old {
			i.Operands[idx] = new
		}
	}
	for idx, op := range i.PhiIncoming {
		if op == old {
			i.PhiIncoming[idx] = new
		}
	}
}

// CloneShallow returns a copy of i detached from any block (prev/next/
// block cleared), sharing i's operand/result slices and pointers. Used
// by passes that duplicate instructions wholesale (loop unrolling);
// callers are expected to replace Result with a fresh value and rewrite
// Operands through their own substitution map before appending the
// clone to a block.
func (i *Instruction) CloneShallow() *Instruction {
	c := *i
	c.prev, c.next, c.block = nil, nil, nil
	return &c
}

// MakeNop turns i into a NOP in place, clearing its operand/result payload.
// Passes use this instead of unlinking so that instruction identity
// (pointers held as "prior instruction" in a pass's local state) stays
// valid across the rewrite.
func (i *Instruction) MakeNop() {
	i.Opcode = OpNop
	i.Operands = nil
	i.Result = nil
	i.TrueBlock, i.FalseBlock = nil, nil
	i.AuxType = nil
	i.PhiIncoming, i.PhiBlocks = nil, nil
	i.SwitchCases, i.SwitchDefault = nil, nil
	i.Callee, i.CallSig = nil, nil
}
