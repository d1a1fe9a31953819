// Package builder implements ANVIL's positional instruction builder: a
// cursor bound to one basic block at a time, plus one method per opcode
// that appends an instruction at the cursor and advances it. There is no
// random-order insertion API (spec §4.3); callers must SetInsertPoint to
// move between blocks.
//
// The source keeps this cursor as global per-context state; the idiomatic
// Go rewrite makes it an explicit handle (Design Notes) so two builders
// can safely work on two different functions without sharing mutable
// context state.
package builder

import (
	"fmt"

	"github.com/bencz/anvil-go/pkg/ir"
	"github.com/bencz/anvil-go/pkg/types"
)

// New creates a builder with no insertion point set. Call SetInsertPoint
// before calling any Build* method.
func New() *B {
	return &B{}
}

// B is the builder cursor. (Named B, not Builder, to keep call sites like
// b.Add(...) short, matching the spec's build_add-style naming density.)
type B struct {
	cur *ir.BasicBlock
}

// SetInsertPoint positions the cursor at the end of block's current
// instruction list. Creating a new block does not move the cursor (spec
// §4.3); this is the only way to do so.
func (b *B) SetInsertPoint(block *ir.BasicBlock) {
	b.cur = block
}

// InsertBlock returns the block the cursor is currently positioned in.
func (b *B) InsertBlock() *ir.BasicBlock { return b.cur }

func (b *B) requireBlock() *ir.BasicBlock {
	if b.cur == nil {
		panic("anvil: builder used with no insert point set")
	}
	return b.cur
}

func (b *B) append(instr *ir.Instruction) *ir.Value {
	blk := b.requireBlock()
	blk.Append(instr)
	return instr.Result
}

func newResult(ty *types.Type, name string) *ir.Value {
	return &ir.Value{Kind: ir.ValInstrResult, Type: ty, Name: name, ID: ir.NextValueID()}
}

func requireSameType(op ir.Opcode, a, b *types.Type) {
	if !types.Equal(a, b) {
		panic(fmt.Sprintf("anvil: %s: operand types mismatch (%s vs %s)", op, a, b))
	}
}

func bindResult(instr *ir.Instruction, ty *types.Type) {
	if ty == nil {
		return
	}
	r := newResult(ty, "")
	r.Instr = instr
	instr.Result = r
}

// --- Arithmetic / bitwise (two same-typed operands, result same type) ---

func (b *B) binop(op ir.Opcode, lhs, rhs *ir.Value) *ir.Value {
	requireSameType(op, lhs.Type, rhs.Type)
	instr := &ir.Instruction{Opcode: op, Operands: []*ir.Value{lhs, rhs}}
	bindResult(instr, lhs.Type)
	return b.append(instr)
}

func (b *B) Add(lhs, rhs *ir.Value) *ir.Value  { return b.binop(ir.OpAdd, lhs, rhs) }
func (b *B) Sub(lhs, rhs *ir.Value) *ir.Value  { return b.binop(ir.OpSub, lhs, rhs) }
func (b *B) Mul(lhs, rhs *ir.Value) *ir.Value  { return b.binop(ir.OpMul, lhs, rhs) }
func (b *B) SDiv(lhs, rhs *ir.Value) *ir.Value { return b.binop(ir.OpSDiv, lhs, rhs) }
func (b *B) UDiv(lhs, rhs *ir.Value) *ir.Value { return b.binop(ir.OpUDiv, lhs, rhs) }
func (b *B) SMod(lhs, rhs *ir.Value) *ir.Value { return b.binop(ir.OpSMod, lhs, rhs) }
func (b *B) UMod(lhs, rhs *ir.Value) *ir.Value { return b.binop(ir.OpUMod, lhs, rhs) }
func (b *B) And(lhs, rhs *ir.Value) *ir.Value  { return b.binop(ir.OpAnd, lhs, rhs) }
func (b *B) Or(lhs, rhs *ir.Value) *ir.Value   { return b.binop(ir.OpOr, lhs, rhs) }
func (b *B) Xor(lhs, rhs *ir.Value) *ir.Value  { return b.binop(ir.OpXor, lhs, rhs) }
func (b *B) Shl(lhs, rhs *ir.Value) *ir.Value  { return b.binop(ir.OpShl, lhs, rhs) }
func (b *B) Shr(lhs, rhs *ir.Value) *ir.Value  { return b.binop(ir.OpShr, lhs, rhs) }
func (b *B) Sar(lhs, rhs *ir.Value) *ir.Value  { return b.binop(ir.OpSar, lhs, rhs) }

func (b *B) unop(op ir.Opcode, v *ir.Value) *ir.Value {
	instr := &ir.Instruction{Opcode: op, Operands: []*ir.Value{v}}
	bindResult(instr, v.Type)
	return b.append(instr)
}

func (b *B) Neg(v *ir.Value) *ir.Value { return b.unop(ir.OpNeg, v) }
func (b *B) Not(v *ir.Value) *ir.Value { return b.unop(ir.OpNot, v) }

// --- Floating point ---

func (b *B) fbinop(op ir.Opcode, lhs, rhs *ir.Value) *ir.Value {
	requireSameType(op, lhs.Type, rhs.Type)
	instr := &ir.Instruction{Opcode: op, Operands: []*ir.Value{lhs, rhs}}
	bindResult(instr, lhs.Type)
	return b.append(instr)
}

func (b *B) FAdd(lhs, rhs *ir.Value) *ir.Value { return b.fbinop(ir.OpFAdd, lhs, rhs) }
func (b *B) FSub(lhs, rhs *ir.Value) *ir.Value { return b.fbinop(ir.OpFSub, lhs, rhs) }
func (b *B) FMul(lhs, rhs *ir.Value) *ir.Value { return b.fbinop(ir.OpFMul, lhs, rhs) }
func (b *B) FDiv(lhs, rhs *ir.Value) *ir.Value { return b.fbinop(ir.OpFDiv, lhs, rhs) }

func (b *B) FNeg(v *ir.Value) *ir.Value { return b.unop(ir.OpFNeg, v) }
func (b *B) FAbs(v *ir.Value) *ir.Value { return b.unop(ir.OpFAbs, v) }

// FCmp compares two same-typed floats under cond, producing resultTy (an
// integer type chosen by the caller to carry the boolean result, per the
// spec's "comparisons produce i1 semantically but are carried in a
// target-appropriate integer type" rule).
func (b *B) FCmp(cond ir.Condition, lhs, rhs *ir.Value, resultTy *types.Type) *ir.Value {
	requireSameType(ir.OpFCmp, lhs.Type, rhs.Type)
	instr := &ir.Instruction{Opcode: ir.OpFCmp, Operands: []*ir.Value{lhs, rhs}, Cond: cond}
	bindResult(instr, resultTy)
	return b.append(instr)
}

// --- Integer comparisons (opcode IS the relation) ---

func (b *B) cmp(op ir.Opcode, lhs, rhs *ir.Value, resultTy *types.Type) *ir.Value {
	requireSameType(op, lhs.Type, rhs.Type)
	instr := &ir.Instruction{Opcode: op, Operands: []*ir.Value{lhs, rhs}}
	bindResult(instr, resultTy)
	return b.append(instr)
}

func (b *B) CmpEQ(lhs, rhs *ir.Value, resultTy *types.Type) *ir.Value {
	return b.cmp(ir.OpCmpEQ, lhs, rhs, resultTy)
}
func (b *B) CmpNE(lhs, rhs *ir.Value, resultTy *types.Type) *ir.Value {
	return b.cmp(ir.OpCmpNE, lhs, rhs, resultTy)
}
func (b *B) CmpLT(lhs, rhs *ir.Value, resultTy *types.Type) *ir.Value {
	return b.cmp(ir.OpCmpLT, lhs, rhs, resultTy)
}
func (b *B) CmpLE(lhs, rhs *ir.Value, resultTy *types.Type) *ir.Value {
	return b.cmp(ir.OpCmpLE, lhs, rhs, resultTy)
}
func (b *B) CmpGT(lhs, rhs *ir.Value, resultTy *types.Type) *ir.Value {
	return b.cmp(ir.OpCmpGT, lhs, rhs, resultTy)
}
func (b *B) CmpGE(lhs, rhs *ir.Value, resultTy *types.Type) *ir.Value {
	return b.cmp(ir.OpCmpGE, lhs, rhs, resultTy)
}
func (b *B) CmpULT(lhs, rhs *ir.Value, resultTy *types.Type) *ir.Value {
	return b.cmp(ir.OpCmpULT, lhs, rhs, resultTy)
}
func (b *B) CmpULE(lhs, rhs *ir.Value, resultTy *types.Type) *ir.Value {
	return b.cmp(ir.OpCmpULE, lhs, rhs, resultTy)
}
func (b *B) CmpUGT(lhs, rhs *ir.Value, resultTy *types.Type) *ir.Value {
	return b.cmp(ir.OpCmpUGT, lhs, rhs, resultTy)
}
func (b *B) CmpUGE(lhs, rhs *ir.Value, resultTy *types.Type) *ir.Value {
	return b.cmp(ir.OpCmpUGE, lhs, rhs, resultTy)
}

// --- Memory ---

// Alloca reserves stack storage sized to ty and returns a pointer to it.
func (b *B) Alloca(ty *types.Type, ptrTy *types.Type) *ir.Value {
	instr := &ir.Instruction{Opcode: ir.OpAlloca, AuxType: ty}
	bindResult(instr, ptrTy)
	return b.append(instr)
}

// Load reads a value of type ty from ptr.
func (b *B) Load(ty *types.Type, ptr *ir.Value) *ir.Value {
	if ptr.Type.Kind != types.Ptr {
		panic("anvil: load: operand is not a pointer")
	}
	instr := &ir.Instruction{Opcode: ir.OpLoad, Operands: []*ir.Value{ptr}, AuxType: ty}
	bindResult(instr, ty)
	return b.append(instr)
}

// Store writes val to ptr. STORE has no result.
func (b *B) Store(val, ptr *ir.Value) {
	if ptr.Type.Kind != types.Ptr {
		panic("anvil: store: operand is not a pointer")
	}
	instr := &ir.Instruction{Opcode: ir.OpStore, Operands: []*ir.Value{val, ptr}}
	b.append(instr)
}

// GEP indexes into base (pointer-to-elemTy, treated as an array of
// elemTy) by one level of linear indices, each scaled by sizeof(elemTy).
// This is not a recursive typed walk like LLVM's.
func (b *B) GEP(elemTy *types.Type, base *ir.Value, indices []*ir.Value, ptrTy *types.Type) *ir.Value {
	if base.Type.Kind != types.Ptr {
		panic("anvil: gep: base is not a pointer")
	}
	operands := append([]*ir.Value{base}, indices...)
	instr := &ir.Instruction{Opcode: ir.OpGEP, Operands: operands, AuxType: elemTy}
	bindResult(instr, ptrTy)
	return b.append(instr)
}

// StructGEP computes a pointer to field fieldIndex of structTy, using the
// precomputed field-offset table. An out-of-range index is a construction
// error (panic), matching the spec's "out-of-range field index is a
// construction error."
func (b *B) StructGEP(structTy *types.Type, base *ir.Value, fieldIndex int, ptrTy *types.Type) *ir.Value {
	field, err := types.FieldByIndex(structTy, fieldIndex)
	if err != nil {
		panic("anvil: " + err.Error())
	}
	instr := &ir.Instruction{Opcode: ir.OpStructGEP, Operands: []*ir.Value{base}, AuxType: structTy, FieldIndex: fieldIndex}
	bindResult(instr, ptrTy)
	_ = field
	return b.append(instr)
}

// --- Control flow ---

// Br appends an unconditional branch. Like every terminator, it returns
// nothing.
func (b *B) Br(target *ir.BasicBlock) {
	b.append(&ir.Instruction{Opcode: ir.OpBr, TrueBlock: target})
}

// BrCond appends a conditional branch.
func (b *B) BrCond(cond *ir.Value, thenBlock, elseBlock *ir.BasicBlock) {
	b.append(&ir.Instruction{Opcode: ir.OpBrCond, Operands: []*ir.Value{cond}, TrueBlock: thenBlock, FalseBlock: elseBlock})
}

// Call appends a function call. callSig is the Func type of callee
// (needed even for an indirect call through a function-pointer value).
// resultTy may be nil for a void call.
func (b *B) Call(callee *ir.Value, callSig *types.Type, args []*ir.Value, resultTy *types.Type) *ir.Value {
	instr := &ir.Instruction{Opcode: ir.OpCall, Callee: callee, CallSig: callSig, Operands: append([]*ir.Value(nil), args...)}
	bindResult(instr, resultTy)
	return b.append(instr)
}

// Ret appends a return; pass nil for a void return.
func (b *B) Ret(val *ir.Value) {
	instr := &ir.Instruction{Opcode: ir.OpRet}
	if val != nil {
		instr.Operands = []*ir.Value{val}
	}
	b.append(instr)
}

// Switch appends a SWITCH terminator. A default block is required.
func (b *B) Switch(scrutinee *ir.Value, def *ir.BasicBlock, cases []ir.SwitchCase) {
	if def == nil {
		panic("anvil: switch: default block is required")
	}
	instr := &ir.Instruction{Opcode: ir.OpSwitch, Operands: []*ir.Value{scrutinee}, SwitchDefault: def, SwitchCases: append([]ir.SwitchCase(nil), cases...)}
	b.append(instr)
}

// --- Conversions ---

func (b *B) convert(op ir.Opcode, v *ir.Value, targetTy *types.Type) *ir.Value {
	instr := &ir.Instruction{Opcode: op, Operands: []*ir.Value{v}, AuxType: targetTy}
	bindResult(instr, targetTy)
	return b.append(instr)
}

func (b *B) Trunc(v *ir.Value, targetTy *types.Type) *ir.Value    { return b.convert(ir.OpTrunc, v, targetTy) }
func (b *B) ZExt(v *ir.Value, targetTy *types.Type) *ir.Value     { return b.convert(ir.OpZExt, v, targetTy) }
func (b *B) SExt(v *ir.Value, targetTy *types.Type) *ir.Value     { return b.convert(ir.OpSExt, v, targetTy) }
func (b *B) FPTrunc(v *ir.Value, targetTy *types.Type) *ir.Value  { return b.convert(ir.OpFPTrunc, v, targetTy) }
func (b *B) FPExt(v *ir.Value, targetTy *types.Type) *ir.Value    { return b.convert(ir.OpFPExt, v, targetTy) }
func (b *B) FPToSI(v *ir.Value, targetTy *types.Type) *ir.Value   { return b.convert(ir.OpFPToSI, v, targetTy) }
func (b *B) FPToUI(v *ir.Value, targetTy *types.Type) *ir.Value   { return b.convert(ir.OpFPToUI, v, targetTy) }
func (b *B) SIToFP(v *ir.Value, targetTy *types.Type) *ir.Value   { return b.convert(ir.OpSIToFP, v, targetTy) }
func (b *B) UIToFP(v *ir.Value, targetTy *types.Type) *ir.Value   { return b.convert(ir.OpUIToFP, v, targetTy) }
func (b *B) PtrToInt(v *ir.Value, targetTy *types.Type) *ir.Value { return b.convert(ir.OpPtrToInt, v, targetTy) }
func (b *B) IntToPtr(v *ir.Value, targetTy *types.Type) *ir.Value { return b.convert(ir.OpIntToPtr, v, targetTy) }

// Bitcast reinterprets v as targetTy. Defined as a no-op reinterpretation
// when the source and target sizes/kinds allow it (both integer/pointer
// of equal size, or both float of equal size). Neither the builder nor
// the backends check this: every backend lowers BITCAST as a plain move
// of the value into the result's slot, whatever the two types are.
func (b *B) Bitcast(v *ir.Value, targetTy *types.Type) *ir.Value {
	return b.convert(ir.OpBitcast, v, targetTy)
}

// --- Special ---

// Phi appends a PHI node. incoming and blocks are parallel arrays; their
// length must equal the block's predecessor count and every block must
// be a predecessor once the CFG is finalized (spec invariant). Only the
// equal length of the two arrays is checked here; predecessors are
// discovered lazily from terminators, and nothing else in the library
// verifies the rest.
func (b *B) Phi(ty *types.Type, incoming []*ir.Value, blocks []*ir.BasicBlock) *ir.Value {
	if len(incoming) != len(blocks) {
		panic("anvil: phi: incoming values and predecessor blocks must have equal length")
	}
	instr := &ir.Instruction{Opcode: ir.OpPhi, PhiIncoming: append([]*ir.Value(nil), incoming...), PhiBlocks: append([]*ir.BasicBlock(nil), blocks...)}
	bindResult(instr, ty)
	return b.append(instr)
}

// Select appends a SELECT: result = cond ? ifTrue : ifFalse.
func (b *B) Select(cond, ifTrue, ifFalse *ir.Value) *ir.Value {
	requireSameType(ir.OpSelect, ifTrue.Type, ifFalse.Type)
	instr := &ir.Instruction{Opcode: ir.OpSelect, Operands: []*ir.Value{cond, ifTrue, ifFalse}}
	bindResult(instr, ifTrue.Type)
	return b.append(instr)
}

// Nop appends a no-op.
func (b *B) Nop() {
	b.append(&ir.Instruction{Opcode: ir.OpNop})
}
