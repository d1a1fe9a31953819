package optimize

import (
	"testing"

	"github.com/bencz/anvil-go/pkg/ir"
	"github.com/bencz/anvil-go/pkg/target"
	"github.com/bencz/anvil-go/pkg/types"
)

func newTestFunction(name string, params int) (*ir.Module, *ir.Function, *types.Cache) {
	c := types.NewCache(8)
	ps := make([]*types.Type, params)
	for i := range ps {
		ps[i] = c.I32()
	}
	m := ir.NewModule("m", 8)
	f := m.NewFunction(name, c.Func(c.I32(), ps, false), ir.LinkageExternal)
	return m, f, c
}

func countNonNop(f *ir.Function) int {
	n := 0
	for _, b := range f.Blocks() {
		for _, instr := range b.Instructions() {
			if instr.Opcode != ir.OpNop {
				n++
			}
		}
	}
	return n
}

func TestConstFoldAddsConstants(t *testing.T) {
	_, f, c := newTestFunction("f", 0)
	entry := f.Entry()
	add := &ir.Instruction{Opcode: ir.OpAdd, Operands: []*ir.Value{ir.ConstInt(c.I32(), 2), ir.ConstInt(c.I32(), 3)}, Result: &ir.Value{Kind: ir.ValInstrResult, Type: c.I32()}}
	entry.Append(add)
	entry.Append(&ir.Instruction{Opcode: ir.OpRet, Operands: []*ir.Value{add.Result}})

	if !runConstFold(f) {
		t.Fatal("expected const fold to report a change")
	}
	ret := entry.Last()
	if ret.Operands[0].Kind != ir.ValConstInt || ret.Operands[0].IntVal != 5 {
		t.Fatalf("expected RET to fold to constant 5, got %+v", ret.Operands[0])
	}
}

func TestDCERemovesUnusedPureInstruction(t *testing.T) {
	_, f, c := newTestFunction("f", 1)
	entry := f.Entry()
	dead := &ir.Instruction{Opcode: ir.OpAdd, Operands: []*ir.Value{f.Param(0), ir.ConstInt(c.I32(), 1)}, Result: &ir.Value{Kind: ir.ValInstrResult, Type: c.I32()}}
	entry.Append(dead)
	entry.Append(&ir.Instruction{Opcode: ir.OpRet, Operands: []*ir.Value{f.Param(0)}})

	if !runDCE(f) {
		t.Fatal("expected DCE to report a change")
	}
	if dead.Opcode != ir.OpNop {
		t.Fatal("expected unused ADD to become NOP")
	}
}

func TestDCEKeepsStoreEvenUnused(t *testing.T) {
	_, f, c := newTestFunction("f", 0)
	entry := f.Entry()
	ptr := &ir.Instruction{Opcode: ir.OpAlloca, AuxType: c.I32(), Result: &ir.Value{Kind: ir.ValInstrResult, Type: c.Ptr(c.I32())}}
	entry.Append(ptr)
	store := &ir.Instruction{Opcode: ir.OpStore, Operands: []*ir.Value{ir.ConstInt(c.I32(), 1), ptr.Result}}
	entry.Append(store)
	entry.Append(&ir.Instruction{Opcode: ir.OpRet})

	runDCE(f)
	if store.Opcode != ir.OpStore {
		t.Fatal("STORE must never be removed by DCE even with no uses of its (nonexistent) result")
	}
}

func TestCopyPropIdentityAdd(t *testing.T) {
	_, f, c := newTestFunction("f", 1)
	entry := f.Entry()
	add := &ir.Instruction{Opcode: ir.OpAdd, Operands: []*ir.Value{f.Param(0), ir.ConstInt(c.I32(), 0)}, Result: &ir.Value{Kind: ir.ValInstrResult, Type: c.I32()}}
	entry.Append(add)
	ret := &ir.Instruction{Opcode: ir.OpRet, Operands: []*ir.Value{add.Result}}
	entry.Append(ret)

	if !runCopyProp(f) {
		t.Fatal("expected copy prop to report a change")
	}
	if ret.Operands[0] != f.Param(0) {
		t.Fatal("expected x+0 to be replaced by x")
	}
}

func TestStrengthReductionMulToShift(t *testing.T) {
	_, f, c := newTestFunction("f", 1)
	entry := f.Entry()
	mul := &ir.Instruction{Opcode: ir.OpMul, Operands: []*ir.Value{f.Param(0), ir.ConstInt(c.I32(), 8)}, Result: &ir.Value{Kind: ir.ValInstrResult, Type: c.I32()}}
	entry.Append(mul)
	entry.Append(&ir.Instruction{Opcode: ir.OpRet, Operands: []*ir.Value{mul.Result}})

	if !runStrengthReduction(f) {
		t.Fatal("expected strength reduction to report a change")
	}
	if mul.Opcode != ir.OpShl {
		t.Fatalf("expected MUL by 8 to become SHL, got %s", mul.Opcode)
	}
	if mul.Operands[1].IntVal != 3 {
		t.Fatalf("expected shift amount 3, got %d", mul.Operands[1].IntVal)
	}
}

func TestCSEReusesIdenticalExpression(t *testing.T) {
	_, f, c := newTestFunction("f", 1)
	entry := f.Entry()
	first := &ir.Instruction{Opcode: ir.OpAdd, Operands: []*ir.Value{f.Param(0), ir.ConstInt(c.I32(), 1)}, Result: &ir.Value{Kind: ir.ValInstrResult, Type: c.I32()}}
	entry.Append(first)
	second := &ir.Instruction{Opcode: ir.OpAdd, Operands: []*ir.Value{f.Param(0), ir.ConstInt(c.I32(), 1)}, Result: &ir.Value{Kind: ir.ValInstrResult, Type: c.I32()}}
	entry.Append(second)
	ret := &ir.Instruction{Opcode: ir.OpRet, Operands: []*ir.Value{second.Result}}
	entry.Append(ret)

	if !runCSE(f) {
		t.Fatal("expected CSE to report a change")
	}
	if ret.Operands[0] != first.Result {
		t.Fatal("expected second identical ADD's use to be replaced by the first's result")
	}
	if second.Opcode != ir.OpNop {
		t.Fatal("expected the redundant ADD to become NOP")
	}
}

func TestCSEInvalidatedByStore(t *testing.T) {
	_, f, c := newTestFunction("f", 1)
	entry := f.Entry()
	first := &ir.Instruction{Opcode: ir.OpAdd, Operands: []*ir.Value{f.Param(0), ir.ConstInt(c.I32(), 1)}, Result: &ir.Value{Kind: ir.ValInstrResult, Type: c.I32()}}
	entry.Append(first)
	ptr := &ir.Instruction{Opcode: ir.OpAlloca, AuxType: c.I32(), Result: &ir.Value{Kind: ir.ValInstrResult, Type: c.Ptr(c.I32())}}
	entry.Append(ptr)
	entry.Append(&ir.Instruction{Opcode: ir.OpStore, Operands: []*ir.Value{ir.ConstInt(c.I32(), 0), ptr.Result}})
	second := &ir.Instruction{Opcode: ir.OpAdd, Operands: []*ir.Value{f.Param(0), ir.ConstInt(c.I32(), 1)}, Result: &ir.Value{Kind: ir.ValInstrResult, Type: c.I32()}}
	entry.Append(second)
	entry.Append(&ir.Instruction{Opcode: ir.OpRet, Operands: []*ir.Value{second.Result}})

	runCSE(f)
	if second.Opcode == ir.OpNop {
		t.Fatal("a STORE between two identical ADDs should have invalidated the CSE table")
	}
}

func TestStoreLoadForward(t *testing.T) {
	_, f, c := newTestFunction("f", 0)
	entry := f.Entry()
	ptr := &ir.Instruction{Opcode: ir.OpAlloca, AuxType: c.I32(), Result: &ir.Value{Kind: ir.ValInstrResult, Type: c.Ptr(c.I32())}}
	entry.Append(ptr)
	val := ir.ConstInt(c.I32(), 7)
	entry.Append(&ir.Instruction{Opcode: ir.OpStore, Operands: []*ir.Value{val, ptr.Result}})
	load := &ir.Instruction{Opcode: ir.OpLoad, Operands: []*ir.Value{ptr.Result}, Result: &ir.Value{Kind: ir.ValInstrResult, Type: c.I32()}}
	entry.Append(load)
	ret := &ir.Instruction{Opcode: ir.OpRet, Operands: []*ir.Value{load.Result}}
	entry.Append(ret)

	if !runStoreLoadForward(f) {
		t.Fatal("expected store-load forward to report a change")
	}
	if ret.Operands[0] != val {
		t.Fatal("expected LOAD right after STORE to forward the stored value")
	}
}

func TestRedundantLoadElimination(t *testing.T) {
	_, f, c := newTestFunction("f", 0)
	entry := f.Entry()
	ptr := &ir.Instruction{Opcode: ir.OpAlloca, AuxType: c.I32(), Result: &ir.Value{Kind: ir.ValInstrResult, Type: c.Ptr(c.I32())}}
	entry.Append(ptr)
	load1 := &ir.Instruction{Opcode: ir.OpLoad, Operands: []*ir.Value{ptr.Result}, Result: &ir.Value{Kind: ir.ValInstrResult, Type: c.I32()}}
	entry.Append(load1)
	load2 := &ir.Instruction{Opcode: ir.OpLoad, Operands: []*ir.Value{ptr.Result}, Result: &ir.Value{Kind: ir.ValInstrResult, Type: c.I32()}}
	entry.Append(load2)
	ret := &ir.Instruction{Opcode: ir.OpRet, Operands: []*ir.Value{load2.Result}}
	entry.Append(ret)

	if !runRedundantLoad(f) {
		t.Fatal("expected redundant load elimination to report a change")
	}
	if ret.Operands[0] != load1.Result {
		t.Fatal("expected second LOAD to be replaced by the first")
	}
}

func TestCFGSimplifyFoldsConstantBranch(t *testing.T) {
	_, f, c := newTestFunction("f", 0)
	entry := f.Entry()
	thenBlk := f.NewBlock("then")
	elseBlk := f.NewBlock("else")
	entry.Append(&ir.Instruction{Opcode: ir.OpBrCond, Operands: []*ir.Value{ir.ConstInt(c.I32(), 1)}, TrueBlock: thenBlk, FalseBlock: elseBlk})
	thenBlk.Append(&ir.Instruction{Opcode: ir.OpRet, Operands: []*ir.Value{ir.ConstInt(c.I32(), 1)}})
	elseBlk.Append(&ir.Instruction{Opcode: ir.OpRet, Operands: []*ir.Value{ir.ConstInt(c.I32(), 0)}})

	if !runCFGSimplify(f) {
		t.Fatal("expected CFG simplify to report a change")
	}
	term := entry.Terminator()
	if term.Opcode != ir.OpBr || term.TrueBlock != thenBlk {
		t.Fatalf("expected constant-true BR_COND folded to BR(then), got %+v", term)
	}
}

func TestCFGSimplifyRemovesUnreachableBlock(t *testing.T) {
	_, f, _ := newTestFunction("f", 0)
	entry := f.Entry()
	unreachable := f.NewBlock("dead")
	entry.Append(&ir.Instruction{Opcode: ir.OpRet})
	unreachable.Append(&ir.Instruction{Opcode: ir.OpRet})

	runCFGSimplify(f)
	for _, b := range f.Blocks() {
		if b == unreachable {
			t.Fatal("expected unreachable block to be removed")
		}
	}
}

func TestManagerSetLevelO2EnablesExpectedPasses(t *testing.T) {
	m := NewManager()
	m.SetLevel(target.O2)
	for _, id := range []PassID{PassConstFold, PassDCE, PassCopyProp, PassCFGSimplify, PassStrengthReduction, PassLoadStoreForward, PassRedundantLoad, PassCSE} {
		if !m.IsEnabled(id) {
			t.Fatalf("expected %s enabled at O2", id)
		}
	}
	if m.IsEnabled(PassLoopUnroll) {
		t.Fatal("loop unrolling should not be enabled until O3")
	}
}

func TestManagerRunFunctionReachesFixpoint(t *testing.T) {
	_, f, c := newTestFunction("f", 1)
	entry := f.Entry()
	a := &ir.Instruction{Opcode: ir.OpAdd, Operands: []*ir.Value{f.Param(0), ir.ConstInt(c.I32(), 0)}, Result: &ir.Value{Kind: ir.ValInstrResult, Type: c.I32()}}
	entry.Append(a)
	b := &ir.Instruction{Opcode: ir.OpMul, Operands: []*ir.Value{a.Result, ir.ConstInt(c.I32(), 1)}, Result: &ir.Value{Kind: ir.ValInstrResult, Type: c.I32()}}
	entry.Append(b)
	entry.Append(&ir.Instruction{Opcode: ir.OpRet, Operands: []*ir.Value{b.Result}})

	mgr := NewManager()
	mgr.SetLevel(target.O1)
	mgr.RunFunction(f)

	ret := entry.Terminator()
	if ret.Operands[0] != f.Param(0) {
		t.Fatalf("expected chained identities (x+0)*1 to fold down to the parameter, got %+v", ret.Operands[0])
	}
}
