package builder

import (
	"testing"

	"github.com/bencz/anvil-go/pkg/ir"
	"github.com/bencz/anvil-go/pkg/types"
)

// TestBuildAddFunction exercises the walkthrough from the design notes:
// i32 add(i32 a, i32 b) { return a + b; }
func TestBuildAddFunction(t *testing.T) {
	c := types.NewCache(8)
	fnTy := c.Func(c.I32(), []*types.Type{c.I32(), c.I32()}, false)
	m := ir.NewModule("m", 8)
	f := m.NewFunction("add", fnTy, ir.LinkageExternal)

	b := New()
	b.SetInsertPoint(f.Entry())

	sum := b.Add(f.Param(0), f.Param(1))
	b.Ret(sum)

	instrs := f.Entry().Instructions()
	if len(instrs) != 2 {
		t.Fatalf("expected 2 instructions, got %d", len(instrs))
	}
	if instrs[0].Opcode != ir.OpAdd {
		t.Fatalf("expected first instruction to be ADD, got %s", instrs[0].Opcode)
	}
	if instrs[1].Opcode != ir.OpRet || instrs[1].Operands[0] != sum {
		t.Fatal("expected RET to return ADD's result")
	}
	if !f.Entry().IsTerminated() {
		t.Fatal("expected entry block to be terminated after Ret")
	}
}

func TestBuilderRequiresInsertPoint(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic when no insert point is set")
		}
	}()
	b := New()
	c := types.NewCache(8)
	b.Add(ir.ConstInt(c.I32(), 1), ir.ConstInt(c.I32(), 2))
}

func TestBinopRequiresMatchingTypes(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on mismatched operand types")
		}
	}()
	c := types.NewCache(8)
	m := ir.NewModule("m", 8)
	f := m.NewFunction("f", c.Func(c.Void(), nil, false), ir.LinkageExternal)
	b := New()
	b.SetInsertPoint(f.Entry())
	b.Add(ir.ConstInt(c.I32(), 1), ir.ConstInt(c.I64(), 2))
}

func TestLoadRejectsNonPointer(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic when loading through a non-pointer")
		}
	}()
	c := types.NewCache(8)
	m := ir.NewModule("m", 8)
	f := m.NewFunction("f", c.Func(c.Void(), nil, false), ir.LinkageExternal)
	b := New()
	b.SetInsertPoint(f.Entry())
	b.Load(c.I32(), ir.ConstInt(c.I32(), 0))
}

func TestSwitchRequiresDefaultBlock(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic when switch has no default block")
		}
	}()
	c := types.NewCache(8)
	m := ir.NewModule("m", 8)
	f := m.NewFunction("f", c.Func(c.Void(), nil, false), ir.LinkageExternal)
	b := New()
	b.SetInsertPoint(f.Entry())
	b.Switch(ir.ConstInt(c.I32(), 0), nil, nil)
}

func TestAllocaLoadStoreRoundTrip(t *testing.T) {
	c := types.NewCache(8)
	m := ir.NewModule("m", 8)
	f := m.NewFunction("f", c.Func(c.Void(), nil, false), ir.LinkageExternal)
	b := New()
	b.SetInsertPoint(f.Entry())

	ptr := b.Alloca(c.I32(), c.Ptr(c.I32()))
	b.Store(ir.ConstInt(c.I32(), 42), ptr)
	loaded := b.Load(c.I32(), ptr)
	b.Ret(loaded)

	instrs := f.Entry().Instructions()
	if instrs[0].Opcode != ir.OpAlloca || instrs[1].Opcode != ir.OpStore || instrs[2].Opcode != ir.OpLoad {
		t.Fatalf("unexpected instruction sequence")
	}
}

func TestPhiRequiresMatchingLengths(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on mismatched PHI incoming/blocks length")
		}
	}()
	c := types.NewCache(8)
	m := ir.NewModule("m", 8)
	f := m.NewFunction("f", c.Func(c.Void(), nil, false), ir.LinkageExternal)
	b2 := f.NewBlock("b2")
	b := New()
	b.SetInsertPoint(f.Entry())
	b.Phi(c.I32(), []*ir.Value{ir.ConstInt(c.I32(), 1)}, []*ir.BasicBlock{f.Entry(), b2})
}
