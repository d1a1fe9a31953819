package backend

import (
	"testing"

	"github.com/bencz/anvil-go/pkg/builder"
	"github.com/bencz/anvil-go/pkg/ir"
	"github.com/bencz/anvil-go/pkg/target"
	"github.com/bencz/anvil-go/pkg/types"
)

func TestRegisterAndNew(t *testing.T) {
	const testArch = target.Arch(-1)
	called := false
	Register(testArch, func() Backend {
		called = true
		return nil
	})

	if !Registered(testArch) {
		t.Fatal("expected the test arch to be registered")
	}
	if _, err := New(testArch); err != nil {
		t.Fatalf("New: %s", err)
	}
	if !called {
		t.Fatal("expected the registered constructor to have been invoked")
	}
}

func TestNewUnregisteredArchFails(t *testing.T) {
	if Registered(target.Arch(-2)) {
		t.Fatal("did not expect arch -2 to already be registered")
	}
	if _, err := New(target.Arch(-2)); err == nil {
		t.Fatal("expected New to fail for an unregistered architecture")
	}
}

// buildTwoBlockFunction constructs:
//
//	i32 f(i32 a) {
//	entry: br_cond (a > 0) then, join
//	then:  x = a + 1; br join
//	join:  p = phi [x, then], [a, entry]; ret p
//
// giving BuildFrame a parameter, an ordinary instruction result, and a
// PHI to lay out slots for.
func buildTwoBlockFunction(c *types.Cache, mod *ir.Module) (*ir.Function, *ir.Instruction) {
	i32 := c.I32()
	fn := mod.NewFunction("f", c.Func(i32, []*types.Type{i32}, false), ir.LinkageExternal)
	entry := fn.Entry()
	then := fn.NewBlock("then")
	join := fn.NewBlock("join")

	b := builder.New()
	b.SetInsertPoint(entry)
	cond := b.CmpGT(fn.Param(0), ir.ConstInt(i32, 0), c.I32())
	b.BrCond(cond, then, join)

	b.SetInsertPoint(then)
	sum := b.Add(fn.Param(0), ir.ConstInt(i32, 1))
	b.Br(join)

	b.SetInsertPoint(join)
	result := b.Phi(i32, []*ir.Value{sum, fn.Param(0)}, []*ir.BasicBlock{then, entry})
	b.Ret(result)

	return fn, result.Instr
}

func TestBuildFrameAssignsDistinctSlots(t *testing.T) {
	c := types.NewCache(8)
	mod := ir.NewModule("m", 8)
	fn, _ := buildTwoBlockFunction(c, mod)

	fr := BuildFrame(fn, 8, 16)

	seen := make(map[int64]bool)
	for _, b := range fn.Blocks() {
		for _, instr := range b.Instructions() {
			if instr.Result == nil {
				continue
			}
			off, ok := fr.SlotOf(instr.Result)
			if !ok {
				t.Fatalf("expected a slot for every instruction result")
			}
			if seen[off] {
				t.Fatalf("slot offset %d reused across two values", off)
			}
			seen[off] = true
		}
	}
	if _, ok := fr.SlotOf(fn.Param(0)); !ok {
		t.Fatal("expected a slot for the function's parameter")
	}
	if fr.Size%16 != 0 {
		t.Fatalf("expected frame size aligned to 16, got %d", fr.Size)
	}
}

func TestPhiCopiesMatchesIncomingEdge(t *testing.T) {
	c := types.NewCache(8)
	mod := ir.NewModule("m", 8)
	fn, phi := buildTwoBlockFunction(c, mod)
	fr := BuildFrame(fn, 8, 16)

	blocks := fn.Blocks()
	entry, then, join := blocks[0], blocks[1], blocks[2]

	fromThen := PhiCopies(fr, then, join)
	if len(fromThen) != 1 {
		t.Fatalf("expected exactly one phi copy from `then`, got %d", len(fromThen))
	}
	wantSlot, _ := fr.SlotOf(phi.Result)
	if fromThen[0].Slot != wantSlot {
		t.Errorf("expected copy to target the phi's own slot %d, got %d", wantSlot, fromThen[0].Slot)
	}
	if fromThen[0].Value != phi.PhiIncoming[0] {
		t.Errorf("expected the `then` edge's copy to carry the value incoming from `then`")
	}

	fromEntry := PhiCopies(fr, entry, join)
	if len(fromEntry) != 1 || fromEntry[0].Value != phi.PhiIncoming[1] {
		t.Fatalf("expected the `entry` edge's copy to carry the value incoming from `entry`, got %+v", fromEntry)
	}
}
