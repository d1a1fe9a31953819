package arm64

import (
	"bytes"
	"strings"
	"testing"

	"github.com/bencz/anvil-go/pkg/backend"
	"github.com/bencz/anvil-go/pkg/builder"
	"github.com/bencz/anvil-go/pkg/ir"
	"github.com/bencz/anvil-go/pkg/target"
	"github.com/bencz/anvil-go/pkg/types"
)

func newBackend(t *testing.T, arch target.Arch) *Backend {
	t.Helper()
	b := &Backend{arch: arch}
	if err := b.Init(backend.Config{Arch: arch}); err != nil {
		t.Fatalf("Init: %s", err)
	}
	return b
}

func TestCodegenModuleIntegerArithmetic(t *testing.T) {
	c := types.NewCache(8)
	i32 := c.I32()
	mod := ir.NewModule("m", 8)
	fn := mod.NewFunction("add", c.Func(i32, []*types.Type{i32, i32}, false), ir.LinkageExternal)
	b := builder.New()
	b.SetInsertPoint(fn.Entry())
	b.Ret(b.Add(fn.Param(0), fn.Param(1)))

	var out bytes.Buffer
	if err := newBackend(t, target.ARM64Linux).CodegenModule(mod, &out); err != nil {
		t.Fatalf("CodegenModule: %s", err)
	}
	asm := out.String()
	for _, want := range []string{"add:", "\tadd\t", "\tret\n"} {
		if !strings.Contains(asm, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, asm)
		}
	}
}

func TestCodegenModuleDarwinPrefixesSymbols(t *testing.T) {
	c := types.NewCache(8)
	i32 := c.I32()
	mod := ir.NewModule("m", 8)
	fn := mod.NewFunction("add", c.Func(i32, []*types.Type{i32, i32}, false), ir.LinkageExternal)
	b := builder.New()
	b.SetInsertPoint(fn.Entry())
	b.Ret(b.Add(fn.Param(0), fn.Param(1)))

	var out bytes.Buffer
	if err := newBackend(t, target.ARM64Darwin).CodegenModule(mod, &out); err != nil {
		t.Fatalf("CodegenModule: %s", err)
	}
	if !strings.Contains(out.String(), "_add:") {
		t.Errorf("expected Darwin target to prefix the symbol with an underscore, got:\n%s", out.String())
	}
}

func TestCodegenModuleFloatArithmetic(t *testing.T) {
	c := types.NewCache(8)
	f64 := c.F64()
	mod := ir.NewModule("m", 8)
	fn := mod.NewFunction("faddsub", c.Func(f64, []*types.Type{f64, f64}, false), ir.LinkageExternal)
	b := builder.New()
	b.SetInsertPoint(fn.Entry())
	sum := b.FAdd(fn.Param(0), fn.Param(1))
	b.Ret(b.FSub(sum, fn.Param(0)))

	var out bytes.Buffer
	if err := newBackend(t, target.ARM64Linux).CodegenModule(mod, &out); err != nil {
		t.Fatalf("CodegenModule: %s", err)
	}
	asm := out.String()
	for _, want := range []string{"\tfadd\td16, d16, d17\n", "\tfsub\td16, d16, d17\n"} {
		if !strings.Contains(asm, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, asm)
		}
	}
}

func TestCodegenModuleFloatUnaryAndCompare(t *testing.T) {
	c := types.NewCache(8)
	f32 := c.F32()
	mod := ir.NewModule("m", 8)
	fn := mod.NewFunction("fcmp", c.Func(c.I32(), []*types.Type{f32, f32}, false), ir.LinkageExternal)
	b := builder.New()
	b.SetInsertPoint(fn.Entry())
	neg := b.FNeg(fn.Param(0))
	abs := b.FAbs(neg)
	b.Ret(b.FCmp(ir.Clt, abs, fn.Param(1), c.I32()))

	var out bytes.Buffer
	if err := newBackend(t, target.ARM64Linux).CodegenModule(mod, &out); err != nil {
		t.Fatalf("CodegenModule: %s", err)
	}
	asm := out.String()
	for _, want := range []string{"\tfneg\t", "\tfabs\t", "\tfcmp\t", "\tcset\tx9, mi\n"} {
		if !strings.Contains(asm, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, asm)
		}
	}
}

func TestCodegenModuleFloatConversions(t *testing.T) {
	c := types.NewCache(8)
	f32, f64, i64 := c.F32(), c.F64(), c.I64()
	mod := ir.NewModule("m", 8)
	fn := mod.NewFunction("conv", c.Func(i64, []*types.Type{f32, i64}, false), ir.LinkageExternal)
	b := builder.New()
	b.SetInsertPoint(fn.Entry())
	wide := b.FPExt(fn.Param(0), f64)
	fromInt := b.UIToFP(fn.Param(1), f64)
	sum := b.FAdd(wide, fromInt)
	b.Ret(b.FPToUI(sum, i64))

	var out bytes.Buffer
	if err := newBackend(t, target.ARM64Linux).CodegenModule(mod, &out); err != nil {
		t.Fatalf("CodegenModule: %s", err)
	}
	asm := out.String()
	for _, want := range []string{"\tfcvt\t", "\tucvtf\t", "\tfcvtzu\t"} {
		if !strings.Contains(asm, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, asm)
		}
	}
}

func TestCodegenModuleFloatConstantUsesFmov(t *testing.T) {
	c := types.NewCache(8)
	f64 := c.F64()
	mod := ir.NewModule("m", 8)
	fn := mod.NewFunction("half", c.Func(f64, nil, false), ir.LinkageExternal)
	b := builder.New()
	b.SetInsertPoint(fn.Entry())
	b.Ret(b.FAdd(ir.ConstFloat(f64, 0.5), ir.ConstFloat(f64, 0.25)))

	var out bytes.Buffer
	if err := newBackend(t, target.ARM64Linux).CodegenModule(mod, &out); err != nil {
		t.Fatalf("CodegenModule: %s", err)
	}
	asm := out.String()
	for _, want := range []string{"\tmovz\t", "\tfmov\t"} {
		if !strings.Contains(asm, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, asm)
		}
	}
}
