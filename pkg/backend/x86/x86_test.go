package x86

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

// i32 add(i32 a, i32 b) { return a + b; }
func buildAddFunction(c *types.Cache, mod *ir.Module) *ir.Function {
	i32 := c.I32()
	fn := mod.NewFunction("add", c.Func(i32, []*types.Type{i32, i32}, false), ir.LinkageExternal)
	b := builder.New()
	b.SetInsertPoint(fn.Entry())
	b.Ret(b.Add(fn.Param(0), fn.Param(1)))
	return fn
}

func TestCodegenModuleIntegerArithmetic(t *testing.T) {
	c := types.NewCache(8)
	mod := ir.NewModule("m", 8)
	buildAddFunction(c, mod)

	var out bytes.Buffer
	if err := newBackend(t, target.X86_64).CodegenModule(mod, &out); err != nil {
		t.Fatalf("CodegenModule: %s", err)
	}
	asm := out.String()
	for _, want := range []string{"add:", "\tadd\t", "\tret\n"} {
		if !strings.Contains(asm, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, asm)
		}
	}
}

// f64 faddsub(f64 a, f64 b) { return (a + b) - a; }
func buildFloatFunction(c *types.Cache, mod *ir.Module) *ir.Function {
	f64 := c.F64()
	fn := mod.NewFunction("faddsub", c.Func(f64, []*types.Type{f64, f64}, false), ir.LinkageExternal)
	b := builder.New()
	b.SetInsertPoint(fn.Entry())
	sum := b.FAdd(fn.Param(0), fn.Param(1))
	b.Ret(b.FSub(sum, fn.Param(0)))
	return fn
}

func TestCodegenModuleFloatArithmetic(t *testing.T) {
	c := types.NewCache(8)
	mod := ir.NewModule("m", 8)
	buildFloatFunction(c, mod)

	var out bytes.Buffer
	if err := newBackend(t, target.X86_64).CodegenModule(mod, &out); err != nil {
		t.Fatalf("CodegenModule: %s", err)
	}
	asm := out.String()
	for _, want := range []string{"addsd\t", "subsd\t", "movsd\t"} {
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
	if err := newBackend(t, target.X86).CodegenModule(mod, &out); err != nil {
		t.Fatalf("CodegenModule: %s", err)
	}
	asm := out.String()
	for _, want := range []string{"xorps\t", "andps\t", "ucomiss\t", "setb\t"} {
		if !strings.Contains(asm, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, asm)
		}
	}
}

func TestCodegenModuleFloatConversions(t *testing.T) {
	c := types.NewCache(8)
	f32, f64, i32 := c.F32(), c.F64(), c.I32()
	mod := ir.NewModule("m", 8)
	fn := mod.NewFunction("conv", c.Func(f64, []*types.Type{f32, i32}, false), ir.LinkageExternal)
	b := builder.New()
	b.SetInsertPoint(fn.Entry())
	wide := b.FPExt(fn.Param(0), f64)
	fromInt := b.SIToFP(fn.Param(1), f64)
	sum := b.FAdd(wide, fromInt)
	asInt := b.FPToSI(sum, i32)
	b.Ret(b.SIToFP(asInt, f64))

	var out bytes.Buffer
	if err := newBackend(t, target.X86_64).CodegenModule(mod, &out); err != nil {
		t.Fatalf("CodegenModule: %s", err)
	}
	asm := out.String()
	for _, want := range []string{"cvtss2sd\t", "cvtsi2sd\t", "cvttsd2si\t"} {
		if !strings.Contains(asm, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, asm)
		}
	}
}

func TestCodegenModuleFloatConstant(t *testing.T) {
	c := types.NewCache(8)
	f64 := c.F64()
	mod := ir.NewModule("m", 8)
	fn := mod.NewFunction("half", c.Func(f64, nil, false), ir.LinkageExternal)
	b := builder.New()
	b.SetInsertPoint(fn.Entry())
	b.Ret(b.FAdd(ir.ConstFloat(f64, 0.5), ir.ConstFloat(f64, 0.25)))

	var out bytes.Buffer
	if err := newBackend(t, target.X86_64).CodegenModule(mod, &out); err != nil {
		t.Fatalf("CodegenModule: %s", err)
	}
	if !strings.Contains(out.String(), "movabs\t") {
		t.Errorf("expected a movabs to stage the float bit pattern, got:\n%s", out.String())
	}
}

func TestInitAllowsNASMDialectOverride(t *testing.T) {
	b := &Backend{}
	if err := b.Init(backend.Config{Arch: target.X86_64, Dialect: target.DialectNASM}); err != nil {
		t.Fatalf("x86-64 is expected to allow a NASM dialect override, got: %s", err)
	}
	if b.dialect != target.DialectNASM {
		t.Fatalf("expected dialect to be recorded as NASM, got %s", b.dialect)
	}
	if b.ArchInfo().Name != "x86-64" {
		t.Fatalf("expected ArchInfo().Name == x86-64, got %s", b.ArchInfo().Name)
	}
}
