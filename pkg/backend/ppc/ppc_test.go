package ppc

import (
	"bytes"
	"fmt"
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
	if err := newBackend(t, target.PPC32).CodegenModule(mod, &out); err != nil {
		t.Fatalf("CodegenModule: %s", err)
	}
	asm := out.String()
	for _, want := range []string{"add:", "\tadd\t", "\tblr\n"} {
		if !strings.Contains(asm, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, asm)
		}
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
	if err := newBackend(t, target.PPC64BE).CodegenModule(mod, &out); err != nil {
		t.Fatalf("CodegenModule: %s", err)
	}
	asm := out.String()
	for _, want := range []string{"\tfadd\t", "\tfsub\t", "\tlfd\t", "\tstfd\t"} {
		if !strings.Contains(asm, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, asm)
		}
	}
}

func TestCodegenModuleFloatSinglePrecisionUsesSuffixedForms(t *testing.T) {
	c := types.NewCache(8)
	f32 := c.F32()
	mod := ir.NewModule("m", 8)
	fn := mod.NewFunction("fmuls", c.Func(f32, []*types.Type{f32, f32}, false), ir.LinkageExternal)
	b := builder.New()
	b.SetInsertPoint(fn.Entry())
	b.Ret(b.FMul(fn.Param(0), fn.Param(1)))

	var out bytes.Buffer
	if err := newBackend(t, target.PPC32).CodegenModule(mod, &out); err != nil {
		t.Fatalf("CodegenModule: %s", err)
	}
	if !strings.Contains(out.String(), "\tfmuls\t") {
		t.Errorf("expected single-precision fmuls, got:\n%s", out.String())
	}
}

func TestCodegenModuleFloatUnaryAndCompare(t *testing.T) {
	c := types.NewCache(8)
	f64 := c.F64()
	mod := ir.NewModule("m", 8)
	fn := mod.NewFunction("fcmp", c.Func(c.I32(), []*types.Type{f64, f64}, false), ir.LinkageExternal)
	b := builder.New()
	b.SetInsertPoint(fn.Entry())
	neg := b.FNeg(fn.Param(0))
	abs := b.FAbs(neg)
	b.Ret(b.FCmp(ir.Cge, abs, fn.Param(1), c.I32()))

	var out bytes.Buffer
	if err := newBackend(t, target.PPC64LE).CodegenModule(mod, &out); err != nil {
		t.Fatalf("CodegenModule: %s", err)
	}
	asm := out.String()
	for _, want := range []string{"\tfneg\t", "\tfabs\t", "\tfcmpu\t", "\tbge\t"} {
		if !strings.Contains(asm, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, asm)
		}
	}
}

func TestCodegenModuleFloatIntConversions(t *testing.T) {
	c := types.NewCache(8)
	f64, i64 := c.F64(), c.I64()
	mod := ir.NewModule("m", 8)
	fn := mod.NewFunction("conv", c.Func(f64, []*types.Type{i64}, false), ir.LinkageExternal)
	b := builder.New()
	b.SetInsertPoint(fn.Entry())
	asFloat := b.SIToFP(fn.Param(0), f64)
	roundTrip := b.FPToSI(asFloat, i64)
	b.Ret(b.UIToFP(roundTrip, f64))

	var out bytes.Buffer
	if err := newBackend(t, target.PPC64BE).CodegenModule(mod, &out); err != nil {
		t.Fatalf("CodegenModule: %s", err)
	}
	asm := out.String()
	for _, want := range []string{"\tlfiwax\t", "\tfcfid\t", "\tfctidz\t", "\tlfiwzx\t", "\tfcfidu\t"} {
		if !strings.Contains(asm, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, asm)
		}
	}
}

func TestCodegenModulePPC32UsesWordConversions(t *testing.T) {
	c := types.NewCache(8)
	f64, i32 := c.F64(), c.I32()
	mod := ir.NewModule("m", 8)
	fn := mod.NewFunction("toint", c.Func(i32, []*types.Type{f64}, false), ir.LinkageExternal)
	b := builder.New()
	b.SetInsertPoint(fn.Entry())
	b.Ret(b.FPToSI(fn.Param(0), i32))

	var out bytes.Buffer
	if err := newBackend(t, target.PPC32).CodegenModule(mod, &out); err != nil {
		t.Fatalf("CodegenModule: %s", err)
	}
	if !strings.Contains(out.String(), "\tfctiwz\t") {
		t.Errorf("expected 32-bit target to use fctiwz, got:\n%s", out.String())
	}
}

func TestCodegenModuleReservesFloatScratchInFrame(t *testing.T) {
	c := types.NewCache(8)
	i32 := c.I32()
	mod := ir.NewModule("m", 8)
	fn := mod.NewFunction("f", c.Func(i32, nil, false), ir.LinkageExternal)
	b := builder.New()
	b.SetInsertPoint(fn.Entry())
	b.Ret(ir.ConstInt(i32, 0))

	word := int64(4)
	fr := backend.BuildFrame(fn, word, 16)
	wantFrameSize := fr.Size + 32 + fpScratchBytes

	var out bytes.Buffer
	if err := newBackend(t, target.PPC32).CodegenModule(mod, &out); err != nil {
		t.Fatalf("CodegenModule: %s", err)
	}
	if !strings.Contains(out.String(), fmt.Sprintf("stwu\tr1, -%d(r1)", wantFrameSize)) {
		t.Errorf("expected prologue to reserve a frame of %d bytes (including fpScratchBytes), got:\n%s", wantFrameSize, out.String())
	}
}
