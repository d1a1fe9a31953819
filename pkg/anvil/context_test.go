package anvil

import (
	"bytes"
	"strings"
	"testing"

	_ "github.com/bencz/anvil-go/pkg/backend/arm64"
	_ "github.com/bencz/anvil-go/pkg/backend/mainframe"
	_ "github.com/bencz/anvil-go/pkg/backend/ppc"
	_ "github.com/bencz/anvil-go/pkg/backend/x86"
	"github.com/bencz/anvil-go/pkg/builder"
	"github.com/bencz/anvil-go/pkg/ir"
	"github.com/bencz/anvil-go/pkg/target"
	"github.com/bencz/anvil-go/pkg/types"
)

func TestSetTargetRejectsUnregisteredArch(t *testing.T) {
	c := NewContext()
	if err := c.SetTarget(target.Arch(999)); err == nil {
		t.Fatal("expected an error for an unregistered architecture")
	}
	if c.LastError() == nil || c.LastError().Kind != NoBackend {
		t.Fatalf("expected NoBackend, got %v", c.LastError())
	}
}

func TestSetTargetResetsDerivedState(t *testing.T) {
	c := NewContext()
	if err := c.SetTarget(target.S370); err != nil {
		t.Fatalf("SetTarget: %s", err)
	}
	if c.CPU() != target.CPUGeneric {
		t.Fatalf("expected CPU to reset to generic, got %v", c.CPU())
	}
	if c.Types().PointerSize() != 4 {
		t.Fatalf("expected pointer size to follow s370's 4-byte PtrSize, got %d", c.Types().PointerSize())
	}
	info, err := c.ArchInfo()
	if err != nil {
		t.Fatalf("ArchInfo: %s", err)
	}
	if info.Name != "s370" {
		t.Fatalf("expected ArchInfo().Name == s370, got %s", info.Name)
	}
}

func TestOperationsBeforeSetTargetFailInvalidArgument(t *testing.T) {
	c := NewContext()
	if _, err := c.ArchInfo(); err == nil {
		t.Fatal("expected ArchInfo to fail before SetTarget")
	}
	if c.LastError() == nil || c.LastError().Kind != InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", c.LastError())
	}
}

func TestSetSyntaxOnlyAllowsOverrideOnX86Family(t *testing.T) {
	c := NewContext()
	if err := c.SetTarget(target.X86_64); err != nil {
		t.Fatalf("SetTarget: %s", err)
	}
	if err := c.SetSyntax(target.DialectNASM); err != nil {
		t.Fatalf("expected x86-64 to allow a NASM override, got %s", err)
	}

	c2 := NewContext()
	if err := c2.SetTarget(target.PPC64BE); err != nil {
		t.Fatalf("SetTarget: %s", err)
	}
	if err := c2.SetSyntax(target.DialectNASM); err == nil {
		t.Fatal("expected ppc64be to reject a dialect override")
	}
	if c2.LastError() == nil || c2.LastError().Kind != InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", c2.LastError())
	}
}

func TestSetFPFormatRejectsUnsupportedFormat(t *testing.T) {
	c := NewContext()
	if err := c.SetTarget(target.S370); err != nil {
		t.Fatalf("SetTarget: %s", err)
	}
	if err := c.SetFPFormat(target.FPIEEE754); err == nil {
		t.Fatal("expected s370 to reject an IEEE-754 FP format request")
	}
	if c.LastError() == nil || c.LastError().Kind != UnsupportedFeature {
		t.Fatalf("expected UnsupportedFeature, got %v", c.LastError())
	}
}

func TestEnableFeatureRejectsOutOfFamilyBit(t *testing.T) {
	c := NewContext()
	if err := c.SetTarget(target.PPC64LE); err != nil {
		t.Fatalf("SetTarget: %s", err)
	}
	if err := c.EnableFeature(target.FeatX86AVX2); err == nil {
		t.Fatal("expected enabling an x86 feature bit on a PPC target to fail")
	}
	if err := c.EnableFeature(target.FeatPPCVSX); err != nil {
		t.Fatalf("expected enabling an in-family PPC feature to succeed, got %s", err)
	}
	if !c.HasFeature(target.FeatPPCVSX) {
		t.Fatal("expected FeatPPCVSX to be enabled")
	}
}

func TestSetCPUResetsFeatureMask(t *testing.T) {
	c := NewContext()
	if err := c.SetTarget(target.X86_64); err != nil {
		t.Fatalf("SetTarget: %s", err)
	}
	if err := c.EnableFeature(target.FeatX86BMI2); err != nil {
		t.Fatalf("EnableFeature: %s", err)
	}
	if err := c.SetCPU(target.CPUCoreAVX2); err != nil {
		t.Fatalf("SetCPU: %s", err)
	}
	if c.HasFeature(target.FeatX86BMI2) {
		t.Fatal("expected SetCPU to reset the feature mask, dropping the manually-enabled BMI2 bit")
	}
	if !c.HasFeature(target.FeatX86AVX2) {
		t.Fatal("expected core-avx2's default feature set to include AVX2")
	}
}

func TestLoadCPUProfileAppliesFeatureMask(t *testing.T) {
	c := NewContext()
	if err := c.SetTarget(target.PPC64BE); err != nil {
		t.Fatalf("SetTarget: %s", err)
	}
	doc := []byte("name: power9-custom\narch: ppc64\nfeatures:\n  - altivec\n  - vsx\n")
	if err := c.LoadCPUProfile(doc); err != nil {
		t.Fatalf("LoadCPUProfile: %s", err)
	}
	if !c.HasFeature(target.FeatPPCAltivec) || !c.HasFeature(target.FeatPPCVSX) {
		t.Fatalf("expected both profile features enabled, got mask %v", c.CPUFeatures())
	}
}

func TestLoadCPUProfileRejectsUnknownFeatureName(t *testing.T) {
	c := NewContext()
	if err := c.SetTarget(target.X86_64); err != nil {
		t.Fatalf("SetTarget: %s", err)
	}
	doc := []byte("name: bogus\narch: x86-64\nfeatures:\n  - warp-drive\n")
	if err := c.LoadCPUProfile(doc); err == nil {
		t.Fatal("expected an unknown feature name to fail")
	}
}

func TestNewModuleAndCodegenModuleRoundTrip(t *testing.T) {
	c := NewContext()
	if err := c.SetTarget(target.X86_64); err != nil {
		t.Fatalf("SetTarget: %s", err)
	}
	mod := c.NewModule("m")
	i32 := c.Types().I32()
	fn := mod.NewFunction("add", c.Types().Func(i32, []*types.Type{i32, i32}, false), ir.LinkageExternal)
	b := builder.New()
	b.SetInsertPoint(fn.Entry())
	b.Ret(b.Add(fn.Param(0), fn.Param(1)))

	c.Optimize(mod)

	var out bytes.Buffer
	if err := c.CodegenModule(mod, &out); err != nil {
		t.Fatalf("CodegenModule: %s", err)
	}
	if !strings.Contains(out.String(), "add:") {
		t.Fatalf("expected emitted assembly to contain the function label, got:\n%s", out.String())
	}
}

func TestWriteModuleFailsOnUnwritablePath(t *testing.T) {
	c := NewContext()
	if err := c.SetTarget(target.X86_64); err != nil {
		t.Fatalf("SetTarget: %s", err)
	}
	mod := c.NewModule("m")
	i32 := c.Types().I32()
	fn := mod.NewFunction("noop", c.Types().Func(i32, nil, false), ir.LinkageExternal)
	b := builder.New()
	b.SetInsertPoint(fn.Entry())
	b.Ret(ir.ConstInt(i32, 0))

	if err := c.WriteModule(mod, "/nonexistent-dir/out.s"); err == nil {
		t.Fatal("expected WriteModule to fail for an unwritable path")
	}
	if c.LastError() == nil || c.LastError().Kind != IO {
		t.Fatalf("expected IO error kind, got %v", c.LastError())
	}
}
