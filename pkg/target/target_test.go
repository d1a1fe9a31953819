package target

import "testing"

func TestArchInfoMatchesNamedArch(t *testing.T) {
	cases := map[Arch]string{
		X86:           "x86",
		X86_64:        "x86-64",
		PPC32:         "ppc32",
		PPC64BE:       "ppc64",
		PPC64LE:       "ppc64le",
		S370:          "s370",
		S370XA:        "s370xa",
		S390:          "s390",
		ZArchitecture: "z",
		ARM64Linux:    "arm64-linux",
		ARM64Darwin:   "arm64-darwin",
	}
	for arch, name := range cases {
		info := ArchInfo(arch)
		if info.Name != name {
			t.Errorf("ArchInfo(%s).Name = %q, want %q", arch, info.Name, name)
		}
	}
}

func TestSupportsDialectOverrideOnlyOnX86Family(t *testing.T) {
	if !SupportsDialectOverride(X86) || !SupportsDialectOverride(X86_64) {
		t.Error("expected the x86 family to support a dialect override")
	}
	for _, a := range []Arch{PPC32, PPC64BE, PPC64LE, S370, S390, ZArchitecture, ARM64Linux} {
		if SupportsDialectOverride(a) {
			t.Errorf("expected %s not to support a dialect override", a)
		}
	}
}

func TestDefaultDialectPicksHLASMForMainframeFamily(t *testing.T) {
	for _, a := range []Arch{S370, S370XA, S390, ZArchitecture} {
		if got := DefaultDialect(a); got != DialectHLASM {
			t.Errorf("DefaultDialect(%s) = %s, want hlasm", a, got)
		}
	}
	for _, a := range []Arch{X86, X86_64, PPC32, ARM64Linux} {
		if got := DefaultDialect(a); got != DialectGAS {
			t.Errorf("DefaultDialect(%s) = %s, want gas", a, got)
		}
	}
}

func TestSupportsFPFormat(t *testing.T) {
	if SupportsFPFormat(S370, FPIEEE754) {
		t.Error("expected classic S/370 to reject IEEE-754")
	}
	if !SupportsFPFormat(S370, FPIBMHex) {
		t.Error("expected classic S/370 to support IBM hex FP")
	}
	if !SupportsFPFormat(S390, FPIEEE754) || !SupportsFPFormat(S390, FPIBMHex) {
		t.Error("expected S/390 to support both FP formats")
	}
	if SupportsFPFormat(X86_64, FPIBMHex) {
		t.Error("expected x86-64 to reject IBM hex FP")
	}
}

func TestRegistered(t *testing.T) {
	for _, a := range []Arch{X86, X86_64, PPC32, PPC64BE, PPC64LE, S370, S370XA, S390, ZArchitecture, ARM64Linux, ARM64Darwin} {
		if !Registered(a) {
			t.Errorf("expected %s to be a recognized target", a)
		}
	}
	if Registered(Arch(999)) {
		t.Error("expected an out-of-range arch to be unregistered")
	}
}

func TestStackAlignBytes(t *testing.T) {
	cases := map[Arch]int64{
		X86_64:     16,
		X86:        4,
		PPC32:      8,
		PPC64BE:    16,
		S390:       8,
		ARM64Linux: 16,
	}
	for arch, want := range cases {
		if got := StackAlignBytes(arch); got != want {
			t.Errorf("StackAlignBytes(%s) = %d, want %d", arch, got, want)
		}
	}
}

func TestInFamily(t *testing.T) {
	if !InFamily(X86_64, FeatX86AVX2) {
		t.Error("expected FeatX86AVX2 to be in the x86 family")
	}
	if InFamily(PPC64BE, FeatX86AVX2) {
		t.Error("expected FeatX86AVX2 not to be in the PPC family")
	}
	if !InFamily(ZArchitecture, FeatMainframeVectorFacility) {
		t.Error("expected FeatMainframeVectorFacility to be in the mainframe family")
	}
	if !InFamily(ARM64Darwin, FeatARM64SVE) {
		t.Error("expected FeatARM64SVE to be in the ARM64 family")
	}
}

func TestDefaultFeatures(t *testing.T) {
	if DefaultFeatures(CPUGeneric) != 0 {
		t.Error("expected the generic CPU model to enable no features")
	}
	want := FeatX86SSE2 | FeatX86SSE4_2 | FeatX86AVX | FeatX86AVX2
	if got := DefaultFeatures(CPUCoreAVX2); got != want {
		t.Errorf("DefaultFeatures(CPUCoreAVX2) = %v, want %v", got, want)
	}
	if got := DefaultFeatures(CPUPower9); got&FeatPPCISA3 == 0 {
		t.Error("expected power9's default features to include ISA 3.0")
	}
}

func TestCPUModelName(t *testing.T) {
	cases := map[CPUModel]string{
		CPUGeneric:   "generic",
		CPUPentium4:  "pentium4",
		CPUPower9:    "power9",
		CPUz15:       "z15",
		CPUAppleM1:   "apple-m1",
		CPUCortexA72: "cortex-a72",
	}
	for m, want := range cases {
		if got := CPUModelName(m); got != want {
			t.Errorf("CPUModelName(%v) = %q, want %q", m, got, want)
		}
	}
}

func TestParseProfileValidDocument(t *testing.T) {
	doc := []byte("name: power9-custom\narch: ppc64\nfeatures:\n  - altivec\n  - vsx\n  - isa3\n")
	p, mask, err := ParseProfile(doc)
	if err != nil {
		t.Fatalf("ParseProfile: %s", err)
	}
	if p.Name != "power9-custom" || p.Arch != "ppc64" {
		t.Errorf("unexpected profile metadata: %+v", p)
	}
	want := FeatPPCAltivec | FeatPPCVSX | FeatPPCISA3
	if mask != want {
		t.Errorf("ParseProfile mask = %v, want %v", mask, want)
	}
}

func TestParseProfileUnknownFeatureName(t *testing.T) {
	doc := []byte("name: bogus\narch: x86-64\nfeatures:\n  - teleportation\n")
	if _, _, err := ParseProfile(doc); err == nil {
		t.Fatal("expected an unknown feature name to produce an error")
	}
}

func TestParseProfileMalformedYAML(t *testing.T) {
	doc := []byte("not: [valid\n")
	if _, _, err := ParseProfile(doc); err == nil {
		t.Fatal("expected malformed YAML to produce an error")
	}
}
