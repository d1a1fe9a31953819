package target

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// CPUModel names a specific processor implementation within an architecture
// family (e.g. "power9" within the PPC64 family). The auxiliary CPU-model
// sub-API lets a client ask for a named model and then fine-tune individual
// feature bits away from that model's defaults.
type CPUModel int

const (
	CPUGeneric CPUModel = iota
	CPUPentium4
	CPUCoreAVX2
	CPUPower8
	CPUPower9
	CPUPower10
	CPUz13
	CPUz15
	CPUCortexA72
	CPUAppleM1
)

// CPUModelName returns the canonical textual name of a CPU model, used for
// profile lookups and diagnostics.
func CPUModelName(m CPUModel) string {
	switch m {
	case CPUPentium4:
		return "pentium4"
	case CPUCoreAVX2:
		return "core-avx2"
	case CPUPower8:
		return "power8"
	case CPUPower9:
		return "power9"
	case CPUPower10:
		return "power10"
	case CPUz13:
		return "z13"
	case CPUz15:
		return "z15"
	case CPUCortexA72:
		return "cortex-a72"
	case CPUAppleM1:
		return "apple-m1"
	default:
		return "generic"
	}
}

// Feature is a single bit in a 64-bit per-context feature mask. Bits are
// partitioned by architecture family into disjoint ranges so a mask can in
// principle describe features across families without collision, even
// though any one context only consults the range for its current arch.
type Feature uint64

// x86 family: bits 0-15.
const (
	FeatX86SSE2 Feature = 1 << iota
	FeatX86SSE4_2
	FeatX86AVX
	FeatX86AVX2
	FeatX86BMI2
)

// PPC family: bits 16-31.
const (
	FeatPPCAltivec Feature = 1 << (16 + iota)
	FeatPPCVSX
	FeatPPCISA3
)

// Mainframe family: bits 32-47.
const (
	FeatMainframeIEEEFP Feature = 1 << (32 + iota)
	FeatMainframeVectorFacility
	FeatMainframeDecimalFacility
)

// ARM64 family: bits 48-63.
const (
	FeatARM64NEON Feature = 1 << (48 + iota)
	FeatARM64Crypto
	FeatARM64SVE
)

// featureRange returns the half-open [lo, hi) bit range reserved for the
// family a belongs to, used to validate that an feature toggle targets a
// bit meaningful for the active architecture.
func featureRange(a Arch) (lo, hi uint) {
	switch a {
	case X86, X86_64:
		return 0, 16
	case PPC32, PPC64BE, PPC64LE:
		return 16, 32
	case S370, S370XA, S390, ZArchitecture:
		return 32, 48
	case ARM64Linux, ARM64Darwin:
		return 48, 64
	}
	return 0, 0
}

// InFamily reports whether feature bit f is in the range reserved for a's
// architecture family.
func InFamily(a Arch, f Feature) bool {
	lo, hi := featureRange(a)
	for bit := lo; bit < hi; bit++ {
		if f == Feature(1)<<bit {
			return true
		}
	}
	return false
}

// DefaultFeatures returns the feature mask a named CPU model enables by
// default. Enabling a feature bit outside of this default set is always
// allowed (ctx_enable_feature never fails for an in-family bit). No backend
// consults the feature mask: enabling or disabling a bit does not change
// the emitted instructions on any target.
func DefaultFeatures(m CPUModel) Feature {
	switch m {
	case CPUPentium4:
		return FeatX86SSE2
	case CPUCoreAVX2:
		return FeatX86SSE2 | FeatX86SSE4_2 | FeatX86AVX | FeatX86AVX2
	case CPUPower8:
		return FeatPPCAltivec | FeatPPCVSX
	case CPUPower9, CPUPower10:
		return FeatPPCAltivec | FeatPPCVSX | FeatPPCISA3
	case CPUz13, CPUz15:
		return FeatMainframeIEEEFP | FeatMainframeVectorFacility
	case CPUCortexA72:
		return FeatARM64NEON | FeatARM64Crypto
	case CPUAppleM1:
		return FeatARM64NEON | FeatARM64Crypto | FeatARM64SVE
	default:
		return 0
	}
}

// Profile is the YAML-serializable shape of a CPU model's feature preset,
// used by Context.LoadCPUProfile when a client wants to load custom or
// third-party profiles instead of (or alongside) the builtin table above.
type Profile struct {
	Name     string   `yaml:"name"`
	Arch     string   `yaml:"arch"`
	Features []string `yaml:"features"`
}

// featureNames maps the textual names used in profile YAML to bits.
var featureNames = map[string]Feature{
	"sse2":               FeatX86SSE2,
	"sse4.2":             FeatX86SSE4_2,
	"avx":                FeatX86AVX,
	"avx2":                FeatX86AVX2,
	"bmi2":               FeatX86BMI2,
	"altivec":            FeatPPCAltivec,
	"vsx":                FeatPPCVSX,
	"isa3":               FeatPPCISA3,
	"ieee-fp":            FeatMainframeIEEEFP,
	"vector-facility":    FeatMainframeVectorFacility,
	"decimal-facility":   FeatMainframeDecimalFacility,
	"neon":               FeatARM64NEON,
	"crypto":             FeatARM64Crypto,
	"sve":                FeatARM64SVE,
}

// ParseProfile decodes a YAML CPU-model profile document (as produced by
// vendors shipping custom `-mcpu` style descriptors) into a feature mask.
// It is the loader half of the CPU-model sub-API: Context.SetCPU accepts
// a builtin CPUModel, and Context.LoadCPUProfile applies the mask parsed
// from one of these documents.
func ParseProfile(doc []byte) (Profile, Feature, error) {
	var p Profile
	if err := yaml.Unmarshal(doc, &p); err != nil {
		return Profile{}, 0, fmt.Errorf("anvil: parsing cpu profile: %w", err)
	}
	var mask Feature
	for _, name := range p.Features {
		bit, ok := featureNames[name]
		if !ok {
			return Profile{}, 0, fmt.Errorf("anvil: cpu profile %q: unknown feature %q", p.Name, name)
		}
		mask |= bit
	}
	return p, mask, nil
}
