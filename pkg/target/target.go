// Package target defines the fixed set of architectures ANVIL can retarget to,
// along with the assembler dialects, floating-point formats, and ABI variants
// each one supports. Nothing in this package depends on the IR; it only
// describes machines.
package target

import "fmt"

// Arch identifies one of the fixed set of target architectures.
type Arch int

const (
	X86 Arch = iota
	X86_64
	PPC32
	PPC64BE
	PPC64LE
	S370
	S370XA
	S390
	ZArchitecture
	ARM64Linux
	ARM64Darwin
)

func (a Arch) String() string {
	switch a {
	case X86:
		return "x86"
	case X86_64:
		return "x86-64"
	case PPC32:
		return "ppc32"
	case PPC64BE:
		return "ppc64be"
	case PPC64LE:
		return "ppc64le"
	case S370:
		return "s370"
	case S370XA:
		return "s370xa"
	case S390:
		return "s390"
	case ZArchitecture:
		return "z"
	case ARM64Linux:
		return "arm64-linux"
	case ARM64Darwin:
		return "arm64-darwin"
	}
	return fmt.Sprintf("arch(%d)", int(a))
}

// Endian is the byte order of a target's multi-byte scalars.
type Endian int

const (
	LittleEndian Endian = iota
	BigEndian
)

// StackDirection is the direction the stack grows on a call.
type StackDirection int

const (
	StackDown StackDirection = iota // toward lower addresses
	StackUp                          // toward higher addresses
)

// Dialect selects the textual assembler syntax a backend emits.
type Dialect int

const (
	DialectGAS Dialect = iota
	DialectNASM
	DialectHLASM
)

func (d Dialect) String() string {
	switch d {
	case DialectGAS:
		return "gas"
	case DialectNASM:
		return "nasm"
	case DialectHLASM:
		return "hlasm"
	}
	return "?"
}

// FPFormat selects the floating-point representation a backend targets.
type FPFormat int

const (
	FPIEEE754 FPFormat = iota
	FPIBMHex
)

func (f FPFormat) String() string {
	if f == FPIBMHex {
		return "ibm-hfp"
	}
	return "ieee754"
}

// ABI names a calling-convention variant within a target family. Most
// targets have exactly one; mainframes and PPC carry a couple of historical
// variants that differ in save-area layout.
type ABI int

const (
	ABIDefault ABI = iota
	ABILinuxSystemV
	ABIDarwin
	ABIAIX
)

// OptLevel selects which optimization passes a pipeline run enables.
type OptLevel int

const (
	O0 OptLevel = iota
	O1
	O2
	O3
	Og // debug-friendly: copy and store-load propagation only
)

// Info is the descriptor returned by ctx_get_arch_info in the spec: a
// snapshot of everything lowering and emission need to know about a target.
type Info struct {
	Name         string
	AddrBits     int
	PtrSize      int // bytes
	WordSize     int // bytes
	NumGPR       int
	NumFPR       int
	Endian       Endian
	StackDir     StackDirection
	FPFormat     FPFormat
	HasCondCodes bool
	HasDelaySlots bool
}

// DefaultDialect returns the assembler dialect a target uses unless the
// context overrides it (x86 family allows GAS<->NASM override; everything
// else has exactly one sensible dialect).
func DefaultDialect(a Arch) Dialect {
	switch a {
	case S370, S370XA, S390, ZArchitecture:
		return DialectHLASM
	default:
		return DialectGAS
	}
}

// SupportsDialectOverride reports whether ctx_set_syntax may legally change
// the dialect away from the default for this architecture.
func SupportsDialectOverride(a Arch) bool {
	return a == X86 || a == X86_64
}

// DefaultFPFormat is the FP format a target uses when the context hasn't
// overridden it.
func DefaultFPFormat(a Arch) FPFormat {
	switch a {
	case S370, S370XA:
		return FPIBMHex
	default:
		return FPIEEE754
	}
}

// SupportsFPFormat reports whether fmt is legal on a, used to validate
// ctx_set_fp_format.
func SupportsFPFormat(a Arch, f FPFormat) bool {
	switch a {
	case S370, S370XA:
		return f == FPIBMHex
	case S390, ZArchitecture:
		return true // both HFP and IEEE-754 are supported
	default:
		return f == FPIEEE754
	}
}

// ArchInfo returns the static descriptor for a, independent of any
// context-level overrides (pointer size etc. never vary per-context for a
// fixed architecture in this model).
func ArchInfo(a Arch) Info {
	switch a {
	case X86:
		return Info{Name: "x86", AddrBits: 32, PtrSize: 4, WordSize: 4, NumGPR: 6, NumFPR: 8, Endian: LittleEndian, StackDir: StackDown, FPFormat: FPIEEE754, HasCondCodes: true}
	case X86_64:
		return Info{Name: "x86-64", AddrBits: 64, PtrSize: 8, WordSize: 8, NumGPR: 14, NumFPR: 16, Endian: LittleEndian, StackDir: StackDown, FPFormat: FPIEEE754, HasCondCodes: true}
	case PPC32:
		return Info{Name: "ppc32", AddrBits: 32, PtrSize: 4, WordSize: 4, NumGPR: 32, NumFPR: 32, Endian: BigEndian, StackDir: StackDown, FPFormat: FPIEEE754, HasCondCodes: true}
	case PPC64BE:
		return Info{Name: "ppc64", AddrBits: 64, PtrSize: 8, WordSize: 8, NumGPR: 32, NumFPR: 32, Endian: BigEndian, StackDir: StackDown, FPFormat: FPIEEE754, HasCondCodes: true}
	case PPC64LE:
		return Info{Name: "ppc64le", AddrBits: 64, PtrSize: 8, WordSize: 8, NumGPR: 32, NumFPR: 32, Endian: LittleEndian, StackDir: StackDown, FPFormat: FPIEEE754, HasCondCodes: true}
	case S370:
		return Info{Name: "s370", AddrBits: 24, PtrSize: 4, WordSize: 4, NumGPR: 16, NumFPR: 4, Endian: BigEndian, StackDir: StackUp, FPFormat: FPIBMHex, HasCondCodes: true}
	case S370XA:
		return Info{Name: "s370xa", AddrBits: 31, PtrSize: 4, WordSize: 4, NumGPR: 16, NumFPR: 4, Endian: BigEndian, StackDir: StackUp, FPFormat: FPIBMHex, HasCondCodes: true}
	case S390:
		return Info{Name: "s390", AddrBits: 31, PtrSize: 4, WordSize: 4, NumGPR: 16, NumFPR: 4, Endian: BigEndian, StackDir: StackUp, FPFormat: FPIBMHex, HasCondCodes: true}
	case ZArchitecture:
		return Info{Name: "z", AddrBits: 64, PtrSize: 8, WordSize: 8, NumGPR: 16, NumFPR: 16, Endian: BigEndian, StackDir: StackUp, FPFormat: FPIEEE754, HasCondCodes: true}
	case ARM64Linux:
		return Info{Name: "arm64-linux", AddrBits: 64, PtrSize: 8, WordSize: 8, NumGPR: 31, NumFPR: 32, Endian: LittleEndian, StackDir: StackDown, FPFormat: FPIEEE754, HasCondCodes: true}
	case ARM64Darwin:
		return Info{Name: "arm64-darwin", AddrBits: 64, PtrSize: 8, WordSize: 8, NumGPR: 31, NumFPR: 32, Endian: LittleEndian, StackDir: StackDown, FPFormat: FPIEEE754, HasCondCodes: true}
	}
	return Info{}
}

// StackAlignBytes is the required alignment of the outgoing stack pointer
// at a call site, per ABI.
func StackAlignBytes(a Arch) int64 {
	switch a {
	case X86_64, ARM64Linux, ARM64Darwin:
		return 16
	case X86:
		return 4
	case PPC32:
		return 8
	case PPC64BE, PPC64LE:
		return 16
	default:
		return 8
	}
}

// Registered reports whether a backend is expected to exist for a. The
// backend registry (pkg/backend) is the authority on what's actually
// registered; this is used by ctx_set_target to short-circuit with
// a NoBackend error before touching the registry for architectures ANVIL never
// intends to support.
func Registered(a Arch) bool {
	switch a {
	case X86, X86_64, PPC32, PPC64BE, PPC64LE, S370, S370XA, S390, ZArchitecture, ARM64Linux, ARM64Darwin:
		return true
	default:
		return false
	}
}
