// Package mainframe implements ANVIL's IBM mainframe backend, spanning
// S/370, S/370-XA, S/390, and z/Architecture from one code path keyed
// off target.Arch and target.FPFormat, the way the source's single
// ARM64 printer keys its output off one isDarwin bool - here the
// branching factor is wider (word size, HFP vs IEEE-754, uppercase
// HLASM naming) but the shape is the same: one printer, several
// target-derived switches.
package mainframe

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/bencz/anvil-go/pkg/backend"
	"github.com/bencz/anvil-go/pkg/ir"
	"github.com/bencz/anvil-go/pkg/target"
	"github.com/bencz/anvil-go/pkg/types"
)

func init() {
	backend.Register(target.S370, func() backend.Backend { return &Backend{arch: target.S370} })
	backend.Register(target.S370XA, func() backend.Backend { return &Backend{arch: target.S370XA} })
	backend.Register(target.S390, func() backend.Backend { return &Backend{arch: target.S390} })
	backend.Register(target.ZArchitecture, func() backend.Backend { return &Backend{arch: target.ZArchitecture} })
}

// Backend lowers IR to HLASM-dialect assembly text in an approximation
// of the classic HLASM statement layout: the name field is padded with
// spaces to 8 characters and the operation starts in column 10. Other
// punch-card column rules are not reproduced.
type Backend struct {
	arch     target.Arch
	info     target.Info
	fpFormat target.FPFormat
}

func (b *Backend) Init(cfg backend.Config) error {
	b.arch = cfg.Arch
	b.info = target.ArchInfo(cfg.Arch)
	b.fpFormat = cfg.FPFormat
	if !target.SupportsFPFormat(cfg.Arch, b.fpFormat) {
		return fmt.Errorf("anvil: %s does not support FP format %s", cfg.Arch, b.fpFormat)
	}
	return nil
}

func (b *Backend) ArchInfo() target.Info { return b.info }

// r1 carries the argument-list pointer per the traditional mainframe C
// ABI; r14 is the return address; r13 is the save-area (DSA) pointer,
// which this backend also uses as its stack pointer. r2/r3 are the
// accumulator/temp pair.
const accReg, tmpReg, spReg, argListReg = "R2", "R3", "R13", "R1"

// floatAcc/floatTmp are the FPR accumulator/temp pair. Only the
// even-numbered FPRs (0, 2, 4, 6) are usable as HFP register-pair
// operands on the oldest machines this backend targets, so the scheme
// sticks to that subset even where BFP would allow any of F0-F15.
const floatAcc, floatTmp = "F0", "F2"

func (b *Backend) wordSize() int64 {
	if b.arch == target.ZArchitecture || b.arch == target.S370XA {
		return int64(b.info.WordSize)
	}
	return int64(b.info.WordSize)
}

func (b *Backend) CodegenModule(mod *ir.Module, w io.Writer) error {
	mod.InternStrings()

	names := make([]string, 0, len(mod.Functions))
	byName := make(map[string]*ir.Function)
	for _, f := range mod.Functions {
		names = append(names, f.Name)
		byName[f.Name] = f
	}
	sort.Strings(names)
	for _, name := range names {
		f := byName[name]
		if f.IsDeclaration {
			continue
		}
		b.codegenFunc(f, w)
	}

	strs := mod.InternedStrings()
	for _, s := range strs {
		fmt.Fprintf(w, "%-8s DC    C'%s'\n", strings.ToUpper(label(s.Label)), string(s.Data))
	}
	for _, g := range mod.Globals {
		fmt.Fprintf(w, "%-8s DS    %dXL1\n", strings.ToUpper(g.Name), g.Type.Size)
	}
	fmt.Fprintf(w, "         END\n")
	return nil
}

// label rewrites a "L.str.N" synthetic label into an HLASM-legal
// (<=8 char, no dots) symbol.
func label(s string) string {
	return strings.ReplaceAll(s, ".", "")
}

// symbolFor upper-cases every user symbol, matching the traditional
// HLASM/COBOL-linkage convention of case-insensitive, uppercased
// external names.
func symbolFor(v *ir.Value) string {
	switch v.Kind {
	case ir.ValGlobal:
		return strings.ToUpper(v.Global.Name)
	case ir.ValFunc:
		return strings.ToUpper(v.Fn.Name)
	default:
		return strings.ToUpper(v.Name)
	}
}

func (b *Backend) codegenFunc(f *ir.Function, w io.Writer) {
	word := b.wordSize()
	fr := backend.BuildFrame(f, word, 8)
	f.StackFrameSize = fr.Size

	name := strings.ToUpper(f.Name)
	fmt.Fprintf(w, "%-8s CSECT\n", name)
	fmt.Fprintf(w, "         STM   14,12,12(13)\n")
	fmt.Fprintf(w, "         LA    %s,%d(,13)\n", spReg, fr.Size)

	for i, off := range fr.ParamOffset {
		fmt.Fprintf(w, "         L     %s,%d(,%s)\n", accReg, i*int(word), argListReg)
		fmt.Fprintf(w, "         %s   %s,%d(,%s)\n", storeOp(word), accReg, off, spReg)
	}

	f.RecomputeCFG()
	for _, blk := range f.Blocks() {
		fmt.Fprintf(w, "%-8s DS    0H\n", blockLabel(f, blk))
		for _, instr := range blk.Instructions() {
			b.lower(w, f, fr, blk, instr, word)
		}
	}

	fmt.Fprintf(w, "%-8s DS    0H\n", f.Name+"RET")
	fmt.Fprintf(w, "         L     13,4(,13)\n")
	fmt.Fprintf(w, "         LM    14,12,12(13)\n")
	fmt.Fprintf(w, "         BR    14\n")
}

func blockLabel(f *ir.Function, b *ir.BasicBlock) string {
	return fmt.Sprintf("%s%d", strings.ToUpper(f.Name), b.ID)
}

func storeOp(word int64) string {
	if word == 8 {
		return "STG"
	}
	return "ST"
}

func loadOp(word int64) string {
	if word == 8 {
		return "LG"
	}
	return "L"
}

func (b *Backend) load(w io.Writer, reg string, fr *backend.Frame, v *ir.Value) {
	switch v.Kind {
	case ir.ValConstInt:
		fmt.Fprintf(w, "         LHI   %s,%d\n", reg, v.IntVal)
	case ir.ValConstNull:
		fmt.Fprintf(w, "         LHI   %s,0\n", reg)
	default:
		if off, ok := fr.SlotOf(v); ok {
			fmt.Fprintf(w, "         %s    %s,%d(,%s)\n", loadOp(fr.WordSize), reg, off, spReg)
			return
		}
		fmt.Fprintf(w, "         LA    %s,%s\n", reg, symbolFor(v))
	}
}

func (b *Backend) store(w io.Writer, fr *backend.Frame, v *ir.Value, reg string) {
	off, ok := fr.SlotOf(v)
	if !ok {
		return
	}
	fmt.Fprintf(w, "         %s    %s,%d(,%s)\n", storeOp(fr.WordSize), reg, off, spReg)
}

// bfp reports whether this target's selected FP format is IEEE-754
// binary floating point rather than IBM hexadecimal floating point -
// the two mainframe arithmetic mnemonic families this backend chooses
// between on every floating opcode.
func (b *Backend) bfp() bool { return b.fpFormat != target.FPIBMHex }

func floatLoadOp(is32 bool) string {
	if is32 {
		return "LE"
	}
	return "LD"
}

func floatStoreOp(is32 bool) string {
	if is32 {
		return "STE"
	}
	return "STD"
}

// floatLiteral formats a constant as an HLASM literal-pool reference.
// The assembler builds the literal's bytes from the decimal text
// itself, so no bit-pattern construction is needed here the way the
// GPR-based backends need for their integer registers.
func (b *Backend) floatLiteral(ty *types.Type, v float64) string {
	is32 := ty.Kind == types.F32
	if b.bfp() {
		if is32 {
			return fmt.Sprintf("=EB'%g'", v)
		}
		return fmt.Sprintf("=DB'%g'", v)
	}
	if is32 {
		return fmt.Sprintf("=E'%g'", v)
	}
	return fmt.Sprintf("=D'%g'", v)
}

func (b *Backend) loadF(w io.Writer, freg string, fr *backend.Frame, v *ir.Value) {
	is32 := v.Type.Kind == types.F32
	op := floatLoadOp(is32)
	switch v.Kind {
	case ir.ValConstFloat:
		fmt.Fprintf(w, "         %-6s%s,%s\n", op, freg, b.floatLiteral(v.Type, v.FloatVal))
	default:
		if off, ok := fr.SlotOf(v); ok {
			fmt.Fprintf(w, "         %-6s%s,%d(,%s)\n", op, freg, off, spReg)
			return
		}
		fmt.Fprintf(w, "         %-6s%s,%s\n", op, freg, symbolFor(v))
	}
}

func (b *Backend) storeF(w io.Writer, fr *backend.Frame, v *ir.Value, freg string) {
	off, ok := fr.SlotOf(v)
	if !ok {
		return
	}
	fmt.Fprintf(w, "         %-6s%s,%d(,%s)\n", floatStoreOp(v.Type.Kind == types.F32), freg, off, spReg)
}

// fpMnemonic builds an arithmetic/unary mnemonic from its base letter
// (A/S/M/D for add/sub/mul/div, LC/LP for negate/absolute, C for
// compare) by appending the precision letter (D long, E short) and,
// for the IEEE-754 binary floating point facility, a B before the
// trailing R that HFP register-register forms don't carry: ADR vs
// ADBR, CER vs CEBR, LCDR vs LCDBR.
func fpMnemonic(base string, is32, bfp bool) string {
	letter := "D"
	if is32 {
		letter = "E"
	}
	if bfp {
		return base + letter + "BR"
	}
	return base + letter + "R"
}

func arithPrefix(op ir.Opcode) string {
	switch op {
	case ir.OpFAdd:
		return "A"
	case ir.OpFSub:
		return "S"
	case ir.OpFMul:
		return "M"
	case ir.OpFDiv:
		return "D"
	}
	return "?"
}

// fpToIntMnemonic names the BFP convert-to-fixed instruction. S/370
// hexadecimal floating point has no native float-to-integer
// instruction, so conversions always use the binary floating point
// facility's encodings regardless of the target's selected FP format.
func fpToIntMnemonic(floatIs32 bool, intIs64, unsigned bool) string {
	base := "CF"
	if intIs64 {
		base = "CG"
	}
	if unsigned {
		base = "CL" + base[1:]
	}
	letter := "D"
	if floatIs32 {
		letter = "E"
	}
	return base + letter + "BR"
}

// fpFromIntMnemonic is fpToIntMnemonic's inverse: convert-from-fixed.
func fpFromIntMnemonic(floatIs32 bool, intIs64, unsigned bool) string {
	letter := "D"
	if floatIs32 {
		letter = "E"
	}
	base := "C" + letter
	switch {
	case unsigned && intIs64:
		return base + "LGBR"
	case unsigned:
		return base + "LFBR"
	case intIs64:
		return base + "GBR"
	default:
		return base + "FBR"
	}
}

func bcCondFromCondition(cond ir.Condition) string {
	switch cond {
	case ir.Ceq:
		return "E"
	case ir.Cne:
		return "NE"
	case ir.Clt:
		return "L"
	case ir.Cle:
		return "LE"
	case ir.Cgt:
		return "H"
	case ir.Cge:
		return "HE"
	}
	return "E"
}

func (b *Backend) lower(w io.Writer, f *ir.Function, fr *backend.Frame, blk *ir.BasicBlock, instr *ir.Instruction, word int64) {
	switch instr.Opcode {
	case ir.OpNop, ir.OpPhi:
	case ir.OpAdd:
		b.binop(w, fr, instr, "AR")
	case ir.OpSub:
		b.binop(w, fr, instr, "SR")
	case ir.OpMul:
		b.binop(w, fr, instr, "MSR")
	case ir.OpAnd:
		b.binop(w, fr, instr, "NR")
	case ir.OpOr:
		b.binop(w, fr, instr, "OR")
	case ir.OpXor:
		b.binop(w, fr, instr, "XR")
	case ir.OpShl:
		b.shiftop(w, fr, instr, "SLL")
	case ir.OpShr:
		b.shiftop(w, fr, instr, "SRL")
	case ir.OpSar:
		b.shiftop(w, fr, instr, "SRA")
	case ir.OpSDiv, ir.OpSMod:
		b.load(w, accReg, fr, instr.Operands[0])
		b.load(w, tmpReg, fr, instr.Operands[1])
		fmt.Fprintf(w, "         DR    %s,%s\n", accReg, tmpReg)
		if instr.Opcode == ir.OpSDiv {
			b.store(w, fr, instr.Result, "R3")
		} else {
			b.store(w, fr, instr.Result, accReg)
		}
	case ir.OpUDiv, ir.OpUMod:
		b.load(w, accReg, fr, instr.Operands[0])
		b.load(w, tmpReg, fr, instr.Operands[1])
		fmt.Fprintf(w, "         DLR   %s,%s\n", accReg, tmpReg)
		if instr.Opcode == ir.OpUDiv {
			b.store(w, fr, instr.Result, "R3")
		} else {
			b.store(w, fr, instr.Result, accReg)
		}
	case ir.OpNeg:
		b.load(w, accReg, fr, instr.Operands[0])
		fmt.Fprintf(w, "         LCR   %s,%s\n", accReg, accReg)
		b.store(w, fr, instr.Result, accReg)
	case ir.OpNot:
		b.load(w, accReg, fr, instr.Operands[0])
		fmt.Fprintf(w, "         XILF  %s,X'FFFFFFFF'\n", accReg)
		b.store(w, fr, instr.Result, accReg)
	case ir.OpCmpEQ, ir.OpCmpNE, ir.OpCmpLT, ir.OpCmpLE, ir.OpCmpGT, ir.OpCmpGE,
		ir.OpCmpULT, ir.OpCmpULE, ir.OpCmpUGT, ir.OpCmpUGE:
		b.load(w, accReg, fr, instr.Operands[0])
		b.load(w, tmpReg, fr, instr.Operands[1])
		cmpOp := "CR"
		if isUnsignedCmp(instr.Opcode) {
			cmpOp = "CLR"
		}
		fmt.Fprintf(w, "         %s    %s,%s\n", cmpOp, accReg, tmpReg)
		fmt.Fprintf(w, "         LHI   %s,1\n", accReg)
		fmt.Fprintf(w, "         B%s   *+12\n", bcCond(instr.Opcode))
		fmt.Fprintf(w, "         LHI   %s,0\n", accReg)
		b.store(w, fr, instr.Result, accReg)
	case ir.OpAlloca:
		fmt.Fprintf(w, "         LA    %s,%d(,%s)\n", accReg, fr.Size, spReg)
		b.store(w, fr, instr.Result, accReg)
	case ir.OpLoad:
		b.load(w, accReg, fr, instr.Operands[0])
		fmt.Fprintf(w, "         %s    %s,0(,%s)\n", loadOp(word), accReg, accReg)
		b.store(w, fr, instr.Result, accReg)
	case ir.OpStore:
		b.load(w, accReg, fr, instr.Operands[0])
		b.load(w, tmpReg, fr, instr.Operands[1])
		fmt.Fprintf(w, "         %s    %s,0(,%s)\n", storeOp(word), accReg, tmpReg)
	case ir.OpGEP, ir.OpStructGEP:
		b.load(w, accReg, fr, instr.Operands[0])
		if instr.Opcode == ir.OpStructGEP {
			field, _ := types.FieldByIndex(instr.AuxType, instr.FieldIndex)
			fmt.Fprintf(w, "         LA    %s,%d(,%s)\n", accReg, field.Offset, accReg)
		} else if len(instr.Operands) > 1 {
			b.load(w, tmpReg, fr, instr.Operands[1])
			fmt.Fprintf(w, "         MHI   %s,%d\n", tmpReg, instr.AuxType.Size)
			fmt.Fprintf(w, "         AR    %s,%s\n", accReg, tmpReg)
		}
		b.store(w, fr, instr.Result, accReg)
	case ir.OpBr:
		b.emitPhiCopies(w, fr, blk, instr.TrueBlock)
		fmt.Fprintf(w, "         B     %s\n", blockLabel(f, instr.TrueBlock))
	case ir.OpBrCond:
		b.load(w, accReg, fr, instr.Operands[0])
		fmt.Fprintf(w, "         LTR   %s,%s\n", accReg, accReg)
		b.emitPhiCopies(w, fr, blk, instr.FalseBlock)
		fmt.Fprintf(w, "         BZ    %s\n", blockLabel(f, instr.FalseBlock))
		b.emitPhiCopies(w, fr, blk, instr.TrueBlock)
		fmt.Fprintf(w, "         B     %s\n", blockLabel(f, instr.TrueBlock))
	case ir.OpSwitch:
		b.load(w, accReg, fr, instr.Operands[0])
		for _, c := range instr.SwitchCases {
			fmt.Fprintf(w, "         CHI   %s,%d\n", accReg, c.Value)
			fmt.Fprintf(w, "         BE    %s\n", blockLabel(f, c.Block))
		}
		fmt.Fprintf(w, "         B     %s\n", blockLabel(f, instr.SwitchDefault))
	case ir.OpCall:
		for i, arg := range instr.Operands {
			b.load(w, tmpReg, fr, arg)
			fmt.Fprintf(w, "         %s    %s,%d(,%s)\n", storeOp(word), tmpReg, i*int(word), spReg)
		}
		fmt.Fprintf(w, "         LA    %s,0(,%s)\n", argListReg, spReg)
		fmt.Fprintf(w, "         BAL   14,%s\n", strings.ToUpper(calleeSymbol(instr.Callee)))
		if instr.Result != nil {
			b.store(w, fr, instr.Result, accReg)
		}
	case ir.OpRet:
		if len(instr.Operands) > 0 {
			b.load(w, accReg, fr, instr.Operands[0])
		}
		fmt.Fprintf(w, "         B     %s\n", f.Name+"RET")
	case ir.OpTrunc, ir.OpZExt, ir.OpSExt, ir.OpPtrToInt, ir.OpIntToPtr, ir.OpBitcast:
		b.load(w, accReg, fr, instr.Operands[0])
		b.store(w, fr, instr.Result, accReg)
	case ir.OpSelect:
		b.load(w, accReg, fr, instr.Operands[0])
		fmt.Fprintf(w, "         LTR   %s,%s\n", accReg, accReg)
		b.load(w, accReg, fr, instr.Operands[1])
		b.load(w, tmpReg, fr, instr.Operands[2])
		fmt.Fprintf(w, "         LOCR  %s,%s,8\n", accReg, tmpReg)
		b.store(w, fr, instr.Result, accReg)
	case ir.OpFAdd, ir.OpFSub, ir.OpFMul, ir.OpFDiv:
		is32 := instr.Result.Type.Kind == types.F32
		b.loadF(w, floatAcc, fr, instr.Operands[0])
		b.loadF(w, floatTmp, fr, instr.Operands[1])
		fmt.Fprintf(w, "         %-6s%s,%s\n", fpMnemonic(arithPrefix(instr.Opcode), is32, b.bfp()), floatAcc, floatTmp)
		b.storeF(w, fr, instr.Result, floatAcc)
	case ir.OpFNeg:
		is32 := instr.Result.Type.Kind == types.F32
		b.loadF(w, floatAcc, fr, instr.Operands[0])
		fmt.Fprintf(w, "         %-6s%s,%s\n", fpMnemonic("LC", is32, b.bfp()), floatAcc, floatAcc)
		b.storeF(w, fr, instr.Result, floatAcc)
	case ir.OpFAbs:
		is32 := instr.Result.Type.Kind == types.F32
		b.loadF(w, floatAcc, fr, instr.Operands[0])
		fmt.Fprintf(w, "         %-6s%s,%s\n", fpMnemonic("LP", is32, b.bfp()), floatAcc, floatAcc)
		b.storeF(w, fr, instr.Result, floatAcc)
	case ir.OpFCmp:
		is32 := instr.Operands[0].Type.Kind == types.F32
		b.loadF(w, floatAcc, fr, instr.Operands[0])
		b.loadF(w, floatTmp, fr, instr.Operands[1])
		fmt.Fprintf(w, "         %-6s%s,%s\n", fpMnemonic("C", is32, b.bfp()), floatAcc, floatTmp)
		fmt.Fprintf(w, "         LHI   %s,1\n", accReg)
		fmt.Fprintf(w, "         B%s   *+12\n", bcCondFromCondition(instr.Cond))
		fmt.Fprintf(w, "         LHI   %s,0\n", accReg)
		b.store(w, fr, instr.Result, accReg)
	case ir.OpFPTrunc:
		mnemonic := "LEDR"
		if b.bfp() {
			mnemonic = "LEDBR"
		}
		b.loadF(w, floatAcc, fr, instr.Operands[0])
		fmt.Fprintf(w, "         %-6s%s,%s\n", mnemonic, floatAcc, floatAcc)
		b.storeF(w, fr, instr.Result, floatAcc)
	case ir.OpFPExt:
		mnemonic := "LDER"
		if b.bfp() {
			mnemonic = "LDEBR"
		}
		b.loadF(w, floatAcc, fr, instr.Operands[0])
		fmt.Fprintf(w, "         %-6s%s,%s\n", mnemonic, floatAcc, floatAcc)
		b.storeF(w, fr, instr.Result, floatAcc)
	case ir.OpFPToSI, ir.OpFPToUI:
		b.loadF(w, floatAcc, fr, instr.Operands[0])
		mnemonic := fpToIntMnemonic(instr.Operands[0].Type.Kind == types.F32, word == 8, instr.Opcode == ir.OpFPToUI)
		fmt.Fprintf(w, "         %-6s%s,5,%s\n", mnemonic, accReg, floatAcc)
		b.store(w, fr, instr.Result, accReg)
	case ir.OpSIToFP, ir.OpUIToFP:
		b.load(w, accReg, fr, instr.Operands[0])
		mnemonic := fpFromIntMnemonic(instr.Result.Type.Kind == types.F32, word == 8, instr.Opcode == ir.OpUIToFP)
		fmt.Fprintf(w, "         %-6s%s,%s\n", mnemonic, floatAcc, accReg)
		b.storeF(w, fr, instr.Result, floatAcc)
	default:
		fmt.Fprintf(w, "*        unhandled opcode %s\n", instr.Opcode)
	}
}

func (b *Backend) binop(w io.Writer, fr *backend.Frame, instr *ir.Instruction, mnemonic string) {
	b.load(w, accReg, fr, instr.Operands[0])
	b.load(w, tmpReg, fr, instr.Operands[1])
	fmt.Fprintf(w, "         %s    %s,%s\n", mnemonic, accReg, tmpReg)
	b.store(w, fr, instr.Result, accReg)
}

func (b *Backend) shiftop(w io.Writer, fr *backend.Frame, instr *ir.Instruction, mnemonic string) {
	b.load(w, accReg, fr, instr.Operands[0])
	b.load(w, tmpReg, fr, instr.Operands[1])
	fmt.Fprintf(w, "         %s    %s,0(%s)\n", mnemonic, accReg, tmpReg)
	b.store(w, fr, instr.Result, accReg)
}

func (b *Backend) emitPhiCopies(w io.Writer, fr *backend.Frame, pred, succ *ir.BasicBlock) {
	for _, c := range backend.PhiCopies(fr, pred, succ) {
		b.load(w, accReg, fr, c.Value)
		fmt.Fprintf(w, "         %s    %s,%d(,%s)\n", storeOp(fr.WordSize), accReg, c.Slot, spReg)
	}
}

func isUnsignedCmp(op ir.Opcode) bool {
	switch op {
	case ir.OpCmpULT, ir.OpCmpULE, ir.OpCmpUGT, ir.OpCmpUGE:
		return true
	}
	return false
}

func bcCond(op ir.Opcode) string {
	switch op {
	case ir.OpCmpEQ:
		return "E"
	case ir.OpCmpNE:
		return "NE"
	case ir.OpCmpLT, ir.OpCmpULT:
		return "L"
	case ir.OpCmpLE, ir.OpCmpULE:
		return "LE"
	case ir.OpCmpGT, ir.OpCmpUGT:
		return "H"
	case ir.OpCmpGE, ir.OpCmpUGE:
		return "HE"
	}
	return "E"
}

func calleeSymbol(callee *ir.Value) string {
	switch callee.Kind {
	case ir.ValFunc:
		return callee.Fn.Name
	default:
		return callee.Name
	}
}
