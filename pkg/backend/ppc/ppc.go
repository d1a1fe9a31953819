// Package ppc implements ANVIL's PowerPC backend, covering 32-bit and
// both 64-bit endiannesses (ELFv1 BE, ELFv2 LE) from one code path
// selected by target.Arch, the same "one family, one config switch"
// shape x86 uses for its 32/64-bit split.
package ppc

import (
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/bencz/anvil-go/pkg/backend"
	"github.com/bencz/anvil-go/pkg/ir"
	"github.com/bencz/anvil-go/pkg/target"
	"github.com/bencz/anvil-go/pkg/types"
)

func init() {
	backend.Register(target.PPC32, func() backend.Backend { return &Backend{arch: target.PPC32} })
	backend.Register(target.PPC64BE, func() backend.Backend { return &Backend{arch: target.PPC64BE} })
	backend.Register(target.PPC64LE, func() backend.Backend { return &Backend{arch: target.PPC64LE} })
}

// Backend lowers IR to PowerPC GAS assembly text.
type Backend struct {
	arch target.Arch
	info target.Info
}

func (b *Backend) Init(cfg backend.Config) error {
	b.arch = cfg.Arch
	b.info = target.ArchInfo(cfg.Arch)
	if cfg.Dialect != 0 && cfg.Dialect != target.DefaultDialect(cfg.Arch) {
		return fmt.Errorf("anvil: %s does not support dialect %s", cfg.Arch, cfg.Dialect)
	}
	return nil
}

func (b *Backend) ArchInfo() target.Info { return b.info }

// Scratch registers r11/r12 (volatile, not used for argument passing)
// stand in for the accumulator/temp pair; r1 is the stack pointer per
// the ELF PowerPC ABIs.
const accReg, tmpReg, spReg, lrSlotBytes = "r11", "r12", "r1", 8

// floatAcc/floatTmp are the FPR accumulator/temp pair; fpScratchBytes
// reserves one doubleword past the ABI area for round-tripping a float
// bit pattern or a float/int conversion through memory, since PowerPC
// has no direct GPR<->FPR move for the general case.
const floatAcc, floatTmp, fpScratchBytes = "f0", "f1", 8

func (b *Backend) CodegenModule(mod *ir.Module, w io.Writer) error {
	mod.InternStrings()
	fmt.Fprintf(w, "\t.text\n")

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
	if len(strs) > 0 {
		fmt.Fprintf(w, "\t.section\t.rodata\n")
		for _, s := range strs {
			fmt.Fprintf(w, "%s:\n\t.ascii\t%q\n", s.Label, string(s.Data))
		}
	}
	for _, g := range mod.Globals {
		fmt.Fprintf(w, "\t.data\n\t.globl\t%s\n%s:\n\t.zero\t%d\n", g.Name, g.Name, g.Type.Size)
	}
	return nil
}

// argGPR are the ABI's integer argument registers, r3-r10, shared by
// PPC32 and both PPC64 variants.
var argGPR = []string{"r3", "r4", "r5", "r6", "r7", "r8", "r9", "r10"}

func (b *Backend) codegenFunc(f *ir.Function, w io.Writer) {
	word := int64(b.info.WordSize)
	fr := backend.BuildFrame(f, word, 16)
	f.StackFrameSize = fr.Size + lrSlotBytes

	fmt.Fprintf(w, "\t.globl\t%s\n%s:\n", f.Name, f.Name)
	frameSize := fr.Size + 32 + fpScratchBytes // ABI-mandated link/back-chain area, plus a float-constant scratch word
	fmt.Fprintf(w, "\tstwu\t%s, -%d(%s)\n", spReg, frameSize, spReg)
	if b.arch != target.PPC32 {
		fmt.Fprintf(w, "\tmflr\t0\n\tstd\t0, %d(%s)\n", frameSize+16, spReg)
	}

	for i, off := range fr.ParamOffset {
		if i < len(argGPR) {
			fmt.Fprintf(w, "\t%s\t%s, %d(%s)\n", storeMnemonic(word), argGPR[i], off, spReg)
		}
	}

	f.RecomputeCFG()
	for _, blk := range f.Blocks() {
		fmt.Fprintf(w, ".L%s_%d:\n", f.Name, blk.ID)
		for _, instr := range blk.Instructions() {
			b.lower(w, f, fr, blk, instr, word)
		}
	}

	fmt.Fprintf(w, ".L%s_ret:\n", f.Name)
	if b.arch != target.PPC32 {
		fmt.Fprintf(w, "\tld\t0, %d(%s)\n\tmtlr\t0\n", frameSize+16, spReg)
	}
	fmt.Fprintf(w, "\taddi\t%s, %s, %d\n\tblr\n", spReg, spReg, frameSize)
}

func storeMnemonic(word int64) string {
	if word == 8 {
		return "std"
	}
	return "stw"
}

func loadMnemonic(word int64) string {
	if word == 8 {
		return "ld"
	}
	return "lwz"
}

func (b *Backend) load(w io.Writer, reg string, fr *backend.Frame, v *ir.Value, word int64) {
	switch v.Kind {
	case ir.ValConstInt:
		fmt.Fprintf(w, "\tli\t%s, %d\n", reg, v.IntVal)
	case ir.ValConstNull:
		fmt.Fprintf(w, "\tli\t%s, 0\n", reg)
	default:
		if off, ok := fr.SlotOf(v); ok {
			fmt.Fprintf(w, "\t%s\t%s, %d(%s)\n", loadMnemonic(word), reg, off, spReg)
			return
		}
		fmt.Fprintf(w, "\tla\t%s, %s\n", reg, symbolFor(v))
	}
}

func symbolFor(v *ir.Value) string {
	switch v.Kind {
	case ir.ValGlobal:
		return v.Global.Name
	case ir.ValFunc:
		return v.Fn.Name
	default:
		return v.Name
	}
}

func (b *Backend) store(w io.Writer, fr *backend.Frame, v *ir.Value, reg string, word int64) {
	off, ok := fr.SlotOf(v)
	if !ok {
		return
	}
	fmt.Fprintf(w, "\t%s\t%s, %d(%s)\n", storeMnemonic(word), reg, off, spReg)
}

func floatBits(ty *types.Type, v float64) uint64 {
	if ty.Kind == types.F32 {
		return uint64(math.Float32bits(float32(v)))
	}
	return math.Float64bits(v)
}

// loadFBits materializes a raw float bit pattern into an FPR by
// building it a GPR at a time (lis/ori, widened with sldi/oris on
// PPC64) and round-tripping it through the scratch doubleword this
// frame reserves, since PowerPC has no immediate-to-FPR move.
func (b *Backend) loadFBits(w io.Writer, freg string, fr *backend.Frame, bits uint64, is32 bool) {
	off := fr.Size + 32
	switch {
	case is32:
		fmt.Fprintf(w, "\tlis\t0, %d\n\tori\t0, 0, %d\n\tstw\t0, %d(%s)\n\tlfs\t%s, %d(%s)\n",
			int16(bits>>16), uint16(bits), off, spReg, freg, off, spReg)
	case b.arch != target.PPC32:
		hi, lo := bits>>32, bits&0xffffffff
		fmt.Fprintf(w, "\tlis\t0, %d\n\tori\t0, 0, %d\n\tsldi\t0, 0, 32\n\toris\t0, 0, %d\n\tori\t0, 0, %d\n\tstd\t0, %d(%s)\n\tlfd\t%s, %d(%s)\n",
			int16(hi>>16), uint16(hi), uint16(lo>>16), uint16(lo), off, spReg, freg, off, spReg)
	default:
		hi, lo := uint32(bits>>32), uint32(bits)
		fmt.Fprintf(w, "\tlis\t0, %d\n\tori\t0, 0, %d\n\tstw\t0, %d(%s)\n\tlis\t0, %d\n\tori\t0, 0, %d\n\tstw\t0, %d(%s)\n\tlfd\t%s, %d(%s)\n",
			int16(hi>>16), uint16(hi), off, spReg,
			int16(lo>>16), uint16(lo), off+4, spReg,
			freg, off, spReg)
	}
}

func (b *Backend) loadF(w io.Writer, freg string, fr *backend.Frame, v *ir.Value) {
	is32 := v.Type.Kind == types.F32
	op := "lfd"
	if is32 {
		op = "lfs"
	}
	switch v.Kind {
	case ir.ValConstFloat:
		b.loadFBits(w, freg, fr, floatBits(v.Type, v.FloatVal), is32)
	default:
		if off, ok := fr.SlotOf(v); ok {
			fmt.Fprintf(w, "\t%s\t%s, %d(%s)\n", op, freg, off, spReg)
			return
		}
		fmt.Fprintf(w, "\tla\t%s, %s\n\t%s\t%s, 0(%s)\n", accReg, symbolFor(v), op, freg, accReg)
	}
}

func (b *Backend) storeF(w io.Writer, fr *backend.Frame, v *ir.Value, freg string) {
	off, ok := fr.SlotOf(v)
	if !ok {
		return
	}
	op := "stfd"
	if v.Type.Kind == types.F32 {
		op = "stfs"
	}
	fmt.Fprintf(w, "\t%s\t%s, %d(%s)\n", op, freg, off, spReg)
}

// fBinMnemonic names the scalar float arithmetic instruction at a
// result precision: fadd/fadds, fsub/fsubs, fmul/fmuls, fdiv/fdivs.
func fBinMnemonic(op ir.Opcode, ty *types.Type) string {
	base := "?"
	switch op {
	case ir.OpFAdd:
		base = "fadd"
	case ir.OpFSub:
		base = "fsub"
	case ir.OpFMul:
		base = "fmul"
	case ir.OpFDiv:
		base = "fdiv"
	}
	if ty.Kind == types.F32 {
		return base + "s"
	}
	return base
}

func bcCondFromCondition(cond ir.Condition) string {
	switch cond {
	case ir.Ceq:
		return "eq"
	case ir.Cne:
		return "ne"
	case ir.Clt:
		return "lt"
	case ir.Cle:
		return "le"
	case ir.Cgt:
		return "gt"
	case ir.Cge:
		return "ge"
	}
	return "eq"
}

func (b *Backend) lower(w io.Writer, f *ir.Function, fr *backend.Frame, blk *ir.BasicBlock, instr *ir.Instruction, word int64) {
	switch instr.Opcode {
	case ir.OpNop, ir.OpPhi:
	case ir.OpAdd:
		b.binop(w, fr, instr, word, "add")
	case ir.OpSub:
		b.binop(w, fr, instr, word, "subf")
	case ir.OpMul:
		b.binop(w, fr, instr, word, "mullw")
	case ir.OpAnd:
		b.binop(w, fr, instr, word, "and")
	case ir.OpOr:
		b.binop(w, fr, instr, word, "or")
	case ir.OpXor:
		b.binop(w, fr, instr, word, "xor")
	case ir.OpShl:
		b.binop(w, fr, instr, word, "slw")
	case ir.OpShr:
		b.binop(w, fr, instr, word, "srw")
	case ir.OpSar:
		b.binop(w, fr, instr, word, "sraw")
	case ir.OpSDiv:
		b.binop(w, fr, instr, word, "divw")
	case ir.OpUDiv:
		b.binop(w, fr, instr, word, "divwu")
	case ir.OpSMod, ir.OpUMod:
		divOp := "divw"
		if instr.Opcode == ir.OpUMod {
			divOp = "divwu"
		}
		b.load(w, accReg, fr, instr.Operands[0], word)
		b.load(w, tmpReg, fr, instr.Operands[1], word)
		fmt.Fprintf(w, "\t%s\t0, %s, %s\n\tmullw\t0, 0, %s\n\tsubf\t%s, 0, %s\n", divOp, accReg, tmpReg, tmpReg, accReg, accReg)
		b.store(w, fr, instr.Result, accReg, word)
	case ir.OpNeg:
		b.load(w, accReg, fr, instr.Operands[0], word)
		fmt.Fprintf(w, "\tneg\t%s, %s\n", accReg, accReg)
		b.store(w, fr, instr.Result, accReg, word)
	case ir.OpNot:
		b.load(w, accReg, fr, instr.Operands[0], word)
		fmt.Fprintf(w, "\tnor\t%s, %s, %s\n", accReg, accReg, accReg)
		b.store(w, fr, instr.Result, accReg, word)
	case ir.OpCmpEQ, ir.OpCmpNE, ir.OpCmpLT, ir.OpCmpLE, ir.OpCmpGT, ir.OpCmpGE,
		ir.OpCmpULT, ir.OpCmpULE, ir.OpCmpUGT, ir.OpCmpUGE:
		b.load(w, accReg, fr, instr.Operands[0], word)
		b.load(w, tmpReg, fr, instr.Operands[1], word)
		cmpOp := "cmpw"
		if isUnsignedCmp(instr.Opcode) {
			cmpOp = "cmplw"
		}
		fmt.Fprintf(w, "\t%s\tcr0, %s, %s\n", cmpOp, accReg, tmpReg)
		fmt.Fprintf(w, "\tli\t%s, 1\n\tb%s\t1f\n\tli\t%s, 0\n1:\n", accReg, bcCond(instr.Opcode), accReg)
		b.store(w, fr, instr.Result, accReg, word)
	case ir.OpAlloca:
		fmt.Fprintf(w, "\taddi\t%s, %s, %d\n", accReg, spReg, fr.Size)
		b.store(w, fr, instr.Result, accReg, word)
	case ir.OpLoad:
		b.load(w, accReg, fr, instr.Operands[0], word)
		fmt.Fprintf(w, "\t%s\t%s, 0(%s)\n", loadMnemonic(word), accReg, accReg)
		b.store(w, fr, instr.Result, accReg, word)
	case ir.OpStore:
		b.load(w, accReg, fr, instr.Operands[0], word)
		b.load(w, tmpReg, fr, instr.Operands[1], word)
		fmt.Fprintf(w, "\t%s\t%s, 0(%s)\n", storeMnemonic(word), accReg, tmpReg)
	case ir.OpGEP, ir.OpStructGEP:
		b.load(w, accReg, fr, instr.Operands[0], word)
		if instr.Opcode == ir.OpStructGEP {
			off, _ := types.FieldByIndex(instr.AuxType, instr.FieldIndex)
			fmt.Fprintf(w, "\taddi\t%s, %s, %d\n", accReg, accReg, off.Offset)
		} else if len(instr.Operands) > 1 {
			b.load(w, tmpReg, fr, instr.Operands[1], word)
			fmt.Fprintf(w, "\tmulli\t%s, %s, %d\n\tadd\t%s, %s, %s\n", tmpReg, tmpReg, instr.AuxType.Size, accReg, accReg, tmpReg)
		}
		b.store(w, fr, instr.Result, accReg, word)
	case ir.OpBr:
		b.emitPhiCopies(w, fr, blk, instr.TrueBlock, word)
		fmt.Fprintf(w, "\tb\t.L%s_%d\n", f.Name, instr.TrueBlock.ID)
	case ir.OpBrCond:
		b.load(w, accReg, fr, instr.Operands[0], word)
		fmt.Fprintf(w, "\tcmpwi\tcr0, %s, 0\n", accReg)
		b.emitPhiCopies(w, fr, blk, instr.FalseBlock, word)
		fmt.Fprintf(w, "\tbeq\t.L%s_%d\n", f.Name, instr.FalseBlock.ID)
		b.emitPhiCopies(w, fr, blk, instr.TrueBlock, word)
		fmt.Fprintf(w, "\tb\t.L%s_%d\n", f.Name, instr.TrueBlock.ID)
	case ir.OpSwitch:
		b.load(w, accReg, fr, instr.Operands[0], word)
		for _, c := range instr.SwitchCases {
			fmt.Fprintf(w, "\tcmpwi\tcr0, %s, %d\n\tbeq\t.L%s_%d\n", accReg, c.Value, f.Name, c.Block.ID)
		}
		fmt.Fprintf(w, "\tb\t.L%s_%d\n", f.Name, instr.SwitchDefault.ID)
	case ir.OpCall:
		for i, arg := range instr.Operands {
			if i < len(argGPR) {
				b.load(w, argGPR[i], fr, arg, word)
			}
		}
		fmt.Fprintf(w, "\tbl\t%s\n", calleeSymbol(instr.Callee))
		if instr.Result != nil {
			b.store(w, fr, instr.Result, "r3", word)
		}
	case ir.OpRet:
		if len(instr.Operands) > 0 {
			b.load(w, "r3", fr, instr.Operands[0], word)
		}
		fmt.Fprintf(w, "\tb\t.L%s_ret\n", f.Name)
	case ir.OpTrunc, ir.OpZExt, ir.OpSExt, ir.OpPtrToInt, ir.OpIntToPtr, ir.OpBitcast:
		b.load(w, accReg, fr, instr.Operands[0], word)
		b.store(w, fr, instr.Result, accReg, word)
	case ir.OpSelect:
		b.load(w, accReg, fr, instr.Operands[0], word)
		fmt.Fprintf(w, "\tcmpwi\tcr0, %s, 0\n", accReg)
		b.load(w, accReg, fr, instr.Operands[1], word)
		b.load(w, tmpReg, fr, instr.Operands[2], word)
		fmt.Fprintf(w, "\tisel\t%s, %s, %s, 2\n", accReg, accReg, tmpReg)
		b.store(w, fr, instr.Result, accReg, word)
	case ir.OpFAdd, ir.OpFSub, ir.OpFMul, ir.OpFDiv:
		b.loadF(w, floatAcc, fr, instr.Operands[0])
		b.loadF(w, floatTmp, fr, instr.Operands[1])
		fmt.Fprintf(w, "\t%s\t%s, %s, %s\n", fBinMnemonic(instr.Opcode, instr.Result.Type), floatAcc, floatAcc, floatTmp)
		b.storeF(w, fr, instr.Result, floatAcc)
	case ir.OpFNeg:
		b.loadF(w, floatAcc, fr, instr.Operands[0])
		fmt.Fprintf(w, "\tfneg\t%s, %s\n", floatAcc, floatAcc)
		b.storeF(w, fr, instr.Result, floatAcc)
	case ir.OpFAbs:
		b.loadF(w, floatAcc, fr, instr.Operands[0])
		fmt.Fprintf(w, "\tfabs\t%s, %s\n", floatAcc, floatAcc)
		b.storeF(w, fr, instr.Result, floatAcc)
	case ir.OpFCmp:
		b.loadF(w, floatAcc, fr, instr.Operands[0])
		b.loadF(w, floatTmp, fr, instr.Operands[1])
		fmt.Fprintf(w, "\tfcmpu\tcr0, %s, %s\n", floatAcc, floatTmp)
		fmt.Fprintf(w, "\tli\t%s, 1\n\tb%s\t1f\n\tli\t%s, 0\n1:\n", accReg, bcCondFromCondition(instr.Cond), accReg)
		b.store(w, fr, instr.Result, accReg, word)
	case ir.OpFPTrunc:
		b.loadF(w, floatAcc, fr, instr.Operands[0])
		fmt.Fprintf(w, "\tfrsp\t%s, %s\n", floatAcc, floatAcc)
		b.storeF(w, fr, instr.Result, floatAcc)
	case ir.OpFPExt:
		b.loadF(w, floatAcc, fr, instr.Operands[0])
		b.storeF(w, fr, instr.Result, floatAcc)
	case ir.OpFPToSI, ir.OpFPToUI:
		b.loadF(w, floatAcc, fr, instr.Operands[0])
		off := fr.Size + 32
		if word == 8 {
			fmt.Fprintf(w, "\tfctidz\t%s, %s\n\tstfd\t%s, %d(%s)\n\tld\t%s, %d(%s)\n",
				floatAcc, floatAcc, floatAcc, off, spReg, accReg, off, spReg)
		} else {
			fmt.Fprintf(w, "\tfctiwz\t%s, %s\n\tstfd\t%s, %d(%s)\n\tlwz\t%s, %d(%s)\n",
				floatAcc, floatAcc, floatAcc, off, spReg, accReg, off+4, spReg)
		}
		b.store(w, fr, instr.Result, accReg, word)
	case ir.OpSIToFP, ir.OpUIToFP:
		b.load(w, accReg, fr, instr.Operands[0], word)
		off := fr.Size + 32
		fmt.Fprintf(w, "\tstw\t%s, %d(%s)\n\taddi\t%s, %s, %d\n", accReg, off, spReg, tmpReg, spReg, off)
		if instr.Opcode == ir.OpSIToFP {
			fmt.Fprintf(w, "\tlfiwax\t%s, 0, %s\n\tfcfid\t%s, %s\n", floatAcc, tmpReg, floatAcc, floatAcc)
		} else {
			fmt.Fprintf(w, "\tlfiwzx\t%s, 0, %s\n\tfcfidu\t%s, %s\n", floatAcc, tmpReg, floatAcc, floatAcc)
		}
		if instr.Result.Type.Kind == types.F32 {
			fmt.Fprintf(w, "\tfrsp\t%s, %s\n", floatAcc, floatAcc)
		}
		b.storeF(w, fr, instr.Result, floatAcc)
	default:
		fmt.Fprintf(w, "\t# unhandled opcode %s\n", instr.Opcode)
	}
}

func (b *Backend) binop(w io.Writer, fr *backend.Frame, instr *ir.Instruction, word int64, mnemonic string) {
	b.load(w, accReg, fr, instr.Operands[0], word)
	b.load(w, tmpReg, fr, instr.Operands[1], word)
	fmt.Fprintf(w, "\t%s\t%s, %s, %s\n", mnemonic, accReg, accReg, tmpReg)
	b.store(w, fr, instr.Result, accReg, word)
}

func (b *Backend) emitPhiCopies(w io.Writer, fr *backend.Frame, pred, succ *ir.BasicBlock, word int64) {
	for _, c := range backend.PhiCopies(fr, pred, succ) {
		b.load(w, accReg, fr, c.Value, word)
		fmt.Fprintf(w, "\t%s\t%s, %d(%s)\n", storeMnemonic(word), accReg, c.Slot, spReg)
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
		return "eq"
	case ir.OpCmpNE:
		return "ne"
	case ir.OpCmpLT, ir.OpCmpULT:
		return "lt"
	case ir.OpCmpLE, ir.OpCmpULE:
		return "le"
	case ir.OpCmpGT, ir.OpCmpUGT:
		return "gt"
	case ir.OpCmpGE, ir.OpCmpUGE:
		return "ge"
	}
	return "eq"
}

func calleeSymbol(callee *ir.Value) string {
	switch callee.Kind {
	case ir.ValFunc:
		return callee.Fn.Name
	default:
		return callee.Name
	}
}
