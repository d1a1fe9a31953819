// Package arm64 implements ANVIL's ARM64 backend for both Linux and
// Darwin, the two differing only in symbol naming (Darwin prefixes
// every external symbol with an underscore, just as the teacher's
// asm.Printer.symbolName does for its own isDarwin switch) and in
// which register/stack conventions the AAPCS64 ABI leaves open.
package arm64

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
	backend.Register(target.ARM64Linux, func() backend.Backend { return &Backend{arch: target.ARM64Linux} })
	backend.Register(target.ARM64Darwin, func() backend.Backend { return &Backend{arch: target.ARM64Darwin} })
}

// Backend lowers IR to AArch64 GAS assembly text.
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

func (b *Backend) isDarwin() bool { return b.arch == target.ARM64Darwin }

// x9/x10 are caller-saved temporaries outside the argument/indirect-
// result registers, standing in for the accumulator/scratch pair; x29
// is the frame pointer, sp the stack pointer, x30 the link register.
const accReg, tmpReg, fpReg, spReg, lrReg = "x9", "x10", "x29", "sp", "x30"

// floatScratchGPR builds a constant bit pattern before fmov-ing it into
// an FPR; floatAccNum/floatTmpNum are v16/v17, outside both the
// argument (v0-v7) and callee-saved (v8-v15) ranges.
const floatScratchGPR, floatAccNum, floatTmpNum = "x11", 16, 17

// floatReg names register n at the width ty requires: "d" for F64,
// "s" for F32 - both views of the same physical FPR/SIMD register.
func floatReg(n int, ty *types.Type) string {
	prefix := "d"
	if ty.Kind == types.F32 {
		prefix = "s"
	}
	return fmt.Sprintf("%s%d", prefix, n)
}

// symbolName mirrors the teacher's isDarwin-gated underscore prefix.
func (b *Backend) symbolName(name string) string {
	if b.isDarwin() {
		return "_" + name
	}
	return name
}

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
		if b.isDarwin() {
			fmt.Fprintf(w, "\t.section\t__TEXT,__cstring\n")
		} else {
			fmt.Fprintf(w, "\t.section\t.rodata\n")
		}
		for _, s := range strs {
			fmt.Fprintf(w, "%s:\n\t.asciz\t%q\n", s.Label, string(s.Data))
		}
	}
	for _, g := range mod.Globals {
		name := b.symbolName(g.Name)
		fmt.Fprintf(w, "\t.data\n\t.globl\t%s\n%s:\n\t.zero\t%d\n", name, name, g.Type.Size)
	}
	return nil
}

// argGPR are AAPCS64's integer argument registers x0-x7; the result of
// a call also lands in x0.
var argGPR = []string{"x0", "x1", "x2", "x3", "x4", "x5", "x6", "x7"}

func (b *Backend) codegenFunc(f *ir.Function, w io.Writer) {
	const word = int64(8)
	fr := backend.BuildFrame(f, word, 16)
	f.StackFrameSize = fr.Size + 16

	name := b.symbolName(f.Name)
	fmt.Fprintf(w, "\t.globl\t%s\n%s:\n", name, name)
	frameSize := fr.Size + 16
	fmt.Fprintf(w, "\tsub\t%s, %s, #%d\n", spReg, spReg, frameSize)
	fmt.Fprintf(w, "\tstp\t%s, %s, [%s, #%d]\n", fpReg, lrReg, spReg, fr.Size)
	fmt.Fprintf(w, "\tadd\t%s, %s, #%d\n", fpReg, spReg, fr.Size)

	for i, off := range fr.ParamOffset {
		if i < len(argGPR) {
			fmt.Fprintf(w, "\tstr\t%s, [%s, #%d]\n", argGPR[i], spReg, off)
		}
	}

	f.RecomputeCFG()
	for _, blk := range f.Blocks() {
		fmt.Fprintf(w, ".L%s_%d:\n", f.Name, blk.ID)
		for _, instr := range blk.Instructions() {
			b.lower(w, f, fr, blk, instr)
		}
	}

	fmt.Fprintf(w, ".L%s_ret:\n", f.Name)
	fmt.Fprintf(w, "\tldp\t%s, %s, [%s, #%d]\n", fpReg, lrReg, spReg, fr.Size)
	fmt.Fprintf(w, "\tadd\t%s, %s, #%d\n\tret\n", spReg, spReg, frameSize)
}

func (b *Backend) load(w io.Writer, reg string, fr *backend.Frame, v *ir.Value) {
	switch v.Kind {
	case ir.ValConstInt:
		fmt.Fprintf(w, "\tmov\t%s, #%d\n", reg, v.IntVal)
	case ir.ValConstNull:
		fmt.Fprintf(w, "\tmov\t%s, #0\n", reg)
	default:
		if off, ok := fr.SlotOf(v); ok {
			fmt.Fprintf(w, "\tldr\t%s, [%s, #%d]\n", reg, spReg, off)
			return
		}
		fmt.Fprintf(w, "\tadrp\t%s, %s@PAGE\n\tadd\t%s, %s, %s@PAGEOFF\n", reg, b.symbolFor(v), reg, reg, b.symbolFor(v))
	}
}

func (b *Backend) symbolFor(v *ir.Value) string {
	switch v.Kind {
	case ir.ValGlobal:
		return b.symbolName(v.Global.Name)
	case ir.ValFunc:
		return b.symbolName(v.Fn.Name)
	default:
		return v.Name
	}
}

func (b *Backend) store(w io.Writer, fr *backend.Frame, v *ir.Value, reg string) {
	off, ok := fr.SlotOf(v)
	if !ok {
		return
	}
	fmt.Fprintf(w, "\tstr\t%s, [%s, #%d]\n", reg, spReg, off)
}

func floatBits(ty *types.Type, v float64) uint64 {
	if ty.Kind == types.F32 {
		return uint64(math.Float32bits(float32(v)))
	}
	return math.Float64bits(v)
}

// loadFBits builds a raw float bit pattern in a GPR with movz/movk
// (one 16-bit chunk at a time) and moves it into an FPR with fmov,
// AArch64's direct GPR<->FPR register move - no memory round trip
// needed, unlike PowerPC.
func loadFBits(w io.Writer, freg string, bits uint64, is32 bool) {
	scratch, width := floatScratchGPR, 64
	if is32 {
		scratch, width = "w11", 32
	}
	fmt.Fprintf(w, "\tmovz\t%s, #%d\n", scratch, uint16(bits))
	for shift := 16; shift < width; shift += 16 {
		if chunk := uint16(bits >> uint(shift)); chunk != 0 {
			fmt.Fprintf(w, "\tmovk\t%s, #%d, lsl #%d\n", scratch, chunk, shift)
		}
	}
	fmt.Fprintf(w, "\tfmov\t%s, %s\n", freg, scratch)
}

func (b *Backend) loadF(w io.Writer, freg string, fr *backend.Frame, v *ir.Value) {
	switch v.Kind {
	case ir.ValConstFloat:
		loadFBits(w, freg, floatBits(v.Type, v.FloatVal), v.Type.Kind == types.F32)
	default:
		if off, ok := fr.SlotOf(v); ok {
			fmt.Fprintf(w, "\tldr\t%s, [%s, #%d]\n", freg, spReg, off)
			return
		}
		sym := b.symbolFor(v)
		fmt.Fprintf(w, "\tadrp\t%s, %s@PAGE\n\tadd\t%s, %s, %s@PAGEOFF\n\tldr\t%s, [%s]\n",
			floatScratchGPR, sym, floatScratchGPR, floatScratchGPR, sym, freg, floatScratchGPR)
	}
}

func (b *Backend) storeF(w io.Writer, fr *backend.Frame, v *ir.Value, freg string) {
	off, ok := fr.SlotOf(v)
	if !ok {
		return
	}
	fmt.Fprintf(w, "\tstr\t%s, [%s, #%d]\n", freg, spReg, off)
}

// setCondFromCondition maps a comparison relation to the condition
// code CSET reads following FCMP. Ordered less-than/less-or-equal use
// MI/LS rather than the integer LT/LE mnemonics, matching how AArch64
// floating compares set flags (an unordered result clears both N and
// Z, which MI/LS then read as false).
func setCondFromCondition(cond ir.Condition) string {
	switch cond {
	case ir.Ceq:
		return "eq"
	case ir.Cne:
		return "ne"
	case ir.Clt:
		return "mi"
	case ir.Cle:
		return "ls"
	case ir.Cgt:
		return "gt"
	case ir.Cge:
		return "ge"
	}
	return "eq"
}

func (b *Backend) lower(w io.Writer, f *ir.Function, fr *backend.Frame, blk *ir.BasicBlock, instr *ir.Instruction) {
	switch instr.Opcode {
	case ir.OpNop, ir.OpPhi:
	case ir.OpAdd:
		b.binop(w, fr, instr, "add")
	case ir.OpSub:
		b.binop(w, fr, instr, "sub")
	case ir.OpMul:
		b.binop(w, fr, instr, "mul")
	case ir.OpAnd:
		b.binop(w, fr, instr, "and")
	case ir.OpOr:
		b.binop(w, fr, instr, "orr")
	case ir.OpXor:
		b.binop(w, fr, instr, "eor")
	case ir.OpShl:
		b.binop(w, fr, instr, "lsl")
	case ir.OpShr:
		b.binop(w, fr, instr, "lsr")
	case ir.OpSar:
		b.binop(w, fr, instr, "asr")
	case ir.OpSDiv:
		b.binop(w, fr, instr, "sdiv")
	case ir.OpUDiv:
		b.binop(w, fr, instr, "udiv")
	case ir.OpSMod, ir.OpUMod:
		divOp := "sdiv"
		if instr.Opcode == ir.OpUMod {
			divOp = "udiv"
		}
		b.load(w, accReg, fr, instr.Operands[0])
		b.load(w, tmpReg, fr, instr.Operands[1])
		fmt.Fprintf(w, "\t%s\tx11, %s, %s\n\tmsub\t%s, x11, %s, %s\n", divOp, accReg, tmpReg, accReg, tmpReg, accReg)
		b.store(w, fr, instr.Result, accReg)
	case ir.OpNeg:
		b.load(w, accReg, fr, instr.Operands[0])
		fmt.Fprintf(w, "\tneg\t%s, %s\n", accReg, accReg)
		b.store(w, fr, instr.Result, accReg)
	case ir.OpNot:
		b.load(w, accReg, fr, instr.Operands[0])
		fmt.Fprintf(w, "\tmvn\t%s, %s\n", accReg, accReg)
		b.store(w, fr, instr.Result, accReg)
	case ir.OpCmpEQ, ir.OpCmpNE, ir.OpCmpLT, ir.OpCmpLE, ir.OpCmpGT, ir.OpCmpGE,
		ir.OpCmpULT, ir.OpCmpULE, ir.OpCmpUGT, ir.OpCmpUGE:
		b.load(w, accReg, fr, instr.Operands[0])
		b.load(w, tmpReg, fr, instr.Operands[1])
		fmt.Fprintf(w, "\tcmp\t%s, %s\n\tcset\t%s, %s\n", accReg, tmpReg, accReg, setCond(instr.Opcode))
		b.store(w, fr, instr.Result, accReg)
	case ir.OpAlloca:
		fmt.Fprintf(w, "\tadd\t%s, %s, #%d\n", accReg, spReg, fr.Size)
		b.store(w, fr, instr.Result, accReg)
	case ir.OpLoad:
		b.load(w, accReg, fr, instr.Operands[0])
		fmt.Fprintf(w, "\tldr\t%s, [%s]\n", accReg, accReg)
		b.store(w, fr, instr.Result, accReg)
	case ir.OpStore:
		b.load(w, accReg, fr, instr.Operands[0])
		b.load(w, tmpReg, fr, instr.Operands[1])
		fmt.Fprintf(w, "\tstr\t%s, [%s]\n", accReg, tmpReg)
	case ir.OpGEP, ir.OpStructGEP:
		b.load(w, accReg, fr, instr.Operands[0])
		if instr.Opcode == ir.OpStructGEP {
			field, _ := types.FieldByIndex(instr.AuxType, instr.FieldIndex)
			fmt.Fprintf(w, "\tadd\t%s, %s, #%d\n", accReg, accReg, field.Offset)
		} else if len(instr.Operands) > 1 {
			b.load(w, tmpReg, fr, instr.Operands[1])
			fmt.Fprintf(w, "\tmov\tx11, #%d\n\tmul\t%s, %s, x11\n\tadd\t%s, %s, %s\n",
				instr.AuxType.Size, tmpReg, tmpReg, accReg, accReg, tmpReg)
		}
		b.store(w, fr, instr.Result, accReg)
	case ir.OpBr:
		b.emitPhiCopies(w, fr, blk, instr.TrueBlock)
		fmt.Fprintf(w, "\tb\t.L%s_%d\n", f.Name, instr.TrueBlock.ID)
	case ir.OpBrCond:
		b.load(w, accReg, fr, instr.Operands[0])
		fmt.Fprintf(w, "\tcmp\t%s, #0\n", accReg)
		b.emitPhiCopies(w, fr, blk, instr.FalseBlock)
		fmt.Fprintf(w, "\tbeq\t.L%s_%d\n", f.Name, instr.FalseBlock.ID)
		b.emitPhiCopies(w, fr, blk, instr.TrueBlock)
		fmt.Fprintf(w, "\tb\t.L%s_%d\n", f.Name, instr.TrueBlock.ID)
	case ir.OpSwitch:
		b.load(w, accReg, fr, instr.Operands[0])
		for _, c := range instr.SwitchCases {
			fmt.Fprintf(w, "\tcmp\t%s, #%d\n\tbeq\t.L%s_%d\n", accReg, c.Value, f.Name, c.Block.ID)
		}
		fmt.Fprintf(w, "\tb\t.L%s_%d\n", f.Name, instr.SwitchDefault.ID)
	case ir.OpCall:
		for i, arg := range instr.Operands {
			if i < len(argGPR) {
				b.load(w, argGPR[i], fr, arg)
			}
		}
		fmt.Fprintf(w, "\tbl\t%s\n", b.symbolFor(instr.Callee))
		if instr.Result != nil {
			b.store(w, fr, instr.Result, "x0")
		}
	case ir.OpRet:
		if len(instr.Operands) > 0 {
			b.load(w, "x0", fr, instr.Operands[0])
		}
		fmt.Fprintf(w, "\tb\t.L%s_ret\n", f.Name)
	case ir.OpTrunc, ir.OpZExt, ir.OpSExt, ir.OpPtrToInt, ir.OpIntToPtr, ir.OpBitcast:
		b.load(w, accReg, fr, instr.Operands[0])
		b.store(w, fr, instr.Result, accReg)
	case ir.OpSelect:
		b.load(w, accReg, fr, instr.Operands[0])
		fmt.Fprintf(w, "\tcmp\t%s, #0\n", accReg)
		b.load(w, accReg, fr, instr.Operands[1])
		b.load(w, tmpReg, fr, instr.Operands[2])
		fmt.Fprintf(w, "\tcsel\t%s, %s, %s, ne\n", accReg, accReg, tmpReg)
		b.store(w, fr, instr.Result, accReg)
	case ir.OpFAdd, ir.OpFSub, ir.OpFMul, ir.OpFDiv:
		fa, ft := floatReg(floatAccNum, instr.Result.Type), floatReg(floatTmpNum, instr.Result.Type)
		b.loadF(w, fa, fr, instr.Operands[0])
		b.loadF(w, ft, fr, instr.Operands[1])
		fmt.Fprintf(w, "\t%s\t%s, %s, %s\n", fMnemonic(instr.Opcode), fa, fa, ft)
		b.storeF(w, fr, instr.Result, fa)
	case ir.OpFNeg:
		fa := floatReg(floatAccNum, instr.Result.Type)
		b.loadF(w, fa, fr, instr.Operands[0])
		fmt.Fprintf(w, "\tfneg\t%s, %s\n", fa, fa)
		b.storeF(w, fr, instr.Result, fa)
	case ir.OpFAbs:
		fa := floatReg(floatAccNum, instr.Result.Type)
		b.loadF(w, fa, fr, instr.Operands[0])
		fmt.Fprintf(w, "\tfabs\t%s, %s\n", fa, fa)
		b.storeF(w, fr, instr.Result, fa)
	case ir.OpFCmp:
		fa, ft := floatReg(floatAccNum, instr.Operands[0].Type), floatReg(floatTmpNum, instr.Operands[0].Type)
		b.loadF(w, fa, fr, instr.Operands[0])
		b.loadF(w, ft, fr, instr.Operands[1])
		fmt.Fprintf(w, "\tfcmp\t%s, %s\n\tcset\t%s, %s\n", fa, ft, accReg, setCondFromCondition(instr.Cond))
		b.store(w, fr, instr.Result, accReg)
	case ir.OpFPTrunc, ir.OpFPExt:
		src := floatReg(floatAccNum, instr.Operands[0].Type)
		dst := floatReg(floatAccNum, instr.Result.Type)
		b.loadF(w, src, fr, instr.Operands[0])
		fmt.Fprintf(w, "\tfcvt\t%s, %s\n", dst, src)
		b.storeF(w, fr, instr.Result, dst)
	case ir.OpFPToSI, ir.OpFPToUI:
		src := floatReg(floatAccNum, instr.Operands[0].Type)
		b.loadF(w, src, fr, instr.Operands[0])
		mnemonic := "fcvtzs"
		if instr.Opcode == ir.OpFPToUI {
			mnemonic = "fcvtzu"
		}
		fmt.Fprintf(w, "\t%s\t%s, %s\n", mnemonic, accReg, src)
		b.store(w, fr, instr.Result, accReg)
	case ir.OpSIToFP, ir.OpUIToFP:
		b.load(w, accReg, fr, instr.Operands[0])
		dst := floatReg(floatAccNum, instr.Result.Type)
		mnemonic := "scvtf"
		if instr.Opcode == ir.OpUIToFP {
			mnemonic = "ucvtf"
		}
		fmt.Fprintf(w, "\t%s\t%s, %s\n", mnemonic, dst, accReg)
		b.storeF(w, fr, instr.Result, dst)
	default:
		fmt.Fprintf(w, "\t// unhandled opcode %s\n", instr.Opcode)
	}
}

func (b *Backend) binop(w io.Writer, fr *backend.Frame, instr *ir.Instruction, mnemonic string) {
	b.load(w, accReg, fr, instr.Operands[0])
	b.load(w, tmpReg, fr, instr.Operands[1])
	fmt.Fprintf(w, "\t%s\t%s, %s, %s\n", mnemonic, accReg, accReg, tmpReg)
	b.store(w, fr, instr.Result, accReg)
}

func (b *Backend) emitPhiCopies(w io.Writer, fr *backend.Frame, pred, succ *ir.BasicBlock) {
	for _, c := range backend.PhiCopies(fr, pred, succ) {
		b.load(w, accReg, fr, c.Value)
		fmt.Fprintf(w, "\tstr\t%s, [%s, #%d]\n", accReg, spReg, c.Slot)
	}
}

// fMnemonic names the scalar float arithmetic instruction; AArch64
// uses the same mnemonic at every register width, unlike x86 and PPC.
func fMnemonic(op ir.Opcode) string {
	switch op {
	case ir.OpFAdd:
		return "fadd"
	case ir.OpFSub:
		return "fsub"
	case ir.OpFMul:
		return "fmul"
	case ir.OpFDiv:
		return "fdiv"
	}
	return "?"
}

func setCond(op ir.Opcode) string {
	switch op {
	case ir.OpCmpEQ:
		return "eq"
	case ir.OpCmpNE:
		return "ne"
	case ir.OpCmpLT:
		return "lt"
	case ir.OpCmpLE:
		return "le"
	case ir.OpCmpGT:
		return "gt"
	case ir.OpCmpGE:
		return "ge"
	case ir.OpCmpULT:
		return "lo"
	case ir.OpCmpULE:
		return "ls"
	case ir.OpCmpUGT:
		return "hi"
	case ir.OpCmpUGE:
		return "hs"
	}
	return "eq"
}
