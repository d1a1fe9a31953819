// Package x86 implements ANVIL's x86 and x86-64 backend. Init accepts
// and records a GAS or NASM target.Dialect, but the emitted text always
// uses GAS (AT&T) operand order and directive spelling; NASM (Intel)
// syntax is not emitted.
package x86

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
	backend.Register(target.X86, func() backend.Backend { return &Backend{arch: target.X86} })
	backend.Register(target.X86_64, func() backend.Backend { return &Backend{arch: target.X86_64} })
}

// Backend lowers IR to x86 or x86-64 assembly text.
type Backend struct {
	arch    target.Arch
	dialect target.Dialect
	info    target.Info
}

func (b *Backend) Init(cfg backend.Config) error {
	b.arch = cfg.Arch
	b.info = target.ArchInfo(cfg.Arch)
	b.dialect = cfg.Dialect
	if b.dialect == 0 {
		b.dialect = target.DefaultDialect(cfg.Arch)
	}
	if !target.SupportsDialectOverride(cfg.Arch) && b.dialect != target.DefaultDialect(cfg.Arch) {
		return fmt.Errorf("anvil: %s does not support dialect %s", cfg.Arch, b.dialect)
	}
	return nil
}

func (b *Backend) ArchInfo() target.Info { return b.info }

// scratch registers used as the accumulator pair for every lowered
// instruction (spec §4.7: "a simple accumulator/scratch-register
// scheme", explicitly not competitive allocation). 64-bit names are
// used on x86-64; 32-bit on x86 - both architectures reserve these two
// across the whole lowering, with the frame giving every other value
// its own memory slot.
func (b *Backend) regs() (acc, tmp, sp, bp string) {
	if b.arch == target.X86_64 {
		return "%rax", "%rcx", "%rsp", "%rbp"
	}
	return "%eax", "%ecx", "%esp", "%ebp"
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
		if err := b.codegenFunc(f, w); err != nil {
			return err
		}
	}

	strs := mod.InternedStrings()
	if len(strs) > 0 {
		fmt.Fprintf(w, "\t.section\t.rodata\n")
		for _, s := range strs {
			fmt.Fprintf(w, "%s:\n\t.ascii\t%q\n", s.Label, string(s.Data))
		}
	}
	for _, g := range mod.Globals {
		fmt.Fprintf(w, "\t.data\n\t.globl\t%s\n%s:\n", g.Name, g.Name)
		fmt.Fprintf(w, "\t.zero\t%d\n", g.Type.Size)
	}
	return nil
}

func (b *Backend) codegenFunc(f *ir.Function, w io.Writer) error {
	acc, tmp, _, bp := b.regs()
	word := int64(b.info.WordSize)
	fr := backend.BuildFrame(f, word, 16)
	f.StackFrameSize = fr.Size

	sp := "%rsp"
	if b.arch != target.X86_64 {
		sp = "%esp"
	}
	fmt.Fprintf(w, "\t.globl\t%s\n\t.type\t%s, @function\n%s:\n", f.Name, f.Name, f.Name)
	fmt.Fprintf(w, "\tpush\t%s\n\tmov\t%s, %s\n", bp, sp, bp)
	if fr.Size > 0 {
		fmt.Fprintf(w, "\tsub\t$%d, %s\n", fr.Size, sp)
	}

	argRegs := sysVArgRegs(b.arch)
	for i, off := range fr.ParamOffset {
		if i < len(argRegs) {
			fmt.Fprintf(w, "\tmov\t%s, -%d(%s)\n", argRegs[i], off, bp)
		}
	}

	f.RecomputeCFG()
	for _, blk := range f.Blocks() {
		fmt.Fprintf(w, ".L%s_%d:\n", f.Name, blk.ID)
		for _, instr := range blk.Instructions() {
			b.lower(w, f, fr, blk, instr, acc, tmp, bp)
		}
	}

	fmt.Fprintf(w, ".L%s_ret:\n\tleave\n\tret\n", f.Name)
	return nil
}

func sysVArgRegs(arch target.Arch) []string {
	if arch == target.X86_64 {
		return []string{"%rdi", "%rsi", "%rdx", "%rcx", "%r8", "%r9"}
	}
	return nil // x86 cdecl passes all arguments on the stack
}

func (b *Backend) load(w io.Writer, reg string, fr *backend.Frame, v *ir.Value, bp string) {
	switch v.Kind {
	case ir.ValConstInt:
		fmt.Fprintf(w, "\tmov\t$%d, %s\n", v.IntVal, reg)
	case ir.ValConstNull:
		fmt.Fprintf(w, "\tmov\t$0, %s\n", reg)
	default:
		if off, ok := fr.SlotOf(v); ok {
			fmt.Fprintf(w, "\tmov\t-%d(%s), %s\n", off, bp, reg)
			return
		}
		fmt.Fprintf(w, "\tlea\t%s(%%rip), %s\n", symbolFor(v), reg)
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

func (b *Backend) store(w io.Writer, fr *backend.Frame, v *ir.Value, reg, bp string) {
	off, ok := fr.SlotOf(v)
	if !ok {
		return
	}
	fmt.Fprintf(w, "\tmov\t%s, -%d(%s)\n", reg, off, bp)
}

// floatAcc/floatTmp are the SSE2 accumulator/temp pair, the same role
// xmm registers play for float values that acc/tmp play for integers.
const floatAcc, floatTmp = "%xmm0", "%xmm1"

func floatSuffix(ty *types.Type) string {
	if ty.Kind == types.F32 {
		return "ss"
	}
	return "sd"
}

func floatBits(ty *types.Type, v float64) uint64 {
	if ty.Kind == types.F32 {
		return uint64(math.Float32bits(float32(v)))
	}
	return math.Float64bits(v)
}

// loadFBits materializes a raw float bit pattern into an xmm register.
// x86-64 moves it through a 64-bit GPR with movabs+movq regardless of
// precision (the upper half is already zero for a 32-bit pattern);
// x86-32 has no 64-bit GPR to stage the bits in, so it pushes the raw
// bytes onto the stack and reloads them with a scalar move.
func (b *Backend) loadFBits(w io.Writer, freg, scratch string, bits uint64, is32 bool) {
	if b.arch == target.X86_64 {
		fmt.Fprintf(w, "\tmovabs\t$%#x, %s\n\tmovq\t%s, %s\n", bits, scratch, scratch, freg)
		return
	}
	if is32 {
		fmt.Fprintf(w, "\tpush\t$%#x\n\tmovss\t(%%esp), %s\n\tadd\t$4, %%esp\n", uint32(bits), freg)
		return
	}
	fmt.Fprintf(w, "\tpush\t$%#x\n\tpush\t$%#x\n\tmovsd\t(%%esp), %s\n\tadd\t$8, %%esp\n",
		uint32(bits>>32), uint32(bits), freg)
}

func (b *Backend) loadF(w io.Writer, freg, scratch string, fr *backend.Frame, v *ir.Value, bp string) {
	suffix := floatSuffix(v.Type)
	switch v.Kind {
	case ir.ValConstFloat:
		b.loadFBits(w, freg, scratch, floatBits(v.Type, v.FloatVal), v.Type.Kind == types.F32)
	default:
		if off, ok := fr.SlotOf(v); ok {
			fmt.Fprintf(w, "\tmov%s\t-%d(%s), %s\n", suffix, off, bp, freg)
			return
		}
		fmt.Fprintf(w, "\tlea\t%s(%%rip), %s\n\tmov%s\t(%s), %s\n", symbolFor(v), scratch, suffix, scratch, freg)
	}
}

func (b *Backend) storeF(w io.Writer, fr *backend.Frame, v *ir.Value, freg, bp string) {
	off, ok := fr.SlotOf(v)
	if !ok {
		return
	}
	fmt.Fprintf(w, "\tmov%s\t%s, -%d(%s)\n", floatSuffix(v.Type), freg, off, bp)
}

// fcmpSetMnemonic maps a comparison relation to the SETcc following
// ucomiss/ucomisd, using the unsigned forms since an unordered (NaN)
// result sets CF the same way a "below" integer comparison would.
func fcmpSetMnemonic(cond ir.Condition) string {
	switch cond {
	case ir.Ceq:
		return "sete"
	case ir.Cne:
		return "setne"
	case ir.Clt:
		return "setb"
	case ir.Cle:
		return "setbe"
	case ir.Cgt:
		return "seta"
	case ir.Cge:
		return "setae"
	}
	return "sete"
}

func (b *Backend) lower(w io.Writer, f *ir.Function, fr *backend.Frame, blk *ir.BasicBlock, instr *ir.Instruction, acc, tmp, bp string) {
	switch instr.Opcode {
	case ir.OpNop, ir.OpPhi:
		// PHI results are written by predecessors' terminators (see
		// emitPhiCopies); there is nothing to emit at the PHI site itself.
	case ir.OpAdd, ir.OpSub, ir.OpAnd, ir.OpOr, ir.OpXor, ir.OpMul:
		b.load(w, acc, fr, instr.Operands[0], bp)
		b.load(w, tmp, fr, instr.Operands[1], bp)
		fmt.Fprintf(w, "\t%s\t%s, %s\n", arithMnemonic(instr.Opcode), tmp, acc)
		b.store(w, fr, instr.Result, acc, bp)
	case ir.OpShl, ir.OpShr, ir.OpSar:
		b.load(w, acc, fr, instr.Operands[0], bp)
		b.load(w, "%cl", fr, instr.Operands[1], bp)
		fmt.Fprintf(w, "\t%s\t%%cl, %s\n", shiftMnemonic(instr.Opcode), acc)
		b.store(w, fr, instr.Result, acc, bp)
	case ir.OpSDiv, ir.OpUDiv, ir.OpSMod, ir.OpUMod:
		rdx := "%rdx"
		if b.arch != target.X86_64 {
			rdx = "%edx"
		}
		b.load(w, acc, fr, instr.Operands[0], bp)
		b.load(w, tmp, fr, instr.Operands[1], bp)
		if instr.Opcode == ir.OpSDiv || instr.Opcode == ir.OpSMod {
			signExtend := "cqto"
			if b.arch != target.X86_64 {
				signExtend = "cltd"
			}
			fmt.Fprintf(w, "\t%s\n\tidiv\t%s\n", signExtend, tmp)
		} else {
			fmt.Fprintf(w, "\txor\t%s, %s\n\tdiv\t%s\n", rdx, rdx, tmp)
		}
		if instr.Opcode == ir.OpSDiv || instr.Opcode == ir.OpUDiv {
			b.store(w, fr, instr.Result, acc, bp)
		} else {
			b.store(w, fr, instr.Result, rdx, bp)
		}
	case ir.OpNeg:
		b.load(w, acc, fr, instr.Operands[0], bp)
		fmt.Fprintf(w, "\tneg\t%s\n", acc)
		b.store(w, fr, instr.Result, acc, bp)
	case ir.OpNot:
		b.load(w, acc, fr, instr.Operands[0], bp)
		fmt.Fprintf(w, "\tnot\t%s\n", acc)
		b.store(w, fr, instr.Result, acc, bp)
	case ir.OpCmpEQ, ir.OpCmpNE, ir.OpCmpLT, ir.OpCmpLE, ir.OpCmpGT, ir.OpCmpGE,
		ir.OpCmpULT, ir.OpCmpULE, ir.OpCmpUGT, ir.OpCmpUGE:
		b.load(w, acc, fr, instr.Operands[0], bp)
		b.load(w, tmp, fr, instr.Operands[1], bp)
		fmt.Fprintf(w, "\tcmp\t%s, %s\n\t%s\t%%al\n\tmovzbl\t%%al, %s\n", tmp, acc, setMnemonic(instr.Opcode), acc)
		b.store(w, fr, instr.Result, acc, bp)
	case ir.OpAlloca:
		fmt.Fprintf(w, "\tlea\t-%d(%s), %s\n", fr.Size, bp, acc)
		b.store(w, fr, instr.Result, acc, bp)
	case ir.OpLoad:
		b.load(w, acc, fr, instr.Operands[0], bp)
		fmt.Fprintf(w, "\tmov\t(%s), %s\n", acc, acc)
		b.store(w, fr, instr.Result, acc, bp)
	case ir.OpStore:
		b.load(w, tmp, fr, instr.Operands[1], bp)
		b.load(w, acc, fr, instr.Operands[0], bp)
		fmt.Fprintf(w, "\tmov\t%s, (%s)\n", acc, tmp)
	case ir.OpGEP, ir.OpStructGEP:
		b.load(w, acc, fr, instr.Operands[0], bp)
		if instr.Opcode == ir.OpStructGEP {
			fmt.Fprintf(w, "\tadd\t$%d, %s\n", fieldOffset(instr), acc)
		} else if len(instr.Operands) > 1 {
			b.load(w, tmp, fr, instr.Operands[1], bp)
			fmt.Fprintf(w, "\timul\t$%d, %s, %s\n\tadd\t%s, %s\n", instr.AuxType.Size, tmp, tmp, tmp, acc)
		}
		b.store(w, fr, instr.Result, acc, bp)
	case ir.OpBr:
		b.emitPhiCopies(w, fr, blk, instr.TrueBlock, acc, bp)
		fmt.Fprintf(w, "\tjmp\t.L%s_%d\n", f.Name, instr.TrueBlock.ID)
	case ir.OpBrCond:
		b.load(w, acc, fr, instr.Operands[0], bp)
		fmt.Fprintf(w, "\ttest\t%s, %s\n", acc, acc)
		b.emitPhiCopies(w, fr, blk, instr.FalseBlock, acc, bp)
		fmt.Fprintf(w, "\tjz\t.L%s_%d\n", f.Name, instr.FalseBlock.ID)
		b.emitPhiCopies(w, fr, blk, instr.TrueBlock, acc, bp)
		fmt.Fprintf(w, "\tjmp\t.L%s_%d\n", f.Name, instr.TrueBlock.ID)
	case ir.OpSwitch:
		b.load(w, acc, fr, instr.Operands[0], bp)
		for _, c := range instr.SwitchCases {
			fmt.Fprintf(w, "\tcmp\t$%d, %s\n\tje\t.L%s_%d\n", c.Value, acc, f.Name, c.Block.ID)
		}
		fmt.Fprintf(w, "\tjmp\t.L%s_%d\n", f.Name, instr.SwitchDefault.ID)
	case ir.OpCall:
		argRegs := sysVArgRegs(b.arch)
		for i, arg := range instr.Operands {
			if i < len(argRegs) {
				b.load(w, argRegs[i], fr, arg, bp)
			}
		}
		fmt.Fprintf(w, "\tcall\t%s\n", calleeSymbol(instr.Callee))
		if instr.Result != nil {
			b.store(w, fr, instr.Result, acc, bp)
		}
	case ir.OpRet:
		if len(instr.Operands) > 0 {
			b.load(w, acc, fr, instr.Operands[0], bp)
		}
		fmt.Fprintf(w, "\tjmp\t.L%s_ret\n", f.Name)
	case ir.OpTrunc, ir.OpZExt, ir.OpSExt, ir.OpPtrToInt, ir.OpIntToPtr, ir.OpBitcast:
		b.load(w, acc, fr, instr.Operands[0], bp)
		b.store(w, fr, instr.Result, acc, bp)
	case ir.OpSelect:
		b.load(w, acc, fr, instr.Operands[0], bp)
		fmt.Fprintf(w, "\ttest\t%s, %s\n", acc, acc)
		b.load(w, acc, fr, instr.Operands[1], bp)
		b.load(w, tmp, fr, instr.Operands[2], bp)
		fmt.Fprintf(w, "\tcmovz\t%s, %s\n", tmp, acc)
		b.store(w, fr, instr.Result, acc, bp)
	case ir.OpFAdd, ir.OpFSub, ir.OpFMul, ir.OpFDiv:
		b.loadF(w, floatAcc, acc, fr, instr.Operands[0], bp)
		b.loadF(w, floatTmp, tmp, fr, instr.Operands[1], bp)
		fmt.Fprintf(w, "\t%s\t%s, %s\n", fBinMnemonic(instr.Opcode, instr.Result.Type), floatTmp, floatAcc)
		b.storeF(w, fr, instr.Result, floatAcc, bp)
	case ir.OpFNeg:
		is32 := instr.Result.Type.Kind == types.F32
		b.loadF(w, floatAcc, acc, fr, instr.Operands[0], bp)
		signBit := uint64(1) << 63
		if is32 {
			signBit = uint64(1) << 31
		}
		b.loadFBits(w, floatTmp, acc, signBit, is32)
		mnemonic := "xorpd"
		if is32 {
			mnemonic = "xorps"
		}
		fmt.Fprintf(w, "\t%s\t%s, %s\n", mnemonic, floatTmp, floatAcc)
		b.storeF(w, fr, instr.Result, floatAcc, bp)
	case ir.OpFAbs:
		is32 := instr.Result.Type.Kind == types.F32
		b.loadF(w, floatAcc, acc, fr, instr.Operands[0], bp)
		mask := ^(uint64(1) << 63)
		if is32 {
			mask = uint64(0x7fffffff)
		}
		b.loadFBits(w, floatTmp, acc, mask, is32)
		mnemonic := "andpd"
		if is32 {
			mnemonic = "andps"
		}
		fmt.Fprintf(w, "\t%s\t%s, %s\n", mnemonic, floatTmp, floatAcc)
		b.storeF(w, fr, instr.Result, floatAcc, bp)
	case ir.OpFCmp:
		b.loadF(w, floatAcc, acc, fr, instr.Operands[0], bp)
		b.loadF(w, floatTmp, tmp, fr, instr.Operands[1], bp)
		fmt.Fprintf(w, "\tucomi%s\t%s, %s\n\t%s\t%%al\n\tmovzbl\t%%al, %s\n",
			floatSuffix(instr.Operands[0].Type), floatTmp, floatAcc, fcmpSetMnemonic(instr.Cond), acc)
		b.store(w, fr, instr.Result, acc, bp)
	case ir.OpFPTrunc:
		b.loadF(w, floatAcc, acc, fr, instr.Operands[0], bp)
		fmt.Fprintf(w, "\tcvtsd2ss\t%s, %s\n", floatAcc, floatAcc)
		b.storeF(w, fr, instr.Result, floatAcc, bp)
	case ir.OpFPExt:
		b.loadF(w, floatAcc, acc, fr, instr.Operands[0], bp)
		fmt.Fprintf(w, "\tcvtss2sd\t%s, %s\n", floatAcc, floatAcc)
		b.storeF(w, fr, instr.Result, floatAcc, bp)
	case ir.OpFPToSI, ir.OpFPToUI:
		b.loadF(w, floatAcc, acc, fr, instr.Operands[0], bp)
		fmt.Fprintf(w, "\tcvtt%s2si\t%s, %s\n", floatSuffix(instr.Operands[0].Type), floatAcc, acc)
		b.store(w, fr, instr.Result, acc, bp)
	case ir.OpSIToFP, ir.OpUIToFP:
		b.load(w, acc, fr, instr.Operands[0], bp)
		fmt.Fprintf(w, "\tcvtsi2%s\t%s, %s\n", floatSuffix(instr.Result.Type), acc, floatAcc)
		b.storeF(w, fr, instr.Result, floatAcc, bp)
	default:
		fmt.Fprintf(w, "\t# unhandled opcode %s\n", instr.Opcode)
	}
}

func (b *Backend) emitPhiCopies(w io.Writer, fr *backend.Frame, pred, succ *ir.BasicBlock, scratch, bp string) {
	for _, c := range backend.PhiCopies(fr, pred, succ) {
		b.load(w, scratch, fr, c.Value, bp)
		fmt.Fprintf(w, "\tmov\t%s, -%d(%s)\n", scratch, c.Slot, bp)
	}
}

func arithMnemonic(op ir.Opcode) string {
	switch op {
	case ir.OpAdd:
		return "add"
	case ir.OpSub:
		return "sub"
	case ir.OpAnd:
		return "and"
	case ir.OpOr:
		return "or"
	case ir.OpXor:
		return "xor"
	case ir.OpMul:
		return "imul"
	}
	return "?"
}

// fBinMnemonic names the SSE2 scalar arithmetic instruction for a
// floating binop at the given result precision: addss/addsd,
// subss/subsd, mulss/mulsd, divss/divsd.
func fBinMnemonic(op ir.Opcode, ty *types.Type) string {
	base := "?"
	switch op {
	case ir.OpFAdd:
		base = "add"
	case ir.OpFSub:
		base = "sub"
	case ir.OpFMul:
		base = "mul"
	case ir.OpFDiv:
		base = "div"
	}
	return base + floatSuffix(ty)
}

func shiftMnemonic(op ir.Opcode) string {
	switch op {
	case ir.OpShl:
		return "shl"
	case ir.OpShr:
		return "shr"
	case ir.OpSar:
		return "sar"
	}
	return "?"
}

func setMnemonic(op ir.Opcode) string {
	switch op {
	case ir.OpCmpEQ:
		return "sete"
	case ir.OpCmpNE:
		return "setne"
	case ir.OpCmpLT:
		return "setl"
	case ir.OpCmpLE:
		return "setle"
	case ir.OpCmpGT:
		return "setg"
	case ir.OpCmpGE:
		return "setge"
	case ir.OpCmpULT:
		return "setb"
	case ir.OpCmpULE:
		return "setbe"
	case ir.OpCmpUGT:
		return "seta"
	case ir.OpCmpUGE:
		return "setae"
	}
	return "?"
}

func fieldOffset(instr *ir.Instruction) int64 {
	f, err := types.FieldByIndex(instr.AuxType, instr.FieldIndex)
	if err != nil {
		return 0
	}
	return f.Offset
}

func calleeSymbol(callee *ir.Value) string {
	switch callee.Kind {
	case ir.ValFunc:
		return callee.Fn.Name
	default:
		return callee.Name
	}
}
