package ir

// Opcode is ANVIL's closed instruction-opcode enumeration (spec §4.4).
// Every backend must accept every opcode in this set; a backend that
// cannot lower one emits a commented placeholder rather than failing
// (see pkg/backend).
type Opcode int

const (
	// Arithmetic
	OpAdd Opcode = iota
	OpSub
	OpMul
	OpSDiv
	OpUDiv
	OpSMod
	OpUMod
	OpNeg

	// Bitwise
	OpAnd
	OpOr
	OpXor
	OpNot
	OpShl
	OpShr // logical
	OpSar // arithmetic

	// Comparison (signed)
	OpCmpEQ
	OpCmpNE
	OpCmpLT
	OpCmpLE
	OpCmpGT
	OpCmpGE
	// Comparison (unsigned)
	OpCmpULT
	OpCmpULE
	OpCmpUGT
	OpCmpUGE

	// Memory
	OpAlloca
	OpLoad
	OpStore
	OpGEP
	OpStructGEP

	// Control flow
	OpBr
	OpBrCond
	OpCall
	OpRet
	OpSwitch

	// Conversion
	OpTrunc
	OpZExt
	OpSExt
	OpFPTrunc
	OpFPExt
	OpFPToSI
	OpFPToUI
	OpSIToFP
	OpUIToFP
	OpPtrToInt
	OpIntToPtr
	OpBitcast

	// Floating-point
	OpFAdd
	OpFSub
	OpFMul
	OpFDiv
	OpFNeg
	OpFAbs
	OpFCmp

	// Special
	OpPhi
	OpSelect
	OpNop
)

var opcodeNames = [...]string{
	OpAdd: "add", OpSub: "sub", OpMul: "mul", OpSDiv: "sdiv", OpUDiv: "udiv",
	OpSMod: "smod", OpUMod: "umod", OpNeg: "neg",
	OpAnd: "and", OpOr: "or", OpXor: "xor", OpNot: "not",
	OpShl: "shl", OpShr: "shr", OpSar: "sar",
	OpCmpEQ: "cmp_eq", OpCmpNE: "cmp_ne", OpCmpLT: "cmp_lt", OpCmpLE: "cmp_le",
	OpCmpGT: "cmp_gt", OpCmpGE: "cmp_ge",
	OpCmpULT: "cmp_ult", OpCmpULE: "cmp_ule", OpCmpUGT: "cmp_ugt", OpCmpUGE: "cmp_uge",
	OpAlloca: "alloca", OpLoad: "load", OpStore: "store", OpGEP: "gep", OpStructGEP: "struct_gep",
	OpBr: "br", OpBrCond: "br_cond", OpCall: "call", OpRet: "ret", OpSwitch: "switch",
	OpTrunc: "trunc", OpZExt: "zext", OpSExt: "sext",
	OpFPTrunc: "fptrunc", OpFPExt: "fpext", OpFPToSI: "fptosi", OpFPToUI: "fptoui",
	OpSIToFP: "sitofp", OpUIToFP: "uitofp", OpPtrToInt: "ptrtoint", OpIntToPtr: "inttoptr",
	OpBitcast: "bitcast",
	OpFAdd: "fadd", OpFSub: "fsub", OpFMul: "fmul", OpFDiv: "fdiv", OpFNeg: "fneg", OpFAbs: "fabs", OpFCmp: "fcmp",
	OpPhi: "phi", OpSelect: "select", OpNop: "nop",
}

func (op Opcode) String() string {
	if int(op) < len(opcodeNames) && opcodeNames[op] != "" {
		return opcodeNames[op]
	}
	return "?op"
}

// IsTerminator reports whether op ends a basic block.
func (op Opcode) IsTerminator() bool {
	switch op {
	case OpBr, OpBrCond, OpRet, OpSwitch:
		return true
	}
	return false
}

// HasSideEffect reports whether an instance of op may not be removed by
// dead code elimination purely because its result is unused.
func (op Opcode) HasSideEffect() bool {
	switch op {
	case OpStore, OpCall:
		return true
	}
	return op.IsTerminator()
}

// IsCommutative reports whether CSE should also match this opcode's
// operands swapped.
func (op Opcode) IsCommutative() bool {
	switch op {
	case OpAdd, OpMul, OpAnd, OpOr, OpXor, OpFAdd, OpFMul, OpCmpEQ, OpCmpNE:
		return true
	}
	return false
}

// ProducesResult reports whether op yields a value (STORE/BR/BR_COND/RET
// and bare SWITCH do not).
func (op Opcode) ProducesResult() bool {
	switch op {
	case OpStore, OpBr, OpBrCond, OpRet, OpSwitch, OpNop:
		return false
	}
	return true
}
