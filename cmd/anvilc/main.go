// Command anvilc is a small demonstration driver for the ANVIL library: it
// builds a fixed sample program through the IR builder, selects a target
// architecture, runs the optimization pipeline, and emits assembly text -
// an example harness, not part of the core library surface.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/bencz/anvil-go/pkg/anvil"
	_ "github.com/bencz/anvil-go/pkg/backend/arm64"
	_ "github.com/bencz/anvil-go/pkg/backend/mainframe"
	_ "github.com/bencz/anvil-go/pkg/backend/ppc"
	_ "github.com/bencz/anvil-go/pkg/backend/x86"
	"github.com/bencz/anvil-go/pkg/builder"
	"github.com/bencz/anvil-go/pkg/ir"
	"github.com/bencz/anvil-go/pkg/target"
	"github.com/bencz/anvil-go/pkg/types"
)

var version = "0.1.0"

// archFlag maps the -target flag's textual name to a target.Arch. Backend
// packages are imported above purely for their side-effecting init()
// registration (the database/sql-driver pattern spec §4.7/6 describes);
// nothing here calls into x86/ppc/mainframe/arm64 directly.
var archFlag = map[string]target.Arch{
	"x86":          target.X86,
	"x86-64":       target.X86_64,
	"ppc32":        target.PPC32,
	"ppc64be":      target.PPC64BE,
	"ppc64le":      target.PPC64LE,
	"s370":         target.S370,
	"s370xa":       target.S370XA,
	"s390":         target.S390,
	"z":            target.ZArchitecture,
	"arm64-linux":  target.ARM64Linux,
	"arm64-darwin": target.ARM64Darwin,
}

var optFlag = map[string]target.OptLevel{
	"0": target.O0,
	"1": target.O1,
	"2": target.O2,
	"3": target.O3,
	"g": target.Og,
}

var (
	targetName string
	optLevel   string
	dumpIR     bool
	outPath    string
)

func main() {
	os.Exit(run())
}

func run() int {
	rootCmd := newRootCmd(os.Stdout, os.Stderr)
	if err := rootCmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "anvilc",
		Short: "anvilc builds a sample program and lowers it through ANVIL",
		Long: `anvilc is a demonstration CLI for the ANVIL retargetable backend
library. It constructs a fixed sample function through the IR builder,
selects a target architecture, runs the optimization pipeline at the
requested level, and emits assembly text for inspection.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(out, errOut)
		},
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)

	rootCmd.Flags().StringVarP(&targetName, "target", "t", "x86-64", "target architecture: "+archNames())
	rootCmd.Flags().StringVarP(&optLevel, "opt", "O", "2", "optimization level: 0,1,2,3,g")
	rootCmd.Flags().BoolVar(&dumpIR, "dump-ir", false, "print the module's textual IR before codegen")
	rootCmd.Flags().StringVarP(&outPath, "output", "o", "", "write assembly to this file instead of stdout")

	return rootCmd
}

func archNames() string {
	s := ""
	for _, n := range []string{"x86", "x86-64", "ppc32", "ppc64be", "ppc64le", "s370", "s370xa", "s390", "z", "arm64-linux", "arm64-darwin"} {
		if s != "" {
			s += ","
		}
		s += n
	}
	return s
}

func runCompile(out, errOut io.Writer) error {
	arch, ok := archFlag[targetName]
	if !ok {
		return fmt.Errorf("anvilc: unknown target %q (choices: %s)", targetName, archNames())
	}
	level, ok := optFlag[optLevel]
	if !ok {
		return fmt.Errorf("anvilc: unknown optimization level %q", optLevel)
	}

	ctx := anvil.NewContext()
	if err := ctx.SetTarget(arch); err != nil {
		return fmt.Errorf("anvilc: %s", ctx.LastError())
	}
	if err := ctx.SetOptLevel(level); err != nil {
		return fmt.Errorf("anvilc: %s", ctx.LastError())
	}

	mod := ctx.NewModule("sample")
	buildSampleProgram(ctx, mod)

	if dumpIR {
		fmt.Fprint(errOut, mod.String())
	}

	ctx.Optimize(mod)

	var w io.Writer = out
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("anvilc: %s", err)
		}
		defer f.Close()
		w = f
	}
	if err := ctx.CodegenModule(mod, w); err != nil {
		return fmt.Errorf("anvilc: %s", ctx.LastError())
	}
	return nil
}

// buildSampleProgram constructs the two functions the spec's own worked
// example walks through (spec §8): a leaf `add` function and a `max3`
// function exercising control flow, to give every backend something with
// both straight-line arithmetic and branches to lower.
func buildSampleProgram(ctx *anvil.Context, mod *ir.Module) {
	tc := ctx.Types()
	i32 := tc.I32()

	// i32 add(i32 a, i32 b) { return a + b; }
	addTy := tc.Func(i32, []*types.Type{i32, i32}, false)
	addFn := mod.NewFunction("add", addTy, ir.LinkageExternal)
	b := builder.New()
	b.SetInsertPoint(addFn.Entry())
	b.Ret(b.Add(addFn.Param(0), addFn.Param(1)))

	// i32 max3(i32 a, i32 b, i32 c) {
	//   i32 m = a > b ? a : b;
	//   return m > c ? m : c;
	// }
	max3Ty := tc.Func(i32, []*types.Type{i32, i32, i32}, false)
	max3Fn := mod.NewFunction("max3", max3Ty, ir.LinkageExternal)
	abThen := max3Fn.NewBlock("ab.then")
	abElse := max3Fn.NewBlock("ab.else")
	abJoin := max3Fn.NewBlock("ab.join")
	mcThen := max3Fn.NewBlock("mc.then")
	mcElse := max3Fn.NewBlock("mc.else")
	mcJoin := max3Fn.NewBlock("mc.join")

	b.SetInsertPoint(max3Fn.Entry())
	a, ab, c := max3Fn.Param(0), max3Fn.Param(1), max3Fn.Param(2)
	cmpAB := b.CmpGT(a, ab, i32)
	b.BrCond(cmpAB, abThen, abElse)

	b.SetInsertPoint(abThen)
	b.Br(abJoin)

	b.SetInsertPoint(abElse)
	b.Br(abJoin)

	b.SetInsertPoint(abJoin)
	m := b.Phi(i32, []*ir.Value{a, ab}, []*ir.BasicBlock{abThen, abElse})
	cmpMC := b.CmpGT(m, c, i32)
	b.BrCond(cmpMC, mcThen, mcElse)

	b.SetInsertPoint(mcThen)
	b.Br(mcJoin)

	b.SetInsertPoint(mcElse)
	b.Br(mcJoin)

	b.SetInsertPoint(mcJoin)
	result := b.Phi(i32, []*ir.Value{m, c}, []*ir.BasicBlock{mcThen, mcElse})
	b.Ret(result)
}
