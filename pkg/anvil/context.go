// Package anvil ties together the target descriptor, the type cache, the
// registered backend, and the optimization pass manager behind the single
// stateful Context the rest of the library hangs off of (spec §6's
// ctx_create/ctx_destroy/ctx_set_* family). Nothing here is safe for
// concurrent use by design (spec §5): a Context and everything it owns
// belongs to one goroutine at a time, though independent Contexts sharing
// no IR may run on separate goroutines freely.
package anvil

import (
	"os"

	"github.com/bencz/anvil-go/pkg/backend"
	"github.com/bencz/anvil-go/pkg/ir"
	"github.com/bencz/anvil-go/pkg/optimize"
	"github.com/bencz/anvil-go/pkg/target"
	"github.com/bencz/anvil-go/pkg/types"
)

// Context owns the target configuration, the type cache, the active
// backend instance, the pass manager, and every module created through it.
// There is no explicit ctx_destroy counterpart: Go's garbage collector
// reclaims a Context and everything transitively reachable from it once
// the last reference drops, per the spec's "arena-lifetime bound to their
// owning context" resource policy realized through GC instead of manual
// frees.
type Context struct {
	arch     target.Arch
	archSet  bool
	dialect  target.Dialect
	fpFormat target.FPFormat
	abi      target.ABI
	opt      target.OptLevel
	cpu      target.CPUModel
	features target.Feature

	types    *types.Cache
	backend  backend.Backend
	passMgr  *optimize.Manager
	modules  []*ir.Module
	lastErr  *Error
}

// NewContext creates a Context with no target selected (ctx_create). The
// type cache defaults to an 8-byte pointer size; SetTarget rebinds it to
// the chosen architecture's pointer size.
func NewContext() *Context {
	return &Context{
		types:   types.NewCache(8),
		passMgr: optimize.NewManager(),
	}
}

// fail records err in the context's error slot and returns it, the shape
// every fallible Context method uses to satisfy "writes a human-readable
// message into the context's error slot on failure" (spec §7).
func (c *Context) fail(kind ErrorKind, format string, args ...interface{}) *Error {
	c.lastErr = newError(kind, format, args...)
	return c.lastErr
}

// LastError returns the most recent failure recorded on this context
// (ctx_get_error), or nil if the last fallible call succeeded.
func (c *Context) LastError() *Error { return c.lastErr }

// SetTarget selects the active architecture (ctx_set_target), resets
// dialect/FP-format/ABI/CPU/features to that architecture's defaults, and
// constructs a fresh backend instance from the registry. It fails with
// NoBackend if arch is not one of ANVIL's fixed set of targets, or if
// nothing is registered for arch because the caller's program never
// imported the concrete backend package (x86, ppc, mainframe, arm64) for
// its side-effecting init().
func (c *Context) SetTarget(arch target.Arch) error {
	if !target.Registered(arch) {
		return c.fail(NoBackend, "architecture %s is not a known ANVIL target", arch)
	}
	b, err := backend.New(arch)
	if err != nil {
		return c.fail(NoBackend, "%s", err)
	}

	c.arch = arch
	c.archSet = true
	c.dialect = target.DefaultDialect(arch)
	c.fpFormat = target.DefaultFPFormat(arch)
	c.abi = target.ABIDefault
	c.cpu = target.CPUGeneric
	c.features = target.DefaultFeatures(target.CPUGeneric)
	c.types.SetPointerSize(int64(target.ArchInfo(arch).PtrSize))

	cfg := backend.Config{Arch: arch, Dialect: c.dialect, FPFormat: c.fpFormat, ABI: c.abi, CPU: c.cpu, Features: c.features}
	if err := b.Init(cfg); err != nil {
		return c.fail(UnsupportedFeature, "%s", err)
	}
	c.backend = b
	c.lastErr = nil
	return nil
}

// requireTarget is the guard every method needing an active backend opens
// with; it is the realization of spec §7's InvalidArgument kind for
// "operation attempted before ctx_set_target".
func (c *Context) requireTarget() error {
	if !c.archSet {
		return c.fail(InvalidArgument, "no target selected; call SetTarget first")
	}
	return nil
}

// SetSyntax overrides the assembler dialect (ctx_set_syntax). Only the x86
// family supports a GAS<->NASM override; every other target has exactly
// one legal dialect and rejects any other choice with InvalidArgument.
func (c *Context) SetSyntax(d target.Dialect) error {
	if err := c.requireTarget(); err != nil {
		return err
	}
	if d != target.DefaultDialect(c.arch) && !target.SupportsDialectOverride(c.arch) {
		return c.fail(InvalidArgument, "%s does not support overriding its assembler dialect", c.arch)
	}
	c.dialect = d
	cfg := c.backendConfig()
	if err := c.backend.Init(cfg); err != nil {
		return c.fail(UnsupportedFeature, "%s", err)
	}
	c.lastErr = nil
	return nil
}

// SetFPFormat overrides the floating-point representation (ctx_set_fp_format).
func (c *Context) SetFPFormat(f target.FPFormat) error {
	if err := c.requireTarget(); err != nil {
		return err
	}
	if !target.SupportsFPFormat(c.arch, f) {
		return c.fail(UnsupportedFeature, "%s does not support FP format %s", c.arch, f)
	}
	c.fpFormat = f
	cfg := c.backendConfig()
	if err := c.backend.Init(cfg); err != nil {
		return c.fail(UnsupportedFeature, "%s", err)
	}
	c.lastErr = nil
	return nil
}

// SetABI overrides the calling-convention variant (ctx_set_abi).
func (c *Context) SetABI(a target.ABI) error {
	if err := c.requireTarget(); err != nil {
		return err
	}
	c.abi = a
	cfg := c.backendConfig()
	if err := c.backend.Init(cfg); err != nil {
		return c.fail(UnsupportedFeature, "%s", err)
	}
	c.lastErr = nil
	return nil
}

// SetOptLevel selects which optimization passes module.Optimize runs
// (ctx_set_opt_level); it just reconfigures the pass manager's enabled set.
func (c *Context) SetOptLevel(level target.OptLevel) error {
	c.opt = level
	c.passMgr.SetLevel(level)
	c.lastErr = nil
	return nil
}

// ArchInfo returns the static descriptor for the active target
// (ctx_get_arch_info); callers must have called SetTarget first.
func (c *Context) ArchInfo() (target.Info, error) {
	if err := c.requireTarget(); err != nil {
		return target.Info{}, err
	}
	c.lastErr = nil
	return c.backend.ArchInfo(), nil
}

// SetCPU selects a named CPU model, resetting the feature mask to that
// model's defaults (ctx_set_cpu).
func (c *Context) SetCPU(m target.CPUModel) error {
	if err := c.requireTarget(); err != nil {
		return err
	}
	c.cpu = m
	c.features = target.DefaultFeatures(m)
	c.lastErr = nil
	return nil
}

// CPU returns the currently selected CPU model (ctx_get_cpu).
func (c *Context) CPU() target.CPUModel { return c.cpu }

// CPUFeatures returns the active feature bitmask (ctx_get_cpu_features).
func (c *Context) CPUFeatures() target.Feature { return c.features }

// HasFeature reports whether a single feature bit is enabled
// (ctx_has_feature).
func (c *Context) HasFeature(f target.Feature) bool { return c.features&f != 0 }

// EnableFeature turns on a single feature bit (ctx_enable_feature). It
// fails with InvalidArgument if the bit isn't in the active architecture's
// reserved range - enabling a SSE bit on a PPC target, for instance.
func (c *Context) EnableFeature(f target.Feature) error {
	if err := c.requireTarget(); err != nil {
		return err
	}
	if !target.InFamily(c.arch, f) {
		return c.fail(InvalidArgument, "feature bit not valid for architecture %s", c.arch)
	}
	c.features |= f
	c.lastErr = nil
	return nil
}

// DisableFeature turns off a single feature bit (ctx_disable_feature).
func (c *Context) DisableFeature(f target.Feature) error {
	if err := c.requireTarget(); err != nil {
		return err
	}
	c.features &^= f
	c.lastErr = nil
	return nil
}

// LoadCPUProfile parses a YAML CPU-model profile (vendor-supplied -mcpu
// style descriptor) and applies its feature mask as if it were a builtin
// model, leaving c.cpu at its current value since the profile carries its
// own name rather than a target.CPUModel constant.
func (c *Context) LoadCPUProfile(doc []byte) error {
	if err := c.requireTarget(); err != nil {
		return err
	}
	_, mask, err := target.ParseProfile(doc)
	if err != nil {
		return c.fail(InvalidArgument, "%s", err)
	}
	c.features = mask
	c.lastErr = nil
	return nil
}

func (c *Context) backendConfig() backend.Config {
	return backend.Config{Arch: c.arch, Dialect: c.dialect, FPFormat: c.fpFormat, ABI: c.abi, CPU: c.cpu, Features: c.features}
}

// Types returns the context's shared type cache, used by every type
// factory (type_ptr, type_array, type_struct, type_func, ...).
func (c *Context) Types() *types.Cache { return c.types }

// NewModule creates a module owned by this context (module_create) and
// tracks it so it is reachable for the lifetime of the context.
func (c *Context) NewModule(name string) *ir.Module {
	mod := ir.NewModule(name, c.types.PointerSize())
	c.modules = append(c.modules, mod)
	return mod
}

// Optimize runs the configured pass pipeline over every function in mod
// (module_optimize / pass_manager_run_module).
func (c *Context) Optimize(mod *ir.Module) {
	c.passMgr.RunModule(mod)
}

// PassManager exposes the underlying manager for pass_manager_enable /
// pass_manager_disable / pass_manager_is_enabled, which operate at a finer
// grain than SetOptLevel's coarse level presets.
func (c *Context) PassManager() *optimize.Manager { return c.passMgr }

// CodegenModule lowers mod to assembly text for the active target
// (module_codegen / codegen_module). Requires SetTarget to have
// succeeded; returns InvalidArgument otherwise. A backend failure is
// returned as InternalError.
func (c *Context) CodegenModule(mod *ir.Module, w TextWriter) error {
	if err := c.requireTarget(); err != nil {
		return err
	}
	if err := c.backend.CodegenModule(mod, w); err != nil {
		return c.fail(InternalError, "%s", err)
	}
	c.lastErr = nil
	return nil
}

// WriteModule lowers mod and writes the result to filename (module_write).
// On failure the file may or may not exist and its content is unspecified,
// matching the spec's IO-failure contract; the library never calls
// process exit.
func (c *Context) WriteModule(mod *ir.Module, filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return c.fail(IO, "creating %s: %s", filename, err)
	}
	defer f.Close()
	if err := c.CodegenModule(mod, f); err != nil {
		return err
	}
	return nil
}

// TextWriter is the minimal sink CodegenModule writes assembly text to;
// satisfied by *os.File, *bytes.Buffer, *strings.Builder, and any other
// io.Writer.
type TextWriter interface {
	Write(p []byte) (n int, err error)
}
