// Package backend defines the vtable every target implements (spec
// §4.7) and the registry CodegenModule/Context use to find one by
// Arch. Concrete backends live in sibling packages (x86, ppc,
// mainframe, arm64); none of them are imported here to keep this
// package free of any one target's register/dialect details -
// callers import the concrete package for its side-effecting init()
// registration, the same shape database/sql drivers use.
package backend

import (
	"fmt"
	"io"

	"github.com/bencz/anvil-go/pkg/ir"
	"github.com/bencz/anvil-go/pkg/target"
)

// Backend lowers one module to assembly text for one architecture.
// Init is called once per Context.SetTarget before any CodegenModule
// call, giving the backend a chance to reject an unsupported
// dialect/FP-format/ABI combination up front (Context reports an Init
// failure as UnsupportedFeature at configuration time, not mid-codegen).
type Backend interface {
	Init(cfg Config) error
	ArchInfo() target.Info
	CodegenModule(mod *ir.Module, w io.Writer) error
}

// Config carries the subset of Context state a backend needs to
// configure itself, without the backend package depending on
// pkg/anvil (which would create an import cycle: anvil -> backend ->
// anvil).
type Config struct {
	Arch     target.Arch
	Dialect  target.Dialect
	FPFormat target.FPFormat
	ABI      target.ABI
	CPU      target.CPUModel
	Features target.Feature
}

// Constructor builds a fresh, unconfigured Backend instance for one
// architecture.
type Constructor func() Backend

var registry = make(map[target.Arch]Constructor)

// Register adds a backend constructor for arch to the registry. Called
// from each concrete backend package's init(), mirroring how the
// teacher's sub-packages (ltl, mach, linear...) are wired together
// explicitly by the pipeline rather than discovered by reflection.
func Register(arch target.Arch, ctor Constructor) {
	registry[arch] = ctor
}

// New looks up and constructs a fresh backend for arch. Returns an
// error (NoBackend, in the caller's error taxonomy) if nothing
// registered for arch - this can happen if the caller's program never
// imported the concrete backend package for side effects.
func New(arch target.Arch) (Backend, error) {
	ctor, ok := registry[arch]
	if !ok {
		return nil, fmt.Errorf("anvil: no backend registered for target %s", arch)
	}
	return ctor(), nil
}

// Registered reports whether a backend is registered for arch.
func Registered(arch target.Arch) bool {
	_, ok := registry[arch]
	return ok
}
