// Package optimize implements ANVIL's optimization pipeline: a set of pure
// IR-to-IR passes (spec §4.5) ordered and iterated to fixpoint by a pass
// manager according to the context's optimization level.
package optimize

import (
	"github.com/bencz/anvil-go/pkg/ir"
	"github.com/bencz/anvil-go/pkg/target"
)

// PassID names one optimization pass for enable/disable/query purposes.
type PassID int

const (
	PassConstFold PassID = iota
	PassDCE
	PassCopyProp
	PassCFGSimplify
	PassStrengthReduction
	PassLoadStoreForward
	PassRedundantLoad
	PassCSE
	PassLoopUnroll
)

var passNames = map[PassID]string{
	PassConstFold:         "const-fold",
	PassDCE:               "dce",
	PassCopyProp:          "copy-prop",
	PassCFGSimplify:       "cfg-simplify",
	PassStrengthReduction: "strength-reduction",
	PassLoadStoreForward:  "load-store-forward",
	PassRedundantLoad:     "redundant-load",
	PassCSE:               "cse",
	PassLoopUnroll:        "loop-unroll",
}

func (p PassID) String() string {
	if n, ok := passNames[p]; ok {
		return n
	}
	return "?pass"
}

// passFunc runs one pass over a single function, returning whether it
// changed anything. Pass failures have no representation here: a pass
// that can't improve something just reports no change (spec §7), it
// never aborts codegen.
type passFunc func(f *ir.Function) bool

var passImpls = map[PassID]passFunc{
	PassConstFold:         runConstFold,
	PassDCE:               runDCE,
	PassCopyProp:          runCopyProp,
	PassCFGSimplify:       runCFGSimplify,
	PassStrengthReduction: runStrengthReduction,
	PassLoadStoreForward:  runStoreLoadForward,
	PassRedundantLoad:     runRedundantLoad,
	PassCSE:               runCSE,
	PassLoopUnroll:        runLoopUnroll,
}

// fixedOrder is the order passes run in within one sweep. It is fixed
// regardless of level; a level only changes which subset is enabled.
var fixedOrder = []PassID{
	PassCFGSimplify,
	PassConstFold,
	PassStrengthReduction,
	PassCopyProp,
	PassCSE,
	PassRedundantLoad,
	PassLoadStoreForward,
	PassDCE,
	PassLoopUnroll,
}

// MaxSweeps bounds the pass-manager fixpoint loop: the pipeline must
// reach a fixpoint in at most this many full sweeps (spec §8).
const MaxSweeps = 10

// Manager orders, enables/disables, and iterates passes to fixpoint.
type Manager struct {
	enabled map[PassID]bool
}

// NewManager creates a pass manager with every pass disabled (O0).
func NewManager() *Manager {
	return &Manager{enabled: make(map[PassID]bool)}
}

// Enable turns a pass on.
func (m *Manager) Enable(id PassID) { m.enabled[id] = true }

// Disable turns a pass off.
func (m *Manager) Disable(id PassID) { m.enabled[id] = false }

// IsEnabled reports whether a pass is currently on.
func (m *Manager) IsEnabled(id PassID) bool { return m.enabled[id] }

// SetLevel resets the enabled set to exactly what the spec's level
// mapping table prescribes (spec §4.5):
//
//	O0: nothing.
//	O1: const folding, DCE, copy propagation.
//	O2: O1 + CFG simplification, strength reduction, load/store
//	    forwarding, redundant-load elimination, CSE.
//	O3: O2 + loop unrolling.
//	Og: copy propagation and store-load forwarding only.
func (m *Manager) SetLevel(level target.OptLevel) {
	m.enabled = make(map[PassID]bool)
	switch level {
	case target.O0:
		// nothing enabled
	case target.Og:
		m.Enable(PassCopyProp)
		m.Enable(PassLoadStoreForward)
	case target.O1:
		m.Enable(PassConstFold)
		m.Enable(PassDCE)
		m.Enable(PassCopyProp)
	case target.O2:
		m.SetLevel(target.O1)
		m.Enable(PassCFGSimplify)
		m.Enable(PassStrengthReduction)
		m.Enable(PassLoadStoreForward)
		m.Enable(PassRedundantLoad)
		m.Enable(PassCSE)
	case target.O3:
		m.SetLevel(target.O2)
		m.Enable(PassLoopUnroll)
	}
}

// RunFunction runs the enabled passes over f, in fixed order, repeating
// full sweeps until none change anything or MaxSweeps is reached.
func (m *Manager) RunFunction(f *ir.Function) {
	for sweep := 0; sweep < MaxSweeps; sweep++ {
		changed := false
		for _, id := range fixedOrder {
			if !m.enabled[id] {
				continue
			}
			if passImpls[id](f) {
				changed = true
			}
		}
		if !changed {
			return
		}
	}
}

// RunModule runs the configured pipeline over every function in m.
func (m *Manager) RunModule(mod *ir.Module) {
	for _, f := range mod.Functions {
		if f.IsDeclaration {
			continue
		}
		m.RunFunction(f)
	}
}
