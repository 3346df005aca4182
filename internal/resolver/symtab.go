package resolver

import (
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"

	apperrors "github.com/callpath-core/pkg/errors"
	"github.com/callpath-core/pkg/interval"
)

// Symbol is a named function range.
type Symbol struct {
	Name string
	File string
	Bounds
}

// DefaultFunctionSize is the synthetic size given to interned names.
const DefaultFunctionSize = 0x100

// syntheticBase is where interned functions are laid out.
const syntheticBase uint64 = 0x400000

// SymbolTable is an in-memory Resolver. Function bounds are registered
// explicitly with Add or synthesized from a name with Intern.
//
// Readers never block: lookups load an immutable snapshot, and writers
// serialize on mu and publish a modified copy.
type SymbolTable struct {
	mu   sync.Mutex
	snap atomic.Pointer[symbols]
}

// symbols is one published state of a SymbolTable. It is never mutated
// after publication.
type symbols struct {
	modules []string
	syms    []Symbol // sorted by Start
	byName  map[string]int
	valid   *interval.Set
	next    uint64
}

func (s *symbols) clone() *symbols {
	return &symbols{
		modules: slices.Clone(s.modules),
		syms:    slices.Clone(s.syms),
		byName:  maps.Clone(s.byName),
		valid:   s.valid.Clone(),
		next:    s.next,
	}
}

var _ Resolver = (*SymbolTable)(nil)

// NewSymbolTable returns an empty table.
func NewSymbolTable() *SymbolTable {
	t := &SymbolTable{}
	t.snap.Store(&symbols{
		byName: make(map[string]int),
		valid:  interval.NewSet(),
		next:   syntheticBase,
	})
	return t
}

// AddModule registers a load module and returns its id.
func (t *SymbolTable) AddModule(name string) uint32 {
	if i := slices.Index(t.snap.Load().modules, name); i >= 0 {
		return uint32(i)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	cur := t.snap.Load()
	if i := slices.Index(cur.modules, name); i >= 0 {
		return uint32(i)
	}
	next := cur.clone()
	next.modules = append(next.modules, name)
	t.snap.Store(next)
	return uint32(len(next.modules) - 1)
}

// ModuleName returns the name of load module id.
func (t *SymbolTable) ModuleName(id uint32) string {
	if id == PlaceholderLoadModule {
		return "<placeholder>"
	}
	if mods := t.snap.Load().modules; int(id) < len(mods) {
		return mods[id]
	}
	return ""
}

// Add registers sym. Ranges must not overlap an existing symbol.
func (t *SymbolTable) Add(sym Symbol) error {
	if sym.End <= sym.Start {
		return apperrors.New(apperrors.CodeInvalidInput,
			fmt.Sprintf("empty range for %s: [0x%x, 0x%x)", sym.Name, sym.Start, sym.End))
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	next := t.snap.Load().clone()
	if err := next.add(sym); err != nil {
		return err
	}
	t.snap.Store(next)
	return nil
}

func (s *symbols) add(sym Symbol) error {
	i := s.search(sym.Start)
	if i < len(s.syms) && s.syms[i].Start < sym.End {
		return apperrors.New(apperrors.CodeInvalidInput,
			fmt.Sprintf("%s [0x%x, 0x%x) overlaps %s", sym.Name, sym.Start, sym.End, s.syms[i].Name))
	}
	s.syms = slices.Insert(s.syms, i, sym)
	for j := i; j < len(s.syms); j++ {
		s.byName[s.syms[j].Name] = j
	}
	s.valid.Insert(interval.New(sym.Start, sym.End-1))
	s.next = max(s.next, sym.End)
	return nil
}

// Intern returns the symbol registered under name, laying out a synthetic
// range in load module lm when the name is new.
func (t *SymbolTable) Intern(lm uint32, name string) Symbol {
	cur := t.snap.Load()
	if i, ok := cur.byName[name]; ok {
		return cur.syms[i]
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	cur = t.snap.Load()
	if i, ok := cur.byName[name]; ok {
		return cur.syms[i]
	}
	next := cur.clone()
	sym := Symbol{Name: name, Bounds: Bounds{Start: next.next, End: next.next + DefaultFunctionSize, LoadModuleID: lm}}
	if err := next.add(sym); err != nil {
		// The synthetic cursor is always past every registered range.
		panic(errors.NewAssertionErrorWithWrappedErrf(err, "interning %q", name))
	}
	t.snap.Store(next)
	return sym
}

// search returns the index of the first symbol ending past addr.
func (s *symbols) search(addr uint64) int {
	return sort.Search(len(s.syms), func(i int) bool { return s.syms[i].End > addr })
}

// Resolve implements Resolver.
func (t *SymbolTable) Resolve(addr uint64) (Bounds, bool) {
	s, ok := t.Lookup(addr)
	return s.Bounds, ok
}

// Lookup returns the symbol containing addr.
func (t *SymbolTable) Lookup(addr uint64) (Symbol, bool) {
	if p, ok := Canonicalize(addr); ok {
		return Symbol{Name: p.String(), Bounds: p.Bounds()}, true
	}
	cur := t.snap.Load()
	if !cur.valid.Contains(addr) {
		return Symbol{}, false
	}
	i := cur.search(addr)
	if i == len(cur.syms) || !cur.syms[i].Contains(addr) {
		return Symbol{}, false
	}
	return cur.syms[i], true
}

// Len returns the number of registered symbols.
func (t *SymbolTable) Len() int {
	return len(t.snap.Load().syms)
}

// Coverage returns a copy of the set of addresses covered by symbols.
func (t *SymbolTable) Coverage() *interval.Set {
	return t.snap.Load().valid.Clone()
}
