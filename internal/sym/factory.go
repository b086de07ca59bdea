package sym

import "fmt"

// Factory hands out fresh symbols, naming each one after a per-factory
// counter so no two symbols it mints share a name, and records retired
// ones without reusing them. Rather than a process-wide
// global arena, it is always an explicit value threaded through the
// engine so tests can run in isolation.
type Factory struct {
	counter  uint64
	prefix   map[Sort]string
	retired  []*Symbol // recycled when their sort/order matches a request
	outstanding map[*Symbol]bool
}

// NewFactory creates an empty factory with the default per-sort name
// prefixes used when minting fresh symbols.
func NewFactory() *Factory {
	return &Factory{
		prefix: map[Sort]string{
			SortBool:     "b",
			SortData:     "k",
			SortThreadID: "t",
			SortPointer:  "p",
			SortFlow:     "fl",
		},
		outstanding: make(map[*Symbol]bool),
	}
}

// Fresh mints a brand-new first-order symbol of the given sort, whose
// name no earlier symbol of this factory carries.
func (f *Factory) Fresh(sort Sort) *Symbol {
	return f.freshNamed(f.nextName(sort), sort, FirstOrder)
}

// FreshFlow mints a brand-new second-order flow symbol.
func (f *Factory) FreshFlow() *Symbol {
	return f.freshNamed(f.nextName(SortFlow), SortFlow, SecondOrder)
}

// FreshLike mints a fresh symbol with the same sort/order as s, used by
// RenameSymbols' default renaming.
func (f *Factory) FreshLike(s *Symbol) *Symbol {
	if s.IsSecond() {
		return f.FreshFlow()
	}
	return f.Fresh(s.sort)
}

func (f *Factory) freshNamed(name string, sort Sort, order Order) *Symbol {
	f.counter++
	s := &Symbol{name: name, sort: sort, order: order, id: f.counter}
	f.outstanding[s] = true
	return s
}

func (f *Factory) nextName(sort Sort) string {
	return fmt.Sprintf("%s%d", f.prefix[sort], f.counter+1)
}

// Retire marks a symbol as no longer referenced by any live logic object.
// The retired symbol is recorded, but Fresh never reuses it or its name,
// and the *Symbol pointer itself is never handed out again — identity is
// what RenameSymbols and Collect rely on.
func (f *Factory) Retire(s *Symbol) {
	delete(f.outstanding, s)
	f.retired = append(f.retired, s)
}

// Outstanding reports whether s was minted by this factory and not yet
// retired.
func (f *Factory) Outstanding(s *Symbol) bool {
	return f.outstanding[s]
}

// Blacklist is a set of symbol names. Fresh and FreshFlow do not consult
// it; their counter-based names already differ from every symbol the
// same factory minted before.
type Blacklist map[string]bool

func NewBlacklist(symbols ...*Symbol) Blacklist {
	bl := make(Blacklist, len(symbols))
	for _, s := range symbols {
		bl[s.name] = true
	}
	return bl
}
