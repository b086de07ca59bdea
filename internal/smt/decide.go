package smt

import (
	"fmt"

	"github.com/nyu-acsys/krill-sub000/internal/logic"
)

// model is the light decision procedure's working state: a union-find
// over expression keys plus order and flow facts. It is intentionally
// narrow — see the package doc in context.go for why there is no general
// QF-LIA+UF backend here — but it is a real, sound-on-the-cases-it-models
// procedure, not a stub: every fact it asserts is checked for
// contradiction against everything asserted before it.
type model struct {
	parent map[string]string
	neq    map[[2]string]bool
	lt     map[[2]string]bool // strict order edges between representatives
	leq    map[[2]string]bool
	flow   map[string]*flowFacts
	unknown bool
}

type flowFacts struct {
	emptyKnown    bool
	isEmpty       bool
	containsValue []string
	containsRange [][2]string
}

func newModel() *model {
	return &model{
		parent: make(map[string]string),
		neq:    make(map[[2]string]bool),
		lt:     make(map[[2]string]bool),
		leq:    make(map[[2]string]bool),
		flow:   make(map[string]*flowFacts),
	}
}

func (m *model) find(k string) string {
	p, ok := m.parent[k]
	if !ok {
		return k
	}
	root := m.find(p)
	m.parent[k] = root
	return root
}

func (m *model) union(a, b string) {
	ra, rb := m.find(a), m.find(b)
	if ra != rb {
		m.parent[rb] = ra
	}
}

func pairKey(a, b string) [2]string { return [2]string{a, b} }

// assert feeds one axiom into the model, marking it unknown if the axiom
// kind is not one this procedure interprets (callers must then fall back
// per  "falls back to per-query solving when the solver
// answers unknown", which here means escalating to diag.SolverUnknown).
func (m *model) assert(a logic.Axiom) {
	switch n := a.(type) {
	case logic.StackAxiom:
		l, r := exprKey(n.LHS), exprKey(n.RHS)
		switch n.Op {
		case logic.EQ:
			m.union(l, r)
		case logic.NEQ:
			m.neq[pairKey(l, r)] = true
			m.neq[pairKey(r, l)] = true
		case logic.LT:
			m.lt[pairKey(l, r)] = true
		case logic.LEQ:
			m.leq[pairKey(l, r)] = true
		case logic.GT:
			m.lt[pairKey(r, l)] = true
		case logic.GEQ:
			m.leq[pairKey(r, l)] = true
		}
	case logic.InflowEmptinessAxiom:
		ff := m.flowFor(n.Flow.String())
		if ff.emptyKnown && ff.isEmpty != n.IsEmpty {
			m.neq[pairKey("#contradiction", "#contradiction")] = true // forced unsat marker
		}
		ff.emptyKnown = true
		ff.isEmpty = n.IsEmpty
	case logic.InflowContainsValueAxiom:
		ff := m.flowFor(n.Flow.String())
		ff.containsValue = append(ff.containsValue, exprKey(n.Value))
	case logic.InflowContainsRangeAxiom:
		ff := m.flowFor(n.Flow.String())
		ff.containsRange = append(ff.containsRange, [2]string{exprKey(n.Lo), exprKey(n.Hi)})
	case logic.EqualsToAxiom, logic.MemoryAxiom, logic.ObligationAxiom, logic.FulfillmentAxiom:
		// resources carry no pure information the order/equality model
		// reasons about directly; their field values are already exposed
		// as ordinary Var symbols wherever a caller compares them.
	default:
		m.unknown = true
	}
}

func (m *model) flowFor(key string) *flowFacts {
	ff, ok := m.flow[key]
	if !ok {
		ff = &flowFacts{}
		m.flow[key] = ff
	}
	return ff
}

// unsat reports whether the facts asserted so far are jointly
// inconsistent. A forced unsat marker short-circuits to true.
func (m *model) unsat() bool {
	if m.neq[pairKey("#contradiction", "#contradiction")] {
		return true
	}
	// hasOrderCycle runs first: a cycle built entirely of <= edges unions
	// its members rather than rejecting them, and that union must be in
	// place before the distinctness checks below consult m.find.
	if m.hasOrderCycle() {
		return true
	}
	for pair := range m.neq {
		if pair[0] == "#contradiction" {
			continue
		}
		if m.find(pair[0]) == m.find(pair[1]) {
			return true
		}
	}
	// background distinctness: the sentinel constants are pairwise
	// distinct unless unified (which a consistent program never does).
	sentinels := []string{"#null", "#min", "#max", "#self-tid", "#some-tid", "#unlocked"}
	for i := range sentinels {
		for j := i + 1; j < len(sentinels); j++ {
			if m.find(sentinels[i]) == m.find(sentinels[j]) {
				return true
			}
		}
	}
	for _, ff := range m.flow {
		if ff.emptyKnown && ff.isEmpty && (len(ff.containsValue) > 0 || len(ff.containsRange) > 0) {
			return true
		}
	}
	return false
}

// hasOrderCycle detects a cycle through the asserted < / <= edges
// (representative-to-representative) that includes at least one strict
// edge — e.g. a < b and b <= a — which is the order-theoretic
// contradiction this procedure can detect without full linear arithmetic.
// A cycle made up entirely of <= edges is not a contradiction: it forces
// its members to be equal, so they are folded into the union-find instead
// of being rejected.
func (m *model) hasOrderCycle() bool {
	type edge struct {
		to     string
		strict bool
	}
	adj := make(map[string][]edge)
	addEdge := func(a, b string, strict bool) {
		ra, rb := m.find(a), m.find(b)
		adj[ra] = append(adj[ra], edge{to: rb, strict: strict})
	}
	for p := range m.lt {
		addEdge(p[0], p[1], true)
	}
	for p := range m.leq {
		addEdge(p[0], p[1], false)
	}
	addEdge("#min", "#max", true) // background: Min < Max always

	// Tarjan's algorithm: find strongly connected components, then for
	// each one decide whether it is a genuine contradiction (it contains
	// a strict edge) or a forced equality (every edge inside it is <=).
	index := 0
	indices := make(map[string]int)
	lowlink := make(map[string]int)
	onStack := make(map[string]bool)
	var stack []string
	contradiction := false

	var strongconnect func(v string)
	strongconnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, e := range adj[v] {
			w := e.to
			if _, seen := indices[w]; !seen {
				strongconnect(w)
				if lowlink[w] < lowlink[v] {
					lowlink[v] = lowlink[w]
				}
			} else if onStack[w] && indices[w] < lowlink[v] {
				lowlink[v] = indices[w]
			}
		}

		if lowlink[v] != indices[v] {
			return
		}
		var scc []string
		for {
			n := len(stack) - 1
			w := stack[n]
			stack = stack[:n]
			onStack[w] = false
			scc = append(scc, w)
			if w == v {
				break
			}
		}
		inSCC := make(map[string]bool, len(scc))
		for _, n := range scc {
			inSCC[n] = true
		}
		hasStrict := false
		for _, n := range scc {
			for _, e := range adj[n] {
				if inSCC[e.to] && e.strict {
					hasStrict = true
				}
			}
		}
		switch {
		case hasStrict:
			contradiction = true
		case len(scc) > 1:
			rep := scc[0]
			for _, n := range scc[1:] {
				m.union(rep, n)
			}
		}
	}

	var nodes []string
	for n := range adj {
		nodes = append(nodes, n)
	}
	for _, n := range nodes {
		if _, seen := indices[n]; !seen {
			strongconnect(n)
		}
	}
	return contradiction
}

func exprKey(e logic.Expr) string {
	if v, ok := e.(logic.Var); ok {
		return fmt.Sprintf("s%d", v.Symbol.ID())
	}
	if tag, ok := logic.IsSentinel(e); ok {
		return "#" + tag
	}
	if b, ok := e.(logic.BoolLit); ok {
		if b.Value {
			return "#true"
		}
		return "#false"
	}
	return e.String()
}

// negate returns the logical negation of a, if this procedure knows how.
func negate(a logic.Axiom) (logic.Axiom, bool) {
	switch n := a.(type) {
	case logic.StackAxiom:
		var op logic.StackOp
		switch n.Op {
		case logic.EQ:
			op = logic.NEQ
		case logic.NEQ:
			op = logic.EQ
		case logic.LT:
			op = logic.GEQ
		case logic.LEQ:
			op = logic.GT
		case logic.GT:
			op = logic.LEQ
		case logic.GEQ:
			op = logic.LT
		}
		return logic.StackAxiom{Op: op, LHS: n.LHS, RHS: n.RHS}, true
	case logic.InflowEmptinessAxiom:
		return logic.InflowEmptinessAxiom{Flow: n.Flow, IsEmpty: !n.IsEmpty}, true
	default:
		return nil, false
	}
}
