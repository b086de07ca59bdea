package flowgraph

import (
	"github.com/nyu-acsys/krill-sub000/internal/config"
	"github.com/nyu-acsys/krill-sub000/internal/diag"
	"github.com/nyu-acsys/krill-sub000/internal/eval"
	"github.com/nyu-acsys/krill-sub000/internal/logic"
	"github.com/nyu-acsys/krill-sub000/internal/program"
	"github.com/nyu-acsys/krill-sub000/internal/simplify"
	"github.com/nyu-acsys/krill-sub000/internal/smt"
	"github.com/nyu-acsys/krill-sub000/internal/sym"
)

// maxFrontierRounds bounds how many times MakeFlowFootprint re-extends the
// pre-state with fresh frontier memories before giving up with
// diag.FootprintTooSmall. The loop ends normally once a BFS round finds
// no address without a memory resource (an empty frontier); this adds a
// hard retry cap so a pathological footprint can't loop unboundedly.
const maxFrontierRounds = 4

// frontierQueueEntry is one pending BFS expansion.
type frontierQueueEntry struct {
	addr  *sym.Symbol
	depth int
}

// MakeFlowFootprint builds the pre-state's footprint for a write whose lhs
// is write.Base.write.Field and whose rhs is write.Value.
// It returns the graph plus any extra ground facts the caller must conjoin
// into the post annotation — currently just the stack equality binding a
// freshly-minted field symbol to a sentinel literal, when the written
// value is not itself backed by a symbol (e.g. `x.next := null`).
func MakeFlowFootprint(pre logic.Annotation, write program.Write, cfg config.SolverConfig, factory *sym.Factory) (*Graph, []logic.Formula, error) {
	rootVal, ok := pre.VariableValue(write.Base)
	if !ok {
		return nil, nil, diag.New(diag.ResourceMissing, "variable %q has no resource", write.Base)
	}
	rootMem, ok := pre.MemoryAt(rootVal)
	if !ok {
		return nil, nil, diag.New(diag.ResourceMissing, "no memory resource at %q", write.Base)
	}

	g := &Graph{Pre: pre, Config: cfg, Factory: factory}
	root := newNodeFromMemory(rootMem, rootMem.Locality == logic.Shared)
	g.Nodes = append(g.Nodes, root)

	rhs, err := eval.Evaluate(write.Value, pre)
	if err != nil {
		return nil, nil, err
	}
	rhsSym, extra := symbolOf(rhs, factory)
	root.PostFields = cloneFields(root.PreFields)
	root.PostFields[write.Field] = rhsSym
	// the root's post-inflow equals its pre-inflow: the environment
	// outside the write is unchanged at the written node itself.
	root.PostAllInflow = root.PreAllInflow
	root.PostGraphInflow = root.PreGraphInflow
	root.PostKeyset = root.PreKeyset
	root.PostShared = root.PreShared

	nodeType := cfg.NodeType(rootMem)

	frontier := expandBFS(g, cfg, nodeType, map[*sym.Symbol]int{root.Address: 0})
	for round := 0; len(frontier) > 0; round++ {
		if round >= maxFrontierRounds {
			return nil, nil, diag.New(diag.FootprintTooSmall, "frontier did not stabilise after %d rounds", maxFrontierRounds).WithNote("frontier still growing")
		}
		if err := growFrontier(g, cfg, factory, frontier); err != nil {
			return nil, nil, err
		}
		frontier = expandBFS(g, cfg, nodeType, frontier)
	}

	if hasIncoming(g, root.Address) {
		return nil, nil, diag.New(diag.CycleInFootprint, "root %s has an incoming edge", root.Address)
	}

	return g, extra, nil
}

// MakePureHeapGraph creates a node for every memory axiom in state, with
// pre equal to post throughout — used when a command
// (assume, malloc, lock) needs footprint-shaped reasoning without an
// actual write.
func MakePureHeapGraph(state logic.Annotation, factory *sym.Factory, cfg config.SolverConfig) *Graph {
	g := &Graph{Pre: state, Config: cfg, Factory: factory}
	for _, m := range state.MemoryAxioms() {
		n := newNodeFromMemory(m, m.Locality == logic.Shared)
		n.PostFields = cloneFields(n.PreFields)
		n.PostAllInflow, n.PostGraphInflow, n.PostKeyset = n.PreAllInflow, n.PreGraphInflow, n.PreKeyset
		n.PostShared = n.PreShared
		g.Nodes = append(g.Nodes, n)
	}
	return g
}

func newNodeFromMemory(m logic.MemoryAxiom, shared bool) *Node {
	return &Node{
		Address:        m.Address,
		PreShared:      shared,
		PreAllInflow:   m.Flow,
		PreGraphInflow: m.Flow,
		PreKeyset:      m.Flow,
		PreFields:      cloneFields(m.Fields),
	}
}

func cloneFields(fields map[string]*sym.Symbol) map[string]*sym.Symbol {
	out := make(map[string]*sym.Symbol, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}

// symbolOf returns the symbol a value should be stored as in a field map,
// minting a fresh one and an accompanying equality fact when the value is
// a bare sentinel literal rather than a Var.
func symbolOf(e logic.Expr, factory *sym.Factory) (*sym.Symbol, []logic.Formula) {
	if v, ok := e.(logic.Var); ok {
		return v.Symbol, nil
	}
	s := factory.Fresh(sym.SortPointer)
	eq := logic.Lift(logic.StackAxiom{Op: logic.EQ, LHS: logic.Var{Symbol: s}, RHS: e})
	return s, []logic.Formula{eq}
}

func maxDepth(cfg config.SolverConfig, nodeType string, field string) int {
	return cfg.MaxFootprintDepth(nodeType, field)
}

// expandBFS walks outward from every (address, depth) pair in start along
// every pointer field up to the configured depth, adding a node for every
// address whose memory resource already exists in g.Pre and is not yet a
// footprint member; addresses with no pre-state memory are returned as
// the next round's frontier, paired with the depth at which they were
// reached so growFrontier's resolution can be resumed from there instead
// of re-walking the whole footprint from the root.
func expandBFS(g *Graph, cfg config.SolverConfig, nodeType string, start map[*sym.Symbol]int) map[*sym.Symbol]int {
	frontier := map[*sym.Symbol]int{}
	queue := make([]frontierQueueEntry, 0, len(start))
	for addr, depth := range start {
		queue = append(queue, frontierQueueEntry{addr: addr, depth: depth})
	}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		node, ok := g.NodeAt(cur.addr)
		if !ok {
			continue
		}
		fields := node.PreFields
		for _, field := range cfg.PointerFields(nodeType) {
			limit := maxDepth(cfg, nodeType, field)
			if cur.depth >= limit {
				continue
			}
			succAddr, ok := fields[field]
			if !ok || succAddr == nil {
				continue
			}
			if _, already := g.NodeAt(succAddr); already {
				continue
			}
			if _, pending := frontier[succAddr]; pending {
				continue
			}
			mem, ok := g.Pre.MemoryAt(succAddr)
			if !ok {
				frontier[succAddr] = cur.depth + 1
				continue
			}
			succ := newNodeFromMemory(mem, mem.Locality == logic.Shared)
			succ.PostFields = cloneFields(succ.PreFields)
			succ.PostAllInflow, succ.PostGraphInflow, succ.PostKeyset = succ.PreAllInflow, succ.PreGraphInflow, succ.PreKeyset
			// a non-local predecessor publishes every successor it reaches.
			succ.PostShared = succ.PreShared || node.PostShared
			g.Nodes = append(g.Nodes, succ)
			queue = append(queue, frontierQueueEntry{addr: succAddr, depth: cur.depth + 1})
		}
	}
	return frontier
}

// growFrontier introduces fresh shared memory resources for every frontier
// address, checked consistent via the SMT layer before being added to the
// graph and to the extended pre-state in g.Pre, so the next expandBFS
// round can resolve and traverse past them. The check encodes the node
// invariants and address ownership only; no flow rules and no
// acyclicity facts are encoded for the new memories here.
func growFrontier(g *Graph, cfg config.SolverConfig, factory *sym.Factory, frontier map[*sym.Symbol]int) error {
	ctx := smt.NewContext(factory)
	var newMemories []logic.MemoryAxiom
	for addr := range frontier {
		flow := factory.FreshFlow()
		fields := map[string]*sym.Symbol{}
		// NodeType is asked for with an otherwise-empty MemoryAxiom since
		// the frontier cell's own fields don't exist yet; DefaultListConfig
		// ignores Fields entirely, but a config with more than one node
		// type would need the field shape to already be known here.
		for _, field := range cfg.PointerFields(cfg.NodeType(logic.MemoryAxiom{Address: addr})) {
			fields[field] = factory.Fresh(sym.SortPointer)
		}
		fields["data"] = factory.Fresh(sym.SortData)
		mem := logic.MemoryAxiom{Address: addr, Flow: flow, Fields: fields, Locality: logic.Shared}
		newMemories = append(newMemories, mem)
		n := newNodeFromMemory(mem, true)
		n.PostFields = cloneFields(n.PreFields)
		n.PostAllInflow, n.PostGraphInflow, n.PostKeyset = n.PreAllInflow, n.PreGraphInflow, n.PreKeyset
		n.PostShared = n.PreShared
		g.Nodes = append(g.Nodes, n)
	}

	published := map[*sym.Symbol]bool{}
	for _, m := range newMemories {
		published[m.Address] = true
	}
	ctx.Encode(smt.EncodeInvariants(newMemories, published, cfg))
	ctx.Encode(smt.EncodeOwnership(addressesOf(append(g.Pre.MemoryAxioms(), newMemories...))))

	ok, err := ctx.Satisfiable()
	if err != nil {
		return err
	}
	if !ok {
		return diag.New(diag.FootprintTooSmall, "could not grow footprint consistently").WithNote("frontier did not change")
	}

	extended := g.Pre.Clone()
	for _, m := range newMemories {
		extended.Now = logic.And(extended.Now, logic.Lift(m))
	}
	extended.Now = simplify.Simplify(extended.Now)
	g.Pre = extended
	return nil
}

func addressesOf(memories []logic.MemoryAxiom) []*sym.Symbol {
	out := make([]*sym.Symbol, len(memories))
	for i, m := range memories {
		out[i] = m.Address
	}
	return out
}

// hasIncoming reports whether any node's post pointer fields target addr;
// the acyclicity check forbids the root from having any incoming edge.
func hasIncoming(g *Graph, addr *sym.Symbol) bool {
	for _, n := range g.Nodes {
		for _, v := range n.PostFields {
			if v == addr && n.Address != addr {
				return true
			}
		}
	}
	return false
}
