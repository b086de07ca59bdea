package post

import (
	"github.com/nyu-acsys/krill-sub000/internal/config"
	"github.com/nyu-acsys/krill-sub000/internal/diag"
	"github.com/nyu-acsys/krill-sub000/internal/flowgraph"
	"github.com/nyu-acsys/krill-sub000/internal/logic"
	"github.com/nyu-acsys/krill-sub000/internal/program"
	"github.com/nyu-acsys/krill-sub000/internal/simplify"
	"github.com/nyu-acsys/krill-sub000/internal/smt"
	"github.com/nyu-acsys/krill-sub000/internal/sym"
)

// Result is the outcome of a successful post-image computation: the new
// annotation plus every HeapEffect it produced for the interference pool.
type Result struct {
	Post    logic.Annotation
	Effects []logic.HeapEffect

	// Footprint is the flow graph the post-image was computed against,
	// set only by Write. Nil for every other command's Result.
	Footprint *flowgraph.Graph
}

// Write computes the post-image of a memory write. It is the most
// involved operation in the engine: build the footprint, run the seven
// checks under one batched SMT context, minimise, and extract effects.
func Write(pre logic.Annotation, w program.Write, cfg config.SolverConfig, factory *sym.Factory) (Result, error) {
	if shortcut, ok := tryFutureShortcut(pre, w); ok {
		return Result{Post: shortcut}, nil
	}

	g, extra, err := flowgraph.MakeFlowFootprint(pre, w, cfg, factory)
	if err != nil {
		return Result{}, err
	}

	ctx := smt.NewContext(factory)
	ctx.Encode(g.Pre.Now)
	preMemories := memoriesOf(g.Nodes, false)
	postMemories := memoriesOf(g.Nodes, true)
	published := publishedSet(g.Nodes)
	ctx.Encode(smt.EncodeInvariants(preMemories, localitySet(g.Nodes, false), cfg))
	ctx.Encode(smt.EncodeOwnership(g.Addresses()))

	if err := checkPublishingReachability(g); err != nil {
		return Result{}, err
	}
	if err := checkAcyclicity(g); err != nil {
		return Result{}, err
	}
	if err := checkFlowCoverage(g, cfg); err != nil {
		return Result{}, err
	}
	if err := checkKeysetDisjointness(ctx, postMemories, cfg); err != nil {
		return Result{}, err
	}
	if err := checkInflowUniqueness(ctx, postMemories); err != nil {
		return Result{}, err
	}
	if err := checkInvariantMaintenance(ctx, postMemories, published, cfg); err != nil {
		return Result{}, err
	}
	obligationAxioms, fulfillments, err := checkSpecification(ctx, g, pre, cfg)
	if err != nil {
		return Result{}, err
	}

	minimize(g)

	effects := extractEffects(ctx, g)

	postAnnotation := buildPostAnnotation(pre, g, extra, obligationAxioms, fulfillments)
	postAnnotation.Now = simplify.Simplify(postAnnotation.Now)

	return Result{Post: postAnnotation, Effects: effects, Footprint: g}, nil
}

func memoriesOf(nodes []*flowgraph.Node, post bool) []logic.MemoryAxiom {
	out := make([]logic.MemoryAxiom, len(nodes))
	for i, n := range nodes {
		if post {
			out[i] = n.PostMemory()
		} else {
			out[i] = n.PreMemory()
		}
	}
	return out
}

func publishedSet(nodes []*flowgraph.Node) map[*sym.Symbol]bool {
	out := map[*sym.Symbol]bool{}
	for _, n := range nodes {
		if n.PostShared {
			out[n.Address] = true
		}
	}
	return out
}

func localitySet(nodes []*flowgraph.Node, post bool) map[*sym.Symbol]bool {
	out := map[*sym.Symbol]bool{}
	for _, n := range nodes {
		shared := n.PreShared
		if post {
			shared = n.PostShared
		}
		if shared {
			out[n.Address] = true
		}
	}
	return out
}

// checkPublishingReachability checks that every successor reachable from
// a newly-published node is already in the footprint (MakeFlowFootprint's
// frontier growth is expected to have put it there), already shared in the
// pre-state, or null.
func checkPublishingReachability(g *flowgraph.Graph) error {
	inFootprint := map[*sym.Symbol]bool{}
	for _, n := range g.Nodes {
		inFootprint[n.Address] = true
	}
	for _, n := range g.Nodes {
		if n.PreShared || !n.PostShared {
			continue
		}
		for field, succ := range n.PostFields {
			if succ == nil || inFootprint[succ] {
				continue
			}
			if mem, ok := g.Pre.MemoryAt(succ); ok && mem.Locality == logic.Shared {
				continue
			}
			return diag.New(diag.UnsafeUpdate, "publishing %s makes field %q reach an address outside the footprint", n.Address, field)
		}
	}
	return nil
}

// checkAcyclicity checks that post-reachability within the footprint is
// irreflexive.
func checkAcyclicity(g *flowgraph.Graph) error {
	addrIndex := map[*sym.Symbol]*flowgraph.Node{}
	for _, n := range g.Nodes {
		addrIndex[n.Address] = n
	}
	visiting := map[*sym.Symbol]int{} // 0 unvisited, 1 in-stack, 2 done
	var dfs func(addr *sym.Symbol) bool
	dfs = func(addr *sym.Symbol) bool {
		visiting[addr] = 1
		n := addrIndex[addr]
		for _, succ := range n.PostFields {
			if succ == nil {
				continue
			}
			if _, ok := addrIndex[succ]; !ok {
				continue
			}
			if visiting[succ] == 1 {
				return true
			}
			if visiting[succ] == 0 && dfs(succ) {
				return true
			}
		}
		visiting[addr] = 2
		return false
	}
	for _, n := range g.Nodes {
		if visiting[n.Address] == 0 {
			if dfs(n.Address) {
				return diag.New(diag.CycleInFootprint, "post-image introduces a cycle through %s", n.Address)
			}
		}
	}
	return nil
}

// checkFlowCoverage checks that every pointer field whose pre- or
// post-target has changed targets a footprint member, or null.
func checkFlowCoverage(g *flowgraph.Graph, cfg config.SolverConfig) error {
	inFootprint := map[*sym.Symbol]bool{}
	for _, n := range g.Nodes {
		inFootprint[n.Address] = true
	}
	for _, n := range g.Nodes {
		for _, field := range cfg.PointerFields(cfg.NodeType(n.PreMemory())) {
			pre, post := n.PreFields[field], n.PostFields[field]
			if pre == post {
				continue
			}
			for _, target := range []*sym.Symbol{pre, post} {
				if target == nil || inFootprint[target] {
					continue
				}
				return diag.New(diag.FootprintTooSmall, "field %q of %s changed but its target is outside the footprint", field, n.Address)
			}
		}
	}
	return nil
}

// checkKeysetDisjointness checks that no two footprint members' post-image
// keysets overlap.
func checkKeysetDisjointness(ctx *smt.Context, postMemories []logic.MemoryAxiom, cfg config.SolverConfig) error {
	holds, err := ctx.Implies(logic.And(), smt.EncodeKeysetDisjointness(ctx, postMemories, cfg))
	if err != nil {
		return err
	}
	if !holds {
		return diag.New(diag.UnsafeUpdate, "post-image keysets are not disjoint")
	}
	return nil
}

// checkInflowUniqueness checks that no footprint member's post-image has
// more than one inflow predecessor (MAX_INFLOW_PREDECESSORS = 1).
func checkInflowUniqueness(ctx *smt.Context, postMemories []logic.MemoryAxiom) error {
	holds, err := ctx.Implies(logic.And(), smt.EncodeInflowUniqueness(postMemories))
	if err != nil {
		return err
	}
	if !holds {
		return diag.New(diag.UnsafeUpdate, "post-image violates inflow uniqueness")
	}
	return nil
}

// checkInvariantMaintenance checks that every published footprint member's
// post-image still satisfies the node invariant.
func checkInvariantMaintenance(ctx *smt.Context, postMemories []logic.MemoryAxiom, published map[*sym.Symbol]bool, cfg config.SolverConfig) error {
	holds, err := ctx.Implies(logic.And(), smt.EncodeInvariants(postMemories, published, cfg))
	if err != nil {
		return err
	}
	if !holds {
		return diag.New(diag.InvariantViolation, "post-image violates the node invariant")
	}
	return nil
}

// checkSpecification discharges the pre-state's outstanding obligations
// against the post-image, returning the ObligationAxioms to keep
// (forwarded, unconsumed obligations) and the FulfillmentAxioms to add.
func checkSpecification(ctx *smt.Context, g *flowgraph.Graph, pre logic.Annotation, cfg config.SolverConfig) ([]logic.ObligationAxiom, []logic.FulfillmentAxiom, error) {
	var isPureParts []logic.Formula
	for _, n := range g.Nodes {
		isPureParts = append(isPureParts, smt.EncodeIsPure(logic.HeapEffect{Pre: n.PreMemory(), Post: n.PostMemory()}))
	}
	isPure := logic.And(isPureParts...)
	pureHolds, err := ctx.Implies(logic.And(), isPure)
	if err != nil {
		return nil, nil, err
	}

	var keptObligations []logic.ObligationAxiom
	var fulfillments []logic.FulfillmentAxiom

	for _, ob := range pre.Obligations() {
		switch ob.Spec {
		case logic.SpecContains:
			if !pureHolds {
				return nil, nil, diag.New(diag.UnsafeUpdate, "contains obligation requires a pure update")
			}
			contained := false
			for _, n := range g.Nodes {
				holds, err := ctx.Implies(logic.And(), smt.EncodeContainsKey(n.PostMemory(), logic.Var{Symbol: ob.Key}, cfg))
				if err != nil {
					return nil, nil, err
				}
				if holds {
					contained = true
					break
				}
			}
			fulfillments = append(fulfillments, logic.FulfillmentAxiom{Spec: ob.Spec, Key: ob.Key, ReturnValue: logic.BoolLit{Value: contained}})

		case logic.SpecInsert, logic.SpecDelete:
			if pureHolds {
				keptObligations = append(keptObligations, ob)
				continue
			}
			witnessed := false
			for _, n := range g.Nodes {
				var f logic.Formula
				if ob.Spec == logic.SpecInsert {
					f = smt.EncodeIsInsertion(n.PreMemory(), n.PostMemory(), logic.Var{Symbol: ob.Key}, cfg)
				} else {
					f = smt.EncodeIsDeletion(n.PreMemory(), n.PostMemory(), logic.Var{Symbol: ob.Key}, cfg)
				}
				holds, err := ctx.Implies(logic.And(), f)
				if err != nil {
					return nil, nil, err
				}
				if holds {
					witnessed = true
					break
				}
			}
			if !witnessed {
				return nil, nil, diag.New(diag.UnsafeUpdate, "%s obligation's key was not witnessed by this update", ob.Spec)
			}
			fulfillments = append(fulfillments, logic.FulfillmentAxiom{Spec: ob.Spec, Key: ob.Key, ReturnValue: logic.BoolLit{Value: true}})
		}
	}
	return keptObligations, fulfillments, nil
}

// minimize keeps only nodes that changed or were explicitly marked needed
// by a check.
func minimize(g *flowgraph.Graph) {
	var kept []*flowgraph.Node
	for _, n := range g.Nodes {
		if n.Changed() || n.Needed {
			kept = append(kept, n)
		}
	}
	g.Nodes = kept
}

func extractEffects(ctx *smt.Context, g *flowgraph.Graph) []logic.HeapEffect {
	var effects []logic.HeapEffect
	for _, n := range g.Nodes {
		if !n.PostShared {
			continue
		}
		fields, flowChanged := logic.HeapEffect{Pre: n.PreMemory(), Post: n.PostMemory()}.UpdatedFields()
		if len(fields) == 0 && !flowChanged {
			continue
		}
		ctxFormula := EffectContext(ctx, fields, n.PostMemory(), flowChanged)
		effects = append(effects, logic.HeapEffect{Pre: n.PreMemory(), Post: n.PostMemory(), Context: ctxFormula})
	}
	return effects
}

func buildPostAnnotation(pre logic.Annotation, g *flowgraph.Graph, extra []logic.Formula, kept []logic.ObligationAxiom, fulfillments []logic.FulfillmentAxiom) logic.Annotation {
	postByAddr := map[*sym.Symbol]logic.MemoryAxiom{}
	for _, n := range g.Nodes {
		postByAddr[n.Address] = n.PostMemory()
	}

	var children []logic.Formula
	for _, ax := range pre.Axioms() {
		switch a := ax.(type) {
		case logic.MemoryAxiom:
			if post, ok := postByAddr[a.Address]; ok {
				children = append(children, logic.Lift(post))
			} else {
				children = append(children, logic.Lift(a))
			}
		case logic.ObligationAxiom:
			for _, k := range kept {
				if k.Key == a.Key && k.Spec == a.Spec {
					children = append(children, logic.Lift(a))
					break
				}
			}
		default:
			children = append(children, logic.Lift(ax))
		}
	}
	for _, f := range fulfillments {
		children = append(children, logic.Lift(f))
	}
	children = append(children, extra...)

	return logic.Annotation{Now: logic.And(children...), Past: pre.Past, Future: pre.Future}
}

// tryFutureShortcut implements "use of futures": if a FuturePredicate on
// the written address already records this exact field update, a cheap
// syntactic post is returned instead of running the full footprint
// pipeline.
func tryFutureShortcut(pre logic.Annotation, w program.Write) (logic.Annotation, bool) {
	addr, ok := pre.VariableValue(w.Base)
	if !ok {
		return logic.Annotation{}, false
	}
	for _, fp := range pre.Future {
		if fp.Address != addr {
			continue
		}
		for _, u := range fp.Updates {
			if u.Field != w.Field {
				continue
			}
			mem, ok := pre.MemoryAt(addr)
			if !ok {
				continue
			}
			updated := logic.MemoryAxiom{Address: mem.Address, Flow: mem.Flow, Fields: map[string]*sym.Symbol{}, Locality: mem.Locality}
			for name, v := range mem.Fields {
				updated.Fields[name] = v
			}
			updated.Fields[u.Field] = u.Value

			var children []logic.Formula
			for _, ax := range pre.Axioms() {
				if m, ok := ax.(logic.MemoryAxiom); ok && m.Address == addr {
					children = append(children, logic.Lift(updated))
					continue
				}
				children = append(children, logic.Lift(ax))
			}
			post := logic.Annotation{Now: logic.And(children...), Past: pre.Past, Future: pre.Future}
			post.Now = simplify.Simplify(post.Now)
			return post, true
		}
	}
	return logic.Annotation{}, false
}
