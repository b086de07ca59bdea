// Package join implements the join operation: combining several
// annotations, produced by independent branches of a Choice or loop
// iteration, into one annotation every input implies.
package join

import (
	"github.com/nyu-acsys/krill-sub000/internal/config"
	"github.com/nyu-acsys/krill-sub000/internal/diag"
	"github.com/nyu-acsys/krill-sub000/internal/logic"
	"github.com/nyu-acsys/krill-sub000/internal/post"
	"github.com/nyu-acsys/krill-sub000/internal/smt"
	"github.com/nyu-acsys/krill-sub000/internal/sym"
)

// maxJoin bounds how many annotations Join encodes in one SMT derivation
// step; larger inputs are pairwise reduced first.
const maxJoin = 5

// Join combines annotations into a single annotation each of them implies.
func Join(annotations []logic.Annotation, factory *sym.Factory, cfg config.SolverConfig) (logic.Annotation, error) {
	satisfiable, err := dropUnsatisfiable(annotations, factory)
	if err != nil {
		return logic.Annotation{}, err
	}
	if len(satisfiable) == 0 {
		return logic.Annotation{}, diag.New(diag.InternalInconsistency, "join has no satisfiable input")
	}
	if len(satisfiable) == 1 {
		return satisfiable[0], nil
	}

	if len(satisfiable) > maxJoin {
		var reduced []logic.Annotation
		for i := 0; i < len(satisfiable); i += 2 {
			if i+1 < len(satisfiable) {
				pair, err := Join(satisfiable[i:i+2], factory, cfg)
				if err != nil {
					return logic.Annotation{}, err
				}
				reduced = append(reduced, pair)
			} else {
				reduced = append(reduced, satisfiable[i])
			}
		}
		return Join(reduced, factory, cfg)
	}

	return joinChunk(satisfiable, factory, cfg)
}

func dropUnsatisfiable(annotations []logic.Annotation, factory *sym.Factory) ([]logic.Annotation, error) {
	var out []logic.Annotation
	for _, a := range annotations {
		ctx := smt.NewContext(factory)
		ctx.Encode(a.Now)
		ok, err := ctx.Satisfiable()
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, a)
		}
	}
	return out, nil
}

// joinChunk runs the full step 2-7 algorithm over at most maxJoin inputs.
func joinChunk(annotations []logic.Annotation, factory *sym.Factory, cfg config.SolverConfig) (logic.Annotation, error) {
	sharedVars, err := reconcileVariables(annotations, factory)
	if err != nil {
		return logic.Annotation{}, err
	}

	sharedMemories, agreements := reconcileMemories(annotations, sharedVars, factory)
	commonObligations, commonFulfillments := commonSpecAxioms(annotations)

	var children []logic.Formula
	for name, v := range sharedVars {
		children = append(children, logic.Lift(logic.EqualsToAxiom{ProgramVar: name, Value: v}))
	}
	for _, m := range sharedMemories {
		children = append(children, logic.Lift(m))
	}
	for _, ob := range commonObligations {
		children = append(children, logic.Lift(ob))
	}
	for _, f := range commonFulfillments {
		children = append(children, logic.Lift(f))
	}

	derived, err := deriveStackCandidates(annotations, sharedVars, agreements, factory, cfg)
	if err != nil {
		return logic.Annotation{}, err
	}
	children = append(children, derived...)

	result := logic.Annotation{
		Now:    logic.And(children...),
		Past:   joinPast(annotations, sharedVars, factory),
		Future: joinFuture(annotations, factory),
	}
	return result, nil
}

// reconcileVariables implements step 2: every input must expose the same
// set of program-variable resources; a fresh value symbol is minted per
// variable for the result.
func reconcileVariables(annotations []logic.Annotation, factory *sym.Factory) (map[string]*sym.Symbol, error) {
	first := map[string]*sym.Symbol{}
	for _, v := range annotations[0].VariableAxioms() {
		first[v.ProgramVar] = v.Value
	}
	for _, a := range annotations[1:] {
		seen := map[string]bool{}
		for _, v := range a.VariableAxioms() {
			seen[v.ProgramVar] = true
		}
		if len(seen) != len(first) {
			return nil, diag.New(diag.UnsupportedConstruct, "join inputs disagree on their variable resources")
		}
		for name := range first {
			if !seen[name] {
				return nil, diag.New(diag.UnsupportedConstruct, "join inputs disagree on their variable resources")
			}
		}
	}

	shared := make(map[string]*sym.Symbol, len(first))
	for name, v := range first {
		shared[name] = factory.FreshLike(v)
	}
	return shared, nil
}

// reconcileMemories implements step 3: for every pointer variable whose
// value every input backs with a memory resource of agreeing locality and
// identical field shape, build one common memory resource with fresh
// flow/field symbols. Disagreeing shapes are left unmerged, which in our
// representation simply means no common resource is produced for it
// ("duplicating the memory under a fresh symbol" in the algorithm this is
// adapted from).
// agreements records, per variable name, the per-input original memory
// that was folded into the common one — used by the derivation step to
// force agreement.
func reconcileMemories(annotations []logic.Annotation, sharedVars map[string]*sym.Symbol, factory *sym.Factory) ([]logic.MemoryAxiom, map[string][]logic.MemoryAxiom) {
	var common []logic.MemoryAxiom
	agreements := map[string][]logic.MemoryAxiom{}

	for name, freshVal := range sharedVars {
		if freshVal.Sort() != sym.SortPointer {
			continue
		}
		var members []logic.MemoryAxiom
		locality := logic.Local
		agree := true
		var fieldNames []string
		for i, a := range annotations {
			val, ok := a.VariableValue(name)
			if !ok {
				agree = false
				break
			}
			mem, ok := a.MemoryAt(val)
			if !ok {
				agree = false
				break
			}
			if i == 0 {
				locality = mem.Locality
				fieldNames = mem.FieldNames()
			} else if mem.Locality != locality || !sameFields(fieldNames, mem.FieldNames()) {
				agree = false
				break
			}
			members = append(members, mem)
		}
		if !agree || len(members) != len(annotations) {
			continue
		}

		fields := make(map[string]*sym.Symbol, len(fieldNames))
		for _, fn := range fieldNames {
			fields[fn] = factory.FreshLike(members[0].Fields[fn])
		}
		mem := logic.MemoryAxiom{Address: freshVal, Flow: factory.FreshFlow(), Fields: fields, Locality: locality}
		common = append(common, mem)
		agreements[name] = members
	}
	return common, agreements
}

func sameFields(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]bool, len(a))
	for _, f := range a {
		set[f] = true
	}
	for _, f := range b {
		if !set[f] {
			return false
		}
	}
	return true
}

// commonSpecAxioms implements step 4: obligations/fulfillments present,
// under literal key identity, in every input.
func commonSpecAxioms(annotations []logic.Annotation) ([]logic.ObligationAxiom, []logic.FulfillmentAxiom) {
	var common []logic.ObligationAxiom
	for _, ob := range annotations[0].Obligations() {
		inAll := true
		for _, a := range annotations[1:] {
			found := false
			for _, other := range a.Obligations() {
				if other.Spec == ob.Spec && other.Key == ob.Key {
					found = true
					break
				}
			}
			if !found {
				inAll = false
				break
			}
		}
		if inAll {
			common = append(common, ob)
		}
	}

	var commonFulfillments []logic.FulfillmentAxiom
	for _, f := range annotations[0].Fulfillments() {
		inAll := true
		for _, a := range annotations[1:] {
			found := false
			for _, other := range a.Fulfillments() {
				if other.Spec == f.Spec && other.Key == f.Key {
					found = true
					break
				}
			}
			if !found {
				inAll = false
				break
			}
		}
		if inAll {
			commonFulfillments = append(commonFulfillments, f)
		}
	}
	return common, commonFulfillments
}

// deriveStackCandidates implements step 5. The real algorithm derives
// consequences of the *disjunction* of every input's forced-agreement
// encoding; our decision procedure only reasons about ground conjunctions
// (see internal/smt's package doc), so instead we check each fixed stack
// candidate against every input individually and keep only the ones every
// input's forced-agreement context implies — which is exactly the set a
// genuine disjunctive premise would have licensed, since a formula
// implied by each disjunct is implied by the disjunction.
func deriveStackCandidates(annotations []logic.Annotation, sharedVars map[string]*sym.Symbol, agreements map[string][]logic.MemoryAxiom, factory *sym.Factory, cfg config.SolverConfig) ([]logic.Formula, error) {
	perInput := make([]*smt.Context, len(annotations))
	for i, a := range annotations {
		ctx := smt.NewContext(factory)
		ctx.Encode(a.Now)
		published := map[*sym.Symbol]bool{}
		for _, m := range a.MemoryAxioms() {
			if m.Locality == logic.Shared {
				published[m.Address] = true
			}
		}
		ctx.Encode(smt.EncodeInvariants(a.MemoryAxioms(), published, cfg))
		for name, shared := range sharedVars {
			val, ok := a.VariableValue(name)
			if !ok {
				continue
			}
			ctx.Encode(logic.Lift(logic.StackAxiom{Op: logic.EQ, LHS: logic.Var{Symbol: val}, RHS: logic.Var{Symbol: shared}}))
		}
		for _, members := range agreements {
			if i < len(members) {
				ctx.Encode(logic.Lift(members[i]))
			}
		}
		perInput[i] = ctx
	}

	var extras []logic.Formula
	for _, v := range sharedVars {
		for _, candidate := range post.StackCandidates(perInput[0], logic.Var{Symbol: v}) {
			holdsEverywhere := true
			for _, ctx := range perInput[1:] {
				holds, err := ctx.Implies(logic.And(), candidate)
				if err != nil {
					return nil, err
				}
				if !holds {
					holdsEverywhere = false
					break
				}
			}
			if holdsEverywhere {
				extras = append(extras, candidate)
			}
		}
	}
	return extras, nil
}

// joinPast implements step 6: for each shared pointer variable whose
// address carries a past predicate in every input, it emits one past
// predicate at the joined variable's value, with a fresh flow and fresh
// field symbols shaped like the first input's past. Only the first past
// found at that address in each input is looked at; the inputs' pasts are
// not combined pairwise, and no equality between the new past and the
// inputs' pasts is asserted, so their field values are not carried over.
func joinPast(annotations []logic.Annotation, sharedVars map[string]*sym.Symbol, factory *sym.Factory) []logic.PastPredicate {
	var result []logic.PastPredicate
	for name, freshVal := range sharedVars {
		if freshVal.Sort() != sym.SortPointer {
			continue
		}
		var members []logic.MemoryAxiom
		for _, a := range annotations {
			val, ok := a.VariableValue(name)
			if !ok {
				members = nil
				break
			}
			found := false
			for _, p := range a.Past {
				if p.Memory.Address == val {
					members = append(members, p.Memory)
					found = true
					break
				}
			}
			if !found {
				members = nil
				break
			}
		}
		if len(members) == 0 {
			continue
		}
		fields := make(map[string]*sym.Symbol, len(members[0].Fields))
		for fn, fv := range members[0].Fields {
			fields[fn] = factory.FreshLike(fv)
		}
		result = append(result, logic.PastPredicate{Memory: logic.MemoryAxiom{
			Address:  freshVal,
			Flow:     factory.FreshFlow(),
			Fields:   fields,
			Locality: members[0].Locality,
		}})
	}
	return result
}

// joinFuture implements step 7: a future survives only when every input
// carries a syntactically matching future (by updated-field shape).
func joinFuture(annotations []logic.Annotation, factory *sym.Factory) []logic.FuturePredicate {
	if len(annotations) == 0 {
		return nil
	}
	var retained []logic.FuturePredicate
	for _, candidate := range annotations[0].Future {
		matches := []logic.FuturePredicate{candidate}
		ok := true
		for _, a := range annotations[1:] {
			found := false
			for _, fp := range a.Future {
				if fp.Address == candidate.Address && fp.SameShape(candidate) {
					matches = append(matches, fp)
					found = true
					break
				}
			}
			if !found {
				ok = false
				break
			}
		}
		if !ok {
			continue
		}

		updates := make([]logic.FieldUpdate, len(candidate.Updates))
		for i, u := range candidate.Updates {
			updates[i] = logic.FieldUpdate{Field: u.Field, Value: factory.FreshLike(u.Value)}
		}
		var guards []logic.Formula
		for _, m := range matches {
			guards = append(guards, m.Guard)
		}
		retained = append(retained, logic.FuturePredicate{
			Address: candidate.Address,
			Updates: updates,
			Guard:   logic.StackDisjunction{Disjuncts: guards},
		})
	}
	return retained
}
