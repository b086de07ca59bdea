// Package driver runs the proof: for every interface function it walks
// the function body under one visit rule per command shape, threading a
// set of live annotations through sequencing, branching and looping,
// checking each Return against the function's linearizability
// specification, and folding every heap effect surfaced along the way
// back into a shared interference pool. The whole sweep over all
// functions repeats until the pool stops growing.
package driver

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/tliron/commonlog"

	"github.com/nyu-acsys/krill-sub000/internal/config"
	"github.com/nyu-acsys/krill-sub000/internal/diag"
	"github.com/nyu-acsys/krill-sub000/internal/eval"
	"github.com/nyu-acsys/krill-sub000/internal/flowgraph"
	"github.com/nyu-acsys/krill-sub000/internal/future"
	"github.com/nyu-acsys/krill-sub000/internal/interference"
	"github.com/nyu-acsys/krill-sub000/internal/join"
	"github.com/nyu-acsys/krill-sub000/internal/logic"
	"github.com/nyu-acsys/krill-sub000/internal/past"
	"github.com/nyu-acsys/krill-sub000/internal/post"
	"github.com/nyu-acsys/krill-sub000/internal/program"
	"github.com/nyu-acsys/krill-sub000/internal/simplify"
	"github.com/nyu-acsys/krill-sub000/internal/smt"
	"github.com/nyu-acsys/krill-sub000/internal/sym"
)

var logger = commonlog.GetLogger("driver")

// MacroStrategy picks how Call sites are handled.
type MacroStrategy int

const (
	// Eager inlines a macro body at every call site.
	Eager MacroStrategy = iota
	// Lazy memoises a macro's post-image by its call-site precondition,
	// re-deriving it only for preconditions not seen yet this sweep.
	Lazy
)

// Options configures one Run.
type Options struct {
	Config         config.SolverConfig
	Factory        *sym.Factory
	Macros         map[string]program.Command
	MacroStrategy  MacroStrategy
	LoopAbortAfter int
	MemoSize       int
	Debug          bool

	// FootprintSink, if set, receives every flow graph a Write computes
	// its post-image against, labelled with the interface function it
	// occurred in. Used by the CLI's --dump-footprints flag.
	FootprintSink func(function string, w program.Write, g *flowgraph.Graph)
}

func (o Options) withDefaults() Options {
	if o.LoopAbortAfter <= 0 {
		o.LoopAbortAfter = 64
	}
	if o.MemoSize <= 0 {
		o.MemoSize = 256
	}
	return o
}

// Run verifies every function, sweeping repeatedly until the interference
// pool stabilises. It returns a *multierror.Error (via errors.Join-style
// ErrorOrNil) aggregating every function's failure, or nil if the whole
// module verifies.
func Run(functions []program.Function, opts Options) error {
	opts = opts.withDefaults()
	memo, err := post.NewMemoCache(opts.MemoSize)
	if err != nil {
		return err
	}

	var pool []logic.HeapEffect
	for round := 1; ; round++ {
		memo.Purge()
		if opts.Debug {
			logger.Debugf("sweep %d: pool has %d effects", round, len(pool))
		}
		var merr *multierror.Error
		var newEffects []logic.HeapEffect
		for _, fn := range functions {
			effects, err := runFunction(fn, pool, memo, opts)
			if err != nil {
				merr = multierror.Append(merr, fmt.Errorf("%s: %w", fn.Name, err))
				continue
			}
			newEffects = append(newEffects, effects...)
		}
		if err := merr.ErrorOrNil(); err != nil {
			return err
		}

		grown, changed, err := interference.AddInterference(pool, newEffects, opts.Factory)
		if err != nil {
			return err
		}
		if !changed {
			if opts.Debug {
				logger.Debugf("pool stable after %d sweeps", round)
			}
			return nil
		}
		pool = grown
	}
}

// returnPair couples a live annotation at a Return with the value it
// returns, so the linearizability check can be run once sequencing has
// finished threading everything through.
type returnPair struct {
	Annotation logic.Annotation
	Value      logic.Expr
}

// visitResult is the outcome of visiting a command against a set of live
// annotations: Current carries on to the next command in sequence,
// Breaking has hit a Break and is waiting for the enclosing loop,
// Returning has hit a Return and is done with the function.
type visitResult struct {
	Current   []logic.Annotation
	Breaking  []logic.Annotation
	Returning []returnPair
}

func (r visitResult) merge(other visitResult) visitResult {
	return visitResult{
		Current:   append(append([]logic.Annotation{}, r.Current...), other.Current...),
		Breaking:  append(append([]logic.Annotation{}, r.Breaking...), other.Breaking...),
		Returning: append(append([]returnPair{}, r.Returning...), other.Returning...),
	}
}

type funcState struct {
	fn           program.Function
	pool         []logic.HeapEffect
	memo         *post.MemoCache
	opts         Options
	insideAtomic bool
	newEffects   []logic.HeapEffect
}

func runFunction(fn program.Function, pool []logic.HeapEffect, memo *post.MemoCache, opts Options) ([]logic.HeapEffect, error) {
	if opts.Debug {
		logger.Debugf("verifying %s", fn.Name)
	}
	s := &funcState{fn: fn, pool: pool, memo: memo, opts: opts}
	initial := initialAnnotation(fn, opts.Factory)
	result, err := s.visit([]logic.Annotation{initial}, fn.Body)
	if err != nil {
		return nil, err
	}
	if len(result.Current) > 0 {
		return nil, diag.New(diag.UnsupportedConstruct, "function does not return on every path").WithFunction(fn.Name)
	}
	for _, pair := range result.Returning {
		if err := checkReturn(fn, pair, opts.Factory); err != nil {
			return nil, err
		}
	}
	return s.newEffects, nil
}

// initialAnnotation binds the function's key argument to a fresh symbol
// constrained to the open stack interval and states the matching
// obligation, per the function's declared specification.
func initialAnnotation(fn program.Function, factory *sym.Factory) logic.Annotation {
	key := factory.Fresh(sym.SortData)
	return logic.Annotation{Now: logic.And(
		logic.Lift(logic.EqualsToAxiom{ProgramVar: fn.KeyArg, Value: key}),
		logic.Lift(logic.StackAxiom{Op: logic.GT, LHS: logic.Var{Symbol: key}, RHS: logic.Min}),
		logic.Lift(logic.StackAxiom{Op: logic.LT, LHS: logic.Var{Symbol: key}, RHS: logic.Max}),
		logic.Lift(logic.ObligationAxiom{Spec: fn.Spec, Key: key}),
	)}
}

// checkReturn requires every satisfiable return state to carry a
// fulfillment for the function's own specification whose return value
// equals the returned expression.
func checkReturn(fn program.Function, pair returnPair, factory *sym.Factory) error {
	ctx := smt.NewContext(factory)
	ctx.Encode(pair.Annotation.Now)
	sat, err := ctx.Satisfiable()
	if err != nil {
		return err
	}
	if !sat {
		return nil
	}
	for _, fl := range pair.Annotation.Fulfillments() {
		if fl.Spec != fn.Spec {
			continue
		}
		eq := logic.Lift(logic.StackAxiom{Op: logic.EQ, LHS: fl.ReturnValue, RHS: pair.Value})
		holds, err := ctx.Implies(logic.And(), eq)
		if err != nil {
			return err
		}
		if holds {
			return nil
		}
	}
	return diag.New(diag.InternalInconsistency, "return is not linearised against any fulfillment").WithFunction(fn.Name)
}

func (s *funcState) visit(current []logic.Annotation, cmd program.Command) (visitResult, error) {
	switch c := cmd.(type) {
	case program.Sequence:
		ra, err := s.visit(current, c.A)
		if err != nil {
			return visitResult{}, err
		}
		rb, err := s.visit(ra.Current, c.B)
		if err != nil {
			return visitResult{}, err
		}
		return visitResult{Current: rb.Current}.merge(visitResult{Breaking: ra.Breaking, Returning: ra.Returning}).merge(visitResult{Breaking: rb.Breaking, Returning: rb.Returning}), nil
	case program.Scope:
		return s.visitScope(current, c)
	case program.Atomic:
		return s.visitAtomic(current, c)
	case program.Choice:
		return s.visitChoice(current, c)
	case program.Loop:
		return s.visitLoop(current, c.Body)
	case program.Break:
		return visitResult{Breaking: current}, nil
	case program.Return:
		return s.visitReturn(current, c)
	case program.Fail:
		return s.visitFail(current)
	case program.Call:
		return s.visitCall(current, c)
	case program.Skip, program.Write, program.Assign, program.Malloc, program.Assume, program.LockAcquire, program.LockRelease:
		return s.visitLeaf(current, cmd)
	default:
		return visitResult{}, diag.New(diag.UnsupportedConstruct, "command %T", cmd).WithFunction(s.fn.Name)
	}
}

func (s *funcState) visitLeaf(current []logic.Annotation, cmd program.Command) (visitResult, error) {
	var next []logic.Annotation
	for _, a := range current {
		outs, effects, err := s.applyLeaf(a, cmd)
		if err != nil {
			return visitResult{}, err
		}
		s.newEffects = append(s.newEffects, effects...)
		for _, out := range outs {
			if !s.insideAtomic {
				stable, err := stabilize(out, s.pool, s.opts.Factory, s.opts.Config)
				if err != nil {
					return visitResult{}, err
				}
				out = stable
			}
			next = append(next, out)
		}
	}
	return visitResult{Current: next}, nil
}

func (s *funcState) applyLeaf(a logic.Annotation, cmd program.Command) ([]logic.Annotation, []logic.HeapEffect, error) {
	switch c := cmd.(type) {
	case program.Skip:
		return []logic.Annotation{a}, nil, nil
	case program.Write:
		result, err := post.Write(a, c, s.opts.Config, s.opts.Factory)
		if err != nil {
			return nil, nil, err
		}
		if s.opts.FootprintSink != nil && result.Footprint != nil {
			s.opts.FootprintSink(s.fn.Name, c, result.Footprint)
		}
		return []logic.Annotation{result.Post}, result.Effects, nil
	case program.Assign:
		out, err := post.Assign(a, c, s.opts.Config, s.opts.Factory)
		if err != nil {
			return nil, nil, err
		}
		return []logic.Annotation{out}, nil, nil
	case program.Malloc:
		out, err := post.Malloc(a, c, s.opts.Config, s.opts.Factory)
		if err != nil {
			return nil, nil, err
		}
		return []logic.Annotation{out}, nil, nil
	case program.Assume:
		outs, err := post.Assume(a, c, s.opts.Factory)
		if err != nil {
			return nil, nil, err
		}
		return outs, nil, nil
	case program.LockAcquire:
		out, effects, err := post.LockAcquire(a, c, s.opts.Factory)
		if err != nil {
			return nil, nil, err
		}
		return []logic.Annotation{out}, effects, nil
	case program.LockRelease:
		out, effects, err := post.LockRelease(a, c, s.opts.Factory)
		if err != nil {
			return nil, nil, err
		}
		return []logic.Annotation{out}, effects, nil
	default:
		return nil, nil, diag.New(diag.UnsupportedConstruct, "command %T is not a leaf command", cmd).WithFunction(s.fn.Name)
	}
}

// stabilize folds the interference pool into a, then re-runs the two
// temporal interpolation passes so the pool's growth keeps paying off on
// later checks instead of just accumulating dead weight.
func stabilize(a logic.Annotation, pool []logic.HeapEffect, factory *sym.Factory, cfg config.SolverConfig) (logic.Annotation, error) {
	out, err := interference.MakeInterferenceStable(a, pool, factory)
	if err != nil {
		return logic.Annotation{}, err
	}
	out, err = past.ReducePast(out, cfg, factory)
	if err != nil {
		return logic.Annotation{}, err
	}
	out = future.ReduceFuture(out, factory)
	return out, nil
}

func localVarNames(sc program.Scope) map[string]bool {
	names := make(map[string]bool, len(sc.Locals))
	for _, n := range sc.Locals {
		names[n] = true
	}
	return names
}

func dropLocals(a logic.Annotation, locals map[string]bool) logic.Annotation {
	var children []logic.Formula
	for _, ch := range a.Now.Children {
		if ax, ok := ch.(logic.AxiomFormula); ok {
			if eq, ok := ax.Axiom.(logic.EqualsToAxiom); ok && locals[eq.ProgramVar] {
				continue
			}
		}
		children = append(children, ch)
	}
	a.Now = simplify.Simplify(logic.And(children...))
	return a
}

func (s *funcState) visitScope(current []logic.Annotation, sc program.Scope) (visitResult, error) {
	entered := make([]logic.Annotation, len(current))
	for i, a := range current {
		children := append([]logic.Formula{}, a.Now.Children...)
		for _, name := range sc.Locals {
			v := s.opts.Factory.Fresh(sym.SortData)
			children = append(children, logic.Lift(logic.EqualsToAxiom{ProgramVar: name, Value: v}))
		}
		a.Now = simplify.Simplify(logic.And(children...))
		entered[i] = a
	}
	r, err := s.visit(entered, sc.Body)
	if err != nil {
		return visitResult{}, err
	}
	locals := localVarNames(sc)
	leave := func(as []logic.Annotation) []logic.Annotation {
		out := make([]logic.Annotation, len(as))
		for i, a := range as {
			out[i] = dropLocals(a, locals)
		}
		return out
	}
	returning := make([]returnPair, len(r.Returning))
	for i, pair := range r.Returning {
		returning[i] = returnPair{Annotation: dropLocals(pair.Annotation, locals), Value: pair.Value}
	}
	return visitResult{Current: leave(r.Current), Breaking: leave(r.Breaking), Returning: returning}, nil
}

func (s *funcState) visitAtomic(current []logic.Annotation, at program.Atomic) (visitResult, error) {
	wasAtomic := s.insideAtomic
	s.insideAtomic = true
	r, err := s.visit(current, at.Body)
	s.insideAtomic = wasAtomic
	if err != nil {
		return visitResult{}, err
	}
	stable := func(as []logic.Annotation) ([]logic.Annotation, error) {
		out := make([]logic.Annotation, len(as))
		for i, a := range as {
			v, err := stabilize(a, s.pool, s.opts.Factory, s.opts.Config)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	}
	cur, err := stable(r.Current)
	if err != nil {
		return visitResult{}, err
	}
	brk, err := stable(r.Breaking)
	if err != nil {
		return visitResult{}, err
	}
	return visitResult{Current: cur, Breaking: brk, Returning: r.Returning}, nil
}

func (s *funcState) visitChoice(current []logic.Annotation, ch program.Choice) (visitResult, error) {
	var out visitResult
	for _, branch := range ch.Branches {
		r, err := s.visit(append([]logic.Annotation{}, current...), branch)
		if err != nil {
			return visitResult{}, err
		}
		out = out.merge(r)
	}
	return out, nil
}

// visitLoop runs the body once to seed a candidate invariant, joins it,
// then re-runs the body against the joined candidate until another join
// prints identically to the last one or LoopAbortAfter is exceeded.
func (s *funcState) visitLoop(current []logic.Annotation, body program.Command) (visitResult, error) {
	first, err := s.visit(current, body)
	if err != nil {
		return visitResult{}, err
	}
	breaking := append([]logic.Annotation{}, first.Breaking...)
	returning := append([]returnPair{}, first.Returning...)
	if len(first.Current) == 0 {
		return visitResult{Breaking: breaking, Returning: returning}, nil
	}

	candidate, err := join.Join(first.Current, s.opts.Factory, s.opts.Config)
	if err != nil {
		return visitResult{}, err
	}

	for i := 0; i < s.opts.LoopAbortAfter; i++ {
		next, err := s.visit([]logic.Annotation{candidate}, body)
		if err != nil {
			return visitResult{}, err
		}
		breaking = append(breaking, next.Breaking...)
		returning = append(returning, next.Returning...)
		if len(next.Current) == 0 {
			return visitResult{Breaking: breaking, Returning: returning}, nil
		}
		joined, err := join.Join(append(append([]logic.Annotation{}, next.Current...), candidate), s.opts.Factory, s.opts.Config)
		if err != nil {
			return visitResult{}, err
		}
		if joined.Now.String() == candidate.Now.String() {
			return visitResult{Breaking: breaking, Returning: returning}, nil
		}
		candidate = joined
	}
	return visitResult{}, diag.New(diag.LoopNotStabilising, "loop did not converge after %d iterations", s.opts.LoopAbortAfter).WithFunction(s.fn.Name)
}

func (s *funcState) visitReturn(current []logic.Annotation, ret program.Return) (visitResult, error) {
	var pairs []returnPair
	for _, a := range current {
		val, err := eval.Evaluate(ret.Value, a)
		if err != nil {
			return visitResult{}, err
		}
		pairs = append(pairs, returnPair{Annotation: a, Value: val})
	}
	return visitResult{Returning: pairs}, nil
}

// visitFail requires every live annotation to already be unsatisfiable:
// reaching Fail on a state the solver still considers possible means the
// surrounding branch condition failed to rule it out.
func (s *funcState) visitFail(current []logic.Annotation) (visitResult, error) {
	for _, a := range current {
		ctx := smt.NewContext(s.opts.Factory)
		ctx.Encode(a.Now)
		sat, err := ctx.Satisfiable()
		if err != nil {
			return visitResult{}, err
		}
		if sat {
			return visitResult{}, diag.New(diag.InternalInconsistency, "reached an unreachable point with a satisfiable state").WithFunction(s.fn.Name)
		}
	}
	return visitResult{}, nil
}

func (s *funcState) visitCall(current []logic.Annotation, call program.Call) (visitResult, error) {
	body, ok := s.opts.Macros[call.Macro]
	if !ok {
		return visitResult{}, diag.New(diag.UnsupportedConstruct, "unknown macro %q", call.Macro).WithFunction(s.fn.Name)
	}
	if s.opts.MacroStrategy == Eager {
		return s.visit(current, body)
	}
	return s.visitCallLazy(current, call.Macro, body)
}

// visitCallLazy memoises one macro's post-image per distinct pre-state
// string within the current sweep, so a macro called from many sites with
// the same precondition is only proven once.
func (s *funcState) visitCallLazy(current []logic.Annotation, macro string, body program.Command) (visitResult, error) {
	var out visitResult
	for _, a := range current {
		pruned := a
		pruned.Now = simplify.Simplify(pruned.Now)
		key := s.memo.Key(macro, pruned)
		if cached, ok := s.memo.Lookup(key); ok {
			out.Current = append(out.Current, cached.Post)
			continue
		}
		r, err := s.visit([]logic.Annotation{pruned}, body)
		if err != nil {
			return visitResult{}, err
		}
		if len(r.Current) == 1 && len(r.Breaking) == 0 && len(r.Returning) == 0 {
			s.memo.Store(key, post.Result{Post: r.Current[0]})
		}
		out = out.merge(r)
	}
	return out, nil
}
