// Package build implements the six-phase Builder of spec.md §4.8: it turns
// a validate.Result into live objects on the host Machine. Construction
// order and registration order are each a single topological sort
// (internal/graph) over the two dependency graphs internal/validate
// produced; everything else (property setting, IRQ fan-in wiring,
// registration's fixpoint loop, the init phase) walks the resolved plans
// in that order.
package build

import (
	"github.com/bittoy/platformdesc/diag"
	"github.com/bittoy/platformdesc/hostmodel"
	"github.com/bittoy/platformdesc/internal/ast"
	"github.com/bittoy/platformdesc/internal/graph"
	"github.com/bittoy/platformdesc/internal/model"
	"github.com/bittoy/platformdesc/internal/store"
	"github.com/bittoy/platformdesc/internal/validate"
)

// Recorder is the subset of metrics.Recorder the builder reports through,
// kept as an interface so this package doesn't import metrics (which
// would make internal/build depend on prometheus for no benefit to its
// own logic). A nil Recorder is accepted: Run substitutes a no-op.
type Recorder interface {
	EntryCreated()
	Registered()
}

// pendingObject is one entry on the object-value property-setting queue
// (spec.md §9 "Deferred construction of inline objects"): a nested object
// built as a constructor argument or a property value, whose own
// Properties still need to be set once its owner is done.
type pendingObject struct {
	plan  *model.ObjectPlan
	value any
}

type builder struct {
	st       *store.VariableStore
	om       hostmodel.ObjectModel
	machine  hostmodel.Machine
	init     hostmodel.InitHandler
	metrics  Recorder
	combiner map[model.IrqDestinationKey]any
	propQ    []pendingObject
}

// Run executes the full builder over res against the live Machine om/
// machine represent, using initHandler to execute (not validate — that
// already happened in internal/validate) each entry's init attribute.
func Run(st *store.VariableStore, res *validate.Result, om hostmodel.ObjectModel, machine hostmodel.Machine, initHandler hostmodel.InitHandler, rec Recorder) (err error) {
	defer func() { diag.Recover(recover(), &err) }()
	if rec == nil {
		rec = noopRecorder{}
	}
	b := &builder{st: st, om: om, machine: machine, init: initHandler, metrics: rec, combiner: make(map[model.IrqDestinationKey]any)}

	creationOrder := graph.Sort(res.Creation, diag.CreationOrderCycle)
	registrationOrder := graph.Sort(res.Registration, diag.RegistrationOrderCycle)

	b.create(res, creationOrder)
	b.buildCombiners(res)
	b.setPropertiesAndConnectIrqs(res, creationOrder)
	b.register(res, registrationOrder)
	b.runInitPhase(res, registrationOrder)
	machine.PostCreationActions()
	return nil
}

// create is builder phase 1: construct every creating entry's object in
// creation order, skipping variables that are already built (builtins) or
// whose plan has a nil Object (no type).
func (b *builder) create(res *validate.Result, order []string) {
	for _, name := range order {
		v, ok := b.st.Lookup(name)
		if !ok || v.Built {
			continue
		}
		plan := res.Plans[name]
		if plan == nil || plan.Object == nil {
			continue
		}
		value := b.construct(plan.Object)
		v.Value = value
		v.Built = true
		b.metrics.EntryCreated()
	}
}

// construct builds one ObjectPlan's object: resolving deferred variable
// references and recursively constructing any nested ObjectValue
// constructor arguments (enqueuing each for the property-setting phase),
// then invoking the chosen constructor.
func (b *builder) construct(plan *model.ObjectPlan) any {
	args := make([]any, len(plan.Args))
	copy(args, plan.Args)
	for i, nested := range plan.ArgPlans {
		nestedVal := b.construct(nested)
		args[i] = nestedVal
		b.propQ = append(b.propQ, pendingObject{plan: nested, value: nestedVal})
	}
	for i, a := range args {
		if ref, ok := a.(model.DeferredRef); ok {
			rv, _ := b.st.Lookup(ref.Variable)
			args[i] = rv.Value
		}
	}
	value, err := plan.Ctor.Invoke(args)
	if err != nil {
		diag.Wrap(diag.ConstructionException, plan.Pos, plan.File, "constructing "+describePlanType(plan), err)
	}
	return value
}

func describePlanType(plan *model.ObjectPlan) string {
	if plan.Type == nil {
		return "object"
	}
	return plan.Type.FullName()
}

// buildCombiners is builder phase 2: for every IRQ destination key fed by
// more than one source, pre-construct a fan-in combiner sized to the
// source count (spec.md §4.8 step 2).
func (b *builder) buildCombiners(res *validate.Result) {
	for key, conn := range res.Combiners {
		if len(conn.Sources) <= 1 {
			continue
		}
		combiner, err := b.om.NewCombiner(len(conn.Sources))
		if err != nil {
			diag.ReportAt(diag.InternalError, ast.Position{}, "", false,
				"failed to construct IRQ combiner for %s: %s", key.Peripheral, err)
		}
		b.combiner[key] = combiner
	}
}

type noopRecorder struct{}

func (noopRecorder) EntryCreated() {}
func (noopRecorder) Registered()   {}
