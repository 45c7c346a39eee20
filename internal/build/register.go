package build

import (
	"errors"

	"github.com/bittoy/platformdesc/diag"
	"github.com/bittoy/platformdesc/hostmodel"
	"github.com/bittoy/platformdesc/internal/ast"
	"github.com/bittoy/platformdesc/internal/model"
	"github.com/bittoy/platformdesc/internal/validate"
)

// register is builder phase 4: register every entry's peripherals in
// registration order using a fixpoint loop, since a register variable
// that is itself a created (not builtin) peripheral may register in the
// very same pass as its children once it becomes IsRegistered (spec.md
// §4.8 step 4).
func (b *builder) register(res *validate.Result, order []string) {
	pending := make(map[string]bool, len(order))
	for _, name := range order {
		plan := res.Plans[name]
		if plan == nil || len(plan.Registrations) == 0 {
			continue
		}
		hasLive := false
		for _, reg := range plan.Registrations {
			if !reg.Syntax.Cancel {
				hasLive = true
			}
		}
		if hasLive {
			pending[name] = true
		}
	}

	for len(pending) > 0 {
		progressed := false
		for _, name := range order {
			if !pending[name] {
				continue
			}
			if !b.registrationReady(res.Plans[name]) {
				continue
			}
			b.registerOne(name, res.Plans[name])
			delete(pending, name)
			progressed = true
		}
		if !progressed {
			var stuck string
			for name := range pending {
				stuck = name
				break
			}
			plan := res.Plans[stuck]
			diag.ReportAt(diag.RegistrationOrderCycle, plan.Object.Pos, plan.Object.File, true,
				"registration fixpoint made no progress; %q's register variable never becomes registered", stuck)
		}
	}
}

// registrationReady reports whether every non-cancelled RegistrationInfo's
// register variable has already been built and is either a builtin or
// already registered on the Machine.
func (b *builder) registrationReady(plan *model.EntryPlan) bool {
	for _, reg := range plan.Registrations {
		if reg.Syntax.Cancel {
			continue
		}
		regVar, found := b.st.Lookup(reg.Syntax.Register.Name)
		if !found || !regVar.Built {
			return false
		}
		if regVar.Declared.Kind == model.BuiltinOrAlreadyRegistered {
			continue
		}
		if !b.machine.IsRegistered(regVar.Value) {
			return false
		}
	}
	return true
}

// registerOne performs every non-cancelled registration for one entry,
// then sets its local name on the Machine.
func (b *builder) registerOne(name string, plan *model.EntryPlan) {
	v, _ := b.st.Lookup(name)
	if plan.Object == nil {
		diag.Internal(ast.Position{}, name, "registerOne: registration info on a non-creating entry")
	}

	for _, reg := range plan.Registrations {
		if reg.Syntax.Cancel {
			continue
		}
		regVar, _ := b.st.Lookup(reg.Syntax.Register.Name)
		point := b.resolveRegistrationPoint(reg.Point)

		if err := reg.Interface.Register(regVar.Value, v.Value, point); err != nil {
			if errors.Is(err, hostmodel.ErrNotPeripheralType) {
				diag.Wrap(diag.CastException, plan.Object.Pos, plan.Object.File, "registering "+name, err)
			}
			diag.Wrap(diag.RegistrationException, plan.Object.Pos, plan.Object.File, "registering "+name, err)
		}
		b.metrics.Registered()
	}

	localName := name
	if plan.HasAlias {
		localName = plan.Alias
	}
	if err := b.machine.SetLocalName(v.Value, localName); err != nil {
		diag.Wrap(diag.NameSettingException, plan.Object.Pos, plan.Object.File, "naming "+name, err)
	}
}

// resolveRegistrationPoint converts a ResolvedRegistrationInfo.Point
// (already-converted value, DeferredRef, or nested ObjectPlan) into the
// live value the registration interface's Register expects.
func (b *builder) resolveRegistrationPoint(point any) any {
	switch p := point.(type) {
	case nil:
		return nil
	case model.DeferredRef:
		rv, _ := b.st.Lookup(p.Variable)
		return rv.Value
	case *model.ObjectPlan:
		// Phase 3 has already drained propQ, so this object's queue
		// entries (and any nested ones they add) are drained here.
		start := len(b.propQ)
		value := b.construct(p)
		b.propQ = append(b.propQ, pendingObject{plan: p, value: value})
		for i := start; i < len(b.propQ); i++ {
			item := b.propQ[i]
			b.setProperties(item.value, item.plan)
		}
		return value
	default:
		return p
	}
}
