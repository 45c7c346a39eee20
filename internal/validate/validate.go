// Package validate implements the pre-merge and post-merge validation and
// resolution passes of spec.md §4.4-§4.7: type resolution against the host
// type catalog, registration-point selection, constructor overload
// resolution, IRQ attribute resolution and overlap checking, and the two
// dependency graphs the builder topologically sorts. It is the bridge
// between internal/store's merged, syntax-level entries and
// internal/build's construction plan.
package validate

import (
	"github.com/bittoy/platformdesc/diag"
	"github.com/bittoy/platformdesc/hostmodel"
	"github.com/bittoy/platformdesc/internal/ast"
	"github.com/bittoy/platformdesc/internal/model"
	"github.com/bittoy/platformdesc/internal/store"
)

// Result is everything internal/build needs to execute the construction
// plan: one EntryPlan per variable, the two dependency graphs (not yet
// sorted — that's internal/graph's job) and the IRQ fan-in table keyed by
// destination.
type Result struct {
	Plans        map[string]*model.EntryPlan
	Creation     *model.DependencyGraph
	Registration *model.DependencyGraph
	Combiners    map[model.IrqDestinationKey]*model.IrqCombinerConnection
}

// resolver bundles the host capability interfaces and the variable store
// threaded through every resolution helper in this package, plus the file
// name attributed to whatever entry is currently being resolved (merging
// loses per-attribute provenance, so every diagnostic raised while
// resolving one merged entry is attributed to that entry's declaring
// file — see DESIGN.md).
type resolver struct {
	st        *store.VariableStore
	tc        hostmodel.TypeCatalog
	om        hostmodel.ObjectModel
	machine   hostmodel.Machine
	defaultNS string
	file      string
}

// Run resolves every merged entry in st against the host capability
// interfaces, returning the construction plan for internal/build. It is a
// fatal-diagnostic boundary: any diag.Report/ReportAt panic raised during
// resolution is recovered here and returned as err.
func Run(st *store.VariableStore, tc hostmodel.TypeCatalog, om hostmodel.ObjectModel, machine hostmodel.Machine, initHandler hostmodel.InitHandler, defaultNS string) (res *Result, err error) {
	defer func() { diag.Recover(recover(), &err) }()

	merged := st.EnumerateMerged()

	for _, m := range merged {
		if !m.HasType {
			continue
		}
		v, _ := st.Lookup(m.Variable)
		typ, found := resolveTypeName(tc, defaultNS, m.Type)
		if !found {
			diag.ReportAt(diag.TypeNotResolved, m.TypePos, m.DeclFile, true, "type %q not resolved", m.Type)
		}
		v.Type = typ
	}

	res = &Result{
		Plans:        make(map[string]*model.EntryPlan),
		Creation:     model.NewDependencyGraph(),
		Registration: model.NewDependencyGraph(),
		Combiners:    make(map[model.IrqDestinationKey]*model.IrqCombinerConnection),
	}

	for _, m := range merged {
		res.Creation.AddNode(m.Variable)
		res.Registration.AddNode(m.Variable)

		// Creation-order edges come from constructor attributes only
		// (§4.7): a settable property's value can legally reference
		// something not yet created, since properties are set in phase 3
		// after every object in the entry already exists. Classifying by
		// property-name membership mirrors splitFromMerged/classifyAttribute
		// without their validation side effects, which belong to the
		// per-entry resolution pass below.
		var props map[string]hostmodel.PropertyDescriptor
		if m.HasType {
			if v, ok := st.Lookup(m.Variable); ok {
				props = propertyIndex(om, v.Type)
			}
		}
		for _, name := range m.AttributeOrder {
			attr, live := m.Attributes[name]
			if !live {
				continue
			}
			if _, isProperty := props[name]; isProperty {
				continue
			}
			walkRefs(res.Creation, m.Variable, m.DeclFile, attr.Value, name)
		}
		for _, reg := range m.Registrations {
			if reg.Cancel || reg.Point == nil {
				continue
			}
			walkRefs(res.Registration, m.Variable, m.DeclFile, reg.Point, "registration point")
		}
	}

	for _, m := range merged {
		if !m.HasAlias {
			continue
		}
		if len(m.Registrations) == 0 {
			diag.ReportAt(diag.AliasWithoutRegistration, m.AliasPos, m.DeclFile, true,
				"%q has an alias but no registration info", m.Variable)
		}
		allCancelled := true
		for _, reg := range m.Registrations {
			if !reg.Cancel {
				allCancelled = false
			}
		}
		if allCancelled {
			diag.ReportAt(diag.AliasWithNoneRegistration, m.AliasPos, m.DeclFile, true,
				"%q has an alias but its registration is cancelled", m.Variable)
		}
	}

	for _, m := range merged {
		v, _ := st.Lookup(m.Variable)
		r := &resolver{st: st, tc: tc, om: om, machine: machine, defaultNS: defaultNS, file: m.DeclFile}

		plan := &model.EntryPlan{Variable: m.Variable, HasAlias: m.HasAlias, Alias: m.Alias}
		if m.HasType {
			ctorAttrs, propAttrs, propPlans := splitFromMerged(r, v.Type, m)
			for name := range ctorAttrs {
				if m.UpdatingAttributeNames[name] {
					diag.ReportAt(diag.CtorAttributesInNonCreatingEntry, m.Attributes[name].Pos, r.file, true,
						"%q is not a property of %s and cannot be added after the entry that creates %q", name, m.Type, m.Variable)
				}
			}
			obj := planObject(r, v.Type, ctorAttrs, m.VariablePos, m.Type)
			obj.Properties = propAttrs
			obj.PropertyPlans = propPlans
			plan.Object = obj
		}
		if m.Init != nil {
			if initHandler != nil {
				if verr := initHandler.Validate(nil, m.Init.Lines); verr != nil {
					diag.ReportAt(diag.InitSectionValidationError, m.Init.Pos, r.file, true,
						"init section of %q failed validation: %s", m.Variable, verr)
				}
			}
			plan.Init = m.Init
		}
		for _, reg := range m.Registrations {
			plan.Registrations = append(plan.Registrations, resolveRegistration(r, m.Variable, v.Type, reg))
		}
		res.Plans[m.Variable] = plan

		resolveIrqs(r, m.Variable, v.Type, m.Irqs, res.Combiners)
	}

	return res, nil
}

func resolveTypeName(tc hostmodel.TypeCatalog, defaultNS, name string) (hostmodel.Type, bool) {
	if t, ok := tc.Resolve(name); ok {
		return t, true
	}
	if defaultNS == "" {
		return nil, false
	}
	return tc.Resolve(defaultNS + "." + name)
}

// walkRefs records a dependency edge for every ReferenceValue reachable
// from v, recursing into nested ObjectValue constructor attributes (§4.7:
// "nested ObjectValues are walked for references"). syntax labels the edge
// with whatever attribute name or context led to it, for cycle
// diagnostics.
func walkRefs(g *model.DependencyGraph, from, file string, v ast.Value, syntax string) {
	switch val := v.(type) {
	case *ast.ReferenceValue:
		g.AddEdge(from, val.Name, val.Pos, file, syntax+": "+val.Name)
	case *ast.ObjectValue:
		for _, a := range val.Attributes {
			if cp, ok := a.(*ast.CtorOrPropertyAttribute); ok {
				walkRefs(g, from, file, cp.Value, cp.Name)
			}
		}
	}
}

func propertyIndex(om hostmodel.ObjectModel, typ hostmodel.Type) map[string]hostmodel.PropertyDescriptor {
	out := make(map[string]hostmodel.PropertyDescriptor)
	for _, pd := range om.Properties(typ) {
		out[pd.Name] = pd
	}
	return out
}

func findProperty(om hostmodel.ObjectModel, typ hostmodel.Type, name string) *hostmodel.PropertyDescriptor {
	for _, pd := range om.Properties(typ) {
		if pd.Name == name {
			p := pd
			return &p
		}
	}
	return nil
}
