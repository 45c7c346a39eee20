package build

import (
	"github.com/bittoy/platformdesc/diag"
	"github.com/bittoy/platformdesc/hostmodel"
	"github.com/bittoy/platformdesc/internal/ast"
	"github.com/bittoy/platformdesc/internal/convert"
	"github.com/bittoy/platformdesc/internal/model"
	"github.com/bittoy/platformdesc/internal/validate"
)

// setPropertiesAndConnectIrqs is builder phase 3: set every created
// entry's properties, drain the object-value property queue accumulated
// during creation (and during this phase, since setting a property whose
// value is itself an inline object enqueues that nested object too), then
// wire every IRQ connection (spec.md §4.8 step 3).
func (b *builder) setPropertiesAndConnectIrqs(res *validate.Result, order []string) {
	for _, name := range order {
		plan := res.Plans[name]
		if plan == nil || plan.Object == nil {
			continue
		}
		v, _ := b.st.Lookup(name)
		b.setProperties(v.Value, plan.Object)
	}

	for i := 0; i < len(b.propQ); i++ {
		item := b.propQ[i]
		b.setProperties(item.value, item.plan)
	}

	b.connectIrqs(res)
}

// setProperties applies every Properties entry of plan onto value,
// constructing (and enqueuing) any nested inline-object property value
// first.
func (b *builder) setProperties(value any, plan *model.ObjectPlan) {
	if len(plan.Properties) == 0 {
		return
	}
	typ := b.om.TypeOf(value)
	if typ == nil {
		typ = plan.Type
	}
	props := propertyIndex(b.om, typ)

	for _, attr := range plan.Properties {
		pd, ok := props[attr.Name]
		if !ok {
			diag.ReportAt(diag.PropertyDoesNotExist, attr.Pos, plan.File, true,
				"%q has no property named %q", typ.FullName(), attr.Name)
		}

		var converted any
		switch v := attr.Value.(type) {
		case *ast.ReferenceValue:
			rv, _ := b.st.Lookup(v.Name)
			converted = rv.Value
		case *ast.ObjectValue:
			nested := plan.PropertyPlans[attr]
			nestedVal := b.construct(nested)
			converted = nestedVal
			b.propQ = append(b.propQ, pendingObject{plan: nested, value: nestedVal})
		default:
			c, err := convert.Simple(attr.Value, pd.Type)
			if err != nil {
				diag.Internal(attr.Pos, plan.File, "setProperties: conversion already validated")
			}
			converted = c
		}

		if err := pd.Set(value, converted); err != nil {
			diag.Wrap(diag.PropertySettingException, attr.Pos, plan.File, "setting property "+attr.Name, err)
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

// connectIrqs wires every accumulated IrqCombinerConnection: fetching
// each source end's live GPIO instance, resolving the destination
// receiver, and routing through a pre-built combiner when one exists for
// the key (spec.md §4.8 step 3's last bullet).
func (b *builder) connectIrqs(res *validate.Result) {
	for key, conn := range res.Combiners {
		if len(conn.Sources) == 0 {
			continue
		}
		destVar, found := b.st.Lookup(key.Peripheral)
		if !found {
			diag.Internal(conn.Sources[0].Pos, conn.Sources[0].File, "connectIrqs: destination variable vanished")
		}
		receiver := destVar.Value
		if key.HasLocalIndex {
			r, err := b.om.GetLocalReceiver(destVar.Value, key.LocalIndex)
			if err != nil {
				diag.Wrap(diag.NotLocalGpioReceiver, conn.Sources[0].Pos, conn.Sources[0].File, "resolving local receiver", err)
			}
			receiver = r
		}

		combiner, hasCombiner := b.combiner[key]
		connectedOutput := false

		for i, srcEnd := range conn.Sources {
			gpio := b.resolveIrqSource(srcEnd)
			if hasCombiner {
				if err := b.om.ConnectCombinerInput(combiner, i, gpio); err != nil {
					diag.Wrap(diag.IrqDestinationIsNotIrqReceiver, srcEnd.Pos, srcEnd.File, "wiring combiner input", err)
				}
				if !connectedOutput {
					if err := b.om.Connect(b.om.CombinerOutput(combiner), receiver, conn.DestEnds[0]); err != nil {
						diag.Wrap(diag.IrqDestinationIsNotIrqReceiver, srcEnd.Pos, srcEnd.File, "connecting combiner output", err)
					}
					connectedOutput = true
				}
			} else {
				if err := b.om.Connect(gpio, receiver, conn.DestEnds[i]); err != nil {
					diag.Wrap(diag.IrqDestinationIsNotIrqReceiver, srcEnd.Pos, srcEnd.File, "connecting IRQ", err)
				}
			}
		}
	}
}

// resolveIrqSource fetches the live GPIO instance for one resolved source
// end: either the named GPIO property's current value, or the numbered
// entry of the source object's numbered-output surface.
func (b *builder) resolveIrqSource(se model.ResolvedIrqEnd) any {
	srcVar, _ := b.st.Lookup(se.SourceVar)

	if !se.Numbered {
		pd := findProperty(b.om, b.om.TypeOf(srcVar.Value), se.PropertyName)
		if pd == nil {
			diag.ReportAt(diag.IrqSourceDoesNotExist, se.Pos, se.File, true,
				"%q has no GPIO property named %q", se.SourceVar, se.PropertyName)
		}
		gpio, err := pd.Get(srcVar.Value)
		if err != nil {
			diag.Wrap(diag.UninitializedSourceIrqObject, se.Pos, se.File, "reading IRQ source property", err)
		}
		if gpio == nil {
			diag.ReportAt(diag.UninitializedSourceIrqObject, se.Pos, se.File, true,
				"%q's %q GPIO property is not initialized", se.SourceVar, se.PropertyName)
		}
		return gpio
	}

	gpio, exists := b.om.NumberedOutput(srcVar.Value, se.Index)
	if !exists {
		diag.ReportAt(diag.IrqSourcePinDoesNotExist, se.Pos, se.File, true,
			"%q has no numbered output %d", se.SourceVar, se.Index)
	}
	if gpio == nil {
		diag.ReportAt(diag.UninitializedSourceIrqObject, se.Pos, se.File, true,
			"%q's numbered output %d is not initialized", se.SourceVar, se.Index)
	}
	return gpio
}
