package validate

import (
	"fmt"
	"strings"

	"github.com/bittoy/platformdesc/diag"
	"github.com/bittoy/platformdesc/hostmodel"
	"github.com/bittoy/platformdesc/internal/ast"
	"github.com/bittoy/platformdesc/internal/convert"
	"github.com/bittoy/platformdesc/internal/model"
)

// splitFromMerged classifies a merged entry's attributes into constructor
// attributes (fed to planObject) and property attributes (type-checked now
// and set during the builder's property phase), per the data model's rule:
// a name is a property attribute iff typ has a settable property of that
// name, otherwise it is a constructor attribute (spec.md §3).
func splitFromMerged(r *resolver, typ hostmodel.Type, m *model.MergedEntry) (map[string]*ast.CtorOrPropertyAttribute, []*ast.CtorOrPropertyAttribute, map[*ast.CtorOrPropertyAttribute]*model.ObjectPlan) {
	props := propertyIndex(r.om, typ)
	ctorAttrs := make(map[string]*ast.CtorOrPropertyAttribute)
	plans := make(map[*ast.CtorOrPropertyAttribute]*model.ObjectPlan)
	var propAttrs []*ast.CtorOrPropertyAttribute
	for _, name := range m.AttributeOrder {
		attr, live := m.Attributes[name]
		if !live {
			continue
		}
		classifyAttribute(r, props, attr, ctorAttrs, &propAttrs, plans)
	}
	return ctorAttrs, propAttrs, plans
}

// splitFromList is splitFromMerged for a raw attribute list, used for
// nested ObjectValue attributes (which were never merged).
func splitFromList(r *resolver, typ hostmodel.Type, attrs []ast.Attribute) (map[string]*ast.CtorOrPropertyAttribute, []*ast.CtorOrPropertyAttribute, map[*ast.CtorOrPropertyAttribute]*model.ObjectPlan) {
	props := propertyIndex(r.om, typ)
	ctorAttrs := make(map[string]*ast.CtorOrPropertyAttribute)
	plans := make(map[*ast.CtorOrPropertyAttribute]*model.ObjectPlan)
	var propAttrs []*ast.CtorOrPropertyAttribute
	for _, a := range attrs {
		cp, ok := a.(*ast.CtorOrPropertyAttribute)
		if !ok {
			continue
		}
		classifyAttribute(r, props, cp, ctorAttrs, &propAttrs, plans)
	}
	return ctorAttrs, propAttrs, plans
}

func classifyAttribute(r *resolver, props map[string]hostmodel.PropertyDescriptor, attr *ast.CtorOrPropertyAttribute,
	ctorAttrs map[string]*ast.CtorOrPropertyAttribute, propAttrs *[]*ast.CtorOrPropertyAttribute, plans map[*ast.CtorOrPropertyAttribute]*model.ObjectPlan) {
	pd, isProperty := props[attr.Name]
	if !isProperty {
		ctorAttrs[attr.Name] = attr
		return
	}
	if !pd.Settable {
		diag.ReportAt(diag.PropertyNotWritable, attr.Pos, r.file, true, "%q is not a settable property", attr.Name)
	}
	validatePropertyAttr(r, pd, attr)
	if ov, ok := attr.Value.(*ast.ObjectValue); ok {
		nestedType, _ := resolveTypeName(r.tc, r.defaultNS, ov.TypeName)
		nestedCtorAttrs, nestedPropAttrs, nestedPlans := splitFromList(r, nestedType, ov.Attributes)
		nested := planObject(r, nestedType, nestedCtorAttrs, ov.Pos, ov.TypeName)
		nested.Properties = nestedPropAttrs
		nested.PropertyPlans = nestedPlans
		plans[attr] = nested
	}
	*propAttrs = append(*propAttrs, attr)
}

// validatePropertyAttr type-checks a property attribute immediately
// (spec.md §4.4: "property attributes are type-checked immediately"),
// leaving the actual Set call to the builder's property phase.
func validatePropertyAttr(r *resolver, pd hostmodel.PropertyDescriptor, attr *ast.CtorOrPropertyAttribute) {
	switch v := attr.Value.(type) {
	case *ast.ReferenceValue:
		rv, found := r.st.Lookup(v.Name)
		if !found {
			diag.ReportAt(diag.MissingReference, v.Pos, r.file, true, "property %q references unknown variable %q", attr.Name, v.Name)
		}
		if rv.Type == nil || !pd.Type.AssignableFrom(rv.Type) {
			diag.ReportAt(diag.TypeMismatch, v.Pos, r.file, true, "property %q cannot accept a reference to %q", attr.Name, v.Name)
		}
	case *ast.ObjectValue:
		nestedType, found := resolveTypeName(r.tc, r.defaultNS, v.TypeName)
		if !found {
			diag.ReportAt(diag.TypeNotResolved, v.TypeNamePos, r.file, true, "type %q not resolved", v.TypeName)
		}
		if !pd.Type.AssignableFrom(nestedType) {
			diag.ReportAt(diag.TypeMismatch, v.Pos, r.file, true, "property %q cannot accept an inline %s", attr.Name, v.TypeName)
		}
	default:
		if _, err := convert.Simple(attr.Value, pd.Type); err != nil {
			code := diag.TypeMismatch
			if pd.Type.Kind() == hostmodel.KindEnum {
				code = diag.EnumMismatch
			}
			diag.ReportAt(code, attr.Value.ValPos(), r.file, true, "property %q: %s", attr.Name, err)
		}
	}
}

// planObject runs constructor overload resolution (spec.md §4.6) for typ
// given its constructor attributes, returning the chosen ObjectPlan.
// Reference arguments are left as model.DeferredRef for the builder to
// resolve once the referenced variable exists; inline ObjectValue
// arguments recurse into planObject and are substituted by the builder
// once the nested object has been constructed.
func planObject(r *resolver, typ hostmodel.Type, ctorAttrs map[string]*ast.CtorOrPropertyAttribute, pos ast.Position, what string) *model.ObjectPlan {
	ctors := r.om.Constructors(typ)

	var chosen *hostmodel.CtorDescriptor
	var chosenArgs []any
	var chosenPlans map[int]*model.ObjectPlan
	matches := 0
	var rejectReport []string
	var signatures []string

	for ci := range ctors {
		ctor := ctors[ci]
		args := make([]any, len(ctor.Params))
		plans := make(map[int]*model.ObjectPlan)
		consumed := make(map[string]bool, len(ctor.Params))
		ok := true
		reason := ""

		for i, p := range ctor.Params {
			attr, present := ctorAttrs[p.Name]
			if !present {
				switch {
				case p.HasDefault:
					args[i] = p.Default
				case p.Type != nil && p.Type.Kind() == hostmodel.KindMachine:
					args[i] = r.machine.Instance()
				default:
					ok, reason = false, fmt.Sprintf("missing required parameter %q", p.Name)
				}
				if !ok {
					break
				}
				continue
			}
			consumed[p.Name] = true
			switch v := attr.Value.(type) {
			case *ast.ReferenceValue:
				rv, found := r.st.Lookup(v.Name)
				if !found {
					ok, reason = false, fmt.Sprintf("parameter %q references unknown variable %q", p.Name, v.Name)
					break
				}
				if rv.Type == nil || !p.Type.AssignableFrom(rv.Type) {
					ok, reason = false, fmt.Sprintf("parameter %q cannot accept a reference to %q", p.Name, v.Name)
					break
				}
				args[i] = model.DeferredRef{Variable: v.Name}
			case *ast.ObjectValue:
				nestedType, found := resolveTypeName(r.tc, r.defaultNS, v.TypeName)
				if !found {
					ok, reason = false, fmt.Sprintf("parameter %q: type %q not resolved", p.Name, v.TypeName)
					break
				}
				if !p.Type.AssignableFrom(nestedType) {
					ok, reason = false, fmt.Sprintf("parameter %q cannot accept an inline %s", p.Name, v.TypeName)
					break
				}
				if len(r.om.Constructors(nestedType)) == 0 {
					// A plain configuration struct has no constructors of
					// its own; decode its attributes directly instead of
					// running constructor-overload resolution against an
					// empty candidate set.
					target, decodable := r.om.NewStructValue(nestedType)
					if !decodable {
						ok, reason = false, fmt.Sprintf("parameter %q: %q has no usable constructor", p.Name, v.TypeName)
						break
					}
					if derr := convert.DecodeObjectValue(v, target); derr != nil {
						ok, reason = false, fmt.Sprintf("parameter %q: %s", p.Name, derr)
						break
					}
					args[i] = target
					break
				}
				nestedCtorAttrs, nestedPropAttrs, nestedPlans := splitFromList(r, nestedType, v.Attributes)
				nested := planObject(r, nestedType, nestedCtorAttrs, v.Pos, v.TypeName)
				nested.Properties = nestedPropAttrs
				nested.PropertyPlans = nestedPlans
				plans[i] = nested
			default:
				converted, err := convert.Simple(attr.Value, p.Type)
				if err != nil {
					ok, reason = false, fmt.Sprintf("parameter %q: %s", p.Name, err)
					break
				}
				args[i] = converted
			}
			if !ok {
				break
			}
		}

		if ok {
			for name := range ctorAttrs {
				if !consumed[name] {
					ok, reason = false, fmt.Sprintf("attribute %q does not match any parameter", name)
					break
				}
			}
		}

		if !ok {
			rejectReport = append(rejectReport, fmt.Sprintf("%s: %s", ctor.Signature, reason))
			continue
		}
		matches++
		signatures = append(signatures, ctor.Signature)
		chosenCopy := ctor
		chosen = &chosenCopy
		chosenArgs = args
		chosenPlans = plans
	}

	switch matches {
	case 0:
		diag.ReportAt(diag.NoCtor, pos, r.file, true,
			"no constructor of %s accepts the given attributes:\n%s", what, strings.Join(rejectReport, "\n"))
	case 1:
	default:
		diag.ReportAt(diag.AmbiguousCtor, pos, r.file, true,
			"ambiguous constructor for %s, candidates:\n%s", what, strings.Join(signatures, "\n"))
	}

	return &model.ObjectPlan{Type: typ, Ctor: *chosen, Args: chosenArgs, ArgPlans: chosenPlans, Pos: pos, File: r.file}
}
