package validate

import (
	"github.com/bittoy/platformdesc/diag"
	"github.com/bittoy/platformdesc/hostmodel"
	"github.com/bittoy/platformdesc/internal/ast"
	"github.com/bittoy/platformdesc/internal/convert"
	"github.com/bittoy/platformdesc/internal/model"
)

// moreDerived reports whether a is a strict subtype of b (a is assignable
// where b is expected, but not vice versa) — the "most-derived" ordering
// §4.4's tie-break rules pick a maximal element from.
func moreDerived(a, b hostmodel.Type) bool {
	return b.AssignableFrom(a) && !a.AssignableFrom(b)
}

func maximalByRegPoint(cands []hostmodel.RegistrationInterface) []hostmodel.RegistrationInterface {
	var out []hostmodel.RegistrationInterface
	for i, c := range cands {
		dominated := false
		for j, o := range cands {
			if i != j && moreDerived(o.RegistrationPointType, c.RegistrationPointType) {
				dominated = true
				break
			}
		}
		if !dominated {
			out = append(out, c)
		}
	}
	return dedup(out, func(i hostmodel.RegistrationInterface) string { return i.RegistrationPointType.FullName() })
}

func maximalByPeripheral(cands []hostmodel.RegistrationInterface) []hostmodel.RegistrationInterface {
	var out []hostmodel.RegistrationInterface
	for i, c := range cands {
		dominated := false
		for j, o := range cands {
			if i != j && moreDerived(o.PeripheralType, c.PeripheralType) {
				dominated = true
				break
			}
		}
		if !dominated {
			out = append(out, c)
		}
	}
	return dedup(out, func(i hostmodel.RegistrationInterface) string { return i.PeripheralType.FullName() })
}

func dedup(cands []hostmodel.RegistrationInterface, key func(hostmodel.RegistrationInterface) string) []hostmodel.RegistrationInterface {
	seen := make(map[string]bool)
	var out []hostmodel.RegistrationInterface
	for _, c := range cands {
		k := key(c)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, c)
	}
	return out
}

// pickRegPointWinner applies the two-level tie-break of §4.4 step 3: most
// derived registration-point type first (AmbiguousRegistrationPointType on
// a tie), then most derived peripheral type (AmbiguousRegistree on a tie).
func pickRegPointWinner(r *resolver, pos ast.Position, cands []hostmodel.RegistrationInterface, registerName string) hostmodel.RegistrationInterface {
	if len(cands) == 0 {
		diag.ReportAt(diag.NoUsableRegisterInterface, pos, r.file, true,
			"%q exposes no registration interface that accepts this registration point", registerName)
	}
	byPoint := maximalByRegPoint(cands)
	if len(byPoint) > 1 {
		diag.ReportAt(diag.AmbiguousRegistrationPointType, pos, r.file, true,
			"ambiguous registration point type for %q among %d candidates", registerName, len(byPoint))
	}
	return pickPeripheralWinner(r, pos, byPoint, registerName)
}

func pickPeripheralWinner(r *resolver, pos ast.Position, cands []hostmodel.RegistrationInterface, registerName string) hostmodel.RegistrationInterface {
	byPeripheral := maximalByPeripheral(cands)
	if len(byPeripheral) > 1 {
		diag.ReportAt(diag.AmbiguousRegistree, pos, r.file, true,
			"ambiguous registree for %q among %d candidates", registerName, len(byPeripheral))
	}
	return byPeripheral[0]
}

// resolveRegistration implements spec.md §4.4 steps 1-3 for one
// RegistrationInfo: resolve the register reference, narrow to the
// registration interfaces it exposes that accept entryType, then pick one
// by the registration-point value's shape (absent, reference, inline
// object, or simple value).
func resolveRegistration(r *resolver, entryVar string, entryType hostmodel.Type, info *ast.RegistrationInfo) *model.ResolvedRegistrationInfo {
	if info.Cancel {
		return &model.ResolvedRegistrationInfo{Syntax: info}
	}

	regVar, found := r.st.Lookup(info.Register.Name)
	if !found {
		diag.ReportAt(diag.MissingReference, info.RegisterPos, r.file, true,
			"registration references unknown variable %q", info.Register.Name)
	}

	var ifaces []hostmodel.RegistrationInterface
	for _, iface := range r.om.RegistrationInterfaces(regVar.Type) {
		if iface.PeripheralType.AssignableFrom(entryType) {
			ifaces = append(ifaces, iface)
		}
	}
	if len(ifaces) == 0 {
		diag.ReportAt(diag.NoUsableRegisterInterface, info.Pos, r.file, true,
			"%q exposes no registration interface that accepts %s", info.Register.Name, entryType.FullName())
	}

	switch pt := info.Point.(type) {
	case nil:
		var nullCandidates, busCandidates []hostmodel.RegistrationInterface
		for _, iface := range ifaces {
			if iface.AcceptsNullRegistrationPoint {
				nullCandidates = append(nullCandidates, iface)
			}
			if iface.IsBusRegistration {
				busCandidates = append(busCandidates, iface)
			}
		}
		if len(nullCandidates) == 0 || len(busCandidates) > 0 {
			diag.ReportAt(diag.NoCtorForRegistrationPoint, info.Pos, r.file, true,
				"%q has no registration point and no usable null registration point", info.Register.Name)
		}
		winner := pickPeripheralWinner(r, info.Pos, nullCandidates, info.Register.Name)
		value, _ := r.om.NullRegistrationPoint()
		return &model.ResolvedRegistrationInfo{Syntax: info, Interface: winner, Point: value}

	case *ast.ReferenceValue:
		rv, found := r.st.Lookup(pt.Name)
		if !found {
			diag.ReportAt(diag.MissingReference, pt.Pos, r.file, true, "registration point references unknown variable %q", pt.Name)
		}
		var candidates []hostmodel.RegistrationInterface
		for _, iface := range ifaces {
			if rv.Type != nil && iface.RegistrationPointType.AssignableFrom(rv.Type) {
				candidates = append(candidates, iface)
			}
		}
		winner := pickRegPointWinner(r, pt.Pos, candidates, info.Register.Name)
		return &model.ResolvedRegistrationInfo{Syntax: info, Interface: winner, Point: model.DeferredRef{Variable: pt.Name}}

	case *ast.ObjectValue:
		nestedType, found := resolveTypeName(r.tc, r.defaultNS, pt.TypeName)
		if !found {
			diag.ReportAt(diag.TypeNotResolved, pt.TypeNamePos, r.file, true, "type %q not resolved", pt.TypeName)
		}
		var candidates []hostmodel.RegistrationInterface
		for _, iface := range ifaces {
			if iface.RegistrationPointType.AssignableFrom(nestedType) {
				candidates = append(candidates, iface)
			}
		}
		winner := pickRegPointWinner(r, pt.Pos, candidates, info.Register.Name)
		if len(r.om.Constructors(nestedType)) == 0 {
			// A registration point can be a plain options struct (e.g. a
			// bus slot address) rather than a peripheral type with its own
			// constructors; decode it directly instead of running
			// constructor-overload resolution against an empty set.
			target, decodable := r.om.NewStructValue(nestedType)
			if !decodable {
				diag.ReportAt(diag.NoCtorForRegistrationPoint, pt.Pos, r.file, true,
					"%q has no usable constructor or decodable shape", pt.TypeName)
			}
			if derr := convert.DecodeObjectValue(pt, target); derr != nil {
				diag.ReportAt(diag.NoCtorForRegistrationPoint, pt.Pos, r.file, true,
					"registration point %q: %s", pt.TypeName, derr)
			}
			return &model.ResolvedRegistrationInfo{Syntax: info, Interface: winner, Point: target}
		}
		ctorAttrs, propAttrs, propPlans := splitFromList(r, nestedType, pt.Attributes)
		nested := planObject(r, nestedType, ctorAttrs, pt.Pos, pt.TypeName)
		nested.Properties = propAttrs
		nested.PropertyPlans = propPlans
		return &model.ResolvedRegistrationInfo{Syntax: info, Interface: winner, Point: nested}

	default:
		return resolveSimpleRegistrationPoint(r, info, ifaces, pt)
	}
}

// resolveSimpleRegistrationPoint implements §4.4's "simple values attempt
// to find a constructor whose first parameter accepts the simple value and
// whose remaining parameters are optional" rule, across every candidate
// registration interface's registration-point type.
func resolveSimpleRegistrationPoint(r *resolver, info *ast.RegistrationInfo, ifaces []hostmodel.RegistrationInterface, pt ast.Value) *model.ResolvedRegistrationInfo {
	var best *hostmodel.RegistrationInterface
	var bestCtor *hostmodel.CtorDescriptor
	var bestValue any
	winnerCount := 0

	for i := range ifaces {
		iface := ifaces[i]
		ctors := r.om.Constructors(iface.RegistrationPointType)
		for ci := range ctors {
			ctor := ctors[ci]
			if len(ctor.Params) == 0 {
				continue
			}
			converted, err := convert.Simple(pt, ctor.Params[0].Type)
			if err != nil {
				continue
			}
			restOptional := true
			for _, p := range ctor.Params[1:] {
				if !p.HasDefault && p.Type.Kind() != hostmodel.KindMachine {
					restOptional = false
					break
				}
			}
			if !restOptional {
				continue
			}
			switch {
			case best == nil || moreDerived(iface.RegistrationPointType, best.RegistrationPointType):
				ifaceCopy, ctorCopy := iface, ctor
				best, bestCtor, bestValue, winnerCount = &ifaceCopy, &ctorCopy, converted, 1
			case iface.RegistrationPointType.FullName() == best.RegistrationPointType.FullName():
				winnerCount++
			}
		}
	}

	if best == nil {
		diag.ReportAt(diag.NoCtorForRegistrationPoint, pt.ValPos(), r.file, true,
			"no registration-point constructor of %q accepts the given value", info.Register.Name)
	}
	if winnerCount > 1 {
		diag.ReportAt(diag.AmbiguousCtorForRegistrationPoint, pt.ValPos(), r.file, true,
			"ambiguous registration-point constructor for %q", info.Register.Name)
	}

	args := make([]any, len(bestCtor.Params))
	args[0] = bestValue
	for i, p := range bestCtor.Params[1:] {
		if p.HasDefault {
			args[i+1] = p.Default
		} else {
			args[i+1] = r.machine.Instance()
		}
	}
	plan := &model.ObjectPlan{Type: best.RegistrationPointType, Ctor: *bestCtor, Args: args, Pos: pt.ValPos(), File: r.file}
	return &model.ResolvedRegistrationInfo{Syntax: info, Interface: *best, Point: plan}
}
