package validate

import (
	"fmt"

	"github.com/bittoy/platformdesc/diag"
	"github.com/bittoy/platformdesc/hostmodel"
	"github.com/bittoy/platformdesc/internal/ast"
	"github.com/bittoy/platformdesc/internal/model"
)

// resolveIrqs implements spec.md §4.4's IRQ resolution and overlap
// checking for one entry's IrqAttributes: source imputation, destination
// and arity validation, and per-entry overlap detection. Flattened
// connections accumulate into combiners (shared across every entry in the
// run) so the builder can later decide, per destination key, whether a
// fan-in combiner is needed.
func resolveIrqs(r *resolver, variable string, srcType hostmodel.Type, irqs []*ast.IrqAttribute, combiners map[model.IrqDestinationKey]*model.IrqCombinerConnection) {
	usedSources := make(map[string]bool)
	usedDests := make(map[string]bool)

	for _, irq := range irqs {
		sources := irq.Sources
		if len(sources) == 0 {
			sources = []ast.IrqSourceEnd{{Pos: irq.Pos, PropertyName: findDefaultGpioSource(r, srcType, irq.Pos)}}
		} else {
			for _, se := range sources {
				if se.Numbered {
					continue
				}
				pd := findProperty(r.om, srcType, se.PropertyName)
				if pd == nil || !pd.IsGpio {
					diag.ReportAt(diag.IrqSourceDoesNotExist, se.Pos, r.file, true,
						"%q has no GPIO property named %q", variable, se.PropertyName)
				}
			}
		}

		for _, dest := range irq.Destinations {
			if dest.Cancel {
				continue
			}
			destVar, found := r.st.Lookup(dest.Peripheral.Name)
			if !found {
				diag.ReportAt(diag.IrqDestinationDoesNotExist, dest.Pos, r.file, true,
					"IRQ destination %q does not exist", dest.Peripheral.Name)
			}
			if dest.HasLocalIndex && !r.om.IsLocalGpioReceiver(destVar.Type) {
				diag.ReportAt(diag.NotLocalGpioReceiver, dest.Pos, r.file, true,
					"%q is not a local GPIO receiver", dest.Peripheral.Name)
			}
			if len(sources) != len(dest.Ends) {
				diag.ReportAt(diag.WrongIrqArity, dest.Pos, r.file, true,
					"%d source end(s) but %d destination end(s)", len(sources), len(dest.Ends))
			}

			key := model.IrqDestinationKey{Peripheral: dest.Peripheral.Name, HasLocalIndex: dest.HasLocalIndex, LocalIndex: dest.LocalIndex}
			conn, ok := combiners[key]
			if !ok {
				conn = &model.IrqCombinerConnection{Dest: key}
				combiners[key] = conn
			}

			for i, se := range sources {
				sourceKey := variable + "#" + sourceEndKey(se)
				if usedSources[sourceKey] {
					diag.ReportAt(diag.IrqSourceUsedMoreThanOnce, se.Pos, r.file, true,
						"source %s of %q is used more than once", sourceEndKey(se), variable)
				}
				usedSources[sourceKey] = true

				destIdx := dest.Ends[i].Index
				destKey := fmt.Sprintf("%s:%t:%d@%d", key.Peripheral, key.HasLocalIndex, key.LocalIndex, destIdx)
				if usedDests[destKey] {
					diag.ReportAt(diag.IrqDestinationUsedMoreThanOnce, dest.Ends[i].Pos, r.file, true,
						"destination %s@%d is used more than once", dest.Peripheral.Name, destIdx)
				}
				usedDests[destKey] = true

				conn.Sources = append(conn.Sources, model.ResolvedIrqEnd{
					Pos: se.Pos, File: r.file, SourceVar: variable, Numbered: se.Numbered, Index: se.Index, PropertyName: se.PropertyName,
				})
				conn.DestEnds = append(conn.DestEnds, destIdx)
			}
		}
	}
}

func sourceEndKey(se ast.IrqSourceEnd) string {
	if se.Numbered {
		return fmt.Sprintf("#%d", se.Index)
	}
	return se.PropertyName
}

// findDefaultGpioSource imputes the source end of an IrqAttribute with no
// explicit sources: the type's unique GPIO property, or the one marked
// default-interrupt if more than one exists.
func findDefaultGpioSource(r *resolver, typ hostmodel.Type, pos ast.Position) string {
	var gpios, defaults []hostmodel.PropertyDescriptor
	for _, pd := range r.om.Properties(typ) {
		if pd.IsGpio {
			gpios = append(gpios, pd)
			if pd.IsDefaultInterrupt {
				defaults = append(defaults, pd)
			}
		}
	}
	if len(gpios) == 0 {
		diag.ReportAt(diag.IrqSourceDoesNotExist, pos, r.file, true, "%s has no GPIO property to use as an implicit IRQ source", typ.FullName())
	}
	if len(defaults) == 1 {
		return defaults[0].Name
	}
	if len(gpios) == 1 {
		return gpios[0].Name
	}
	diag.ReportAt(diag.AmbiguousDefaultIrqSource, pos, r.file, true,
		"%s has %d GPIO properties and none is marked as the default interrupt", typ.FullName(), len(gpios))
	return ""
}
