// Package include drives the using-directive walk and the merge pass: it
// reads and parses every file reachable from an entry point, renames a
// prefixed include's own variables and self-references, detects using
// cycles, and contributes every entry (in textual order, included files
// before the including file's own entries) into a store.VariableStore.
package include

import (
	"os"
	"strings"

	"github.com/bittoy/platformdesc/diag"
	"github.com/bittoy/platformdesc/hostmodel"
	"github.com/bittoy/platformdesc/internal/ast"
	"github.com/bittoy/platformdesc/internal/parser"
	"github.com/bittoy/platformdesc/internal/store"
)

// ProcessFile reads path from disk, parses it, walks its using directives
// and contributes the whole reachable set into st.
func ProcessFile(resolver hostmodel.UsingResolver, st *store.VariableStore, path string) (err error) {
	defer func() { diag.Recover(recover(), &err) }()
	desc := parser.ParseRaw(readFile(path, ast.Position{}, path), path)
	processDescription(resolver, st, desc, path, nil)
	return nil
}

// ProcessDescription parses text as if it were fileName and walks its using
// directives the same way ProcessFile does, for callers that already hold
// the text in memory.
func ProcessDescription(resolver hostmodel.UsingResolver, st *store.VariableStore, text, fileName string) (err error) {
	defer func() { diag.Recover(recover(), &err) }()
	desc := parser.ParseRaw(text, fileName)
	processDescription(resolver, st, desc, fileName, nil)
	return nil
}

func readFile(path string, pos ast.Position, diagFile string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		diag.ReportAt(diag.UsingFileNotFound, pos, diagFile, false, "cannot read \"%s\": %v", path, err)
	}
	return string(data)
}

func processDescription(resolver hostmodel.UsingResolver, st *store.VariableStore, desc *ast.Description, file string, stack []string) {
	for _, s := range stack {
		if s == file {
			diag.ReportAt(diag.RecurringUsing, ast.Position{}, file, false,
				"using cycle detected: %s -> %s", strings.Join(stack, " -> "), file)
		}
	}
	nested := append(append([]string{}, stack...), file)

	for _, u := range desc.Usings {
		resolvedPath, rerr := resolver.Resolve(u.Path, file)
		if rerr != nil {
			diag.ReportAt(diag.UsingFileNotFound, u.PathPos, file, false, "cannot resolve using \"%s\": %v", u.Path, rerr)
		}
		text := readFile(resolvedPath, u.PathPos, file)
		subDesc := parser.ParseRaw(text, resolvedPath)
		if u.HasPrefix {
			renameWithPrefix(subDesc, u.Prefix)
		}
		processDescription(resolver, st, subDesc, resolvedPath, nested)
	}

	for _, e := range desc.Entries {
		st.Contribute(e, file)
	}
}

// renameWithPrefix rewrites every variable an included file declares, and
// every reference to one of those variables from within the same file, by
// prepending prefix. A reference to a name the file never declares (e.g. a
// shared bus declared by the outermost file) is left untouched, since it
// names something outside the included file's own scope.
func renameWithPrefix(desc *ast.Description, prefix string) {
	local := make(map[string]bool, len(desc.Entries))
	for _, e := range desc.Entries {
		local[e.Variable] = true
	}
	renameRef := func(r *ast.ReferenceValue) {
		if r != nil && local[r.Name] {
			r.Name = prefix + r.Name
		}
	}
	for _, e := range desc.Entries {
		e.Variable = prefix + e.Variable
		for _, reg := range e.Registrations {
			renameRef(reg.Register)
			if reg.Point != nil {
				renameValueRefs(reg.Point, local, prefix)
			}
		}
		for _, attr := range e.Attributes {
			switch a := attr.(type) {
			case *ast.CtorOrPropertyAttribute:
				renameValueRefs(a.Value, local, prefix)
			case *ast.IrqAttribute:
				for i := range a.Destinations {
					renameRef(a.Destinations[i].Peripheral)
				}
			}
		}
	}
}

func renameValueRefs(v ast.Value, local map[string]bool, prefix string) {
	switch val := v.(type) {
	case *ast.ReferenceValue:
		if local[val.Name] {
			val.Name = prefix + val.Name
		}
	case *ast.ObjectValue:
		for _, attr := range val.Attributes {
			if cp, ok := attr.(*ast.CtorOrPropertyAttribute); ok {
				renameValueRefs(cp.Value, local, prefix)
			}
		}
	}
}
