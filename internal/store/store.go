// Package store implements the VariableStore: the merge target that
// internal/include contributes every entry into, across every included
// file, producing one model.MergedEntry per variable name. It owns the
// store-level invariants (a variable's type is fixed on first use, a
// variable cannot be redeclared, an entry must do something) and reports
// violations through diag.Report like every other pass.
package store

import (
	"github.com/bittoy/platformdesc/diag"
	"github.com/bittoy/platformdesc/hostmodel"
	"github.com/bittoy/platformdesc/internal/ast"
	"github.com/bittoy/platformdesc/internal/model"
)

// VariableStore is a flat merge target; later contributions win.
//
// The grammar's own scoping rule (a reference resolves against the current
// file's own declarations, falling back to the outermost file's globals) is
// a concern of internal/include's using-directive walk, which decides what
// gets contributed here under what (possibly prefixed) name; by the time an
// entry reaches Store.Contribute, its variable name is already the fully
// qualified, flattened name it will keep for the rest of the run. Store
// itself is deliberately scope-free: a single namespace, last-wins.
type VariableStore struct {
	order []string
	vars  map[string]*model.Variable
}

// New creates an empty VariableStore.
func New() *VariableStore {
	return &VariableStore{vars: make(map[string]*model.Variable)}
}

// SeedBuiltin pre-populates name as an already-registered peripheral (a
// Machine.RegisteredPeripherals() entry), so later updating entries that
// reference it without a type clause are accepted.
func (s *VariableStore) SeedBuiltin(name string, typ hostmodel.Type, value any) {
	if _, exists := s.vars[name]; exists {
		return
	}
	s.order = append(s.order, name)
	s.vars[name] = &model.Variable{
		Name:     name,
		Type:     typ,
		Value:    value,
		Built:    true,
		Declared: model.DeclarationPlace{Kind: model.BuiltinOrAlreadyRegistered},
		Merged:   &model.MergedEntry{Variable: name},
	}
}

// Lookup returns the Variable for name, if any entry or seed has touched it
// yet.
func (s *VariableStore) Lookup(name string) (*model.Variable, bool) {
	v, ok := s.vars[name]
	return v, ok
}

// EnumerateMerged returns every variable's MergedEntry in first-contribution
// order, the order internal/graph falls back to when no dependency forces
// an earlier position.
func (s *VariableStore) EnumerateMerged() []*model.MergedEntry {
	out := make([]*model.MergedEntry, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.vars[name].Merged)
	}
	return out
}

func isEmptyEntry(e *ast.Entry) bool {
	return !e.HasType && !e.HasAlias && len(e.Registrations) == 0 && len(e.Attributes) == 0
}

// Contribute merges one parsed entry into the store. file is the absolute
// path (or synthetic label) attributed to diagnostics raised while
// contributing e.
func (s *VariableStore) Contribute(e *ast.Entry, file string) {
	if isEmptyEntry(e) {
		diag.ReportAt(diag.EmptyEntry, e.Pos, file, false,
			"entry '%s' has no type, no attributes and no registration infos", e.Variable)
	}

	inits := 0
	for _, a := range e.Attributes {
		if _, ok := a.(*ast.InitAttribute); ok {
			inits++
		}
	}
	if inits > 1 {
		diag.ReportAt(diag.MoreThanOneInitAttribute, e.Pos, file, false,
			"entry '%s' declares more than one init attribute", e.Variable)
	}

	v, exists := s.vars[e.Variable]
	if !exists {
		v = &model.Variable{Name: e.Variable, Declared: model.DeclarationPlace{Kind: model.UserEntry}, Merged: &model.MergedEntry{Variable: e.Variable, VariablePos: e.VariablePos}}
		s.vars[e.Variable] = v
		s.order = append(s.order, e.Variable)
	}
	m := v.Merged

	if e.HasType {
		if m.HasType {
			diag.ReportAt(diag.VariableAlreadyDeclared, e.TypePos, file, true,
				"variable '%s' is already declared with a type at %s", e.Variable, m.DeclFile)
		}
		if v.Declared.Kind == model.BuiltinOrAlreadyRegistered {
			diag.ReportAt(diag.VariableAlreadyDeclared, e.TypePos, file, true,
				"variable '%s' is already registered on the machine and cannot be redeclared", e.Variable)
		}
		m.HasType = true
		m.Type = e.Type
		m.TypePos = e.TypePos
		m.DeclFile = file
		v.Declared = model.DeclarationPlace{Kind: model.UserEntry, File: file, Pos: e.TypePos}
	} else if !m.HasType && v.Declared.Kind != model.BuiltinOrAlreadyRegistered {
		diag.ReportAt(diag.TypeNotSpecifiedInFirstVariableUse, e.Pos, file, false,
			"variable '%s' is used before any entry gives it a type", e.Variable)
	}

	if e.HasAlias {
		m.HasAlias = true
		m.Alias = e.Alias
		m.AliasPos = e.AliasPos
	}
	if len(e.Registrations) > 0 {
		m.Registrations = e.Registrations
	}

	seenFile := false
	for _, f := range m.ContributingFiles {
		if f == file {
			seenFile = true
			break
		}
	}
	if !seenFile {
		m.ContributingFiles = append(m.ContributingFiles, file)
	}

	seenNames := make(map[string]bool)
	for _, attr := range e.Attributes {
		cp, ok := attr.(*ast.CtorOrPropertyAttribute)
		if !ok {
			continue
		}
		if seenNames[cp.Name] {
			diag.ReportAt(diag.PropertyOrCtorNameUsedMoreThanOnce, cp.Pos, file, true,
				"'%s' is assigned more than once in the same entry for variable '%s'", cp.Name, e.Variable)
		}
		seenNames[cp.Name] = true
	}

	for _, attr := range e.Attributes {
		switch a := attr.(type) {
		case *ast.CtorOrPropertyAttribute:
			m.PutAttribute(a)
			if !e.HasType {
				if m.UpdatingAttributeNames == nil {
					m.UpdatingAttributeNames = make(map[string]bool)
				}
				if _, isNone := a.Value.(*ast.NoneValue); !isNone {
					m.UpdatingAttributeNames[a.Name] = true
				}
			} else {
				delete(m.UpdatingAttributeNames, a.Name)
			}
		case *ast.IrqAttribute:
			m.Irqs = append(m.Irqs, a)
		case *ast.InitAttribute:
			m.Init = a
		}
	}
}
