package store

import (
	"testing"

	"github.com/bittoy/platformdesc/diag"
	"github.com/bittoy/platformdesc/internal/ast"
)

// mustRecover takes the value of a recover() call made directly in the
// test's deferred function (recover has no effect when called from a
// helper) and returns the *diag.Error it carries.
func mustRecover(t *testing.T, r any) *diag.Error {
	t.Helper()
	if r == nil {
		t.Fatalf("expected a panic")
	}
	var err error
	diag.Recover(r, &err)
	de, ok := err.(*diag.Error)
	if !ok {
		t.Fatalf("expected a *diag.Error, got %#v", r)
	}
	return de
}

func TestContributeCreatingThenUpdating(t *testing.T) {
	s := New()
	s.Contribute(&ast.Entry{Variable: "cpu", HasType: true, Type: "CPU.ARMv7A"}, "top.repl")
	s.Contribute(&ast.Entry{
		Variable: "cpu",
		Attributes: []ast.Attribute{
			&ast.CtorOrPropertyAttribute{Name: "PerformanceInMips", Value: &ast.NumericalValue{Text: "1"}},
		},
	}, "top.repl")

	v, ok := s.Lookup("cpu")
	if !ok {
		t.Fatalf("expected cpu to be known")
	}
	if !v.Merged.HasType || v.Merged.Type != "CPU.ARMv7A" {
		t.Fatalf("unexpected merged type: %+v", v.Merged)
	}
	if len(v.Merged.AttributeOrder) != 1 || v.Merged.AttributeOrder[0] != "PerformanceInMips" {
		t.Fatalf("unexpected attribute order: %+v", v.Merged.AttributeOrder)
	}
}

func TestContributeUpdatingBeforeDeclarationFails(t *testing.T) {
	s := New()
	defer func() {
		de := mustRecover(t, recover())
		if de.Code != diag.TypeNotSpecifiedInFirstVariableUse {
			t.Fatalf("unexpected code: %v", de.Code)
		}
	}()
	s.Contribute(&ast.Entry{
		Variable:   "cpu",
		Attributes: []ast.Attribute{&ast.CtorOrPropertyAttribute{Name: "x", Value: &ast.NumericalValue{Text: "1"}}},
	}, "top.repl")
}

func TestContributeRedeclarationFails(t *testing.T) {
	s := New()
	s.Contribute(&ast.Entry{Variable: "cpu", HasType: true, Type: "CPU.ARMv7A"}, "top.repl")
	defer func() {
		de := mustRecover(t, recover())
		if de.Code != diag.VariableAlreadyDeclared {
			t.Fatalf("unexpected code: %v", de.Code)
		}
	}()
	s.Contribute(&ast.Entry{Variable: "cpu", HasType: true, Type: "CPU.ARMv7A"}, "top.repl")
}

func TestContributeEmptyEntryFails(t *testing.T) {
	s := New()
	defer func() {
		de := mustRecover(t, recover())
		if de.Code != diag.EmptyEntry {
			t.Fatalf("unexpected code: %v", de.Code)
		}
	}()
	s.Contribute(&ast.Entry{Variable: "cpu"}, "top.repl")
}

func TestContributeNoneCancelsAttribute(t *testing.T) {
	s := New()
	s.Contribute(&ast.Entry{
		Variable: "cpu",
		HasType:  true,
		Type:     "CPU.ARMv7A",
		Attributes: []ast.Attribute{
			&ast.CtorOrPropertyAttribute{Name: "cpuType", Value: &ast.StringValue{Value: "cortex-a9"}},
		},
	}, "top.repl")
	s.Contribute(&ast.Entry{
		Variable: "cpu",
		Attributes: []ast.Attribute{
			&ast.CtorOrPropertyAttribute{Name: "cpuType", Value: &ast.NoneValue{}},
		},
	}, "override.repl")

	v, _ := s.Lookup("cpu")
	if _, exists := v.Merged.Attributes["cpuType"]; exists {
		t.Fatalf("expected cpuType to be cancelled, got %+v", v.Merged.Attributes)
	}
	if len(v.Merged.AttributeOrder) != 1 {
		t.Fatalf("expected attribute order to keep the cancelled name, got %+v", v.Merged.AttributeOrder)
	}
}

func TestSeedBuiltinAllowsUpdatingWithoutType(t *testing.T) {
	s := New()
	s.SeedBuiltin("sysbus", nil, "the-sysbus-object")
	s.Contribute(&ast.Entry{
		Variable:   "sysbus",
		Attributes: []ast.Attribute{&ast.CtorOrPropertyAttribute{Name: "Frequency", Value: &ast.NumericalValue{Text: "100"}}},
	}, "top.repl")

	v, _ := s.Lookup("sysbus")
	if len(v.Merged.AttributeOrder) != 1 {
		t.Fatalf("expected the attribute to merge in, got %+v", v.Merged)
	}
}

func TestContributeMoreThanOneInitAttributeFails(t *testing.T) {
	s := New()
	defer func() {
		de := mustRecover(t, recover())
		if de.Code != diag.MoreThanOneInitAttribute {
			t.Fatalf("unexpected code: %v", de.Code)
		}
	}()
	s.Contribute(&ast.Entry{
		Variable: "cpu",
		HasType:  true,
		Type:     "CPU.ARMv7A",
		Attributes: []ast.Attribute{
			&ast.InitAttribute{Lines: []string{"a"}},
			&ast.InitAttribute{Lines: []string{"b"}},
		},
	}, "top.repl")
}

func TestEnumerateMergedPreservesFirstContributionOrder(t *testing.T) {
	s := New()
	s.Contribute(&ast.Entry{Variable: "mem", HasType: true, Type: "Memory.MappedMemory"}, "top.repl")
	s.Contribute(&ast.Entry{Variable: "cpu", HasType: true, Type: "CPU.ARMv7A"}, "top.repl")

	merged := s.EnumerateMerged()
	if len(merged) != 2 || merged[0].Variable != "mem" || merged[1].Variable != "cpu" {
		t.Fatalf("unexpected order: %+v", merged)
	}
}
