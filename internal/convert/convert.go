// Package convert implements the simple-value conversion table (spec.md
// §4.6): turning an ast.Value literal into the Go representation a
// hostmodel.Type expects, plus the shared numeric-literal parser every
// numeric-typed conversion funnels through. It is a pure, diag-free layer —
// internal/validate and internal/build decide which diag.Code a conversion
// failure becomes, since the same CastException-shaped failure means
// TypeMismatch in one caller and EnumMismatch in another.
package convert

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/mitchellh/mapstructure"

	"github.com/bittoy/platformdesc/hostmodel"
	"github.com/bittoy/platformdesc/internal/ast"
)

// ParseNumeric evaluates a NumericalValue's raw source text into a float64,
// accepting everything the lexer can produce for a number token: decimal,
// hexadecimal (0x-prefixed), fractional and exponent forms, and a leading
// minus sign. It is reused everywhere a literal needs reinterpreting for a
// different target type (e.g. the same "0x1000" used as both a Range bound
// and a plain integer property).
func ParseNumeric(text string) (float64, error) {
	program, err := expr.Compile(text)
	if err != nil {
		return 0, fmt.Errorf("%q is not a valid numeric literal: %w", text, err)
	}
	out, err := expr.Run(program, nil)
	if err != nil {
		return 0, fmt.Errorf("%q could not be evaluated: %w", text, err)
	}
	switch v := out.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("%q did not evaluate to a number", text)
	}
}

// Simple converts value into the Go representation target expects, per the
// conversion table keyed on target.Kind(). It never resolves ReferenceValue
// (that needs the variable store) or constructs ObjectValue (that needs the
// builder) — callers route those through internal/validate and
// internal/build instead.
func Simple(value ast.Value, target hostmodel.Type) (any, error) {
	if _, ok := value.(*ast.EmptyValue); ok {
		return zeroValue(target), nil
	}
	switch target.Kind() {
	case hostmodel.KindString:
		sv, ok := value.(*ast.StringValue)
		if !ok {
			return nil, fmt.Errorf("expected a string, got %s", describe(value))
		}
		return sv.Value, nil
	case hostmodel.KindBool:
		bv, ok := value.(*ast.BoolValue)
		if !ok {
			return nil, fmt.Errorf("expected a bool, got %s", describe(value))
		}
		return bv.Value, nil
	case hostmodel.KindRange:
		rv, ok := value.(*ast.RangeValue)
		if !ok {
			return nil, fmt.Errorf("expected a range, got %s", describe(value))
		}
		from, err := ParseNumeric(rv.From.Text)
		if err != nil {
			return nil, err
		}
		to, err := ParseNumeric(rv.To.Text)
		if err != nil {
			return nil, err
		}
		return hostmodel.Range{Start: int64(from), End: int64(to)}, nil
	case hostmodel.KindNumeric, hostmodel.KindNullableNumeric:
		return convertNumeric(value, target)
	case hostmodel.KindEnum:
		return convertEnum(value, target)
	default:
		return nil, fmt.Errorf("type %s has no simple-value conversion", target.FullName())
	}
}

func convertNumeric(value ast.Value, target hostmodel.Type) (any, error) {
	nv, ok := value.(*ast.NumericalValue)
	if !ok {
		return nil, fmt.Errorf("expected a number, got %s", describe(value))
	}
	f, err := ParseNumeric(nv.Text)
	if err != nil {
		return nil, err
	}
	min, max, isFloat := target.NumericBounds()
	if !isFloat && f != float64(int64(f)) {
		return nil, fmt.Errorf("%q is not an integer, but %s is an integral type", nv.Text, target.FullName())
	}
	if f < min || f > max {
		return nil, fmt.Errorf("%q is out of range for %s (expected between %g and %g)", nv.Text, target.FullName(), min, max)
	}
	if isFloat {
		return f, nil
	}
	return int64(f), nil
}

func convertEnum(value ast.Value, target hostmodel.Type) (any, error) {
	switch val := value.(type) {
	case *ast.EnumValue:
		if !pathMatches(val.Path, target.EnumPath()) {
			return nil, fmt.Errorf("enum path %v does not match %s's namespace path %v", val.Path, target.FullName(), target.EnumPath())
		}
		for _, m := range target.EnumMembers() {
			if m == val.Member {
				return val.Member, nil
			}
		}
		return nil, fmt.Errorf("%s has no member named %q", target.FullName(), val.Member)
	case *ast.NumericalValue:
		f, err := ParseNumeric(val.Text)
		if err != nil {
			return nil, err
		}
		iv := int64(f)
		if name, ok := target.EnumMemberByNumericValue(iv); ok {
			return name, nil
		}
		if target.EnumAcceptsAnyNumericalValue() {
			return iv, nil
		}
		return nil, fmt.Errorf("%d does not name a member of %s", iv, target.FullName())
	default:
		return nil, fmt.Errorf("expected an enum literal or number, got %s", describe(value))
	}
}

// pathMatches compares an EnumValue's reversed namespace-and-type path
// (tail-first, per ast.EnumValue's doc comment) against the target enum's
// own reversed path, tail-first: a shorter reference path matches as long
// as its elements agree with the target's from the tail inward, so
// `Endianness.BigEndian` matches a target declared in any namespace.
func pathMatches(ref, target []string) bool {
	if len(ref) > len(target) {
		return false
	}
	for i := range ref {
		if ref[i] != target[i] {
			return false
		}
	}
	return true
}

func zeroValue(target hostmodel.Type) any {
	switch target.Kind() {
	case hostmodel.KindString:
		return ""
	case hostmodel.KindBool:
		return false
	case hostmodel.KindRange:
		return hostmodel.Range{}
	case hostmodel.KindNumeric:
		_, _, isFloat := target.NumericBounds()
		if isFloat {
			return float64(0)
		}
		return int64(0)
	case hostmodel.KindNullableNumeric:
		return nil
	case hostmodel.KindEnum:
		if members := target.EnumMembers(); len(members) > 0 {
			return members[0]
		}
		return nil
	default:
		return nil
	}
}

func describe(v ast.Value) string {
	switch v.(type) {
	case *ast.StringValue:
		return "a string"
	case *ast.BoolValue:
		return "a bool"
	case *ast.NumericalValue:
		return "a number"
	case *ast.RangeValue:
		return "a range"
	case *ast.EnumValue:
		return "an enum literal"
	case *ast.ReferenceValue:
		return "a reference"
	case *ast.ObjectValue:
		return "an inline object"
	case *ast.NoneValue:
		return "'none'"
	default:
		return "an unsupported value"
	}
}

// DecodeObjectValue decodes an inline ObjectValue's attributes into out (a
// pointer to a struct), for constructor parameters that take a plain
// configuration struct rather than a registered peripheral type. Values are
// converted to Go-native primitives on a best-effort basis (strings, bools,
// float64 numbers, hostmodel.Range, nested maps for nested object values)
// before mapstructure.Decode matches them against out's fields by name.
func DecodeObjectValue(obj *ast.ObjectValue, out any) error {
	raw := toMap(obj)
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		TagName:          "platformdesc",
	})
	if err != nil {
		return err
	}
	return decoder.Decode(raw)
}

func toMap(obj *ast.ObjectValue) map[string]any {
	raw := make(map[string]any, len(obj.Attributes))
	for _, attr := range obj.Attributes {
		cp, ok := attr.(*ast.CtorOrPropertyAttribute)
		if !ok {
			continue
		}
		raw[cp.Name] = nativeValue(cp.Value)
	}
	return raw
}

func nativeValue(v ast.Value) any {
	switch val := v.(type) {
	case *ast.StringValue:
		return val.Value
	case *ast.BoolValue:
		return val.Value
	case *ast.NumericalValue:
		f, _ := ParseNumeric(val.Text)
		return f
	case *ast.RangeValue:
		from, _ := ParseNumeric(val.From.Text)
		to, _ := ParseNumeric(val.To.Text)
		return hostmodel.Range{Start: int64(from), End: int64(to)}
	case *ast.EnumValue:
		return val.Member
	case *ast.ObjectValue:
		return toMap(val)
	case *ast.ReferenceValue:
		return val.Name
	default:
		return nil
	}
}
