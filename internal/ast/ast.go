// Package ast defines the syntax tree produced by the platform description
// grammar: using directives, entries, attributes and values. Every node
// carries enough source position information for the diag package to print
// a caret-annotated diagnostic against the original text.
package ast

// Position locates a syntax element in the original source text. Columns
// and lines are 1-based; Length is measured in runes.
type Position struct {
	Line   int
	Column int
	Length int
}

// Zero reports whether the position was never set (used by synthetic nodes
// produced during merging, which inherit the position of their source
// attribute instead).
func (p Position) Zero() bool {
	return p.Line == 0 && p.Column == 0
}

// Description is the root of a parsed source file or string: a list of
// using directives and a list of entries. The original lines are retained
// so diagnostics can quote the offending line verbatim.
type Description struct {
	FileName    string
	SourceLines []string
	Usings      []*Using
	Entries     []*Entry
}

// Using is a `using "path" [prefix "pfx_"]` directive.
type Using struct {
	Pos       Position
	Path      string
	PathPos   Position
	Prefix    string
	HasPrefix bool
}

// RegistrationInfo is the syntax-level `@ register [regpoint] [as "alias"]`
// clause attached to an entry. Cancel is true for the literal `@none`.
type RegistrationInfo struct {
	Pos         Position
	Cancel      bool
	Register    *ReferenceValue
	RegisterPos Position
	Point       Value
}

// Entry is one variable-scoped declaration/extension unit. A creating entry
// has HasType set; an updating entry refers to an already-declared
// variable and carries no type.
type Entry struct {
	Pos           Position
	Variable      string
	VariablePos   Position
	HasType       bool
	Type          string
	TypePos       Position
	HasAlias      bool
	Alias         string
	AliasPos      Position
	Registrations []*RegistrationInfo
	Attributes    []Attribute

	// SourceFile is not filled in by the parser or by the include
	// pipeline; diagnostics take the file name passed to
	// store.Contribute instead.
	SourceFile string
}

// Attribute is the common interface implemented by every attribute kind
// that can appear in an entry's attribute list.
type Attribute interface {
	AttrPos() Position
}

// CtorOrPropertyAttribute is a `name: value` attribute. Whether it binds a
// constructor parameter or a settable property is resolved during
// validation, not at parse time.
type CtorOrPropertyAttribute struct {
	Pos     Position
	Name    string
	NamePos Position
	Value   Value
}

func (a *CtorOrPropertyAttribute) AttrPos() Position { return a.Pos }

// IrqSourceEnd is one source end of an IRQ attribute: either a numbered
// GPIO index (`->0`) or a named GPIO property (`->sourcePin`).
type IrqSourceEnd struct {
	Pos          Position
	Numbered     bool
	Index        int
	PropertyName string
}

// IrqDestEnd is one numbered destination end (`@index`).
type IrqDestEnd struct {
	Pos   Position
	Index int
}

// IrqDestination is one `-> peripheral[:localIndex]@index` destination, or
// the literal `none` (Cancel).
type IrqDestination struct {
	Pos           Position
	Cancel        bool
	Peripheral    *ReferenceValue
	HasLocalIndex bool
	LocalIndex    int
	Ends          []IrqDestEnd
}

// IrqAttribute is an `ident -> peripheral[:localIndex]@index` attribute,
// generalized to multiple source ends and multiple destinations.
type IrqAttribute struct {
	Pos          Position
	Sources      []IrqSourceEnd
	Destinations []IrqDestination
}

func (a *IrqAttribute) AttrPos() Position { return a.Pos }

// InitAttribute is an `init: { line; line; ... }` attribute. At most one
// may appear per entry (enforced during pre-merge validation).
type InitAttribute struct {
	Pos       Position
	Lines     []string
	LinePos   []Position
}

func (a *InitAttribute) AttrPos() Position { return a.Pos }

// Value is the common interface implemented by every literal/reference
// kind a `name: value` or object-value attribute can hold.
type Value interface {
	ValPos() Position
}

type StringValue struct {
	Pos   Position
	Value string
}

func (v *StringValue) ValPos() Position { return v.Pos }

type BoolValue struct {
	Pos   Position
	Value bool
}

func (v *BoolValue) ValPos() Position { return v.Pos }

// NumericalValue keeps the original source text; parsing into a concrete
// Go numeric kind is deferred to the convert package's smart parser so the
// same literal can be reinterpreted for different target parameter types.
type NumericalValue struct {
	Pos  Position
	Text string
}

func (v *NumericalValue) ValPos() Position { return v.Pos }

type RangeValue struct {
	Pos  Position
	From NumericalValue
	To   NumericalValue
}

func (v *RangeValue) ValPos() Position { return v.Pos }

// EnumValue holds the reversed type-and-namespace path plus the member
// name, e.g. `Namespace.TypeName.Member` parses to Path=["TypeName",
// "Namespace"], Member="Member" (tail-first, matching §4.6's comparison
// order against the target enum's own namespace path).
type EnumValue struct {
	Pos    Position
	Path   []string
	Member string
}

func (v *EnumValue) ValPos() Position { return v.Pos }

// EmptyValue is the absence of a value that nonetheless produces the
// target type's zero value (as opposed to NoneValue, which cancels a
// previously merged attribute entirely).
type EmptyValue struct {
	Pos Position
}

func (v *EmptyValue) ValPos() Position { return v.Pos }

// NoneValue is the literal `none`. On a ConstructorOrPropertyAttribute it
// cancels an earlier-merged value of the same name; on a RegistrationInfo
// it cancels registration; on an IrqDestination it cancels that
// destination. It is otherwise inert.
type NoneValue struct {
	Pos Position
}

func (v *NoneValue) ValPos() Position { return v.Pos }

// ReferenceValue is an identifier token resolved against the variable
// store during validation.
type ReferenceValue struct {
	Pos  Position
	Name string
}

func (v *ReferenceValue) ValPos() Position { return v.Pos }

// ObjectValue is an inline constructor invocation `TypeName { ... }`,
// which may itself nest further object-values as attribute values.
type ObjectValue struct {
	Pos         Position
	TypeName    string
	TypeNamePos Position
	Attributes  []Attribute
}

func (v *ObjectValue) ValPos() Position { return v.Pos }
