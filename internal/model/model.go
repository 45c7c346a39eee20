// Package model holds the semantic-level types produced by internal/include
// (merged, include-resolved entries) and consumed by internal/validate,
// internal/graph and internal/build. Where internal/ast is a syntax tree,
// model is closer to the teacher's engine/chain_context.go: a resolved,
// queryable view assembled once per driver run.
package model

import (
	"github.com/bittoy/platformdesc/hostmodel"
	"github.com/bittoy/platformdesc/internal/ast"
)

// DeclarationKind classifies where a Variable's type came from.
type DeclarationKind int

const (
	// BuiltinOrAlreadyRegistered means the variable was seeded from the
	// host Machine's own registered peripherals, not from any entry.
	BuiltinOrAlreadyRegistered DeclarationKind = iota
	// UserEntry means the variable was first declared by an entry with a
	// type, in File at Pos.
	UserEntry
)

// DeclarationPlace records where a Variable's static type was fixed.
type DeclarationPlace struct {
	Kind DeclarationKind
	File string
	Pos  ast.Position
}

// Variable is the VariableStore's unit of bookkeeping: a name, its static
// type (once known), where it was declared, and the live object once the
// builder has created it.
type Variable struct {
	Name      string
	Type      hostmodel.Type
	Declared  DeclarationPlace
	Value     any
	Built     bool
	Merged    *MergedEntry
}

// MergedEntry is the single, flattened view of every entry (across every
// included file) that contributed to one variable, produced by
// internal/include's merge pass. Last-wins semantics have already been
// applied: Attributes holds only the surviving value per name, with
// ast.NoneValue-cancelled attributes removed entirely.
type MergedEntry struct {
	Variable    string
	VariablePos ast.Position

	HasType    bool
	Type       string
	TypePos    ast.Position
	DeclFile   string

	// Registrations is the last non-empty registration-info list
	// contributed by any entry for this variable; a later entry with no
	// `@` clause at all leaves an earlier one in force, but a later
	// entry with an explicit `@none` replaces it with a single
	// cancelling RegistrationInfo.
	Registrations []*ast.RegistrationInfo

	HasAlias bool
	Alias    string
	AliasPos ast.Position

	// AttributeOrder lists attribute names in first-contribution order,
	// so creation-time property/constructor-argument iteration is
	// deterministic and matches the order a reader would expect from the
	// first file that mentioned each name. A name cancelled by NoneValue
	// stays listed here but is absent from Attributes.
	AttributeOrder []string
	Attributes     map[string]*ast.CtorOrPropertyAttribute

	// UpdatingAttributeNames marks attribute names that were contributed by
	// an updating (type-less) entry rather than the original creating
	// entry, so validation can reject one that turns out not to name a
	// settable property (CtorAttributesInNonCreatingEntry): a constructor
	// argument can only be supplied where the object is constructed.
	UpdatingAttributeNames map[string]bool

	Irqs []*ast.IrqAttribute
	Init *ast.InitAttribute

	// ContributingFiles lists every file that added to this variable, in
	// merge order, for diagnostics that reference "first declared at" vs
	// "later extended at".
	ContributingFiles []string
}

// PutAttribute merges one `name: value` attribute into the entry: a
// NoneValue cancels (removes) any earlier value for the same name; any
// other value (including EmptyValue) replaces it, last-wins.
func (m *MergedEntry) PutAttribute(a *ast.CtorOrPropertyAttribute) {
	if m.Attributes == nil {
		m.Attributes = make(map[string]*ast.CtorOrPropertyAttribute)
	}
	if _, isNone := a.Value.(*ast.NoneValue); isNone {
		if _, existed := m.Attributes[a.Name]; existed {
			delete(m.Attributes, a.Name)
		}
		return
	}
	if _, existed := m.Attributes[a.Name]; !existed {
		m.AttributeOrder = append(m.AttributeOrder, a.Name)
	}
	m.Attributes[a.Name] = a
}

// IrqDestinationKey identifies one destination peripheral[:localIndex] pair,
// the grouping key used to decide whether a combiner is needed (source
// count > 1) and to accumulate flattened connections across every IRQ
// attribute targeting it.
type IrqDestinationKey struct {
	Peripheral    string
	HasLocalIndex bool
	LocalIndex    int
}

// ResolvedIrqEnd is one source end after numbered/named resolution against
// the live source object, carrying enough to build or feed a combiner.
type ResolvedIrqEnd struct {
	Pos          ast.Position
	File         string
	SourceVar    string
	Numbered     bool
	Index        int
	PropertyName string
}

// IrqCombinerConnection is one flattened source-end -> destination-end pair
// feeding a given destination peripheral, in declaration order. When a
// destination's Sources has more than one entry, the builder constructs a
// fan-in combiner and wires each Sources[i] into combiner input i before
// connecting the combiner's single output to DestEnds[i].
type IrqCombinerConnection struct {
	Dest      IrqDestinationKey
	DestEnds  []int
	Sources   []ResolvedIrqEnd
}

// ResolvedRegistrationInfo augments a syntax-level RegistrationInfo with the
// RegistrationInterface selected during validation and the host-converted
// registration point value, carried forward so the builder never repeats
// selection work validation already did.
type ResolvedRegistrationInfo struct {
	Syntax    *ast.RegistrationInfo
	Interface hostmodel.RegistrationInterface
	Point     any
}

// DeferredRef stands in for a constructor/registration-point argument that
// names another variable: the referenced object does not exist yet at
// validation time, only once the builder reaches it in creation order. The
// builder resolves it to the live value immediately before invoking the
// constructor or registration call that needs it.
type DeferredRef struct {
	Variable string
}

// ObjectPlan is the resolved instantiation recipe for one creating entry or
// nested ObjectValue, produced by constructor overload resolution (§4.6).
// Args holds one already-converted value per Ctor.Params slot; an index
// present in ArgPlans instead names a nested object to construct
// depth-first and substitute into Args at build time, and an index whose
// Args value is a DeferredRef names a variable to resolve the same way.
type ObjectPlan struct {
	Type       hostmodel.Type
	Ctor       hostmodel.CtorDescriptor
	Args       []any
	ArgPlans   map[int]*ObjectPlan
	Properties []*ast.CtorOrPropertyAttribute
	// PropertyPlans holds the resolved instantiation recipe for any
	// Properties entry whose value is an inline ObjectValue, keyed by the
	// attribute itself (Properties entries are validated but not
	// otherwise resolved, since most property values are simple or
	// reference values the builder converts directly).
	PropertyPlans map[*ast.CtorOrPropertyAttribute]*ObjectPlan
	Pos           ast.Position
	File          string
}

// EntryPlan bundles every post-merge resolution result for one variable:
// its instantiation recipe (nil for an entry that never declares a type,
// which cannot happen for a well-formed merged entry) and its resolved
// registration infos in declaration order.
type EntryPlan struct {
	Variable      string
	Object        *ObjectPlan
	Registrations []*ResolvedRegistrationInfo
	// Init is the merged entry's init attribute, if any, carried forward
	// so internal/build's init phase (§4.8 step 5) doesn't need to
	// re-consult the merged entry.
	Init *ast.InitAttribute

	// HasAlias/Alias mirror the merged entry's alias, used by the
	// builder to pick the local name a successfully registered
	// peripheral is given (alias if present, else the variable name).
	HasAlias bool
	Alias    string
}

// Edge is one dependency-graph arc, keeping the syntax element that induced
// it so graph.Sort's cycle report can render each step of "a -> b -> c -> a"
// with its position and the actual source text rather than a synthetic
// description.
type Edge struct {
	To     string
	Pos    ast.Position
	File   string
	Syntax string
}

// DependencyGraph is an adjacency-list graph over variable names, built
// twice per run (once for creation order, once for registration order) with
// different edge-extraction rules over the same MergedEntry set.
type DependencyGraph struct {
	nodes []string
	seen  map[string]bool
	edges map[string][]Edge
}

// NewDependencyGraph creates an empty graph.
func NewDependencyGraph() *DependencyGraph {
	return &DependencyGraph{seen: make(map[string]bool), edges: make(map[string][]Edge)}
}

// AddNode registers name as a graph node even if it has no outgoing edges,
// so isolated variables still appear in topological order.
func (g *DependencyGraph) AddNode(name string) {
	if g.seen[name] {
		return
	}
	g.seen[name] = true
	g.nodes = append(g.nodes, name)
}

// AddEdge records that name depends on dependsOn (dependsOn must be created
// or registered before name), keeping pos/syntax/file for cycle
// diagnostics.
func (g *DependencyGraph) AddEdge(name, dependsOn string, pos ast.Position, file, syntax string) {
	g.AddNode(name)
	g.AddNode(dependsOn)
	g.edges[name] = append(g.edges[name], Edge{To: dependsOn, Pos: pos, File: file, Syntax: syntax})
}

// Nodes returns every node in insertion order.
func (g *DependencyGraph) Nodes() []string { return g.nodes }

// Neighbors returns the edges leaving name, in insertion order.
func (g *DependencyGraph) Neighbors(name string) []Edge { return g.edges[name] }
