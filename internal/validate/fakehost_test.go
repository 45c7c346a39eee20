package validate

import (
	"github.com/bittoy/platformdesc/hostmodel"
)

// fakeType is a minimal hostmodel.Type test double, shared by every test in
// this package. Types compare by pointer identity, matching how a real
// reflect.Type-backed implementation behaves.
type fakeType struct {
	name        string
	kind        hostmodel.Kind
	parent      *fakeType
	enumPath    []string
	enumMembers []string
	enumNums    map[string]int64
}

func (t *fakeType) Name() string     { return t.name }
func (t *fakeType) FullName() string { return t.name }
func (t *fakeType) Kind() hostmodel.Kind {
	if t.kind == 0 {
		return hostmodel.KindOther
	}
	return t.kind
}
func (t *fakeType) AssignableFrom(other hostmodel.Type) bool {
	o, ok := other.(*fakeType)
	if !ok {
		return false
	}
	for c := o; c != nil; c = c.parent {
		if c == t {
			return true
		}
	}
	return false
}
func (t *fakeType) EnumPath() []string    { return t.enumPath }
func (t *fakeType) EnumMembers() []string { return t.enumMembers }
func (t *fakeType) EnumMemberNumericValue(name string) (int64, bool) {
	v, ok := t.enumNums[name]
	return v, ok
}
func (t *fakeType) EnumMemberByNumericValue(v int64) (string, bool) {
	for name, n := range t.enumNums {
		if n == v {
			return name, true
		}
	}
	return "", false
}
func (t *fakeType) EnumAcceptsAnyNumericalValue() bool { return false }
func (t *fakeType) NumericBounds() (float64, float64, bool) {
	return -1 << 31, 1<<31 - 1, false
}

// fakeModel is a minimal hostmodel.ObjectModel + hostmodel.TypeCatalog +
// hostmodel.Machine test double: a fixed table of types, constructors and
// properties configured per test.
type fakeModel struct {
	types       map[string]*fakeType
	ctors       map[*fakeType][]hostmodel.CtorDescriptor
	props       map[*fakeType][]hostmodel.PropertyDescriptor
	regIfaces   map[*fakeType][]hostmodel.RegistrationInterface
	structs     map[*fakeType]func() any
	machineType *fakeType
}

func newFakeModel() *fakeModel {
	return &fakeModel{
		types:     make(map[string]*fakeType),
		ctors:     make(map[*fakeType][]hostmodel.CtorDescriptor),
		props:     make(map[*fakeType][]hostmodel.PropertyDescriptor),
		regIfaces: make(map[*fakeType][]hostmodel.RegistrationInterface),
		structs:   make(map[*fakeType]func() any),
	}
}

func (m *fakeModel) addType(name string) *fakeType {
	t := &fakeType{name: name}
	m.types[name] = t
	return t
}

// addDecodableType registers a type with no constructors whose NewStructValue
// calls factory, for tests exercising the struct-decode path used by a
// zero-ctor constructor parameter or registration point.
func (m *fakeModel) addDecodableType(name string, factory func() any) *fakeType {
	t := m.addType(name)
	m.structs[t] = factory
	return t
}

func (m *fakeModel) Resolve(name string) (hostmodel.Type, bool) {
	t, ok := m.types[name]
	return t, ok
}

func (m *fakeModel) Constructors(t hostmodel.Type) []hostmodel.CtorDescriptor { return m.ctors[t.(*fakeType)] }
func (m *fakeModel) Properties(t hostmodel.Type) []hostmodel.PropertyDescriptor {
	return m.props[t.(*fakeType)]
}
func (m *fakeModel) RegistrationInterfaces(t hostmodel.Type) []hostmodel.RegistrationInterface {
	return m.regIfaces[t.(*fakeType)]
}
func (m *fakeModel) IsLocalGpioReceiver(t hostmodel.Type) bool { return false }
func (m *fakeModel) GetLocalReceiver(obj any, index int) (any, error) { return nil, nil }
func (m *fakeModel) NumberedOutput(obj any, index int) (any, bool)    { return nil, false }
func (m *fakeModel) NullRegistrationPoint() (any, hostmodel.Type)     { return nil, nil }
func (m *fakeModel) MachineType() hostmodel.Type                      { return m.machineType }
func (m *fakeModel) TypeOf(obj any) hostmodel.Type                    { return nil }
func (m *fakeModel) NewStructValue(t hostmodel.Type) (any, bool) {
	ft, ok := t.(*fakeType)
	if !ok {
		return nil, false
	}
	factory, ok := m.structs[ft]
	if !ok {
		return nil, false
	}
	return factory(), true
}

func (m *fakeModel) NewCombiner(arity int) (any, error)                       { return &fakeCombiner{arity: arity}, nil }
func (m *fakeModel) ConnectCombinerInput(combiner any, index int, source any) error {
	combiner.(*fakeCombiner).inputs = append(combiner.(*fakeCombiner).inputs, source)
	return nil
}
func (m *fakeModel) CombinerOutput(combiner any) any { return combiner }
func (m *fakeModel) Connect(source any, destination any, index int) error { return nil }

// fakeCombiner is the value fakeModel.NewCombiner returns, just enough to
// let tests assert on fan-in wiring without a real GPIO combiner object.
type fakeCombiner struct {
	arity  int
	inputs []any
}

func (m *fakeModel) Instance() any                 { return "machine-instance" }
func (m *fakeModel) Type() hostmodel.Type          { return m.machineType }
func (m *fakeModel) IsRegistered(peripheral any) bool { return false }
func (m *fakeModel) SetLocalName(peripheral any, name string) error { return nil }
func (m *fakeModel) PostCreationActions()                            {}
func (m *fakeModel) RegisteredPeripherals() map[string]any           { return nil }

func stringType() *fakeType { return &fakeType{name: "string", kind: hostmodel.KindString} }
func numericType(name string) *fakeType {
	return &fakeType{name: name, kind: hostmodel.KindNumeric}
}
