/*
 * Copyright 2023 The RuleGo Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package hostmodel declares the capability-based interfaces the driver
// consumes from its embedder: a reflective type catalog, an object model
// (constructors, settable properties, GPIO/IRQ shapes), a Machine, an
// init-script handler and a using-resolver. None of these are implemented
// by this module's core packages; nativecatalog ships one concrete,
// reflect-based implementation used by the driver's own tests and usable
// as a starting point by embedders.
package hostmodel

import "errors"

// ErrNotPeripheralType is returned by RegistrationInterface.Register when
// peripheral, once live, does not actually satisfy the registration
// interface's expected peripheral shape — a host-side runtime cast
// failure, distinguished from a general RegistrationException so the
// builder can report CastException instead.
var ErrNotPeripheralType = errors.New("object does not implement the expected peripheral interface")

// Kind classifies a Type for the purposes of simple-value conversion
// (spec.md §4.6's conversion table) without coupling the driver to any
// particular host reflection API.
type Kind int

const (
	KindOther Kind = iota
	KindString
	KindBool
	KindRange
	KindNumeric
	KindNullableNumeric
	KindEnum
	// KindMachine identifies the host Machine's own type, so constructor
	// resolution can recognize "parameter type is the Machine type" and
	// supply the ambient machine instance (§4.6's one implicit default).
	KindMachine
)

// Type is an opaque handle to a host type, returned by TypeCatalog.Resolve
// and by every descriptor below. Implementations are expected to wrap the
// host's own reflection type (reflect.Type in nativecatalog's case).
type Type interface {
	// Name is the bare (unqualified) type name.
	Name() string
	// FullName is the fully-qualified name, e.g. "Namespace.TypeName".
	FullName() string
	Kind() Kind
	// AssignableFrom reports whether a value of type other may be used
	// where a value of this type is expected (the "most-derived" /
	// covariance relation used throughout §4.4 and §4.6).
	AssignableFrom(other Type) bool

	// EnumPath is the enum's own reversed namespace-and-type path,
	// compared tail-first against an EnumValue's Path per §4.6.
	EnumPath() []string
	EnumMembers() []string
	// EnumMemberNumericValue resolves a member name to its underlying
	// numeric value, used when a NumericalValue targets an enum.
	EnumMemberNumericValue(name string) (int64, bool)
	// EnumMemberByNumericValue is the inverse lookup, used when a
	// NumericalValue is matched against a defined member.
	EnumMemberByNumericValue(v int64) (string, bool)
	// EnumAcceptsAnyNumericalValue reports whether the enum is declared
	// to accept arbitrary numeric values beyond its named members.
	EnumAcceptsAnyNumericalValue() bool

	// NumericBounds reports the representable range of a numeric (or
	// nullable-numeric) type, used to reject out-of-range NumericalValue
	// conversions. IsFloat true means fractional values are accepted.
	NumericBounds() (min, max float64, isFloat bool)
}

// Range is the host-agnostic representation of a RangeValue (`<from, to>`)
// once converted: an inclusive start offset and an exclusive end offset,
// matching how the examples' numeric address ranges are conventionally
// expressed. A PropertyDescriptor/CtorDescriptor whose Type.Kind is
// KindRange receives a Range as the converted argument.
type Range struct {
	Start int64
	End   int64
}

// ParamDescriptor describes one formal parameter of a constructor.
type ParamDescriptor struct {
	Name       string
	Type       Type
	HasDefault bool
	Default    any
}

// CtorDescriptor describes one public constructor candidate for a Type.
type CtorDescriptor struct {
	Params []ParamDescriptor
	// Signature is a human-readable rendering used in AmbiguousCtor /
	// NoCtor diagnostics, e.g. "CPU.ARMv7A(string cpuType, Machine machine)".
	Signature string
	// Invoke builds a new instance from positional argument values that
	// have already been converted to each parameter's Go representation,
	// in Params order. A host-side failure is reported by returning an
	// error; the caller wraps it into a ConstructionException.
	Invoke func(args []any) (any, error)
}

// PropertyDescriptor describes one property of a Type.
type PropertyDescriptor struct {
	Name               string
	Type               Type
	Settable           bool
	IsGpio             bool
	IsDefaultInterrupt bool
	Get                func(obj any) (any, error)
	Set                func(obj any, value any) error
}

// RegistrationInterface describes one IPeripheralRegister<TPeripheral,
// TRegistrationPoint>-shaped capability implemented by a register's static
// type, as found by ObjectModel.RegistrationInterfaces.
type RegistrationInterface struct {
	PeripheralType        Type
	RegistrationPointType Type
	// AcceptsNullRegistrationPoint reports whether this interface's
	// TRegistrationPoint is (or is satisfied by) the NullRegistrationPoint
	// singleton.
	AcceptsNullRegistrationPoint bool
	// IsBusRegistration marks a registration point that plugs a
	// peripheral onto a bus, used for the bus-peripheral tie-break in
	// §4.4 step 3.
	IsBusRegistration bool
	Register          func(registerObj, peripheral, point any) error
}

// ObjectModel is the reflective capability catalog: constructor and
// property enumeration, GPIO/IRQ shape detection, and registration
// interface discovery.
type ObjectModel interface {
	Constructors(t Type) []CtorDescriptor
	Properties(t Type) []PropertyDescriptor
	RegistrationInterfaces(registerType Type) []RegistrationInterface

	IsLocalGpioReceiver(t Type) bool
	GetLocalReceiver(obj any, index int) (any, error)

	// NumberedOutput returns the GPIO instance at output index, or
	// (nil, false) if no such numbered output exists at all ("missing
	// key" in §4.8 step 3), distinguished from (nil, true) meaning the
	// output exists but currently evaluates to null.
	NumberedOutput(obj any, index int) (gpio any, exists bool)

	// NullRegistrationPoint returns the singleton value and type used
	// when a registration info has no explicit point and
	// NullRegistrationPoint is an acceptable candidate.
	NullRegistrationPoint() (value any, typ Type)

	// MachineType is the Type that identifies "this parameter wants the
	// ambient Machine" in constructor resolution.
	MachineType() Type

	// TypeOf returns the runtime Type of a live object, used once an
	// object has been constructed (e.g. to type-check a reference value
	// against a parameter type).
	TypeOf(obj any) Type

	// NewStructValue returns a fresh zero value for t when t is a plain
	// configuration struct rather than a peripheral type with its own
	// constructors (Constructors(t) is empty) — used for a constructor
	// parameter or registration point whose inline ObjectValue should be
	// decoded field-by-field instead of resolved through overload
	// resolution. ok is false for an enum, a primitive kind, or any type
	// this object model cannot produce a fresh value for.
	NewStructValue(t Type) (value any, ok bool)

	// NewCombiner constructs a fan-in GPIO combiner with the given input
	// arity, used by the builder whenever an IRQ destination key (§4.8
	// step 2) is targeted by more than one source.
	NewCombiner(arity int) (any, error)
	// ConnectCombinerInput wires source into combiner's input at index.
	ConnectCombinerInput(combiner any, index int, source any) error
	// CombinerOutput returns the combiner's single output line, connected
	// to the real destination receiver exactly once.
	CombinerOutput(combiner any) any

	// Connect wires source's GPIO output line into destination's input at
	// index (the destination is either the real receiver or, when a
	// combiner exists for that key, the combiner itself).
	Connect(source any, destination any, index int) error
}

// TypeCatalog resolves a (possibly bare) type name to a host Type.
type TypeCatalog interface {
	Resolve(name string) (Type, bool)
}

// Machine is the host object that owns created instances.
type Machine interface {
	// Instance is the ambient machine object injected as the implicit
	// constructor default described in §4.6.
	Instance() any
	Type() Type

	IsRegistered(peripheral any) bool
	SetLocalName(peripheral any, name string) error
	PostCreationActions()

	// RegisteredPeripherals enumerates the peripherals already attached
	// to the Machine before the driver starts, keyed by their existing
	// local name. These seed the VariableStore's builtin variables.
	RegisteredPeripherals() map[string]any
}

// InitHandler validates and executes the free-form script lines of an
// InitAttribute. container is the entry's created object, the script's
// implicit subject.
type InitHandler interface {
	Validate(container any, lines []string) error
	Execute(container any, lines []string, onError func(error))
}

// UsingResolver maps an include path (as written after `using`) plus the
// absolute path of the including file to the absolute path of the file to
// include.
type UsingResolver interface {
	Resolve(includePath string, includingFile string) (string, error)
}
