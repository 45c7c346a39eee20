package nativecatalog

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/bittoy/platformdesc/hostmodel"
)

var localGpioReceiverType = reflect.TypeOf((*LocalGpioReceiver)(nil)).Elem()

// LocalGpioReceiver is implemented by a peripheral whose instances expose
// more than one independent IRQ input line (a GPIO port's 16 pins, say),
// selected by GetLocalReceiver's index.
type LocalGpioReceiver interface {
	GpioReceiver(index int) (any, error)
}

// NumberedGpioSource is implemented by a peripheral whose instances expose
// a fixed bank of numbered GPIO outputs (rather than one named property
// per line).
type NumberedGpioSource interface {
	NumberedGpio(index int) (any, bool)
}

// GpioSink is implemented by anything Connect can wire a source line into:
// the real destination receiver, or a Combiner acting as a stand-in.
type GpioSink interface {
	SetInput(index int, source any)
}

// Combiner is the fan-in object nativecatalog's NewCombiner constructs: it
// records the source wired to each of its arity inputs and has no
// signal-combining logic of its own.
type Combiner struct {
	inputs []any
}

func (c *Combiner) SetInput(index int, source any) {
	if index < 0 || index >= len(c.inputs) {
		return
	}
	c.inputs[index] = source
}

// Inputs returns the combiner's wired sources, for tests and diagnostics.
func (c *Combiner) Inputs() []any { return c.inputs }

// Machine is the reference hostmodel.Machine: it tracks which peripherals
// have been registered and under what local name, seeded from an initial
// set of already-registered peripherals (the Renode-style "machine that
// already has a sysbus and a CPU before the description runs").
type Machine struct {
	mu          sync.RWMutex
	instance    any
	instanceTyp hostmodel.Type
	registered  map[any]bool
	localNames  map[any]string
	seed        map[string]any
	postCreate  []func()
}

// NewMachine creates a Machine with no ambient instance: Instance() is nil
// until SetInstance is called (a lightweight test fixture typically passes
// the Machine itself; an embedder passes its real host object).
func NewMachine() *Machine {
	return &Machine{
		registered: make(map[any]bool),
		localNames: make(map[any]string),
		seed:       make(map[string]any),
	}
}

// SetInstance sets the ambient object constructor resolution injects for a
// Machine-typed parameter (spec.md §4.6's implicit default), and the Type
// describing it.
func (m *Machine) SetInstance(instance any, typ hostmodel.Type) {
	m.instance = instance
	m.instanceTyp = typ
}

// SeedRegistered pre-populates name as an already-registered peripheral,
// mirroring a Renode machine's built-in sysbus children.
func (m *Machine) SeedRegistered(name string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seed[name] = value
	m.registered[value] = true
}

// Seeded returns every pre-registered peripheral, for VariableStore
// seeding.
func (m *Machine) Seeded() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]any, len(m.seed))
	for k, v := range m.seed {
		out[k] = v
	}
	return out
}

func (m *Machine) Instance() any        { return m.instance }
func (m *Machine) Type() hostmodel.Type { return m.instanceTyp }

func (m *Machine) IsRegistered(peripheral any) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.registered[peripheral]
}

func (m *Machine) SetLocalName(peripheral any, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for existing, n := range m.localNames {
		if n == name && existing != peripheral {
			return fmt.Errorf("local name %q is already taken", name)
		}
	}
	m.localNames[peripheral] = name
	m.registered[peripheral] = true
	return nil
}

func (m *Machine) LocalName(peripheral any) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.localNames[peripheral]
	return n, ok
}

// OnPostCreation registers a callback PostCreationActions runs, letting
// an embedder hook the end of the build (e.g. to start peripherals that
// need every connection wired first).
func (m *Machine) OnPostCreation(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.postCreate = append(m.postCreate, fn)
}

func (m *Machine) PostCreationActions() {
	m.mu.RLock()
	fns := append([]func(){}, m.postCreate...)
	m.mu.RUnlock()
	for _, fn := range fns {
		fn()
	}
}

// RegisteredPeripherals implements hostmodel.Machine: it reports the
// peripherals seeded before the build started (SeedRegistered), not
// whatever SetLocalName has registered since — those are an effect of the
// build, not its starting state.
func (m *Machine) RegisteredPeripherals() map[string]any {
	return m.Seeded()
}

// IsLocalGpioReceiver implements hostmodel.ObjectModel: true when t's
// registered sample struct (or a pointer to it) implements
// LocalGpioReceiver, i.e. exposes more than one independently addressable
// IRQ input.
func (c *Catalog) IsLocalGpioReceiver(t hostmodel.Type) bool {
	nt, ok := t.(*nativeType)
	if !ok {
		return false
	}
	rt := nt.entry.rt
	if rt == nil {
		return false
	}
	if rt.Kind() != reflect.Ptr {
		rt = reflect.PtrTo(rt)
	}
	return rt.Implements(localGpioReceiverType)
}

// GetLocalReceiver implements hostmodel.ObjectModel.
func (c *Catalog) GetLocalReceiver(obj any, index int) (any, error) {
	r, ok := obj.(LocalGpioReceiver)
	if !ok {
		return nil, fmt.Errorf("%T does not expose numbered local GPIO receivers", obj)
	}
	return r.GpioReceiver(index)
}

// NumberedOutput implements hostmodel.ObjectModel.
func (c *Catalog) NumberedOutput(obj any, index int) (any, bool) {
	s, ok := obj.(NumberedGpioSource)
	if !ok {
		return nil, false
	}
	return s.NumberedGpio(index)
}

// NullRegistrationPoint implements hostmodel.ObjectModel: the catalog-wide
// singleton nil registration point, of a dedicated marker type so a
// RegistrationInterface can distinguish "no point" from "point omitted
// but a real zero value applies".
func (c *Catalog) NullRegistrationPoint() (any, hostmodel.Type) {
	return nullRegistrationPoint{}, nullPointType
}

type nullRegistrationPoint struct{}

var nullPointType hostmodel.Type = &primitiveKind{name: "NullRegistrationPoint", kind: hostmodel.KindOther}

// MachineType implements hostmodel.ObjectModel.
func (c *Catalog) MachineType() hostmodel.Type { return machineTypeSingleton }

var machineTypeSingleton hostmodel.Type = &primitiveKind{name: "Machine", kind: hostmodel.KindMachine}

// TypeOf implements hostmodel.ObjectModel by looking up obj's registered
// type entry by its reflect.Type, since a live object carries no back
// pointer to the nativeType that created it.
func (c *Catalog) TypeOf(obj any) hostmodel.Type {
	if obj == nil {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	rt := reflect.TypeOf(obj)
	for _, entry := range c.types {
		if entry.rt == rt {
			return &nativeType{entry: entry}
		}
	}
	return nil
}

// NewStructValue implements hostmodel.ObjectModel: it hands back a fresh
// pointer of t's registered Go type, matching the pointer-sample convention
// every RegisterType call in this package follows. enums and types with no
// backing struct (rt == nil) report ok == false.
func (c *Catalog) NewStructValue(t hostmodel.Type) (any, bool) {
	nt, ok := t.(*nativeType)
	if !ok || nt.entry == nil || nt.entry.enum != nil || nt.entry.rt == nil {
		return nil, false
	}
	rt := nt.entry.rt
	if rt.Kind() == reflect.Ptr {
		return reflect.New(rt.Elem()).Interface(), true
	}
	return reflect.New(rt).Interface(), true
}

// NewCombiner implements hostmodel.ObjectModel.
func (c *Catalog) NewCombiner(arity int) (any, error) {
	return &Combiner{inputs: make([]any, arity)}, nil
}

// ConnectCombinerInput implements hostmodel.ObjectModel.
func (c *Catalog) ConnectCombinerInput(combiner any, index int, source any) error {
	comb, ok := combiner.(*Combiner)
	if !ok {
		return fmt.Errorf("%T is not a nativecatalog combiner", combiner)
	}
	comb.SetInput(index, source)
	return nil
}

// CombinerOutput implements hostmodel.ObjectModel: the combiner itself
// stands in for its single aggregated output line.
func (c *Catalog) CombinerOutput(combiner any) any { return combiner }

// Connect implements hostmodel.ObjectModel by requiring destination (the
// real receiver or a Combiner) to implement GpioSink.
func (c *Catalog) Connect(source any, destination any, index int) error {
	sink, ok := destination.(GpioSink)
	if !ok {
		return fmt.Errorf("%T is not a GPIO sink", destination)
	}
	sink.SetInput(index, source)
	return nil
}
