package nativecatalog

import (
	"errors"
	"testing"

	"github.com/bittoy/platformdesc/hostmodel"
)

type gpioLine struct {
	Enabled bool `native:"Enabled,settable"`
}

type irqController struct {
	Priority int64 `native:"Priority,settable"`
	Name     string `native:"Name"`
}

func (c *irqController) GpioReceiver(index int) (any, error) {
	if index < 0 || index > 3 {
		return nil, errors.New("index out of range")
	}
	return &gpioLine{}, nil
}

func TestRegisterTypeDiscoversTaggedProperties(t *testing.T) {
	cat := NewCatalog()
	typ := cat.RegisterType("IrqController", &irqController{}, hostmodel.KindOther, nil, nil)

	props := cat.Properties(typ)
	if len(props) != 2 {
		t.Fatalf("expected 2 discovered properties, got %d", len(props))
	}

	var priority, name *hostmodel.PropertyDescriptor
	for i := range props {
		switch props[i].Name {
		case "Priority":
			priority = &props[i]
		case "Name":
			name = &props[i]
		}
	}
	if priority == nil || name == nil {
		t.Fatalf("missing expected properties: %+v", props)
	}
	if !priority.Settable {
		t.Fatalf("expected Priority to be settable")
	}
	if name.Settable {
		t.Fatalf("expected Name to be read-only")
	}
	if priority.Type == nil || priority.Type.Kind() != hostmodel.KindNumeric {
		t.Fatalf("expected Priority to resolve to a numeric primitive type")
	}
}

func TestPropertyGetSetRoundTrip(t *testing.T) {
	cat := NewCatalog()
	typ := cat.RegisterType("IrqController", &irqController{}, hostmodel.KindOther, nil, nil)

	obj := &irqController{Name: "nvic"}
	props := cat.Properties(typ)
	var priority hostmodel.PropertyDescriptor
	for _, p := range props {
		if p.Name == "Priority" {
			priority = p
		}
	}

	if err := priority.Set(obj, int64(5)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := priority.Get(obj)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.(int64) != 5 {
		t.Fatalf("expected 5, got %v", got)
	}
}

func TestSetRejectsReadOnlyProperty(t *testing.T) {
	cat := NewCatalog()
	typ := cat.RegisterType("IrqController", &irqController{}, hostmodel.KindOther, nil, nil)

	var name hostmodel.PropertyDescriptor
	for _, p := range cat.Properties(typ) {
		if p.Name == "Name" {
			name = p
		}
	}
	if err := name.Set(&irqController{}, "x"); err == nil {
		t.Fatalf("expected error setting a read-only property")
	}
}

func TestOverridePropertyType(t *testing.T) {
	cat := NewCatalog()
	cat.RegisterType("IrqController", &irqController{}, hostmodel.KindOther, nil, nil)
	enumType := cat.RegisterEnum("Mode", []string{"Mode"}, []string{"A", "B"}, map[string]int64{"A": 0, "B": 1})

	if err := cat.OverridePropertyType("IrqController", "Name", enumType); err != nil {
		t.Fatalf("OverridePropertyType: %v", err)
	}

	typ, _ := cat.Resolve("IrqController")
	for _, p := range cat.Properties(typ) {
		if p.Name == "Name" && p.Type != enumType {
			t.Fatalf("expected overridden type to stick")
		}
	}

	if err := cat.OverridePropertyType("IrqController", "DoesNotExist", enumType); err == nil {
		t.Fatalf("expected error overriding a nonexistent property")
	}
}

func TestResolveUnknownType(t *testing.T) {
	cat := NewCatalog()
	if _, ok := cat.Resolve("Nope"); ok {
		t.Fatalf("expected Resolve to fail for an unregistered type")
	}
}

func TestAssignableFromEmbedding(t *testing.T) {
	type base struct {
		X int `native:"X,settable"`
	}
	type derived struct {
		base
		Y int `native:"Y,settable"`
	}

	cat := NewCatalog()
	baseType := cat.RegisterType("Base", &base{}, hostmodel.KindOther, nil, nil)
	derivedType := cat.RegisterType("Derived", &derived{}, hostmodel.KindOther, nil, nil)

	if !baseType.AssignableFrom(derivedType) {
		t.Fatalf("expected Base to accept a Derived instance via embedding")
	}
	if derivedType.AssignableFrom(baseType) {
		t.Fatalf("did not expect Derived to accept a bare Base")
	}
}

func TestEnumMemberLookups(t *testing.T) {
	cat := NewCatalog()
	mode := cat.RegisterEnum("Mode", []string{"Mode"}, []string{"A", "B"}, map[string]int64{"A": 0, "B": 1})

	v, ok := mode.EnumMemberNumericValue("B")
	if !ok || v != 1 {
		t.Fatalf("expected B -> 1, got %v, %v", v, ok)
	}
	name, ok := mode.EnumMemberByNumericValue(0)
	if !ok || name != "A" {
		t.Fatalf("expected 0 -> A, got %v, %v", name, ok)
	}
	if _, ok := mode.EnumMemberNumericValue("C"); ok {
		t.Fatalf("expected lookup of unknown member to fail")
	}
}

func TestIsLocalGpioReceiverAndGetLocalReceiver(t *testing.T) {
	cat := NewCatalog()
	ctrlType := cat.RegisterType("IrqController", &irqController{}, hostmodel.KindOther, nil, nil)
	gpioType := cat.RegisterType("GpioLine", &gpioLine{}, hostmodel.KindOther, nil, nil)

	if !cat.IsLocalGpioReceiver(ctrlType) {
		t.Fatalf("expected IrqController to be a local GPIO receiver")
	}
	if cat.IsLocalGpioReceiver(gpioType) {
		t.Fatalf("did not expect GpioLine to be a local GPIO receiver")
	}

	ctrl := &irqController{}
	line, err := cat.GetLocalReceiver(ctrl, 2)
	if err != nil {
		t.Fatalf("GetLocalReceiver: %v", err)
	}
	if _, ok := line.(*gpioLine); !ok {
		t.Fatalf("expected a *gpioLine, got %T", line)
	}

	if _, err := cat.GetLocalReceiver(ctrl, 99); err == nil {
		t.Fatalf("expected an out-of-range index to fail")
	}
	if _, err := cat.GetLocalReceiver(&gpioLine{}, 0); err == nil {
		t.Fatalf("expected GetLocalReceiver to fail on a non-receiver")
	}
}

func TestTypeOfLooksUpRegisteredType(t *testing.T) {
	cat := NewCatalog()
	gpioType := cat.RegisterType("GpioLine", &gpioLine{}, hostmodel.KindOther, nil, nil)

	obj := &gpioLine{}
	got := cat.TypeOf(obj)
	if got == nil || got.FullName() != gpioType.FullName() {
		t.Fatalf("expected TypeOf to resolve the registered type, got %v", got)
	}

	if cat.TypeOf(&irqController{}) != nil {
		t.Fatalf("expected TypeOf to return nil for an unregistered Go type")
	}
}

func TestNewStructValueReturnsMatchingPointer(t *testing.T) {
	cat := NewCatalog()
	gpioType := cat.RegisterType("GpioLine", &gpioLine{}, hostmodel.KindOther, nil, nil)

	value, ok := cat.NewStructValue(gpioType)
	if !ok {
		t.Fatalf("expected NewStructValue to succeed for a registered struct type")
	}
	if _, isGpioLine := value.(*gpioLine); !isGpioLine {
		t.Fatalf("expected a fresh *gpioLine, got %T", value)
	}
}

func TestNewStructValueRejectsEnum(t *testing.T) {
	cat := NewCatalog()
	mode := cat.RegisterEnum("Mode", []string{"Mode"}, []string{"A", "B"}, map[string]int64{"A": 0, "B": 1})

	if _, ok := cat.NewStructValue(mode); ok {
		t.Fatalf("expected NewStructValue to reject an enum type")
	}
}

func TestCombinerFanIn(t *testing.T) {
	cat := NewCatalog()
	combiner, err := cat.NewCombiner(2)
	if err != nil {
		t.Fatalf("NewCombiner: %v", err)
	}

	srcA, srcB := &gpioLine{}, &gpioLine{}
	if err := cat.ConnectCombinerInput(combiner, 0, srcA); err != nil {
		t.Fatalf("ConnectCombinerInput: %v", err)
	}
	if err := cat.ConnectCombinerInput(combiner, 1, srcB); err != nil {
		t.Fatalf("ConnectCombinerInput: %v", err)
	}

	comb := combiner.(*Combiner)
	if len(comb.Inputs()) != 2 || comb.Inputs()[0] != srcA || comb.Inputs()[1] != srcB {
		t.Fatalf("unexpected combiner inputs: %+v", comb.Inputs())
	}

	out := cat.CombinerOutput(combiner)
	if out != combiner {
		t.Fatalf("expected combiner output to be the combiner itself")
	}

	dest := &Combiner{inputs: make([]any, 1)}
	if err := cat.Connect(out, dest, 0); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if dest.Inputs()[0] != combiner {
		t.Fatalf("expected destination to receive the combiner as its source")
	}
}

func TestConnectRejectsNonSink(t *testing.T) {
	cat := NewCatalog()
	if err := cat.Connect(&gpioLine{}, "not a sink", 0); err == nil {
		t.Fatalf("expected Connect to reject a non-GpioSink destination")
	}
}

func TestMachineRegistrationAndLocalNames(t *testing.T) {
	m := NewMachine()
	periph := &irqController{Name: "nvic"}

	if m.IsRegistered(periph) {
		t.Fatalf("expected periph to start unregistered")
	}
	if err := m.SetLocalName(periph, "nvic0"); err != nil {
		t.Fatalf("SetLocalName: %v", err)
	}
	if !m.IsRegistered(periph) {
		t.Fatalf("expected SetLocalName to mark periph registered")
	}

	other := &irqController{Name: "nvic"}
	if err := m.SetLocalName(other, "nvic0"); err == nil {
		t.Fatalf("expected a name collision to be rejected")
	}

	name, ok := m.LocalName(periph)
	if !ok || name != "nvic0" {
		t.Fatalf("expected local name nvic0, got %q, %v", name, ok)
	}
}

func TestMachineSeedAndPostCreation(t *testing.T) {
	m := NewMachine()
	sysbus := &irqController{Name: "sysbus"}
	m.SeedRegistered("sysbus", sysbus)

	seeded := m.Seeded()
	if seeded["sysbus"] != sysbus {
		t.Fatalf("expected Seeded to expose the pre-registered peripheral")
	}
	if !m.IsRegistered(sysbus) {
		t.Fatalf("expected a seeded peripheral to count as registered")
	}
	if got := m.RegisteredPeripherals(); got["sysbus"] != sysbus {
		t.Fatalf("expected RegisteredPeripherals to expose the seeded peripheral")
	}

	ran := false
	m.OnPostCreation(func() { ran = true })
	m.PostCreationActions()
	if !ran {
		t.Fatalf("expected PostCreationActions to run registered callbacks")
	}
}

func TestMachineInstanceAndType(t *testing.T) {
	m := NewMachine()
	typ := &primitiveKind{name: "Machine", kind: hostmodel.KindMachine}
	m.SetInstance(m, typ)

	if m.Instance() != m {
		t.Fatalf("expected Instance to return the value passed to SetInstance")
	}
	if m.Type() != typ {
		t.Fatalf("expected Type to return the type passed to SetInstance")
	}
}

func TestMachineTypeSingletonIsMachineKind(t *testing.T) {
	cat := NewCatalog()
	if cat.MachineType().Kind() != hostmodel.KindMachine {
		t.Fatalf("expected MachineType to report KindMachine")
	}
}

func TestNullRegistrationPoint(t *testing.T) {
	cat := NewCatalog()
	point, typ := cat.NullRegistrationPoint()
	if typ == nil {
		t.Fatalf("expected a non-nil type for the null registration point")
	}
	if _, ok := point.(nullRegistrationPoint); !ok {
		t.Fatalf("expected the null registration point marker type")
	}
}
