package build

import (
	"errors"
	"testing"

	"github.com/bittoy/platformdesc/diag"
	"github.com/bittoy/platformdesc/hostmodel"
	"github.com/bittoy/platformdesc/internal/ast"
	"github.com/bittoy/platformdesc/internal/model"
	"github.com/bittoy/platformdesc/internal/store"
	"github.com/bittoy/platformdesc/internal/validate"
)

// fakeObj is the live value every fake constructor produces: just enough
// state for tests to assert on property sets, registrations and combiner
// wiring without a real reflective host.
type fakeObj struct {
	typeName string
	props    map[string]any
}

type fakeType struct{ name string }

func (t *fakeType) Name() string                         { return t.name }
func (t *fakeType) FullName() string                      { return t.name }
func (t *fakeType) Kind() hostmodel.Kind                   { return hostmodel.KindOther }
func (t *fakeType) AssignableFrom(hostmodel.Type) bool     { return false }
func (t *fakeType) EnumPath() []string                     { return nil }
func (t *fakeType) EnumMembers() []string                  { return nil }
func (t *fakeType) EnumMemberNumericValue(string) (int64, bool)   { return 0, false }
func (t *fakeType) EnumMemberByNumericValue(int64) (string, bool) { return "", false }
func (t *fakeType) EnumAcceptsAnyNumericalValue() bool      { return false }
func (t *fakeType) NumericBounds() (float64, float64, bool) { return 0, 0, false }

// fakeHost is a minimal hostmodel.ObjectModel + hostmodel.Machine double
// used only by internal/build's tests: it tracks registration state and
// combiner wiring so assertions can inspect what the builder actually did.
type fakeHost struct {
	registered map[any]bool
	localNames map[any]string
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		registered: make(map[any]bool),
		localNames: make(map[any]string),
	}
}

func (h *fakeHost) Properties(t hostmodel.Type) []hostmodel.PropertyDescriptor {
	ft, ok := t.(*fakeType)
	if !ok {
		return nil
	}
	var out []hostmodel.PropertyDescriptor
	switch ft.name {
	case "GpioSource":
		out = append(out, hostmodel.PropertyDescriptor{
			Name: "Output", Type: &fakeType{name: "Gpio"}, Settable: false, IsGpio: true,
			Get: func(obj any) (any, error) { return obj.(*fakeObj).props["Output"], nil },
		})
	default:
		out = append(out, hostmodel.PropertyDescriptor{
			Name: "Value", Type: &fakeType{name: "int"}, Settable: true,
			Get: func(obj any) (any, error) { return obj.(*fakeObj).props["Value"], nil },
			Set: func(obj any, v any) error { obj.(*fakeObj).props["Value"] = v; return nil },
		})
	}
	return out
}
func (h *fakeHost) Constructors(t hostmodel.Type) []hostmodel.CtorDescriptor             { return nil }
func (h *fakeHost) RegistrationInterfaces(t hostmodel.Type) []hostmodel.RegistrationInterface { return nil }
func (h *fakeHost) IsLocalGpioReceiver(t hostmodel.Type) bool        { return false }
func (h *fakeHost) GetLocalReceiver(obj any, index int) (any, error) { return obj, nil }
func (h *fakeHost) NumberedOutput(obj any, index int) (any, bool)    { return nil, false }
func (h *fakeHost) NullRegistrationPoint() (any, hostmodel.Type)    { return nil, nil }
func (h *fakeHost) MachineType() hostmodel.Type                     { return nil }
func (h *fakeHost) NewStructValue(t hostmodel.Type) (any, bool)      { return nil, false }
func (h *fakeHost) TypeOf(obj any) hostmodel.Type {
	o, ok := obj.(*fakeObj)
	if !ok {
		return nil
	}
	return &fakeType{name: o.typeName}
}
func (h *fakeHost) NewCombiner(arity int) (any, error) {
	return &fakeCombiner{arity: arity}, nil
}
func (h *fakeHost) ConnectCombinerInput(combiner any, index int, source any) error {
	c := combiner.(*fakeCombiner)
	c.inputs = append(c.inputs, source)
	return nil
}
func (h *fakeHost) CombinerOutput(combiner any) any { return combiner }
func (h *fakeHost) Connect(source any, destination any, index int) error {
	dst := destination.(*fakeObj)
	if dst.props == nil {
		dst.props = make(map[string]any)
	}
	dst.props["irq"] = source
	return nil
}

func (h *fakeHost) Instance() any                           { return h }
func (h *fakeHost) Type() hostmodel.Type                    { return nil }
func (h *fakeHost) IsRegistered(peripheral any) bool        { return h.registered[peripheral] }
func (h *fakeHost) SetLocalName(peripheral any, name string) error {
	h.localNames[peripheral] = name
	return nil
}
func (h *fakeHost) PostCreationActions()                 {}
func (h *fakeHost) RegisteredPeripherals() map[string]any { return nil }

type fakeCombiner struct {
	arity  int
	inputs []any
}

func ctor(typeName string) hostmodel.CtorDescriptor {
	return hostmodel.CtorDescriptor{
		Signature: typeName + "()",
		Invoke: func(args []any) (any, error) {
			return &fakeObj{typeName: typeName, props: make(map[string]any)}, nil
		},
	}
}

// newStore seeds a VariableStore with one undeclared slot per name so
// Lookup succeeds before the builder creates anything.
func newStore(names ...string) *store.VariableStore {
	st := store.New()
	for _, n := range names {
		st.SeedBuiltin(n, nil, nil)
		v, _ := st.Lookup(n)
		v.Built = false
		v.Value = nil
		v.Declared = model.DeclarationPlace{Kind: model.UserEntry}
	}
	return st
}

func newResult() *validate.Result {
	return &validate.Result{
		Plans:        make(map[string]*model.EntryPlan),
		Creation:     model.NewDependencyGraph(),
		Registration: model.NewDependencyGraph(),
		Combiners:    make(map[model.IrqDestinationKey]*model.IrqCombinerConnection),
	}
}

func TestCreateAndRegister(t *testing.T) {
	st := newStore("bus", "dev")
	// "bus" stands in for a peripheral already registered on the machine,
	// so dev's registration onto it is ready once bus is built.
	busVar, _ := st.Lookup("bus")
	busVar.Declared.Kind = model.BuiltinOrAlreadyRegistered
	res := newResult()
	res.Creation.AddNode("bus")
	res.Creation.AddEdge("dev", "bus", ast.Position{}, "f", "ctor")
	res.Registration.AddNode("bus")
	res.Registration.AddNode("dev")

	res.Plans["bus"] = &model.EntryPlan{
		Variable: "bus",
		Object:   &model.ObjectPlan{Type: &fakeType{name: "Bus"}, Ctor: ctor("Bus")},
	}
	res.Plans["dev"] = &model.EntryPlan{
		Variable: "dev",
		Object: &model.ObjectPlan{
			Type: &fakeType{name: "Device"}, Ctor: ctor("Device"),
			Args:     []any{model.DeferredRef{Variable: "bus"}},
			ArgPlans: map[int]*model.ObjectPlan{},
		},
		Registrations: []*model.ResolvedRegistrationInfo{{
			Syntax:    &ast.RegistrationInfo{Register: &ast.ReferenceValue{Name: "bus"}},
			Interface: hostmodel.RegistrationInterface{Register: func(reg, periph, point any) error { return nil }},
		}},
	}

	host := newFakeHost()
	err := Run(st, res, host, host, nil, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	busVar, _ := st.Lookup("bus")
	devVar, _ := st.Lookup("dev")
	if !busVar.Built || !devVar.Built {
		t.Fatalf("expected both entries built")
	}
	if host.localNames[devVar.Value] != "dev" {
		t.Fatalf("expected dev registered under its own name, got %q", host.localNames[devVar.Value])
	}
}

func TestAliasNamesRegisteredPeripheral(t *testing.T) {
	st := newStore("bus", "dev")
	busVar, _ := st.Lookup("bus")
	busVar.Declared.Kind = model.BuiltinOrAlreadyRegistered
	res := newResult()
	res.Creation.AddNode("bus")
	res.Creation.AddNode("dev")
	res.Registration.AddNode("bus")
	res.Registration.AddNode("dev")

	res.Plans["bus"] = &model.EntryPlan{Variable: "bus", Object: &model.ObjectPlan{Type: &fakeType{name: "Bus"}, Ctor: ctor("Bus")}}
	res.Plans["dev"] = &model.EntryPlan{
		Variable: "dev", HasAlias: true, Alias: "myDevice",
		Object: &model.ObjectPlan{Type: &fakeType{name: "Device"}, Ctor: ctor("Device")},
		Registrations: []*model.ResolvedRegistrationInfo{{
			Syntax:    &ast.RegistrationInfo{Register: &ast.ReferenceValue{Name: "bus"}},
			Interface: hostmodel.RegistrationInterface{Register: func(reg, periph, point any) error { return nil }},
		}},
	}

	host := newFakeHost()
	if err := Run(st, res, host, host, nil, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	devVar, _ := st.Lookup("dev")
	if host.localNames[devVar.Value] != "myDevice" {
		t.Fatalf("expected alias name, got %q", host.localNames[devVar.Value])
	}
}

func TestRegistrationFixpoint_ChainedRegistration(t *testing.T) {
	st := newStore("a", "b", "c")
	// "a" stands in for a root peripheral that needs no registration of
	// its own, so b's registration onto it can become ready as soon as a
	// is built.
	aVar, _ := st.Lookup("a")
	aVar.Declared.Kind = model.BuiltinOrAlreadyRegistered

	res := newResult()
	for _, n := range []string{"a", "b", "c"} {
		res.Creation.AddNode(n)
		res.Registration.AddNode(n)
	}

	reg := func(target string) []*model.ResolvedRegistrationInfo {
		return []*model.ResolvedRegistrationInfo{{
			Syntax:    &ast.RegistrationInfo{Register: &ast.ReferenceValue{Name: target}},
			Interface: hostmodel.RegistrationInterface{Register: func(reg, periph, point any) error { return nil }},
		}}
	}
	res.Plans["a"] = &model.EntryPlan{Variable: "a", Object: &model.ObjectPlan{Type: &fakeType{name: "A"}, Ctor: ctor("A")}}
	res.Plans["b"] = &model.EntryPlan{Variable: "b", Object: &model.ObjectPlan{Type: &fakeType{name: "B"}, Ctor: ctor("B")}, Registrations: reg("a")}
	res.Plans["c"] = &model.EntryPlan{Variable: "c", Object: &model.ObjectPlan{Type: &fakeType{name: "C"}, Ctor: ctor("C")}, Registrations: reg("b")}

	host := newFakeHost()

	// Each Register call flips IsRegistered for the peripheral being
	// registered, letting the next fixpoint pass pick up its dependents.
	markRegistered := func(reg, periph, point any) error {
		host.registered[periph] = true
		return nil
	}
	res.Plans["b"].Registrations[0].Interface.Register = markRegistered
	res.Plans["c"].Registrations[0].Interface.Register = markRegistered

	if err := Run(st, res, host, host, nil, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	bVar, _ := st.Lookup("b")
	cVar, _ := st.Lookup("c")
	if !host.registered[bVar.Value] || !host.registered[cVar.Value] {
		t.Fatalf("expected b and c both registered")
	}
}

func TestRegistrationCastException(t *testing.T) {
	st := newStore("bus", "dev")
	busVar, _ := st.Lookup("bus")
	busVar.Declared.Kind = model.BuiltinOrAlreadyRegistered
	res := newResult()
	res.Creation.AddNode("bus")
	res.Creation.AddNode("dev")
	res.Registration.AddNode("bus")
	res.Registration.AddNode("dev")

	res.Plans["bus"] = &model.EntryPlan{Variable: "bus", Object: &model.ObjectPlan{Type: &fakeType{name: "Bus"}, Ctor: ctor("Bus")}}
	res.Plans["dev"] = &model.EntryPlan{
		Variable: "dev",
		Object:   &model.ObjectPlan{Type: &fakeType{name: "Device"}, Ctor: ctor("Device")},
		Registrations: []*model.ResolvedRegistrationInfo{{
			Syntax: &ast.RegistrationInfo{Register: &ast.ReferenceValue{Name: "bus"}},
			Interface: hostmodel.RegistrationInterface{Register: func(reg, periph, point any) error {
				return hostmodel.ErrNotPeripheralType
			}},
		}},
	}

	host := newFakeHost()
	err := Run(st, res, host, host, nil, nil)
	if err == nil {
		t.Fatalf("expected error")
	}
	var derr *diag.Error
	if !errors.As(err, &derr) {
		t.Fatalf("expected *diag.Error, got %T", err)
	}
	if derr.Code != diag.CastException {
		t.Fatalf("expected CastException, got %s", derr.Code)
	}
}

func TestIrqFanInCombiner(t *testing.T) {
	st := newStore("src1", "src2", "dest")
	res := newResult()
	for _, n := range []string{"src1", "src2", "dest"} {
		res.Creation.AddNode(n)
		res.Registration.AddNode(n)
	}
	gpioCtor := hostmodel.CtorDescriptor{
		Signature: "GpioSource()",
		Invoke: func(args []any) (any, error) {
			o := &fakeObj{typeName: "GpioSource", props: make(map[string]any)}
			o.props["Output"] = o
			return o, nil
		},
	}
	res.Plans["src1"] = &model.EntryPlan{Variable: "src1", Object: &model.ObjectPlan{Type: &fakeType{name: "GpioSource"}, Ctor: gpioCtor}}
	res.Plans["src2"] = &model.EntryPlan{Variable: "src2", Object: &model.ObjectPlan{Type: &fakeType{name: "GpioSource"}, Ctor: gpioCtor}}
	res.Plans["dest"] = &model.EntryPlan{Variable: "dest", Object: &model.ObjectPlan{Type: &fakeType{name: "Interrupt"}, Ctor: ctor("Interrupt")}}

	key := model.IrqDestinationKey{Peripheral: "dest"}
	res.Combiners[key] = &model.IrqCombinerConnection{
		Dest:     key,
		DestEnds: []int{0, 0},
		Sources: []model.ResolvedIrqEnd{
			{SourceVar: "src1", PropertyName: "Output"},
			{SourceVar: "src2", PropertyName: "Output"},
		},
	}

	host := newFakeHost()
	if err := Run(st, res, host, host, nil, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	destVar, _ := st.Lookup("dest")
	combined, ok := destVar.Value.(*fakeObj).props["irq"].(*fakeCombiner)
	if !ok {
		t.Fatalf("expected combiner wired into dest's irq property")
	}
	if combined.arity != 2 || len(combined.inputs) != 2 {
		t.Fatalf("expected 2-input combiner fully wired, got arity=%d inputs=%d", combined.arity, len(combined.inputs))
	}
}

func TestCreationOrderCycleReportsDiagnostic(t *testing.T) {
	st := newStore("a", "b")
	res := newResult()
	res.Creation.AddEdge("a", "b", ast.Position{Line: 1}, "f", "ctor: b")
	res.Creation.AddEdge("b", "a", ast.Position{Line: 2}, "f", "ctor: a")
	res.Registration.AddNode("a")
	res.Registration.AddNode("b")
	res.Plans["a"] = &model.EntryPlan{Variable: "a", Object: &model.ObjectPlan{Type: &fakeType{name: "A"}, Ctor: ctor("A")}}
	res.Plans["b"] = &model.EntryPlan{Variable: "b", Object: &model.ObjectPlan{Type: &fakeType{name: "B"}, Ctor: ctor("B")}}

	host := newFakeHost()
	err := Run(st, res, host, host, nil, nil)
	if err == nil {
		t.Fatalf("expected cycle error")
	}
	var derr *diag.Error
	if !errors.As(err, &derr) || derr.Code != diag.CreationOrderCycle {
		t.Fatalf("expected CreationOrderCycle, got %v", err)
	}
}

func TestInitPhaseExecutesEntryInitSection(t *testing.T) {
	st := newStore("dev")
	res := newResult()
	res.Creation.AddNode("dev")
	res.Registration.AddNode("dev")
	res.Plans["dev"] = &model.EntryPlan{
		Variable: "dev",
		Object:   &model.ObjectPlan{Type: &fakeType{name: "Device"}, Ctor: ctor("Device")},
		Init:     &ast.InitAttribute{Lines: []string{"self.Value = 42;"}},
	}

	var executed []string
	init := &recordingInitHandler{
		onExecute: func(container any, lines []string, onError func(error)) {
			executed = append(executed, lines...)
		},
	}

	host := newFakeHost()
	if err := Run(st, res, host, host, init, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(executed) != 1 || executed[0] != "self.Value = 42;" {
		t.Fatalf("expected init script executed once, got %v", executed)
	}
}

type recordingInitHandler struct {
	onExecute func(container any, lines []string, onError func(error))
}

func (h *recordingInitHandler) Validate(container any, lines []string) error { return nil }
func (h *recordingInitHandler) Execute(container any, lines []string, onError func(error)) {
	h.onExecute(container, lines, onError)
}
