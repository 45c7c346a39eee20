// Package nativecatalog is a reflect-based hostmodel.TypeCatalog +
// hostmodel.ObjectModel + hostmodel.Machine: a reference capability
// provider used by this module's own tests and usable as a starting point
// by an embedder that wants a plain-Go object model instead of wrapping a
// richer host runtime. Types register themselves explicitly (constructors,
// registration interfaces, a sample instance for property discovery),
// mirroring engine/registry.go's explicit Register(node) pattern rather
// than scanning the binary for eligible types.
package nativecatalog

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/fatih/structs"

	"github.com/bittoy/platformdesc/hostmodel"
)

// propertyTag is the struct tag nativecatalog reads to discover settable
// properties: `native:"Name"` for read-only, `native:"Name,settable"` for
// a property the builder may write.
const propertyTag = "native"

// typeEntry is the registry's per-type bookkeeping.
type typeEntry struct {
	name       string
	rt         reflect.Type
	kind       hostmodel.Kind
	ctors      []hostmodel.CtorDescriptor
	props      []hostmodel.PropertyDescriptor
	regIfaces  []hostmodel.RegistrationInterface
	enum       *enumInfo
}

// enumInfo backs an enum Type's EnumPath/EnumMembers/EnumMemberByNumericValue
// surface for a named string-backed enum type.
type enumInfo struct {
	path    []string
	members []string
	nums    map[string]int64
}

// Catalog is a mutable type registry: it implements hostmodel.TypeCatalog
// and hostmodel.ObjectModel over the types registered with RegisterType.
type Catalog struct {
	mu    sync.RWMutex
	types map[string]*typeEntry
}

// NewCatalog creates an empty Catalog.
func NewCatalog() *Catalog {
	return &Catalog{types: make(map[string]*typeEntry)}
}

// nativeType is the hostmodel.Type handle Catalog hands out; two nativeTypes
// compare equal (by the interface values holding pointer-identical
// *typeEntry) iff they name the same registered type.
type nativeType struct {
	entry *typeEntry
}

func (t *nativeType) Name() string {
	return t.entry.name[strings.LastIndex(t.entry.name, ".")+1:]
}
func (t *nativeType) FullName() string { return t.entry.name }
func (t *nativeType) Kind() hostmodel.Kind {
	if t.entry.kind != 0 {
		return t.entry.kind
	}
	return hostmodel.KindOther
}

func (t *nativeType) AssignableFrom(other hostmodel.Type) bool {
	o, ok := other.(*nativeType)
	if !ok {
		return false
	}
	if o.entry == t.entry {
		return true
	}
	// A registered type is also assignable from another registered type
	// whose sample struct embeds it, the Go analogue of class inheritance.
	return embeds(o.entry.rt, t.entry.rt)
}

func embeds(candidate, target reflect.Type) bool {
	for candidate.Kind() == reflect.Ptr {
		candidate = candidate.Elem()
	}
	if candidate.Kind() != reflect.Struct {
		return false
	}
	for i := 0; i < candidate.NumField(); i++ {
		f := candidate.Field(i)
		if !f.Anonymous {
			continue
		}
		ft := f.Type
		for ft.Kind() == reflect.Ptr {
			ft = ft.Elem()
		}
		if ft == target || ft == dereferenced(target) {
			return true
		}
		if embeds(ft, target) {
			return true
		}
	}
	return false
}

func dereferenced(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t
}

func (t *nativeType) EnumPath() []string {
	if t.entry.enum == nil {
		return nil
	}
	return t.entry.enum.path
}
func (t *nativeType) EnumMembers() []string {
	if t.entry.enum == nil {
		return nil
	}
	return t.entry.enum.members
}
func (t *nativeType) EnumMemberNumericValue(name string) (int64, bool) {
	if t.entry.enum == nil {
		return 0, false
	}
	v, ok := t.entry.enum.nums[name]
	return v, ok
}
func (t *nativeType) EnumMemberByNumericValue(v int64) (string, bool) {
	if t.entry.enum == nil {
		return "", false
	}
	for name, n := range t.entry.enum.nums {
		if n == v {
			return name, true
		}
	}
	return "", false
}
func (t *nativeType) EnumAcceptsAnyNumericalValue() bool { return false }

func (t *nativeType) NumericBounds() (float64, float64, bool) {
	rt := t.entry.rt
	for rt.Kind() == reflect.Ptr {
		rt = rt.Elem()
	}
	switch rt.Kind() {
	case reflect.Float32, reflect.Float64:
		return -maxFloat, maxFloat, true
	case reflect.Int8:
		return -128, 127, false
	case reflect.Uint8:
		return 0, 255, false
	case reflect.Int16:
		return -32768, 32767, false
	case reflect.Uint16:
		return 0, 65535, false
	case reflect.Int32, reflect.Int:
		return -2147483648, 2147483647, false
	case reflect.Uint32, reflect.Uint:
		return 0, 4294967295, false
	case reflect.Int64:
		return -9223372036854775808, 9223372036854775807, false
	case reflect.Uint64:
		return 0, 18446744073709551615, false
	default:
		return 0, 0, false
	}
}

const maxFloat = 1.7976931348623157e+308

// RegisterType adds name to the catalog, backed by sample (a pointer to a
// zero-valued struct used only for property discovery) and ctors (the
// concrete constructors that build live instances, since nativecatalog has
// no generic way to invoke an arbitrary exported function reflectively
// with converted argument values). regIfaces lists the registration
// interfaces this type's instances can be registered through.
func (c *Catalog) RegisterType(name string, sample any, kind hostmodel.Kind, ctors []hostmodel.CtorDescriptor, regIfaces []hostmodel.RegistrationInterface) hostmodel.Type {
	entry := &typeEntry{
		name:      name,
		rt:        reflect.TypeOf(sample),
		kind:      kind,
		ctors:     ctors,
		regIfaces: regIfaces,
		props:     discoverProperties(sample),
	}
	c.mu.Lock()
	c.types[name] = entry
	c.mu.Unlock()
	return &nativeType{entry: entry}
}

// RegisterEnum adds an enum-kind type whose members are plain strings with
// associated numeric values (the most common wire form for firmware-style
// enums).
func (c *Catalog) RegisterEnum(name string, path []string, members []string, nums map[string]int64) hostmodel.Type {
	entry := &typeEntry{
		name: name,
		kind: hostmodel.KindEnum,
		rt:   reflect.TypeOf(""),
		enum: &enumInfo{path: path, members: members, nums: nums},
	}
	c.mu.Lock()
	c.types[name] = entry
	c.mu.Unlock()
	return &nativeType{entry: entry}
}

// discoverProperties scans sample's exported, `native`-tagged fields using
// github.com/fatih/structs, turning each into a PropertyDescriptor backed
// by reflect Get/Set closures over whatever live *T the builder later
// passes in. The descriptor's Type is derived from the field's own Go
// type (string/bool/numeric); a field that actually holds an enum member
// name or a Range needs Catalog.OverridePropertyType after registration,
// since that requires a hostmodel.Type this function has no access to.
func discoverProperties(sample any) []hostmodel.PropertyDescriptor {
	rt := reflect.TypeOf(sample)
	for rt.Kind() == reflect.Ptr {
		rt = rt.Elem()
	}

	var out []hostmodel.PropertyDescriptor
	for _, f := range structs.New(sample).Fields() {
		tag := f.Tag(propertyTag)
		if tag == "" {
			continue
		}
		propName, settable := parsePropertyTag(tag)
		fieldName := f.Name()
		structField, _ := rt.FieldByName(fieldName)
		out = append(out, hostmodel.PropertyDescriptor{
			Name:     propName,
			Type:     primitiveType(structField.Type),
			Settable: settable,
			Get: func(obj any) (any, error) {
				rv, err := addressable(obj)
				if err != nil {
					return nil, err
				}
				return rv.FieldByName(fieldName).Interface(), nil
			},
			Set: func(obj any, value any) error {
				if !settable {
					return fmt.Errorf("property %q is not settable", propName)
				}
				rv, err := addressable(obj)
				if err != nil {
					return err
				}
				fv := rv.FieldByName(fieldName)
				if !fv.CanSet() {
					return fmt.Errorf("property %q is not addressable on %T", propName, obj)
				}
				fv.Set(reflect.ValueOf(value))
				return nil
			},
		})
	}
	return out
}

// primitiveKind is a standalone hostmodel.Type for an unregistered Go
// primitive (string, bool, a sized integer or float), enough for
// internal/convert.Simple to convert a literal into it without the type
// needing a Catalog entry of its own.
type primitiveKind struct {
	name     string
	kind     hostmodel.Kind
	min, max float64
	isFloat  bool
}

func (p *primitiveKind) Name() string     { return p.name }
func (p *primitiveKind) FullName() string { return p.name }
func (p *primitiveKind) Kind() hostmodel.Kind                       { return p.kind }
func (p *primitiveKind) AssignableFrom(hostmodel.Type) bool         { return false }
func (p *primitiveKind) EnumPath() []string                         { return nil }
func (p *primitiveKind) EnumMembers() []string                      { return nil }
func (p *primitiveKind) EnumMemberNumericValue(string) (int64, bool)    { return 0, false }
func (p *primitiveKind) EnumMemberByNumericValue(int64) (string, bool)  { return "", false }
func (p *primitiveKind) EnumAcceptsAnyNumericalValue() bool         { return false }
func (p *primitiveKind) NumericBounds() (float64, float64, bool)    { return p.min, p.max, p.isFloat }

func primitiveType(rt reflect.Type) hostmodel.Type {
	for rt.Kind() == reflect.Ptr {
		rt = rt.Elem()
	}
	switch rt.Kind() {
	case reflect.String:
		return &primitiveKind{name: "string", kind: hostmodel.KindString}
	case reflect.Bool:
		return &primitiveKind{name: "bool", kind: hostmodel.KindBool}
	case reflect.Float32, reflect.Float64:
		return &primitiveKind{name: rt.Kind().String(), kind: hostmodel.KindNumeric, min: -maxFloat, max: maxFloat, isFloat: true}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		min, max := intBounds(rt.Kind())
		return &primitiveKind{name: rt.Kind().String(), kind: hostmodel.KindNumeric, min: min, max: max}
	case reflect.Ptr:
		return &primitiveKind{name: "nullable", kind: hostmodel.KindNullableNumeric}
	default:
		return &primitiveKind{name: rt.String(), kind: hostmodel.KindOther}
	}
}

func intBounds(k reflect.Kind) (float64, float64) {
	switch k {
	case reflect.Int8:
		return -128, 127
	case reflect.Uint8:
		return 0, 255
	case reflect.Int16:
		return -32768, 32767
	case reflect.Uint16:
		return 0, 65535
	case reflect.Int32, reflect.Int:
		return -2147483648, 2147483647
	case reflect.Uint32, reflect.Uint:
		return 0, 4294967295
	case reflect.Int64:
		return -9223372036854775808, 9223372036854775807
	default:
		return 0, 18446744073709551615
	}
}

// OverridePropertyType replaces the Type of an already-registered
// property, for the cases discoverProperties can't infer on its own: an
// enum-backed property (Go field is a plain string holding the member
// name) or a property whose value is another registered peripheral type.
func (c *Catalog) OverridePropertyType(typeName, propName string, t hostmodel.Type) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.types[typeName]
	if !ok {
		return fmt.Errorf("type %q not registered", typeName)
	}
	for i := range entry.props {
		if entry.props[i].Name == propName {
			entry.props[i].Type = t
			return nil
		}
	}
	return fmt.Errorf("type %q has no property named %q", typeName, propName)
}

func parsePropertyTag(tag string) (name string, settable bool) {
	name = tag
	for i := 0; i < len(tag); i++ {
		if tag[i] == ',' {
			name = tag[:i]
			if tag[i+1:] == "settable" {
				settable = true
			}
			break
		}
	}
	return name, settable
}

func addressable(obj any) (reflect.Value, error) {
	rv := reflect.ValueOf(obj)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return reflect.Value{}, fmt.Errorf("expected a pointer, got %T", obj)
	}
	return rv.Elem(), nil
}

// Resolve implements hostmodel.TypeCatalog.
func (c *Catalog) Resolve(name string) (hostmodel.Type, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.types[name]
	if !ok {
		return nil, false
	}
	return &nativeType{entry: entry}, true
}

// Constructors implements hostmodel.ObjectModel.
func (c *Catalog) Constructors(t hostmodel.Type) []hostmodel.CtorDescriptor {
	return t.(*nativeType).entry.ctors
}

// Properties implements hostmodel.ObjectModel.
func (c *Catalog) Properties(t hostmodel.Type) []hostmodel.PropertyDescriptor {
	return t.(*nativeType).entry.props
}

// RegistrationInterfaces implements hostmodel.ObjectModel.
func (c *Catalog) RegistrationInterfaces(t hostmodel.Type) []hostmodel.RegistrationInterface {
	return t.(*nativeType).entry.regIfaces
}
