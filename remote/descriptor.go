package remote

import "reflect"

// Method describes one method of a remote interface: its name, the
// ordered list of declared parameter types, its return type (nil for a
// void method), and its declared failure types. Per §4.1/§7, Failures
// must include TransportFailureType for the descriptor to validate.
type Method struct {
	Name       string
	ParamTypes []reflect.Type
	ReturnType reflect.Type
	Failures   []reflect.Type
}

func (m Method) hasFailure(t reflect.Type) bool {
	for _, f := range m.Failures {
		if f == t {
			return true
		}
	}
	return false
}

func (m Method) declaresTransport() bool {
	return m.hasFailure(TransportFailureType)
}

// paramTypeNames returns the stable, wire-identifiable type identifiers
// for the method's declared parameters, in order.
func (m Method) paramTypeNames() []string {
	names := make([]string, len(m.ParamTypes))
	for i, t := range m.ParamTypes {
		names[i] = typeID(t)
	}
	return names
}

func typeID(t reflect.Type) string {
	if t == nil {
		return ""
	}
	return t.String()
}

// Descriptor is a RemoteInterfaceDescriptor (spec §3): a handle to a
// user-declared remote interface, carrying its name and its declared
// methods. It is built once, at package-init time in the common case,
// and shared by a stub factory and a skeleton alike.
type Descriptor struct {
	Name      string
	Blueprint reflect.Type // the struct type the user declares the interface as
	methods   map[string]Method
	order     []string
}

// NewDescriptor builds a Descriptor from a zero-value instance of the
// user's blueprint struct (which must embed Identity and declare one
// function-typed field per remote method) and the method metadata for
// each of those fields. It does not validate the result; call Validate
// explicitly, or rely on CreateStub (and its variants) / NewSkeleton to
// validate it.
func NewDescriptor(name string, blueprint interface{}, methods ...Method) (*Descriptor, error) {
	if blueprint == nil {
		return nil, errNullArgument("blueprint")
	}
	t := reflect.TypeOf(blueprint)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, errBadInterface("blueprint must be a struct type")
	}

	d := &Descriptor{
		Name:      name,
		Blueprint: t,
		methods:   make(map[string]Method, len(methods)),
	}
	for _, m := range methods {
		if _, exists := d.methods[m.Name]; exists {
			return nil, errBadInterface("duplicate method declaration: " + m.Name)
		}
		field, ok := t.FieldByName(m.Name)
		if !ok {
			return nil, errBadInterface("blueprint has no field for method " + m.Name)
		}
		if field.Type.Kind() != reflect.Func {
			return nil, errBadInterface("blueprint field " + m.Name + " is not a function")
		}
		if err := checkSignature(m, field.Type); err != nil {
			return nil, err
		}
		d.methods[m.Name] = m
		d.order = append(d.order, m.Name)
	}
	registerTypes(d)
	return d, nil
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// checkSignature verifies that a blueprint field's function type matches
// a method's declared parameter/return types under the convention
// func(params...) error for void methods, or func(params...) (T, error)
// otherwise — the error output always being last.
func checkSignature(m Method, fnType reflect.Type) error {
	if fnType.NumIn() != len(m.ParamTypes) {
		return errBadInterface("method " + m.Name + ": parameter count does not match declaration")
	}
	for i, pt := range m.ParamTypes {
		if fnType.In(i) != pt {
			return errBadInterface("method " + m.Name + ": parameter type mismatch at position")
		}
	}
	wantOut := 1
	if m.ReturnType != nil {
		wantOut = 2
	}
	if fnType.NumOut() != wantOut {
		return errBadInterface("method " + m.Name + ": return count does not match declaration")
	}
	if fnType.Out(wantOut-1) != errorType {
		return errBadInterface("method " + m.Name + ": last return value must be error")
	}
	if m.ReturnType != nil && fnType.Out(0) != m.ReturnType {
		return errBadInterface("method " + m.Name + ": return type mismatch")
	}
	return nil
}

// Method looks up a declared method by name.
func (d *Descriptor) Method(name string) (Method, bool) {
	m, ok := d.methods[name]
	return m, ok
}

// Methods returns the descriptor's methods in declaration order.
func (d *Descriptor) Methods() []Method {
	out := make([]Method, 0, len(d.order))
	for _, name := range d.order {
		out = append(out, d.methods[name])
	}
	return out
}

// resolve finds the method whose name and declared parameter type
// identifiers match exactly (spec §4.2: "Exact match is required").
func (d *Descriptor) resolve(name string, paramTypeNames []string) (Method, bool) {
	m, ok := d.methods[name]
	if !ok {
		return Method{}, false
	}
	if len(m.ParamTypes) != len(paramTypeNames) {
		return Method{}, false
	}
	for i, t := range m.ParamTypes {
		if typeID(t) != paramTypeNames[i] {
			return Method{}, false
		}
	}
	return m, true
}

// Equal reports whether two descriptors describe the same remote
// interface: same name, same blueprint type. Used by Identity.Equal.
func (d *Descriptor) Equal(other *Descriptor) bool {
	if d == other {
		return true
	}
	if d == nil || other == nil {
		return false
	}
	return d.Name == other.Name && d.Blueprint == other.Blueprint
}
