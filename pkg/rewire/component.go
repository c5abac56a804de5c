package rewire

import (
	"reflect"

	rerrors "github.com/toyz/rewire/internal/errors"
)

// Operations maps an operation (exported method) name to its markers
type Operations map[string][]Marker

// ControllerSpec is the capability table a component declares
type ControllerSpec struct {
	// Paths are context-path prefixes; empty means "/"
	Paths []string
	// Roles apply to every operation of the component
	Roles      []string
	Operations Operations
}

// Controller is implemented by components. Controller is called on a zero
// value, so it must describe the type without touching instance state.
type Controller interface {
	Controller() ControllerSpec
}

// Base can be embedded by components. Its methods are never exposed as
// operations, even when listed in the capability table.
type Base struct{}

// ComponentName returns a display name for the component
func (Base) ComponentName() string { return "" }

var baseMethods = func() map[string]bool {
	names := make(map[string]bool)
	t := reflect.TypeOf(&Base{})
	for i := 0; i < t.NumMethod(); i++ {
		names[t.Method(i).Name] = true
	}
	names["Controller"] = true
	return names
}()

// ComponentType is a type identity passed as a bean when the instance
// should be created lazily by the container.
type ComponentType struct {
	t reflect.Type
}

// TypeOf returns the component type identity of T
func TypeOf[T any]() ComponentType {
	return TypeFor(reflect.TypeFor[T]())
}

// TypeFor wraps a reflect.Type, dereferencing pointers
func TypeFor(t reflect.Type) ComponentType {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return ComponentType{t: t}
}

// Type returns the underlying struct type
func (c ComponentType) Type() reflect.Type {
	return c.t
}

// String returns the qualified type name
func (c ComponentType) String() string {
	if c.t == nil {
		return "<nil>"
	}
	return c.t.String()
}

// Introspector reads capability tables and binds operations to handlers
type Introspector interface {
	// Describe reads the capability table of a struct type without instantiating it
	Describe(t reflect.Type) (ControllerSpec, bool)
	// HasOperation reports whether the operation is an exposed, user-defined method
	HasOperation(t reflect.Type, operation string) bool
	// Bind returns a handler invoking the operation on target
	Bind(target reflect.Value, operation string) (Handler, error)
}

type reflectIntrospector struct{}

// NewIntrospector returns the reflection based introspector
func NewIntrospector() Introspector {
	return reflectIntrospector{}
}

func (reflectIntrospector) Describe(t reflect.Type) (ControllerSpec, bool) {
	if t == nil || t.Kind() != reflect.Struct {
		return ControllerSpec{}, false
	}
	c, ok := reflect.New(t).Interface().(Controller)
	if !ok {
		return ControllerSpec{}, false
	}
	return c.Controller(), true
}

func (reflectIntrospector) HasOperation(t reflect.Type, operation string) bool {
	if baseMethods[operation] {
		return false
	}
	_, ok := reflect.PointerTo(t).MethodByName(operation)
	return ok
}

func (i reflectIntrospector) Bind(target reflect.Value, operation string) (Handler, error) {
	if target.Kind() != reflect.Pointer {
		return nil, rerrors.ConfigurationErrorf("cannot bind %s on non-pointer %s", operation, target.Type())
	}
	if !i.HasOperation(target.Type().Elem(), operation) {
		return nil, rerrors.LookupMiss("operation", operation)
	}

	switch fn := target.MethodByName(operation).Interface().(type) {
	case func(RequestContext) (any, error):
		return fn, nil
	case func() (any, error):
		return func(RequestContext) (any, error) { return fn() }, nil
	case func(RequestContext) error:
		return func(req RequestContext) (any, error) { return nil, fn(req) }, nil
	case func(RequestContext) any:
		return func(req RequestContext) (any, error) { return fn(req), nil }, nil
	default:
		return nil, rerrors.ConfigurationErrorf("operation %s.%s has unsupported signature %s",
			target.Type().Elem().Name(), operation, target.MethodByName(operation).Type()).
			WithSuggestion("use func(rewire.RequestContext) (any, error)")
	}
}
