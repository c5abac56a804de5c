package rewire

import (
	"reflect"
	"slices"
	"sync"

	rerrors "github.com/toyz/rewire/internal/errors"
)

// Initializer is called once when the container creates a singleton
type Initializer interface {
	Init() error
}

// Container is the injection collaborator: it owns lazily created singletons
// and the managed instances and types installed as beans by test fixtures.
type Container struct {
	mu           sync.Mutex
	singletons   map[reflect.Type]reflect.Value
	managed      []any
	managedTypes []ComponentType
}

// NewContainer creates an empty container
func NewContainer() *Container {
	return &Container{
		singletons: make(map[reflect.Type]reflect.Value),
	}
}

// Singleton returns the single instance of t, creating it on first use.
// The returned value is a pointer to the struct.
func (c *Container) Singleton(t ComponentType) (reflect.Value, error) {
	if t.Type() == nil || t.Type().Kind() != reflect.Struct {
		return reflect.Value{}, rerrors.ConfigurationErrorf("cannot create a singleton of %s, expected a struct type", t)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if v, ok := c.singletons[t.Type()]; ok {
		return v, nil
	}

	v := reflect.New(t.Type())
	if ini, ok := v.Interface().(Initializer); ok {
		if err := ini.Init(); err != nil {
			return reflect.Value{}, rerrors.Wrapf(rerrors.ConfigurationErrorCode, err, "failed to initialize %s", t)
		}
	}
	c.singletons[t.Type()] = v
	return v, nil
}

// Provide registers an existing instance as the singleton of its type
func (c *Container) Provide(instance any) {
	v := reflect.ValueOf(instance)
	if v.Kind() != reflect.Pointer || v.Elem().Kind() != reflect.Struct {
		return
	}
	c.mu.Lock()
	c.singletons[v.Type().Elem()] = v
	c.mu.Unlock()
}

// Manage adds instances that fixtures install as beans
func (c *Container) Manage(instances ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.managed = append(c.managed, instances...)
}

// ManageTypes adds types that fixtures install as beans
func (c *Container) ManageTypes(types ...ComponentType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.managedTypes = append(c.managedTypes, types...)
}

// ManagedInstances returns the managed instances
func (c *Container) ManagedInstances() []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.managed)
}

// ManagedTypes returns the managed types
func (c *Container) ManagedTypes() []ComponentType {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.managedTypes)
}

// Reset drops every singleton and managed bean
func (c *Container) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.singletons)
	c.managed = nil
	c.managedTypes = nil
}
