package rewire

import (
	"fmt"
	"reflect"
	"slices"

	"go.uber.org/zap"

	rerrors "github.com/toyz/rewire/internal/errors"
)

// Reconciler turns components into routes on a setup and removes them again.
type Reconciler struct {
	rt           *Runtime
	introspector Introspector
	logger       *zap.Logger
}

func newReconciler(rt *Runtime, introspector Introspector) *Reconciler {
	return &Reconciler{
		rt:           rt,
		introspector: introspector,
		logger:       rt.logger.Named("reconciler"),
	}
}

// Apply registers (register=true) or deregisters the routes declared by each
// bean on setup. A bean is a component instance or a ComponentType; types are
// materialized through the container only when registering.
func (r *Reconciler) Apply(setup *Setup, beans []any, register bool) error {
	for _, bean := range beans {
		if err := r.apply(setup, bean, register); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reconciler) apply(setup *Setup, bean any, register bool) error {
	typ, target, err := r.resolve(bean, register)
	if err != nil {
		return err
	}

	spec, ok := r.introspector.Describe(typ)
	if !ok {
		return rerrors.ConfigurationErrorf("expected a component, but found value of type %s", describeType(bean)).
			WithContext("bean", fmt.Sprintf("%v", bean)).
			WithSuggestion("implement rewire.Controller on the component type")
	}

	ctxPaths := spec.Paths
	if len(ctxPaths) == 0 {
		ctxPaths = []string{"/"}
	}

	component := componentName(typ, target)
	operations := make([]string, 0, len(spec.Operations))
	for name := range spec.Operations {
		operations = append(operations, name)
	}
	slices.Sort(operations)

	for _, ctxPath := range ctxPaths {
		for _, operation := range operations {
			markers := recognized(spec.Operations[operation])
			if len(markers) == 0 || !r.introspector.HasOperation(typ, operation) {
				continue
			}

			var handler Handler
			if register {
				handler, err = r.introspector.Bind(target, operation)
				if rerrors.HasCode(err, rerrors.LookupMissCode) {
					continue
				}
				if err != nil {
					return err
				}
			}

			for _, m := range markers {
				path := JoinPath(ctxPath, m.PathFor(operation))
				if !register {
					setup.deregisterMarker(m, path)
					continue
				}

				roles := r.rt.security.RolesAllowed(OperationInfo{
					Component:  typ,
					Operation:  operation,
					ClassRoles: spec.Roles,
					Marker:     m,
				})
				setup.registerMarker(m, path, handler, roles, component, operation)
				r.logger.Debug("Registered route",
					zap.String("setup", setup.Name()),
					zap.String("marker", string(m.Kind)),
					zap.String("path", path),
					zap.String("component", component),
					zap.String("operation", operation))
			}
		}
	}
	return nil
}

// resolve returns the struct type of a bean and, when registering, the
// pointer the handlers are bound to.
func (r *Reconciler) resolve(bean any, register bool) (reflect.Type, reflect.Value, error) {
	switch b := bean.(type) {
	case nil:
		return nil, reflect.Value{}, rerrors.ConfigurationError("expected a component, but found nil")
	case ComponentType:
		if !register {
			return b.Type(), reflect.Value{}, nil
		}
		// non-components are rejected by apply before anything is instantiated
		if _, ok := r.introspector.Describe(b.Type()); !ok {
			return b.Type(), reflect.Value{}, nil
		}
		v, err := r.rt.container.Singleton(b)
		if err != nil {
			return nil, reflect.Value{}, err
		}
		return b.Type(), v, nil
	case reflect.Type:
		return r.resolve(TypeFor(b), register)
	}

	v := reflect.ValueOf(bean)
	switch {
	case v.Kind() == reflect.Pointer && v.Elem().Kind() == reflect.Struct:
		return v.Elem().Type(), v, nil
	case v.Kind() == reflect.Struct:
		p := reflect.New(v.Type())
		p.Elem().Set(v)
		return v.Type(), p, nil
	default:
		return nil, reflect.Value{}, rerrors.ConfigurationErrorf("expected a component, but found value of type %s", v.Type())
	}
}

func recognized(markers []Marker) []Marker {
	var result []Marker
	for _, m := range markers {
		if _, ok := LookupMarker(m.Kind); ok {
			result = append(result, m)
		}
	}
	return result
}

func componentName(typ reflect.Type, target reflect.Value) string {
	if target.IsValid() {
		if named, ok := target.Interface().(interface{ ComponentName() string }); ok {
			if name := named.ComponentName(); name != "" {
				return name
			}
		}
	}
	return typ.String()
}

func describeType(bean any) string {
	if bean == nil {
		return "nil"
	}
	return reflect.TypeOf(bean).String()
}
