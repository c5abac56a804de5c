package rewire

import (
	"context"
)

// HTTPModule is the built-in module that isolates routes between tests
type HTTPModule struct {
	rt *Runtime
}

// Name returns "HTTP"
func (m *HTTPModule) Name() string {
	return "HTTP"
}

// Order returns 700
func (m *HTTPModule) Order() int {
	return 700
}

// BeforeTest clears all routes and installs the container's managed
// instances and types on the default setup.
func (m *HTTPModule) BeforeTest(ctx context.Context, integration bool) error {
	if err := m.cleanUp(); err != nil {
		return err
	}

	setup := m.rt.DefaultSetup()
	if err := setup.Beans(m.rt.container.ManagedInstances()...); err != nil {
		return err
	}

	types := m.rt.container.ManagedTypes()
	beans := make([]any, len(types))
	for i, t := range types {
		beans[i] = t
	}
	return setup.Beans(beans...)
}

// AfterTest clears all routes
func (m *HTTPModule) AfterTest(ctx context.Context, integration bool) error {
	return m.cleanUp()
}

func (m *HTTPModule) cleanUp() error {
	m.rt.app.ResetGlobalState()
	m.rt.config.IgnoreChanges()

	for _, s := range m.rt.Setups() {
		if err := s.Reload(); err != nil {
			return err
		}
	}
	return nil
}
