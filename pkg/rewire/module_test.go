package rewire

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	rerrors "github.com/toyz/rewire/internal/errors"
)

type recordingModule struct {
	name     string
	order    int
	log      *[]string
	fail     error
	defaults int
}

func (m *recordingModule) Name() string { return m.name }
func (m *recordingModule) Order() int   { return m.order }

func (m *recordingModule) BeforeTest(ctx context.Context, integration bool) error {
	*m.log = append(*m.log, "before:"+m.name)
	return m.fail
}

func (m *recordingModule) AfterTest(ctx context.Context, integration bool) error {
	*m.log = append(*m.log, "after:"+m.name)
	return nil
}

func (m *recordingModule) InitDefaults(ctx context.Context) error {
	m.defaults++
	return nil
}

type valueModule struct{ items []string }

func (valueModule) Name() string                                { return "value" }
func (valueModule) Order() int                                  { return 1 }
func (valueModule) BeforeTest(ctx context.Context, _ bool) error { return nil }
func (valueModule) AfterTest(ctx context.Context, _ bool) error  { return nil }

func TestModuleRegistry_OrderedByOrderThenRegistration(t *testing.T) {
	registry := NewModuleRegistry(zaptest.NewLogger(t))
	var log []string

	a := &recordingModule{name: "a", order: 700, log: &log}
	b := &recordingModule{name: "b", order: 300, log: &log}
	c := &recordingModule{name: "c", order: 900, log: &log}
	d := &recordingModule{name: "d", order: 300, log: &log}

	for _, m := range []Module{a, b, c, d} {
		require.NoError(t, registry.Register(m))
	}

	var orders []int
	var names []string
	for m := range registry.All() {
		orders = append(orders, m.Order())
		names = append(names, m.Name())
	}
	assert.Equal(t, []int{300, 300, 700, 900}, orders)
	assert.Equal(t, []string{"b", "d", "a", "c"}, names)

	// the sequence can be ranged over again
	count := 0
	for range registry.All() {
		count++
	}
	assert.Equal(t, 4, count)
}

func TestModuleRegistry_ExtremeOrders(t *testing.T) {
	registry := NewModuleRegistry(nil)
	var log []string

	for _, m := range []*recordingModule{
		{name: "high", order: 1, log: &log},
		{name: "max", order: math.MaxInt, log: &log},
		{name: "low", order: math.MinInt, log: &log},
		{name: "zero", order: 0, log: &log},
	} {
		require.NoError(t, registry.Register(m))
	}

	var names []string
	for m := range registry.All() {
		names = append(names, m.Name())
	}
	assert.Equal(t, []string{"low", "zero", "high", "max"}, names)
}

func TestModuleRegistry_RegisterIsIdempotent(t *testing.T) {
	registry := NewModuleRegistry(nil)
	var log []string
	m := &recordingModule{name: "a", order: 1, log: &log}

	require.NoError(t, registry.Register(m))
	require.NoError(t, registry.Register(m))
	assert.Equal(t, 1, registry.Len())

	// identity is the instance, names are not checked
	require.NoError(t, registry.Register(&recordingModule{name: "a", order: 1, log: &log}))
	require.NoError(t, registry.Register(&recordingModule{name: "", order: 2, log: &log}))
	assert.Equal(t, 3, registry.Len())
}

func TestModuleRegistry_RegisterRejectsInvalidModules(t *testing.T) {
	registry := NewModuleRegistry(nil)

	err := registry.Register(nil)
	assert.True(t, rerrors.HasCode(err, rerrors.RegistrationErrorCode))

	err = registry.Register(valueModule{items: []string{"x"}})
	assert.True(t, rerrors.HasCode(err, rerrors.RegistrationErrorCode))
	assert.Zero(t, registry.Len())
}

func TestModuleRegistry_RunBeforeStopsAtFirstFailure(t *testing.T) {
	registry := NewModuleRegistry(zaptest.NewLogger(t))
	var log []string
	boom := errors.New("boom")

	require.NoError(t, registry.Register(&recordingModule{name: "first", order: 1, log: &log}))
	require.NoError(t, registry.Register(&recordingModule{name: "broken", order: 2, log: &log, fail: boom}))
	require.NoError(t, registry.Register(&recordingModule{name: "never", order: 3, log: &log}))

	err := registry.RunBefore(context.Background(), true)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "module broken (order 2)")
	assert.Equal(t, []string{"before:first", "before:broken"}, log)
}

func TestModuleRegistry_RunAfterAndDefaults(t *testing.T) {
	registry := NewModuleRegistry(nil)
	var log []string
	late := &recordingModule{name: "late", order: 10, log: &log}
	early := &recordingModule{name: "early", order: 5, log: &log}
	require.NoError(t, registry.Register(late))
	require.NoError(t, registry.Register(early))

	require.NoError(t, registry.RunAfter(context.Background(), false))
	assert.Equal(t, []string{"after:early", "after:late"}, log)

	require.NoError(t, registry.InitDefaults(context.Background()))
	assert.Equal(t, 1, late.defaults)
	assert.Equal(t, 1, early.defaults)
}

func TestHTTPModule_InstallsManagedBeans(t *testing.T) {
	rt := newTestRuntime(t)
	ctx := context.Background()

	stale := rt.Setup("admin")
	stale.GET("/stale").JSON(noop)

	rt.Container().Manage(&usersController{})
	rt.Container().ManageTypes(TypeOf[adminController]())

	require.NoError(t, rt.Modules().RunBefore(ctx, false))
	assert.True(t, stale.Routes().IsEmpty())
	assert.Equal(t, 8, rt.DefaultSetup().Routes().Len())

	require.NoError(t, rt.Modules().RunAfter(ctx, false))
	assert.True(t, rt.DefaultSetup().Routes().IsEmpty())
}

func TestHTTPModule_Identity(t *testing.T) {
	rt := newTestRuntime(t)
	modules := rt.Modules().List()
	require.Len(t, modules, 1)
	assert.Equal(t, "HTTP", modules[0].Name())
	assert.Equal(t, 700, modules[0].Order())
}
