// Package rewiretest runs the module test hooks around a test case.
//
//	func TestUsers(t *testing.T) {
//		rt := rewiretest.Setup(t, rewire.Default(), &UsersController{})
//		...
//	}
package rewiretest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/toyz/rewire/pkg/rewire"
)

// TestProfile is the environment profile every fixture activates
const TestProfile = "test"

// Options tweak a fixture
type Options struct {
	// Integration is passed to every module hook
	Integration bool
	// Types are managed as component types instead of instances
	Types []rewire.ComponentType
}

// Setup resets rt, activates the test profile, manages beans and runs the
// module before-test hooks. The after-test hooks run on cleanup. While the
// fixture is active, App.Beans reruns the before-test hooks once per epoch,
// so a restarted application starts from clean routes.
func Setup(t testing.TB, rt *rewire.Runtime, beans ...any) *rewire.Runtime {
	t.Helper()
	return SetupWith(t, rt, Options{}, beans...)
}

// SetupWith is Setup with explicit options
func SetupWith(t testing.TB, rt *rewire.Runtime, opts Options, beans ...any) *rewire.Runtime {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, rt.ResetAll(ctx))
	rt.App().SetFixture(true)
	rt.Env().SetProfiles(TestProfile)
	rt.Container().Manage(beans...)
	rt.Container().ManageTypes(opts.Types...)

	require.NoError(t, rt.App().RunTestHooks(ctx, opts.Integration))
	// the hooks reset application state, so managed mode is set afterwards
	rt.App().SetManaged(true)

	t.Cleanup(func() {
		defer rt.App().SetFixture(false)
		require.NoError(t, rt.Modules().RunAfter(context.Background(), opts.Integration))
	})
	return rt
}
