package rewiretest_test

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/toyz/rewire/internal/scan"
	"github.com/toyz/rewire/pkg/rewire"
	"github.com/toyz/rewire/pkg/rewire/rewiretest"
)

type pingController struct {
	rewire.Base
}

func (*pingController) Controller() rewire.ControllerSpec {
	return rewire.ControllerSpec{
		Paths: []string{"/ping"},
		Operations: rewire.Operations{
			"Ping": {rewire.GET()},
			"Echo": {rewire.POST("/echo")},
		},
	}
}

func (*pingController) Ping() (any, error) { return "pong", nil }

func (*pingController) Echo(req rewire.RequestContext) (any, error) {
	return req.QueryParam("v"), nil
}

func newRuntime(t *testing.T) *rewire.Runtime {
	return rewire.New(
		rewire.WithLogger(zaptest.NewLogger(t)),
		rewire.WithMetricsRegisterer(prometheus.NewRegistry()),
		rewire.WithCatalog(scan.NewCatalog()),
		rewire.WithEntryPoints(rewire.NewEntryPoints()),
	)
}

func TestSetup_InstallsBeansAndCleansUp(t *testing.T) {
	rt := newRuntime(t)
	rt.DefaultSetup().GET("/leftover").JSON(func(rewire.RequestContext) (any, error) { return nil, nil })

	t.Run("fixture", func(t *testing.T) {
		rewiretest.Setup(t, rt, &pingController{})

		assert.True(t, rt.Env().IsTest())
		assert.True(t, rt.App().IsManaged())
		assert.Equal(t, 2, rt.DefaultSetup().Routes().Len())

		_, ok := rt.DefaultSetup().Routes().Get("GET", "/ping/ping")
		assert.True(t, ok)
		_, ok = rt.DefaultSetup().Routes().Get("GET", "/leftover")
		assert.False(t, ok)

		// registering through the app does not rerun the hooks
		require.NoError(t, rt.App().Beans(t.Context()))
		assert.Equal(t, 2, rt.DefaultSetup().Routes().Len())
	})

	assert.True(t, rt.DefaultSetup().Routes().IsEmpty())
	assert.False(t, rt.App().IsManaged())
	assert.False(t, rt.App().InFixture())
}

func TestSetup_RestartKeepsEntryPoint(t *testing.T) {
	rt := newRuntime(t)
	rewiretest.Setup(t, rt)
	ctx := context.Background()
	var calls atomic.Int32

	entry := func(ctx context.Context, args []string) error {
		calls.Add(1)
		if err := rt.App().Args(args...); err != nil {
			return err
		}
		return rt.App().Beans(ctx, &pingController{})
	}
	require.NoError(t, rt.App().Run(ctx, entry, "profiles=test", "greeting=hi"))
	name := rt.App().Main()
	require.NotEmpty(t, name)

	// every restart reruns the before-test hooks, which must not lose the entry point
	for i := range 2 {
		rt.App().NotifyChanges()
		require.True(t, rt.App().RestartIfDirty(ctx))

		assert.EqualValues(t, i+2, calls.Load())
		assert.False(t, rt.App().IsDegraded())
		assert.Equal(t, name, rt.App().Main())
		assert.Equal(t, "hi", rt.Config().Str("greeting"))
		assert.Equal(t, 2, rt.DefaultSetup().Routes().Len())
	}
}
